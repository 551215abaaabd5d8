package monitor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const stderrFD = 2

// silenceStderr parks OS fd 2 on /dev/null so child processes and native
// libraries cannot write over the dashboard. The returned func restores the
// original stderr exactly.
func silenceStderr() (func() error, error) {
	// Duplicate with CLOEXEC so children spawned while the dashboard runs
	// do not inherit the saved console fd.
	saved, err := unix.FcntlInt(uintptr(stderrFD), unix.F_DUPFD_CLOEXEC, 3)
	if err != nil {
		return nil, fmt.Errorf("save stderr: %w", err)
	}
	null, err := unix.Open("/dev/null", unix.O_WRONLY, 0)
	if err != nil {
		//nolint:errcheck
		unix.Close(saved)
		return nil, fmt.Errorf("open /dev/null: %w", err)
	}
	if err := unix.Dup3(null, stderrFD, 0); err != nil {
		//nolint:errcheck
		unix.Close(null)
		//nolint:errcheck
		unix.Close(saved)
		return nil, fmt.Errorf("redirect stderr: %w", err)
	}
	//nolint:errcheck
	unix.Close(null)

	return func() error {
		defer unix.Close(saved) //nolint:errcheck
		if err := unix.Dup3(saved, stderrFD, 0); err != nil {
			return fmt.Errorf("restore stderr: %w", err)
		}
		return nil
	}, nil
}
