//go:build !unix

package monitor

// silenceStderr is a no-op on platforms without POSIX fd duplication.
func silenceStderr() (func() error, error) {
	return func() error { return nil }, nil
}
