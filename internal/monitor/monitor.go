// Package monitor renders the live sync dashboard. While active it owns the
// terminal: application logging is rerouted into the dashboard's scroll-back
// panel and the process stderr is parked on /dev/null so native tool chatter
// cannot tear the frame.
package monitor

import (
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/crateloft/cratesync/internal/clock/system"
	"github.com/crateloft/cratesync/internal/logging"
	"github.com/crateloft/cratesync/internal/progress"
)

// Config tunes the render loop.
type Config struct {
	// Interval is the time between frames. Defaults to 100ms.
	Interval time.Duration

	// Out receives rendered frames. Defaults to os.Stdout.
	Out io.Writer

	// Clock drives the elapsed display. Defaults to the system clock.
	Clock progress.Clock
}

// Monitor paints aggregate snapshots at a fixed rate.
type Monitor struct {
	cfg Config
	agg *progress.Aggregator
	sw  *logging.Switch

	prev    zapcore.Core
	restore func() error
	running bool

	quit chan struct{}
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New wires the monitor to the aggregate and the logger switch. sw may be
// nil when the caller does not want log takeover (tests).
func New(agg *progress.Aggregator, sw *logging.Switch, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	return &Monitor{
		cfg:  cfg,
		agg:  agg,
		sw:   sw,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start takes over the terminal and begins painting. Log lines at info and
// above land in the dashboard panel instead of the console, and fd 2 is
// parked on /dev/null until Stop.
func (m *Monitor) Start() error {
	var startErr error
	m.startOnce.Do(func() {
		if m.sw != nil {
			m.prev = m.sw.Set(logging.NewLineCore(m.agg.AppendLog, zapcore.InfoLevel))
		}
		restore, err := silenceStderr()
		if err != nil {
			if m.sw != nil {
				m.sw.Set(m.prev)
			}
			startErr = err
			return
		}
		m.restore = restore
		m.running = true
		go m.loop()
	})
	return startErr
}

// Stop paints a final frame, restores stderr and the logger destination, and
// leaves the cursor on a fresh line. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		if !m.running {
			return
		}
		close(m.quit)
		<-m.done
		m.paint()
		if m.restore != nil {
			//nolint:errcheck // nothing sensible to do with a failed fd restore
			m.restore()
		}
		if m.sw != nil && m.prev != nil {
			m.sw.Set(m.prev)
		}
		//nolint:errcheck // terminal write
		io.WriteString(m.cfg.Out, "\n")
	})
}

func (m *Monitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.quit:
			return
		case <-ticker.C:
			m.paint()
		}
	}
}

func (m *Monitor) paint() {
	frame := renderFrame(m.agg.Snapshot(), m.cfg.Clock.Now())
	//nolint:errcheck // terminal write
	io.WriteString(m.cfg.Out, frame)
}
