package logging

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Switch is a zapcore.Core that forwards every entry to a replaceable
// destination core. Loggers derived from a switched logger with With or
// Named keep following the switch, so one Set call redirects them all.
type Switch struct {
	dest   *atomic.Pointer[zapcore.Core]
	fields []zapcore.Field
}

// NewSwitch returns a Switch that forwards to initial.
func NewSwitch(initial zapcore.Core) *Switch {
	dest := new(atomic.Pointer[zapcore.Core])
	dest.Store(&initial)
	return &Switch{dest: dest}
}

// Set replaces the destination core and returns the previous one.
func (s *Switch) Set(core zapcore.Core) zapcore.Core {
	prev := s.dest.Swap(&core)
	return *prev
}

func (s *Switch) load() zapcore.Core { return *s.dest.Load() }

// Enabled implements zapcore.Core.
func (s *Switch) Enabled(lvl zapcore.Level) bool { return s.load().Enabled(lvl) }

// With implements zapcore.Core. The child shares the parent's destination
// pointer and carries the accumulated fields itself.
func (s *Switch) With(fields []zapcore.Field) zapcore.Core {
	combined := make([]zapcore.Field, 0, len(s.fields)+len(fields))
	combined = append(combined, s.fields...)
	combined = append(combined, fields...)
	return &Switch{dest: s.dest, fields: combined}
}

// Check implements zapcore.Core.
func (s *Switch) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(ent.Level) {
		return ce.AddCore(ent, s)
	}
	return ce
}

// Write implements zapcore.Core.
func (s *Switch) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	core := s.load()
	if len(s.fields) > 0 {
		core = core.With(s.fields)
	}
	return core.Write(ent, fields)
}

// Sync implements zapcore.Core.
func (s *Switch) Sync() error { return s.load().Sync() }

// NewLineCore returns a core that renders entries with a console encoder and
// hands each finished line to fn. The dashboard installs one so log output
// scrolls inside its panel instead of corrupting the live display.
func NewLineCore(fn func(line string), enab zapcore.LevelEnabler) zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), &lineSink{fn: fn}, enab)
}

type lineSink struct {
	fn func(string)
}

func (s *lineSink) Write(p []byte) (int, error) {
	s.fn(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (s *lineSink) Sync() error { return nil }
