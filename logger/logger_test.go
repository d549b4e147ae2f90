package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

type bufferCloser struct {
	sync.Mutex
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()
	return b.Buffer.Write(p)
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in    string
		level Level
		ok    bool
	}{
		{"trace", LevelTrace, true},
		{"DBG", LevelDebug, true},
		{"warn", LevelWarn, true},
		{"off", LevelOff, true},
		{"loud", LevelInfo, false},
	}
	for _, test := range tests {
		level, ok := LevelFromString(test.in)
		if level != test.level || ok != test.ok {
			t.Errorf("LevelFromString(%q) = %s, %t; want %s, %t", test.in, level, ok, test.level, test.ok)
		}
	}
}

func TestBackendFiltersByLevel(t *testing.T) {
	backend := NewBackend()
	all := &bufferCloser{}
	warnings := &bufferCloser{}
	if err := backend.AddLogWriter(all, LevelDebug); err != nil {
		t.Fatalf("AddLogWriter: %+v", err)
	}
	if err := backend.AddLogWriter(warnings, LevelWarn); err != nil {
		t.Fatalf("AddLogWriter: %+v", err)
	}
	log := backend.Logger("TEST")
	log.Infof("dropped before run")
	if err := backend.Run(); err != nil {
		t.Fatalf("Run: %+v", err)
	}
	if err := backend.AddLogWriter(&bufferCloser{}, LevelInfo); err == nil {
		t.Fatalf("AddLogWriter succeeded on a running backend")
	}
	log.SetLevel(LevelDebug)
	log.Tracef("below level")
	log.Debugf("debug %d", 1)
	log.Warnf("warn %d", 2)
	backend.Close()

	if !all.closed || !warnings.closed {
		t.Fatalf("writers were not closed")
	}
	if strings.Contains(all.String(), "dropped before run") || strings.Contains(all.String(), "below level") {
		t.Fatalf("unexpected lines: %q", all.String())
	}
	if !strings.Contains(all.String(), "[DBG] TEST: debug 1") || !strings.Contains(all.String(), "[WRN] TEST: warn 2") {
		t.Fatalf("missing lines: %q", all.String())
	}
	if strings.Contains(warnings.String(), "debug 1") || !strings.Contains(warnings.String(), "warn 2") {
		t.Fatalf("warn writer got %q", warnings.String())
	}
}

func TestSetLogLevels(t *testing.T) {
	l := RegisterSubSystem("LTST")
	if RegisterSubSystem("LTST") != l {
		t.Fatalf("RegisterSubSystem returned a second logger for the same tag")
	}
	if err := SetLogLevels("critical"); err != nil {
		t.Fatalf("SetLogLevels: %+v", err)
	}
	if l.Level() != LevelCritical {
		t.Fatalf("level is %s", l.Level())
	}
	if err := SetLogLevels("nope"); err == nil {
		t.Fatalf("SetLogLevels accepted an invalid level")
	}
	_ = SetLogLevels("info")
}

func TestSetLogLevelsPerSubsystem(t *testing.T) {
	a := RegisterSubSystem("LTSA")
	b := RegisterSubSystem("LTSB")
	defer SetLogLevels("info")

	if err := SetLogLevels("warn,LTSA=trace"); err != nil {
		t.Fatalf("SetLogLevels: %+v", err)
	}
	if a.Level() != LevelTrace || b.Level() != LevelWarn {
		t.Fatalf("levels %s %s, want TRC WRN", a.Level(), b.Level())
	}
	if err := SetLogLevels("LTSB=error"); err != nil {
		t.Fatalf("SetLogLevels: %+v", err)
	}
	if a.Level() != LevelTrace || b.Level() != LevelError {
		t.Fatalf("levels %s %s, want TRC ERR", a.Level(), b.Level())
	}

	tests := []string{"", ",", "LTSA=loud", "=debug", "NOPE=debug", "info,nope"}
	for _, spec := range tests {
		if err := SetLogLevels(spec); err == nil {
			t.Errorf("SetLogLevels(%q) succeeded", spec)
		}
	}
	if a.Level() != LevelTrace || b.Level() != LevelError {
		t.Fatalf("rejected specs changed levels to %s %s", a.Level(), b.Level())
	}
}
