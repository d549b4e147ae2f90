package logger

import (
	"strings"

	"github.com/pkg/errors"
)

// Level is the level at which a logger is configured. Messages below it are
// filtered.
type Level uint32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

var levelTags = [...]string{"TRC", "DBG", "INF", "WRN", "ERR", "CRT", "OFF"}

var levelNames = map[string]Level{
	"trace": LevelTrace, "trc": LevelTrace,
	"debug": LevelDebug, "dbg": LevelDebug,
	"info": LevelInfo, "inf": LevelInfo,
	"warn": LevelWarn, "wrn": LevelWarn,
	"error": LevelError, "err": LevelError,
	"critical": LevelCritical, "crt": LevelCritical,
	"off": LevelOff,
}

// LevelFromString returns the level named s, either in full or by its tag.
// Unknown names give LevelInfo and false.
func LevelFromString(s string) (Level, bool) {
	l, ok := levelNames[strings.ToLower(s)]
	if !ok {
		return LevelInfo, false
	}
	return l, true
}

// String returns the tag printed in log lines.
func (l Level) String() string {
	if l >= LevelOff {
		return "OFF"
	}
	return levelTags[l]
}

// levelSpec is a parsed --loglevel value: an optional level for every
// subsystem followed by per-subsystem overrides.
type levelSpec struct {
	all        Level
	hasAll     bool
	subsystems map[string]Level
}

// parseLevelSpec accepts "level", "SUBSYS=level,SUBSYS=level" or both, as in
// "info,SNDR=trace".
func parseLevelSpec(s string) (levelSpec, error) {
	spec := levelSpec{subsystems: make(map[string]Level)}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tag, name, found := strings.Cut(part, "=")
		if !found {
			l, ok := LevelFromString(part)
			if !ok {
				return levelSpec{}, errors.Errorf("invalid log level %s", part)
			}
			spec.all, spec.hasAll = l, true
			continue
		}
		l, ok := LevelFromString(name)
		if !ok {
			return levelSpec{}, errors.Errorf("invalid log level %s for subsystem %s", name, tag)
		}
		if tag == "" {
			return levelSpec{}, errors.Errorf("missing subsystem in %q", part)
		}
		spec.subsystems[tag] = l
	}
	if !spec.hasAll && len(spec.subsystems) == 0 {
		return levelSpec{}, errors.Errorf("invalid log level %q", s)
	}
	return spec, nil
}
