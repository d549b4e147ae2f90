package logger

import (
	"sync"

	"github.com/pkg/errors"
)

// BackendLog is the logging backend used to create all subsystem loggers.
var BackendLog = NewBackend()

var (
	subsystemsMu sync.Mutex
	subsystems   = make(map[string]*Logger)
)

// RegisterSubSystem returns the logger of the given subsystem, creating it
// on first use.
func RegisterSubSystem(tag string) *Logger {
	subsystemsMu.Lock()
	defer subsystemsMu.Unlock()
	l, ok := subsystems[tag]
	if !ok {
		l = BackendLog.Logger(tag)
		subsystems[tag] = l
	}
	return l
}

// InitLog attaches log file and error log file to the backend log and
// starts it.
func InitLog(logFile, errLogFile string) error {
	err := BackendLog.AddLogFile(logFile, LevelTrace)
	if err != nil {
		return err
	}
	err = BackendLog.AddLogFile(errLogFile, LevelWarn)
	if err != nil {
		return err
	}
	return BackendLog.Run()
}

// SetLogLevels applies a level spec such as "debug" or "info,SNDR=trace" to
// the registered subsystems. Every named subsystem must be registered.
func SetLogLevels(level string) error {
	spec, err := parseLevelSpec(level)
	if err != nil {
		return err
	}
	subsystemsMu.Lock()
	defer subsystemsMu.Unlock()
	for tag := range spec.subsystems {
		if _, ok := subsystems[tag]; !ok {
			return errors.Errorf("unknown subsystem %s", tag)
		}
	}
	for tag, l := range subsystems {
		if lvl, ok := spec.subsystems[tag]; ok {
			l.SetLevel(lvl)
		} else if spec.hasAll {
			l.SetLevel(spec.all)
		}
	}
	return nil
}
