package sender

import (
	"sync"

	"github.com/guidoreina/netbuf/logger"
)

// Package-scoped logging facade, grounded on server/log.go's global
// logger: a single logger shared by every Sender in the process, guarded
// by its own mutex rather than threaded through every call as an
// argument. A process that runs more than one Sender (multiple peers)
// shares one log stream, which matches how operators actually want to
// read these logs.
var log = struct {
	sync.Mutex
	l logger.Logger
}{l: logger.Noop()}

// SetLogger installs the logger used by every Sender in this process.
func SetLogger(l logger.Logger) {
	if l == nil {
		l = logger.Noop()
	}
	log.Lock()
	defer log.Unlock()
	log.l = l
}

// currentLogger returns the logger currently installed by SetLogger, for
// handing to collaborators (e.g. spillstore.Store) constructed inside New.
func currentLogger() logger.Logger {
	log.Lock()
	defer log.Unlock()
	return log.l
}

func noticef(format string, v ...interface{}) {
	log.Lock()
	l := log.l
	log.Unlock()
	l.Noticef(format, v...)
}

func warnf(format string, v ...interface{}) {
	log.Lock()
	l := log.l
	log.Unlock()
	l.Warnf(format, v...)
}

func errorf(format string, v ...interface{}) {
	log.Lock()
	l := log.l
	log.Unlock()
	l.Errorf(format, v...)
}

func debugf(format string, v ...interface{}) {
	log.Lock()
	l := log.l
	log.Unlock()
	l.Debugf(format, v...)
}
