package infra

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GoRecoverable runs f, restarting it in a fresh goroutine after a panic
// while restarts remain. maxPanics is the number of restarts allowed; once
// spent, the panic is logged and the job is abandoned rather than taking the
// process down with it.
func GoRecoverable(maxPanics int, id string, f func()) {
	defer func() {
		cause := recover()
		if cause == nil {
			return
		}
		entry := log.WithField("job", id)
		entry.Errorf("recovered from panic at %s: %v", panicOrigin(), cause)
		if maxPanics <= 0 {
			entry.Error("no restarts left, abandoning job")
			return
		}
		entry.Debugf("restarting job, %d restarts left", maxPanics-1)
		go GoRecoverable(maxPanics-1, id, f)
	}()
	f()
}

// panicOrigin walks up from the recover site to the first frame outside the
// runtime, which is where the panicking code lives.
func panicOrigin() string {
	var pc [16]uintptr
	n := runtime.Callers(3, pc[:])
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", frame.Function, frame.Line)
		}
		if !more {
			return "unknown"
		}
	}
}
