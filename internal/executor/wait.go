package executor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// groupWait is what a blocking wait on one process group observed.
type groupWait struct {
	reaped  map[int]unix.WaitStatus
	stopped bool
	stop    unix.WaitStatus
}

func (w groupWait) code() int {
	return statusCode(w.stop)
}

// waitGroup blocks until every process in pgid has been reaped or one of them
// stops.
func waitGroup(pgid int) groupWait {
	res := groupWait{reaped: make(map[int]unix.WaitStatus)}
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-pgid, &ws, unix.WUNTRACED, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			// ECHILD: nothing left in the group.
			return res
		case ws.Stopped():
			res.stopped = true
			res.stop = ws
			return res
		default:
			res.reaped[pid] = ws
		}
	}
}

// statusCode maps a wait status to a shell exit status.
func statusCode(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	case ws.Stopped():
		return 128 + int(ws.StopSignal())
	}
	return 0
}
