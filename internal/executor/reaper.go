package executor

import (
	"errors"

	"golang.org/x/sys/unix"

	"jobshell/internal/eventlog"
	"jobshell/internal/jobs"
)

// Reap collects every pending child status change without blocking and
// folds it into the job table. Children the table doesn't know about are
// reaped silently. Calling it with nothing pending changes nothing.
func (e *Executor) Reap() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || pid <= 0 {
			return
		}
		e.update(pid, ws)
	}
}

func (e *Executor) update(pid int, ws unix.WaitStatus) {
	switch {
	case ws.Continued():
		job := e.jobs.ByPid(pid)
		if job != nil && e.jobs.SetStatus(job.PGID, jobs.Running) {
			e.announce.Announce(job, "Continued", true)
			e.recordJob(eventlog.Continued, job)
		}
	case ws.Stopped():
		job := e.jobs.ByPid(pid)
		if job != nil && e.jobs.SetStatus(job.PGID, jobs.Stopped) {
			e.announce.Announce(job, jobs.Stopped.String(), true)
			e.recordJob(eventlog.Stopped, job)
		}
	case ws.Exited(), ws.Signaled():
		job, gone := e.jobs.Forget(pid)
		if job == nil {
			return
		}
		job.Finished(pid, statusCode(ws))
		if !gone {
			return
		}
		job.Status = jobs.Done
		e.announce.Announce(job, jobs.Done.String(), true)
		e.recordJob(eventlog.Done, job)
		e.jobs.Remove(job.PGID)
	}
}
