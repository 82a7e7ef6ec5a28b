package executor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"jobshell/internal/eventlog"
	"jobshell/internal/jobs"
)

// Background resumes a job without giving it the terminal.
func (e *Executor) Background(target string) error {
	job, err := e.jobs.Resolve(target)
	if err != nil {
		return err
	}

	if err := unix.Kill(-job.PGID, unix.SIGCONT); err != nil {
		fmt.Fprintf(e.stderr, "bg: kill(SIGCONT): %v\n", err)
	}
	e.jobs.SetStatus(job.PGID, jobs.Running)
	e.announce.Announce(job, "Continued in background", false)
	e.recordJob(eventlog.Continued, job)
	return nil
}

// Foreground resumes a job with the terminal and waits for it like a freshly
// launched pipeline. A job that stops again keeps its entry; one that
// finishes is removed. It returns the job's status.
func (e *Executor) Foreground(target string) (int, error) {
	job, err := e.jobs.Resolve(target)
	if err != nil {
		return 0, err
	}

	e.setForeground(job.PGID)
	defer e.setForeground(e.shellPgid)

	if err := unix.Kill(-job.PGID, unix.SIGCONT); err != nil {
		fmt.Fprintf(e.stderr, "fg: kill(SIGCONT): %v\n", err)
	}
	e.jobs.SetStatus(job.PGID, jobs.Running)
	fmt.Fprintln(e.announce.w, job.Cmd)

	res := waitGroup(job.PGID)
	for pid, ws := range res.reaped {
		e.jobs.Forget(pid)
		job.Finished(pid, statusCode(ws))
	}

	if res.stopped {
		e.jobs.SetStatus(job.PGID, jobs.Stopped)
		fmt.Fprintln(e.announce.w)
		e.announce.Announce(job, jobs.Stopped.String(), true)
		e.recordJob(eventlog.Stopped, job)
		e.lastStatus = res.code()
		return e.lastStatus, nil
	}

	job.Status = jobs.Done
	e.recordJob(eventlog.Done, job)
	e.jobs.Remove(job.PGID)
	e.lastStatus = job.ExitStatus
	return e.lastStatus, nil
}
