// Package executor launches pipelines into process groups and drives the job
// table through foreground waits, background registration, reaping and the
// fg/bg builtins.
package executor

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"jobshell/internal/eventlog"
	"jobshell/internal/jobs"
	"jobshell/internal/parser"
)

// Options configures an Executor. Zero values fall back to the process's own
// stdio, a no-op terminal and the calling process group.
type Options struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Out receives job announcements. Defaults to Stdout.
	Out io.Writer

	Terminal  Terminal
	ShellPGID int
	Color     string
	Logger    *log.Logger
	Events    *eventlog.SessionLogger
}

// Executor owns the job table and the terminal handoff. All methods except
// CurrentFgPgid and SendSignalToFg must be called from a single goroutine.
type Executor struct {
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	jobs      *jobs.Table
	term      Terminal
	shellPgid int
	announce  *Announcer
	log       *log.Logger
	events    *eventlog.SessionLogger

	lastStatus int

	fgMutex       sync.RWMutex
	currentFgPgid int
}

func New(opts Options) *Executor {
	e := &Executor{
		stdin:     opts.Stdin,
		stdout:    opts.Stdout,
		stderr:    opts.Stderr,
		jobs:      jobs.NewTable(),
		term:      opts.Terminal,
		shellPgid: opts.ShellPGID,
		log:       opts.Logger,
		events:    opts.Events,

		currentFgPgid: -1,
	}
	if e.stdin == nil {
		e.stdin = os.Stdin
	}
	if e.stdout == nil {
		e.stdout = os.Stdout
	}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}
	if e.term == nil {
		e.term = noTerminal{}
	}
	if e.shellPgid == 0 {
		e.shellPgid = unix.Getpgrp()
	}
	if e.log == nil {
		e.log = log.New(io.Discard, "", 0)
	}
	out := opts.Out
	if out == nil {
		out = e.stdout
	}
	e.announce = NewAnnouncer(out, opts.Color)
	return e
}

// Jobs exposes the job table for listing.
func (e *Executor) Jobs() *jobs.Table {
	return e.jobs
}

func (e *Executor) Announcer() *Announcer {
	return e.announce
}

// LastStatus is the status of the most recent foreground pipeline.
func (e *Executor) LastStatus() int {
	return e.lastStatus
}

// SetLastStatus records the status of work done outside ExecutePipeline, such
// as a builtin.
func (e *Executor) SetLastStatus(status int) {
	e.lastStatus = status
}

func (e *Executor) ShellPGID() int {
	return e.shellPgid
}

// ExecutePipeline runs the stages of one command line and returns the
// pipeline status: the status of its last stage for foreground work, 0 for a
// background launch.
func (e *Executor) ExecutePipeline(cmds []parser.Command, background bool, cmdStr string) int {
	if len(cmds) == 0 {
		return e.lastStatus
	}

	if !background {
		// Foreground children grab the terminal themselves, so it has to be
		// given back even if the launch fails half way.
		defer e.setForeground(e.shellPgid)
	}

	p, err := e.Launch(cmds, background)
	if err != nil {
		fmt.Fprintf(e.stderr, "jobshell: %v\n", err)
		e.record(eventlog.Entry{Event: eventlog.LaunchFailed, Command: cmdStr, Error: err.Error()})
		e.lastStatus = 1
		return e.lastStatus
	}

	if p.PGID == 0 {
		// No stage made it to exec.
		e.lastStatus = p.Status()
		return e.lastStatus
	}

	if background {
		job := e.jobs.Add(p.PGID, p.Pids, cmdStr, jobs.Running)
		p.track(job)
		e.announce.Announce(job, "Started", false)
		e.recordJob(eventlog.Started, job)
		return 0
	}

	e.lastStatus = e.foreground(p, cmdStr)
	return e.lastStatus
}

// foreground gives the terminal to a freshly launched pipeline and waits for
// it to finish or stop.
func (e *Executor) foreground(p *Pipeline, cmdStr string) int {
	e.setForeground(p.PGID)

	res := waitGroup(p.PGID)
	p.collect(res.reaped)

	if res.stopped {
		job := e.jobs.Add(p.PGID, p.Pids, cmdStr, jobs.Stopped)
		p.track(job)
		for pid := range res.reaped {
			e.jobs.Forget(pid)
		}
		fmt.Fprintln(e.announce.w)
		e.announce.Announce(job, jobs.Stopped.String(), true)
		e.recordJob(eventlog.Stopped, job)
		return res.code()
	}
	return p.Status()
}

// setForeground hands the terminal to pgid and remembers it as the group
// interrupts are forwarded to. Handing it back to the shell clears that.
func (e *Executor) setForeground(pgid int) {
	if err := e.term.SetForeground(pgid); err != nil {
		e.log.Printf("set terminal foreground to %d: %v", pgid, err)
	}
	if pgid == e.shellPgid {
		pgid = -1
	}
	e.setCurrentFgPgid(pgid)
}

func (e *Executor) setCurrentFgPgid(pgid int) {
	e.fgMutex.Lock()
	defer e.fgMutex.Unlock()
	e.currentFgPgid = pgid
}

// CurrentFgPgid returns the process group the shell is waiting on, or -1.
// Safe for concurrent use.
func (e *Executor) CurrentFgPgid() int {
	e.fgMutex.RLock()
	defer e.fgMutex.RUnlock()
	return e.currentFgPgid
}

// SendSignalToFg forwards sig to the foreground process group, if any. Safe
// for concurrent use.
func (e *Executor) SendSignalToFg(sig unix.Signal) {
	pgid := e.CurrentFgPgid()
	if pgid > 0 {
		_ = unix.Kill(-pgid, sig)
	}
}

func (e *Executor) record(entry eventlog.Entry) {
	if err := e.events.Record(entry); err != nil {
		e.log.Printf("event log: %v", err)
	}
}

func (e *Executor) recordJob(event string, job *jobs.Job) {
	e.record(eventlog.Entry{
		Event:   event,
		JobID:   job.ID,
		PGID:    job.PGID,
		Status:  job.Status.String(),
		Command: job.Cmd,
	})
}
