package executor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"jobshell/internal/jobs"
	"jobshell/internal/parser"
)

// Exit statuses for stages that never got to run their program.
const (
	StatusRedirectFailed = 1
	StatusNotExecutable  = 126
	StatusNotFound       = 127
)

// Pipeline is a launched command line: one process group holding a process
// per stage that made it to exec.
type Pipeline struct {
	PGID int
	// Pids of the started stages, in stage order.
	Pids []int

	stages []stage
}

type stage struct {
	pid  int // 0 if the stage never started
	code int
	done bool
}

// Status returns the status of the last stage.
func (p *Pipeline) Status() int {
	if len(p.stages) == 0 {
		return 0
	}
	return p.stages[len(p.stages)-1].code
}

// track points job at the pipeline's last stage, or records its status if
// that stage is already over.
func (p *Pipeline) track(job *jobs.Job) {
	if len(p.stages) == 0 {
		return
	}
	last := p.stages[len(p.stages)-1]
	if last.done {
		job.LastPid = 0
		job.ExitStatus = last.code
		return
	}
	job.LastPid = last.pid
}

// Live returns the pids of stages that have not been reaped.
func (p *Pipeline) Live() []int {
	var out []int
	for _, s := range p.stages {
		if s.pid != 0 && !s.done {
			out = append(out, s.pid)
		}
	}
	return out
}

func (p *Pipeline) collect(reaped map[int]unix.WaitStatus) {
	for i := range p.stages {
		if p.stages[i].pid == 0 {
			continue
		}
		if ws, ok := reaped[p.stages[i].pid]; ok {
			p.stages[i].code = statusCode(ws)
			p.stages[i].done = true
		}
	}
}

// Launch starts one process per stage, wired together with pipes, all in one
// new process group. A stage whose redirection or program can't be opened is
// reported and skipped without disturbing its siblings. Any other failure
// kills the stages already started and returns an error.
func (e *Executor) Launch(cmds []parser.Command, background bool) (*Pipeline, error) {
	n := len(cmds)
	p := &Pipeline{stages: make([]stage, n)}

	// stdin[i] and stdout[i] are the pipe ends stage i uses; the shell's copy
	// is closed as soon as the stage is started.
	stdin := make([]*os.File, n)
	stdout := make([]*os.File, n)
	defer func() {
		closeFiles(stdin...)
		closeFiles(stdout...)
	}()

	for i := 0; i < n-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("pipe: %w", err)
		}
		stdout[i], stdin[i+1] = w, r
	}

	for i, c := range cmds {
		pid, err := e.startStage(c, stdin[i], stdout[i], background, p.PGID)
		closeFiles(stdin[i], stdout[i])
		stdin[i], stdout[i] = nil, nil

		var serr *stageError
		switch {
		case errors.As(err, &serr):
			fmt.Fprintf(e.stderr, "%v\n", serr)
			p.stages[i] = stage{code: serr.code, done: true}
			continue
		case err != nil:
			e.abort(p)
			return nil, err
		case pid == 0:
			// Nothing to run, only redirections.
			p.stages[i] = stage{done: true}
			continue
		}

		if p.PGID == 0 {
			p.PGID = pid
		}
		// Idempotent, the child joined the group before exec.
		if err := unix.Setpgid(pid, p.PGID); err != nil {
			e.log.Printf("setpgid(%d, %d): %v", pid, p.PGID, err)
		}
		p.stages[i] = stage{pid: pid}
		p.Pids = append(p.Pids, pid)
	}

	return p, nil
}

// stageError is a failure confined to one stage.
type stageError struct {
	name string
	err  error
	code int
}

func (s *stageError) Error() string {
	var pathErr *fs.PathError
	switch {
	case s.code == StatusNotFound:
		return fmt.Sprintf("%s: command not found", s.name)
	case errors.As(s.err, &pathErr):
		return fmt.Sprintf("%s: %v", s.name, pathErr.Err)
	}
	return fmt.Sprintf("%s: %v", s.name, s.err)
}

func (s *stageError) Unwrap() error {
	return s.err
}

// startStage starts a single stage and returns its pid, or 0 if the stage has
// no program.
func (e *Executor) startStage(c parser.Command, pipeIn, pipeOut *os.File, background bool, pgid int) (int, error) {
	stdin, stdout := e.stdin, e.stdout
	var opened []*os.File
	defer func() { closeFiles(opened...) }()

	switch {
	case pipeIn != nil:
		stdin = pipeIn
	case background && c.Stdin == "":
		// Background jobs should not read from the terminal.
		devNull, err := os.Open(os.DevNull)
		if err != nil {
			return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
		}
		opened = append(opened, devNull)
		stdin = devNull
	}
	if pipeOut != nil {
		stdout = pipeOut
	}

	if c.Stdin != "" {
		f, err := os.Open(c.Stdin)
		if err != nil {
			return 0, &stageError{name: c.Stdin, err: err, code: StatusRedirectFailed}
		}
		opened = append(opened, f)
		stdin = f
	}
	if c.Stdout != "" {
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if c.Mode == parser.Append {
			flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(c.Stdout, flags, 0644)
		if err != nil {
			return 0, &stageError{name: c.Stdout, err: err, code: StatusRedirectFailed}
		}
		opened = append(opened, f)
		stdout = f
	}

	if len(c.Args) == 0 {
		return 0, nil
	}

	cmd := exec.Command(c.Args[0], c.Args[1:]...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = e.stderr
	cmd.SysProcAttr = &unix.SysProcAttr{
		Setpgid: true,
		Pgid:    pgid,
	}
	if fd, ok := e.term.Ctty(); ok && !background {
		// Take the terminal in the child before exec so the program never
		// runs in the background by accident.
		cmd.SysProcAttr.Foreground = true
		cmd.SysProcAttr.Ctty = fd
	}

	if err := cmd.Start(); err != nil {
		if code, ok := execFailure(err); ok {
			return 0, &stageError{name: c.Args[0], err: err, code: code}
		}
		return 0, fmt.Errorf("%s: %w", c.Args[0], err)
	}

	pid := cmd.Process.Pid
	// Reaping goes through wait4 on the process group, not cmd.Wait.
	_ = cmd.Process.Release()
	return pid, nil
}

// execFailure reports whether err means the program itself could not be run,
// and the status such a stage exits with.
func execFailure(err error) (int, bool) {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return StatusNotFound, true
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.ENOEXEC):
		return StatusNotExecutable, true
	}
	return 0, false
}

// abort kills whatever part of a pipeline already started.
func (e *Executor) abort(p *Pipeline) {
	if p.PGID == 0 {
		return
	}
	if err := unix.Kill(-p.PGID, unix.SIGTERM); err != nil {
		e.log.Printf("kill(-%d): %v", p.PGID, err)
	}
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}
