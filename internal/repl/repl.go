// Package repl reads command lines and dispatches them to builtins or the
// executor.
package repl

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/abiosoft/readline"
	"golang.org/x/sys/unix"

	"jobshell/internal/builtins"
	"jobshell/internal/config"
	"jobshell/internal/eventlog"
	"jobshell/internal/executor"
	"jobshell/internal/parser"
)

// StatusSyntaxError is the status of a line that could not be tokenized.
const StatusSyntaxError = 2

type Options struct {
	Config *config.Configuration
	Logger *log.Logger
	Events *eventlog.SessionLogger

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Terminal overrides the terminal opened from Config.TermFd.
	Terminal executor.Terminal
}

// Shell is one interactive session.
type Shell struct {
	cfg  *config.Configuration
	log  *log.Logger
	exec *executor.Executor
	env  *builtins.Env

	stdin  *os.File
	stdout *os.File
	stderr *os.File
}

// New prepares a shell. When the terminal is a tty the shell puts itself in
// its own process group and takes the terminal.
func New(opts Options) *Shell {
	s := &Shell{
		cfg:    opts.Config,
		log:    opts.Logger,
		stdin:  opts.Stdin,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
	}
	if s.cfg == nil {
		s.cfg = config.Default()
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if s.stdin == nil {
		s.stdin = os.Stdin
	}
	if s.stdout == nil {
		s.stdout = os.Stdout
	}
	if s.stderr == nil {
		s.stderr = os.Stderr
	}

	term := opts.Terminal
	if term == nil {
		term = executor.NewTerminal(s.cfg.TermFd)
	}
	shellPgid := 0
	if _, ok := term.Ctty(); ok {
		shellPgid = s.initJobControl(term)
	}

	s.exec = executor.New(executor.Options{
		Stdin:     s.stdin,
		Stdout:    s.stdout,
		Stderr:    s.stderr,
		Terminal:  term,
		ShellPGID: shellPgid,
		Color:     s.cfg.Color,
		Logger:    s.log,
		Events:    opts.Events,
	})
	s.env = &builtins.Env{Exec: s.exec, Stdout: s.stdout, Stderr: s.stderr}
	return s
}

// initJobControl makes the shell a process group leader owning the terminal
// and returns its group id.
func (s *Shell) initJobControl(term executor.Terminal) int {
	// Handing the terminal back from a child's group would otherwise stop us.
	signal.Ignore(unix.SIGTTOU, unix.SIGTTIN)

	if unix.Getpgrp() != unix.Getpid() {
		if err := unix.Setpgid(0, 0); err != nil {
			s.log.Printf("setpgid: %v", err)
		}
	}
	pgid := unix.Getpgrp()
	if err := term.SetForeground(pgid); err != nil {
		s.log.Printf("take terminal: %v", err)
	}
	return pgid
}

func (s *Shell) Executor() *executor.Executor {
	return s.exec
}

// RunLine executes one command line. It returns an *builtins.ExitError when
// the line asked the shell to exit.
func (s *Shell) RunLine(input string) error {
	line, background := parser.SplitBackground(input)
	if line == "" {
		return nil
	}

	tokens, err := parser.Tokenize(line)
	if err != nil {
		fmt.Fprintf(s.stderr, "jobshell: %v\n", err)
		s.exec.SetLastStatus(StatusSyntaxError)
		return nil
	}

	cmds := parser.BuildPipeline(tokens)
	if len(cmds) == 0 {
		return nil
	}

	// A builtin with a redirection or in a pipeline runs as an external
	// program.
	if len(cmds) == 1 && builtins.Is(cmds[0].Name()) && cmds[0].Stdin == "" && cmds[0].Stdout == "" {
		_, err := builtins.Handle(s.env, cmds[0].Args)
		if errors.Is(err, builtins.ErrExit) {
			return err
		}
		if err != nil {
			fmt.Fprintln(s.stderr, err)
		}
		return nil
	}

	s.exec.ExecutePipeline(cmds, background, line)
	return nil
}

// RunCommand executes a single line non-interactively and returns the status
// the shell should exit with.
func (s *Shell) RunCommand(line string) int {
	err := s.RunLine(line)
	s.exec.Reap()

	var exitErr *builtins.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return s.exec.LastStatus()
}

// Run reads and executes lines until EOF or exit, and returns the status the
// shell should exit with.
func (s *Shell) Run() (int, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.cfg.Prompt,
		HistoryFile:     s.cfg.HistoryPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           readline.NewCancelableStdin(s.stdin),
		Stdout:          s.stdout,
		Stderr:          s.stderr,
	})
	if err != nil {
		return 1, err
	}
	defer rl.Close()

	// The buffered slot records that some child changed state since the
	// last sweep.
	childChanged := make(chan os.Signal, 1)
	signal.Notify(childChanged, unix.SIGCHLD)
	defer signal.Stop(childChanged)

	stop := s.forwardInterrupts()
	defer stop()

	for {
		select {
		case <-childChanged:
			s.exec.Reap()
		default:
		}

		line, err := rl.Readline()
		switch {
		case err == io.EOF:
			return s.exec.LastStatus(), nil

		case err == readline.ErrInterrupt:
			continue

		case err != nil:
			s.log.Printf("readline: %v", err)
			continue
		}

		if err := s.RunLine(line); err != nil {
			var exitErr *builtins.ExitError
			if errors.As(err, &exitErr) {
				return exitErr.Code, nil
			}
		}
	}
}

// forwardInterrupts catches the keyboard signals and passes them on to the
// foreground job. The shell itself never dies or stops from them.
func (s *Shell) forwardInterrupts() (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, unix.SIGINT, unix.SIGTSTP, unix.SIGQUIT)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigChan:
				if sysSig, ok := sig.(syscall.Signal); ok {
					s.exec.SendSignalToFg(sysSig)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}
