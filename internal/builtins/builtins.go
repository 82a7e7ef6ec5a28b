// Package builtins implements the commands the shell runs in its own process.
package builtins

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pborman/getopt/v2"

	"jobshell/internal/executor"
)

// ErrExit is wrapped by the error the exit builtin returns.
var ErrExit = errors.New("exit")

// ExitError asks the shell to stop with Code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return ErrExit
}

// Env is what a builtin runs against.
type Env struct {
	Exec   *executor.Executor
	Stdout io.Writer
	Stderr io.Writer
}

// Builtin runs with args[0] set to its own name and returns its exit status.
type Builtin func(env *Env, args []string) (int, error)

var all = map[string]Builtin{
	"cd":   builtinCd,
	"pwd":  builtinPwd,
	"exit": builtinExit,
	"jobs": builtinJobs,
	"fg":   builtinFg,
	"bg":   builtinBg,
}

// Is reports whether name is a builtin.
func Is(name string) bool {
	_, ok := all[name]
	return ok
}

// Handle runs tokens if they name a builtin. Errors other than an
// *ExitError are prefixed with the builtin's name; the caller prints them.
func Handle(env *Env, tokens []string) (bool, error) {
	if len(tokens) == 0 {
		return false, nil
	}
	fn, ok := all[tokens[0]]
	if !ok {
		return false, nil
	}

	status, err := fn(env, tokens)
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return true, err
	case err != nil:
		env.Exec.SetLastStatus(1)
		return true, fmt.Errorf("%s: %w", tokens[0], err)
	}
	env.Exec.SetLastStatus(status)
	return true, nil
}

func builtinCd(env *Env, args []string) (int, error) {
	dir := ""
	if len(args) > 1 {
		dir = args[1]
	}
	if dir == "" {
		dir = os.Getenv("HOME")
	}
	if dir == "" {
		dir = "/"
	}

	if err := os.Chdir(dir); err != nil {
		return 1, err
	}
	return 0, nil
}

func builtinPwd(env *Env, args []string) (int, error) {
	dir, err := os.Getwd()
	if err != nil {
		return 1, err
	}
	fmt.Fprintln(env.Stdout, dir)
	return 0, nil
}

func builtinExit(env *Env, args []string) (int, error) {
	code := env.Exec.LastStatus()
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(env.Stderr, "exit: %s: numeric argument required\n", args[1])
			n = 2
		}
		code = n & 0xff
	}
	return code, &ExitError{Code: code}
}

func builtinJobs(env *Env, args []string) (int, error) {
	opts := getopt.New()
	opts.SetProgram("jobs")
	long := opts.Bool('l', "list process ids in addition to the normal information")
	pgidsOnly := opts.Bool('p', "list only the process group ids")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := env.Stderr
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "usage: jobs [-lp]")
		fmt.Fprintln(w, "Display status of jobs.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		opts.PrintOptions(w)
		if err != nil {
			return 2, nil
		}
		return 0, nil
	}

	// Fold in anything that finished since the last prompt.
	env.Exec.Reap()

	announcer := env.Exec.Announcer()
	for _, job := range env.Exec.Jobs().List() {
		if *pgidsOnly {
			fmt.Fprintln(env.Stdout, job.PGID)
			continue
		}
		fmt.Fprintln(env.Stdout, announcer.Format(job, job.Status.String(), true))
		if *long {
			pids := make([]string, 0)
			for _, pid := range job.Pids() {
				pids = append(pids, strconv.Itoa(pid))
			}
			fmt.Fprintf(env.Stdout, "      %s\n", strings.Join(pids, " "))
		}
	}
	return 0, nil
}

func builtinFg(env *Env, args []string) (int, error) {
	return env.Exec.Foreground(target(args))
}

func builtinBg(env *Env, args []string) (int, error) {
	if err := env.Exec.Background(target(args)); err != nil {
		return 1, err
	}
	return 0, nil
}

func target(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return ""
}
