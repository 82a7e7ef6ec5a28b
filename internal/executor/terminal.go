package executor

import (
	"errors"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrNoTerminal is returned by terminal operations when the shell has no
// controlling terminal.
var ErrNoTerminal = errors.New("not a terminal")

// Terminal tracks which process group owns the controlling terminal.
type Terminal interface {
	// Foreground returns the process group currently owning the terminal.
	Foreground() (int, error)
	// SetForeground hands the terminal to pgid.
	SetForeground(pgid int) error
	// Ctty returns the terminal descriptor children may use to put themselves
	// in the foreground.
	Ctty() (int, bool)
}

// NewTerminal returns the terminal on fd, or a no-op terminal if fd is not a
// tty.
func NewTerminal(fd int) Terminal {
	if !term.IsTerminal(fd) {
		return noTerminal{}
	}
	return tty{fd: fd}
}

type tty struct {
	fd int
}

func (t tty) Foreground() (int, error) {
	return unix.IoctlGetInt(t.fd, unix.TIOCGPGRP)
}

func (t tty) SetForeground(pgid int) error {
	return unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid)
}

func (t tty) Ctty() (int, bool) {
	return t.fd, true
}

type noTerminal struct{}

func (noTerminal) Foreground() (int, error) { return 0, ErrNoTerminal }
func (noTerminal) SetForeground(int) error  { return ErrNoTerminal }
func (noTerminal) Ctty() (int, bool)        { return -1, false }
