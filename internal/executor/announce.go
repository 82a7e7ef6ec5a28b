package executor

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"jobshell/internal/config"
	"jobshell/internal/jobs"
)

// Announcer prints job status lines like "[1] 4242 Done    sleep 5".
type Announcer struct {
	w io.Writer

	running *color.Color
	stopped *color.Color
	done    *color.Color
}

func NewAnnouncer(w io.Writer, mode string) *Announcer {
	a := &Announcer{
		w:       w,
		running: color.New(color.FgCyan, color.Bold),
		stopped: color.New(color.FgYellow, color.Bold),
		done:    color.New(color.FgGreen, color.Bold),
	}
	for _, c := range []*color.Color{a.running, a.stopped, a.done} {
		switch mode {
		case config.ColorAlways:
			c.EnableColor()
		case config.ColorNever:
			c.DisableColor()
		}
	}
	return a
}

func (a *Announcer) colorFor(label string) *color.Color {
	switch label {
	case jobs.Stopped.String():
		return a.stopped
	case jobs.Done.String():
		return a.done
	}
	return a.running
}

// Format renders a job line. The command text is appended when withCmd is
// set.
func (a *Announcer) Format(job *jobs.Job, label string, withCmd bool) string {
	line := fmt.Sprintf("[%d] %d %s", job.ID, job.PGID, a.colorFor(label).Sprint(label))
	if withCmd {
		line += "    " + job.Cmd
	}
	return line
}

// Announce writes a job line to the shell's output.
func (a *Announcer) Announce(job *jobs.Job, label string, withCmd bool) {
	fmt.Fprintln(a.w, a.Format(job, label, withCmd))
}
