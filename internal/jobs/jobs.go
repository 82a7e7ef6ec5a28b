// Package jobs holds the shell's job table: the user-facing handles on the
// process groups the shell launched.
package jobs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoSuchJob is returned when a job reference does not match any entry.
var ErrNoSuchJob = errors.New("no such job")

type Status int

const (
	Running Status = iota
	Stopped
	Done
)

func (s Status) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	}
	return "Unknown"
}

// Job is a process group tracked by the shell.
type Job struct {
	ID      int
	PGID    int
	Cmd     string
	Status  Status
	Started time.Time

	// LastPid is the final pipeline stage; its exit status stands for the
	// whole job. It is 0 once that stage has finished or if it never
	// started, and ExitStatus then holds its status.
	LastPid    int
	ExitStatus int

	// pids of group members that have not been reaped yet.
	pids map[int]struct{}
}

// Pids returns the live member pids in ascending order.
func (j *Job) Pids() []int {
	out := make([]int, 0, len(j.pids))
	for pid := range j.pids {
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}

// Table maps job ids to jobs and process groups to job ids. Job ids only
// increase; a removed id is never handed out again.
//
// The table is not safe for concurrent use. The shell only touches it from
// its main loop.
type Table struct {
	byID   map[int]*Job
	byPGID map[int]int
	nextID int
	now    func() time.Time
}

func NewTable() *Table {
	return &Table{
		byID:   make(map[int]*Job),
		byPGID: make(map[int]int),
		nextID: 1,
		now:    time.Now,
	}
}

// Add registers a process group and returns its new job. If the group is
// already tracked, the existing job is updated and returned instead.
func (t *Table) Add(pgid int, pids []int, cmd string, status Status) *Job {
	if job := t.ByPGID(pgid); job != nil {
		job.Status = status
		for _, pid := range pids {
			job.pids[pid] = struct{}{}
		}
		return job
	}

	job := &Job{
		ID:      t.nextID,
		PGID:    pgid,
		Cmd:     cmd,
		Status:  status,
		Started: t.now(),
		pids:    make(map[int]struct{}, len(pids)),
	}
	for _, pid := range pids {
		job.pids[pid] = struct{}{}
	}
	if len(pids) > 0 {
		job.LastPid = pids[len(pids)-1]
	}
	t.nextID++
	t.byID[job.ID] = job
	t.byPGID[pgid] = job.ID
	return job
}

func (t *Table) Get(id int) *Job {
	return t.byID[id]
}

func (t *Table) ByPGID(pgid int) *Job {
	id, ok := t.byPGID[pgid]
	if !ok {
		return nil
	}
	return t.byID[id]
}

// ByPid finds the job that owns a member process.
func (t *Table) ByPid(pid int) *Job {
	for _, job := range t.byID {
		if _, ok := job.pids[pid]; ok {
			return job
		}
	}
	return nil
}

// Latest returns the most recently created job still in the table.
func (t *Table) Latest() *Job {
	var latest *Job
	for _, job := range t.byID {
		if latest == nil || job.ID > latest.ID {
			latest = job
		}
	}
	return latest
}

// SetStatus updates the status of the job owning pgid. It reports false when
// the group isn't tracked or already had that status.
func (t *Table) SetStatus(pgid int, status Status) bool {
	job := t.ByPGID(pgid)
	if job == nil || job.Status == status {
		return false
	}
	job.Status = status
	return true
}

// Forget drops a reaped pid from its job and returns the job along with
// whether it has no live members left. It returns nil for untracked pids.
func (t *Table) Forget(pid int) (*Job, bool) {
	job := t.ByPid(pid)
	if job == nil {
		return nil, false
	}
	delete(job.pids, pid)
	return job, len(job.pids) == 0
}

// Finished records that pid exited with status. It only matters for the last
// stage of its job.
func (j *Job) Finished(pid, status int) {
	if pid != 0 && pid == j.LastPid {
		j.LastPid = 0
		j.ExitStatus = status
	}
}

// Remove deletes the job owning pgid, if any.
func (t *Table) Remove(pgid int) {
	id, ok := t.byPGID[pgid]
	if !ok {
		return
	}
	delete(t.byPGID, pgid)
	delete(t.byID, id)
}

// List returns all jobs ordered by id.
func (t *Table) List() []*Job {
	out := make([]*Job, 0, len(t.byID))
	for _, job := range t.byID {
		out = append(out, job)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

func (t *Table) Len() int {
	return len(t.byID)
}

// Resolve finds the job a user argument refers to. "%N" names job N. A bare
// number is tried as a job id first, then as a process group id, then as a
// member pid. Anything else, including no argument at all, picks the most
// recent job.
func (t *Table) Resolve(arg string) (*Job, error) {
	var job *Job
	switch {
	case strings.HasPrefix(arg, "%"):
		if id, err := strconv.Atoi(arg[1:]); err == nil && id > 0 {
			job = t.Get(id)
		}
	case isNumber(arg):
		n, _ := strconv.Atoi(arg)
		job = t.Get(n)
		if job == nil && n > 0 {
			job = t.ByPGID(n)
		}
		if job == nil && n > 0 {
			job = t.ByPid(n)
		}
	default:
		job = t.Latest()
	}

	if job == nil {
		return nil, ErrNoSuchJob
	}
	return job, nil
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
