package feedback

import (
	"time"

	"triad/pkg/config"
	"triad/pkg/usage"
)

// Reason records why a run stopped.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonTerminated        Reason = "terminated-by-signal"
	ReasonReplannedResolved Reason = "replanned-then-resolved"
	ReasonMaxRounds         Reason = "max-rounds-reached"
	ReasonWorkerFailed      Reason = "worker-failed"
)

// RoundRecord is one coder + tester pair.
//
//nolint:govet // fieldalignment: ordered as the round happens
type RoundRecord struct {
	Index       int           `json:"index"`
	Input       string        `json:"input"`
	CoderOutput string        `json:"coder_output"`
	Feedback    string        `json:"feedback"`
	Signal      Signal        `json:"signal"`
	Usage       usage.Delta   `json:"usage"`
	Duration    time.Duration `json:"duration"`
}

// Step is a single worker invocation, reported to observers as it happens.
//
//nolint:govet // fieldalignment: ordered for readability
type Step struct {
	Round    int // 0 for the initial plan
	Role     config.RoleKind
	Input    string
	Output   string
	Usage    usage.Delta
	Duration time.Duration
	Err      error
}

// Run is one end-to-end execution of the loop for a single task. It is
// owned by the Controller while running and read-only once returned.
//
//nolint:govet // fieldalignment: ordered for readability
type Run struct {
	ID        string
	Task      string
	State     State
	Reason    Reason
	Rounds    []RoundRecord
	Plans     []string
	Err       error
	StartedAt time.Time
	EndedAt   time.Time

	totals   usage.Accumulator
	perRole  map[config.RoleKind]*usage.Accumulator
	stateLog []State
}

func newRun(id, task string) *Run {
	r := &Run{
		ID:        id,
		Task:      task,
		State:     StatePlanning,
		StartedAt: time.Now(),
		perRole:   make(map[config.RoleKind]*usage.Accumulator, len(config.AllRoles)),
		stateLog:  []State{StatePlanning},
	}
	for _, kind := range config.AllRoles {
		r.perRole[kind] = &usage.Accumulator{}
	}
	return r
}

func (r *Run) record(kind config.RoleKind, delta usage.Delta) {
	r.totals.Record(delta)
	r.perRole[kind].Record(delta)
}

// Usage returns the sum of every worker invocation's usage in this run.
func (r *Run) Usage() usage.Delta {
	return r.totals.Totals()
}

// RoleUsage returns the usage attributable to one role.
func (r *Run) RoleUsage(kind config.RoleKind) usage.Delta {
	if acc, ok := r.perRole[kind]; ok {
		return acc.Totals()
	}
	return usage.Delta{}
}

// Replans returns how many times the planner was re-invoked.
func (r *Run) Replans() int {
	if len(r.Plans) == 0 {
		return 0
	}
	return len(r.Plans) - 1
}

// States returns the sequence of states the run went through.
func (r *Run) States() []State {
	return append([]State(nil), r.stateLog...)
}

// Resolved reports whether the tester signaled satisfaction.
func (r *Run) Resolved() bool {
	return r.State == StateTerminated
}

// Duration is the wall time of the run so far.
func (r *Run) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}
