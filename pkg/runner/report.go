package runner

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"triad/pkg/config"
	"triad/pkg/feedback"
	"triad/pkg/grading"
	"triad/pkg/usage"
)

// Report is the outcome of one task.
//
//nolint:govet // fieldalignment: ordered for readability
type Report struct {
	Index        int                             `json:"index"`
	InstanceID   string                          `json:"instance_id,omitempty"`
	RunID        string                          `json:"run_id,omitempty"`
	State        feedback.State                  `json:"state,omitempty"`
	Reason       feedback.Reason                 `json:"reason,omitempty"`
	Rounds       int                             `json:"rounds"`
	Replans      int                             `json:"replans"`
	Usage        usage.Delta                     `json:"usage"`
	RoleUsage    map[config.RoleKind]usage.Delta `json:"role_usage,omitempty"`
	Grade        *grading.Summary                `json:"grade,omitempty"`
	ChangedFiles []string                        `json:"changed_files,omitempty"`
	Duration     time.Duration                   `json:"duration"`
	Err          error                           `json:"-"`
	Error        string                          `json:"error,omitempty"`
}

func (r *Report) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

func (r *Report) fromRun(run *feedback.Run) {
	r.RunID = run.ID
	r.State = run.State
	r.Reason = run.Reason
	r.Rounds = len(run.Rounds)
	r.Replans = run.Replans()
	r.Usage = run.Usage()
	r.RoleUsage = make(map[config.RoleKind]usage.Delta, len(config.AllRoles))
	for _, kind := range config.AllRoles {
		r.RoleUsage[kind] = run.RoleUsage(kind)
	}
}

// BatchSummary aggregates a batch of reports.
//
//nolint:govet // fieldalignment: ordered for readability
type BatchSummary struct {
	Tasks    int
	Failed   int
	ByState  map[feedback.State]int
	Usage    usage.Delta
	Grade    grading.Summary
	Graded   int
	Solved   int
	Duration time.Duration
}

// Summarize totals reports.
func Summarize(reports []Report) BatchSummary {
	s := BatchSummary{ByState: map[feedback.State]int{}}
	var total usage.Accumulator
	for i := range reports {
		r := &reports[i]
		s.Tasks++
		if r.Err != nil {
			s.Failed++
		}
		if r.State != "" {
			s.ByState[r.State]++
		}
		total.Record(r.Usage)
		if r.Grade != nil {
			s.Graded++
			s.Grade = s.Grade.Add(*r.Grade)
			if r.Grade.Solved() {
				s.Solved++
			}
		}
		s.Duration += r.Duration
	}
	s.Usage = total.Totals()
	return s
}

// PrintReports writes a per-task table and the batch totals to w.
func PrintReports(w io.Writer, reports []Report) {
	bold := color.New(color.Bold)
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	bad := color.New(color.FgRed)

	_, _ = bold.Fprintf(w, "%-6s %-36s %-11s %6s %10s %9s  %s\n",
		"TASK", "INSTANCE", "STATE", "ROUNDS", "COST", "TOKENS", "GRADE")
	for i := range reports {
		r := &reports[i]
		state := string(r.State)
		if state == "" {
			state = "-"
		}
		line := fmt.Sprintf("%-6d %-36s %-11s %6d %10s %9d  %s",
			r.Index, truncate(r.InstanceID, 36), state, r.Rounds,
			fmt.Sprintf("$%.4f", r.Usage.CostUSD), r.Usage.Tokens, gradeText(r))

		switch {
		case r.Err != nil:
			_, _ = bad.Fprintln(w, line)
			_, _ = bad.Fprintf(w, "       error: %s\n", r.Error)
		case r.Grade != nil && r.Grade.Solved():
			_, _ = ok.Fprintln(w, line)
		default:
			_, _ = warn.Fprintln(w, line)
		}
		if len(r.RoleUsage) > 0 {
			_, _ = fmt.Fprintf(w, "       %s\n", roleBreakdown(r.RoleUsage))
		}
	}

	s := Summarize(reports)
	_, _ = fmt.Fprintln(w)
	_, _ = bold.Fprintf(w, "Tasks: %d  failed: %d  graded: %d  solved: %d\n", s.Tasks, s.Failed, s.Graded, s.Solved)
	states := make([]string, 0, len(s.ByState))
	for st, n := range s.ByState {
		states = append(states, fmt.Sprintf("%s=%d", st, n))
	}
	sort.Strings(states)
	_, _ = fmt.Fprintf(w, "States: %v\n", states)
	_, _ = fmt.Fprintf(w, "Total cost: $%.2f  Total tokens: %d\n", s.Usage.CostUSD, s.Usage.Tokens)
	if s.Graded > 0 {
		_, _ = fmt.Fprintln(w, s.Grade.String())
	}
}

func gradeText(r *Report) string {
	if r.Grade == nil {
		return "-"
	}
	return fmt.Sprintf("F2P %d/%d P2P %d/%d",
		r.Grade.FailToPassPassed, r.Grade.FailToPassTotal, r.Grade.PassToPassPassed, r.Grade.PassToPassTotal)
}

func roleBreakdown(m map[config.RoleKind]usage.Delta) string {
	out := ""
	for _, kind := range config.AllRoles {
		d, ok := m[kind]
		if !ok {
			continue
		}
		if out != "" {
			out += "  "
		}
		out += fmt.Sprintf("%s $%.4f/%d", kind, d.CostUSD, d.Tokens)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}
