package eventlog

import (
	"context"

	"triad/pkg/feedback"
	"triad/pkg/logx"
)

// Observer records every step, round and outcome of a run. Write failures
// are logged and never interrupt the run.
type Observer struct {
	writer    *Writer
	taskIndex int
	logger    *logx.Logger
}

var _ feedback.Observer = (*Observer)(nil)

// NewObserver returns an observer that tags each event with taskIndex.
func NewObserver(w *Writer, taskIndex int) *Observer {
	return &Observer{writer: w, taskIndex: taskIndex, logger: logx.NewLogger("eventlog")}
}

func (o *Observer) OnStep(_ context.Context, run *feedback.Run, step feedback.Step) {
	e := &Event{
		Kind:      KindStep,
		RunID:     run.ID,
		TaskIndex: o.taskIndex,
		Round:     step.Round,
		Role:      string(step.Role),
		Input:     step.Input,
		Output:    step.Output,
		CostUSD:   step.Usage.CostUSD,
		Tokens:    step.Usage.Tokens,
	}
	if step.Err != nil {
		e.Error = step.Err.Error()
	}
	o.write(e)
}

func (o *Observer) OnRound(_ context.Context, run *feedback.Run, rec feedback.RoundRecord) {
	o.write(&Event{
		Kind:      KindRound,
		RunID:     run.ID,
		TaskIndex: o.taskIndex,
		Round:     rec.Index,
		Signal:    string(rec.Signal),
		State:     string(run.State),
		CostUSD:   rec.Usage.CostUSD,
		Tokens:    rec.Usage.Tokens,
	})
}

func (o *Observer) OnFinish(_ context.Context, run *feedback.Run) {
	totals := run.Usage()
	e := &Event{
		Kind:      KindFinish,
		RunID:     run.ID,
		TaskIndex: o.taskIndex,
		Round:     len(run.Rounds),
		State:     string(run.State),
		Reason:    string(run.Reason),
		CostUSD:   totals.CostUSD,
		Tokens:    totals.Tokens,
	}
	if run.Err != nil {
		e.Error = run.Err.Error()
	}
	o.write(e)
}

func (o *Observer) write(e *Event) {
	if err := o.writer.WriteEvent(e); err != nil {
		o.logger.Warn("failed to write %s event for run %s: %v", e.Kind, e.RunID, err)
	}
}
