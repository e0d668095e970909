package persistence

import (
	"context"

	"triad/pkg/feedback"
)

// Observer mirrors a live run into the store: the run row is upserted after
// every round and at the end. Failures are logged only.
type Observer struct {
	feedback.NopObserver
	store      *Store
	taskIndex  int
	instanceID string
}

var _ feedback.Observer = (*Observer)(nil)

// NewObserver returns an observer for one task's run.
func (s *Store) NewObserver(taskIndex int, instanceID string) *Observer {
	return &Observer{store: s, taskIndex: taskIndex, instanceID: instanceID}
}

func (o *Observer) OnRound(ctx context.Context, run *feedback.Run, rec feedback.RoundRecord) {
	if err := o.store.SaveRun(ctx, o.record(run)); err != nil {
		o.store.logger.Warn("%v", err)
		return
	}
	err := o.store.SaveRound(ctx, &RoundRow{
		RunID:       run.ID,
		Index:       rec.Index,
		Input:       rec.Input,
		CoderOutput: rec.CoderOutput,
		Feedback:    rec.Feedback,
		Signal:      string(rec.Signal),
		CostUSD:     rec.Usage.CostUSD,
		Tokens:      rec.Usage.Tokens,
		Duration:    rec.Duration,
	})
	if err != nil {
		o.store.logger.Warn("%v", err)
	}
}

func (o *Observer) OnFinish(ctx context.Context, run *feedback.Run) {
	if err := o.store.SaveRun(ctx, o.record(run)); err != nil {
		o.store.logger.Warn("%v", err)
	}
}

func (o *Observer) record(run *feedback.Run) *RunRecord {
	return FromRun(run, o.taskIndex, o.instanceID)
}

// FromRun converts a controller run into its stored form.
func FromRun(run *feedback.Run, taskIndex int, instanceID string) *RunRecord {
	totals := run.Usage()
	r := &RunRecord{
		ID:         run.ID,
		TaskIndex:  taskIndex,
		InstanceID: instanceID,
		Task:       run.Task,
		State:      string(run.State),
		Reason:     string(run.Reason),
		Rounds:     len(run.Rounds),
		Replans:    run.Replans(),
		CostUSD:    totals.CostUSD,
		Tokens:     totals.Tokens,
		StartedAt:  run.StartedAt,
		EndedAt:    run.EndedAt,
	}
	if run.Err != nil {
		r.Error = run.Err.Error()
	}
	return r
}
