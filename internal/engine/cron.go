package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/log"
)

type (
	// CronRunner fires cron-triggered steps. Each tick mints a fresh
	// trace identifier and runs the step's handler and its full cascade;
	// overlapping ticks are neither coalesced nor skipped
	CronRunner struct {
		dispatcher *Dispatcher
		logger     *slog.Logger
		clock      Clock
		makeTimer  TimerConstructor
		entries    []*cronEntry
		wg         sync.WaitGroup
	}

	cronEntry struct {
		step  *api.Step
		sched cron.Schedule
	}
)

// Five-field expressions: minute, hour, day-of-month, month, day-of-week
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseCron validates a cron expression, wrapping parser failures in
// ErrInvalidCron so registration can abort boot
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", api.ErrInvalidCron, expr, err)
	}
	return sched, nil
}

// NewCronRunner parses every cron step's expression up front. A single
// malformed expression fails construction
func NewCronRunner(
	dispatcher *Dispatcher, steps []*api.Step, logger *slog.Logger,
	clock Clock, makeTimer TimerConstructor,
) (*CronRunner, error) {
	entries := make([]*cronEntry, 0, len(steps))
	for _, step := range steps {
		sched, err := ParseCron(step.Cron)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name, err)
		}
		entries = append(entries, &cronEntry{step: step, sched: sched})
	}

	return &CronRunner{
		dispatcher: dispatcher,
		logger:     logger,
		clock:      clock,
		makeTimer:  makeTimer,
		entries:    entries,
	}, nil
}

// Run fires schedules until the context is cancelled, then waits for
// in-flight ticks to settle
func (r *CronRunner) Run(ctx context.Context) {
	var loops sync.WaitGroup
	for _, entry := range r.entries {
		loops.Add(1)
		go func() {
			defer loops.Done()
			r.runEntry(ctx, entry)
		}()
	}
	loops.Wait()
	r.wg.Wait()
}

func (r *CronRunner) runEntry(ctx context.Context, entry *cronEntry) {
	for {
		now := r.clock()
		timer := r.makeTimer(entry.sched.Next(now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Channel():
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.Fire(ctx, entry.step)
			}()
		}
	}
}

// Fire runs one tick of a cron step: a new trace identifier, a fresh
// execution context, and a nil input payload. The tick is settled when
// Fire returns; every emit inside the handler has already cascaded
func (r *CronRunner) Fire(ctx context.Context, step *api.Step) {
	traceID := api.NewTraceID()
	ec := r.dispatcher.NewEntryContext(traceID, step)

	r.logger.Debug("Cron tick",
		log.TraceID(traceID),
		log.StepName(step.Name))

	if err := invokeHandler(ctx, step, nil, ec); err != nil {
		r.logger.Error("Cron handler failed",
			log.TraceID(traceID),
			log.StepName(step.Name),
			log.Error(err))
	}
}
