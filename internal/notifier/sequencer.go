package notifier

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pipelinepulse/internal/domain"
)

// Sequencer fires the steps of a schedule at their offsets from a start time.
type Sequencer struct {
	clock clockwork.Clock
	steps []domain.Step
}

func NewSequencer(clock clockwork.Clock, steps []domain.Step) *Sequencer {
	sorted := slices.Clone(steps)
	slices.SortStableFunc(sorted, func(a, b domain.Step) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	return &Sequencer{clock: clock, steps: sorted}
}

// Steps returns a copy of the schedule in firing order.
func (s *Sequencer) Steps() []domain.Step {
	return slices.Clone(s.steps)
}

// Run calls send for every step once start+offset has passed, in offset order,
// and returns how many steps fired. Deadlines are measured from start, not from
// the previous step, so a late wakeup never pushes later steps back.
func (s *Sequencer) Run(ctx context.Context, start time.Time, send func(domain.StatusUpdate)) int {
	fired := 0
	for _, step := range s.steps {
		if wait := step.Offset - s.clock.Since(start); wait > 0 {
			timer := s.clock.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fired
			case <-timer.Chan():
			}
		} else if ctx.Err() != nil {
			return fired
		}

		send(step.Update)
		fired++
	}
	return fired
}
