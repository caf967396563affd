package reconcile

import (
	"context"

	"github.com/eventloom/icsync/internal/event"
)

// Summary aggregates the outcome of a run.
type Summary struct {
	Total     int
	Created   int
	Updated   int
	Adopted   int
	Unchanged int
	Failed    int
}

// Run reconciles every event sequentially. A failure on one event is
// logged and counted but never aborts the rest of the run; context
// cancellation does.
func (r *Reconciler) Run(ctx context.Context, events []event.Source) (Summary, error) {
	sum := Summary{Total: len(events)}
	for _, src := range events {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res, err := r.ReconcileEvent(ctx, src)
		if err != nil {
			sum.Failed++
			r.log.Error().Err(err).Str("uid", src.UID).Msg("event failed")
			continue
		}

		switch res.Action {
		case ActionCreated:
			sum.Created++
		case ActionUpdated:
			sum.Updated++
		case ActionAdopted:
			sum.Adopted++
		default:
			sum.Unchanged++
		}
	}

	r.log.Info().Int("total", sum.Total).Int("created", sum.Created).
		Int("updated", sum.Updated).Int("adopted", sum.Adopted).
		Int("unchanged", sum.Unchanged).Int("failed", sum.Failed).
		Msg("run complete")
	return sum, nil
}
