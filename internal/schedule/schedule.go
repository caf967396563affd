// Package schedule runs the sync job on a cron expression. Runs never
// overlap: a tick that fires while the previous run is still going is
// skipped, since two concurrent reconciliations against the same site
// could both decide to create the same record.
package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/eventloom/icsync/pkg/errors"
)

// Job is one full sync run.
type Job func(context.Context) error

// Run executes job once immediately, then on every tick of spec until
// ctx is canceled. It returns after any in-flight run has finished.
// spec accepts standard five-field cron expressions and descriptors
// like "@every 30m".
func Run(ctx context.Context, spec string, loc *time.Location, job Job, log zerolog.Logger) error {
	if loc == nil {
		loc = time.Local
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
	)

	wrapped := func() {
		if err := job(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled run failed")
		}
	}

	entryID, err := c.AddFunc(spec, wrapped)
	if err != nil {
		return errors.NewConfigError("schedule", "invalid cron expression "+spec, err)
	}

	log.Info().Str("spec", spec).Str("tz", loc.String()).Msg("scheduler starting")
	wrapped()
	if err := ctx.Err(); err != nil {
		return err
	}

	c.Start()
	log.Debug().Time("next", c.Entry(entryID).Next).Msg("first tick scheduled")

	<-ctx.Done()
	// Stop() returns a context that completes when running jobs do.
	<-c.Stop().Done()
	log.Info().Msg("scheduler stopped")
	return ctx.Err()
}

// cronLogger adapts the cron logging interface. Only skip notices and
// internal errors come through here.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug().Fields(fieldMap(kv)).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error().Err(err).Fields(fieldMap(kv)).Msg(msg)
}

func fieldMap(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}
