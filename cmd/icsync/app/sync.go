package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eventloom/icsync/internal/config"
	"github.com/eventloom/icsync/internal/discourse"
	"github.com/eventloom/icsync/internal/event"
	"github.com/eventloom/icsync/internal/ics"
	"github.com/eventloom/icsync/internal/reconcile"
	"github.com/eventloom/icsync/internal/schedule"
	"github.com/eventloom/icsync/pkg/constants"
	"github.com/eventloom/icsync/pkg/errors"
)

type syncFlags struct {
	manifest        string
	source          string
	category        int
	tags            []string
	expandRecurring bool
	horizon         time.Duration
	timeOnly        bool
	dryRun          bool
	cronSpec        string
	retrofitAdopted bool
	identityTags    bool
	scanPages       int
	siteTZ          string
	cacheDir        string
}

// NewSyncCommand creates the sync command.
func (a *App) NewSyncCommand() *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile calendar feeds against the site",
		Long: `Sync fetches each configured calendar, expands it into events, and
reconciles every event against the site: updating the topic already
bound to its UID, adopting a matching pre-existing topic, or creating
a new one. With --cron the sync repeats on a schedule until
interrupted, and overlapping runs are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSync(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.manifest, "calendars", "c", "", "path to a calendars.yaml manifest")
	cmd.Flags().StringVarP(&flags.source, "source", "s", "", "single calendar source, a URL or file path")
	cmd.Flags().IntVar(&flags.category, "category", 0, "destination category for created topics (default ICSYNC_CATEGORY_ID)")
	cmd.Flags().StringSliceVar(&flags.tags, "tags", nil, "extra tags for every synced topic")
	cmd.Flags().BoolVar(&flags.expandRecurring, "expand-recurring", false, "create one topic per occurrence of recurring events")
	cmd.Flags().DurationVar(&flags.horizon, "horizon", constants.DefaultExpandHorizon, "how far ahead to expand recurring events")
	cmd.Flags().BoolVar(&flags.timeOnly, "time-only", false, "match existing topics on time alone, with loose location checking")
	cmd.Flags().BoolVarP(&flags.dryRun, "dry-run", "n", false, "log intended writes without performing them")
	cmd.Flags().StringVar(&flags.cronSpec, "cron", "", `run on a cron schedule, e.g. "@every 30m"`)
	cmd.Flags().BoolVar(&flags.retrofitAdopted, "retrofit-adopted", false, "write the identity marker into adopted topics")
	cmd.Flags().BoolVar(&flags.identityTags, "identity-tags", true, "attach a hash-derived identity tag to synced topics")
	cmd.Flags().IntVar(&flags.scanPages, "scan-pages", constants.DefaultScanPages, "pages of the latest-topics listing to scan as a last resort")
	cmd.Flags().StringVar(&flags.siteTZ, "site-tz", "", "site timezone for rendering event times (default SITE_TZ)")
	cmd.Flags().StringVar(&flags.cacheDir, "cache-dir", "", "directory for the conditional-request feed cache")

	return cmd
}

func (a *App) runSync(ctx context.Context, flags syncFlags) error {
	if flags.siteTZ != "" {
		a.config.SiteTZ = flags.siteTZ
	}
	loc, err := a.config.Timezone()
	if err != nil {
		return err
	}
	calendars, err := a.resolveCalendars(flags)
	if err != nil {
		return err
	}
	client, err := a.Client()
	if err != nil {
		return err
	}
	fetcher := ics.NewFetcher(*a.logger, ics.WithCacheDir(flags.cacheDir))

	job := func(ctx context.Context) error {
		failed := 0
		for _, cal := range calendars {
			if err := a.syncCalendar(ctx, client, fetcher, cal, flags, loc); err != nil {
				if ctx.Err() != nil {
					return err
				}
				a.logger.Error().Err(err).Str("calendar", cal.Name).Msg("calendar sync failed")
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d calendars failed", failed, len(calendars))
		}
		return nil
	}

	if flags.cronSpec != "" {
		return schedule.Run(ctx, flags.cronSpec, loc, job, *a.logger)
	}
	return job(ctx)
}

// resolveCalendars turns the flag combination into a calendar list:
// either a manifest file or a single --source definition.
func (a *App) resolveCalendars(flags syncFlags) ([]config.Calendar, error) {
	switch {
	case flags.manifest != "" && flags.source != "":
		return nil, errors.NewConfigError("sync", "--calendars and --source are mutually exclusive", errors.ErrInvalidInput)
	case flags.manifest != "":
		m, err := config.Load(flags.manifest)
		if err != nil {
			return nil, err
		}
		return m.Calendars, nil
	case flags.source != "":
		return []config.Calendar{{
			Name:            flags.source,
			Source:          flags.source,
			CategoryID:      flags.category,
			ExpandRecurring: flags.expandRecurring,
			TimeOnly:        flags.timeOnly,
		}}, nil
	default:
		return nil, errors.NewConfigError("sync", "either --calendars or --source is required", errors.ErrInvalidInput)
	}
}

// combineTags concatenates the two tag lists into a fresh slice so
// neither argument's backing array is written through.
func combineTags(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func (a *App) syncCalendar(ctx context.Context, client *discourse.Client, fetcher *ics.Fetcher, cal config.Calendar, flags syncFlags, loc *time.Location) error {
	log := a.logger.With().Str("calendar", cal.Name).Logger()

	body, err := fetcher.Load(ctx, cal.Source)
	if err != nil {
		return err
	}
	components, err := ics.Parse(body, log)
	if err != nil {
		return err
	}

	var events []event.Source
	if cal.ExpandRecurring || flags.expandRecurring {
		events = ics.Expand(components, ics.ExpandOptions{Horizon: flags.horizon}, log)
	} else {
		events = ics.Flatten(components)
	}

	category := cal.CategoryID
	if category == 0 {
		category = flags.category
	}
	if category == 0 {
		category = a.config.CategoryID
	}

	if cal.SiteTZ != "" {
		calLoc, err := time.LoadLocation(cal.SiteTZ)
		if err != nil {
			return errors.NewConfigError(cal.Name, fmt.Sprintf("invalid site_tz %q", cal.SiteTZ), err)
		}
		loc = calLoc
	}

	reconciler := reconcile.New(client, reconcile.Options{
		SiteTZ:          loc,
		DefaultTags:     a.config.DefaultTags,
		StaticTags:      combineTags(cal.Tags, flags.tags),
		CategoryID:      category,
		ScanPages:       flags.scanPages,
		TimeOnly:        cal.TimeOnly || flags.timeOnly,
		IdentityTags:    flags.identityTags,
		RetrofitAdopted: flags.retrofitAdopted,
		DryRun:          flags.dryRun,
	}, log)

	sum, err := reconciler.Run(ctx, events)
	if err != nil {
		return err
	}
	log.Info().Int("events", sum.Total).Int("created", sum.Created).
		Int("updated", sum.Updated).Int("adopted", sum.Adopted).
		Int("failed", sum.Failed).Msg("calendar synced")
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d events failed", sum.Failed, sum.Total)
	}
	return nil
}
