// Package reconcile binds source events to remote records: it locates a
// record for each event, then creates, updates, or silently adopts,
// classifying every content change as meaningful or cosmetic to decide
// bump suppression, and merging tags without ever dropping one that is
// already present. Human edits to titles and categories are never
// overwritten.
package reconcile

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventloom/icsync/internal/discourse"
	"github.com/eventloom/icsync/internal/event"
	"github.com/eventloom/icsync/internal/identity"
	"github.com/eventloom/icsync/internal/match"
	"github.com/eventloom/icsync/pkg/errors"
)

// Remote is the full remote API surface the reconciler needs.
// Implemented by *discourse.Client.
type Remote interface {
	match.Store
	CreateTopic(ctx context.Context, title, raw string, categoryID int, tags []string) (int, error)
	UpdatePostRaw(ctx context.Context, postID int, raw string, suppressBump bool, topicID int) error
	UpdateTopicTags(ctx context.Context, topicID int, tags []string) error
}

// Options is the invocation-level configuration, passed in explicitly so
// the engine never reads process environment.
type Options struct {
	// SiteTZ is the timezone events are rendered in.
	SiteTZ *time.Location

	// DefaultTags and StaticTags are merged into every record's tag set.
	DefaultTags []string
	StaticTags  []string

	// CategoryID is the destination category, required for creation
	// only; updates never move a record.
	CategoryID int

	// ScanPages bounds the exhaustive listing fallback.
	ScanPages int

	// TimeOnly relaxes location matching to containment during the
	// site-wide dedupe stages.
	TimeOnly bool

	// IdentityTags controls whether the hash-derived identity tag is
	// attached on create, adopt, and update.
	IdentityTags bool

	// RetrofitAdopted, when set, writes the identity marker into an
	// adopted record (bump-suppressed) so later runs find it via
	// identity lookup. Off by default: it rewrites a post the engine
	// did not author.
	RetrofitAdopted bool

	// DryRun executes every read and search stage but logs writes
	// instead of performing them.
	DryRun bool
}

// Action describes what the reconciler did with one event.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionAdopted   Action = "adopted"
	ActionUnchanged Action = "unchanged"
)

// Result is the outcome of reconciling one event.
type Result struct {
	UID     string
	TopicID int
	Created bool
	Action  Action
}

// Classification of a content change. Meaningful changes bump the
// record; cosmetic ones suppress the bump.
type Classification int

const (
	Cosmetic Classification = iota
	Meaningful
)

// Reconciler drives the per-event create/update/adopt decision.
type Reconciler struct {
	remote  Remote
	matcher *match.Engine
	opts    Options
	log     zerolog.Logger
}

// New creates a Reconciler. A nil SiteTZ falls back to UTC.
func New(remote Remote, opts Options, log zerolog.Logger) *Reconciler {
	if opts.SiteTZ == nil {
		opts.SiteTZ = time.UTC
	}
	return &Reconciler{
		remote:  remote,
		matcher: match.NewEngine(remote, opts.ScanPages, log),
		opts:    opts,
		log:     log,
	}
}

// ReconcileEvent reconciles one source event against the remote store:
// identity lookup decides between the update path and the
// create-or-adopt path.
func (r *Reconciler) ReconcileEvent(ctx context.Context, src event.Source) (Result, error) {
	n, err := event.Normalize(src, r.opts.SiteTZ)
	if err != nil {
		return Result{UID: src.UID}, errors.WrapSync(src.UID, "normalize", 0, err)
	}

	marker := identity.MarkerToken(n.UID)
	freshRaw := identity.Embed(marker, n.Block)

	topicID, found, err := r.matcher.LocateByIdentity(ctx, n.UID, marker)
	if err != nil {
		return Result{UID: n.UID}, errors.WrapSync(n.UID, "locate", 0, err)
	}
	if found {
		return r.update(ctx, n, topicID, freshRaw)
	}
	return r.createOrAdopt(ctx, n, freshRaw)
}

// update pushes fresh content and merged tags onto the record already
// bound to this UID. Title and category are never touched.
func (r *Reconciler) update(ctx context.Context, n event.Normalized, topicID int, freshRaw string) (Result, error) {
	topic, err := r.remote.GetTopic(ctx, topicID)
	if err != nil {
		return Result{UID: n.UID, TopicID: topicID}, errors.WrapSync(n.UID, "update", topicID, err)
	}
	post, ok := topic.FirstPost()
	if !ok {
		return Result{UID: n.UID, TopicID: topicID},
			errors.WrapSync(n.UID, "update", topicID, errors.New("topic has no first post"))
	}

	action := ActionUnchanged

	oldClean := identity.Strip(post.Raw)
	freshClean := identity.Strip(freshRaw)
	if strings.TrimSpace(oldClean) != strings.TrimSpace(freshClean) {
		class := Classify(oldClean, n.Attrs)
		suppress := class == Cosmetic
		r.log.Info().Str("uid", n.UID).Int("topic_id", topicID).
			Bool("bump_suppressed", suppress).Msg("updating first post")

		if !r.opts.DryRun {
			if err := r.remote.UpdatePostRaw(ctx, post.ID, freshRaw, suppress, topicID); err != nil {
				return Result{UID: n.UID, TopicID: topicID}, errors.WrapSync(n.UID, "update", topicID, err)
			}
		}
		action = ActionUpdated
	} else {
		r.log.Debug().Str("uid", n.UID).Int("topic_id", topicID).Msg("no body change")
	}

	changed, err := r.mergeTags(ctx, n.UID, topic)
	if err != nil {
		// Content may already be updated: surface the partial state.
		return Result{UID: n.UID, TopicID: topicID, Action: action}, errors.WrapSync(n.UID, "tags", topicID, err)
	}
	if changed && action == ActionUnchanged {
		action = ActionUpdated
	}

	return Result{UID: n.UID, TopicID: topicID, Action: action}, nil
}

// createOrAdopt runs the site-wide pipeline so events unknown to the
// identity index do not spawn visible duplicates, then adopts or
// creates.
func (r *Reconciler) createOrAdopt(ctx context.Context, n event.Normalized, freshRaw string) (Result, error) {
	if r.opts.CategoryID == 0 {
		return Result{UID: n.UID},
			errors.NewConfigError("reconcile", "destination category required to create a record for UID "+n.UID, errors.ErrCategoryRequired)
	}

	req := match.Request{
		UID:         n.UID,
		MarkerToken: identity.MarkerToken(n.UID),
		Attrs:       n.Attrs,
		Block:       n.Block,
		SiteTZ:      r.opts.SiteTZ,
		TimeOnly:    r.opts.TimeOnly,
	}
	topicID, found, err := r.matcher.LocateSiteWide(ctx, req)
	if err != nil {
		return Result{UID: n.UID}, errors.WrapSync(n.UID, "locate", 0, err)
	}
	if found {
		return r.adopt(ctx, n, topicID)
	}

	tags := mergeTagSets(nil, r.opts.DefaultTags, r.opts.StaticTags, r.identityTags(n.UID))
	r.log.Info().Str("uid", n.UID).Int("category_id", r.opts.CategoryID).Msg("creating new topic")
	if r.opts.DryRun {
		return Result{UID: n.UID, Created: true, Action: ActionCreated}, nil
	}

	topicID, err = r.remote.CreateTopic(ctx, n.Title, freshRaw, r.opts.CategoryID, tags)
	if err != nil {
		return Result{UID: n.UID}, errors.WrapSync(n.UID, "create", 0, err)
	}
	return Result{UID: n.UID, TopicID: topicID, Created: true, Action: ActionCreated}, nil
}

// adopt binds the event to a record found by site-wide search, leaving
// visible content untouched. Tags are merged; the identity marker is
// retrofitted only when configured.
func (r *Reconciler) adopt(ctx context.Context, n event.Normalized, topicID int) (Result, error) {
	topic, err := r.remote.GetTopic(ctx, topicID)
	if err != nil {
		return Result{UID: n.UID, TopicID: topicID}, errors.WrapSync(n.UID, "adopt", topicID, err)
	}

	if _, err := r.mergeTags(ctx, n.UID, topic); err != nil {
		return Result{UID: n.UID, TopicID: topicID}, errors.WrapSync(n.UID, "tags", topicID, err)
	}

	if r.opts.RetrofitAdopted {
		if err := r.retrofitMarker(ctx, n, topic); err != nil {
			return Result{UID: n.UID, TopicID: topicID}, errors.WrapSync(n.UID, "adopt", topicID, err)
		}
	}

	r.log.Info().Str("uid", n.UID).Int("topic_id", topicID).
		Bool("retrofit", r.opts.RetrofitAdopted).Msg("adopted existing topic")
	return Result{UID: n.UID, TopicID: topicID, Action: ActionAdopted}, nil
}

// retrofitMarker prepends the identity marker to an adopted record's
// first post, bump-suppressed, so the next run resolves it in stage 1.
func (r *Reconciler) retrofitMarker(ctx context.Context, n event.Normalized, topic *discourse.Topic) error {
	post, ok := topic.FirstPost()
	if !ok {
		return nil
	}
	marker := identity.MarkerToken(n.UID)
	if identity.HasMarker(post.Raw, marker) {
		return nil
	}
	if r.opts.DryRun {
		r.log.Info().Str("uid", n.UID).Int("topic_id", topic.ID).Msg("dry-run: would retrofit marker")
		return nil
	}
	newRaw := "<!-- " + marker + " -->\n" + post.Raw
	return r.remote.UpdatePostRaw(ctx, post.ID, newRaw, true, topic.ID)
}

// mergeTags writes the union of the record's existing tags, the
// configured defaults, the run's static tags, and the identity tag.
// Existing tags are never removed, and no write is issued when the set
// is already complete.
func (r *Reconciler) mergeTags(ctx context.Context, uid string, topic *discourse.Topic) (bool, error) {
	merged := mergeTagSets(topic.Tags, r.opts.DefaultTags, r.opts.StaticTags, r.identityTags(uid))
	if sameTagSet(topic.Tags, merged) {
		r.log.Debug().Str("uid", uid).Int("topic_id", topic.ID).Msg("tags unchanged")
		return false, nil
	}

	r.log.Info().Str("uid", uid).Int("topic_id", topic.ID).
		Strs("tags", merged).Msg("merging tags")
	if r.opts.DryRun {
		return true, nil
	}
	return true, r.remote.UpdateTopicTags(ctx, topic.ID, merged)
}

// identityTags returns the identity tag as a one-element set when
// identity tagging is enabled.
func (r *Reconciler) identityTags(uid string) []string {
	if !r.opts.IdentityTags {
		return nil
	}
	return []string{identity.TagToken(uid)}
}

// Classify compares the attributes parseable out of the old content with
// the new canonical attributes: Meaningful iff normalized start, end, or
// location differ. Old content that fails to parse counts as "no
// attributes", which differs from any real triple.
func Classify(oldContent string, attrs event.Canonical) Classification {
	oldBlock, err := event.ParseBlock(oldContent)
	if err != nil {
		return Meaningful
	}
	if oldBlock.Triple() != attrs.Triple() {
		return Meaningful
	}
	return Cosmetic
}

// mergeTagSets unions tag slices, trimming entries and dropping empties,
// returning a sorted result.
func mergeTagSets(sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, tag := range set {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

// sameTagSet compares tag slices as sets.
func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, tag := range a {
		set[strings.TrimSpace(tag)] = struct{}{}
	}
	for _, tag := range b {
		if _, ok := set[tag]; !ok {
			return false
		}
	}
	return true
}
