// Package match locates the remote record for a source event. It is a
// layered pipeline of progressively weaker strategies (identity lookup,
// time-window search, description search, exhaustive listing scan), each
// short-circuiting on its first verified hit. Full-text search relevance
// is approximate, so every stage past identity lookup re-derives the
// canonical triple from freshly fetched content before accepting a
// candidate; search results alone never gate a merge.
package match

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventloom/icsync/internal/discourse"
	"github.com/eventloom/icsync/internal/event"
	"github.com/eventloom/icsync/internal/identity"
	"github.com/eventloom/icsync/pkg/constants"
	"github.com/eventloom/icsync/pkg/errors"
)

// Store is the read side of the remote API the pipeline needs.
// Implemented by *discourse.Client.
type Store interface {
	Search(ctx context.Context, query string) ([]discourse.TopicRef, error)
	ListLatest(ctx context.Context, page int) ([]discourse.TopicRef, error)
	GetTopic(ctx context.Context, id int) (*discourse.Topic, error)
}

// Engine runs the matching pipeline against a Store.
type Engine struct {
	store     Store
	log       zerolog.Logger
	scanPages int
}

// NewEngine creates a match engine. scanPages bounds the exhaustive
// fallback; zero or negative uses the default.
func NewEngine(store Store, scanPages int, log zerolog.Logger) *Engine {
	if scanPages <= 0 {
		scanPages = constants.DefaultScanPages
	}
	return &Engine{store: store, log: log, scanPages: scanPages}
}

// Request carries everything one locate run needs.
type Request struct {
	UID         string
	MarkerToken string
	Attrs       event.Canonical
	Block       string

	// SiteTZ is needed to derive legacy time variants.
	SiteTZ *time.Location

	// TimeOnly relaxes the location component of verification to a
	// containment check.
	TimeOnly bool
}

// Locate runs the full pipeline: identity lookup first, then the
// site-wide stages. Returns (0, false, nil) when no stage produced a
// verified hit.
func (e *Engine) Locate(ctx context.Context, req Request) (int, bool, error) {
	if id, ok, err := e.LocateByIdentity(ctx, req.UID, req.MarkerToken); err != nil || ok {
		return id, ok, err
	}
	return e.LocateSiteWide(ctx, req)
}

// LocateByIdentity is stage 1: query each tag-token variant, then fall
// back to a free-text search for the literal marker token. Hits are
// trusted without content verification; a token collision is
// cryptographically implausible.
func (e *Engine) LocateByIdentity(ctx context.Context, uid, markerToken string) (int, bool, error) {
	for _, tag := range identity.TagVariants(uid) {
		refs, err := e.store.Search(ctx, "tag:"+tag)
		if err != nil {
			return 0, false, err
		}
		if len(refs) > 0 {
			e.log.Debug().Str("uid", uid).Str("tag", tag).Int("topic_id", refs[0].ID).Msg("identity hit via tag")
			return refs[0].ID, true, nil
		}
	}

	refs, err := e.store.Search(ctx, `"`+markerToken+`"`)
	if err != nil {
		return 0, false, err
	}
	if len(refs) > 0 {
		e.log.Debug().Str("uid", uid).Int("topic_id", refs[0].ID).Msg("identity hit via marker")
		return refs[0].ID, true, nil
	}
	return 0, false, nil
}

// LocateSiteWide runs stages 2-4: time-window search, description
// search, then the exhaustive recent-activity scan. Used directly by the
// create-or-adopt path, which has already exhausted identity lookup.
func (e *Engine) LocateSiteWide(ctx context.Context, req Request) (int, bool, error) {
	candidates := event.CandidateTriples(req.Attrs, req.SiteTZ)
	e.log.Debug().Str("uid", req.UID).Interface("candidates", candidates).Bool("time_only", req.TimeOnly).Msg("site-wide scan")

	if id, ok, err := e.timeWindowSearch(ctx, req, candidates); err != nil || ok {
		return id, ok, err
	}
	if id, ok, err := e.descriptionSearch(ctx, req, candidates); err != nil || ok {
		return id, ok, err
	}
	return e.latestScan(ctx, req, candidates)
}

// timeWindowSearch is stage 2: search for the literal canonical start
// and end strings and verify every hit against the candidate triples.
func (e *Engine) timeWindowSearch(ctx context.Context, req Request, candidates []event.Triple) (int, bool, error) {
	query := `"` + req.Attrs.Start + `"`
	if req.Attrs.End != "" {
		query += ` "` + req.Attrs.End + `"`
	}

	refs, err := e.store.Search(ctx, query)
	if err != nil {
		return 0, false, err
	}
	for _, ref := range refs {
		ok, err := e.verify(ctx, ref.ID, req, candidates)
		if err != nil {
			return 0, false, err
		}
		if ok {
			e.log.Info().Str("uid", req.UID).Int("topic_id", ref.ID).Msg("matched by time-window search")
			return ref.ID, true, nil
		}
	}
	return 0, false, nil
}

// descriptionSearch is stage 3: derive quoted phrases from the rendered
// block's body, run one combined query followed by per-phrase queries,
// and verify each unique candidate up to a cap.
func (e *Engine) descriptionSearch(ctx context.Context, req Request, candidates []event.Triple) (int, bool, error) {
	phrases := Phrases(req.Attrs.Summary, req.Block)
	if len(phrases) == 0 {
		return 0, false, nil
	}

	queries := make([]string, 0, len(phrases)+1)
	if len(phrases) > 1 {
		queries = append(queries, strings.Join(phrases, " "))
	}
	queries = append(queries, phrases...)

	seen := make(map[int]struct{})
	for _, query := range queries {
		refs, err := e.store.Search(ctx, query)
		if err != nil {
			return 0, false, err
		}
		for _, ref := range refs {
			if _, dup := seen[ref.ID]; dup {
				continue
			}
			if len(seen) >= constants.MaxSearchCandidates {
				return 0, false, nil
			}
			seen[ref.ID] = struct{}{}

			ok, err := e.verify(ctx, ref.ID, req, candidates)
			if err != nil {
				return 0, false, err
			}
			if ok {
				e.log.Info().Str("uid", req.UID).Int("topic_id", ref.ID).Msg("matched by description search")
				return ref.ID, true, nil
			}
		}
	}
	return 0, false, nil
}

// latestScan is stage 4: page through the recent-activity listing up to
// the configured bound, verifying every listed topic.
func (e *Engine) latestScan(ctx context.Context, req Request, candidates []event.Triple) (int, bool, error) {
	for page := 0; page < e.scanPages; page++ {
		refs, err := e.store.ListLatest(ctx, page)
		if err != nil {
			return 0, false, err
		}
		if len(refs) == 0 {
			break
		}
		for _, ref := range refs {
			ok, err := e.verify(ctx, ref.ID, req, candidates)
			if err != nil {
				return 0, false, err
			}
			if ok {
				e.log.Info().Str("uid", req.UID).Int("topic_id", ref.ID).Int("page", page).Msg("matched by listing scan")
				return ref.ID, true, nil
			}
		}
	}
	return 0, false, nil
}

// verify fetches a candidate's first-entry content, re-parses its
// embedded block into a triple, and accepts only if that triple belongs
// to the candidate set. Content that fails to parse means "no
// attributes": the candidate is skipped, not fatal to the stage.
func (e *Engine) verify(ctx context.Context, topicID int, req Request, candidates []event.Triple) (bool, error) {
	topic, err := e.store.GetTopic(ctx, topicID)
	if err != nil {
		return false, err
	}
	post, ok := topic.FirstPost()
	if !ok {
		return false, nil
	}

	block, err := event.ParseBlock(post.Raw)
	if err != nil {
		if !errors.IsParse(err) {
			return false, err
		}
		return false, nil
	}

	triple := block.Triple()
	if req.TimeOnly {
		return event.ContainsTimeKey(candidates, triple) &&
			event.LooseLocationMatch(triple.Location, req.Attrs.Location), nil
	}
	return event.ContainsTriple(candidates, triple), nil
}
