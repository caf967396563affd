package match

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventloom/icsync/internal/discourse"
	"github.com/eventloom/icsync/internal/event"
	"github.com/eventloom/icsync/internal/identity"
	"github.com/eventloom/icsync/pkg/logging"
)

// fakeStore is an in-memory Store with canned search and listing
// results.
type fakeStore struct {
	topics   map[int]*discourse.Topic
	searches map[string][]discourse.TopicRef
	latest   [][]discourse.TopicRef

	searchQueries []string
	latestPages   []int
	getCalls      []int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		topics:   map[int]*discourse.Topic{},
		searches: map[string][]discourse.TopicRef{},
	}
}

func (f *fakeStore) addTopic(id int, raw string, tags ...string) {
	topic := &discourse.Topic{ID: id, Tags: tags}
	topic.PostStream.Posts = []discourse.Post{{ID: id * 100, Raw: raw}}
	f.topics[id] = topic
}

func (f *fakeStore) Search(_ context.Context, query string) ([]discourse.TopicRef, error) {
	f.searchQueries = append(f.searchQueries, query)
	return f.searches[query], nil
}

func (f *fakeStore) ListLatest(_ context.Context, page int) ([]discourse.TopicRef, error) {
	f.latestPages = append(f.latestPages, page)
	if page >= len(f.latest) {
		return nil, nil
	}
	return f.latest[page], nil
}

func (f *fakeStore) GetTopic(_ context.Context, id int) (*discourse.Topic, error) {
	f.getCalls = append(f.getCalls, id)
	topic, ok := f.topics[id]
	if !ok {
		return nil, fmt.Errorf("topic %d not in fake store", id)
	}
	return topic, nil
}

func blockFor(t *testing.T, uid, summary, location, start string, end string, tz *time.Location) (event.Normalized, string) {
	t.Helper()
	startT, err := time.Parse("2006-01-02 15:04", start)
	require.NoError(t, err)
	src := event.Source{
		UID:      uid,
		Summary:  summary,
		Location: location,
		Start:    startT,
		Floating: true,
	}
	if end != "" {
		endT, err := time.Parse("2006-01-02 15:04", end)
		require.NoError(t, err)
		src.End = endT
		src.HasEnd = true
	}
	n, err := event.Normalize(src, tz)
	require.NoError(t, err)
	return n, n.Block
}

func requestFor(n event.Normalized, tz *time.Location, timeOnly bool) Request {
	return Request{
		UID:         n.UID,
		MarkerToken: identity.MarkerToken(n.UID),
		Attrs:       n.Attrs,
		Block:       n.Block,
		SiteTZ:      tz,
		TimeOnly:    timeOnly,
	}
}

func TestLocateByIdentityTagVariant(t *testing.T) {
	store := newFakeStore()
	// The record was tagged under the trimmed+lowercased UID form.
	store.searches["tag:"+identity.TagToken("abc-1")] = []discourse.TopicRef{{ID: 42}}

	engine := NewEngine(store, 0, logging.Nop)
	id, ok, err := engine.LocateByIdentity(context.Background(), " ABC-1 ", identity.MarkerToken(" ABC-1 "))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, id)
	// No topic fetch: identity hits are trusted without verification.
	assert.Empty(t, store.getCalls)
}

func TestLocateByIdentityMarkerFallback(t *testing.T) {
	store := newFakeStore()
	marker := identity.MarkerToken("abc-1")
	store.searches[`"`+marker+`"`] = []discourse.TopicRef{{ID: 7}}

	engine := NewEngine(store, 0, logging.Nop)
	id, ok, err := engine.LocateByIdentity(context.Background(), "abc-1", marker)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, id)
}

func TestLocateByIdentityMiss(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, 0, logging.Nop)

	_, ok, err := engine.LocateByIdentity(context.Background(), "abc-1", identity.MarkerToken("abc-1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTimeWindowSearchVerifiesCandidates(t *testing.T) {
	tz := time.UTC
	n, _ := blockFor(t, "abc-1", "Quarterly review", "Room A", "2024-01-01 09:00", "2024-01-01 10:00", tz)

	// A decoy sharing the search text but a different triple, and the
	// real record.
	_, decoyBlock := blockFor(t, "other", "Other meeting", "Room B", "2024-01-01 09:00", "2024-01-01 10:00", tz)
	_, realBlock := blockFor(t, "old-uid", "Old title", "Room A", "2024-01-01 09:00", "2024-01-01 10:00", tz)

	store := newFakeStore()
	store.addTopic(1, decoyBlock)
	store.addTopic(2, realBlock)
	store.searches[`"2024-01-01 09:00" "2024-01-01 10:00"`] = []discourse.TopicRef{{ID: 1}, {ID: 2}}

	engine := NewEngine(store, 0, logging.Nop)
	id, ok, err := engine.LocateSiteWide(context.Background(), requestFor(n, tz, false))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, id)
	assert.Equal(t, []int{1, 2}, store.getCalls, "both hits fetched and verified in order")
}

func TestTimeWindowSearchMatchesLegacyVariant(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	n, _ := blockFor(t, "abc-1", "Summer social", "Garden", "2024-06-01 09:00", "2024-06-01 10:00", london)

	// A record written under the old floating-as-UTC convention carries
	// times shifted by the +01:00 BST offset.
	_, legacyBlock := blockFor(t, "legacy", "Summer social", "Garden", "2024-06-01 10:00", "2024-06-01 11:00", london)

	store := newFakeStore()
	store.addTopic(3, legacyBlock)
	store.searches[`"2024-06-01 09:00" "2024-06-01 10:00"`] = []discourse.TopicRef{{ID: 3}}

	engine := NewEngine(store, 0, logging.Nop)
	id, ok, err := engine.LocateSiteWide(context.Background(), requestFor(n, london, false))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, id)
}

func TestTimeOnlyModeRelaxesLocation(t *testing.T) {
	tz := time.UTC
	n, _ := blockFor(t, "abc-1", "Board meeting", "Room A", "2024-01-01 09:00", "2024-01-01 10:00", tz)

	// Same times, containing location.
	_, otherBlock := blockFor(t, "other", "Board meeting", "Main building, Room A", "2024-01-01 09:00", "2024-01-01 10:00", tz)

	store := newFakeStore()
	store.addTopic(4, otherBlock)
	store.searches[`"2024-01-01 09:00" "2024-01-01 10:00"`] = []discourse.TopicRef{{ID: 4}}

	engine := NewEngine(store, 0, logging.Nop)

	// Strict mode rejects the location difference.
	_, ok, err := engine.LocateSiteWide(context.Background(), requestFor(n, tz, false))
	require.NoError(t, err)
	assert.False(t, ok)

	// Time-only mode accepts containment.
	id, ok, err := engine.LocateSiteWide(context.Background(), requestFor(n, tz, true))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, id)
}

func TestDescriptionSearchStage(t *testing.T) {
	tz := time.UTC
	n, _ := blockFor(t, "abc-1", "Annual general meeting", "Room A", "2024-01-01 09:00", "2024-01-01 10:00", tz)
	_, targetBlock := blockFor(t, "old", "Annual general meeting", "Room A", "2024-01-01 09:00", "2024-01-01 10:00", tz)

	store := newFakeStore()
	store.addTopic(9, targetBlock)
	// Time-window search finds nothing; the quoted title phrase does.
	store.searches[`"Annual general meeting"`] = []discourse.TopicRef{{ID: 9}}

	engine := NewEngine(store, 0, logging.Nop)
	id, ok, err := engine.LocateSiteWide(context.Background(), requestFor(n, tz, false))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, id)
}

func TestLatestScanFallback(t *testing.T) {
	tz := time.UTC
	n, _ := blockFor(t, "abc-1", "Small", "Room A", "2024-01-01 09:00", "2024-01-01 10:00", tz)
	_, targetBlock := blockFor(t, "old", "Small", "Room A", "2024-01-01 09:00", "2024-01-01 10:00", tz)

	store := newFakeStore()
	store.addTopic(11, "human prose, no event block")
	store.addTopic(12, targetBlock)
	store.latest = [][]discourse.TopicRef{
		{{ID: 11}},
		{{ID: 12}},
	}

	engine := NewEngine(store, 8, logging.Nop)
	id, ok, err := engine.LocateSiteWide(context.Background(), requestFor(n, tz, false))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12, id)
	// Unparseable content skipped the candidate, not the stage.
	assert.Contains(t, store.getCalls, 11)
}

func TestLatestScanRespectsPageBound(t *testing.T) {
	tz := time.UTC
	n, _ := blockFor(t, "abc-1", "Unfindable", "Nowhere", "2024-01-01 09:00", "", tz)

	store := newFakeStore()
	// More pages than the bound allows.
	for i := 0; i < 20; i++ {
		store.latest = append(store.latest, []discourse.TopicRef{})
	}

	engine := NewEngine(store, 3, logging.Nop)
	_, ok, err := engine.LocateSiteWide(context.Background(), requestFor(n, tz, false))
	require.NoError(t, err)
	assert.False(t, ok)
	// Empty first page short-circuits the walk.
	assert.Equal(t, []int{0}, store.latestPages)
}

func TestLocateNoMatchAnywhere(t *testing.T) {
	tz := time.UTC
	n, _ := blockFor(t, "abc-1", "Ghost event", "Room X", "2024-01-01 09:00", "2024-01-01 10:00", tz)

	store := newFakeStore()
	engine := NewEngine(store, 2, logging.Nop)
	id, ok, err := engine.Locate(context.Background(), requestFor(n, tz, false))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, id)
}

func TestPhrases(t *testing.T) {
	tz := time.UTC
	_, block := blockFor(t, "abc-1", "Annual general meeting", "Room A", "2024-01-01 09:00", "2024-01-01 10:00", tz)

	phrases := Phrases("Annual general meeting", block)
	require.NotEmpty(t, phrases)
	assert.Equal(t, `"Annual general meeting"`, phrases[0])
	assert.Contains(t, phrases, `"**Location:** Room A"`)
	for _, p := range phrases {
		assert.True(t, len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"', "phrase %s should be quoted", p)
	}
}

func TestPhrasesShortTitleSkipped(t *testing.T) {
	phrases := Phrases("AGM", "[event start=\"x\"]\n[/event]")
	assert.Empty(t, phrases)
}

func TestPhrasesCapped(t *testing.T) {
	block := "[event start=\"x\"]\n" +
		"a line that is long enough one\n" +
		"a line that is long enough two\n" +
		"a line that is long enough three\n" +
		"a line that is long enough four\n" +
		"a line that is long enough five\n" +
		"[/event]"
	phrases := Phrases("A distinctive title here", block)
	assert.Len(t, phrases, 4)
}
