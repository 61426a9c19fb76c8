package store

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocellus/internal/mangle"
	"ocellus/internal/transport"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "ocellus.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.LoadSession(ctx, "cmdr@example.com")
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	sess := transport.NewSession([]*http.Cookie{
		{Name: "CompanionApp", Value: "1"},
		{Name: "mid", Value: "abc"},
	})
	require.NoError(t, s.SaveSession(ctx, "cmdr@example.com", sess))

	got, err := s.LoadSession(ctx, "cmdr@example.com")
	require.NoError(t, err)
	v, ok := got.Value("mid")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	// a rotated bundle replaces the previous one
	require.NoError(t, s.SaveSession(ctx, "cmdr@example.com", transport.NewSession([]*http.Cookie{{Name: "mid", Value: "def"}})))
	got, err = s.LoadSession(ctx, "cmdr@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
	v, _ = got.Value("mid")
	assert.Equal(t, "def", v)
}

func TestArchiveProfileWritesDumpAndPrunes(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "out", "companion.json")
	s := openTestStore(t, WithProfileDump(dump), WithSnapshotLimit(2))
	ctx := context.Background()
	base := time.Date(3301, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, body := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		require.NoError(t, s.ArchiveProfile(ctx, body, base.Add(time.Duration(i)*time.Minute)))
	}

	n, err := s.SnapshotCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, ok, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"n":3}`, snap.Body)
	assert.True(t, base.Add(2*time.Minute).Equal(snap.FetchedAt), "fetched_at %s", snap.FetchedAt)

	data, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Equal(t, `{"n":3}`, string(data))
}

func TestLatestSnapshotEmpty(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordVisit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(3301, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordVisit(ctx, "Sol", t0))
	require.NoError(t, s.RecordVisit(ctx, "Lave", t0.Add(time.Hour)))
	require.NoError(t, s.RecordVisit(ctx, "Sol", t0.Add(2*time.Hour)))

	visits, err := s.VisitedSystems(ctx)
	require.NoError(t, err)
	require.Len(t, visits, 2)
	assert.Equal(t, "Sol", visits[0].Name)
	assert.Equal(t, int64(2), visits[0].Visits)
	assert.True(t, visits[0].FirstVisit.Equal(t0))
	assert.Equal(t, "Lave", visits[1].Name)
	assert.Equal(t, int64(1), visits[1].Visits)
}

func TestFactsPersistence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var _ mangle.Persistence = s

	profile := []mangle.Fact{
		{Predicate: "current_system", Args: []interface{}{"Sol"}},
		{Predicate: "commander", Args: []interface{}{"Jameson", int64(1000), int64(0)}},
		{Predicate: "ship_distance", Args: []interface{}{"2", 4.25}},
		{Predicate: "docked", Args: []interface{}{"/true"}},
	}
	require.NoError(t, s.ReplaceFacts(ctx, mangle.ScopeProfile, profile))
	require.NoError(t, s.ReplaceFacts(ctx, mangle.ScopeVisited, []mangle.Fact{
		{Predicate: "visited_system", Args: []interface{}{"Sol", int64(2)}},
	}))

	loaded, err := s.LoadFacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, profile, loaded[mangle.ScopeProfile])
	assert.Len(t, loaded[mangle.ScopeVisited], 1)

	// replacing a scope drops its previous rows only
	require.NoError(t, s.ReplaceFacts(ctx, mangle.ScopeProfile, profile[:1]))
	loaded, err = s.LoadFacts(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded[mangle.ScopeProfile], 1)
	assert.Len(t, loaded[mangle.ScopeVisited], 1)
}

func TestFactsWarmEngine(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e, err := mangle.NewProfileEngine(mangle.DefaultConfig(), s)
	require.NoError(t, err)
	require.NoError(t, e.ReplaceFacts(ctx, mangle.ScopeProfile, []mangle.Fact{
		{Predicate: "current_system", Args: []interface{}{"Sol"}},
		{Predicate: "ship", Args: []interface{}{"2", "Python", "Python"}},
		{Predicate: "ship_location", Args: []interface{}{"2", "Sol"}},
	}))

	warm, err := mangle.NewProfileEngine(mangle.DefaultConfig(), s)
	require.NoError(t, err)
	require.NoError(t, warm.WarmFromPersistence(ctx))
	here, err := warm.GetFacts("ship_here")
	require.NoError(t, err)
	assert.Len(t, here, 1)
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, "uploader_id")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "uploader_id", "a"))
	require.NoError(t, s.SetSetting(ctx, "uploader_id", "b"))
	v, ok, err := s.GetSetting(ctx, "uploader_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}
