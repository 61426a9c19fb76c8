package systems

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const sampleIndex = `{
  "systems": {
    "Sol": {"id": 17072, "x": 0, "y": 0, "z": 0, "stations": {"Abraham Lincoln": 497, "Galileo": "501"}},
    "Lave": {"id": "13332", "x": 75.75, "y": 48.75, "z": 70.75, "stations": {}}
  }
}`

func TestParseAcceptsNumericAndStringIDs(t *testing.T) {
	table, err := Parse([]byte(sampleIndex))
	require.NoError(t, err)
	require.Len(t, table, 2)

	sol := table["sol"]
	assert.Equal(t, "Sol", sol.Name)
	assert.Equal(t, "17072", sol.ID)
	assert.Equal(t, "497", sol.Stations["Abraham Lincoln"])
	assert.Equal(t, "501", sol.Stations["Galileo"])
	assert.Equal(t, "13332", table["lave"].ID)
}

func TestParseRequiresLowercaseSystemsKey(t *testing.T) {
	_, err := Parse([]byte(`{"Systems": {"Sol": {"id": 1}}}`))
	assert.Error(t, err)

	for _, doc := range []string{
		`{"Systems": {"Diso": {"id": 2}}, "systems": {"Sol": {"id": 1}}}`,
		`{"systems": {"Sol": {"id": 1}}, "Systems": {"Diso": {"id": 2}}}`,
	} {
		table, err := Parse([]byte(doc))
		require.NoError(t, err)
		assert.Len(t, table, 1)
		assert.Contains(t, table, "sol")
	}
}

func TestLookupIgnoresCase(t *testing.T) {
	ix := NewIndexFrom(System{Name: "Lave", ID: "1", Coords: Coords{X: 1}})
	s, ok := ix.Lookup("LAVE")
	require.True(t, ok)
	assert.Equal(t, "1", s.ID)
	_, ok = ix.Lookup("Diso")
	assert.False(t, ok)
}

func TestDistance(t *testing.T) {
	a := Coords{X: 0, Y: 0, Z: 0}
	b := Coords{X: 3, Y: 4, Z: 12}
	assert.InDelta(t, 13.0, a.DistanceTo(b), 1e-9)
	assert.InDelta(t, 13.0, b.DistanceTo(a), 1e-9)
}

func TestLoadKeepsPreviousTableOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "systems.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleIndex), 0o644))

	ix := NewIndex(path)
	require.NoError(t, ix.Load())
	assert.Equal(t, 2, ix.Len())
	assert.True(t, ix.Loaded())

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	assert.Error(t, ix.Load())
	assert.Equal(t, 2, ix.Len())
}

func TestLoadMissingFile(t *testing.T) {
	ix := NewIndex(filepath.Join(t.TempDir(), "absent.json"))
	err := ix.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, ix.Loaded())
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "systems.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleIndex), 0o644))

	ix := NewIndex(path)
	require.NoError(t, ix.Load())

	w, err := NewWatcher(ix)
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	updated := `{"systems": {"Diso": {"id": 3, "x": 1, "y": 2, "z": 3, "stations": {}}}}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		_, ok := ix.Lookup("Diso")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, ix.Len())

	w.Stop()
	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.Events, 1)
	assert.GreaterOrEqual(t, stats.Reloads, 1)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "systems.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleIndex), 0o644))

	ix := NewIndex(path)
	w, err := NewWatcher(ix)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)

	w.Stop()
	assert.Equal(t, 0, w.Stats().Events)
}

func TestStopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t)
	w, err := NewWatcher(NewIndex(filepath.Join(t.TempDir(), "systems.json")))
	require.NoError(t, err)
	w.Stop()
}
