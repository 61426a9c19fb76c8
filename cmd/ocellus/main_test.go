package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ocellus/internal/config"
)

const fixtureProfile = `{
  "commander": {"name": "Jameson", "credits": 1000, "debt": 0, "currentShipId": 1, "docked": true,
    "rank": {"combat": 2, "trade": 0, "explore": 0, "cqc": 0, "federation": 0, "empire": 0, "power": 0}},
  "ships": [
    {"id": 1, "name": "CobraMkIII", "starsystem": {"name": "Lave"}},
    {"id": 3, "name": "Eagle", "starsystem": {"name": "Leesti"}}
  ],
  "ship": {"cargo": {"capacity": 36, "qty": 4}, "modules": {
    "Armour": {"module": {"name": "CobraMkIII_Armour_Grade2"}},
    "PowerPlant": {"module": {"name": "Int_Powerplant_Size4_Class2"}},
    "MainEngines": {"module": {"name": "Int_Engine_Size4_Class2"}},
    "FrameShiftDrive": {"module": {"name": "Int_Hyperdrive_Size4_Class2"}},
    "LifeSupport": {"module": {"name": "Int_LifeSupport_Size3_Class2"}},
    "PowerDistributor": {"module": {"name": "Int_PowerDistributor_Size3_Class2"}},
    "Radar": {"module": {"name": "Int_Sensors_Size3_Class2"}},
    "FuelTank": {"module": {"name": "Int_FuelTank_Size4_Class3"}}}},
  "lastSystem": {"name": "Lave"},
  "lastStarport": {"name": "Lave Station", "modules": {}}
}`

// setup points the globals at a temp root holding the fixture.
func setup(t *testing.T) {
	t.Helper()
	logger = zap.NewNop()
	timeout = 10 * time.Second
	useFixture = false
	asJSON = false

	root := t.TempDir()
	cfg = config.DefaultConfig()
	cfg.Paths.Root = root
	cfg.Companion.BaseURL = "http://127.0.0.1:1"
	require.NoError(t, os.WriteFile(filepath.Join(root, cfg.Paths.Fixture), []byte(fixtureProfile), 0o600))
}

func run(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	err := fn(cmd, args)
	return buf.String(), err
}

func TestLoginWithoutCredentials(t *testing.T) {
	setup(t)
	out, err := run(t, runLogin)
	require.NoError(t, err)
	assert.Contains(t, out, "needs_credentials")
	assert.Contains(t, out, "companion.email")
}

func TestProfileFromFixture(t *testing.T) {
	setup(t)
	useFixture = true

	out, err := run(t, runProfile)
	require.NoError(t, err)
	assert.Contains(t, out, "Jameson")
	assert.Contains(t, out, "Lave Station")
	assert.Contains(t, out, "Eagle@Leesti")
	assert.Contains(t, out, "Cobra@Lave")
}

func TestProfileJSON(t *testing.T) {
	setup(t)
	useFixture = true
	asJSON = true

	out, err := run(t, runProfile)
	require.NoError(t, err)

	var doc struct {
		Status string `json:"status"`
		Facts  struct {
			Commander string `json:"commander"`
			Services  struct {
				Outfitting bool `json:"outfitting"`
				Shipyard   bool `json:"shipyard"`
			} `json:"services"`
		} `json:"facts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "ok", doc.Status)
	assert.Equal(t, "Jameson", doc.Facts.Commander)
	assert.True(t, doc.Facts.Services.Outfitting)
	assert.False(t, doc.Facts.Services.Shipyard)
}

func TestProfileCooldownSpansRuns(t *testing.T) {
	setup(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/profile" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fixtureProfile))
	}))
	defer srv.Close()
	cfg.Companion.BaseURL = srv.URL

	out, err := run(t, runProfile)
	require.NoError(t, err)
	assert.Contains(t, out, "Jameson")
	require.EqualValues(t, 1, hits.Load())

	// a second process inside the window reuses the archived profile
	out, err = run(t, runProfile)
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
	assert.Contains(t, out, "throttled")
	assert.Contains(t, out, "Jameson")
	assert.Contains(t, out, "Lave Station")
}

func TestQueryAfterProfile(t *testing.T) {
	setup(t)
	useFixture = true
	_, err := run(t, runProfile)
	require.NoError(t, err)

	out, err := run(t, queryFacts, "can_outfit(Station)")
	require.NoError(t, err)
	assert.Contains(t, out, "Station=Lave Station")

	out, err = run(t, queryFacts, "can_buy_ships(Station)")
	require.NoError(t, err)
	assert.Contains(t, out, "No facts found")

	out, err = run(t, queryFacts, "rank(/combat, Label)")
	require.NoError(t, err)
	assert.Contains(t, out, "Label=Novice")

	_, err = run(t, queryFacts, "nonsense(X)")
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	setup(t)
	out, err := run(t, showStatus)
	require.NoError(t, err)
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "not loaded")

	useFixture = true
	_, err = run(t, runProfile)
	require.NoError(t, err)

	// fixture reads skip the archive but still persist facts
	out, err = run(t, showStatus)
	require.NoError(t, err)
	assert.Contains(t, out, "never")
	assert.NotContains(t, out, "profile 0,")
}

func TestPollInterval(t *testing.T) {
	assert.Equal(t, 61*time.Second, pollInterval(0, 60*time.Second))
	assert.Greater(t, pollInterval(0, 60*time.Second), 60*time.Second)
	assert.Equal(t, 5*time.Minute, pollInterval(5*time.Minute, 60*time.Second))
}
