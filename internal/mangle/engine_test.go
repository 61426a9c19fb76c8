package mangle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersistence struct {
	scopes map[string][]Fact
	calls  int
}

func newMemPersistence() *memPersistence {
	return &memPersistence{scopes: make(map[string][]Fact)}
}

func (m *memPersistence) ReplaceFacts(_ context.Context, scope string, facts []Fact) error {
	m.calls++
	m.scopes[scope] = append([]Fact(nil), facts...)
	return nil
}

func (m *memPersistence) LoadFacts(context.Context) (map[string][]Fact, error) {
	return m.scopes, nil
}

func newEngine(t *testing.T, p Persistence) *Engine {
	t.Helper()
	e, err := NewProfileEngine(DefaultConfig(), p)
	require.NoError(t, err)
	return e
}

func profilePass(system string, shipSystem string) []Fact {
	return []Fact{
		{Predicate: "profile_status", Args: []interface{}{"/ok"}},
		{Predicate: "commander", Args: []interface{}{"Jameson", int64(1000), int64(0)}},
		{Predicate: "rank", Args: []interface{}{"/combat", "Competent"}},
		{Predicate: "rank", Args: []interface{}{"/trade", "Dealer"}},
		{Predicate: "current_system", Args: []interface{}{system}},
		{Predicate: "current_starport", Args: []interface{}{"Galileo"}},
		{Predicate: "starport_service", Args: []interface{}{"/outfitting"}},
		{Predicate: "ship", Args: []interface{}{"2", "Python", "Python"}},
		{Predicate: "ship_location", Args: []interface{}{"2", shipSystem}},
		{Predicate: "ship_distance", Args: []interface{}{"2", 4.25}},
		{Predicate: "ambiguous_ship", Args: []interface{}{"Viper", "Diso"}},
	}
}

func TestProfileSchemaLoads(t *testing.T) {
	e := newEngine(t, nil)
	preds := e.Predicates()
	assert.Contains(t, preds, "commander")
	assert.Contains(t, preds, "ship_here")
	assert.Contains(t, preds, "visited_system")
}

func TestReplaceFactsDerivesRules(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.ReplaceFacts(ctx, ScopeProfile, profilePass("sol", "sol")))

	here, err := e.GetFacts("ship_here")
	require.NoError(t, err)
	require.Len(t, here, 1)
	assert.Equal(t, []interface{}{"2", "Python"}, here[0].Args)

	outfit, err := e.GetFacts("can_outfit")
	require.NoError(t, err)
	require.Len(t, outfit, 1)
	assert.Equal(t, "Galileo", outfit[0].Args[0])

	// lowercase text stays a string under a /string bound
	sys, err := e.GetFacts("current_system")
	require.NoError(t, err)
	assert.Equal(t, `current_system("sol").`, sys[0].String())
}

func TestReplaceFactsDropsPreviousAndDerived(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.ReplaceFacts(ctx, ScopeProfile, profilePass("Sol", "Sol")))

	next := profilePass("Lave", "Sol")[:10] // no ambiguous_ship this time
	require.NoError(t, e.ReplaceFacts(ctx, ScopeProfile, next))

	amb, err := e.GetFacts("ambiguous_ship")
	require.NoError(t, err)
	assert.Empty(t, amb)
	owns, err := e.GetFacts("owns_ambiguous")
	require.NoError(t, err)
	assert.Empty(t, owns)
	here, err := e.GetFacts("ship_here")
	require.NoError(t, err)
	assert.Empty(t, here, "ship is no longer in the current system")

	sys, err := e.GetFacts("current_system")
	require.NoError(t, err)
	require.Len(t, sys, 1)
	assert.Equal(t, "Lave", sys[0].Args[0])
}

func TestScopesAreIndependent(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.ReplaceFacts(ctx, ScopeVisited, []Fact{
		{Predicate: "visited_system", Args: []interface{}{"Sol", int64(3)}},
	}))
	require.NoError(t, e.ReplaceFacts(ctx, ScopeProfile, profilePass("Sol", "Lave")))

	revisit, err := e.GetFacts("revisit")
	require.NoError(t, err)
	require.Len(t, revisit, 1)

	require.NoError(t, e.ReplaceFacts(ctx, ScopeProfile, nil))
	visited, err := e.GetFacts("visited_system")
	require.NoError(t, err)
	assert.Len(t, visited, 1)

	stats := e.GetStats()
	assert.Equal(t, 0, stats.Scopes[ScopeProfile])
	assert.Equal(t, 1, stats.Scopes[ScopeVisited])
}

func TestReplaceFactsIsAtomicOnBadFact(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.ReplaceFacts(ctx, ScopeProfile, profilePass("Sol", "Sol")))

	bad := append(profilePass("Lave", "Lave"), Fact{Predicate: "no_such_pred", Args: []interface{}{"x"}})
	err := e.ReplaceFacts(ctx, ScopeProfile, bad)
	require.Error(t, err)

	sys, err := e.GetFacts("current_system")
	require.NoError(t, err)
	require.Len(t, sys, 1)
	assert.Equal(t, "Sol", sys[0].Args[0])

	err = e.ReplaceFacts(ctx, ScopeProfile, []Fact{{Predicate: "commander", Args: []interface{}{"only name"}}})
	assert.ErrorContains(t, err, "expects 3 args")
}

func TestFactLimit(t *testing.T) {
	e, err := NewProfileEngine(Config{FactLimit: 3}, nil)
	require.NoError(t, err)
	err = e.ReplaceFacts(context.Background(), ScopeProfile, profilePass("Sol", "Sol"))
	assert.ErrorContains(t, err, "fact limit")
}

func TestQueryFiltersConstants(t *testing.T) {
	e := newEngine(t, nil)
	require.NoError(t, e.ReplaceFacts(context.Background(), ScopeProfile, profilePass("Sol", "Sol")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := e.Query(ctx, "rank(/combat, Label)")
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	assert.Equal(t, "Competent", res.Bindings[0]["Label"])

	res, err = e.Query(ctx, "?rank(Track, _).")
	require.NoError(t, err)
	assert.Len(t, res.Bindings, 2)

	res, err = e.Query(ctx, "commander(N, C, D)")
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	assert.Equal(t, int64(1000), res.Bindings[0]["C"])

	_, err = e.Query(ctx, "unknown(X)")
	assert.Error(t, err)
	_, err = e.Query(ctx, "")
	assert.Error(t, err)
}

func TestPersistenceRoundTrip(t *testing.T) {
	p := newMemPersistence()
	e := newEngine(t, p)
	ctx := context.Background()
	require.NoError(t, e.ReplaceFacts(ctx, ScopeProfile, profilePass("Sol", "Sol")))
	assert.Equal(t, 1, p.calls)

	warm := newEngine(t, p)
	require.NoError(t, warm.WarmFromPersistence(ctx))
	here, err := warm.GetFacts("ship_here")
	require.NoError(t, err)
	assert.Len(t, here, 1)
}

func TestNilPersistenceIsSkipped(t *testing.T) {
	var p *memPersistence
	e := newEngine(t, p)
	require.NoError(t, e.WarmFromPersistence(context.Background()))
	require.NoError(t, e.ReplaceFacts(context.Background(), ScopeProfile, profilePass("Sol", "Sol")))
}

func TestClear(t *testing.T) {
	e := newEngine(t, nil)
	require.NoError(t, e.ReplaceFacts(context.Background(), ScopeProfile, profilePass("Sol", "Sol")))
	e.Clear()
	facts, err := e.GetFacts("commander")
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestFactString(t *testing.T) {
	tests := []struct {
		name string
		fact Fact
		want string
	}{
		{"string args", Fact{Predicate: "test", Args: []interface{}{"hello", "world"}}, `test("hello", "world").`},
		{"int args", Fact{Predicate: "num", Args: []interface{}{int64(42)}}, `num(42).`},
		{"name constant", Fact{Predicate: "status", Args: []interface{}{"/active"}}, `status(/active).`},
		{"float", Fact{Predicate: "d", Args: []interface{}{4.25}}, `d(4.25).`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fact.String())
		})
	}
}

func TestArgsRoundTrip(t *testing.T) {
	in := []interface{}{"Sol", "/ok", int64(12345678901), 4.5, true}
	enc, err := EncodeArgs(in)
	require.NoError(t, err)
	out, err := DecodeArgs(enc)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = EncodeArgs([]interface{}{struct{}{}})
	assert.Error(t, err)
	_, err = DecodeArgs(`[{"t":"x","v":1}]`)
	assert.Error(t, err)
}
