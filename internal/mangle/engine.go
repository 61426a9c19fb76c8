// Package mangle wraps the Google Mangle engine as the profile fact base.
// Facts are grouped into scopes; replacing a scope rebuilds the store so
// derived facts never outlive the base facts they came from.
package mangle

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"ocellus/internal/logging"
)

//go:embed profile.mg
var profileSchema string

// Scopes used by the companion client.
const (
	ScopeProfile = "profile"
	ScopeVisited = "visited"
)

// Config holds engine limits.
type Config struct {
	FactLimit    int
	QueryTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FactLimit:    50000,
		QueryTimeout: 5 * time.Second,
	}
}

// Engine is the fact base.
type Engine struct {
	config Config

	mu              sync.RWMutex
	store           factstore.ConcurrentFactStore
	programInfo     *analysis.ProgramInfo
	predicateIndex  map[string]ast.PredicateSym
	predToDecl      map[ast.PredicateSym]*ast.Decl
	schemaFragments []parse.SourceUnit
	scopes          map[string][]ast.Atom
	factCount       int
	lastUpdate      time.Time
	persistence     Persistence
}

// Fact represents a single fact.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
}

// String returns the Datalog representation of the fact.
func (f Fact) String() string {
	var args []string
	for _, arg := range f.Args {
		switch v := arg.(type) {
		case string:
			if strings.HasPrefix(v, "/") {
				args = append(args, v)
			} else {
				args = append(args, fmt.Sprintf("%q", v))
			}
		case int:
			args = append(args, fmt.Sprintf("%d", v))
		case int64:
			args = append(args, fmt.Sprintf("%d", v))
		case float64:
			args = append(args, fmt.Sprintf("%g", v))
		case bool:
			if v {
				args = append(args, "/true")
			} else {
				args = append(args, "/false")
			}
		default:
			args = append(args, fmt.Sprintf("%v", v))
		}
	}
	return fmt.Sprintf("%s(%s).", f.Predicate, strings.Join(args, ", "))
}

// QueryResult holds the bindings of a query.
type QueryResult struct {
	Bindings []map[string]interface{} `json:"bindings"`
	Duration time.Duration            `json:"duration"`
}

// Stats contains engine statistics.
type Stats struct {
	TotalFacts      int            `json:"total_facts"`
	PredicateCounts map[string]int `json:"predicate_counts"`
	Scopes          map[string]int `json:"scopes"`
	LastUpdate      time.Time      `json:"last_update"`
}

// Persistence stores scoped base facts. Derived facts are never persisted.
type Persistence interface {
	ReplaceFacts(ctx context.Context, scope string, facts []Fact) error
	LoadFacts(ctx context.Context) (map[string][]Fact, error)
}

// NewEngine creates an engine with no schema loaded.
func NewEngine(cfg Config, persistence Persistence) (*Engine, error) {
	return &Engine{
		config:         cfg,
		store:          factstore.NewConcurrentFactStore(factstore.NewSimpleInMemoryStore()),
		predicateIndex: make(map[string]ast.PredicateSym),
		predToDecl:     make(map[ast.PredicateSym]*ast.Decl),
		scopes:         make(map[string][]ast.Atom),
		persistence:    persistence,
	}, nil
}

// NewProfileEngine creates an engine with the embedded profile schema.
func NewProfileEngine(cfg Config, persistence Persistence) (*Engine, error) {
	e, err := NewEngine(cfg, persistence)
	if err != nil {
		return nil, err
	}
	if err := e.LoadSchemaString(profileSchema); err != nil {
		return nil, fmt.Errorf("load profile schema: %w", err)
	}
	return e, nil
}

// LoadSchemaString parses and analyzes a schema fragment.
func (e *Engine) LoadSchemaString(schema string) error {
	unit, err := parse.Unit(bytes.NewReader([]byte(schema)))
	if err != nil {
		return fmt.Errorf("failed to parse schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.schemaFragments = append(e.schemaFragments, unit)
	if err := e.rebuildProgramLocked(); err != nil {
		e.schemaFragments = e.schemaFragments[:len(e.schemaFragments)-1]
		return fmt.Errorf("failed to analyze schema: %w", err)
	}
	return nil
}

func (e *Engine) rebuildProgramLocked() error {
	var clauses []ast.Clause
	var decls []ast.Decl
	for _, fragment := range e.schemaFragments {
		clauses = append(clauses, fragment.Clauses...)
		decls = append(decls, fragment.Decls...)
	}

	programInfo, err := analysis.AnalyzeOneUnit(parse.SourceUnit{Clauses: clauses, Decls: decls}, nil)
	if err != nil {
		return err
	}

	e.programInfo = programInfo
	e.predicateIndex = make(map[string]ast.PredicateSym, len(programInfo.Decls))
	e.predToDecl = make(map[ast.PredicateSym]*ast.Decl, len(programInfo.Decls))
	for sym, decl := range programInfo.Decls {
		e.predicateIndex[sym.Symbol] = sym
		e.predToDecl[sym] = decl
	}
	return nil
}

// Predicates lists declared predicate names, sorted.
func (e *Engine) Predicates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.predicateIndex))
	for name := range e.predicateIndex {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ReplaceFacts swaps every fact of scope for facts and re-evaluates rules.
// All facts are validated before anything changes.
func (e *Engine) ReplaceFacts(ctx context.Context, scope string, facts []Fact) error {
	timer := logging.StartTimer(logging.CategoryKernel, "ReplaceFacts")
	defer timer.StopWithThreshold(250 * time.Millisecond)

	e.mu.Lock()
	if e.programInfo == nil {
		e.mu.Unlock()
		return fmt.Errorf("no schemas loaded; call LoadSchemaString first")
	}

	atoms := make([]ast.Atom, 0, len(facts))
	for _, fact := range facts {
		atom, err := e.factToAtomLocked(fact)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		atoms = append(atoms, atom)
	}

	total := len(atoms)
	for name, existing := range e.scopes {
		if name != scope {
			total += len(existing)
		}
	}
	if e.config.FactLimit > 0 && total > e.config.FactLimit {
		e.mu.Unlock()
		return fmt.Errorf("fact limit exceeded: %d > %d", total, e.config.FactLimit)
	}

	previous, hadPrevious := e.scopes[scope]
	e.scopes[scope] = atoms
	if err := e.rebuildStoreLocked(); err != nil {
		if hadPrevious {
			e.scopes[scope] = previous
		} else {
			delete(e.scopes, scope)
		}
		_ = e.rebuildStoreLocked()
		e.mu.Unlock()
		return err
	}
	logging.KernelDebug("scope %s replaced: %d -> %d facts", scope, len(previous), len(atoms))

	persist := !isNilPersistence(e.persistence)
	e.mu.Unlock()

	if persist {
		if err := e.persistence.ReplaceFacts(ctx, scope, facts); err != nil {
			return fmt.Errorf("persist facts for %s: %w", scope, err)
		}
	}
	return nil
}

// rebuildStoreLocked loads every scope into a fresh store and evaluates the
// program over it.
func (e *Engine) rebuildStoreLocked() error {
	store := factstore.NewConcurrentFactStore(factstore.NewSimpleInMemoryStore())
	count := 0
	for _, atoms := range e.scopes {
		for _, atom := range atoms {
			if store.Add(atom) {
				count++
			}
		}
	}
	if _, err := mengine.EvalProgramWithStats(e.programInfo, store); err != nil {
		return fmt.Errorf("evaluate rules: %w", err)
	}
	e.store = store
	e.factCount = count
	e.lastUpdate = time.Now()
	return nil
}

// WarmFromPersistence restores every persisted scope.
func (e *Engine) WarmFromPersistence(ctx context.Context) error {
	if isNilPersistence(e.persistence) {
		return nil
	}
	scoped, err := e.persistence.LoadFacts(ctx)
	if err != nil {
		return fmt.Errorf("load persisted facts: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.programInfo == nil {
		return fmt.Errorf("no schemas loaded; call LoadSchemaString before WarmFromPersistence")
	}

	for scope, facts := range scoped {
		atoms := make([]ast.Atom, 0, len(facts))
		for _, fact := range facts {
			atom, err := e.factToAtomLocked(fact)
			if err != nil {
				return fmt.Errorf("hydrate fact %s: %w", fact.Predicate, err)
			}
			atoms = append(atoms, atom)
		}
		e.scopes[scope] = atoms
	}
	if err := e.rebuildStoreLocked(); err != nil {
		return fmt.Errorf("recompute rules after warm start: %w", err)
	}
	logging.Kernel("warmed %d facts from %d scopes", e.factCount, len(scoped))
	return nil
}

// isNilPersistence guards against typed nil persistence implementations.
func isNilPersistence(p Persistence) bool {
	if p == nil {
		return true
	}
	val := reflect.ValueOf(p)
	return val.Kind() == reflect.Ptr && val.IsNil()
}

func (e *Engine) factToAtomLocked(fact Fact) (ast.Atom, error) {
	sym, ok := e.predicateIndex[fact.Predicate]
	if !ok {
		return ast.Atom{}, fmt.Errorf("predicate %s is not declared in schemas", fact.Predicate)
	}
	if len(fact.Args) != sym.Arity {
		return ast.Atom{}, fmt.Errorf("predicate %s expects %d args, got %d", fact.Predicate, sym.Arity, len(fact.Args))
	}

	decl := e.predToDecl[sym]
	args := make([]ast.BaseTerm, len(fact.Args))
	for i, raw := range fact.Args {
		var expectedType ast.ConstantType = -1
		if decl != nil && len(decl.Bounds) > 0 {
			bounds := decl.Bounds[0].Bounds
			if len(bounds) > i {
				if c, ok := bounds[i].(ast.Constant); ok {
					switch c.Symbol {
					case "/name":
						expectedType = ast.NameType
					case "/string":
						expectedType = ast.StringType
					case "/number":
						expectedType = ast.NumberType
					case "/float64":
						expectedType = ast.Float64Type
					}
				}
			}
		}

		term, err := convertValueToTypedTerm(raw, expectedType)
		if err != nil {
			return ast.Atom{}, fmt.Errorf("predicate %s arg %d: %w", fact.Predicate, i, err)
		}
		args[i] = term
	}
	return ast.Atom{Predicate: sym, Args: args}, nil
}

// convertValueToTypedTerm converts a Go value to a Mangle term, coercing to
// the declared type where one is known.
func convertValueToTypedTerm(value interface{}, expectedType ast.ConstantType) (ast.BaseTerm, error) {
	switch expectedType {
	case ast.NameType:
		if s, ok := value.(string); ok {
			if !strings.HasPrefix(s, "/") {
				s = "/" + s
			}
			return ast.Name(s)
		}
		if b, ok := value.(bool); ok {
			if b {
				return ast.TrueConstant, nil
			}
			return ast.FalseConstant, nil
		}
	case ast.StringType:
		if s, ok := value.(string); ok {
			return ast.String(s), nil
		}
	case ast.NumberType:
		switch v := value.(type) {
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("%v is not an integer", v)
			}
			return ast.Number(int64(v)), nil
		}
	case ast.Float64Type:
		switch v := value.(type) {
		case int:
			return ast.Float64(float64(v)), nil
		case int64:
			return ast.Float64(float64(v)), nil
		}
	}

	switch v := value.(type) {
	case ast.BaseTerm:
		return v, nil
	case string:
		if strings.HasPrefix(v, "/") {
			return ast.Name(v)
		}
		return ast.String(v), nil
	case int:
		return ast.Number(int64(v)), nil
	case int32:
		return ast.Number(int64(v)), nil
	case int64:
		return ast.Number(v), nil
	case float32:
		return ast.Float64(float64(v)), nil
	case float64:
		return ast.Float64(v), nil
	case bool:
		if v {
			return ast.TrueConstant, nil
		}
		return ast.FalseConstant, nil
	}
	return nil, fmt.Errorf("unsupported fact argument type %T", value)
}

// Query evaluates a single atom such as rank(/combat, Label) against the
// store. Constants in the query filter, variables bind.
func (e *Engine) Query(ctx context.Context, query string) (*QueryResult, error) {
	shape, err := parseQueryShape(query)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	sym, ok := e.predicateIndex[shape.atom.Predicate.Symbol]
	store := e.store
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("predicate %s is not declared", shape.atom.Predicate.Symbol)
	}
	if sym.Arity != len(shape.atom.Args) {
		return nil, fmt.Errorf("predicate %s expects %d args, got %d", sym.Symbol, sym.Arity, len(shape.atom.Args))
	}

	if _, ok := ctx.Deadline(); !ok && e.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	var results []map[string]interface{}
	err = store.GetFacts(ast.NewQuery(sym), func(fact ast.Atom) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !matchesConstants(shape.atom, fact) {
			return nil
		}
		row := make(map[string]interface{}, len(shape.variables))
		for _, binding := range shape.variables {
			row[binding.Name] = convertBaseTermToInterface(fact.Args[binding.Index])
		}
		results = append(results, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	return &QueryResult{Bindings: results, Duration: time.Since(start)}, nil
}

func matchesConstants(query, fact ast.Atom) bool {
	for i, arg := range query.Args {
		c, ok := arg.(ast.Constant)
		if !ok {
			continue
		}
		if i >= len(fact.Args) || !c.Equals(fact.Args[i]) {
			return false
		}
	}
	return true
}

// GetFacts retrieves all facts, base or derived, for a predicate.
func (e *Engine) GetFacts(predicate string) ([]Fact, error) {
	e.mu.RLock()
	sym, ok := e.predicateIndex[predicate]
	store := e.store
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("predicate %s is not declared", predicate)
	}

	var results []Fact
	err := store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
		args := make([]interface{}, len(atom.Args))
		for i, arg := range atom.Args {
			args[i] = convertBaseTermToInterface(arg)
		}
		results = append(results, Fact{Predicate: predicate, Args: args})
		return nil
	})
	sort.Slice(results, func(i, j int) bool { return results[i].String() < results[j].String() })
	return results, err
}

// GetStats returns statistics for the fact store.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := make(map[string]int)
	for _, sym := range e.store.ListPredicates() {
		n := 0
		_ = e.store.GetFacts(ast.NewQuery(sym), func(ast.Atom) error {
			n++
			return nil
		})
		counts[sym.Symbol] = n
	}
	scopes := make(map[string]int, len(e.scopes))
	for name, atoms := range e.scopes {
		scopes[name] = len(atoms)
	}
	return Stats{
		TotalFacts:      e.store.EstimateFactCount(),
		PredicateCounts: counts,
		Scopes:          scopes,
		LastUpdate:      e.lastUpdate,
	}
}

// Clear drops every scope. Persistence is not touched.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scopes = make(map[string][]ast.Atom)
	e.store = factstore.NewConcurrentFactStore(factstore.NewSimpleInMemoryStore())
	e.factCount = 0
}

type queryVariable struct {
	Name  string
	Index int
}

type queryShape struct {
	atom      ast.Atom
	variables []queryVariable
}

func parseQueryShape(query string) (*queryShape, error) {
	clean := strings.TrimSpace(query)
	if clean == "" {
		return nil, fmt.Errorf("empty query")
	}
	clean = strings.TrimSpace(strings.TrimPrefix(clean, "?"))
	clean = strings.TrimSpace(strings.TrimSuffix(clean, "."))

	atom, err := parse.Atom(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query %q: %w", query, err)
	}

	variables := make([]queryVariable, 0, len(atom.Args))
	for idx, arg := range atom.Args {
		if variable, ok := arg.(ast.Variable); ok && variable.Symbol != "_" {
			variables = append(variables, queryVariable{Name: variable.Symbol, Index: idx})
		}
	}
	return &queryShape{atom: atom, variables: variables}, nil
}

func convertBaseTermToInterface(term ast.BaseTerm) interface{} {
	switch v := term.(type) {
	case ast.Constant:
		return constantToInterface(v)
	case ast.Variable:
		return v.Symbol
	default:
		return fmt.Sprintf("%v", term)
	}
}

func constantToInterface(constant ast.Constant) interface{} {
	switch constant.Type {
	case ast.StringType, ast.NameType, ast.BytesType:
		return constant.Symbol
	case ast.NumberType:
		return constant.NumValue
	case ast.Float64Type:
		return math.Float64frombits(uint64(constant.NumValue))
	default:
		return constant.String()
	}
}
