package mangle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, engine)
}

func TestEngineLoadSchemaString(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, engine.LoadSchemaString(`Decl test_fact(X, Y) bound [/string, /string].`))
}

func TestEngineAddFact(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoEval = false
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, engine.LoadSchemaString(`Decl test_fact(X, Y) bound [/string, /number].`))
	assert.NoError(t, engine.AddFact("test_fact", "hello", int64(42)))
}

func TestEngineAddFacts(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, engine.LoadSchemaString(`Decl person(Name, Age) bound [/string, /number].`))

	facts := []Fact{
		{Predicate: "person", Args: []interface{}{"Alice", int64(30)}},
		{Predicate: "person", Args: []interface{}{"Bob", int64(25)}},
	}
	assert.NoError(t, engine.AddFacts(facts))
}

func TestEngineEffectClosureQuery(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	schema := `
Decl calls(X, Y) bound [/string, /string].
Decl declares(X, E) bound [/string, /string].
Decl has_effect(X, E) bound [/string, /string].
has_effect(X, E) :- declares(X, E).
has_effect(X, E) :- calls(X, Y), has_effect(Y, E).
`
	require.NoError(t, engine.LoadSchemaString(schema))

	facts := []Fact{
		{Predicate: "declares", Args: []interface{}{"app.write", "console"}},
		{Predicate: "calls", Args: []interface{}{"app.main", "app.write"}},
	}
	require.NoError(t, engine.AddFacts(facts))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := engine.Query(ctx, "has_effect(X, E)")
	require.NoError(t, err)

	found := false
	for _, row := range result.Bindings {
		if row["X"] == "app.main" && row["E"] == "console" {
			found = true
		}
	}
	assert.True(t, found, "expected has_effect(app.main, console) to transitively hold, bindings=%v", result.Bindings)
}

func TestEngineGetFacts(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, engine.LoadSchemaString(`Decl item(Name) bound [/string].`))
	_ = engine.AddFact("item", "apple")
	_ = engine.AddFact("item", "banana")

	facts, err := engine.GetFacts("item")
	require.NoError(t, err)
	assert.Len(t, facts, 2)
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
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fact.String())
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100000, cfg.FactLimit)
	assert.Equal(t, 30, cfg.QueryTimeout)
	assert.True(t, cfg.AutoEval)
}

func TestFactLimitEnforcement(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FactLimit = 3
	cfg.AutoEval = false
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, engine.LoadSchemaString(`Decl item(ID) bound [/number].`))

	for i := 0; i < 3; i++ {
		require.NoError(t, engine.AddFact("item", int64(i)), "AddFact(%d) should succeed under limit", i)
	}
	assert.Error(t, engine.AddFact("item", int64(999)), "AddFact() should have returned an error past FactLimit")
}

func TestPredicateArityMismatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoEval = false
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, engine.LoadSchemaString(`Decl pair(X, Y) bound [/string, /string].`))
	assert.Error(t, engine.AddFact("pair", "only_one"), "AddFact with too few args should fail")
	assert.NoError(t, engine.AddFact("pair", "x", "y"), "AddFact with correct arity should succeed")
}
