package capability

import (
	"errors"
	"testing"

	"modscout/internal/modcache"
	"modscout/internal/monitor"
	"modscout/internal/object"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(v any) Strategy {
	return Custom("constant", func(*Env) (any, error) { return v, nil })
}

func emptyCache() *modcache.Cache { return modcache.New(nil) }

func TestResolve_StrategyOrderRespected(t *testing.T) {
	valid := object.Map{"on": object.Method(nil), "get": object.Method(nil)}
	invalid := object.Map{"on": object.Method(nil)}
	mon := monitor.New()
	r := NewResolver(emptyCache(), mon, []Spec{{
		Name:       "Msg",
		Valid:      Collection,
		Strategies: []Strategy{constant(invalid), constant(nil), constant(valid)},
	}})

	got := r.Resolve("Msg")
	assert.Equal(t, valid, got)

	stats, ok := mon.Stats("Msg")
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Calls)
	assert.Equal(t, int64(0), stats.Strategies[1].Successes)
	assert.Equal(t, int64(0), stats.Strategies[2].Successes)
	assert.Equal(t, int64(1), stats.Strategies[3].Successes)
	assert.Equal(t, int64(1), stats.Strategies[1].Attempts)
	assert.Equal(t, int64(1), stats.Strategies[2].Attempts)
}

func TestResolve_LaterStrategiesNotRunAfterSuccess(t *testing.T) {
	ran := false
	r := NewResolver(emptyCache(), monitor.New(), []Spec{{
		Name:  "F",
		Valid: Any,
		Strategies: []Strategy{
			constant("first"),
			Custom("never", func(*Env) (any, error) { ran = true; return "second", nil }),
		},
	}})
	assert.Equal(t, "first", r.Resolve("F"))
	assert.False(t, ran)
}

func TestResolve_PanicsAndErrorsAreSkipped(t *testing.T) {
	mon := monitor.New()
	r := NewResolver(emptyCache(), mon, []Spec{{
		Name:  "F",
		Valid: func(v any) bool {
			_ = object.Keys(v)
			return Function(v)
		},
		Strategies: []Strategy{
			Custom("panics", func(*Env) (any, error) { panic("host threw") }),
			Custom("errors", func(*Env) (any, error) { return object.Method(nil), errors.New("boom") }),
			Custom("validity panics", func(*Env) (any, error) { return panicky{}, nil }),
			constant(object.Method(1)),
		},
	}})

	assert.NotNil(t, r.Resolve("F"))
	stats, _ := mon.Stats("F")
	for i := 1; i <= 3; i++ {
		assert.Equal(t, int64(1), stats.Strategies[i].Attempts, "strategy %d", i)
		assert.Equal(t, int64(0), stats.Strategies[i].Successes, "strategy %d", i)
	}
	assert.Equal(t, int64(1), stats.Strategies[4].Successes)
}

// panicky is callable but any property read panics, like a revoked proxy.
type panicky struct{}

func (panicky) Call(...any) (any, error) { return nil, nil }
func (panicky) Keys() []string           { panic("revoked") }
func (panicky) Get(string) any           { panic("revoked") }

func TestResolve_ExhaustionRecordsNoStrategy(t *testing.T) {
	mon := monitor.New()
	r := NewResolver(emptyCache(), mon, []Spec{{
		Name:       "Gone",
		Valid:      Any,
		Strategies: []Strategy{constant(nil), constant(nil)},
	}})

	assert.Nil(t, r.Resolve("Gone"))
	stats, _ := mon.Stats("Gone")
	assert.Equal(t, int64(1), stats.Calls)
	assert.Equal(t, int64(1), stats.Strategies[monitor.NoStrategy].Attempts)
	assert.Equal(t, int64(0), stats.Strategies[monitor.NoStrategy].Successes)
}

func TestResolve_ReReadsEveryTime(t *testing.T) {
	var v any
	r := NewResolver(emptyCache(), monitor.New(), []Spec{{
		Name:       "Late",
		Valid:      Any,
		Strategies: []Strategy{Custom("late", func(*Env) (any, error) { return v, nil })},
	}})

	assert.Nil(t, r.Resolve("Late"))
	v = "appeared"
	assert.Equal(t, "appeared", r.Resolve("Late"))
}

func TestResolve_RedundantReport(t *testing.T) {
	mon := monitor.New()
	r := NewResolver(emptyCache(), mon, []Spec{{
		Name:  "Chat",
		Valid: Any,
		Strategies: []Strategy{
			constant("chat"), constant("never"), constant("never"), constant("never"),
		},
	}})
	for i := 0; i < 10; i++ {
		r.Resolve("Chat")
	}
	assert.Equal(t, []int{2, 3, 4}, mon.Redundant("Chat"))
}

func TestResolve_UnknownCapability(t *testing.T) {
	mon := monitor.New()
	r := NewResolver(emptyCache(), mon, []Spec{})
	assert.Nil(t, r.Resolve("Nope"))
	_, ok := mon.Stats("Nope")
	assert.False(t, ok)
}

func TestResolve_CompositeCycleTerminates(t *testing.T) {
	r := NewResolver(emptyCache(), monitor.New(), []Spec{
		{Name: "A", Valid: Any, Strategies: []Strategy{FromComposite("B", "x")}},
		{Name: "B", Valid: Any, Strategies: []Strategy{FromComposite("A", "y")}},
	})
	assert.Nil(t, r.Resolve("A"))
}

func TestResolve_SearchStrategies(t *testing.T) {
	coll := object.Map{"on": object.Method(nil), "get": object.Method(nil)}
	reg := modcache.NewRegistry()
	reg.Add("1", func() any { return object.Map{"ChatCollection": object.Map{"stale": true}} })
	reg.Add("2", func() any { return object.Map{"ChatCollection": coll} })
	reg.Add("3", func() any { return object.Map{"default": object.Map{"k": 1}} })
	reg.Add("4", func() any { return object.Map{"default": object.Map{"k": 2}} })
	cache := modcache.New(reg)

	tests := []struct {
		name     string
		valid    Validity
		strategy Strategy
		want     any
	}{
		{"export takes first module", Collection, Export("ChatCollection"), nil},
		{"export where scans all", Collection, ExportWhere("ChatCollection", nil), coll},
		{"export where filtered", Any, ExportWhere("ChatCollection", func(mod any) bool {
			return object.Path(mod, "ChatCollection.stale") == nil
		}), coll},
		{"shape", Any, Shape("k", func(mod any) bool { return object.HasKey(object.Default(mod), "k") }, "default.k"), 1},
		{"filter index", Any, FilterIndex("k", func(mod any) bool { return object.HasKey(object.Default(mod), "k") }, 1, "default.k"), 2},
		{"filter index from end", Any, FilterIndex("k", func(mod any) bool { return object.HasKey(object.Default(mod), "k") }, -1, "default.k"), 2},
		{"filter index out of range", Any, FilterIndex("k", func(mod any) bool { return true }, 9), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(cache, monitor.New(), []Spec{{Name: "X", Valid: tt.valid, Strategies: []Strategy{tt.strategy}}})
			assert.Equal(t, tt.want, r.Resolve("X"))
		})
	}
}

func TestInspect(t *testing.T) {
	target := object.Map{
		"on":     object.Method(nil),
		"get":    object.Method(nil),
		"models": []any{},
		"length": 0,
	}
	r := NewResolver(emptyCache(), monitor.New(), []Spec{
		{Name: "Msg", Kind: KindCollection, Valid: Collection, Strategies: []Strategy{constant(target)}},
		{Name: "Gone", Kind: KindFunction, Valid: Function, Strategies: []Strategy{constant(nil)}},
	})

	in := r.Inspect("Msg")
	assert.Equal(t, StatusResolved, in.Status)
	assert.Equal(t, KindCollection, in.Kind)
	assert.Equal(t, []string{"get", "on"}, in.MethodNames)
	assert.Equal(t, []string{"length", "models"}, in.PropertyNames)

	gone := r.Inspect("Gone")
	assert.Equal(t, StatusUnresolved, gone.Status)
	assert.Empty(t, gone.MethodNames)
	assert.NotNil(t, gone.MethodNames)

	assert.Equal(t, StatusUnknown, r.Inspect("Nope").Status)
}

func TestInspectValue_SurvivesHostPanics(t *testing.T) {
	in := InspectValue("P", KindObject, panicky{})
	assert.Equal(t, StatusResolved, in.Status)
	assert.Empty(t, in.MethodNames)
}

func TestNewResolver_DeclaresStrategies(t *testing.T) {
	mon := monitor.New()
	NewResolver(emptyCache(), mon, nil)
	stats, ok := mon.Stats(Store)
	require.True(t, ok)
	assert.Equal(t, 3, stats.Declared)
	// Declaring alone is not a call.
	assert.Empty(t, mon.Redundant(Store))
}
