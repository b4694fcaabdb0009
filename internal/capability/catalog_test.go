package capability_test

import (
	"context"
	"testing"

	"modscout/internal/capability"
	"modscout/internal/host/memhost"
	"modscout/internal/modcache"
	"modscout/internal/modtable"
	"modscout/internal/monitor"
	"modscout/internal/object"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, h *memhost.Host) *modcache.Cache {
	t.Helper()
	c, err := modtable.NewBuilder(h, nil).Build(context.Background())
	require.NoError(t, err)
	return c
}

func TestCatalog_IsWellFormed(t *testing.T) {
	specs := capability.Catalog()
	require.NoError(t, capability.Validate(specs))
	assert.Len(t, specs, 44)
	assert.Equal(t, []string{capability.UserIdentity, capability.UserProfile}, capability.CriticalNames())

	for _, s := range specs {
		assert.NotNil(t, s.Valid, s.Name)
		assert.NotEmpty(t, s.Kind, s.Name)
	}
}

func TestValidate_Rejects(t *testing.T) {
	one := []capability.Strategy{capability.Export("x")}
	tests := []struct {
		name  string
		specs []capability.Spec
	}{
		{"duplicate", []capability.Spec{{Name: "A", Strategies: one}, {Name: "A", Strategies: one}}},
		{"empty name", []capability.Spec{{Strategies: one}}},
		{"no strategies", []capability.Spec{{Name: "A"}}},
		{"self reference", []capability.Spec{{Name: "A", Strategies: []capability.Strategy{capability.FromComposite("A", "f")}}}},
		{"unknown reference", []capability.Spec{{Name: "A", Strategies: []capability.Strategy{capability.FromComposite("B", "f")}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, capability.Validate(tt.specs))
		})
	}
}

func TestCatalog_ResolvesSampleApp(t *testing.T) {
	for _, mech := range []memhost.Mechanism{memhost.Require, memhost.Chunks} {
		mon := monitor.New()
		r := capability.NewResolver(build(t, memhost.SampleApp().SetMechanism(mech)), mon, nil)

		for _, name := range r.Names() {
			v := r.Resolve(name)
			require.NotNil(t, v, "capability %s", name)
			spec, _ := r.Spec(name)
			assert.True(t, spec.Valid(v), "capability %s", name)
		}

		// Collections come straight from the Store composite.
		stats, _ := mon.Stats("Msg")
		assert.Equal(t, int64(1), stats.Strategies[1].Successes)
	}
}

func TestCatalog_FallsBackWithoutStoreModule(t *testing.T) {
	h := memhost.New().SetSignals(memhost.ReadySignals)
	msg := memhost.NewCollection("Msg")
	chat := memhost.NewCollection("Chat")
	h.DefineValue("1", object.Map{"default": msg, "MsgCollection": msg})
	h.DefineValue("2", object.Map{"ChatCollection": chat})

	mon := monitor.New()
	r := capability.NewResolver(build(t, h), mon, nil)

	store := r.Resolve(capability.Store)
	require.NotNil(t, store)
	assert.Equal(t, msg, object.Get(store, "Msg"))

	storeStats, _ := mon.Stats(capability.Store)
	assert.Equal(t, int64(1), storeStats.Strategies[3].Successes)

	// Contact is not in the assembled Store and has no export.
	assert.Nil(t, r.Resolve("Contact"))
	contactStats, _ := mon.Stats("Contact")
	assert.Equal(t, int64(1), contactStats.Strategies[monitor.NoStrategy].Attempts)
}

func TestCatalog_FunctionAlternateExport(t *testing.T) {
	h := memhost.New()
	send := object.Method("sent")
	h.DefineValue("9", object.Map{"default": object.Map{"addAndSendMsgToChat": send}})

	mon := monitor.New()
	r := capability.NewResolver(build(t, h), mon, nil)

	assert.Same(t, send, r.Resolve("SendTextMsgToChat"))
	assert.Equal(t, []int{1, 3}, mon.Redundant("SendTextMsgToChat"))
}

func TestCatalog_ConstructorByShape(t *testing.T) {
	h := memhost.New()
	class := memhost.NewClass("MsgKey", "fromString", "newId")
	h.DefineValue("1", object.Map{"unrelated": true})
	h.DefineValue("2", object.Map{"default": class})

	r := capability.NewResolver(build(t, h), monitor.New(), nil)
	assert.Same(t, class, r.Resolve("MsgKey"))

	in := r.Inspect("MsgKey")
	assert.Equal(t, capability.StatusResolved, in.Status)
	assert.Contains(t, in.MethodNames, "fromString")
	assert.Contains(t, in.PropertyNames, "prototype")
}
