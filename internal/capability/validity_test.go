package capability

import (
	"testing"

	"modscout/internal/object"

	"github.com/stretchr/testify/assert"
)

func TestValidity(t *testing.T) {
	coll := object.Map{"on": object.Method(nil), "get": object.Method(nil)}
	bus := object.Map{"on": object.Method(nil), "off": object.Method(nil)}
	class := &object.Func{Props: object.Map{"prototype": object.Map{}}}
	fn := object.Method(nil)

	tests := []struct {
		name  string
		valid Validity
		in    any
		want  bool
	}{
		{"any nil", Any, nil, false},
		{"any value", Any, 0, true},
		{"collection", Collection, coll, true},
		{"collection missing get", Collection, bus, false},
		{"collection with non-callable get", Collection, object.Map{"on": fn, "get": "x"}, false},
		{"function", Function, fn, true},
		{"function from map", Function, coll, false},
		{"constructor", Constructor, class, true},
		{"constructor without prototype", Constructor, fn, false},
		{"event bus", EventBus, bus, true},
		{"event bus from collection", EventBus, coll, false},
		{"identity", Identity, object.Map{"getMaybeMeUser": fn}, true},
		{"identity alt", Identity, object.Map{"getMeUser": fn}, true},
		{"identity missing", Identity, object.Map{"me": "x"}, false},
		{"profile prop", Profile, object.Map{"pushname": ""}, true},
		{"profile method", Profile, object.Map{"getPushname": fn}, true},
		{"profile missing", Profile, object.Map{}, false},
		{"composite", Composite("Msg", "Chat"), object.Map{"Msg": coll, "Chat": coll}, true},
		{"composite partial", Composite("Msg", "Chat"), object.Map{"Msg": coll}, false},
		{"composite primitive field", Composite("Msg"), object.Map{"Msg": 1}, false},
		{"composite nil", Composite("Msg"), nil, false},
		{"all", All(Collection, Methods("off")), object.Map{"on": fn, "get": fn, "off": fn}, true},
		{"all fails", All(Collection, Methods("off")), coll, false},
		{"one of", OneOf(Function, Collection), coll, true},
		{"one of none", OneOf(Function, Constructor), coll, false},
		{"props", Props("mode"), object.Map{"mode": "MAIN"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.valid(tt.in))
		})
	}
}
