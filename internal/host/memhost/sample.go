package memhost

import (
	"errors"
	"fmt"

	"modscout/internal/modcache"
	"modscout/internal/object"
	"modscout/internal/readiness"
)

// ReadySignals is the positive readiness sample a healthy host reports.
var ReadySignals = readiness.Signals{UIRoot: true, Loader: true, ConnState: "CONNECTED"}

// NewCollection returns a model collection with the usual subscribe and lookup
// methods.
func NewCollection(model string, models ...any) object.Map {
	byID := make(map[string]any, len(models))
	for _, m := range models {
		if id, ok := object.Get(m, "id").(string); ok {
			byID[id] = m
		}
	}
	return object.Map{
		"modelClass": model,
		"models":     models,
		"length":     len(models),
		"on":         object.Method(nil),
		"off":        object.Method(nil),
		"get": object.NewFunc(func(args ...any) (any, error) {
			if len(args) == 0 {
				return nil, nil
			}
			return byID[fmt.Sprint(args[0])], nil
		}),
		"toArray": object.Method(models),
	}
}

// NewClass returns a constructor with a prototype and the given static methods.
func NewClass(name string, statics ...string) *object.Func {
	props := object.Map{
		"name":      name,
		"prototype": object.Map{"toString": object.Method(name)},
	}
	for _, s := range statics {
		props[s] = object.Method(nil)
	}
	return &object.Func{Props: props}
}

// SampleApp returns a host laid out like a real messaging web client: a Store
// module, per-collection modules, event buses, exported functions and classes,
// plus noise modules that fail, panic or are primitives. It is ready immediately.
func SampleApp() *Host {
	h := New().SetSignals(ReadySignals)

	me := object.Map{"user": "15550001111", "server": "c.us", "_serialized": "15550001111@c.us"}
	h.DefineValue("100", object.Map{"default": object.Map{
		"getMaybeMeUser": object.Method(me),
		"getMeUser":      object.Method(me),
	}})
	h.DefineValue("101", object.Map{"Conn": object.Map{
		"pushname": "Ada",
		"platform": "web",
		"ref":      "1@abc",
	}})

	// Noise the engine must survive.
	h.Define("102", func() (any, error) { return nil, errors.New("module not initialised") })
	h.Define("103", func() (any, error) { panic("Cannot read properties of undefined (reading 'on')") })
	h.DefineValue("104", "use strict")
	h.DefineValue("105", nil)

	store := object.Map{}
	id := 200
	for _, field := range []string{
		"Msg", "Chat", "Contact", "Presence", "GroupMetadata", "Label", "Blocklist",
		"Call", "Status", "StickerPack", "ProfilePicThumb", "MsgInfo", "QuickReply",
		"Reactions", "Chatstate",
	} {
		c := NewCollection(field)
		store[field] = c
		h.DefineValue(modcache.ModuleID(fmt.Sprint(id)), object.Map{field + "Collection": c})
		id++
	}

	socket := object.Map{"on": object.Method(nil), "off": object.Method(nil), "logout": object.Method(nil), "state": "CONNECTED"}
	store["Socket"] = socket
	h.DefineValue("300", object.Map{"default": store})
	h.DefineValue("301", object.Map{"Cmd": object.Map{
		"on": object.Method(nil), "off": object.Method(nil), "openChatAt": object.Method(true),
	}})
	h.DefineValue("302", object.Map{"default": object.Map{
		"on": object.Method(nil), "off": object.Method(nil), "mode": "MAIN", "displayInfo": "NORMAL",
	}})
	h.DefineValue("303", object.Map{"Socket": socket})

	functions := []string{
		"sendTextMsgToChat", "sendSeen", "sendReactionToMsg", "sendDelete", "sendClear",
		"setArchive", "markComposing", "markPaused", "openChatBottom", "queryExist",
		"findOrCreateLatestChat", "createGroup", "addParticipants", "removeParticipants",
		"downloadAndMaybeDecrypt", "uploadMedia", "blockContact", "sendStarMsgs",
		"forwardMessagesToChats", "profilePicFind",
	}
	id = 400
	for i, fn := range functions {
		mid := modcache.ModuleID(fmt.Sprint(id + i))
		if i%2 == 0 {
			h.DefineValue(mid, object.Map{fn: object.Method(true)})
		} else {
			h.DefineValue(mid, object.Map{"default": object.Map{fn: object.Method(true)}})
		}
	}

	h.DefineValue("500", object.Map{"default": NewClass("MsgKey", "fromString", "newId")})
	h.DefineValue("501", object.Map{"default": NewClass("Wid", "isUser", "isGroup")})
	h.DefineValue("502", object.Map{"MediaPrep": NewClass("MediaPrep", "prepRawMedia")})

	return h
}
