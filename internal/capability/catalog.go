package capability

import (
	"modscout/internal/object"
)

// Capability names. UserIdentity and UserProfile form the critical set.
const (
	UserIdentity = "UserIdentity"
	UserProfile  = "UserProfile"
	Store        = "Store"
)

// storeCollections maps Store fields to the export name of the collection module
// that backs them, in the order they are assembled.
var storeCollections = []struct {
	Field  string
	Export string
}{
	{"Msg", "MsgCollection"},
	{"Chat", "ChatCollection"},
	{"Contact", "ContactCollection"},
	{"Presence", "PresenceCollection"},
	{"GroupMetadata", "GroupMetadataCollection"},
	{"Label", "LabelCollection"},
	{"Blocklist", "BlocklistCollection"},
	{"Call", "CallCollection"},
	{"Status", "StatusCollection"},
	{"StickerPack", "StickerPackCollection"},
	{"ProfilePicThumb", "ProfilePicThumbCollection"},
	{"MsgInfo", "MsgInfoCollection"},
	{"QuickReply", "QuickReplyCollection"},
	{"Reactions", "ReactionsCollection"},
	{"Chatstate", "ChatstateCollection"},
}

// Catalog returns the built-in capability table: the critical identity pair, the
// Store composite, its collections, event buses, functions and constructors.
func Catalog() []Spec {
	specs := []Spec{
		{
			Name:  UserIdentity,
			Phase: PhaseCritical,
			Kind:  KindObject,
			Valid: Identity,
			Strategies: []Strategy{
				Export("getMaybeMeUser", "default", ""),
				ExportWhere("getMeUser", nil, "default", ""),
				Shape("module with a me-user getter", func(mod any) bool {
					return Identity(object.Default(mod)) || Identity(mod)
				}, "default", ""),
			},
		},
		{
			Name:  UserProfile,
			Phase: PhaseCritical,
			Kind:  KindObject,
			Valid: Profile,
			Strategies: []Strategy{
				Export("Conn", "Conn", "default.Conn"),
				Shape("connection with pushname", func(mod any) bool {
					return object.HasProps(object.Default(mod), "pushname", "platform")
				}, "default"),
				Export("getPushname", "default", ""),
			},
		},
		{
			Name:  Store,
			Phase: PhaseFull,
			Kind:  KindComposite,
			Valid: Composite("Msg", "Chat"),
			Strategies: []Strategy{
				Shape("default export holding Msg and Chat", func(mod any) bool {
					return object.HasProps(object.Default(mod), "Msg", "Chat")
				}, "default"),
				Shape("module holding Msg and Chat", func(mod any) bool {
					return object.HasProps(mod, "Msg", "Chat")
				}),
				Custom("assemble from collection exports", assembleStore),
			},
		},
	}

	for _, c := range storeCollections {
		specs = append(specs, collection(c.Field, c.Export))
	}

	specs = append(specs,
		Spec{
			Name:  "Cmd",
			Phase: PhaseFull,
			Kind:  KindEventBus,
			Valid: All(EventBus, Methods("openChatAt")),
			Strategies: []Strategy{
				Export("Cmd", "Cmd", "default.Cmd"),
				Shape("bus that opens chats", func(mod any) bool {
					return object.HasMethods(object.Default(mod), "on", "off", "openChatAt")
				}, "default"),
			},
		},
		Spec{
			Name:  "Stream",
			Phase: PhaseFull,
			Kind:  KindEventBus,
			Valid: All(EventBus, Props("mode")),
			Strategies: []Strategy{
				Export("Stream", "Stream", "default.Stream"),
				Shape("bus with stream mode", func(mod any) bool {
					d := object.Default(mod)
					return object.HasMethods(d, "on", "off") && object.HasProps(d, "mode", "displayInfo")
				}, "default"),
			},
		},
		Spec{
			Name:  "Socket",
			Phase: PhaseFull,
			Kind:  KindEventBus,
			Valid: All(EventBus, Props("state")),
			Strategies: []Strategy{
				Export("Socket", "Socket", "default.Socket"),
				FromComposite(Store, "Socket"),
				Shape("bus with connection state", func(mod any) bool {
					d := object.Default(mod)
					return object.HasMethods(d, "on", "off", "logout") && object.HasProps(d, "state")
				}, "default"),
			},
		},
	)

	specs = append(specs,
		function("SendTextMsgToChat", "sendTextMsgToChat", "addAndSendMsgToChat"),
		function("SendSeen", "sendSeen", "markSeen"),
		function("SendReactionToMsg", "sendReactionToMsg"),
		function("SendDelete", "sendDelete", "sendRevokeMsgs"),
		function("SendClear", "sendClear"),
		function("SetArchive", "setArchive", "sendSetArchive"),
		function("MarkComposing", "markComposing", "sendChatStateComposing"),
		function("MarkPaused", "markPaused", "sendChatStatePaused"),
		function("OpenChat", "openChatBottom", "openChatFromUnread"),
		function("QueryExist", "queryExist", "queryWidExists"),
		function("FindChat", "findOrCreateLatestChat", "findChat"),
		function("CreateGroup", "createGroup", "sendCreateGroup"),
		function("AddParticipants", "addParticipants", "sendAddParticipants"),
		function("RemoveParticipants", "removeParticipants", "sendRemoveParticipants"),
		function("DownloadMedia", "downloadAndMaybeDecrypt", "downloadMedia"),
		function("UploadMedia", "uploadMedia", "encryptAndUpload"),
		function("BlockContact", "blockContact", "updateBlockList"),
		function("StarMessages", "sendStarMsgs", "starMessages"),
		function("ForwardMessages", "forwardMessagesToChats", "forwardMessages"),
		function("GetProfilePicURL", "profilePicFind", "requestProfilePicFromServer"),
	)

	specs = append(specs,
		constructor("MsgKey", "fromString", "newId"),
		constructor("UserConstructor", "isUser", "isGroup"),
		constructor("MediaPrep", "prepRawMedia"),
	)

	return specs
}

// collection declares a Store backed model collection.
func collection(field, export string) Spec {
	return Spec{
		Name:  field,
		Phase: PhaseFull,
		Kind:  KindCollection,
		Valid: Collection,
		Strategies: []Strategy{
			FromComposite(Store, field),
			Export(export, object.DefaultKey, "", export),
			Export(field, field, object.DefaultKey+"."+field),
		},
	}
}

// function declares an exported host function. The first name is preferred, later
// names are exports used by other host releases.
func function(name string, exports ...string) Spec {
	var strategies []Strategy
	for _, e := range exports {
		strategies = append(strategies, Export(e))
	}
	primary := exports[0]
	strategies = append(strategies, Shape("module whose default exports "+primary, func(mod any) bool {
		return object.IsCallable(object.Get(object.Default(mod), primary))
	}, object.DefaultKey+"."+primary))
	return Spec{
		Name:       name,
		Phase:      PhaseFull,
		Kind:       KindFunction,
		Valid:      Function,
		Strategies: strategies,
	}
}

// constructor declares a host class recognised by its static methods.
func constructor(name string, statics ...string) Spec {
	isClass := func(v any) bool {
		return object.IsConstructor(v) && object.HasMethods(v, statics...)
	}
	return Spec{
		Name:  name,
		Phase: PhaseFull,
		Kind:  KindConstructor,
		Valid: All(Constructor, Methods(statics...)),
		Strategies: []Strategy{
			Export(name, object.DefaultKey, name, object.DefaultKey+"."+name),
			Shape("class with "+statics[0], func(mod any) bool {
				return isClass(object.Default(mod))
			}, object.DefaultKey),
			FilterIndex("class with "+statics[0], func(mod any) bool {
				return isClass(mod)
			}, 0),
		},
	}
}

// assembleStore builds a Store from individually exported collections when no single
// module holds them together.
func assembleStore(env *Env) (any, error) {
	store := object.Map{}
	for _, c := range storeCollections {
		mod := env.Modules.FindByExport(c.Export)
		if mod == nil {
			continue
		}
		for _, p := range []string{c.Export, object.DefaultKey, ""} {
			if v := object.Path(mod, p); Collection(v) {
				store[c.Field] = v
				break
			}
		}
	}
	if len(store) == 0 {
		return nil, nil
	}
	return store, nil
}

// CriticalNames returns the names of the critical capabilities in the catalog.
func CriticalNames() []string {
	var out []string
	for _, s := range Catalog() {
		if s.Phase == PhaseCritical {
			out = append(out, s.Name)
		}
	}
	return out
}
