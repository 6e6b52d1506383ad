package domain

const (
	RoleRegistered = "REGISTERED"
	RoleGuest      = "GUEST"
)

const (
	GenderMale         = "MALE"
	GenderFemale       = "FEMALE"
	GenderRatherNotSay = "RATHER_NOT_SAY"
)

const (
	ConversationTypeDirect       = "DIRECT"
	ConversationTypePrivateGroup = "PRIVATE_GROUP"
	ConversationTypePublicGroup  = "PUBLIC_GROUP"
	ConversationTypeStranger     = "STRANGER"
)

// Master data seeded at startup.
var (
	UserRoles         = []string{RoleRegistered, RoleGuest}
	UserGenders       = []string{GenderMale, GenderFemale, GenderRatherNotSay}
	ConversationTypes = []string{ConversationTypeDirect, ConversationTypePrivateGroup, ConversationTypePublicGroup, ConversationTypeStranger}
)

// Presence store namespaces.
const (
	NamespaceUserConnections = "user-connections"
	NamespaceStrangerQueue   = "stranger-matching-queue"
)

const (
	MatchStatusWaiting = "waiting"
	MatchStatusMatched = "matched"
)

// Socket events.
const (
	EventMatchingStranger = "matching-stranger"
	EventMatchedStranger  = "matched-stranger"
	EventSkipStranger     = "skip-stranger"
	EventSendMessage      = "send-message"
	EventGetMessages      = "get-messages"
	EventReceiveMessages  = "receive-messages"
	EventReadMessages     = "read-messages"
	EventPing             = "ping"
	EventPong             = "pong"
	EventError            = "error"
)

const (
	MaxPageSize = 100
)

const (
	MaxMessageLength = 4000
	MaxReadBatch     = 100
)
