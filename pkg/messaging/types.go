package messaging

// Credential is the bearer credential authorizing API and event channel
// access for one session, together with the cursor into the event stream
// used to resume it later.
type Credential struct {
	Token       string
	EventCursor string
}

// IsZero reports whether no credential is held.
func (c Credential) IsZero() bool { return c.Token == "" }

// ConversationStatus tracks the lifecycle of the current conversation.
type ConversationStatus string

const (
	StatusNotStarted ConversationStatus = "NOT_STARTED"
	StatusOpened     ConversationStatus = "OPENED"
	StatusClosed     ConversationStatus = "CLOSED"
)

// ParticipantRole identifies who authored an entry.
type ParticipantRole string

const (
	RoleEndUser ParticipantRole = "EndUser"
	RoleAgent   ParticipantRole = "Agent"
	RoleChatbot ParticipantRole = "Chatbot"
	RoleSystem  ParticipantRole = "System"
)

// Participant is a conversation participant as seen on the wire.
type Participant struct {
	Subject     string          `json:"subject"`
	Role        ParticipantRole `json:"role"`
	DisplayName string          `json:"displayName,omitempty"`
}

// ConversationInfo describes one open conversation returned by the list call.
type ConversationInfo struct {
	ConversationID   string `json:"conversationId"`
	StartTimestampMs int64  `json:"startTimestamp"`
	IsClosed         bool   `json:"isClosed,omitempty"`
}

// RoutingAttributes is the caller-supplied context (region, email, ...) used
// to direct a new conversation to the right handler.
type RoutingAttributes map[string]string

// FailedMessage is the single retained record of the most recent send
// failure. It is overwritten, not queued.
type FailedMessage struct {
	MessageID             string
	Value                 string
	InReplyToMessageID    string
	IsNewMessagingSession bool
	RoutingAttributes     RoutingAttributes
	Language              string
}

// DeploymentConfiguration is the embedded-service configuration payload
// delivered alongside an unauthenticated access token. Opaque to the
// controller; exposed to the host application.
type DeploymentConfiguration map[string]any

// TokenResponse is the response of both token acquisition calls.
type TokenResponse struct {
	AccessToken string           `json:"accessToken"`
	LastEventID string           `json:"lastEventId,omitempty"`
	Context     *ResponseContext `json:"context,omitempty"`
}

// ResponseContext carries the deployment configuration embedded in a token
// response, when the server includes one.
type ResponseContext struct {
	Configuration struct {
		EmbeddedServiceConfig DeploymentConfiguration `json:"embeddedServiceConfig"`
	} `json:"configuration"`
}

// ConversationListResponse is the response of the list-conversations call.
type ConversationListResponse struct {
	OpenConversationsFound int                `json:"openConversationsFound"`
	Conversations          []ConversationInfo `json:"conversations"`
}
