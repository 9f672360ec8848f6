package messaging

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// EventType tags server-push events on the wire.
type EventType string

const (
	EventConversationMessage EventType = "CONVERSATION_MESSAGE"
	EventRoutingResult       EventType = "CONVERSATION_ROUTING_RESULT"
	EventParticipantChanged  EventType = "CONVERSATION_PARTICIPANT_CHANGED"
	EventTypingStarted       EventType = "CONVERSATION_TYPING_STARTED_INDICATOR"
	EventTypingStopped       EventType = "CONVERSATION_TYPING_STOPPED_INDICATOR"
	EventDeliveryAck         EventType = "CONVERSATION_DELIVERY_ACKNOWLEDGEMENT"
	EventReadAck             EventType = "CONVERSATION_READ_ACKNOWLEDGEMENT"
	EventConversationClosed  EventType = "CONVERSATION_CLOSE_CONVERSATION"
)

// Envelope is the raw frame delivered by the event channel.
type Envelope struct {
	Type        EventType       `json:"event"`
	LastEventID string          `json:"lastEventId,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// ServerEvent is the decoded, typed form of one inbound event. The concrete
// type identifies the event kind; ConversationID is used for the ingestion
// filter.
type ServerEvent interface {
	EventType() EventType
	ConversationID() string
}

// MessageEvent carries a new conversation entry of type Message.
type MessageEvent struct {
	ConvID string    `json:"conversationId"`
	Entry  WireEntry `json:"conversationEntry"`
}

// RoutingResultEvent carries a routing outcome entry.
type RoutingResultEvent struct {
	ConvID string    `json:"conversationId"`
	Entry  WireEntry `json:"conversationEntry"`
}

// ParticipantChangedEvent carries a participant join/leave entry.
type ParticipantChangedEvent struct {
	ConvID string    `json:"conversationId"`
	Entry  WireEntry `json:"conversationEntry"`
}

// TypingEvent signals that a participant started or stopped typing.
type TypingEvent struct {
	ConvID  string      `json:"conversationId"`
	Sender  Participant `json:"sender"`
	Started bool        `json:"-"`
}

// AckEvent is a delivery or read acknowledgement for entries up to
// TimestampMs.
type AckEvent struct {
	ConvID      string `json:"conversationId"`
	EntryID     string `json:"conversationEntryId,omitempty"`
	TimestampMs int64  `json:"acknowledgementTimestamp"`
	Read        bool   `json:"-"`
}

// CloseEvent signals that the counterparty closed the conversation.
type CloseEvent struct {
	ConvID string `json:"conversationId"`
	Reason string `json:"reason,omitempty"`
}

// UnknownEvent preserves an unrecognized event type so the dispatcher can
// log and drop it without failing.
type UnknownEvent struct {
	RawType EventType
}

func (e *MessageEvent) EventType() EventType            { return EventConversationMessage }
func (e *MessageEvent) ConversationID() string          { return e.ConvID }
func (e *RoutingResultEvent) EventType() EventType      { return EventRoutingResult }
func (e *RoutingResultEvent) ConversationID() string    { return e.ConvID }
func (e *ParticipantChangedEvent) EventType() EventType { return EventParticipantChanged }
func (e *ParticipantChangedEvent) ConversationID() string {
	return e.ConvID
}
func (e *TypingEvent) EventType() EventType {
	if e.Started {
		return EventTypingStarted
	}
	return EventTypingStopped
}
func (e *TypingEvent) ConversationID() string { return e.ConvID }
func (e *AckEvent) EventType() EventType {
	if e.Read {
		return EventReadAck
	}
	return EventDeliveryAck
}
func (e *AckEvent) ConversationID() string   { return e.ConvID }
func (e *CloseEvent) EventType() EventType   { return EventConversationClosed }
func (e *CloseEvent) ConversationID() string { return e.ConvID }
func (e *UnknownEvent) EventType() EventType { return e.RawType }
func (e *UnknownEvent) ConversationID() string {
	return ""
}

// DecodeEvent turns a wire envelope into its typed variant. Unrecognized
// event types decode into *UnknownEvent with a nil error; malformed payloads
// are errors.
func DecodeEvent(env Envelope) (ServerEvent, error) {
	decode := func(v any) error {
		if len(env.Data) == 0 {
			return errors.Errorf("event %s has no payload", env.Type)
		}
		return errors.Wrapf(json.Unmarshal(env.Data, v), "decode %s payload", env.Type)
	}
	switch env.Type {
	case EventConversationMessage:
		ev := &MessageEvent{}
		return ev, decode(ev)
	case EventRoutingResult:
		ev := &RoutingResultEvent{}
		return ev, decode(ev)
	case EventParticipantChanged:
		ev := &ParticipantChangedEvent{}
		return ev, decode(ev)
	case EventTypingStarted, EventTypingStopped:
		ev := &TypingEvent{Started: env.Type == EventTypingStarted}
		return ev, decode(ev)
	case EventDeliveryAck, EventReadAck:
		ev := &AckEvent{Read: env.Type == EventReadAck}
		return ev, decode(ev)
	case EventConversationClosed:
		ev := &CloseEvent{}
		return ev, decode(ev)
	default:
		return &UnknownEvent{RawType: env.Type}, nil
	}
}
