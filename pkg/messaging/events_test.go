package messaging

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, typ EventType, data map[string]any) Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return Envelope{Type: typ, LastEventID: "evt-1", Data: raw}
}

func TestDecodeEvent_Message(t *testing.T) {
	env := envelope(t, EventConversationMessage, map[string]any{
		"conversationId": "c-1",
		"conversationEntry": map[string]any{
			"conversationId": "c-1",
			"identifier":     "e-1",
			"entryType":      "Message",
			"sender":         map[string]any{"subject": "u-1", "role": "EndUser"},
			"entryPayload": map[string]any{
				"id":              "m-1",
				"abstractMessage": map[string]any{"text": "hello"},
			},
		},
	})

	ev, err := DecodeEvent(env)
	require.NoError(t, err)
	msg, ok := ev.(*MessageEvent)
	require.True(t, ok)
	require.Equal(t, "c-1", msg.ConversationID())
	require.Equal(t, EventConversationMessage, msg.EventType())

	entry, err := NewEntry(msg.Entry)
	require.NoError(t, err)
	require.Equal(t, EntryTypeMessage, entry.Type)
	require.Equal(t, "hello", entry.Text)
	require.Equal(t, "m-1", entry.MessageID)
	require.True(t, entry.IsEndUserMessage)
}

func TestDecodeEvent_TypingVariants(t *testing.T) {
	started, err := DecodeEvent(envelope(t, EventTypingStarted, map[string]any{
		"conversationId": "c-1",
		"sender":         map[string]any{"subject": "agent-1", "role": "Agent"},
	}))
	require.NoError(t, err)
	typing, ok := started.(*TypingEvent)
	require.True(t, ok)
	require.True(t, typing.Started)
	require.Equal(t, EventTypingStarted, typing.EventType())

	stopped, err := DecodeEvent(envelope(t, EventTypingStopped, map[string]any{
		"conversationId": "c-1",
		"sender":         map[string]any{"subject": "agent-1", "role": "Agent"},
	}))
	require.NoError(t, err)
	require.Equal(t, EventTypingStopped, stopped.EventType())
}

func TestDecodeEvent_AckVariants(t *testing.T) {
	read, err := DecodeEvent(envelope(t, EventReadAck, map[string]any{
		"conversationId":           "c-1",
		"acknowledgementTimestamp": 1700000000000,
	}))
	require.NoError(t, err)
	ack, ok := read.(*AckEvent)
	require.True(t, ok)
	require.True(t, ack.Read)
	require.Equal(t, int64(1700000000000), ack.TimestampMs)
}

func TestDecodeEvent_UnknownTypeIsNotAnError(t *testing.T) {
	ev, err := DecodeEvent(Envelope{Type: "CONVERSATION_SOMETHING_NEW", Data: []byte(`{}`)})
	require.NoError(t, err)
	unknown, ok := ev.(*UnknownEvent)
	require.True(t, ok)
	require.Equal(t, EventType("CONVERSATION_SOMETHING_NEW"), unknown.EventType())
}

func TestDecodeEvent_MalformedPayload(t *testing.T) {
	_, err := DecodeEvent(Envelope{Type: EventConversationMessage, Data: []byte(`{not json`)})
	require.Error(t, err)

	_, err = DecodeEvent(Envelope{Type: EventConversationMessage})
	require.Error(t, err)
}

func TestNewEntry_UnrecognizedType(t *testing.T) {
	_, err := NewEntry(WireEntry{ConversationID: "c-1", EntryType: "Telepathy"})
	require.Error(t, err)
}

func TestNewEntry_AgentMessageIsNotEndUser(t *testing.T) {
	entry, err := NewEntry(WireEntry{
		ConversationID: "c-1",
		Identifier:     "e-2",
		EntryType:      "Message",
		Sender:         Participant{Subject: "agent-1", Role: RoleAgent},
		Payload:        []byte(`{"id":"m-2","abstractMessage":{"text":"hi there"}}`),
	})
	require.NoError(t, err)
	require.False(t, entry.IsEndUserMessage)
	require.False(t, entry.IsSent)
}
