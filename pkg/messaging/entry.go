package messaging

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// EntryType classifies one unit of conversation history.
type EntryType string

const (
	EntryTypeMessage            EntryType = "Message"
	EntryTypeParticipantChanged EntryType = "ParticipantChanged"
	EntryTypeRoutingResult      EntryType = "RoutingResult"
)

// WireEntry is a conversation entry as returned by the entries API and as
// embedded in server-sent events. The entries API returns them newest-first.
type WireEntry struct {
	ConversationID string          `json:"conversationId"`
	Identifier     string          `json:"identifier"`
	EntryType      string          `json:"entryType"`
	Sender         Participant     `json:"sender"`
	TimestampMs    int64           `json:"clientTimestamp"`
	Payload        json.RawMessage `json:"entryPayload,omitempty"`
}

// messagePayload is the payload of a Message entry.
type messagePayload struct {
	ID      string `json:"id"`
	Message struct {
		Text               string `json:"text"`
		InReplyToMessageID string `json:"inReplyToMessageId,omitempty"`
	} `json:"abstractMessage"`
}

// Entry is one immutable unit of conversation history held by the ledger.
type Entry struct {
	Type             EntryType
	ConversationID   string
	ID               string
	Sender           Participant
	Timestamp        time.Time
	IsEndUserMessage bool
	IsSent           bool

	// Message fields, populated when Type is EntryTypeMessage.
	MessageID string
	Text      string

	// Raw payload for entry types the presentation layer renders itself.
	Payload json.RawMessage
}

// IsMessageFromEndUser is the classification rule for history and live
// message entries: authorship is decided by the sending participant's role.
func IsMessageFromEndUser(e Entry) bool {
	return e.Sender.Role == RoleEndUser
}

// NewEntry converts a wire entry into a ledger entry. Unrecognized entry
// types return an error so the caller can log and skip them.
func NewEntry(we WireEntry) (Entry, error) {
	e := Entry{
		ConversationID: we.ConversationID,
		ID:             we.Identifier,
		Sender:         we.Sender,
		Timestamp:      time.UnixMilli(we.TimestampMs),
		Payload:        we.Payload,
	}
	switch EntryType(we.EntryType) {
	case EntryTypeMessage:
		e.Type = EntryTypeMessage
		var p messagePayload
		if len(we.Payload) > 0 {
			if err := json.Unmarshal(we.Payload, &p); err != nil {
				return Entry{}, errors.Wrap(err, "decode message payload")
			}
		}
		e.MessageID = p.ID
		e.Text = p.Message.Text
		e.IsEndUserMessage = IsMessageFromEndUser(e)
	case EntryTypeParticipantChanged:
		e.Type = EntryTypeParticipantChanged
	case EntryTypeRoutingResult:
		e.Type = EntryTypeRoutingResult
	default:
		return Entry{}, errors.Errorf("unrecognized conversation entry type: %s", we.EntryType)
	}
	return e, nil
}
