package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/api"
	"github.com/go-go-golems/cricket/pkg/messaging"
)

func newConversationID() string { return uuid.NewString() }
func newMessageID() string      { return uuid.NewString() }

// SendTextMessage sends user-authored text. Conversation id, message id and
// language default to the session's current values. There is no automatic
// retry: a failure is recorded as the session's FailedMessage (overwriting
// any previous one) and reported so the UI can offer the resubmission path.
func (s *Session) SendTextMessage(ctx context.Context, req api.SendMessageRequest) error {
	s.mu.Lock()
	if req.ConversationID == "" {
		req.ConversationID = s.registry.Current()
	}
	if req.MessageID == "" {
		req.MessageID = newMessageID()
	}
	if req.Language == "" {
		req.Language = s.language
	}
	s.mu.Unlock()

	if err := s.api.SendTextMessage(ctx, req); err != nil {
		log.Error().Err(err).Str("component", "session").Str("conv_id", req.ConversationID).Str("message_id", req.MessageID).Msg("sending message failed")
		s.mu.Lock()
		s.failed = &messaging.FailedMessage{
			MessageID:             req.MessageID,
			Value:                 req.Text,
			InReplyToMessageID:    req.InReplyToMessageID,
			IsNewMessagingSession: req.IsNewMessagingSession,
			RoutingAttributes:     req.RoutingAttributes,
			Language:              req.Language,
		}
		s.mu.Unlock()
		s.handleAPIError(ctx, err)
		return errors.Wrapf(err, "send message to conversation %s", req.ConversationID)
	}
	return nil
}

// SendTypingIndicator reports the end user's typing state. Failures are
// logged but do not enter the failed-message path.
func (s *Session) SendTypingIndicator(ctx context.Context, started bool) error {
	s.mu.Lock()
	id := s.registry.Current()
	s.mu.Unlock()
	if err := s.api.SendTypingIndicator(ctx, id, started); err != nil {
		log.Warn().Err(err).Str("component", "session").Str("conv_id", id).Msg("sending typing indicator failed")
		return errors.Wrap(err, "send typing indicator")
	}
	return nil
}

// FailedMessage returns a copy of the retained send failure, nil when none.
func (s *Session) FailedMessage() *messaging.FailedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		return nil
	}
	cp := *s.failed
	return &cp
}

// submission is the discriminated input of the prechat path: the same form
// submission either replays a failed send or creates a new conversation.
type submission interface{ isSubmission() }

type retrySubmission struct {
	failed messaging.FailedMessage
}

type newConversationSubmission struct {
	attrs messaging.RoutingAttributes
}

func (retrySubmission) isSubmission()           {}
func (newConversationSubmission) isSubmission() {}

// PrechatSubmit consumes one prechat form submission. When a FailedMessage
// is retained, the submission supplies the missing routing attributes and
// the original send is replayed verbatim with IsNewMessagingSession set.
// Otherwise the same data routes a brand-new conversation. Both recovery
// flows deliberately share this single entry point.
func (s *Session) PrechatSubmit(ctx context.Context, data messaging.RoutingAttributes) error {
	var sub submission
	s.mu.Lock()
	if s.failed != nil {
		sub = retrySubmission{failed: *s.failed}
	} else {
		sub = newConversationSubmission{attrs: data}
	}
	s.mu.Unlock()

	switch sub := sub.(type) {
	case retrySubmission:
		req := api.SendMessageRequest{
			Text:                  sub.failed.Value,
			MessageID:             sub.failed.MessageID,
			InReplyToMessageID:    sub.failed.InReplyToMessageID,
			IsNewMessagingSession: true,
			RoutingAttributes:     data,
			Language:              sub.failed.Language,
		}
		if err := s.SendTextMessage(ctx, req); err != nil {
			return err
		}
		s.mu.Lock()
		s.failed = nil
		s.mu.Unlock()
		log.Info().Str("component", "session").Str("message_id", req.MessageID).Msg("resubmitted failed message")
		return nil
	case newConversationSubmission:
		return s.createConversation(ctx, sub.attrs)
	default:
		return errors.New("session: unknown submission kind")
	}
}

// Choice is a selectable option presented by the counterparty (e.g. a menu
// button).
type Choice struct {
	Title string
}

// ChoiceSelect sends a menu selection as a plain text message.
func (s *Session) ChoiceSelect(ctx context.Context, choice Choice) error {
	title := choice.Title
	if title == "" {
		title = "Selected option"
	}
	return s.SendTextMessage(ctx, api.SendMessageRequest{Text: title})
}
