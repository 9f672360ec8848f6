// Package api defines the messaging backend client the session controller
// talks to, and an HTTP implementation of it.
package api

import (
	"context"

	"github.com/go-go-golems/cricket/pkg/messaging"
)

// SendMessageRequest carries everything one text message send needs,
// including the fields replayed verbatim on resubmission.
type SendMessageRequest struct {
	ConversationID        string
	Text                  string
	MessageID             string
	InReplyToMessageID    string
	IsNewMessagingSession bool
	RoutingAttributes     messaging.RoutingAttributes
	Language              string
}

// Client is the auth/conversation API collaborator. Implementations return
// *Error for failures that carry an HTTP-equivalent status.
type Client interface {
	// GetUnauthenticatedAccessToken fetches a fresh credential for a brand
	// new session.
	GetUnauthenticatedAccessToken(ctx context.Context) (*messaging.TokenResponse, error)
	// GetContinuityJWT exchanges the stored credential for one that resumes
	// a prior session.
	GetContinuityJWT(ctx context.Context) (*messaging.TokenResponse, error)
	CreateConversation(ctx context.Context, conversationID string, attrs messaging.RoutingAttributes) error
	ListConversations(ctx context.Context) (*messaging.ConversationListResponse, error)
	// ListConversationEntries returns entries newest-first.
	ListConversationEntries(ctx context.Context, conversationID string) ([]messaging.WireEntry, error)
	SendTextMessage(ctx context.Context, req SendMessageRequest) error
	SendTypingIndicator(ctx context.Context, conversationID string, started bool) error
	CloseConversation(ctx context.Context, conversationID string) error
}
