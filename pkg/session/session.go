// Package session implements the conversation session controller: it
// reconciles a short-lived credential, a new-or-resumed conversation and a
// server-push event channel into one linearized conversation view, with
// idempotent cleanup on every exit path.
package session

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/cricket/pkg/api"
	"github.com/go-go-golems/cricket/pkg/channel"
	"github.com/go-go-golems/cricket/pkg/messaging"
	"github.com/go-go-golems/cricket/pkg/storage"
)

const defaultTypingTTL = 10 * time.Second

// Callbacks are the UI-visible effects the controller raises. Both hooks are
// optional.
type Callbacks struct {
	// ShowWindow reveals or hides the session UI.
	ShowWindow func(visible bool)
	// UIReady fires exactly once per session, after the event subscription
	// is established.
	UIReady func(ready bool)
}

// Options configure a Session.
type Options struct {
	API     api.Client
	Channel channel.Channel
	// Storage is the durable key-value store, scoped to the application
	// namespace. A nil store makes the session unavailable.
	Storage   storage.Store
	Callbacks Callbacks
	// RoutingAttributes direct a brand-new conversation to the right
	// handler.
	RoutingAttributes messaging.RoutingAttributes
	// Language of outbound messages. Defaults to "en".
	Language string
	// TypingIndicatorTTL expires a typing participant when no stop event
	// arrives. Defaults to 10s.
	TypingIndicatorTTL time.Duration
}

// Snapshot is the read-only state handed to the presentation layer.
type Snapshot struct {
	Entries             []messaging.Entry
	Status              messaging.ConversationStatus
	TypingParticipants  map[string]messaging.Participant
	ShowTypingIndicator bool
	LastDeliveredMs     int64
	LastReadMs          int64
}

type typingState struct {
	participant messaging.Participant
	timer       *time.Timer
}

// Session is the controller for one logical conversation. All state is
// guarded by mu; asynchronous mutators (event handlers, typing timers)
// capture the generation at registration time and re-check it under the
// lock, so nothing mutates UI-visible state after cleanup has run.
type Session struct {
	mu sync.Mutex

	api     api.Client
	channel channel.Channel
	store   storage.Store
	cb      Callbacks

	routingAttributes messaging.RoutingAttributes
	language          string
	typingTTL         time.Duration

	creds    CredentialStore
	registry ConversationRegistry
	ledger   Ledger

	failed *messaging.FailedMessage
	typing map[string]*typingState

	lastDeliveredMs int64
	lastReadMs      int64

	gen          int
	uiReadyFired bool
}

// New builds a Session. The storage collaborator is required: without it
// there is nothing to persist a session into.
func New(opts Options) (*Session, error) {
	if opts.API == nil {
		return nil, errors.New("session: api client is required")
	}
	if opts.Channel == nil {
		return nil, errors.New("session: event channel is required")
	}
	if opts.Storage == nil {
		return nil, errors.New("session: durable storage is unavailable")
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.TypingIndicatorTTL <= 0 {
		opts.TypingIndicatorTTL = defaultTypingTTL
	}
	return &Session{
		api:               opts.API,
		channel:           opts.Channel,
		store:             opts.Storage,
		cb:                opts.Callbacks,
		routingAttributes: opts.RoutingAttributes,
		language:          opts.Language,
		typingTTL:         opts.TypingIndicatorTTL,
		creds:             CredentialStore{store: opts.Storage},
		registry:          ConversationRegistry{store: opts.Storage},
		typing:            map[string]*typingState{},
	}, nil
}

// Token returns the current bearer token. Wire it into the API client and
// event channel as their token provider.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.Credential().Token
}

// EventCursor returns the persisted stream cursor for resume.
func (s *Session) EventCursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.Credential().EventCursor
}

// DeploymentConfiguration returns the configuration payload delivered with
// the unauthenticated token, nil when none was received.
func (s *Session) DeploymentConfiguration() messaging.DeploymentConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.deployment
}

// ConversationID returns the current conversation identifier.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Current()
}

// Status returns the current conversation status.
func (s *Session) Status() messaging.ConversationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Status()
}

// Snapshot returns the read-only state for the presentation layer.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	typing := make(map[string]messaging.Participant, len(s.typing))
	for subject, st := range s.typing {
		typing[subject] = st.participant
	}
	return Snapshot{
		Entries:             s.ledger.Entries(),
		Status:              s.registry.Status(),
		TypingParticipants:  typing,
		ShowTypingIndicator: len(typing) > 0,
		LastDeliveredMs:     s.lastDeliveredMs,
		LastReadMs:          s.lastReadMs,
	}
}

func (s *Session) currentGen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// stale reports whether gen belongs to a torn-down session. Callers must
// hold mu.
func (s *Session) stale(gen int) bool { return gen != s.gen }

func (s *Session) showWindow(visible bool) {
	if s.cb.ShowWindow != nil {
		s.cb.ShowWindow(visible)
	}
}

func (s *Session) signalUIReady() {
	s.mu.Lock()
	if s.uiReadyFired {
		s.mu.Unlock()
		return
	}
	s.uiReadyFired = true
	s.mu.Unlock()
	if s.cb.UIReady != nil {
		s.cb.UIReady(true)
	}
}
