package session

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/messaging"
	"github.com/go-go-golems/cricket/pkg/storage"
)

// Cleanup tears the session down: it closes the event subscription
// (best-effort), clears durable credential and conversation keys, drops the
// in-memory credential and marks the conversation CLOSED. It bumps the
// session generation first so in-flight event handlers and timers become
// no-ops. Cleanup is idempotent.
func (s *Session) Cleanup(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	s.clearTypingLocked()
	s.registry.SetStatus(messaging.StatusClosed)
	s.creds.Clear()
	s.mu.Unlock()

	if err := s.channel.Close(); err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("closing event channel failed")
	} else {
		log.Info().Str("component", "session").Msg("closed event channel")
	}

	for _, key := range []string{storage.KeyJWT, storage.KeyConversationID, storage.KeyLastEventID} {
		if err := s.store.Remove(ctx, key); err != nil {
			log.Warn().Err(err).Str("component", "session").Str("key", key).Msg("failed to clear storage key")
		}
	}
}

// EndConversation closes the current conversation on the server and runs
// cleanup. Outside of an open conversation it does nothing. The close call
// failing does not skip cleanup.
func (s *Session) EndConversation(ctx context.Context) error {
	s.mu.Lock()
	status := s.registry.Status()
	id := s.registry.Current()
	s.mu.Unlock()
	if status != messaging.StatusOpened {
		return nil
	}

	err := s.api.CloseConversation(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("component", "session").Str("conv_id", id).Msg("closing conversation failed")
	} else {
		log.Info().Str("component", "session").Str("conv_id", id).Msg("closed conversation")
	}
	s.Cleanup(ctx)
	return errors.Wrapf(err, "close conversation %s", id)
}

// CloseWindow hides the session UI, permitted only once the conversation is
// closed or was never started.
func (s *Session) CloseWindow() {
	s.mu.Lock()
	status := s.registry.Status()
	s.mu.Unlock()
	if status == messaging.StatusClosed || status == messaging.StatusNotStarted {
		s.showWindow(false)
	}
}
