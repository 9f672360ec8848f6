package session

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/api"
	"github.com/go-go-golems/cricket/pkg/messaging"
)

// ErrCredentialExists signals a programming error: fetching an
// unauthenticated credential while one is already held would silently
// overwrite a live session.
var ErrCredentialExists = errors.New("session: unauthenticated token fetch attempted while a credential exists")

// ErrConversationOpen guards against creating a conversation while one is
// currently open.
var ErrConversationOpen = errors.New("session: cannot create a conversation while one is open")

// Start runs the bootstrap protocol once per mount. resume selects between
// the new-conversation and resume protocols; hosts derive it from
// HasPersistedCredential. Both protocols converge on the event channel
// subscription; a conversation without a live event channel is not usable,
// so subscription failure hides the UI and fails the start.
func (s *Session) Start(ctx context.Context, resume bool) error {
	if resume {
		resumed, err := s.startExisting(ctx)
		if err != nil {
			return err
		}
		if !resumed {
			// Nothing to resume; cleanup already ran and the UI is hidden.
			return nil
		}
	} else {
		if err := s.startNew(ctx); err != nil {
			return err
		}
	}

	gen := s.currentGen()
	if err := s.channel.Subscribe(ctx, s.handlerTable(gen)); err != nil {
		log.Error().Err(err).Str("component", "session").Msg("event channel subscription failed")
		s.showWindow(false)
		return errors.Wrap(err, "subscribe to event channel")
	}
	log.Info().Str("component", "session").Str("conv_id", s.ConversationID()).Msg("subscribed to event channel")
	s.signalUIReady()
	return nil
}

// startNew runs the new-conversation protocol: unauthenticated token fetch,
// then optimistic conversation creation. The token fetch is never retried;
// failure is terminal for this attempt.
func (s *Session) startNew(ctx context.Context) error {
	s.mu.Lock()
	exists := !s.creds.Credential().IsZero()
	attrs := s.routingAttributes
	s.mu.Unlock()
	if exists {
		log.Warn().Str("component", "session").Msg("credential already present, refusing unauthenticated token fetch")
		return ErrCredentialExists
	}

	resp, err := s.api.GetUnauthenticatedAccessToken(ctx)
	if err != nil {
		log.Error().Err(err).Str("component", "session").Msg("unauthenticated token fetch failed")
		s.failSession(ctx)
		return errors.Wrap(err, "fetch unauthenticated access token")
	}
	s.storeTokenResponse(ctx, resp, true)

	return s.createConversation(ctx, attrs)
}

// startExisting runs the resume protocol. Returns resumed=false with a nil
// error when there is nothing to resume.
func (s *Session) startExisting(ctx context.Context) (bool, error) {
	s.mu.Lock()
	restored, err := s.creds.Restore(ctx)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	if !restored {
		return false, errors.New("session: no stored credential to resume from")
	}

	resp, err := s.api.GetContinuityJWT(ctx)
	if err != nil {
		log.Error().Err(err).Str("component", "session").Msg("continuity token fetch failed")
		s.handleAPIError(ctx, err)
		return false, errors.Wrap(err, "fetch continuity access token")
	}
	s.storeTokenResponse(ctx, resp, false)

	list, err := s.api.ListConversations(ctx)
	if err != nil {
		log.Error().Err(err).Str("component", "session").Msg("listing conversations failed")
		s.handleAPIError(ctx, err)
		return false, errors.Wrap(err, "list conversations")
	}
	if list == nil || list.OpenConversationsFound == 0 || len(list.Conversations) == 0 {
		log.Info().Str("component", "session").Msg("no open conversations to resume")
		s.Cleanup(ctx)
		s.showWindow(false)
		return false, nil
	}

	open := append([]messaging.ConversationInfo(nil), list.Conversations...)
	if len(open) > 1 {
		log.Warn().Int("count", len(open)).Str("component", "session").Msg("expected one open conversation, picking the one with the latest start timestamp")
		sort.Slice(open, func(i, j int) bool {
			return open[i].StartTimestampMs > open[j].StartTimestampMs
		})
	}
	adopted := open[0].ConversationID

	s.mu.Lock()
	changed, err := s.registry.Adopt(ctx, adopted)
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("failed to persist conversation id")
	}
	if changed {
		s.ledger.Clear()
	}
	s.registry.SetStatus(messaging.StatusOpened)
	s.mu.Unlock()
	s.showWindow(true)
	log.Info().Str("component", "session").Str("conv_id", adopted).Msg("resumed conversation")

	if err := s.loadHistory(ctx, adopted); err != nil {
		if api.IsAuthError(err) {
			log.Error().Err(err).Str("component", "session").Str("conv_id", adopted).Msg("loading conversation entries failed")
			s.handleAPIError(ctx, err)
			return false, err
		}
		// The conversation is usable without its backlog; keep going to the
		// event subscription.
		log.Warn().Err(err).Str("component", "session").Str("conv_id", adopted).Msg("loading conversation entries failed, continuing without history")
	}
	return true, nil
}

// createConversation mints a conversation identifier before the create call
// succeeds (optimistic) and transitions to OPENED on success.
func (s *Session) createConversation(ctx context.Context, attrs messaging.RoutingAttributes) error {
	s.mu.Lock()
	if s.registry.Status() == messaging.StatusOpened {
		s.mu.Unlock()
		log.Warn().Str("component", "session").Msg("conversation already open, refusing to create another")
		return ErrConversationOpen
	}
	id := newConversationID()
	changed, err := s.registry.Adopt(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("failed to persist conversation id")
	}
	if changed {
		s.ledger.Clear()
	}
	s.mu.Unlock()

	if err := s.api.CreateConversation(ctx, id, attrs); err != nil {
		log.Error().Err(err).Str("component", "session").Str("conv_id", id).Msg("conversation creation failed")
		s.failSession(ctx)
		return errors.Wrapf(err, "create conversation %s", id)
	}

	s.mu.Lock()
	s.registry.SetStatus(messaging.StatusOpened)
	s.mu.Unlock()
	s.showWindow(true)
	log.Info().Str("component", "session").Str("conv_id", id).Msg("created conversation")
	return nil
}

// loadHistory appends the conversation's entries in server chronological
// order. The entries API returns newest-first; live events may already have
// landed in the ledger, so history is appended, never overwritten.
func (s *Session) loadHistory(ctx context.Context, convID string) error {
	wireEntries, err := s.api.ListConversationEntries(ctx, convID)
	if err != nil {
		return errors.Wrap(err, "list conversation entries")
	}
	for i := len(wireEntries) - 1; i >= 0; i-- {
		we := wireEntries[i]
		entry, err := messaging.NewEntry(we)
		if err != nil {
			log.Info().Err(err).Str("component", "session").Msg("skipping history entry")
			continue
		}
		s.mu.Lock()
		if entry.ConversationID != s.registry.Current() {
			s.mu.Unlock()
			log.Info().Str("component", "session").Str("entry_conv_id", entry.ConversationID).Str("conv_id", convID).Msg("ignoring history entry for another conversation")
			continue
		}
		s.ledger.Append(entry)
		s.mu.Unlock()
	}
	log.Info().Str("component", "session").Str("conv_id", convID).Int("entries", len(wireEntries)).Msg("loaded conversation history")
	return nil
}

// storeTokenResponse persists the token, cursor and embedded deployment
// configuration from a token response.
func (s *Session) storeTokenResponse(ctx context.Context, resp *messaging.TokenResponse, withConfig bool) {
	if resp == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.creds.SetToken(ctx, resp.AccessToken); err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("failed to persist token")
	}
	s.creds.AdvanceCursor(ctx, resp.LastEventID)
	if withConfig && resp.Context != nil {
		s.creds.SetDeploymentConfiguration(resp.Context.Configuration.EmbeddedServiceConfig)
	}
}

// failSession is the rollback for terminal bootstrap failures: cleanup and
// hide the session UI.
func (s *Session) failSession(ctx context.Context) {
	s.Cleanup(ctx)
	s.showWindow(false)
}

// handleAPIError maps authorization failures to full cleanup plus UI hide.
// Other transport errors are left to the caller's propagation.
func (s *Session) handleAPIError(ctx context.Context, err error) {
	if api.IsAuthError(err) {
		log.Warn().Int("status", api.StatusOf(err)).Str("component", "session").Msg("credential rejected, tearing down session")
		s.failSession(ctx)
	}
}
