package session

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/messaging"
	"github.com/go-go-golems/cricket/pkg/storage"
)

// CredentialStore holds the in-process credential and event cursor and
// mirrors them to durable storage. It is owned by the Session and guarded by
// the session mutex; it does no locking of its own.
type CredentialStore struct {
	store      storage.Store
	cred       messaging.Credential
	deployment messaging.DeploymentConfiguration
}

// Credential returns the currently held credential.
func (c *CredentialStore) Credential() messaging.Credential { return c.cred }

// SetToken stores the bearer token in memory and in durable storage.
func (c *CredentialStore) SetToken(ctx context.Context, token string) error {
	c.cred.Token = token
	return errors.Wrap(c.store.Set(ctx, storage.KeyJWT, token), "persist token")
}

// AdvanceCursor moves the event cursor forward. Cursor semantics are
// append-only: a cursor that would move backward is ignored. Cursors are
// opaque, but when both compare as integers the ordering is honored.
func (c *CredentialStore) AdvanceCursor(ctx context.Context, cursor string) {
	if cursor == "" {
		return
	}
	if prev := c.cred.EventCursor; prev != "" {
		prevN, errPrev := strconv.ParseInt(prev, 10, 64)
		nextN, errNext := strconv.ParseInt(cursor, 10, 64)
		if errPrev == nil && errNext == nil && nextN < prevN {
			log.Debug().Str("component", "session").Str("cursor", cursor).Str("current", prev).Msg("ignoring backward cursor")
			return
		}
	}
	c.cred.EventCursor = cursor
	if err := c.store.Set(ctx, storage.KeyLastEventID, cursor); err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("failed to persist event cursor")
	}
}

// SetDeploymentConfiguration records the configuration payload embedded in a
// token response.
func (c *CredentialStore) SetDeploymentConfiguration(cfg messaging.DeploymentConfiguration) {
	c.deployment = cfg
}

// Restore loads a persisted credential and cursor into memory. ok is false
// when no credential is stored.
func (c *CredentialStore) Restore(ctx context.Context) (bool, error) {
	token, ok, err := c.store.Get(ctx, storage.KeyJWT)
	if err != nil {
		return false, errors.Wrap(err, "read stored token")
	}
	if !ok || token == "" {
		return false, nil
	}
	c.cred.Token = token
	if cursor, ok, err := c.store.Get(ctx, storage.KeyLastEventID); err == nil && ok {
		c.cred.EventCursor = cursor
	}
	return true, nil
}

// Clear drops the in-memory credential and deployment configuration.
// Durable keys are cleared separately by cleanup.
func (c *CredentialStore) Clear() {
	c.cred = messaging.Credential{}
	c.deployment = nil
}

// ConversationRegistry tracks the current conversation identifier and its
// lifecycle status, persisting the identifier across page reloads. Owned and
// guarded by the Session.
type ConversationRegistry struct {
	store  storage.Store
	id     string
	status messaging.ConversationStatus
}

// Current returns the current conversation identifier, "" when none.
func (r *ConversationRegistry) Current() string { return r.id }

// Status returns the current conversation status.
func (r *ConversationRegistry) Status() messaging.ConversationStatus {
	if r.status == "" {
		return messaging.StatusNotStarted
	}
	return r.status
}

// Adopt makes id the current conversation and persists it. Returns true
// when the identifier changed, which obliges the caller to discard the
// previous conversation's ledger entries.
func (r *ConversationRegistry) Adopt(ctx context.Context, id string) (bool, error) {
	changed := r.id != "" && r.id != id
	r.id = id
	if err := r.store.Set(ctx, storage.KeyConversationID, id); err != nil {
		return changed, errors.Wrap(err, "persist conversation id")
	}
	return changed, nil
}

// SetStatus applies a lifecycle transition.
func (r *ConversationRegistry) SetStatus(status messaging.ConversationStatus) {
	r.status = status
}

// Clear drops the in-memory identifier and marks the conversation closed.
func (r *ConversationRegistry) Clear() {
	r.id = ""
	r.status = messaging.StatusClosed
}

// HasPersistedCredential reports whether durable storage holds a credential,
// the hint hosts use to decide between the new and resume protocols.
func HasPersistedCredential(ctx context.Context, store storage.Store) (bool, error) {
	if store == nil {
		return false, nil
	}
	token, ok, err := store.Get(ctx, storage.KeyJWT)
	if err != nil {
		return false, err
	}
	return ok && token != "", nil
}
