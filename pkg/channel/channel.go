// Package channel defines the server-push event channel the session
// controller subscribes to, and two implementations: an in-process one for
// tests and local backends, and a websocket one for real deployments.
package channel

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/messaging"
)

// Handler consumes one decoded server event. lastEventID is the stream
// cursor attached to the frame, "" when the transport carries none.
type Handler func(ev messaging.ServerEvent, lastEventID string)

// HandlerTable maps event types to their handlers. The dispatcher logs and
// drops frames whose type has no handler.
type HandlerTable map[messaging.EventType]Handler

// Channel is one logical subscription to the event stream. At most one
// subscription may be active per channel; Subscribe returns
// ErrAlreadySubscribed otherwise. Close is best-effort and idempotent.
type Channel interface {
	Subscribe(ctx context.Context, table HandlerTable) error
	Close() error
}

var ErrAlreadySubscribed = errors.New("channel: already subscribed")

// Dispatch decodes a raw frame and routes it through the handler table.
// Handler panics are caught and logged; they never tear down the
// subscription. Unrecognized event types and undecodable payloads are logged
// and dropped.
func Dispatch(env messaging.Envelope, table HandlerTable) {
	ev, err := messaging.DecodeEvent(env)
	if err != nil {
		log.Warn().Err(err).Str("component", "channel").Str("event_type", string(env.Type)).Msg("dropping undecodable event")
		return
	}
	if _, unknown := ev.(*messaging.UnknownEvent); unknown {
		log.Info().Str("component", "channel").Str("event_type", string(env.Type)).Msg("unrecognized event type, ignoring")
		return
	}
	h, ok := table[ev.EventType()]
	if !ok {
		log.Debug().Str("component", "channel").Str("event_type", string(ev.EventType())).Msg("no handler for event type")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("component", "channel").Str("event_type", string(ev.EventType())).Msg("event handler panicked")
		}
	}()
	h(ev, env.LastEventID)
}
