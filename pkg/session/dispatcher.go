package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/channel"
	"github.com/go-go-golems/cricket/pkg/messaging"
)

// handlerTable builds the event-type dispatch table for one subscription.
// Handlers capture the session generation so mutations arriving after
// cleanup are dropped instead of resurrecting torn-down state.
func (s *Session) handlerTable(gen int) channel.HandlerTable {
	return channel.HandlerTable{
		messaging.EventConversationMessage: func(ev messaging.ServerEvent, cursor string) {
			if m, ok := ev.(*messaging.MessageEvent); ok {
				s.onMessage(gen, m, cursor)
			}
		},
		messaging.EventRoutingResult: func(ev messaging.ServerEvent, _ string) {
			if m, ok := ev.(*messaging.RoutingResultEvent); ok {
				s.onLedgerEvent(gen, m.ConvID, m.Entry)
			}
		},
		messaging.EventParticipantChanged: func(ev messaging.ServerEvent, _ string) {
			if m, ok := ev.(*messaging.ParticipantChangedEvent); ok {
				s.onLedgerEvent(gen, m.ConvID, m.Entry)
			}
		},
		messaging.EventTypingStarted: func(ev messaging.ServerEvent, _ string) {
			if m, ok := ev.(*messaging.TypingEvent); ok {
				s.onTyping(gen, m)
			}
		},
		messaging.EventTypingStopped: func(ev messaging.ServerEvent, _ string) {
			if m, ok := ev.(*messaging.TypingEvent); ok {
				s.onTyping(gen, m)
			}
		},
		messaging.EventDeliveryAck: func(ev messaging.ServerEvent, _ string) {
			if m, ok := ev.(*messaging.AckEvent); ok {
				s.onAck(gen, m)
			}
		},
		messaging.EventReadAck: func(ev messaging.ServerEvent, _ string) {
			if m, ok := ev.(*messaging.AckEvent); ok {
				s.onAck(gen, m)
			}
		},
		messaging.EventConversationClosed: func(ev messaging.ServerEvent, _ string) {
			if m, ok := ev.(*messaging.CloseEvent); ok {
				s.onConversationClosed(gen, m)
			}
		},
	}
}

// ingestAllowed applies the conversation-id filter. Callers must hold mu.
func (s *Session) ingestAllowed(convID string) bool {
	current := s.registry.Current()
	if convID == current {
		return true
	}
	log.Info().Str("component", "session").Str("conv_id", current).Str("event_conv_id", convID).Msg("event conversation id does not match, ignoring")
	return false
}

func (s *Session) onMessage(gen int, ev *messaging.MessageEvent, cursor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(gen) {
		return
	}
	// Message events advance the resume cursor, even ones filtered out
	// below: the stream position has moved regardless.
	s.creds.AdvanceCursor(context.Background(), cursor)

	if !s.ingestAllowed(ev.ConvID) {
		return
	}
	entry, err := messaging.NewEntry(ev.Entry)
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("dropping malformed message entry")
		return
	}
	if entry.IsEndUserMessage {
		entry.IsSent = true
	}
	s.ledger.Append(entry)
}

func (s *Session) onLedgerEvent(gen int, convID string, we messaging.WireEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(gen) || !s.ingestAllowed(convID) {
		return
	}
	entry, err := messaging.NewEntry(we)
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("dropping malformed entry")
		return
	}
	s.ledger.Append(entry)
}

func (s *Session) onTyping(gen int, ev *messaging.TypingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(gen) || !s.ingestAllowed(ev.ConvID) {
		return
	}
	subject := ev.Sender.Subject
	if st, ok := s.typing[subject]; ok {
		st.timer.Stop()
		delete(s.typing, subject)
	}
	if !ev.Started {
		return
	}
	// No stop event is guaranteed; expire the indicator after the TTL.
	st := &typingState{participant: ev.Sender}
	st.timer = time.AfterFunc(s.typingTTL, func() {
		s.expireTyping(gen, subject, st)
	})
	s.typing[subject] = st
}

// expireTyping removes one typing participant when its TTL timer fires. The
// identity check keeps a timer that was already firing when Stop was called
// from expiring a fresher entry for the same subject.
func (s *Session) expireTyping(gen int, subject string, st *typingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(gen) || s.typing[subject] != st {
		return
	}
	delete(s.typing, subject)
}

func (s *Session) onAck(gen int, ev *messaging.AckEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(gen) || !s.ingestAllowed(ev.ConvID) {
		return
	}
	if ev.Read {
		if ev.TimestampMs > s.lastReadMs {
			s.lastReadMs = ev.TimestampMs
		}
	} else if ev.TimestampMs > s.lastDeliveredMs {
		s.lastDeliveredMs = ev.TimestampMs
	}
}

func (s *Session) onConversationClosed(gen int, ev *messaging.CloseEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(gen) || !s.ingestAllowed(ev.ConvID) {
		return
	}
	log.Info().Str("component", "session").Str("conv_id", ev.ConvID).Str("reason", ev.Reason).Msg("conversation closed by the other side")
	s.registry.SetStatus(messaging.StatusClosed)
	s.clearTypingLocked()
}

// clearTypingLocked stops all typing timers. Callers must hold mu.
func (s *Session) clearTypingLocked() {
	for subject, st := range s.typing {
		st.timer.Stop()
		delete(s.typing, subject)
	}
}
