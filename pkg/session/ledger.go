package session

import "github.com/go-go-golems/cricket/pkg/messaging"

// Ledger is the append-only, order-preserving collection of conversation
// entries. Insertion order is arrival order: server chronological order for
// the resume history load, real-time order for live events. It performs no
// deduplication by server identifier. Owned and guarded by the Session.
type Ledger struct {
	entries []messaging.Entry
}

func (l *Ledger) Append(e messaging.Entry) {
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the ledger contents.
func (l *Ledger) Entries() []messaging.Entry {
	out := make([]messaging.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Ledger) Len() int { return len(l.entries) }

// Clear discards all entries. Used when the current conversation identifier
// changes.
func (l *Ledger) Clear() { l.entries = nil }
