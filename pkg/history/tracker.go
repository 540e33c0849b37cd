package history

import (
	"strings"
	"sync"
	"time"
)

// Tracker keeps per-sender flag history across sessions. The prior
// flag count it accumulates feeds the historical-flag feature, so a
// sender escalated before scores higher on later appearances.
type Tracker struct {
	mu      sync.RWMutex
	senders map[string]*SenderHistory
}

// SenderHistory tracks one sender's record and flag counts
type SenderHistory struct {
	Sender         string
	TotalRecords   int
	FlaggedRecords int
	FirstSeen      time.Time
	LastSeen       time.Time
}

// NewTracker creates an empty sender history tracker
func NewTracker() *Tracker {
	return &Tracker{senders: make(map[string]*SenderHistory)}
}

// Observe notes that a sender appeared in an analyzed session
func (t *Tracker) Observe(sender string) {
	sender = strings.ToLower(strings.TrimSpace(sender))
	if sender == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	stats, ok := t.senders[sender]
	if !ok {
		stats = &SenderHistory{Sender: sender, FirstSeen: now}
		t.senders[sender] = stats
	}

	stats.TotalRecords++
	stats.LastSeen = now
}

// MarkFlagged notes an escalation decision against a sender
func (t *Tracker) MarkFlagged(sender string) {
	sender = strings.ToLower(strings.TrimSpace(sender))
	if sender == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	stats, ok := t.senders[sender]
	if !ok {
		stats = &SenderHistory{Sender: sender, FirstSeen: now}
		t.senders[sender] = stats
	}

	stats.FlaggedRecords++
	stats.LastSeen = now
}

// PriorFlags returns how many times a sender has been flagged before
func (t *Tracker) PriorFlags(sender string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats, ok := t.senders[strings.ToLower(strings.TrimSpace(sender))]
	if !ok {
		return 0
	}
	return stats.FlaggedRecords
}

// SenderStats returns a copy of one sender's history, or nil when the
// sender has never been seen
func (t *Tracker) SenderStats(sender string) *SenderHistory {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats, ok := t.senders[strings.ToLower(strings.TrimSpace(sender))]
	if !ok {
		return nil
	}

	statsCopy := *stats
	return &statsCopy
}

// FlaggedSenders returns how many tracked senders carry at least one
// prior flag
func (t *Tracker) FlaggedSenders() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	flagged := 0
	for _, stats := range t.senders {
		if stats.FlaggedRecords > 0 {
			flagged++
		}
	}
	return flagged
}

// Reset clears all tracked history
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.senders = make(map[string]*SenderHistory)
}
