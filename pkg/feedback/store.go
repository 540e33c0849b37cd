package feedback

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Decision is an analyst's verdict on a flagged record
type Decision string

const (
	// Escalated marks the record a confirmed concern
	Escalated Decision = "Escalated"
	// Cleared marks the record benign
	Cleared Decision = "Cleared"
)

// AllSessions selects every session when passed as the session
// argument of Count or Entries
const AllSessions = ""

// ErrInvalidDecision indicates a decision value outside
// {Escalated, Cleared}
var ErrInvalidDecision = errors.New("decision must be Escalated or Cleared")

// ErrMissingKey indicates an entry without session or record identity
var ErrMissingKey = errors.New("feedback entry requires session and record ids")

// ParseDecision maps a decision string to its canonical form
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "escalated", "escalate":
		return Escalated, nil
	case "cleared", "clear":
		return Cleared, nil
	}
	return "", ErrInvalidDecision
}

// Entry is one recorded analyst decision. Entries are never mutated:
// a later decision on the same (session, record) pair replaces the
// earlier one, so at most one entry is active per pair.
type Entry struct {
	SessionID string    `json:"session_id"`
	RecordID  string    `json:"record_id"`
	Sender    string    `json:"sender,omitempty"`
	Decision  Decision  `json:"decision"`
	BaseScore float64   `json:"base_score"`
	Features  []float64 `json:"features"`
	DecidedAt time.Time `json:"decided_at"`
}

// Label returns the training label for the entry: 1 for Escalated,
// 0 for Cleared
func (e Entry) Label() float64 {
	if e.Decision == Escalated {
		return 1
	}
	return 0
}

// Validate checks the entry's identity and decision value
func (e Entry) Validate() error {
	if e.SessionID == "" || e.RecordID == "" {
		return ErrMissingKey
	}
	if e.Decision != Escalated && e.Decision != Cleared {
		return ErrInvalidDecision
	}
	return nil
}

// Store persists analyst decisions keyed by (session, record).
// Implementations must provide upsert semantics: recording a second
// decision for an existing pair replaces the first instead of
// appending a duplicate.
type Store interface {
	// RecordDecision inserts or replaces the entry for its
	// (session, record) pair
	RecordDecision(ctx context.Context, entry Entry) error

	// Count returns the number of active entries in the session,
	// or across all sessions for AllSessions
	Count(ctx context.Context, sessionID string) (int, error)

	// Entries returns the active entries of the session, or of all
	// sessions for AllSessions
	Entries(ctx context.Context, sessionID string) ([]Entry, error)

	// Close releases backend resources
	Close() error
}
