package record

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidRecord indicates a record missing the fields required to
// identify it
var ErrInvalidRecord = errors.New("record missing required identifying fields")

// Record is one exported email event. Records are immutable once
// ingested for a session; optional fields may be empty and are
// substituted with sentinels during feature extraction.
type Record struct {
	RecordID        string
	Sender          string
	Recipients      string
	RecipientDomain string
	Subject         string
	Attachments     string
	Justification   string
	Department      string
	BusinessUnit    string
	AccountType     string
	Leaver          bool
	PriorFlags      int
	Time            time.Time
}

// Validate checks that the record carries the fields needed to key
// scores and feedback
func (r *Record) Validate() error {
	if strings.TrimSpace(r.RecordID) == "" || strings.TrimSpace(r.Sender) == "" {
		return ErrInvalidRecord
	}
	return nil
}

// SenderDomain returns the domain part of the sender address, or an
// empty string when the sender is not a well-formed address
func (r *Record) SenderDomain() string {
	at := strings.LastIndex(r.Sender, "@")
	if at < 0 || at == len(r.Sender)-1 {
		return ""
	}
	return strings.ToLower(r.Sender[at+1:])
}

// HasAttachments reports whether the record carries any attachment
// descriptors
func (r *Record) HasAttachments() bool {
	return strings.TrimSpace(r.Attachments) != ""
}

// AttachmentNames splits the attachment descriptor field into
// individual names
func (r *Record) AttachmentNames() []string {
	if !r.HasAttachments() {
		return nil
	}

	parts := strings.Split(r.Attachments, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			names = append(names, p)
		}
	}
	return names
}

// ParseLeaver interprets the leaver column values used in exported logs
func ParseLeaver(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return true
	}
	return false
}
