package feedback

import (
	"errors"
	"testing"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		input   string
		want    Decision
		wantErr bool
	}{
		{"Escalated", Escalated, false},
		{"escalate", Escalated, false},
		{"ESCALATED", Escalated, false},
		{" cleared ", Cleared, false},
		{"clear", Cleared, false},
		{"Cleared", Cleared, false},
		{"maybe", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseDecision(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidDecision) {
				t.Errorf("ParseDecision(%q): expected ErrInvalidDecision, got %v", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDecision(%q): unexpected error %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseDecision(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEntryLabel(t *testing.T) {
	escalated := Entry{Decision: Escalated}
	if escalated.Label() != 1 {
		t.Errorf("escalated label = %f, want 1", escalated.Label())
	}

	cleared := Entry{Decision: Cleared}
	if cleared.Label() != 0 {
		t.Errorf("cleared label = %f, want 0", cleared.Label())
	}
}

func TestEntryValidate(t *testing.T) {
	tests := []struct {
		name    string
		entry   Entry
		wantErr error
	}{
		{
			name:  "valid",
			entry: Entry{SessionID: "s1", RecordID: "r1", Decision: Escalated},
		},
		{
			name:    "missing session",
			entry:   Entry{RecordID: "r1", Decision: Escalated},
			wantErr: ErrMissingKey,
		},
		{
			name:    "missing record",
			entry:   Entry{SessionID: "s1", Decision: Cleared},
			wantErr: ErrMissingKey,
		},
		{
			name:    "invalid decision",
			entry:   Entry{SessionID: "s1", RecordID: "r1", Decision: "Deferred"},
			wantErr: ErrInvalidDecision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
