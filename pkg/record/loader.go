package record

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// CSV column layout for exported email logs. The header row is
// required and columns are matched by name, not position.
var requiredColumns = []string{"record_id", "sender"}

// timeLayouts are tried in order when parsing the time column
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// LoadCSV reads exported email log rows from a CSV file
func LoadCSV(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %v", err)
	}
	defer file.Close()

	return ReadCSV(file)
}

// ReadCSV parses exported email log rows from a reader. Rows missing
// required identifying fields are rejected; optional columns may be
// absent entirely.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %v", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []Record
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV line %d: %v", line, err)
		}

		rec := Record{
			RecordID:        field(row, "record_id"),
			Sender:          field(row, "sender"),
			Recipients:      field(row, "recipients"),
			RecipientDomain: field(row, "recipient_domain"),
			Subject:         field(row, "subject"),
			Attachments:     field(row, "attachments"),
			Justification:   field(row, "justification"),
			Department:      field(row, "department"),
			BusinessUnit:    field(row, "bunit"),
			AccountType:     field(row, "account_type"),
			Leaver:          ParseLeaver(field(row, "leaver")),
		}

		if flags := field(row, "prior_flags"); flags != "" {
			n, err := strconv.Atoi(flags)
			if err == nil && n > 0 {
				rec.PriorFlags = n
			}
		}

		if ts := field(row, "time"); ts != "" {
			rec.Time = parseTime(ts)
		}

		if rec.RecipientDomain == "" {
			rec.RecipientDomain = domainOf(rec.Recipients)
		}

		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %v", line, err)
		}

		records = append(records, rec)
	}

	return records, nil
}

// parseTime tries the known export formats, returning the zero time
// when none match. A zero time is the missing-field sentinel for
// temporal features.
func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// domainOf extracts the domain of the first recipient address
func domainOf(recipients string) string {
	first := recipients
	if i := strings.IndexAny(recipients, ",;"); i >= 0 {
		first = recipients[:i]
	}
	first = strings.TrimSpace(first)
	at := strings.LastIndex(first, "@")
	if at < 0 || at == len(first)-1 {
		return ""
	}
	return strings.ToLower(first[at+1:])
}
