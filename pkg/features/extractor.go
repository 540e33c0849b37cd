package features

import (
	"math"
	"strings"

	"github.com/mailguard/mailguard/pkg/config"
	"github.com/mailguard/mailguard/pkg/record"
)

// Feature group dimensions. The extractor always emits vectors of
// exactly Dim values; missing record fields contribute their sentinel
// (zero) instead of shrinking the vector.
const (
	attachmentDim = 10
	senderDim     = 6
	contentDim    = 6
	temporalDim   = 5
	contextDim    = 7

	// Dim is the fixed length of every extracted feature vector
	Dim = attachmentDim + senderDim + contentDim + temporalDim + contextDim
)

// Vector is an ordered, fixed-length numeric encoding of a record
type Vector []float64

// Extractor converts email records into feature vectors using the
// static lookup tables from configuration. It holds no mutable state:
// the same record always produces the same vector.
type Extractor struct {
	cfg config.FeaturesConfig
}

// NewExtractor creates a feature extractor with the given lookup tables
func NewExtractor(cfg config.FeaturesConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract produces the feature vector for a record
func (e *Extractor) Extract(rec record.Record) Vector {
	v := make(Vector, 0, Dim)
	v = append(v, e.attachmentFeatures(rec)...)
	v = append(v, e.senderFeatures(rec)...)
	v = append(v, e.contentFeatures(rec)...)
	v = append(v, e.temporalFeatures(rec)...)
	v = append(v, e.contextFeatures(rec)...)
	return v
}

// ExtractAll extracts vectors for a batch of records, preserving order
func (e *Extractor) ExtractAll(records []record.Record) []Vector {
	vectors := make([]Vector, len(records))
	for i, rec := range records {
		vectors[i] = e.Extract(rec)
	}
	return vectors
}

func (e *Extractor) attachmentFeatures(rec record.Record) []float64 {
	if !rec.HasAttachments() {
		return make([]float64, attachmentDim)
	}

	names := rec.AttachmentNames()
	lower := strings.ToLower(rec.Attachments)

	features := make([]float64, 0, attachmentDim)

	// Extension risk categories
	features = append(features, countHits(lower, e.cfg.HighRiskExtensions))
	features = append(features, countHits(lower, e.cfg.MediumRiskExtensions))

	// Suspicious name patterns
	features = append(features, boolFeature(containsAny(lower, e.cfg.SuspiciousPatterns)))

	// Attachment count
	features = append(features, float64(len(names)))

	// Filename entropy picks up machine-generated names
	features = append(features, nameEntropy(lower))

	// Archive and password-protection indicators
	features = append(features, boolFeature(containsAny(lower, []string{"zip", "rar", "7z", "tar"})))
	features = append(features, boolFeature(containsAny(lower, []string{"password", "protected", "encrypted"})))

	// Executable disguised as document
	disguised := containsAny(lower, e.cfg.HighRiskExtensions) &&
		containsAny(lower, []string{"doc", "pdf", "txt"})
	features = append(features, boolFeature(disguised))

	// Extra extensions beyond the first dot
	extra := 0
	for _, name := range names {
		if dots := strings.Count(name, "."); dots > 1 {
			extra += dots - 1
		}
	}
	features = append(features, float64(extra))

	// Non-ASCII characters in names
	nonASCII := false
	for _, c := range rec.Attachments {
		if c > 127 {
			nonASCII = true
			break
		}
	}
	features = append(features, boolFeature(nonASCII))

	return features
}

func (e *Extractor) senderFeatures(rec record.Record) []float64 {
	if rec.Sender == "" {
		return make([]float64, senderDim)
	}

	sender := strings.ToLower(rec.Sender)
	domain := rec.SenderDomain()

	features := make([]float64, 0, senderDim)

	features = append(features, boolFeature(matchesDomain(domain, e.cfg.PublicDomains)))
	features = append(features, boolFeature(containsAny(domain, e.cfg.CorporateMarkers)))

	hasDigit := strings.IndexFunc(sender, func(c rune) bool { return c >= '0' && c <= '9' }) >= 0
	features = append(features, boolFeature(hasDigit))

	features = append(features, float64(strings.Count(sender, ".")))
	features = append(features, boolFeature(strings.ContainsAny(sender, "_-")))
	features = append(features, float64(len(sender)))

	return features
}

func (e *Extractor) contentFeatures(rec record.Record) []float64 {
	combined := strings.ToLower(rec.Subject + " " + rec.Attachments)

	features := make([]float64, 0, contentDim)

	features = append(features, countHits(combined, e.cfg.Keywords.Urgency))
	features = append(features, countHits(combined, e.cfg.Keywords.Financial))
	features = append(features, countHits(combined, e.cfg.Keywords.Personal))
	features = append(features, countHits(combined, e.cfg.Keywords.Authority))

	features = append(features, float64(len(rec.Subject)))

	// Caps ratio of the subject
	if rec.Subject != "" {
		upper := 0
		for _, c := range rec.Subject {
			if c >= 'A' && c <= 'Z' {
				upper++
			}
		}
		features = append(features, float64(upper)/float64(len(rec.Subject)))
	} else {
		features = append(features, 0)
	}

	return features
}

func (e *Extractor) temporalFeatures(rec record.Record) []float64 {
	if rec.Time.IsZero() {
		return make([]float64, temporalDim)
	}

	hour := rec.Time.Hour()
	weekday := rec.Time.Weekday()

	features := make([]float64, 0, temporalDim)

	weekend := weekday == 0 || weekday == 6
	features = append(features, boolFeature(weekend))
	features = append(features, boolFeature(hour >= 22 || hour <= 5))
	features = append(features, boolFeature(hour >= 6 && hour <= 8))
	features = append(features, boolFeature(hour >= 9 && hour <= 17))
	features = append(features, float64(hour)/23.0)

	return features
}

func (e *Extractor) contextFeatures(rec record.Record) []float64 {
	features := make([]float64, 0, contextDim)

	features = append(features, boolFeature(rec.Leaver))
	features = append(features, boolFeature(containsAny(strings.ToLower(rec.Department), e.cfg.HighRiskDepartments)))
	features = append(features, boolFeature(rec.BusinessUnit != ""))
	features = append(features, boolFeature(strings.Contains(strings.ToLower(rec.AccountType), "admin")))
	features = append(features, boolFeature(rec.Justification != ""))
	features = append(features, float64(len(rec.Justification)))
	features = append(features, float64(rec.PriorFlags))

	return features
}

// countHits counts how many needles appear in text
func countHits(text string, needles []string) float64 {
	hits := 0
	for _, needle := range needles {
		if needle != "" && strings.Contains(text, strings.ToLower(needle)) {
			hits++
		}
	}
	return float64(hits)
}

// containsAny reports whether any needle appears in text
func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(text, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}

// matchesDomain reports whether the domain equals or is a subdomain
// of any entry
func matchesDomain(domain string, entries []string) bool {
	for _, entry := range entries {
		entry = strings.ToLower(entry)
		if domain == entry || strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}

// nameEntropy is the Shannon entropy of the attachment name characters
func nameEntropy(name string) float64 {
	if name == "" {
		return 0
	}

	counts := make(map[rune]int)
	total := 0
	for _, c := range name {
		counts[c]++
		total++
	}

	entropy := 0.0
	for _, count := range counts {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
