package blend

import (
	"fmt"

	"github.com/mailguard/mailguard/pkg/config"
)

// Learned is the two-variant learned-score input to the blender:
// either absent (model not yet mature) or present with a probability.
type Learned struct {
	Score float64
	Valid bool
}

// Absent marks the learned score unavailable
func Absent() Learned {
	return Learned{}
}

// Present wraps an available learned score
func Present(score float64) Learned {
	return Learned{Score: score, Valid: true}
}

// BlendedScore is the final risk output for one record. It is a
// derived value: recomputable at any time from the cached base score,
// the current model and the decision count, without re-running
// training.
type BlendedScore struct {
	RecordID  string  `json:"record_id"`
	Base      float64 `json:"base_score"`
	Learned   Learned `json:"-"`
	Weight    float64 `json:"weight"`
	Final     float64 `json:"final_score"`
	RiskLevel string  `json:"risk_level"`
}

// Blender combines base anomaly scores with learned scores. The blend
// weight grows with the cumulative decision count along a piecewise
// linear curve, so scores shift from mostly-base to mostly-learned as
// analyst feedback accumulates.
type Blender struct {
	cfg        config.BlendConfig
	thresholds config.RiskThresholds
}

// NewBlender creates a blender with the given weight curve and risk
// thresholds
func NewBlender(cfg config.BlendConfig, thresholds config.RiskThresholds) *Blender {
	return &Blender{cfg: cfg, thresholds: thresholds}
}

// Weight returns the blend weight for a cumulative decision count.
// The curve is non-decreasing, starts at the floor, interpolates
// linearly between breakpoints and saturates at the last breakpoint
// (never above the ceiling).
func (b *Blender) Weight(decisions int) float64 {
	if decisions < 0 {
		decisions = 0
	}

	bps := b.cfg.Breakpoints
	if len(bps) == 0 {
		return b.cfg.Floor
	}

	if decisions <= bps[0].Decisions {
		return interpolate(0, b.cfg.Floor, bps[0].Decisions, bps[0].Weight, decisions)
	}

	for i := 1; i < len(bps); i++ {
		if decisions <= bps[i].Decisions {
			return interpolate(bps[i-1].Decisions, bps[i-1].Weight,
				bps[i].Decisions, bps[i].Weight, decisions)
		}
	}

	last := bps[len(bps)-1].Weight
	if last > b.cfg.Ceiling {
		return b.cfg.Ceiling
	}
	return last
}

// Blend combines a base score with the learned score (or its absence)
// at a given decision count. When the learned score is absent the
// final score is exactly the base score and the weight is reported at
// the floor.
func (b *Blender) Blend(recordID string, base float64, learned Learned, decisions int) BlendedScore {
	score := BlendedScore{
		RecordID: recordID,
		Base:     base,
		Learned:  learned,
	}

	if !learned.Valid {
		score.Weight = b.cfg.Floor
		score.Final = clamp(base)
	} else {
		w := b.Weight(decisions)
		score.Weight = w
		score.Final = clamp((1-w)*base + w*learned.Score)
	}

	score.RiskLevel = b.riskLevel(score.Final)
	return score
}

// Explain produces the analyst-facing summary line for a blended score
func (b *Blender) Explain(score BlendedScore) string {
	var detail string
	switch {
	case score.Final >= b.thresholds.Critical:
		detail = "high anomaly score detected"
	case score.Final >= b.thresholds.High:
		detail = "moderate risk indicators present"
	default:
		detail = "no strong risk indicators"
	}

	if score.Learned.Valid {
		return fmt.Sprintf("%s risk: %s; adaptive weight %.0f%%",
			score.RiskLevel, detail, score.Weight*100)
	}
	return fmt.Sprintf("%s risk: %s; base model only", score.RiskLevel, detail)
}

func (b *Blender) riskLevel(final float64) string {
	switch {
	case final >= b.thresholds.Critical:
		return "Critical"
	case final >= b.thresholds.High:
		return "High"
	case final >= b.thresholds.Medium:
		return "Medium"
	default:
		return "Low"
	}
}

// interpolate maps count linearly from segment [x0, x1] onto
// [y0, y1]
func interpolate(x0 int, y0 float64, x1 int, y1 float64, x int) float64 {
	if x <= x0 {
		return y0
	}
	if x >= x1 || x1 == x0 {
		return y1
	}
	t := float64(x-x0) / float64(x1-x0)
	return y0 + t*(y1-y0)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
