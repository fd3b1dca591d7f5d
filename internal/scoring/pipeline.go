package scoring

import "github.com/pavelanni/placement/internal/model"

// RelevancyMultiplier maps a relevance verdict onto the factor applied to
// every skill. Unknown verdicts count as relevant.
func RelevancyMultiplier(r model.Relevance) float64 {
	switch r {
	case model.RelevanceNot:
		return 0
	case model.RelevancePartial:
		return 0.5
	default:
		return 1
	}
}

// ApplyRelevancy scales all four skills by the verdict's multiplier.
func ApplyRelevancy(raw model.Skills, r model.Relevance) (model.Skills, float64) {
	m := RelevancyMultiplier(r)
	return raw.Scale(m), m
}

// DurationMultiplier maps the share of the expected response time a
// candidate actually spoke, in percent, onto a fluency factor.
func DurationMultiplier(pct float64) float64 {
	switch {
	case pct < 10:
		return 0.1
	case pct < 25:
		return 0.4
	case pct < 50:
		return 0.7
	case pct < 75:
		return 0.85
	default:
		return 1.0
	}
}

// ApplyDurationPenalty scales fluency only.
func ApplyDurationPenalty(raw model.Skills, m float64) model.Skills {
	raw.Fluency *= m
	return raw
}

// Combine weights raw 0..100 scores by the question's profile and the
// level's skill weights. The overall figure is the sum of the weighted
// skills, in points.
func Combine(raw, profile, level model.Skills) (model.Skills, float64) {
	final := raw.Mul(profile).Mul(level)
	return final, final.Sum()
}
