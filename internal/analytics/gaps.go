package analytics

import (
	"math"

	"github.com/MikeSquared-Agency/sensei/internal/conversation"
)

// Content-gap recommendations, by descending gap score.
const (
	RecommendUrgent      = "urgent"
	RecommendRecommended = "recommended"
	RecommendMonitor     = "monitor"
	RecommendOK          = "ok"
)

// GapScore weighs how often a topic comes up against how frustrating and
// unresolved it is.
//
// Formula: round(sessionCount x frustrationRate / max(resolutionRate, 1))
func GapScore(sessionCount, frustrationRate, resolutionRate int) int {
	if resolutionRate < 1 {
		resolutionRate = 1
	}
	return round(float64(sessionCount*frustrationRate) / float64(resolutionRate))
}

// Recommendation buckets a gap score.
func Recommendation(gapScore int) string {
	switch {
	case gapScore >= 50:
		return RecommendUrgent
	case gapScore >= 20:
		return RecommendRecommended
	case gapScore >= 10:
		return RecommendMonitor
	default:
		return RecommendOK
	}
}

// NeedsIntervention reports whether a classified session belongs in the
// admin's intervention queue.
func NeedsIntervention(c *conversation.Classification) bool {
	if c == nil {
		return false
	}
	return c.Flags.EscalationNeeded || c.Flags.FrustrationDetected || c.Quality == conversation.QualityLow
}

// Severity ranks a flagged session: escalation beats frustration, anything
// else that qualified is medium.
func Severity(c *conversation.Classification) string {
	switch {
	case c.Flags.EscalationNeeded:
		return SeverityCritical
	case c.Flags.FrustrationDetected:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// percent is round(part/whole*100), zero when whole is zero.
func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return round(float64(part) / float64(whole) * 100)
}

// round rounds half up, so 2.5 -> 3 and -2.5 -> -2.
func round(x float64) int {
	return int(math.Floor(x + 0.5))
}
