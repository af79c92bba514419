// Package affinity turns a user message and the recent conversation into an
// updated favorability score.
package affinity

const (
	MinScore = 0
	MaxScore = 100
)

// Clamp bounds score to [MinScore, MaxScore].
func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
