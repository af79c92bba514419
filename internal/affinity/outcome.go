package affinity

// Outcome is the direction a message moves the score. It is a separate label
// set from emotion.Label.
type Outcome string

const (
	Increase Outcome = "Increase"
	Decrease Outcome = "Decrease"
	Steady   Outcome = "Neutral"
)

// ParseOutcome reports whether s exactly names an outcome.
func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(s) {
	case Increase, Decrease, Steady:
		return Outcome(s), true
	}
	return Steady, false
}
