package emotion

// Label is the character's mood for a turn. Classified labels always come
// from the closed set below; history entries supplied by callers may carry
// any tag, which is why Label is a plain string type.
type Label string

const (
	Happy       Label = "Happy"
	Sad         Label = "Sad"
	Angry       Label = "Angry"
	Confused    Label = "Confused"
	Grateful    Label = "Grateful"
	Embarrassed Label = "Embarrassed"
	Nervous     Label = "Nervous"
	Neutral     Label = "Neutral"
)

var labels = []Label{Happy, Sad, Angry, Confused, Grateful, Embarrassed, Nervous, Neutral}

// Labels returns the closed set of recognised labels.
func Labels() []Label {
	out := make([]Label, len(labels))
	copy(out, labels)
	return out
}

// Parse reports whether s, after trimming surrounding whitespace by the
// caller, exactly names a recognised label.
func Parse(s string) (Label, bool) {
	for _, l := range labels {
		if string(l) == s {
			return l, true
		}
	}
	return Neutral, false
}
