package metadata

// Levels is the fixed, ordered level set of a categorical variable. Order
// matters: downstream contrasts are built on level order, not alphabetic
// order.
type Levels []string

var (
	// TimePointLevels orders sampling times relative to the challenge.
	TimePointLevels = Levels{"pre2", "pre1", "W1", "W2", "W6", "W10", "W12"}

	// GroupLevels collapses both pre-challenge time points into Control.
	GroupLevels = Levels{"Control", "W1", "W2", "W6", "W10", "W12"}
)

// Index returns the position of v, or -1.
func (l Levels) Index(v string) int {
	for i, level := range l {
		if level == v {
			return i
		}
	}
	return -1
}

// Factor is a value of an ordered categorical variable.
type Factor struct {
	Levels Levels
	Level  int
}

// Factor returns the factor for v, and false if v is not a level.
func (l Levels) Factor(v string) (Factor, bool) {
	idx := l.Index(v)
	if idx < 0 {
		return Factor{}, false
	}
	return Factor{Levels: l, Level: idx}, true
}

func (f Factor) String() string {
	if f.Level < 0 || f.Level >= len(f.Levels) {
		return ""
	}
	return f.Levels[f.Level]
}

// Less orders factors by level position.
func (f Factor) Less(o Factor) bool {
	return f.Level < o.Level
}
