// Package tribool provides a boolean that may not be decided yet.
package tribool

type Tribool uint8

const (
	Unknown Tribool = iota
	True
	False
)

// Of converts a decided boolean.
func Of(b bool) Tribool {
	if b {
		return True
	}

	return False
}

// Known reports whether the value was decided.
func (t Tribool) Known() bool {
	return t != Unknown
}

// Is reports whether the value was decided to be true.
func (t Tribool) Is() bool {
	return t == True
}

// Or returns the decided value or the fallback if it's still unknown.
func (t Tribool) Or(fallback bool) bool {
	if t == Unknown {
		return fallback
	}

	return t == True
}

func (t Tribool) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}
