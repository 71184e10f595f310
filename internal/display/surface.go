// Package display applies pipeline status updates to a rendering surface,
// mirroring what the browser page does with its DOM.
package display

// ClassState is the visual state of a stage element. The states are
// mutually exclusive.
type ClassState int

const (
	ClassNone ClassState = iota
	ClassProcessing
	ClassSuccess
)

func (s ClassState) String() string {
	switch s {
	case ClassProcessing:
		return "processing"
	case ClassSuccess:
		return "success"
	default:
		return ""
	}
}

// Surface is the set of element mutations Apply needs. Elements are keyed by
// stage identifier.
type Surface interface {
	HasElement(key string) bool
	SetText(key, text string)
	SetClassState(key string, state ClassState)
	// SetSpinner shows or hides the element's spinner. Showing an already
	// shown spinner must not add a second one.
	SetSpinner(key string, shown bool)
}
