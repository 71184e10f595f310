package display

import "github.com/pscheid92/pipelinepulse/internal/domain"

// Apply reconciles one update onto surface and reports whether an element
// matched. Updates for unknown stages change nothing. A status other than
// Processing or Success still sets the text and clears the class state, but
// leaves the spinner as it was.
func Apply(surface Surface, update domain.StatusUpdate) bool {
	key := string(update.Stage)
	if !surface.HasElement(key) {
		return false
	}

	surface.SetText(key, string(update.Status))
	surface.SetClassState(key, ClassNone)

	switch update.Status {
	case domain.StatusSuccess:
		surface.SetClassState(key, ClassSuccess)
		surface.SetSpinner(key, false)
	case domain.StatusProcessing:
		surface.SetClassState(key, ClassProcessing)
		surface.SetSpinner(key, true)
	}
	return true
}
