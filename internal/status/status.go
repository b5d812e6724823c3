// Package status maps externally-reported document production statuses to
// user-facing messages and action affordances.
package status

import "fmt"

// Status is the production state of a gallery's document. It is mutated only
// by the production process; this package reads it.
type Status string

const (
	NotRequested Status = "NOT_REQUESTED"
	Processing   Status = "PROCESSING"
	Completed    Status = "COMPLETED"
	Failed       Status = "FAILED"
	Unavailable  Status = "UNAVAILABLE"
	Error        Status = "ERROR"
)

// CheckStatusAction is the action name encoded into recheck tokens.
const CheckStatusAction = "check_pdf_status"

// Action is an inline affordance offered alongside a status message. Token
// has the form "<action>:<galleryId>".
type Action struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// View is what the user sees for a given status: one sentence and zero or
// one action.
type View struct {
	Message string
	Actions []Action
}

// CheckToken builds the recheck action token for a gallery.
func CheckToken(galleryID int64) string {
	return fmt.Sprintf("%s:%d", CheckStatusAction, galleryID)
}

// ViewFor is the pure status-to-view mapping. Delivery of a completed
// document is the coordinator's job, so Completed carries no action here.
func ViewFor(s Status, galleryID int64) View {
	switch s {
	case Processing:
		return View{
			Message: "Your PDF is still being prepared. Check back in a moment.",
			Actions: []Action{{Label: "Check status", Token: CheckToken(galleryID)}},
		}
	case Completed:
		return View{Message: "Your PDF is ready."}
	case Failed:
		return View{Message: "PDF generation failed. A read-only page will be used instead."}
	default:
		// Unavailable, Error, and anything unknown collapse to the same
		// outage message.
		return View{Message: "The PDF service is unavailable right now. A read-only page will be used instead."}
	}
}
