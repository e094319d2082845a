package relationship

import (
	"fmt"
	"strings"

	"cardlink/backend/internal/models"
)

// Action is the receiver's answer to a pending request.
type Action int

const (
	ActionAccept Action = iota + 1
	ActionReject
)

// ParseAction maps "accept"/"reject" to an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "accept":
		return ActionAccept, nil
	case "reject":
		return ActionReject, nil
	default:
		return 0, newError(KindInvalidArgument, "parse action", "unknown action %q", s)
	}
}

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionReject:
		return "reject"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// target is the state a PENDING request moves to.
func (a Action) target() (models.ConnectionState, bool) {
	switch a {
	case ActionAccept:
		return models.StateAccepted, true
	case ActionReject:
		return models.StateRejected, true
	default:
		return "", false
	}
}
