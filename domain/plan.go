package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidTransition = errors.New("invalid plan status transition")

type PlanStatus int

const (
	PlanDraft PlanStatus = iota + 1
	PlanAwaitingSelection
	PlanSelected
	PlanConfirmed
	PlanInProgress
	PlanCompleted
	PlanFailed
	PlanCancelled
)

var planStatusNames = map[PlanStatus]string{
	PlanDraft:             "Draft",
	PlanAwaitingSelection: "AwaitingSelection",
	PlanSelected:          "Selected",
	PlanConfirmed:         "Confirmed",
	PlanInProgress:        "InProgress",
	PlanCompleted:         "Completed",
	PlanFailed:            "Failed",
	PlanCancelled:         "Cancelled",
}

func (s PlanStatus) String() string {
	if n, ok := planStatusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("PlanStatus(%d)", int(s))
}

func (s PlanStatus) MarshalText() ([]byte, error) {
	if _, ok := planStatusNames[s]; !ok {
		return nil, fmt.Errorf("invalid plan status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *PlanStatus) UnmarshalText(b []byte) error {
	v, err := ParsePlanStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParsePlanStatus(str string) (PlanStatus, error) {
	for k, v := range planStatusNames {
		if strings.EqualFold(v, str) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown plan status %q", str)
}

// Terminal reports whether no further transition is possible.
func (s PlanStatus) Terminal() bool {
	return s == PlanCompleted || s == PlanFailed || s == PlanCancelled
}

// CanTransition allows forward moves along Draft → ... → Completed, and a move
// into Failed or Cancelled from any non-terminal status.
func CanTransition(from, to PlanStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == PlanFailed || to == PlanCancelled {
		return true
	}
	if _, ok := planStatusNames[to]; !ok {
		return false
	}
	return to > from
}

// Plan is the customer-selected strategy being executed against providers.
type Plan struct {
	ID            string     `json:"id"`
	RequestID     string     `json:"request_id"`
	CustomerID    string     `json:"customer_id"`
	Strategy      Strategy   `json:"strategy"`
	Status        PlanStatus `json:"status"`
	CurrentStep   int        `json:"current_step"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SelectedAt    *time.Time `json:"selected_at,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewPlan creates a Draft plan holding a frozen copy of the strategy.
func NewPlan(id string, req Request, s Strategy, now time.Time) *Plan {
	return &Plan{
		ID:         id,
		RequestID:  req.ID,
		CustomerID: req.CustomerID,
		Strategy:   s.Clone(),
		Status:     PlanDraft,
		CreatedAt:  now,
	}
}

// Transition moves the plan to the given status and stamps the matching timestamp.
func (p *Plan) Transition(to PlanStatus, now time.Time) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	p.Status = to
	switch to {
	case PlanSelected:
		p.SelectedAt = &now
	case PlanConfirmed:
		p.ConfirmedAt = &now
	case PlanCompleted, PlanFailed, PlanCancelled:
		p.CompletedAt = &now
	}
	return nil
}
