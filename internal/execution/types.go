package execution

import (
	"fmt"
	"time"

	"github.com/ggonzalez94/chedda-agent/internal/id"
)

type ActionStatus string

const (
	ActionStatusValidated ActionStatus = "validated"
	ActionStatusEncoded   ActionStatus = "encoded"
	ActionStatusSubmitted ActionStatus = "submitted"
	ActionStatusConfirmed ActionStatus = "confirmed"
	ActionStatusFailed    ActionStatus = "failed"
)

var allowedTransitions = map[ActionStatus][]ActionStatus{
	ActionStatusValidated: {ActionStatusEncoded, ActionStatusFailed},
	ActionStatusEncoded:   {ActionStatusSubmitted, ActionStatusFailed},
	ActionStatusSubmitted: {ActionStatusConfirmed, ActionStatusFailed},
}

// Action is the journal record of one direct-mode mutation.
type Action struct {
	ActionID    string         `json:"action_id"`
	Name        string         `json:"name"`
	Status      ActionStatus   `json:"status"`
	Network     string         `json:"network"`
	ChainID     string         `json:"chain_id"`
	FromAddress string         `json:"from_address,omitempty"`
	Target      string         `json:"target,omitempty"`
	Data        string         `json:"data,omitempty"`
	Value       string         `json:"value,omitempty"`
	Description string         `json:"description,omitempty"`
	TxHash      string         `json:"tx_hash,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewAction(actionID, name string, network id.Network) Action {
	now := time.Now().UTC().Format(time.RFC3339)
	return Action{
		ActionID:  actionID,
		Name:      name,
		Status:    ActionStatusValidated,
		Network:   network.Slug,
		ChainID:   network.CAIP2,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (a *Action) Touch() {
	a.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

func (a *Action) transition(next ActionStatus) error {
	for _, allowed := range allowedTransitions[a.Status] {
		if allowed == next {
			a.Status = next
			a.Touch()
			return nil
		}
	}
	return fmt.Errorf("invalid action transition %s -> %s", a.Status, next)
}

// Terminal reports whether the action reached confirmed or failed.
func (a Action) Terminal() bool {
	return a.Status == ActionStatusConfirmed || a.Status == ActionStatusFailed
}
