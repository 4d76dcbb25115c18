package pipeline

import (
	"context"
	"errors"
	"fmt"

	"remanflow/messaging"
	"remanflow/store"
)

// selectStrategy offers the strategies to the customer and waits for their
// choice. The inbox is opened before publishing and closed on every path.
func (p *Pipeline) selectStrategy(ctx context.Context, st State) (State, error) {
	reqID := st.Request.ID
	inbox, err := p.client.OpenInbox(messaging.ExchangeOptimization, messaging.SelectKey(reqID))
	if err != nil {
		return st, fmt.Errorf("open selection inbox: %w", err)
	}
	defer inbox.Close()

	if err := p.store.SaveStrategies(reqID, st.Strategies); err != nil {
		return st, fmt.Errorf("save strategies: %w", err)
	}
	err = p.client.Send(messaging.ExchangeOptimization, messaging.StrategiesKey(reqID), messaging.TypeMultipleStrategiesReady,
		messaging.MultipleStrategiesReady{RequestID: reqID, WorkflowType: st.Workflow, Strategies: st.Strategies})
	if err != nil {
		return st, err
	}
	if err := p.store.UpdateRequestStatus(reqID, store.RequestAwaitingSelection, st.Workflow.String(), ""); err != nil {
		p.logFn("pipeline: request %s status: %v", reqID, err)
	}
	p.emitter.EmitStrategiesReady(reqID, st.Strategies)

	env, err := inbox.Receive(ctx, p.cfg.SelectionTimeout)
	if errors.Is(err, messaging.ErrTimeout) {
		return st, fmt.Errorf("%w after %s", ErrSelectionTimeout, p.cfg.SelectionTimeout)
	}
	if err != nil {
		return st, err
	}

	var sel messaging.SelectStrategy
	if err := env.DecodePayload(&sel); err != nil {
		return st, err
	}
	for i := range st.Strategies {
		if st.Strategies[i].ID == sel.SelectedStrategyID {
			chosen := st.Strategies[i].Clone()
			st.Selected = &chosen
			p.logFn("pipeline: request %s selected %s strategy %s", reqID, chosen.Priority, chosen.ID)
			return st, nil
		}
	}
	return st, fmt.Errorf("%w: %q", ErrUnknownStrategy, sel.SelectedStrategyID)
}
