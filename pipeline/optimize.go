package pipeline

import (
	"context"
)

func (p *Pipeline) optimize(ctx context.Context, st State) (State, error) {
	strategies, err := p.optimizer.Optimize(ctx, st.Request, st.Workflow, st.Steps)
	if err != nil {
		return st, err
	}
	st.Strategies = strategies
	return st, nil
}
