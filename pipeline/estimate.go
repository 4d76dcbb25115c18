package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"remanflow/domain"
	"remanflow/messaging"
)

var errDeclined = errors.New("provider declined")

// estimate asks every candidate of every step for an estimate concurrently.
// Failures of any kind degrade to a fallback estimate rather than failing
// the request.
func (p *Pipeline) estimate(ctx context.Context, st State) (State, error) {
	steps := cloneSteps(st.Steps)
	var wg sync.WaitGroup
	for i := range steps {
		for j := range steps[i].Candidates {
			wg.Add(1)
			go func(step *domain.ProcessStep, cand *domain.Candidate) {
				defer wg.Done()
				est, err := p.requestEstimate(ctx, st.Request, step, cand.Provider.ID)
				if err != nil {
					p.logFn("pipeline: request %s step %d (%s) provider %s: fallback estimate: %v",
						st.Request.ID, step.StepNumber, step.Process, cand.Provider.ID, err)
					cand.Estimate = domain.Estimate{Fallback: true}
					return
				}
				cand.Estimate = est
			}(&steps[i], &steps[i].Candidates[j])
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return st, err
	}
	st.Steps = steps
	return st, nil
}

func (p *Pipeline) requestEstimate(ctx context.Context, req domain.Request, step *domain.ProcessStep, providerID string) (domain.Estimate, error) {
	body := messaging.ProposeProcessToProvider{
		RequestID:       req.ID,
		ProviderID:      providerID,
		Process:         step.Process,
		Motor:           req.Motor,
		RequestedWindow: req.Constraints.RequestedWindow,
	}
	res, err := p.breakers.get(providerID).Execute(func() (interface{}, error) {
		env, err := p.client.Request(ctx, messaging.ExchangeProvider, messaging.ProposeKey(providerID),
			messaging.TypeProposeProcessToProvider, body, p.cfg.EstimateTimeout)
		if err != nil {
			return nil, err
		}
		var reply messaging.ProcessProposalEstimated
		if err := env.DecodePayload(&reply); err != nil {
			return nil, err
		}
		return reply, nil
	})
	if err != nil {
		return domain.Estimate{}, err
	}
	reply := res.(messaging.ProcessProposalEstimated)
	if reply.Declined {
		return domain.Estimate{}, fmt.Errorf("%w: %s", errDeclined, reply.Reason)
	}
	est := reply.Estimate
	est.Fallback = false
	return est, nil
}
