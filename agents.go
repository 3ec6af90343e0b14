package caredesk

import (
	"context"
	"errors"

	"github.com/hupe1980/caredesk/supportagent"
)

// CreateAgent validates and stores a new persona.
func (d *Desk) CreateAgent(ctx context.Context, draft supportagent.Draft) (*supportagent.SupportAgent, error) {
	a, err := supportagent.New(draft)
	if err != nil {
		return nil, validation(err)
	}

	if err := d.agents.Save(ctx, a); err != nil {
		return nil, err
	}

	d.logger.Info("support agent created", "agent_id", a.ID, "name", a.Name)

	return a, nil
}

// ListAgents returns every persona in insertion order.
func (d *Desk) ListAgents(ctx context.Context) ([]*supportagent.SupportAgent, error) {
	return d.agents.List(ctx)
}

// GetAgent returns one persona or supportagent.ErrNotFound.
func (d *Desk) GetAgent(ctx context.Context, id string) (*supportagent.SupportAgent, error) {
	return d.agents.Get(ctx, id)
}

// UpdateAgent merges a patch into a persona.
func (d *Desk) UpdateAgent(ctx context.Context, id string, patch supportagent.Patch) (*supportagent.SupportAgent, error) {
	a, err := d.agents.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := supportagent.Merge(a, patch)
	if err := d.agents.Save(ctx, updated); err != nil {
		return nil, err
	}

	return updated, nil
}

// persona resolves the agent for a ticket: the explicit id, else the best
// specialty match. A nil persona means the default instructions are used.
func (d *Desk) persona(ctx context.Context, id, text string) (*supportagent.SupportAgent, error) {
	if id != "" {
		a, err := d.agents.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !a.Active {
			return nil, validation(errors.New("support agent is not active"))
		}
		return a, nil
	}

	all, err := d.agents.List(ctx)
	if err != nil {
		return nil, err
	}

	return supportagent.Pick(all, "", text), nil
}

// remember stores an answer the persona sent. Failures are logged only.
func (d *Desk) remember(ctx context.Context, personaID, answer string) {
	if personaID == "" {
		return
	}

	a, err := d.agents.Get(ctx, personaID)
	if err != nil {
		d.logger.Warn("persona lookup failed", "agent_id", personaID, "error", err)
		return
	}

	supportagent.Remember(a, answer, d.opts.MemoryLimit)

	if err := d.agents.Save(ctx, a); err != nil {
		d.logger.Warn("persona memory save failed", "agent_id", personaID, "error", err)
	}
}
