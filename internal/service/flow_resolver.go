package service

import (
	"context"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
	"github.com/pesio-ai/be-plt-approvals/internal/rules"
)

// FlowResolver picks the approval flow template that applies to a request.
// It is called exactly once per submission and evaluates the catalog as it
// stands at that instant; results are never cached across calls.
type FlowResolver struct {
	catalog FlowCatalog
	log     *logger.Logger
}

// NewFlowResolver creates a new FlowResolver.
func NewFlowResolver(catalog FlowCatalog, log *logger.Logger) *FlowResolver {
	return &FlowResolver{catalog: catalog, log: log}
}

// Resolve returns the first rule-bearing flow whose rules match the
// request data (first-match-wins in priority order), falling back to the
// module's default flow, and failing with FLOW_NOT_FOUND when neither
// exists.
func (r *FlowResolver) Resolve(ctx context.Context, moduleID string, data map[string]any) (*repository.ApprovalFlow, error) {
	candidates, err := r.catalog.ListCandidates(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	for _, flow := range candidates {
		if rules.Evaluate(flow.Rules, flow.MatchPolicy, data) {
			r.log.Debug().
				Str("module_id", moduleID).
				Str("flow_id", flow.ID).
				Str("flow_name", flow.Name).
				Msg("flow resolved by rule match")
			return flow, nil
		}
	}

	def, err := r.catalog.GetDefault(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if def != nil {
		r.log.Debug().
			Str("module_id", moduleID).
			Str("flow_id", def.ID).
			Str("flow_name", def.Name).
			Msg("flow resolved by default fallback")
		return def, nil
	}

	return nil, errors.Newf(errors.ErrCodeFlowNotFound, "no approval flow applies to module %s", moduleID)
}
