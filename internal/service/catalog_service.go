package service

import (
	"context"
	"sort"
	"strings"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// CatalogService administers modules and approval flow templates. All
// structural constraints on templates are enforced here on write, so that
// resolution and snapshotting can trust stored flows.
type CatalogService struct {
	modules ModuleStore
	flows   FlowStore
	log     *logger.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(modules ModuleStore, flows FlowStore, log *logger.Logger) *CatalogService {
	return &CatalogService{modules: modules, flows: flows, log: log}
}

// ── Modules ───────────────────────────────────────────────────────────────────

// SaveModule creates or updates a module.
func (s *CatalogService) SaveModule(ctx context.Context, m *repository.Module) (*repository.Module, error) {
	if strings.TrimSpace(m.Name) == "" {
		return nil, errors.InvalidInput("name", "must not be empty")
	}
	if err := s.modules.SaveModule(ctx, m); err != nil {
		return nil, err
	}
	s.log.Info().Str("module_id", m.ID).Str("name", m.Name).Msg("Module saved")
	return m, nil
}

// GetModule returns one module by id.
func (s *CatalogService) GetModule(ctx context.Context, id string) (*repository.Module, error) {
	return s.modules.GetModule(ctx, id)
}

// ListModules returns all modules.
func (s *CatalogService) ListModules(ctx context.Context) ([]*repository.Module, error) {
	return s.modules.ListModules(ctx)
}

// ── Flows ─────────────────────────────────────────────────────────────────────

// SaveFlow validates and persists a flow template with its rules and
// steps. Saving a default flow demotes any previous default of the module.
func (s *CatalogService) SaveFlow(ctx context.Context, flow *repository.ApprovalFlow) (*repository.ApprovalFlow, error) {
	if err := s.validateFlow(ctx, flow); err != nil {
		return nil, err
	}
	if err := s.flows.SaveFlow(ctx, flow); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("flow_id", flow.ID).
		Str("module_id", flow.ModuleID).
		Str("name", flow.Name).
		Bool("is_default", flow.IsDefault).
		Int("rules", len(flow.Rules)).
		Int("steps", len(flow.Steps)).
		Msg("Approval flow saved")
	return flow, nil
}

// GetFlow returns one flow with its rules and steps.
func (s *CatalogService) GetFlow(ctx context.Context, id string) (*repository.ApprovalFlow, error) {
	return s.flows.GetFlow(ctx, id)
}

// ListFlows returns a module's flows.
func (s *CatalogService) ListFlows(ctx context.Context, moduleID string) ([]*repository.ApprovalFlow, error) {
	return s.flows.ListFlows(ctx, moduleID)
}

// DeleteFlow removes a flow template. Running instances keep their frozen
// step snapshots and are unaffected.
func (s *CatalogService) DeleteFlow(ctx context.Context, id string) error {
	if err := s.flows.DeleteFlow(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("flow_id", id).Msg("Approval flow deleted")
	return nil
}

// ── Validation ────────────────────────────────────────────────────────────────

func (s *CatalogService) validateFlow(ctx context.Context, flow *repository.ApprovalFlow) error {
	if strings.TrimSpace(flow.Name) == "" {
		return errors.InvalidInput("name", "must not be empty")
	}
	if flow.MatchPolicy != repository.MatchAll && flow.MatchPolicy != repository.MatchAny {
		return errors.InvalidInput("match_policy", "must be ALL or ANY")
	}
	if flow.TimeoutPeriod != nil && *flow.TimeoutPeriod <= 0 {
		return errors.InvalidInput("timeout_period", "must be positive")
	}

	if _, err := s.modules.GetModule(ctx, flow.ModuleID); err != nil {
		return err
	}

	for i, rule := range flow.Rules {
		if strings.TrimSpace(rule.Field) == "" {
			return errors.Newf(errors.ErrCodeInvalidInput, "rule %d: field must not be empty", i+1)
		}
		if !repository.ValidOperators[rule.Operator] {
			return errors.Newf(errors.ErrCodeInvalidInput, "rule %d: unknown operator %q", i+1, rule.Operator)
		}
	}

	if len(flow.Steps) == 0 {
		return errors.InvalidInput("steps", "flow must have at least one step")
	}
	steps := make([]*repository.FlowStep, len(flow.Steps))
	copy(steps, flow.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })
	for i, step := range steps {
		if step.StepOrder != i+1 {
			return errors.Newf(errors.ErrCodeInvalidInput,
				"steps: orders must be contiguous from 1 (found %d at position %d)", step.StepOrder, i+1)
		}
		if !repository.ValidApproverTypes[step.ApproverType] {
			return errors.Newf(errors.ErrCodeInvalidInput, "step %d: unknown approver type %q", step.StepOrder, step.ApproverType)
		}
		needsRef := step.ApproverType == repository.ApproverFixedUser || step.ApproverType == repository.ApproverRole
		if needsRef && (step.ApproverRef == nil || strings.TrimSpace(*step.ApproverRef) == "") {
			return errors.Newf(errors.ErrCodeInvalidInput,
				"step %d: approver type %s requires a reference", step.StepOrder, step.ApproverType)
		}
	}
	return nil
}
