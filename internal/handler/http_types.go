package handler

import (
	"time"

	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// ── Request payloads ─────────────────────────────────────────────────────────

type submitRequest struct {
	ModuleID  string `json:"module_id"`
	RequestID string `json:"request_id"`
}

type actRequest struct {
	Action  string  `json:"action"`
	Comment *string `json:"comment,omitempty"`
}

type moduleRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	IsActive *bool  `json:"is_active,omitempty"`
}

type flowRequest struct {
	ID             string        `json:"id,omitempty"`
	ModuleID       string        `json:"module_id"`
	Name           string        `json:"name"`
	MatchPolicy    string        `json:"match_policy"`
	IsDefault      bool          `json:"is_default"`
	IsActive       *bool         `json:"is_active,omitempty"`
	TimeoutSeconds *int64        `json:"timeout_seconds,omitempty"`
	Priority       int           `json:"priority"`
	Rules          []rulePayload `json:"rules"`
	Steps          []stepPayload `json:"steps"`
}

type rulePayload struct {
	Field     string `json:"field"`
	Operator  string `json:"operator"`
	Value     string `json:"value"`
	RuleOrder int    `json:"rule_order"`
}

type stepPayload struct {
	StepOrder    int     `json:"step_order"`
	ApproverType string  `json:"approver_type"`
	ApproverRef  *string `json:"approver_ref,omitempty"`
	IsActive     *bool   `json:"is_active,omitempty"`
}

func (r *flowRequest) toDomain() *repository.ApprovalFlow {
	flow := &repository.ApprovalFlow{
		ID:          r.ID,
		ModuleID:    r.ModuleID,
		Name:        r.Name,
		MatchPolicy: repository.MatchPolicy(r.MatchPolicy),
		IsDefault:   r.IsDefault,
		IsActive:    true,
		Priority:    r.Priority,
	}
	if r.IsActive != nil {
		flow.IsActive = *r.IsActive
	}
	if r.TimeoutSeconds != nil {
		d := time.Duration(*r.TimeoutSeconds) * time.Second
		flow.TimeoutPeriod = &d
	}
	for _, rule := range r.Rules {
		flow.Rules = append(flow.Rules, &repository.FlowRule{
			Field:     rule.Field,
			Operator:  repository.Operator(rule.Operator),
			Value:     rule.Value,
			RuleOrder: rule.RuleOrder,
		})
	}
	for _, step := range r.Steps {
		s := &repository.FlowStep{
			StepOrder:    step.StepOrder,
			ApproverType: repository.ApproverType(step.ApproverType),
			ApproverRef:  step.ApproverRef,
			IsActive:     true,
		}
		if step.IsActive != nil {
			s.IsActive = *step.IsActive
		}
		flow.Steps = append(flow.Steps, s)
	}
	return flow
}

// ── Response payloads ────────────────────────────────────────────────────────

type instanceResponse struct {
	ID                  string             `json:"id"`
	ModuleID            string             `json:"module_id"`
	RequestID           string             `json:"request_id"`
	FlowID              string             `json:"flow_id"`
	Status              string             `json:"status"`
	CurrentStepOrder    int                `json:"current_step_order"`
	CurrentApproverIDs  []string           `json:"current_approver_ids"`
	CurrentStepDeadline *time.Time         `json:"current_step_deadline,omitempty"`
	CreatedBy           string             `json:"created_by"`
	CreatedAt           time.Time          `json:"created_at"`
	DecidedAt           *time.Time         `json:"decided_at,omitempty"`
	Version             int64              `json:"version"`
	Steps               []stepResponse     `json:"steps"`
	Decisions           []decisionResponse `json:"decisions"`
}

type stepResponse struct {
	StepOrder    int     `json:"step_order"`
	ApproverType string  `json:"approver_type"`
	ApproverRef  *string `json:"approver_ref,omitempty"`
}

type decisionResponse struct {
	StepOrder  int       `json:"step_order"`
	ApproverID string    `json:"approver_id"`
	Action     string    `json:"action"`
	Comment    *string   `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toInstanceResponse(inst *repository.ApprovalInstance) instanceResponse {
	resp := instanceResponse{
		ID:                  inst.ID,
		ModuleID:            inst.ModuleID,
		RequestID:           inst.RequestID,
		FlowID:              inst.FlowID,
		Status:              string(inst.Status),
		CurrentStepOrder:    inst.CurrentStepOrder,
		CurrentApproverIDs:  inst.CurrentApproverIDs,
		CurrentStepDeadline: inst.CurrentStepDeadline,
		CreatedBy:           inst.CreatedBy,
		CreatedAt:           inst.CreatedAt,
		DecidedAt:           inst.DecidedAt,
		Version:             inst.Version,
		Steps:               []stepResponse{},
		Decisions:           []decisionResponse{},
	}
	if resp.CurrentApproverIDs == nil {
		resp.CurrentApproverIDs = []string{}
	}
	for _, step := range inst.Steps {
		resp.Steps = append(resp.Steps, stepResponse{
			StepOrder:    step.StepOrder,
			ApproverType: string(step.ApproverType),
			ApproverRef:  step.ApproverRef,
		})
	}
	for _, d := range inst.Decisions {
		resp.Decisions = append(resp.Decisions, decisionResponse{
			StepOrder:  d.StepOrder,
			ApproverID: d.ApproverID,
			Action:     string(d.Action),
			Comment:    d.Comment,
			CreatedAt:  d.CreatedAt,
		})
	}
	return resp
}

type flowResponse struct {
	ID             string        `json:"id"`
	ModuleID       string        `json:"module_id"`
	Name           string        `json:"name"`
	MatchPolicy    string        `json:"match_policy"`
	IsDefault      bool          `json:"is_default"`
	IsActive       bool          `json:"is_active"`
	TimeoutSeconds *int64        `json:"timeout_seconds,omitempty"`
	Priority       int           `json:"priority"`
	Rules          []rulePayload `json:"rules"`
	Steps          []stepPayload `json:"steps"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func toFlowResponse(flow *repository.ApprovalFlow) flowResponse {
	resp := flowResponse{
		ID:          flow.ID,
		ModuleID:    flow.ModuleID,
		Name:        flow.Name,
		MatchPolicy: string(flow.MatchPolicy),
		IsDefault:   flow.IsDefault,
		IsActive:    flow.IsActive,
		Priority:    flow.Priority,
		Rules:       []rulePayload{},
		Steps:       []stepPayload{},
		CreatedAt:   flow.CreatedAt,
		UpdatedAt:   flow.UpdatedAt,
	}
	if flow.TimeoutPeriod != nil {
		secs := int64(flow.TimeoutPeriod.Seconds())
		resp.TimeoutSeconds = &secs
	}
	for _, rule := range flow.Rules {
		resp.Rules = append(resp.Rules, rulePayload{
			Field:     rule.Field,
			Operator:  string(rule.Operator),
			Value:     rule.Value,
			RuleOrder: rule.RuleOrder,
		})
	}
	for _, step := range flow.Steps {
		active := step.IsActive
		resp.Steps = append(resp.Steps, stepPayload{
			StepOrder:    step.StepOrder,
			ApproverType: string(step.ApproverType),
			ApproverRef:  step.ApproverRef,
			IsActive:     &active,
		})
	}
	return resp
}

type moduleResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toModuleResponse(m *repository.Module) moduleResponse {
	return moduleResponse{
		ID:        m.ID,
		Name:      m.Name,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
