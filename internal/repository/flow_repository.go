package repository

import (
	"context"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// FlowRepository handles the approval flow template catalog: flows plus
// their rules and steps. Templates are configuration data; the engine
// only reads them at resolution time.
type FlowRepository struct {
	db *database.DB
}

// NewFlowRepository creates a new FlowRepository.
func NewFlowRepository(db *database.DB) *FlowRepository {
	return &FlowRepository{db: db}
}

// SaveFlow inserts or updates a flow together with its rules and steps in
// one transaction. When the flow is marked default, any other default in
// the same module is cleared so at most one default exists per module.
func (r *FlowRepository) SaveFlow(ctx context.Context, flow *ApprovalFlow) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if flow.IsDefault {
			clearQuery := `
				UPDATE approval_flows
				SET is_default = FALSE, updated_at = NOW()
				WHERE module_id = $1 AND is_default = TRUE AND id <> COALESCE($2, '00000000-0000-0000-0000-000000000000'::uuid)
			`
			var current *string
			if flow.ID != "" {
				current = &flow.ID
			}
			if _, err := tx.Exec(ctx, clearQuery, flow.ModuleID, current); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear previous default flow")
			}
		}

		if flow.ID == "" {
			insertQuery := `
				INSERT INTO approval_flows
				    (module_id, name, match_policy, is_default, is_active,
				     timeout_seconds, priority)
				VALUES ($1, $2, $3::approval_match_policy, $4, $5, $6, $7)
				RETURNING id, created_at, updated_at
			`
			err := tx.QueryRow(ctx, insertQuery,
				flow.ModuleID,
				flow.Name,
				flow.MatchPolicy,
				flow.IsDefault,
				flow.IsActive,
				timeoutSeconds(flow.TimeoutPeriod),
				flow.Priority,
			).Scan(&flow.ID, &flow.CreatedAt, &flow.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval flow")
			}
		} else {
			updateQuery := `
				UPDATE approval_flows
				SET name            = $2,
				    match_policy    = $3::approval_match_policy,
				    is_default      = $4,
				    is_active       = $5,
				    timeout_seconds = $6,
				    priority        = $7,
				    updated_at      = NOW()
				WHERE id = $1
				RETURNING updated_at
			`
			err := tx.QueryRow(ctx, updateQuery,
				flow.ID,
				flow.Name,
				flow.MatchPolicy,
				flow.IsDefault,
				flow.IsActive,
				timeoutSeconds(flow.TimeoutPeriod),
				flow.Priority,
			).Scan(&flow.UpdatedAt)
			if err == pgx.ErrNoRows {
				return errors.NotFound("approval_flow", flow.ID)
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval flow")
			}
			// Rules and steps are replaced wholesale; in-flight instances
			// are unaffected because they carry their own snapshot.
			if _, err := tx.Exec(ctx, `DELETE FROM approval_flow_rules WHERE flow_id = $1`, flow.ID); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to replace flow rules")
			}
			if _, err := tx.Exec(ctx, `DELETE FROM approval_flow_steps WHERE flow_id = $1`, flow.ID); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to replace flow steps")
			}
		}

		ruleQuery := `
			INSERT INTO approval_flow_rules (flow_id, field, operator, value, rule_order)
			VALUES ($1, $2, $3::approval_rule_operator, $4, $5)
			RETURNING id
		`
		for _, rule := range flow.Rules {
			rule.FlowID = flow.ID
			err := tx.QueryRow(ctx, ruleQuery,
				rule.FlowID, rule.Field, rule.Operator, rule.Value, rule.RuleOrder,
			).Scan(&rule.ID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create flow rule")
			}
		}

		stepQuery := `
			INSERT INTO approval_flow_steps (flow_id, step_order, approver_type, approver_ref, is_active)
			VALUES ($1, $2, $3::approver_type, $4, $5)
			RETURNING id
		`
		for _, step := range flow.Steps {
			step.FlowID = flow.ID
			err := tx.QueryRow(ctx, stepQuery,
				step.FlowID, step.StepOrder, step.ApproverType, step.ApproverRef, step.IsActive,
			).Scan(&step.ID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create flow step")
			}
		}

		return nil
	})
}

// GetFlow retrieves a flow with its rules and steps loaded.
func (r *FlowRepository) GetFlow(ctx context.Context, id string) (*ApprovalFlow, error) {
	query := flowSelect + ` WHERE f.id = $1`

	flow, err := r.scanFlow(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_flow", id)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, flow); err != nil {
		return nil, err
	}
	return flow, nil
}

// ListFlows returns all flows for a module ordered by priority then id,
// with rules and steps loaded.
func (r *FlowRepository) ListFlows(ctx context.Context, moduleID string) ([]*ApprovalFlow, error) {
	query := flowSelect + `
		WHERE f.module_id = $1
		ORDER BY f.priority ASC, f.id ASC
	`
	return r.queryFlows(ctx, query, moduleID)
}

// ListCandidates returns active, rule-bearing flows of an active module in
// resolution order (priority ascending, id as tie-break).
func (r *FlowRepository) ListCandidates(ctx context.Context, moduleID string) ([]*ApprovalFlow, error) {
	query := flowSelect + `
		JOIN modules m ON m.id = f.module_id
		WHERE f.module_id = $1
		  AND f.is_active = TRUE
		  AND m.is_active = TRUE
		  AND EXISTS (SELECT 1 FROM approval_flow_rules r WHERE r.flow_id = f.id)
		ORDER BY f.priority ASC, f.id ASC
	`
	return r.queryFlows(ctx, query, moduleID)
}

// GetDefault returns the active default flow for a module, or nil when the
// module has none.
func (r *FlowRepository) GetDefault(ctx context.Context, moduleID string) (*ApprovalFlow, error) {
	query := flowSelect + `
		JOIN modules m ON m.id = f.module_id
		WHERE f.module_id = $1
		  AND f.is_default = TRUE
		  AND f.is_active = TRUE
		  AND m.is_active = TRUE
		LIMIT 1
	`
	flow, err := r.scanFlow(r.db.QueryRow(ctx, query, moduleID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, flow); err != nil {
		return nil, err
	}
	return flow, nil
}

// DeleteFlow removes a flow template; rules and steps cascade in schema.
// Existing instances keep their snapshots and are unaffected.
func (r *FlowRepository) DeleteFlow(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM approval_flows WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approval flow")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approval_flow", id)
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

const flowSelect = `
	SELECT f.id, f.module_id, f.name, f.match_policy, f.is_default,
	       f.is_active, f.timeout_seconds, f.priority,
	       f.created_at, f.updated_at
	FROM approval_flows f
`

type flowScanner interface {
	Scan(dest ...any) error
}

func (r *FlowRepository) scanFlow(row flowScanner) (*ApprovalFlow, error) {
	flow := &ApprovalFlow{}
	var timeoutSecs *int64

	err := row.Scan(
		&flow.ID,
		&flow.ModuleID,
		&flow.Name,
		&flow.MatchPolicy,
		&flow.IsDefault,
		&flow.IsActive,
		&timeoutSecs,
		&flow.Priority,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	flow.TimeoutPeriod = timeoutFromSeconds(timeoutSecs)
	return flow, nil
}

func (r *FlowRepository) queryFlows(ctx context.Context, query string, args ...any) ([]*ApprovalFlow, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval flows")
	}
	defer rows.Close()

	var flows []*ApprovalFlow
	for rows.Next() {
		flow, err := r.scanFlow(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval flow")
		}
		flows = append(flows, flow)
	}
	for _, flow := range flows {
		if err := r.loadChildren(ctx, flow); err != nil {
			return nil, err
		}
	}
	return flows, nil
}

func (r *FlowRepository) loadChildren(ctx context.Context, flow *ApprovalFlow) error {
	ruleRows, err := r.db.Query(ctx, `
		SELECT id, flow_id, field, operator, value, rule_order
		FROM approval_flow_rules
		WHERE flow_id = $1
		ORDER BY rule_order ASC
	`, flow.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load flow rules")
	}
	defer ruleRows.Close()

	flow.Rules = nil
	for ruleRows.Next() {
		rule := &FlowRule{}
		if err := ruleRows.Scan(&rule.ID, &rule.FlowID, &rule.Field, &rule.Operator, &rule.Value, &rule.RuleOrder); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to scan flow rule")
		}
		flow.Rules = append(flow.Rules, rule)
	}

	stepRows, err := r.db.Query(ctx, `
		SELECT id, flow_id, step_order, approver_type, approver_ref, is_active
		FROM approval_flow_steps
		WHERE flow_id = $1
		ORDER BY step_order ASC
	`, flow.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load flow steps")
	}
	defer stepRows.Close()

	flow.Steps = nil
	for stepRows.Next() {
		step := &FlowStep{}
		if err := stepRows.Scan(&step.ID, &step.FlowID, &step.StepOrder, &step.ApproverType, &step.ApproverRef, &step.IsActive); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to scan flow step")
		}
		flow.Steps = append(flow.Steps, step)
	}
	return nil
}

// timeoutSeconds rounds up so a sub-second timeout never truncates to
// zero, which the timeout_seconds CHECK constraint rejects.
func timeoutSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	secs := int64(math.Ceil(d.Seconds()))
	return &secs
}

func timeoutFromSeconds(secs *int64) *time.Duration {
	if secs == nil {
		return nil
	}
	d := time.Duration(*secs) * time.Second
	return &d
}
