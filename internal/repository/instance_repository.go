package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// InstanceRepository owns approval instance state: the instance row, its
// frozen step snapshot and its append-only decision log. All transitions
// go through ApplyTransition, which enforces the version compare-and-swap.
type InstanceRepository struct {
	db *database.DB
}

// NewInstanceRepository creates a new InstanceRepository.
func NewInstanceRepository(db *database.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// Create inserts the instance and its snapshot steps in one transaction.
// The instance starts at version 1.
func (r *InstanceRepository) Create(ctx context.Context, inst *ApprovalInstance) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		instQuery := `
			INSERT INTO approval_instances
			    (module_id, request_id, flow_id,
			     current_step_order, current_approver_ids, current_step_deadline,
			     timeout_seconds, status, created_by, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::approval_instance_status, $9, 1)
			RETURNING id, created_at, updated_at, version
		`
		err := tx.QueryRow(ctx, instQuery,
			inst.ModuleID,
			inst.RequestID,
			inst.FlowID,
			inst.CurrentStepOrder,
			inst.CurrentApproverIDs,
			inst.CurrentStepDeadline,
			timeoutSeconds(inst.TimeoutPeriod),
			inst.Status,
			inst.CreatedBy,
		).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt, &inst.Version)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval instance")
		}

		stepQuery := `
			INSERT INTO approval_instance_steps
			    (instance_id, step_order, approver_type, approver_ref)
			VALUES ($1, $2, $3::approver_type, $4)
			RETURNING id
		`
		for _, step := range inst.Steps {
			step.InstanceID = inst.ID
			err := tx.QueryRow(ctx, stepQuery,
				step.InstanceID, step.StepOrder, step.ApproverType, step.ApproverRef,
			).Scan(&step.ID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create instance step snapshot")
			}
		}
		return nil
	})
}

// GetByID retrieves an instance including snapshot steps and decision log.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*ApprovalInstance, error) {
	inst, err := r.scanInstance(r.db.QueryRow(ctx, instanceSelect+` WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_instance", id)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// ListPendingForApprover returns pending instances on which the actor is
// currently eligible to act, oldest first.
func (r *InstanceRepository) ListPendingForApprover(ctx context.Context, actorID string) ([]*ApprovalInstance, error) {
	query := instanceSelect + `
		WHERE status = 'pending'
		  AND $1 = ANY(current_approver_ids)
		ORDER BY created_at ASC
	`
	return r.queryInstances(ctx, query, actorID)
}

// ListExpired returns pending instances whose current step deadline has
// passed as of the given time, oldest deadline first.
func (r *InstanceRepository) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]*ApprovalInstance, error) {
	query := instanceSelect + `
		WHERE status = 'pending'
		  AND current_step_deadline IS NOT NULL
		  AND current_step_deadline <= $1
		ORDER BY current_step_deadline ASC
		LIMIT $2
	`
	return r.queryInstances(ctx, query, asOf, limit)
}

// ApplyTransition commits one state transition: the instance row update is
// guarded by the version counter, and the decision log entry is inserted
// in the same transaction, so a transition is either fully applied or not
// at all. A version mismatch surfaces ALREADY_DECIDED.
func (r *InstanceRepository) ApplyTransition(ctx context.Context, inst *ApprovalInstance, expectedVersion int64, entry *DecisionEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		updateQuery := `
			UPDATE approval_instances
			SET status                = $3::approval_instance_status,
			    current_step_order    = $4,
			    current_approver_ids  = COALESCE($5, '{}'),
			    current_step_deadline = $6,
			    decided_at            = $7,
			    version               = version + 1,
			    updated_at            = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at
		`
		err := tx.QueryRow(ctx, updateQuery,
			inst.ID,
			expectedVersion,
			inst.Status,
			inst.CurrentStepOrder,
			inst.CurrentApproverIDs,
			inst.CurrentStepDeadline,
			inst.DecidedAt,
		).Scan(&inst.Version, &inst.UpdatedAt)
		if err == pgx.ErrNoRows {
			// Distinguish a missing instance from a lost race.
			var exists bool
			if chkErr := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM approval_instances WHERE id = $1)`, inst.ID,
			).Scan(&exists); chkErr != nil {
				return errors.Wrap(chkErr, errors.ErrCodeInternal, "failed to check instance existence")
			}
			if !exists {
				return errors.NotFound("approval_instance", inst.ID)
			}
			return errors.New(errors.ErrCodeAlreadyDecided, "instance was modified concurrently")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to apply instance transition")
		}

		entry.InstanceID = inst.ID
		logQuery := `
			INSERT INTO approval_decisions
			    (instance_id, step_order, approver_id, action, comment, created_at)
			VALUES ($1, $2, $3, $4::approval_action, $5, $6)
			RETURNING id
		`
		err = tx.QueryRow(ctx, logQuery,
			entry.InstanceID,
			entry.StepOrder,
			entry.ApproverID,
			entry.Action,
			entry.Comment,
			entry.CreatedAt,
		).Scan(&entry.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to append decision entry")
		}
		inst.Decisions = append(inst.Decisions, entry)
		return nil
	})
}

// ── scan helpers ─────────────────────────────────────────────────────────────

const instanceSelect = `
	SELECT id, module_id, request_id, flow_id,
	       current_step_order, current_approver_ids, current_step_deadline,
	       timeout_seconds, status, created_by,
	       created_at, decided_at, version, updated_at
	FROM approval_instances
`

type instanceScanner interface {
	Scan(dest ...any) error
}

func (r *InstanceRepository) scanInstance(row instanceScanner) (*ApprovalInstance, error) {
	inst := &ApprovalInstance{}
	var timeoutSecs *int64

	err := row.Scan(
		&inst.ID,
		&inst.ModuleID,
		&inst.RequestID,
		&inst.FlowID,
		&inst.CurrentStepOrder,
		&inst.CurrentApproverIDs,
		&inst.CurrentStepDeadline,
		&timeoutSecs,
		&inst.Status,
		&inst.CreatedBy,
		&inst.CreatedAt,
		&inst.DecidedAt,
		&inst.Version,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inst.TimeoutPeriod = timeoutFromSeconds(timeoutSecs)
	return inst, nil
}

func (r *InstanceRepository) queryInstances(ctx context.Context, query string, args ...any) ([]*ApprovalInstance, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval instances")
	}
	defer rows.Close()

	var instances []*ApprovalInstance
	for rows.Next() {
		inst, err := r.scanInstance(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval instance")
		}
		instances = append(instances, inst)
	}
	for _, inst := range instances {
		if err := r.loadChildren(ctx, inst); err != nil {
			return nil, err
		}
	}
	return instances, nil
}

func (r *InstanceRepository) loadChildren(ctx context.Context, inst *ApprovalInstance) error {
	stepRows, err := r.db.Query(ctx, `
		SELECT id, instance_id, step_order, approver_type, approver_ref
		FROM approval_instance_steps
		WHERE instance_id = $1
		ORDER BY step_order ASC
	`, inst.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load instance steps")
	}
	defer stepRows.Close()

	inst.Steps = nil
	for stepRows.Next() {
		step := &InstanceStep{}
		if err := stepRows.Scan(&step.ID, &step.InstanceID, &step.StepOrder, &step.ApproverType, &step.ApproverRef); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to scan instance step")
		}
		inst.Steps = append(inst.Steps, step)
	}

	decisionRows, err := r.db.Query(ctx, `
		SELECT id, instance_id, step_order, approver_id, action, comment, created_at
		FROM approval_decisions
		WHERE instance_id = $1
		ORDER BY created_at ASC, id ASC
	`, inst.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load decision log")
	}
	defer decisionRows.Close()

	inst.Decisions = nil
	for decisionRows.Next() {
		entry := &DecisionEntry{}
		if err := decisionRows.Scan(&entry.ID, &entry.InstanceID, &entry.StepOrder, &entry.ApproverID, &entry.Action, &entry.Comment, &entry.CreatedAt); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to scan decision entry")
		}
		inst.Decisions = append(inst.Decisions, entry)
	}
	return nil
}
