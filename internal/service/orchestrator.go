package service

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// Lifecycle event types published on committed transitions.
const (
	EventSubmitted    = "submitted"
	EventStepAdvanced = "step_advanced"
	EventApproved     = "approved"
	EventRejected     = "rejected"
	EventCancelled    = "cancelled"
	EventExpired      = "expired"
)

// ApprovalOrchestrator creates and advances approval instances. It is the
// only component that mutates instance state, and every mutation follows
// the same read–decide–commit cycle: load the instance, compute the
// transition (resolving approvers over the network with no lock held),
// then commit with a version compare-and-swap. A losing writer surfaces
// ALREADY_DECIDED.
type ApprovalOrchestrator struct {
	resolver  *FlowResolver
	approvers *ApproverResolver
	instances InstanceStore
	intake    IntakeClientInterface
	directory DirectoryClientInterface
	publisher EventPublisherInterface
	adminRole string
	clock     clockwork.Clock
	log       *logger.Logger
}

// NewApprovalOrchestrator creates a new ApprovalOrchestrator. publisher
// may be nil when event publishing is disabled.
func NewApprovalOrchestrator(
	resolver *FlowResolver,
	approvers *ApproverResolver,
	instances InstanceStore,
	intake IntakeClientInterface,
	directory DirectoryClientInterface,
	publisher EventPublisherInterface,
	adminRole string,
	clock clockwork.Clock,
	log *logger.Logger,
) *ApprovalOrchestrator {
	return &ApprovalOrchestrator{
		resolver:  resolver,
		approvers: approvers,
		instances: instances,
		intake:    intake,
		directory: directory,
		publisher: publisher,
		adminRole: adminRole,
		clock:     clock,
		log:       log,
	}
}

// ── Submit ────────────────────────────────────────────────────────────────────

// Submit resolves the flow for a request, freezes the step sequence and
// creates the instance at pending(1) with the step-1 approvers resolved.
func (o *ApprovalOrchestrator) Submit(ctx context.Context, moduleID, requestID, createdBy string) (*repository.ApprovalInstance, error) {
	data, err := o.intake.GetRequestData(ctx, requestID)
	if err != nil {
		return nil, err
	}

	flow, err := o.resolver.Resolve(ctx, moduleID, data)
	if err != nil {
		return nil, err
	}

	snapshot, err := snapshotSteps(flow)
	if err != nil {
		return nil, err
	}

	approverIDs, err := o.approvers.ResolveApprovers(ctx, snapshot[0], createdBy)
	if err != nil {
		return nil, err
	}

	inst := &repository.ApprovalInstance{
		ModuleID:           moduleID,
		RequestID:          requestID,
		FlowID:             flow.ID,
		CurrentStepOrder:   1,
		CurrentApproverIDs: approverIDs,
		TimeoutPeriod:      flow.TimeoutPeriod,
		Status:             repository.StatusPending,
		CreatedBy:          createdBy,
		Steps:              snapshot,
	}
	inst.CurrentStepDeadline = o.stepDeadline(inst)

	if err := o.instances.Create(ctx, inst); err != nil {
		return nil, err
	}

	o.log.Info().
		Str("instance_id", inst.ID).
		Str("module_id", moduleID).
		Str("request_id", requestID).
		Str("flow_id", flow.ID).
		Int("steps", len(snapshot)).
		Msg("Approval instance created")

	o.publish(ctx, EventSubmitted, inst, createdBy, nil)
	return inst, nil
}

// ── Act ───────────────────────────────────────────────────────────────────────

// Act applies an approve or reject decision by an eligible actor on the
// instance's current pending step.
func (o *ApprovalOrchestrator) Act(ctx context.Context, instanceID, actorID string, action repository.Action, comment *string) (*repository.ApprovalInstance, error) {
	if action != repository.ActionApprove && action != repository.ActionReject {
		return nil, errors.InvalidInput("action", "must be approve or reject")
	}

	inst, err := o.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != repository.StatusPending {
		return nil, errors.Newf(errors.ErrCodeAlreadyDecided, "instance is already %s", inst.Status)
	}
	if !inst.EligibleFor(actorID) {
		return nil, errors.Newf(errors.ErrCodeUnauthorized, "user %s is not an approver for step %d", actorID, inst.CurrentStepOrder)
	}

	expected := inst.Version
	entry := &repository.DecisionEntry{
		StepOrder:  inst.CurrentStepOrder,
		ApproverID: actorID,
		Action:     action,
		Comment:    comment,
		CreatedAt:  o.clock.Now(),
	}

	var eventType string
	if action == repository.ActionReject {
		// Rejection at any step terminates the whole instance.
		o.terminate(inst, repository.StatusRejected)
		eventType = EventRejected
	} else if inst.CurrentStepOrder == len(inst.Steps) {
		o.terminate(inst, repository.StatusApproved)
		eventType = EventApproved
	} else {
		// Resolve the next step's approvers before committing; an
		// incomplete resolution must never produce a committed transition.
		next := inst.Steps[inst.CurrentStepOrder]
		nextApprovers, err := o.approvers.ResolveApprovers(ctx, next, inst.CreatedBy)
		if err != nil {
			return nil, err
		}
		inst.CurrentStepOrder++
		inst.CurrentApproverIDs = nextApprovers
		inst.CurrentStepDeadline = o.stepDeadline(inst)
		eventType = EventStepAdvanced
	}

	if err := o.instances.ApplyTransition(ctx, inst, expected, entry); err != nil {
		return nil, err
	}

	o.log.Info().
		Str("instance_id", inst.ID).
		Str("actor_id", actorID).
		Str("action", string(action)).
		Int("step_order", entry.StepOrder).
		Str("status", string(inst.Status)).
		Msg("Approval action recorded")

	o.publish(ctx, eventType, inst, actorID, map[string]any{"step_order": entry.StepOrder})
	return inst, nil
}

// ── Cancel ────────────────────────────────────────────────────────────────────

// Cancel withdraws a pending instance. Only the original requester or an
// administrator may cancel.
func (o *ApprovalOrchestrator) Cancel(ctx context.Context, instanceID, actorID string) (*repository.ApprovalInstance, error) {
	inst, err := o.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != repository.StatusPending {
		return nil, errors.Newf(errors.ErrCodeAlreadyDecided, "instance is already %s", inst.Status)
	}
	if actorID != inst.CreatedBy {
		isAdmin, err := o.isAdministrator(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if !isAdmin {
			return nil, errors.New(errors.ErrCodeUnauthorized, "only the requester or an administrator can cancel")
		}
	}

	expected := inst.Version
	entry := &repository.DecisionEntry{
		StepOrder:  inst.CurrentStepOrder,
		ApproverID: actorID,
		Action:     repository.ActionCancel,
		CreatedAt:  o.clock.Now(),
	}
	o.terminate(inst, repository.StatusCancelled)

	if err := o.instances.ApplyTransition(ctx, inst, expected, entry); err != nil {
		return nil, err
	}

	o.log.Info().
		Str("instance_id", inst.ID).
		Str("actor_id", actorID).
		Msg("Approval instance cancelled")

	o.publish(ctx, EventCancelled, inst, actorID, nil)
	return inst, nil
}

// ── Expire ────────────────────────────────────────────────────────────────────

// Expire applies the timeout transition to a pending instance whose
// current step deadline has elapsed. This is the only machine-initiated
// transition; it uses the same compare-and-swap as actor decisions, so a
// timeout racing a just-committed human decision loses cleanly.
func (o *ApprovalOrchestrator) Expire(ctx context.Context, instanceID string) (*repository.ApprovalInstance, error) {
	inst, err := o.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != repository.StatusPending {
		return nil, errors.Newf(errors.ErrCodeAlreadyDecided, "instance is already %s", inst.Status)
	}
	if inst.CurrentStepDeadline == nil || o.clock.Now().Before(*inst.CurrentStepDeadline) {
		return nil, errors.New(errors.ErrCodeConflict, "instance deadline has not elapsed")
	}

	expected := inst.Version
	entry := &repository.DecisionEntry{
		StepOrder:  inst.CurrentStepOrder,
		ApproverID: repository.SystemActorID,
		Action:     repository.ActionExpire,
		CreatedAt:  o.clock.Now(),
	}
	o.terminate(inst, repository.StatusExpired)

	if err := o.instances.ApplyTransition(ctx, inst, expected, entry); err != nil {
		return nil, err
	}

	o.log.Info().
		Str("instance_id", inst.ID).
		Int("step_order", entry.StepOrder).
		Msg("Approval instance expired")

	o.publish(ctx, EventExpired, inst, repository.SystemActorID, nil)
	return inst, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetInstance returns the full instance including its decision log.
func (o *ApprovalOrchestrator) GetInstance(ctx context.Context, instanceID string) (*repository.ApprovalInstance, error) {
	return o.instances.GetByID(ctx, instanceID)
}

// ListPending returns the instances the actor is currently eligible to
// act on, oldest first.
func (o *ApprovalOrchestrator) ListPending(ctx context.Context, actorID string) ([]*repository.ApprovalInstance, error) {
	return o.instances.ListPendingForApprover(ctx, actorID)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// snapshotSteps freezes the flow's active steps into instance steps,
// failing fast on an empty or non-contiguous sequence.
func snapshotSteps(flow *repository.ApprovalFlow) ([]*repository.InstanceStep, error) {
	var active []*repository.FlowStep
	for _, step := range flow.Steps {
		if step.IsActive {
			active = append(active, step)
		}
	}
	if len(active) == 0 {
		return nil, errors.Newf(errors.ErrCodeEmptyFlow, "flow %s has no active steps", flow.ID)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StepOrder < active[j].StepOrder })

	snapshot := make([]*repository.InstanceStep, len(active))
	for i, step := range active {
		if step.StepOrder != i+1 {
			return nil, errors.Newf(errors.ErrCodeInvalidFlow,
				"flow %s step orders are not contiguous from 1 (found %d at position %d)", flow.ID, step.StepOrder, i+1)
		}
		var ref *string
		if step.ApproverRef != nil {
			r := *step.ApproverRef
			ref = &r
		}
		snapshot[i] = &repository.InstanceStep{
			StepOrder:    step.StepOrder,
			ApproverType: step.ApproverType,
			ApproverRef:  ref,
		}
	}
	return snapshot, nil
}

// stepDeadline computes the deadline for the instance's current step from
// its frozen timeout period.
func (o *ApprovalOrchestrator) stepDeadline(inst *repository.ApprovalInstance) *time.Time {
	if inst.TimeoutPeriod == nil {
		return nil
	}
	t := o.clock.Now().Add(*inst.TimeoutPeriod)
	return &t
}

// terminate moves the instance into a terminal status. The approver set
// becomes the empty slice, not nil: the column is NOT NULL and pgx
// encodes a nil slice as SQL NULL.
func (o *ApprovalOrchestrator) terminate(inst *repository.ApprovalInstance, status repository.InstanceStatus) {
	now := o.clock.Now()
	inst.Status = status
	inst.DecidedAt = &now
	inst.CurrentApproverIDs = []string{}
	inst.CurrentStepDeadline = nil
}

// isAdministrator checks the actor's directory role against the
// configured administrator role.
func (o *ApprovalOrchestrator) isAdministrator(ctx context.Context, actorID string) (bool, error) {
	user, err := o.directory.GetUser(ctx, actorID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.Active && o.adminRole != "" && user.RoleID == o.adminRole, nil
}

// publish emits a lifecycle event when a publisher is configured.
func (o *ApprovalOrchestrator) publish(ctx context.Context, eventType string, inst *repository.ApprovalInstance, actorID string, payload map[string]any) {
	if o.publisher == nil {
		return
	}
	o.publisher.PublishApprovalEvent(ctx, eventType, inst, actorID, payload)
}
