package service

import (
	"context"

	"github.com/pesio-ai/be-plt-approvals/internal/client"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// ApproverResolver turns a step's approver specification into the concrete
// identities empowered to act on it. It never caches; every resolution
// reflects the directory at call time. An unresolvable approver is a
// configuration error requiring administrator escalation, never a silently
// skipped or auto-approved step.
type ApproverResolver struct {
	directory DirectoryClientInterface
}

// NewApproverResolver creates a new ApproverResolver.
func NewApproverResolver(directory DirectoryClientInterface) *ApproverResolver {
	return &ApproverResolver{directory: directory}
}

// ResolveApprovers returns the identities eligible to act on the step for
// a request originated by requesterID. For role steps any returned holder
// may act; the first committed decision closes the step.
func (r *ApproverResolver) ResolveApprovers(ctx context.Context, step *repository.InstanceStep, requesterID string) ([]string, error) {
	switch step.ApproverType {
	case repository.ApproverFixedUser:
		if step.ApproverRef == nil || *step.ApproverRef == "" {
			return nil, errors.Newf(errors.ErrCodeInvalidApprover, "step %d has no fixed approver configured", step.StepOrder)
		}
		user, err := r.activeUser(ctx, *step.ApproverRef, step.StepOrder)
		if err != nil {
			return nil, err
		}
		return []string{user.ID}, nil

	case repository.ApproverRole:
		if step.ApproverRef == nil || *step.ApproverRef == "" {
			return nil, errors.Newf(errors.ErrCodeInvalidApprover, "step %d has no role configured", step.StepOrder)
		}
		holders, err := r.directory.GetRoleHolders(ctx, *step.ApproverRef)
		if err != nil {
			return nil, err
		}
		if len(holders) == 0 {
			return nil, errors.Newf(errors.ErrCodeInvalidApprover, "role %s has no active holders for step %d", *step.ApproverRef, step.StepOrder)
		}
		return holders, nil

	case repository.ApproverImmediateSuperior:
		requester, err := r.directory.GetUser(ctx, requesterID)
		if err != nil {
			return nil, err
		}
		if requester.ImmediateSuperiorID == "" {
			return nil, errors.Newf(errors.ErrCodeNoSuperior, "user %s has no immediate superior configured", requesterID)
		}
		superior, err := r.activeUser(ctx, requester.ImmediateSuperiorID, step.StepOrder)
		if err != nil {
			return nil, err
		}
		return []string{superior.ID}, nil

	case repository.ApproverDepartmentHead:
		requester, err := r.directory.GetUser(ctx, requesterID)
		if err != nil {
			return nil, err
		}
		if requester.DepartmentID == "" {
			return nil, errors.Newf(errors.ErrCodeNoDepartmentHead, "user %s has no department configured", requesterID)
		}
		headID, err := r.directory.GetDepartmentHead(ctx, requester.DepartmentID)
		if err != nil {
			return nil, err
		}
		if headID == "" {
			return nil, errors.Newf(errors.ErrCodeNoDepartmentHead, "department %s has no head designated", requester.DepartmentID)
		}
		head, err := r.activeUser(ctx, headID, step.StepOrder)
		if err != nil {
			return nil, err
		}
		return []string{head.ID}, nil
	}

	return nil, errors.Newf(errors.ErrCodeInvalidApprover, "unknown approver type %q on step %d", step.ApproverType, step.StepOrder)
}

// activeUser loads a user and rejects inactive identities.
func (r *ApproverResolver) activeUser(ctx context.Context, userID string, stepOrder int) (*client.User, error) {
	user, err := r.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return nil, errors.Newf(errors.ErrCodeInvalidApprover, "approver %s for step %d does not exist", userID, stepOrder)
		}
		return nil, err
	}
	if !user.Active {
		return nil, errors.Newf(errors.ErrCodeInvalidApprover, "approver %s for step %d is inactive", userID, stepOrder)
	}
	return user, nil
}
