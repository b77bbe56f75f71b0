package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-plt-approvals/internal/client"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// FlowCatalog is the read surface flow resolution needs.
type FlowCatalog interface {
	// ListCandidates returns active, rule-bearing flows of an active
	// module in resolution order (priority ascending, id tie-break).
	ListCandidates(ctx context.Context, moduleID string) ([]*repository.ApprovalFlow, error)
	// GetDefault returns the module's active default flow, or nil.
	GetDefault(ctx context.Context, moduleID string) (*repository.ApprovalFlow, error)
}

// FlowStore extends FlowCatalog with the administration surface.
type FlowStore interface {
	FlowCatalog
	SaveFlow(ctx context.Context, flow *repository.ApprovalFlow) error
	GetFlow(ctx context.Context, id string) (*repository.ApprovalFlow, error)
	ListFlows(ctx context.Context, moduleID string) ([]*repository.ApprovalFlow, error)
	DeleteFlow(ctx context.Context, id string) error
}

// ModuleStore is the business-domain catalog.
type ModuleStore interface {
	SaveModule(ctx context.Context, m *repository.Module) error
	GetModule(ctx context.Context, id string) (*repository.Module, error)
	ListModules(ctx context.Context) ([]*repository.Module, error)
}

// InstanceStore owns approval instance state. ApplyTransition must commit
// the instance update and the decision entry atomically, guarded by the
// version counter, surfacing ALREADY_DECIDED on a version mismatch.
type InstanceStore interface {
	Create(ctx context.Context, inst *repository.ApprovalInstance) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalInstance, error)
	ListPendingForApprover(ctx context.Context, actorID string) ([]*repository.ApprovalInstance, error)
	ListExpired(ctx context.Context, asOf time.Time, limit int) ([]*repository.ApprovalInstance, error)
	ApplyTransition(ctx context.Context, inst *repository.ApprovalInstance, expectedVersion int64, entry *repository.DecisionEntry) error
}

// DirectoryClientInterface resolves identities from the Identity &
// Directory service.
type DirectoryClientInterface interface {
	GetUser(ctx context.Context, id string) (*client.User, error)
	GetRoleHolders(ctx context.Context, roleID string) ([]string, error)
	// GetDepartmentHead returns "" when the department has no head.
	GetDepartmentHead(ctx context.Context, departmentID string) (string, error)
}

// IntakeClientInterface fetches submitted request data from the Request
// Intake service.
type IntakeClientInterface interface {
	GetRequestData(ctx context.Context, requestID string) (map[string]any, error)
}

// EventPublisherInterface emits approval lifecycle events. Implementations
// must never fail the calling operation.
type EventPublisherInterface interface {
	PublishApprovalEvent(ctx context.Context, eventType string, inst *repository.ApprovalInstance, actorID string, payload map[string]any)
}
