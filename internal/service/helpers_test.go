package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/client"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
	"github.com/pesio-ai/be-plt-approvals/internal/repository/memory"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

const adminRole = "PLATFORM_ADMIN"

// fakeDirectory serves a fixed org chart from memory.
type fakeDirectory struct {
	users       map[string]*client.User
	roleHolders map[string][]string
	deptHeads   map[string]string
	failWith    error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:       make(map[string]*client.User),
		roleHolders: make(map[string][]string),
		deptHeads:   make(map[string]string),
	}
}

func (d *fakeDirectory) GetUser(_ context.Context, id string) (*client.User, error) {
	if d.failWith != nil {
		return nil, d.failWith
	}
	u, ok := d.users[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (d *fakeDirectory) GetRoleHolders(_ context.Context, roleID string) ([]string, error) {
	if d.failWith != nil {
		return nil, d.failWith
	}
	return append([]string(nil), d.roleHolders[roleID]...), nil
}

func (d *fakeDirectory) GetDepartmentHead(_ context.Context, departmentID string) (string, error) {
	if d.failWith != nil {
		return "", d.failWith
	}
	return d.deptHeads[departmentID], nil
}

// fakeIntake serves request data dictionaries keyed by request id.
type fakeIntake struct {
	data map[string]map[string]any
}

func (i *fakeIntake) GetRequestData(_ context.Context, requestID string) (map[string]any, error) {
	d, ok := i.data[requestID]
	if !ok {
		return nil, errors.NotFound("request", requestID)
	}
	return d, nil
}

// recordingPublisher captures published lifecycle events.
type recordingPublisher struct {
	mux    sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishApprovalEvent(_ context.Context, eventType string, _ *repository.ApprovalInstance, _ string, _ map[string]any) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) recorded() []string {
	p.mux.Lock()
	defer p.mux.Unlock()
	return append([]string(nil), p.events...)
}

// env bundles everything a service test needs.
type env struct {
	store        *memory.Store
	directory    *fakeDirectory
	intake       *fakeIntake
	publisher    *recordingPublisher
	clock        *clockwork.FakeClock
	orchestrator *service.ApprovalOrchestrator
	catalog      *service.CatalogService
	moduleID     string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := memory.NewStore()
	directory := newFakeDirectory()
	intake := &fakeIntake{data: make(map[string]map[string]any)}
	publisher := &recordingPublisher{}
	clock := clockwork.NewFakeClock()
	log := logger.Nop()

	resolver := service.NewFlowResolver(store, log)
	approvers := service.NewApproverResolver(directory)
	orchestrator := service.NewApprovalOrchestrator(
		resolver, approvers, store, intake, directory, publisher, adminRole, clock, log)
	catalog := service.NewCatalogService(store, store, log)

	module := &repository.Module{Name: "expenses", IsActive: true}
	_, err := catalog.SaveModule(context.Background(), module)
	require.NoError(t, err)

	return &env{
		store:        store,
		directory:    directory,
		intake:       intake,
		publisher:    publisher,
		clock:        clock,
		orchestrator: orchestrator,
		catalog:      catalog,
		moduleID:     module.ID,
	}
}

func (e *env) addUser(id string, mutate ...func(*client.User)) {
	u := &client.User{ID: id, Active: true}
	for _, m := range mutate {
		m(u)
	}
	e.directory.users[id] = u
}

func (e *env) addRequest(id string, data map[string]any) {
	e.intake.data[id] = data
}

func strPtr(s string) *string { return &s }

func durPtr(d time.Duration) *time.Duration { return &d }

func fixedStep(order int, userID string) *repository.FlowStep {
	return &repository.FlowStep{
		StepOrder:    order,
		ApproverType: repository.ApproverFixedUser,
		ApproverRef:  strPtr(userID),
		IsActive:     true,
	}
}

// saveFlow persists a flow through the catalog service and returns it.
func (e *env) saveFlow(t *testing.T, flow *repository.ApprovalFlow) *repository.ApprovalFlow {
	t.Helper()
	flow.ModuleID = e.moduleID
	if flow.MatchPolicy == "" {
		flow.MatchPolicy = repository.MatchAll
	}
	flow.IsActive = true
	saved, err := e.catalog.SaveFlow(context.Background(), flow)
	require.NoError(t, err)
	return saved
}

// defaultTwoStepFlow seeds a default flow approved by alice then bob, plus
// the two users and a request.
func (e *env) defaultTwoStepFlow(t *testing.T) {
	t.Helper()
	e.addUser("alice")
	e.addUser("bob")
	e.addUser("dave")
	e.saveFlow(t, &repository.ApprovalFlow{
		Name:      "default",
		IsDefault: true,
		Steps:     []*repository.FlowStep{fixedStep(1, "alice"), fixedStep(2, "bob")},
	})
	e.addRequest("req-1", map[string]any{"amount": float64(100)})
}

func (e *env) submit(t *testing.T, requestID, createdBy string) *repository.ApprovalInstance {
	t.Helper()
	inst, err := e.orchestrator.Submit(context.Background(), e.moduleID, requestID, createdBy)
	require.NoError(t, err)
	return inst
}
