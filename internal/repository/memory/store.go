// Package memory implements the flow catalog, module catalog and instance
// store contracts in process memory. All operations are thread-safe and
// return copies of the stored objects so callers can never mutate shared
// state. It backs the service tests and DB_DRIVER=memory development mode
// with the same compare-and-swap semantics as the Postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

// Store holds all approval state in maps guarded by one RWMutex.
type Store struct {
	mux       sync.RWMutex
	modules   map[string]*repository.Module
	flows     map[string]*repository.ApprovalFlow
	instances map[string]*repository.ApprovalInstance
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		modules:   make(map[string]*repository.Module),
		flows:     make(map[string]*repository.ApprovalFlow),
		instances: make(map[string]*repository.ApprovalInstance),
	}
}

// ── module catalog ───────────────────────────────────────────────────────────

func (s *Store) SaveModule(_ context.Context, m *repository.Module) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	now := time.Now()
	if m.ID == "" {
		m.ID = uuid.NewString()
		m.CreatedAt = now
	} else if _, ok := s.modules[m.ID]; !ok {
		return errors.NotFound("module", m.ID)
	}
	m.UpdatedAt = now
	s.modules[m.ID] = cloneModule(m)
	return nil
}

func (s *Store) GetModule(_ context.Context, id string) (*repository.Module, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	m, ok := s.modules[id]
	if !ok {
		return nil, errors.NotFound("module", id)
	}
	return cloneModule(m), nil
}

func (s *Store) ListModules(_ context.Context) ([]*repository.Module, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	out := make([]*repository.Module, 0, len(s.modules))
	for _, m := range s.modules {
		out = append(out, cloneModule(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ── flow catalog ─────────────────────────────────────────────────────────────

func (s *Store) SaveFlow(_ context.Context, flow *repository.ApprovalFlow) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	now := time.Now()
	if flow.ID == "" {
		flow.ID = uuid.NewString()
		flow.CreatedAt = now
	} else if _, ok := s.flows[flow.ID]; !ok {
		return errors.NotFound("approval_flow", flow.ID)
	}
	flow.UpdatedAt = now

	// At most one default per module.
	if flow.IsDefault {
		for _, other := range s.flows {
			if other.ModuleID == flow.ModuleID && other.ID != flow.ID {
				other.IsDefault = false
			}
		}
	}

	for _, rule := range flow.Rules {
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		rule.FlowID = flow.ID
	}
	for _, step := range flow.Steps {
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.FlowID = flow.ID
	}

	s.flows[flow.ID] = cloneFlow(flow)
	return nil
}

func (s *Store) GetFlow(_ context.Context, id string) (*repository.ApprovalFlow, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	flow, ok := s.flows[id]
	if !ok {
		return nil, errors.NotFound("approval_flow", id)
	}
	return cloneFlow(flow), nil
}

func (s *Store) DeleteFlow(_ context.Context, id string) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if _, ok := s.flows[id]; !ok {
		return errors.NotFound("approval_flow", id)
	}
	delete(s.flows, id)
	return nil
}

func (s *Store) ListFlows(_ context.Context, moduleID string) ([]*repository.ApprovalFlow, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	var out []*repository.ApprovalFlow
	for _, flow := range s.flows {
		if flow.ModuleID == moduleID {
			out = append(out, cloneFlow(flow))
		}
	}
	sortFlows(out)
	return out, nil
}

func (s *Store) ListCandidates(_ context.Context, moduleID string) ([]*repository.ApprovalFlow, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	if m, ok := s.modules[moduleID]; !ok || !m.IsActive {
		return nil, nil
	}

	var out []*repository.ApprovalFlow
	for _, flow := range s.flows {
		if flow.ModuleID == moduleID && flow.IsActive && len(flow.Rules) > 0 {
			out = append(out, cloneFlow(flow))
		}
	}
	sortFlows(out)
	return out, nil
}

func (s *Store) GetDefault(_ context.Context, moduleID string) (*repository.ApprovalFlow, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	if m, ok := s.modules[moduleID]; !ok || !m.IsActive {
		return nil, nil
	}
	for _, flow := range s.flows {
		if flow.ModuleID == moduleID && flow.IsActive && flow.IsDefault {
			return cloneFlow(flow), nil
		}
	}
	return nil, nil
}

// ── instance store ───────────────────────────────────────────────────────────

func (s *Store) Create(_ context.Context, inst *repository.ApprovalInstance) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	now := time.Now()
	inst.ID = uuid.NewString()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	inst.Version = 1
	for _, step := range inst.Steps {
		step.ID = uuid.NewString()
		step.InstanceID = inst.ID
	}
	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*repository.ApprovalInstance, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, errors.NotFound("approval_instance", id)
	}
	return cloneInstance(inst), nil
}

func (s *Store) ListPendingForApprover(_ context.Context, actorID string) ([]*repository.ApprovalInstance, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	var out []*repository.ApprovalInstance
	for _, inst := range s.instances {
		if inst.Status == repository.StatusPending && inst.EligibleFor(actorID) {
			out = append(out, cloneInstance(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListExpired(_ context.Context, asOf time.Time, limit int) ([]*repository.ApprovalInstance, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	var out []*repository.ApprovalInstance
	for _, inst := range s.instances {
		if inst.Status == repository.StatusPending &&
			inst.CurrentStepDeadline != nil &&
			!inst.CurrentStepDeadline.After(asOf) {
			out = append(out, cloneInstance(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CurrentStepDeadline.Before(*out[j].CurrentStepDeadline)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ApplyTransition commits the transition only when the stored version
// still matches expectedVersion; otherwise the caller lost the race.
// The version bump and the decision append happen under one lock, so a
// transition is never half-applied.
func (s *Store) ApplyTransition(_ context.Context, inst *repository.ApprovalInstance, expectedVersion int64, entry *repository.DecisionEntry) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	cur, ok := s.instances[inst.ID]
	if !ok {
		return errors.NotFound("approval_instance", inst.ID)
	}
	if cur.Version != expectedVersion {
		return errors.New(errors.ErrCodeAlreadyDecided, "instance was modified concurrently")
	}

	entry.ID = uuid.NewString()
	entry.InstanceID = inst.ID

	inst.Version = expectedVersion + 1
	inst.UpdatedAt = time.Now()
	inst.Decisions = append(cloneDecisions(cur.Decisions), cloneDecision(entry))
	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

// ── clone helpers ────────────────────────────────────────────────────────────

func sortFlows(flows []*repository.ApprovalFlow) {
	sort.Slice(flows, func(i, j int) bool {
		if flows[i].Priority != flows[j].Priority {
			return flows[i].Priority < flows[j].Priority
		}
		return flows[i].ID < flows[j].ID
	})
}

func cloneModule(m *repository.Module) *repository.Module {
	cp := *m
	return &cp
}

func cloneFlow(f *repository.ApprovalFlow) *repository.ApprovalFlow {
	cp := *f
	if f.TimeoutPeriod != nil {
		d := *f.TimeoutPeriod
		cp.TimeoutPeriod = &d
	}
	cp.Rules = make([]*repository.FlowRule, len(f.Rules))
	for i, r := range f.Rules {
		rc := *r
		cp.Rules[i] = &rc
	}
	cp.Steps = make([]*repository.FlowStep, len(f.Steps))
	for i, st := range f.Steps {
		sc := *st
		if st.ApproverRef != nil {
			ref := *st.ApproverRef
			sc.ApproverRef = &ref
		}
		cp.Steps[i] = &sc
	}
	return &cp
}

func cloneInstance(i *repository.ApprovalInstance) *repository.ApprovalInstance {
	cp := *i
	cp.CurrentApproverIDs = append([]string(nil), i.CurrentApproverIDs...)
	if i.CurrentStepDeadline != nil {
		t := *i.CurrentStepDeadline
		cp.CurrentStepDeadline = &t
	}
	if i.TimeoutPeriod != nil {
		d := *i.TimeoutPeriod
		cp.TimeoutPeriod = &d
	}
	if i.DecidedAt != nil {
		t := *i.DecidedAt
		cp.DecidedAt = &t
	}
	cp.Steps = make([]*repository.InstanceStep, len(i.Steps))
	for idx, st := range i.Steps {
		sc := *st
		if st.ApproverRef != nil {
			ref := *st.ApproverRef
			sc.ApproverRef = &ref
		}
		cp.Steps[idx] = &sc
	}
	cp.Decisions = cloneDecisions(i.Decisions)
	return &cp
}

func cloneDecisions(entries []*repository.DecisionEntry) []*repository.DecisionEntry {
	out := make([]*repository.DecisionEntry, len(entries))
	for i, e := range entries {
		out[i] = cloneDecision(e)
	}
	return out
}

func cloneDecision(e *repository.DecisionEntry) *repository.DecisionEntry {
	cp := *e
	if e.Comment != nil {
		c := *e.Comment
		cp.Comment = &c
	}
	return &cp
}
