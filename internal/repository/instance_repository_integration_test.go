//go:build integration

// These tests run against a real Postgres with migrations applied:
//
//	TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/repository/
package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.NewFromDSN(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func seedTestModule(t *testing.T, db *database.DB) *Module {
	t.Helper()
	m := &Module{Name: "it-" + time.Now().Format("150405.000000000"), IsActive: true}
	require.NoError(t, NewModuleRepository(db).SaveModule(context.Background(), m))
	t.Cleanup(func() {
		db.Exec(context.Background(), `DELETE FROM approval_instances WHERE module_id = $1`, m.ID)
		db.Exec(context.Background(), `DELETE FROM modules WHERE id = $1`, m.ID)
	})
	return m
}

func createTestInstance(t *testing.T, repo *InstanceRepository, moduleID string) *ApprovalInstance {
	t.Helper()
	inst := &ApprovalInstance{
		ModuleID:           moduleID,
		RequestID:          "req-1",
		FlowID:             "4f5a1f7e-3a77-4a37-9a38-0b0f6f9f0001",
		CurrentStepOrder:   1,
		CurrentApproverIDs: []string{"alice"},
		Status:             StatusPending,
		CreatedBy:          "dave",
		Steps: []*InstanceStep{
			{StepOrder: 1, ApproverType: ApproverFixedUser},
			{StepOrder: 2, ApproverType: ApproverImmediateSuperior},
		},
	}
	require.NoError(t, repo.Create(context.Background(), inst))
	return inst
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	db := testDB(t)
	m := seedTestModule(t, db)
	repo := NewInstanceRepository(db)

	inst := createTestInstance(t, repo, m.ID)
	assert.Equal(t, int64(1), inst.Version)
	require.NotEmpty(t, inst.ID)

	got, err := repo.GetByID(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, []string{"alice"}, got.CurrentApproverIDs)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, ApproverImmediateSuperior, got.Steps[1].ApproverType)
	assert.Empty(t, got.Decisions)
}

func TestApplyTransitionToTerminalState(t *testing.T) {
	db := testDB(t)
	m := seedTestModule(t, db)
	repo := NewInstanceRepository(db)
	ctx := context.Background()

	inst := createTestInstance(t, repo, m.ID)

	// Step advance with a fresh approver set.
	inst.CurrentStepOrder = 2
	inst.CurrentApproverIDs = []string{"boss"}
	require.NoError(t, repo.ApplyTransition(ctx, inst, 1, &DecisionEntry{
		StepOrder: 1, ApproverID: "alice", Action: ActionApprove, CreatedAt: time.Now(),
	}))
	assert.Equal(t, int64(2), inst.Version)

	// Terminal approve writes an empty approver set and decided_at.
	now := time.Now()
	inst.Status = StatusApproved
	inst.CurrentApproverIDs = []string{}
	inst.CurrentStepDeadline = nil
	inst.DecidedAt = &now
	require.NoError(t, repo.ApplyTransition(ctx, inst, 2, &DecisionEntry{
		StepOrder: 2, ApproverID: "boss", Action: ActionApprove, CreatedAt: time.Now(),
	}))

	got, err := repo.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.NotNil(t, got.DecidedAt)
	assert.Empty(t, got.CurrentApproverIDs)
	require.Len(t, got.Decisions, 2)
	assert.Equal(t, "alice", got.Decisions[0].ApproverID)
	assert.Equal(t, "boss", got.Decisions[1].ApproverID)
}

func TestApplyTransitionStaleVersion(t *testing.T) {
	db := testDB(t)
	m := seedTestModule(t, db)
	repo := NewInstanceRepository(db)
	ctx := context.Background()

	inst := createTestInstance(t, repo, m.ID)

	inst.Status = StatusRejected
	inst.CurrentApproverIDs = []string{}
	require.NoError(t, repo.ApplyTransition(ctx, inst, 1, &DecisionEntry{
		StepOrder: 1, ApproverID: "alice", Action: ActionReject, CreatedAt: time.Now(),
	}))

	// Replaying against the stale version loses and appends nothing.
	err := repo.ApplyTransition(ctx, inst, 1, &DecisionEntry{
		StepOrder: 1, ApproverID: "bob", Action: ActionApprove, CreatedAt: time.Now(),
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeAlreadyDecided), "got %v", err)

	got, err := repo.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	assert.Len(t, got.Decisions, 1)
}

func TestApplyTransitionMissingInstance(t *testing.T) {
	db := testDB(t)
	repo := NewInstanceRepository(db)

	err := repo.ApplyTransition(context.Background(), &ApprovalInstance{
		ID:                 "9a1f0d3c-0000-4000-8000-000000000000",
		Status:             StatusApproved,
		CurrentStepOrder:   1,
		CurrentApproverIDs: []string{},
	}, 1, &DecisionEntry{StepOrder: 1, ApproverID: "alice", Action: ActionApprove, CreatedAt: time.Now()})
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound), "got %v", err)
}

func TestPendingAndExpiredListings(t *testing.T) {
	db := testDB(t)
	m := seedTestModule(t, db)
	repo := NewInstanceRepository(db)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	inst := createTestInstance(t, repo, m.ID)
	overdue := &ApprovalInstance{
		ModuleID:            m.ID,
		RequestID:           "req-2",
		FlowID:              "4f5a1f7e-3a77-4a37-9a38-0b0f6f9f0002",
		CurrentStepOrder:    1,
		CurrentApproverIDs:  []string{"alice"},
		CurrentStepDeadline: &past,
		Status:              StatusPending,
		CreatedBy:           "dave",
		Steps:               []*InstanceStep{{StepOrder: 1, ApproverType: ApproverFixedUser}},
	}
	require.NoError(t, repo.Create(ctx, overdue))

	pending, err := repo.ListPendingForApprover(ctx, "alice")
	require.NoError(t, err)
	ids := make(map[string]bool, len(pending))
	for _, p := range pending {
		ids[p.ID] = true
	}
	assert.True(t, ids[inst.ID])
	assert.True(t, ids[overdue.ID])

	expired, err := repo.ListExpired(ctx, time.Now(), 100)
	require.NoError(t, err)
	found := false
	for _, e := range expired {
		if e.ID == overdue.ID {
			found = true
		}
		assert.False(t, e.ID == inst.ID, "instance without deadline must not be listed")
	}
	assert.True(t, found)
}
