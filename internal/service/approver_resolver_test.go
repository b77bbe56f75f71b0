package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/client"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

func step(approverType repository.ApproverType, ref *string) *repository.InstanceStep {
	return &repository.InstanceStep{StepOrder: 1, ApproverType: approverType, ApproverRef: ref}
}

func TestResolveFixedUser(t *testing.T) {
	directory := newFakeDirectory()
	directory.users["alice"] = &client.User{ID: "alice", Active: true}
	resolver := service.NewApproverResolver(directory)

	got, err := resolver.ResolveApprovers(context.Background(), step(repository.ApproverFixedUser, strPtr("alice")), "dave")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got)
}

func TestResolveFixedUserProblems(t *testing.T) {
	directory := newFakeDirectory()
	directory.users["gone"] = &client.User{ID: "gone", Active: false}
	resolver := service.NewApproverResolver(directory)

	tests := []struct {
		name string
		step *repository.InstanceStep
		code errors.ErrorCode
	}{
		{"missing ref", step(repository.ApproverFixedUser, nil), errors.ErrCodeInvalidApprover},
		{"unknown user", step(repository.ApproverFixedUser, strPtr("ghost")), errors.ErrCodeInvalidApprover},
		{"inactive user", step(repository.ApproverFixedUser, strPtr("gone")), errors.ErrCodeInvalidApprover},
		{"unknown approver type", step("committee", nil), errors.ErrCodeInvalidApprover},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.ResolveApprovers(context.Background(), tt.step, "dave")
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestResolveRoleHolders(t *testing.T) {
	directory := newFakeDirectory()
	directory.roleHolders["finance"] = []string{"alice", "bob"}
	resolver := service.NewApproverResolver(directory)

	got, err := resolver.ResolveApprovers(context.Background(), step(repository.ApproverRole, strPtr("finance")), "dave")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got)

	_, err = resolver.ResolveApprovers(context.Background(), step(repository.ApproverRole, strPtr("empty_role")), "dave")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidApprover), "got %v", err)
}

func TestResolveImmediateSuperior(t *testing.T) {
	directory := newFakeDirectory()
	directory.users["dave"] = &client.User{ID: "dave", Active: true, ImmediateSuperiorID: "boss"}
	directory.users["boss"] = &client.User{ID: "boss", Active: true}
	directory.users["orphan"] = &client.User{ID: "orphan", Active: true}
	resolver := service.NewApproverResolver(directory)

	got, err := resolver.ResolveApprovers(context.Background(), step(repository.ApproverImmediateSuperior, nil), "dave")
	require.NoError(t, err)
	assert.Equal(t, []string{"boss"}, got)

	_, err = resolver.ResolveApprovers(context.Background(), step(repository.ApproverImmediateSuperior, nil), "orphan")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoSuperior), "got %v", err)
}

func TestResolveInactiveSuperior(t *testing.T) {
	directory := newFakeDirectory()
	directory.users["dave"] = &client.User{ID: "dave", Active: true, ImmediateSuperiorID: "boss"}
	directory.users["boss"] = &client.User{ID: "boss", Active: false}
	resolver := service.NewApproverResolver(directory)

	_, err := resolver.ResolveApprovers(context.Background(), step(repository.ApproverImmediateSuperior, nil), "dave")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidApprover), "got %v", err)
}

func TestResolveDepartmentHead(t *testing.T) {
	directory := newFakeDirectory()
	directory.users["dave"] = &client.User{ID: "dave", Active: true, DepartmentID: "dep-1"}
	directory.users["head"] = &client.User{ID: "head", Active: true}
	directory.users["lost"] = &client.User{ID: "lost", Active: true}
	directory.users["adrift"] = &client.User{ID: "adrift", Active: true, DepartmentID: "dep-2"}
	directory.deptHeads["dep-1"] = "head"
	resolver := service.NewApproverResolver(directory)

	got, err := resolver.ResolveApprovers(context.Background(), step(repository.ApproverDepartmentHead, nil), "dave")
	require.NoError(t, err)
	assert.Equal(t, []string{"head"}, got)

	// Requester without a department.
	_, err = resolver.ResolveApprovers(context.Background(), step(repository.ApproverDepartmentHead, nil), "lost")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoDepartmentHead), "got %v", err)

	// Department without a designated head.
	_, err = resolver.ResolveApprovers(context.Background(), step(repository.ApproverDepartmentHead, nil), "adrift")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoDepartmentHead), "got %v", err)
}

func TestResolvePropagatesDirectoryOutage(t *testing.T) {
	directory := newFakeDirectory()
	directory.failWith = errors.New(errors.ErrCodeUnavailable, "directory unreachable")
	resolver := service.NewApproverResolver(directory)

	_, err := resolver.ResolveApprovers(context.Background(), step(repository.ApproverFixedUser, strPtr("alice")), "dave")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnavailable), "got %v", err)
}
