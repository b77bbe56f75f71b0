package client

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// DirectoryClient talks to the Identity & Directory service. Transient
// transport failures are retried with bounded exponential backoff; hard
// misses (unknown user, missing department head) are returned as-is so the
// approver resolver can classify them.
type DirectoryClient struct {
	c *httpClient
}

// NewDirectoryClient creates a client for the given directory base URL.
func NewDirectoryClient(baseURL string) *DirectoryClient {
	return &DirectoryClient{c: newHTTPClient(baseURL)}
}

// GetUser fetches a user profile.
func (d *DirectoryClient) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	err := retryTransient(ctx, func() error {
		return d.c.Get(ctx, fmt.Sprintf("/api/v1/users/%s", id), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetRoleHolders returns the active user ids holding a role.
func (d *DirectoryClient) GetRoleHolders(ctx context.Context, roleID string) ([]string, error) {
	var resp roleHoldersResponse
	err := retryTransient(ctx, func() error {
		return d.c.Get(ctx, fmt.Sprintf("/api/v1/roles/%s/holders", roleID), &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.UserIDs, nil
}

// GetDepartmentHead returns the user id designated as head of the
// department, or "" when the department has no head configured.
func (d *DirectoryClient) GetDepartmentHead(ctx context.Context, departmentID string) (string, error) {
	var resp departmentHeadResponse
	err := retryTransient(ctx, func() error {
		return d.c.Get(ctx, fmt.Sprintf("/api/v1/departments/%s/head", departmentID), &resp)
	})
	if errors.IsCode(err, errors.ErrCodeNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return resp.UserID, nil
}

// retryTransient retries op with exponential backoff while it fails with
// UNAVAILABLE; any other error aborts immediately.
func retryTransient(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.IsCode(err, errors.ErrCodeUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
}
