package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

func TestGetUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users/alice", r.URL.Path)
		json.NewEncoder(w).Encode(User{ID: "alice", Active: true, RoleID: "MANAGER"})
	}))
	defer srv.Close()

	user, err := NewDirectoryClient(srv.URL).GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.ID)
	assert.True(t, user.Active)
	assert.Equal(t, "MANAGER", user.RoleID)
}

func TestGetUserNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewDirectoryClient(srv.URL).GetUser(context.Background(), "ghost")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound), "got %v", err)
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(User{ID: "alice", Active: true})
	}))
	defer srv.Close()

	user, err := NewDirectoryClient(srv.URL).GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoesNotRetryHardMisses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewDirectoryClient(srv.URL).GetUser(context.Background(), "ghost")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound), "got %v", err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetRoleHolders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/roles/finance/holders", r.URL.Path)
		json.NewEncoder(w).Encode(map[string][]string{"user_ids": {"alice", "bob"}})
	}))
	defer srv.Close()

	holders, err := NewDirectoryClient(srv.URL).GetRoleHolders(context.Background(), "finance")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, holders)
}

func TestGetDepartmentHeadMissingIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	head, err := NewDirectoryClient(srv.URL).GetDepartmentHead(context.Background(), "dep-1")
	require.NoError(t, err)
	assert.Empty(t, head)
}

func TestIntakeRequestData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/requests/req-1/data", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"amount": 6000, "currency": "EUR"},
		})
	}))
	defer srv.Close()

	data, err := NewIntakeClient(srv.URL).GetRequestData(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, float64(6000), data["amount"])
	assert.Equal(t, "EUR", data["currency"])
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDirectoryClient(srv.URL).GetUser(ctx, "alice")
	require.Error(t, err)
}
