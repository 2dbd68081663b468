package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakeops/internal/core"
	apperrors "bakeops/pkg/errors"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, f ...interface{})               {}
func (m *mockLogger) Info(msg string, f ...interface{})                {}
func (m *mockLogger) Warn(msg string, f ...interface{})                {}
func (m *mockLogger) Error(msg string, f ...interface{})               {}
func (m *mockLogger) Fatal(msg string, f ...interface{})               {}
func (m *mockLogger) WithField(k string, v interface{}) core.ILogger   { return m }
func (m *mockLogger) WithFields(f map[string]interface{}) core.ILogger { return m }

func staticToken(token string) func() (string, error) {
	return func() (string, error) { return token, nil }
}

func TestClient_ListBuildsQueryAndTagsKind(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{}
		for k, v := range r.URL.Query() {
			gotQuery[k] = v[0]
		}
		json.NewEncoder(w).Encode(Page{
			Items: []core.Record{{ID: "ret-1", Number: "RET-0001", Status: core.StatusPendingApproval}},
			Total: 42,
		})
	}))
	defer server.Close()

	c := NewClientForBase(server.URL, 5*time.Second, staticToken("tok"), &mockLogger{})
	page, err := c.List(context.Background(), core.KindReturn, Query{
		Status:    core.StatusPendingApproval,
		Branch:    "branch-2",
		Search:    "RET",
		SortBy:    "createdAt",
		SortOrder: core.SortDesc,
		Page:      2,
		Limit:     50,
	})
	require.NoError(t, err)

	assert.Equal(t, "/returns", gotPath)
	assert.Equal(t, "pending_approval", gotQuery["status"])
	assert.Equal(t, "branch-2", gotQuery["branch"])
	assert.Equal(t, "RET", gotQuery["search"])
	assert.Equal(t, "createdAt", gotQuery["sortBy"])
	assert.Equal(t, "desc", gotQuery["sortOrder"])
	assert.Equal(t, "2", gotQuery["page"])
	assert.Equal(t, "50", gotQuery["limit"])

	assert.Equal(t, 42, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, core.KindReturn, page.Items[0].Kind, "kind is stamped onto fetched records")
}

func TestClient_UpdateStatus(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody StatusUpdate
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(StatusResult{AdjustedTotal: decimal.NewFromInt(80), ReviewNotes: "short"})
	}))
	defer server.Close()

	c := NewClientForBase(server.URL, 5*time.Second, staticToken("tok"), &mockLogger{})
	result, err := c.UpdateStatus(context.Background(), core.KindReturn, "ret-1", StatusUpdate{
		Status:      core.StatusApproved,
		ReviewNotes: "short",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/returns/ret-1/status", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, core.StatusApproved, gotBody.Status)
	assert.True(t, result.AdjustedTotal.Equal(decimal.NewFromInt(80)))
}

func TestClient_ClassifiesHTTPFailures(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, apperrors.ErrAuthorization},
		{http.StatusForbidden, apperrors.ErrAuthorization},
		{http.StatusNotFound, apperrors.ErrRecordNotFound},
		{http.StatusUnprocessableEntity, apperrors.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			c := NewClientForBase(server.URL, 5*time.Second, staticToken("tok"), &mockLogger{})
			_, err := c.List(context.Background(), core.KindReturn, Query{Page: 1, Limit: 10})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestClient_NetworkFailureIsErrNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	c := NewClientForBase(server.URL, time.Second, staticToken("tok"), &mockLogger{})
	_, err := c.List(context.Background(), core.KindOrder, Query{Page: 1, Limit: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
}
