package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintforge/sprintforge/internal/model"
	"github.com/sprintforge/sprintforge/internal/upstream"
	"github.com/sprintforge/sprintforge/pkg/cache"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *cache.Manager) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	mgr := cache.NewManager(cache.NewMemory(1000), nil, nil)
	pipe := upstream.NewPipeline(Provider, "test-token", nil, mgr, nil, nil, nil)
	pipe.Retry = upstream.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond}

	return NewClient(srv.URL, "secret", pipe, mgr, nil), mgr
}

func TestClient_ListBoards(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/agile/1.0/board", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "Sage", r.URL.Query().Get("name"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"values": []map[string]any{
				{
					"id": 7, "name": "Sage Board", "type": "scrum",
					"location": map[string]any{"projectKey": "SCNT", "projectName": "Sage Connect"},
				},
			},
		})
	}))

	boards, err := client.ListBoards(context.Background(), "Sage", 10)
	require.NoError(t, err)
	require.Len(t, boards, 1)

	assert.Equal(t, "7", boards[0].ID)
	assert.Equal(t, "SCNT", boards[0].ProjectKey)
	assert.Equal(t, model.BoardTypeScrum, boards[0].Type)
}

func TestClient_ListSprints_PaginatesClosed(t *testing.T) {
	t.Parallel()

	pages := []map[string]any{
		{
			"values": []map[string]any{
				{"id": 1, "name": "Sprint 1", "state": "closed", "originBoardId": 7},
			},
			"isLast": false,
		},
		{
			"values": []map[string]any{
				{"id": 2, "name": "Sprint 2", "state": "closed", "originBoardId": 7},
			},
			"isLast": true,
		},
	}

	client, mgr := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startAt := r.URL.Query().Get("startAt")

		page := pages[0]
		if startAt != "0" {
			page = pages[1]
		}

		_ = json.NewEncoder(w).Encode(page)
	}))

	sprints, err := client.ListSprints(context.Background(), "7", model.SprintStateClosed)
	require.NoError(t, err)
	require.Len(t, sprints, 2)

	assert.Equal(t, "1", sprints[0].ID)
	assert.Equal(t, "2", sprints[1].ID)

	// The assembled list is cached under the board's sprint-list key.
	_, ok := mgr.Get(context.Background(), "board:7:sprints:closed")
	assert.True(t, ok)
}

func TestClient_ListSprintIssues(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	client, mgr := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/agile/1.0/sprint/44298/issue", r.URL.Path)

		calls.Add(1)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"total": 1,
			"issues": []map[string]any{
				{
					"key": "scnt-101",
					"id":  "10001",
					"fields": map[string]any{
						"summary":           "Fix login",
						"status":            map[string]any{"name": "Done"},
						"issuetype":         map[string]any{"name": "Bug"},
						"priority":          map[string]any{"name": "High"},
						"assignee":          map[string]any{"displayName": "Dana"},
						"customfield_10016": 5,
						"labels":            []string{"customer-impacting"},
						"created":           "2025-08-06T09:00:00Z",
						"updated":           "2025-08-10T09:00:00Z",
					},
				},
			},
		})
	}))

	issues, err := client.ListSprintIssues(context.Background(), "44298", nil, 100)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	issue := issues[0]
	assert.Equal(t, "SCNT-101", issue.Key)
	assert.Equal(t, "Done", issue.Status)
	assert.Equal(t, "Bug", issue.IssueType)
	assert.Equal(t, "Dana", issue.Assignee)
	assert.InDelta(t, 5.0, issue.StoryPoints, 1e-9)

	_, ok := mgr.Get(context.Background(), "sprint:44298:issues")
	assert.True(t, ok)

	// Served from the sprint issues entry on repeat.
	again, err := client.ListSprintIssues(context.Background(), "44298", nil, 100)
	require.NoError(t, err)
	assert.Len(t, again, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_GetIssueDetails_Changelog(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/issue/SCNT-1", r.URL.Path)
		assert.Equal(t, "changelog", r.URL.Query().Get("expand"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"key": "SCNT-1",
			"id":  "10000",
			"fields": map[string]any{
				"summary":   "Task",
				"status":    map[string]any{"name": "Done"},
				"issuetype": map[string]any{"name": "Task"},
				"priority":  map[string]any{"name": "Medium"},
				"created":   "2025-08-01T09:00:00Z",
				"updated":   "2025-08-05T09:00:00Z",
			},
			"changelog": map[string]any{
				"histories": []map[string]any{
					{
						"created": "2025-08-02T10:00:00Z",
						"items": []map[string]any{
							{"field": "status", "fromString": "To Do", "toString": "In Progress"},
							{"field": "assignee", "fromString": "", "toString": "Dana"},
						},
					},
				},
			},
		})
	}))

	issue, err := client.GetIssueDetails(context.Background(), "scnt-1", []string{"changelog"})
	require.NoError(t, err)

	require.Len(t, issue.Changelog, 1)
	assert.Equal(t, "In Progress", issue.Changelog[0].To)
}

func TestClient_GetSprint_CachedUnderSprintKey(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	client, mgr := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": 44298, "name": "Sprint 13", "state": "active", "originBoardId": 7,
		})
	}))

	sprint, err := client.GetSprint(context.Background(), "44298")
	require.NoError(t, err)
	assert.Equal(t, "44298", sprint.ID)

	_, ok := mgr.Get(context.Background(), "sprint:44298")
	assert.True(t, ok)

	// Served from the entity cache on repeat.
	_, err = client.GetSprint(context.Background(), "44298")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_GetIssueDetails_ChangelogBypassesPlainEntry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	client, mgr := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		payload := map[string]any{
			"key": "SCNT-9", "id": "10009",
			"fields": map[string]any{
				"summary":   "Task",
				"status":    map[string]any{"name": "Done"},
				"issuetype": map[string]any{"name": "Task"},
				"created":   "2025-08-01T09:00:00Z",
				"updated":   "2025-08-05T09:00:00Z",
			},
		}

		if r.URL.Query().Get("expand") == "changelog" {
			payload["changelog"] = map[string]any{
				"histories": []map[string]any{
					{
						"created": "2025-08-02T10:00:00Z",
						"items":   []map[string]any{{"field": "status", "fromString": "To Do", "toString": "Done"}},
					},
				},
			}
		}

		_ = json.NewEncoder(w).Encode(payload)
	}))

	plain, err := client.GetIssueDetails(context.Background(), "SCNT-9", nil)
	require.NoError(t, err)
	assert.Empty(t, plain.Changelog)

	_, ok := mgr.Get(context.Background(), "issue:SCNT-9")
	assert.True(t, ok)

	// The plain entry cannot satisfy a changelog request.
	expanded, err := client.GetIssueDetails(context.Background(), "SCNT-9", []string{"changelog"})
	require.NoError(t, err)
	require.Len(t, expanded.Changelog, 1)
	assert.Equal(t, int32(2), calls.Load())

	// The expanded entry satisfies it afterwards.
	_, err = client.GetIssueDetails(context.Background(), "SCNT-9", []string{"changelog"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_SearchIssues_SanitisesJQL(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"issues": []any{}})
	}))

	_, err := client.SearchIssues(context.Background(), "project = SCNT AND delete everything", nil, 10)
	require.Error(t, err)
	assert.Equal(t, upstream.KindValidation, upstream.KindOf(err))
	assert.ErrorIs(t, err, ErrJQLRejected)
}

func TestSanitizeJQL(t *testing.T) {
	t.Parallel()

	assert.NoError(t, SanitizeJQL(`project = SCNT AND sprint = 44298 ORDER BY created`))
	assert.Error(t, SanitizeJQL(`DROP table`))
	assert.Error(t, SanitizeJQL(`status = Done; exec(rm)`))
	assert.Error(t, SanitizeJQL(`summary ~ "<script>"`))
}
