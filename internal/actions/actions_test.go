package actions

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"issuedeck/internal/api"
	"issuedeck/internal/credentials"
	"issuedeck/internal/db"
	"issuedeck/internal/models"
)

func newTestService(t *testing.T, handler http.Handler) (*Service, *credentials.Store) {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	store := credentials.NewStore(database)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	service := New(store)
	service.NewClient = func(token string) *api.Client {
		client, err := api.NewClientWithBase(token, server.URL)
		if err != nil {
			t.Fatalf("NewClientWithBase: %v", err)
		}
		return client
	}
	return service, store
}

func loginAs(t *testing.T, store *credentials.Store, login string) {
	t.Helper()
	if err := store.SetPersonal(&models.Credential{Token: "p-tok", Login: login}); err != nil {
		t.Fatalf("SetPersonal: %v", err)
	}
}

func failWith(status int, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"message":%q}`, message)
	}
}

func TestMutationsRequireACredential(t *testing.T) {
	service, _ := newTestService(t, http.NewServeMux())

	_, err := service.AddComment(context.Background(), "alice", "repo1", 5, "hi")
	if !errors.Is(err, api.ErrNoCredential) {
		t.Errorf("expected ErrNoCredential before any network attempt, got %v", err)
	}
}

func TestRemoteStatusesAreTranslated(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		owner      string
		wantPhrase string
	}{
		{"unauthorized", http.StatusUnauthorized, "alice", "credential invalid or expired"},
		{"forbidden on own repo", http.StatusForbidden, "alice", "insufficient permission"},
		{"forbidden on foreign owner", http.StatusForbidden, "acme", "organization credential"},
		{"not found", http.StatusNotFound, "alice", "not found"},
		{"unprocessable", http.StatusUnprocessableEntity, "alice", "rejected as invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc(fmt.Sprintf("/api/v3/repos/%s/repo1/issues/5/comments", tt.owner),
				failWith(tt.status, "remote says no"))

			service, store := newTestService(t, mux)
			loginAs(t, store, "alice")

			_, err := service.AddComment(context.Background(), tt.owner, "repo1", 5, "hi")
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantPhrase) {
				t.Errorf("expected guidance containing %q, got %q", tt.wantPhrase, err.Error())
			}
			var apiErr *api.RemoteAPIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
				t.Errorf("expected the original %d error in the chain, got %v", tt.status, err)
			}
		})
	}
}

func TestAddCommentReturnsTheParsedComment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/alice/repo1/issues/5/comments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":77,"body":"hi","user":{"login":"alice"},"created_at":"2026-02-01T10:00:00Z"}`)
	})

	service, store := newTestService(t, mux)
	loginAs(t, store, "alice")

	comment, err := service.AddComment(context.Background(), "alice", "repo1", 5, "hi")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if comment.ID != 77 || comment.Author != "alice" || comment.Body != "hi" {
		t.Errorf("unexpected comment: %+v", comment)
	}
}

func TestToggleReactionAddsWhenAbsent(t *testing.T) {
	var posted bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/alice/repo1/issues/5/reactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `[{"id":1,"content":"heart","user":{"login":"someone-else"}}]`)
		case http.MethodPost:
			posted = true
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":2,"content":"heart","user":{"login":"alice"}}`)
		}
	})

	service, store := newTestService(t, mux)
	loginAs(t, store, "alice")

	active, err := service.ToggleReaction(context.Background(), "alice", "repo1", 5, "heart", "alice")
	if err != nil {
		t.Fatalf("ToggleReaction: %v", err)
	}
	if !active || !posted {
		t.Errorf("expected the reaction added (active=%v posted=%v)", active, posted)
	}
}

func TestToggleReactionRemovesWhenPresent(t *testing.T) {
	var deleted bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/alice/repo1/issues/5/reactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s on the listing endpoint", r.Method)
		}
		fmt.Fprint(w, `[{"id":42,"content":"heart","user":{"login":"alice"}}]`)
	})
	mux.HandleFunc("/api/v3/repos/alice/repo1/issues/5/reactions/42", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})

	service, store := newTestService(t, mux)
	loginAs(t, store, "alice")

	active, err := service.ToggleReaction(context.Background(), "alice", "repo1", 5, "heart", "alice")
	if err != nil {
		t.Fatalf("ToggleReaction: %v", err)
	}
	if active || !deleted {
		t.Errorf("expected the reaction removed (active=%v deleted=%v)", active, deleted)
	}
}

func TestMergePullRequestValidatesMethod(t *testing.T) {
	service, store := newTestService(t, http.NewServeMux())
	loginAs(t, store, "alice")

	err := service.MergePullRequest(context.Background(), "alice", "repo1", 5, "msg", "fast-forward")
	if err == nil || !strings.Contains(err.Error(), "merge method") {
		t.Errorf("expected a merge method validation error, got %v", err)
	}
}

func TestMergePullRequestReportsRefusal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/alice/repo1/pulls/5/merge", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		fmt.Fprint(w, `{"merged":false,"message":"Base branch was modified"}`)
	})

	service, store := newTestService(t, mux)
	loginAs(t, store, "alice")

	err := service.MergePullRequest(context.Background(), "alice", "repo1", 5, "msg", "squash")
	if err == nil || !strings.Contains(err.Error(), "merge refused") {
		t.Errorf("expected the refusal surfaced, got %v", err)
	}
}

func TestSetIssueStateValidatesState(t *testing.T) {
	service, store := newTestService(t, http.NewServeMux())
	loginAs(t, store, "alice")

	_, err := service.SetIssueState(context.Background(), "alice", "repo1", 5, "done")
	if err == nil || !strings.Contains(err.Error(), "issue state") {
		t.Errorf("expected a state validation error, got %v", err)
	}
}

func TestSetIssueStateReturnsServerEcho(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/alice/repo1/issues/5", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		fmt.Fprint(w, `{"number":5,"title":"t","state":"closed","updated_at":"2026-02-01T10:00:00Z"}`)
	})

	service, store := newTestService(t, mux)
	loginAs(t, store, "alice")

	issue, err := service.SetIssueState(context.Background(), "alice", "repo1", 5, "closed")
	if err != nil {
		t.Fatalf("SetIssueState: %v", err)
	}
	if issue.State != "closed" {
		t.Errorf("expected the server's state echoed back, got %q", issue.State)
	}
}

func TestHasWorkflowDispatch(t *testing.T) {
	withDispatch := "on:\n  workflow_dispatch:\n  push:\n"
	withoutDispatch := "on:\n  push:\n"

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/alice/repo1/contents/.github/workflows/manual.yml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","content":%q}`,
			base64.StdEncoding.EncodeToString([]byte(withDispatch)))
	})
	mux.HandleFunc("/api/v3/repos/alice/repo1/contents/.github/workflows/ci.yml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","content":%q}`,
			base64.StdEncoding.EncodeToString([]byte(withoutDispatch)))
	})

	service, store := newTestService(t, mux)
	loginAs(t, store, "alice")

	ok, err := service.HasWorkflowDispatch(context.Background(), "alice", "repo1", ".github/workflows/manual.yml")
	if err != nil {
		t.Fatalf("HasWorkflowDispatch: %v", err)
	}
	if !ok {
		t.Error("expected the manually triggerable workflow detected")
	}

	ok, err = service.HasWorkflowDispatch(context.Background(), "alice", "repo1", ".github/workflows/ci.yml")
	if err != nil {
		t.Fatalf("HasWorkflowDispatch: %v", err)
	}
	if ok {
		t.Error("expected no dispatch declaration in the plain CI workflow")
	}
}

func TestDispatchWorkflow(t *testing.T) {
	var dispatched bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/alice/repo1/actions/workflows/manual.yml/dispatches", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		dispatched = true
		w.WriteHeader(http.StatusNoContent)
	})

	service, store := newTestService(t, mux)
	loginAs(t, store, "alice")

	err := service.DispatchWorkflow(context.Background(), "alice", "repo1", "manual.yml", "main", nil)
	if err != nil {
		t.Fatalf("DispatchWorkflow: %v", err)
	}
	if !dispatched {
		t.Error("expected the dispatch endpoint hit")
	}
}
