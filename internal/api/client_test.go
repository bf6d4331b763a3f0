package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestClient points a Client at a local fake of the API. go-github
// routes enterprise base URLs under /api/v3/, so handlers register
// there.
func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClientWithBase("test-token", server.URL)
	if err != nil {
		t.Fatalf("NewClientWithBase: %v", err)
	}
	return client, server
}

func TestUserRepositoriesFollowsLinkHeader(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/api/v3/user/repos", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v3/user/repos?page=2>; rel="next"`, server.URL))
			fmt.Fprint(w, `[{"id":1,"full_name":"alice/one"},{"id":2,"full_name":"alice/two"}]`)
		case "2":
			fmt.Fprint(w, `[{"id":3,"full_name":"alice/three"}]`)
		default:
			t.Errorf("unexpected page %q requested", r.URL.Query().Get("page"))
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	client, srv := newTestClient(t, mux)
	server = srv

	repos, err := client.UserRepositories(context.Background(), "all")
	if err != nil {
		t.Fatalf("UserRepositories: %v", err)
	}
	if len(repos) != 3 {
		t.Fatalf("expected 3 repositories across 2 pages, got %d", len(repos))
	}
	if repos[2].GetFullName() != "alice/three" {
		t.Errorf("expected last repo alice/three, got %s", repos[2].GetFullName())
	}
}

func TestRemoteErrorsCarryStatusAndMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/alice/one/issues/5/comments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"Validation Failed"}`)
	})

	client, _ := newTestClient(t, mux)

	_, err := client.CreateComment(context.Background(), "alice", "one", 5, "hello")
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *RemoteAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *RemoteAPIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "Validation Failed" {
		t.Errorf("expected the remote message, got %q", apiErr.Message)
	}
	if StatusOf(err) != 422 {
		t.Errorf("StatusOf: expected 422, got %d", StatusOf(err))
	}
}

func TestIdentityReadsLoginAndScopes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OAuth-Scopes", "repo, read:org")
		fmt.Fprint(w, `{"login":"alice"}`)
	})

	client, _ := newTestClient(t, mux)

	login, scopes, err := client.Identity(context.Background())
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if login != "alice" {
		t.Errorf("expected login alice, got %q", login)
	}
	if scopes != "repo, read:org" {
		t.Errorf("expected scope summary, got %q", scopes)
	}
}

func TestRepoCountEstimateUsesLastPageCursor(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/api/v3/user/repos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", fmt.Sprintf(
			`<%s/api/v3/user/repos?page=2&per_page=1>; rel="next", <%s/api/v3/user/repos?page=42&per_page=1>; rel="last"`,
			server.URL, server.URL))
		fmt.Fprint(w, `[{"id":1,"full_name":"alice/one"}]`)
	})

	client, srv := newTestClient(t, mux)
	server = srv

	count, err := client.RepoCountEstimate(context.Background())
	if err != nil {
		t.Fatalf("RepoCountEstimate: %v", err)
	}
	if count != 42 {
		t.Errorf("expected estimate 42 from the last-page cursor, got %d", count)
	}
}

func TestFileContentDecodesBase64(t *testing.T) {
	raw := "on:\n  workflow_dispatch:\n"
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/alice/one/contents/.github/workflows/ci.yml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","name":"ci.yml","content":%q}`,
			base64.StdEncoding.EncodeToString([]byte(raw)))
	})

	client, _ := newTestClient(t, mux)

	content, err := client.FileContent(context.Background(), "alice", "one", ".github/workflows/ci.yml")
	if err != nil {
		t.Fatalf("FileContent: %v", err)
	}
	if content != raw {
		t.Errorf("expected decoded content %q, got %q", raw, content)
	}
}
