package credentials

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"issuedeck/internal/api"
	"issuedeck/internal/db"
	"issuedeck/internal/models"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return database
}

func TestResolveForRepository(t *testing.T) {
	database := newTestDB(t)
	store := NewStore(database)

	if _, ok := store.ResolveForRepository("orgA/x"); ok {
		t.Fatal("expected no resolution with an empty store")
	}

	if err := store.SetPersonal(&models.Credential{Token: "personal-secret", Login: "alice"}); err != nil {
		t.Fatalf("SetPersonal: %v", err)
	}
	if err := store.SetForOrg("orgA", &models.Credential{Token: "orgA-secret", Login: "alice"}); err != nil {
		t.Fatalf("SetForOrg: %v", err)
	}

	tests := []struct {
		fullName string
		want     string
	}{
		{"orgA/x", "orgA-secret"},
		{"alice/y", "personal-secret"},
		{"someoneelse/z", "personal-secret"},
	}
	for _, tt := range tests {
		got, ok := store.ResolveForRepository(tt.fullName)
		if !ok || got != tt.want {
			t.Errorf("ResolveForRepository(%q) = %q, %v; want %q", tt.fullName, got, ok, tt.want)
		}
	}

	if err := store.RemoveForOrg("orgA"); err != nil {
		t.Fatalf("RemoveForOrg: %v", err)
	}
	if got, ok := store.ResolveForRepository("orgA/x"); !ok || got != "personal-secret" {
		t.Errorf("expected fallback to personal after org removal, got %q, %v", got, ok)
	}

	if err := store.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if _, ok := store.ResolveForRepository("alice/y"); ok {
		t.Error("expected no resolution after ClearAll")
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	database := newTestDB(t)

	store := NewStore(database)
	if err := store.SetPersonal(&models.Credential{Token: "p", Login: "alice"}); err != nil {
		t.Fatalf("SetPersonal: %v", err)
	}
	if err := store.SetForOrg("acme", &models.Credential{Token: "a", Login: "alice"}); err != nil {
		t.Fatalf("SetForOrg: %v", err)
	}

	// A fresh store over the same database sees the same credentials.
	reloaded := NewStore(database)
	if !reloaded.HasAny() {
		t.Fatal("expected the reloaded store to have credentials")
	}
	all := reloaded.ListAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(all))
	}
	if !all[0].IsPersonal() {
		t.Error("expected the personal credential first in ListAll")
	}
	if reloaded.ForOrg("acme") == nil {
		t.Error("expected the acme credential to survive the restart")
	}
	if reloaded.Personal().AddedAt.IsZero() {
		t.Error("expected AddedAt to be stamped and persisted")
	}
}

func TestMutationsInvalidateRepositoryCache(t *testing.T) {
	database := newTestDB(t)
	store := NewStore(database)

	seed := func() {
		err := database.SaveRepositoryCache([]*models.Repository{
			{ID: 1, FullName: "alice/site", Owner: "alice", OwnerType: "User", UpdatedAt: time.Now()},
		}, time.Now())
		if err != nil {
			t.Fatalf("SaveRepositoryCache: %v", err)
		}
	}
	cacheStamp := func() time.Time {
		_, fetchedAt, err := database.LoadRepositoryCache()
		if err != nil {
			t.Fatalf("LoadRepositoryCache: %v", err)
		}
		return fetchedAt
	}

	seed()
	if err := store.SetPersonal(&models.Credential{Token: "p", Login: "alice"}); err != nil {
		t.Fatalf("SetPersonal: %v", err)
	}
	if !cacheStamp().IsZero() {
		t.Error("SetPersonal should invalidate the repository cache")
	}

	seed()
	if err := store.SetForOrg("acme", &models.Credential{Token: "a", Login: "alice"}); err != nil {
		t.Fatalf("SetForOrg: %v", err)
	}
	if !cacheStamp().IsZero() {
		t.Error("SetForOrg should invalidate the repository cache")
	}

	seed()
	if err := store.RemoveForOrg("acme"); err != nil {
		t.Fatalf("RemoveForOrg: %v", err)
	}
	if !cacheStamp().IsZero() {
		t.Error("RemoveForOrg should invalidate the repository cache")
	}

	seed()
	if err := store.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if !cacheStamp().IsZero() {
		t.Error("ClearAll should invalidate the repository cache")
	}
}

func TestRecordFailureStampsDiagnostics(t *testing.T) {
	database := newTestDB(t)
	store := NewStore(database)
	then := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return then }

	if err := store.SetPersonal(&models.Credential{Token: "p", Login: "alice"}); err != nil {
		t.Fatalf("SetPersonal: %v", err)
	}
	store.RecordFailure("", "rate limited")

	cred := store.Personal()
	if cred.LastError != "rate limited" || !cred.LastErrorTime.Equal(then) {
		t.Errorf("diagnostics not recorded: %+v", cred)
	}

	// Diagnostics survive a restart.
	reloaded := NewStore(database)
	if reloaded.Personal().LastError != "rate limited" {
		t.Error("expected the diagnostic to be persisted")
	}
}

func TestValidateToken(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/api/v3/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"Bad credentials"}`)
			return
		}
		w.Header().Set("X-OAuth-Scopes", "repo")
		fmt.Fprint(w, `{"login":"alice"}`)
	})
	mux.HandleFunc("/api/v3/user/repos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", fmt.Sprintf(`<%s/api/v3/user/repos?page=7&per_page=1>; rel="last"`, server.URL))
		fmt.Fprint(w, `[{"id":1,"full_name":"alice/site"}]`)
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	database := newTestDB(t)
	store := NewStore(database)
	store.ClientFactory = func(token string) *api.Client {
		client, err := api.NewClientWithBase(token, server.URL)
		if err != nil {
			t.Fatalf("NewClientWithBase: %v", err)
		}
		return client
	}

	check := store.ValidateToken(context.Background(), "good-token")
	if !check.Valid {
		t.Fatalf("expected a valid result, got error %q", check.Error)
	}
	if check.Login != "alice" || check.Scopes != "repo" {
		t.Errorf("unexpected identity: %+v", check)
	}
	if check.RepoCount != 7 {
		t.Errorf("expected repo count estimate 7, got %d", check.RepoCount)
	}

	// An invalid token is a normal result, not an error.
	check = store.ValidateToken(context.Background(), "bad-token")
	if check.Valid {
		t.Fatal("expected an invalid result")
	}
	if check.Error == "" {
		t.Error("expected the rejection reason to be reported")
	}
}
