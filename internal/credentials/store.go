package credentials

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"issuedeck/internal/api"
	"issuedeck/internal/db"
	"issuedeck/internal/models"
)

// Store owns the credential set: zero or one personal credential plus
// zero or more organization-scoped ones. Every mutation persists the
// whole set and invalidates the repository cache, since a changed
// credential set changes which repositories are visible.
type Store struct {
	db *db.DB

	// ClientFactory builds the API client used for token validation.
	// Overridable so tests can point it at a local server.
	ClientFactory func(token string) *api.Client

	mu       sync.Mutex
	personal *models.Credential
	orgs     map[string]*models.Credential

	now func() time.Time
}

// NewStore loads the persisted credential set from the database.
// Unreadable stored state degrades to an empty store (logged out)
// rather than an error.
func NewStore(database *db.DB) *Store {
	s := &Store{
		db:            database,
		ClientFactory: api.NewClient,
		orgs:          make(map[string]*models.Credential),
		now:           time.Now,
	}

	creds, err := database.LoadCredentials()
	if err != nil {
		log.Printf("Could not load stored credentials, starting logged out: %v", err)
		return s
	}
	for _, c := range creds {
		if c.IsPersonal() {
			s.personal = c
		} else {
			s.orgs[c.Org] = c
		}
	}
	return s
}

// Personal returns the personal credential, or nil if none is set.
func (s *Store) Personal() *models.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personal
}

// SetPersonal replaces the personal credential. AddedAt and
// LastValidated are stamped here.
func (s *Store) SetPersonal(cred *models.Credential) error {
	s.mu.Lock()
	cred.Org = ""
	cred.AddedAt = s.now()
	cred.LastValidated = s.now()
	s.personal = cred
	s.mu.Unlock()
	return s.persist()
}

// ForOrg returns the credential for an organization, or nil.
func (s *Store) ForOrg(name string) *models.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orgs[name]
}

// SetForOrg replaces the credential for an organization.
func (s *Store) SetForOrg(name string, cred *models.Credential) error {
	s.mu.Lock()
	cred.Org = name
	cred.AddedAt = s.now()
	cred.LastValidated = s.now()
	s.orgs[name] = cred
	s.mu.Unlock()
	return s.persist()
}

// RemoveForOrg deletes an organization's credential. Removing a name
// that isn't stored is a no-op.
func (s *Store) RemoveForOrg(name string) error {
	s.mu.Lock()
	_, ok := s.orgs[name]
	delete(s.orgs, name)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.persist()
}

// ResolveForRepository returns the secret to use for a repository
// given as "owner/name": the owner's organization credential when one
// exists, the personal credential otherwise, absent when neither does.
func (s *Store) ResolveForRepository(fullName string) (string, bool) {
	owner := fullName
	if i := strings.Index(fullName, "/"); i >= 0 {
		owner = fullName[:i]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cred, ok := s.orgs[owner]; ok {
		return cred.Token, true
	}
	if s.personal != nil {
		return s.personal.Token, true
	}
	return "", false
}

// ResolveCredential is ResolveForRepository returning the whole
// credential, for callers that also need the owning login.
func (s *Store) ResolveCredential(fullName string) (*models.Credential, bool) {
	owner := fullName
	if i := strings.Index(fullName, "/"); i >= 0 {
		owner = fullName[:i]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cred, ok := s.orgs[owner]; ok {
		return cred, true
	}
	if s.personal != nil {
		return s.personal, true
	}
	return nil, false
}

// ListAll returns every stored credential, personal first.
func (s *Store) ListAll() []*models.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Store) listLocked() []*models.Credential {
	var creds []*models.Credential
	if s.personal != nil {
		creds = append(creds, s.personal)
	}
	for _, c := range s.orgs {
		creds = append(creds, c)
	}
	return creds
}

// HasAny reports whether at least one credential is stored.
func (s *Store) HasAny() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personal != nil || len(s.orgs) > 0
}

// ClearAll wipes the personal credential and every organization entry.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	s.personal = nil
	s.orgs = make(map[string]*models.Credential)
	s.mu.Unlock()
	return s.persist()
}

// RecordFailure writes a diagnostic against the credential identified
// by org ("" for personal). Diagnostics feed the status display and
// never affect routing.
func (s *Store) RecordFailure(org string, message string) {
	s.mu.Lock()
	cred := s.personal
	if org != "" {
		cred = s.orgs[org]
	}
	if cred != nil {
		cred.LastError = message
		cred.LastErrorTime = s.now()
	}
	s.mu.Unlock()

	if cred != nil {
		if err := s.db.SaveCredentials(s.ListAll()); err != nil {
			log.Printf("Could not persist credential diagnostics: %v", err)
		}
	}
}

// persist writes the whole credential set and invalidates the
// repository cache. The cache wipe is best effort.
func (s *Store) persist() error {
	if err := s.db.SaveCredentials(s.ListAll()); err != nil {
		return err
	}
	if err := s.db.InvalidateRepositoryCache(); err != nil {
		log.Printf("Could not invalidate repository cache: %v", err)
	}
	return nil
}

// ValidateToken checks a raw token against the API: an identity
// lookup plus a best-effort repository-count probe. An invalid token
// is a normal CredentialCheck result, never an error.
func (s *Store) ValidateToken(ctx context.Context, token string) *models.CredentialCheck {
	client := s.ClientFactory(token)

	login, scopes, err := client.Identity(ctx)
	if err != nil {
		return &models.CredentialCheck{Valid: false, Error: err.Error()}
	}

	check := &models.CredentialCheck{
		Valid:  true,
		Login:  login,
		Scopes: scopes,
	}

	count, err := client.RepoCountEstimate(ctx)
	if err != nil {
		check.RepoAccessError = err.Error()
	} else {
		check.RepoCount = count
	}
	return check
}
