package models

import (
	"time"
)

// Repository represents a GitHub repository visible to at least one
// credential. Identity is the numeric ID; FullName is display-only and
// must never be used as a merge key.
type Repository struct {
	ID        int64
	FullName  string
	Owner     string
	OwnerType string // "User" or "Organization"
	Private   bool
	HTMLURL   string
	UpdatedAt time.Time

	// Org is set when the repository was surfaced by an
	// organization-scoped credential or an org enumeration pass.
	Org string
}

// Credential is a stored personal access token plus the metadata we
// learned about it at validation time. Org == "" marks the personal
// credential.
type Credential struct {
	Org           string
	Token         string
	Login         string
	Scopes        string
	RepoCount     int
	AddedAt       time.Time
	LastValidated time.Time

	// Diagnostics for the status display; never affect routing.
	LastError     string
	LastErrorTime time.Time
}

// IsPersonal reports whether this is the personal (non-org) credential.
func (c *Credential) IsPersonal() bool {
	return c.Org == ""
}

// CredentialCheck is the result of validating a raw token against the
// API. An invalid token is a normal result, not an error.
type CredentialCheck struct {
	Valid           bool
	Login           string
	Scopes          string
	RepoCount       int
	RepoAccessError string
	Error           string
}

// ReactionSummary mirrors the per-item reaction rollup GitHub returns
// inline on issues and comments.
type ReactionSummary struct {
	TotalCount int
	PlusOne    int
	MinusOne   int
	Laugh      int
	Confused   int
	Heart      int
	Hooray     int
	Rocket     int
	Eyes       int
}

// Issue represents a GitHub issue. Items the API returns with a
// pull-request marker are filtered out before conversion, so an Issue
// here is always a plain issue.
type Issue struct {
	Number    int
	Title     string
	Body      string
	State     string
	Author    string
	Assignees []string
	Comments  int
	Reactions ReactionSummary
	HTMLURL   string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Set at aggregation time from the repository being processed;
	// the API does not return these on the item itself.
	RepositoryName string
	RepositoryURL  string
}

// PullRequest represents a GitHub pull request. No reaction rollup:
// the pulls listing endpoint does not return one.
type PullRequest struct {
	Number    int
	Title     string
	Body      string
	State     string
	Draft     bool
	Merged    bool
	Author    string
	Assignees []string
	Comments  int
	HTMLURL   string
	CreatedAt time.Time
	UpdatedAt time.Time

	RepositoryName string
	RepositoryURL  string
}

// Comment represents an issue or pull request comment.
type Comment struct {
	ID        int64
	Author    string
	Body      string
	HTMLURL   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Reactions []Reaction
}

// Reaction is a single user's reaction on an issue, PR, or comment.
// Content is one of the fixed GitHub reaction tags (+1, -1, laugh,
// confused, heart, hooray, rocket, eyes).
type Reaction struct {
	ID      int64
	Content string
	User    string
}

// LastActivity is a lightweight "who touched this last" hint.
// AuthorOnly is true when no comment exists and the hint was
// synthesized from the item's original author.
type LastActivity struct {
	User       string
	CreatedAt  time.Time
	AuthorOnly bool
}
