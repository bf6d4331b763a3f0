// Package actions holds the single-target mutations: each resolves a
// credential for its repository, issues one API call, and translates
// remote rejections into user-presentable errors. Unlike the read
// paths, mutations propagate their errors to the caller.
package actions

import (
	"context"
	"fmt"
	"strings"

	"issuedeck/internal/api"
	"issuedeck/internal/credentials"
	"issuedeck/internal/models"
)

// Service executes mutations against the API.
type Service struct {
	store *credentials.Store

	// NewClient builds the API client for a secret. Overridable so
	// tests can point mutations at a local server.
	NewClient func(token string) *api.Client
}

// New creates a mutation service over the given credential store.
func New(store *credentials.Store) *Service {
	return &Service{
		store:     store,
		NewClient: api.NewClient,
	}
}

// clientFor resolves the credential for owner/repo and builds a client
// with it. Returns the credential too so error translation can compare
// the target owner against the authenticated login.
func (s *Service) clientFor(owner, repo string) (*api.Client, *models.Credential, error) {
	cred, ok := s.store.ResolveCredential(owner + "/" + repo)
	if !ok {
		return nil, nil, api.ErrNoCredential
	}
	return s.NewClient(cred.Token), cred, nil
}

// presentable rewraps a remote API error with guidance the user can
// act on. The original error stays in the chain for errors.As.
func presentable(err error, owner string, cred *models.Credential) error {
	switch api.StatusOf(err) {
	case 401:
		return fmt.Errorf("credential invalid or expired, update your token: %w", err)
	case 403:
		if cred != nil && cred.Login != "" && cred.Login != owner {
			return fmt.Errorf("insufficient permission for %s repositories, an organization credential for %q may be required: %w", owner, owner, err)
		}
		return fmt.Errorf("insufficient permission: %w", err)
	case 404:
		return fmt.Errorf("repository or resource not found, or no access with this credential: %w", err)
	case 422:
		return fmt.Errorf("request rejected as invalid: %w", err)
	}
	return err
}

// AddComment posts a comment on an issue or pull request.
func (s *Service) AddComment(ctx context.Context, owner, repo string, number int, body string) (*models.Comment, error) {
	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return nil, err
	}
	comment, err := client.CreateComment(ctx, owner, repo, number, body)
	if err != nil {
		return nil, presentable(err, owner, cred)
	}
	return api.ConvertComment(comment), nil
}

// AddReaction adds a reaction to an issue or pull request.
func (s *Service) AddReaction(ctx context.Context, owner, repo string, number int, content string) (*models.Reaction, error) {
	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return nil, err
	}
	reaction, err := client.CreateIssueReaction(ctx, owner, repo, number, content)
	if err != nil {
		return nil, presentable(err, owner, cred)
	}
	return api.ConvertReaction(reaction), nil
}

// RemoveReaction removes a reaction from an issue or pull request.
func (s *Service) RemoveReaction(ctx context.Context, owner, repo string, number int, reactionID int64) error {
	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return err
	}
	if err := client.DeleteIssueReaction(ctx, owner, repo, number, reactionID); err != nil {
		return presentable(err, owner, cred)
	}
	return nil
}

// AddCommentReaction adds a reaction to a comment.
func (s *Service) AddCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) (*models.Reaction, error) {
	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return nil, err
	}
	reaction, err := client.CreateCommentReaction(ctx, owner, repo, commentID, content)
	if err != nil {
		return nil, presentable(err, owner, cred)
	}
	return api.ConvertReaction(reaction), nil
}

// RemoveCommentReaction removes a reaction from a comment.
func (s *Service) RemoveCommentReaction(ctx context.Context, owner, repo string, commentID, reactionID int64) error {
	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return err
	}
	if err := client.DeleteCommentReaction(ctx, owner, repo, commentID, reactionID); err != nil {
		return presentable(err, owner, cred)
	}
	return nil
}

// ToggleReaction is the explicit toggle contract: when user already
// holds a reaction with this content on the item it is removed,
// otherwise one is added. Returns whether the reaction is present
// after the call.
func (s *Service) ToggleReaction(ctx context.Context, owner, repo string, number int, content, user string) (active bool, err error) {
	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return false, err
	}

	existing, err := client.IssueReactions(ctx, owner, repo, number)
	if err != nil {
		return false, presentable(err, owner, cred)
	}
	for _, r := range existing {
		if r.GetContent() == content && r.GetUser().GetLogin() == user {
			if err := client.DeleteIssueReaction(ctx, owner, repo, number, r.GetID()); err != nil {
				return true, presentable(err, owner, cred)
			}
			return false, nil
		}
	}

	if _, err := client.CreateIssueReaction(ctx, owner, repo, number, content); err != nil {
		return false, presentable(err, owner, cred)
	}
	return true, nil
}

// MergePullRequest merges a pull request with the chosen strategy:
// "merge", "squash" or "rebase" (empty means "merge").
func (s *Service) MergePullRequest(ctx context.Context, owner, repo string, number int, message, method string) error {
	switch method {
	case "":
		method = "merge"
	case "merge", "squash", "rebase":
	default:
		return fmt.Errorf("unknown merge method %q, want merge, squash or rebase", method)
	}

	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return err
	}
	result, err := client.MergePull(ctx, owner, repo, number, message, method)
	if err != nil {
		return presentable(err, owner, cred)
	}
	if !result.GetMerged() {
		return fmt.Errorf("merge refused: %s", result.GetMessage())
	}
	return nil
}

// ClosePullRequest closes a pull request without merging.
func (s *Service) ClosePullRequest(ctx context.Context, owner, repo string, number int) (*models.PullRequest, error) {
	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return nil, err
	}
	pull, err := client.ClosePull(ctx, owner, repo, number)
	if err != nil {
		return nil, presentable(err, owner, cred)
	}
	return api.ConvertPullRequest(pull), nil
}

// SetIssueState flips an issue to "open" or "closed".
func (s *Service) SetIssueState(ctx context.Context, owner, repo string, number int, state string) (*models.Issue, error) {
	if state != "open" && state != "closed" {
		return nil, fmt.Errorf("unknown issue state %q, want open or closed", state)
	}
	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return nil, err
	}
	issue, err := client.SetIssueState(ctx, owner, repo, number, state)
	if err != nil {
		return nil, presentable(err, owner, cred)
	}
	return api.ConvertIssue(issue), nil
}

// CreateIssue opens a new issue.
func (s *Service) CreateIssue(ctx context.Context, owner, repo, title, body string, assignees []string) (*models.Issue, error) {
	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return nil, err
	}
	issue, err := client.CreateIssue(ctx, owner, repo, title, body, assignees)
	if err != nil {
		return nil, presentable(err, owner, cred)
	}
	return api.ConvertIssue(issue), nil
}

// UpdateAssignees replaces the assignee list of an issue or pull request.
func (s *Service) UpdateAssignees(ctx context.Context, owner, repo string, number int, assignees []string) (*models.Issue, error) {
	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return nil, err
	}
	issue, err := client.SetAssignees(ctx, owner, repo, number, assignees)
	if err != nil {
		return nil, presentable(err, owner, cred)
	}
	return api.ConvertIssue(issue), nil
}

// HasWorkflowDispatch reports whether a workflow definition file
// declares a manually triggerable event. The contents endpoint returns
// the file base64 encoded; the client decodes before the text match.
func (s *Service) HasWorkflowDispatch(ctx context.Context, owner, repo, workflowPath string) (bool, error) {
	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return false, err
	}
	content, err := client.FileContent(ctx, owner, repo, workflowPath)
	if err != nil {
		return false, presentable(err, owner, cred)
	}
	return strings.Contains(content, "workflow_dispatch"), nil
}

// DispatchWorkflow triggers a manual run of a workflow file on the
// given ref.
func (s *Service) DispatchWorkflow(ctx context.Context, owner, repo, workflowFile, ref string, inputs map[string]interface{}) error {
	client, cred, err := s.clientFor(owner, repo)
	if err != nil {
		return err
	}
	if err := client.DispatchWorkflow(ctx, owner, repo, workflowFile, ref, inputs); err != nil {
		return presentable(err, owner, cred)
	}
	return nil
}
