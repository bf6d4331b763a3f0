package api

import (
	"context"
	"net/http"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// userAgent identifies this client on every request.
const userAgent = "issuedeck/1.0"

// Client wraps a GitHub API client bound to a single secret. The rest
// of the system constructs one Client per credential so that each call
// is routed with the right token; an empty token yields an
// unauthenticated client, which some discovery passes deliberately use.
type Client struct {
	gh *github.Client
}

// NewClient creates a client for the given token against the public
// GitHub API. Authentication, the versioned Accept header, and the API
// version header are attached by the underlying transport on every call.
func NewClient(token string) *Client {
	var tc *http.Client

	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(context.Background(), ts)
	}

	gh := github.NewClient(tc)
	gh.UserAgent = userAgent
	return &Client{gh: gh}
}

// NewClientWithBase creates a client pointed at a non-default API base
// URL (GitHub Enterprise, or a test server).
func NewClientWithBase(token, baseURL string) (*Client, error) {
	c := NewClient(token)
	gh, err := c.gh.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, err
	}
	gh.UserAgent = userAgent
	return &Client{gh: gh}, nil
}

// Identity fetches the authenticated user's login and the token's
// scope summary (from the X-OAuth-Scopes response header).
func (c *Client) Identity(ctx context.Context) (login, scopes string, err error) {
	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", "", wrapError(err)
	}
	if resp != nil {
		scopes = resp.Header.Get("X-OAuth-Scopes")
	}
	return user.GetLogin(), scopes, nil
}

// RepoCountEstimate probes how many repositories the token can list.
// It requests a single-item page and reads the last-page cursor, so
// the probe costs one call regardless of repository count.
func (c *Client) RepoCountEstimate(ctx context.Context) (int, error) {
	opts := &github.RepositoryListOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	}
	repos, resp, err := c.gh.Repositories.List(ctx, "", opts)
	if err != nil {
		return 0, wrapError(err)
	}
	if resp != nil && resp.LastPage > 0 {
		return resp.LastPage, nil
	}
	return len(repos), nil
}

// UserRepositories lists the repositories visible to the token, most
// recently updated first, following pagination. repoType is the
// affiliation filter ("all", "owner", ...); empty means the API default.
// Accumulation is best effort: on a mid-pagination failure the pages
// fetched so far are returned alongside the error.
func (c *Client) UserRepositories(ctx context.Context, repoType string) ([]*github.Repository, error) {
	opts := &github.RepositoryListOptions{
		Type: repoType,
		Sort: "updated",
		ListOptions: github.ListOptions{
			PerPage: 100,
		},
	}
	return collectPages(func(page int) ([]*github.Repository, *github.Response, error) {
		opts.Page = page
		return c.gh.Repositories.List(ctx, "", opts)
	})
}

// OrgRepositories lists an organization's repositories, most recently
// updated first, following pagination.
func (c *Client) OrgRepositories(ctx context.Context, org string) ([]*github.Repository, error) {
	opts := &github.RepositoryListByOrgOptions{
		Sort: "updated",
		ListOptions: github.ListOptions{
			PerPage: 100,
		},
	}
	return collectPages(func(page int) ([]*github.Repository, *github.Response, error) {
		opts.Page = page
		return c.gh.Repositories.ListByOrg(ctx, org, opts)
	})
}

// OrgMemberships lists the login of every organization the
// authenticated user belongs to.
func (c *Client) OrgMemberships(ctx context.Context) ([]string, error) {
	opts := &github.ListOrgMembershipsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	memberships, err := collectPages(func(page int) ([]*github.Membership, *github.Response, error) {
		opts.Page = page
		return c.gh.Organizations.ListOrgMemberships(ctx, opts)
	})
	if err != nil {
		return nil, err
	}

	var orgs []string
	for _, m := range memberships {
		if login := m.GetOrganization().GetLogin(); login != "" {
			orgs = append(orgs, login)
		}
	}
	return orgs, nil
}

// RepoIssues fetches the first page of a repository's issues, open and
// closed. The returned items may include pull requests (the API
// conflates them); callers are expected to strip those. more reports
// whether further pages exist beyond the one fetched.
func (c *Client) RepoIssues(ctx context.Context, owner, repo string, perPage int) (issues []*github.Issue, more bool, err error) {
	opts := &github.IssueListByRepoOptions{
		State:     "all",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: perPage,
		},
	}
	issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
	if err != nil {
		return nil, false, wrapError(err)
	}
	return issues, resp.NextPage != 0, nil
}

// RepoPulls fetches the first page of a repository's pull requests,
// open and closed. more reports whether further pages exist.
func (c *Client) RepoPulls(ctx context.Context, owner, repo string, perPage int) (pulls []*github.PullRequest, more bool, err error) {
	opts := &github.PullRequestListOptions{
		State:     "all",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: github.ListOptions{
			PerPage: perPage,
		},
	}
	pulls, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, false, wrapError(err)
	}
	return pulls, resp.NextPage != 0, nil
}

// IssueComments lists every comment on an issue or pull request in
// creation order, following pagination.
func (c *Client) IssueComments(ctx context.Context, owner, repo string, number int) ([]*github.IssueComment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{
			PerPage: 100,
		},
	}
	return collectPages(func(page int) ([]*github.IssueComment, *github.Response, error) {
		opts.Page = page
		return c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
	})
}

// IssueReactions lists the reactions on an issue or pull request.
func (c *Client) IssueReactions(ctx context.Context, owner, repo string, number int) ([]*github.Reaction, error) {
	opts := &github.ListOptions{PerPage: 100}
	return collectPages(func(page int) ([]*github.Reaction, *github.Response, error) {
		opts.Page = page
		return c.gh.Reactions.ListIssueReactions(ctx, owner, repo, number, opts)
	})
}

// CommentReactions lists the reactions on a single comment.
func (c *Client) CommentReactions(ctx context.Context, owner, repo string, commentID int64) ([]*github.Reaction, error) {
	opts := &github.ListCommentReactionOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	return collectPages(func(page int) ([]*github.Reaction, *github.Response, error) {
		opts.Page = page
		return c.gh.Reactions.ListCommentReactions(ctx, owner, repo, commentID, opts)
	})
}

// CreateComment posts a comment on an issue or pull request.
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, body string) (*github.IssueComment, error) {
	comment, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.String(body),
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return comment, nil
}

// CreateIssueReaction adds a reaction to an issue or pull request.
func (c *Client) CreateIssueReaction(ctx context.Context, owner, repo string, number int, content string) (*github.Reaction, error) {
	reaction, _, err := c.gh.Reactions.CreateIssueReaction(ctx, owner, repo, number, content)
	if err != nil {
		return nil, wrapError(err)
	}
	return reaction, nil
}

// DeleteIssueReaction removes a reaction from an issue or pull request.
func (c *Client) DeleteIssueReaction(ctx context.Context, owner, repo string, number int, reactionID int64) error {
	_, err := c.gh.Reactions.DeleteIssueReaction(ctx, owner, repo, number, reactionID)
	return wrapError(err)
}

// CreateCommentReaction adds a reaction to a comment.
func (c *Client) CreateCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) (*github.Reaction, error) {
	reaction, _, err := c.gh.Reactions.CreateCommentReaction(ctx, owner, repo, commentID, content)
	if err != nil {
		return nil, wrapError(err)
	}
	return reaction, nil
}

// DeleteCommentReaction removes a reaction from a comment.
func (c *Client) DeleteCommentReaction(ctx context.Context, owner, repo string, commentID, reactionID int64) error {
	_, err := c.gh.Reactions.DeleteCommentReaction(ctx, owner, repo, commentID, reactionID)
	return wrapError(err)
}

// MergePull merges a pull request using the given merge method
// ("merge", "squash" or "rebase").
func (c *Client) MergePull(ctx context.Context, owner, repo string, number int, message, method string) (*github.PullRequestMergeResult, error) {
	result, _, err := c.gh.PullRequests.Merge(ctx, owner, repo, number, message, &github.PullRequestOptions{
		MergeMethod: method,
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return result, nil
}

// ClosePull closes a pull request without merging it.
func (c *Client) ClosePull(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	pull, _, err := c.gh.PullRequests.Edit(ctx, owner, repo, number, &github.PullRequest{
		State: github.String("closed"),
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return pull, nil
}

// SetIssueState flips an issue's state to "open" or "closed".
func (c *Client) SetIssueState(ctx context.Context, owner, repo string, number int, state string) (*github.Issue, error) {
	issue, _, err := c.gh.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{
		State: github.String(state),
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return issue, nil
}

// CreateIssue opens a new issue.
func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string, assignees []string) (*github.Issue, error) {
	req := &github.IssueRequest{
		Title: github.String(title),
	}
	if body != "" {
		req.Body = github.String(body)
	}
	if len(assignees) > 0 {
		req.Assignees = &assignees
	}
	issue, _, err := c.gh.Issues.Create(ctx, owner, repo, req)
	if err != nil {
		return nil, wrapError(err)
	}
	return issue, nil
}

// SetAssignees replaces an issue's assignee list.
func (c *Client) SetAssignees(ctx context.Context, owner, repo string, number int, assignees []string) (*github.Issue, error) {
	issue, _, err := c.gh.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{
		Assignees: &assignees,
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return issue, nil
}

// FileContent fetches a file from the repository and returns its
// decoded text. The contents endpoint returns base64; decoding is
// handled before returning.
func (c *Client) FileContent(ctx context.Context, owner, repo, path string) (string, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return "", wrapError(err)
	}
	if file == nil {
		return "", &RemoteAPIError{StatusCode: 404, Message: path + " is not a file"}
	}
	content, err := file.GetContent()
	if err != nil {
		return "", err
	}
	return content, nil
}

// DispatchWorkflow triggers a manual run of a workflow file on the
// given ref. The API answers 204 on success, which go-github surfaces
// as a nil error.
func (c *Client) DispatchWorkflow(ctx context.Context, owner, repo, workflowFile, ref string, inputs map[string]interface{}) error {
	event := github.CreateWorkflowDispatchEventRequest{
		Ref:    ref,
		Inputs: inputs,
	}
	_, err := c.gh.Actions.CreateWorkflowDispatchEventByFileName(ctx, owner, repo, workflowFile, event)
	return wrapError(err)
}
