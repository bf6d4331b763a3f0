package aggregate

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"issuedeck/internal/api"
	"issuedeck/internal/credentials"
	"issuedeck/internal/models"
)

// defaultPageSize bounds the per-repository issue and pull fetches.
// Aggregation deliberately reads a single page per repository and
// reports truncation instead of paginating: one selected repository
// set can span dozens of repositories, and full pagination on each
// would multiply latency for items nobody scrolls to.
const defaultPageSize = 30

// LastCommentFetcher fetches the single most recent comment on an
// issue or pull request.
type LastCommentFetcher interface {
	LastComment(ctx context.Context, owner, name string, number int) (user string, createdAt time.Time, found bool, err error)
}

// Engine fetches and merges issues and pull requests across a chosen
// set of repositories, routing each repository's calls through the
// credential the store resolves for it.
type Engine struct {
	store *credentials.Store

	// NewClient and NewGraphQL build per-secret clients. Overridable
	// so tests can substitute local servers or fakes.
	NewClient  func(token string) *api.Client
	NewGraphQL func(token string) LastCommentFetcher

	// PageSize is the per-repository fetch bound.
	PageSize int
}

// Result is the merged output of LoadIssuesAndPRs. Truncated flags the
// repositories for which more items exist beyond the fetched page.
type Result struct {
	Issues       []*models.Issue
	PullRequests []*models.PullRequest
	Truncated    map[string]bool
}

// New creates an aggregation engine over the given credential store.
func New(store *credentials.Store) *Engine {
	return &Engine{
		store:     store,
		NewClient: api.NewClient,
		NewGraphQL: func(token string) LastCommentFetcher {
			return api.NewGraphQLClient(token)
		},
		PageSize: defaultPageSize,
	}
}

// LoadIssuesAndPRs fetches open and closed issues and pull requests
// for every repository in parallel. Pull requests are stripped from
// the issues listing (the API returns them conflated). Every item is
// annotated with the owning repository's name and URL. A failing fetch
// is logged and contributes nothing for its repository; the merged
// result is sorted by most recent update, ties keeping input order.
func (e *Engine) LoadIssuesAndPRs(ctx context.Context, repos []*models.Repository) *Result {
	pageSize := e.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	type repoItems struct {
		issues    []*models.Issue
		pulls     []*models.PullRequest
		truncated bool
	}

	// One slot per repository keeps the merge order deterministic
	// regardless of completion order.
	slots := make([]repoItems, len(repos))

	var wg sync.WaitGroup
	for i, repo := range repos {
		wg.Add(1)
		go func(i int, repo *models.Repository) {
			defer wg.Done()

			token, ok := e.store.ResolveForRepository(repo.FullName)
			if !ok {
				log.Printf("No credential resolves for %s, skipping: %v", repo.FullName, api.ErrNoCredential)
				return
			}
			owner, name, err := splitFullName(repo.FullName)
			if err != nil {
				log.Printf("Skipping %s: %v", repo.FullName, err)
				return
			}
			client := e.NewClient(token)

			var issues []*models.Issue
			var pulls []*models.PullRequest
			var moreIssues, morePulls bool
			var issueErr, pullErr error

			var inner sync.WaitGroup
			inner.Add(2)
			go func() {
				defer inner.Done()
				raw, more, err := client.RepoIssues(ctx, owner, name, pageSize)
				if err != nil {
					issueErr = err
					return
				}
				moreIssues = more
				for _, it := range raw {
					if it.IsPullRequest() {
						continue
					}
					m := api.ConvertIssue(it)
					m.RepositoryName = repo.FullName
					m.RepositoryURL = repo.HTMLURL
					issues = append(issues, m)
				}
			}()
			go func() {
				defer inner.Done()
				raw, more, err := client.RepoPulls(ctx, owner, name, pageSize)
				if err != nil {
					pullErr = err
					return
				}
				morePulls = more
				for _, p := range raw {
					m := api.ConvertPullRequest(p)
					m.RepositoryName = repo.FullName
					m.RepositoryURL = repo.HTMLURL
					pulls = append(pulls, m)
				}
			}()
			inner.Wait()

			if issueErr != nil {
				log.Printf("Issue fetch failed for %s: %v", repo.FullName, issueErr)
			}
			if pullErr != nil {
				log.Printf("Pull request fetch failed for %s: %v", repo.FullName, pullErr)
			}

			slots[i] = repoItems{
				issues:    issues,
				pulls:     pulls,
				truncated: moreIssues || morePulls,
			}
		}(i, repo)
	}
	wg.Wait()

	result := &Result{Truncated: make(map[string]bool)}
	for i, slot := range slots {
		result.Issues = append(result.Issues, slot.issues...)
		result.PullRequests = append(result.PullRequests, slot.pulls...)
		if slot.truncated {
			result.Truncated[repos[i].FullName] = true
		}
	}

	sort.SliceStable(result.Issues, func(i, j int) bool {
		return result.Issues[i].UpdatedAt.After(result.Issues[j].UpdatedAt)
	})
	sort.SliceStable(result.PullRequests, func(i, j int) bool {
		return result.PullRequests[i].UpdatedAt.After(result.PullRequests[j].UpdatedAt)
	})

	return result
}

// RefreshRepository re-fetches a single repository's items. Callers
// that flipped an item's state locally after a mutation use this to
// reconcile with whatever the server now reports.
func (e *Engine) RefreshRepository(ctx context.Context, repo *models.Repository) *Result {
	return e.LoadIssuesAndPRs(ctx, []*models.Repository{repo})
}

// LoadComments fetches an item's comments in creation order and
// enriches each with its reactions. A reaction fetch failing for one
// comment degrades that comment to an empty reaction list.
func (e *Engine) LoadComments(ctx context.Context, owner, repo string, number int) ([]*models.Comment, error) {
	token, ok := e.store.ResolveForRepository(owner + "/" + repo)
	if !ok {
		return nil, api.ErrNoCredential
	}
	client := e.NewClient(token)

	raw, err := client.IssueComments(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}

	comments := make([]*models.Comment, len(raw))
	var wg sync.WaitGroup
	for i, rc := range raw {
		comments[i] = api.ConvertComment(rc)
		wg.Add(1)
		go func(c *models.Comment) {
			defer wg.Done()
			reactions, err := client.CommentReactions(ctx, owner, repo, c.ID)
			if err != nil {
				log.Printf("Reaction fetch failed for comment %d on %s/%s#%d: %v", c.ID, owner, repo, number, err)
				return
			}
			for _, r := range reactions {
				c.Reactions = append(c.Reactions, *api.ConvertReaction(r))
			}
		}(comments[i])
	}
	wg.Wait()

	return comments, nil
}

// FetchLastComment returns a lightweight last-activity hint for one
// item: the most recent comment's author and time when a comment
// exists, otherwise a synthesized entry attributing the activity to
// fallbackAuthor (the item's original author). Returns nil when the
// author is unknown too.
func (e *Engine) FetchLastComment(ctx context.Context, owner, repo string, number int, fallbackAuthor string) (*models.LastActivity, error) {
	token, ok := e.store.ResolveForRepository(owner + "/" + repo)
	if !ok {
		return nil, api.ErrNoCredential
	}

	user, createdAt, found, err := e.NewGraphQL(token).LastComment(ctx, owner, repo, number)
	if err != nil {
		log.Printf("Last comment fetch failed for %s/%s#%d: %v", owner, repo, number, err)
		found = false
	}
	if found {
		return &models.LastActivity{User: user, CreatedAt: createdAt}, nil
	}
	if fallbackAuthor == "" {
		return nil, nil
	}
	return &models.LastActivity{User: fallbackAuthor, AuthorOnly: true}, nil
}

func splitFullName(fullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repository name %q, expected owner/name", fullName)
	}
	return owner, name, nil
}
