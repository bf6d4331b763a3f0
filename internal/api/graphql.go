package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// GraphQLClient represents a client for the GitHub GraphQL API. It
// exists for the one query REST can't express: fetching exactly the
// most recent comment of an issue or pull request server-side.
type GraphQLClient struct {
	client *githubv4.Client
}

// NewGraphQLClient creates a new GraphQL client
func NewGraphQLClient(token string) *GraphQLClient {
	src := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := oauth2.NewClient(context.Background(), src)
	return &GraphQLClient{client: githubv4.NewClient(httpClient)}
}

// NewGraphQLClientWithBase creates a GraphQL client against a
// non-default endpoint URL (GitHub Enterprise, or a test server).
func NewGraphQLClientWithBase(token, url string) *GraphQLClient {
	var httpClient *http.Client
	if token != "" {
		src := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(context.Background(), src)
	}
	return &GraphQLClient{client: githubv4.NewEnterpriseClient(url, httpClient)}
}

type lastCommentNode struct {
	Author struct {
		Login githubv4.String
	}
	CreatedAt githubv4.DateTime
}

// LastComment fetches the single most recent comment on an issue or
// pull request. found is false when the item has no comments at all.
func (c *GraphQLClient) LastComment(ctx context.Context, owner, name string, number int) (user string, createdAt time.Time, found bool, err error) {
	var query struct {
		Repository struct {
			IssueOrPullRequest struct {
				Issue struct {
					Comments struct {
						Nodes []lastCommentNode
					} `graphql:"comments(last: 1)"`
				} `graphql:"... on Issue"`
				PullRequest struct {
					Comments struct {
						Nodes []lastCommentNode
					} `graphql:"comments(last: 1)"`
				} `graphql:"... on PullRequest"`
			} `graphql:"issueOrPullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := map[string]interface{}{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(name),
		"number": githubv4.Int(number),
	}

	if err := c.client.Query(ctx, &query, variables); err != nil {
		return "", time.Time{}, false, err
	}

	nodes := query.Repository.IssueOrPullRequest.Issue.Comments.Nodes
	if len(nodes) == 0 {
		nodes = query.Repository.IssueOrPullRequest.PullRequest.Comments.Nodes
	}
	if len(nodes) == 0 {
		return "", time.Time{}, false, nil
	}

	node := nodes[len(nodes)-1]
	return string(node.Author.Login), node.CreatedAt.Time, true, nil
}
