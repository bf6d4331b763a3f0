package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"issuedeck/config"
	"issuedeck/internal/actions"
	"issuedeck/internal/aggregate"
	"issuedeck/internal/api"
	"issuedeck/internal/credentials"
	"issuedeck/internal/db"
	"issuedeck/internal/discovery"
	"issuedeck/internal/models"
)

func main() {
	// Define command-line flags
	configPath := flag.String("config", "config.json", "Path to configuration file")
	createConfig := flag.Bool("init", false, "Create a default configuration file if it doesn't exist")
	login := flag.String("login", "", "Validate a token and store it as the personal credential")
	orgLogin := flag.String("org-login", "", "Store an organization credential (format: org=token)")
	orgLogout := flag.String("org-logout", "", "Remove an organization credential")
	logout := flag.Bool("logout", false, "Remove every stored credential")
	status := flag.Bool("status", false, "Show stored credentials and their diagnostics")
	listRepos := flag.Bool("repos", false, "List every repository visible to the stored credentials")
	refresh := flag.Bool("refresh", false, "Bypass the repository cache when listing")
	issues := flag.String("issues", "", "List issues and pull requests (format: owner/repo[,owner/repo...])")
	comments := flag.String("comments", "", "List comments with reactions (format: owner/repo#N)")
	comment := flag.String("comment", "", "Add a comment (format: owner/repo#N, body via -body)")
	body := flag.String("body", "", "Comment body for -comment")
	closeIssue := flag.String("close", "", "Close an issue (format: owner/repo#N)")
	reopenIssue := flag.String("reopen", "", "Reopen an issue (format: owner/repo#N)")
	flag.Parse()

	if *createConfig {
		if err := config.CreateDefaultConfig(*configPath); err != nil {
			log.Fatalf("Failed to create default configuration: %v", err)
		}
		log.Printf("Created default configuration at %s", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open state database: %v", err)
	}
	defer database.Close()

	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to initialize state database: %v", err)
	}

	store := credentials.NewStore(database)
	disco := discovery.New(store, database)
	agg := aggregate.New(store)
	agg.PageSize = cfg.PageSize
	acts := actions.New(store)

	if cfg.APIBaseURL != "" {
		newClient := func(token string) *api.Client {
			client, err := api.NewClientWithBase(token, cfg.APIBaseURL)
			if err != nil {
				log.Fatalf("Invalid API base URL %q: %v", cfg.APIBaseURL, err)
			}
			return client
		}
		graphqlURL := strings.TrimSuffix(cfg.APIBaseURL, "/") + "/graphql"
		store.ClientFactory = newClient
		disco.NewClient = newClient
		agg.NewClient = newClient
		agg.NewGraphQL = func(token string) aggregate.LastCommentFetcher {
			return api.NewGraphQLClientWithBase(token, graphqlURL)
		}
		acts.NewClient = newClient
	}

	ctx := context.Background()

	switch {
	case *login != "":
		check := store.ValidateToken(ctx, *login)
		if !check.Valid {
			log.Fatalf("Token rejected: %s", check.Error)
		}
		cred := &models.Credential{
			Token:     *login,
			Login:     check.Login,
			Scopes:    check.Scopes,
			RepoCount: check.RepoCount,
		}
		if err := store.SetPersonal(cred); err != nil {
			log.Fatalf("Failed to store credential: %v", err)
		}
		log.Printf("Logged in as %s (~%d repositories visible)", check.Login, check.RepoCount)
		if check.RepoAccessError != "" {
			log.Printf("Repository probe failed: %s", check.RepoAccessError)
		}

	case *orgLogin != "":
		org, token, ok := strings.Cut(*orgLogin, "=")
		if !ok || org == "" || token == "" {
			log.Fatalf("Invalid -org-login value, expected org=token")
		}
		check := store.ValidateToken(ctx, token)
		if !check.Valid {
			log.Fatalf("Token rejected: %s", check.Error)
		}
		cred := &models.Credential{
			Token:     token,
			Login:     check.Login,
			Scopes:    check.Scopes,
			RepoCount: check.RepoCount,
		}
		if err := store.SetForOrg(org, cred); err != nil {
			log.Fatalf("Failed to store credential: %v", err)
		}
		log.Printf("Stored credential for organization %s (authenticates as %s)", org, check.Login)

	case *orgLogout != "":
		if err := store.RemoveForOrg(*orgLogout); err != nil {
			log.Fatalf("Failed to remove credential: %v", err)
		}
		log.Printf("Removed credential for organization %s", *orgLogout)

	case *logout:
		if err := store.ClearAll(); err != nil {
			log.Fatalf("Failed to clear credentials: %v", err)
		}
		log.Printf("Removed all credentials")

	case *status:
		if !store.HasAny() {
			fmt.Println("No credentials stored. Use -login to add one.")
			return
		}
		for _, cred := range store.ListAll() {
			name := "personal"
			if !cred.IsPersonal() {
				name = "org " + cred.Org
			}
			fmt.Printf("%-20s login=%s scopes=%q repos~%d added=%s\n",
				name, cred.Login, cred.Scopes, cred.RepoCount, cred.AddedAt.Format(time.DateOnly))
			if cred.LastError != "" {
				fmt.Printf("%-20s last error at %s: %s\n", "",
					cred.LastErrorTime.Format(time.RFC3339), cred.LastError)
			}
		}

	case *listRepos:
		repos := disco.DiscoverAll(ctx, *refresh)
		if len(repos) == 0 {
			fmt.Println("No repositories discovered.")
			return
		}
		for _, r := range repos {
			marker := ""
			if r.Org != "" {
				marker = " [org:" + r.Org + "]"
			}
			visibility := "public"
			if r.Private {
				visibility = "private"
			}
			fmt.Printf("%s (%s, updated %s)%s\n", r.FullName, visibility,
				r.UpdatedAt.Format(time.DateOnly), marker)
		}

	case *issues != "":
		repos := selectRepositories(ctx, disco, *issues)
		result := agg.LoadIssuesAndPRs(ctx, repos)
		fmt.Printf("Issues (%d):\n", len(result.Issues))
		for _, it := range result.Issues {
			fmt.Printf("  %s#%d [%s] %s (updated %s)\n", it.RepositoryName, it.Number,
				it.State, it.Title, it.UpdatedAt.Format(time.DateOnly))
		}
		fmt.Printf("Pull requests (%d):\n", len(result.PullRequests))
		for _, pr := range result.PullRequests {
			state := pr.State
			if pr.Draft {
				state = "draft"
			}
			fmt.Printf("  %s#%d [%s] %s (updated %s)\n", pr.RepositoryName, pr.Number,
				state, pr.Title, pr.UpdatedAt.Format(time.DateOnly))
		}
		for name := range result.Truncated {
			fmt.Printf("Note: %s has more items than the fetched page\n", name)
		}

	case *comments != "":
		owner, repo, number := parseItemRef(*comments)
		list, err := agg.LoadComments(ctx, owner, repo, number)
		if err != nil {
			log.Fatalf("Failed to load comments: %v", err)
		}
		for _, c := range list {
			fmt.Printf("%s at %s:\n%s\n", c.Author, c.CreatedAt.Format(time.RFC3339), c.Body)
			for _, r := range c.Reactions {
				fmt.Printf("  reaction %s by %s\n", r.Content, r.User)
			}
		}

	case *comment != "":
		if *body == "" {
			log.Fatalf("-comment requires a body via -body")
		}
		owner, repo, number := parseItemRef(*comment)
		created, err := acts.AddComment(ctx, owner, repo, number, *body)
		if err != nil {
			log.Fatalf("Failed to add comment: %v", err)
		}
		log.Printf("Comment added: %s", created.HTMLURL)

	case *closeIssue != "":
		flipIssueState(ctx, acts, agg, *closeIssue, "closed")

	case *reopenIssue != "":
		flipIssueState(ctx, acts, agg, *reopenIssue, "open")

	default:
		fmt.Println("issuedeck - multi-credential GitHub issue and PR client")
		fmt.Println("--------------------------------------------------------")
		fmt.Println("Use -login <token> to validate and store a personal credential")
		fmt.Println("Use -org-login org=token to store an organization credential")
		fmt.Println("Use -repos [-refresh] to list discovered repositories")
		fmt.Println("Use -issues owner/repo[,owner/repo...] to list issues and PRs")
		fmt.Println("Use -comments owner/repo#N to read a discussion")
		fmt.Println("Use -comment owner/repo#N -body ... to reply")
		fmt.Println("Use -close / -reopen owner/repo#N to flip an issue's state")
		fmt.Println("Use -status, -org-logout <org>, -logout to manage credentials")
		fmt.Println("Use -init to create a default configuration file")
	}
}

// selectRepositories maps the comma-separated owner/name list onto the
// discovered repository set so aggregation gets real IDs and URLs.
// Names that were never discovered are carried as bare entries; the
// per-repository fetch will surface any access problem itself.
func selectRepositories(ctx context.Context, disco *discovery.Engine, spec string) []*models.Repository {
	discovered := disco.DiscoverAll(ctx, false)
	byName := make(map[string]*models.Repository, len(discovered))
	for _, r := range discovered {
		byName[r.FullName] = r
	}

	var repos []*models.Repository
	for _, name := range strings.Split(spec, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if r, ok := byName[name]; ok {
			repos = append(repos, r)
			continue
		}
		repos = append(repos, &models.Repository{
			FullName: name,
			HTMLURL:  "https://github.com/" + name,
		})
	}
	return repos
}

// flipIssueState performs the mutation, echoes the server's answer,
// and re-fetches the one repository so the local view reconciles with
// whatever the server now reports.
func flipIssueState(ctx context.Context, acts *actions.Service, agg *aggregate.Engine, ref, state string) {
	owner, repo, number := parseItemRef(ref)
	issue, err := acts.SetIssueState(ctx, owner, repo, number, state)
	if err != nil {
		log.Fatalf("Failed to set issue state: %v", err)
	}
	log.Printf("Issue %s/%s#%d is now %s", owner, repo, number, issue.State)

	result := agg.RefreshRepository(ctx, &models.Repository{
		FullName: owner + "/" + repo,
		HTMLURL:  "https://github.com/" + owner + "/" + repo,
	})
	log.Printf("Refreshed %s/%s: %d issues, %d pull requests",
		owner, repo, len(result.Issues), len(result.PullRequests))
}

// parseItemRef parses "owner/repo#N".
func parseItemRef(ref string) (owner, repo string, number int) {
	name, num, ok := strings.Cut(ref, "#")
	if !ok {
		log.Fatalf("Invalid reference %q, expected owner/repo#N", ref)
	}
	owner, repo, ok = strings.Cut(name, "/")
	if !ok || owner == "" || repo == "" {
		log.Fatalf("Invalid reference %q, expected owner/repo#N", ref)
	}
	number, err := strconv.Atoi(num)
	if err != nil || number <= 0 {
		log.Fatalf("Invalid item number in %q", ref)
	}
	return owner, repo, number
}
