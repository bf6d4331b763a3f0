package discovery

import (
	"context"
	"log"
	"sort"
	"time"

	"issuedeck/internal/api"
	"issuedeck/internal/credentials"
	"issuedeck/internal/db"
	"issuedeck/internal/models"
)

// cacheTTL bounds how long a discovered repository list is served
// without hitting the network.
const cacheTTL = 24 * time.Hour

// Engine enumerates every repository visible to any held credential,
// reconciles the overlapping per-credential views, and caches the
// merged result.
type Engine struct {
	store *credentials.Store
	db    *db.DB

	// NewClient builds the API client for a secret. Overridable so
	// tests can point discovery at a local server.
	NewClient func(token string) *api.Client

	now func() time.Time
}

// New creates a discovery engine over the given store and database.
func New(store *credentials.Store, database *db.DB) *Engine {
	return &Engine{
		store:     store,
		db:        database,
		NewClient: api.NewClient,
		now:       time.Now,
	}
}

// DiscoverAll returns the merged repository list across all
// credentials. Unless forceRefresh is set, a cache younger than 24h is
// returned verbatim with no network calls. Individual fetch failures
// are recorded as credential diagnostics and never abort discovery;
// in the worst case the result is empty, never an error.
func (e *Engine) DiscoverAll(ctx context.Context, forceRefresh bool) []*models.Repository {
	if !forceRefresh {
		repos, fetchedAt, err := e.db.LoadRepositoryCache()
		if err != nil {
			log.Printf("Repository cache unreadable, fetching live: %v", err)
		} else if !fetchedAt.IsZero() && e.now().Sub(fetchedAt) < cacheTTL {
			return repos
		}
	}

	var all []*models.Repository
	fetchedOrgCreds := make(map[string]bool)

	// One listing per credential. Each credential sees an overlapping,
	// incomplete slice of the full set; the merge below reconciles them.
	for _, cred := range e.store.ListAll() {
		client := e.NewClient(cred.Token)
		repos, err := client.UserRepositories(ctx, "all")
		if err != nil {
			log.Printf("Repository fetch failed for %s: %v", credLabel(cred), err)
			e.store.RecordFailure(cred.Org, err.Error())
		}
		for _, r := range repos {
			m := api.ConvertRepository(r)
			if !cred.IsPersonal() {
				m.Org = cred.Org
			}
			all = append(all, m)
		}
		if !cred.IsPersonal() {
			fetchedOrgCreds[cred.Org] = true
		}
	}

	// Organizations observed in the results so far.
	observed := make(map[string]bool)
	for _, r := range all {
		if r.OwnerType == "Organization" {
			observed[r.Owner] = true
		}
	}

	known := make(map[int64]bool)
	for _, r := range all {
		known[r.ID] = true
	}

	// Follow-up pass for observed organizations whose credential was
	// not part of the listing loop above.
	for org := range observed {
		if fetchedOrgCreds[org] {
			continue
		}
		cred := e.store.ForOrg(org)
		if cred == nil {
			continue
		}
		client := e.NewClient(cred.Token)
		repos, err := client.UserRepositories(ctx, "")
		if err != nil {
			log.Printf("Repository fetch failed for org %s credential: %v", org, err)
			e.store.RecordFailure(org, err.Error())
		}
		newCount, dupCount := 0, 0
		for _, r := range repos {
			m := api.ConvertRepository(r)
			m.Org = org
			if known[m.ID] {
				dupCount++
			} else {
				newCount++
				known[m.ID] = true
			}
			all = append(all, m)
		}
		log.Printf("Org %s credential surfaced %d new, %d duplicate repositories", org, newCount, dupCount)
		fetchedOrgCreds[org] = true
	}

	// Membership enumeration catches organizations whose repositories
	// never showed up under any credential's own listing. Best effort:
	// a failure here costs coverage, not correctness.
	if personal := e.store.Personal(); personal != nil {
		client := e.NewClient(personal.Token)
		memberships, err := client.OrgMemberships(ctx)
		if err != nil {
			log.Printf("Organization membership listing failed: %v", err)
		}
		for _, org := range memberships {
			if observed[org] {
				continue
			}
			token := ""
			if cred := e.store.ForOrg(org); cred != nil {
				token = cred.Token
			}
			repos, err := e.NewClient(token).OrgRepositories(ctx, org)
			if err != nil {
				log.Printf("Repository listing for org %s failed: %v", org, err)
			}
			for _, r := range repos {
				m := api.ConvertRepository(r)
				m.Org = org
				all = append(all, m)
			}
		}
	}

	merged := dedupeByID(all)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].UpdatedAt.After(merged[j].UpdatedAt)
	})

	if err := e.db.SaveRepositoryCache(merged, e.now()); err != nil {
		log.Printf("Could not write repository cache: %v", err)
	}

	return merged
}

// InvalidateCache drops the cached repository list so the next
// DiscoverAll fetches live.
func (e *Engine) InvalidateCache() error {
	return e.db.InvalidateRepositoryCache()
}

// dedupeByID collapses the accumulator to one entry per repository ID.
// The first occurrence fixes the position, the last occurrence wins
// the value: later passes only add more specific tags (the org
// marker), so last-seen is the richer record.
func dedupeByID(repos []*models.Repository) []*models.Repository {
	pos := make(map[int64]int)
	var out []*models.Repository
	for _, r := range repos {
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func credLabel(cred *models.Credential) string {
	if cred.IsPersonal() {
		return "personal credential"
	}
	return "org " + cred.Org + " credential"
}
