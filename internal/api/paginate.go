package api

import (
	"github.com/google/go-github/v57/github"
)

// maxPages caps pagination so a misbehaving server can't loop us
// forever. 50 pages at 100 items each is far beyond realistic use.
const maxPages = 50

// collectPages follows the API's next-page cursor (parsed from the
// Link response header by go-github) and accumulates every page's
// items. The walk stops when no next page is advertised, a page comes
// back empty, or the page cap is hit.
//
// Accumulation is best effort: a failure mid-walk returns everything
// fetched so far together with the error, so callers can use the
// partial result and record the failure as a diagnostic.
func collectPages[T any](fetch func(page int) ([]T, *github.Response, error)) ([]T, error) {
	var all []T
	page := 1
	for i := 0; i < maxPages; i++ {
		items, resp, err := fetch(page)
		if err != nil {
			return all, wrapError(err)
		}
		if len(items) == 0 {
			return all, nil
		}
		all = append(all, items...)
		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		page = resp.NextPage
	}
	return all, nil
}
