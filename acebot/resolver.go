package acebot

import (
	"errors"
	"log/slog"
	"sort"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

const (
	// similarityCandidateLimit is how many candidates the similarity tier
	// fetches for the fuzzy tier to re-rank.
	similarityCandidateLimit = 8

	// maxDistinctQueries is the limit on distinct subqueries in one
	// comma-separated docs query.
	maxDistinctQueries = 3
)

// DocsFinder is the slice of [DocsStore] the resolver depends on. Tests
// substitute counting fakes to verify which tiers ran.
type DocsFinder interface {
	FindByExactName(name string) (*DocsName, error)
	FindSimilar(name string, limit int) ([]DocsName, error)
}

// DocsMatch is one resolved result: the matched corpus name row and the
// score that ranked it (100 for an exact match).
type DocsMatch struct {
	Name  DocsName
	Score int
}

// DocsResolver resolves free-text queries against the corpus in three
// tiers: exact name match, trigram-similarity candidate selection, and
// fuzzy (normalized edit distance) re-ranking of those candidates.
type DocsResolver struct {
	finder DocsFinder
	logger *slog.Logger
}

func NewDocsResolver(finder DocsFinder, logger *slog.Logger) *DocsResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocsResolver{
		finder: finder,
		logger: logger.With(loggerNameKey, "docs_resolver"),
	}
}

// Resolve returns up to count matches for the query, best first, with no
// duplicate entry IDs. An exact name match is always first, and when
// count is 1 it short-circuits the remaining tiers entirely. If nothing
// matches at all, [ErrNoMatch] is returned rather than an empty success.
func (r *DocsResolver) Resolve(query string, count int) ([]DocsMatch, error) {
	query = strings.ToLower(strings.TrimSpace(query))

	var results []DocsMatch
	seen := map[uint]bool{}

	exact, err := r.finder.FindByExactName(query)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		results = append(results, DocsMatch{Name: *exact, Score: 100})
		seen[exact.DocsID] = true
		if count == 1 {
			return results, nil
		}
	}

	candidates, err := r.finder.FindSimilar(query, similarityCandidateLimit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		if len(results) == 0 {
			return nil, ErrNoMatch
		}
		return results, nil
	}

	fuzzed := make([]DocsMatch, 0, len(candidates))
	for _, candidate := range candidates {
		fuzzed = append(
			fuzzed, DocsMatch{
				Name:  candidate,
				Score: fuzzy.Ratio(query, strings.ToLower(candidate.Name)),
			},
		)
	}
	sort.SliceStable(
		fuzzed, func(i, j int) bool {
			return fuzzed[i].Score > fuzzed[j].Score
		},
	)

	for _, match := range fuzzed {
		if len(results) >= count {
			break
		}
		if seen[match.Name.DocsID] {
			continue
		}
		seen[match.Name.DocsID] = true
		results = append(results, match)
	}

	if len(results) == 0 {
		return nil, ErrNoMatch
	}
	return results, nil
}

// ResolveEach resolves each distinct subquery of a raw comma-separated
// query to its single best match. Subqueries that match nothing are
// dropped silently; [ErrNoMatch] is only returned when every subquery
// missed.
func (r *DocsResolver) ResolveEach(raw string) ([]DocsMatch, error) {
	queries, err := r.ParseQueries(raw)
	if err != nil {
		return nil, err
	}

	var matches []DocsMatch
	for _, query := range queries {
		resolved, resolveErr := r.Resolve(query, 1)
		if resolveErr != nil {
			if errors.Is(resolveErr, ErrNoMatch) {
				r.logger.Debug("no match for subquery", "query", query)
				continue
			}
			return nil, resolveErr
		}
		matches = append(matches, resolved...)
	}
	if len(matches) == 0 {
		return nil, ErrNoMatch
	}
	return matches, nil
}

// ParseQueries splits a raw comma-separated docs query into distinct
// subqueries: trimmed, lowercased, deduplicated, insertion-ordered. More
// than maxDistinctQueries distinct subqueries is a rejected input.
func (r *DocsResolver) ParseQueries(raw string) ([]string, error) {
	var queries []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		queries = append(queries, part)
	}
	if len(queries) > maxDistinctQueries {
		return nil, ErrTooManyQueries
	}
	return queries, nil
}
