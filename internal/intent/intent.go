// Package intent holds the closed vocabulary of GitHub data intents, the
// endpoint each one reads and the shaping applied to the raw payload.
package intent

import (
	"errors"
	"strings"
)

type Intent string

const (
	UserBio              Intent = "user_bio"
	RecentRepos          Intent = "recent_repos"
	RecentCommits        Intent = "recent_commits"
	OpenPullRequests     Intent = "open_pull_requests"
	RepoLanguages        Intent = "repo_languages"
	StarredRepos         Intent = "starred_repos"
	Followers            Intent = "followers"
	Following            Intent = "following"
	Gists                Intent = "gists"
	Organizations        Intent = "organizations"
	ContributionActivity Intent = "contribution_activity"
	PublicEvents         Intent = "public_events"
	TopRepositories      Intent = "top_repositories"
	RepositoryStats      Intent = "repository_stats"
	CodingStreak         Intent = "coding_streak"
	ProfileReadme        Intent = "profile_readme"
)

// DefaultLimit is the number of intents processed per question.
const DefaultLimit = 3

var ErrUnknownIntent = errors.New("UNKNOWN_INTENT")

var vocabulary = []Intent{
	UserBio,
	RecentRepos,
	RecentCommits,
	OpenPullRequests,
	RepoLanguages,
	StarredRepos,
	Followers,
	Following,
	Gists,
	Organizations,
	ContributionActivity,
	PublicEvents,
	TopRepositories,
	RepositoryStats,
	CodingStreak,
	ProfileReadme,
}

var fallback = []Intent{UserBio, RecentRepos, RepoLanguages}

// All returns the vocabulary in declaration order.
func All() []Intent {
	out := make([]Intent, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// Fallback returns the intents used when classification fails.
func Fallback() []Intent {
	out := make([]Intent, len(fallback))
	copy(out, fallback)
	return out
}

func (i Intent) String() string { return string(i) }

func (i Intent) Valid() bool {
	_, ok := endpoints[i]
	return ok
}

// Parse trims s and reports whether it names a known intent.
func Parse(s string) (Intent, bool) {
	i := Intent(strings.TrimSpace(s))
	return i, i.Valid()
}

// ParseList splits names into known intents (de-duplicated, order kept)
// and unknown names. Blank names are skipped.
func ParseList(names []string) (known []Intent, unknown []string) {
	seen := make(map[Intent]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		i, ok := Parse(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		known = append(known, i)
	}
	return known, unknown
}

// Limit returns at most the first n intents of list.
func Limit(list []Intent, n int) []Intent {
	if n <= 0 || len(list) <= n {
		return list
	}
	return list[:n]
}

// Strings converts a list of intents to their names.
func Strings(list []Intent) []string {
	out := make([]string, len(list))
	for k, i := range list {
		out[k] = string(i)
	}
	return out
}
