package generateresponse

import (
	"fmt"
	"strings"

	"github-insight/internal/intent"
)

// RenderFallback builds the deterministic answer used when the model is
// unavailable. Sections follow the requested intent order, then any other
// data keys in sorted order.
func RenderFallback(username string, intents []intent.Intent, data intent.AggregatedData) string {
	sections := make([]string, 0, len(data))
	for _, i := range renderOrder(intents, data) {
		sections = append(sections, renderSection(i, data[i]))
	}
	return fmt.Sprintf("Here's what I found about %s:\n\n", username) + strings.Join(sections, "\n\n")
}

func renderOrder(intents []intent.Intent, data intent.AggregatedData) []intent.Intent {
	order := make([]intent.Intent, 0, len(data))
	seen := make(map[intent.Intent]bool, len(data))
	for _, i := range intents {
		if _, ok := data[i]; ok && !seen[i] {
			seen[i] = true
			order = append(order, i)
		}
	}
	for _, i := range data.Keys() {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order
}

func renderSection(i intent.Intent, r intent.ShapedResult) string {
	if r.IsError() {
		return fmt.Sprintf("❌ %s: %s", i, r.Err)
	}

	switch v := r.Value.(type) {
	case intent.Profile:
		if i == intent.UserBio {
			return renderProfile(v)
		}
	case []intent.Repository:
		switch i {
		case intent.RecentRepos:
			return "📁 **Recent Repositories**:\n" + bullets(v, 5, func(repo intent.Repository) string {
				return fmt.Sprintf("%s (%s) - %d ⭐", repo.Name, orUnknown(repo.Language), repo.Stars)
			})
		case intent.TopRepositories:
			return "🌟 **Top Repositories**:\n" + bullets(v, 3, func(repo intent.Repository) string {
				return fmt.Sprintf("%s - %d ⭐ (%s)", repo.Name, repo.Stars, orUnknown(repo.Language))
			})
		}
	case []intent.LanguageCount:
		if i == intent.RepoLanguages {
			return "💻 **Languages Used**:\n" + bullets(v, 5, func(l intent.LanguageCount) string {
				return fmt.Sprintf("%s: %d repos", l.Language, l.Count)
			})
		}
	case []intent.Person:
		username := func(p intent.Person) string { return p.Username }
		switch i {
		case intent.Followers:
			return fmt.Sprintf("👥 **Followers**: %d followers found\n", len(v)) + bullets(v, 5, username)
		case intent.Following:
			return fmt.Sprintf("👤 **Following**: %d users being followed\n", len(v)) + bullets(v, 5, username)
		}
	case []intent.Gist:
		return fmt.Sprintf("📝 **Gists**: %d public gists\n", len(v)) + bullets(v, 3, func(g intent.Gist) string {
			return fmt.Sprintf("%s (%d files)", g.Description, len(g.Files))
		})
	case []intent.Organization:
		return fmt.Sprintf("🏢 **Organizations**: %d organizations\n", len(v)) + bullets(v, 5, func(o intent.Organization) string {
			return o.Name
		})
	case intent.RepoStats:
		return fmt.Sprintf("📊 **Repository Statistics**:\n• Total repos: %d\n• Total stars: %d\n• Total forks: %d\n• Primary language: %s",
			v.TotalRepositories, v.TotalStars, v.TotalForks, v.PrimaryLanguage)
	case []intent.Event:
		if i == intent.ContributionActivity || i == intent.CodingStreak {
			return fmt.Sprintf("📈 **Recent Activity**: %d events in the last 30 days\n", len(v)) + bullets(v, 3, func(e intent.Event) string {
				return fmt.Sprintf("%s in %s", e.Type, e.Repo)
			})
		}
	case intent.Readme:
		return fmt.Sprintf("📄 **Profile README**: Found (%d bytes)", v.Size)
	}

	return fmt.Sprintf("📋 **%s**: %d items found", i, itemCount(r))
}

func renderProfile(p intent.Profile) string {
	name := p.Name
	if name == "" {
		name = p.Login
	}
	bio := p.Bio
	if bio == "" {
		bio = "No bio available"
	}
	location := p.Location
	if location == "" {
		location = "Location not specified"
	}
	return fmt.Sprintf("👤 **Profile**: %s\n%s\n📍 %s\n📊 %d repos, %d followers",
		name, bio, location, p.PublicRepos, p.Followers)
}

func bullets[T any](items []T, limit int, line func(T) string) string {
	if len(items) > limit {
		items = items[:limit]
	}
	lines := make([]string, len(items))
	for k, item := range items {
		lines[k] = "• " + line(item)
	}
	return strings.Join(lines, "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// itemCount is the list length, or 1 for a single value.
func itemCount(r intent.ShapedResult) int {
	if r.Value == nil {
		return 1
	}
	return r.Len()
}
