package intent

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
)

const (
	activityWindow = 30 * 24 * time.Hour

	repoCap         = 10
	commitCap       = 10
	pullRequestCap  = 10
	languageCap     = 10
	gistCap         = 10
	orgCap          = 10
	peopleCap       = 20
	eventCap        = 20
	activityCap     = 50
	distributionCap = 5
)

// markerError carries an intent-specific message that replaces the
// generic fetch failure marker.
type markerError string

func (e markerError) Error() string { return string(e) }

const errNoReadme = markerError("No profile README found")

var errMissingItems = errors.New("search response has no items")

// ==========================
// Shaped values
// ==========================

type Profile struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
	Company     string `json:"company"`
	Blog        string `json:"blog"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	CreatedAt   string `json:"created_at"`
	AvatarURL   string `json:"avatar_url"`
	HTMLURL     string `json:"html_url"`
}

// Repository is shared by the repository intents; fields a given intent
// does not project stay empty and are omitted.
type Repository struct {
	Name        string `json:"name"`
	Owner       string `json:"owner,omitempty"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Stars       int    `json:"stars"`
	Forks       int    `json:"forks,omitempty"`
	Watchers    int    `json:"watchers,omitempty"`
	HTMLURL     string `json:"html_url"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type Commit struct {
	Type          string `json:"type"`
	Repo          string `json:"repo"`
	Actor         string `json:"actor"`
	CreatedAt     string `json:"created_at"`
	CommitMessage string `json:"commit_message"`
	CommitURL     string `json:"commit_url"`
	Action        string `json:"action"`
}

type Event struct {
	Type      string `json:"type"`
	Repo      string `json:"repo"`
	Actor     string `json:"actor"`
	CreatedAt string `json:"created_at"`
	Public    bool   `json:"public"`
}

type PullRequest struct {
	Title         string `json:"title"`
	State         string `json:"state"`
	CreatedAt     string `json:"created_at"`
	URL           string `json:"url"`
	RepositoryURL string `json:"repository_url"`
}

type LanguageCount struct {
	Language string `json:"language"`
	Count    int    `json:"count"`
}

type RepoStats struct {
	TotalRepositories    int             `json:"total_repositories"`
	TotalStars           int             `json:"total_stars"`
	TotalForks           int             `json:"total_forks"`
	PrimaryLanguage      string          `json:"primary_language"`
	LanguageDistribution []LanguageCount `json:"language_distribution"`
	MostStarredRepo      string          `json:"most_starred_repo"`
}

type Readme struct {
	Content     string `json:"content"`
	Size        int    `json:"size"`
	Name        string `json:"name"`
	DownloadURL string `json:"download_url"`
}

type Person struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	URL      string `json:"url"`
	Type     string `json:"type"`
}

type Gist struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Files       []string `json:"files"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
	URL         string   `json:"url"`
	Public      bool     `json:"public"`
}

type Organization struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Avatar      string `json:"avatar"`
	URL         string `json:"url"`
}

// ==========================
// Provider payloads
// ==========================

type rawUser struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
	Company     string `json:"company"`
	Blog        string `json:"blog"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	CreatedAt   string `json:"created_at"`
	AvatarURL   string `json:"avatar_url"`
	HTMLURL     string `json:"html_url"`
	Type        string `json:"type"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

type rawRepo struct {
	Name            string   `json:"name"`
	Owner           *rawUser `json:"owner"`
	Description     string   `json:"description"`
	Language        string   `json:"language"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	WatchersCount   int      `json:"watchers_count"`
	HTMLURL         string   `json:"html_url"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

type rawEvent struct {
	Type string `json:"type"`
	Repo *struct {
		Name string `json:"name"`
	} `json:"repo"`
	Actor     *rawUser `json:"actor"`
	CreatedAt string   `json:"created_at"`
	Public    bool     `json:"public"`
	Payload   *struct {
		Action  string `json:"action"`
		Commits []struct {
			Message string `json:"message"`
			URL     string `json:"url"`
		} `json:"commits"`
	} `json:"payload"`
}

func (e rawEvent) repoName() string {
	if e.Repo == nil {
		return ""
	}
	return e.Repo.Name
}

func (e rawEvent) actorLogin() string {
	if e.Actor == nil {
		return ""
	}
	return e.Actor.Login
}

func (e rawEvent) toEvent() Event {
	return Event{
		Type:      e.Type,
		Repo:      e.repoName(),
		Actor:     e.actorLogin(),
		CreatedAt: e.CreatedAt,
		Public:    e.Public,
	}
}

type rawGist struct {
	ID          string                     `json:"id"`
	Description string                     `json:"description"`
	Files       map[string]json.RawMessage `json:"files"`
	CreatedAt   string                     `json:"created_at"`
	UpdatedAt   string                     `json:"updated_at"`
	HTMLURL     string                     `json:"html_url"`
	Public      bool                       `json:"public"`
}

// ==========================
// Shaping functions
// ==========================

func decodeRaw[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

func capped[T any](list []T, n int) []T {
	if len(list) > n {
		return list[:n]
	}
	return list
}

func shapeProfile(raw []byte, _ time.Time) (Profile, error) {
	u, err := decodeRaw[rawUser](raw)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Login:       u.Login,
		Name:        u.Name,
		Bio:         u.Bio,
		Location:    u.Location,
		Company:     u.Company,
		Blog:        u.Blog,
		PublicRepos: u.PublicRepos,
		Followers:   u.Followers,
		Following:   u.Following,
		CreatedAt:   u.CreatedAt,
		AvatarURL:   u.AvatarURL,
		HTMLURL:     u.HTMLURL,
	}, nil
}

func shapeRecentRepos(raw []byte, _ time.Time) ([]Repository, error) {
	repos, err := decodeRaw[[]rawRepo](raw)
	if err != nil {
		return nil, err
	}
	out := make([]Repository, 0, repoCap)
	for _, r := range capped(repos, repoCap) {
		out = append(out, Repository{
			Name:        r.Name,
			Description: r.Description,
			Language:    r.Language,
			Stars:       r.StargazersCount,
			Forks:       r.ForksCount,
			UpdatedAt:   r.UpdatedAt,
			HTMLURL:     r.HTMLURL,
		})
	}
	return out, nil
}

func shapeStarred(raw []byte, _ time.Time) ([]Repository, error) {
	repos, err := decodeRaw[[]rawRepo](raw)
	if err != nil {
		return nil, err
	}
	out := make([]Repository, 0, repoCap)
	for _, r := range capped(repos, repoCap) {
		repo := Repository{
			Name:        r.Name,
			Description: r.Description,
			Stars:       r.StargazersCount,
			Language:    r.Language,
			HTMLURL:     r.HTMLURL,
		}
		if r.Owner != nil {
			repo.Owner = r.Owner.Login
		}
		out = append(out, repo)
	}
	return out, nil
}

func shapeTopRepos(raw []byte, _ time.Time) ([]Repository, error) {
	repos, err := decodeRaw[[]rawRepo](raw)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(repos, func(a, b int) bool {
		return repos[a].StargazersCount > repos[b].StargazersCount
	})
	out := make([]Repository, 0, repoCap)
	for _, r := range capped(repos, repoCap) {
		out = append(out, Repository{
			Name:        r.Name,
			Description: r.Description,
			Language:    r.Language,
			Stars:       r.StargazersCount,
			Forks:       r.ForksCount,
			Watchers:    r.WatchersCount,
			HTMLURL:     r.HTMLURL,
			CreatedAt:   r.CreatedAt,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return out, nil
}

func shapeRecentCommits(raw []byte, _ time.Time) ([]Commit, error) {
	events, err := decodeRaw[[]rawEvent](raw)
	if err != nil {
		return nil, err
	}
	out := make([]Commit, 0, commitCap)
	for _, e := range capped(events, commitCap) {
		c := Commit{
			Type:      e.Type,
			Repo:      e.repoName(),
			Actor:     e.actorLogin(),
			CreatedAt: e.CreatedAt,
		}
		if e.Payload != nil {
			c.Action = e.Payload.Action
			if len(e.Payload.Commits) > 0 {
				c.CommitMessage = e.Payload.Commits[0].Message
				c.CommitURL = e.Payload.Commits[0].URL
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// shapeActivity keeps events from the 30 days before now.
func shapeActivity(raw []byte, now time.Time) ([]Event, error) {
	events, err := decodeRaw[[]rawEvent](raw)
	if err != nil {
		return nil, err
	}
	since := now.Add(-activityWindow)
	out := make([]Event, 0)
	for _, e := range events {
		created, err := time.Parse(time.RFC3339, e.CreatedAt)
		if err != nil || !created.After(since) {
			continue
		}
		out = append(out, e.toEvent())
		if len(out) == activityCap {
			break
		}
	}
	return out, nil
}

func shapePublicEvents(raw []byte, _ time.Time) ([]Event, error) {
	events, err := decodeRaw[[]rawEvent](raw)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, eventCap)
	for _, e := range capped(events, eventCap) {
		out = append(out, e.toEvent())
	}
	return out, nil
}

func shapePullRequests(raw []byte, _ time.Time) ([]PullRequest, error) {
	var search struct {
		Items *[]struct {
			Title         string `json:"title"`
			State         string `json:"state"`
			CreatedAt     string `json:"created_at"`
			HTMLURL       string `json:"html_url"`
			RepositoryURL string `json:"repository_url"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &search); err != nil {
		return nil, err
	}
	if search.Items == nil {
		return nil, errMissingItems
	}
	out := make([]PullRequest, 0, pullRequestCap)
	for _, pr := range capped(*search.Items, pullRequestCap) {
		out = append(out, PullRequest{
			Title:         pr.Title,
			State:         pr.State,
			CreatedAt:     pr.CreatedAt,
			URL:           pr.HTMLURL,
			RepositoryURL: pr.RepositoryURL,
		})
	}
	return out, nil
}

// countLanguages tallies repositories per language, most used first with
// ties broken by name.
func countLanguages(repos []rawRepo) []LanguageCount {
	counts := make(map[string]int)
	for _, r := range repos {
		if r.Language != "" {
			counts[r.Language]++
		}
	}
	out := make([]LanguageCount, 0, len(counts))
	for lang, n := range counts {
		out = append(out, LanguageCount{Language: lang, Count: n})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		return out[a].Language < out[b].Language
	})
	return out
}

func shapeLanguages(raw []byte, _ time.Time) ([]LanguageCount, error) {
	repos, err := decodeRaw[[]rawRepo](raw)
	if err != nil {
		return nil, err
	}
	return capped(countLanguages(repos), languageCap), nil
}

func shapeRepositoryStats(raw []byte, _ time.Time) (RepoStats, error) {
	repos, err := decodeRaw[[]rawRepo](raw)
	if err != nil {
		return RepoStats{}, err
	}

	stats := RepoStats{
		TotalRepositories: len(repos),
		PrimaryLanguage:   "Unknown",
		MostStarredRepo:   "None",
	}
	mostStars := -1
	for _, r := range repos {
		stats.TotalStars += r.StargazersCount
		stats.TotalForks += r.ForksCount
		if r.StargazersCount > mostStars {
			mostStars = r.StargazersCount
			stats.MostStarredRepo = r.Name
		}
	}

	langs := countLanguages(repos)
	if len(langs) > 0 {
		stats.PrimaryLanguage = langs[0].Language
	}
	stats.LanguageDistribution = capped(langs, distributionCap)
	return stats, nil
}

func shapeReadme(raw []byte, _ time.Time) (Readme, error) {
	var file struct {
		Content     string `json:"content"`
		Size        int    `json:"size"`
		Name        string `json:"name"`
		DownloadURL string `json:"download_url"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return Readme{}, err
	}
	if file.Content == "" {
		return Readme{}, errNoReadme
	}
	// the provider wraps base64 content at 60 columns
	content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return Readme{}, err
	}
	return Readme{
		Content:     string(content),
		Size:        file.Size,
		Name:        file.Name,
		DownloadURL: file.DownloadURL,
	}, nil
}

func shapePeople(raw []byte, _ time.Time) ([]Person, error) {
	users, err := decodeRaw[[]rawUser](raw)
	if err != nil {
		return nil, err
	}
	out := make([]Person, 0, peopleCap)
	for _, u := range capped(users, peopleCap) {
		out = append(out, Person{
			Username: u.Login,
			Avatar:   u.AvatarURL,
			URL:      u.HTMLURL,
			Type:     u.Type,
		})
	}
	return out, nil
}

func shapeGists(raw []byte, _ time.Time) ([]Gist, error) {
	gists, err := decodeRaw[[]rawGist](raw)
	if err != nil {
		return nil, err
	}
	out := make([]Gist, 0, gistCap)
	for _, g := range capped(gists, gistCap) {
		files := make([]string, 0, len(g.Files))
		for name := range g.Files {
			files = append(files, name)
		}
		sort.Strings(files)

		desc := g.Description
		if desc == "" {
			desc = "No description"
		}
		out = append(out, Gist{
			ID:          g.ID,
			Description: desc,
			Files:       files,
			CreatedAt:   g.CreatedAt,
			UpdatedAt:   g.UpdatedAt,
			URL:         g.HTMLURL,
			Public:      g.Public,
		})
	}
	return out, nil
}

func shapeOrganizations(raw []byte, _ time.Time) ([]Organization, error) {
	orgs, err := decodeRaw[[]rawUser](raw)
	if err != nil {
		return nil, err
	}
	out := make([]Organization, 0, orgCap)
	for _, o := range capped(orgs, orgCap) {
		out = append(out, Organization{
			Name:        o.Login,
			Description: o.Description,
			Avatar:      o.AvatarURL,
			URL:         o.URL,
		})
	}
	return out, nil
}
