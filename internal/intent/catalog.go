package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const subjectPlaceholder = "{user}"

// Request is a resolved provider read: a path relative to the provider
// base URL and its query parameters.
type Request struct {
	Path  string
	Query url.Values
}

// URL joins the request onto base.
func (r Request) URL(base string) string {
	u := strings.TrimRight(base, "/") + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}

type shapeFunc func(raw []byte, now time.Time) (any, error)

type decodeFunc func(raw []byte) (any, error)

type endpoint struct {
	path   string
	query  map[string]string
	shape  shapeFunc
	decode decodeFunc
}

func newEndpoint[T any](path string, query map[string]string, shape func([]byte, time.Time) (T, error)) endpoint {
	return endpoint{
		path:  path,
		query: query,
		shape: func(raw []byte, now time.Time) (any, error) {
			return shape(raw, now)
		},
		decode: func(raw []byte) (any, error) {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

var endpoints = map[Intent]endpoint{
	UserBio:              newEndpoint("/users/{user}", nil, shapeProfile),
	RecentRepos:          newEndpoint("/users/{user}/repos", map[string]string{"sort": "updated"}, shapeRecentRepos),
	RecentCommits:        newEndpoint("/users/{user}/events", nil, shapeRecentCommits),
	OpenPullRequests:     newEndpoint("/search/issues", map[string]string{"q": "author:{user} type:pr state:open"}, shapePullRequests),
	RepoLanguages:        newEndpoint("/users/{user}/repos", nil, shapeLanguages),
	StarredRepos:         newEndpoint("/users/{user}/starred", nil, shapeStarred),
	Followers:            newEndpoint("/users/{user}/followers", nil, shapePeople),
	Following:            newEndpoint("/users/{user}/following", nil, shapePeople),
	Gists:                newEndpoint("/users/{user}/gists", nil, shapeGists),
	Organizations:        newEndpoint("/users/{user}/orgs", nil, shapeOrganizations),
	ContributionActivity: newEndpoint("/users/{user}/events", nil, shapeActivity),
	PublicEvents:         newEndpoint("/users/{user}/received_events", nil, shapePublicEvents),
	TopRepositories:      newEndpoint("/users/{user}/repos", map[string]string{"sort": "stars"}, shapeTopRepos),
	RepositoryStats:      newEndpoint("/users/{user}/repos", nil, shapeRepositoryStats),
	CodingStreak:         newEndpoint("/users/{user}/events", nil, shapeActivity),
	ProfileReadme:        newEndpoint("/repos/{user}/{user}/readme", nil, shapeReadme),
}

// Catalog resolves intents to provider requests and shapes their payloads.
// It is read-only and safe for concurrent use.
type Catalog struct {
	now func() time.Time
}

func NewCatalog() *Catalog {
	return &Catalog{now: time.Now}
}

// WithClock returns a catalog whose time-windowed shaping uses now.
func (c *Catalog) WithClock(now func() time.Time) *Catalog {
	return &Catalog{now: now}
}

// Resolve fills the endpoint template of i with subject.
func (c *Catalog) Resolve(i Intent, subject string) (Request, error) {
	s, ok := endpoints[i]
	if !ok {
		return Request{}, fmt.Errorf("%w: %s", ErrUnknownIntent, i)
	}

	req := Request{Path: strings.ReplaceAll(s.path, subjectPlaceholder, url.PathEscape(subject))}
	if len(s.query) > 0 {
		req.Query = make(url.Values, len(s.query))
		for k, v := range s.query {
			req.Query.Set(k, strings.ReplaceAll(v, subjectPlaceholder, subject))
		}
	}
	return req, nil
}

// Shape normalizes a raw provider payload for i. It never panics: any
// decode failure becomes the intent's error marker.
func (c *Catalog) Shape(i Intent, raw []byte) (result ShapedResult) {
	s, ok := endpoints[i]
	if !ok {
		return Failed(i)
	}

	defer func() {
		if r := recover(); r != nil {
			result = Failed(i)
		}
	}()

	v, err := s.shape(raw, c.now())
	if err != nil {
		var marker markerError
		if errors.As(err, &marker) {
			return ShapedResult{Err: string(marker)}
		}
		return Failed(i)
	}
	return ShapedResult{Value: v}
}

// decode rebuilds a typed shaped value from its JSON form.
func decode(i Intent, raw []byte) (any, error) {
	s, ok := endpoints[i]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntent, i)
	}
	return s.decode(raw)
}
