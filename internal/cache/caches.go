package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github-insight/internal/common/metrics"
	"github-insight/internal/intent"
	"github-insight/internal/models"
)

const (
	providerKeyPrefix = "github-"
	responseKeyPrefix = "response-"

	// questionKeyLen is how much of the question text keys a response.
	questionKeyLen = 30
)

// ProviderKey identifies the shaped data of one intent for one user.
func ProviderKey(subject string, i intent.Intent) string {
	return providerKeyPrefix + subject + "-" + string(i)
}

// ResponseKey identifies an answer by user and the first 30 characters of
// the question, so questions sharing that prefix share an answer. The
// subject is escaped, so it never contains the separator.
func ResponseKey(subject, question string) string {
	r := []rune(question)
	if len(r) > questionKeyLen {
		r = r[:questionKeyLen]
	}
	return responseKeyPrefix + url.QueryEscape(subject) + "/" + string(r)
}

// ==========================
// ProviderCache
// ==========================

// ProviderCache keeps shaped provider results per (user, intent). Error
// markers are never stored.
type ProviderCache struct {
	store Store
	name  string
}

func NewProviderCache(store Store) *ProviderCache {
	return &ProviderCache{store: store, name: "provider"}
}

// Get returns the cached result. A store failure reads as a miss and is
// returned alongside for logging.
func (c *ProviderCache) Get(ctx context.Context, subject string, i intent.Intent) (intent.ShapedResult, bool, error) {
	raw, ok, err := c.store.Get(ctx, ProviderKey(subject, i))
	if err != nil {
		metrics.CacheLookups.WithLabelValues(c.name, "error").Inc()
		return intent.ShapedResult{}, false, err
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		return intent.ShapedResult{}, false, nil
	}

	r, err := intent.DecodeResult(i, raw)
	if err != nil {
		metrics.CacheLookups.WithLabelValues(c.name, "error").Inc()
		return intent.ShapedResult{}, false, fmt.Errorf("decode cached %s: %w", i, err)
	}
	metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	return r, true, nil
}

// Put stores a successful result; error markers are skipped.
func (c *ProviderCache) Put(ctx context.Context, subject string, i intent.Intent, r intent.ShapedResult) error {
	if r.IsError() {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode %s: %w", i, err)
	}
	return c.store.Put(ctx, ProviderKey(subject, i), raw)
}

// ==========================
// ResponseCache
// ==========================

// ResponseCache keeps final answers per (user, question prefix).
type ResponseCache struct {
	store Store
	name  string
}

func NewResponseCache(store Store) *ResponseCache {
	return &ResponseCache{store: store, name: "response"}
}

func (c *ResponseCache) Get(ctx context.Context, q models.Query) (*models.FinalAnswer, bool, error) {
	raw, ok, err := c.store.Get(ctx, ResponseKey(q.Subject, q.Question))
	if err != nil {
		metrics.CacheLookups.WithLabelValues(c.name, "error").Inc()
		return nil, false, err
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		return nil, false, nil
	}

	var answer models.FinalAnswer
	if err := json.Unmarshal(raw, &answer); err != nil {
		metrics.CacheLookups.WithLabelValues(c.name, "error").Inc()
		return nil, false, fmt.Errorf("decode cached answer: %w", err)
	}
	metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	return &answer, true, nil
}

func (c *ResponseCache) Put(ctx context.Context, q models.Query, answer *models.FinalAnswer) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	return c.store.Put(ctx, ResponseKey(q.Subject, q.Question), raw)
}

// ==========================
// Construction
// ==========================

// Pair holds the two caches a pipeline needs.
type Pair struct {
	Provider *ProviderCache
	Response *ResponseCache
}

// NewMemoryPair builds both caches on process-local stores.
func NewMemoryPair(providerOpts, responseOpts Options) Pair {
	providerOpts.Name, responseOpts.Name = "provider", "response"
	return Pair{
		Provider: NewProviderCache(NewMemoryStore(providerOpts)),
		Response: NewResponseCache(NewMemoryStore(responseOpts)),
	}
}
