// Package cache puts a Redis read-through cache in front of a company source.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/comps/internal/metrics"
	"github.com/sells-group/comps/internal/model"
	"github.com/sells-group/comps/internal/similarity"
)

const (
	defaultTTL          = 15 * time.Minute
	defaultCandidateTTL = 5 * time.Minute
	defaultPrefix       = "comps:"
)

// CachedSource wraps a similarity.CompanySource. Snapshots are stored as
// JSON, one key per company, and candidate pools one key per query. Redis
// errors are logged and the call falls through to the wrapped source.
type CachedSource struct {
	source       similarity.CompanySource
	rdb          redis.Cmdable
	ttl          time.Duration
	candidateTTL time.Duration
	prefix       string
}

// Option configures a CachedSource.
type Option func(*CachedSource)

// WithTTL sets the expiry of cached company snapshots.
func WithTTL(d time.Duration) Option {
	return func(c *CachedSource) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithCandidateTTL sets the expiry of cached candidate pools.
func WithCandidateTTL(d time.Duration) Option {
	return func(c *CachedSource) {
		if d > 0 {
			c.candidateTTL = d
		}
	}
}

// WithPrefix namespaces every key.
func WithPrefix(p string) Option {
	return func(c *CachedSource) {
		if p != "" {
			c.prefix = p
		}
	}
}

// New creates a CachedSource.
func New(source similarity.CompanySource, rdb redis.Cmdable, opts ...Option) *CachedSource {
	c := &CachedSource{
		source:       source,
		rdb:          rdb,
		ttl:          defaultTTL,
		candidateTTL: defaultCandidateTTL,
		prefix:       defaultPrefix,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *CachedSource) companyKey(id int64) string {
	return c.prefix + "company:" + strconv.FormatInt(id, 10)
}

// GetCompanies returns cached snapshots and loads the rest from the source
// in one call. Results follow the order of ids.
func (c *CachedSource) GetCompanies(ctx context.Context, ids []int64) ([]model.Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.companyKey(id)
	}

	found := make(map[int64]model.Company, len(ids))
	var missing []int64

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.logError("mget", err)
		missing = ids
	} else {
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var co model.Company
			if err := json.Unmarshal([]byte(s), &co); err != nil {
				c.logError("decode company", err)
				missing = append(missing, ids[i])
				continue
			}
			found[ids[i]] = co
		}
	}
	metrics.CacheLookups.WithLabelValues(metrics.OutcomeCacheHit).Add(float64(len(found)))
	metrics.CacheLookups.WithLabelValues(metrics.OutcomeCacheMiss).Add(float64(len(missing)))

	if len(missing) > 0 {
		loaded, err := c.source.GetCompanies(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, co := range loaded {
			found[co.ID] = co
		}
		c.storeCompanies(ctx, loaded)
	}

	out := make([]model.Company, 0, len(found))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if co, ok := found[id]; ok && !seen[id] {
			out = append(out, co)
			seen[id] = true
		}
	}
	return out, nil
}

func (c *CachedSource) storeCompanies(ctx context.Context, companies []model.Company) {
	if len(companies) == 0 {
		return
	}
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i := range companies {
			b, err := json.Marshal(&companies[i])
			if err != nil {
				return eris.Wrapf(err, "cache: encode company %d", companies[i].ID)
			}
			p.Set(ctx, c.companyKey(companies[i].ID), b, c.ttl)
		}
		return nil
	})
	if err != nil {
		c.logError("store companies", err)
	}
}

// ListCandidates returns the cached pool for q or loads and caches it.
func (c *CachedSource) ListCandidates(ctx context.Context, q model.CandidateQuery) ([]model.Company, error) {
	key := c.prefix + "candidates:" + QueryHash(q)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out []model.Company
		if err := json.Unmarshal(raw, &out); err == nil {
			metrics.CacheLookups.WithLabelValues(metrics.OutcomeCacheHit).Inc()
			return out, nil
		}
		c.logError("decode candidates", err)
	case errors.Is(err, redis.Nil):
	default:
		c.logError("get candidates", err)
	}
	metrics.CacheLookups.WithLabelValues(metrics.OutcomeCacheMiss).Inc()

	out, err := c.source.ListCandidates(ctx, q)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(out)
	if err != nil {
		c.logError("encode candidates", err)
		return out, nil
	}
	if err := c.rdb.Set(ctx, key, b, c.candidateTTL).Err(); err != nil {
		c.logError("set candidates", err)
	}
	return out, nil
}

// Invalidate drops cached snapshots for ids along with every cached
// candidate pool, since any pool may hold one of them or miss a new one.
func (c *CachedSource) Invalidate(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.companyKey(id)
	}

	iter := c.rdb.Scan(ctx, 0, c.prefix+"candidates:*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return eris.Wrap(err, "cache: scan candidate pools")
	}
	return eris.Wrap(c.rdb.Del(ctx, keys...).Err(), "cache: invalidate")
}

// QueryHash returns a stable key for a candidate query. Exclusion order,
// filter case and country aliases do not change the hash.
func QueryHash(q model.CandidateQuery) string {
	exclude := slices.Clone(q.ExcludeIDs)
	slices.Sort(exclude)
	exclude = slices.Compact(exclude)

	var b strings.Builder
	for _, id := range exclude {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte(',')
	}
	b.WriteByte('|')
	b.WriteString(model.CountryCode(q.Country))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.TrimSpace(q.Sector)))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(q.Limit))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

func (c *CachedSource) logError(op string, err error) {
	metrics.CacheLookups.WithLabelValues(metrics.OutcomeError).Inc()
	zap.L().Warn("cache: redis error, using source", zap.String("op", op), zap.Error(err))
}
