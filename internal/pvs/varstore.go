package pvs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"pvs_monitor/internal/logger"
)

const (
	pathVars      = "/vars"
	cacheIDPrefix = "pvsmon_"
	devicesRoot   = "/sys/devices/"
)

// VarStore queries the local-API variable store. Each match pattern gets a server-side
// cache on first use; later queries name only the cache and still return live values.
type VarStore struct {
	transport *Transport
	session   *Session
	log       *logger.Logger

	mu     sync.Mutex
	caches map[string]string // pattern -> established cache id
}

func NewVarStore(t *Transport, s *Session, log *logger.Logger) *VarStore {
	if log == nil {
		log = logger.Nop()
	}
	return &VarStore{
		transport: t,
		session:   s,
		log:       log,
		caches:    make(map[string]string),
	}
}

// CacheID derives the stable cache identifier for a pattern.
func CacheID(pattern string) string {
	var b strings.Builder
	b.WriteString(cacheIDPrefix)
	for _, r := range strings.ToLower(pattern) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Cached returns the cache id established for pattern, if any.
func (v *VarStore) Cached(pattern string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id, ok := v.caches[pattern]
	return id, ok
}

// Query returns the live path -> value mapping for pattern.
func (v *VarStore) Query(ctx context.Context, pattern string) (map[string]any, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrMalformedQuery)
	}

	if id, ok := v.Cached(pattern); ok {
		q := url.Values{}
		q.Set("cache", id)
		q.Set("fmt", "obj")
		values, err := v.fetch(ctx, q)
		if err == nil {
			return values, nil
		}
		if !isCacheMiss(err) {
			return nil, err
		}
		// The device forgot the cache, typically after a reboot.
		v.log.Infow("pvs_cache_reestablish", "pattern", pattern, "cache_id", id)
		v.forget(pattern)
	}

	id := CacheID(pattern)
	q := url.Values{}
	q.Set("match", pattern)
	q.Set("cache", id)
	q.Set("fmt", "obj")
	values, err := v.fetch(ctx, q)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && isClientRejection(statusErr.Code) {
			return nil, fmt.Errorf("%w: pattern %q: %w", ErrMalformedQuery, pattern, err)
		}
		return nil, err
	}

	v.mu.Lock()
	v.caches[pattern] = id
	v.mu.Unlock()
	v.log.Debugw("pvs_cache_established", "pattern", pattern, "cache_id", id, "vars", len(values))
	return values, nil
}

func (v *VarStore) forget(pattern string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.caches, pattern)
}

func (v *VarStore) fetch(ctx context.Context, q url.Values) (map[string]any, error) {
	var raw map[string]any
	err := v.session.Authorized(ctx, func(token string) error {
		raw = nil
		return v.transport.GetJSON(ctx, pathVars+"?"+q.Encode(), CookieHeader(token), &raw)
	})
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(raw))
	for path, val := range raw {
		values[path] = normalizeScalar(val)
	}
	return values, nil
}

func isCacheMiss(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.Code == http.StatusBadRequest || statusErr.Code == http.StatusNotFound
}

// isClientRejection is a 4xx other than an auth rejection.
func isClientRejection(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusUnauthorized && code != http.StatusForbidden
}

// normalizeScalar turns decoded json.Number values into float64, keeping everything else.
func normalizeScalar(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// DeviceGroup is the field set of one physical device under a category.
type DeviceGroup struct {
	Index  string
	Fields map[string]any
}

// GroupByIndex groups /sys/devices/<category>/<idx>/<field> paths into one group per index,
// ordered by index. Paths outside the category are ignored; no matches yields nil.
func GroupByIndex(values map[string]any, category string) []DeviceGroup {
	prefix := devicesRoot + category + "/"
	byIndex := make(map[string]map[string]any)
	for path, val := range values {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		idx, field, ok := strings.Cut(rest, "/")
		if !ok || idx == "" || field == "" || strings.Contains(field, "/") {
			continue
		}
		fields, exists := byIndex[idx]
		if !exists {
			fields = make(map[string]any)
			byIndex[idx] = fields
		}
		fields[field] = val
	}
	if len(byIndex) == 0 {
		return nil
	}

	groups := make([]DeviceGroup, 0, len(byIndex))
	for idx, fields := range byIndex {
		groups = append(groups, DeviceGroup{Index: idx, Fields: fields})
	}
	sort.Slice(groups, func(i, j int) bool {
		a, errA := strconv.Atoi(groups[i].Index)
		b, errB := strconv.Atoi(groups[j].Index)
		if errA == nil && errB == nil {
			return a < b
		}
		return groups[i].Index < groups[j].Index
	})
	return groups
}
