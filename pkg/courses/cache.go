// Package courses resolves instructor-friendly course identifiers
// (numeric IDs, course codes, SIS IDs) onto canonical Canvas IDs,
// backed by a process-local cache of the token's active courses.
package courses

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
)

// SISPrefix marks identifiers Canvas resolves server-side; the gateway
// passes them through verbatim in place of a numeric ID.
const SISPrefix = "sis_course_id:"

// Cache maps course codes to Canvas IDs and back. Lookups hit the maps;
// misses trigger at most one refresh per staleness window, deduplicated
// across concurrent callers.
type Cache struct {
	client *canvas.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group

	mu        sync.RWMutex
	byCode    map[string]int64
	byID      map[int64]canvas.Course
	fetchedAt time.Time
}

// Stats is a read-only view of the cache for health output.
type Stats struct {
	Courses   int           `json:"courses"`
	Codes     int           `json:"codes"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
}

// NewCache builds an empty cache; the first code lookup populates it.
func NewCache(client *canvas.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger,
		byCode: map[string]int64{},
		byID:   map[int64]canvas.Course{},
	}
}

// ResolveToID turns a course identifier into the string form endpoints
// interpolate into paths. Numeric IDs and sis_course_id: identifiers
// pass through without any API traffic; course codes resolve through
// the cache. A code the cache cannot resolve is returned with the SIS
// prefix so Canvas can attempt resolution server-side.
func (c *Cache) ResolveToID(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", canvas.NewError(canvas.CodeValidation, "course identifier is required").
			WithDetail("parameter", "course_identifier")
	}
	if isDigits(identifier) {
		return identifier, nil
	}
	if strings.HasPrefix(identifier, SISPrefix) {
		return identifier, nil
	}

	if id, ok := c.lookupCode(identifier); ok {
		return strconv.FormatInt(id, 10), nil
	}
	if !c.fresh() {
		if err := c.refresh(ctx); err != nil {
			return "", err
		}
		if id, ok := c.lookupCode(identifier); ok {
			return strconv.FormatInt(id, 10), nil
		}
	}
	c.logger.Debug("course code not in cache; deferring to SIS resolution",
		"identifier", identifier)
	return SISPrefix + identifier, nil
}

// ResolveToCode maps a Canvas course ID back to its course code for
// display. Unknown IDs are fetched individually and backfilled so
// repeated formatting does not re-query.
func (c *Cache) ResolveToCode(ctx context.Context, id int64) (string, error) {
	if course, ok := c.lookupID(id); ok {
		return course.CourseCode, nil
	}
	if !c.fresh() {
		if err := c.refresh(ctx); err != nil {
			return "", err
		}
		if course, ok := c.lookupID(id); ok {
			return course.CourseCode, nil
		}
	}
	course, err := c.fetchOne(ctx, strconv.FormatInt(id, 10))
	if err != nil {
		return "", err
	}
	return course.CourseCode, nil
}

// Lookup returns the full cached record for any identifier form,
// fetching and backfilling when the cache cannot answer.
func (c *Cache) Lookup(ctx context.Context, identifier string) (canvas.Course, error) {
	identifier = strings.TrimSpace(identifier)
	switch {
	case identifier == "":
		return canvas.Course{}, canvas.NewError(canvas.CodeValidation, "course identifier is required").
			WithDetail("parameter", "course_identifier")
	case strings.HasPrefix(identifier, SISPrefix):
		return c.fetchOne(ctx, identifier)
	case isDigits(identifier):
		id, _ := strconv.ParseInt(identifier, 10, 64)
		if course, ok := c.lookupID(id); ok {
			return course, nil
		}
		return c.fetchOne(ctx, identifier)
	default:
		resolved, err := c.ResolveToID(ctx, identifier)
		if err != nil {
			return canvas.Course{}, err
		}
		id, _ := strconv.ParseInt(resolved, 10, 64)
		if course, ok := c.lookupID(id); ok {
			return course, nil
		}
		return c.fetchOne(ctx, resolved)
	}
}

// Refresh forces a reload of the active course list.
func (c *Cache) Refresh(ctx context.Context) error {
	return c.doRefresh(ctx, true)
}

// Stats reports cache size and age.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Courses:   len(c.byID),
		Codes:     len(c.byCode),
		FetchedAt: c.fetchedAt,
		TTL:       c.ttl,
	}
}

func (c *Cache) lookupCode(code string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byCode[code]
	return id, ok
}

func (c *Cache) lookupID(id int64) (canvas.Course, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	course, ok := c.byID[id]
	return course, ok
}

func (c *Cache) fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl
}

// refresh reloads the token's active courses when the cache is stale.
// Concurrent misses share one flight; the first caller's context
// governs the fetch, and a flight that starts right after another
// finished re-checks freshness instead of fetching again.
func (c *Cache) refresh(ctx context.Context) error {
	return c.doRefresh(ctx, false)
}

func (c *Cache) doRefresh(ctx context.Context, force bool) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		if !force && c.fresh() {
			return nil, nil
		}
		q := url.Values{}
		q.Set("enrollment_state", "active")
		courses, err := canvas.PaginateInto[canvas.Course](ctx, c.client, "/courses",
			&canvas.RequestOptions{Query: q, SkipAnonymize: true})
		if err != nil {
			return nil, err
		}
		c.store(courses)
		c.logger.Debug("course cache refreshed", "courses", len(courses))
		return nil, nil
	})
	return err
}

// store replaces the maps wholesale. Canvas allows the same course code
// across terms; the newest course (highest ID) wins the forward mapping
// so code resolution stays deterministic.
func (c *Cache) store(courses []canvas.Course) {
	byCode := make(map[string]int64, len(courses))
	byID := make(map[int64]canvas.Course, len(courses))
	for _, course := range courses {
		if course.ID == 0 {
			continue
		}
		byID[course.ID] = course
		code := strings.TrimSpace(course.CourseCode)
		if code == "" {
			continue
		}
		if existing, ok := byCode[code]; ok {
			if course.ID <= existing {
				continue
			}
			c.logger.Warn("duplicate course code; newest course wins",
				"course_code", code, "kept", course.ID, "shadowed", existing)
		}
		byCode[code] = course.ID
	}
	c.mu.Lock()
	c.byCode = byCode
	c.byID = byID
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

// fetchOne retrieves a single course by ID or SIS identifier and
// backfills the maps without touching fetchedAt.
func (c *Cache) fetchOne(ctx context.Context, pathID string) (canvas.Course, error) {
	raw, err := c.client.Do(ctx, "GET", "/courses/"+pathID,
		&canvas.RequestOptions{SkipAnonymize: true})
	if err != nil {
		return canvas.Course{}, err
	}
	course, err := canvas.Decode[canvas.Course](raw)
	if err != nil {
		return canvas.Course{}, canvas.WrapError(canvas.CodeCanvasAPI, err, "decode course %s", pathID)
	}
	if course.ID != 0 {
		c.mu.Lock()
		c.byID[course.ID] = course
		if code := strings.TrimSpace(course.CourseCode); code != "" {
			if _, taken := c.byCode[code]; !taken {
				c.byCode[code] = course.ID
			}
		}
		c.mu.Unlock()
	}
	return course, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
