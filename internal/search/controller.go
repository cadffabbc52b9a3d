package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"vidcat/internal/failure"
	"vidcat/internal/models"
	"vidcat/internal/notify"

	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 8
	maxCachedPages  = 16
)

var (
	// ErrSuperseded is returned to the caller whose response arrived after a
	// newer query was issued. The response is dropped.
	ErrSuperseded = errors.New("search superseded by a newer query")
	// ErrNotSearched is returned by page navigation before the first submit.
	ErrNotSearched = errors.New("no search submitted yet")
)

type Searcher interface {
	Search(ctx context.Context, query models.SearchQuery) (models.SearchResult, error)
}

type State int

const (
	Idle State = iota
	Pending
	Settled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is a copy of the controller state; it shares nothing with it.
// Result is the last settled page, which may belong to an older query while
// a newer one is pending.
type Snapshot struct {
	State       State
	Query       models.SearchQuery
	Filters     models.FilterSet
	Result      models.SearchResult
	Failure     *failure.Failure
	Generation  uint64
	TotalPages  int
	HasSearched bool
}

// Controller owns the search intent and the page currently shown. Every
// query-changing call bumps the generation; a response is applied only if
// its generation is still current when it arrives.
type Controller struct {
	searcher Searcher
	logger   *logrus.Logger
	pageSize int

	mu          sync.Mutex
	state       State
	query       models.SearchQuery
	filters     models.FilterSet
	generation  uint64
	hasSearched bool
	result      models.SearchResult
	settled     bool
	fail        *failure.Failure
	pages       map[models.SearchQuery]models.SearchResult
	pageOrder   []models.SearchQuery

	changes notify.Broadcaster
}

func NewController(searcher Searcher, pageSize int, logger *logrus.Logger) *Controller {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Controller{
		searcher: searcher,
		logger:   logger,
		pageSize: pageSize,
		pages:    make(map[models.SearchQuery]models.SearchResult),
	}
}

// Submit starts a new search for term on page 1 with the current filters.
// It always fetches, so submitting again is how a failed search is retried.
func (c *Controller) Submit(ctx context.Context, term string) (models.SearchResult, error) {
	return c.submit(ctx, term, nil)
}

// SubmitFiltered replaces the filters and submits term in one step.
func (c *Controller) SubmitFiltered(ctx context.Context, term string, filters models.FilterSet) (models.SearchResult, error) {
	if err := validateFilters(filters); err != nil {
		return models.SearchResult{}, failure.Validation("search", err)
	}
	return c.submit(ctx, term, &filters)
}

func (c *Controller) submit(ctx context.Context, term string, filters *models.FilterSet) (models.SearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return models.SearchResult{}, failure.Validation("search", &models.FieldError{Field: "q", Reason: "search term cannot be empty"})
	}

	c.mu.Lock()
	if filters != nil {
		c.filters = *filters
	}
	c.hasSearched = true
	c.clearPagesLocked()
	q := models.SearchQuery{Term: term, Filters: c.filters, Page: 1, PageSize: c.pageSize}
	gen := c.beginLocked(q)
	c.mu.Unlock()

	c.changes.Notify()
	c.logger.WithFields(logrus.Fields{
		"query":      term,
		"generation": gen,
	}).Info("Search submitted")

	return c.fetch(ctx, gen, q)
}

// SetFilters replaces the filter set and goes back to page 1. Before the
// first submit it only records the filters.
func (c *Controller) SetFilters(ctx context.Context, filters models.FilterSet) (models.SearchResult, error) {
	return c.updateFilters(ctx, func(f *models.FilterSet) { *f = filters })
}

func (c *Controller) SetGenre(ctx context.Context, genre string) (models.SearchResult, error) {
	return c.updateFilters(ctx, func(f *models.FilterSet) { f.Genre = strings.TrimSpace(genre) })
}

// SetYear filters by release year; zero means any year.
func (c *Controller) SetYear(ctx context.Context, year int) (models.SearchResult, error) {
	return c.updateFilters(ctx, func(f *models.FilterSet) { f.Year = year })
}

func (c *Controller) SetSort(ctx context.Context, sort models.SortMode) (models.SearchResult, error) {
	return c.updateFilters(ctx, func(f *models.FilterSet) { f.Sort = sort })
}

// GoToPage shows page, clamped into the range of the last settled result.
func (c *Controller) GoToPage(ctx context.Context, page int) (models.SearchResult, error) {
	return c.turn(ctx, func(int) int { return page })
}

func (c *Controller) NextPage(ctx context.Context) (models.SearchResult, error) {
	return c.turn(ctx, func(current int) int { return current + 1 })
}

func (c *Controller) PrevPage(ctx context.Context) (models.SearchResult, error) {
	return c.turn(ctx, func(current int) int { return current - 1 })
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:       c.state,
		Query:       c.query,
		Filters:     c.filters,
		Failure:     c.fail,
		Generation:  c.generation,
		HasSearched: c.hasSearched,
	}
	if c.settled {
		s.Result = c.result
		s.Result.Hits = slices.Clone(c.result.Hits)
		s.TotalPages = c.result.TotalPages()
	}
	return s
}

func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	return c.changes.Subscribe()
}

func (c *Controller) updateFilters(ctx context.Context, mutate func(*models.FilterSet)) (models.SearchResult, error) {
	c.mu.Lock()
	filters := c.filters
	mutate(&filters)
	if err := validateFilters(filters); err != nil {
		c.mu.Unlock()
		return models.SearchResult{}, failure.Validation("search", err)
	}

	changed := filters != c.filters
	c.filters = filters
	if !c.hasSearched {
		c.mu.Unlock()
		return models.SearchResult{}, nil
	}
	if changed {
		c.clearPagesLocked()
	}

	q := c.query
	q.Filters = filters
	q.Page = 1
	res, gen, reused := c.prepareLocked(q)
	c.mu.Unlock()

	c.changes.Notify()
	if reused {
		return res, nil
	}
	return c.fetch(ctx, gen, q)
}

func (c *Controller) turn(ctx context.Context, target func(current int) int) (models.SearchResult, error) {
	c.mu.Lock()
	if !c.hasSearched {
		c.mu.Unlock()
		return models.SearchResult{}, ErrNotSearched
	}

	q := c.query
	q.Page = c.clampLocked(target(q.Page))
	res, gen, reused := c.prepareLocked(q)
	c.mu.Unlock()

	c.changes.Notify()
	if reused {
		return res, nil
	}
	return c.fetch(ctx, gen, q)
}

// prepareLocked serves q from memory when it can. Otherwise it starts a new
// generation for q and returns it for fetching.
func (c *Controller) prepareLocked(q models.SearchQuery) (models.SearchResult, uint64, bool) {
	if c.state == Settled && c.result.Query == q {
		return c.result, c.generation, true
	}

	if res, ok := c.pages[q]; ok {
		c.generation++
		c.query = q
		c.state = Settled
		c.result = res
		c.settled = true
		c.fail = nil
		c.logger.WithFields(logrus.Fields{
			"query": q.Term,
			"page":  q.Page,
		}).Debug("Reusing cached search page")
		return res, c.generation, true
	}

	return models.SearchResult{}, c.beginLocked(q), false
}

func (c *Controller) beginLocked(q models.SearchQuery) uint64 {
	c.generation++
	c.query = q
	c.state = Pending
	c.fail = nil
	return c.generation
}

func (c *Controller) fetch(ctx context.Context, gen uint64, q models.SearchQuery) (models.SearchResult, error) {
	res, err := c.searcher.Search(ctx, q)

	c.mu.Lock()
	if gen != c.generation {
		current := c.generation
		c.mu.Unlock()
		c.logger.WithFields(logrus.Fields{
			"query":      q.Term,
			"page":       q.Page,
			"generation": gen,
			"current":    current,
		}).Debug("Discarding superseded search response")
		return models.SearchResult{}, ErrSuperseded
	}

	if err != nil {
		f := failure.As("search", err)
		c.state = Failed
		c.fail = f
		c.mu.Unlock()

		c.changes.Notify()
		c.logger.WithError(err).WithField("query", q.Term).Warn("Search failed")
		return models.SearchResult{}, f
	}

	res.Query = q
	c.state = Settled
	c.result = res
	c.settled = true
	c.fail = nil
	c.rememberLocked(q, res)
	c.mu.Unlock()

	c.changes.Notify()
	return res, nil
}

// clampLocked keeps page inside [1, max(totalPages,1)] when the last settled
// result belongs to the current term and filters.
func (c *Controller) clampLocked(page int) int {
	if page < 1 {
		page = 1
	}
	if !c.settled {
		return page
	}
	r, q := c.result.Query, c.query
	if r.Term != q.Term || r.Filters != q.Filters || r.PageSize != q.PageSize {
		return page
	}
	return min(page, max(c.result.TotalPages(), 1))
}

func (c *Controller) rememberLocked(q models.SearchQuery, res models.SearchResult) {
	if _, ok := c.pages[q]; !ok {
		if len(c.pageOrder) >= maxCachedPages {
			delete(c.pages, c.pageOrder[0])
			c.pageOrder = c.pageOrder[1:]
		}
		c.pageOrder = append(c.pageOrder, q)
	}
	c.pages[q] = res
}

func (c *Controller) clearPagesLocked() {
	clear(c.pages)
	c.pageOrder = c.pageOrder[:0]
}

func validateFilters(f models.FilterSet) error {
	if f.Sort != "" && !f.Sort.Valid() {
		return &models.FieldError{Field: "sort", Reason: fmt.Sprintf("unknown sort mode %q", f.Sort)}
	}
	if f.Year != 0 && (f.Year < models.MinYear || f.Year > models.MaxYear) {
		return &models.FieldError{Field: "year", Reason: fmt.Sprintf("must be between %d and %d", models.MinYear, models.MaxYear)}
	}
	return nil
}
