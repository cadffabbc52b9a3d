package search

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
	"vidcat/internal/failure"
	"vidcat/internal/logger"
	"vidcat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSearcher answers immediately with total matches for every query.
type stubSearcher struct {
	total int
	err   error
	calls atomic.Int32
	last  atomic.Value
}

func (s *stubSearcher) Search(_ context.Context, q models.SearchQuery) (models.SearchResult, error) {
	s.calls.Add(1)
	s.last.Store(q)
	if s.err != nil {
		return models.SearchResult{}, s.err
	}
	return page(q, s.total), nil
}

func (s *stubSearcher) lastQuery() models.SearchQuery {
	q, _ := s.last.Load().(models.SearchQuery)
	return q
}

type reply struct {
	result models.SearchResult
	err    error
}

type pendingCall struct {
	query models.SearchQuery
	reply chan reply
}

// gatedSearcher parks every call until the test answers it.
type gatedSearcher struct {
	calls chan pendingCall
}

func (g *gatedSearcher) Search(_ context.Context, q models.SearchQuery) (models.SearchResult, error) {
	call := pendingCall{query: q, reply: make(chan reply, 1)}
	g.calls <- call
	r := <-call.reply
	return r.result, r.err
}

func (g *gatedSearcher) next(t *testing.T) pendingCall {
	t.Helper()
	select {
	case call := <-g.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("search was not issued")
		return pendingCall{}
	}
}

type outcome struct {
	result models.SearchResult
	err    error
}

func page(q models.SearchQuery, total int) models.SearchResult {
	return models.SearchResult{
		Hits:  []models.SearchHit{{ID: "1", Title: q.Term}},
		Total: total,
		Query: q,
	}
}

func submitAsync(c *Controller, term string) <-chan outcome {
	done := make(chan outcome, 1)
	go func() {
		res, err := c.Submit(context.Background(), term)
		done <- outcome{res, err}
	}()
	return done
}

func TestLastSubmittedQueryWins(t *testing.T) {
	gate := &gatedSearcher{calls: make(chan pendingCall, 4)}
	c := NewController(gate, 8, logger.Discard())

	firstDone := submitAsync(c, "alien")
	first := gate.next(t)
	secondDone := submitAsync(c, "aliens")
	second := gate.next(t)

	// The newer query answers first, the older one afterwards.
	second.reply <- reply{result: page(second.query, 3)}
	out := <-secondDone
	require.NoError(t, out.err)

	first.reply <- reply{result: page(first.query, 50)}
	stale := <-firstDone
	assert.ErrorIs(t, stale.err, ErrSuperseded)

	snap := c.Snapshot()
	assert.Equal(t, Settled, snap.State)
	assert.Equal(t, "aliens", snap.Query.Term)
	assert.Equal(t, "aliens", snap.Result.Query.Term)
	assert.Equal(t, 3, snap.Result.Total)
	assert.Equal(t, uint64(2), snap.Generation)
}

func TestStaleFailureIsDiscarded(t *testing.T) {
	gate := &gatedSearcher{calls: make(chan pendingCall, 4)}
	c := NewController(gate, 8, logger.Discard())

	firstDone := submitAsync(c, "dune")
	first := gate.next(t)
	secondDone := submitAsync(c, "dune part two")
	second := gate.next(t)

	first.reply <- reply{err: failure.Server("search", "index unavailable")}
	assert.ErrorIs(t, (<-firstDone).err, ErrSuperseded)
	assert.Equal(t, Pending, c.Snapshot().State)

	second.reply <- reply{result: page(second.query, 1)}
	require.NoError(t, (<-secondDone).err)

	snap := c.Snapshot()
	assert.Equal(t, Settled, snap.State)
	assert.Nil(t, snap.Failure)
}

func TestEmptyTermIsRejectedLocally(t *testing.T) {
	stub := &stubSearcher{total: 5}
	c := NewController(stub, 8, logger.Discard())

	_, err := c.Submit(context.Background(), "   ")
	assert.True(t, failure.IsValidation(err))
	assert.Zero(t, stub.calls.Load())
	assert.Equal(t, Idle, c.Snapshot().State)
}

func TestPageIsClampedToTotalPages(t *testing.T) {
	stub := &stubSearcher{total: 20}
	c := NewController(stub, 8, logger.Discard())
	ctx := context.Background()

	_, err := c.Submit(ctx, "matrix")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Snapshot().TotalPages)

	res, err := c.GoToPage(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Query.Page)
	assert.Equal(t, 3, stub.lastQuery().Page, "out-of-range page is never sent")
	assert.EqualValues(t, 2, stub.calls.Load())

	// Already on the last page: nothing to fetch.
	res, err = c.NextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Query.Page)
	assert.EqualValues(t, 2, stub.calls.Load())

	res, err = c.GoToPage(ctx, -7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Query.Page)
}

func TestPagesAreReusedWhilePaging(t *testing.T) {
	stub := &stubSearcher{total: 30}
	c := NewController(stub, 8, logger.Discard())
	ctx := context.Background()

	_, err := c.Submit(ctx, "heat")
	require.NoError(t, err)
	_, err = c.NextPage(ctx)
	require.NoError(t, err)
	_, err = c.PrevPage(ctx)
	require.NoError(t, err)
	_, err = c.NextPage(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 2, stub.calls.Load())
	assert.Equal(t, 2, c.Snapshot().Query.Page)

	// An explicit submit always goes to the service.
	_, err = c.Submit(ctx, "heat")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stub.calls.Load())
}

func TestFilterChangeResetsToFirstPage(t *testing.T) {
	stub := &stubSearcher{total: 40}
	c := NewController(stub, 8, logger.Discard())
	ctx := context.Background()

	_, err := c.Submit(ctx, "noir")
	require.NoError(t, err)
	_, err = c.GoToPage(ctx, 3)
	require.NoError(t, err)

	res, err := c.SetGenre(ctx, "crime")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Query.Page)
	assert.Equal(t, "crime", stub.lastQuery().Filters.Genre)
	assert.Equal(t, "noir", stub.lastQuery().Term)

	_, err = c.SetYear(ctx, 1950)
	require.NoError(t, err)
	want := models.FilterSet{Genre: "crime", Year: 1950}
	assert.Equal(t, want, stub.lastQuery().Filters)
}

func TestFiltersBeforeFirstSubmitAreOnlyStored(t *testing.T) {
	stub := &stubSearcher{total: 4}
	c := NewController(stub, 8, logger.Discard())
	ctx := context.Background()

	_, err := c.SetSort(ctx, models.SortRating)
	require.NoError(t, err)
	_, err = c.GoToPage(ctx, 2)
	assert.ErrorIs(t, err, ErrNotSearched)

	snap := c.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.False(t, snap.HasSearched)
	assert.Equal(t, models.SortRating, snap.Filters.Sort)
	assert.Zero(t, stub.calls.Load())

	_, err = c.Submit(ctx, "jaws")
	require.NoError(t, err)
	assert.Equal(t, models.SortRating, stub.lastQuery().Filters.Sort)
}

func TestSubmitFilteredIssuesOneRequest(t *testing.T) {
	s := &stubSearcher{total: 30}
	c := NewController(s, 8, logger.Discard())

	_, err := c.Submit(context.Background(), "noir")
	require.NoError(t, err)
	_, err = c.GoToPage(context.Background(), 3)
	require.NoError(t, err)

	filters := models.FilterSet{Genre: "crime", Sort: models.SortNewest}
	res, err := c.SubmitFiltered(context.Background(), "noir", filters)
	require.NoError(t, err)

	assert.Equal(t, int32(3), s.calls.Load())
	assert.Equal(t, 1, res.Query.Page)
	assert.Equal(t, filters, s.lastQuery().Filters)
	assert.Equal(t, filters, c.Snapshot().Filters)

	_, err = c.SubmitFiltered(context.Background(), "noir", models.FilterSet{Year: 3000})
	assert.True(t, failure.IsValidation(err))
	assert.Equal(t, int32(3), s.calls.Load())
	assert.Equal(t, filters, c.Snapshot().Filters)
}

func TestInvalidFiltersAreRejected(t *testing.T) {
	stub := &stubSearcher{total: 4}
	c := NewController(stub, 8, logger.Discard())

	_, err := c.SetSort(context.Background(), models.SortMode("loudest"))
	assert.True(t, failure.IsValidation(err))
	_, err = c.SetYear(context.Background(), 1700)
	assert.True(t, failure.IsValidation(err))
	assert.Equal(t, models.FilterSet{}, c.Snapshot().Filters)
}

func TestFailureThenResubmit(t *testing.T) {
	stub := &stubSearcher{err: failure.Server("search", "index unavailable")}
	c := NewController(stub, 8, logger.Discard())
	ctx := context.Background()

	_, err := c.Submit(ctx, "ran")
	require.Error(t, err)

	snap := c.Snapshot()
	assert.Equal(t, Failed, snap.State)
	require.NotNil(t, snap.Failure)
	assert.Equal(t, failure.KindServer, snap.Failure.Kind)
	assert.Equal(t, "index unavailable", snap.Failure.Message)

	stub.err = nil
	stub.total = 2
	_, err = c.Submit(ctx, "ran")
	require.NoError(t, err)
	assert.Equal(t, Settled, c.Snapshot().State)
}

func TestSubscribersAreNotified(t *testing.T) {
	stub := &stubSearcher{total: 1}
	c := NewController(stub, 8, logger.Discard())
	ch, cancel := c.Subscribe()
	defer cancel()

	_, err := c.Submit(context.Background(), "up")
	require.NoError(t, err)

	select {
	case <-ch:
	default:
		t.Fatal("no change notification")
	}
}

func TestPageWindow(t *testing.T) {
	tests := []struct {
		current, total int
		want           []int
	}{
		{1, 1, nil},
		{1, 3, []int{1, 2, 3}},
		{1, 10, []int{1, 2, 0, 10}},
		{3, 10, []int{1, 2, 3, 4, 0, 10}},
		{5, 10, []int{1, 0, 4, 5, 6, 0, 10}},
		{10, 10, []int{1, 0, 9, 10}},
		{42, 4, []int{1, 0, 3, 4}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PageWindow(tt.current, tt.total), "current=%d total=%d", tt.current, tt.total)
	}
}
