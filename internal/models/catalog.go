package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"
)

// APIResponse is the envelope every catalog endpoint wraps its payload in.
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type SortMode string

const (
	SortRelevance SortMode = "relevance"
	SortNewest    SortMode = "newest"
	SortRating    SortMode = "rating"
)

func (m SortMode) Valid() bool {
	switch m {
	case SortRelevance, SortNewest, SortRating:
		return true
	}
	return false
}

func ParseSortMode(s string) (SortMode, error) {
	m := SortMode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return SortRelevance, nil
	}
	if !m.Valid() {
		return "", fmt.Errorf("unknown sort mode %q", s)
	}
	return m, nil
}

// FilterSet narrows a search. Zero values mean "any".
type FilterSet struct {
	Genre string
	Year  int
	Sort  SortMode
}

// SearchQuery is comparable: two queries are equal iff every field matches.
type SearchQuery struct {
	Term     string
	Filters  FilterSet
	Page     int
	PageSize int
}

func (q SearchQuery) Validate() error {
	if strings.TrimSpace(q.Term) == "" {
		return &FieldError{Field: "q", Reason: "search term cannot be empty"}
	}
	if q.Page < 1 {
		return &FieldError{Field: "page", Reason: "must be at least 1"}
	}
	if q.PageSize < 1 {
		return &FieldError{Field: "page_size", Reason: "must be at least 1"}
	}
	if q.Filters.Sort != "" && !q.Filters.Sort.Valid() {
		return &FieldError{Field: "sort", Reason: fmt.Sprintf("unknown sort mode %q", q.Filters.Sort)}
	}
	return nil
}

type searchParams struct {
	Q        string `url:"q"`
	Page     int    `url:"page"`
	PageSize int    `url:"page_size"`
	Genre    string `url:"genre,omitempty"`
	Year     int    `url:"year,omitempty"`
	Sort     string `url:"sort"`
}

// Values renders the query string for GET /api/search.
func (q SearchQuery) Values() url.Values {
	sort := q.Filters.Sort
	if sort == "" {
		sort = SortRelevance
	}
	// query.Values only fails on non-struct input.
	params, _ := query.Values(searchParams{
		Q:        q.Term,
		Page:     q.Page,
		PageSize: q.PageSize,
		Genre:    q.Filters.Genre,
		Year:     q.Filters.Year,
		Sort:     string(sort),
	})
	return params
}

// SearchHit is one search row. It is not a Video: the search backend adds
// fields stored records do not have.
type SearchHit struct {
	ID          ID      `json:"id"`
	Title       string  `json:"title"`
	Genre       string  `json:"genre,omitempty"`
	GenreName   string  `json:"genre_name,omitempty"`
	Year        int     `json:"year,omitempty"`
	Rating      float64 `json:"rating"`
	Views       int64   `json:"views,omitempty"`
	Duration    string  `json:"duration,omitempty"`
	Description string  `json:"description,omitempty"`
	Director    string  `json:"director,omitempty"`
	Actors      string  `json:"actors,omitempty"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	PlayURL     string  `json:"play_url,omitempty"`
}

// SearchPayload is the data member of a search response.
type SearchPayload struct {
	Videos []SearchHit `json:"videos"`
	Total  int         `json:"total"`
}

type SearchResult struct {
	Hits  []SearchHit
	Total int
	Query SearchQuery
}

func (r SearchResult) TotalPages() int {
	return TotalPages(r.Total, r.Query.PageSize)
}

// TotalPages is ceil(total / pageSize), zero when there is nothing to page.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// PlayInfo holds the playback links for a search hit.
type PlayInfo struct {
	PlayURL    string   `json:"play_url"`
	BackupURLs []string `json:"backup_urls,omitempty"`
}

type StatsSource string

const (
	StatsRemote     StatsSource = "remote"
	StatsRecomputed StatsSource = "recomputed"
)

// StatsSnapshot always carries a bucket for every known status and type.
type StatsSnapshot struct {
	Total    int
	ByStatus map[Status]int
	ByType   map[VideoType]int
	Source   StatsSource
}

func NewStatsSnapshot(source StatsSource) StatsSnapshot {
	s := StatsSnapshot{
		ByStatus: make(map[Status]int, len(Statuses)),
		ByType:   make(map[VideoType]int, len(VideoTypes)),
		Source:   source,
	}
	for _, st := range Statuses {
		s.ByStatus[st] = 0
	}
	for _, t := range VideoTypes {
		s.ByType[t] = 0
	}
	return s
}

// StatsPayload is the data member of GET /api/stats.
type StatsPayload struct {
	Total     int            `json:"total"`
	Watching  int            `json:"watching"`
	Completed int            `json:"completed"`
	Planned   int            `json:"planned"`
	ByType    map[string]int `json:"by_type"`
}

func (p StatsPayload) Snapshot() StatsSnapshot {
	s := NewStatsSnapshot(StatsRemote)
	s.Total = p.Total
	s.ByStatus[StatusWatching] = p.Watching
	s.ByStatus[StatusCompleted] = p.Completed
	s.ByStatus[StatusPlanned] = p.Planned
	for k, n := range p.ByType {
		t, err := ParseVideoType(k)
		if err != nil {
			continue
		}
		s.ByType[t] += n
	}
	return s
}

// ProgressRequest is the body of PUT /api/videos/{id}/progress.
type ProgressRequest struct {
	CurrentEpisode int `json:"current_episode"`
}
