package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Status string

const (
	StatusPlanned   Status = "planned"
	StatusWatching  Status = "watching"
	StatusCompleted Status = "completed"
)

// Statuses lists every known status in display order.
var Statuses = []Status{StatusPlanned, StatusWatching, StatusCompleted}

func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusWatching, StatusCompleted:
		return true
	}
	return false
}

type VideoType string

const (
	TypeSeries    VideoType = "series"
	TypeMovie     VideoType = "movie"
	TypeAnimation VideoType = "animation"
)

// VideoTypes lists every known type in display order.
var VideoTypes = []VideoType{TypeSeries, TypeMovie, TypeAnimation}

func (t VideoType) Valid() bool {
	switch t {
	case TypeSeries, TypeMovie, TypeAnimation:
		return true
	}
	return false
}

var typeAliases = map[string]VideoType{
	"series":    TypeSeries,
	"tv":        TypeSeries,
	"show":      TypeSeries,
	"movie":     TypeMovie,
	"film":      TypeMovie,
	"animation": TypeAnimation,
	"anime":     TypeAnimation,
}

// ParseVideoType accepts the canonical names plus a few common aliases.
func ParseVideoType(s string) (VideoType, error) {
	if t, ok := typeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown video type %q", s)
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

const (
	MinRating = 0.0
	MaxRating = 10.0
	MinYear   = 1888
	MaxYear   = 2100
)

// ID is the server-assigned record identity. The service may send it as a
// JSON number or a string; both decode to the same ID.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Video is a catalog record as held by the remote service.
type Video struct {
	ID             ID        `json:"id"`
	Title          string    `json:"title"`
	Type           VideoType `json:"type"`
	Genre          string    `json:"genre,omitempty"`
	Year           *int      `json:"year,omitempty"`
	Director       string    `json:"director,omitempty"`
	Actors         string    `json:"actors,omitempty"`
	Rating         float64   `json:"rating"`
	Description    string    `json:"description,omitempty"`
	PosterURL      string    `json:"poster_url,omitempty"`
	VideoURL       string    `json:"video_url,omitempty"`
	Episodes       int       `json:"episodes"`
	CurrentEpisode int       `json:"current_episode"`
	Status         Status    `json:"status"`
	CreatedAt      string    `json:"created_at,omitempty"`
	UpdatedAt      string    `json:"updated_at,omitempty"`
}

// Clone returns a deep copy; the copy shares no memory with v.
func (v Video) Clone() Video {
	if v.Year != nil {
		y := *v.Year
		v.Year = &y
	}
	return v
}

// Validate checks the record-level invariants.
func (v Video) Validate() error {
	var errs []error
	if strings.TrimSpace(v.Title) == "" {
		errs = append(errs, &FieldError{Field: "title", Reason: "is required"})
	}
	if !v.Type.Valid() {
		errs = append(errs, &FieldError{Field: "type", Reason: fmt.Sprintf("must be one of series, movie, animation (got %q)", v.Type)})
	}
	if !v.Status.Valid() {
		errs = append(errs, &FieldError{Field: "status", Reason: fmt.Sprintf("must be one of planned, watching, completed (got %q)", v.Status)})
	}
	if v.Rating < MinRating || v.Rating > MaxRating {
		errs = append(errs, &FieldError{Field: "rating", Reason: "must be between 0 and 10"})
	}
	if v.Year != nil && (*v.Year < MinYear || *v.Year > MaxYear) {
		errs = append(errs, &FieldError{Field: "year", Reason: fmt.Sprintf("must be between %d and %d", MinYear, MaxYear)})
	}
	if v.Episodes < 1 {
		errs = append(errs, &FieldError{Field: "episodes", Reason: "must be at least 1"})
	}
	if err := CheckEpisode(v.CurrentEpisode, v.Episodes); err != nil && v.Episodes >= 1 {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Apply returns a copy of v with every supplied field of f written over it.
func (v Video) Apply(f VideoFields) Video {
	out := v.Clone()
	if f.Title != nil {
		out.Title = *f.Title
	}
	if f.Type != nil {
		out.Type = *f.Type
	}
	if f.Genre != nil {
		out.Genre = *f.Genre
	}
	if f.Year != nil {
		y := *f.Year
		out.Year = &y
	}
	if f.Director != nil {
		out.Director = *f.Director
	}
	if f.Actors != nil {
		out.Actors = *f.Actors
	}
	if f.Rating != nil {
		out.Rating = *f.Rating
	}
	if f.Description != nil {
		out.Description = *f.Description
	}
	if f.PosterURL != nil {
		out.PosterURL = *f.PosterURL
	}
	if f.VideoURL != nil {
		out.VideoURL = *f.VideoURL
	}
	if f.Episodes != nil {
		out.Episodes = *f.Episodes
	}
	if f.CurrentEpisode != nil {
		out.CurrentEpisode = *f.CurrentEpisode
	}
	if f.Status != nil {
		out.Status = *f.Status
	}
	return out
}

// CheckEpisode reports whether episode lies in [1, episodes].
func CheckEpisode(episode, episodes int) error {
	if episode < 1 || episode > episodes {
		return &FieldError{Field: "current_episode", Reason: fmt.Sprintf("must be between 1 and %d (got %d)", episodes, episode)}
	}
	return nil
}

// VideoFields is a partial record used by create and update. A nil field
// was not supplied.
type VideoFields struct {
	Title          *string    `json:"title,omitempty"`
	Type           *VideoType `json:"type,omitempty"`
	Genre          *string    `json:"genre,omitempty"`
	Year           *int       `json:"year,omitempty"`
	Director       *string    `json:"director,omitempty"`
	Actors         *string    `json:"actors,omitempty"`
	Rating         *float64   `json:"rating,omitempty"`
	Description    *string    `json:"description,omitempty"`
	PosterURL      *string    `json:"poster_url,omitempty"`
	VideoURL       *string    `json:"video_url,omitempty"`
	Episodes       *int       `json:"episodes,omitempty"`
	CurrentEpisode *int       `json:"current_episode,omitempty"`
	Status         *Status    `json:"status,omitempty"`
}

func (f VideoFields) IsEmpty() bool {
	return f == VideoFields{}
}

// Validate checks the bounds of every supplied field.
func (f VideoFields) Validate() error {
	var errs []error
	if f.Title != nil && strings.TrimSpace(*f.Title) == "" {
		errs = append(errs, &FieldError{Field: "title", Reason: "cannot be empty"})
	}
	if f.Type != nil && !f.Type.Valid() {
		errs = append(errs, &FieldError{Field: "type", Reason: fmt.Sprintf("must be one of series, movie, animation (got %q)", *f.Type)})
	}
	if f.Status != nil && !f.Status.Valid() {
		errs = append(errs, &FieldError{Field: "status", Reason: fmt.Sprintf("must be one of planned, watching, completed (got %q)", *f.Status)})
	}
	if f.Rating != nil && (*f.Rating < MinRating || *f.Rating > MaxRating) {
		errs = append(errs, &FieldError{Field: "rating", Reason: "must be between 0 and 10"})
	}
	if f.Year != nil && (*f.Year < MinYear || *f.Year > MaxYear) {
		errs = append(errs, &FieldError{Field: "year", Reason: fmt.Sprintf("must be between %d and %d", MinYear, MaxYear)})
	}
	if f.Episodes != nil && *f.Episodes < 1 {
		errs = append(errs, &FieldError{Field: "episodes", Reason: "must be at least 1"})
	}
	if f.CurrentEpisode != nil && *f.CurrentEpisode < 1 {
		errs = append(errs, &FieldError{Field: "current_episode", Reason: "must be at least 1"})
	}
	if f.Episodes != nil && f.CurrentEpisode != nil && *f.Episodes >= 1 && *f.CurrentEpisode > *f.Episodes {
		errs = append(errs, CheckEpisode(*f.CurrentEpisode, *f.Episodes))
	}
	return errors.Join(errs...)
}

// ValidateCreate additionally requires the fields a new record cannot lack.
func (f VideoFields) ValidateCreate() error {
	var errs []error
	if f.Title == nil || strings.TrimSpace(*f.Title) == "" {
		errs = append(errs, &FieldError{Field: "title", Reason: "is required"})
	}
	if f.Type == nil {
		errs = append(errs, &FieldError{Field: "type", Reason: "is required"})
	}
	if err := f.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// WithCreateDefaults fills episodes, current episode and status when absent.
func (f VideoFields) WithCreateDefaults() VideoFields {
	if f.Episodes == nil {
		f.Episodes = Ptr(1)
	}
	if f.CurrentEpisode == nil {
		f.CurrentEpisode = Ptr(1)
	}
	if f.Status == nil {
		f.Status = Ptr(StatusPlanned)
	}
	return f
}

// FieldError describes one rejected field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Reason
}

func Ptr[T any](v T) *T {
	return &v
}
