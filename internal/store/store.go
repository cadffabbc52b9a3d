package store

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"vidcat/internal/failure"
	"vidcat/internal/models"
	"vidcat/internal/notify"

	"github.com/sirupsen/logrus"
)

// Client is the part of the catalog service the store writes through.
type Client interface {
	List(ctx context.Context) ([]models.Video, error)
	Get(ctx context.Context, id models.ID) (models.Video, error)
	Create(ctx context.Context, fields models.VideoFields) (models.Video, error)
	Update(ctx context.Context, id models.ID, fields models.VideoFields) (models.Video, error)
	Delete(ctx context.Context, id models.ID) error
	AdvanceEpisode(ctx context.Context, id models.ID, episode int) (models.Video, error)
}

// ListFilter narrows Records locally. Empty fields match everything.
type ListFilter struct {
	Type   models.VideoType
	Status models.Status
	Term   string
}

// Store is the in-memory copy of the catalog used by listing, editing and
// the dashboard. Mutations are applied locally first, then confirmed with
// the service's copy or rolled back to the exact prior value.
//
// Refresh replaces the set wholesale, except for ids with a mutation in
// flight and ids whose mutation was confirmed after the refresh was issued;
// those keep their local value, present or absent.
type Store struct {
	client Client
	logger *logrus.Logger
	locks  *keyedMutex

	mu         sync.RWMutex
	records    []models.Video
	loaded     bool
	pending    map[models.ID]int
	touched    map[models.ID]uint64
	deferred   map[models.ID]deferredRecord
	seq        uint64
	refreshGen uint64
	appliedGen uint64

	changes notify.Broadcaster
}

func New(client Client, logger *logrus.Logger) *Store {
	return &Store{
		client:   client,
		logger:   logger,
		locks:    newKeyedMutex(),
		pending:  make(map[models.ID]int),
		touched:  make(map[models.ID]uint64),
		deferred: make(map[models.ID]deferredRecord),
	}
}

// deferredRecord is the service's copy of a pending id that a refresh found
// while the id was absent locally. A failed mutation puts it back.
type deferredRecord struct {
	video models.Video
	at    int
}

// Refresh reloads every record from the service. A refresh that completes
// after a newer one has been applied is dropped.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.refreshGen++
	gen := s.refreshGen
	since := s.seq
	s.mu.Unlock()

	fetched, err := s.client.List(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to refresh catalog")
		return failure.As("refresh", err)
	}

	s.mu.Lock()
	if gen <= s.appliedGen {
		applied := s.appliedGen
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{
			"generation": gen,
			"applied":    applied,
		}).Debug("Discarding out-of-date refresh")
		return nil
	}
	s.appliedGen = gen
	s.records = s.mergeLocked(fetched, since)
	s.loaded = true
	for id, at := range s.touched {
		if at <= since {
			delete(s.touched, id)
		}
	}
	count := len(s.records)
	s.mu.Unlock()

	s.changes.Notify()
	s.logger.WithField("count", count).Info("Catalog refreshed")
	return nil
}

// Create validates locally and appends the service's copy on success.
// Nothing is added on failure. See CatalogClient.Create about retrying.
func (s *Store) Create(ctx context.Context, fields models.VideoFields) (models.Video, error) {
	fields = fields.WithCreateDefaults()
	if err := fields.ValidateCreate(); err != nil {
		return models.Video{}, failure.Validation("create", err)
	}

	created, err := s.client.Create(ctx, fields)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to create video")
		return models.Video{}, failure.As("create", err)
	}

	s.mu.Lock()
	s.upsertLocked(created)
	s.seq++
	s.touched[created.ID] = s.seq
	s.mu.Unlock()

	s.changes.Notify()
	return created.Clone(), nil
}

// Update applies fields to the local record, sends them and replaces the
// record with the service's response. On failure the record is restored.
func (s *Store) Update(ctx context.Context, id models.ID, fields models.VideoFields) (models.Video, error) {
	if id == "" {
		return models.Video{}, failure.Validation("update", errors.New("id is required"))
	}
	if fields.IsEmpty() {
		return models.Video{}, failure.Validation("update", errors.New("no fields to update"))
	}
	if err := fields.Validate(); err != nil {
		return models.Video{}, failure.Validation("update", err)
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return models.Video{}, failure.Transport("update", err)
	}
	defer unlock()

	s.mu.Lock()
	prior, known := s.lookupLocked(id)
	if known {
		patched := prior.Apply(fields)
		if (fields.Episodes != nil || fields.CurrentEpisode != nil) && patched.Episodes >= 1 {
			if err := models.CheckEpisode(patched.CurrentEpisode, patched.Episodes); err != nil {
				s.mu.Unlock()
				return models.Video{}, failure.Validation("update", err)
			}
		}
		s.replaceLocked(patched)
	}
	s.pending[id]++
	s.mu.Unlock()
	s.changes.Notify()

	updated, err := s.client.Update(ctx, id, fields)
	if err != nil {
		s.rollback(id, prior, known, -1)
		s.logger.WithError(err).WithField("id", id).Warn("Update rolled back")
		return models.Video{}, failure.As("update", err)
	}

	s.confirm(id, updated)
	s.logger.WithField("id", id).Info("Video updated")
	return updated.Clone(), nil
}

// Delete removes the record locally, then on the service. On failure the
// record goes back to its previous position.
func (s *Store) Delete(ctx context.Context, id models.ID) error {
	if id == "" {
		return failure.Validation("delete", errors.New("id is required"))
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return failure.Transport("delete", err)
	}
	defer unlock()

	s.mu.Lock()
	idx := s.indexLocked(id)
	var prior models.Video
	if idx >= 0 {
		prior = s.records[idx]
		s.records = slices.Delete(s.records, idx, idx+1)
	}
	s.pending[id]++
	s.mu.Unlock()
	s.changes.Notify()

	if err := s.client.Delete(ctx, id); err != nil {
		s.rollback(id, prior, idx >= 0, idx)
		s.logger.WithError(err).WithField("id", id).Warn("Delete rolled back")
		return failure.As("delete", err)
	}

	s.mu.Lock()
	s.settleLocked(id, true)
	s.mu.Unlock()
	s.changes.Notify()

	s.logger.WithField("id", id).Info("Video deleted")
	return nil
}

// AdvanceEpisode sets the current episode. Episodes below 1 are rejected
// before anything else. The upper bound is checked against the local episode
// count without contacting the service; a record that is not loaded yet is
// fetched first.
func (s *Store) AdvanceEpisode(ctx context.Context, id models.ID, episode int) (models.Video, error) {
	if id == "" {
		return models.Video{}, failure.Validation("advance_episode", errors.New("id is required"))
	}
	if err := (models.VideoFields{CurrentEpisode: &episode}).Validate(); err != nil {
		return models.Video{}, failure.Validation("advance_episode", err)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return models.Video{}, err
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return models.Video{}, failure.Transport("advance_episode", err)
	}
	defer unlock()

	s.mu.Lock()
	prior, ok := s.lookupLocked(id)
	if !ok {
		s.mu.Unlock()
		return models.Video{}, failure.NotFound("advance_episode", "")
	}
	if err := models.CheckEpisode(episode, prior.Episodes); err != nil {
		s.mu.Unlock()
		return models.Video{}, failure.Validation("advance_episode", err)
	}
	s.replaceLocked(prior.Apply(models.VideoFields{CurrentEpisode: &episode}))
	s.pending[id]++
	s.mu.Unlock()
	s.changes.Notify()

	updated, err := s.client.AdvanceEpisode(ctx, id, episode)
	if err != nil {
		s.rollback(id, prior, true, -1)
		s.logger.WithError(err).WithFields(logrus.Fields{
			"id":      id,
			"episode": episode,
		}).Warn("Episode progress rolled back")
		return models.Video{}, failure.As("advance_episode", err)
	}

	s.confirm(id, updated)
	s.logger.WithFields(logrus.Fields{
		"id":      id,
		"episode": updated.CurrentEpisode,
	}).Info("Episode progress saved")
	return updated.Clone(), nil
}

// Get returns the local record, loading and keeping it when it is not held
// yet.
func (s *Store) Get(ctx context.Context, id models.ID) (models.Video, error) {
	if v, ok := s.Lookup(id); ok {
		return v, nil
	}

	v, err := s.client.Get(ctx, id)
	if err != nil {
		return models.Video{}, failure.As("get", err)
	}

	s.mu.Lock()
	if local, ok := s.lookupLocked(id); ok {
		s.mu.Unlock()
		return local.Clone(), nil
	}
	if s.pending[id] > 0 {
		// A mutation owns this id now; its outcome decides what we hold.
		s.mu.Unlock()
		return v.Clone(), nil
	}
	s.records = append(s.records, v)
	s.mu.Unlock()

	s.changes.Notify()
	return v.Clone(), nil
}

// Lookup never touches the network.
func (s *Store) Lookup(id models.ID) (models.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.lookupLocked(id)
	if !ok {
		return models.Video{}, false
	}
	return v.Clone(), true
}

// Records returns a copy of every record in catalog order.
func (s *Store) Records() []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Video, len(s.records))
	for i, v := range s.records {
		out[i] = v.Clone()
	}
	return out
}

// Filter returns the records matching every non-empty field of f. Term is
// matched case-insensitively against title, director and actors.
func (s *Store) Filter(f ListFilter) []models.Video {
	term := strings.ToLower(strings.TrimSpace(f.Term))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Video
	for _, v := range s.records {
		if f.Type != "" && v.Type != f.Type {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if term != "" && !matchesTerm(v, term) {
			continue
		}
		out = append(out, v.Clone())
	}
	return out
}

// Recent returns up to n records, newest first by creation time. Ties go to
// the record added last; records without a creation time come at the end.
func (s *Store) Recent(n int) []models.Video {
	if n <= 0 {
		return nil
	}

	all := s.Records()
	slices.Reverse(all)
	slices.SortStableFunc(all, func(a, b models.Video) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Loaded reports whether a refresh has succeeded at least once.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Store) Subscribe() (<-chan struct{}, func()) {
	return s.changes.Subscribe()
}

func (s *Store) confirm(id models.ID, v models.Video) {
	s.mu.Lock()
	s.upsertLocked(v)
	s.settleLocked(id, true)
	s.mu.Unlock()
	s.changes.Notify()
}

// rollback restores prior for id. at is the position a removed record
// returns to; -1 keeps the record where it currently is. A record that was
// absent before stays absent unless a refresh saw it on the service while
// the mutation was pending.
func (s *Store) rollback(id models.ID, prior models.Video, existed bool, at int) {
	s.mu.Lock()
	if existed {
		if idx := s.indexLocked(id); idx >= 0 {
			s.records[idx] = prior
		} else {
			at = min(max(at, 0), len(s.records))
			s.records = slices.Insert(s.records, at, prior)
		}
	} else if d, ok := s.deferred[id]; ok && s.indexLocked(id) < 0 {
		at = min(max(d.at, 0), len(s.records))
		s.records = slices.Insert(s.records, at, d.video)
	}
	s.settleLocked(id, false)
	s.mu.Unlock()
	s.changes.Notify()
}

func (s *Store) settleLocked(id models.ID, confirmed bool) {
	if s.pending[id] <= 1 {
		delete(s.pending, id)
		delete(s.deferred, id)
	} else {
		s.pending[id]--
	}
	if confirmed {
		s.seq++
		s.touched[id] = s.seq
	}
}

func (s *Store) mergeLocked(fetched []models.Video, since uint64) []models.Video {
	keepLocal := func(id models.ID) bool {
		return s.pending[id] > 0 || s.touched[id] > since
	}

	local := make(map[models.ID]models.Video, len(s.records))
	for _, v := range s.records {
		local[v.ID] = v
	}

	out := make([]models.Video, 0, len(fetched))
	seen := make(map[models.ID]bool, len(fetched))
	for _, v := range fetched {
		if seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		if keepLocal(v.ID) {
			if lv, ok := local[v.ID]; ok {
				out = append(out, lv)
			} else if s.pending[v.ID] > 0 {
				s.deferred[v.ID] = deferredRecord{video: v, at: len(out)}
			}
			continue
		}
		out = append(out, v)
	}
	for _, v := range s.records {
		if !seen[v.ID] && keepLocal(v.ID) {
			out = append(out, v)
		}
	}
	return out
}

func (s *Store) indexLocked(id models.ID) int {
	return slices.IndexFunc(s.records, func(v models.Video) bool { return v.ID == id })
}

func (s *Store) lookupLocked(id models.ID) (models.Video, bool) {
	idx := s.indexLocked(id)
	if idx < 0 {
		return models.Video{}, false
	}
	return s.records[idx], true
}

func (s *Store) replaceLocked(v models.Video) {
	if idx := s.indexLocked(v.ID); idx >= 0 {
		s.records[idx] = v
	}
}

func (s *Store) upsertLocked(v models.Video) {
	if idx := s.indexLocked(v.ID); idx >= 0 {
		s.records[idx] = v
		return
	}
	s.records = append(s.records, v)
}

func matchesTerm(v models.Video, term string) bool {
	return strings.Contains(strings.ToLower(v.Title), term) ||
		strings.Contains(strings.ToLower(v.Director), term) ||
		strings.Contains(strings.ToLower(v.Actors), term)
}
