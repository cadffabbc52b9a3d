package stats

import (
	"context"
	"vidcat/internal/models"

	"github.com/sirupsen/logrus"
)

// Source is the remote summary read.
type Source interface {
	Stats(ctx context.Context) (models.StatsSnapshot, error)
}

// Records is where recomputation reads from.
type Records interface {
	Records() []models.Video
}

// Aggregator produces dashboard counters. It asks the service first and
// recomputes from the local catalog when that is disabled or fails.
type Aggregator struct {
	source  Source
	records Records
	remote  bool
	logger  *logrus.Logger
}

func NewAggregator(source Source, records Records, remote bool, logger *logrus.Logger) *Aggregator {
	return &Aggregator{
		source:  source,
		records: records,
		remote:  remote && source != nil,
		logger:  logger,
	}
}

// Snapshot never fails: the local fallback is always available.
func (a *Aggregator) Snapshot(ctx context.Context) models.StatsSnapshot {
	if a.remote {
		snap, err := a.source.Stats(ctx)
		if err == nil {
			return normalize(snap)
		}
		a.logger.WithError(err).Warn("Remote stats unavailable, recomputing locally")
	}
	return Compute(a.records.Records())
}

// Compute tallies videos into a snapshot that has a bucket for every known
// status and type, empty ones included. Unknown values are counted in the
// total only.
func Compute(videos []models.Video) models.StatsSnapshot {
	snap := models.NewStatsSnapshot(models.StatsRecomputed)
	snap.Total = len(videos)
	for _, v := range videos {
		if v.Status.Valid() {
			snap.ByStatus[v.Status]++
		}
		if v.Type.Valid() {
			snap.ByType[v.Type]++
		}
	}
	return snap
}

func normalize(in models.StatsSnapshot) models.StatsSnapshot {
	source := in.Source
	if source == "" {
		source = models.StatsRemote
	}
	out := models.NewStatsSnapshot(source)
	out.Total = in.Total
	for st, n := range in.ByStatus {
		out.ByStatus[st] = n
	}
	for t, n := range in.ByType {
		out.ByType[t] = n
	}
	return out
}
