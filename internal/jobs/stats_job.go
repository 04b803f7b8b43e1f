package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"velvetcode/internal/metrics"
	"velvetcode/internal/session"
)

// StatsSource is the part of the room registry the job reads.
type StatsSource interface {
	Stats() session.HubStats
	MemberCounts() map[string]int
}

// StatsPublisher receives the periodic snapshot. The Redis room manager
// implements it.
type StatsPublisher interface {
	PublishStats(ctx context.Context, rooms, members int) error
	TouchRoom(ctx context.Context, roomID string, members int) error
}

// StatsJob refreshes room gauges on a cron schedule and forwards the counts
// to the activity feed when one is configured.
type StatsJob struct {
	source    StatsSource
	publisher StatsPublisher
	schedule  string
	log       *zap.Logger
	cron      *cron.Cron
}

func NewStatsJob(source StatsSource, publisher StatsPublisher, schedule string, log *zap.Logger) *StatsJob {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatsJob{
		source:    source,
		publisher: publisher,
		schedule:  schedule,
		log:       log,
		cron:      cron.New(),
	}
}

// Start schedules the job. An empty schedule disables it.
func (j *StatsJob) Start() error {
	if j.schedule == "" {
		j.log.Info("stats job disabled")
		return nil
	}
	_, err := j.cron.AddFunc(j.schedule, func() {
		if err := j.RunOnce(context.Background()); err != nil {
			j.log.Warn("stats job failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule stats job: %w", err)
	}
	j.cron.Start()
	j.log.Info("stats job started", zap.String("schedule", j.schedule))
	return nil
}

// Stop halts scheduling and waits for a running tick to finish.
func (j *StatsJob) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

func (j *StatsJob) RunOnce(ctx context.Context) error {
	stats := j.source.Stats()
	metrics.SetRoomsActive(stats.Rooms)
	j.log.Info("room stats", zap.Int("rooms", stats.Rooms), zap.Int("members", stats.Members))

	if j.publisher == nil {
		return nil
	}
	for roomID, members := range j.source.MemberCounts() {
		if err := j.publisher.TouchRoom(ctx, roomID, members); err != nil {
			return err
		}
	}
	return j.publisher.PublishStats(ctx, stats.Rooms, stats.Members)
}
