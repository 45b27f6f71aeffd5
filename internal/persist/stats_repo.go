package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// FrameStatRow is one sampled frame.
type FrameStatRow struct {
	RunID        string
	Frame        uint64
	FrameTime    time.Duration
	Draws        uint64
	RenderPasses uint64
	Entities     int
	Pipelines    int
	PipelineHits uint64
	PipelineMiss uint64
}

type StatsRepo struct {
	db *DB
}

func NewStatsRepo(db *DB) *StatsRepo {
	return &StatsRepo{db: db}
}

// Record inserts a batch of samples in one round trip.
func (r *StatsRepo) Record(ctx context.Context, rows []FrameStatRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range rows {
		batch.Queue(
			`INSERT INTO frame_stats (run_id, frame, frame_time_us, draws, render_passes, entities, pipelines, pipeline_hits, pipeline_miss)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			s.RunID, int64(s.Frame), s.FrameTime.Microseconds(), int32(s.Draws), int32(s.RenderPasses),
			int32(s.Entities), int32(s.Pipelines), int64(s.PipelineHits), int64(s.PipelineMiss),
		)
	}
	if err := r.db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("frame stats insert: %w", err)
	}
	return nil
}
