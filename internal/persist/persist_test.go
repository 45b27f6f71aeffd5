package persist

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/config"
)

// testDSNEnv names a scratch PostgreSQL database. The tests skip without it.
const testDSNEnv = "ECSRENDER_TEST_DSN"

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}
	ctx := context.Background()
	db, err := NewDB(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 2, ConnMaxLifetime: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, RunMigrations(ctx, db.Pool))
	return db
}

func TestNewDBRejectsEmptyDSN(t *testing.T) {
	_, err := NewDB(context.Background(), config.DatabaseConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db.Pool))
	v, err := SchemaVersion(ctx, db.Pool)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestSceneRepoRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSceneRepo(db)
	name := fmt.Sprintf("test-%d", time.Now().UnixNano())

	in := &SceneRow{
		Name:      name,
		Level:     "simple",
		Frame:     600,
		CameraPos: [3]float32{-35, 0, 0},
		CameraDir: [3]float32{1, 0, 0},
		Entities: []EntityRow{
			{Entity: 3, Kind: KindPointLight, Position: [3]float32{-20, 20, 0}, Rotation: [4]float32{0, 0, 0, 1}, Color: [3]float32{1, 1, 1}, Intensity: 3},
			{Entity: 1, Kind: KindMesh, Mesh: "cube", Material: "brick", Position: [3]float32{1, 2, 3}, Rotation: [4]float32{0, 0, 0, 1}, Rendered: true},
		},
	}
	id, err := repo.Save(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, id, in.ID)
	t.Cleanup(func() { _ = repo.Delete(context.Background(), id) })

	out, err := repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Frame, out.Frame)
	assert.Equal(t, in.CameraPos, out.CameraPos)
	require.Len(t, out.Entities, 2)
	assert.Equal(t, in.Entities[1], out.Entities[0], "entities come back in entity order")
	assert.Equal(t, in.Entities[0], out.Entities[1])

	list, err := repo.List(ctx, name, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Empty(t, list[0].Entities)

	require.NoError(t, repo.Delete(ctx, id))
	_, err = repo.Load(ctx, id)
	assert.ErrorIs(t, err, ErrSceneNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, id), ErrSceneNotFound)
}

func TestStatsRepoRecord(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewStatsRepo(db)
	require.NoError(t, repo.Record(ctx, nil))

	run := fmt.Sprintf("test-%d", time.Now().UnixNano())
	require.NoError(t, repo.Record(ctx, []FrameStatRow{
		{RunID: run, Frame: 1, FrameTime: 16 * time.Millisecond, Draws: 304, RenderPasses: 7, Entities: 302, Pipelines: 7, PipelineMiss: 7},
		{RunID: run, Frame: 2, FrameTime: 15 * time.Millisecond, Draws: 304, RenderPasses: 7, Entities: 302, Pipelines: 7, PipelineHits: 7, PipelineMiss: 7},
	}))

	var n int
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT count(*) FROM frame_stats WHERE run_id = $1`, run).Scan(&n))
	assert.Equal(t, 2, n)
	_, err := db.Pool.Exec(ctx, `DELETE FROM frame_stats WHERE run_id = $1`, run)
	require.NoError(t, err)
}
