package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrSceneNotFound is returned by Load for an unknown snapshot id.
var ErrSceneNotFound = errors.New("scene snapshot not found")

// Entity kinds stored in scene_entities.kind.
const (
	KindMesh             = "mesh"
	KindPointLight       = "point_light"
	KindDirectionalLight = "directional_light"
)

// SceneRow is one snapshot. Entities is empty in List results.
type SceneRow struct {
	ID        int64
	Name      string
	Level     string
	Frame     uint64
	CameraPos [3]float32
	CameraDir [3]float32
	CreatedAt time.Time
	Entities  []EntityRow
}

// EntityRow is one entity of a snapshot. Rotation is a quaternion (x, y, z, w);
// Color and Intensity are only set for lights, where Rotation holds the
// directional light's direction in xyz.
type EntityRow struct {
	Entity    uint32
	Kind      string
	Mesh      string
	Material  string
	Position  [3]float32
	Rotation  [4]float32
	Color     [3]float32
	Intensity float32
	Rendered  bool
}

type SceneRepo struct {
	db *DB
}

func NewSceneRepo(db *DB) *SceneRepo {
	return &SceneRepo{db: db}
}

var entityColumns = []string{
	"scene_id", "entity", "kind", "mesh", "material",
	"pos_x", "pos_y", "pos_z", "rot_x", "rot_y", "rot_z", "rot_w",
	"color_r", "color_g", "color_b", "intensity", "rendered",
}

// Save writes the snapshot and its entities in one transaction and returns
// the new snapshot id.
func (r *SceneRepo) Save(ctx context.Context, s *SceneRow) (int64, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("scene begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO scenes (name, level, frame, cam_pos_x, cam_pos_y, cam_pos_z, cam_dir_x, cam_dir_y, cam_dir_z)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		s.Name, s.Level, int64(s.Frame),
		s.CameraPos[0], s.CameraPos[1], s.CameraPos[2],
		s.CameraDir[0], s.CameraDir[1], s.CameraDir[2],
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("scene insert: %w", err)
	}

	rows := make([][]any, 0, len(s.Entities))
	for _, e := range s.Entities {
		rows = append(rows, []any{
			id, int32(e.Entity), e.Kind, e.Mesh, e.Material,
			e.Position[0], e.Position[1], e.Position[2],
			e.Rotation[0], e.Rotation[1], e.Rotation[2], e.Rotation[3],
			e.Color[0], e.Color[1], e.Color[2], e.Intensity, e.Rendered,
		})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"scene_entities"}, entityColumns, pgx.CopyFromRows(rows)); err != nil {
		return 0, fmt.Errorf("scene entities copy: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("scene commit: %w", err)
	}
	s.ID = id
	return id, nil
}

// Load returns the snapshot with its entities in entity order.
func (r *SceneRepo) Load(ctx context.Context, id int64) (*SceneRow, error) {
	s := &SceneRow{ID: id}
	var frame int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT name, level, frame, cam_pos_x, cam_pos_y, cam_pos_z, cam_dir_x, cam_dir_y, cam_dir_z, created_at
		 FROM scenes WHERE id = $1`, id,
	).Scan(&s.Name, &s.Level, &frame,
		&s.CameraPos[0], &s.CameraPos[1], &s.CameraPos[2],
		&s.CameraDir[0], &s.CameraDir[1], &s.CameraDir[2], &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scene %d: %w", id, ErrSceneNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scene load: %w", err)
	}
	s.Frame = uint64(frame)

	rows, err := r.db.Pool.Query(ctx,
		`SELECT entity, kind, mesh, material, pos_x, pos_y, pos_z, rot_x, rot_y, rot_z, rot_w,
		        color_r, color_g, color_b, intensity, rendered
		 FROM scene_entities WHERE scene_id = $1 ORDER BY entity`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("scene entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e EntityRow
		var entity int32
		if err := rows.Scan(&entity, &e.Kind, &e.Mesh, &e.Material,
			&e.Position[0], &e.Position[1], &e.Position[2],
			&e.Rotation[0], &e.Rotation[1], &e.Rotation[2], &e.Rotation[3],
			&e.Color[0], &e.Color[1], &e.Color[2], &e.Intensity, &e.Rendered); err != nil {
			return nil, fmt.Errorf("scene entity scan: %w", err)
		}
		e.Entity = uint32(entity)
		s.Entities = append(s.Entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scene entities: %w", err)
	}
	return s, nil
}

// List returns up to limit snapshots, newest first, without entities.
// An empty name lists every scene.
func (r *SceneRepo) List(ctx context.Context, name string, limit int) ([]SceneRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, level, frame, created_at
		 FROM scenes
		 WHERE $1 = '' OR name = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("scene list: %w", err)
	}
	defer rows.Close()

	var result []SceneRow
	for rows.Next() {
		var s SceneRow
		var frame int64
		if err := rows.Scan(&s.ID, &s.Name, &s.Level, &frame, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scene list scan: %w", err)
		}
		s.Frame = uint64(frame)
		result = append(result, s)
	}
	return result, rows.Err()
}

// Delete removes a snapshot and its entities.
func (r *SceneRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM scenes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("scene delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scene %d: %w", id, ErrSceneNotFound)
	}
	return nil
}
