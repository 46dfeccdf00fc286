package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const projectSelect = `
	SELECT p.id, p.title, p.description, p.thumbnail_image_uri, p.owner_id,
		(SELECT COUNT(*) FROM project_likes l WHERE l.project_id = p.id),
		(SELECT COUNT(*) FROM project_subscribes s WHERE s.project_id = p.id),
		p.created_at, p.updated_at
	FROM projects p
`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.ThumbnailImageURI, &p.OwnerID,
		&p.LikeCount, &p.SubscribeCount, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) List(ctx context.Context) ([]Project, error) {
	rows, err := r.db.QueryContext(ctx, projectSelect+` ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	return projects, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx, projectSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, ErrProjectNotFound
		}
		return Project{}, fmt.Errorf("query project: %w", err)
	}
	return p, nil
}

func (r *Repository) Create(ctx context.Context, p Project) (Project, error) {
	now := r.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO projects (title, description, thumbnail_image_uri, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`, p.Title, p.Description, p.ThumbnailImageURI, p.OwnerID, now).Scan(&p.ID)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}

	return p, nil
}

func (r *Repository) Update(ctx context.Context, p Project) (Project, error) {
	p.UpdatedAt = r.now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE projects
		SET title = $2, description = $3, thumbnail_image_uri = $4, updated_at = $5
		WHERE id = $1
	`, p.ID, p.Title, p.Description, p.ThumbnailImageURI, p.UpdatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("update project: %w", err)
	}
	if err := requireAffected(res, ErrProjectNotFound); err != nil {
		return Project{}, err
	}

	return p, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireAffected(res, ErrProjectNotFound)
}

func (r *Repository) AddLike(ctx context.Context, projectID int64, userID string) error {
	return r.addRelation(ctx, "project_likes", projectID, userID, ErrDuplicateLike)
}

func (r *Repository) RemoveLike(ctx context.Context, projectID int64, userID string) error {
	return r.removeRelation(ctx, "project_likes", projectID, userID, ErrLikeNotFound)
}

func (r *Repository) AddSubscribe(ctx context.Context, projectID int64, userID string) error {
	return r.addRelation(ctx, "project_subscribes", projectID, userID, ErrDuplicateSubscribe)
}

func (r *Repository) RemoveSubscribe(ctx context.Context, projectID int64, userID string) error {
	return r.removeRelation(ctx, "project_subscribes", projectID, userID, ErrSubscribeNotFound)
}

// addRelation relies on the (project_id, user_id) primary key; a conflicting
// insert affects no rows and is reported as duplicate.
func (r *Repository) addRelation(ctx context.Context, table string, projectID int64, userID string, duplicate error) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO `+table+` (project_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO NOTHING
	`, projectID, userID, r.now().UTC())
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return requireAffected(res, duplicate)
}

func (r *Repository) removeRelation(ctx context.Context, table string, projectID int64, userID string, missing error) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return requireAffected(res, missing)
}

func requireAffected(res sql.Result, none error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return none
	}
	return nil
}
