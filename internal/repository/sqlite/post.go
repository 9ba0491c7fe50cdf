package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/repository"
)

// PostDB implements repository.PostRepository on the posts table.
type PostDB struct {
	q querier
}

var _ repository.PostRepository = (*PostDB)(nil)

// Every read joins the owner so the post comes back with its author summary.
// A single query matters here: the pool has one connection, so issuing a
// second query while iterating rows would block forever.
const postSelect = `
	SELECT p.id, p.user_id, p.title, p.content, p.img_url, p.is_public, p.type,
	       p.created_at, p.updated_at,
	       u.id, u.username, u.email, u.name, u.profile_picture
	FROM posts p
	JOIN users u ON u.id = p.user_id`

func (p *PostDB) Create(ctx context.Context, post *model.Post) error {
	ts := now()
	post.ID = xid.New().String()
	post.CreatedAt = ts
	post.UpdatedAt = ts

	_, err := p.q.ExecContext(ctx,
		`INSERT INTO posts (id, user_id, title, content, img_url, is_public, type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID,
		post.OwnerID,
		post.Title,
		post.Content,
		post.ImageURL,
		post.IsPublic,
		string(post.Type),
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting post: %w", err)
	}
	return nil
}

func (p *PostDB) GetByID(ctx context.Context, id string) (*model.Post, error) {
	row := p.q.QueryRowContext(ctx, postSelect+` WHERE p.id = ?`, id)

	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("sqlite: getting post %s: %w", id, err)
	}
	return post, nil
}

// ListPublic returns public posts newest first. Ties on created_at are broken
// by ID; xids sort by creation time too.
func (p *PostDB) ListPublic(ctx context.Context, opts repository.ListOptions) ([]model.Post, error) {
	return p.list(ctx,
		postSelect+` WHERE p.is_public = 1
		 ORDER BY p.created_at DESC, p.id DESC
		 LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
}

func (p *PostDB) CountPublic(ctx context.Context) (int, error) {
	var n int
	if err := p.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE is_public = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting posts: %w", err)
	}
	return n, nil
}

// ListByOwner returns every post of one user regardless of visibility.
func (p *PostDB) ListByOwner(ctx context.Context, ownerID string) ([]model.Post, error) {
	return p.list(ctx,
		postSelect+` WHERE p.user_id = ?
		 ORDER BY p.created_at DESC, p.id DESC`,
		ownerID,
	)
}

func (p *PostDB) list(ctx context.Context, query string, args ...any) ([]model.Post, error) {
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	defer rows.Close()

	// Initialise as an empty slice so JSON encodes [] rather than null.
	posts := []model.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning post: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating posts: %w", err)
	}
	return posts, nil
}

// Update writes the mutable fields back and bumps updated_at.
func (p *PostDB) Update(ctx context.Context, post *model.Post) error {
	post.UpdatedAt = now()

	result, err := p.q.ExecContext(ctx,
		`UPDATE posts SET title = ?, content = ?, img_url = ?, is_public = ?, type = ?, updated_at = ?
		 WHERE id = ?`,
		post.Title,
		post.Content,
		post.ImageURL,
		post.IsPublic,
		string(post.Type),
		post.UpdatedAt,
		post.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating post %s: %w", post.ID, err)
	}
	return requireRow(result, "post", post.ID)
}

func (p *PostDB) Delete(ctx context.Context, id string) error {
	result, err := p.q.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %s: %w", id, err)
	}
	return requireRow(result, "post", id)
}

func scanPost(s rowScanner) (*model.Post, error) {
	var (
		post                           model.Post
		postType                       string
		owner                          model.User
		username, email, name, picture sql.NullString
	)
	err := s.Scan(
		&post.ID,
		&post.OwnerID,
		&post.Title,
		&post.Content,
		&post.ImageURL,
		&post.IsPublic,
		&postType,
		&post.CreatedAt,
		&post.UpdatedAt,
		&owner.ID,
		&username,
		&email,
		&name,
		&picture,
	)
	if err != nil {
		return nil, err
	}

	post.Type = model.PostType(postType)
	owner.Username = nullable(username)
	owner.Email = nullable(email)
	owner.Name = nullable(name)
	owner.ProfilePicture = nullable(picture)
	author := model.AuthorOf(&owner)
	post.Author = &author
	return &post, nil
}

// requireRow turns "zero rows affected" into apperror.NotFound.
func requireRow(result sql.Result, resource, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
