package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/repository"
)

// CommentDB implements repository.CommentRepository on the comments table.
type CommentDB struct {
	q querier
}

var _ repository.CommentRepository = (*CommentDB)(nil)

func (c *CommentDB) Create(ctx context.Context, comment *model.Comment) error {
	comment.ID = xid.New().String()
	comment.CreatedAt = now()

	_, err := c.q.ExecContext(ctx,
		`INSERT INTO comments (id, post_id, user_id, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		comment.ID,
		comment.PostID,
		comment.OwnerID,
		comment.Content,
		comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting comment on post %s: %w", comment.PostID, err)
	}
	return nil
}

// ListByPost returns a post's comments oldest first, each with its author.
func (c *CommentDB) ListByPost(ctx context.Context, postID string) ([]model.Comment, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT c.id, c.post_id, c.user_id, c.content, c.created_at,
		        u.id, u.username, u.email, u.name, u.profile_picture
		 FROM comments c
		 JOIN users u ON u.id = c.user_id
		 WHERE c.post_id = ?
		 ORDER BY c.created_at ASC, c.id ASC`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments for post %s: %w", postID, err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var (
			comment                        model.Comment
			owner                          model.User
			username, email, name, picture sql.NullString
		)
		if err := rows.Scan(
			&comment.ID,
			&comment.PostID,
			&comment.OwnerID,
			&comment.Content,
			&comment.CreatedAt,
			&owner.ID,
			&username,
			&email,
			&name,
			&picture,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment: %w", err)
		}

		owner.Username = nullable(username)
		owner.Email = nullable(email)
		owner.Name = nullable(name)
		owner.ProfilePicture = nullable(picture)
		author := model.AuthorOf(&owner)
		comment.Author = &author

		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}

// DeleteByPost removes every comment on a post. Deleting zero comments is
// not an error.
func (c *CommentDB) DeleteByPost(ctx context.Context, postID string) error {
	if _, err := c.q.ExecContext(ctx, `DELETE FROM comments WHERE post_id = ?`, postID); err != nil {
		return fmt.Errorf("sqlite: deleting comments for post %s: %w", postID, err)
	}
	return nil
}
