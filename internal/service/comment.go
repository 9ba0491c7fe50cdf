package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/repository"
)

const MaxCommentLength = 5000

// CommentService handles comments on posts.
type CommentService struct {
	db     repository.Database
	logger *slog.Logger
}

func NewCommentService(db repository.Database, logger *slog.Logger) *CommentService {
	return &CommentService{db: db, logger: logger}
}

// Create adds a comment by authorID to a post. Comments can only be left on
// posts the author can see.
func (s *CommentService) Create(ctx context.Context, authorID, postID, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "content is required")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("content must be %d characters or fewer", MaxCommentLength))
	}

	post, err := s.db.Posts().GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !post.IsPublic && !post.OwnedBy(authorID) {
		return nil, apperror.NotFound("post", postID)
	}

	author, err := s.db.Users().GetByID(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("service/comment: loading author %s: %w", authorID, err)
	}

	comment := &model.Comment{
		PostID:  postID,
		OwnerID: authorID,
		Content: content,
	}
	if err := s.db.Comments().Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("service/comment: creating comment on %s: %w", postID, err)
	}

	summary := model.AuthorOf(author)
	comment.Author = &summary

	s.logger.Info("comment created",
		slog.String("commentID", comment.ID),
		slog.String("postID", postID),
		slog.String("userID", authorID),
	)
	return comment, nil
}
