// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take the caller's user ID as a plain argument. The HTTP layer
// resolves who is calling once, in the auth middleware, and passes it down;
// nothing in this package reads identity from a context.
//
// Services depend on repository interfaces, never on the sqlite package,
// so tests can run them against an in-memory database or fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/repository"
	"github.com/sakif/blog-platform/internal/storage"
)

// Validation and paging limits.
const (
	MaxTitleLength   = 200
	MaxContentLength = 50000
	DefaultPerPage   = 10
	MaxPerPage       = 100
)

// ImageStore keeps uploaded images. *storage.Images implements it.
type ImageStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// ImageUpload is an image file attached to a create or update request.
type ImageUpload struct {
	Filename string
	Body     io.Reader
}

type CreatePostInput struct {
	Title   string
	Content string
	Image   *ImageUpload
}

// UpdatePostInput is a partial update: nil fields are left alone.
type UpdatePostInput struct {
	Title   *string
	Content *string
	Image   *ImageUpload
}

// PostService handles business logic for posts.
type PostService struct {
	db     repository.Database
	images ImageStore
	logger *slog.Logger
}

func NewPostService(db repository.Database, images ImageStore, logger *slog.Logger) *PostService {
	return &PostService{
		db:     db,
		images: images,
		logger: logger,
	}
}

// List returns one page of public posts, newest first.
//
// PAGINATION:
// page counts from 1. Out-of-range values are clamped rather than rejected:
// page < 1 becomes 1, perPage < 1 becomes DefaultPerPage and anything above
// MaxPerPage becomes MaxPerPage. A page past the end is simply empty.
func (s *PostService) List(ctx context.Context, page, perPage int) (*model.PostPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	total, err := s.db.Posts().CountPublic(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/post: counting posts: %w", err)
	}

	posts, err := s.db.Posts().ListPublic(ctx, repository.ListOptions{
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		return nil, fmt.Errorf("service/post: listing posts: %w", err)
	}

	return &model.PostPage{
		Posts:       posts,
		Total:       total,
		Pages:       (total + perPage - 1) / perPage,
		CurrentPage: page,
		PerPage:     perPage,
	}, nil
}

// Get returns a post with its comments. A private post exists only for its
// owner; everyone else gets ErrNotFound, same as for a missing post.
func (s *PostService) Get(ctx context.Context, viewerID, id string) (*model.Post, error) {
	post, err := s.visiblePost(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}

	comments, err := s.db.Comments().ListByPost(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/post: listing comments of %s: %w", id, err)
	}
	if comments == nil {
		comments = []model.Comment{}
	}
	post.Comments = comments
	return post, nil
}

func (s *PostService) visiblePost(ctx context.Context, viewerID, id string) (*model.Post, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "post ID is required")
	}

	post, err := s.db.Posts().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !post.IsPublic && !post.OwnedBy(viewerID) {
		return nil, apperror.NotFound("post", id)
	}
	return post, nil
}

// ownedPost loads a post for modification by callerID.
func (s *PostService) ownedPost(ctx context.Context, callerID, id string) (*model.Post, error) {
	post, err := s.visiblePost(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	if !post.OwnedBy(callerID) {
		return nil, apperror.Forbidden("you can only modify your own posts")
	}
	return post, nil
}

// ListByOwner returns all of the owner's posts, private ones included.
func (s *PostService) ListByOwner(ctx context.Context, ownerID string) ([]model.Post, error) {
	posts, err := s.db.Posts().ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/post: listing posts of %s: %w", ownerID, err)
	}
	return posts, nil
}

// Create validates and saves a new post.
//
// A post with an image is a photo post and may have no title or text; a post
// without one is a blog post and needs both title and content. The image is
// stored first. If the post cannot be saved afterwards, the image is
// deleted again so no orphan is left in the bucket.
func (s *PostService) Create(ctx context.Context, ownerID string, in CreatePostInput) (*model.Post, error) {
	post := &model.Post{
		OwnerID:  ownerID,
		Title:    strings.TrimSpace(in.Title),
		Content:  strings.TrimSpace(in.Content),
		IsPublic: true,
		Type:     model.PostTypeBlog,
	}
	if in.Image != nil {
		post.Type = model.PostTypePhoto
	}

	if err := validatePost(post); err != nil {
		return nil, err
	}

	var imageKey string
	if in.Image != nil {
		key, err := s.images.Save(ctx, in.Image.Filename, in.Image.Body)
		if err != nil {
			return nil, err
		}
		imageKey = key
		post.ImageURL = storage.URLFor(key)
	}

	if err := s.db.Posts().Create(ctx, post); err != nil {
		s.discardImage(ctx, imageKey)
		return nil, fmt.Errorf("service/post: creating post: %w", err)
	}

	s.logger.Info("post created",
		slog.String("postID", post.ID),
		slog.String("userID", ownerID),
		slog.String("type", string(post.Type)),
	)

	// Read it back for the author summary.
	return s.db.Posts().GetByID(ctx, post.ID)
}

// Update applies a partial update. Only the owner may update a post.
// A replacement image turns the post into a photo post; the old image is
// deleted once the update is saved.
func (s *PostService) Update(ctx context.Context, callerID, id string, in UpdatePostInput) (*model.Post, error) {
	post, err := s.ownedPost(ctx, callerID, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		post.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		post.Content = strings.TrimSpace(*in.Content)
	}
	if in.Image != nil {
		post.Type = model.PostTypePhoto
	}
	if err := validatePost(post); err != nil {
		return nil, err
	}

	oldImageURL := post.ImageURL
	var newKey string
	if in.Image != nil {
		newKey, err = s.images.Save(ctx, in.Image.Filename, in.Image.Body)
		if err != nil {
			return nil, err
		}
		post.ImageURL = storage.URLFor(newKey)
	}

	if err := s.db.Posts().Update(ctx, post); err != nil {
		s.discardImage(ctx, newKey)
		return nil, fmt.Errorf("service/post: updating post %s: %w", id, err)
	}

	if newKey != "" {
		if oldKey, ok := storage.KeyFromURL(oldImageURL); ok {
			s.discardImage(ctx, oldKey)
		}
	}

	s.logger.Info("post updated", slog.String("postID", id))
	return s.db.Posts().GetByID(ctx, id)
}

// SetVisibility publishes or hides a post. Only the owner may change it.
func (s *PostService) SetVisibility(ctx context.Context, callerID, id string, isPublic bool) (*model.Post, error) {
	post, err := s.ownedPost(ctx, callerID, id)
	if err != nil {
		return nil, err
	}

	post.IsPublic = isPublic
	if err := s.db.Posts().Update(ctx, post); err != nil {
		return nil, fmt.Errorf("service/post: changing visibility of %s: %w", id, err)
	}

	s.logger.Info("post visibility changed",
		slog.String("postID", id),
		slog.Bool("isPublic", isPublic),
	)
	return post, nil
}

// Delete removes a post and its comments in one transaction, then its
// image. Only the owner may delete a post.
func (s *PostService) Delete(ctx context.Context, callerID, id string) error {
	post, err := s.ownedPost(ctx, callerID, id)
	if err != nil {
		return err
	}

	err = s.db.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Comments().DeleteByPost(ctx, id); err != nil {
			return err
		}
		return tx.Posts().Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/post: deleting post %s: %w", id, err)
	}

	if key, ok := storage.KeyFromURL(post.ImageURL); ok {
		s.discardImage(ctx, key)
	}

	s.logger.Info("post deleted", slog.String("postID", id), slog.String("userID", callerID))
	return nil
}

// discardImage deletes a stored image, logging instead of failing.
func (s *PostService) discardImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.images.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Error("deleting image failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// validatePost checks the text fields. Blog posts need a title and
// content; a photo post stands on its image and may have neither.
func validatePost(p *model.Post) error {
	if p.Type == model.PostTypeBlog && p.Title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(p.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or fewer", MaxTitleLength))
	}
	if p.Type == model.PostTypeBlog && p.Content == "" {
		return apperror.ValidationFailed("content", "content is required")
	}
	if utf8.RuneCountInString(p.Content) > MaxContentLength {
		return apperror.ValidationFailed("content",
			fmt.Sprintf("content must be %d characters or fewer", MaxContentLength))
	}
	return nil
}
