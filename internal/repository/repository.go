package repository

import (
	"context"
	"time"

	"github.com/sakif/blog-platform/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	LinkGoogleID(ctx context.Context, userID, googleID string) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	// Revoke marks the session revoked. Revoking a missing or already
	// revoked session is not an error.
	Revoke(ctx context.Context, id string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, id string) (*model.Post, error)
	ListPublic(ctx context.Context, opts ListOptions) ([]model.Post, error)
	CountPublic(ctx context.Context) (int, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Post, error)
	Update(ctx context.Context, post *model.Post) error
	Delete(ctx context.Context, id string) error
}

type CommentRepository interface {
	Create(ctx context.Context, comment *model.Comment) error
	ListByPost(ctx context.Context, postID string) ([]model.Comment, error)
	DeleteByPost(ctx context.Context, postID string) error
}

// Store hands out repositories bound to one database handle. Inside
// Transactor.WithinTx every repository it returns shares the transaction.
type Store interface {
	Users() UserRepository
	Sessions() SessionRepository
	Posts() PostRepository
	Comments() CommentRepository
}

// Transactor runs fn inside a single transaction: committed when fn returns
// nil, rolled back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// Database is a Store that can also open transactions. *sqlite.DB
// implements it; services depend on this rather than on the driver.
type Database interface {
	Store
	Transactor
}
