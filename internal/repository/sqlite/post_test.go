package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/repository"
)

// =========================================================================
// POST TESTS
// =========================================================================

func TestPostCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "author")
	created := createTestPost(t, db, owner, "Hello", true)

	found, err := db.Posts().GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Title != "Hello" {
		t.Errorf("Title = %q, want %q", found.Title, "Hello")
	}
	if !found.IsPublic {
		t.Error("IsPublic = false, want true")
	}
	if found.Type != model.PostTypeBlog {
		t.Errorf("Type = %q, want %q", found.Type, model.PostTypeBlog)
	}
	if found.Author == nil || found.Author.ID != owner.ID {
		t.Fatalf("Author = %+v, want owner %s", found.Author, owner.ID)
	}
	if found.Author.Name != "author" {
		t.Errorf("Author.Name = %q, want %q (username fallback)", found.Author.Name, "author")
	}
}

func TestPostGet_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Posts().GetByID(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestPostListPublic_NewestFirstAndPaginated(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "author")

	createTestPost(t, db, owner, "first", true)
	createTestPost(t, db, owner, "hidden", false)
	createTestPost(t, db, owner, "second", true)
	createTestPost(t, db, owner, "third", true)

	total, err := db.Posts().CountPublic(ctx)
	if err != nil {
		t.Fatalf("CountPublic() error = %v", err)
	}
	if total != 3 {
		t.Errorf("CountPublic() = %d, want 3", total)
	}

	page1, err := db.Posts().ListPublic(ctx, repository.ListOptions{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("ListPublic() error = %v", err)
	}
	if len(page1) != 2 || page1[0].Title != "third" || page1[1].Title != "second" {
		t.Fatalf("page 1 = %v, want [third second]", titles(page1))
	}

	page2, err := db.Posts().ListPublic(ctx, repository.ListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListPublic() page 2 error = %v", err)
	}
	if len(page2) != 1 || page2[0].Title != "first" {
		t.Fatalf("page 2 = %v, want [first]", titles(page2))
	}
}

func TestPostListByOwner_IncludesPrivate(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	createTestPost(t, db, alice, "public", true)
	createTestPost(t, db, alice, "private", false)
	createTestPost(t, db, bob, "bobs", true)

	posts, err := db.Posts().ListByOwner(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("ListByOwner() = %v, want 2 posts", titles(posts))
	}
	for _, p := range posts {
		if p.OwnerID != alice.ID {
			t.Errorf("post %q belongs to %s", p.Title, p.OwnerID)
		}
	}
}

func TestPostListByOwner_EmptyIsNotNil(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "lonely")

	posts, err := db.Posts().ListByOwner(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if posts == nil {
		t.Error("ListByOwner() returned nil, want empty slice")
	}
}

func TestPostUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "author")
	post := createTestPost(t, db, owner, "draft", true)
	before := post.UpdatedAt

	post.Title = "final"
	post.IsPublic = false
	post.ImageURL = "/api/blog/uploads/x.png"
	post.Type = model.PostTypePhoto
	if err := db.Posts().Update(ctx, post); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	found, err := db.Posts().GetByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Title != "final" || found.IsPublic || found.Type != model.PostTypePhoto {
		t.Errorf("Update() not persisted: %+v", found)
	}
	if !found.UpdatedAt.After(before) {
		t.Errorf("UpdatedAt = %v, want after %v", found.UpdatedAt, before)
	}
}

func TestPostUpdateAndDelete_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.Posts().Update(ctx, &model.Post{ID: "missing", Type: model.PostTypeBlog})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
	if err := db.Posts().Delete(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// COMMENT TESTS
// =========================================================================

func TestCommentCreateAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	post := createTestPost(t, db, alice, "post", true)

	for _, c := range []struct {
		owner   *model.User
		content string
	}{
		{alice, "first!"},
		{bob, "second"},
	} {
		comment := &model.Comment{PostID: post.ID, OwnerID: c.owner.ID, Content: c.content}
		if err := db.Comments().Create(ctx, comment); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if comment.ID == "" {
			t.Error("Create() did not set comment.ID")
		}
	}

	comments, err := db.Comments().ListByPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("ListByPost() error = %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("ListByPost() = %d comments, want 2", len(comments))
	}
	if comments[0].Content != "first!" || comments[1].Content != "second" {
		t.Errorf("comments out of order: %q, %q", comments[0].Content, comments[1].Content)
	}
	if comments[1].Author == nil || comments[1].Author.Name != "bob" {
		t.Errorf("second comment author = %+v, want bob", comments[1].Author)
	}
}

func TestCommentCreate_UnknownPost(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "alice")

	err := db.Comments().Create(context.Background(), &model.Comment{
		PostID:  "missing",
		OwnerID: user.ID,
		Content: "hello",
	})
	if err == nil {
		t.Fatal("Create() should fail for an unknown post")
	}
}

// =========================================================================
// TRANSACTION TESTS
// =========================================================================

func TestWithinTx_CommitsAndRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "author")
	post := createTestPost(t, db, owner, "doomed", true)

	if err := db.Comments().Create(ctx, &model.Comment{PostID: post.ID, OwnerID: owner.ID, Content: "c"}); err != nil {
		t.Fatalf("creating comment: %v", err)
	}

	// A failing callback leaves everything in place.
	boom := errors.New("boom")
	err := db.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Comments().DeleteByPost(ctx, post.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx() error = %v, want boom", err)
	}
	comments, err := db.Comments().ListByPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("ListByPost() error = %v", err)
	}
	if len(comments) != 1 {
		t.Errorf("comments after rollback = %d, want 1", len(comments))
	}

	// A successful callback commits both deletes.
	err = db.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Comments().DeleteByPost(ctx, post.ID); err != nil {
			return err
		}
		return tx.Posts().Delete(ctx, post.ID)
	})
	if err != nil {
		t.Fatalf("WithinTx() error = %v", err)
	}
	if _, err := db.Posts().GetByID(ctx, post.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("post still present after committed delete: %v", err)
	}
}

func titles(posts []model.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Title
	}
	return out
}
