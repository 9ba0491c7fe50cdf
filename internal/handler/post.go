package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/sakif/blog-platform/internal/apperror"
	"github.com/sakif/blog-platform/internal/auth"
	"github.com/sakif/blog-platform/internal/model"
	"github.com/sakif/blog-platform/internal/service"
)

// multipartMemory is how much of a multipart form is held in memory before
// parts spill to temporary files.
const multipartMemory = 8 << 20

// formOverhead allows for the non-file parts of a multipart body on top of
// the image size limit.
const formOverhead = 1 << 20

// PostHandler serves the /api/blog post and comment endpoints.
type PostHandler struct {
	posts     *service.PostService
	comments  *service.CommentService
	maxUpload int64
	logger    *slog.Logger
}

func NewPostHandler(posts *service.PostService, comments *service.CommentService, maxUpload int64, logger *slog.Logger) *PostHandler {
	return &PostHandler{
		posts:     posts,
		comments:  comments,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// postRequest is the JSON body of create and update. Pointers tell an
// absent field apart from an empty one.
type postRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type visibilityRequest struct {
	IsPublic *bool `json:"is_public"`
}

type commentRequest struct {
	Content string `json:"content"`
}

// postForm is a create or update request after parsing, whichever encoding
// it arrived in.
type postForm struct {
	Title   *string
	Content *string
	Image   *service.ImageUpload

	close func()
}

// readPostForm parses either a JSON body or a multipart form with the
// fields title, content and image. The caller must call form.close.
//
// MULTIPART UPLOADS:
// ParseMultipartForm keeps small parts in memory and writes larger ones to
// temporary files. RemoveAll deletes those files once we are done, so close
// must run even when the service call fails.
func (h *PostHandler) readPostForm(w http.ResponseWriter, r *http.Request) (*postForm, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req postRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
		return &postForm{Title: req.Title, Content: req.Content, close: func() {}}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperror.ValidationFailed("image",
				fmt.Sprintf("image must be %d bytes or smaller", h.maxUpload))
		}
		return nil, apperror.ValidationFailed("body", "request body must be a valid multipart form")
	}

	form := &postForm{
		Title:   formValue(r.MultipartForm, "title"),
		Content: formValue(r.MultipartForm, "content"),
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		form.close = func() { r.MultipartForm.RemoveAll() }
	case err != nil:
		r.MultipartForm.RemoveAll()
		return nil, apperror.ValidationFailed("image", "image could not be read")
	default:
		form.Image = &service.ImageUpload{Filename: header.Filename, Body: file}
		form.close = func() {
			file.Close()
			r.MultipartForm.RemoveAll()
		}
	}
	return form, nil
}

// formValue returns the first value of key, or nil when the form does not
// carry it at all.
func formValue(form *multipart.Form, key string) *string {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}

// queryInt parses an integer query parameter. Missing or malformed values
// are 0, which the service replaces with its default.
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// HandleList returns a page of public posts.
//
// HTTP: GET /api/blog/posts?page=1&per_page=10
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.posts.List(r.Context(), queryInt(r, "page"), queryInt(r, "per_page"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleCreate creates a post owned by the caller.
//
// HTTP: POST /api/blog/posts
// Auth: Required
// Body: JSON {"title", "content"} or multipart with title, content, image
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	form, err := h.readPostForm(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer form.close()

	post, err := h.posts.Create(r.Context(), auth.UserIDFromContext(r.Context()), service.CreatePostInput{
		Title:   deref(form.Title),
		Content: deref(form.Content),
		Image:   form.Image,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// HandleGet returns one post with its author and comments.
//
// HTTP: GET /api/blog/posts/{id}
//
// The route runs under OptionalAuth: a signed-in owner can see their own
// private posts, everyone else gets 404 for them.
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.Get(r.Context(), auth.UserIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// HandleUpdate applies a partial update to one of the caller's posts.
//
// HTTP: PUT /api/blog/posts/{id}
// Auth: Required (owner)
func (h *PostHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	form, err := h.readPostForm(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer form.close()

	post, err := h.posts.Update(r.Context(), auth.UserIDFromContext(r.Context()), r.PathValue("id"), service.UpdatePostInput{
		Title:   form.Title,
		Content: form.Content,
		Image:   form.Image,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// HandleSetVisibility publishes or hides one of the caller's posts.
//
// HTTP: PUT /api/blog/posts/{id}/visibility
// Auth: Required (owner)
// Body: {"is_public": true}
func (h *PostHandler) HandleSetVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.IsPublic == nil {
		writeError(w, h.logger, apperror.ValidationFailed("is_public", "is_public is required"))
		return
	}

	post, err := h.posts.SetVisibility(r.Context(), auth.UserIDFromContext(r.Context()), r.PathValue("id"), *req.IsPublic)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// HandleDelete removes one of the caller's posts with its comments.
//
// HTTP: DELETE /api/blog/posts/{id}
// Auth: Required (owner)
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.posts.Delete(r.Context(), auth.UserIDFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Post deleted successfully"})
}

// HandleListMine returns every post the caller owns, public or not.
//
// HTTP: GET /api/blog/user/posts
// Auth: Required
func (h *PostHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.ListByOwner(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if posts == nil {
		posts = []model.Post{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.Post{"posts": posts})
}

// HandleComment adds a comment to a post.
//
// HTTP: POST /api/blog/posts/{id}/comments
// Auth: Required
func (h *PostHandler) HandleComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	comment, err := h.comments.Create(r.Context(), auth.UserIDFromContext(r.Context()), r.PathValue("id"), req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}
