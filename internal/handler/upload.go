package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/blog-platform/internal/storage"
)

// UploadHandler serves stored post images.
type UploadHandler struct {
	images *storage.Images
	logger *slog.Logger
}

func NewUploadHandler(images *storage.Images, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{images: images, logger: logger}
}

// HandleServe streams one stored image.
//
// HTTP: GET /api/blog/uploads/{filename}
//
// Keys are unique per upload and never rewritten, so the response can be
// cached for a long time.
func (h *UploadHandler) HandleServe(w http.ResponseWriter, r *http.Request) {
	img, err := h.images.Open(r.Context(), r.PathValue("filename"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer img.Close()

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(img.Size, 10))
	w.Header().Set("Last-Modified", img.ModTime.UTC().Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, img); err != nil {
		// Headers are gone; all we can do is record it.
		h.logger.Warn("image stream interrupted",
			slog.String("filename", r.PathValue("filename")),
			slog.String("error", err.Error()),
		)
	}
}
