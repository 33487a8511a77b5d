package handlers

import (
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"media-gallery/internal/services"
	"media-gallery/internal/utils"
)

type MediaHandler struct {
	media *services.MediaService
	log   *zap.SugaredLogger
}

func NewMediaHandler(media *services.MediaService, log *zap.SugaredLogger) *MediaHandler {
	return &MediaHandler{media: media, log: log}
}

// List handles GET /api/media?type=photo|video|all.
func (h *MediaHandler) List(c *fiber.Ctx) error {
	list, err := h.media.List(c.Context(), c.Query("type"))
	if err != nil {
		h.log.Errorw("list media", "error", err)
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, list)
}

// Get handles GET /api/media/:id.
func (h *MediaHandler) Get(c *fiber.Ctx) error {
	m, err := h.media.Get(c.Context(), c.Params("id"))
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, m)
}

// Upload handles POST /api/media/upload (multipart field "files").
func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "expected multipart form")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return utils.JSONError(c, fiber.StatusBadRequest, "no files uploaded")
	}

	inputs := make([]services.UploadInput, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return utils.JSONError(c, fiber.StatusBadRequest, fmt.Sprintf("read %s: %v", fh.Filename, err))
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return utils.JSONError(c, fiber.StatusBadRequest, fmt.Sprintf("read %s: %v", fh.Filename, err))
		}
		inputs = append(inputs, services.UploadInput{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Data:        data,
		})
	}

	uploaded, err := h.media.Upload(c.Context(), inputs)
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, fiber.Map{"uploaded": uploaded})
}

// Delete handles DELETE /api/media/:id.
func (h *MediaHandler) Delete(c *fiber.Ctx) error {
	if err := h.media.Delete(c.Context(), c.Params("id")); err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"success": true})
}

// ServeFile handles GET /api/media/file/:fileId and streams the blob.
func (h *MediaHandler) ServeFile(c *fiber.Ctx) error {
	stream, err := h.media.Download(c.Context(), c.Params("fileId"))
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	info := stream.Info
	c.Set(fiber.HeaderContentType, info.ContentType)
	if info.Size > 0 {
		c.Set(fiber.HeaderContentLength, fmt.Sprintf("%d", info.Size))
	}
	if info.Name != "" {
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", info.Name))
	}
	return c.SendStream(stream.Reader)
}

// ToggleLike handles POST /api/media/:id/like.
func (h *MediaHandler) ToggleLike(c *fiber.Ctx) error {
	user, err := actorFromBody(c)
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	likes, err := h.media.ToggleLike(c.Context(), c.Params("id"), user)
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, likes)
}

// GetLikes handles GET /api/media/:id/likes.
func (h *MediaHandler) GetLikes(c *fiber.Ctx) error {
	likes, err := h.media.GetLikes(c.Context(), c.Params("id"))
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, likes)
}

// ToggleFavorite handles POST /api/media/:id/favorite.
func (h *MediaHandler) ToggleFavorite(c *fiber.Ctx) error {
	user, err := actorFromBody(c)
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	favorites, err := h.media.ToggleFavorite(c.Context(), c.Params("id"), user)
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, favorites)
}

// GetFavorites handles GET /api/media/:id/favorites.
func (h *MediaHandler) GetFavorites(c *fiber.Ctx) error {
	favorites, err := h.media.GetFavorites(c.Context(), c.Params("id"))
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, favorites)
}

// UserFavorites handles GET /api/media/user/:user/favorites.
func (h *MediaHandler) UserFavorites(c *fiber.Ctx) error {
	list, err := h.media.UserFavorites(c.Context(), c.Params("user"))
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, list)
}

// AddComment handles POST /api/media/:id/comments.
func (h *MediaHandler) AddComment(c *fiber.Ctx) error {
	var body struct {
		Content string  `json:"content"`
		Author  string  `json:"author"`
		ReplyTo *string `json:"replyTo"`
	}
	if err := c.BodyParser(&body); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "invalid json body")
	}
	if strings.TrimSpace(body.Content) == "" {
		return utils.JSONError(c, fiber.StatusBadRequest, "content is required")
	}
	if strings.TrimSpace(body.Author) == "" {
		return utils.JSONError(c, fiber.StatusBadRequest, "author is required")
	}
	comment, err := h.media.AddComment(c.Context(), c.Params("id"), body.Content, body.Author, body.ReplyTo)
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, comment)
}

// GetComments handles GET /api/media/:id/comments.
func (h *MediaHandler) GetComments(c *fiber.Ctx) error {
	comments, err := h.media.GetComments(c.Context(), c.Params("id"))
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, comments)
}

// DeleteComment handles DELETE /api/media/:id/comments/:commentId with an
// optional parentId query for replies.
func (h *MediaHandler) DeleteComment(c *fiber.Ctx) error {
	err := h.media.DeleteComment(c.Context(), c.Params("id"), c.Params("commentId"), c.Query("parentId"))
	if err != nil {
		return utils.JSONFromError(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"success": true})
}

// Sync handles POST /api/media/sync.
func (h *MediaHandler) Sync(c *fiber.Ctx) error {
	count, err := h.media.Sync(c.Context())
	if err != nil {
		h.log.Errorw("sync failed", "error", err)
		return utils.JSONFromError(c, err)
	}
	h.log.Infow("cache rebuilt", "records", count)
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"synced": count})
}

func actorFromBody(c *fiber.Ctx) (string, error) {
	var body struct {
		User string `json:"user"`
	}
	if err := c.BodyParser(&body); err != nil || strings.TrimSpace(body.User) == "" {
		return "", fmt.Errorf("%w: user is required", utils.ErrValidation)
	}
	return body.User, nil
}
