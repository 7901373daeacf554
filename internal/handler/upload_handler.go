package handler

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/conces/conces-api/pkg/config"
	appErrors "github.com/conces/conces-api/pkg/errors"
	"github.com/conces/conces-api/pkg/response"
	"github.com/conces/conces-api/pkg/storage"
)

// UploadHandler stores user uploads (avatars, post images) on local disk.
type UploadHandler struct {
	cfg    config.UploadsConfig
	store  *storage.LocalStorage
	logger *zap.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(cfg config.UploadsConfig, store *storage.LocalStorage, logger *zap.Logger) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadHandler{cfg: cfg, store: store, logger: logger}
}

// UploadResponse is the payload returned after a successful upload.
type UploadResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Upload godoc
// @Summary Upload a file
// @Description Accept a multipart file, validate size and type, store it locally
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to upload"
// @Param type formData string false "Upload category, e.g. avatar or post"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file field is required"))
		return
	}

	if h.cfg.MaxFileSizeBytes > 0 && header.Size > h.cfg.MaxFileSizeBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrFileTooLarge,
			fmt.Sprintf("file exceeds the %d byte limit", h.cfg.MaxFileSizeBytes)))
		return
	}

	contentType, err := sniffContentType(header)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "could not read upload"))
		return
	}
	if !h.typeAllowed(contentType) {
		response.Error(c, appErrors.New("UNSUPPORTED_MEDIA_TYPE",
			http.StatusUnsupportedMediaType,
			fmt.Sprintf("file type %s is not allowed", contentType)))
		return
	}

	category := sanitizeCategory(c.PostForm("type"))
	name, err := randomFilename(header.Filename)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "could not name upload"))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "could not read upload"))
		return
	}
	defer file.Close()

	written, err := h.store.SaveStream(path.Join(category, name), file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "could not store upload"))
		return
	}

	h.logger.Info("file uploaded",
		zap.String("category", category),
		zap.String("filename", name),
		zap.Int64("size", written))

	url := strings.TrimRight(h.cfg.PublicPrefix, "/") + "/" + category + "/" + name
	response.Created(c, UploadResponse{URL: url, Filename: name, Size: written})
}

func (h *UploadHandler) typeAllowed(contentType string) bool {
	if len(h.cfg.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedMIMEs {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}

// sniffContentType detects the MIME type from the first bytes of the
// file rather than trusting the client-supplied header.
func sniffContentType(header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	contentType := http.DetectContentType(buf[:n])
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType), nil
}

func sanitizeCategory(raw string) string {
	category := strings.ToLower(strings.TrimSpace(raw))
	if category == "" {
		return "misc"
	}
	var b strings.Builder
	for _, r := range category {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "misc"
	}
	return b.String()
}

func randomFilename(original string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(original))
	return hex.EncodeToString(buf) + ext, nil
}
