package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conces/conces-api/pkg/config"
	"github.com/conces/conces-api/pkg/storage"
)

func multipartBody(t *testing.T, filename string, content []byte, category string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	if category != "" {
		require.NoError(t, mw.WriteField("type", category))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func performUpload(t *testing.T, h *UploadHandler, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	h.Upload(c)
	return w
}

func newUploadTestHandler(t *testing.T, cfg config.UploadsConfig) *UploadHandler {
	t.Helper()
	store, err := storage.NewLocalStorage(cfg.StorageDir)
	require.NoError(t, err)
	return NewUploadHandler(cfg, store, nil)
}

func TestUploadHandlerStoresFile(t *testing.T) {
	dir := t.TempDir()
	h := newUploadTestHandler(t, config.UploadsConfig{
		StorageDir:       dir,
		MaxFileSizeBytes: 1 << 20,
		PublicPrefix:     "/static",
	})

	// PNG magic bytes so content sniffing reports image/png.
	content := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
	body, contentType := multipartBody(t, "avatar.png", content, "avatar")

	w := performUpload(t, h, body, contentType)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data UploadResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, int64(len(content)), envelope.Data.Size)
	assert.Contains(t, envelope.Data.URL, "/static/avatar/")
	assert.Equal(t, ".png", filepath.Ext(envelope.Data.Filename))

	stored, err := os.ReadFile(filepath.Join(dir, "avatar", envelope.Data.Filename))
	require.NoError(t, err)
	assert.Equal(t, content, stored)
}

func TestUploadHandlerRejectsOversizedFile(t *testing.T) {
	h := newUploadTestHandler(t, config.UploadsConfig{
		StorageDir:       t.TempDir(),
		MaxFileSizeBytes: 10,
	})

	body, contentType := multipartBody(t, "big.bin", make([]byte, 64), "")

	w := performUpload(t, h, body, contentType)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUploadHandlerRejectsDisallowedType(t *testing.T) {
	h := newUploadTestHandler(t, config.UploadsConfig{
		StorageDir:       t.TempDir(),
		MaxFileSizeBytes: 1 << 20,
		AllowedMIMEs:     []string{"image/png", "image/jpeg"},
	})

	body, contentType := multipartBody(t, "notes.txt", []byte("plain text"), "")

	w := performUpload(t, h, body, contentType)
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestUploadHandlerMissingFile(t *testing.T) {
	h := newUploadTestHandler(t, config.UploadsConfig{StorageDir: t.TempDir()})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("type", "avatar"))
	require.NoError(t, mw.Close())

	w := performUpload(t, h, &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSanitizeCategory(t *testing.T) {
	assert.Equal(t, "misc", sanitizeCategory(""))
	assert.Equal(t, "misc", sanitizeCategory("../.."))
	assert.Equal(t, "postimages", sanitizeCategory("Post/Images"))
	assert.Equal(t, "avatar", sanitizeCategory("  Avatar "))
}
