// Upload HTTP handlers.
//
// This file exposes vehicle image uploads:
//   - POST /uploads/vehicle-image  (multipart form, field "image")
//
// Files land under UploadDir and are served statically from UploadBaseURL.
// Only common image extensions are accepted; filenames are regenerated so
// client-supplied names never reach the filesystem.
package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxImageBytes caps one uploaded vehicle image (5 MiB).
const maxImageBytes = 5 << 20

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// UploadVehicleImage stores one image and returns its public URL.
func (h *Handlers) UploadVehicleImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image file is required")
		return
	}
	if file.Size > maxImageBytes {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeUploadFailed, "image exceeds 5 MiB")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedImageExts[ext] {
		fail(c, http.StatusBadRequest, ErrCodeUploadFailed, "only .jpg, .jpeg, .png and .webp files are allowed")
		return
	}

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, "could not prepare upload directory")
		return
	}

	filename := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString()[:8], ext)
	if err := c.SaveUploadedFile(file, filepath.Join(h.UploadDir, filename)); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, "could not save file")
		return
	}

	ok(c, http.StatusCreated, gin.H{"url": h.UploadBaseURL + "/" + filename})
}
