package helpers

import (
	"fmt"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UploadConfig struct {
	MaxSizeBytes     int64
	AllowedMimeTypes []string
	UploadBasePath   string
	// PublicPath is the URL prefix the base path is served under.
	PublicPath string
}

var DefaultImageUploadConfig = UploadConfig{
	MaxSizeBytes: 5 * 1024 * 1024, // 5MB
	AllowedMimeTypes: []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
	},
	UploadBasePath: "./uploads/",
	PublicPath:     "/uploads",
}

// ImageUploadConfig is DefaultImageUploadConfig rooted at dir.
func ImageUploadConfig(dir, publicPath string) UploadConfig {
	cfg := DefaultImageUploadConfig
	cfg.UploadBasePath = dir
	cfg.PublicPath = publicPath
	return cfg
}

// UploadFile stores the file under <base>/<uploadType>/<uuid><ext> and returns
// its public URL path.
func UploadFile(c *gin.Context, fileHeader *multipart.FileHeader, uploadType string, config UploadConfig) (string, error) {
	if fileHeader.Size > config.MaxSizeBytes {
		return "", fmt.Errorf("file size exceeds maximum limit of %d MB", config.MaxSizeBytes/(1024*1024))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return "", err
	}
	if !mimetype.EqualsAny(mtype.String(), config.AllowedMimeTypes...) {
		return "", fmt.Errorf("invalid file type. Allowed types: %v", config.AllowedMimeTypes)
	}

	ext := mtype.Extension()
	if ext == "" {
		ext = filepath.Ext(fileHeader.Filename)
	}

	uploadPath := filepath.Join(config.UploadBasePath, uploadType)
	if err := os.MkdirAll(uploadPath, os.ModePerm); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%s%s", uuid.New().String(), ext)
	if err := c.SaveUploadedFile(fileHeader, filepath.Join(uploadPath, filename)); err != nil {
		return "", err
	}

	return path.Join(config.PublicPath, uploadType, filename), nil
}

// DeleteFile removes a file previously returned by UploadFile. URLs outside
// the public path are ignored.
func DeleteFile(config UploadConfig, publicURL string) error {
	prefix := strings.TrimSuffix(config.PublicPath, "/") + "/"
	if publicURL == "" || !strings.HasPrefix(publicURL, prefix) {
		return nil
	}

	rel := filepath.FromSlash(strings.TrimPrefix(publicURL, prefix))
	if strings.Contains(rel, "..") {
		return fmt.Errorf("refusing to delete %q", publicURL)
	}
	err := os.Remove(filepath.Join(config.UploadBasePath, rel))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
