package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/config"
)

const defaultImageFolder = "products"

// ErrInvalidImage indicates an upload with a disallowed type or size.
var ErrInvalidImage = errors.New("invalid image")

// ErrStorageUnavailable indicates no object storage is configured.
var ErrStorageUnavailable = errors.New("image storage is not configured")

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
}

// ImageUpload describes an incoming image.
type ImageUpload struct {
	Folder      string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// MediaService stores product images in object storage.
type MediaService struct {
	cfg     *config.AppConfig
	storage port.ObjectStorage
	logger  *zap.Logger
}

// NewMediaService constructs a MediaService. storage may be nil when uploads are disabled.
func NewMediaService(cfg *config.AppConfig, storage port.ObjectStorage, logger *zap.Logger) *MediaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaService{cfg: cfg, storage: storage, logger: logger}
}

// UploadImage validates and stores an image under <folder>/<uuid><ext>.
func (s *MediaService) UploadImage(ctx context.Context, upload ImageUpload) (port.StoredObject, error) {
	if s.storage == nil {
		return port.StoredObject{}, ErrStorageUnavailable
	}
	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	ext, ok := imageExtensions[contentType]
	if !ok {
		return port.StoredObject{}, fmt.Errorf("%w: content type %q is not allowed, use jpeg or png", ErrInvalidImage, upload.ContentType)
	}
	if upload.Size <= 0 {
		return port.StoredObject{}, fmt.Errorf("%w: file is empty", ErrInvalidImage)
	}
	if limit := s.cfg.Storage.MaxImageSize; limit > 0 && upload.Size > limit {
		return port.StoredObject{}, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidImage, limit)
	}
	if fileExt := strings.ToLower(path.Ext(upload.Filename)); fileExt == ".png" || fileExt == ".jpeg" || fileExt == ".jpg" {
		ext = fileExt
	}

	folder := strings.Trim(strings.TrimSpace(upload.Folder), "/")
	if folder == "" {
		folder = strings.Trim(s.cfg.Storage.ImageFolder, "/")
	}
	if folder == "" {
		folder = defaultImageFolder
	}
	if strings.Contains(folder, "..") {
		return port.StoredObject{}, fmt.Errorf("%w: invalid folder", ErrInvalidImage)
	}

	key := path.Join(folder, uuid.NewString()+ext)
	obj, err := s.storage.Put(ctx, key, upload.Body, upload.Size, contentType)
	if err != nil {
		return port.StoredObject{}, fmt.Errorf("upload image: %w", err)
	}
	requestLogger(ctx, s.logger).Info("image uploaded", zap.String("key", obj.Key), zap.Int64("size", obj.Size))
	return obj, nil
}
