package usecase

import (
	"bytes"
	"context"
	"errors"
	"path"
	"strings"
	"testing"
)

func pngUpload(size int) ImageUpload {
	body := bytes.Repeat([]byte{0x89}, size)
	return ImageUpload{
		Filename:    "mug.PNG",
		ContentType: "image/png",
		Size:        int64(size),
		Body:        bytes.NewReader(body),
	}
}

func TestUploadImageStoresUnderFolder(t *testing.T) {
	storage := &fakeStorage{}
	svc := NewMediaService(testConfig(), storage, nil)

	obj, err := svc.UploadImage(context.Background(), pngUpload(512))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(obj.Key, "products/") || path.Ext(obj.Key) != ".png" {
		t.Fatalf("unexpected key %q", obj.Key)
	}
	if obj.URL != "https://cdn.example.com/"+obj.Key || obj.ContentType != "image/png" {
		t.Fatalf("unexpected object %+v", obj)
	}

	custom := pngUpload(16)
	custom.Folder = "/banners/"
	obj, err = svc.UploadImage(context.Background(), custom)
	if err != nil || !strings.HasPrefix(obj.Key, "banners/") {
		t.Fatalf("expected custom folder, got %q, %v", obj.Key, err)
	}
}

func TestUploadImageRejects(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.MaxImageSize = 1024
	svc := NewMediaService(cfg, &fakeStorage{}, nil)

	gif := pngUpload(10)
	gif.ContentType = "image/gif"
	oversize := pngUpload(2048)
	empty := pngUpload(0)
	traversal := pngUpload(10)
	traversal.Folder = "../secrets"

	for name, upload := range map[string]ImageUpload{
		"type":      gif,
		"oversize":  oversize,
		"empty":     empty,
		"traversal": traversal,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.UploadImage(context.Background(), upload); !errors.Is(err, ErrInvalidImage) {
				t.Fatalf("expected ErrInvalidImage, got %v", err)
			}
		})
	}
}

func TestUploadImageWithoutStorage(t *testing.T) {
	svc := NewMediaService(testConfig(), nil, nil)
	if _, err := svc.UploadImage(context.Background(), pngUpload(10)); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestUploadImageStorageFailure(t *testing.T) {
	svc := NewMediaService(testConfig(), &fakeStorage{err: errors.New("spaces: 503")}, nil)
	_, err := svc.UploadImage(context.Background(), pngUpload(10))
	if err == nil || isDomainError(err) {
		t.Fatalf("expected an internal error, got %v", err)
	}
}
