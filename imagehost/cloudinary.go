// Package imagehost stores report pictures on Cloudinary. The Cloudinary
// public id doubles as the deletion handle kept on an incident.
package imagehost

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/config"
)

// ErrNotConfigured is returned when no Cloudinary credentials are set
var ErrNotConfigured = errors.New("cloudinary credentials are not configured")

type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// Cloudinary uploads and destroys images
type Cloudinary struct {
	api    uploadAPI
	folder string
}

// New builds a Cloudinary client from the config. Pictures land in a folder
// named after the app.
func New(conf *config.Config) (*Cloudinary, error) {
	if conf.CloudinaryCloudName == "" || conf.CloudinaryAPIKey == "" || conf.CloudinaryAPISecret == "" {
		return nil, ErrNotConfigured
	}
	cld, err := cloudinary.NewFromParams(conf.CloudinaryCloudName, conf.CloudinaryAPIKey, conf.CloudinaryAPISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	return &Cloudinary{api: &cld.Upload, folder: conf.AppName}, nil
}

// Upload stores file, which may be a URL, a local path or an io.Reader, and
// returns its public URL and deletion handle.
func (c *Cloudinary) Upload(ctx context.Context, file interface{}) (string, string, error) {
	resp, err := c.api.Upload(ctx, file, uploader.UploadParams{Folder: c.folder})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload image: %w", err)
	}
	if resp.Error.Message != "" {
		return "", "", fmt.Errorf("failed to upload image: %s", resp.Error.Message)
	}
	zap.S().Debugw("uploaded image", "publicId", resp.PublicID, "bytes", resp.Bytes)
	return resp.SecureURL, resp.PublicID, nil
}

// Delete destroys the image behind a deletion handle. Deleting an image that
// is already gone is not an error.
func (c *Cloudinary) Delete(ctx context.Context, deleteHash string) error {
	resp, err := c.api.Destroy(ctx, uploader.DestroyParams{PublicID: deleteHash})
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w", deleteHash, err)
	}
	if resp.Error.Message != "" {
		return fmt.Errorf("failed to delete image %s: %s", deleteHash, resp.Error.Message)
	}
	if resp.Result != "ok" && resp.Result != "not found" {
		return fmt.Errorf("failed to delete image %s: unexpected result %q", deleteHash, resp.Result)
	}
	return nil
}
