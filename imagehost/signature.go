package imagehost

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api"

	"github.com/linesmerrill/incident-report-api/config"
)

// UploadSignature lets a browser upload a picture straight to Cloudinary.
// The signed folder keeps form uploads next to the SMS pictures.
type UploadSignature struct {
	CloudName string `json:"cloudName"`
	APIKey    string `json:"apiKey"`
	Folder    string `json:"folder"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

// SignUpload signs an upload request made at now
func SignUpload(conf *config.Config, now time.Time) (UploadSignature, error) {
	if conf.CloudinaryCloudName == "" || conf.CloudinaryAPIKey == "" || conf.CloudinaryAPISecret == "" {
		return UploadSignature{}, ErrNotConfigured
	}
	timestamp := strconv.FormatInt(now.Unix(), 10)
	signature, err := api.SignParameters(url.Values{
		"folder":    {conf.AppName},
		"timestamp": {timestamp},
	}, conf.CloudinaryAPISecret)
	if err != nil {
		return UploadSignature{}, fmt.Errorf("failed to sign upload: %w", err)
	}
	return UploadSignature{
		CloudName: conf.CloudinaryCloudName,
		APIKey:    conf.CloudinaryAPIKey,
		Folder:    conf.AppName,
		Timestamp: timestamp,
		Signature: signature,
	}, nil
}
