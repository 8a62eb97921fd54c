package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/incident-report-api/config"
	"github.com/linesmerrill/incident-report-api/databases"
	"github.com/linesmerrill/incident-report-api/models"
	templates "github.com/linesmerrill/incident-report-api/templates/html"
)

// Job kinds
const (
	TaskUploadImage     = "upload_image"
	TaskAttachImage     = "attach_image"
	TaskDeleteMedia     = "delete_media"
	TaskDeleteImage     = "delete_image"
	TaskNotifyNewReport = "notify_new_report"
)

// ImageHost stores pictures and hands back a deletion handle
type ImageHost interface {
	Upload(ctx context.Context, file interface{}) (url string, deleteHash string, err error)
	Delete(ctx context.Context, deleteHash string) error
}

// MediaFetcher downloads inbound message media
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaURL string) ([]byte, error)
}

// MediaDeleter removes the media the SMS provider keeps for a message
type MediaDeleter interface {
	DeleteMessageMedia(ctx context.Context, messageSID string) (int, error)
}

// Mailer sends a single e-mail
type Mailer interface {
	Send(ctx context.Context, toEmail, toName, subject, htmlContent, plainText string) error
}

var errMissingArg = errors.New("missing job argument")

// Tasks holds the collaborators of the background tasks
type Tasks struct {
	Conf       *config.Config
	IncidentDB databases.IncidentDatabase
	JobDB      databases.JobDatabase
	Images     ImageHost
	Fetcher    MediaFetcher
	Deleter    MediaDeleter
	Mail       Mailer
}

// Register binds every task to s
func (t *Tasks) Register(s *Scheduler) {
	s.Register(TaskUploadImage, t.UploadImage)
	s.Register(TaskAttachImage, t.AttachImage)
	s.Register(TaskDeleteMedia, t.DeleteMedia)
	s.Register(TaskDeleteImage, t.DeleteImage)
	s.Register(TaskNotifyNewReport, t.NotifyNewReport)
}

func arg(args map[string]string, key string) (string, error) {
	v := args[key]
	if v == "" {
		return "", fmt.Errorf("%w: %s", errMissingArg, key)
	}
	return v, nil
}

// UploadImage re-hosts an inbound picture given as "image_url" or a local
// "file_path". The result carries the public link and the deletion handle.
func (t *Tasks) UploadImage(ctx context.Context, args map[string]string) (map[string]string, error) {
	imageURL, filePath := args["image_url"], args["file_path"]
	if imageURL == "" && filePath == "" {
		return nil, fmt.Errorf("%w: image_url or file_path", errMissingArg)
	}
	if t.Images == nil {
		return nil, errors.New("no image host configured")
	}

	var file interface{} = filePath
	if imageURL != "" {
		file = imageURL
		if t.Fetcher != nil {
			b, err := t.Fetcher.FetchMedia(ctx, imageURL)
			if err != nil {
				return nil, err
			}
			file = bytes.NewReader(b)
		}
	}

	link, deleteHash, err := t.Images.Upload(ctx, file)
	if err != nil {
		return nil, err
	}
	return map[string]string{"link": link, "deletehash": deleteHash}, nil
}

// AttachImage copies a finished upload onto its incident
func (t *Tasks) AttachImage(ctx context.Context, args map[string]string) (map[string]string, error) {
	incidentHex, err := arg(args, "incident_id")
	if err != nil {
		return nil, err
	}
	jobHex, err := arg(args, "image_job_id")
	if err != nil {
		return nil, err
	}
	incidentID, err := primitive.ObjectIDFromHex(incidentHex)
	if err != nil {
		return nil, fmt.Errorf("invalid incident id %q: %w", incidentHex, err)
	}
	jobID, err := primitive.ObjectIDFromHex(jobHex)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", jobHex, err)
	}

	upload, err := t.JobDB.FindOne(ctx, bson.M{"_id": jobID})
	if err != nil {
		return nil, fmt.Errorf("failed to get upload job %s: %w", jobHex, err)
	}
	if upload.Status != models.JobFinished {
		return nil, fmt.Errorf("upload job %s is %s: %s", jobHex, upload.Status, upload.Error)
	}

	link := upload.Result["link"]
	err = t.IncidentDB.UpdateOne(ctx, bson.M{"_id": incidentID}, bson.M{"$set": bson.M{
		"pictureUrl":        link,
		"pictureDeleteHash": upload.Result["deletehash"],
		"updatedAt":         primitive.NewDateTimeFromTime(time.Now()),
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to attach image to incident %s: %w", incidentHex, err)
	}
	return map[string]string{"pictureUrl": link}, nil
}

// DeleteMedia removes every media item the SMS provider stored for a message
func (t *Tasks) DeleteMedia(ctx context.Context, args map[string]string) (map[string]string, error) {
	sid, err := arg(args, "message_sid")
	if err != nil {
		return nil, err
	}
	if t.Deleter == nil {
		return nil, errors.New("no media deleter configured")
	}
	n, err := t.Deleter.DeleteMessageMedia(ctx, sid)
	if err != nil {
		return nil, err
	}
	return map[string]string{"deleted": strconv.Itoa(n)}, nil
}

// DeleteImage releases an image through its deletion handle
func (t *Tasks) DeleteImage(ctx context.Context, args map[string]string) (map[string]string, error) {
	hash, err := arg(args, "deletehash")
	if err != nil {
		return nil, err
	}
	if t.Images == nil {
		return nil, errors.New("no image host configured")
	}
	if err := t.Images.Delete(ctx, hash); err != nil {
		return nil, err
	}
	return map[string]string{}, nil
}

// NotifyNewReport e-mails the admin address about a new incident
func (t *Tasks) NotifyNewReport(ctx context.Context, args map[string]string) (map[string]string, error) {
	if t.Conf == nil || t.Conf.AdminEmail == "" || t.Mail == nil {
		return map[string]string{"skipped": "no admin address"}, nil
	}
	incidentHex, err := arg(args, "incident_id")
	if err != nil {
		return nil, err
	}
	incidentID, err := primitive.ObjectIDFromHex(incidentHex)
	if err != nil {
		return nil, fmt.Errorf("invalid incident id %q: %w", incidentHex, err)
	}
	incident, err := t.IncidentDB.FindOne(ctx, bson.M{"_id": incidentID})
	if err != nil {
		return nil, fmt.Errorf("failed to get incident %s: %w", incidentHex, err)
	}

	subject, htmlContent, plainText := templates.RenderNewReportEmail(t.Conf.AppName, t.Conf.BaseURL, *incident)
	if err := t.Mail.Send(ctx, t.Conf.AdminEmail, t.Conf.AppName+" admin", subject, htmlContent, plainText); err != nil {
		return nil, err
	}
	return map[string]string{"sentTo": t.Conf.AdminEmail}, nil
}
