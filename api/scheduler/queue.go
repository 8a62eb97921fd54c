package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/databases"
	"github.com/linesmerrill/incident-report-api/models"
)

type enqueueOptions struct {
	delay     time.Duration
	dependsOn string
}

// Option changes how a job is enqueued
type Option func(*enqueueOptions)

// In delays the job by d
func In(d time.Duration) Option {
	return func(o *enqueueOptions) { o.delay = d }
}

// DependsOn holds the job back until the job with the given id has finished
// or failed
func DependsOn(jobID string) Option {
	return func(o *enqueueOptions) { o.dependsOn = jobID }
}

// Queue stores jobs for the scheduler to pick up
type Queue struct {
	DB  databases.JobDatabase
	now func() time.Time
}

// NewQueue creates a queue backed by the jobs collection
func NewQueue(db databases.JobDatabase) *Queue {
	return &Queue{DB: db, now: time.Now}
}

// Enqueue stores a job of the given kind and returns its id
func (q *Queue) Enqueue(ctx context.Context, kind string, args map[string]string, opts ...Option) (string, error) {
	o := enqueueOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	now := q.now()
	job := models.Job{
		ID:        primitive.NewObjectID(),
		Kind:      kind,
		Args:      args,
		Status:    models.JobQueued,
		RunAt:     primitive.NewDateTimeFromTime(now.Add(o.delay)),
		CreatedAt: primitive.NewDateTimeFromTime(now),
	}

	if o.dependsOn != "" {
		parentID, err := primitive.ObjectIDFromHex(o.dependsOn)
		if err != nil {
			return "", fmt.Errorf("invalid dependency %q: %w", o.dependsOn, err)
		}
		job.DependsOn = &parentID

		parent, err := q.DB.FindOne(ctx, bson.M{"_id": parentID})
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			// a missing parent can never finish, run the job as if it had
		case err != nil:
			return "", fmt.Errorf("failed to look up dependency %s: %w", o.dependsOn, err)
		case !parent.Done():
			job.Status = models.JobDeferred
		}
	}

	if err := q.DB.InsertOne(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", kind, err)
	}
	zap.S().Debugw("enqueued job",
		"kind", kind,
		"jobId", job.ID.Hex(),
		"status", job.Status,
		"runAt", job.RunAt.Time())
	return job.ID.Hex(), nil
}
