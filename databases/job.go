package databases

// go generate: mockery --name JobDatabase

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/incident-report-api/models"
)

const jobName = "jobs"

// JobDatabase contains the methods to use with the background job database
type JobDatabase interface {
	FindOne(ctx context.Context, filter interface{}) (*models.Job, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Job, error)
	InsertOne(ctx context.Context, job models.Job) error
	UpdateOne(ctx context.Context, filter interface{}, update interface{}) error
	// ClaimNext atomically moves the oldest due queued job to running and
	// returns it. It returns nil, nil when nothing is due.
	ClaimNext(ctx context.Context, now time.Time, owner string) (*models.Job, error)
	// PromoteDependents queues every deferred job waiting on parentID.
	PromoteDependents(ctx context.Context, parentID primitive.ObjectID) (int64, error)
}

type jobDatabase struct {
	db DatabaseHelper
}

// NewJobDatabase initializes a new instance of job database with the provided db connection
func NewJobDatabase(db DatabaseHelper) JobDatabase {
	return &jobDatabase{
		db: db,
	}
}

func (j *jobDatabase) FindOne(ctx context.Context, filter interface{}) (*models.Job, error) {
	job := &models.Job{}
	err := j.db.Collection(jobName).FindOne(ctx, filter).Decode(&job)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (j *jobDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Job, error) {
	var jobs []models.Job
	curr, err := j.db.Collection(jobName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	if err = curr.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (j *jobDatabase) InsertOne(ctx context.Context, job models.Job) error {
	_, err := j.db.Collection(jobName).InsertOne(ctx, job)
	return err
}

func (j *jobDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}) error {
	_, err := j.db.Collection(jobName).UpdateOne(ctx, filter, update)
	return err
}

func (j *jobDatabase) ClaimNext(ctx context.Context, now time.Time, owner string) (*models.Job, error) {
	filter := bson.M{
		"status": models.JobQueued,
		"runAt":  bson.M{"$lte": primitive.NewDateTimeFromTime(now)},
	}
	started := primitive.NewDateTimeFromTime(now)
	update := bson.M{"$set": bson.M{
		"status":    models.JobRunning,
		"owner":     owner,
		"startedAt": started,
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "runAt", Value: 1}}).
		SetReturnDocument(options.After)

	job := &models.Job{}
	err := j.db.Collection(jobName).FindOneAndUpdate(ctx, filter, update, opts).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (j *jobDatabase) PromoteDependents(ctx context.Context, parentID primitive.ObjectID) (int64, error) {
	res, err := j.db.Collection(jobName).UpdateMany(ctx,
		bson.M{"dependsOn": parentID, "status": models.JobDeferred},
		bson.M{"$set": bson.M{"status": models.JobQueued}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
