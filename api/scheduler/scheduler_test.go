package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/incident-report-api/databases/mocks"
	"github.com/linesmerrill/incident-report-api/models"
)

func newTestScheduler(db *mocks.JobDatabase) *Scheduler {
	s := NewScheduler(db)
	s.now = func() time.Time { return fixedNow }
	return s
}

func setStatus(status string) interface{} {
	return mock.MatchedBy(func(u bson.M) bool {
		set, ok := u["$set"].(bson.M)
		return ok && set["status"] == status
	})
}

func TestScheduler_RunPendingFinishesJob(t *testing.T) {
	job := &models.Job{ID: primitive.NewObjectID(), Kind: "echo", Args: map[string]string{"v": "1"}}
	db := &mocks.JobDatabase{}
	db.On("Find", mock.Anything, mock.Anything).Return([]models.Job{}, nil)
	db.On("ClaimNext", mock.Anything, fixedNow, mock.Anything).Return(job, nil).Once()
	db.On("ClaimNext", mock.Anything, fixedNow, mock.Anything).Return(nil, nil).Once()
	db.On("UpdateOne", mock.Anything, bson.M{"_id": job.ID}, mock.MatchedBy(func(u bson.M) bool {
		set := u["$set"].(bson.M)
		result, _ := set["result"].(map[string]string)
		return set["status"] == models.JobFinished && result["v"] == "1"
	})).Return(nil)
	db.On("PromoteDependents", mock.Anything, job.ID).Return(int64(2), nil)

	s := newTestScheduler(db)
	s.Register("echo", func(ctx context.Context, args map[string]string) (map[string]string, error) {
		return args, nil
	})

	assert.Equal(t, 1, s.RunPending(context.Background()))
	db.AssertExpectations(t)
}

func TestScheduler_RunPendingRecordsFailures(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		task    TaskFunc
		wantErr string
	}{
		{
			name:    "unknown kind",
			kind:    "missing",
			wantErr: "unknown task: missing",
		},
		{
			name: "task error",
			kind: "boom",
			task: func(ctx context.Context, args map[string]string) (map[string]string, error) {
				return nil, errors.New("upload rejected")
			},
			wantErr: "upload rejected",
		},
		{
			name: "task panic",
			kind: "panic",
			task: func(ctx context.Context, args map[string]string) (map[string]string, error) {
				panic("nil map")
			},
			wantErr: "task panicked: nil map",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &models.Job{ID: primitive.NewObjectID(), Kind: tt.kind}
			db := &mocks.JobDatabase{}
			db.On("Find", mock.Anything, mock.Anything).Return([]models.Job{}, nil)
			db.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything).Return(job, nil).Once()
			db.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Once()
			db.On("UpdateOne", mock.Anything, bson.M{"_id": job.ID}, mock.MatchedBy(func(u bson.M) bool {
				set := u["$set"].(bson.M)
				return set["status"] == models.JobFailed && set["error"] == tt.wantErr
			})).Return(nil)
			// dependents run even when their parent failed
			db.On("PromoteDependents", mock.Anything, job.ID).Return(int64(0), nil)

			s := newTestScheduler(db)
			if tt.task != nil {
				s.Register(tt.kind, tt.task)
			}

			assert.Equal(t, 1, s.RunPending(context.Background()))
			db.AssertExpectations(t)
		})
	}
}

func TestScheduler_RunPendingStopsOnClaimError(t *testing.T) {
	db := &mocks.JobDatabase{}
	db.On("Find", mock.Anything, mock.Anything).Return([]models.Job{}, nil)
	db.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	assert.Equal(t, 0, newTestScheduler(db).RunPending(context.Background()))
	db.AssertNumberOfCalls(t, "ClaimNext", 1)
}

func TestScheduler_TaskTimeout(t *testing.T) {
	job := &models.Job{ID: primitive.NewObjectID(), Kind: "slow"}
	db := &mocks.JobDatabase{}
	db.On("Find", mock.Anything, mock.Anything).Return([]models.Job{}, nil)
	db.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything).Return(job, nil).Once()
	db.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Once()
	db.On("UpdateOne", mock.Anything, mock.Anything, setStatus(models.JobFailed)).Return(nil)
	db.On("PromoteDependents", mock.Anything, job.ID).Return(int64(0), nil)

	s := newTestScheduler(db)
	s.timeout = 10 * time.Millisecond
	s.Register("slow", func(ctx context.Context, args map[string]string) (map[string]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	s.RunPending(context.Background())
	db.AssertExpectations(t)
}

func TestScheduler_PromoteOrphans(t *testing.T) {
	doneParent := primitive.NewObjectID()
	runningParent := primitive.NewObjectID()
	goneParent := primitive.NewObjectID()
	ready := models.Job{ID: primitive.NewObjectID(), Status: models.JobDeferred, DependsOn: &doneParent}
	waiting := models.Job{ID: primitive.NewObjectID(), Status: models.JobDeferred, DependsOn: &runningParent}
	orphan := models.Job{ID: primitive.NewObjectID(), Status: models.JobDeferred, DependsOn: &goneParent}

	db := &mocks.JobDatabase{}
	db.On("Find", mock.Anything, bson.M{"status": models.JobDeferred}).Return([]models.Job{ready, waiting, orphan}, nil)
	db.On("FindOne", mock.Anything, bson.M{"_id": doneParent}).Return(&models.Job{Status: models.JobFinished}, nil)
	db.On("FindOne", mock.Anything, bson.M{"_id": runningParent}).Return(&models.Job{Status: models.JobRunning}, nil)
	db.On("FindOne", mock.Anything, bson.M{"_id": goneParent}).Return(nil, mongo.ErrNoDocuments)
	db.On("UpdateOne", mock.Anything, bson.M{"_id": ready.ID, "status": models.JobDeferred}, setStatus(models.JobQueued)).Return(nil)
	db.On("UpdateOne", mock.Anything, bson.M{"_id": orphan.ID, "status": models.JobDeferred}, setStatus(models.JobQueued)).Return(nil)

	newTestScheduler(db).promoteOrphans(context.Background())

	db.AssertExpectations(t)
	db.AssertNotCalled(t, "UpdateOne", mock.Anything, bson.M{"_id": waiting.ID, "status": models.JobDeferred}, mock.Anything)
}

func TestScheduler_RunPendingFailsAbandonedJobs(t *testing.T) {
	started := primitive.NewDateTimeFromTime(fixedNow.Add(-time.Hour))
	upload := models.Job{ID: primitive.NewObjectID(), Kind: "upload_image", Status: models.JobRunning, StartedAt: &started}

	db := &mocks.JobDatabase{}
	db.On("Find", mock.Anything, bson.M{
		"status":    models.JobRunning,
		"startedAt": bson.M{"$lt": primitive.NewDateTimeFromTime(fixedNow.Add(-abandonAfter))},
	}).Return([]models.Job{upload}, nil)
	db.On("Find", mock.Anything, bson.M{"status": models.JobDeferred}).Return([]models.Job{}, nil)
	db.On("UpdateOne", mock.Anything, bson.M{"_id": upload.ID, "status": models.JobRunning}, mock.MatchedBy(func(u bson.M) bool {
		set := u["$set"].(bson.M)
		return set["status"] == models.JobFailed && set["error"] == "abandoned"
	})).Return(nil)
	db.On("PromoteDependents", mock.Anything, upload.ID).Return(int64(2), nil)
	db.On("ClaimNext", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	assert.Equal(t, 0, newTestScheduler(db).RunPending(context.Background()))
	db.AssertExpectations(t)
}
