// Package scheduler runs background jobs stored in the jobs collection. A
// cron tick promotes deferred jobs whose dependency is done and then claims
// and runs every due job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/databases"
	"github.com/linesmerrill/incident-report-api/models"
)

// ErrUnknownTask is recorded on jobs whose kind has no registered task
var ErrUnknownTask = errors.New("unknown task")

// TaskFunc runs one job. The returned map is stored as the job result.
type TaskFunc func(ctx context.Context, args map[string]string) (map[string]string, error)

const (
	defaultSpec    = "@every 5s"
	defaultTimeout = 2 * time.Minute
	maxJobsPerTick = 50

	// a running job older than this lost its process and is failed
	abandonAfter = 3 * defaultTimeout
)

// ErrAbandoned is recorded on running jobs whose process went away
var ErrAbandoned = errors.New("abandoned")

// Scheduler dispatches queued jobs to registered tasks
type Scheduler struct {
	cron       *cron.Cron
	JobDB      databases.JobDatabase
	instanceID string
	timeout    time.Duration
	now        func() time.Time

	mu    sync.RWMutex
	tasks map[string]TaskFunc
}

// NewScheduler creates a new scheduler instance
func NewScheduler(jobDB databases.JobDatabase) *Scheduler {
	// Heroku sets DYNO to "web.1", "web.2", etc.
	instanceID := os.Getenv("DYNO")
	if instanceID == "" {
		instanceID = "instance-" + uuid.NewString()
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		JobDB:      jobDB,
		instanceID: instanceID,
		timeout:    defaultTimeout,
		now:        time.Now,
		tasks:      map[string]TaskFunc{},
	}
}

// Register binds a task to a job kind
func (s *Scheduler) Register(kind string, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[kind] = fn
}

// Start begins polling for due jobs
func (s *Scheduler) Start() {
	_, err := s.cron.AddFunc(defaultSpec, s.tick)
	if err != nil {
		zap.S().Errorw("failed to register job dispatcher", "error", err)
	}

	s.cron.Start()
	zap.S().Infow("Job scheduler started", "instance", s.instanceID)
}

// Stop gracefully stops the scheduler, waiting for a running tick
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("Job scheduler stopped")
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if n := s.RunPending(ctx); n > 0 {
		zap.S().Infow("processed jobs", "count", n, "instance", s.instanceID)
	}
}

// RunPending fails abandoned jobs and promotes orphaned deferred jobs, then
// claims and runs due jobs until none is left or the per-tick limit is hit.
// It returns how many jobs ran.
func (s *Scheduler) RunPending(ctx context.Context) int {
	s.failAbandoned(ctx)
	s.promoteOrphans(ctx)

	ran := 0
	for ran < maxJobsPerTick {
		job, err := s.JobDB.ClaimNext(ctx, s.now(), s.instanceID)
		if err != nil {
			zap.S().Errorw("failed to claim job", "error", err)
			break
		}
		if job == nil {
			break
		}
		s.run(ctx, job)
		ran++
	}
	return ran
}

// failAbandoned fails jobs left running by a process that died after claiming
// them, so their dependents are released.
func (s *Scheduler) failAbandoned(ctx context.Context) {
	cutoff := primitive.NewDateTimeFromTime(s.now().Add(-abandonAfter))
	running, err := s.JobDB.Find(ctx, bson.M{
		"status":    models.JobRunning,
		"startedAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		zap.S().Errorw("failed to find abandoned jobs", "error", err)
		return
	}
	for _, job := range running {
		err := s.JobDB.UpdateOne(ctx,
			bson.M{"_id": job.ID, "status": models.JobRunning},
			bson.M{"$set": bson.M{
				"status":  models.JobFailed,
				"error":   ErrAbandoned.Error(),
				"endedAt": primitive.NewDateTimeFromTime(s.now()),
			}},
		)
		if err != nil {
			zap.S().Errorw("failed to fail abandoned job", "error", err, "jobId", job.ID.Hex())
			continue
		}
		zap.S().Warnw("job abandoned", "kind", job.Kind, "jobId", job.ID.Hex(), "owner", job.Owner)
		if _, err := s.JobDB.PromoteDependents(ctx, job.ID); err != nil {
			zap.S().Errorw("failed to promote dependent jobs", "error", err, "jobId", job.ID.Hex())
		}
	}
}

// promoteOrphans queues deferred jobs whose parent is already done. This
// covers a parent finishing between the dependency check and the insert.
func (s *Scheduler) promoteOrphans(ctx context.Context) {
	deferred, err := s.JobDB.Find(ctx, bson.M{"status": models.JobDeferred})
	if err != nil {
		zap.S().Errorw("failed to find deferred jobs", "error", err)
		return
	}
	for _, job := range deferred {
		if job.DependsOn != nil {
			parent, err := s.JobDB.FindOne(ctx, bson.M{"_id": *job.DependsOn})
			if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
				zap.S().Errorw("failed to look up parent job", "error", err, "jobId", job.ID.Hex())
				continue
			}
			if err == nil && !parent.Done() {
				continue
			}
		}
		err := s.JobDB.UpdateOne(ctx,
			bson.M{"_id": job.ID, "status": models.JobDeferred},
			bson.M{"$set": bson.M{"status": models.JobQueued}},
		)
		if err != nil {
			zap.S().Errorw("failed to promote deferred job", "error", err, "jobId", job.ID.Hex())
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job *models.Job) {
	s.mu.RLock()
	fn, ok := s.tasks[job.Kind]
	s.mu.RUnlock()

	var (
		result map[string]string
		err    error
	)
	start := s.now()
	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownTask, job.Kind)
	} else {
		result, err = s.invoke(ctx, fn, job.Args)
	}

	ended := primitive.NewDateTimeFromTime(s.now())
	set := bson.M{"endedAt": ended}
	if err != nil {
		set["status"] = models.JobFailed
		set["error"] = err.Error()
		zap.S().Errorw("job failed",
			"error", err,
			"kind", job.Kind,
			"jobId", job.ID.Hex(),
			"elapsed", time.Since(start).String())
	} else {
		set["status"] = models.JobFinished
		set["result"] = result
		zap.S().Infow("job finished",
			"kind", job.Kind,
			"jobId", job.ID.Hex(),
			"elapsed", time.Since(start).String())
	}

	if uerr := s.JobDB.UpdateOne(ctx, bson.M{"_id": job.ID}, bson.M{"$set": set}); uerr != nil {
		zap.S().Errorw("failed to record job outcome", "error", uerr, "jobId", job.ID.Hex())
		return
	}
	if _, perr := s.JobDB.PromoteDependents(ctx, job.ID); perr != nil {
		zap.S().Errorw("failed to promote dependent jobs", "error", perr, "jobId", job.ID.Hex())
	}
}

func (s *Scheduler) invoke(ctx context.Context, fn TaskFunc, args map[string]string) (result map[string]string, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx, args)
}
