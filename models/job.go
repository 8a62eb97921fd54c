package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Job states. A deferred job waits on its dependency, a queued job waits on
// its runAt time.
const (
	JobDeferred = "deferred"
	JobQueued   = "queued"
	JobRunning  = "running"
	JobFinished = "finished"
	JobFailed   = "failed"
)

// Job holds the structure for the jobs collection in mongo
type Job struct {
	ID        primitive.ObjectID  `json:"_id" bson:"_id"`
	Kind      string              `json:"kind" bson:"kind"`
	Args      map[string]string   `json:"args" bson:"args"`
	Status    string              `json:"status" bson:"status"`
	RunAt     primitive.DateTime  `json:"runAt" bson:"runAt"`
	DependsOn *primitive.ObjectID `json:"dependsOn,omitempty" bson:"dependsOn,omitempty"`
	Result    map[string]string   `json:"result,omitempty" bson:"result,omitempty"`
	Error     string              `json:"error,omitempty" bson:"error,omitempty"`
	Owner     string              `json:"owner,omitempty" bson:"owner,omitempty"`
	CreatedAt primitive.DateTime  `json:"createdAt" bson:"createdAt"`
	StartedAt *primitive.DateTime `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	EndedAt   *primitive.DateTime `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
}

// Done reports whether the job reached a terminal state
func (j Job) Done() bool {
	return j.Status == JobFinished || j.Status == JobFailed
}
