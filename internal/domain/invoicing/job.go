package invoicing

// JobStatus is the remote-side status of a trackable job. The job is observed
// read-only: the poller reads it until a terminal status appears.
type JobStatus string

const (
	JobStatusPending JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// Terminal reports whether the status ends polling.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// TrackableJob is a snapshot of a provider-side asynchronous operation.
type TrackableJob struct {
	ID     string
	Status JobStatus
	// Result references the resource produced on success. Nil when the job
	// completed without producing one.
	Result *JobResult
	Errors []string
}

// JobResult references the remote resource a finished job produced.
type JobResult struct {
	ResourceType string
	ResourceID   string
}

// RemoteResource is the fetched resource a completed job points at. A job may
// legitimately complete without one; callers must handle Completed==true with
// empty ID.
type RemoteResource struct {
	Type       string
	ID         string
	Attributes map[string]any
	// Completed is true when the job finished even if no resource reference
	// was returned.
	Completed bool
}
