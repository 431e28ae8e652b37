package parasut

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/saudkhanbpk/uzmanlio-backend-sub001/internal/domain/invoicing"
)

const (
	// defaultPollAttempts bounds how many times a job is observed.
	defaultPollAttempts = 5
	// defaultPollInterval is the fixed delay between observations.
	defaultPollInterval = 4 * time.Second
)

// JobPoller observes a provider-side trackable job until a terminal status
// appears or attempts run out. The job is never mutated.
type JobPoller struct {
	client *Client
	config *Config
	logger *zap.Logger

	maxAttempts int
	interval    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewJobPoller creates a poller with the default attempt budget and interval.
func NewJobPoller(config *Config, client *Client, logger *zap.Logger) *JobPoller {
	return &JobPoller{
		client:      client,
		config:      config,
		logger:      logger,
		maxAttempts: defaultPollAttempts,
		interval:    defaultPollInterval,
		sleep:       sleepCtx,
	}
}

// Await polls the job until done or error. On done with a result reference it
// fetches and returns the referenced resource; on done without one it returns
// a completed-without-result value, which callers must handle. A job in error
// status fails immediately with RemoteJobError and is never retried. A 404
// while polling means the job is not visible yet and counts as a regular
// attempt. Exhausting attempts fails with ErrJobTimeout.
func (p *JobPoller) Await(ctx context.Context, jobID, resourceType string) (*invoicing.RemoteResource, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		job, err := p.observe(ctx, jobID)
		switch {
		case err != nil && isNotFound(err):
			p.logger.Debug("trackable job not visible yet",
				zap.String("job_id", jobID),
				zap.Int("attempt", attempt),
			)
		case err != nil:
			return nil, err
		case job.Status == invoicing.JobStatusError:
			return nil, &invoicing.RemoteJobError{JobID: jobID, Messages: job.Errors}
		case job.Status == invoicing.JobStatusDone && job.Result != nil:
			return p.fetchResult(ctx, job.Result)
		case job.Status == invoicing.JobStatusDone:
			return &invoicing.RemoteResource{Type: resourceType, Completed: true}, nil
		}

		if attempt < p.maxAttempts {
			if err := p.sleep(ctx, p.interval); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: job %s still pending after %d attempts", invoicing.ErrJobTimeout, jobID, p.maxAttempts)
}

// observe reads the job resource once.
func (p *JobPoller) observe(ctx context.Context, jobID string) (*invoicing.TrackableJob, error) {
	body, err := p.client.DoFast(ctx, http.MethodGet, p.config.CompanyPath("trackable_jobs/"+jobID), nil)
	if err != nil {
		return nil, err
	}

	var doc Document[TrackableJobAttributes]
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parasut: failed to parse trackable job: %w", err)
	}

	job := &invoicing.TrackableJob{
		ID:     doc.Data.ID,
		Status: invoicing.JobStatus(doc.Data.Attributes.Status),
		Errors: doc.Data.Attributes.Errors,
	}
	if rel, ok := doc.Data.Relationships["resource"]; ok {
		if id, present := rel.Identifier(); present {
			job.Result = &invoicing.JobResult{ResourceType: id.Type, ResourceID: id.ID}
		}
	}
	return job, nil
}

// fetchResult retrieves the resource a finished job produced.
func (p *JobPoller) fetchResult(ctx context.Context, result *invoicing.JobResult) (*invoicing.RemoteResource, error) {
	path := p.config.CompanyPath(result.ResourceType + "s/" + result.ResourceID)
	body, err := p.client.DoFast(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var doc Document[map[string]any]
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parasut: failed to parse job result: %w", err)
	}
	return &invoicing.RemoteResource{
		Type:       doc.Data.Type,
		ID:         doc.Data.ID,
		Attributes: doc.Data.Attributes,
		Completed:  true,
	}, nil
}

// isNotFound reports whether the error is an HTTP 404 from the provider.
func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
