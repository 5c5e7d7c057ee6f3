// package job_api provides the async job management API handlers.
package job_api

import (
	"time"

	"github.com/primepisodes/media-engine/internal/jobs"
)

// JobResponse is the wire shape of a job record.
type JobResponse struct {
	ID             string         `json:"id"`
	JobType        string         `json:"jobType"`
	EpisodeID      string         `json:"episodeId"`
	FileID         *string        `json:"fileId,omitempty"`
	Status         string         `json:"status"`
	Progress       int            `json:"progress"`
	RetryCount     int            `json:"retryCount"`
	MaxRetries     int            `json:"maxRetries"`
	Error          *string        `json:"error,omitempty"`
	QueueMessageID *string        `json:"queueMessageId,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

func jobView(j *jobs.Job) JobResponse {
	return JobResponse{
		ID:             j.ID.String(),
		JobType:        string(j.Type),
		EpisodeID:      j.EpisodeID,
		FileID:         j.FileID,
		Status:         string(j.Status),
		Progress:       j.Progress,
		RetryCount:     j.RetryCount,
		MaxRetries:     j.MaxRetries,
		Error:          j.Error,
		QueueMessageID: j.QueueMessageID,
		Payload:        j.Payload,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}

func jobViews(list []*jobs.Job) []JobResponse {
	out := make([]JobResponse, 0, len(list))
	for _, j := range list {
		out = append(out, jobView(j))
	}
	return out
}
