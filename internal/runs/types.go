package runs

import "time"

// Status is the terminal state of a run.
type Status string

const (
	// StatusSucceeded marks a run whose routine returned a result.
	StatusSucceeded Status = "succeeded"
	// StatusFailed marks a run aborted by a launch or routine error.
	StatusFailed Status = "failed"
)

// Run is the record kept for one scrape request.
type Run struct {
	ID          string        `json:"id"`
	Routine     string        `json:"routine"`
	SearchTerm  string        `json:"search_term"`
	Status      Status        `json:"status"`
	HTMLLength  int           `json:"html_length"`
	ContentHash string        `json:"content_hash,omitempty"`
	BlobURI     string        `json:"blob_uri,omitempty"`
	Error       string        `json:"error,omitempty"`
	RequestID   string        `json:"request_id,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
}

// Event is the compact notification published when a run finishes.
type Event struct {
	RunID      string    `json:"run_id"`
	Routine    string    `json:"routine"`
	Status     Status    `json:"status"`
	HTMLLength int       `json:"html_length"`
	BlobURI    string    `json:"blob_uri,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// EventFor derives the notification payload for run.
func EventFor(run Run) Event {
	return Event{
		RunID:      run.ID,
		Routine:    run.Routine,
		Status:     run.Status,
		HTMLLength: run.HTMLLength,
		BlobURI:    run.BlobURI,
		Error:      run.Error,
		FinishedAt: run.StartedAt.Add(run.Duration).UTC(),
	}
}

// Attributes returns the Pub/Sub message attributes for the event.
func (e Event) Attributes() map[string]string {
	return map[string]string{
		"run_id":  e.RunID,
		"routine": e.Routine,
		"status":  string(e.Status),
	}
}
