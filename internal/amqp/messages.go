package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ExportRequested asks the worker to run one export job. The worker loads
// the job and its session from the database; the message carries no token.
type ExportRequested struct {
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"`
	Date      string    `json:"date"`
	Target    string    `json:"target"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExportRequested creates a message stamped with the current time.
func NewExportRequested(jobID, kind, date, target string) *ExportRequested {
	return &ExportRequested{
		JobID:     jobID,
		Kind:      kind,
		Date:      date,
		Target:    target,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExportRequested) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportRequestedFromJSON decodes a message and checks required fields.
func ExportRequestedFromJSON(data []byte) (*ExportRequested, error) {
	var msg ExportRequested
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID == "" {
		return nil, errors.New("export message has no job id")
	}
	return &msg, nil
}
