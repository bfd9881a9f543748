// Package events parses the notifications that drive the pipeline into
// strict types: storage object-created records and transcoder job state changes.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/thaihoc1310/streamvod/internal/apperr"
)

// Transcoder job statuses carried by state change events.
const (
	StatusComplete    = "COMPLETE"
	StatusError       = "ERROR"
	StatusCanceled    = "CANCELED"
	StatusProgressing = "PROGRESSING"
	StatusSubmitted   = "SUBMITTED"
)

// ErrMalformed marks a body that is not JSON at all. Such messages can never
// be processed and are safe to discard.
var ErrMalformed = errors.New("malformed notification body")

// ObjectCreated is one new object reported by the storage service.
type ObjectCreated struct {
	Bucket    string
	Key       string // URL-decoded
	Size      int64
	EventName string
}

// JobStateChange is a transcoder job status notification.
type JobStateChange struct {
	JobID    string
	Status   string
	Metadata map[string]string // may be empty; the job itself is authoritative
}

// Terminal reports whether the status ends the job.
func (e JobStateChange) Terminal() bool {
	switch e.Status {
	case StatusComplete, StatusError, StatusCanceled:
		return true
	}
	return false
}

type s3Notification struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key  string `json:"key"`
				Size int64  `json:"size"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
	Event string `json:"Event"` // "s3:TestEvent" when a notification target is first configured
}

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

type eventBridgeEnvelope struct {
	DetailType string          `json:"detail-type"`
	Source     string          `json:"source"`
	Detail     json.RawMessage `json:"detail"`
}

type jobStateDetail struct {
	JobID        string            `json:"jobId"`
	Status       string            `json:"status"`
	UserMetadata map[string]string `json:"userMetadata"`
}

// ParseObjectCreated decodes an S3 event notification, optionally wrapped in
// an SNS envelope. Records other than ObjectCreated are skipped; a storage
// test event yields no records.
func ParseObjectCreated(body []byte) ([]ObjectCreated, error) {
	const op = "events.object_created"
	body, err := unwrapSNS(body)
	if err != nil {
		return nil, err
	}
	var n s3Notification
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	if n.Event == "s3:TestEvent" {
		return nil, nil
	}
	if len(n.Records) == 0 {
		return nil, apperr.Validation(op, "notification has no records")
	}
	out := make([]ObjectCreated, 0, len(n.Records))
	for _, r := range n.Records {
		if r.EventName != "" && !strings.HasPrefix(r.EventName, "ObjectCreated:") {
			continue
		}
		if r.S3.Bucket.Name == "" || r.S3.Object.Key == "" {
			return nil, apperr.Validation(op, "record is missing bucket or key")
		}
		key, err := url.QueryUnescape(r.S3.Object.Key)
		if err != nil {
			return nil, apperr.Validation(op, "object key is not valid URL encoding")
		}
		out = append(out, ObjectCreated{Bucket: r.S3.Bucket.Name, Key: key, Size: r.S3.Object.Size, EventName: r.EventName})
	}
	return out, nil
}

// ParseJobStateChange decodes an EventBridge job state change event, or its
// bare detail object. jobId and status are required.
func ParseJobStateChange(body []byte) (JobStateChange, error) {
	const op = "events.job_state_change"
	body, err := unwrapSNS(body)
	if err != nil {
		return JobStateChange{}, err
	}
	var env eventBridgeEnvelope
	if err := decode(body, &env); err != nil {
		return JobStateChange{}, err
	}
	raw := body
	if len(env.Detail) > 0 && !bytes.Equal(env.Detail, []byte("null")) {
		raw = env.Detail
	}
	var d jobStateDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return JobStateChange{}, apperr.Validation(op, "detail is not an object")
	}
	if d.JobID == "" {
		return JobStateChange{}, apperr.Validation(op, "event is missing jobId")
	}
	if d.Status == "" {
		return JobStateChange{}, apperr.Validation(op, "event is missing status")
	}
	return JobStateChange{JobID: d.JobID, Status: strings.ToUpper(d.Status), Metadata: d.UserMetadata}, nil
}

// unwrapSNS returns the inner message of an SNS notification, or body unchanged.
func unwrapSNS(body []byte) ([]byte, error) {
	var env snsEnvelope
	if err := decode(body, &env); err != nil {
		return nil, err
	}
	if env.Type == "Notification" && env.Message != "" {
		return []byte(env.Message), nil
	}
	return body, nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
