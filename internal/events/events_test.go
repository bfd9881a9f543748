package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thaihoc1310/streamvod/internal/apperr"
)

const s3Event = `{
  "Records": [{
    "eventVersion": "2.1",
    "eventSource": "aws:s3",
    "eventName": "ObjectCreated:CompleteMultipartUpload",
    "s3": {
      "bucket": {"name": "streamvod-bucket"},
      "object": {"key": "uploads/my+clip%281%29.mp4", "size": 1048576}
    }
  }]
}`

func TestParseObjectCreated(t *testing.T) {
	records, err := ParseObjectCreated([]byte(s3Event))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "streamvod-bucket", records[0].Bucket)
	assert.Equal(t, "uploads/my clip(1).mp4", records[0].Key)
	assert.Equal(t, int64(1048576), records[0].Size)
}

func TestParseObjectCreatedInsideSNS(t *testing.T) {
	wrapped, err := json.Marshal(map[string]string{"Type": "Notification", "Message": s3Event})
	require.NoError(t, err)

	records, err := ParseObjectCreated(wrapped)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "uploads/my clip(1).mp4", records[0].Key)
}

func TestParseObjectCreatedSkips(t *testing.T) {
	records, err := ParseObjectCreated([]byte(`{"Service":"Amazon S3","Event":"s3:TestEvent","Bucket":"b"}`))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = ParseObjectCreated([]byte(`{"Records":[{"eventName":"ObjectRemoved:Delete","s3":{"bucket":{"name":"b"},"object":{"key":"k"}}}]}`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseObjectCreatedRejects(t *testing.T) {
	_, err := ParseObjectCreated([]byte(`{"Records":[{"eventName":"ObjectCreated:Put","s3":{"bucket":{"name":""},"object":{"key":"k"}}}]}`))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = ParseObjectCreated([]byte(`{}`))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = ParseObjectCreated([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestParseJobStateChange(t *testing.T) {
	body := `{
	  "version": "0",
	  "detail-type": "MediaConvert Job State Change",
	  "source": "aws.mediaconvert",
	  "detail": {"jobId": "1700000000000-abc123", "status": "COMPLETE", "userMetadata": {"video_id": "v1"}}
	}`
	evt, err := ParseJobStateChange([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-abc123", evt.JobID)
	assert.Equal(t, StatusComplete, evt.Status)
	assert.Equal(t, "v1", evt.Metadata["video_id"])
	assert.True(t, evt.Terminal())
}

func TestParseJobStateChangeBareDetail(t *testing.T) {
	evt, err := ParseJobStateChange([]byte(`{"jobId":"j1","status":"progressing"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusProgressing, evt.Status)
	assert.False(t, evt.Terminal())
}

func TestParseJobStateChangeRequiresFields(t *testing.T) {
	_, err := ParseJobStateChange([]byte(`{"detail":{"status":"COMPLETE"}}`))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = ParseJobStateChange([]byte(`{"detail":{"jobId":"j1"}}`))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = ParseJobStateChange([]byte(`{"detail": 42}`))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = ParseJobStateChange([]byte(`{{`))
	assert.ErrorIs(t, err, ErrMalformed)
}
