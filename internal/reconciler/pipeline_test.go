package reconciler_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thaihoc1310/streamvod/internal/events"
	"github.com/thaihoc1310/streamvod/internal/models"
	"github.com/thaihoc1310/streamvod/internal/reconciler"
	"github.com/thaihoc1310/streamvod/internal/testsupport"
	"github.com/thaihoc1310/streamvod/internal/transcode"
	"github.com/thaihoc1310/streamvod/internal/uploads"
)

func TestUploadToPlayback(t *testing.T) {
	ctx := context.Background()
	videos := testsupport.NewVideos()
	tc := testsupport.NewTranscoder()
	sched := &scheduler{}

	manager := uploads.NewManager(videos, testsupport.NewSessions(), testsupport.NewMultipart(), uploads.Options{PartURLTTL: time.Minute}, nil)
	submitter := transcode.NewSubmitter(tc, nil, "vod-output", nil)
	rec := reconciler.New(videos, tc, sched, cdn, nil)
	dispatch := events.NewDispatcher(submitter, rec, nil)

	caller := uuid.New()
	init, err := manager.Initiate(ctx, caller, uuid.Nil)
	require.NoError(t, err)
	_, err = manager.PartURLs(ctx, caller, init.VideoID, init.UploadID, 2)
	require.NoError(t, err)
	_, err = manager.Complete(ctx, caller, init.VideoID, init.UploadID, []models.CompletedPart{
		{PartNumber: 2, ETag: "b"}, {PartNumber: 1, ETag: "a"},
	})
	require.NoError(t, err)

	require.NoError(t, dispatch.ObjectCreated(ctx, []byte(`{"Records":[{"eventName":"ObjectCreated:CompleteMultipartUpload",
		"s3":{"bucket":{"name":"vod-input"},"object":{"key":"`+init.SourceKey+`","size":10}}}]}`)))
	require.Len(t, tc.Submitted, 1)

	tc.Finish("job-1", events.StatusComplete, 125000)
	require.NoError(t, dispatch.JobStateChange(ctx, []byte(`{"detail-type":"MediaConvert Job State Change",
		"detail":{"jobId":"job-1","status":"COMPLETE"}}`)))

	v, err := videos.GetByID(ctx, init.VideoID)
	require.NoError(t, err)
	id := init.VideoID.String()
	assert.Equal(t, models.VideoStatusReady, v.Status)
	assert.Equal(t, 125, v.DurationSeconds)
	assert.Equal(t, "https://"+cdn+"/hls/"+id+"/"+id+".m3u8", v.PlaybackURL)
	assert.Equal(t, "https://"+cdn+"/thumbs/"+id+"_.0000000.jpg", v.ThumbnailURL)
	require.Len(t, sched.payloads, 1)
	assert.Equal(t, init.VideoID, sched.payloads[0].VideoID)
}
