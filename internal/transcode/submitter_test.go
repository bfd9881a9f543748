package transcode

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thaihoc1310/streamvod/internal/apperr"
	"github.com/thaihoc1310/streamvod/internal/events"
	"github.com/thaihoc1310/streamvod/internal/models"
	"github.com/thaihoc1310/streamvod/internal/testsupport"
	"github.com/thaihoc1310/streamvod/pkg/storage"
	"github.com/thaihoc1310/streamvod/pkg/transcoder"
)

type refStore struct {
	saved []models.TranscodeJobRef
	err   error
}

func (r *refStore) Save(_ context.Context, ref models.TranscodeJobRef) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, ref)
	return nil
}

func TestSubmitBuildsJob(t *testing.T) {
	tc := testsupport.NewTranscoder()
	refs := &refStore{}
	s := NewSubmitter(tc, refs, "streamvod-output", nil)
	id := uuid.New()

	ref, err := s.Submit(context.Background(), events.ObjectCreated{Bucket: "streamvod-bucket", Key: storage.SourceKey(id)})
	require.NoError(t, err)
	assert.Equal(t, id, ref.VideoID)
	assert.Equal(t, []string{"1080p", "720p", "360p"}, ref.Ladder)

	require.Len(t, tc.Submitted, 1)
	spec := tc.Submitted[0]
	assert.Equal(t, "s3://streamvod-bucket/uploads/"+id.String()+".mp4", spec.InputURI)
	assert.Equal(t, "s3://streamvod-output/hls/"+id.String()+"/", spec.HLSDestination)
	assert.Equal(t, "s3://streamvod-output/thumbs/"+id.String()+"_", spec.ThumbnailDestination)
	assert.Equal(t, int32(4), spec.SegmentSeconds)
	assert.Equal(t, id.String(), spec.Metadata[transcoder.MetadataVideoID])
	assert.Equal(t, id.String(), spec.IdempotencyToken)

	// Highest rung first.
	require.Len(t, spec.Ladder, 3)
	assert.Greater(t, spec.Ladder[0].MaxBitrate, spec.Ladder[1].MaxBitrate)
	assert.Greater(t, spec.Ladder[1].MaxBitrate, spec.Ladder[2].MaxBitrate)

	require.Len(t, refs.saved, 1)
	assert.Equal(t, ref.JobID, refs.saved[0].JobID)
}

func TestSubmitRejectsForeignKeys(t *testing.T) {
	tc := testsupport.NewTranscoder()
	s := NewSubmitter(tc, nil, "out", nil)

	for _, key := range []string{"uploads/not-a-video.mp4", "hls/" + uuid.NewString() + "/x.ts", "uploads/"} {
		_, err := s.Submit(context.Background(), events.ObjectCreated{Bucket: "b", Key: key})
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), key)
	}
	assert.Empty(t, tc.Submitted)
}

func TestSubmitFailureIsReturnedWithoutRetry(t *testing.T) {
	tc := testsupport.NewTranscoder()
	tc.SubmitErr = testsupport.ErrInjected
	refs := &refStore{}
	s := NewSubmitter(tc, refs, "out", nil)

	err := s.HandleObjectCreated(context.Background(), events.ObjectCreated{Bucket: "b", Key: storage.SourceKey(uuid.New())})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExternalService))
	assert.ErrorIs(t, err, testsupport.ErrInjected)
	assert.Empty(t, refs.saved)
}

func TestSubmitIgnoresJobRefFailure(t *testing.T) {
	tc := testsupport.NewTranscoder()
	s := NewSubmitter(tc, &refStore{err: errors.New("db down")}, "out", nil)

	ref, err := s.Submit(context.Background(), events.ObjectCreated{Bucket: "b", Key: storage.SourceKey(uuid.New())})
	require.NoError(t, err)
	assert.NotEmpty(t, ref.JobID)
}
