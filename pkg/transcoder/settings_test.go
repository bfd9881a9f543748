package transcoder

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildJobSettings(t *testing.T) {
	spec := JobSpec{
		InputURI:             "s3://src/uploads/v.mp4",
		HLSDestination:       "s3://out/hls/v/",
		ThumbnailDestination: "s3://out/thumbs/v_",
		Ladder:               DefaultLadder,
		SegmentSeconds:       4,
		GOPSeconds:           2,
	}

	settings := BuildJobSettings(spec)

	require.Len(t, settings.Inputs, 1)
	assert.Equal(t, "s3://src/uploads/v.mp4", aws.ToString(settings.Inputs[0].FileInput))
	require.Len(t, settings.OutputGroups, 2)

	hls := settings.OutputGroups[0]
	assert.Equal(t, types.OutputGroupTypeHlsGroupSettings, hls.OutputGroupSettings.Type)
	assert.Equal(t, "s3://out/hls/v/", aws.ToString(hls.OutputGroupSettings.HlsGroupSettings.Destination))
	assert.Equal(t, int32(4), aws.ToInt32(hls.OutputGroupSettings.HlsGroupSettings.SegmentLength))
	assert.Equal(t, types.HlsDirectoryStructureSingleDirectory, hls.OutputGroupSettings.HlsGroupSettings.DirectoryStructure)

	require.Len(t, hls.Outputs, 3)
	wantHeights := []int32{1080, 720, 360}
	for i, out := range hls.Outputs {
		assert.Equal(t, wantHeights[i], aws.ToInt32(out.VideoDescription.Height))
		h264 := out.VideoDescription.CodecSettings.H264Settings
		assert.Equal(t, types.H264RateControlModeQvbr, h264.RateControlMode)
		assert.Equal(t, 2.0, aws.ToFloat64(h264.GopSize))
	}
	assert.Equal(t, int32(4_000_000), aws.ToInt32(hls.Outputs[0].VideoDescription.CodecSettings.H264Settings.MaxBitrate))
	assert.Equal(t, types.H264CodecProfileMain, hls.Outputs[2].VideoDescription.CodecSettings.H264Settings.CodecProfile)
	assert.Equal(t, "_720p", aws.ToString(hls.Outputs[1].NameModifier))

	thumbs := settings.OutputGroups[1]
	assert.Equal(t, "s3://out/thumbs/v_", aws.ToString(thumbs.OutputGroupSettings.FileGroupSettings.Destination))
	require.Len(t, thumbs.Outputs, 1)
	capture := thumbs.Outputs[0].VideoDescription.CodecSettings.FrameCaptureSettings
	assert.Equal(t, int32(1), aws.ToInt32(capture.MaxCaptures))
	assert.Equal(t, int32(80), aws.ToInt32(capture.Quality))
}

func TestJobFromAPIDuration(t *testing.T) {
	j := jobFromAPI(&types.Job{
		Id:           aws.String("job-1"),
		Status:       types.JobStatusComplete,
		UserMetadata: map[string]string{MetadataVideoID: "abc"},
		OutputGroupDetails: []types.OutputGroupDetail{
			{OutputDetails: []types.OutputDetail{{DurationInMs: aws.Int32(125_999)}}},
		},
	})

	assert.Equal(t, "job-1", j.ID)
	assert.Equal(t, "COMPLETE", j.Status)
	assert.Equal(t, int64(125_999), j.DurationMs)
	assert.Equal(t, "abc", j.Metadata[MetadataVideoID])
}

func TestLadderNames(t *testing.T) {
	assert.Equal(t, []string{"1080p", "720p", "360p"}, LadderNames(DefaultLadder))
}
