package transcoder

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
)

// DefaultLadder is the HLS ladder, highest quality first.
var DefaultLadder = []Rendition{
	{Name: "1080p", Width: 1920, Height: 1080, MaxBitrate: 4_000_000, Profile: types.H264CodecProfileHigh, Level: types.H264CodecLevelLevel41, AudioBitrate: 128_000},
	{Name: "720p", Width: 1280, Height: 720, MaxBitrate: 2_200_000, Profile: types.H264CodecProfileHigh, Level: types.H264CodecLevelLevel4, AudioBitrate: 96_000},
	{Name: "360p", Width: 640, Height: 360, MaxBitrate: 1_200_000, Profile: types.H264CodecProfileMain, Level: types.H264CodecLevelLevel31, AudioBitrate: 96_000},
}

const (
	audioSampleRate  = 48_000
	thumbnailQuality = 80
)

// BuildJobSettings renders spec as MediaConvert job settings: one HLS group
// holding the ladder and one frame capture group producing a single thumbnail.
func BuildJobSettings(spec JobSpec) *types.JobSettings {
	outputs := make([]types.Output, 0, len(spec.Ladder))
	for _, r := range spec.Ladder {
		outputs = append(outputs, hlsOutput(r, spec.GOPSeconds))
	}
	return &types.JobSettings{
		Inputs: []types.Input{{
			FileInput: aws.String(spec.InputURI),
			AudioSelectors: map[string]types.AudioSelector{
				"Audio Selector 1": {DefaultSelection: types.AudioDefaultSelectionDefault},
			},
			VideoSelector: &types.VideoSelector{},
		}},
		OutputGroups: []types.OutputGroup{
			{
				Name: aws.String("HLS Group"),
				OutputGroupSettings: &types.OutputGroupSettings{
					Type: types.OutputGroupTypeHlsGroupSettings,
					HlsGroupSettings: &types.HlsGroupSettings{
						Destination:            aws.String(spec.HLSDestination),
						SegmentLength:          aws.Int32(spec.SegmentSeconds),
						MinSegmentLength:       aws.Int32(0),
						ManifestDurationFormat: types.HlsManifestDurationFormatInteger,
						SegmentControl:         types.HlsSegmentControlSegmentedFiles,
						DirectoryStructure:     types.HlsDirectoryStructureSingleDirectory,
					},
				},
				Outputs: outputs,
			},
			{
				Name: aws.String("Thumbnail Group"),
				OutputGroupSettings: &types.OutputGroupSettings{
					Type: types.OutputGroupTypeFileGroupSettings,
					FileGroupSettings: &types.FileGroupSettings{
						Destination: aws.String(spec.ThumbnailDestination),
					},
				},
				Outputs: []types.Output{{
					ContainerSettings: &types.ContainerSettings{Container: types.ContainerTypeRaw},
					VideoDescription: &types.VideoDescription{
						CodecSettings: &types.VideoCodecSettings{
							Codec: types.VideoCodecFrameCapture,
							FrameCaptureSettings: &types.FrameCaptureSettings{
								FramerateNumerator:   aws.Int32(1),
								FramerateDenominator: aws.Int32(1),
								MaxCaptures:          aws.Int32(1),
								Quality:              aws.Int32(thumbnailQuality),
							},
						},
					},
				}},
			},
		},
	}
}

func hlsOutput(r Rendition, gopSeconds float64) types.Output {
	return types.Output{
		NameModifier:      aws.String("_" + r.Name),
		ContainerSettings: &types.ContainerSettings{Container: types.ContainerTypeM3u8},
		VideoDescription: &types.VideoDescription{
			Width:  aws.Int32(r.Width),
			Height: aws.Int32(r.Height),
			CodecSettings: &types.VideoCodecSettings{
				Codec: types.VideoCodecH264,
				H264Settings: &types.H264Settings{
					MaxBitrate:         aws.Int32(r.MaxBitrate),
					RateControlMode:    types.H264RateControlModeQvbr,
					QualityTuningLevel: types.H264QualityTuningLevelSinglePassHq,
					SceneChangeDetect:  types.H264SceneChangeDetectTransitionDetection,
					CodecProfile:       r.Profile,
					CodecLevel:         r.Level,
					GopSize:            aws.Float64(gopSeconds),
					GopSizeUnits:       types.H264GopSizeUnitsSeconds,
				},
			},
		},
		AudioDescriptions: []types.AudioDescription{{
			CodecSettings: &types.AudioCodecSettings{
				Codec: types.AudioCodecAac,
				AacSettings: &types.AacSettings{
					Bitrate:    aws.Int32(r.AudioBitrate),
					CodingMode: types.AacCodingModeCodingMode20,
					SampleRate: aws.Int32(audioSampleRate),
				},
			},
		}},
	}
}

// LadderNames returns the rendition names in ladder order.
func LadderNames(ladder []Rendition) []string {
	names := make([]string, len(ladder))
	for i, r := range ladder {
		names[i] = r.Name
	}
	return names
}
