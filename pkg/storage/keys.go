package storage

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// Object key layout shared by the upload API, the transcode job builder,
// the reconciler and the replication engine.
const (
	UploadPrefix    = "uploads/"
	HLSRoot         = "hls/"
	ThumbnailRoot   = "thumbs/"
	SourceExtension = ".mp4"

	// ThumbnailFrameSuffix is appended by the transcoder's frame capture output
	// to the thumbnail destination; the first frame is always .0000000.
	ThumbnailFrameSuffix = ".0000000"
	ThumbnailExtension   = ".jpg"
)

// SourceKey returns the key the original upload is written to.
func SourceKey(videoID uuid.UUID) string {
	return UploadPrefix + videoID.String() + SourceExtension
}

// VideoIDFromSourceKey extracts the video ID from an upload key: the last path
// element without its extension. ok is false when that is not a UUID.
func VideoIDFromSourceKey(key string) (uuid.UUID, bool) {
	name := path.Base(key)
	name = strings.TrimSuffix(name, path.Ext(name))
	id, err := uuid.Parse(name)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// HLSPrefix is the flat directory holding a video's manifests and segments.
func HLSPrefix(videoID uuid.UUID) string {
	return HLSRoot + videoID.String() + "/"
}

// MasterManifestKey is the HLS master playlist written by the transcoder.
func MasterManifestKey(videoID uuid.UUID) string {
	return HLSPrefix(videoID) + videoID.String() + ".m3u8"
}

// ThumbnailPrefix is the frame capture destination; it also prefixes every
// thumbnail object of the video.
func ThumbnailPrefix(videoID uuid.UUID) string {
	return ThumbnailRoot + videoID.String() + "_"
}

// ThumbnailKey is the first captured frame.
func ThumbnailKey(videoID uuid.UUID) string {
	return ThumbnailPrefix(videoID) + ThumbnailFrameSuffix + ThumbnailExtension
}

// CDNHost reduces a configured CDN domain to its bare host, dropping any
// scheme and trailing slashes.
func CDNHost(domain string) string {
	domain = strings.TrimSpace(domain)
	for _, scheme := range []string{"https://", "http://"} {
		if len(domain) >= len(scheme) && strings.EqualFold(domain[:len(scheme)], scheme) {
			domain = domain[len(scheme):]
			break
		}
	}
	return strings.TrimRight(domain, "/")
}

// CDNURL builds the public https URL of key behind domain.
func CDNURL(domain, key string) string {
	return "https://" + CDNHost(domain) + "/" + strings.TrimPrefix(key, "/")
}

// S3URI formats an s3:// location as the transcoder expects it.
func S3URI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
