package s3io

import (
	"fmt"
	"path"
	"strings"
)

// Audio objects live under audio/<user|anon>/<ownerID>/<recordingID>.<ext>.
const audioPrefix = "audio"

// audioContentTypes maps the accepted upload extensions to the content type
// the presigned PUT is signed for. Browser recorders produce webm/mp4; the
// rest cover direct file uploads.
var audioContentTypes = map[string]string{
	".webm": "audio/webm",
	".mp4":  "video/mp4",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
}

// AllowedAudioExt reports whether the (lowercased) extension is accepted.
func AllowedAudioExt(ext string) bool {
	_, ok := audioContentTypes[strings.ToLower(ext)]
	return ok
}

// ContentTypeForExt returns the content type an upload with the given
// extension must be signed for.
func ContentTypeForExt(ext string) string {
	return audioContentTypes[strings.ToLower(ext)]
}

// BuildAudioKey constructs the S3 key for a recording's audio object.
// ownerKey is the storage owner key (USER#<sub> or ANON#<uuid>).
func BuildAudioKey(ownerKey, recordingID, ext string) string {
	seg := strings.ToLower(strings.Replace(ownerKey, "#", "/", 1))
	return fmt.Sprintf("%s/%s/%s%s", audioPrefix, seg, recordingID, strings.ToLower(ext))
}

// ParseAudioKey extracts the recording ID from an audio object key. Used as
// a fallback when the object metadata is missing.
func ParseAudioKey(key string) (recordingID string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != audioPrefix {
		return "", false
	}
	if parts[1] != "user" && parts[1] != "anon" {
		return "", false
	}
	base := parts[3]
	ext := path.Ext(base)
	if !AllowedAudioExt(ext) {
		return "", false
	}
	return strings.TrimSuffix(base, ext), true
}

// UploadHeaders builds the headers the client must send on the presigned PUT
// so the signature and the ingest metadata line up.
func UploadHeaders(recordingID, ownerKey, contentType string) map[string]string {
	return map[string]string{
		"Content-Type":                 contentType,
		"x-amz-meta-recording_id":      recordingID,
		"x-amz-meta-owner":             ownerKey,
		"x-amz-server-side-encryption": "aws:kms",
	}
}
