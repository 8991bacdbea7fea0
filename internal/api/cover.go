package api

import "strings"

// coverUploadLimit bounds the multipart body of a cover upload. It leaves
// headroom above the image ceiling so an oversized image still reaches the
// composer and is reported against the coverImage field.
func coverUploadLimit(maxCover int64) int64 {
	return 2*maxCover + 1<<20
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
