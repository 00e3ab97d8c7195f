package sound

import (
	"path"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename reduces an uploaded file name to its base name and
// replaces every run of characters outside [A-Za-z0-9._-] with "_".
// Names that would be empty or consist only of dots become "sound".
func SanitizeFilename(name string) string {
	// Browsers on Windows may send the full client path.
	name = strings.ReplaceAll(name, `\`, "/")
	base := path.Base(name)
	safe := unsafeFilenameChars.ReplaceAllString(base, "_")
	if strings.Trim(safe, ".") == "" {
		return "sound"
	}
	return safe
}

// Ext returns the lower-cased extension of name without the leading dot.
func Ext(name string) string {
	ext := path.Ext(strings.ReplaceAll(name, `\`, "/"))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"ogg":  "audio/ogg",
	"opus": "audio/ogg",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
}

// ContentType returns the Content-Type served for a stored file name.
func ContentType(name string) string {
	if ct, ok := contentTypes[Ext(name)]; ok {
		return ct
	}
	return "application/octet-stream"
}
