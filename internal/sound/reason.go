// ABOUTME: Closed set of user-facing failure reasons for chime upload and serving
// ABOUTME: Each reason maps to one HTTP status code

package sound

import "net/http"

// Reason identifies why an upload or serve request failed.
type Reason string

// Failure reasons. The empty Reason means success.
const (
	ReasonNone      Reason = ""
	ReasonNoFile    Reason = "nofile"
	ReasonUpload    Reason = "upload"
	ReasonExt       Reason = "ext"
	ReasonSize      Reason = "size"
	ReasonMove      Reason = "move"
	ReasonCSRF      Reason = "csrf"
	ReasonForbidden Reason = "forbidden"
	ReasonNotFound  Reason = "notfound"
)

// Reasons lists every failure reason.
var Reasons = []Reason{
	ReasonNoFile, ReasonUpload, ReasonExt, ReasonSize, ReasonMove,
	ReasonCSRF, ReasonForbidden, ReasonNotFound,
}

// Status returns the HTTP status code for r.
func (r Reason) Status() int {
	switch r {
	case ReasonNone:
		return http.StatusOK
	case ReasonNoFile, ReasonUpload:
		return http.StatusBadRequest
	case ReasonExt:
		return http.StatusUnsupportedMediaType
	case ReasonSize:
		return http.StatusRequestEntityTooLarge
	case ReasonCSRF, ReasonForbidden:
		return http.StatusForbidden
	case ReasonNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// MessageKey is the i18n catalog key of the user-facing message for r.
func (r Reason) MessageKey() string {
	if r == ReasonNone {
		return "chime.upload.ok"
	}
	return "chime.err." + string(r)
}

// Error lets a Reason travel through error returns.
func (r Reason) Error() string {
	return "chime: " + string(r)
}
