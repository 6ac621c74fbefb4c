package anonymizer

import "strings"

// studentMarkers flag endpoints whose responses carry student identities.
var studentMarkers = []string{
	"/users",
	"/discussion",
	"/submissions",
	"/enrollments",
	"/groups",
	"/analytics",
}

// IsStudentBearing reports whether responses from an endpoint must pass
// through anonymization. Course, account, and term endpoints are content
// reads and stay clear unless they drill into a /users sub-resource;
// discussion entry listings always carry author identities.
func IsStudentBearing(endpoint string) bool {
	p := strings.ToLower(endpoint)
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if strings.Contains(p, "/discussion") && strings.Contains(p, "/entries") {
		return true
	}
	for _, marker := range studentMarkers {
		if strings.Contains(p, marker) {
			return true
		}
	}
	return false
}
