package tools_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCourses_FormatsActiveCourses(t *testing.T) {
	s := newStub(t)
	var gotQuery []string
	s.handle("GET /api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = append(gotQuery, r.URL.Query().Get("enrollment_state"))
		assert.Equal(t, []string{"total_students", "term"}, r.URL.Query()["include[]"])
		writeJSON(t, w, []map[string]any{
			{"id": 101, "name": "Enterprise Database Management", "course_code": "BADM_554",
				"workflow_state": "available", "total_students": 45},
			{"id": 102, "name": "Data Storytelling", "course_code": "BADM_590",
				"workflow_state": "available"},
		})
	})
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "list_courses", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []string{"active"}, gotQuery)
	assert.Contains(t, out, "Courses (2):")
	assert.Contains(t, out, "- [101] BADM_554: Enterprise Database Management (available, 45 students)")
	assert.Contains(t, out, "- [102] BADM_590: Data Storytelling (available)")
}

func TestListCourses_AllStatesOmitsFilter(t *testing.T) {
	s := newStub(t)
	s.handle("GET /api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("enrollment_state"))
		writeJSON(t, w, []map[string]any{})
	})
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "list_courses", map[string]any{"enrollment_state": "all"})
	require.NoError(t, err)
	assert.Contains(t, out, "No courses found")
}

func TestGetCourseDetails_ByNumericID(t *testing.T) {
	s := newStub(t)
	s.handle("GET /api/v1/courses/101", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"id": 101, "name": "Enterprise Database Management", "course_code": "BADM_554",
			"sis_course_id": "badm-554-120258", "workflow_state": "available",
			"enrollment_term_id": 9, "total_students": 45,
		})
	})
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "get_course_details", map[string]any{"course_identifier": "101"})
	require.NoError(t, err)
	assert.Contains(t, out, "Course: Enterprise Database Management")
	assert.Contains(t, out, "- ID: 101")
	assert.Contains(t, out, "- Code: BADM_554")
	assert.Contains(t, out, "- SIS ID: badm-554-120258")
	assert.Contains(t, out, "- State: available")
	assert.Contains(t, out, "- Term ID: 9")
	assert.Contains(t, out, "- Students: 45")
}

func TestResolveCourse_NumericIDNeedsNoAPI(t *testing.T) {
	s := newStub(t)
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "resolve_course", map[string]any{"identifier": " 12345 "})
	require.NoError(t, err)
	assert.Contains(t, out, "Identifier: 12345")
	assert.Contains(t, out, "Canvas ID: 12345 (numeric IDs pass through unchanged)")
	assert.Zero(t, s.requests.Load(), "numeric identifiers must not hit the API")
}

func TestResolveCourse_CodeResolvesThroughCache(t *testing.T) {
	s := newStub(t)
	s.handle("GET /api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "active", r.URL.Query().Get("enrollment_state"))
		writeJSON(t, w, []map[string]any{
			{"id": 77, "name": "Enterprise Database Management", "course_code": "badm_554",
				"workflow_state": "available"},
		})
	})
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "resolve_course", map[string]any{"identifier": "badm_554"})
	require.NoError(t, err)
	assert.Contains(t, out, "Canvas ID: 77")

	// Second resolution is served from the cache.
	before := s.requests.Load()
	_, err = runTool(t, deps, "resolve_course", map[string]any{"identifier": "badm_554"})
	require.NoError(t, err)
	assert.Equal(t, before, s.requests.Load())
}

func TestResolveCourse_UnknownCodeDefersToSIS(t *testing.T) {
	s := newStub(t)
	s.handle("GET /api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{})
	})
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "resolve_course", map[string]any{"identifier": "mystery_900"})
	require.NoError(t, err)
	assert.Contains(t, out, "Resolved: sis_course_id:mystery_900")
	assert.Contains(t, out, "server-side")
}
