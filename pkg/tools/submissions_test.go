package tools_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSubmissions_PseudonymizesStudents(t *testing.T) {
	s := newStub(t)
	s.handle("GET /api/v1/courses/101/assignments/7/submissions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"user"}, r.URL.Query()["include[]"])
		writeJSON(t, w, []map[string]any{
			{"id": 1, "user_id": 4001, "workflow_state": "submitted", "score": 95,
				"submitted_at": "2026-05-01T10:00:00Z", "late": true,
				"user": map[string]any{"id": 4001, "name": "Alicia Woods", "email": "alicia@university.edu"}},
			{"id": 2, "user_id": 4002, "workflow_state": "submitted", "grade": "B+",
				"submitted_at": "2026-05-02T08:30:00Z",
				"user": map[string]any{"id": 4002, "name": "Ben Ortiz", "email": "ben@university.edu"}},
			{"id": 3, "user_id": 4003, "workflow_state": "unsubmitted", "missing": true,
				"user": map[string]any{"id": 4003, "name": "Cara Singh", "email": "cara@university.edu"}},
		})
	})
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "list_submissions", map[string]any{
		"course_identifier": "101",
		"assignment_id":     "7",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "Submissions for assignment 7 (3 total: 2 submitted, 1 unsubmitted):")
	p1 := deps.Anon.PseudonymFor(4001)
	assert.Contains(t, out, "- "+p1+": submitted, score 95, submitted 2026-05-01 10:00 UTC [late]")
	assert.Contains(t, out, deps.Anon.PseudonymFor(4002)+": submitted, grade B+")
	assert.Contains(t, out, deps.Anon.PseudonymFor(4003)+": unsubmitted [missing]")

	for _, name := range []string{"Alicia Woods", "Ben Ortiz", "Cara Singh"} {
		assert.NotContains(t, out, name)
	}
}

func TestListSubmissions_CanSkipUserInclude(t *testing.T) {
	s := newStub(t)
	s.handle("GET /api/v1/courses/101/assignments/7/submissions", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query()["include[]"])
		writeJSON(t, w, []map[string]any{
			{"id": 1, "user_id": 4001, "workflow_state": "graded", "score": 88},
		})
	})
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "list_submissions", map[string]any{
		"course_identifier": "101",
		"assignment_id":     "7",
		"include_user":      "no",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "- user 4001: graded, score 88")
}

func TestGetSubmission_RendersRubricAndComments(t *testing.T) {
	s := newStub(t)
	s.handle("GET /api/v1/courses/101/assignments/7/submissions/4001", func(w http.ResponseWriter, r *http.Request) {
		include := r.URL.Query()["include[]"]
		assert.ElementsMatch(t, []string{"user", "submission_comments", "rubric_assessment"}, include)
		writeJSON(t, w, map[string]any{
			"id": 1, "user_id": 4001, "workflow_state": "graded",
			"score": 92.5, "grade": "A-", "attempt": 2,
			"submitted_at": "2026-05-01T10:00:00Z", "graded_at": "2026-05-03T16:20:00Z",
			"user": map[string]any{"id": 4001, "name": "Alicia Woods", "email": "alicia@university.edu"},
			"rubric_assessment": map[string]any{
				"_crit1": map[string]any{"points": 60, "comments": "Clean schema"},
				"_crit2": map[string]any{"points": 32.5, "rating_id": "r2"},
			},
			"submission_comments": []map[string]any{
				{"id": 90, "comment": "Nice normalization work.",
					"author": map[string]any{"id": 5001, "display_name": "Prof. Reyes"}},
			},
		})
	})
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "get_submission", map[string]any{
		"course_identifier": "101",
		"assignment_id":     "7",
		"user_id":           "4001",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "Submission by "+deps.Anon.PseudonymFor(4001))
	assert.Contains(t, out, "- State: graded")
	assert.Contains(t, out, "- Score: 92.5")
	assert.Contains(t, out, "- Grade: A-")
	assert.Contains(t, out, "- Submitted: 2026-05-01 10:00 UTC")
	assert.Contains(t, out, "- Graded: 2026-05-03 16:20 UTC")
	assert.Contains(t, out, "- Attempt: 2")

	assert.Contains(t, out, "Rubric assessment (2 criteria):")
	assert.Contains(t, out, "- _crit1: 60 pts (Clean schema)")
	assert.Contains(t, out, "- _crit2: 32.5 pts")

	assert.Contains(t, out, "Comments (1):")
	assert.Contains(t, out, "- "+deps.Anon.PseudonymFor(5001)+": Nice normalization work.")
	assert.NotContains(t, out, "Alicia Woods")
	assert.NotContains(t, out, "Prof. Reyes")
}
