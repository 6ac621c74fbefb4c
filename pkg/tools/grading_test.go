package tools_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
)

func TestGradeSubmission_PostsGradeAndComment(t *testing.T) {
	s := newStub(t)
	s.handle("PUT /api/v1/courses/101/assignments/7/submissions/4001", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "95", r.PostFormValue("submission[posted_grade]"))
		assert.Equal(t, "Nice work", r.PostFormValue("comment[text_comment]"))
		writeJSON(t, w, map[string]any{
			"id": 1, "user_id": 4001, "grade": "95", "score": 95,
			"workflow_state": "graded",
		})
	})
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "grade_submission", map[string]any{
		"course_identifier": "101",
		"assignment_id":     "7",
		"user_id":           "4001",
		"grade":             "95",
		"comment":           "Nice work",
	})
	require.NoError(t, err)
	assert.Equal(t, "Grade recorded for user 4001: grade 95 (score 95)", out)
	assert.Equal(t, int32(1), s.requests.Load(), "no assignment prefetch without a rubric")
}

func TestGradeSubmission_RubricEncodesCriteria(t *testing.T) {
	s := newStub(t)
	s.handle("GET /api/v1/courses/101/assignments/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"id": 7, "name": "Final Project", "use_rubric_for_grading": true,
			"rubric": []map[string]any{
				{"id": "_crit1", "description": "Schema design", "points": 60},
				{"id": "_crit2", "description": "Documentation", "points": 40},
			},
		})
	})
	s.handle("PUT /api/v1/courses/101/assignments/7/submissions/4001", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "55", r.PostFormValue("rubric_assessment[_crit1][points]"))
		assert.Equal(t, "r2", r.PostFormValue("rubric_assessment[_crit1][rating_id]"))
		assert.Equal(t, "solid", r.PostFormValue("rubric_assessment[_crit1][comments]"))
		assert.Equal(t, "38.5", r.PostFormValue("rubric_assessment[_crit2][points]"))
		assert.Empty(t, r.PostFormValue("submission[posted_grade]"))
		writeJSON(t, w, map[string]any{"id": 1, "user_id": 4001, "workflow_state": "graded"})
	})
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "grade_submission", map[string]any{
		"course_identifier": "101",
		"assignment_id":     "7",
		"user_id":           "4001",
		"rubric_assessment": map[string]any{
			"_crit1": map[string]any{"points": 55, "rating_id": "r2", "comments": "solid"},
			"_crit2": 38.5,
		},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Rubric criteria assessed: 2")
}

func TestGradeSubmission_RejectsUnusedRubric(t *testing.T) {
	s := newStub(t)
	s.handle("GET /api/v1/courses/101/assignments/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"id": 7, "name": "Final Project", "use_rubric_for_grading": false,
			"rubric": []map[string]any{
				{"id": "_crit1", "description": "Schema design", "points": 60},
			},
		})
	})
	deps := newTestDeps(t, s)

	_, err := runTool(t, deps, "grade_submission", map[string]any{
		"course_identifier": "101",
		"assignment_id":     "7",
		"user_id":           "4001",
		"rubric_assessment": map[string]any{"_crit1": 40},
	})
	require.Error(t, err)
	env, ok := canvas.AsError(err)
	require.True(t, ok)
	assert.Equal(t, canvas.CodeValidation, env.Code)
	assert.Contains(t, env.Message, "does not use its rubric for grading")
	assert.Zero(t, s.puts.Load(), "a failed preflight must not write any grade")
}

func TestBulkGrade_DryRunWritesNothing(t *testing.T) {
	s := newStub(t)
	s.handle("GET /api/v1/courses/101/assignments/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": 7, "name": "Final Project"})
	})
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "bulk_grade_submissions", map[string]any{
		"course_identifier": "101",
		"assignment_id":     "7",
		"grades": map[string]any{
			"4001": "95",
			"4002": map[string]any{"grade": "88", "comment": "solid"},
		},
		"dry_run": true,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "DRY RUN: no grades were submitted.")
	assert.Contains(t, out, "- Requested: 2")
	assert.Contains(t, out, "- Would grade: 2")
	assert.Contains(t, out, "- Failed: 0")
	assert.Zero(t, s.puts.Load())
}

func TestBulkGrade_ListFormGradesEveryStudent(t *testing.T) {
	s := newStub(t)
	s.handle("GET /api/v1/courses/101/assignments/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": 7, "name": "Final Project"})
	})
	for _, uid := range []string{"4001", "4002"} {
		s.handle("PUT /api/v1/courses/101/assignments/7/submissions/"+uid, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"id": 1})
		})
	}
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "bulk_grade_submissions", map[string]any{
		"course_identifier": "101",
		"assignment_id":     "7",
		"grades": []any{
			map[string]any{"student_id": "4002", "grade": "B"},
			map[string]any{"user_id": 4001, "posted_grade": "A"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Bulk grade report (job ")
	assert.Contains(t, out, "- Graded: 2")
	assert.Contains(t, out, "- Failed: 0")
	assert.Equal(t, []string{
		"/api/v1/courses/101/assignments/7/submissions/4001",
		"/api/v1/courses/101/assignments/7/submissions/4002",
	}, s.sortedPutPaths())
}

func TestBulkGrade_KeepsGoingPastValidationFailures(t *testing.T) {
	s := newStub(t)
	s.handle("GET /api/v1/courses/101/assignments/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": 7, "name": "Final Project"})
	})
	s.handle("PUT /api/v1/courses/101/assignments/7/submissions/4002", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": 1})
	})
	deps := newTestDeps(t, s)

	out, err := runTool(t, deps, "bulk_grade_submissions", map[string]any{
		"course_identifier": "101",
		"assignment_id":     "7",
		"grades": map[string]any{
			"abc":  "90",
			"4001": map[string]any{},
			"4002": "85",
		},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "- Requested: 3")
	assert.Contains(t, out, "- Graded: 1")
	assert.Contains(t, out, "- Failed: 2")
	assert.Contains(t, out, "Failures (first 2):")
	assert.Contains(t, out, `- abc: student_id "abc" must be numeric or carry the sis_user_id: prefix`)
	assert.Contains(t, out, "- 4001: entry for student 4001 has neither posted_grade nor rubric scores")
	assert.Equal(t, int32(1), s.puts.Load())
}

func TestBulkGrade_ScalarGradesPayloadIsRejected(t *testing.T) {
	s := newStub(t)
	deps := newTestDeps(t, s)

	_, err := runTool(t, deps, "bulk_grade_submissions", map[string]any{
		"course_identifier": "101",
		"assignment_id":     "7",
		"grades":            "everything",
	})
	require.Error(t, err)
	env, ok := canvas.AsError(err)
	require.True(t, ok)
	assert.Equal(t, canvas.CodeValidation, env.Code)
	assert.Contains(t, env.Message, "grades entry 0 must be an object")
	assert.Zero(t, s.requests.Load())
}

func TestBulkGrade_EmptyGradesListFailsFast(t *testing.T) {
	s := newStub(t)
	deps := newTestDeps(t, s)

	_, err := runTool(t, deps, "bulk_grade_submissions", map[string]any{
		"course_identifier": "101",
		"assignment_id":     "7",
		"grades":            []any{},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "grades list is empty")
	assert.Zero(t, s.requests.Load(), "validation precedes the assignment fetch")
}
