package grader_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/anonymizer"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/courses"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/grader"
)

const assignmentJSON = `{
	"id": 1440586,
	"name": "Lab Report 3",
	"course_id": 60366,
	"points_possible": 15,
	"use_rubric_for_grading": true,
	"rubric": [
		{"id": "crit_1", "description": "Analysis", "points": 10},
		{"id": "crit_2", "description": "Style", "points": 5}
	]
}`

type gradeServer struct {
	srv         *httptest.Server
	assignment  atomic.Value // string
	putCalls    atomic.Int32
	getCalls    atomic.Int32
	inflight    atomic.Int32
	maxInflight atomic.Int32
	putDelay    time.Duration

	// failStudents maps student ID to an HTTP status to return.
	failStudents map[string]int
}

func newGradeServer(t *testing.T) *gradeServer {
	t.Helper()
	gs := &gradeServer{failStudents: map[string]int{}}
	gs.assignment.Store(assignmentJSON)
	gs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/assignments/1440586"):
			gs.getCalls.Add(1)
			_, _ = io.WriteString(w, gs.assignment.Load().(string))

		case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/submissions/"):
			gs.putCalls.Add(1)
			cur := gs.inflight.Add(1)
			for {
				prev := gs.maxInflight.Load()
				if cur <= prev || gs.maxInflight.CompareAndSwap(prev, cur) {
					break
				}
			}
			if gs.putDelay > 0 {
				time.Sleep(gs.putDelay)
			}
			gs.inflight.Add(-1)

			student := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			if status, ok := gs.failStudents[student]; ok {
				w.WriteHeader(status)
				_, _ = io.WriteString(w, `{"errors":[{"message":"grade is out of range"}]}`)
				return
			}
			require.NoError(t, r.ParseForm())
			fmt.Fprintf(w, `{"id": 1, "user_id": %q, "grade": %q, "user": {"id": %q, "name": "Jane Doe"}}`,
				student, r.PostForm.Get("submission[posted_grade]"), student)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(gs.srv.Close)
	return gs
}

func newRunner(t *testing.T, gs *gradeServer, anonymize bool, opts ...grader.RunnerOption) *grader.Runner {
	t.Helper()
	copts := canvas.Options{
		BaseURL: gs.srv.URL + "/api/v1",
		Token:   "tok",
		Limiter: canvas.NewAdaptiveLimiter(1000, 1, 1000, 1000),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if anonymize {
		copts.Anonymizer = anonymizer.New()
	}
	client, err := canvas.New(copts)
	require.NoError(t, err)

	resolver := courses.NewCache(client, time.Hour, copts.Logger)
	opts = append([]grader.RunnerOption{
		grader.WithBatchPause(0),
		grader.WithLogger(copts.Logger),
	}, opts...)
	return grader.NewRunner(client, resolver, opts...)
}

func TestRun_ContinuesPastIndividualFailures(t *testing.T) {
	gs := newGradeServer(t)
	gs.failStudents["9825"] = http.StatusUnprocessableEntity
	r := newRunner(t, gs, false)

	report, err := r.Run(t.Context(), "60366", "1440586", []grader.Grade{
		{StudentID: "9824", PostedGrade: "14"},
		{StudentID: "9825", PostedGrade: "99"},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Requested)
	assert.Equal(t, 1, report.Graded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "9825", report.Failures[0].StudentID)
	assert.Equal(t, canvas.CodeInvalidParameter, report.Failures[0].Code)
	assert.Contains(t, report.Failures[0].Message, "out of range")
	assert.EqualValues(t, 2, gs.putCalls.Load())
	assert.NotEmpty(t, report.JobID)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	gs := newGradeServer(t)
	r := newRunner(t, gs, false)

	report, err := r.Run(t.Context(), "60366", "1440586", []grader.Grade{
		{StudentID: "9824", PostedGrade: "14"},
		{StudentID: "9825", PostedGrade: "12"},
	}, true)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Graded)
	assert.Equal(t, 0, report.Failed)
	assert.EqualValues(t, 0, gs.putCalls.Load())
	// The read-only preflight still happens.
	assert.EqualValues(t, 1, gs.getCalls.Load())
}

func TestRun_RubricPreflightFailsWholeBatch(t *testing.T) {
	gs := newGradeServer(t)
	gs.assignment.Store(`{"id": 1440586, "name": "Lab Report 3", "use_rubric_for_grading": false,
		"rubric": [{"id": "crit_1", "points": 10}]}`)
	r := newRunner(t, gs, false)

	pts := 8.0
	_, err := r.Run(t.Context(), "60366", "1440586", []grader.Grade{
		{StudentID: "9824", Rubric: map[string]grader.CriterionGrade{"crit_1": {Points: &pts}}},
	}, false)

	require.ErrorIs(t, err, &canvas.Error{Code: canvas.CodeValidation})
	assert.Contains(t, err.Error(), "rubric")
	assert.EqualValues(t, 0, gs.putCalls.Load())
}

func TestRun_UnknownCriterionFailsOnlyThatStudent(t *testing.T) {
	gs := newGradeServer(t)
	r := newRunner(t, gs, false)

	pts := 8.0
	report, err := r.Run(t.Context(), "60366", "1440586", []grader.Grade{
		{StudentID: "9824", Rubric: map[string]grader.CriterionGrade{"crit_99": {Points: &pts}}},
		{StudentID: "9825", PostedGrade: "12"},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Graded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "9824", report.Failures[0].StudentID)
	assert.Contains(t, report.Failures[0].Message, "not on the assignment rubric")
	assert.EqualValues(t, 1, gs.putCalls.Load())
}

func TestRun_PointsOverCriterionMaximumRejected(t *testing.T) {
	gs := newGradeServer(t)
	r := newRunner(t, gs, false)

	pts := 12.0
	report, err := r.Run(t.Context(), "60366", "1440586", []grader.Grade{
		{StudentID: "9824", Rubric: map[string]grader.CriterionGrade{"crit_1": {Points: &pts}}},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Graded)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Failures[0].Message, "exceeds the maximum")
	assert.EqualValues(t, 0, gs.putCalls.Load())
}

func TestRun_BatchesBoundConcurrency(t *testing.T) {
	gs := newGradeServer(t)
	gs.putDelay = 30 * time.Millisecond
	r := newRunner(t, gs, false, grader.WithMaxConcurrent(2))

	grades := make([]grader.Grade, 5)
	for i := range grades {
		grades[i] = grader.Grade{StudentID: fmt.Sprintf("100%d", i), PostedGrade: "10"}
	}
	report, err := r.Run(t.Context(), "60366", "1440586", grades, false)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Graded)
	assert.EqualValues(t, 5, gs.putCalls.Load())
	assert.LessOrEqual(t, gs.maxInflight.Load(), int32(2))
}

func TestRun_EmptyGradesRejected(t *testing.T) {
	gs := newGradeServer(t)
	r := newRunner(t, gs, false)

	_, err := r.Run(t.Context(), "60366", "1440586", nil, false)
	require.ErrorIs(t, err, &canvas.Error{Code: canvas.CodeValidation})
}

func TestRun_MalformedStudentIDNeverReachesCanvas(t *testing.T) {
	gs := newGradeServer(t)
	r := newRunner(t, gs, false)

	report, err := r.Run(t.Context(), "60366", "1440586", []grader.Grade{
		{StudentID: "robert'); drop", PostedGrade: "10"},
		{StudentID: "sis_user_id:jdoe2", PostedGrade: "10"},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Graded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, canvas.CodeValidation, report.Failures[0].Code)
	assert.EqualValues(t, 1, gs.putCalls.Load())
}

func TestRun_FailureDetailCapped(t *testing.T) {
	gs := newGradeServer(t)
	grades := make([]grader.Grade, 12)
	for i := range grades {
		id := fmt.Sprintf("90%02d", i)
		gs.failStudents[id] = http.StatusUnprocessableEntity
		grades[i] = grader.Grade{StudentID: id, PostedGrade: "10"}
	}
	r := newRunner(t, gs, false, grader.WithMaxConcurrent(3))

	report, err := r.Run(t.Context(), "60366", "1440586", grades, false)
	require.NoError(t, err)

	assert.Equal(t, 12, report.Failed)
	assert.Len(t, report.Failures, 10)
	assert.Equal(t, report.Requested, report.Graded+report.Failed)
}

func TestGradeOne_ReturnsAnonymizedSubmission(t *testing.T) {
	gs := newGradeServer(t)
	r := newRunner(t, gs, true)

	out, err := r.GradeOne(t.Context(), "60366", "1440586",
		grader.Grade{StudentID: "9824", PostedGrade: "14", Comment: "Solid work"})
	require.NoError(t, err)

	payload, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "Jane Doe")
	assert.Contains(t, string(payload), "Student_")
}

func TestGradeOne_ValidatesRubricAgainstAssignment(t *testing.T) {
	gs := newGradeServer(t)
	r := newRunner(t, gs, false)

	pts := 99.0
	_, err := r.GradeOne(t.Context(), "60366", "1440586",
		grader.Grade{StudentID: "9824", Rubric: map[string]grader.CriterionGrade{"crit_1": {Points: &pts}}})

	require.ErrorIs(t, err, &canvas.Error{Code: canvas.CodeValidation})
	assert.EqualValues(t, 0, gs.putCalls.Load())
}
