// Package grader executes single and bulk grade submissions against
// Canvas. Bulk runs fan out in bounded batches and keep going past
// individual failures; the report accounts for every requested student.
package grader

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/courses"
)

const (
	defaultMaxConcurrent = 10
	defaultBatchPause    = 500 * time.Millisecond

	// failureDetailLimit bounds the per-student detail in a report;
	// the Failed counter is always the full count.
	failureDetailLimit = 10
)

// sisUserPrefix marks student identifiers Canvas resolves server-side.
const sisUserPrefix = "sis_user_id:"

// CriterionGrade is one rubric criterion's assessment for a student.
type CriterionGrade struct {
	Points   *float64 `json:"points,omitempty"`
	RatingID string   `json:"rating_id,omitempty"`
	Comment  string   `json:"comment,omitempty"`
}

// Grade is one student's grading instruction.
type Grade struct {
	StudentID   string                    `json:"student_id"`
	PostedGrade string                    `json:"posted_grade,omitempty"`
	Comment     string                    `json:"comment,omitempty"`
	Rubric      map[string]CriterionGrade `json:"rubric,omitempty"`
}

// Failure records why one student could not be graded.
type Failure struct {
	StudentID string      `json:"student_id"`
	Code      canvas.Code `json:"code"`
	Message   string      `json:"message"`
}

// Report summarizes a bulk run. Requested always equals Graded plus
// Failed, so partial runs are visible at a glance.
type Report struct {
	JobID        string    `json:"job_id"`
	CourseID     string    `json:"course_id"`
	AssignmentID string    `json:"assignment_id"`
	Requested    int       `json:"requested"`
	Graded       int       `json:"graded"`
	Failed       int       `json:"failed"`
	DryRun       bool      `json:"dry_run"`
	DurationMS   int64     `json:"duration_ms"`
	Failures     []Failure `json:"failures,omitempty"`
}

// Runner drives grading through the gateway.
type Runner struct {
	client        *canvas.Client
	resolver      *courses.Cache
	logger        *slog.Logger
	maxConcurrent int
	batchPause    time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxConcurrent bounds in-flight grade requests per batch.
func WithMaxConcurrent(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxConcurrent = n
		}
	}
}

// WithBatchPause sets the delay between batches. Zero disables it.
func WithBatchPause(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d >= 0 {
			r.batchPause = d
		}
	}
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner builds a grading runner.
func NewRunner(client *canvas.Client, resolver *courses.Cache, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:        client,
		resolver:      resolver,
		logger:        slog.Default(),
		maxConcurrent: defaultMaxConcurrent,
		batchPause:    defaultBatchPause,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GradeOne grades a single submission and returns the (anonymized)
// submission payload Canvas responds with.
func (r *Runner) GradeOne(ctx context.Context, courseIdent, assignmentID string, g Grade) (any, error) {
	courseID, err := r.resolver.ResolveToID(ctx, courseIdent)
	if err != nil {
		return nil, err
	}
	if err := validateEntry(g); err != nil {
		return nil, err
	}
	if len(g.Rubric) > 0 {
		assignment, err := r.fetchAssignment(ctx, courseID, assignmentID)
		if err != nil {
			return nil, err
		}
		if err := r.preflightRubric(assignment); err != nil {
			return nil, err
		}
		if err := checkCriteria(assignment, g); err != nil {
			return nil, err
		}
	}
	form := canvas.EncodeSubmissionGrade(g.PostedGrade, g.Comment, rubricScores(g.Rubric))
	return r.client.Put(ctx, submissionPath(courseID, assignmentID, g.StudentID),
		&canvas.RequestOptions{Form: form})
}

// Run grades a batch. The assignment is fetched once up front: a
// missing assignment or a rubric mismatch fails the whole run before
// any grade is written. Individual failures after that point never
// abort the batch.
func (r *Runner) Run(ctx context.Context, courseIdent, assignmentID string, grades []Grade, dryRun bool) (*Report, error) {
	start := time.Now()

	courseID, err := r.resolver.ResolveToID(ctx, courseIdent)
	if err != nil {
		return nil, err
	}
	if len(grades) == 0 {
		return nil, canvas.NewError(canvas.CodeValidation, "grades list is empty").
			WithDetail("parameter", "grades")
	}

	assignment, err := r.fetchAssignment(ctx, courseID, assignmentID)
	if err != nil {
		return nil, err
	}
	if needsRubric(grades) {
		if err := r.preflightRubric(assignment); err != nil {
			return nil, err
		}
	}

	report := &Report{
		JobID:        uuid.NewString(),
		CourseID:     courseID,
		AssignmentID: assignmentID,
		Requested:    len(grades),
		DryRun:       dryRun,
	}

	var mu sync.Mutex
	valid := make([]Grade, 0, len(grades))
	for _, g := range grades {
		if err := validateEntry(g); err != nil {
			recordFailure(report, &mu, g.StudentID, err)
			continue
		}
		if err := checkCriteria(assignment, g); err != nil {
			recordFailure(report, &mu, g.StudentID, err)
			continue
		}
		valid = append(valid, g)
	}

	if dryRun {
		report.Graded = len(valid)
		report.DurationMS = time.Since(start).Milliseconds()
		r.logger.Info("bulk grade dry run",
			"job_id", report.JobID, "requested", report.Requested,
			"would_grade", report.Graded, "failed_validation", report.Failed)
		return report, nil
	}

	for batchStart := 0; batchStart < len(valid); batchStart += r.maxConcurrent {
		if err := ctx.Err(); err != nil {
			for _, g := range valid[batchStart:] {
				recordFailure(report, &mu, g.StudentID,
					canvas.WrapError(canvas.CodeTimeout, err, "batch cancelled before this student was attempted"))
			}
			break
		}

		end := batchStart + r.maxConcurrent
		if end > len(valid) {
			end = len(valid)
		}

		var g errgroup.Group
		for _, entry := range valid[batchStart:end] {
			g.Go(func() error {
				form := canvas.EncodeSubmissionGrade(entry.PostedGrade, entry.Comment, rubricScores(entry.Rubric))
				_, err := r.client.Put(ctx, submissionPath(courseID, assignmentID, entry.StudentID),
					&canvas.RequestOptions{Form: form, SkipAnonymize: true})
				if err != nil {
					recordFailure(report, &mu, entry.StudentID, err)
					return nil
				}
				mu.Lock()
				report.Graded++
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if end < len(valid) && r.batchPause > 0 {
			pause(ctx, r.batchPause)
		}
	}

	report.DurationMS = time.Since(start).Milliseconds()
	r.logger.Info("bulk grade finished",
		"job_id", report.JobID, "requested", report.Requested,
		"graded", report.Graded, "failed", report.Failed)
	return report, nil
}

func (r *Runner) fetchAssignment(ctx context.Context, courseID, assignmentID string) (canvas.Assignment, error) {
	raw, err := r.client.Do(ctx, "GET", "/courses/"+courseID+"/assignments/"+assignmentID,
		&canvas.RequestOptions{SkipAnonymize: true})
	if err != nil {
		return canvas.Assignment{}, err
	}
	assignment, err := canvas.Decode[canvas.Assignment](raw)
	if err != nil {
		return canvas.Assignment{}, canvas.WrapError(canvas.CodeCanvasAPI, err, "decode assignment %s", assignmentID)
	}
	return assignment, nil
}

// preflightRubric rejects rubric grading when Canvas would silently
// ignore the scores.
func (r *Runner) preflightRubric(a canvas.Assignment) error {
	if a.UseRubricForGrading {
		return nil
	}
	return canvas.NewError(canvas.CodeValidation,
		"assignment %q does not use its rubric for grading; rubric scores would be ignored", a.Name).
		WithDetail("assignment_id", a.ID).
		WithSuggestion("Enable 'Use this rubric for assignment grading' in Canvas, or send posted_grade instead.")
}

func validateEntry(g Grade) error {
	id := strings.TrimSpace(g.StudentID)
	if id == "" {
		return canvas.NewError(canvas.CodeValidation, "student_id is required")
	}
	if !isDigits(id) && !strings.HasPrefix(id, sisUserPrefix) {
		return canvas.NewError(canvas.CodeValidation,
			"student_id %q must be numeric or carry the sis_user_id: prefix", id)
	}
	if g.PostedGrade == "" && len(g.Rubric) == 0 {
		return canvas.NewError(canvas.CodeValidation,
			"entry for student %s has neither posted_grade nor rubric scores", id)
	}
	return nil
}

// checkCriteria validates rubric entries against the assignment's
// rubric: unknown criterion IDs and over-maximum points are rejected
// per student, before any write.
func checkCriteria(a canvas.Assignment, g Grade) error {
	if len(g.Rubric) == 0 {
		return nil
	}
	max := make(map[string]float64, len(a.Rubric))
	for _, criterion := range a.Rubric {
		max[criterion.ID] = criterion.Points
	}
	for id, score := range g.Rubric {
		limit, ok := max[id]
		if !ok {
			return canvas.NewError(canvas.CodeValidation,
				"criterion %q is not on the assignment rubric", id).
				WithDetail("criterion_id", id)
		}
		if score.Points != nil && *score.Points > limit {
			return canvas.NewError(canvas.CodeValidation,
				"criterion %q: %s points exceeds the maximum of %s",
				id, canvas.FormatPoints(*score.Points), canvas.FormatPoints(limit)).
				WithDetail("criterion_id", id)
		}
	}
	return nil
}

func needsRubric(grades []Grade) bool {
	for _, g := range grades {
		if len(g.Rubric) > 0 {
			return true
		}
	}
	return false
}

func rubricScores(in map[string]CriterionGrade) map[string]canvas.RubricScore {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]canvas.RubricScore, len(in))
	for id, cg := range in {
		out[id] = canvas.RubricScore{Points: cg.Points, RatingID: cg.RatingID, Comments: cg.Comment}
	}
	return out
}

func recordFailure(report *Report, mu *sync.Mutex, studentID string, err error) {
	code := canvas.CodeCanvasAPI
	msg := err.Error()
	if env, ok := canvas.AsError(err); ok {
		code = env.Code
		msg = env.Message
	}
	mu.Lock()
	defer mu.Unlock()
	report.Failed++
	if len(report.Failures) < failureDetailLimit {
		report.Failures = append(report.Failures, Failure{StudentID: studentID, Code: code, Message: msg})
	}
}

func submissionPath(courseID, assignmentID, studentID string) string {
	return "/courses/" + courseID + "/assignments/" + assignmentID + "/submissions/" + studentID
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
