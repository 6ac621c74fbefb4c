package tools

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/grader"
)

func gradeSubmissionSpec() Spec {
	return Spec{
		Name:        "grade_submission",
		Description: "Grade one student's submission with a score, a rubric assessment, or both, plus an optional comment.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
			{Name: "assignment_id", Type: TypeString, Required: true,
				Description: "Numeric assignment ID."},
			{Name: "user_id", Type: TypeString, Required: true,
				Description: "Numeric Canvas user ID or sis_user_id: identifier."},
			{Name: "grade", Type: TypeString,
				Description: "Posted grade: points, percentage, or letter, as the assignment's grading type expects."},
			{Name: "comment", Type: TypeString,
				Description: "Optional text comment attached to the submission."},
			{Name: "rubric_assessment", Type: TypeMap,
				Description: "Criterion ID to {points, rating_id?, comments?}; a bare number is shorthand for points."},
		},
		Handler: gradeSubmission,
	}
}

func gradeSubmission(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	g := grader.Grade{
		StudentID:   argString(args, "user_id"),
		PostedGrade: argString(args, "grade"),
		Comment:     argString(args, "comment"),
	}
	if ra := argMap(args, "rubric_assessment"); len(ra) > 0 {
		rubric, err := parseRubric(g.StudentID, ra)
		if err != nil {
			return "", err
		}
		g.Rubric = rubric
	}

	raw, err := deps.Grader.GradeOne(ctx,
		argString(args, "course_identifier"), argString(args, "assignment_id"), g)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Grade recorded for %s", submitterLabel(asMap(raw)))
	if m := asMap(raw); m != nil {
		if grade := strAt(m, "grade"); grade != "" {
			fmt.Fprintf(&b, ": grade %s", grade)
		}
		if score, ok := numAt(m, "score"); ok {
			fmt.Fprintf(&b, " (score %s)", canvas.FormatPoints(score))
		}
	}
	if len(g.Rubric) > 0 {
		fmt.Fprintf(&b, "\nRubric criteria assessed: %d", len(g.Rubric))
	}
	return b.String(), nil
}

func bulkGradeSubmissionsSpec() Spec {
	return Spec{
		Name:        "bulk_grade_submissions",
		Description: "Grade many submissions in one batched run; supports rubric assessments and a dry-run preview.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
			{Name: "assignment_id", Type: TypeString, Required: true,
				Description: "Numeric assignment ID."},
			{Name: "grades", Variants: []Type{TypeMap, TypeList}, Required: true,
				Description: "Either {user_id: grade-entry} or a list of entries with student_id; an entry holds grade, comment, and/or rubric_assessment."},
			{Name: "dry_run", Type: TypeBool, Default: false,
				Description: "Validate and summarize without submitting any grade."},
		},
		Handler: bulkGradeSubmissions,
	}
}

func bulkGradeSubmissions(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	grades, err := parseGrades(args["grades"])
	if err != nil {
		return "", err
	}

	report, err := deps.Grader.Run(ctx,
		argString(args, "course_identifier"), argString(args, "assignment_id"),
		grades, argBool(args, "dry_run"))
	if err != nil {
		return "", err
	}
	return formatReport(report), nil
}

func formatReport(r *grader.Report) string {
	var b strings.Builder
	if r.DryRun {
		b.WriteString("DRY RUN: no grades were submitted.\n")
	}
	fmt.Fprintf(&b, "Bulk grade report (job %s)\n", r.JobID)
	fmt.Fprintf(&b, "- Requested: %d\n", r.Requested)
	if r.DryRun {
		fmt.Fprintf(&b, "- Would grade: %d\n", r.Graded)
	} else {
		fmt.Fprintf(&b, "- Graded: %d\n", r.Graded)
	}
	fmt.Fprintf(&b, "- Failed: %d\n", r.Failed)
	fmt.Fprintf(&b, "- Duration: %dms\n", r.DurationMS)
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "Failures (first %d):\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "- %s: %s\n", f.StudentID, f.Message)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// parseGrades accepts the two wire shapes the tool declares: a map of
// user ID to entry, or a list of entries naming their student.
func parseGrades(v any) ([]grader.Grade, error) {
	switch grades := v.(type) {
	case map[string]any:
		out := make([]grader.Grade, 0, len(grades))
		for _, uid := range sortedKeys(grades) {
			g, err := parseGradeEntry(uid, grades[uid])
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		return out, nil
	case []any:
		out := make([]grader.Grade, 0, len(grades))
		for i, item := range grades {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, canvas.NewError(canvas.CodeValidation,
					"grades entry %d must be an object", i)
			}
			uid := studentIdent(m)
			if uid == "" {
				return nil, canvas.NewError(canvas.CodeValidation,
					"grades entry %d is missing student_id", i)
			}
			g, err := parseGradeEntry(uid, m)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		// Deterministic batch order regardless of host ordering.
		sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
		return out, nil
	}
	return nil, canvas.NewError(canvas.CodeValidation,
		"grades must be an object keyed by user ID or a list of entries")
}

func parseGradeEntry(studentID string, v any) (grader.Grade, error) {
	g := grader.Grade{StudentID: studentID}
	switch entry := v.(type) {
	case string:
		g.PostedGrade = entry
	case float64:
		g.PostedGrade = canvas.FormatPoints(entry)
	case map[string]any:
		g.PostedGrade = gradeValue(entry, "posted_grade", "grade")
		g.Comment = strAt(entry, "comment")
		ra := asMap(entry["rubric_assessment"])
		if ra == nil {
			ra = asMap(entry["rubric"])
		}
		if len(ra) > 0 {
			rubric, err := parseRubric(studentID, ra)
			if err != nil {
				return grader.Grade{}, err
			}
			g.Rubric = rubric
		}
	default:
		return grader.Grade{}, canvas.NewError(canvas.CodeValidation,
			"grade entry for %s must be a grade value or an object", studentID).
			WithDetail("student", studentID)
	}
	return g, nil
}

// parseRubric converts a wire rubric assessment into grader criterion
// grades. A bare number is shorthand for {points: n}.
func parseRubric(studentID string, ra map[string]any) (map[string]grader.CriterionGrade, error) {
	out := make(map[string]grader.CriterionGrade, len(ra))
	for id, v := range ra {
		switch entry := v.(type) {
		case float64:
			p := entry
			out[id] = grader.CriterionGrade{Points: &p}
		case string:
			p, err := strconv.ParseFloat(strings.TrimSpace(entry), 64)
			if err != nil {
				return nil, rubricEntryError(studentID, id)
			}
			out[id] = grader.CriterionGrade{Points: &p}
		case map[string]any:
			cg := grader.CriterionGrade{
				RatingID: strAt(entry, "rating_id"),
				Comment:  firstString(entry, "comments", "comment"),
			}
			if pts, ok := rubricPoints(entry); ok {
				cg.Points = &pts
			}
			out[id] = cg
		default:
			return nil, rubricEntryError(studentID, id)
		}
	}
	return out, nil
}

func rubricPoints(entry map[string]any) (float64, bool) {
	switch p := entry["points"].(type) {
	case float64:
		return p, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(p), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func rubricEntryError(studentID, criterionID string) error {
	return canvas.NewError(canvas.CodeValidation,
		"rubric criterion %s must map to points or a {points, rating_id, comments} object", criterionID).
		WithDetail("student", studentID).
		WithDetail("criterion", criterionID)
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := strAt(m, k); s != "" {
			return s
		}
	}
	return ""
}

// gradeValue reads a posted grade that may arrive as a string ("95%",
// "A-") or a bare number.
func gradeValue(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return canvas.FormatPoints(v)
		}
	}
	return ""
}

// studentIdent pulls the student identifier from a list-form grade
// entry, tolerating numeric IDs the host sent as JSON numbers.
func studentIdent(m map[string]any) string {
	for _, key := range []string{"student_id", "user_id"} {
		switch v := m[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}
