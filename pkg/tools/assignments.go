package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
)

func listAssignmentsSpec() Spec {
	return Spec{
		Name:        "list_assignments",
		Description: "List a course's assignments with due dates, point values, and grading backlog.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
			{Name: "bucket", Type: TypeString,
				Enum:        []string{"past", "overdue", "undated", "ungraded", "unsubmitted", "upcoming", "future"},
				Description: "Optional Canvas due-date bucket to filter by."},
		},
		Handler: listAssignments,
	}
}

func listAssignments(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	courseID, err := deps.Courses.ResolveToID(ctx, argString(args, "course_identifier"))
	if err != nil {
		return "", err
	}

	q := url.Values{}
	if bucket := argString(args, "bucket"); bucket != "" {
		q.Set("bucket", bucket)
	}
	list, err := canvas.PaginateInto[canvas.Assignment](ctx, deps.Client,
		"/courses/"+courseID+"/assignments",
		&canvas.RequestOptions{Query: q, SkipAnonymize: true})
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "No assignments found for this course.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Assignments (%d):\n", len(list))
	for _, a := range list {
		due := timeStr(a.DueAt)
		if due == "" {
			due = "no due date"
		}
		state := "unpublished"
		if a.Published {
			state = "published"
		}
		fmt.Fprintf(&b, "- [%d] %s (due: %s, points: %s, %s",
			a.ID, a.Name, due, canvas.FormatPoints(a.PointsPossible), state)
		if a.NeedsGradingCount > 0 {
			fmt.Fprintf(&b, ", needs grading: %d", a.NeedsGradingCount)
		}
		if a.PeerReviews {
			b.WriteString(", peer reviews")
		}
		b.WriteString(")\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func getAssignmentDetailsSpec() Spec {
	return Spec{
		Name:        "get_assignment_details",
		Description: "Show one assignment's settings, description, and rubric criteria.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
			{Name: "assignment_id", Type: TypeString, Required: true,
				Description: "Numeric assignment ID."},
		},
		Handler: getAssignmentDetails,
	}
}

func getAssignmentDetails(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	courseID, err := deps.Courses.ResolveToID(ctx, argString(args, "course_identifier"))
	if err != nil {
		return "", err
	}

	raw, err := deps.Client.Do(ctx, "GET",
		"/courses/"+courseID+"/assignments/"+argString(args, "assignment_id"),
		&canvas.RequestOptions{SkipAnonymize: true})
	if err != nil {
		return "", err
	}
	a, err := canvas.Decode[canvas.Assignment](raw)
	if err != nil {
		return "", canvas.WrapError(canvas.CodeCanvasAPI, err, "decode assignment")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Assignment: %s\n", a.Name)
	fmt.Fprintf(&b, "- ID: %d\n", a.ID)
	fmt.Fprintf(&b, "- Points possible: %s\n", canvas.FormatPoints(a.PointsPossible))
	if due := timeStr(a.DueAt); due != "" {
		fmt.Fprintf(&b, "- Due: %s\n", due)
	}
	if a.GradingType != "" {
		fmt.Fprintf(&b, "- Grading type: %s\n", a.GradingType)
	}
	if len(a.SubmissionTypes) > 0 {
		fmt.Fprintf(&b, "- Submission types: %s\n", strings.Join(a.SubmissionTypes, ", "))
	}
	fmt.Fprintf(&b, "- Published: %t\n", a.Published)
	if a.PeerReviews {
		fmt.Fprintf(&b, "- Peer reviews: enabled (automatic: %t)\n", a.AutomaticPeerReviews)
	}
	if a.NeedsGradingCount > 0 {
		fmt.Fprintf(&b, "- Needs grading: %d\n", a.NeedsGradingCount)
	}

	if len(a.Rubric) > 0 {
		fmt.Fprintf(&b, "Rubric (%d criteria, used for grading: %t):\n", len(a.Rubric), a.UseRubricForGrading)
		for _, cr := range a.Rubric {
			fmt.Fprintf(&b, "- %s: %s (%s pts", cr.ID, cr.Description, canvas.FormatPoints(cr.Points))
			if len(cr.Ratings) > 0 {
				fmt.Fprintf(&b, ", %d ratings", len(cr.Ratings))
			}
			b.WriteString(")\n")
		}
	}

	if desc := stripTags(a.Description); desc != "" {
		fmt.Fprintf(&b, "Description: %s\n", truncate(desc, 600))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
