package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
)

func listSubmissionsSpec() Spec {
	return Spec{
		Name:        "list_submissions",
		Description: "List an assignment's submissions with state, score, and timing; students appear as pseudonyms.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
			{Name: "assignment_id", Type: TypeString, Required: true,
				Description: "Numeric assignment ID."},
			{Name: "include_user", Type: TypeBool, Default: true,
				Description: "Attach the (pseudonymized) user record to each submission."},
		},
		Handler: listSubmissions,
	}
}

func listSubmissions(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	courseID, err := deps.Courses.ResolveToID(ctx, argString(args, "course_identifier"))
	if err != nil {
		return "", err
	}
	assignmentID := argString(args, "assignment_id")

	q := url.Values{}
	if argBool(args, "include_user") {
		q.Add("include[]", "user")
	}
	items, err := deps.Client.Paginate(ctx,
		"/courses/"+courseID+"/assignments/"+assignmentID+"/submissions",
		&canvas.RequestOptions{Query: q})
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "No submissions found for this assignment.", nil
	}

	counts := map[string]int{}
	var b strings.Builder
	for _, item := range items {
		m := asMap(item)
		state := strAt(m, "workflow_state")
		counts[state]++

		fmt.Fprintf(&b, "- %s: %s", submitterLabel(m), stateOrUnknown(state))
		if score, ok := numAt(m, "score"); ok {
			fmt.Fprintf(&b, ", score %s", canvas.FormatPoints(score))
		} else if grade := strAt(m, "grade"); grade != "" {
			fmt.Fprintf(&b, ", grade %s", grade)
		}
		if at := formatDate(strAt(m, "submitted_at")); at != "" {
			fmt.Fprintf(&b, ", submitted %s", at)
		}
		for _, flag := range []string{"late", "missing", "excused"} {
			if boolAt(m, flag) {
				fmt.Fprintf(&b, " [%s]", flag)
			}
		}
		b.WriteString("\n")
	}

	head := fmt.Sprintf("Submissions for assignment %s (%d total%s):\n",
		assignmentID, len(items), summarizeCounts(counts))
	return head + strings.TrimRight(b.String(), "\n"), nil
}

func getSubmissionSpec() Spec {
	return Spec{
		Name:        "get_submission",
		Description: "Show one student's submission: state, score, rubric assessment, and comments.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
			{Name: "assignment_id", Type: TypeString, Required: true,
				Description: "Numeric assignment ID."},
			{Name: "user_id", Type: TypeString, Required: true,
				Description: "Numeric Canvas user ID or sis_user_id: identifier."},
		},
		Handler: getSubmission,
	}
}

func getSubmission(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	courseID, err := deps.Courses.ResolveToID(ctx, argString(args, "course_identifier"))
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Add("include[]", "user")
	q.Add("include[]", "submission_comments")
	q.Add("include[]", "rubric_assessment")
	raw, err := deps.Client.Get(ctx,
		"/courses/"+courseID+"/assignments/"+argString(args, "assignment_id")+
			"/submissions/"+argString(args, "user_id"), q)
	if err != nil {
		return "", err
	}
	m := asMap(raw)
	if m == nil {
		return "", canvas.NewError(canvas.CodeCanvasAPI, "expected a submission object")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Submission by %s\n", submitterLabel(m))
	fmt.Fprintf(&b, "- State: %s\n", stateOrUnknown(strAt(m, "workflow_state")))
	if score, ok := numAt(m, "score"); ok {
		fmt.Fprintf(&b, "- Score: %s\n", canvas.FormatPoints(score))
	}
	if grade := strAt(m, "grade"); grade != "" {
		fmt.Fprintf(&b, "- Grade: %s\n", grade)
	}
	if at := formatDate(strAt(m, "submitted_at")); at != "" {
		fmt.Fprintf(&b, "- Submitted: %s\n", at)
	}
	if at := formatDate(strAt(m, "graded_at")); at != "" {
		fmt.Fprintf(&b, "- Graded: %s\n", at)
	}
	if n := intAt(m, "attempt"); n > 0 {
		fmt.Fprintf(&b, "- Attempt: %d\n", n)
	}
	var flags []string
	for _, flag := range []string{"late", "missing", "excused"} {
		if boolAt(m, flag) {
			flags = append(flags, flag)
		}
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, "- Flags: %s\n", strings.Join(flags, ", "))
	}

	if ra := asMap(m["rubric_assessment"]); len(ra) > 0 {
		fmt.Fprintf(&b, "Rubric assessment (%d criteria):\n", len(ra))
		for _, id := range sortedKeys(ra) {
			entry := asMap(ra[id])
			fmt.Fprintf(&b, "- %s:", id)
			if pts, ok := numAt(entry, "points"); ok {
				fmt.Fprintf(&b, " %s pts", canvas.FormatPoints(pts))
			}
			if c := strAt(entry, "comments"); c != "" {
				fmt.Fprintf(&b, " (%s)", truncate(c, 120))
			}
			b.WriteString("\n")
		}
	}

	if comments := listAt(m, "submission_comments"); len(comments) > 0 {
		fmt.Fprintf(&b, "Comments (%d):\n", len(comments))
		for _, c := range comments {
			cm := asMap(c)
			author := strAt(asMap(cm["author"]), "display_name")
			if author == "" {
				author = "unknown"
			}
			fmt.Fprintf(&b, "- %s: %s\n", author, truncate(strAt(cm, "comment"), 200))
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// submitterLabel names the student a submission belongs to. The
// gateway has already pseudonymized the nested user record, so the
// name is safe to print; without one the numeric user ID stands in.
func submitterLabel(m map[string]any) string {
	if name := strAt(asMap(m["user"]), "name"); name != "" {
		return name
	}
	if id := intAt(m, "user_id"); id != 0 {
		return fmt.Sprintf("user %d", id)
	}
	return "unknown user"
}

func stateOrUnknown(state string) string {
	if state == "" {
		return "unknown"
	}
	return state
}

func summarizeCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(counts))
	for _, state := range sortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%d %s", counts[state], state))
	}
	return ": " + strings.Join(parts, ", ")
}
