package tools

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
)

var enrollmentTypes = map[string]string{
	"student":  "StudentEnrollment",
	"teacher":  "TeacherEnrollment",
	"ta":       "TaEnrollment",
	"observer": "ObserverEnrollment",
	"designer": "DesignerEnrollment",
}

func listEnrollmentsSpec() Spec {
	return Spec{
		Name:        "list_enrollments",
		Description: "List a course's enrollments by role and state; students appear as pseudonyms.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
			{Name: "type", Type: TypeString, Default: "student",
				Enum:        []string{"student", "teacher", "ta", "observer", "designer", "all"},
				Description: "Enrollment role to list."},
			{Name: "state", Type: TypeString, Default: "active",
				Enum:        []string{"active", "invited", "completed", "all"},
				Description: "Enrollment state to list."},
		},
		Handler: listEnrollments,
	}
}

func listEnrollments(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	courseID, err := deps.Courses.ResolveToID(ctx, argString(args, "course_identifier"))
	if err != nil {
		return "", err
	}

	q := url.Values{}
	role := argString(args, "type")
	if apiType, ok := enrollmentTypes[role]; ok {
		q.Add("type[]", apiType)
	}
	state := argString(args, "state")
	if state != "" && state != "all" {
		q.Add("state[]", state)
	}

	items, err := deps.Client.Paginate(ctx, "/courses/"+courseID+"/enrollments",
		&canvas.RequestOptions{Query: q})
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "No enrollments match this filter.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Enrollments (%d, role %s, state %s):\n", len(items), role, state)
	for _, item := range items {
		m := asMap(item)
		name := strAt(asMap(m["user"]), "name")
		if name == "" {
			name = fmt.Sprintf("user %d", intAt(m, "user_id"))
		}
		fmt.Fprintf(&b, "- %s (user_id %d, %s, %s", name, intAt(m, "user_id"),
			strAt(m, "type"), stateOrUnknown(strAt(m, "enrollment_state")))
		if at := formatDate(strAt(m, "last_activity_at")); at != "" {
			fmt.Fprintf(&b, ", last active %s", at)
		}
		b.WriteString(")\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func getPeerReviewStatusSpec() Spec {
	return Spec{
		Name:        "get_peer_review_status",
		Description: "Summarize an assignment's peer-review completion by pseudonymized reviewer.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
			{Name: "assignment_id", Type: TypeString, Required: true,
				Description: "Numeric assignment ID."},
		},
		Handler: getPeerReviewStatus,
	}
}

func getPeerReviewStatus(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	courseID, err := deps.Courses.ResolveToID(ctx, argString(args, "course_identifier"))
	if err != nil {
		return "", err
	}

	// Fetched without user expansion: the report is built from IDs and
	// rendered with pseudonyms, so no student name ever enters it.
	reviews, err := canvas.PaginateInto[canvas.PeerReviewEntry](ctx, deps.Client,
		"/courses/"+courseID+"/assignments/"+argString(args, "assignment_id")+"/peer_reviews",
		&canvas.RequestOptions{SkipAnonymize: true})
	if err != nil {
		return "", err
	}
	if len(reviews) == 0 {
		return "No peer reviews are assigned for this assignment.", nil
	}

	completed := 0
	type tally struct{ assigned, completed int }
	byAssessor := map[int64]*tally{}
	for _, r := range reviews {
		t := byAssessor[r.AssessorID]
		if t == nil {
			t = &tally{}
			byAssessor[r.AssessorID] = t
		}
		t.assigned++
		if r.WorkflowState == "completed" {
			t.completed++
			completed++
		}
	}

	type row struct {
		label string
		tally *tally
	}
	rows := make([]row, 0, len(byAssessor))
	for id, t := range byAssessor {
		rows = append(rows, row{label: deps.studentLabel(id), tally: t})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].label < rows[j].label })

	var b strings.Builder
	fmt.Fprintf(&b, "Peer reviews: %d of %d completed (%.0f%%)\n",
		completed, len(reviews), 100*float64(completed)/float64(len(reviews)))
	fmt.Fprintf(&b, "Reviewers (%d):\n", len(rows))
	for _, r := range rows {
		fmt.Fprintf(&b, "- %s: %d completed of %d assigned", r.label, r.tally.completed, r.tally.assigned)
		if r.tally.completed < r.tally.assigned {
			b.WriteString(" [incomplete]")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
