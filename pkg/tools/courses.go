package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/courses"
)

func listCoursesSpec() Spec {
	return Spec{
		Name:        "list_courses",
		Description: "List the courses the API token can see, optionally filtered by enrollment state.",
		Params: []ParamSpec{
			{Name: "enrollment_state", Type: TypeString, Default: "active",
				Enum:        []string{"active", "completed", "all"},
				Description: "Filter courses by enrollment state."},
		},
		Handler: listCourses,
	}
}

func listCourses(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	q := url.Values{}
	state := argString(args, "enrollment_state")
	if state != "" && state != "all" {
		q.Set("enrollment_state", state)
	}
	q.Add("include[]", "total_students")
	q.Add("include[]", "term")

	list, err := canvas.PaginateInto[canvas.Course](ctx, deps.Client, "/courses",
		&canvas.RequestOptions{Query: q, SkipAnonymize: true})
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "No courses found. Try enrollment_state \"all\" to include past terms.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Courses (%d):\n", len(list))
	for _, c := range list {
		fmt.Fprintf(&b, "- [%d] %s: %s (%s", c.ID, c.CourseCode, c.Name, c.WorkflowState)
		if c.TotalStudents > 0 {
			fmt.Fprintf(&b, ", %d students", c.TotalStudents)
		}
		b.WriteString(")\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func getCourseDetailsSpec() Spec {
	return Spec{
		Name:        "get_course_details",
		Description: "Show one course's code, state, term, dates, and enrollment count.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
		},
		Handler: getCourseDetails,
	}
}

func getCourseDetails(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	course, err := deps.Courses.Lookup(ctx, argString(args, "course_identifier"))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", course.Name)
	fmt.Fprintf(&b, "- ID: %d\n", course.ID)
	fmt.Fprintf(&b, "- Code: %s\n", course.CourseCode)
	if course.SISCourseID != "" {
		fmt.Fprintf(&b, "- SIS ID: %s\n", course.SISCourseID)
	}
	fmt.Fprintf(&b, "- State: %s\n", course.WorkflowState)
	if course.EnrollmentTermID != 0 {
		fmt.Fprintf(&b, "- Term ID: %d\n", course.EnrollmentTermID)
	}
	if s := timeStr(course.StartAt); s != "" {
		fmt.Fprintf(&b, "- Starts: %s\n", s)
	}
	if s := timeStr(course.EndAt); s != "" {
		fmt.Fprintf(&b, "- Ends: %s\n", s)
	}
	if course.TotalStudents > 0 {
		fmt.Fprintf(&b, "- Students: %d\n", course.TotalStudents)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func resolveCourseSpec() Spec {
	return Spec{
		Name:        "resolve_course",
		Description: "Resolve a course code or SIS identifier to its numeric Canvas ID.",
		Params: []ParamSpec{
			{Name: "identifier", Type: TypeString, Required: true,
				Description: "Any course identifier form: numeric ID, course code, or sis_course_id: value."},
		},
		Handler: resolveCourse,
	}
}

func resolveCourse(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	identifier := strings.TrimSpace(argString(args, "identifier"))
	resolved, err := deps.Courses.ResolveToID(ctx, identifier)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Identifier: %s\n", identifier)
	switch {
	case strings.HasPrefix(resolved, courses.SISPrefix):
		fmt.Fprintf(&b, "Resolved: %s (Canvas resolves SIS identifiers server-side)", resolved)
	case resolved == identifier:
		fmt.Fprintf(&b, "Canvas ID: %s (numeric IDs pass through unchanged)", resolved)
	default:
		fmt.Fprintf(&b, "Canvas ID: %s", resolved)
	}
	return b.String(), nil
}
