package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
)

func listDiscussionsSpec() Spec {
	return Spec{
		Name:        "list_discussions",
		Description: "List a course's discussion topics or announcements; authors appear as pseudonyms.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
			{Name: "only_announcements", Type: TypeBool, Default: false,
				Description: "Restrict the listing to announcements."},
		},
		Handler: listDiscussions,
	}
}

func listDiscussions(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	courseID, err := deps.Courses.ResolveToID(ctx, argString(args, "course_identifier"))
	if err != nil {
		return "", err
	}

	q := url.Values{}
	kind := "Discussion topics"
	if argBool(args, "only_announcements") {
		q.Set("only_announcements", "true")
		kind = "Announcements"
	}
	items, err := deps.Client.Paginate(ctx, "/courses/"+courseID+"/discussion_topics",
		&canvas.RequestOptions{Query: q})
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return fmt.Sprintf("%s: none found for this course.", kind), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d):\n", kind, len(items))
	for _, item := range items {
		m := asMap(item)
		fmt.Fprintf(&b, "- [%d] %s", intAt(m, "id"), strAt(m, "title"))
		var meta []string
		if author := strAt(asMap(m["author"]), "display_name"); author != "" {
			meta = append(meta, "by "+author)
		}
		if n := intAt(m, "discussion_subentry_count"); n > 0 {
			meta = append(meta, fmt.Sprintf("%d replies", n))
		}
		if at := formatDate(strAt(m, "posted_at")); at != "" {
			meta = append(meta, "posted "+at)
		}
		if boolAt(m, "locked") {
			meta = append(meta, "locked")
		}
		if boolAt(m, "pinned") {
			meta = append(meta, "pinned")
		}
		if len(meta) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(meta, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func getDiscussionEntriesSpec() Spec {
	return Spec{
		Name:        "get_discussion_entries",
		Description: "Read a discussion topic's entries with scrubbed bodies and pseudonymized authors.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
			{Name: "topic_id", Type: TypeString, Required: true,
				Description: "Numeric discussion topic ID."},
		},
		Handler: getDiscussionEntries,
	}
}

func getDiscussionEntries(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	courseID, err := deps.Courses.ResolveToID(ctx, argString(args, "course_identifier"))
	if err != nil {
		return "", err
	}
	topicID := argString(args, "topic_id")

	items, err := deps.Client.Paginate(ctx,
		"/courses/"+courseID+"/discussion_topics/"+topicID+"/entries", nil)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "No entries posted in this topic yet.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Entries for topic %s (%d):\n", topicID, len(items))
	for _, item := range items {
		m := asMap(item)
		author := strAt(m, "user_name")
		if author == "" {
			author = fmt.Sprintf("user %d", intAt(m, "user_id"))
		}
		fmt.Fprintf(&b, "- [%d] %s", intAt(m, "id"), author)
		if at := formatDate(strAt(m, "created_at")); at != "" {
			fmt.Fprintf(&b, " (%s)", at)
		}
		if msg := stripTags(strAt(m, "message")); msg != "" {
			fmt.Fprintf(&b, ": %s", truncate(msg, 240))
		}
		if replies := listAt(m, "recent_replies"); len(replies) > 0 {
			fmt.Fprintf(&b, " [+%d recent replies]", len(replies))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func postAnnouncementSpec() Spec {
	return Spec{
		Name:        "post_announcement",
		Description: "Post a published announcement to a course.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
			{Name: "title", Type: TypeString, Required: true,
				Description: "Announcement title."},
			{Name: "message", Type: TypeString, Required: true,
				Description: "Announcement body; Canvas renders it as HTML."},
		},
		Handler: postAnnouncement,
	}
}

func postAnnouncement(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	title := strings.TrimSpace(argString(args, "title"))
	message := strings.TrimSpace(argString(args, "message"))
	if title == "" || message == "" {
		return "", canvas.NewError(canvas.CodeValidation, "announcement title and message must not be empty")
	}

	courseID, err := deps.Courses.ResolveToID(ctx, argString(args, "course_identifier"))
	if err != nil {
		return "", err
	}
	raw, err := deps.Client.Post(ctx, "/courses/"+courseID+"/discussion_topics",
		&canvas.RequestOptions{JSON: map[string]any{
			"title":           title,
			"message":         message,
			"is_announcement": true,
			"published":       true,
		}})
	if err != nil {
		return "", err
	}

	m := asMap(raw)
	out := fmt.Sprintf("Announcement posted: [%d] %s", intAt(m, "id"), strAt(m, "title"))
	if at := formatDate(strAt(m, "posted_at")); at != "" {
		out += " (posted " + at + ")"
	}
	return out, nil
}
