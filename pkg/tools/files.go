package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/uploads"
)

func uploadCourseFileSpec() Spec {
	return Spec{
		Name:        "upload_course_file",
		Description: "Upload a local file into a course's files area via the Canvas three-step upload protocol.",
		Params: []ParamSpec{
			{Name: "course_identifier", Type: TypeString, Required: true,
				Description: "Canvas course ID, course code, or sis_course_id: identifier."},
			{Name: "path", Type: TypeString, Required: true,
				Description: "Local filesystem path of the file to upload."},
			{Name: "name", Type: TypeString,
				Description: "Display name in Canvas; defaults to the file's base name."},
			{Name: "folder_path", Type: TypeString,
				Description: "Destination folder path inside the course files area."},
			{Name: "on_duplicate", Type: TypeString, Default: "rename",
				Enum:        []string{"rename", "overwrite"},
				Description: "What Canvas does when the name already exists."},
		},
		Handler: uploadCourseFile,
	}
}

func uploadCourseFile(ctx context.Context, deps *Deps, args map[string]any) (string, error) {
	res, err := deps.Uploader.Upload(ctx, uploads.Request{
		CourseIdent: argString(args, "course_identifier"),
		Path:        argString(args, "path"),
		Name:        argString(args, "name"),
		FolderPath:  argString(args, "folder_path"),
		OnDuplicate: argString(args, "on_duplicate"),
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Uploaded %s (%s)\n", res.File.DisplayName, formatBytes(res.Size))
	fmt.Fprintf(&b, "- File ID: %d\n", res.File.ID)
	if res.File.ContentType != "" {
		fmt.Fprintf(&b, "- Content type: %s\n", res.File.ContentType)
	}
	if res.File.FolderID != 0 {
		fmt.Fprintf(&b, "- Folder ID: %d\n", res.File.FolderID)
	}
	if res.SanitizedName != res.File.DisplayName && res.SanitizedName != "" {
		fmt.Fprintf(&b, "- Requested name was sanitized to: %s\n", res.SanitizedName)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
