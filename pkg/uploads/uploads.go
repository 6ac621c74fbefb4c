// Package uploads drives the Canvas three-step file upload: declare the
// file against the course, stream the bytes to the storage endpoint
// Canvas hands back, then confirm the upload so the file record becomes
// visible. Only the first and last steps carry credentials; the storage
// POST is deliberately anonymous because its host is not Canvas.
package uploads

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/courses"
)

const (
	// defaultMaxBytes caps uploads at 100 MiB, matching the limit most
	// Canvas instances enforce on course files.
	defaultMaxBytes = 100 << 20

	// storageTimeout bounds the unauthenticated storage POST. Uploads
	// are larger than API calls, so this is far above the gateway's
	// request timeout.
	storageTimeout = 5 * time.Minute

	defaultFileParam = "file"
)

// allowedExtensions maps the permitted file extensions to the content
// type declared in step one. Anything outside this table is rejected
// before any network traffic happens.
var allowedExtensions = map[string]string{
	".pdf":   "application/pdf",
	".doc":   "application/msword",
	".docx":  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":   "application/vnd.ms-excel",
	".xlsx":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":   "application/vnd.ms-powerpoint",
	".pptx":  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":   "text/plain",
	".md":    "text/markdown",
	".csv":   "text/csv",
	".json":  "application/json",
	".ipynb": "application/x-ipynb+json",
	".py":    "text/x-python",
	".html":  "text/html",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".zip":   "application/zip",
	".mp3":   "audio/mpeg",
	".mp4":   "video/mp4",
}

// Request describes one file upload.
type Request struct {
	// CourseIdent accepts a numeric ID, a course code, or an
	// sis_course_id: identifier.
	CourseIdent string

	// Path is the local file to upload.
	Path string

	// Name overrides the display name; the file's base name is used
	// when empty. The value is sanitized either way.
	Name string

	// FolderPath is an optional Canvas folder, created on demand when
	// it does not exist ("course files/handouts").
	FolderPath string

	// OnDuplicate is "rename" (default) or "overwrite".
	OnDuplicate string
}

// Result reports a completed upload.
type Result struct {
	File          canvas.FileRecord `json:"file"`
	SanitizedName string            `json:"sanitized_name"`
	Size          int64             `json:"size"`
}

// uploadTarget is the step-one response.
type uploadTarget struct {
	UploadURL    string         `json:"upload_url"`
	UploadParams map[string]any `json:"upload_params"`
	FileParam    string         `json:"file_param"`
}

// Uploader orchestrates uploads through the gateway.
type Uploader struct {
	client   *canvas.Client
	resolver *courses.Cache
	storage  *http.Client
	logger   *slog.Logger
	maxBytes int64
}

// UploaderOption adjusts Uploader construction.
type UploaderOption func(*Uploader)

// WithStorageClient replaces the HTTP client used for the storage POST.
func WithStorageClient(hc *http.Client) UploaderOption {
	return func(u *Uploader) { u.storage = hc }
}

// WithMaxBytes lowers or raises the size ceiling.
func WithMaxBytes(n int64) UploaderOption {
	return func(u *Uploader) { u.maxBytes = n }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) UploaderOption {
	return func(u *Uploader) { u.logger = logger }
}

// New builds an Uploader. The storage client never follows redirects:
// the Location header coming back from storage is the confirmation URL
// and must be requested with credentials through the gateway instead.
func New(client *canvas.Client, resolver *courses.Cache, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		client:   client,
		resolver: resolver,
		maxBytes: defaultMaxBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.storage == nil {
		u.storage = &http.Client{
			Timeout: storageTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return u
}

// Upload runs the full three-step flow and returns the confirmed file
// record.
func (u *Uploader) Upload(ctx context.Context, req Request) (*Result, error) {
	courseID, err := u.resolver.ResolveToID(ctx, req.CourseIdent)
	if err != nil {
		return nil, err
	}

	info, contentType, err := u.validate(req)
	if err != nil {
		return nil, err
	}
	name := req.Name
	if name == "" {
		name = filepath.Base(req.Path)
	}
	sanitized := SanitizeFilename(name)

	target, err := u.declare(ctx, courseID, req, sanitized, info.Size(), contentType)
	if err != nil {
		return nil, err
	}

	record, err := u.store(ctx, target, req.Path, sanitized, contentType)
	if err != nil {
		return nil, err
	}

	u.logger.Info("file uploaded",
		"course_id", courseID,
		"file_id", record.ID,
		"size", info.Size())
	return &Result{File: *record, SanitizedName: sanitized, Size: info.Size()}, nil
}

func (u *Uploader) validate(req Request) (os.FileInfo, string, error) {
	if strings.TrimSpace(req.Path) == "" {
		return nil, "", canvas.NewError(canvas.CodeValidation, "file path is required")
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		return nil, "", canvas.WrapError(canvas.CodeValidation, err, "file is not readable").
			WithDetail("path", filepath.Base(req.Path))
	}
	if !info.Mode().IsRegular() {
		return nil, "", canvas.NewError(canvas.CodeValidation, "path is not a regular file").
			WithDetail("path", filepath.Base(req.Path))
	}
	if info.Size() == 0 {
		return nil, "", canvas.NewError(canvas.CodeValidation, "file is empty")
	}
	if info.Size() > u.maxBytes {
		return nil, "", canvas.NewError(canvas.CodeValidation, "file exceeds the upload size limit").
			WithDetail("size_bytes", strconv.FormatInt(info.Size(), 10)).
			WithDetail("limit_bytes", strconv.FormatInt(u.maxBytes, 10))
	}
	ext := strings.ToLower(filepath.Ext(req.Path))
	contentType, ok := allowedExtensions[ext]
	if !ok {
		return nil, "", canvas.NewError(canvas.CodeValidation, "file type is not allowed").
			WithDetail("extension", ext).
			WithSuggestion("Allowed extensions: " + strings.Join(allowedExtensionList(), ", "))
	}
	switch req.OnDuplicate {
	case "", "rename", "overwrite":
	default:
		return nil, "", canvas.NewError(canvas.CodeInvalidParameter, "on_duplicate must be rename or overwrite").
			WithDetail("on_duplicate", req.OnDuplicate)
	}
	return info, contentType, nil
}

// declare is step one: tell Canvas about the file and receive the
// storage target.
func (u *Uploader) declare(ctx context.Context, courseID string, req Request, name string, size int64, contentType string) (*uploadTarget, error) {
	form := url.Values{}
	form.Set("name", name)
	form.Set("size", strconv.FormatInt(size, 10))
	form.Set("content_type", contentType)
	if req.OnDuplicate == "" {
		form.Set("on_duplicate", "rename")
	} else {
		form.Set("on_duplicate", req.OnDuplicate)
	}
	if req.FolderPath != "" {
		form.Set("parent_folder_path", req.FolderPath)
	}

	raw, err := u.client.Post(ctx, "/courses/"+courseID+"/files", &canvas.RequestOptions{
		Form:          form,
		SkipAnonymize: true,
	})
	if err != nil {
		return nil, err
	}
	target, err := canvas.Decode[uploadTarget](raw)
	if err != nil {
		return nil, err
	}
	if target.UploadURL == "" {
		return nil, canvas.NewError(canvas.CodeCanvasAPI, "Canvas did not return an upload target")
	}
	if target.FileParam == "" {
		target.FileParam = defaultFileParam
	}
	return &target, nil
}

// store is steps two and three: POST the bytes to storage without
// credentials, then confirm through the gateway.
func (u *Uploader) store(ctx context.Context, target *uploadTarget, path, filename, contentType string) (*canvas.FileRecord, error) {
	body, formType, err := multipartBody(target, path, filename, contentType)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.UploadURL, body)
	if err != nil {
		return nil, canvas.WrapError(canvas.CodeValidation, err, "invalid upload target URL")
	}
	httpReq.Header.Set("Content-Type", formType)

	resp, err := u.storage.Do(httpReq)
	if err != nil {
		return nil, canvas.WrapError(canvas.CodeNetwork, err, "storage upload failed")
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, canvas.WrapError(canvas.CodeNetwork, err, "reading storage response failed")
	}

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, canvas.NewError(canvas.CodeCanvasAPI, "storage redirect is missing a Location header")
		}
		return u.confirm(ctx, location)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return u.finish(ctx, respBody)
	default:
		return nil, canvas.FromStatus(resp.StatusCode, http.MethodPost, "upload target", respBody)
	}
}

// confirm is the authenticated step-three POST against the redirect
// location.
func (u *Uploader) confirm(ctx context.Context, location string) (*canvas.FileRecord, error) {
	raw, err := u.client.Follow(ctx, http.MethodPost, location)
	if err != nil {
		return nil, err
	}
	record, err := canvas.Decode[canvas.FileRecord](raw)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// finish handles a storage 2xx: modern instances answer with the file
// record inline, older ones with a location to fetch.
func (u *Uploader) finish(ctx context.Context, body []byte) (*canvas.FileRecord, error) {
	record, err := canvas.DecodeBytes[canvas.FileRecord](body)
	if err != nil {
		return nil, canvas.WrapError(canvas.CodeCanvasAPI, err, "unreadable storage response")
	}
	if record.ID != 0 {
		return &record, nil
	}
	probe, err := canvas.DecodeBytes[struct {
		Location string `json:"location"`
	}](body)
	if err == nil && probe.Location != "" {
		raw, err := u.client.Follow(ctx, http.MethodGet, probe.Location)
		if err != nil {
			return nil, err
		}
		fetched, err := canvas.Decode[canvas.FileRecord](raw)
		if err != nil {
			return nil, err
		}
		return &fetched, nil
	}
	return nil, canvas.NewError(canvas.CodeCanvasAPI, "storage response did not include a file record")
}

// multipartBody assembles the storage form: every upload_param first in
// a stable order, the file part strictly last. Storage backends stop
// reading at the file part, so anything after it would be ignored.
func multipartBody(target *uploadTarget, path, filename, contentType string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", canvas.WrapError(canvas.CodeValidation, err, "file is not readable").
			WithDetail("path", filepath.Base(path))
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(target.UploadParams))
	for k := range target.UploadParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fmt.Sprintf("%v", target.UploadParams[k])); err != nil {
			return nil, "", canvas.WrapError(canvas.CodeNetwork, err, "building upload form failed")
		}
	}

	part, err := w.CreateFormFile(target.FileParam, filename)
	if err != nil {
		return nil, "", canvas.WrapError(canvas.CodeNetwork, err, "building upload form failed")
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", canvas.WrapError(canvas.CodeNetwork, err, "reading file failed").
			WithDetail("path", filepath.Base(path))
	}
	if err := w.Close(); err != nil {
		return nil, "", canvas.WrapError(canvas.CodeNetwork, err, "building upload form failed")
	}
	return &buf, w.FormDataContentType(), nil
}

func allowedExtensionList() []string {
	out := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// SanitizeFilename produces a safe display name: the base name only,
// Unicode-decomposed with combining marks stripped, path and shell
// metacharacters replaced, whitespace collapsed.
func SanitizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	decomposed := norm.NFKD.String(base)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// Combining mark left over from decomposition.
		case r < 0x20 || r == 0x7f:
			// Control character.
		case strings.ContainsRune(`/\<>:"|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Join(strings.Fields(b.String()), " ")
	if out == "" || out == "." || out == ".." {
		return "upload"
	}
	if len(out) > 255 {
		ext := filepath.Ext(out)
		if len(ext) > 32 {
			ext = ""
		}
		out = out[:255-len(ext)] + ext
	}
	return out
}
