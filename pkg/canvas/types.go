package canvas

import (
	"encoding/json"
	"fmt"
	"time"
)

// Course is the subset of a Canvas course the server reads directly.
// Tool responses carry the full decoded payload; these typed views are
// for code that needs specific fields (resolution, grading, uploads).
type Course struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	CourseCode       string     `json:"course_code"`
	SISCourseID      string     `json:"sis_course_id,omitempty"`
	WorkflowState    string     `json:"workflow_state"`
	EnrollmentTermID int64      `json:"enrollment_term_id"`
	StartAt          *time.Time `json:"start_at,omitempty"`
	EndAt            *time.Time `json:"end_at,omitempty"`
	TotalStudents    int        `json:"total_students,omitempty"`
}

// Assignment is the subset of a Canvas assignment used by grading and
// peer-review tools.
type Assignment struct {
	ID                   int64             `json:"id"`
	CourseID             int64             `json:"course_id"`
	Name                 string            `json:"name"`
	Description          string            `json:"description,omitempty"`
	DueAt                *time.Time        `json:"due_at,omitempty"`
	PointsPossible       float64           `json:"points_possible"`
	GradingType          string            `json:"grading_type,omitempty"`
	Published            bool              `json:"published"`
	SubmissionTypes      []string          `json:"submission_types,omitempty"`
	NeedsGradingCount    int               `json:"needs_grading_count"`
	PeerReviews          bool              `json:"peer_reviews"`
	AutomaticPeerReviews bool              `json:"automatic_peer_reviews"`
	UseRubricForGrading  bool              `json:"use_rubric_for_grading"`
	Rubric               []RubricCriterion `json:"rubric,omitempty"`
	RubricSettings       map[string]any    `json:"rubric_settings,omitempty"`
}

// RubricCriterion describes one row of an assignment rubric.
type RubricCriterion struct {
	ID              string         `json:"id"`
	Description     string         `json:"description"`
	LongDescription string         `json:"long_description,omitempty"`
	Points          float64        `json:"points"`
	Ratings         []RubricRating `json:"ratings,omitempty"`
}

// RubricRating is one selectable rating within a criterion.
type RubricRating struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Points      float64 `json:"points"`
}

// Submission is the subset of a Canvas submission used by the grader
// and peer-review reporting.
type Submission struct {
	ID            int64      `json:"id"`
	AssignmentID  int64      `json:"assignment_id"`
	UserID        int64      `json:"user_id"`
	Grade         string     `json:"grade,omitempty"`
	Score         *float64   `json:"score,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	GradedAt      *time.Time `json:"graded_at,omitempty"`
	WorkflowState string     `json:"workflow_state"`
	Late          bool       `json:"late"`
	Missing       bool       `json:"missing"`
	Excused       bool       `json:"excused"`
	Attempt       int        `json:"attempt"`
}

// PeerReviewEntry is one peer-review pairing on an assignment.
type PeerReviewEntry struct {
	ID             int64  `json:"id"`
	AssetID        int64  `json:"asset_id"`
	AssetType      string `json:"asset_type"`
	UserID         int64  `json:"user_id"`
	AssessorID     int64  `json:"assessor_id"`
	WorkflowState  string `json:"workflow_state"`
	AssessorName   string `json:"assessor_name,omitempty"`
	SubmissionUser string `json:"user_name,omitempty"`
}

// FileRecord is the confirmation payload returned by the final step of
// the Canvas file upload protocol.
type FileRecord struct {
	ID          int64     `json:"id"`
	UUID        string    `json:"uuid,omitempty"`
	FolderID    int64     `json:"folder_id"`
	DisplayName string    `json:"display_name"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content-type"`
	URL         string    `json:"url,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Decode re-marshals a decoded JSON tree into a typed value. The
// gateway returns any so anonymization can walk the raw structure;
// callers that need fields use Decode at the edge.
func Decode[T any](v any) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("encode intermediate: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// DecodeBytes decodes a raw JSON body into a typed value.
func DecodeBytes[T any](raw []byte) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
