package canvas

import (
	"net/url"
	"strconv"
)

// RubricScore is one criterion's assessment within a grading call.
type RubricScore struct {
	Points   *float64
	RatingID string
	Comments string
}

// EncodeSubmissionGrade builds the bracketed form fields for
// PUT /courses/{c}/assignments/{a}/submissions/{u}. Canvas rejects
// rubric assessments sent as JSON; only the Rails-style form encoding
// reaches the rubric params. url.Values.Encode sorts keys, so the
// payload is deterministic for a given input.
func EncodeSubmissionGrade(postedGrade, comment string, rubric map[string]RubricScore) url.Values {
	form := url.Values{}
	if postedGrade != "" {
		form.Set("submission[posted_grade]", postedGrade)
	}
	if comment != "" {
		form.Set("comment[text_comment]", comment)
	}
	for criterionID, score := range rubric {
		prefix := "rubric_assessment[" + criterionID + "]"
		if score.Points != nil {
			form.Set(prefix+"[points]", FormatPoints(*score.Points))
		}
		if score.RatingID != "" {
			form.Set(prefix+"[rating_id]", score.RatingID)
		}
		if score.Comments != "" {
			form.Set(prefix+"[comments]", score.Comments)
		}
	}
	return form
}

// FormatPoints renders a score with the fewest digits that round-trip,
// so 9.0 encodes as "9" and 8.5 as "8.5".
func FormatPoints(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
