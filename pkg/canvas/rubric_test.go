package canvas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/canvas"
)

func ptr(f float64) *float64 { return &f }

func TestEncodeSubmissionGrade_BracketedKeys(t *testing.T) {
	form := canvas.EncodeSubmissionGrade("9", "Nice work", map[string]canvas.RubricScore{
		"crit_1": {Points: ptr(8.5), Comments: "solid analysis"},
		"crit_2": {Points: ptr(9), RatingID: "rat_3"},
	})

	assert.Equal(t, "9", form.Get("submission[posted_grade]"))
	assert.Equal(t, "Nice work", form.Get("comment[text_comment]"))
	assert.Equal(t, "8.5", form.Get("rubric_assessment[crit_1][points]"))
	assert.Equal(t, "solid analysis", form.Get("rubric_assessment[crit_1][comments]"))
	assert.Equal(t, "9", form.Get("rubric_assessment[crit_2][points]"))
	assert.Equal(t, "rat_3", form.Get("rubric_assessment[crit_2][rating_id]"))
}

func TestEncodeSubmissionGrade_OmitsEmptyParts(t *testing.T) {
	form := canvas.EncodeSubmissionGrade("B+", "", nil)

	assert.Equal(t, "B%2B", form.Encode()[len("submission%5Bposted_grade%5D="):])
	assert.NotContains(t, form, "comment[text_comment]")
	assert.Len(t, form, 1)
}

func TestEncodeSubmissionGrade_DeterministicEncoding(t *testing.T) {
	build := func() string {
		return canvas.EncodeSubmissionGrade("9", "ok", map[string]canvas.RubricScore{
			"b_crit": {Points: ptr(1)},
			"a_crit": {Points: ptr(2)},
		}).Encode()
	}
	first := build()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, build())
	}
	// Keys come out sorted regardless of map order.
	assert.Equal(t,
		"comment%5Btext_comment%5D=ok"+
			"&rubric_assessment%5Ba_crit%5D%5Bpoints%5D=2"+
			"&rubric_assessment%5Bb_crit%5D%5Bpoints%5D=1"+
			"&submission%5Bposted_grade%5D=9",
		first)
}

func TestFormatPoints_MinimalDigits(t *testing.T) {
	assert.Equal(t, "9", canvas.FormatPoints(9))
	assert.Equal(t, "8.5", canvas.FormatPoints(8.5))
	assert.Equal(t, "0.3333333333333333", canvas.FormatPoints(1.0/3.0))
	assert.Equal(t, "0", canvas.FormatPoints(0))
}
