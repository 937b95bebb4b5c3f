package ai

import (
	"context"
	"errors"
)

// ErrMalformedResponse is returned when the model answer does not match the grading contract.
var ErrMalformedResponse = errors.New("malformed grading response")

// Valuation modes understood by graders.
const (
	ValuationStrict  = "strict"
	ValuationLiberal = "liberal"
)

// Question is one rubric item passed to the grader.
type Question struct {
	Text  string
	Marks float64
}

// GradeInput contains everything needed to grade one extracted answer sheet.
type GradeInput struct {
	Text          string
	Questions     []Question
	MaxScore      float64
	ValuationMode string
}

// GradeResult is the grader's verdict. Grade is returned as produced by the model;
// callers decide how to treat values outside [0, MaxScore].
type GradeResult struct {
	Grade    float64
	Feedback string
	Analysis string
}

// Grader scores extracted text against a rubric.
type Grader interface {
	Grade(ctx context.Context, input GradeInput) (GradeResult, error)
}
