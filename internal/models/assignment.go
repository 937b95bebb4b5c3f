package models

import (
	"strings"
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"
)

// DefaultMaxScore is used when an assignment defines neither question marks nor a flat maximum.
const DefaultMaxScore = 100.0

// ValuationMode controls how strictly the automated grader interprets correctness.
type ValuationMode string

const (
	// ValuationStrict penalises partial and ambiguous answers.
	ValuationStrict ValuationMode = "strict"
	// ValuationLiberal gives credit for partially correct reasoning.
	ValuationLiberal ValuationMode = "liberal"
)

// ParseValuationMode normalises user input into a ValuationMode.
func ParseValuationMode(raw string) (ValuationMode, bool) {
	switch ValuationMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ValuationStrict:
		return ValuationStrict, true
	case ValuationLiberal:
		return ValuationLiberal, true
	default:
		return "", false
	}
}

// Question is a single scored rubric item.
type Question struct {
	QuestionText string  `json:"question_text"`
	Marks        float64 `json:"marks"`
}

// Assignment is a graded piece of coursework owned by a course.
type Assignment struct {
	ID            uint                          `gorm:"primaryKey" json:"id"`
	CourseID      uint                          `gorm:"not null;index" json:"course_id"`
	Title         string                        `gorm:"size:255;not null" json:"title"`
	Description   string                        `gorm:"type:text" json:"description"`
	Questions     datatypes.JSONSlice[Question] `json:"questions"`
	MaxPoints     float64                       `gorm:"not null;default:0" json:"max_points"`
	ValuationMode ValuationMode                 `gorm:"size:16;not null;default:strict" json:"valuation_mode"`
	DueDate       *time.Time                    `json:"due_date"`
	CreatedAt     time.Time                     `json:"created_at"`
	UpdatedAt     time.Time                     `json:"updated_at"`
	Course        Course                        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// EffectiveMax returns the highest achievable score for the assignment.
// Question marks win when they add up to something positive; otherwise the flat maximum applies.
func (a Assignment) EffectiveMax() float64 {
	total := lo.SumBy(a.Questions, func(q Question) float64 {
		if q.Marks < 0 {
			return 0
		}
		return q.Marks
	})
	if total > 0 {
		return total
	}
	if a.MaxPoints > 0 {
		return a.MaxPoints
	}
	return DefaultMaxScore
}

// Mode returns the valuation mode, falling back to strict for legacy rows.
func (a Assignment) Mode() ValuationMode {
	if mode, ok := ParseValuationMode(string(a.ValuationMode)); ok {
		return mode
	}
	return ValuationStrict
}
