package models

import (
	"math"
	"time"
)

// Mark is one grader's score for one student in one group. At most one mark
// exists per (group, grader, student); graders may update their own mark.
// Role snapshots the grader's resolved role at submission time so that
// aggregation stays stable if role assignments later change.
type Mark struct {
	ID        string      `db:"id" json:"id"`
	GroupID   string      `db:"group_id" json:"group_id"`
	StudentID string      `db:"student_id" json:"student_id"`
	GraderID  string      `db:"grader_id" json:"grader_id"`
	Role      TeacherRole `db:"role" json:"role"`
	Value     int         `db:"value" json:"value"`
	Comment   string      `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// Result is the materialized weighted total and letter grade for a student
// in a group, recomputed whenever any of the student's marks change.
type Result struct {
	ID           string    `db:"id" json:"id"`
	GroupID      string    `db:"group_id" json:"group_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Total        float64   `db:"total" json:"total"`
	Grade        string    `db:"grade" json:"grade"`
	CalculatedAt time.Time `db:"calculated_at" json:"calculated_at"`
}

// ResultRow is a result joined with group and student identity, used by
// grade sheet exports.
type ResultRow struct {
	GroupID     string  `db:"group_id" json:"group_id"`
	GroupTitle  string  `db:"group_title" json:"group_title"`
	StudentID   string  `db:"student_id" json:"student_id"`
	StudentName string  `db:"student_name" json:"student_name"`
	Total       float64 `db:"total" json:"total"`
	Grade       string  `db:"grade" json:"grade"`
}

// WeightedTotal aggregates a student's marks using the batch role
// percentages, rounded to two decimal places. It is a pure function of its
// inputs so recomputation is idempotent.
func WeightedTotal(marks []Mark, batch *Batch) float64 {
	total := 0.0
	for _, m := range marks {
		total += float64(m.Value) * float64(batch.WeightFor(m.Role)) / 100
	}
	return math.Round(total*100) / 100
}

// LetterGrade maps a weighted total onto the grading scale. Boundary values
// fall into the upper bucket: a total of exactly 40 is a D, not an F.
func LetterGrade(total float64) string {
	switch {
	case total < 40:
		return "F"
	case total < 45:
		return "D"
	case total < 50:
		return "C"
	case total < 55:
		return "C+"
	case total < 60:
		return "B-"
	case total < 65:
		return "B"
	case total < 70:
		return "B+"
	case total < 75:
		return "A-"
	case total < 80:
		return "A"
	default:
		return "A+"
	}
}
