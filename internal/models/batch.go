package models

import "time"

// Default per-role mark caps applied when a batch row does not override them.
const (
	DefaultSupervisorCap = 50
	DefaultInternalCap   = 30
	DefaultExternalCap   = 20
)

// Batch is a cohort configuration: group count limits, group size limit and
// the per-role weighting applied when aggregating marks into results.
type Batch struct {
	ID                  string    `db:"id" json:"id"`
	Number              int       `db:"number" json:"number"`
	MaxGroups           int       `db:"max_groups" json:"max_groups"`
	MinGroups           int       `db:"min_groups" json:"min_groups"`
	MaxStudentsPerGroup int       `db:"max_students_per_group" json:"max_students_per_group"`
	SupervisorPct       int       `db:"supervisor_pct" json:"supervisor_pct"`
	InternalPct         int       `db:"internal_pct" json:"internal_pct"`
	ExternalPct         int       `db:"external_pct" json:"external_pct"`
	SupervisorCap       int       `db:"supervisor_cap" json:"supervisor_cap"`
	InternalCap         int       `db:"internal_cap" json:"internal_cap"`
	ExternalCap         int       `db:"external_cap" json:"external_cap"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// WeightsValid reports whether the three role percentages sum to 100.
func (b *Batch) WeightsValid() bool {
	return b.SupervisorPct+b.InternalPct+b.ExternalPct == 100
}

// WeightFor returns the aggregation percentage for a grading role.
func (b *Batch) WeightFor(role TeacherRole) int {
	switch role {
	case RoleSupervisor:
		return b.SupervisorPct
	case RoleInternal:
		return b.InternalPct
	case RoleExternal:
		return b.ExternalPct
	}
	return 0
}

// CapFor returns the maximum mark a grader holding the role may submit.
func (b *Batch) CapFor(role TeacherRole) int {
	switch role {
	case RoleSupervisor:
		return b.SupervisorCap
	case RoleInternal:
		return b.InternalCap
	case RoleExternal:
		return b.ExternalCap
	}
	return 0
}
