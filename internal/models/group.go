package models

import "time"

// TeacherRole identifies a teacher's resolved grading role on a group.
type TeacherRole string

const (
	RoleSupervisor TeacherRole = "SUPERVISOR"
	RoleInternal   TeacherRole = "INTERNAL"
	RoleExternal   TeacherRole = "EXTERNAL"
)

// GroupStatus is a derived label summarising a group's document progress.
// It is computed on read and never persisted.
type GroupStatus string

const (
	StatusPendingApproval    GroupStatus = "Pending Admin Approval"
	StatusSupervisorApproved GroupStatus = "Supervisor Approved"
	StatusProposalDone       GroupStatus = "Proposal Done"
	StatusPreDefenseDone     GroupStatus = "Pre-Defense Done"
	StatusDefenseDone        GroupStatus = "Defense Done"
)

// Group is a student thesis team under a batch.
type Group struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Department   string    `db:"department" json:"department"`
	FieldID      *string   `db:"field_id" json:"field_id,omitempty"`
	InviteCode   string    `db:"invite_code" json:"invite_code"`
	BatchID      *string   `db:"batch_id" json:"batch_id,omitempty"`
	Choice1ID    *string   `db:"choice1_id" json:"choice1_id,omitempty"`
	Choice2ID    *string   `db:"choice2_id" json:"choice2_id,omitempty"`
	Choice3ID    *string   `db:"choice3_id" json:"choice3_id,omitempty"`
	SupervisorID *string   `db:"supervisor_id" json:"supervisor_id,omitempty"`
	InternalID   *string   `db:"internal_id" json:"internal_id,omitempty"`
	ExternalID   *string   `db:"external_id" json:"external_id,omitempty"`
	Progress     int       `db:"progress" json:"progress"`
	Approved     bool      `db:"approved" json:"approved"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	// Status is computed on single-group reads, never persisted.
	Status GroupStatus `db:"-" json:"status,omitempty"`
}

// RoleOf returns the grading role the teacher holds on this group, if any.
func (g *Group) RoleOf(teacherID string) (TeacherRole, bool) {
	switch {
	case g.SupervisorID != nil && *g.SupervisorID == teacherID:
		return RoleSupervisor, true
	case g.InternalID != nil && *g.InternalID == teacherID:
		return RoleInternal, true
	case g.ExternalID != nil && *g.ExternalID == teacherID:
		return RoleExternal, true
	}
	return "", false
}

// DeriveStatus computes the group status from the approval flag and the
// group's documents. Evaluated top-down, first match wins.
func DeriveStatus(approved bool, docs []Document) GroupStatus {
	types := make([]DocumentType, 0, len(docs))
	for _, d := range docs {
		if d.State == DocumentAccepted {
			types = append(types, d.Type)
		}
	}
	return DeriveStatusFromTypes(approved, types)
}

// DeriveStatusFromTypes is DeriveStatus over the accepted document types
// alone, for callers that do not have the full document rows.
func DeriveStatusFromTypes(approved bool, types []DocumentType) GroupStatus {
	if !approved {
		return StatusPendingApproval
	}
	accepted := make(map[DocumentType]bool, 3)
	for _, t := range types {
		accepted[t] = true
	}
	switch {
	case accepted[DocumentDefense]:
		return StatusDefenseDone
	case accepted[DocumentPreDefense]:
		return StatusPreDefenseDone
	case accepted[DocumentProposal]:
		return StatusProposalDone
	default:
		return StatusSupervisorApproved
	}
}

// GroupMember is a student row within a group listing.
type GroupMember struct {
	UserID     string `db:"user_id" json:"user_id"`
	FullName   string `db:"full_name" json:"full_name"`
	Email      string `db:"email" json:"email"`
	Department string `db:"department" json:"department"`
}

// GroupFilter captures group listing criteria.
type GroupFilter struct {
	BatchID   string
	TeacherID string
	Approved  *bool
	Page      int
	PageSize  int
}

// GroupOverview is the detail payload for a group: the row itself plus its
// derived status, members and documents.
type GroupOverview struct {
	Group     Group         `json:"group"`
	Status    GroupStatus   `json:"status"`
	Members   []GroupMember `json:"members"`
	Documents []Document    `json:"documents"`
}
