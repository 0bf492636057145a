package models

import "time"

// DocumentType is the closed set of milestone document kinds.
type DocumentType string

const (
	DocumentProposal   DocumentType = "Proposal"
	DocumentPreDefense DocumentType = "Pre-Defense Report"
	DocumentDefense    DocumentType = "Defense Report"
)

// ValidDocumentType reports whether t is one of the known milestone kinds.
func ValidDocumentType(t DocumentType) bool {
	switch t {
	case DocumentProposal, DocumentPreDefense, DocumentDefense:
		return true
	}
	return false
}

// DocumentState is the review state of an uploaded document.
type DocumentState string

const (
	DocumentPending  DocumentState = "PENDING"
	DocumentAccepted DocumentState = "ACCEPTED"
	DocumentRejected DocumentState = "REJECTED"
)

// Document is a milestone file uploaded by a group. FileKey references the
// stored bytes in the storage backend.
type Document struct {
	ID         string        `db:"id" json:"id"`
	GroupID    string        `db:"group_id" json:"group_id"`
	Type       DocumentType  `db:"type" json:"type"`
	State      DocumentState `db:"state" json:"state"`
	FileKey    string        `db:"file_key" json:"-"`
	FileName   string        `db:"file_name" json:"file_name"`
	UploadedAt time.Time     `db:"uploaded_at" json:"uploaded_at"`
	ReviewedAt *time.Time    `db:"reviewed_at" json:"reviewed_at,omitempty"`
}
