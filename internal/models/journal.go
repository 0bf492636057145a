package models

import "time"

// Comment is an append-only conversation entry on a group.
type Comment struct {
	ID         string    `db:"id" json:"id"`
	GroupID    string    `db:"group_id" json:"group_id"`
	AuthorID   string    `db:"author_id" json:"author_id"`
	AuthorName string    `db:"author_name" json:"author_name"`
	Text       string    `db:"text" json:"text"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// LogbookEntry is a student activity log row. Approved is settable only by
// the group's supervisor.
type LogbookEntry struct {
	ID         string    `db:"id" json:"id"`
	GroupID    string    `db:"group_id" json:"group_id"`
	AuthorID   string    `db:"author_id" json:"author_id"`
	AuthorName string    `db:"author_name" json:"author_name"`
	Body       string    `db:"body" json:"body"`
	Approved   bool      `db:"approved" json:"approved"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
