package models

import "time"

// Notification is a persisted notice for one user about one group. Viewed
// is the only mutable field and the transition is one-way.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	Content   string    `db:"content" json:"content"`
	Viewed    bool      `db:"viewed" json:"viewed"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
