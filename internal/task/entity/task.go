package entity

import "time"

// Task is a work item owned by one user. ExpiresAt is set exactly while the
// task is done; once it passes, the sweeper may delete the row at any time.
type Task struct {
	ID         string     `db:"id" json:"id"`
	OwnerID    string     `db:"owner_id" json:"ownerId"`
	Text       string     `db:"text" json:"task"`
	Done       bool       `db:"done" json:"done"`
	AssignDate string     `db:"assign_date" json:"assigndate"`
	AssignTime string     `db:"assign_time" json:"assigntime"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expiredate"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

// SweepDue reports whether the sweeper may remove t at now.
func (t *Task) SweepDue(now time.Time) bool {
	return t.Done && t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}
