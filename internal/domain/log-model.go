package domain

import (
	"database/sql"
	"time"
)

// Log is an audit record of something a user or the system did
type Log struct {
	ID        int64          `json:"id" db:"id"`
	Action    string         `json:"action" db:"action"`
	UserID    sql.NullInt64  `json:"user_id" db:"user_id"`
	Details   string         `json:"details" db:"details"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UserName  sql.NullString `json:"user_name" db:"user_name"`
}

type ActionStat struct {
	Action string `json:"action" db:"action"`
	Count  int    `json:"count" db:"count"`
}

type UserActivity struct {
	FullName    string         `json:"full_name" db:"full_name"`
	Username    sql.NullString `json:"username" db:"username"`
	ActionCount int            `json:"action_count" db:"action_count"`
}
