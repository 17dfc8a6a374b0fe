package domain

import "time"

type Role string

const (
	RoleClient     Role = "CLIENT"
	RoleCourier    Role = "COURIER"
	RoleManager    Role = "MANAGER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

var roleLevels = map[Role]int{
	RoleClient:     0,
	RoleCourier:    1,
	RoleManager:    2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// Roles lists every role from the lowest to the highest level.
var Roles = []Role{RoleClient, RoleCourier, RoleManager, RoleAdmin, RoleSuperAdmin}

// Level returns the position of the role in the hierarchy. Unknown roles rank as clients.
func (r Role) Level() int {
	return roleLevels[r]
}

func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// User is a Telegram user registered in the bot
type User struct {
	ID         int64     `json:"id" db:"id"`
	TelegramID int64     `json:"telegram_id" db:"telegram_id"`
	FullName   string    `json:"full_name" db:"full_name"`
	Username   string    `json:"username" db:"username"`
	Phone      string    `json:"phone" db:"phone"`
	Role       Role      `json:"role" db:"role"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
