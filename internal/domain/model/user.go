package model

import "time"

const RoleAdmin = "admin"

// User is the read-only directory view the engine needs for contact and admin checks.
type User struct {
	ID        string
	FullName  string
	Email     string
	Phone     string
	Role      string
	CreatedAt time.Time
}
