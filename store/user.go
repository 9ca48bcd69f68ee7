package store

// Role is the role of a user.
type Role string

const (
	// RoleAdmin can manage configuration and other users.
	RoleAdmin Role = "ADMIN"
	// RoleUser is the regular workforce-planner role.
	RoleUser Role = "USER"
)

type User struct {
	ID        int32
	Username  string
	Nickname  string
	Role      Role
	CreatedTs int64
	UpdatedTs int64
	RowStatus RowStatus
}

type FindUser struct {
	ID        *int32
	Username  *string
	Role      *Role
	RowStatus *RowStatus
}

type UpdateUser struct {
	ID        int32
	Nickname  *string
	Role      *Role
	RowStatus *RowStatus
	UpdatedTs *int64
}

type DeleteUser struct {
	ID int32
}
