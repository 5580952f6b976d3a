package domain

type UserID string

type Role string

const (
	RolePresenter Role = "presenter"
	RoleHost      Role = "host"
	RoleAdmin     Role = "admin"
	RoleViewer    Role = "viewer"
)

// Actor is the current authenticated identity, resolved elsewhere.
type Actor struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

func (r Role) CanBroadcast() bool {
	return r == RolePresenter || r == RoleAdmin
}

func (r Role) CanModerate() bool {
	return r == RoleHost || r == RoleAdmin
}
