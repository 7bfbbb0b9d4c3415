package models

const (
	RoleOrganizer = "organizer"
	RoleUser      = "user"
)

func ValidRole(role string) bool {
	return role == RoleOrganizer || role == RoleUser
}
