package domain

import "fmt"

type Role string

const (
	RolePresenter Role = "presenter"
	RoleViewer    Role = "viewer"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePresenter, RoleViewer:
		return Role(s), nil
	case "":
		return "", fmt.Errorf("role is required: %w", ErrInvalidJoinRequest)
	default:
		return "", fmt.Errorf("unknown role %q: %w", s, ErrInvalidJoinRequest)
	}
}
