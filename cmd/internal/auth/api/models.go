package api

import (
	"time"

	"tourdesk/cmd/identity"
	"tourdesk/cmd/internal/auth/gate"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

func toUserResponse(p identity.Principal) userResponse {
	perms := make([]string, 0, len(p.Permissions))
	for _, perm := range p.Permissions {
		perms = append(perms, string(perm))
	}
	return userResponse{
		ID:          p.User.ID,
		Email:       p.User.Email,
		DisplayName: p.User.DisplayName,
		Roles:       nonNil(p.User.Roles),
		Permissions: perms,
	}
}

func identityToUserResponse(id *gate.Identity) userResponse {
	return userResponse{
		ID:          id.UserID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		Roles:       nonNil(id.Roles),
		Permissions: nonNil(id.Permissions),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
