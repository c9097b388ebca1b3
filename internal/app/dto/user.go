package dto

import (
	"time"

	"github.com/Lookout84/agromarket/internal/domain/user"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Region    string    `json:"region,omitempty"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

func FromUser(account *user.User) User {
	roles := make([]string, 0, len(account.Roles))
	for _, role := range account.Roles {
		roles = append(roles, string(role))
	}
	return User{
		ID:        string(account.ID),
		Email:     account.Email,
		Name:      account.Name,
		Phone:     account.Phone,
		Region:    account.Region,
		Roles:     roles,
		CreatedAt: account.CreatedAt,
	}
}
