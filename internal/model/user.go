package model

import "time"

// Participant roles.
const (
	RoleParticipant = "participant"
	RoleAdmin       = "admin"
)

// User represents a challenge participant or company administrator.
type User struct {
	ID                 string
	Email              string
	Name               string
	Role               string
	CompanyID          *string
	ChallengeStartDate time.Time
	AuthHash           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Profile returns the session-facing view of the user.
func (u *User) Profile() Profile {
	return Profile{
		Name:               u.Name,
		Email:              u.Email,
		Role:               u.Role,
		CompanyID:          u.CompanyID,
		ChallengeStartDate: u.ChallengeStartDate,
	}
}

// Profile is the identity data attached to a signed-in session.
type Profile struct {
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Role               string    `json:"role"`
	CompanyID          *string   `json:"company_id,omitempty"`
	ChallengeStartDate time.Time `json:"challenge_start_date"`
}

// CreateUserRequest represents a participant registration request.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse represents an authentication response with a JWT token and user info.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UserResponse represents user data safe for API responses (no sensitive fields).
type UserResponse struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	Role               string    `json:"role"`
	CompanyID          *string   `json:"company_id,omitempty"`
	ChallengeStartDate string    `json:"challenge_start_date"`
	CurrentDay         int       `json:"current_day"`
	CreatedAt          time.Time `json:"created_at"`
}
