package models

import "time"

// Account status and role values used by the admin API.
const (
	StatusActive   = "Active"
	StatusDisabled = "Disabled"

	RoleAdmin = "ADMIN"
	RoleUser  = "USER"

	DefaultSessionTimeoutMinutes = 30
	MinPasswordLength            = 8
)

// Profile is the signed-in operator's own record.
type Profile struct {
	ID                    int64      `json:"id,omitempty"`
	Username              string     `json:"username,omitempty"`
	FirstName             string     `json:"firstName"`
	LastName              string     `json:"lastName"`
	Email                 string     `json:"email"`
	JobTitle              string     `json:"jobTitle,omitempty"`
	Department            string     `json:"department,omitempty"`
	ProfileImageURL       string     `json:"profileImageUrl,omitempty"`
	TwoFactorEnabled      bool       `json:"twoFactorEnabled"`
	SessionTimeoutMinutes int        `json:"sessionTimeoutMinutes,omitempty"`
	NotificationsEnabled  bool       `json:"notificationsEnabled"`
	Role                  string     `json:"role,omitempty"`
	Status                string     `json:"status,omitempty"`
	LastLogin             *time.Time `json:"lastLogin,omitempty"`
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// ProfilePatch carries the editable profile fields.
type ProfilePatch struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	JobTitle   string `json:"jobTitle,omitempty"`
	Department string `json:"department,omitempty"`
}

// Apply merges the patch into p.
func (pp ProfilePatch) Apply(p *Profile) {
	p.FirstName = pp.FirstName
	p.LastName = pp.LastName
	p.Email = pp.Email
	p.JobTitle = pp.JobTitle
	p.Department = pp.Department
}

// PasswordChange is the password form. ConfirmPassword never leaves the
// console.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"-"`
}

// SecuritySettings are the toggles on the security tab.
type SecuritySettings struct {
	TwoFactorEnabled      bool `json:"twoFactorEnabled"`
	SessionTimeoutMinutes int  `json:"sessionTimeoutMinutes"`
	NotificationsEnabled  bool `json:"notificationsEnabled"`
}

// Apply merges the settings into p.
func (s SecuritySettings) Apply(p *Profile) {
	p.TwoFactorEnabled = s.TwoFactorEnabled
	p.SessionTimeoutMinutes = s.SessionTimeoutMinutes
	p.NotificationsEnabled = s.NotificationsEnabled
}

// User is an operator account in the admin listing.
type User = Profile

// NewUser is the create-user payload.
type NewUser struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
}

// StatusChange is the body of PATCH /user/{id}/status.
type StatusChange struct {
	Active *bool `json:"active"`
}

// Message is the generic {"message": ...} response.
type Message struct {
	Message string `json:"message,omitempty"`
}
