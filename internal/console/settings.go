package console

import (
	"context"
	"errors"
	"strings"

	"gwconsole/internal/models"
	"gwconsole/internal/utils"
)

// ProfileHolder is the session's cached profile.
type ProfileHolder interface {
	Profile() (models.Profile, bool)
	SetProfile(p models.Profile) error
	UpdateProfile(fn func(*models.Profile)) error
}

// SettingsView covers the profile, password, security and user tabs.
type SettingsView struct {
	api          UserAPI
	holder       ProfileHolder
	logger       *utils.Logger
	primaryAdmin string

	profile *Resource[models.Profile]
	users   *Resource[[]models.User]
}

// NewSettingsView creates the view. primaryAdmin names the account that
// delete and disable refuse locally; the server enforces the same rule.
func NewSettingsView(api UserAPI, holder ProfileHolder, primaryAdmin string, opts ViewOptions) *SettingsView {
	return &SettingsView{
		api:          api,
		holder:       holder,
		logger:       opts.Logger,
		primaryAdmin: primaryAdmin,
		profile:      NewResource("profile", api.Profile, opts.Logger, opts.Observer),
		users:        NewResource("users", api.ListUsers, opts.Logger, opts.Observer),
	}
}

// ProfileResource exposes the profile resource.
func (v *SettingsView) ProfileResource() *Resource[models.Profile] { return v.profile }

// UsersResource exposes the user list resource.
func (v *SettingsView) UsersResource() *Resource[[]models.User] { return v.users }

// LoadProfile fetches the profile and caches it in the session.
func (v *SettingsView) LoadProfile(ctx context.Context) (models.Profile, error) {
	if err := v.profile.Refresh(ctx); err != nil {
		return models.Profile{}, err
	}
	p := v.profile.Data()
	if v.holder != nil {
		if err := v.holder.SetProfile(p); err != nil {
			v.logger.Writef("cache profile failed: %v", err)
		}
	}
	return p, nil
}

// Profile returns the session's profile, falling back to the last fetched.
func (v *SettingsView) Profile() models.Profile {
	if v.holder != nil {
		if p, ok := v.holder.Profile(); ok {
			return p
		}
	}
	return v.profile.Data()
}

// ValidateProfile requires first and last name and an email containing @.
func ValidateProfile(p models.ProfilePatch) FieldErrors {
	fe := FieldErrors{}
	if strings.TrimSpace(p.FirstName) == "" {
		fe["firstName"] = "First name is required"
	}
	if strings.TrimSpace(p.LastName) == "" {
		fe["lastName"] = "Last name is required"
	}
	switch {
	case strings.TrimSpace(p.Email) == "":
		fe["email"] = "Email is required"
	case !strings.Contains(p.Email, "@"):
		fe["email"] = "Valid email is required"
	}
	return fe
}

// ValidatePassword requires all fields, matching confirmation, and the
// minimum length.
func ValidatePassword(pc models.PasswordChange) FieldErrors {
	fe := FieldErrors{}
	if pc.CurrentPassword == "" {
		fe["currentPassword"] = "Current password is required"
	}
	if pc.NewPassword == "" {
		fe["newPassword"] = "New password is required"
	}
	if pc.ConfirmPassword == "" {
		fe["confirmPassword"] = "Please confirm your password"
	}
	if pc.NewPassword != pc.ConfirmPassword {
		fe["confirmPassword"] = "Passwords do not match"
	}
	if pc.NewPassword != "" && len(pc.NewPassword) < models.MinPasswordLength {
		fe["newPassword"] = "Password must be at least 8 characters"
	}
	return fe
}

// ValidateNewUser checks the add-user form.
func ValidateNewUser(nu models.NewUser) FieldErrors {
	fe := FieldErrors{}
	if strings.TrimSpace(nu.Username) == "" {
		fe["username"] = "Username is required"
	}
	if strings.TrimSpace(nu.FirstName) == "" {
		fe["firstName"] = "First name is required"
	}
	if strings.TrimSpace(nu.LastName) == "" {
		fe["lastName"] = "Last name is required"
	}
	switch {
	case strings.TrimSpace(nu.Email) == "":
		fe["email"] = "Email is required"
	case !strings.Contains(nu.Email, "@"):
		fe["email"] = "Valid email is required"
	}
	switch {
	case strings.TrimSpace(nu.Password) == "":
		fe["password"] = "Password is required"
	case len(nu.Password) < models.MinPasswordLength:
		fe["password"] = "Password must be at least 8 characters"
	}
	return fe
}

// UpdateProfile validates and sends the profile, then merges it into the
// session.
func (v *SettingsView) UpdateProfile(ctx context.Context, patch models.ProfilePatch) (Notice, error) {
	if fe := ValidateProfile(patch); len(fe) > 0 {
		return failure(firstMessage(fe, "firstName", "lastName", "email")), fe
	}
	patch.FirstName = strings.TrimSpace(patch.FirstName)
	patch.LastName = strings.TrimSpace(patch.LastName)
	patch.Email = strings.TrimSpace(patch.Email)

	next := v.Profile()
	patch.Apply(&next)
	if _, err := v.api.UpdateProfile(ctx, next); err != nil {
		v.logger.Writef("update profile failed: %v", err)
		return failure("Failed to update profile"), err
	}
	v.mergeProfile(func(p *models.Profile) { patch.Apply(p) })
	return success("Profile updated successfully"), nil
}

// UpdatePassword validates locally and sends the change.
func (v *SettingsView) UpdatePassword(ctx context.Context, pc models.PasswordChange) (Notice, error) {
	if fe := ValidatePassword(pc); len(fe) > 0 {
		return failure(firstMessage(fe, "currentPassword", "newPassword", "confirmPassword")), fe
	}
	if err := v.api.UpdatePassword(ctx, pc); err != nil {
		v.logger.Writef("update password failed: %v", err)
		return failure("Failed to update password"), err
	}
	return success("Password updated successfully"), nil
}

// UpdateSecurity sends the security toggles and merges them into the
// session.
func (v *SettingsView) UpdateSecurity(ctx context.Context, s models.SecuritySettings) (Notice, error) {
	if s.SessionTimeoutMinutes <= 0 {
		s.SessionTimeoutMinutes = models.DefaultSessionTimeoutMinutes
	}
	if _, err := v.api.UpdateSecurity(ctx, s); err != nil {
		v.logger.Writef("update security settings failed: %v", err)
		return failure("Failed to update security settings"), err
	}
	v.mergeProfile(func(p *models.Profile) { s.Apply(p) })
	return success("Security settings updated successfully"), nil
}

func (v *SettingsView) mergeProfile(fn func(*models.Profile)) {
	if v.holder == nil {
		return
	}
	if err := v.holder.UpdateProfile(fn); err != nil {
		v.logger.Writef("cache profile failed: %v", err)
	}
}

// LoadUsers refreshes the account list.
func (v *SettingsView) LoadUsers(ctx context.Context) error {
	return v.users.Refresh(ctx)
}

// Users filters accounts on username, role and status.
func (v *SettingsView) Users(search string) []models.User {
	return Filter(v.users.Data(), search, func(u models.User) string {
		return u.Username + " " + u.Role + " " + u.Status
	})
}

// CreateUser validates and creates an account, then reloads the list.
func (v *SettingsView) CreateUser(ctx context.Context, nu models.NewUser) (Notice, error) {
	if fe := ValidateNewUser(nu); len(fe) > 0 {
		return failure(firstMessage(fe, "username", "firstName", "lastName", "email", "password")), fe
	}
	nu.Username = strings.TrimSpace(nu.Username)
	if nu.Role == "" {
		nu.Role = models.RoleUser
	}
	if _, err := v.api.CreateUser(ctx, nu); err != nil {
		v.logger.Writef("create user %s failed: %v", nu.Username, err)
		return failure(upstreamMessage(err, "Failed to create user")), err
	}
	_ = v.users.Refresh(ctx)
	return success("User created successfully"), nil
}

// IsPrimaryAdmin reports whether u is the protected account.
func (v *SettingsView) IsPrimaryAdmin(u models.User) bool {
	return v.primaryAdmin != "" && strings.EqualFold(u.Username, v.primaryAdmin)
}

func (v *SettingsView) findUser(id int64) (models.User, bool) {
	for _, u := range v.users.Data() {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

// DeleteUser deletes an account unless it is the primary admin.
func (v *SettingsView) DeleteUser(ctx context.Context, id int64) (Notice, error) {
	if u, ok := v.findUser(id); ok && v.IsPrimaryAdmin(u) {
		return failure("Cannot delete the primary admin user"), ErrPrimaryAdmin
	}
	if err := v.api.DeleteUser(ctx, id); err != nil {
		v.logger.Writef("delete user %d failed: %v", id, err)
		return failure("Failed to delete user"), err
	}
	_ = v.users.Refresh(ctx)
	return success("User deleted successfully"), nil
}

// ToggleUserStatus flips an account between Active and Disabled unless it
// is the primary admin.
func (v *SettingsView) ToggleUserStatus(ctx context.Context, id int64) (Notice, error) {
	u, ok := v.findUser(id)
	if !ok {
		return failure("User not found"), ErrNotFound
	}
	if v.IsPrimaryAdmin(u) {
		return failure("Cannot modify the primary admin user"), ErrPrimaryAdmin
	}
	activate := u.Status != models.StatusActive
	if _, err := v.api.SetUserStatus(ctx, id, activate); err != nil {
		v.logger.Writef("set status of user %d failed: %v", id, err)
		return failure("Failed to update user status"), err
	}
	_ = v.users.Refresh(ctx)
	if activate {
		return success("User activated successfully"), nil
	}
	return success("User disabled successfully"), nil
}

// IsGuardError reports a local refusal that made no network call.
func IsGuardError(err error) bool {
	if errors.Is(err, ErrPrimaryAdmin) {
		return true
	}
	_, ok := AsFieldErrors(err)
	return ok
}
