package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/mycourse/core"
)

// Roles
const (
	RoleAdministrator = "Administrator"
	RoleTeacher       = "Teacher"
)

var AllRoles = []string{RoleAdministrator, RoleTeacher}

type User struct {
	ID                string    `json:"id"`
	FullName          string    `json:"full_name"`
	Email             string    `json:"email"`
	EmailConfirmed    bool      `json:"email_confirmed"`
	IsActive          bool      `json:"is_active"`
	Roles             []string  `json:"roles"`
	PasswordHash      []byte    `json:"-"`
	AccessFailedCount int       `json:"-"`
	LockoutEnd        time.Time `json:"-"`          // UTC
	CreatedAt         time.Time `json:"created_at"` // UTC
	UpdatedAt         time.Time `json:"updated_at"` // UTC
	LastLogin         time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) HasRole(role string) bool {
	return core.ContainsString(u.Roles, role)
}

func (u User) IsAdmin() bool   { return u.HasRole(RoleAdministrator) }
func (u User) IsTeacher() bool { return u.HasRole(RoleTeacher) }

func (u User) IsLockedOut(now time.Time) bool {
	return !u.LockoutEnd.IsZero() && now.Before(u.LockoutEnd)
}

// AddRole reports whether the role was added.
func (u *User) AddRole(role string) bool {
	if u.HasRole(role) {
		return false
	}
	u.Roles = append(u.Roles, role)
	return true
}

// RemoveRole reports whether the role was removed.
func (u *User) RemoveRole(role string) bool {
	for i, r := range u.Roles {
		if strings.EqualFold(r, role) {
			u.Roles = append(u.Roles[:i:i], u.Roles[i+1:]...)
			return true
		}
	}
	return false
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	FullName        string `json:"full_name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	RecaptchaToken  string `json:"recaptcha_token,omitempty"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc ServiceInterface) error {
	nu.FullName = core.CleanString(nu.FullName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information a User may change on their own account.
type UpdateUser struct {
	FullName        string `json:"full_name" validate:"omitempty,max=100"`
	Password        string `json:"password,omitempty"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required_with=Password,eqfield=Password"`

	// set by the caller, used by the password policy
	Email string `json:"-"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	name := core.CleanString(uu.FullName)
	if name != "" {
		uu.FullName = name
	} else {
		uu.FullName = origUsr.FullName
	}
	uu.Email = origUsr.Email
	return validate.Struct(uu)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type ConfirmEmail struct {
	Token string `json:"token,omitempty" validate:"required"`
	UID   string `json:"uid,omitempty" validate:"required"`
}

func (ce ConfirmEmail) Validate(validate *validator.Validate) error { return validate.Struct(ce) }

// RoleAssignment is used to assign or revoke a role.
type RoleAssignment struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,role"`
}

func (ra *RoleAssignment) Validate(validate *validator.Validate) error {
	ra.Email = core.CleanString(ra.Email, true /* lower */)
	ra.Role = core.CleanString(ra.Role)
	return validate.Struct(ra)
}

type GetFilter struct {
	ID    string
	Email string
}

type QueryFilter struct {
	Search   string `query:"search"`
	Role     string `query:"role"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role)
}
