package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
)

var (
	// errors
	ErrNotFound            = errors.New("user not found")
	ErrEmailExists         = errors.New("a user with this email already exists")
	ErrUnknown             = errors.New("unknown user")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrLockedOut           = errors.New("account locked out, try again later")
	ErrEmailNotConfirmed   = errors.New("email address not confirmed")
	ErrAccountDeactivated  = errors.New("account deactivated")
	ErrInvalidResetToken   = errors.New("invalid password reset link")
	ErrInvalidConfirmToken = errors.New("invalid email confirmation link")
)

type (
	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists when another user (not in excludedUsers) has this email.
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.FullName or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// UpdateUser saves every field of usr, roles included.
		UpdateUser(ctx context.Context, usr User) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) (int, error)
	}

	ServiceInterface interface {
		CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error
		Register(ctx context.Context, nu NewUser) (User, error)
		ConfirmEmail(ctx context.Context, data ConfirmEmail) (User, error)
		CheckCredentials(ctx context.Context, email, pwd string) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUsersInRole(ctx context.Context, role string) ([]User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		Delete(ctx context.Context, ids ...string) error
		AssignRole(ctx context.Context, ra RoleAssignment) (User, error)
		RevokeRole(ctx context.Context, ra RoleAssignment) (User, error)
	}

	Service struct {
		repo      Repository
		mailSvc   core.EmailService
		logger    core.Logger
		tokens    tokenGenerator
		adminMail string
		maxFailed int
		lockout   time.Duration
		reqConf   bool
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(conf *core.Config, repo Repository, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:      repo,
		mailSvc:   mailSvc,
		logger:    logger,
		tokens:    newTokenGenerator(conf.SecretKey, conf.Server.PasswordResetTimeoutDelta),
		adminMail: conf.Users.AssignAdministratorRoleOnRegistration,
		maxFailed: conf.Users.MaxFailedAccessAttempts,
		lockout:   conf.Users.LockoutDuration,
		reqConf:   conf.Users.RequireConfirmedAccount,
	}
}

func (svc *Service) CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers...); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		return err
	}
	return nil
}

// Register creates an unconfirmed User and sends them the confirmation email.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		FullName:       nu.FullName,
		Email:          nu.Email,
		IsActive:       true,
		EmailConfirmed: !svc.reqConf,
		Roles:          []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if svc.adminMail != "" && strings.EqualFold(strings.TrimSpace(svc.adminMail), nu.Email) {
		usr.AddRole(RoleAdministrator)
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}

	if !usr.EmailConfirmed {
		if err = svc.sendUserEmail(usr, PurposeEmailConfirmation, "Confirm your email", "confirm_email"); err != nil {
			return User{}, err
		}
	}
	return usr, nil
}

func (svc *Service) ConfirmEmail(ctx context.Context, data ConfirmEmail) (User, error) {
	usr, err := svc.getUserFromUID(ctx, data.UID)
	if err != nil {
		return User{}, core.NewValidationError(ErrInvalidConfirmToken)
	}
	if usr.EmailConfirmed {
		return usr, nil
	}
	if err = svc.tokens.VerifyToken(usr, PurposeEmailConfirmation, data.Token); err != nil {
		return User{}, core.NewValidationError(ErrInvalidConfirmToken)
	}

	usr.EmailConfirmed = true
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// CheckCredentials authenticates a User. Wrong passwords count towards a temporary lockout.
func (svc *Service) CheckCredentials(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}

	now := time.Now().UTC()
	if usr.IsLockedOut(now) {
		return User{}, ErrLockedOut
	}

	if err = usr.CheckPassword(pwd); err != nil {
		usr.AccessFailedCount++
		if svc.maxFailed > 0 && usr.AccessFailedCount >= svc.maxFailed {
			usr.AccessFailedCount = 0
			usr.LockoutEnd = now.Add(svc.lockout)
			svc.logger.Warn(fmt.Sprintf("user %s locked out", usr.ID))
		}
		if _, uErr := svc.repo.UpdateUser(ctx, usr); uErr != nil {
			return User{}, errors.Wrap(uErr, "recording failed access")
		}
		if usr.IsLockedOut(now) {
			return User{}, ErrLockedOut
		}
		return User{}, ErrInvalidCredentials
	}

	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	if svc.reqConf && !usr.EmailConfirmed {
		return User{}, ErrEmailNotConfirmed
	}

	usr.AccessFailedCount = 0
	usr.LockoutEnd = time.Time{}
	usr.LastLogin = now
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}

func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrAccountDeactivated
	}
	return svc.sendUserEmail(usr, PurposePasswordReset, "Password Reset", "password_reset")
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) (User, error) {
	usr, err := svc.getUserFromUID(ctx, data.UID)
	if err != nil {
		return User{}, core.NewValidationError(ErrInvalidResetToken)
	}
	if err = svc.tokens.VerifyToken(usr, PurposePasswordReset, data.Token); err != nil {
		return User{}, core.NewValidationError(ErrInvalidResetToken)
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.AccessFailedCount = 0
	usr.LockoutEnd = time.Time{}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{Email: email})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetUsersInRole(ctx context.Context, role string) ([]User, error) {
	return svc.repo.QueryUsers(ctx, &QueryFilter{Role: role}, nil)
}

// Update applies a validated UpdateUser on usr.
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	if uu.FullName != "" {
		usr.FullName = uu.FullName
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteUsersByID(ctx, ids...)
	return err
}

func (svc *Service) AssignRole(ctx context.Context, ra RoleAssignment) (User, error) {
	return svc.changeRole(ctx, ra, true)
}

func (svc *Service) RevokeRole(ctx context.Context, ra RoleAssignment) (User, error) {
	return svc.changeRole(ctx, ra, false)
}

func (svc *Service) changeRole(ctx context.Context, ra RoleAssignment, assign bool) (User, error) {
	usr, err := svc.GetByEmail(ctx, ra.Email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrUnknown
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}

	var changed bool
	if assign {
		changed = usr.AddRole(ra.Role)
	} else {
		changed = usr.RemoveRole(ra.Role)
	}
	if !changed {
		return usr, nil
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) getUserFromUID(ctx context.Context, uid string) (User, error) {
	id, err := decodeUID(uid)
	if err != nil {
		return User{}, err
	}
	return svc.GetByID(ctx, id)
}

func (svc *Service) sendUserEmail(usr User, purpose, subject, tmpl string) error {
	token, err := svc.tokens.MakeToken(usr, purpose)
	if err != nil {
		return errors.Wrap(err, "making token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: map[string]interface{}{
			"Name":  usr.FullName,
			"UID":   EncodeUID(usr),
			"Token": token,
		},
	})
	return nil
}
