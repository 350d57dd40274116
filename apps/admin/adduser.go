package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/user"
)

func (cli *commandLine) addUserCommand() *cobra.Command {
	var (
		name, email string
		roles       []string
	)
	cmd := &cobra.Command{
		Use:   "adduser --name NAME --email EMAIL [--role ROLE]...",
		Short: "Create or update an active, confirmed user. The password is prompted next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := promptPassword(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd.Context(), name, email, pwd, roles)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s saved with id %s\n", usr.Email, usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "the user's full name")
	cmd.Flags().StringVar(&email, "email", "", "the user's email")
	cmd.Flags().StringSliceVar(&roles, "role", nil, fmt.Sprintf("roles to assign, one of %v", user.AllRoles))
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, name, email, pwd string, roles []string) (user.User, error) {
	email = core.CleanString(email, true /* lower */)
	for _, role := range roles {
		if !core.ContainsString(user.AllRoles, role) {
			return user.User{}, errors.Errorf("unknown role %q", role)
		}
	}

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return user.User{}, err
		}
		usr = user.User{Email: email, Roles: []string{}, CreatedAt: now}
	}
	if name = core.CleanString(name); name != "" {
		usr.FullName = name
	}
	if usr.FullName == "" {
		return user.User{}, errors.New("a name is required for new users")
	}
	for _, role := range roles {
		usr.AddRole(role)
	}
	usr.IsActive = true
	usr.EmailConfirmed = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, errors.Wrap(err, "setting password")
	}
	return cli.usrRepo.UpdateOrCreateUser(ctx, usr)
}
