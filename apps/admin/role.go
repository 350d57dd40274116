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

func (cli *commandLine) roleCommand(use, short string, assign bool) *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   use + " --email EMAIL --role ROLE",
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			usr, err := cli.changeRole(cmd.Context(), email, role, assign)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s roles: %v\n", usr.Email, usr.Roles)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's email")
	cmd.Flags().StringVar(&role, "role", "", fmt.Sprintf("one of %v", user.AllRoles))
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func (cli *commandLine) changeRole(ctx context.Context, email, role string, assign bool) (user.User, error) {
	role = core.CleanString(role)
	if !core.ContainsString(user.AllRoles, role) {
		return user.User{}, errors.Errorf("unknown role %q", role)
	}
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return user.User{}, err
	}

	var changed bool
	if assign {
		changed = usr.AddRole(role)
	} else {
		changed = usr.RemoveRole(role)
	}
	if !changed {
		return usr, nil
	}
	usr.UpdatedAt = time.Now().UTC()
	return cli.usrRepo.UpdateUser(ctx, usr)
}
