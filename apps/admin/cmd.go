package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errNoPassword = errors.New("a password is required")
)

type commandLine struct {
	conf    *core.Config
	db      *sql.DB
	usrRepo user.Repository
}

// rootCommand builds the admin command tree.
func (cli *commandLine) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "MyCourse administration tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		cli.migrateCommand(),
		cli.resetPasswordCommand(),
		cli.addUserCommand(),
		cli.roleCommand("assignrole", "Assign a role to a user", true),
		cli.roleCommand("revokerole", "Revoke a role from a user", false),
	)
	return cmd
}

func (cli *commandLine) run(out io.Writer, args ...string) error {
	cmd := cli.rootCommand()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	return cmd.Execute()
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter password: ")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if strings.TrimSpace(string(pwd)) == "" {
		return "", errNoPassword
	}
	return string(pwd), nil
}
