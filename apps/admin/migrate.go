package main

import (
	"github.com/spf13/cobra"
	"github.com/trezcool/goose"

	"github.com/trezcool/mycourse/fs"
	"github.com/trezcool/mycourse/storage/database"
)

var gooseRunFunc = goose.RunFS // mockable

func (cli *commandLine) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS]",
		Short: "Run a goose migration command (up, up-to, down, down-to, redo, reset, status, version, create, fix)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.migrate(args)
		},
	}
}

func (cli *commandLine) migrate(args []string) error {
	engine := cli.conf.Database.Engine
	if err := database.SetMigrationsDialect(engine); err != nil {
		return err
	}
	return gooseRunFunc(args[0], cli.db, appfs.FS, appfs.MigrationsDir(engine), args[1:]...)
}
