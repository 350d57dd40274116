package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/services/logger"
	"github.com/trezcool/mycourse/storage/database"
	"github.com/trezcool/mycourse/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatal(err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	logger.Enable(false)
	defer logger.Sync()

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		conf:    conf,
		db:      db.DB,
		usrRepo: sqlxrepos.NewUserRepository(db),
	}
	err = cli.run(os.Stdout, os.Args[1:]...)
	_ = db.Close()
	if err != nil {
		logger.Error(fmt.Sprintf("error: %v", err), err)
		logger.Sync()
		os.Exit(1)
	}
}
