// Command dog-homa moves messages between nodes of an emulated link with the
// grant-driven transport.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/admin"
	"github.com/vzex/dog-homa/journal"
	"github.com/vzex/dog-homa/logger"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		os.Exit(1)
	}
	if err := initLog(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.BackendLog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Criticalf("%+v", err)
		logger.BackendLog.Close()
		os.Exit(1)
	}
}

func initLog(cfg *config) error {
	if err := logger.BackendLog.AddLogWriter(os.Stdout, logger.LevelInfo); err != nil {
		return err
	}
	err := logger.InitLog(filepath.Join(cfg.LogDir, defaultLogFilename),
		filepath.Join(cfg.LogDir, defaultErrFilename))
	if err != nil {
		return err
	}
	return logger.SetLogLevels(cfg.DebugLevel)
}

func run(ctx context.Context, cfg *config) error {
	j, store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	if cfg.AdminAddr != "" {
		srv := admin.New(store)
		if err := srv.Listen(cfg.AdminAddr); err != nil {
			return err
		}
		defer srv.Close()
	}

	switch cfg.command {
	case "send":
		return runSend(ctx, cfg, j)
	case "sink":
		return runSink(ctx, cfg)
	}
	return errors.Errorf("unknown command %q", cfg.command)
}

func openJournal(cfg *config) (journal.Journal, admin.OutcomeStore, error) {
	switch cfg.Journal {
	case "leveldb":
		db, err := journal.OpenLevelDB(filepath.Join(cfg.DataDir, defaultJournalDir))
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	case "mysql":
		db, err := journal.OpenMySQL(cfg.mysql)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}
	return journal.Discard, nil, nil
}
