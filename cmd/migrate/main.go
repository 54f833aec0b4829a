package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/movieservice/auth-service/internal/database"
	"github.com/movieservice/auth-service/pkg/logger"
)

const usage = `usage: migrate [up|down [N]|version]

Runs the embedded schema migrations against DATABASE_URL using DATABASE_DRIVER
(postgres, mysql or sqlite).`

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	_ = godotenv.Load()
	viper.AutomaticEnv()
	viper.SetDefault("DATABASE_DRIVER", "postgres")
	logger.Init(viper.GetString("LOG_LEVEL"))

	if err := run(context.Background(), flag.Args()); err != nil {
		logger.Fatalf("migrate: %v", err)
	}
}

func run(ctx context.Context, args []string) error {
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	dialect, err := database.ParseDialect(viper.GetString("DATABASE_DRIVER"))
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, dialect, viper.GetString("DATABASE_URL"))
	if err != nil {
		return err
	}
	m, err := database.NewMigrator(db, dialect)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer m.Close()

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		steps := 1
		if len(args) > 1 {
			if steps, err = strconv.Atoi(args[1]); err != nil || steps < 1 {
				return fmt.Errorf("invalid step count %q", args[1])
			}
		}
		err = m.Steps(-steps)
	case "version":
		v, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			logger.Infof("no migrations applied")
			return nil
		}
		if verr != nil {
			return verr
		}
		logger.Infof("version %d dirty=%v", v, dirty)
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Infof("%s: no change", cmd)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Infof("%s: done", cmd)
	return nil
}
