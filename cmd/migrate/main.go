package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Domenick1991/airways/config"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/Domenick1991/airways/internal/migrations"
	"github.com/Domenick1991/airways/internal/repository"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	list := flag.Bool("list", false, "print embedded migration files and exit")
	flag.Parse()

	if *list {
		names, err := migrations.Versions()
		if err != nil {
			log.Fatalf("list migrations: %v", err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zlog := logger.NewZeroLog(cfg.App.Env)

	db, pool, err := repository.OpenPostgres(context.Background(), cfg.Database.DSN(), 2)
	if err != nil {
		zlog.Error("connect failed", logger.Err(err))
		os.Exit(1)
	}
	defer pool.Close()
	defer db.Close()

	if *down > 0 {
		err = migrations.Down(db.DB, *down)
	} else {
		err = migrations.Up(db.DB)
	}
	if err != nil {
		zlog.Error("migration failed", logger.Err(err))
		os.Exit(1)
	}
	zlog.Info("migrations done", logger.F("down", *down))
}
