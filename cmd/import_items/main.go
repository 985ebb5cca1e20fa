package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"labcafe/internal/config"
	"labcafe/internal/db"
	"labcafe/internal/domain"
	"labcafe/internal/excel"
	"labcafe/internal/money"
	"labcafe/internal/repository"
	"labcafe/internal/service"

	"github.com/sirupsen/logrus"
)

type options struct {
	filePath string
	actorID  string
	dryRun   bool
}

func main() {
	log := logrus.New()
	opts := parseFlags(log)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config error")
	}
	log.SetLevel(cfg.LogLevel)

	rows, err := readCatalogue(opts.filePath, cfg.DefaultCurrency)
	if err != nil {
		log.WithError(err).Fatal("read catalogue file")
	}
	if opts.dryRun {
		for i, row := range rows {
			log.WithFields(logrus.Fields{
				"row":   i + 1,
				"name":  row.Name,
				"price": money.FormatWithCode(row.PriceCents, row.Currency),
				"stock": row.Stock,
			}).Info("catalogue row")
		}
		log.WithField("rows", len(rows)).Info("dry run complete")
		return
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.WithError(err).Fatal("database error")
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, log); err != nil {
		log.WithError(err).Fatal("migration error")
	}

	svc := service.New(repository.New(pool),
		service.WithLogger(log),
		service.WithDefaultCurrency(cfg.DefaultCurrency),
	)
	user, err := svc.ResolveActor(ctx, opts.actorID)
	if err != nil {
		log.WithError(err).WithField("actor_id", opts.actorID).Fatal("resolve actor")
	}

	result, err := svc.ImportCatalogue(ctx, domain.Actor{ID: user.ID, Role: user.Role, IsActive: user.IsActive}, rows)
	if err != nil {
		log.WithError(err).Fatal("import failed")
	}
	log.WithFields(logrus.Fields{
		"file":      filepath.Base(opts.filePath),
		"rows":      len(rows),
		"created":   result.Created,
		"repriced":  result.Repriced,
		"restocked": result.Restocked,
		"skipped":   result.Skipped,
	}).Info("import complete")
}

func parseFlags(log logrus.FieldLogger) options {
	var opts options
	flag.StringVar(&opts.filePath, "file", "catalogue.xlsx", "path to a catalogue .xlsx or .csv file")
	flag.StringVar(&opts.actorID, "actor", os.Getenv("BOOTSTRAP_ADMIN_ID"), "id of the administrator the import is recorded under")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "parse and print the rows without touching the database")
	flag.Parse()
	if opts.actorID == "" && !opts.dryRun {
		log.Fatal("missing -actor (or BOOTSTRAP_ADMIN_ID)")
	}
	return opts
}

func readCatalogue(path, currency string) ([]domain.CatalogueRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return excel.ParseCatalogue(filepath.Base(path), file, currency)
}
