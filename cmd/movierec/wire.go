package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/movierec/internal/config"
	"github.com/knowledge-engine/movierec/internal/corpus"
	"github.com/knowledge-engine/movierec/internal/datasource"
	"github.com/knowledge-engine/movierec/internal/engine"
	"github.com/knowledge-engine/movierec/internal/enrich"
	"github.com/knowledge-engine/movierec/internal/fetcher"
	"github.com/knowledge-engine/movierec/internal/politeness"
	"github.com/knowledge-engine/movierec/internal/provider"
	"github.com/knowledge-engine/movierec/internal/storage"
)

// buildEngine assembles the engine and its collaborators from cfg.
// The returned cleanup releases open resources.
func buildEngine(cfg *config.Config, logger *logrus.Entry) (*engine.Engine, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.WithError(err).Warn("Cleanup failed")
			}
		}
	}

	var source corpus.Source
	switch strings.ToLower(cfg.Dataset.Driver) {
	case "", "csv":
		source = datasource.NewCSVSource(cfg.Dataset.Path, logger.WithField("component", "csv_source"))
	case "sqlite":
		db, err := datasource.OpenSQLite(cfg.Dataset.Path, logger.WithField("component", "sqlite_source"))
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, db.Close)
		source = db
	default:
		return nil, cleanup, fmt.Errorf("unknown dataset driver %q", cfg.Dataset.Driver)
	}

	var discovered *storage.FileStorage
	if cfg.Dataset.DiscoveredDir != "" {
		store, err := storage.NewFileStorage(cfg.Dataset.DiscoveredDir)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, store.Close)
		discovered = store
		source = datasource.WithDiscovered(source, store)
	}

	cache := corpus.New(source, cfg.Cache.TTL, logger.WithField("component", "corpus_cache"))
	eng := engine.NewEngine(cache, logger.WithField("component", "engine"))
	if discovered != nil {
		eng.Discovered = discovered
	}

	gate := politeness.NewGate(cfg.Politeness, logger.WithField("component", "politeness_gate"))
	f := fetcher.NewFetcher(fetcher.Config{
		Name:      cfg.Provider.Name + "-api",
		Timeout:   cfg.Politeness.RequestTimeout,
		UserAgent: cfg.Politeness.UserAgent,
		Breaker:   cfg.Breaker,
	}, gate, logger.WithField("component", "fetcher"))

	catalog, err := provider.New(cfg.Provider, f)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	if catalog != nil {
		eng.Lookup = catalog
		eng.Breaker = f
		eng.Gate = gate
		if cfg.Enrichment.Enabled {
			eng.Enricher = enrich.New(catalog, enrich.Config{
				Workers:       cfg.Enrichment.Workers,
				LookupTimeout: cfg.Enrichment.LookupTimeout,
				CacheSize:     cfg.Enrichment.CacheSize,
				CacheTTL:      cfg.Enrichment.CacheTTL,
			}, logger.WithField("component", "enricher"))
		}
		logger.WithField("provider", catalog.Name()).Info("External catalogue enabled")
	}

	return eng, cleanup, nil
}
