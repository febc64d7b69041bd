// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"strings"
	"time"

	"agentfit/cli/internal/backend"
	"agentfit/cli/internal/catalog"
	"agentfit/cli/internal/command"
	"agentfit/cli/internal/config"
	"agentfit/cli/internal/dsn"
	apperr "agentfit/cli/internal/errors"
	"agentfit/cli/internal/journey"
	"agentfit/cli/internal/lifecycle"
	"agentfit/cli/internal/orchestrator"
	"agentfit/cli/internal/scenario"
	"agentfit/cli/internal/sqlexec"
	"agentfit/cli/internal/translator"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// dataTarget is the catalog and executor commands run against.
type dataTarget struct {
	pool    *pgxpool.Pool
	catalog *catalog.Snapshot
	exec    command.Executor
}

func (t *dataTarget) close() {
	if t != nil && t.pool != nil {
		t.pool.Close()
	}
}

// connectPool opens and pings a pool for the configured DSN.
func connectPool(ctx context.Context, raw string) (*pgxpool.Pool, error) {
	normalized, err := dsn.Normalize(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.ConfigError, "invalid database connection string", err)
	}
	pool, err := pgxpool.New(ctx, normalized)
	if err != nil {
		return nil, apperr.Wrap(apperr.ConfigError, "invalid database connection string", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, apperr.Wrap(apperr.ExecutionError, "database is not reachable", err)
	}
	return pool, nil
}

// openTarget loads the catalog from the database, or from catalog_file when no
// DSN is configured, and builds the configured executor when withExecutor is set.
func openTarget(ctx context.Context, withExecutor bool) (*dataTarget, error) {
	t := &dataTarget{}
	switch {
	case strings.TrimSpace(cfg.DB.DSN) != "":
		pool, err := connectPool(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		t.pool = pool
		snap, err := catalog.LoadPostgres(ctx, pool, cfg.DB.Schema, logger)
		if err != nil {
			t.close()
			return nil, apperr.Wrap(apperr.ExecutionError, "load catalog", err)
		}
		if cfg.CatalogFile != "" {
			if snap, err = catalog.WithOverlay(snap, cfg.CatalogFile); err != nil {
				t.close()
				return nil, apperr.Wrap(apperr.ConfigError, "load catalog overlay", err)
			}
		}
		t.catalog = snap
	case cfg.CatalogFile != "":
		snap, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, apperr.Wrap(apperr.ConfigError, "load catalog file", err)
		}
		t.catalog = snap
	default:
		return nil, apperr.New(apperr.ConfigError, "no database connection or catalog file configured; run 'agentfit connect' or set catalog_file")
	}
	logger.Debug("catalog loaded", zap.Int("tables", len(t.catalog.Tables())))

	if !withExecutor {
		return t, nil
	}
	switch cfg.Executor {
	case config.ExecutorHTTP:
		t.exec = backend.NewHTTP(cfg.API.BaseURL, cfg.API.Token, cfg.HTTP.Timeout, logger)
	default:
		if t.pool == nil {
			return nil, apperr.New(apperr.ConfigError, "the sql executor needs a database connection; run 'agentfit connect' or set executor to http")
		}
		t.exec = sqlexec.New(t.pool, t.catalog, cfg.DB.Schema, logger)
	}
	return t, nil
}

// runSettings are the per-invocation overrides of the orchestrator config.
type runSettings struct {
	root              string
	apiBaseURL        string
	dryRun            bool
	continueOnFailure bool
}

// newOrchestrator wires the runners over t. A nil t leaves only API journeys runnable.
func newOrchestrator(t *dataTarget, rs runSettings, opts ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	jr, err := journey.NewRunner(journey.Config{Timeout: cfg.HTTP.Timeout, Token: cfg.API.Token, Logger: logger})
	if err != nil {
		return nil, err
	}
	all := []orchestrator.Option{orchestrator.WithLogger(logger), orchestrator.WithJourneyRunner(jr)}
	if t != nil {
		scen := scenario.NewRunner(translator.New(t.catalog, logger), t.exec, logger)
		all = append(all,
			orchestrator.WithScenarioRunner(scen),
			orchestrator.WithLifecycleRunner(lifecycle.NewRunner(scen, logger)),
		)
	}
	all = append(all, opts...)

	base := rs.apiBaseURL
	if base == "" {
		base = cfg.API.BaseURL
	}
	return orchestrator.New(orchestrator.Config{
		Root:              rs.root,
		WorkspaceDir:      cfg.WorkspaceDir,
		APIBaseURL:        base,
		DryRun:            rs.dryRun,
		ContinueOnFailure: rs.continueOnFailure,
	}, all...), nil
}
