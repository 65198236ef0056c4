package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contacts-cli/internal/config"
	"github.com/sells-group/contacts-cli/internal/control"
	"github.com/sells-group/contacts-cli/internal/cost"
	"github.com/sells-group/contacts-cli/internal/evaluate"
	"github.com/sells-group/contacts-cli/internal/pipeline"
	"github.com/sells-group/contacts-cli/internal/warehouse"
	anthropicpkg "github.com/sells-group/contacts-cli/pkg/anthropic"
	"github.com/sells-group/contacts-cli/pkg/apify"
	"github.com/sells-group/contacts-cli/pkg/serper"
)

// storeEnv holds the warehouse and the components built on it.
type storeEnv struct {
	Warehouse warehouse.Warehouse
	Engine    *warehouse.Engine
	Tracker   *control.Tracker
	Contacts  *control.ContactStore
}

// Close releases the warehouse connection.
func (se *storeEnv) Close() {
	if se.Warehouse != nil {
		if err := se.Warehouse.Close(); err != nil {
			zap.L().Warn("close warehouse", zap.Error(err))
		}
	}
}

// openStore connects to the configured warehouse and creates missing tables.
// Callers should defer env.Close().
func openStore(ctx context.Context) (*storeEnv, error) {
	if err := cfg.Validate(config.ModeStore); err != nil {
		return nil, err
	}

	wh, err := warehouse.Open(ctx, cfg.Store.Driver, cfg.Store.DSN(), &warehouse.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open warehouse")
	}

	engine := warehouse.NewEngine(wh)
	if err := engine.Migrate(ctx, cfg.Tables.Specs()...); err != nil {
		_ = wh.Close()
		return nil, eris.Wrap(err, "migrate warehouse")
	}

	return &storeEnv{
		Warehouse: wh,
		Engine:    engine,
		Tracker:   control.NewTracker(engine, cfg.Tables),
		Contacts:  control.NewContactStore(engine, cfg.Tables),
	}, nil
}

// pipelineEnv adds the API clients and the pipeline to a storeEnv.
type pipelineEnv struct {
	*storeEnv
	Pipeline *pipeline.Pipeline
}

// initPipeline validates credentials, opens the store and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	queries, err := pipeline.LoadQueries(cfg.Pipeline.QueriesFile)
	if err != nil {
		return nil, err
	}

	se, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	searcher := pipeline.NewSerperSearcher(
		serper.NewClient(cfg.Serper.Key, serper.WithBaseURL(cfg.Serper.BaseURL)),
		cfg.Serper.Country, cfg.Serper.Language, cfg.Serper.Num,
	)
	evaluator := evaluate.NewEvaluator(
		anthropicpkg.NewClient(cfg.Anthropic.Key),
		evaluate.WithModel(cfg.Anthropic.Model),
		evaluate.WithMaxTokens(cfg.Anthropic.MaxTokens),
	)
	scraper := pipeline.NewApifyScraper(
		apify.NewClient(cfg.Apify.Token, apify.WithBaseURL(cfg.Apify.BaseURL)),
		cfg.Apify.Actor,
		apify.WithPollTimeout(time.Duration(cfg.Apify.PollTimeoutSecs)*time.Second),
	).WithRetry(cfg.Retry.Policy())

	p := pipeline.New(searcher, evaluator, scraper, se.Tracker, se.Contacts,
		pipeline.WithQueries(queries),
		pipeline.WithDelays(cfg.Pipeline.CompanyDelay(), cfg.Pipeline.EvalDelay()),
		pipeline.WithRetry(cfg.Retry.Policy()),
		pipeline.WithCost(cost.NewCalculator(cfg.Pricing.Rates()), cfg.Anthropic.Model),
	)

	zap.L().Info("pipeline initialized",
		zap.String("driver", cfg.Store.Driver),
		zap.Int("queries", len(queries)),
		zap.String("model", cfg.Anthropic.Model),
	)

	return &pipelineEnv{storeEnv: se, Pipeline: p}, nil
}
