// Package pipeline drives one contact enrichment run: pending companies are
// searched, candidates scored, selected profiles scraped, and the resulting
// contacts persisted before the companies are marked processed.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/contacts-cli/internal/cost"
	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/reconcile"
	"github.com/sells-group/contacts-cli/internal/resilience"
	"github.com/sells-group/contacts-cli/internal/warehouse"
)

// Searcher runs a web search query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchHit, error)
}

// Evaluator scores a candidate profile.
type Evaluator interface {
	Evaluate(ctx context.Context, c model.CandidateProfile) (model.Evaluation, error)
}

// Scraper fetches full profiles for a set of profile URLs.
type Scraper interface {
	Scrape(ctx context.Context, urls []string) ([]model.ScrapedProfile, error)
}

// Tracker reads and updates the control table.
type Tracker interface {
	GetPending(ctx context.Context, batchSize int) ([]model.Company, error)
	MarkProcessed(ctx context.Context, companies []model.Company, contacts []model.Contact) (int, error)
}

// ContactWriter persists contacts.
type ContactWriter interface {
	Save(ctx context.Context, contacts []model.Contact) (warehouse.UpsertResult, error)
	Deduplicate(ctx context.Context) (int64, error)
}

// Pipeline sequences the run stages.
type Pipeline struct {
	searcher  Searcher
	evaluator Evaluator
	scraper   Scraper
	tracker   Tracker
	contacts  ContactWriter

	queries      []string
	companyDelay time.Duration
	evalDelay    time.Duration
	retry        resilience.RetryConfig
	formatter    *reconcile.Formatter
	costs        *cost.Calculator
	aiModel      string
	now          func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithQueries sets the search query templates.
func WithQueries(q []string) Option {
	return func(p *Pipeline) {
		if len(q) > 0 {
			p.queries = q
		}
	}
}

// WithDelays sets the minimum spacing between companies and between evaluations.
func WithDelays(company, eval time.Duration) Option {
	return func(p *Pipeline) {
		p.companyDelay = company
		p.evalDelay = eval
	}
}

// WithRetry sets the retry policy for external calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(p *Pipeline) {
		p.retry = cfg
	}
}

// WithCost sets the calculator and the model name used to price tokens.
func WithCost(calc *cost.Calculator, aiModel string) Option {
	return func(p *Pipeline) {
		if calc != nil {
			p.costs = calc
		}
		p.aiModel = aiModel
	}
}

// WithClock overrides the clock used for timings and scraped_at.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
		p.formatter = reconcile.NewFormatter().WithClock(now)
	}
}

// New creates a Pipeline.
func New(s Searcher, e Evaluator, sc Scraper, t Tracker, cw ContactWriter, opts ...Option) *Pipeline {
	p := &Pipeline{
		searcher:  s,
		evaluator: e,
		scraper:   sc,
		tracker:   t,
		contacts:  cw,
		queries:   DefaultQueries,
		retry:     resilience.DefaultRetryConfig(),
		formatter: reconcile.NewFormatter(),
		costs:     cost.NewCalculator(cost.DefaultRates()),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// limiter spaces calls by at least d; zero means unlimited.
func limiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

type searchOutcome struct {
	candidates []model.CandidateProfile
	queries    int
	failed     int
}

type evalOutcome struct {
	scored       []model.ScoredCandidate
	failed       int
	inputTokens  int64
	outputTokens int64
}

type scrapeOutcome struct {
	urls     []string
	profiles []model.ScrapedProfile
	deferred map[string]bool
}

// Run executes one batch. The returned result is never nil once options are
// valid; a non-nil error means the run failed and Success is false.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*model.RunResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	started := p.now()
	log := zap.L().With(zap.String("run_id", runID))
	log.Info("pipeline: run started",
		zap.Int("batch_size", opts.BatchSize),
		zap.Int("max_per_company", opts.MaxPerCompany),
		zap.Int("min_score", opts.MinScore),
	)

	res := &model.RunResult{RunID: runID, StartedAt: started}
	fail := func(err error) (*model.RunResult, error) {
		res.Error = err.Error()
		p.price(res)
		p.finish(res, log)
		log.Error("pipeline: run failed", zap.Error(err))
		return res, err
	}

	companies, err := p.tracker.GetPending(ctx, opts.BatchSize)
	if err != nil {
		return fail(eris.Wrap(err, "pipeline: get pending companies"))
	}
	res.CompaniesRequested = len(companies)
	if len(companies) == 0 {
		log.Info("pipeline: no pending companies")
		res.Success = true
		p.finish(res, log)
		return res, nil
	}

	search, err := p.search(ctx, companies, opts.MaxPerCompany, log)
	if err != nil {
		return fail(err)
	}
	res.ProfilesFound = len(search.candidates)
	res.SearchQueries = search.queries

	evals, err := p.evaluate(ctx, search.candidates, log)
	if err != nil {
		return fail(err)
	}
	res.ProfilesEvaluated = len(evals.scored)
	res.EvaluationsFailed = evals.failed
	res.InputTokens = evals.inputTokens
	res.OutputTokens = evals.outputTokens

	selected := selectCandidates(evals.scored, opts.MinScore)
	res.ProfilesSelected = len(selected)

	scraped := p.scrape(ctx, selected, log)
	res.ProfilesScraped = len(scraped.profiles)
	res.EstimatedScrapeCostUSD = p.costs.Scrape(len(scraped.urls))
	p.price(res)

	contacts := p.formatter.Format(reconcile.Merge(selected, scraped.profiles))
	res.Contacts = contacts
	for _, c := range contacts {
		if c.NeedsReview {
			res.ContactsFlagged++
		}
	}

	if len(contacts) > 0 {
		up, err := p.contacts.Save(ctx, contacts)
		if err != nil {
			return fail(eris.Wrap(err, "pipeline: persist contacts"))
		}
		res.ContactsPersisted = len(contacts)
		res.ContactsInserted = up.Inserted
		res.ContactsUpdated = up.Updated
		res.CountsEstimated = up.Estimated
		res.FellBack = up.FellBack

		if up.FellBack {
			if _, err := p.contacts.Deduplicate(ctx); err != nil {
				log.Warn("pipeline: contact dedup after fallback failed", zap.Error(err))
			}
		}
	}

	processed := make([]model.Company, 0, len(companies))
	for _, c := range companies {
		if scraped.deferred[c.BusinessID] {
			continue
		}
		processed = append(processed, c)
	}
	res.CompaniesDeferred = len(companies) - len(processed)

	marked, err := p.tracker.MarkProcessed(ctx, processed, contacts)
	if err != nil {
		return fail(eris.Wrap(err, "pipeline: mark processed"))
	}
	res.CompaniesProcessed = len(processed)
	res.ControlRows = marked

	res.Success = true
	p.finish(res, log)
	return res, nil
}

// price fills the search and AI estimates and the total. The scrape estimate
// is set when the scrape stage runs.
func (p *Pipeline) price(res *model.RunResult) {
	res.EstimatedSearchCostUSD = p.costs.Search(res.SearchQueries)
	res.EstimatedAICostUSD = p.costs.Claude(p.aiModel, res.InputTokens, res.OutputTokens)
	res.EstimatedCostUSD = res.EstimatedSearchCostUSD + res.EstimatedAICostUSD + res.EstimatedScrapeCostUSD
}

func (p *Pipeline) finish(res *model.RunResult, log *zap.Logger) {
	res.FinishedAt = p.now()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)
	log.Info("pipeline: run finished",
		zap.Bool("success", res.Success),
		zap.Int("companies", res.CompaniesProcessed),
		zap.Int("deferred", res.CompaniesDeferred),
		zap.Int("profiles_found", res.ProfilesFound),
		zap.Int("profiles_selected", res.ProfilesSelected),
		zap.Int("contacts", res.ContactsPersisted),
		zap.Int("search_queries", res.SearchQueries),
		zap.Int64("input_tokens", res.InputTokens),
		zap.Int64("output_tokens", res.OutputTokens),
		zap.Float64("cost_usd", res.EstimatedCostUSD),
		zap.Duration("duration", res.Duration),
	)
}

// search runs every query template per company. A failed query counts as
// zero results.
func (p *Pipeline) search(ctx context.Context, companies []model.Company, maxPerCompany int, log *zap.Logger) (searchOutcome, error) {
	var out searchOutcome
	lim := limiter(p.companyDelay)
	retry := p.retry.For("serper", "search")

	for _, company := range companies {
		if err := lim.Wait(ctx); err != nil {
			return out, eris.Wrap(err, "pipeline: search")
		}

		seen := make(map[string]bool)
		var found []model.CandidateProfile
		for _, tmpl := range p.queries {
			if len(found) >= maxPerCompany {
				break
			}
			query := BuildQuery(tmpl, company.BusinessName)
			out.queries++
			hits, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]SearchHit, error) {
				return p.searcher.Search(ctx, query)
			})
			if err != nil {
				if ctx.Err() != nil {
					return out, eris.Wrap(ctx.Err(), "pipeline: search")
				}
				out.failed++
				log.Warn("pipeline: search query failed",
					zap.String("business_id", company.BusinessID),
					zap.String("query", query),
					zap.Error(err),
				)
				continue
			}
			found = collectCandidates(company, query, hits, seen, maxPerCompany, found)
		}

		log.Debug("pipeline: company searched",
			zap.String("business_id", company.BusinessID),
			zap.Int("candidates", len(found)),
		)
		out.candidates = append(out.candidates, found...)
	}
	return out, nil
}

// evaluate scores each candidate. A failed evaluation skips the candidate.
func (p *Pipeline) evaluate(ctx context.Context, candidates []model.CandidateProfile, log *zap.Logger) (evalOutcome, error) {
	var out evalOutcome
	lim := limiter(p.evalDelay)
	retry := p.retry.For("anthropic", "evaluate")

	for _, c := range candidates {
		if err := lim.Wait(ctx); err != nil {
			return out, eris.Wrap(err, "pipeline: evaluate")
		}
		ev, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (model.Evaluation, error) {
			return p.evaluator.Evaluate(ctx, c)
		})
		if err != nil {
			if ctx.Err() != nil {
				return out, eris.Wrap(ctx.Err(), "pipeline: evaluate")
			}
			out.failed++
			log.Warn("pipeline: evaluation failed",
				zap.String("profile_url", c.ProfileURL),
				zap.Error(err),
			)
			continue
		}
		out.inputTokens += ev.InputTokens
		out.outputTokens += ev.OutputTokens
		out.scored = append(out.scored, model.ScoredCandidate{Candidate: c, Evaluation: ev})
	}
	return out, nil
}

func selectCandidates(scored []model.ScoredCandidate, minScore int) []model.ScoredCandidate {
	var out []model.ScoredCandidate
	for _, s := range scored {
		if s.Evaluation.Score >= minScore {
			out = append(out, s)
		}
	}
	return out
}

// scrape fetches all selected profiles in one call. On failure every company
// with a selected candidate is deferred so it stays pending.
func (p *Pipeline) scrape(ctx context.Context, selected []model.ScoredCandidate, log *zap.Logger) scrapeOutcome {
	out := scrapeOutcome{deferred: map[string]bool{}}
	seen := make(map[string]bool)
	for _, s := range selected {
		key := reconcile.NormalizeProfileURL(s.Candidate.ProfileURL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out.urls = append(out.urls, s.Candidate.ProfileURL)
	}
	if len(out.urls) == 0 {
		return out
	}

	// One call per batch: the scraper retries its own API calls.
	profiles, err := p.scraper.Scrape(ctx, out.urls)
	if err != nil {
		for _, s := range selected {
			out.deferred[s.Candidate.BusinessID] = true
		}
		log.Error("pipeline: scrape failed, deferring companies",
			zap.Int("profiles", len(out.urls)),
			zap.Int("companies", len(out.deferred)),
			zap.Error(err),
		)
		return out
	}
	out.profiles = profiles
	return out
}
