package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contacts-cli/internal/cost"
	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/resilience"
	"github.com/sells-group/contacts-cli/internal/warehouse"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type harness struct {
	search   *mockSearcher
	eval     *mockEvaluator
	scrape   *mockScraper
	tracker  *mockTracker
	contacts *mockContactWriter
	p        *Pipeline
}

func newHarness() *harness {
	h := &harness{
		search:   new(mockSearcher),
		eval:     new(mockEvaluator),
		scrape:   new(mockScraper),
		tracker:  new(mockTracker),
		contacts: new(mockContactWriter),
	}
	h.p = New(h.search, h.eval, h.scrape, h.tracker, h.contacts,
		WithQueries([]string{`"{company}" CFO`}),
		WithClock(func() time.Time { return fixedNow }),
		WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
	)
	return h
}

var (
	acme   = model.Company{BusinessID: "B1", BusinessName: "Acme"}
	globex = model.Company{BusinessID: "B2", BusinessName: "Globex"}
)

func companyIDs(cs []model.Company) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.BusinessID)
	}
	return ids
}

func scoring(score int) model.Evaluation {
	return model.Evaluation{
		Score:       score,
		Category:    model.CategoryForScore(score),
		Explanation: "cfo",
		Confidence:  model.ConfidenceFull,
	}
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.tracker.On("GetPending", mock.Anything, 2).Return([]model.Company{acme, globex}, nil)
	h.search.On("Search", mock.Anything, `"Acme" CFO`).Return([]SearchHit{
		{Link: "https://mx.linkedin.com/in/Ana-Perez/", Title: "Ana Pérez - CFO - Acme"},
		{Link: "https://www.linkedin.com/in/ana-perez", Title: "duplicate"},
		{Link: "https://acme.com/about", Title: "not a profile"},
	}, nil)
	h.search.On("Search", mock.Anything, `"Globex" CFO`).Return([]SearchHit{
		{Link: "https://www.linkedin.com/in/bob", Title: "Bob - Intern - Globex"},
	}, nil)

	h.eval.On("Evaluate", mock.Anything, mock.MatchedBy(func(c model.CandidateProfile) bool {
		return c.BusinessID == "B1"
	})).Return(scoring(9), nil)
	h.eval.On("Evaluate", mock.Anything, mock.MatchedBy(func(c model.CandidateProfile) bool {
		return c.BusinessID == "B2"
	})).Return(scoring(2), nil)

	h.scrape.On("Scrape", mock.Anything, []string{"https://mx.linkedin.com/in/Ana-Perez/"}).Return([]model.ScrapedProfile{
		{LinkedInURL: "https://www.linkedin.com/in/ana-perez", FullName: "Ana Pérez", JobTitle: "CFO", CompanyFoundedIn: "1998"},
	}, nil)

	h.contacts.On("Save", mock.Anything, mock.MatchedBy(func(cs []model.Contact) bool {
		return len(cs) == 1 && cs[0].BusinessID == "B1" && cs[0].ProfileURL == "/in/ana-perez"
	})).Return(warehouse.UpsertResult{Success: true, Inserted: 1}, nil)

	h.tracker.On("MarkProcessed", mock.Anything, mock.MatchedBy(func(cs []model.Company) bool {
		return assert.ObjectsAreEqual([]string{"B1", "B2"}, companyIDs(cs))
	}), mock.Anything).Return(2, nil)

	res, err := h.p.Run(ctx, Options{BatchSize: 2, MaxPerCompany: 15, MinScore: 7})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Success)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.CompaniesRequested)
	assert.Equal(t, 2, res.CompaniesProcessed)
	assert.Equal(t, 0, res.CompaniesDeferred)
	assert.Equal(t, 2, res.ProfilesFound)
	assert.Equal(t, 2, res.ProfilesEvaluated)
	assert.Equal(t, 1, res.ProfilesSelected)
	assert.Equal(t, 1, res.ProfilesScraped)
	assert.Equal(t, 1, res.ContactsPersisted)
	assert.Equal(t, 1, res.ContactsInserted)
	assert.Equal(t, 2, res.ControlRows)
	assert.Equal(t, 2, res.SearchQueries)
	assert.InDelta(t, 0.01, res.EstimatedScrapeCostUSD, 1e-9)
	assert.InDelta(t, 0.002, res.EstimatedSearchCostUSD, 1e-9)
	assert.InDelta(t, 0.012, res.EstimatedCostUSD, 1e-9)
	require.Len(t, res.Contacts, 1)
	assert.Equal(t, "Ana Pérez", res.Contacts[0].FullName)
	assert.Equal(t, int64(1998), res.Contacts[0].BusinessFoundedYear)
	assert.Equal(t, fixedNow, res.Contacts[0].ScrapedAt)

	h.contacts.AssertNotCalled(t, "Deduplicate", mock.Anything)
	h.tracker.AssertExpectations(t)
	h.contacts.AssertExpectations(t)
}

func TestRun_InvalidOptions(t *testing.T) {
	h := newHarness()
	res, err := h.p.Run(context.Background(), Options{BatchSize: 0, MaxPerCompany: 15, MinScore: 7})
	require.Error(t, err)
	assert.Nil(t, res)
	h.tracker.AssertNotCalled(t, "GetPending", mock.Anything, mock.Anything)
}

func TestRun_NoPending(t *testing.T) {
	h := newHarness()
	h.tracker.On("GetPending", mock.Anything, 10).Return([]model.Company{}, nil)

	res, err := h.p.Run(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.CompaniesRequested)
	h.search.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	h.tracker.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_SearchFailureIsZeroResults(t *testing.T) {
	h := newHarness()
	h.tracker.On("GetPending", mock.Anything, 10).Return([]model.Company{acme}, nil)
	h.search.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("serper down"))
	h.tracker.On("MarkProcessed", mock.Anything, []model.Company{acme}, []model.Contact{}).Return(1, nil)

	res, err := h.p.Run(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.ProfilesFound)
	assert.Equal(t, 1, res.CompaniesProcessed)
	h.scrape.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
	h.contacts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRun_EvaluationFailureSkipsCandidate(t *testing.T) {
	h := newHarness()
	h.tracker.On("GetPending", mock.Anything, 10).Return([]model.Company{acme}, nil)
	h.search.On("Search", mock.Anything, mock.Anything).Return([]SearchHit{
		{Link: "https://www.linkedin.com/in/ana"},
		{Link: "https://www.linkedin.com/in/luis"},
	}, nil)
	h.eval.On("Evaluate", mock.Anything, mock.MatchedBy(func(c model.CandidateProfile) bool {
		return c.ProfileURL == "https://www.linkedin.com/in/ana"
	})).Return(model.Evaluation{}, errors.New("model error"))
	h.eval.On("Evaluate", mock.Anything, mock.MatchedBy(func(c model.CandidateProfile) bool {
		return c.ProfileURL == "https://www.linkedin.com/in/luis"
	})).Return(scoring(8), nil)
	h.scrape.On("Scrape", mock.Anything, []string{"https://www.linkedin.com/in/luis"}).Return([]model.ScrapedProfile{
		{LinkedInURL: "https://www.linkedin.com/in/luis", FullName: "Luis"},
	}, nil)
	h.contacts.On("Save", mock.Anything, mock.Anything).Return(warehouse.UpsertResult{Success: true, Inserted: 1}, nil)
	h.tracker.On("MarkProcessed", mock.Anything, []model.Company{acme}, mock.Anything).Return(1, nil)

	res, err := h.p.Run(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, res.EvaluationsFailed)
	assert.Equal(t, 1, res.ProfilesEvaluated)
	assert.Equal(t, 1, res.ContactsPersisted)
}

func TestRun_ScrapeFailureDefersCompanies(t *testing.T) {
	h := newHarness()
	h.tracker.On("GetPending", mock.Anything, 10).Return([]model.Company{acme, globex}, nil)
	h.search.On("Search", mock.Anything, `"Acme" CFO`).Return([]SearchHit{{Link: "https://www.linkedin.com/in/ana"}}, nil)
	h.search.On("Search", mock.Anything, `"Globex" CFO`).Return([]SearchHit{}, nil)
	h.eval.On("Evaluate", mock.Anything, mock.Anything).Return(scoring(9), nil)
	h.scrape.On("Scrape", mock.Anything, mock.Anything).Return(nil, errors.New("actor failed"))
	h.tracker.On("MarkProcessed", mock.Anything, []model.Company{globex}, []model.Contact{}).Return(1, nil)

	res, err := h.p.Run(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.CompaniesDeferred)
	assert.Equal(t, 1, res.CompaniesProcessed)
	assert.Zero(t, res.ContactsPersisted)
	h.contacts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	h.tracker.AssertExpectations(t)
}

func TestRun_PersistFailureLeavesControlUntouched(t *testing.T) {
	h := newHarness()
	h.tracker.On("GetPending", mock.Anything, 10).Return([]model.Company{acme}, nil)
	h.search.On("Search", mock.Anything, mock.Anything).Return([]SearchHit{{Link: "https://www.linkedin.com/in/ana"}}, nil)
	h.eval.On("Evaluate", mock.Anything, mock.Anything).Return(scoring(9), nil)
	h.scrape.On("Scrape", mock.Anything, mock.Anything).Return([]model.ScrapedProfile{
		{LinkedInURL: "https://www.linkedin.com/in/ana", FullName: "Ana"},
	}, nil)
	h.contacts.On("Save", mock.Anything, mock.Anything).Return(warehouse.UpsertResult{}, errors.New("warehouse down"))

	res, err := h.p.Run(context.Background(), DefaultOptions())
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "warehouse down")
	h.tracker.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_FallbackTriggersContactDedup(t *testing.T) {
	h := newHarness()
	h.tracker.On("GetPending", mock.Anything, 10).Return([]model.Company{acme}, nil)
	h.search.On("Search", mock.Anything, mock.Anything).Return([]SearchHit{{Link: "https://www.linkedin.com/in/ana"}}, nil)
	h.eval.On("Evaluate", mock.Anything, mock.Anything).Return(scoring(7), nil)
	h.scrape.On("Scrape", mock.Anything, mock.Anything).Return([]model.ScrapedProfile{
		{LinkedInURL: "https://www.linkedin.com/in/ana"},
	}, nil)
	h.contacts.On("Save", mock.Anything, mock.Anything).Return(warehouse.UpsertResult{Success: true, FellBack: true}, nil)
	h.contacts.On("Deduplicate", mock.Anything).Return(int64(1), nil)
	h.tracker.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)

	res, err := h.p.Run(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.FellBack)
	h.contacts.AssertCalled(t, "Deduplicate", mock.Anything)
}

func TestRun_MarkFailureFailsRun(t *testing.T) {
	h := newHarness()
	h.tracker.On("GetPending", mock.Anything, 10).Return([]model.Company{acme}, nil)
	h.search.On("Search", mock.Anything, mock.Anything).Return([]SearchHit{}, nil)
	h.tracker.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(0, errors.New("locked"))

	res, err := h.p.Run(context.Background(), DefaultOptions())
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, err.Error(), "pipeline: mark processed")
}

func TestRun_PendingFailure(t *testing.T) {
	h := newHarness()
	h.tracker.On("GetPending", mock.Anything, 10).Return(nil, errors.New("no table"))

	res, err := h.p.Run(context.Background(), DefaultOptions())
	require.Error(t, err)
	assert.False(t, res.Success)
}

func TestRun_MaxPerCompanyCaps(t *testing.T) {
	h := newHarness()
	h.tracker.On("GetPending", mock.Anything, 10).Return([]model.Company{acme}, nil)
	h.search.On("Search", mock.Anything, mock.Anything).Return([]SearchHit{
		{Link: "https://www.linkedin.com/in/a"},
		{Link: "https://www.linkedin.com/in/b"},
		{Link: "https://www.linkedin.com/in/c"},
	}, nil)
	h.eval.On("Evaluate", mock.Anything, mock.Anything).Return(scoring(1), nil)
	h.tracker.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)

	res, err := h.p.Run(context.Background(), Options{BatchSize: 10, MaxPerCompany: 2, MinScore: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ProfilesFound)
	assert.Zero(t, res.ProfilesSelected)
	h.eval.AssertNumberOfCalls(t, "Evaluate", 2)
}

func TestRun_RetriesTransientSearch(t *testing.T) {
	h := newHarness()
	h.p.retry = resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	h.tracker.On("GetPending", mock.Anything, 10).Return([]model.Company{acme}, nil)
	h.search.On("Search", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("429"), 429)).Once()
	h.search.On("Search", mock.Anything, mock.Anything).
		Return([]SearchHit{{Link: "https://www.linkedin.com/in/a"}}, nil).Once()
	h.eval.On("Evaluate", mock.Anything, mock.Anything).Return(scoring(3), nil)
	h.tracker.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(1, nil)

	res, err := h.p.Run(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProfilesFound)
	h.search.AssertNumberOfCalls(t, "Search", 2)
}

func TestRun_ScrapeInvokedOncePerBatch(t *testing.T) {
	h := newHarness()
	h.p.retry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	h.tracker.On("GetPending", mock.Anything, 10).Return([]model.Company{acme}, nil)
	h.search.On("Search", mock.Anything, mock.Anything).Return([]SearchHit{{Link: "https://www.linkedin.com/in/ana"}}, nil)
	h.eval.On("Evaluate", mock.Anything, mock.Anything).Return(scoring(9), nil)
	h.scrape.On("Scrape", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("run timed out"), 503))
	h.tracker.On("MarkProcessed", mock.Anything, []model.Company{}, []model.Contact{}).Return(0, nil)

	res, err := h.p.Run(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, res.CompaniesDeferred)
	h.scrape.AssertNumberOfCalls(t, "Scrape", 1)
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
	assert.Error(t, Options{BatchSize: 501, MaxPerCompany: 1, MinScore: 0}.Validate())
	assert.Error(t, Options{BatchSize: 1, MaxPerCompany: 51, MinScore: 0}.Validate())
	assert.Error(t, Options{BatchSize: 1, MaxPerCompany: 1, MinScore: 11}.Validate())
	assert.Error(t, Options{BatchSize: 1, MaxPerCompany: 1, MinScore: -1}.Validate())
	assert.NoError(t, Options{BatchSize: 500, MaxPerCompany: 50, MinScore: 10}.Validate())
}

func TestRun_CostAccounting(t *testing.T) {
	h := newHarness()
	calc := cost.NewCalculator(cost.Rates{
		Anthropic: map[string]cost.ModelRate{"m": {Input: 1, Output: 5}},
		Serper:    cost.SerperRate{PerQuery: 0.5},
		Apify:     cost.ApifyRate{PerThousand: 1000},
	})
	WithCost(calc, "m")(h.p)

	h.tracker.On("GetPending", mock.Anything, 1).Return([]model.Company{acme}, nil)
	h.search.On("Search", mock.Anything, mock.Anything).Return([]SearchHit{
		{Link: "https://www.linkedin.com/in/ana", Title: "Ana - CFO"},
		{Link: "https://www.linkedin.com/in/luis", Title: "Luis - Sales"},
	}, nil)
	ev := scoring(8)
	ev.InputTokens = 600_000
	ev.OutputTokens = 100_000
	h.eval.On("Evaluate", mock.Anything, mock.MatchedBy(func(c model.CandidateProfile) bool {
		return c.ProfileURL == "https://www.linkedin.com/in/ana"
	})).Return(ev, nil)
	low := scoring(1)
	low.InputTokens = 400_000
	h.eval.On("Evaluate", mock.Anything, mock.Anything).Return(low, nil)
	h.scrape.On("Scrape", mock.Anything, []string{"https://www.linkedin.com/in/ana"}).
		Return(nil, errors.New("actor down"))
	h.tracker.On("MarkProcessed", mock.Anything, []model.Company{}, []model.Contact{}).Return(0, nil)

	res, err := h.p.Run(context.Background(), Options{BatchSize: 1, MaxPerCompany: 15, MinScore: 7})
	require.NoError(t, err)

	assert.Equal(t, 1, res.SearchQueries)
	assert.Equal(t, int64(1_000_000), res.InputTokens)
	assert.Equal(t, int64(100_000), res.OutputTokens)
	assert.InDelta(t, 0.5, res.EstimatedSearchCostUSD, 1e-9)
	assert.InDelta(t, 1.5, res.EstimatedAICostUSD, 1e-9)
	assert.InDelta(t, 1.0, res.EstimatedScrapeCostUSD, 1e-9)
	assert.InDelta(t, 3.0, res.EstimatedCostUSD, 1e-9)
}
