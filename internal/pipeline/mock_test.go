package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/warehouse"
)

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, query string) ([]SearchHit, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]SearchHit), args.Error(1)
}

type mockEvaluator struct {
	mock.Mock
}

func (m *mockEvaluator) Evaluate(ctx context.Context, c model.CandidateProfile) (model.Evaluation, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(model.Evaluation), args.Error(1)
}

type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) Scrape(ctx context.Context, urls []string) ([]model.ScrapedProfile, error) {
	args := m.Called(ctx, urls)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScrapedProfile), args.Error(1)
}

type mockTracker struct {
	mock.Mock
}

func (m *mockTracker) GetPending(ctx context.Context, batchSize int) ([]model.Company, error) {
	args := m.Called(ctx, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Company), args.Error(1)
}

func (m *mockTracker) MarkProcessed(ctx context.Context, companies []model.Company, contacts []model.Contact) (int, error) {
	args := m.Called(ctx, companies, contacts)
	return args.Int(0), args.Error(1)
}

type mockContactWriter struct {
	mock.Mock
}

func (m *mockContactWriter) Save(ctx context.Context, contacts []model.Contact) (warehouse.UpsertResult, error) {
	args := m.Called(ctx, contacts)
	return args.Get(0).(warehouse.UpsertResult), args.Error(1)
}

func (m *mockContactWriter) Deduplicate(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
