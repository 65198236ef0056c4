package pipeline

import (
	"context"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/reconcile"
	"github.com/sells-group/contacts-cli/internal/resilience"
	"github.com/sells-group/contacts-cli/pkg/apify"
)

// ApifyScraper adapts the apify profile actor to Scraper.
type ApifyScraper struct {
	client apify.Client
	actor  string
	poll   []apify.PollOption
	retry  resilience.RetryConfig
}

// NewApifyScraper creates a Scraper running actor (empty for the default).
func NewApifyScraper(client apify.Client, actor string, poll ...apify.PollOption) *ApifyScraper {
	return &ApifyScraper{
		client: client,
		actor:  actor,
		poll:   poll,
		retry:  resilience.DefaultRetryConfig(),
	}
}

// WithRetry sets the retry policy applied to each actor API call.
func (s *ApifyScraper) WithRetry(cfg resilience.RetryConfig) *ApifyScraper {
	s.retry = cfg
	return s
}

// Scrape fetches full profiles for urls in a single actor run. API calls are
// retried one by one, so a failed poll resumes on the same run and a run is
// never started twice.
func (s *ApifyScraper) Scrape(ctx context.Context, urls []string) ([]model.ScrapedProfile, error) {
	client := retryingClient{Client: s.client, retry: s.retry}
	items, err := apify.ScrapeProfiles(ctx, client, s.actor, urls, s.poll...)
	if err != nil {
		return nil, err
	}
	return reconcile.ProfilesFromItems(items), nil
}

type retryingClient struct {
	apify.Client
	retry resilience.RetryConfig
}

func (c retryingClient) StartRun(ctx context.Context, actor string, input any) (*apify.Run, error) {
	return resilience.DoVal(ctx, c.retry.For("apify", "start_run"), func(ctx context.Context) (*apify.Run, error) {
		return c.Client.StartRun(ctx, actor, input)
	})
}

func (c retryingClient) GetRun(ctx context.Context, runID string) (*apify.Run, error) {
	return resilience.DoVal(ctx, c.retry.For("apify", "get_run"), func(ctx context.Context) (*apify.Run, error) {
		return c.Client.GetRun(ctx, runID)
	})
}

func (c retryingClient) GetDatasetItems(ctx context.Context, datasetID string) ([]map[string]any, error) {
	return resilience.DoVal(ctx, c.retry.For("apify", "dataset_items"), func(ctx context.Context) ([]map[string]any, error) {
		return c.Client.GetDatasetItems(ctx, datasetID)
	})
}
