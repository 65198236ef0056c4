package apify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultPollInitial = 5 * time.Second
	defaultPollCap     = 30 * time.Second
	defaultPollTimeout = 15 * time.Minute
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
	timeout time.Duration
}

func defaultPollConfig() pollConfig {
	return pollConfig{
		initial: defaultPollInitial,
		cap:     defaultPollCap,
		timeout: defaultPollTimeout,
	}
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.initial = d
		}
	}
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.cap = d
		}
	}
}

// WithPollTimeout overrides the default timeout (applied only if the parent
// context has no deadline).
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WaitForRun polls GetRun until the run reaches a terminal status or the
// context expires. Intervals double from the initial value up to the cap.
func WaitForRun(ctx context.Context, client Client, runID string, opts ...PollOption) (*Run, error) {
	cfg := defaultPollConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	interval := cfg.initial
	for {
		run, err := client.GetRun(ctx, runID)
		if err != nil {
			return nil, eris.Wrapf(err, "apify: poll run %s", runID)
		}

		if run.Terminal() {
			if run.Status != StatusSucceeded {
				return nil, eris.Errorf("apify: run %s ended with status %s", runID, run.Status)
			}
			return run, nil
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "apify: poll run %s timed out", runID)
		case <-time.After(interval):
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
	}
}

// ScrapeProfiles runs the profile actor over urls, waits for it to finish and
// returns the raw dataset items.
func ScrapeProfiles(ctx context.Context, client Client, actor string, urls []string, opts ...PollOption) ([]map[string]any, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	if actor == "" {
		actor = DefaultProfileActor
	}

	run, err := client.StartRun(ctx, actor, ProfileInput{ProfileURLs: urls})
	if err != nil {
		return nil, err
	}
	zap.L().Info("apify: run started",
		zap.String("run_id", run.ID),
		zap.String("actor", actor),
		zap.Int("profiles", len(urls)),
	)

	done, err := WaitForRun(ctx, client, run.ID, opts...)
	if err != nil {
		return nil, err
	}

	datasetID := done.DefaultDatasetID
	if datasetID == "" {
		datasetID = run.DefaultDatasetID
	}
	if datasetID == "" {
		return nil, eris.Errorf("apify: run %s has no dataset", run.ID)
	}

	items, err := client.GetDatasetItems(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	zap.L().Info("apify: run finished",
		zap.String("run_id", run.ID),
		zap.Int("items", len(items)),
	)
	return items, nil
}
