package apify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/acts/dev_fusion~linkedin-profile-scraper/runs", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var in ProfileInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, []string{"https://www.linkedin.com/in/ana"}, in.ProfileURLs)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"run-1","status":"READY","defaultDatasetId":"ds-1"}}`))
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL))
	run, err := c.StartRun(context.Background(), DefaultProfileActor, ProfileInput{ProfileURLs: []string{"https://www.linkedin.com/in/ana"}})
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "ds-1", run.DefaultDatasetID)
	assert.False(t, run.Terminal())
}

func TestGetDatasetItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/datasets/ds-1/items", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("clean"))
		_, _ = w.Write([]byte(`[{"linkedinUrl":"https://www.linkedin.com/in/ana","fullName":"Ana"}]`))
	}))
	defer srv.Close()

	items, err := NewClient("tok", WithBaseURL(srv.URL)).GetDatasetItems(context.Background(), "ds-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Ana", items[0]["fullName"])
}

func TestGetRun_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream"))
	}))
	defer srv.Close()

	_, err := NewClient("tok", WithBaseURL(srv.URL)).GetRun(context.Background(), "run-1")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.HTTPStatus())
	assert.Contains(t, err.Error(), "apify: get run run-1")
}
