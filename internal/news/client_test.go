package news_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangdp/newsbrief-be/internal/news"
)

func TestClient_FetchTopHeadlines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/top-headlines", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "technology", r.URL.Query().Get("category"))
		assert.Equal(t, "en", r.URL.Query().Get("language"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "ok",
			"totalResults": 2,
			"articles": [
				{
					"source": {"id": "the-verge", "name": "The Verge"},
					"author": "Jane Doe",
					"title": "Chipmaker unveils new accelerator",
					"description": "Details on the launch.",
					"url": "https://example.com/a",
					"urlToImage": "https://example.com/a.jpg",
					"publishedAt": "2026-08-30T09:00:00Z",
					"content": "Full text here."
				},
				{
					"source": {"id": "", "name": "Wire Service"},
					"title": "Second headline",
					"url": "https://example.com/b"
				}
			]
		}`))
	}))
	defer server.Close()

	client := news.NewClient("test-key", news.WithBaseURL(server.URL))

	articles, err := client.FetchTopHeadlines(context.Background(), "technology")
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, "the-verge", articles[0].Source.ID)
	assert.Equal(t, "The Verge", articles[0].Source.Name)
	assert.Equal(t, "Chipmaker unveils new accelerator", articles[0].Title)
	assert.Equal(t, "https://example.com/a", articles[0].URL)
	assert.Equal(t, "Wire Service", articles[1].Source.Name)
}

func TestClient_FetchTopHeadlines_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status": "ok", "totalResults": 0, "articles": []}`))
	}))
	defer server.Close()

	client := news.NewClient("test-key", news.WithBaseURL(server.URL))

	articles, err := client.FetchTopHeadlines(context.Background(), "science")
	require.NoError(t, err)
	assert.Empty(t, articles)
}

func TestClient_FetchTopHeadlines_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status": "error", "code": "apiKeyInvalid", "message": "Your API key is invalid."}`))
	}))
	defer server.Close()

	client := news.NewClient("bad-key", news.WithBaseURL(server.URL))

	_, err := client.FetchTopHeadlines(context.Background(), "business")
	require.Error(t, err)

	var apiErr *news.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "apiKeyInvalid", apiErr.Code)
	assert.Contains(t, apiErr.Message, "invalid")
}

func TestClient_FetchTopHeadlines_ErrorStatusWithOKHTTPCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status": "error", "code": "rateLimited", "message": "Too many requests."}`))
	}))
	defer server.Close()

	client := news.NewClient("test-key", news.WithBaseURL(server.URL))

	_, err := client.FetchTopHeadlines(context.Background(), "health")

	var apiErr *news.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "rateLimited", apiErr.Code)
}

func TestClient_FetchTopHeadlines_CustomLanguage(t *testing.T) {
	var gotLanguage string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLanguage = r.URL.Query().Get("language")
		w.Write([]byte(`{"status": "ok", "articles": []}`))
	}))
	defer server.Close()

	client := news.NewClient("test-key", news.WithBaseURL(server.URL), news.WithLanguage("de"))

	_, err := client.FetchTopHeadlines(context.Background(), "sports")
	require.NoError(t, err)
	assert.Equal(t, "de", gotLanguage)
}
