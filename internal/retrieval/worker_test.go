package retrieval_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangdp/newsbrief-be/internal/bus"
	"github.com/quangdp/newsbrief-be/internal/jobs"
	"github.com/quangdp/newsbrief-be/internal/news"
	"github.com/quangdp/newsbrief-be/internal/retrieval"
)

const (
	summariesChannel = "llm-summary"
	updatesChannel   = "job-updates"
)

type fakeJobService struct {
	jobs        map[string]jobs.Job
	getErr      error
	markErr     map[jobs.Status]error
	transitions []jobs.Status
}

func newFakeJobService(job jobs.Job) *fakeJobService {
	return &fakeJobService{
		jobs:    map[string]jobs.Job{job.ID: job},
		markErr: make(map[jobs.Status]error),
	}
}

func (s *fakeJobService) Get(_ context.Context, jobID string) (jobs.Job, error) {
	if s.getErr != nil {
		return jobs.Job{}, s.getErr
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return jobs.Job{}, jobs.ErrNotFound
	}
	return job, nil
}

func (s *fakeJobService) MarkStatus(_ context.Context, jobID string, status jobs.Status) error {
	if err := s.markErr[status]; err != nil {
		return err
	}
	job := s.jobs[jobID]
	job.Status = status
	s.jobs[jobID] = job
	s.transitions = append(s.transitions, status)
	return nil
}

type fakeFetcher struct {
	articles map[string][]news.Article
	failOn   map[string]error
	fetched  []string
}

func (f *fakeFetcher) FetchTopHeadlines(_ context.Context, category string) ([]news.Article, error) {
	f.fetched = append(f.fetched, category)
	if err := f.failOn[category]; err != nil {
		return nil, err
	}
	return f.articles[category], nil
}

func testArticles(category string, n int) []news.Article {
	out := make([]news.Article, n)
	for i := range out {
		out[i] = news.Article{
			Title: fmt.Sprintf("%s headline %d", category, i+1),
			URL:   fmt.Sprintf("https://news.example.com/%s/%d", category, i+1),
		}
	}
	return out
}

func newTestWorker(js *fakeJobService, fetcher *fakeFetcher) (*retrieval.Worker, *bus.MemoryBus) {
	logger := slog.New(slog.DiscardHandler)
	b := bus.NewMemoryBus()
	forwarder := retrieval.NewForwarder(b, summariesChannel, logger)
	notifier := retrieval.NewNotifier(b, updatesChannel, logger)
	return retrieval.NewWorker(js, fetcher, forwarder, notifier, logger), b
}

func submissionBody(t *testing.T, job jobs.Job) []byte {
	t.Helper()
	body, err := json.Marshal(jobs.SubmissionMessage{
		JobID:                job.ID,
		Categories:           job.Categories,
		NotificationEndpoint: job.NotificationEndpoint,
	})
	require.NoError(t, err)
	return body
}

func pendingJob(categories ...string) jobs.Job {
	id := uuid.New().String()
	return jobs.Job{
		ID:                   id,
		Categories:           categories,
		Status:               jobs.StatusPending,
		NotificationEndpoint: "/api/v1/jobs/" + id + "/events",
	}
}

func TestWorker_Handle_CompletesJob(t *testing.T) {
	job := pendingJob("technology", "sports")
	js := newFakeJobService(job)
	fetcher := &fakeFetcher{articles: map[string][]news.Article{
		"technology": testArticles("technology", 3),
		"sports":     testArticles("sports", 2),
	}}
	worker, b := newTestWorker(js, fetcher)

	result := worker.Handle(context.Background(), bus.Message{Body: submissionBody(t, job)})

	assert.Equal(t, bus.OutcomeAck, result.Outcome)
	assert.Equal(t, []jobs.Status{jobs.StatusProcessing, jobs.StatusCompleted}, js.transitions)

	forwarded := b.Published(summariesChannel)
	require.Len(t, forwarded, 2)
	categories := make([]string, 0, len(forwarded))
	for _, msg := range forwarded {
		assert.Equal(t, job.ID, msg.Attributes["jobId"])

		var fwd retrieval.ForwardMessage
		require.NoError(t, json.Unmarshal(msg.Body, &fwd))
		assert.Equal(t, job.ID, fwd.JobID)
		assert.Equal(t, job.NotificationEndpoint, fwd.NotificationEndpoint)

		var unit retrieval.ContentUnit
		require.NoError(t, json.Unmarshal([]byte(fwd.Content), &unit))
		assert.NotEmpty(t, unit.Articles)
		categories = append(categories, unit.Category)
	}
	assert.Equal(t, []string{"technology", "sports"}, categories)
}

func TestWorker_Handle_PublishesUpdatesInOrder(t *testing.T) {
	job := pendingJob("science")
	js := newFakeJobService(job)
	fetcher := &fakeFetcher{articles: map[string][]news.Article{
		"science": testArticles("science", 1),
	}}
	worker, b := newTestWorker(js, fetcher)

	result := worker.Handle(context.Background(), bus.Message{Body: submissionBody(t, job)})
	require.Equal(t, bus.OutcomeAck, result.Outcome)

	updates := b.Published(updatesChannel)
	require.Len(t, updates, 3)

	events := make([]string, 0, len(updates))
	for _, msg := range updates {
		var update jobs.UpdateMessage
		require.NoError(t, json.Unmarshal(msg.Body, &update))
		assert.Equal(t, job.ID, update.JobID)
		events = append(events, update.Event)
	}
	// processing status first, then the category update, then completed.
	assert.Equal(t, []string{jobs.EventStatus, jobs.EventUpdate, jobs.EventStatus}, events)
}

func TestWorker_Handle_FailFastOnCategoryFailure(t *testing.T) {
	job := pendingJob("technology", "business", "sports")
	js := newFakeJobService(job)
	fetcher := &fakeFetcher{
		articles: map[string][]news.Article{"technology": testArticles("technology", 1)},
		failOn:   map[string]error{"business": errors.New("upstream 5xx")},
	}
	worker, b := newTestWorker(js, fetcher)

	result := worker.Handle(context.Background(), bus.Message{Body: submissionBody(t, job)})

	assert.Equal(t, bus.OutcomeNack, result.Outcome)
	assert.Error(t, result.Reason)

	// Remaining categories are abandoned after the first failure.
	assert.Equal(t, []string{"technology", "business"}, fetcher.fetched)
	assert.Equal(t, jobs.StatusFailed, js.jobs[job.ID].Status)
	assert.Len(t, b.Published(summariesChannel), 1)
}

func TestWorker_Handle_DeduplicatesCategories(t *testing.T) {
	job := pendingJob("technology", "sports", "technology")
	js := newFakeJobService(job)
	fetcher := &fakeFetcher{articles: map[string][]news.Article{
		"technology": testArticles("technology", 1),
		"sports":     testArticles("sports", 1),
	}}
	worker, b := newTestWorker(js, fetcher)

	result := worker.Handle(context.Background(), bus.Message{Body: submissionBody(t, job)})

	assert.Equal(t, bus.OutcomeAck, result.Outcome)
	assert.Equal(t, []string{"technology", "sports"}, fetcher.fetched)
	assert.Len(t, b.Published(summariesChannel), 2)
}

func TestWorker_Handle_TerminalJobRedelivery(t *testing.T) {
	job := pendingJob("technology")
	job.Status = jobs.StatusCompleted
	js := newFakeJobService(job)
	fetcher := &fakeFetcher{}
	worker, b := newTestWorker(js, fetcher)

	result := worker.Handle(context.Background(), bus.Message{Body: submissionBody(t, job)})

	assert.Equal(t, bus.OutcomeAck, result.Outcome)
	assert.Empty(t, fetcher.fetched)
	assert.Empty(t, js.transitions)
	assert.Empty(t, b.Published(summariesChannel))
	assert.Empty(t, b.Published(updatesChannel))
}

func TestWorker_Handle_DropsPoisonMessages(t *testing.T) {
	job := pendingJob("technology")
	js := newFakeJobService(job)

	unknown := jobs.SubmissionMessage{
		JobID:                uuid.New().String(),
		Categories:           []string{"technology"},
		NotificationEndpoint: "/api/v1/jobs/x/events",
	}
	unknownBody, err := json.Marshal(unknown)
	require.NoError(t, err)

	noCategories := jobs.SubmissionMessage{JobID: job.ID}
	noCategoriesBody, err := json.Marshal(noCategories)
	require.NoError(t, err)

	tests := []struct {
		name string
		body []byte
	}{
		{name: "malformed json", body: []byte("{not json")},
		{name: "invalid job id", body: []byte(`{"jobId":"not-a-uuid","categories":["technology"]}`)},
		{name: "no categories", body: noCategoriesBody},
		{name: "unknown job", body: unknownBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			worker, _ := newTestWorker(js, &fakeFetcher{})

			result := worker.Handle(context.Background(), bus.Message{Body: tt.body})

			assert.Equal(t, bus.OutcomeDrop, result.Outcome)
			assert.Error(t, result.Reason)
		})
	}
}

func TestWorker_Handle_NacksOnTransientStoreFailure(t *testing.T) {
	job := pendingJob("technology")
	js := newFakeJobService(job)
	js.getErr = errors.New("connection reset")
	worker, _ := newTestWorker(js, &fakeFetcher{})

	result := worker.Handle(context.Background(), bus.Message{Body: submissionBody(t, job)})

	assert.Equal(t, bus.OutcomeNack, result.Outcome)
}

func TestWorker_Handle_NacksWhenProcessingTransitionFails(t *testing.T) {
	job := pendingJob("technology")
	js := newFakeJobService(job)
	js.markErr[jobs.StatusProcessing] = errors.New("deadlock detected")
	fetcher := &fakeFetcher{}
	worker, b := newTestWorker(js, fetcher)

	result := worker.Handle(context.Background(), bus.Message{Body: submissionBody(t, job)})

	assert.Equal(t, bus.OutcomeNack, result.Outcome)
	assert.Empty(t, fetcher.fetched)
	assert.Empty(t, b.Published(updatesChannel))
}

func TestWorker_Subscribe_ProcessesPublishedSubmission(t *testing.T) {
	job := pendingJob("technology")
	js := newFakeJobService(job)
	fetcher := &fakeFetcher{articles: map[string][]news.Article{
		"technology": testArticles("technology", 1),
	}}
	worker, b := newTestWorker(js, fetcher)

	sub, err := worker.Subscribe(b, "content-retrieval")
	require.NoError(t, err)
	defer sub.Close()

	_, err = b.Publish(context.Background(), "content-retrieval", jobs.SubmissionMessage{
		JobID:                job.ID,
		Categories:           job.Categories,
		NotificationEndpoint: job.NotificationEndpoint,
	}, map[string]string{"jobId": job.ID})
	require.NoError(t, err)

	assert.Equal(t, jobs.StatusCompleted, js.jobs[job.ID].Status)
	assert.Len(t, b.Published(summariesChannel), 1)
}
