package instagram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/domain"
	"studio/internal/infra/credentials"
)

type staticCreds struct {
	rec domain.Credential
}

func (s staticCreds) Current() (domain.Credential, credentials.Source) {
	if !s.rec.Valid() {
		return domain.Credential{}, credentials.SourceNone
	}
	return s.rec, credentials.SourceStored
}

type imageHost struct {
	server *httptest.Server
	hits   atomic.Int32
}

func newImageHost(t *testing.T) *imageHost {
	t.Helper()
	h := &imageHost{}
	mux := http.NewServeMux()
	mux.HandleFunc("/output/ok.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
	})
	mux.HandleFunc("/output/page.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	})
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.hits.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *imageHost) url(name string) string {
	return h.server.URL + "/output/" + name
}

type sleepCounter struct {
	n atomic.Int32
}

func (s *sleepCounter) sleep(ctx context.Context, _ time.Duration) error {
	s.n.Add(1)
	return ctx.Err()
}

func validCred(expiresIn time.Duration) domain.Credential {
	at := fixedNow.Add(expiresIn)
	return domain.Credential{AccessToken: "page-token", UserID: "1784", ExpiresAt: &at}
}

func newTestPublisher(fg *fakeGraph, rec domain.Credential, sleeper *sleepCounter) *Publisher {
	p := NewPublisher(fg.client(), staticCreds{rec: rec}, PublisherOptions{
		Poll: PollPolicy{Interval: time.Second, MaxAttempts: 30, Sleep: sleeper.sleep},
	})
	p.now = func() time.Time { return fixedNow }
	return p
}

func routeStatuses(fg *fakeGraph, statuses ...map[string]string) {
	var i atomic.Int32
	fg.handle("GET /c-1", func(w http.ResponseWriter, _ *http.Request) {
		idx := int(i.Add(1)) - 1
		if idx >= len(statuses) {
			idx = len(statuses) - 1
		}
		writeJSON(w, http.StatusOK, statuses[idx])
	})
}

func routeContainer(fg *fakeGraph) {
	fg.json("POST /1784/media", map[string]string{"id": "c-1"})
	fg.json("POST /1784/media_publish", map[string]string{"id": "m-9"})
}

func TestPublishHappyPath(t *testing.T) {
	fg := newFakeGraph(t)
	host := newImageHost(t)
	routeContainer(fg)
	routeStatuses(fg,
		map[string]string{"status_code": "IN_PROGRESS", "id": "c-1"},
		map[string]string{"status_code": "FINISHED", "id": "c-1"},
	)
	sleeper := &sleepCounter{}

	mediaID, err := newTestPublisher(fg, validCred(30*24*time.Hour), sleeper).
		Publish(context.Background(), host.url("ok.png"), "Sunset look")
	require.NoError(t, err)
	assert.Equal(t, "m-9", mediaID)
	assert.Equal(t, int32(2), sleeper.n.Load())
	assert.Equal(t, 2, fg.count("GET /c-1"))
	assert.Equal(t, "c-1", fg.lastForm("POST /1784/media_publish")["creation_id"])
	assert.Equal(t, "page-token", fg.lastForm("POST /1784/media_publish")["access_token"])
	assert.Equal(t, "status_code,status", fg.lastForm("GET /c-1")["fields"])
}

func TestPublishReadyWhenStatusMissing(t *testing.T) {
	fg := newFakeGraph(t)
	host := newImageHost(t)
	routeContainer(fg)
	routeStatuses(fg, map[string]string{"id": "c-1"})
	sleeper := &sleepCounter{}

	_, err := newTestPublisher(fg, validCred(30*24*time.Hour), sleeper).
		Publish(context.Background(), host.url("ok.png"), "caption")
	require.NoError(t, err)
	assert.Equal(t, 1, fg.count("GET /c-1"))
	assert.Equal(t, int32(1), sleeper.n.Load())
	assert.Equal(t, 1, fg.count("POST /1784/media_publish"))
}

func TestPublishTimesOutAfterThirtyChecks(t *testing.T) {
	fg := newFakeGraph(t)
	host := newImageHost(t)
	routeContainer(fg)
	routeStatuses(fg, map[string]string{"status_code": "IN_PROGRESS"})
	sleeper := &sleepCounter{}

	_, err := newTestPublisher(fg, validCred(30*24*time.Hour), sleeper).
		Publish(context.Background(), host.url("ok.png"), "caption")
	require.ErrorIs(t, err, domain.ErrPublishTimeout)
	assert.NotErrorIs(t, err, domain.ErrContainerFailed)
	assert.Equal(t, 30, fg.count("GET /c-1"))
	assert.Equal(t, int32(30), sleeper.n.Load())
	assert.Equal(t, 0, fg.count("POST /1784/media_publish"))
}

func TestPublishContainerError(t *testing.T) {
	fg := newFakeGraph(t)
	host := newImageHost(t)
	routeContainer(fg)
	routeStatuses(fg,
		map[string]string{"status_code": "IN_PROGRESS"},
		map[string]string{"status_code": "ERROR", "status": "Error: media download failed"},
	)

	_, err := newTestPublisher(fg, validCred(30*24*time.Hour), &sleepCounter{}).
		Publish(context.Background(), host.url("ok.png"), "caption")
	require.ErrorIs(t, err, domain.ErrContainerFailed)
	assert.NotErrorIs(t, err, domain.ErrPublishTimeout)
	assert.Contains(t, err.Error(), "media download failed")
	assert.Equal(t, 0, fg.count("POST /1784/media_publish"))
}

func TestPublishAllowsExpiringSoon(t *testing.T) {
	fg := newFakeGraph(t)
	host := newImageHost(t)
	routeContainer(fg)
	routeStatuses(fg, map[string]string{"status_code": "FINISHED"})

	_, err := newTestPublisher(fg, validCred(24*time.Hour), &sleepCounter{}).
		Publish(context.Background(), host.url("ok.png"), "caption")
	require.NoError(t, err)
}

func TestPublishPreconditionsMakeNoCalls(t *testing.T) {
	cases := []struct {
		name    string
		rec     domain.Credential
		caption string
		want    error
	}{
		{name: "empty caption", rec: validCred(30 * 24 * time.Hour), caption: "  ", want: domain.ErrEmptyCaption},
		{name: "absent", rec: domain.Credential{}, caption: "hi", want: domain.ErrNotConnected},
		{name: "expired", rec: validCred(-time.Hour), caption: "hi", want: domain.ErrTokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fg := newFakeGraph(t)
			host := newImageHost(t)
			_, err := newTestPublisher(fg, tc.rec, &sleepCounter{}).
				Publish(context.Background(), host.url("ok.png"), tc.caption)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, 0, fg.total())
			assert.Equal(t, int32(0), host.hits.Load())
		})
	}
}

func TestPublishPreflightFailures(t *testing.T) {
	fg := newFakeGraph(t)
	host := newImageHost(t)
	p := newTestPublisher(fg, validCred(30*24*time.Hour), &sleepCounter{})

	_, err := p.Publish(context.Background(), host.url("missing.png"), "caption")
	require.ErrorIs(t, err, domain.ErrImageUnreachable)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "PUBLIC_URL")

	_, err = p.Publish(context.Background(), host.url("page.html"), "caption")
	require.ErrorIs(t, err, domain.ErrNotAnImage)
	assert.Contains(t, err.Error(), "text/html")

	assert.Equal(t, 0, fg.total())
}

func TestPublishStopsWhenContextCancelled(t *testing.T) {
	fg := newFakeGraph(t)
	host := newImageHost(t)
	routeContainer(fg)
	routeStatuses(fg, map[string]string{"status_code": "IN_PROGRESS"})

	ctx, cancel := context.WithCancel(context.Background())
	p := newTestPublisher(fg, validCred(30*24*time.Hour), &sleepCounter{})
	p.poll.Sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := p.Publish(ctx, host.url("ok.png"), "caption")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fg.count("GET /c-1"))
}

func TestClassify(t *testing.T) {
	ready, err := classify(ContainerStatus{})
	assert.True(t, ready)
	assert.NoError(t, err)

	ready, err = classify(ContainerStatus{Code: "IN_PROGRESS"})
	assert.False(t, ready)
	assert.NoError(t, err)

	_, err = classify(ContainerStatus{Code: "EXPIRED"})
	assert.ErrorIs(t, err, domain.ErrContainerFailed)
}
