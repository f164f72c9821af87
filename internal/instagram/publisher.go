package instagram

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
)

// CredentialSource yields the operative credential.
type CredentialSource interface {
	Current() (domain.Credential, credentials.Source)
}

// PollPolicy bounds how long a media container may stay in processing.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	// Sleep waits between checks; tests swap in a non-blocking stub.
	Sleep func(ctx context.Context, d time.Duration) error
	// Settled reports whether a status is terminal. A non-nil error means
	// the container failed.
	Settled func(ContainerStatus) (bool, error)
}

// DefaultPollPolicy checks once a second for up to thirty seconds.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: time.Second, MaxAttempts: 30, Sleep: sleepContext, Settled: classify}
}

func (p PollPolicy) normalized() PollPolicy {
	def := DefaultPollPolicy()
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Sleep == nil {
		p.Sleep = def.Sleep
	}
	if p.Settled == nil {
		p.Settled = def.Settled
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PublisherOptions tunes the publisher.
type PublisherOptions struct {
	ProbeClient *http.Client
	Poll        PollPolicy
	Logger      *infra.Logger
}

// Publisher posts a public image URL with a caption to the connected account.
type Publisher struct {
	graph  *Client
	creds  CredentialSource
	probe  *http.Client
	poll   PollPolicy
	now    func() time.Time
	logger *infra.Logger
}

// NewPublisher builds a publisher around the Graph client.
func NewPublisher(graph *Client, creds CredentialSource, opts PublisherOptions) *Publisher {
	probe := opts.ProbeClient
	if probe == nil {
		probe = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Publisher{
		graph:  graph,
		creds:  creds,
		probe:  probe,
		poll:   opts.Poll.normalized(),
		now:    time.Now,
		logger: logger,
	}
}

// Publish runs preflight, creates a container, waits for it and publishes it.
// It returns the published media id.
func (p *Publisher) Publish(ctx context.Context, imageURL, caption string) (string, error) {
	if strings.TrimSpace(caption) == "" {
		return "", domain.ErrEmptyCaption
	}
	rec, _ := p.creds.Current()
	switch rec.State(p.now()) {
	case domain.TokenAbsent:
		return "", domain.ErrNotConnected
	case domain.TokenExpired:
		return "", domain.ErrTokenExpired
	}

	if err := p.Preflight(ctx, imageURL); err != nil {
		return "", err
	}

	containerID, err := p.graph.CreateContainer(ctx, rec.UserID, rec.AccessToken, imageURL, caption)
	if err != nil {
		return "", err
	}
	log := p.logger.With().Str("container", containerID).Logger()
	log.Debug().Msg("media container created")

	if err := p.waitReady(ctx, containerID, rec.AccessToken); err != nil {
		log.Warn().Err(err).Msg("media container not ready")
		return "", err
	}

	mediaID, err := p.graph.PublishContainer(ctx, rec.UserID, rec.AccessToken, containerID)
	if err != nil {
		return "", err
	}
	log.Info().Str("media", mediaID).Msg("media published")
	return mediaID, nil
}

// Preflight confirms the image URL answers a HEAD request with an image.
func (p *Publisher) Preflight(ctx context.Context, imageURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrImageUnreachable, imageURL, err)
	}
	resp, err := p.probe.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrImageUnreachable, imageURL, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HEAD %s returned %d; PUBLIC_URL must be reachable from the internet",
			domain.ErrImageUnreachable, imageURL, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.HasPrefix(mediaType, "image/") {
		return fmt.Errorf("%w: got content type %q", domain.ErrNotAnImage, contentType)
	}
	return nil
}

func (p *Publisher) waitReady(ctx context.Context, containerID, token string) error {
	last := ""
	for attempt := 1; attempt <= p.poll.MaxAttempts; attempt++ {
		if err := p.poll.Sleep(ctx, p.poll.Interval); err != nil {
			return err
		}
		status, err := p.graph.ContainerStatus(ctx, containerID, token)
		if err != nil {
			return err
		}
		ready, err := p.poll.Settled(status)
		if err != nil || ready {
			return err
		}
		last = status.Code
	}
	return fmt.Errorf("%w: status %s after %d checks", domain.ErrPublishTimeout, last, p.poll.MaxAttempts)
}

// classify maps a container status onto ready, failed or still processing.
// The provider sometimes omits status_code once processing is done, so a
// missing code counts as ready.
func classify(status ContainerStatus) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(status.Code)) {
	case "", "FINISHED", "PUBLISHED":
		return true, nil
	case "ERROR", "EXPIRED":
		detail := status.Status
		if detail == "" {
			detail = status.Code
		}
		return false, fmt.Errorf("%w: %s", domain.ErrContainerFailed, detail)
	default:
		return false, nil
	}
}
