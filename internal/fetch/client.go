// Package fetch implements the polite, retried HTTP fetch layer and the
// rendered-DOM fallback used for script-heavy pages.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/medatlas/harvester/internal/harvest"
)

// ErrHostBlocked indicates the host has returned too many forbidden
// responses and further fetches against it are skipped.
var ErrHostBlocked = errors.New("host blocked after repeated forbidden responses")

// Config controls Client behavior.
type Config struct {
	UserAgents   []string
	RotateEvery  int
	Timeout      time.Duration
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	DelayMin     time.Duration
	DelayMax     time.Duration
	PerHostQPS   float64
	MaxForbidden int
}

// Client implements harvest.Fetcher using the Colly collector. Every fetch
// waits on a per-host rate limiter, inserts a jittered politeness delay,
// and retries transient failures with exponential backoff.
type Client struct {
	baseCollector *colly.Collector
	identities    *identityPool
	delay         jitteredDelay
	policy        backoffPolicy
	blocker       *domainBlocker
	hostLimiters  sync.Map
	perHostQPS    float64
	logger        *zap.Logger
}

// NewClient constructs a configured polite fetcher.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	base := colly.NewCollector(colly.Async(false))
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(timeout)

	return &Client{
		baseCollector: base,
		identities:    newIdentityPool(cfg.UserAgents, cfg.RotateEvery),
		delay:         jitteredDelay{min: cfg.DelayMin, max: cfg.DelayMax},
		policy:        newBackoffPolicy(cfg.MaxRetries, cfg.BackoffBase, cfg.BackoffMax),
		blocker:       newDomainBlocker(cfg.MaxForbidden),
		perHostQPS:    cfg.PerHostQPS,
		logger:        logger,
	}
}

// Fetch retrieves a page, retrying transient failures. A nil error means a
// 2xx response with a body.
func (c *Client) Fetch(ctx context.Context, rawURL string) (harvest.Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return harvest.Page{}, fmt.Errorf("parse fetch url: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if c.blocker.IsBlocked(host) {
		return harvest.Page{}, fmt.Errorf("fetch %s: %w", rawURL, ErrHostBlocked)
	}

	for attempt := 0; ; attempt++ {
		if err := c.waitHostBudget(ctx, host); err != nil {
			return harvest.Page{}, err
		}
		pause(ctx, c.delay.next())
		if err := ctx.Err(); err != nil {
			return harvest.Page{}, fmt.Errorf("fetch %s: %w", rawURL, err)
		}

		page, err := c.attempt(rawURL)
		if err == nil {
			return page, nil
		}

		var statusErr *harvest.StatusError
		if errors.As(err, &statusErr) {
			switch statusErr.StatusCode {
			case http.StatusTooManyRequests:
				throttledResponses.Inc()
			case http.StatusForbidden:
				if c.blocker.MarkForbidden(host) {
					blockedHosts.Inc()
					c.logger.Warn("host blocked", zap.String("host", host))
				}
			}
		}

		if !c.policy.ShouldRetry(err, attempt) {
			return harvest.Page{}, err
		}
		backoff := c.policy.Backoff(err, attempt)
		c.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		pause(ctx, backoff)
	}
}

func (c *Client) waitHostBudget(ctx context.Context, host string) error {
	if c.perHostQPS <= 0 {
		return nil
	}
	val, _ := c.hostLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(c.perHostQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("host rate limit: %w", err)
	}
	return nil
}

type fetchResult struct {
	page harvest.Page
	err  error
}

func (c *Client) attempt(rawURL string) (harvest.Page, error) {
	collector := c.baseCollector.Clone()
	collector.UserAgent = c.identities.Next()

	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() { resultCh <- res })
	}
	start := time.Now()

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{page: harvest.Page{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			send(fetchResult{err: &harvest.StatusError{URL: rawURL, StatusCode: r.StatusCode}})
			return
		}
		if err == nil {
			err = errors.New("unknown collector error")
		}
		send(fetchResult{err: fmt.Errorf("fetch %s: %w", rawURL, err)})
	})

	if err := collector.Visit(rawURL); err != nil {
		return harvest.Page{}, fmt.Errorf("visit %s: %w", rawURL, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		return res.page, res.err
	default:
		return harvest.Page{}, fmt.Errorf("fetch %s: collector produced no result", rawURL)
	}
}
