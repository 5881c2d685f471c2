package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"abrplink/backend/services/abrp-agent/internal/models"
	"abrplink/backend/services/abrp-agent/internal/observability"
)

// DefaultABRPURL is the live telemetry endpoint.
const DefaultABRPURL = "https://api.iternio.com/1/tlm/send"

// ABRPOptions configures the remote endpoint.
type ABRPOptions struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// ABRPClient submits telemetry records to ABRP with fire-and-forget GET requests.
type ABRPClient struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   HTTPDoer
	logger   *zap.Logger
	metrics  *observability.Metrics
	inflight sync.WaitGroup
}

// NewABRPClient returns client wrapper; nil httpClient gets a default one with the configured timeout.
func NewABRPClient(opts ABRPOptions, httpClient HTTPDoer, logger *zap.Logger, metrics *observability.Metrics) *ABRPClient {
	if opts.URL == "" {
		opts.URL = DefaultABRPURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = NewDefaultHTTPClient(opts.Timeout)
	}
	return &ABRPClient{
		endpoint: opts.URL,
		apiKey:   opts.APIKey,
		timeout:  opts.Timeout,
		client:   httpClient,
		logger:   logger,
		metrics:  metrics,
	}
}

// RequestURL builds the GET url carrying api key, user token and the serialized record.
func (c *ABRPClient) RequestURL(token, payload string) string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("token", token)
	q.Set("tlm", payload)
	return c.endpoint + "?" + q.Encode()
}

// Send serializes record and transmits it in the background. done receives the HTTP status
// of every completed exchange, fail receives transport errors. Callbacks run on the request
// goroutine; either may be nil. An error is returned only when the record cannot be
// serialized, in which case no request is made and no callback runs.
func (c *ABRPClient) Send(token string, record models.TelemetryRecord, done func(status int), fail func(error)) error {
	payload, err := record.Encode()
	if err != nil {
		err = fmt.Errorf("encode telemetry: %w", err)
		c.reportFailure(nil, err)
		return err
	}
	target := c.RequestURL(token, payload)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			c.reportFailure(fail, err)
			return
		}

		started := time.Now()
		resp, err := c.client.Do(req)
		c.metrics.ObserveRequest(time.Since(started))
		if err != nil {
			c.reportFailure(fail, err)
			return
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

		if resp.StatusCode != http.StatusOK {
			c.logger.Warn("abrp returned non-success", zap.Int("status", resp.StatusCode))
			c.metrics.Rejected(fmt.Sprint(resp.StatusCode))
		} else {
			c.logger.Debug("abrp accepted telemetry", zap.Int("payload_bytes", len(payload)))
		}
		if done != nil {
			done(resp.StatusCode)
		}
	}()
	return nil
}

// Wait blocks until all in-flight requests completed.
func (c *ABRPClient) Wait() {
	c.inflight.Wait()
}

func (c *ABRPClient) reportFailure(fail func(error), err error) {
	c.logger.Error("abrp request failed", zap.Error(err))
	c.metrics.Failed()
	if fail != nil {
		fail(err)
	}
}
