package adapters

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/smallbiznis/payflow/internal/observability/tracing"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

// Client wraps the shared outbound HTTP client used by channel adapters:
// bounded timeout plus a per-channel rate limiter so one hot merchant
// cannot exhaust a channel's API quota.
type Client struct {
	channel domain.Channel
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(channel domain.Channel, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		channel: channel,
		http:    tracing.WrapHTTPClient(&http.Client{Timeout: timeout}),
		limiter: rate.NewLimiter(rate.Limit(50), 100),
	}
}

// Post sends body to url and returns the raw response bytes. Timeouts are
// reported as retryable adapter errors: the outcome upstream is unknown.
func (c *Client) Post(ctx context.Context, operation, url, contentType string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.wrap(operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, c.wrap(operation, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.wrap(operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, c.wrap(operation, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, c.wrap(operation, errors.New("upstream_unavailable"))
	}
	return raw, nil
}

func (c *Client) wrap(operation string, err error) error {
	return &domain.AdapterError{
		Channel:   c.channel,
		Operation: operation,
		Retryable: isTimeout(err),
		Err:       err,
	}
}

// Fail wraps a channel-level rejection (non-transport) for this client's
// channel.
func (c *Client) Fail(operation string, err error) error {
	return &domain.AdapterError{
		Channel:   c.channel,
		Operation: operation,
		Err:       err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
