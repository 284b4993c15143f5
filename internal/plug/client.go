package plug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"syscall"
	"time"
)

// DefaultTimeout bounds a single switch command.
const DefaultTimeout = 5 * time.Second

// maxResponseSize caps how much of a reply is read.
const maxResponseSize = 64 << 10

// Client talks to Shelly Gen2 plugs.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a client whose requests time out after timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    &http.Client{},
		timeout: timeout,
	}
}

type switchSetResponse struct {
	WasOn *bool `json:"was_on"`
}

type switchStatusResponse struct {
	Output *bool `json:"output"`
}

// SetSwitch turns the relay of the plug at host on or off and returns the
// state it had before. host is an IP address, optionally with a port.
func (c *Client) SetSwitch(ctx context.Context, host string, on bool) (bool, error) {
	var resp switchSetResponse
	if err := c.call(ctx, host, "Switch.Set", url.Values{"id": {"0"}, "on": {strconv.FormatBool(on)}}, &resp); err != nil {
		return false, err
	}
	if resp.WasOn == nil {
		return false, fmt.Errorf("%w: missing was_on", ErrPlugUnexpectedResponse)
	}
	return *resp.WasOn, nil
}

// Status returns whether the relay of the plug at host is on.
func (c *Client) Status(ctx context.Context, host string) (bool, error) {
	var resp switchStatusResponse
	if err := c.call(ctx, host, "Switch.GetStatus", url.Values{"id": {"0"}}, &resp); err != nil {
		return false, err
	}
	if resp.Output == nil {
		return false, fmt.Errorf("%w: missing output", ErrPlugUnexpectedResponse)
	}
	return *resp.Output, nil
}

func (c *Client) call(ctx context.Context, host, method string, params url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := url.URL{Scheme: "http", Host: host, Path: "/rpc/" + method, RawQuery: params.Encode()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlugUnexpectedResponse, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(ctx, host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return classify(ctx, host, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrPlugUnexpectedResponse, method, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding %s reply: %v", ErrPlugUnexpectedResponse, method, err)
	}
	return nil
}

// classify maps transport errors onto the package sentinels.
func classify(ctx context.Context, host string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrPlugTimeout, host)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrPlugTimeout, host)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %s", ErrPlugConnectionRefused, host)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %s: %v", ErrPlugConnectionRefused, host, opErr)
	}
	return fmt.Errorf("%w: %v", ErrPlugUnexpectedResponse, err)
}
