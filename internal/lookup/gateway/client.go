package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"idlookup/internal/identifier"
	"idlookup/internal/lookup"
	"idlookup/internal/lookup/transcoder"
)

// registryClient performs exactly one upstream attempt per call.
type registryClient struct {
	http       *resty.Client
	endpoint   string
	serviceID  string
	transcoder *transcoder.Transcoder
	observe    func(outcome string, d time.Duration)
}

func newRegistryClient(cfg Config, tc *transcoder.Transcoder, observe func(string, time.Duration)) *registryClient {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}

	client := resty.New().
		SetTransport(transport).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.ConnectTimeout + cfg.ReadTimeout).
		SetHeader("Accept", "application/xml").
		SetRetryCount(0)

	return &registryClient{
		http:       client,
		endpoint:   cfg.Endpoint,
		serviceID:  cfg.ServiceID,
		transcoder: tc,
		observe:    observe,
	}
}

// fetch issues GET {endpoint}?ServiceID&ID1&ID2&ID3 and transcodes the body.
// Non-2xx statuses and transport failures come back as *UpstreamError.
func (c *registryClient) fetch(ctx context.Context, id identifier.Identifier) (*lookup.Result, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ServiceID": c.serviceID,
			"ID1":       id.Region(),
			"ID2":       id.Sequence(),
			"ID3":       id.CheckDigit(),
		}).
		Get(c.endpoint)
	if err != nil {
		uerr := classifyTransport(err)
		c.observe(string(uerr.Category), time.Since(start))
		return nil, uerr
	}

	if !resp.IsSuccess() {
		category := classifyStatus(resp.StatusCode())
		c.observe(string(category), time.Since(start))
		return nil, NewUpstreamError(category, resp.StatusCode(), "registry returned "+resp.Status(), nil)
	}

	c.observe("ok", time.Since(start))
	return c.transcoder.Transcode(resp.Body(), id), nil
}

func classifyTransport(err error) *UpstreamError {
	if errors.Is(err, context.Canceled) {
		return NewUpstreamError(CategoryInternal, 0, "request canceled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewUpstreamError(CategoryTimeout, 0, "deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewUpstreamError(CategoryTimeout, 0, "registry timed out", err)
	}
	return NewUpstreamError(CategoryProviderOutage, 0, "registry unreachable", err)
}
