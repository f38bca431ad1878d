package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/steerdev/steer/internal/domain/service"
	"github.com/steerdev/steer/pkg/cancel"
)

// requestTimeout is the per-request wall clock for completion calls.
const requestTimeout = 300 * time.Second

// NewHTTPClient builds the shared HTTP client. The client is a cheap
// handle; adapters clone the pointer freely across tasks.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: requestTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &http.Client{Transport: transport}
}

// PostJSON marshals payload, POSTs it, and returns the response body.
// Connect, send, status check, and body read all observe the token via
// the bridged context; a cancelled token yields ErrKindCancelled.
// Non-2xx statuses map through service.MapHTTPStatus, carrying a
// Retry-After delay when the server supplies one.
func PostJSON(client *http.Client, provider, url string, headers map[string]string, payload any, token *cancel.Token) ([]byte, *service.ApiError) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &service.ApiError{
			Kind:     service.ErrKindInvalidRequest,
			Provider: provider,
			Message:  "marshal request",
			Cause:    err,
		}
	}

	ctx, stop := token.Context(context.Background())
	defer stop()
	ctx, cancelTimeout := context.WithTimeout(ctx, requestTimeout)
	defer cancelTimeout()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &service.ApiError{
			Kind:     service.ErrKindInvalidRequest,
			Provider: provider,
			Message:  "create request",
			Cause:    err,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(provider, token, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(provider, token, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &service.ApiError{
			Kind:     service.MapHTTPStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Provider: provider,
			Message:  string(respBody),
		}
		if apiErr.Kind == service.ErrKindRateLimited {
			if after, parseErr := strconv.Atoi(resp.Header.Get("Retry-After")); parseErr == nil && after > 0 {
				apiErr.RetryAfterSeconds = after
			}
		}
		return nil, apiErr
	}

	return respBody, nil
}

// OpenStream POSTs payload and hands back the raw response body for
// SSE decoding. The caller owns closing the body; the stop function
// detaches the cancellation bridge and must be invoked after the
// stream drains.
func OpenStream(client *http.Client, provider, url string, headers map[string]string, payload any, token *cancel.Token) (io.ReadCloser, func(), *service.ApiError) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, &service.ApiError{
			Kind:     service.ErrKindInvalidRequest,
			Provider: provider,
			Message:  "marshal request",
			Cause:    err,
		}
	}

	ctx, stop := token.Context(context.Background())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		stop()
		return nil, nil, &service.ApiError{
			Kind:     service.ErrKindInvalidRequest,
			Provider: provider,
			Message:  "create request",
			Cause:    err,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		stop()
		return nil, nil, classifyTransportError(provider, token, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		stop()
		apiErr := &service.ApiError{
			Kind:     service.MapHTTPStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Provider: provider,
			Message:  string(respBody),
		}
		return nil, nil, apiErr
	}

	return resp.Body, stop, nil
}

// classifyTransportError distinguishes cancellation, timeout, and
// network failures at the transport layer.
func classifyTransportError(provider string, token *cancel.Token, err error) *service.ApiError {
	if token.IsCancelled() || errors.Is(err, context.Canceled) {
		return service.NewCancelledError(provider)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &service.ApiError{
			Kind:     service.ErrKindTimeout,
			Provider: provider,
			Message:  "request timed out",
			Cause:    err,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &service.ApiError{
			Kind:     service.ErrKindTimeout,
			Provider: provider,
			Message:  "request timed out",
			Cause:    err,
		}
	}
	return &service.ApiError{
		Kind:     service.ErrKindNetwork,
		Provider: provider,
		Message:  "transport failure",
		Cause:    err,
	}
}
