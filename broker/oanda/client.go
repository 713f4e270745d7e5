// Package oanda implements broker.Broker on the OANDA v20 REST API.
package oanda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rustyeddy/autotrader/broker"
)

const (
	PracticeURL = "https://api-fxpractice.oanda.com"
	LiveURL     = "https://api-fxtrade.oanda.com"
)

var ErrLiveNotAllowed = errors.New("oanda: live trading not allowed (set venue.allow_live)")

// BaseURL resolves an environment name. Live is refused unless allowLive.
func BaseURL(env string, allowLive bool) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "practice", "demo", "":
		return PracticeURL, nil
	case "live":
		if !allowLive {
			return "", ErrLiveNotAllowed
		}
		return LiveURL, nil
	default:
		return "", fmt.Errorf("unknown OANDA env %q (want practice|live)", env)
	}
}

type Client struct {
	BaseURL string // e.g. https://api-fxpractice.oanda.com
	Token   string
	HTTP    *http.Client
}

// apiError is the v20 error body.
type apiError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (c *Client) Get(ctx context.Context, path string, opts map[string]string, out any) error {
	return c.do(ctx, http.MethodGet, path, opts, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// do sends one request and decodes a 2xx body into out. Transport errors,
// 429 and 5xx are ErrVenueUnavailable; other statuses are returned as
// *StatusError so callers can inspect the body.
func (c *Client) do(ctx context.Context, method, path string, opts map[string]string, body, out any) error {
	if c.Token == "" {
		return fmt.Errorf("oanda: missing token")
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	u.Path = path
	q := u.Query()
	for k, v := range opts {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Datetime-Format", "RFC3339")

	resp, err := httpClient.Do(req)
	if err != nil {
		return broker.Unavailable(method+" "+path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return broker.Unavailable(method+" "+path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		var ae apiError
		if json.Unmarshal(b, &ae) == nil {
			se.Code, se.Message = ae.ErrorCode, ae.ErrorMessage
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return broker.Unavailable(method+" "+path, se)
		}
		return se
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("oanda %s %s: decode: %w", method, path, err)
	}
	return nil
}

type StatusError struct {
	Status  int
	Code    string
	Message string
	Body    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("oanda http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("oanda http %d: %s", e.Status, e.Body)
}
