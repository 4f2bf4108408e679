package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/and161185/timecards/internal/convert"
)

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// client talks to the timecards HTTP API.
type client struct {
	base  string
	token string
	hc    *http.Client
}

func newClient(addr, token string, hc *http.Client) *client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &client{base: strings.TrimRight(addr, "/"), token: token, hc: hc}
}

func loadTLS(caPath string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev only
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool}, nil
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var ev convert.ErrorView
		if json.NewDecoder(resp.Body).Decode(&ev) != nil || ev.Error == "" {
			ev.Error = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: ev.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func timecardPath(id string) string { return "/timesheets/" + id }

func linePath(id, line string) string { return timecardPath(id) + "/lines/" + line }

func (c *client) register(ctx context.Context, username, password string) (convert.RegisteredView, error) {
	var out convert.RegisteredView
	err := c.do(ctx, http.MethodPost, "/auth/register", convert.Credentials{Username: username, Password: password}, &out)
	return out, err
}

func (c *client) login(ctx context.Context, username, password string) (convert.TokenView, error) {
	var out convert.TokenView
	err := c.do(ctx, http.MethodPost, "/auth/login", convert.Credentials{Username: username, Password: password}, &out)
	return out, err
}

func (c *client) list(ctx context.Context) ([]convert.TimecardView, error) {
	var out []convert.TimecardView
	err := c.do(ctx, http.MethodGet, "/timesheets", nil, &out)
	return out, err
}

func (c *client) create(ctx context.Context) (convert.TimecardView, error) {
	var out convert.TimecardView
	err := c.do(ctx, http.MethodPost, "/timesheets", nil, &out)
	return out, err
}

func (c *client) get(ctx context.Context, id string) (convert.TimecardView, error) {
	var out convert.TimecardView
	err := c.do(ctx, http.MethodGet, timecardPath(id), nil, &out)
	return out, err
}

func (c *client) remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, timecardPath(id), nil, nil)
}

func (c *client) lines(ctx context.Context, id string) ([]convert.LineView, error) {
	var out []convert.LineView
	err := c.do(ctx, http.MethodGet, timecardPath(id)+"/lines", nil, &out)
	return out, err
}

func (c *client) addLine(ctx context.Context, id string, l convert.LineRequest) (convert.LineView, error) {
	var out convert.LineView
	err := c.do(ctx, http.MethodPost, timecardPath(id)+"/lines", l, &out)
	return out, err
}

func (c *client) replaceLine(ctx context.Context, id, line string, l convert.LineRequest) (convert.LineView, error) {
	var out convert.LineView
	err := c.do(ctx, http.MethodPost, linePath(id, line), l, &out)
	return out, err
}

func (c *client) updateLine(ctx context.Context, id, line string, p convert.LinePatch) (convert.LineView, error) {
	var out convert.LineView
	err := c.do(ctx, http.MethodPatch, linePath(id, line), p, &out)
	return out, err
}

func (c *client) transitions(ctx context.Context, id string) ([]convert.TransitionView, error) {
	var out []convert.TransitionView
	err := c.do(ctx, http.MethodGet, timecardPath(id)+"/transitions", nil, &out)
	return out, err
}

// transition posts to an action link such as "submittal"; reason is sent only when set.
func (c *client) transition(ctx context.Context, id, rel, reason string) (convert.TransitionView, error) {
	var (
		in  any
		out convert.TransitionView
	)
	if reason != "" {
		in = convert.TransitionRequest{Reason: reason}
	}
	err := c.do(ctx, http.MethodPost, timecardPath(id)+"/"+rel, in, &out)
	return out, err
}

// document fetches the transition a documentation link such as "approval" points to.
func (c *client) document(ctx context.Context, id, rel string) (convert.TransitionView, error) {
	var out convert.TransitionView
	err := c.do(ctx, http.MethodGet, timecardPath(id)+"/"+rel, nil, &out)
	return out, err
}
