// Package api provides the remote gateway: a thin contract over the product
// REST API. It is pure transport; no retry or caching logic lives here.
//
// Failures map onto the shared taxonomy: unreachable host or timeout becomes
// *errs.NetworkError, a non-2xx response becomes *errs.ServerError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/remarket/remarket/internal/errs"
	"github.com/remarket/remarket/internal/model"
	"github.com/remarket/remarket/internal/session"
)

// Gateway is the remote product API contract consumed by the reconciler and
// the repository facade.
type Gateway interface {
	List(ctx context.Context) ([]model.Product, error)
	Get(ctx context.Context, id string) (model.Product, error)
	Create(ctx context.Context, req ProductRequest) (model.Product, error)
	Update(ctx context.Context, id string, req ProductRequest) (model.Product, error)
	Delete(ctx context.Context, id string) error
	Report(ctx context.Context, req ReportRequest) error
}

// DefaultTimeout bounds every remote call; past it the call is treated as a
// network error.
const DefaultTimeout = 20 * time.Second

// Client is the HTTP implementation of Gateway.
type Client struct {
	http    *http.Client
	baseURL string
	sess    *session.Session
	log     *zap.Logger
}

// NewClient builds a gateway against baseURL. The session is consulted on
// every request for the bearer token; requests are sent unauthenticated when
// no session is active (the server decides what that may do).
func NewClient(baseURL string, sess *session.Session, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		sess:    sess,
		log:     log,
	}
}

// List fetches the authoritative product list.
func (c *Client) List(ctx context.Context) ([]model.Product, error) {
	var dtos []ProductDTO
	if err := c.do(ctx, http.MethodGet, "/products", nil, &dtos); err != nil {
		return nil, err
	}
	products := make([]model.Product, len(dtos))
	for i, d := range dtos {
		products[i] = d.ToDomain()
	}
	return products, nil
}

// Get fetches a single product; a missing id surfaces as ServerError 404.
func (c *Client) Get(ctx context.Context, id string) (model.Product, error) {
	var dto ProductDTO
	if err := c.do(ctx, http.MethodGet, "/products/"+id, nil, &dto); err != nil {
		return model.Product{}, err
	}
	return dto.ToDomain(), nil
}

// Create registers a new product and returns the canonical server
// representation, including the server-assigned id.
func (c *Client) Create(ctx context.Context, req ProductRequest) (model.Product, error) {
	var dto ProductDTO
	if err := c.do(ctx, http.MethodPost, "/products", req, &dto); err != nil {
		return model.Product{}, err
	}
	return dto.ToDomain(), nil
}

// Update replaces a product's business fields and returns the canonical
// server representation.
func (c *Client) Update(ctx context.Context, id string, req ProductRequest) (model.Product, error) {
	var dto ProductDTO
	if err := c.do(ctx, http.MethodPut, "/products/"+id, req, &dto); err != nil {
		return model.Product{}, err
	}
	return dto.ToDomain(), nil
}

// Delete removes a product on the server.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/products/"+id, nil, nil)
}

// Report files a report against a listing.
func (c *Client) Report(ctx context.Context, req ReportRequest) error {
	return c.do(ctx, http.MethodPost, "/reports", req, nil)
}

// Login exchanges credentials for a bearer token. It does not install the
// token into the session; the caller owns the session lifecycle.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return LoginResponse{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request for %s: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sess != nil {
		if token, err := c.sess.Token(); err == nil {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &errs.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Debug("remote call failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode))
		return &errs.ServerError{Op: op, Status: resp.StatusCode, Body: string(raw)}
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response for %s: %w", op, err)
	}
	return nil
}
