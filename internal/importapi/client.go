// Package importapi is an HTTP client for a remote import service.
package importapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/Veraticus/spice-reconcile/internal/service"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// RequestIDHeader identifies a request in client and server logs.
const RequestIDHeader = "X-Request-ID"

const maxErrorBody = 64 << 10

// Config configures a Client.
type Config struct {
	// Transport is the base round tripper. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
	BaseURL   string
	Retry     service.RetryOptions
	Timeout   time.Duration
}

// Client talks to the import service. It implements service.Backend.
type Client struct {
	httpClient *http.Client
	session    *Session
	baseURL    *url.URL
	retry      service.RetryOptions
}

var _ service.Backend = (*Client)(nil)

// NewClient creates a client. A nil session sends unauthenticated requests.
func NewClient(cfg Config, session *Session) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: import service URL", common.ErrMissingConfig)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: import service URL %q", common.ErrInvalidConfig, cfg.BaseURL)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if session != nil {
		transport = &oauth2.Transport{Source: session, Base: transport}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		session:    session,
		baseURL:    base,
		retry:      cfg.Retry,
	}, nil
}

// ListBatches returns all import batches, newest first.
func (c *Client) ListBatches(ctx context.Context) ([]model.Batch, error) {
	var resp struct {
		Batches []wireBatch `json:"batches"`
	}
	if err := c.get(ctx, "/imports/batches", nil, &resp); err != nil {
		return nil, err
	}
	batches := make([]model.Batch, len(resp.Batches))
	for i, b := range resp.Batches {
		batches[i] = b.model()
	}
	return batches, nil
}

// GetBatch returns one batch.
func (c *Client) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	var resp wireBatch
	if err := c.get(ctx, batchPath(batchID), nil, &resp); err != nil {
		return nil, err
	}
	batch := resp.model()
	return &batch, nil
}

// DeleteBatch deletes a batch and its pending transactions.
func (c *Client) DeleteBatch(ctx context.Context, batchID string) error {
	return c.do(ctx, http.MethodDelete, batchPath(batchID), nil, nil)
}

// GetBatchTransactions returns the transactions of a batch.
func (c *Client) GetBatchTransactions(ctx context.Context, batchID string) ([]model.Transaction, error) {
	var resp struct {
		Transactions []wireTransaction `json:"transactions"`
	}
	if err := c.get(ctx, batchPath(batchID)+"/transactions", nil, &resp); err != nil {
		return nil, err
	}
	return modelTransactions(resp.Transactions), nil
}

// ReviewTransaction records a reviewer's decision.
func (c *Client) ReviewTransaction(ctx context.Context, batchID, transactionID, category string, status model.ReviewStatus, notes string) (model.Transaction, error) {
	body := reviewRequest{
		Category: category,
		Status:   string(status),
		Notes:    model.StringPtr(notes),
	}
	var resp wireTransaction
	if err := c.do(ctx, http.MethodPut, transactionPath(batchID, transactionID), body, &resp); err != nil {
		return model.Transaction{}, err
	}
	return resp.model(), nil
}

// DeleteTransaction deletes a pending transaction. A transaction that is
// already gone counts as deleted.
func (c *Client) DeleteTransaction(ctx context.Context, batchID, transactionID string) error {
	err := c.do(ctx, http.MethodDelete, transactionPath(batchID, transactionID), nil, nil)
	if errors.Is(err, common.ErrNotFound) {
		slog.Debug("Transaction already deleted", "batch_id", batchID, "transaction_id", transactionID)
		return nil
	}
	return err
}

// FindDuplicates asks the service for duplicate groups.
func (c *Client) FindDuplicates(ctx context.Context, thresholdDays int) ([]model.DuplicateGroup, error) {
	query := url.Values{"threshold_days": {strconv.Itoa(thresholdDays)}}
	var resp struct {
		Duplicates []wireGroup `json:"duplicates"`
	}
	if err := c.get(ctx, "/imports/duplicates", query, &resp); err != nil {
		return nil, err
	}

	groups := make([]model.DuplicateGroup, len(resp.Duplicates))
	for i, g := range resp.Duplicates {
		groups[i] = model.DuplicateGroup{
			Amount:       g.Amount,
			Description:  g.Description,
			Transactions: modelTransactions(g.Transactions),
			Count:        g.Count,
		}
		if groups[i].Count == 0 {
			groups[i].Count = len(g.Transactions)
		}
	}
	return groups, nil
}

// MergeDuplicates keeps one transaction and deletes the rest.
func (c *Client) MergeDuplicates(ctx context.Context, keepID string, removeIDs []string) error {
	body := mergeRequest{KeepID: ID(keepID), RemoveIDs: toIDs(removeIDs)}
	return c.do(ctx, http.MethodPost, "/imports/merge-duplicates", body, nil)
}

// UploadOFX uploads a statement file and returns the created batch.
func (c *Client) UploadOFX(ctx context.Context, filename string, r io.Reader) (UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResult{}, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("failed to finish upload body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/imports/upload", nil, &buf)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp uploadResponse
	if err := c.send(req, &resp); err != nil {
		return UploadResult{}, err
	}
	return UploadResult{
		Batch:             resp.Batch.model(),
		Pending:           modelTransactions(resp.Pending),
		DuplicatesSkipped: resp.DuplicatesSkipped,
	}, nil
}

// get performs a read-only request, retrying transient failures.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return common.WithRetry(ctx, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return err
		}
		return c.send(req, out)
	}, c.retry)
}

// do performs a mutating request. Mutations are never retried.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, nil, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := c.baseURL.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, common.ErrSessionExpired) {
			return common.NewRemoteError(http.StatusUnauthorized, common.ErrSessionExpired.Error(), common.ErrSessionExpired)
		}
		return common.NewRemoteError(0, err.Error(), err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	slog.Debug("Import service request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get(RequestIDHeader),
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return common.NewRemoteError(resp.StatusCode, fmt.Sprintf("invalid response: %v", err), err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := http.StatusText(resp.StatusCode)
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Error != "":
			message = payload.Error
		case payload.Message != "":
			message = payload.Message
		}
	} else if text := strings.TrimSpace(string(body)); text != "" {
		message = text
	}

	var cause error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		cause = common.ErrSessionExpired
		if c.session != nil {
			c.session.expire()
		}
	case http.StatusNotFound:
		cause = common.ErrNotFound
	}
	return common.NewRemoteError(resp.StatusCode, message, cause)
}

func batchPath(batchID string) string {
	return "/imports/batches/" + url.PathEscape(batchID)
}

func transactionPath(batchID, transactionID string) string {
	return batchPath(batchID) + "/transactions/" + url.PathEscape(transactionID)
}
