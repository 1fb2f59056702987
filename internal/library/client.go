package library

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

	"github.com/dgallion1/pagewatch/internal/document"
	"github.com/dgallion1/pagewatch/internal/upload"
)

// ErrNotFound is returned when the summarizer has no such document.
var ErrNotFound = errors.New("document not found")

// StatusError is a non-success response from the summarizer.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, truncate(e.Body, 200))
}

// Client talks to the summarizer's /api/v1 endpoints.
type Client struct {
	baseURL string
	apiKey  string
	log     *slog.Logger

	// httpClient serves request/response calls and carries a timeout.
	httpClient *http.Client
	// streamClient has no timeout; an upload stream runs until it ends.
	streamClient *http.Client

	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		apiKey:  apiKey,
		log:     log,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		streamClient: &http.Client{},
		sleep:        sleepCtx,
	}
}

// OpenStream uploads file and returns the open event stream. A non-success
// status is reported before any byte of the body is consumed.
func (c *Client) OpenStream(ctx context.Context, file *upload.File) (io.ReadCloser, error) {
	if file == nil {
		return nil, upload.ErrNoFile
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-pdf", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Op: "upload", StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return resp.Body, nil
}

// ListDocuments returns every stored document, newest first.
func (c *Client) ListDocuments(ctx context.Context) ([]document.Metadata, error) {
	var result struct {
		PDFs []document.Metadata `json:"pdfs"`
	}
	if err := c.getJSON(ctx, "list documents", "/pdfs", &result); err != nil {
		return nil, err
	}
	if result.PDFs == nil {
		result.PDFs = []document.Metadata{}
	}
	return result.PDFs, nil
}

// storedPage is a page row as served by the detail endpoint.
type storedPage struct {
	ID         int64  `json:"id"`
	PageNumber int    `json:"page_number"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Content    string `json:"content"`
}

type storedSectionSummary struct {
	ID           document.Key `json:"id"`
	PageNumber   int          `json:"page_number"`
	SectionTitle string       `json:"section_title"`
	Summary      string       `json:"summary"`
	CreatedAt    string       `json:"created_at"`
}

type storedSection struct {
	ID      document.Key `json:"id"`
	Title   string       `json:"title"`
	Summary string       `json:"summary"`
}

// GetDocument returns a finalized document with its pages and summaries.
func (c *Client) GetDocument(ctx context.Context, id int64) (*document.Detail, error) {
	var raw struct {
		PDF              document.Metadata      `json:"pdf"`
		Sections         []storedSection        `json:"sections"`
		Pages            []storedPage           `json:"pages"`
		SectionSummaries []storedSectionSummary `json:"section_summaries"`
	}
	if err := c.getJSON(ctx, "get document", "/pdfs/"+strconv.FormatInt(id, 10), &raw); err != nil {
		return nil, err
	}

	d := &document.Detail{Metadata: raw.PDF}
	for _, p := range raw.Pages {
		d.Pages = append(d.Pages, document.Page{
			PageID:     p.ID,
			PageNumber: p.PageNumber,
			Title:      p.Title,
			Summary:    p.Summary,
			Content:    p.Content,
		})
	}
	for _, s := range raw.Sections {
		d.Sections = append(d.Sections, document.Section{SectionID: s.ID, Title: s.Title, Summary: s.Summary})
	}
	for _, ss := range raw.SectionSummaries {
		d.SectionSummaries = append(d.SectionSummaries, document.SectionSummary{
			ID:           ss.ID,
			PageNumber:   ss.PageNumber,
			SectionTitle: ss.SectionTitle,
			Summary:      ss.Summary,
			CreatedAt:    parseStoredTime(ss.CreatedAt),
		})
	}
	return d, nil
}

// DeleteDocument removes a document and its stored file.
func (c *Client) DeleteDocument(ctx context.Context, id int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/pdfs/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Op: "delete document", StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

// FileURL is where the original PDF can be viewed, anchored at page when
// page is positive.
func (c *Client) FileURL(id int64, page int) string {
	u := c.baseURL + "/pdfs/" + url.PathEscape(strconv.FormatInt(id, 10)) + "/file"
	if page > 0 {
		u += "#page=" + strconv.Itoa(page)
	}
	return u
}

// getJSON issues a GET with retries on transient failures.
func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	var lastErr error
	for attempt := range MaxRetries {
		lastErr = c.getOnce(ctx, op, path, out)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		if c.log != nil {
			c.log.Warn("retryable summarizer error", "op", op, "attempt", attempt, "error", lastErr)
		}
		if attempt == MaxRetries-1 {
			break
		}
		if err := c.sleep(ctx, Backoff(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) getOnce(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", op, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
}

// parseStoredTime accepts RFC 3339 and the producer's zone-less timestamps.
func parseStoredTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
