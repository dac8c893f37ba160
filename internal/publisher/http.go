package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/maheshrc27/postflow/internal/models"
	"golang.org/x/sync/errgroup"
)

const maxErrorBody = 4096

// apiClient wraps the HTTP plumbing shared by the adapters: every non-2xx
// response becomes a ChannelPublishError carrying the response body.
type apiClient struct {
	platform models.Platform
	http     *http.Client
	wait     func(ctx context.Context) error
}

func newAPIClient(p models.Platform, client *http.Client) *apiClient {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &apiClient{platform: p, http: client}
}

func (c *apiClient) do(ctx context.Context, step string, req *http.Request, out any) error {
	if c.wait != nil {
		if err := c.wait(ctx); err != nil {
			return failure(c.platform, step, err)
		}
	}

	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return failure(c.platform, step, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(c.platform, step, fmt.Errorf("reading response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &ChannelPublishError{
			Platform:   c.platform,
			Step:       step,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ChannelPublishError{
			Platform:   c.platform,
			Step:       step,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        fmt.Errorf("parsing response: %w", err),
		}
	}
	return nil
}

func (c *apiClient) get(ctx context.Context, step, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return failure(c.platform, step, err)
	}
	setHeaders(req, headers)
	return c.do(ctx, step, req, out)
}

func (c *apiClient) postForm(ctx context.Context, step, rawURL string, form url.Values, headers map[string]string, out any) error {
	req, err := http.NewRequest(http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return failure(c.platform, step, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	setHeaders(req, headers)
	return c.do(ctx, step, req, out)
}

func (c *apiClient) postJSON(ctx context.Context, step, rawURL string, payload any, headers map[string]string, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return failure(c.platform, step, fmt.Errorf("marshalling payload: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(http.MethodPost, rawURL, body)
	if err != nil {
		return failure(c.platform, step, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	setHeaders(req, headers)
	return c.do(ctx, step, req, out)
}

// postMultipart sends fields plus an optional file part named fileField.
func (c *apiClient) postMultipart(ctx context.Context, step, rawURL string, fields map[string]string, fileField string, file io.Reader, headers map[string]string, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return failure(c.platform, step, err)
		}
	}
	if file != nil {
		part, err := w.CreateFormFile(fileField, fileField)
		if err != nil {
			return failure(c.platform, step, err)
		}
		if _, err := io.Copy(part, file); err != nil {
			return failure(c.platform, step, fmt.Errorf("writing media part: %w", err))
		}
	}
	if err := w.Close(); err != nil {
		return failure(c.platform, step, err)
	}

	req, err := http.NewRequest(http.MethodPost, rawURL, &buf)
	if err != nil {
		return failure(c.platform, step, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	setHeaders(req, headers)
	return c.do(ctx, step, req, out)
}

// download fetches a signed media URL. The caller closes the body.
func (c *apiClient) download(ctx context.Context, signedURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, 0, failure(c.platform, "download media", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, failure(c.platform, "download media", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, 0, &ChannelPublishError{
			Platform:   c.platform,
			Step:       "download media",
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return resp.Body, resp.ContentLength, nil
}

func setHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// signedURLs resolves every media location, keeping the declared order.
func signedURLs(ctx context.Context, p models.Platform, resolver ResourceResolver, media []models.Media) ([]string, error) {
	urls := make([]string, len(media))
	for i, m := range media {
		u, err := resolver.GetSignedURL(ctx, m.Location)
		if err != nil {
			return nil, failure(p, "resolve media url", fmt.Errorf("media %d: %w", i+1, err))
		}
		urls[i] = u
	}
	return urls, nil
}

// uploadAll runs upload for every media item concurrently. Results are
// returned in the declared media order; the first failure cancels the rest.
func uploadAll[T any](ctx context.Context, media []models.Media, upload func(ctx context.Context, i int, m models.Media) (T, error)) ([]T, error) {
	results := make([]T, len(media))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range media {
		g.Go(func() error {
			res, err := upload(gctx, i, m)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// PollConfig controls how long adapters wait for platform-side media
// processing.
type PollConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
		MaxElapsedTime:  10 * time.Minute,
	}
}

// poll calls check until it reports done, returns a permanent error, or the
// backoff gives up.
func poll(ctx context.Context, cfg PollConfig, check func() (bool, error)) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = cfg.MaxElapsedTime
	bo.Reset()

	errPending := fmt.Errorf("still processing")
	return backoff.Retry(func() error {
		done, err := check()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errPending
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

func fallback(v *int64, old int64) int64 {
	if v == nil {
		return old
	}
	return *v
}

// parseCount reads a count sent as a decimal string. Absent or malformed
// values yield nil so the previous value is kept.
func parseCount(s *string) *int64 {
	if s == nil {
		return nil
	}
	n, err := strconv.ParseInt(*s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func snapshotOrZero(old *models.MetricsSnapshot) models.MetricsSnapshot {
	if old == nil {
		return models.MetricsSnapshot{}
	}
	return *old
}

func anyVideo(media []models.Media) bool {
	for _, m := range media {
		if m.IsVideo() {
			return true
		}
	}
	return false
}
