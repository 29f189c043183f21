package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// MaxDetailBatch is the provider-imposed maximum number of ids per
// detail-lookup call.
const MaxDetailBatch = 50

// Credentials is the already-decrypted material this engine consumes. Issuance
// and storage of encrypted credentials live upstream.
type Credentials struct {
	AccessToken string
	AppID       string
	Secret      string
}

// Options configures a Client. All state is constructor-injected; the package
// holds no process-wide singletons.
type Options struct {
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
	PageSize          int
	Timeout           time.Duration
	Retry             RetryPolicy
	HTTPClient        *http.Client
	Logger            zerolog.Logger
}

// Client wraps outbound calls to the provider platform behind a token bucket
// and the transport retry policy.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	creds    Credentials
	pageSize int
	retry    RetryPolicy
	logger   zerolog.Logger
}

func NewClient(creds Credentials, opts Options) *Client {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 8
	}
	if opts.Burst <= 0 {
		opts.Burst = int(opts.RequestsPerSecond)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:  opts.BaseURL,
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		creds:    creds,
		pageSize: opts.PageSize,
		retry:    opts.Retry,
		logger:   opts.Logger.With().Str("component", "provider_client").Logger(),
	}
}

type envelope struct {
	Code      int64           `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// get performs one idempotent read under the token bucket and the retry
// policy. Each attempt acquires its own token, so outbound QPS is bounded
// regardless of caller concurrency or retries.
func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	var data json.RawMessage
	err := c.retry.Do(ctx, retryable, func(ctx context.Context) error {
		var err error
		data, err = c.doOnce(ctx, path, query)
		return err
	})
	return data, err
}

func (c *Client) doOnce(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build provider request")
	}
	req.Header.Set("Access-Token", c.creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("provider transport failure")
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(err, "decode provider envelope")
	}
	if env.Code != 0 {
		return nil, &APIError{Code: env.Code, Message: env.Message, RequestID: env.RequestID, Raw: env.Data}
	}
	return env.Data, nil
}

// ListOptions narrows a paginated listing. State resumes from a stored
// cursor; the remaining filters are passed through to the provider unchanged.
type ListOptions struct {
	State        PageState
	PageSize     int
	Since        time.Time
	Until        time.Time
	AdvertiserID string
	StoreID      string
	Eligibility  string
}

func (c *Client) effectivePageSize(opts ListOptions) int {
	if opts.PageSize > 0 {
		return opts.PageSize
	}
	return c.pageSize
}

// ListBusinessCenters pages through the business centers visible to the
// binding. Page/page_size style: the loop increments page while the server
// reports more pages.
func (c *Client) ListBusinessCenters(opts ListOptions) *PageStream {
	return c.numberedStream("/bc/get/", url.Values{}, opts)
}

// ListAdvertisers pages through the advertisers authorized for the binding.
func (c *Client) ListAdvertisers(opts ListOptions) *PageStream {
	return c.numberedStream("/advertiser/get/", url.Values{}, opts)
}

// ListStores pages through the stores linked to one advertiser.
func (c *Client) ListStores(opts ListOptions) *PageStream {
	q := url.Values{}
	if opts.AdvertiserID != "" {
		q.Set("advertiser_id", opts.AdvertiserID)
	}
	return c.numberedStream("/store/list/", q, opts)
}

// ListProducts pages through a store's products. Opaque-cursor style: the
// loop repeats while the response carries a non-empty next_cursor.
func (c *Client) ListProducts(opts ListOptions) *PageStream {
	q := url.Values{}
	if opts.StoreID != "" {
		q.Set("store_id", opts.StoreID)
	}
	if opts.AdvertiserID != "" {
		q.Set("advertiser_id", opts.AdvertiserID)
	}
	if opts.Eligibility != "" {
		q.Set("eligibility", opts.Eligibility)
	}
	return c.cursorStream("/store/product/get/", q, opts)
}

// GetAdvertiserDetails hydrates detail fields absent from the list endpoint.
// The id list is chunked to the provider's batch maximum.
func (c *Client) GetAdvertiserDetails(ctx context.Context, ids []string) ([]map[string]any, error) {
	var out []map[string]any
	for start := 0; start < len(ids); start += MaxDetailBatch {
		end := start + MaxDetailBatch
		if end > len(ids) {
			end = len(ids)
		}
		chunk, err := json.Marshal(ids[start:end])
		if err != nil {
			return nil, errors.Wrap(err, "encode advertiser id batch")
		}
		q := url.Values{}
		q.Set("advertiser_ids", string(chunk))
		data, err := c.get(ctx, "/advertiser/info/", q)
		if err != nil {
			return nil, err
		}
		var payload struct {
			List []map[string]any `json:"list"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, errors.Wrap(err, "decode advertiser details")
		}
		out = append(out, payload.List...)
	}
	return out, nil
}

func (c *Client) numberedStream(path string, base url.Values, opts ListOptions) *PageStream {
	pageSize := c.effectivePageSize(opts)
	start := opts.State
	if start.Page <= 0 {
		start.Page = 1
	}
	return NewPageStream(start, func(ctx context.Context, state PageState) ([]map[string]any, PageState, bool, error) {
		q := cloneValues(base)
		q.Set("page", strconv.Itoa(state.Page))
		q.Set("page_size", strconv.Itoa(pageSize))
		applyWindow(q, opts)
		data, err := c.get(ctx, path, q)
		if err != nil {
			return nil, state, false, err
		}
		var payload struct {
			List     []map[string]any `json:"list"`
			PageInfo struct {
				Page      int `json:"page"`
				TotalPage int `json:"total_page"`
			} `json:"page_info"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, state, false, errors.Wrap(err, "decode page")
		}
		next := PageState{Page: state.Page + 1}
		done := len(payload.List) == 0 || state.Page >= payload.PageInfo.TotalPage
		return payload.List, next, done, nil
	})
}

func (c *Client) cursorStream(path string, base url.Values, opts ListOptions) *PageStream {
	pageSize := c.effectivePageSize(opts)
	return NewPageStream(opts.State, func(ctx context.Context, state PageState) ([]map[string]any, PageState, bool, error) {
		q := cloneValues(base)
		q.Set("page_size", strconv.Itoa(pageSize))
		if state.Cursor != "" {
			q.Set("cursor", state.Cursor)
		}
		applyWindow(q, opts)
		data, err := c.get(ctx, path, q)
		if err != nil {
			return nil, state, false, err
		}
		var payload struct {
			List       []map[string]any `json:"list"`
			NextCursor string           `json:"next_cursor"`
			HasMore    bool             `json:"has_more"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, state, false, errors.Wrap(err, "decode page")
		}
		next := PageState{Cursor: payload.NextCursor}
		done := payload.NextCursor == "" || !payload.HasMore
		return payload.List, next, done, nil
	})
}

func applyWindow(q url.Values, opts ListOptions) {
	if !opts.Since.IsZero() {
		q.Set("since", strconv.FormatInt(opts.Since.Unix(), 10))
	}
	if !opts.Until.IsZero() {
		q.Set("until", strconv.FormatInt(opts.Until.Unix(), 10))
	}
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vals := range v {
		for _, val := range vals {
			out.Add(k, val)
		}
	}
	return out
}
