package tourvisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/t3m14/tours-sub000/internal/domain"
	"github.com/t3m14/tours-sub000/internal/providers/common"
	"github.com/t3m14/tours-sub000/internal/search"
)

const (
	DefaultBaseURL   = "http://tourvisor.ru/xml"
	defaultUserAgent = "tours-search/1.0"
	maxResponseBytes = 8 * 1024 * 1024
	redactedValue    = "***"
)

var credentialParams = []string{"authlogin", "authpass"}

type Config struct {
	BaseURL   string
	Login     string
	Password  string
	UserAgent string
	Client    *http.Client
	Retry     search.RetryConfig
	// RequestsPerSecond limits outgoing calls across all jobs. Zero disables limiting.
	RequestsPerSecond float64
	Logger            *slog.Logger
	Now               func() time.Time
}

// Client talks to the TourVisor XML API. It keeps no per-job state and is
// safe to share between goroutines.
type Client struct {
	baseURL   string
	login     string
	password  string
	userAgent string
	client    *http.Client
	retry     search.RetryConfig
	limiter   *rate.Limiter
	logger    *slog.Logger
	now       func() time.Time
	health    *healthTracker
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = search.DefaultRetryConfig()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:   baseURL,
		login:     strings.TrimSpace(cfg.Login),
		password:  cfg.Password,
		userAgent: userAgent,
		client:    httpClient,
		retry:     retry,
		limiter:   limiter,
		logger:    logger.With(slog.String("component", "tourvisor")),
		now:       now,
		health:    newHealthTracker(),
	}
}

// SubmitSearch validates criteria, applies defaults and starts a remote search.
func (c *Client) SubmitSearch(ctx context.Context, criteria domain.SearchCriteria) (domain.SearchJobID, error) {
	prepared, err := PrepareCriteria(criteria, c.now())
	if err != nil {
		return "", err
	}
	raw, tree, err := c.call(ctx, opSubmit, "search.php", criteriaParams(prepared))
	if err != nil {
		return "", err
	}
	id, ok := ExtractCorrelationID(raw, tree)
	if !ok {
		c.logger.Warn("search submitted without request id", slog.String("body", truncate(raw, 300)))
		return "", fmt.Errorf("%w: no request id in submit response", domain.ErrRemoteUnavailable)
	}
	c.logger.Info("search submitted",
		slog.String("jobId", id.String()),
		slog.Int("departure", prepared.Departure),
		slog.Int("country", prepared.Country),
		slog.String("dateFrom", prepared.DateFrom),
		slog.String("dateTo", prepared.DateTo),
	)
	return id, nil
}

// PollStatus returns the current remote status of a job. A response without a
// recognisable status yields the default searching status.
func (c *Client) PollStatus(ctx context.Context, id domain.SearchJobID) (domain.SearchStatus, error) {
	params := url.Values{}
	params.Set("requestid", id.String())
	params.Set("type", "status")
	_, tree, err := c.call(ctx, opStatus, "result.php", params)
	if err != nil {
		return domain.SearchStatus{}, err
	}
	status, found := ExtractStatus(tree)
	if !found {
		c.logger.Debug("status response without status record", slog.String("jobId", id.String()))
	}
	return status, nil
}

// FetchResultPage fetches one page of hotels together with the status the
// remote embeds in result responses.
func (c *Client) FetchResultPage(ctx context.Context, id domain.SearchJobID, page, pageSize int) (domain.ResultPage, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("requestid", id.String())
	params.Set("type", "result")
	params.Set("page", strconv.Itoa(page))
	params.Set("onpage", strconv.Itoa(pageSize))
	_, tree, err := c.call(ctx, opResult, "result.php", params)
	if err != nil {
		return domain.ResultPage{}, err
	}
	status, _ := ExtractStatus(tree)
	return domain.ResultPage{Status: status, Hotels: ExtractHotels(tree)}, nil
}

// ContinueSearch asks the remote to extend a finished search. The remote may
// answer with a new request id; otherwise the original id stays valid.
func (c *Client) ContinueSearch(ctx context.Context, id domain.SearchJobID) (domain.SearchJobID, error) {
	params := url.Values{}
	params.Set("continue", id.String())
	raw, tree, err := c.call(ctx, opContinue, "search.php", params)
	if err != nil {
		return "", err
	}
	if next, ok := ExtractCorrelationID(raw, tree); ok {
		return next, nil
	}
	return id, nil
}

// ActualizeTour asks the operator for the current price and availability of
// one offer. domain.ErrTourNotFound is returned when the remote no longer
// knows the offer.
func (c *Client) ActualizeTour(ctx context.Context, req domain.ActualizeRequest) (domain.ActualizedTour, error) {
	if err := req.Validate(); err != nil {
		return domain.ActualizedTour{}, err
	}
	params := url.Values{}
	params.Set("tourid", strings.TrimSpace(req.TourID))
	params.Set("request", strconv.Itoa(req.RequestCheck))
	if req.Currency > 0 {
		params.Set("currency", strconv.Itoa(req.Currency))
	}
	params.Set("format", "json")
	_, tree, err := c.call(ctx, opActualize, "actualize.php", params)
	if err != nil {
		return domain.ActualizedTour{}, err
	}
	tour, found := ExtractActualizedTour(tree)
	if !found {
		return domain.ActualizedTour{}, fmt.Errorf("%w: %s", domain.ErrTourNotFound, req.TourID)
	}
	if tour.TourID == "" {
		tour.TourID = strings.TrimSpace(req.TourID)
	}
	return tour, nil
}

// ActualizeTourDetails fetches the flight options of one offer.
func (c *Client) ActualizeTourDetails(ctx context.Context, tourID string) (domain.TourFlights, error) {
	id, err := domain.ParseTourID(tourID)
	if err != nil {
		return domain.TourFlights{}, err
	}
	params := url.Values{}
	params.Set("tourid", id)
	params.Set("format", "json")
	_, tree, err := c.call(ctx, opActualizeDetail, "actdetail.php", params)
	if err != nil {
		return domain.TourFlights{}, err
	}
	return ExtractTourFlights(tree), nil
}

func (c *Client) Diagnostics() []domain.RemoteDiagnostics {
	return c.health.diagnostics()
}

// call performs one remote operation with retries. Transport failures that
// survive the retry budget are reported as ErrRemoteUnavailable. Undecodable
// bodies are not errors: the tree is nil and callers fall back to defaults.
func (c *Client) call(ctx context.Context, operation, endpoint string, params url.Values) ([]byte, *common.Node, error) {
	if !params.Has("format") {
		params.Set("format", "xml")
	}
	params.Set("authlogin", c.login)
	params.Set("authpass", c.password)
	endpointURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	var payload []byte
	err := search.RetryWithBackoff(ctx, c.retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		started := c.now()
		body, err := c.fetch(ctx, endpointURL)
		c.health.record(operation, err, c.now().Sub(started), c.now())
		if err != nil {
			c.logger.Warn("remote request failed",
				slog.String("operation", operation),
				slog.String("url", redactURL(endpointURL)),
				slog.String("error", err.Error()),
			)
			return err
		}
		payload = body
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, fmt.Errorf("%w: %s: %v", domain.ErrRemoteUnavailable, operation, err)
	}

	tree, err := common.Decode(payload)
	if err != nil {
		c.logger.Debug("remote response not decodable",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
			slog.String("body", truncate(payload, 300)),
		)
		tree = nil
	}
	return payload, tree, nil
}

func (c *Client) fetch(ctx context.Context, endpointURL string) ([]byte, error) {
	c.logger.Debug("remote request", slog.String("url", redactURL(endpointURL)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml,text/xml,application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, scrubError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return nil, &search.StatusError{Code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

// redactURL hides credentials before a URL reaches the logs.
func redactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	query := parsed.Query()
	for _, key := range credentialParams {
		if query.Has(key) {
			query.Set(key, redactedValue)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// scrubError strips the request URL that net/http embeds in transport errors.
func scrubError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = redactURL(urlErr.URL)
		return urlErr
	}
	return err
}

func truncate(payload []byte, limit int) string {
	text := strings.TrimSpace(string(payload))
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
