package fogocruzado

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/crossfire-map/internal/domain"
	"github.com/couchcryptid/crossfire-map/internal/observability"
)

// DefaultBaseURL is the Fogo Cruzado v2 API root.
const DefaultBaseURL = "https://api-service.fogocruzado.org.br/api/v2"

// maxErrorBody caps how much of a failed response body ends up in errors and logs.
const maxErrorBody = 512

// Client talks to the Fogo Cruzado API. Requests are issued one at a time
// and never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a Fogo Cruzado API client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Login exchanges credentials for a bearer token. Only a 201 response is a
// success; any other status yields a *domain.AuthenticationError.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", &domain.AuthenticationError{Reason: "email and password are required"}
	}

	form := url.Values{"email": {email}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req, "login")
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", &domain.AuthenticationError{StatusCode: resp.StatusCode, Reason: readErrorBody(resp.Body)}
	}

	var body envelope[loginData]
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if body.Data.AccessToken == "" {
		return "", errors.New("login response has no access token")
	}
	return body.Data.AccessToken, nil
}

// States fetches every region from the reference-data endpoint. A non-200
// response yields a *domain.DataFetchError.
func (c *Client) States(ctx context.Context, token string) ([]domain.Region, error) {
	req, err := c.authorizedGet(ctx, c.baseURL+"/states", token)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req, "states")
	if err != nil {
		return nil, fmt.Errorf("states request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.DataFetchError{Resource: "states", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var body envelope[[]domain.Region]
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode states response: %w", err)
	}
	return body.Data, nil
}

// Occurrences fetches incidents for each region id in order, ascending by
// date. A region whose request fails for any reason is skipped: it adds
// nothing to Incidents and is recorded as domain.FetchSkipped in Outcomes.
func (c *Client) Occurrences(ctx context.Context, token string, regionIDs []string) domain.FetchReport {
	report := domain.FetchReport{Outcomes: make([]domain.RegionOutcome, 0, len(regionIDs))}

	for _, id := range regionIDs {
		incidents, outcome := c.regionOccurrences(ctx, token, id)
		if outcome.Status == domain.FetchOK {
			report.Incidents = append(report.Incidents, incidents...)
		} else {
			c.logger.Warn("skipping region",
				"region_id", id,
				"status_code", outcome.StatusCode,
				"error", outcome.Err,
			)
		}
		c.metrics.RegionFetches.WithLabelValues(string(outcome.Status)).Inc()
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report
}

func (c *Client) regionOccurrences(ctx context.Context, token, regionID string) ([]domain.Incident, domain.RegionOutcome) {
	outcome := domain.RegionOutcome{RegionID: regionID, Status: domain.FetchSkipped}

	params := url.Values{
		"order":   {"ASC"},
		"idState": {regionID},
	}
	req, err := c.authorizedGet(ctx, c.baseURL+"/occurrences?"+params.Encode(), token)
	if err != nil {
		outcome.Err = err.Error()
		return nil, outcome
	}

	resp, err := c.do(req, "occurrences")
	if err != nil {
		outcome.Err = err.Error()
		return nil, outcome
	}
	defer resp.Body.Close()

	outcome.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		outcome.Err = readErrorBody(resp.Body)
		return nil, outcome
	}

	var body envelope[[]domain.Incident]
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		outcome.Err = fmt.Sprintf("decode occurrences response: %v", err)
		return nil, outcome
	}

	outcome.Status = domain.FetchOK
	outcome.Incidents = len(body.Data)
	c.logger.Debug("fetched region", "region_id", regionID, "incidents", len(body.Data))
	return body.Data, outcome
}

func (c *Client) authorizedGet(ctx context.Context, fullURL, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends the request and records its duration and outcome under endpoint.
func (c *Client) do(req *http.Request, endpoint string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.APIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, err
	}
	c.metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

func readErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(body))
}

// Fogo Cruzado API response types.

type envelope[T any] struct {
	Data T `json:"data"`
}

type loginData struct {
	AccessToken string `json:"accessToken"`
}
