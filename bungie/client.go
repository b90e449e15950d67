package bungie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getsentry/raven-go"
	"github.com/kpango/glg"
	"golang.org/x/time/rate"
)

const (
	maxAttempts          = 5
	defaultThrottleDelay = 1 * time.Second
)

// StatusResponse is used as the generic response parameter for the deserialized response
// from the generic Client Execute calls. One of the response structs should be used as the
// concrete type for the request's response to be deserialized into.
type StatusResponse interface {
	ErrCode() int
	ErrStatus() string
	ErrMessage() string
	ThrottleDelay() time.Duration
}

// BaseResponse represents the data returned as part of all of the Bungie API
// requests.
type BaseResponse struct {
	ErrorCode       int         `json:"ErrorCode"`
	ThrottleSeconds int         `json:"ThrottleSeconds"`
	ErrorStatus     string      `json:"ErrorStatus"`
	Message         string      `json:"Message"`
	MessageData     interface{} `json:"MessageData"`
}

// ErrCode returns the err code field from a Bungie response
func (b *BaseResponse) ErrCode() int { return b.ErrorCode }

// ErrStatus returns the status string provided in the Bungie response
func (b *BaseResponse) ErrStatus() string { return b.ErrorStatus }

// ErrMessage returns the human readable message provided in the Bungie response
func (b *BaseResponse) ErrMessage() string { return b.Message }

// ThrottleDelay is how long Bungie asked the client to wait before retrying
func (b *BaseResponse) ThrottleDelay() time.Duration {
	return time.Duration(b.ThrottleSeconds) * time.Second
}

func (b *BaseResponse) String() string {
	if b != nil {
		return fmt.Sprintf("%+v", *b)
	}
	return "<nil>"
}

// APIError is returned when Bungie answers with anything but a success code.
type APIError struct {
	HTTPStatus  int
	ErrorCode   int
	ErrorStatus string
	Message     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bungie: %s (code %d, http %d): %s", e.ErrorStatus, e.ErrorCode, e.HTTPStatus, e.Message)
}

// AccessTokenProvider supplies the OAuth access token added to every request.
type AccessTokenProvider interface {
	AccessToken() string
}

// Client is a type that contains all information needed to make requests to the
// Bungie API.
type Client struct {
	*http.Client
	BaseURL string
	APIKey  string
	Tokens  AccessTokenProvider

	// Definitions resolves item and milestone hashes while building characters. Optional.
	Definitions Definitions

	// ThrottleDelay is the minimum wait before retrying a throttled request.
	ThrottleDelay time.Duration

	limiter *rate.Limiter
}

// NewClient creates a Client for the given host. requestsPerSecond <= 0 disables the
// client side rate limit.
func NewClient(baseURL, apiKey string, tokens AccessTokenProvider, requestsPerSecond float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &Client{
		Client:        &http.Client{Timeout: 60 * time.Second},
		BaseURL:       strings.TrimSuffix(baseURL, "/"),
		APIKey:        apiKey,
		Tokens:        tokens,
		ThrottleDelay: defaultThrottleDelay,
		limiter:       rate.NewLimiter(limit, 1),
	}
}

// AddAuthHeadersToRequest will handle adding the authentication headers from the
// current client to the specified Request.
func (c *Client) AddAuthHeadersToRequest(req *http.Request) {
	req.Header.Set("X-Api-Key", c.APIKey)
	if c.Tokens == nil {
		return
	}
	if token := c.Tokens.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) newRequest(ctx context.Context, request *APIRequest) (*http.Request, error) {
	var body io.Reader
	if len(request.Body) > 0 {
		jsonBody, err := json.Marshal(request.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, request.HTTPMethod, c.BaseURL+request.Endpoint, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	c.AddAuthHeadersToRequest(req)

	if len(request.Components) > 0 {
		vals := url.Values{}
		vals.Add("components", strings.Join(request.Components, ","))
		req.URL.RawQuery = vals.Encode()
	}

	return req, nil
}

// Execute is a generic request execution method that will send the passed request
// on to the Bungie API using the configured client. The response is then deserialized into
// the response object provided. Throttled requests are retried a few times.
func (c *Client) Execute(ctx context.Context, request *APIRequest, response StatusResponse) error {

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := c.newRequest(ctx, request)
		if err != nil {
			return err
		}

		glg.Debugf("Executing request: %s %s", request.HTTPMethod, req.URL.String())
		resp, err := c.Do(req)
		if err != nil {
			glg.Errorf("Error executing request: %s", err.Error())
			return err
		}

		err = json.NewDecoder(resp.Body).Decode(response)
		resp.Body.Close()
		if err != nil {
			if resp.StatusCode != http.StatusOK {
				return &APIError{HTTPStatus: resp.StatusCode, ErrorStatus: http.StatusText(resp.StatusCode)}
			}
			raven.CaptureError(err, nil)
			glg.Warnf("Error decoding API response: %s", err.Error())
			return err
		}

		if isThrottled(response) && attempt < maxAttempts {
			delay := response.ThrottleDelay()
			if delay < c.ThrottleDelay {
				delay = c.ThrottleDelay
			}
			glg.Warnf("Request throttled, retrying in %v (attempt %d)", delay, attempt)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		if resp.StatusCode != http.StatusOK || response.ErrCode() != SuccessErrorCode {
			return &APIError{
				HTTPStatus:  resp.StatusCode,
				ErrorCode:   response.ErrCode(),
				ErrorStatus: response.ErrStatus(),
				Message:     response.ErrMessage(),
			}
		}

		glg.Debugf("Successful response for %s", request.Endpoint)
		return nil
	}
}

func isThrottled(response StatusResponse) bool {
	return response.ErrCode() == ThrottleErrorCode ||
		strings.HasPrefix(response.ErrStatus(), ThrottleErrorStatus)
}
