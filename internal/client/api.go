package client

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

	"github.com/vtc-premium/service-reservation/internal/domain/fare"
	"github.com/vtc-premium/service-reservation/internal/domain/reservation"
	"github.com/vtc-premium/service-reservation/internal/domain/route"
	"github.com/vtc-premium/service-reservation/internal/maps"
)

// DefaultTimeout bounds every call to the reservation server.
const DefaultTimeout = 10 * time.Second

const maxResponseBody = 4 << 20

// SubmitResponse is the server's answer to an accepted booking.
type SubmitResponse struct {
	Success       bool                     `json:"success"`
	Message       string                   `json:"message"`
	ReservationID int64                    `json:"reservationId"`
	Errors        []string                 `json:"errors,omitempty"`
	Fields        []reservation.FieldError `json:"fields,omitempty"`
}

// APIClient talks to the reservation server. Map lookups go through the
// server's proxy endpoints, so it implements maps.Provider.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates an APIClient for the server at baseURL.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Geocode implements maps.Geocoder.
func (c *APIClient) Geocode(ctx context.Context, query string) (route.Coordinate, error) {
	body, err := c.getProxy(ctx, "/api/mapbox/geocode", url.Values{"query": {query}})
	if err != nil {
		return route.Coordinate{}, err
	}
	return maps.DecodeFirstCoordinate(body)
}

// ReverseGeocode implements maps.ReverseGeocoder.
func (c *APIClient) ReverseGeocode(ctx context.Context, at route.Coordinate) (string, error) {
	q := url.Values{}
	q.Set("lon", fmt.Sprintf("%g", at.Longitude))
	q.Set("lat", fmt.Sprintf("%g", at.Latitude))
	body, err := c.getProxy(ctx, "/api/mapbox/reverse-geocode", q)
	if err != nil {
		return "", err
	}
	return maps.DecodeFirstPlaceName(body)
}

// Route implements maps.Router.
func (c *APIClient) Route(ctx context.Context, from, to route.Coordinate) (route.Estimate, error) {
	body, err := c.getProxy(ctx, "/api/mapbox/directions", url.Values{
		"start": {from.String()},
		"end":   {to.String()},
	})
	if err != nil {
		return route.Estimate{}, err
	}
	return maps.DecodeRoute(body)
}

// Tiers fetches the server's rate table so quotes match what it will accept.
func (c *APIClient) Tiers(ctx context.Context) (*fare.RateTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tiers", nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &TransportError{StatusCode: status, Message: string(body)}
	}

	var resp struct {
		BaseFare float64            `json:"base_fare"`
		Currency string             `json:"currency"`
		Tiers    []fare.ServiceTier `json:"tiers"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TransportError{StatusCode: status, Err: fmt.Errorf("unreadable response: %w", err)}
	}
	return fare.NewRateTable(resp.BaseFare, resp.Currency, resp.Tiers...)
}

// Submit posts a booking. A 400 yields *RejectedError; a network failure,
// unreadable answer or 5xx yields *TransportError.
func (c *APIClient) Submit(ctx context.Context, req reservation.Request, idempotencyKey string) (*SubmitResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode booking: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/reservations", bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	status, body, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var resp SubmitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TransportError{StatusCode: status, Err: fmt.Errorf("unreadable response: %w", err)}
	}

	switch {
	case status == http.StatusBadRequest:
		return nil, &RejectedError{Message: resp.Message, Messages: resp.Errors, Fields: resp.Fields}
	case status >= 300 || !resp.Success:
		return nil, &TransportError{StatusCode: status, Message: resp.Message}
	}
	return &resp, nil
}

func (c *APIClient) getProxy(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &maps.ProviderStatusError{StatusCode: status, Body: string(body)}
	}
	return body, nil
}

func (c *APIClient) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, body, nil
}
