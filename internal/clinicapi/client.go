package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

const clientTracerName = "clinic-web/internal/clinicapi"

var (
	ErrRequest      = errors.New("clinic api request failed")
	ErrUnauthorized = errors.New("clinic api rejected credentials")
)

// StatusError is a non-2xx answer from the clinic API.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return ErrRequest
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Login(ctx context.Context, input LoginRequest) (LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, "", http.MethodPost, "/auth/login", nil, input, &out)
	return out, err
}

func (c *Client) ChangePassword(ctx context.Context, token string, input ChangePasswordRequest) error {
	return c.do(ctx, token, http.MethodPost, "/auth/trocar-senha", nil, input, nil)
}

func (c *Client) ListPatients(ctx context.Context, token string) ([]Person, error) {
	var out []Person
	err := c.do(ctx, token, http.MethodGet, "/patients", nil, nil, &out)
	return out, err
}

func (c *Client) CreatePatient(ctx context.Context, token string, input Person) (Person, error) {
	var out Person
	err := c.do(ctx, token, http.MethodPost, "/patients", nil, input, &out)
	return out, err
}

func (c *Client) ListUsers(ctx context.Context, token string) ([]Person, error) {
	var out []Person
	err := c.do(ctx, token, http.MethodGet, "/users", nil, nil, &out)
	return out, err
}

func (c *Client) CreateUser(ctx context.Context, token string, input Person) (Person, error) {
	var out Person
	err := c.do(ctx, token, http.MethodPost, "/users", nil, input, &out)
	return out, err
}

func (c *Client) GetMe(ctx context.Context, token string) (Person, error) {
	var out Person
	err := c.do(ctx, token, http.MethodGet, "/users/me", nil, nil, &out)
	return out, err
}

func (c *Client) UpdateMe(ctx context.Context, token string, input Person) (Person, error) {
	var out Person
	err := c.do(ctx, token, http.MethodPatch, "/users/me", nil, input, &out)
	return out, err
}

func (c *Client) ListServiceTypes(ctx context.Context, token string) ([]ServiceType, error) {
	var out []ServiceType
	err := c.do(ctx, token, http.MethodGet, "/service-types", nil, nil, &out)
	return out, err
}

func (c *Client) CreateServiceType(ctx context.Context, token string, input ServiceType) (ServiceType, error) {
	var out ServiceType
	err := c.do(ctx, token, http.MethodPost, "/service-types", nil, input, &out)
	return out, err
}

func (c *Client) ListExpenseTypes(ctx context.Context, token string) ([]ExpenseType, error) {
	var out []ExpenseType
	err := c.do(ctx, token, http.MethodGet, "/expense-types", nil, nil, &out)
	return out, err
}

func (c *Client) CreateExpenseType(ctx context.Context, token string, input ExpenseType) (ExpenseType, error) {
	var out ExpenseType
	err := c.do(ctx, token, http.MethodPost, "/expense-types", nil, input, &out)
	return out, err
}

func (c *Client) ListAppointments(ctx context.Context, token string) ([]Appointment, error) {
	var out []Appointment
	err := c.do(ctx, token, http.MethodGet, "/appointments", nil, nil, &out)
	return out, err
}

func (c *Client) CreateAppointment(ctx context.Context, token string, input Appointment) (Appointment, error) {
	var out Appointment
	err := c.do(ctx, token, http.MethodPost, "/appointments", nil, input, &out)
	return out, err
}

func (c *Client) UpdateAppointment(ctx context.Context, token string, id string, input Appointment) (Appointment, error) {
	var out Appointment
	err := c.do(ctx, token, http.MethodPatch, "/appointments/"+url.PathEscape(id), nil, input, &out)
	return out, err
}

// AppointmentsInPeriod lists appointments between start and end, both in
// the API's "YYYY-MM-DDTHH:MM:SS" form.
func (c *Client) AppointmentsInPeriod(ctx context.Context, token string, start string, end string) ([]Appointment, error) {
	var out []Appointment
	query := url.Values{"inicio": {start}, "fim": {end}}
	err := c.do(ctx, token, http.MethodGet, "/appointments/agenda/periodo", query, nil, &out)
	return out, err
}

func (c *Client) ListExpenses(ctx context.Context, token string) ([]Expense, error) {
	var out []Expense
	err := c.do(ctx, token, http.MethodGet, "/expenses", nil, nil, &out)
	return out, err
}

func (c *Client) CreateExpense(ctx context.Context, token string, input Expense) (Expense, error) {
	var out Expense
	err := c.do(ctx, token, http.MethodPost, "/expenses", nil, input, &out)
	return out, err
}

func (c *Client) FinancialSummary(ctx context.Context, token string, start string, end string) (FinancialSummary, error) {
	var out FinancialSummary
	query := url.Values{"inicio": {start}, "fim": {end}}
	err := c.do(ctx, token, http.MethodGet, "/financas", query, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, token string, method string, path string, query url.Values, body any, out any) error {
	ctx, span := otel.Tracer(clientTracerName).Start(ctx, "clinicapi "+method+" "+path)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	)

	err := c.send(ctx, token, method, path, query, body, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "clinic api request failed")
	}
	return err
}

func (c *Client) send(ctx context.Context, token string, method string, path string, query url.Values, body any, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode body: %v", ErrRequest, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &StatusError{StatusCode: resp.StatusCode, Method: method, Path: path}
	}
	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: decode response: %v", ErrRequest, err)
	}
	return nil
}
