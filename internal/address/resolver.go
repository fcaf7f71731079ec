package address

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"clinic-web/internal/validation"
)

const (
	DefaultBaseURL     = "https://viacep.com.br"
	resolverTracerName = "clinic-web/internal/address"
)

var (
	ErrInvalidFormat = errors.New("invalid postal code format")
	ErrNotFound      = errors.New("postal code not found")
	ErrLookup        = errors.New("postal code lookup failed")
)

// Address holds the fields derived from a postal code. They are read-only
// for the owning record until the next successful resolution.
type Address struct {
	PostalCode string `json:"cep"`
	Street     string `json:"rua"`
	District   string `json:"bairro"`
	City       string `json:"cidade"`
	State      string `json:"uf,omitempty"`
}

type Lookuper interface {
	Resolve(ctx context.Context, postalCode string) (Address, error)
}

type Resolver struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	lookups metric.Int64Counter
}

type Option func(*Resolver)

func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithRateLimit bounds outgoing lookups. A non-positive rps disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(r *Resolver) {
		if rps <= 0 {
			r.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func NewResolver(baseURL string, options ...Option) *Resolver {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	r := &Resolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, option := range options {
		option(r)
	}

	counter, err := otel.Meter(resolverTracerName).Int64Counter(
		"clinic.postal_lookup.count",
		metric.WithDescription("Total de consultas de CEP por resultado"),
	)
	if err != nil {
		slog.Error("create postal lookup counter", "error", err)
	}
	r.lookups = counter
	return r
}

type viaCEPResponse struct {
	PostalCode string   `json:"cep"`
	Street     string   `json:"logradouro"`
	District   string   `json:"bairro"`
	City       string   `json:"localidade"`
	State      string   `json:"uf"`
	Error      erroFlag `json:"erro"`
}

// erroFlag accepts both `"erro": true` and `"erro": "true"`.
type erroFlag bool

func (f *erroFlag) UnmarshalJSON(data []byte) error {
	switch strings.Trim(strings.TrimSpace(string(data)), `"`) {
	case "true":
		*f = true
	default:
		*f = false
	}
	return nil
}

func (r *Resolver) Resolve(ctx context.Context, postalCode string) (Address, error) {
	code := validation.Digits(postalCode)
	if !validation.ValidatePostalCode(code) {
		r.record(ctx, "invalid_format")
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidFormat, postalCode)
	}

	ctx, span := otel.Tracer(resolverTracerName).Start(ctx, "Resolver.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("postal_code", code))

	address, err := r.lookup(ctx, code)
	switch {
	case err == nil:
		r.record(ctx, "found")
	case errors.Is(err, ErrNotFound):
		r.record(ctx, "not_found")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "postal code lookup failed")
		r.record(ctx, "error")
	}
	return address, err
}

func (r *Resolver) lookup(ctx context.Context, code string) (Address, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Address{}, fmt.Errorf("%w: %v", ErrLookup, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/ws/%s/json/", r.baseURL, code), nil)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Address{}, fmt.Errorf("%w: unexpected status %d", ErrLookup, resp.StatusCode)
	}

	var body viaCEPResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Address{}, fmt.Errorf("%w: decode response: %v", ErrLookup, err)
	}
	if body.Error {
		return Address{}, fmt.Errorf("%w: %s", ErrNotFound, code)
	}

	return Address{
		PostalCode: validation.FormatPostalCode(code),
		Street:     body.Street,
		District:   body.District,
		City:       body.City,
		State:      body.State,
	}, nil
}

func (r *Resolver) record(ctx context.Context, outcome string) {
	if r.lookups == nil {
		return
	}
	r.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
