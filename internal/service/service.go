package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"clinic-web/internal/address"
	"clinic-web/internal/clinicapi"
	"clinic-web/internal/session"
)

const serviceTracerName = "clinic-web/internal/service"

const (
	paymentOpen = "aberto"
	paymentPaid = "pago"

	defaultAppointmentDuration = 60
	defaultScheduleTime        = "08:00"
)

var (
	paymentStatuses    = []string{paymentOpen, paymentPaid}
	expenseFrequencies = []string{"aleatoria", "diaria", "mensal", "anual"}
)

// ClinicAPI is the subset of the clinic API used by the service.
type ClinicAPI interface {
	Login(ctx context.Context, input clinicapi.LoginRequest) (clinicapi.LoginResponse, error)
	ChangePassword(ctx context.Context, token string, input clinicapi.ChangePasswordRequest) error
	ListPatients(ctx context.Context, token string) ([]clinicapi.Person, error)
	CreatePatient(ctx context.Context, token string, input clinicapi.Person) (clinicapi.Person, error)
	ListUsers(ctx context.Context, token string) ([]clinicapi.Person, error)
	CreateUser(ctx context.Context, token string, input clinicapi.Person) (clinicapi.Person, error)
	GetMe(ctx context.Context, token string) (clinicapi.Person, error)
	UpdateMe(ctx context.Context, token string, input clinicapi.Person) (clinicapi.Person, error)
	ListServiceTypes(ctx context.Context, token string) ([]clinicapi.ServiceType, error)
	CreateServiceType(ctx context.Context, token string, input clinicapi.ServiceType) (clinicapi.ServiceType, error)
	ListExpenseTypes(ctx context.Context, token string) ([]clinicapi.ExpenseType, error)
	CreateExpenseType(ctx context.Context, token string, input clinicapi.ExpenseType) (clinicapi.ExpenseType, error)
	ListAppointments(ctx context.Context, token string) ([]clinicapi.Appointment, error)
	CreateAppointment(ctx context.Context, token string, input clinicapi.Appointment) (clinicapi.Appointment, error)
	UpdateAppointment(ctx context.Context, token string, id string, input clinicapi.Appointment) (clinicapi.Appointment, error)
	AppointmentsInPeriod(ctx context.Context, token string, start string, end string) ([]clinicapi.Appointment, error)
	ListExpenses(ctx context.Context, token string) ([]clinicapi.Expense, error)
	CreateExpense(ctx context.Context, token string, input clinicapi.Expense) (clinicapi.Expense, error)
	FinancialSummary(ctx context.Context, token string, start string, end string) (clinicapi.FinancialSummary, error)
}

type Service struct {
	api      ClinicAPI
	sessions session.Store
	resolver address.Lookuper
	fields   *address.Tracker
	now      func() time.Time
}

type Option func(*Service)

func New(api ClinicAPI, sessions session.Store, options ...Option) *Service {
	svc := &Service{
		api:      api,
		sessions: sessions,
		resolver: address.NewResolver(address.DefaultBaseURL),
		fields:   address.NewTracker(),
		now:      time.Now,
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

func WithAddressResolver(resolver address.Lookuper) Option {
	return func(s *Service) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// WithSessionTTL releases postal-code fields of sessions idle for longer
// than ttl, matching the session store's expiry.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.fields = address.NewTracker(address.WithIdleTTL(ttl))
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func tokenOf(sess *session.Session) (string, error) {
	if !sess.IsAuthenticated() {
		return "", unauthorizedError("session is not authenticated")
	}
	return sess.Token, nil
}

func oneOf(value string, allowed []string) bool {
	return slices.Contains(allowed, value)
}

func defaultString(value string, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

var dateTimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
}

func parseDateTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateTimeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q", raw)
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(time.DateOnly, strings.TrimSpace(raw))
}

// formInputDateTime renders t the way a datetime-local input expects it.
func formInputDateTime(t time.Time) string {
	return t.Format("2006-01-02T15:04")
}
