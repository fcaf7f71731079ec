package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"clinic-web/internal/clinicapi"
	"clinic-web/internal/session"
	"clinic-web/internal/validation"
)

func (s *Service) ListExpenses(ctx context.Context, sess *session.Session) ([]clinicapi.Expense, error) {
	token, err := tokenOf(sess)
	if err != nil {
		return nil, err
	}
	expenses, err := s.api.ListExpenses(ctx, token)
	if err != nil {
		return nil, requestFailed("Erro ao carregar despesas.", err)
	}
	return nonNil(expenses), nil
}

func (s *Service) CreateExpense(ctx context.Context, sess *session.Session, input ExpenseInput) (clinicapi.Expense, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.CreateExpense")
	defer span.End()

	token, err := tokenOf(sess)
	if err != nil {
		return clinicapi.Expense{}, err
	}

	status := defaultString(input.PaymentStatus, paymentOpen)
	fields := validation.FieldErrors{}
	if strings.TrimSpace(input.Description) == "" {
		fields.Add("descricao", "Descrição obrigatória")
	}
	if strings.TrimSpace(input.TypeID) == "" {
		fields.Add("tipoId", "Selecione o tipo de despesa")
	}
	if input.Amount == nil || *input.Amount <= 0 {
		fields.Add("valor", "Valor inválido")
	}
	if _, err := parseDate(input.Date); err != nil {
		fields.Add("data", "Data inválida")
	}
	if !oneOf(status, paymentStatuses) {
		fields.Add("statusPagamento", "Status de pagamento inválido")
	}
	if err := fieldsError(fields); err != nil {
		return clinicapi.Expense{}, err
	}

	created, err := s.api.CreateExpense(ctx, token, clinicapi.Expense{
		Description:   strings.TrimSpace(input.Description),
		Type:          &clinicapi.ExpenseTypeRef{ID: strings.TrimSpace(input.TypeID)},
		Amount:        *input.Amount,
		Date:          strings.TrimSpace(input.Date),
		PaymentStatus: status,
	})
	if err != nil {
		return clinicapi.Expense{}, requestFailed("Erro ao cadastrar despesa.", err)
	}
	return created, nil
}

// CurrentMonth returns the first and last day of now's month.
func CurrentMonth(now time.Time) (string, string) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	last := first.AddDate(0, 1, -1)
	return first.Format(time.DateOnly), last.Format(time.DateOnly)
}

// Finance loads the financial summary for [start, end]. Empty bounds fall
// back to the current month.
func (s *Service) Finance(ctx context.Context, sess *session.Session, start string, end string) (FinanceOutput, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.Finance")
	defer span.End()

	token, err := tokenOf(sess)
	if err != nil {
		return FinanceOutput{}, err
	}

	defaultStart, defaultEnd := CurrentMonth(s.now())
	start = defaultString(start, defaultStart)
	end = defaultString(end, defaultEnd)

	fields := validation.FieldErrors{}
	startDate, startErr := parseDate(start)
	if startErr != nil {
		fields.Add("inicio", "Data inicial inválida")
	}
	endDate, endErr := parseDate(end)
	if endErr != nil {
		fields.Add("fim", "Data final inválida")
	}
	if startErr == nil && endErr == nil && startDate.After(endDate) {
		fields.Add("fim", "Data final anterior à inicial")
	}
	if err := fieldsError(fields); err != nil {
		return FinanceOutput{}, err
	}

	summary, err := s.api.FinancialSummary(ctx, token, start, end)
	if err != nil {
		return FinanceOutput{}, requestFailed("Erro ao carregar finanças.", err)
	}
	summary.Income = nonNil(summary.Income)
	summary.Expenses = nonNil(summary.Expenses)

	return FinanceOutput{Start: start, End: end, FinancialSummary: summary}, nil
}
