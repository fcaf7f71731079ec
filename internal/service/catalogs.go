package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"

	"clinic-web/internal/clinicapi"
	"clinic-web/internal/session"
	"clinic-web/internal/validation"
)

func (s *Service) ListServiceTypes(ctx context.Context, sess *session.Session) ([]clinicapi.ServiceType, error) {
	token, err := tokenOf(sess)
	if err != nil {
		return nil, err
	}
	types, err := s.api.ListServiceTypes(ctx, token)
	if err != nil {
		return nil, requestFailed("Erro ao carregar tipos de atendimento.", err)
	}
	return nonNil(types), nil
}

func (s *Service) CreateServiceType(ctx context.Context, sess *session.Session, input ServiceTypeInput) (clinicapi.ServiceType, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.CreateServiceType")
	defer span.End()

	token, err := tokenOf(sess)
	if err != nil {
		return clinicapi.ServiceType{}, err
	}

	fields := validation.FieldErrors{}
	if strings.TrimSpace(input.Description) == "" {
		fields.Add("descricao", "Descrição obrigatória")
	}
	if input.DefaultPrice == nil || *input.DefaultPrice < 0 {
		fields.Add("valorPadrao", "Valor padrão inválido")
	}
	if input.DefaultDuration == nil || *input.DefaultDuration <= 0 {
		fields.Add("duracaoPadrao", "Duração padrão inválida")
	}
	if err := fieldsError(fields); err != nil {
		return clinicapi.ServiceType{}, err
	}

	created, err := s.api.CreateServiceType(ctx, token, clinicapi.ServiceType{
		Description:     strings.TrimSpace(input.Description),
		DefaultPrice:    *input.DefaultPrice,
		DefaultDuration: *input.DefaultDuration,
	})
	if err != nil {
		return clinicapi.ServiceType{}, requestFailed("Erro ao cadastrar tipo.", err)
	}
	return created, nil
}

func (s *Service) ListExpenseTypes(ctx context.Context, sess *session.Session) ([]clinicapi.ExpenseType, error) {
	token, err := tokenOf(sess)
	if err != nil {
		return nil, err
	}
	types, err := s.api.ListExpenseTypes(ctx, token)
	if err != nil {
		return nil, requestFailed("Erro ao carregar tipos de despesa.", err)
	}
	return nonNil(types), nil
}

func (s *Service) CreateExpenseType(ctx context.Context, sess *session.Session, input ExpenseTypeInput) (clinicapi.ExpenseType, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.CreateExpenseType")
	defer span.End()

	token, err := tokenOf(sess)
	if err != nil {
		return clinicapi.ExpenseType{}, err
	}

	frequency := defaultString(input.Frequency, expenseFrequencies[0])
	fields := validation.FieldErrors{}
	if strings.TrimSpace(input.Description) == "" {
		fields.Add("descricao", "Descrição obrigatória")
	}
	if !oneOf(frequency, expenseFrequencies) {
		fields.Add("frequencia", "Frequência inválida")
	}
	if err := fieldsError(fields); err != nil {
		return clinicapi.ExpenseType{}, err
	}

	created, err := s.api.CreateExpenseType(ctx, token, clinicapi.ExpenseType{
		Description: strings.TrimSpace(input.Description),
		Frequency:   frequency,
	})
	if err != nil {
		return clinicapi.ExpenseType{}, requestFailed("Erro ao cadastrar tipo de despesa.", err)
	}
	return created, nil
}
