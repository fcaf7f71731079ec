package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"

	"clinic-web/internal/address"
	"clinic-web/internal/clinicapi"
	"clinic-web/internal/session"
	"clinic-web/internal/validation"
)

// Postal-code fields tracked per session.
const (
	PatientPostalField = "patient.cep"
	UserPostalField    = "user.cep"
	ProfilePostalField = "profile.cep"
)

func (s *Service) ResolveAddress(ctx context.Context, sess *session.Session, field string, postalCode string) (AddressOutput, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.ResolveAddress")
	defer span.End()

	if !sess.IsAuthenticated() {
		return AddressOutput{}, unauthorizedError("session is not authenticated")
	}
	tracked := s.fields.Field(sess.ID, field)

	var resolved address.Address
	if err := tracked.Lookup(ctx, s.resolver, postalCode, func(a address.Address) { resolved = a }); err != nil {
		return AddressOutput{Loading: tracked.Loading()}, err
	}
	return AddressOutput{Address: resolved, Loading: tracked.Loading()}, nil
}

// postalAddress returns the address for the postal code in a form: the last
// one resolved for that field when it matches, otherwise a fresh lookup.
func (s *Service) postalAddress(ctx context.Context, sess *session.Session, field string, postalCode string) (address.Address, error) {
	tracked := s.fields.Field(sess.ID, field)
	if last, ok := tracked.Last(); ok && validation.Digits(last.PostalCode) == validation.Digits(postalCode) {
		return last, nil
	}

	var resolved address.Address
	err := tracked.Lookup(ctx, s.resolver, postalCode, func(a address.Address) { resolved = a })
	return resolved, err
}

func addressFieldError(err error) string {
	switch {
	case errors.Is(err, address.ErrInvalidFormat):
		return "CEP inválido"
	case errors.Is(err, address.ErrNotFound):
		return "CEP não encontrado"
	default:
		return "Erro ao buscar endereço"
	}
}

type personRules struct {
	requireCPF  bool
	requireRole bool
}

func validatePerson(input PersonInput, rules personRules) validation.FieldErrors {
	fields := validation.FieldErrors{}
	if strings.TrimSpace(input.Name) == "" {
		fields.Add("nome", "Nome obrigatório")
	}
	if rules.requireCPF || strings.TrimSpace(input.CPF) != "" {
		if !validation.ValidateTaxID(input.CPF) {
			fields.Add("cpf", "CPF inválido")
		}
	}
	if !validation.ValidateEmail(strings.TrimSpace(input.Email)) {
		fields.Add("email", "E-mail inválido")
	}
	if !validation.ValidateMobilePhone(input.Phone) {
		fields.Add("whatsapp", "WhatsApp inválido")
	}
	if !validation.ValidatePostalCode(strings.TrimSpace(input.PostalCode)) {
		fields.Add("cep", "CEP inválido")
	}
	if rules.requireRole && !session.Role(defaultString(input.Role, string(session.RoleUser))).Valid() {
		fields.Add("role", "Perfil inválido")
	}
	return fields
}

// personRecord validates input and merges the resolved address into the
// record sent to the clinic API.
func (s *Service) personRecord(ctx context.Context, sess *session.Session, field string, input PersonInput, rules personRules) (clinicapi.Person, error) {
	fields := validatePerson(input, rules)
	if err := fieldsError(fields); err != nil {
		return clinicapi.Person{}, err
	}

	resolved, err := s.postalAddress(ctx, sess, field, input.PostalCode)
	if err != nil {
		fields.Add("cep", addressFieldError(err))
		return clinicapi.Person{}, fieldsError(fields)
	}

	person := clinicapi.Person{
		Name:       strings.TrimSpace(input.Name),
		CPF:        validation.FormatCPF(strings.TrimSpace(input.CPF)),
		Phone:      validation.FormatMobilePhone(input.Phone),
		Email:      strings.TrimSpace(input.Email),
		Password:   input.Password,
		Street:     resolved.Street,
		Number:     strings.TrimSpace(input.Number),
		District:   resolved.District,
		City:       resolved.City,
		PostalCode: validation.FormatPostalCode(input.PostalCode),
		Notes:      strings.TrimSpace(input.Notes),
	}
	if rules.requireRole {
		person.Role = defaultString(input.Role, string(session.RoleUser))
	}
	return person, nil
}

func (s *Service) ListPatients(ctx context.Context, sess *session.Session) ([]clinicapi.Person, error) {
	token, err := tokenOf(sess)
	if err != nil {
		return nil, err
	}
	patients, err := s.api.ListPatients(ctx, token)
	if err != nil {
		return nil, requestFailed("Erro ao carregar pacientes.", err)
	}
	return nonNil(patients), nil
}

func (s *Service) CreatePatient(ctx context.Context, sess *session.Session, input PersonInput) (clinicapi.Person, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.CreatePatient")
	defer span.End()

	token, err := tokenOf(sess)
	if err != nil {
		return clinicapi.Person{}, err
	}
	record, err := s.personRecord(ctx, sess, PatientPostalField, input, personRules{requireCPF: true})
	if err != nil {
		return clinicapi.Person{}, err
	}

	created, err := s.api.CreatePatient(ctx, token, record)
	if err != nil {
		return clinicapi.Person{}, requestFailed("Erro ao cadastrar paciente.", err)
	}
	return created, nil
}

func (s *Service) ListUsers(ctx context.Context, sess *session.Session) ([]clinicapi.Person, error) {
	token, err := tokenOf(sess)
	if err != nil {
		return nil, err
	}
	users, err := s.api.ListUsers(ctx, token)
	if err != nil {
		return nil, requestFailed("Erro ao carregar usuários.", err)
	}
	return nonNil(users), nil
}

func (s *Service) CreateUser(ctx context.Context, sess *session.Session, input PersonInput) (clinicapi.Person, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.CreateUser")
	defer span.End()

	token, err := tokenOf(sess)
	if err != nil {
		return clinicapi.Person{}, err
	}
	record, err := s.personRecord(ctx, sess, UserPostalField, input, personRules{requireCPF: true, requireRole: true})
	if err != nil {
		return clinicapi.Person{}, err
	}
	record.Notes = ""

	created, err := s.api.CreateUser(ctx, token, record)
	if err != nil {
		return clinicapi.Person{}, requestFailed("Erro ao cadastrar usuário.", err)
	}
	return created, nil
}

func (s *Service) GetProfile(ctx context.Context, sess *session.Session) (clinicapi.Person, error) {
	token, err := tokenOf(sess)
	if err != nil {
		return clinicapi.Person{}, err
	}
	profile, err := s.api.GetMe(ctx, token)
	if err != nil {
		return clinicapi.Person{}, requestFailed("Erro ao carregar dados do perfil.", err)
	}
	return profile, nil
}

func (s *Service) UpdateProfile(ctx context.Context, sess *session.Session, input PersonInput) (clinicapi.Person, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.UpdateProfile")
	defer span.End()

	token, err := tokenOf(sess)
	if err != nil {
		return clinicapi.Person{}, err
	}
	record, err := s.personRecord(ctx, sess, ProfilePostalField, input, personRules{})
	if err != nil {
		return clinicapi.Person{}, err
	}
	record.Password = ""
	record.Notes = ""

	updated, err := s.api.UpdateMe(ctx, token, record)
	if err != nil {
		return clinicapi.Person{}, requestFailed("Erro ao atualizar perfil.", err)
	}
	return updated, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
