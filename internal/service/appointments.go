package service

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"

	"clinic-web/internal/clinicapi"
	"clinic-web/internal/session"
	"clinic-web/internal/validation"
)

const defaultEventTitle = "Atendimento"

func (s *Service) ListAppointments(ctx context.Context, sess *session.Session) ([]clinicapi.Appointment, error) {
	token, err := tokenOf(sess)
	if err != nil {
		return nil, err
	}
	appointments, err := s.api.ListAppointments(ctx, token)
	if err != nil {
		return nil, requestFailed("Erro ao carregar atendimentos.", err)
	}
	return nonNil(appointments), nil
}

// NewAppointmentDraft pre-fills the form for scheduling on day
// ("YYYY-MM-DD"); an empty day leaves the date blank.
func NewAppointmentDraft(day string) (AppointmentDraft, error) {
	draft := AppointmentDraft{
		Duration:      defaultAppointmentDuration,
		PaymentStatus: paymentOpen,
		Repetitions:   1,
	}
	if strings.TrimSpace(day) == "" {
		return draft, nil
	}
	if _, err := parseDate(day); err != nil {
		return AppointmentDraft{}, validationError("data inválida")
	}
	draft.DateTime = strings.TrimSpace(day) + "T" + defaultScheduleTime
	return draft, nil
}

// EditDraft loads an existing appointment into the form. Price and duration
// stay as recorded; the service type does not overwrite them.
func EditDraft(appointment clinicapi.Appointment) AppointmentDraft {
	draft := AppointmentDraft{
		ID:            appointment.ID,
		DateTime:      appointment.DateTime,
		Duration:      appointment.Duration,
		Price:         appointment.Price,
		PaymentStatus: defaultString(appointment.PaymentStatus, paymentOpen),
		Recurring:     appointment.Recurring,
		Repetitions:   appointment.Repetitions,
		PriceLocked:   true,
	}
	if appointment.Patient != nil {
		draft.PatientID = appointment.Patient.ID
	}
	if appointment.ServiceType != nil {
		draft.ServiceTypeID = appointment.ServiceType.ID
	}
	if parsed, err := parseDateTime(appointment.DateTime); err == nil {
		draft.DateTime = formInputDateTime(parsed)
	}
	if draft.Repetitions < 1 {
		draft.Repetitions = 1
	}
	return draft
}

// ApplyServiceType selects a service type on the draft. New drafts take the
// type's price and duration; existing ones keep theirs.
func ApplyServiceType(draft AppointmentDraft, serviceType clinicapi.ServiceType) AppointmentDraft {
	draft.ServiceTypeID = serviceType.ID
	if draft.ID != "" {
		return draft
	}
	draft.Price = serviceType.DefaultPrice
	draft.Duration = serviceType.DefaultDuration
	if draft.Duration <= 0 {
		draft.Duration = defaultAppointmentDuration
	}
	draft.PriceLocked = true
	return draft
}

func validateAppointment(input AppointmentInput) validation.FieldErrors {
	fields := validation.FieldErrors{}
	if strings.TrimSpace(input.PatientID) == "" {
		fields.Add("pacienteId", "Selecione o paciente")
	}
	if strings.TrimSpace(input.ServiceTypeID) == "" {
		fields.Add("tipoAtendimentoId", "Selecione o tipo de atendimento")
	}
	if _, err := parseDateTime(input.DateTime); err != nil {
		fields.Add("dataHora", "Data e hora inválidas")
	}
	if !oneOf(defaultString(input.PaymentStatus, paymentOpen), paymentStatuses) {
		fields.Add("statusPagamento", "Status de pagamento inválido")
	}
	if input.Recurring && input.Repetitions < 1 {
		fields.Add("repeticoes", "Informe o número de repetições")
	}
	return fields
}

func appointmentPayload(input AppointmentInput, dateTime string, duration int, price float64) clinicapi.Appointment {
	repetitions := 0
	if input.Recurring {
		repetitions = input.Repetitions
	}
	return clinicapi.Appointment{
		Patient:       &clinicapi.PatientRef{ID: strings.TrimSpace(input.PatientID)},
		ServiceType:   &clinicapi.ServiceTypeRef{ID: strings.TrimSpace(input.ServiceTypeID)},
		DateTime:      dateTime,
		Duration:      duration,
		Price:         price,
		PaymentStatus: defaultString(input.PaymentStatus, paymentOpen),
		Recurring:     input.Recurring,
		Repetitions:   repetitions,
	}
}

// CreateAppointment schedules a new appointment. Price and duration always
// come from the selected service type.
func (s *Service) CreateAppointment(ctx context.Context, sess *session.Session, input AppointmentInput) (clinicapi.Appointment, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.CreateAppointment")
	defer span.End()

	token, err := tokenOf(sess)
	if err != nil {
		return clinicapi.Appointment{}, err
	}
	fields := validateAppointment(input)
	if err := fieldsError(fields); err != nil {
		return clinicapi.Appointment{}, err
	}

	types, err := s.api.ListServiceTypes(ctx, token)
	if err != nil {
		return clinicapi.Appointment{}, requestFailed("Erro ao salvar atendimento.", err)
	}
	var selected *clinicapi.ServiceType
	for i := range types {
		if types[i].ID == strings.TrimSpace(input.ServiceTypeID) {
			selected = &types[i]
			break
		}
	}
	if selected == nil {
		fields.Add("tipoAtendimentoId", "Tipo de atendimento não encontrado")
		return clinicapi.Appointment{}, fieldsError(fields)
	}

	draft := ApplyServiceType(AppointmentDraft{}, *selected)
	dateTime, _ := parseDateTime(input.DateTime)
	payload := appointmentPayload(input, formInputDateTime(dateTime), draft.Duration, draft.Price)

	created, err := s.api.CreateAppointment(ctx, token, payload)
	if err != nil {
		return clinicapi.Appointment{}, requestFailed("Erro ao salvar atendimento.", err)
	}
	return created, nil
}

// UpdateAppointment saves an edited appointment with the price and duration
// it was loaded with.
func (s *Service) UpdateAppointment(ctx context.Context, sess *session.Session, id string, input AppointmentInput) (clinicapi.Appointment, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.UpdateAppointment")
	defer span.End()

	token, err := tokenOf(sess)
	if err != nil {
		return clinicapi.Appointment{}, err
	}
	if strings.TrimSpace(id) == "" {
		return clinicapi.Appointment{}, validationError("appointment id is required")
	}

	fields := validateAppointment(input)
	if input.Duration == nil || *input.Duration <= 0 {
		fields.Add("duracao", "Duração inválida")
	}
	if input.Price == nil || *input.Price < 0 {
		fields.Add("valor", "Valor inválido")
	}
	if err := fieldsError(fields); err != nil {
		return clinicapi.Appointment{}, err
	}

	dateTime, _ := parseDateTime(input.DateTime)
	payload := appointmentPayload(input, formInputDateTime(dateTime), *input.Duration, *input.Price)

	updated, err := s.api.UpdateAppointment(ctx, token, strings.TrimSpace(id), payload)
	if err != nil {
		return clinicapi.Appointment{}, requestFailed("Erro ao salvar atendimento.", err)
	}
	return updated, nil
}

func (s *Service) Calendar(ctx context.Context, sess *session.Session) (CalendarOutput, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.Calendar")
	defer span.End()

	appointments, err := s.ListAppointments(ctx, sess)
	if err != nil {
		return CalendarOutput{}, err
	}

	events := make([]CalendarEvent, 0, len(appointments))
	for _, appointment := range appointments {
		title := defaultEventTitle
		if appointment.ServiceType != nil && strings.TrimSpace(appointment.ServiceType.Description) != "" {
			title = appointment.ServiceType.Description
		}
		events = append(events, CalendarEvent{ID: appointment.ID, Title: title, Date: appointment.DateTime})
	}

	return CalendarOutput{
		Greeting: greeting(sess.Email),
		Events:   events,
		Days:     BucketByDay(events),
	}, nil
}

// BucketByDay groups events by calendar day ("YYYY-MM-DD"), each day sorted
// by time. Events with unreadable dates are left out.
func BucketByDay(events []CalendarEvent) map[string][]CalendarEvent {
	days := make(map[string][]CalendarEvent)
	for _, event := range events {
		parsed, err := parseDateTime(event.Date)
		if err != nil {
			continue
		}
		key := parsed.Format("2006-01-02")
		days[key] = append(days[key], event)
	}
	for _, bucket := range days {
		sort.SliceStable(bucket, func(i, j int) bool {
			a, _ := parseDateTime(bucket[i].Date)
			b, _ := parseDateTime(bucket[j].Date)
			return a.Before(b)
		})
	}
	return days
}

// Day drills into one calendar day.
func (s *Service) Day(ctx context.Context, sess *session.Session, day string) (DayOutput, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.Day")
	defer span.End()

	token, err := tokenOf(sess)
	if err != nil {
		return DayOutput{}, err
	}
	day = strings.TrimSpace(day)
	draft, err := NewAppointmentDraft(day)
	if err != nil || day == "" {
		return DayOutput{}, validationError("data inválida")
	}

	appointments, err := s.api.AppointmentsInPeriod(ctx, token, day+"T00:00:00", day+"T23:59:59")
	if err != nil {
		return DayOutput{}, requestFailed("Erro ao carregar atendimentos.", err)
	}
	appointments = nonNil(appointments)

	edits := make([]AppointmentDraft, 0, len(appointments))
	for _, appointment := range appointments {
		edits = append(edits, EditDraft(appointment))
	}

	return DayOutput{
		Date:         day,
		Appointments: appointments,
		NewDraft:     draft,
		EditDrafts:   edits,
	}, nil
}
