package service

import (
	"clinic-web/internal/address"
	"clinic-web/internal/clinicapi"
	"clinic-web/internal/session"
)

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginOutput struct {
	SessionID          string       `json:"-"`
	Email              string       `json:"email"`
	Role               session.Role `json:"role"`
	MustChangePassword bool         `json:"precisaTrocarSenha"`
	Redirect           string       `json:"redirect"`
}

type ChangePasswordInput struct {
	NewPassword  string `json:"novaSenha"`
	Confirmation string `json:"confirmacao"`
}

type ChangePasswordOutput struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

type SessionOutput struct {
	Authenticated      bool               `json:"authenticated"`
	Email              string             `json:"email,omitempty"`
	Greeting           string             `json:"greeting,omitempty"`
	Role               session.Role       `json:"role,omitempty"`
	MustChangePassword bool               `json:"precisaTrocarSenha"`
	Menu               []session.MenuItem `json:"menu"`
}

// PersonInput is the patient/user/profile form. Street, district and city
// are not accepted from the browser; they come from the postal code.
type PersonInput struct {
	Name       string `json:"nome"`
	CPF        string `json:"cpf"`
	Phone      string `json:"whatsapp"`
	Email      string `json:"email"`
	Password   string `json:"senha"`
	Number     string `json:"numero"`
	PostalCode string `json:"cep"`
	Notes      string `json:"observacoes"`
	Role       string `json:"role"`
}

type AddressOutput struct {
	address.Address
	Loading bool `json:"loading"`
}

type ServiceTypeInput struct {
	Description     string   `json:"descricao"`
	DefaultPrice    *float64 `json:"valorPadrao"`
	DefaultDuration *int     `json:"duracaoPadrao"`
}

type ExpenseTypeInput struct {
	Description string `json:"descricao"`
	Frequency   string `json:"frequencia"`
}

type AppointmentInput struct {
	PatientID     string   `json:"pacienteId"`
	ServiceTypeID string   `json:"tipoAtendimentoId"`
	DateTime      string   `json:"dataHora"`
	Duration      *int     `json:"duracao"`
	Price         *float64 `json:"valor"`
	PaymentStatus string   `json:"statusPagamento"`
	Recurring     bool     `json:"recorrente"`
	Repetitions   int      `json:"repeticoes"`
}

// AppointmentDraft is the pre-filled state of the appointment form.
type AppointmentDraft struct {
	ID            string  `json:"id,omitempty"`
	PatientID     string  `json:"pacienteId"`
	ServiceTypeID string  `json:"tipoAtendimentoId"`
	DateTime      string  `json:"dataHora"`
	Duration      int     `json:"duracao"`
	Price         float64 `json:"valor"`
	PaymentStatus string  `json:"statusPagamento"`
	Recurring     bool    `json:"recorrente"`
	Repetitions   int     `json:"repeticoes"`
	// PriceLocked is true once the service type fixes price and duration.
	PriceLocked bool `json:"valorBloqueado"`
}

type CalendarEvent struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

type CalendarOutput struct {
	Greeting string                     `json:"greeting"`
	Events   []CalendarEvent            `json:"events"`
	Days     map[string][]CalendarEvent `json:"days"`
}

type DayOutput struct {
	Date         string                  `json:"date"`
	Appointments []clinicapi.Appointment `json:"appointments"`
	NewDraft     AppointmentDraft        `json:"newDraft"`
	EditDrafts   []AppointmentDraft      `json:"editDrafts"`
}

type ExpenseInput struct {
	Description   string   `json:"descricao"`
	TypeID        string   `json:"tipoId"`
	Amount        *float64 `json:"valor"`
	Date          string   `json:"data"`
	PaymentStatus string   `json:"statusPagamento"`
}

type FinanceOutput struct {
	Start string `json:"inicio"`
	End   string `json:"fim"`
	clinicapi.FinancialSummary
}
