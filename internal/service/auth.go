package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"

	"clinic-web/internal/clinicapi"
	"clinic-web/internal/session"
	"clinic-web/internal/validation"
)

// Current loads the session behind id. A missing or expired session is
// returned as an anonymous one rather than an error.
func (s *Service) Current(ctx context.Context, id string) (*session.Session, error) {
	if strings.TrimSpace(id) == "" {
		return &session.Session{}, nil
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.fields.Drop(id)
			return &session.Session{}, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &sess, nil
}

func (s *Service) Login(ctx context.Context, input LoginInput) (LoginOutput, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.Login")
	defer span.End()

	email := strings.TrimSpace(input.Email)
	fields := validation.FieldErrors{}
	if !validation.ValidateEmail(email) {
		fields.Add("email", "E-mail inválido")
	}
	if input.Password == "" {
		fields.Add("password", "Senha obrigatória")
	}
	if err := fieldsError(fields); err != nil {
		return LoginOutput{}, err
	}

	resp, err := s.api.Login(ctx, clinicapi.LoginRequest{Email: email, Password: input.Password})
	if err != nil {
		var statusErr *clinicapi.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
			return LoginOutput{}, unauthorizedError("Email ou senha inválidos.")
		}
		return LoginOutput{}, requestFailed("Erro ao entrar. Tente novamente.", err)
	}

	claims, err := session.Decode(resp.AccessToken)
	if err != nil {
		return LoginOutput{}, requestFailed("Erro ao entrar. Tente novamente.", err)
	}

	id, err := session.NewID()
	if err != nil {
		return LoginOutput{}, err
	}
	sess := session.Session{
		ID:        id,
		Token:     resp.AccessToken,
		Role:      claims.Role,
		Email:     claims.Email,
		CreatedAt: s.now().UTC(),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return LoginOutput{}, fmt.Errorf("save session: %w", err)
	}

	return LoginOutput{
		SessionID:          id,
		Email:              claims.Email,
		Role:               claims.Role,
		MustChangePassword: claims.MustChangePassword,
		Redirect:           session.LandingPath(claims),
	}, nil
}

// Logout clears every piece of session state, whether or not it exists. A
// store that fails to delete is logged; the session still ends.
func (s *Service) Logout(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	s.fields.Drop(id)
	if err := s.sessions.Delete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "delete session", "error", err)
	}
	return nil
}

func (s *Service) Describe(sess *session.Session) SessionOutput {
	if !sess.IsAuthenticated() {
		return SessionOutput{Menu: []session.MenuItem{}}
	}

	out := SessionOutput{
		Authenticated: true,
		Email:         sess.Email,
		Greeting:      greeting(sess.Email),
		Role:          sess.Role,
		Menu:          session.Menu(sess.Role),
	}
	if claims, err := session.Decode(sess.Token); err == nil {
		out.MustChangePassword = claims.MustChangePassword
	}
	return out
}

// ChangePassword always ends the session: the credential is cleared and the
// user must log in again with the new password.
func (s *Service) ChangePassword(ctx context.Context, sess *session.Session, input ChangePasswordInput) (ChangePasswordOutput, error) {
	ctx, span := otel.Tracer(serviceTracerName).Start(ctx, "Service.ChangePassword")
	defer span.End()

	token, err := tokenOf(sess)
	if err != nil {
		return ChangePasswordOutput{}, err
	}

	fields := validation.FieldErrors{}
	if strings.TrimSpace(input.NewPassword) == "" {
		fields.Add("novaSenha", "Senha obrigatória")
	}
	if input.Confirmation != "" && input.Confirmation != input.NewPassword {
		fields.Add("confirmacao", "As senhas não coincidem.")
	}
	if err := fieldsError(fields); err != nil {
		return ChangePasswordOutput{}, err
	}

	err = s.api.ChangePassword(ctx, token, clinicapi.ChangePasswordRequest{
		Email:       sess.Email,
		NewPassword: input.NewPassword,
	})
	if err != nil {
		return ChangePasswordOutput{}, requestFailed("Erro ao trocar a senha.", err)
	}

	_ = s.Logout(ctx, sess.ID)

	return ChangePasswordOutput{
		Message:  "Senha alterada com sucesso!",
		Redirect: session.LoginPath,
	}, nil
}

func greeting(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
