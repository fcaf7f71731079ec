package clinicapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginPostsCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("expected no authorization header on login, got %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["email"] != "ana@clinica.com" || body["password"] != "segredo123" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = w.Write([]byte(`{"access_token":"a.b.c"}`))
	}))
	defer server.Close()

	out, err := New(server.URL).Login(context.Background(), LoginRequest{Email: "ana@clinica.com", Password: "segredo123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if out.AccessToken != "a.b.c" {
		t.Fatalf("unexpected token %q", out.AccessToken)
	}
}

func TestAuthenticatedCallsSendBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		_, _ = w.Write([]byte(`[{"id":"p1","nome":"Ana","cpf":"11144477735"}]`))
	}))
	defer server.Close()

	patients, err := New(server.URL+"/").ListPatients(context.Background(), "tok")
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if len(patients) != 1 || patients[0].Name != "Ana" {
		t.Fatalf("unexpected patients %+v", patients)
	}
}

func TestPeriodQueriesEncodeRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/appointments/agenda/periodo":
			if r.URL.Query().Get("inicio") != "2026-03-14T00:00:00" || r.URL.Query().Get("fim") != "2026-03-14T23:59:59" {
				t.Errorf("unexpected agenda query %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`[]`))
		case "/financas":
			if r.URL.Query().Get("inicio") != "2026-03-01" || r.URL.Query().Get("fim") != "2026-03-31" {
				t.Errorf("unexpected finance query %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"totalReceitas":300,"totalDespesas":100,"saldo":200,"receitas":[],"despesas":[]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := New(server.URL)
	if _, err := client.AppointmentsInPeriod(context.Background(), "tok", "2026-03-14T00:00:00", "2026-03-14T23:59:59"); err != nil {
		t.Fatalf("AppointmentsInPeriod: %v", err)
	}
	summary, err := client.FinancialSummary(context.Background(), "tok", "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("FinancialSummary: %v", err)
	}
	if summary.Balance != 200 {
		t.Fatalf("unexpected balance %v", summary.Balance)
	}
}

func TestStatusErrorsAreClassified(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusBadRequest, ErrRequest},
		{http.StatusInternalServerError, ErrRequest},
	}

	for _, tc := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		_, err := New(server.URL).CreateServiceType(context.Background(), "tok", ServiceType{Description: "Consulta"})
		server.Close()

		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != tc.status {
			t.Fatalf("status %d: expected StatusError, got %v", tc.status, err)
		}
	}
}

func TestEmptySuccessBodyIsAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/appointments/ag-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if _, err := New(server.URL).UpdateAppointment(context.Background(), "tok", "ag-1", Appointment{DateTime: "2026-03-14T08:00"}); err != nil {
		t.Fatalf("UpdateAppointment: %v", err)
	}
}

func TestTransportFailureIsRequestError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := New(url).ChangePassword(context.Background(), "", ChangePasswordRequest{Email: "a@b.com", NewPassword: "x"})
	if !errors.Is(err, ErrRequest) {
		t.Fatalf("expected ErrRequest, got %v", err)
	}
}
