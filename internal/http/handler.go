package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"clinic-web/internal/address"
	"clinic-web/internal/service"
	"clinic-web/internal/session"
)

type Handler struct {
	service *service.Service
	cookie  CookieConfig
}

// CookieConfig describes the browser cookie that carries the session id.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

type ProblemDetails struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Status    int               `json:"status"`
	Detail    string            `json:"detail,omitempty"`
	Instance  string            `json:"instance,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Redirect  string            `json:"redirect,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

const (
	problemContentType      = "application/problem+json"
	problemTypeValidation   = "https://clinic.test/problems/validation-error"
	problemTypeNotFound     = "https://clinic.test/problems/not-found"
	problemTypeSuperseded   = "https://clinic.test/problems/superseded"
	problemTypeUnauthorized = "https://clinic.test/problems/unauthorized"
	problemTypeForbidden    = "https://clinic.test/problems/forbidden"
	problemTypeUpstream     = "https://clinic.test/problems/upstream-error"
	problemTypeInternal     = "https://clinic.test/problems/internal-error"
	problemTypeInvalidParam = "https://clinic.test/problems/invalid-parameter"
)

const (
	headerRequestID   = "X-Request-ID"
	sessionContextKey = "clinic.session"
	defaultCookieName = "clinic_session"
)

var postalFields = map[string]bool{
	service.PatientPostalField: true,
	service.UserPostalField:    true,
	service.ProfilePostalField: true,
}

func NewRouter(service *service.Service, serviceName string, cookie CookieConfig) *gin.Engine {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "clinic-web"
	}
	if strings.TrimSpace(cookie.Name) == "" {
		cookie.Name = defaultCookieName
	}

	router := gin.New()
	h := &Handler{service: service, cookie: cookie}
	requestObsMiddleware := requestObservabilityMiddleware(slog.Default())
	router.Use(
		requestid.New(),
		panicRecoveryMiddleware(slog.Default()),
		otelgin.Middleware(serviceName),
		requestObsMiddleware,
	)

	api := router.Group("/api")
	v1 := api.Group("/v1")
	v1.Use(h.loadSession())

	v1.GET("/health", h.health)
	v1.POST("/session/login", h.login)
	v1.POST("/session/logout", h.logout)
	v1.GET("/session", h.describeSession)

	authenticated := v1.Group("")
	authenticated.Use(h.requireSession())
	authenticated.POST("/session/password", h.changePassword)
	authenticated.GET("/session/menu", h.menu)
	authenticated.GET("/address/:cep", h.resolveAddress)

	admin := v1.Group("")
	admin.Use(h.requireSession(session.RoleAdmin))
	admin.GET("/users", h.listUsers)
	admin.POST("/users", h.createUser)

	clinic := v1.Group("")
	clinic.Use(h.requireSession(session.RoleUser))
	clinic.GET("/profile", h.getProfile)
	clinic.PATCH("/profile", h.updateProfile)
	clinic.GET("/patients", h.listPatients)
	clinic.POST("/patients", h.createPatient)
	clinic.GET("/service-types", h.listServiceTypes)
	clinic.POST("/service-types", h.createServiceType)
	clinic.GET("/expense-types", h.listExpenseTypes)
	clinic.POST("/expense-types", h.createExpenseType)
	clinic.GET("/appointments", h.listAppointments)
	clinic.POST("/appointments", h.createAppointment)
	clinic.GET("/appointments/calendar", h.calendar)
	clinic.GET("/appointments/day/:date", h.day)
	clinic.PATCH("/appointments/:id", h.updateAppointment)
	clinic.GET("/expenses", h.listExpenses)
	clinic.POST("/expenses", h.createExpense)
	clinic.GET("/finance", h.finance)

	return router
}

func requestObservabilityMiddleware(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	meter := otel.Meter("clinic-web/http")
	requestCounter, requestCounterErr := meter.Int64Counter(
		"clinic.http.server.request.count",
		metric.WithDescription("Total de requests HTTP processadas"),
	)
	if requestCounterErr != nil {
		logger.Error("create request counter", "error", requestCounterErr)
	}

	requestDuration, requestDurationErr := meter.Float64Histogram(
		"clinic.http.server.request.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duracao de requests HTTP em milissegundos"),
	)
	if requestDurationErr != nil {
		logger.Error("create request duration histogram", "error", requestDurationErr)
	}
	internalErrorCounter, internalErrorCounterErr := meter.Int64Counter(
		"clinic.http.server.internal_error.count",
		metric.WithDescription("Total de erros HTTP 5xx"),
	)
	if internalErrorCounterErr != nil {
		logger.Error("create internal error counter", "error", internalErrorCounterErr)
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		durationMs := float64(time.Since(start)) / float64(time.Millisecond)
		requestID := c.Writer.Header().Get(headerRequestID)

		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		}
		if requestCounter != nil {
			requestCounter.Add(c.Request.Context(), 1, metric.WithAttributes(attrs...))
		}
		if requestDuration != nil {
			requestDuration.Record(c.Request.Context(), durationMs, metric.WithAttributes(attrs...))
		}

		logAttrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", route,
			"status", status,
			"duration_ms", durationMs,
			"request_id", requestID,
			"client_ip", c.ClientIP(),
		}
		if sess := currentSession(c); sess.IsAuthenticated() {
			logAttrs = append(logAttrs, "role", string(sess.Role))
		}
		spanContext := trace.SpanFromContext(c.Request.Context()).SpanContext()
		if spanContext.IsValid() {
			logAttrs = append(
				logAttrs,
				"trace_id", spanContext.TraceID().String(),
				"span_id", spanContext.SpanID().String(),
			)
		}
		if len(c.Errors) > 0 {
			lastErr := c.Errors.Last().Err
			logAttrs = append(
				logAttrs,
				"error", lastErr.Error(),
				"error_type", classifyErrorType(lastErr),
			)
		}
		if status >= http.StatusInternalServerError && internalErrorCounter != nil {
			internalAttrs := append([]attribute.KeyValue{}, attrs...)
			if len(c.Errors) > 0 {
				internalAttrs = append(internalAttrs, attribute.String("error.type", classifyErrorType(c.Errors.Last().Err)))
			} else {
				internalAttrs = append(internalAttrs, attribute.String("error.type", "unknown"))
			}
			internalErrorCounter.Add(c.Request.Context(), 1, metric.WithAttributes(internalAttrs...))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.ErrorContext(c.Request.Context(), "http request", logAttrs...)
		case status >= http.StatusBadRequest:
			logger.WarnContext(c.Request.Context(), "http request", logAttrs...)
		default:
			logger.InfoContext(c.Request.Context(), "http request", logAttrs...)
		}
	}
}

func panicRecoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			err := fmt.Errorf("panic recovered: %v", recovered)
			_ = c.Error(err)

			span := trace.SpanFromContext(c.Request.Context())
			if span.SpanContext().IsValid() {
				span.RecordError(err)
				span.SetStatus(codes.Error, "panic recovered")
				span.SetAttributes(
					attribute.Bool("error", true),
					attribute.String("error.type", "panic"),
				)
			}

			logAttrs := []any{
				"panic", recovered,
				"stack_trace", string(debug.Stack()),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"request_id", requestid.Get(c),
				"client_ip", c.ClientIP(),
			}
			spanContext := span.SpanContext()
			if spanContext.IsValid() {
				logAttrs = append(
					logAttrs,
					"trace_id", spanContext.TraceID().String(),
					"span_id", spanContext.SpanID().String(),
				)
			}
			logger.ErrorContext(c.Request.Context(), "panic recovered", logAttrs...)

			writeProblemResponse(c, http.StatusInternalServerError, problemTypeInternal, "Internal Server Error", "internal server error")
		}()

		c.Next()
	}
}

// loadSession attaches the session named by the cookie, or an anonymous one,
// to every request.
func (h *Handler) loadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(h.cookie.Name)
		sess, err := h.service.Current(c.Request.Context(), id)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// requireSession lets through authenticated sessions whose role is in
// roles (any role when empty). Everyone else gets the path to go to.
func (h *Handler) requireSession(roles ...session.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := currentSession(c)
		decision := session.Authorize(sess, roles...)
		if decision.Allowed {
			c.Next()
			return
		}

		if !sess.IsAuthenticated() {
			writeProblemDetails(c, ProblemDetails{
				Type:     problemTypeUnauthorized,
				Title:    "Unauthorized",
				Status:   http.StatusUnauthorized,
				Detail:   "login required",
				Redirect: decision.RedirectTo,
			})
			return
		}
		writeProblemDetails(c, ProblemDetails{
			Type:     problemTypeForbidden,
			Title:    "Forbidden",
			Status:   http.StatusForbidden,
			Detail:   fmt.Sprintf("role %q cannot access this view", sess.Role),
			Redirect: decision.RedirectTo,
		})
	}
}

func currentSession(c *gin.Context) *session.Session {
	if value, ok := c.Get(sessionContextKey); ok {
		if sess, ok := value.(*session.Session); ok && sess != nil {
			return sess
		}
	}
	return &session.Session{}
}

func (h *Handler) setSessionCookie(c *gin.Context, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, id, int(h.cookie.MaxAge/time.Second), "/", "", h.cookie.Secure, true)
}

func (h *Handler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) login(c *gin.Context) {
	var input service.LoginInput
	if !h.bindJSON(c, &input) {
		return
	}

	output, err := h.service.Login(c.Request.Context(), input)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.setSessionCookie(c, output.SessionID)
	c.JSON(http.StatusOK, output)
}

// logout always ends the browser session, even when the store could not
// forget it.
func (h *Handler) logout(c *gin.Context) {
	h.clearSessionCookie(c)
	if err := h.service.Logout(c.Request.Context(), currentSession(c).ID); err != nil {
		slog.ErrorContext(c.Request.Context(), "logout", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"redirect": session.LoginPath})
}

func (h *Handler) describeSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Describe(currentSession(c)))
}

func (h *Handler) menu(c *gin.Context) {
	c.JSON(http.StatusOK, session.Menu(currentSession(c).Role))
}

func (h *Handler) changePassword(c *gin.Context) {
	var input service.ChangePasswordInput
	if !h.bindJSON(c, &input) {
		return
	}

	output, err := h.service.ChangePassword(c.Request.Context(), currentSession(c), input)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, output)
}

func (h *Handler) resolveAddress(c *gin.Context) {
	field := strings.TrimSpace(c.Query("field"))
	if !postalFields[field] {
		h.writeProblem(c, http.StatusBadRequest, problemTypeInvalidParam, "Invalid Parameter", fmt.Sprintf("invalid parameter %q", "field"))
		return
	}

	output, err := h.service.ResolveAddress(c.Request.Context(), currentSession(c), field, c.Param("cep"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, output)
}

func (h *Handler) listPatients(c *gin.Context) {
	patients, err := h.service.ListPatients(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, patients)
}

func (h *Handler) createPatient(c *gin.Context) {
	var input service.PersonInput
	if !h.bindJSON(c, &input) {
		return
	}

	patient, err := h.service.CreatePatient(c.Request.Context(), currentSession(c), input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, patient)
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) createUser(c *gin.Context) {
	var input service.PersonInput
	if !h.bindJSON(c, &input) {
		return
	}

	user, err := h.service.CreateUser(c.Request.Context(), currentSession(c), input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) getProfile(c *gin.Context) {
	profile, err := h.service.GetProfile(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var input service.PersonInput
	if !h.bindJSON(c, &input) {
		return
	}

	profile, err := h.service.UpdateProfile(c.Request.Context(), currentSession(c), input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) listServiceTypes(c *gin.Context) {
	types, err := h.service.ListServiceTypes(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

func (h *Handler) createServiceType(c *gin.Context) {
	var input service.ServiceTypeInput
	if !h.bindJSON(c, &input) {
		return
	}

	created, err := h.service.CreateServiceType(c.Request.Context(), currentSession(c), input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) listExpenseTypes(c *gin.Context) {
	types, err := h.service.ListExpenseTypes(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

func (h *Handler) createExpenseType(c *gin.Context) {
	var input service.ExpenseTypeInput
	if !h.bindJSON(c, &input) {
		return
	}

	created, err := h.service.CreateExpenseType(c.Request.Context(), currentSession(c), input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) listAppointments(c *gin.Context) {
	appointments, err := h.service.ListAppointments(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appointments)
}

func (h *Handler) createAppointment(c *gin.Context) {
	var input service.AppointmentInput
	if !h.bindJSON(c, &input) {
		return
	}

	created, err := h.service.CreateAppointment(c.Request.Context(), currentSession(c), input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateAppointment(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		h.writeProblem(c, http.StatusBadRequest, problemTypeInvalidParam, "Invalid Parameter", fmt.Sprintf("invalid parameter %q", "id"))
		return
	}

	var input service.AppointmentInput
	if !h.bindJSON(c, &input) {
		return
	}

	updated, err := h.service.UpdateAppointment(c.Request.Context(), currentSession(c), id, input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) calendar(c *gin.Context) {
	output, err := h.service.Calendar(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, output)
}

func (h *Handler) day(c *gin.Context) {
	output, err := h.service.Day(c.Request.Context(), currentSession(c), c.Param("date"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, output)
}

func (h *Handler) listExpenses(c *gin.Context) {
	expenses, err := h.service.ListExpenses(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, expenses)
}

func (h *Handler) createExpense(c *gin.Context) {
	var input service.ExpenseInput
	if !h.bindJSON(c, &input) {
		return
	}

	created, err := h.service.CreateExpense(c.Request.Context(), currentSession(c), input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) finance(c *gin.Context) {
	output, err := h.service.Finance(c.Request.Context(), currentSession(c), c.Query("inicio"), c.Query("fim"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, output)
}

func (h *Handler) bindJSON(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		h.writeProblem(c, http.StatusBadRequest, problemTypeValidation, "Validation Error", fmt.Sprintf("invalid request body: %s", err.Error()))
		return false
	}
	return true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var fieldErr *service.FieldError
	var requestErr *service.RequestError

	switch {
	case errors.As(err, &fieldErr):
		writeProblemDetails(c, ProblemDetails{
			Type:   problemTypeValidation,
			Title:  "Validation Error",
			Status: http.StatusBadRequest,
			Detail: "invalid form fields",
			Fields: fieldErr.Fields,
		})
	case errors.Is(err, service.ErrValidation), errors.Is(err, address.ErrInvalidFormat):
		h.writeProblem(c, http.StatusBadRequest, problemTypeValidation, "Validation Error", err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		h.writeProblem(c, http.StatusUnauthorized, problemTypeUnauthorized, "Unauthorized", strings.TrimPrefix(err.Error(), service.ErrUnauthorized.Error()+": "))
	case errors.Is(err, address.ErrNotFound):
		h.writeProblem(c, http.StatusNotFound, problemTypeNotFound, "Not Found", err.Error())
	case errors.Is(err, address.ErrSuperseded):
		h.writeProblem(c, http.StatusConflict, problemTypeSuperseded, "Superseded", err.Error())
	case errors.As(err, &requestErr):
		h.logUpstreamError(c, requestErr.Cause)
		h.writeProblem(c, http.StatusBadGateway, problemTypeUpstream, "Bad Gateway", requestErr.Message)
	case errors.Is(err, address.ErrLookup):
		h.logUpstreamError(c, err)
		h.writeProblem(c, http.StatusBadGateway, problemTypeUpstream, "Bad Gateway", "Erro ao buscar endereço")
	default:
		_ = c.Error(err)
		span := trace.SpanFromContext(c.Request.Context())
		spanContext := span.SpanContext()
		if spanContext.IsValid() {
			span.RecordError(err)
			span.SetStatus(codes.Error, "internal server error")
			span.SetAttributes(
				attribute.Bool("error", true),
				attribute.String("error.type", classifyErrorType(err)),
			)
		}
		logAttrs := []any{
			"error", err.Error(),
			"error_type", classifyErrorType(err),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", requestid.Get(c),
		}
		if spanContext.IsValid() {
			logAttrs = append(
				logAttrs,
				"trace_id", spanContext.TraceID().String(),
				"span_id", spanContext.SpanID().String(),
			)
		}
		slog.ErrorContext(c.Request.Context(), "internal server error", logAttrs...)
		h.writeProblem(c, http.StatusInternalServerError, problemTypeInternal, "Internal Server Error", "internal server error")
	}
}

func (h *Handler) logUpstreamError(c *gin.Context, cause error) {
	if cause == nil {
		return
	}
	_ = c.Error(cause)
	slog.WarnContext(c.Request.Context(), "upstream request failed",
		"error", cause.Error(),
		"error_type", classifyErrorType(cause),
		"path", c.Request.URL.Path,
		"request_id", requestid.Get(c),
	)
}

func (h *Handler) writeProblem(c *gin.Context, status int, problemType string, title string, detail string) {
	writeProblemResponse(c, status, problemType, title, detail)
}

func writeProblemResponse(c *gin.Context, status int, problemType string, title string, detail string) {
	writeProblemDetails(c, ProblemDetails{Type: problemType, Title: title, Status: status, Detail: detail})
}

func writeProblemDetails(c *gin.Context, problem ProblemDetails) {
	if problem.Type == "" {
		problem.Type = "about:blank"
	}
	if problem.Title == "" {
		problem.Title = http.StatusText(problem.Status)
	}

	requestID := requestid.Get(c)
	if requestID != "" {
		c.Header(headerRequestID, requestID)
	}
	problem.Instance = c.Request.URL.Path
	problem.RequestID = requestID

	c.Header("Content-Type", problemContentType)
	c.AbortWithStatusJSON(problem.Status, problem)
}

func classifyErrorType(err error) string {
	if err == nil {
		return "unknown"
	}
	root := err
	for {
		unwrapped := errors.Unwrap(root)
		if unwrapped == nil {
			break
		}
		root = unwrapped
	}
	return fmt.Sprintf("%T", root)
}
