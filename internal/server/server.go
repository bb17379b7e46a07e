package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/engine/guard"
	"trackline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine         engine.Engine
	BasePath       string
	Auth           AuthConfig
	SweepSecret    string
	EnableDevLogin bool
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"principal org does not match resource org"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Trackline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Trackline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerUnits(group, cfg.Engine)
	registerEvidence(group, cfg.Engine)
	registerEscalations(group, cfg.Engine)
	registerSweep(group, cfg.Engine, cfg.SweepSecret)
	registerAttention(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerMe(group)
	if cfg.EnableDevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps domain errors onto the HTTP envelope. Forbidden wins over
// NotFound so cross-tenant probes cannot learn whether a resource exists.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe guard.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"reason": fe.Reason})
	}
	var ue guard.UnauthenticatedError
	if errors.As(err, &ue) {
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	}
	var ie engine.InvalidStateError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), map[string]any{"violation": ie.Violation})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrStaleLevel) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "unknown") ||
		strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type UnitPath struct {
	UnitID string `path:"unit_id"`
}

func registerUnits(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-unit",
		Method:        http.MethodPost,
		Path:          "/units",
		Summary:       "Create unit",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateUnitRequest `json:"body"`
	}) (*struct {
		Body UnitResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUnit(ctx, p, engine.CreateUnitOptions{
			WorkstreamID:       input.Body.WorkstreamID,
			Title:              input.Body.Title,
			Description:        deref(input.Body.Description),
			Deadline:           deref(input.Body.Deadline),
			HighCriticality:    input.Body.HighCriticality,
			EvidencePolicyJSON: deref(input.Body.EvidencePolicy),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UnitResponse `json:"body"`
		}{Body: toUnitResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-units",
		Method:      http.MethodGet,
		Path:        "/units",
		Summary:     "List units",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		WorkstreamID string `query:"workstream_id"`
		Status       string `query:"status" enum:"GREEN,RED,BLOCKED,"`
		Unconfirmed  bool   `query:"unconfirmed"`
		Limit        int    `query:"limit"`
	}) (*struct {
		Body []UnitResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		units, err := e.ListUnits(ctx, p, repo.UnitFilters{
			WorkstreamID: input.WorkstreamID,
			Status:       input.Status,
			Unconfirmed:  input.Unconfirmed,
			Limit:        input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]UnitResponse, 0, len(units))
		for _, u := range units {
			out = append(out, toUnitResponse(u))
		}
		return &struct {
			Body []UnitResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-unit",
		Method:      http.MethodGet,
		Path:        "/units/{unit_id}",
		Summary:     "Get unit",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *UnitPath) (*struct {
		Body UnitResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.GetUnit(ctx, p, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UnitResponse `json:"body"`
		}{Body: toUnitResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-unit",
		Method:      http.MethodPost,
		Path:        "/units/{unit_id}/confirm",
		Summary:     "Confirm a contributor-created unit",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *UnitPath) (*struct {
		Body UnitResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.ConfirmUnit(ctx, p, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UnitResponse `json:"body"`
		}{Body: toUnitResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-unit",
		Method:      http.MethodPost,
		Path:        "/units/{unit_id}/archive",
		Summary:     "Archive unit",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *UnitPath) (*struct {
		Body UnitResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.ArchiveUnit(ctx, p, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UnitResponse `json:"body"`
		}{Body: toUnitResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "compute-unit-status",
		Method:      http.MethodPost,
		Path:        "/units/{unit_id}/status/compute",
		Summary:     "Recompute unit status",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *UnitPath) (*struct {
		Body UnitResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetUnit(ctx, p, input.UnitID); err != nil {
			return nil, handleError(err)
		}
		u, err := e.ComputeStatus(ctx, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UnitResponse `json:"body"`
		}{Body: toUnitResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unblock-unit",
		Method:      http.MethodPost,
		Path:        "/units/{unit_id}/unblock",
		Summary:     "Lift a confirmed block",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		UnitPath
		Body UnblockRequest `json:"body"`
	}) (*struct {
		Body UnitResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Unblock(ctx, p, input.UnitID, deref(input.Body.Reason))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UnitResponse `json:"body"`
		}{Body: toUnitResponse(u)}, nil
	})
}

func registerEvidence(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-evidence",
		Method:        http.MethodPost,
		Path:          "/units/{unit_id}/evidence",
		Summary:       "Submit evidence for a unit",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		UnitPath
		Body SubmitEvidenceRequest `json:"body"`
	}) (*struct {
		Body EvidenceResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ev, err := e.SubmitEvidence(ctx, p, engine.SubmitEvidenceOptions{
			UnitID:   input.UnitID,
			Type:     input.Body.Type,
			BlobPath: deref(input.Body.BlobPath),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EvidenceResponse `json:"body"`
		}{Body: toEvidenceResponse(ev)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-unit-evidence",
		Method:      http.MethodGet,
		Path:        "/units/{unit_id}/evidence",
		Summary:     "List non-superseded evidence for a unit",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *UnitPath) (*struct {
		Body []EvidenceResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		evidence, err := e.ListUnitEvidence(ctx, p, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EvidenceResponse, 0, len(evidence))
		for _, ev := range evidence {
			out = append(out, toEvidenceResponse(ev))
		}
		return &struct {
			Body []EvidenceResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-evidence",
		Method:      http.MethodPost,
		Path:        "/evidence/{evidence_id}/decision",
		Summary:     "Approve or reject evidence",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		EvidenceID string                `path:"evidence_id"`
		Body       DecideEvidenceRequest `json:"body"`
	}) (*struct {
		Body EvidenceResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ev, err := e.DecideEvidence(ctx, p, input.EvidenceID, input.Body.Action, deref(input.Body.Reason))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EvidenceResponse `json:"body"`
		}{Body: toEvidenceResponse(ev)}, nil
	})
}

func registerEscalations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "escalate-unit",
		Method:        http.MethodPost,
		Path:          "/units/{unit_id}/escalations",
		Summary:       "Manually escalate a unit",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		UnitPath
		Body ManualEscalateRequest `json:"body"`
	}) (*struct {
		Body EscalationResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		es, err := e.ManualEscalate(ctx, p, engine.ManualEscalateOptions{
			UnitID:      input.UnitID,
			Reason:      input.Body.Reason,
			MarkBlocked: input.Body.MarkBlocked,
			BlockReason: deref(input.Body.BlockReason),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EscalationResponse `json:"body"`
		}{Body: toEscalationResponse(es)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-escalations",
		Method:      http.MethodGet,
		Path:        "/escalations",
		Summary:     "List escalations",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		UnitID string `query:"unit_id"`
		Status string `query:"status" enum:"active,resolved,"`
		Type   string `query:"type" enum:"automatic,manual,"`
	}) (*struct {
		Body []EscalationResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		filters := repo.EscalationFilters{
			UnitID: input.UnitID,
			Status: input.Status,
			Type:   input.Type,
		}
		if p.Role != domain.RolePlatformAdmin {
			filters.OrgID = p.OrgID
		}
		escalations, err := e.Repo.ListEscalations(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EscalationResponse, 0, len(escalations))
		for _, es := range escalations {
			out = append(out, toEscalationResponse(es))
		}
		return &struct {
			Body []EscalationResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-escalation",
		Method:      http.MethodPost,
		Path:        "/escalations/{escalation_id}/resolve",
		Summary:     "Resolve an active escalation",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		EscalationID string                   `path:"escalation_id"`
		Body         ResolveEscalationRequest `json:"body"`
	}) (*struct {
		Body EscalationResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		es, err := e.ResolveEscalation(ctx, p, input.EscalationID, deref(input.Body.Note))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EscalationResponse `json:"body"`
		}{Body: toEscalationResponse(es)}, nil
	})
}

// registerSweep exposes the scheduler entry point. It authenticates with a
// shared secret header and fails closed: with no secret configured every
// call is rejected.
func registerSweep(api huma.API, e engine.Engine, secret string) {
	huma.Register(api, huma.Operation{
		OperationID: "run-sweep",
		Method:      http.MethodPost,
		Path:        "/sweep",
		Summary:     "Run one escalation sweep",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Secret string       `header:"X-Sweep-Secret"`
		Body   SweepRequest `json:"body"`
	}) (*struct {
		Body engine.SweepReport `json:"body"`
	}, error) {
		if strings.TrimSpace(secret) == "" {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "sweep secret not configured", nil)
		}
		if input.Secret != secret {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid sweep secret", nil)
		}
		now := e.Now()
		if input.Body.Now != nil && *input.Body.Now != "" {
			parsed, err := time.Parse(time.RFC3339, *input.Body.Now)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "now must be RFC3339", nil)
			}
			now = parsed
		}
		report, err := e.RunSweep(ctx, now)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SweepReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerAttention(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "attention-queue",
		Method:      http.MethodGet,
		Path:        "/attention",
		Summary:     "Ranked attention queue for the caller",
		Errors:      mutationErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AttentionResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.AttentionQueue(ctx, p, e.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AttentionResponse `json:"body"`
		}{Body: AttentionResponse{Items: res.Items, Counts: res.Counts}}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Outbound notification queue (admin only)",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pending,sent,failed,"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body []NotificationResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if p.Role != domain.RolePlatformAdmin {
			return nil, handleError(guard.ForbiddenError{Reason: "notification queue is admin-only"})
		}
		notes, err := e.Repo.ListNotifications(ctx, repo.NotificationFilters{Status: input.Status, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]NotificationResponse, 0, len(notes))
		for _, n := range notes {
			out = append(out, toNotificationResponse(n))
		}
		return &struct {
			Body []NotificationResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			UserID: p.UserID,
			Email:  p.Email,
			Role:   string(p.Role),
			OrgID:  p.OrgID,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		userID := strings.TrimSpace(input.Body.UserID)
		orgID := strings.TrimSpace(input.Body.OrgID)
		role := domain.Role(input.Body.Role)
		if userID == "" || orgID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id and org_id are required", nil)
		}
		if !domain.ValidRole(role) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown role", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, domain.Principal{
			UserID: userID,
			Email:  input.Body.Email,
			Role:   role,
			OrgID:  orgID,
		}, 24*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
		path.Join(basePath, "sweep"):          true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Trackline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
