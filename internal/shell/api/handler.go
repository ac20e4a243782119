// Package api provides HTTP handlers for the Skiff API.
package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/calfort/skiff/internal/core/auth"
	"github.com/calfort/skiff/internal/core/domain"
	"github.com/calfort/skiff/internal/core/stack"
	"github.com/calfort/skiff/internal/core/verify"
	authmw "github.com/calfort/skiff/internal/shell/api/middleware"
	"github.com/calfort/skiff/internal/shell/api/openapi"
	"github.com/calfort/skiff/internal/shell/docker"
	"github.com/calfort/skiff/internal/shell/store"
	"github.com/calfort/skiff/internal/shell/workers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	store       store.Store
	docker      docker.Client
	logger      *slog.Logger
	authEnabled bool
	spec        *openapi.Generator
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, d docker.Client, l *slog.Logger, authEnabled bool) *Handler {
	if l == nil {
		l = slog.Default()
	}
	h := &Handler{
		store:       s,
		docker:      d,
		logger:      l,
		authEnabled: authEnabled,
	}
	h.spec = buildSpec()
	return h
}

// buildSpec registers the API surface with the OpenAPI generator.
func buildSpec() *openapi.Generator {
	g := openapi.NewGenerator(
		openapi.WithTitle("Skiff API"),
		openapi.WithDescription("Python container image build service API"),
	)
	g.RegisterResource(openapi.ResourceInfo{
		Name:           "builds",
		Model:          BuildResponse{},
		CreateRequest:  CreateBuildRequest{},
		SupportsFind:   true,
		SupportsDelete: true,
		Actions: []openapi.ActionInfo{
			{Name: "cancel", Method: http.MethodPost, Summary: "Cancel a pending or running build", Result: BuildResponse{}},
			{Name: "logs", Method: http.MethodGet, Summary: "Fetch a build's log lines", Result: LogResponse{}},
			{Name: "steps", Method: http.MethodGet, Summary: "Fetch a build's pipeline step outcomes", Result: StepsResponse{}},
			{Name: "verify", Method: http.MethodPost, Summary: "Verify the built image against the launch contract", Result: VerifyResponse{}},
			{Name: "run", Method: http.MethodPost, Summary: "Start a container from a succeeded build", Request: RunRequest{}, Result: RunResponse{}},
		},
	})
	g.RegisterResource(openapi.ResourceInfo{
		Name:          "stacks/builds",
		Model:         StackBuildResponse{},
		CreateRequest: CreateStackBuildRequest{},
	})
	g.RegisterResource(openapi.ResourceInfo{
		Name:           "tokens",
		Model:          TokenResponse{},
		CreateRequest:  CreateTokenRequest{},
		SupportsFind:   true,
		SupportsDelete: true,
	})
	return g
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Get("/openapi.json", h.spec.Handler())

	authMW := authmw.NewAuthMiddleware(authmw.AuthConfig{
		Enabled: h.authEnabled,
		Tokens:  h.store,
		Logger:  h.logger,
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMW.Handler)
		r.Use(authmw.RequireAuth(h.logger))

		r.Route("/builds", func(r chi.Router) {
			r.Post("/", h.handleCreateBuild)
			r.Get("/", h.handleListBuilds)
			r.Get("/{id}", h.handleGetBuild)
			r.Delete("/{id}", h.handleDeleteBuild)
			r.Post("/{id}/cancel", h.handleCancelBuild)
			r.Get("/{id}/logs", h.handleBuildLogs)
			r.Get("/{id}/steps", h.handleBuildSteps)
			r.Post("/{id}/verify", h.handleVerifyBuild)
			r.Post("/{id}/run", h.handleRunBuild)
		})

		r.Post("/stacks/builds", h.handleCreateStackBuilds)

		r.Route("/tokens", func(r chi.Router) {
			r.Post("/", h.handleCreateToken)
			r.Get("/", h.handleListTokens)
			r.Delete("/{id}", h.handleDeleteToken)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	// Check database (implicit - if we got here, store was created)
	checks["database"] = "ok"

	// Check Docker
	if err := h.docker.Ping(r.Context()); err != nil {
		checks["docker"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["docker"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Build Handlers
// =============================================================================

func (h *Handler) handleCreateBuild(w http.ResponseWriter, r *http.Request) {
	var req CreateBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if !filepath.IsAbs(req.ContextDir) {
		h.writeError(w, http.StatusBadRequest, "context_dir must be an absolute path", "validation_error")
		return
	}

	build, err := domain.NewBuild(req.ProjectName, req.ContextDir, req.Tag)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	if err := h.store.CreateBuild(r.Context(), build); err != nil {
		h.logger.Error("failed to create build", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create build", "internal_error")
		return
	}

	h.logger.Info("build queued", "build_id", build.ID, "project", build.ProjectName, "tag", build.Tag)
	h.writeJSON(w, http.StatusCreated, buildToResponse(build))
}

func (h *Handler) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}

	var (
		builds []domain.Build
		err    error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		builds, err = h.store.ListBuildsByStatus(r.Context(), domain.BuildStatus(status), opts)
	} else {
		builds, err = h.store.ListBuilds(r.Context(), opts)
	}
	if err != nil {
		h.logger.Error("failed to list builds", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list builds", "internal_error")
		return
	}

	resp := ListBuildsResponse{
		Builds: make([]BuildResponse, 0, len(builds)),
		Total:  len(builds),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for _, b := range builds {
		resp.Builds = append(resp.Builds, buildToResponse(&b))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	build, ok := h.fetchBuild(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, buildToResponse(build))
}

func (h *Handler) handleDeleteBuild(w http.ResponseWriter, r *http.Request) {
	build, ok := h.fetchBuild(w, r)
	if !ok {
		return
	}

	if build.Status == domain.StatusBuilding {
		h.writeError(w, http.StatusConflict, "cannot delete a running build, cancel it first", "build_running")
		return
	}

	if err := h.store.DeleteBuild(r.Context(), build.ID); err != nil {
		h.logger.Error("failed to delete build", "build_id", build.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete build", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCancelBuild(w http.ResponseWriter, r *http.Request) {
	build, ok := h.fetchBuild(w, r)
	if !ok {
		return
	}

	if err := build.Transition(domain.StatusCanceled); err != nil {
		h.writeError(w, http.StatusConflict, "build cannot be canceled in status "+string(build.Status), "invalid_transition")
		return
	}

	if err := h.store.UpdateBuild(r.Context(), build); err != nil {
		h.logger.Error("failed to cancel build", "build_id", build.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to cancel build", "internal_error")
		return
	}

	h.logger.Info("build canceled", "build_id", build.ID)
	h.writeJSON(w, http.StatusOK, buildToResponse(build))
}

func (h *Handler) handleBuildLogs(w http.ResponseWriter, r *http.Request) {
	build, ok := h.fetchBuild(w, r)
	if !ok {
		return
	}

	lines, err := h.store.GetBuildLog(r.Context(), build.ID)
	if err != nil {
		h.logger.Error("failed to get build log", "build_id", build.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get build log", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, LogResponse{BuildID: build.ID, Lines: lines})
}

func (h *Handler) handleBuildSteps(w http.ResponseWriter, r *http.Request) {
	build, ok := h.fetchBuild(w, r)
	if !ok {
		return
	}

	events, err := h.store.ListStepEvents(r.Context(), build.ID)
	if err != nil {
		h.logger.Error("failed to list build steps", "build_id", build.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list build steps", "internal_error")
		return
	}

	resp := StepsResponse{
		BuildID: build.ID,
		Steps:   make([]StepResponse, 0, len(events)),
	}
	for _, ev := range events {
		resp.Steps = append(resp.Steps, StepResponse{
			Step:       string(ev.Step),
			Success:    ev.Success,
			Message:    ev.Message,
			RecordedAt: ev.RecordedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleVerifyBuild(w http.ResponseWriter, r *http.Request) {
	build, ok := h.fetchBuild(w, r)
	if !ok {
		return
	}

	if build.Status != domain.StatusSucceeded || build.ImageID == "" {
		h.writeError(w, http.StatusConflict, "build has no image to verify", "build_not_succeeded")
		return
	}

	info, err := h.docker.InspectImage(r.Context(), build.ImageID)
	if err != nil {
		h.logger.Error("failed to inspect image", "build_id", build.ID, "image_id", build.ImageID, "error", err)
		h.writeError(w, http.StatusBadGateway, "failed to inspect image", "docker_error")
		return
	}

	plan, err := workers.PlanForContext(build.ContextDir)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "invalid_descriptor")
		return
	}

	report := verify.Image(verify.ImageConfig{
		ImageID:    info.ID,
		Env:        info.Env,
		Cmd:        info.Cmd,
		Entrypoint: info.Entrypoint,
		WorkingDir: info.WorkingDir,
	}, plan)

	resp := VerifyResponse{
		BuildID: build.ID,
		ImageID: info.ID,
		OK:      report.OK(),
		Checks:  make([]CheckResponse, 0, len(report.Checks)),
	}
	for _, c := range report.Checks {
		resp.Checks = append(resp.Checks, CheckResponse{Name: c.Name, OK: c.OK, Detail: c.Detail})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRunBuild(w http.ResponseWriter, r *http.Request) {
	build, ok := h.fetchBuild(w, r)
	if !ok {
		return
	}

	if build.Status != domain.StatusSucceeded {
		h.writeError(w, http.StatusConflict, "only succeeded builds can be run", "build_not_succeeded")
		return
	}

	var req RunRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
			return
		}
	}

	name := req.Name
	if name == "" {
		name = domain.GenerateBuildName(build.Slug)
	}

	spec := docker.RunSpec{
		Image:  build.Tag,
		Name:   name,
		Env:    req.Env,
		Labels: map[string]string{"skiff.build_id": build.ID},
	}
	for _, p := range req.Ports {
		spec.Ports = append(spec.Ports, docker.PortBinding{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
		})
	}

	containerID, err := h.docker.CreateContainer(r.Context(), spec)
	if err != nil {
		h.logger.Error("failed to create container", "build_id", build.ID, "error", err)
		h.writeError(w, http.StatusBadGateway, "failed to create container", "docker_error")
		return
	}

	if err := h.docker.StartContainer(r.Context(), containerID); err != nil {
		h.logger.Error("failed to start container", "build_id", build.ID, "container_id", containerID, "error", err)
		h.writeError(w, http.StatusBadGateway, "failed to start container", "docker_error")
		return
	}

	h.logger.Info("container started", "build_id", build.ID, "container_id", containerID)
	h.writeJSON(w, http.StatusCreated, RunResponse{
		BuildID:     build.ID,
		ContainerID: containerID,
		Image:       build.Tag,
	})
}

// =============================================================================
// Stack Handlers
// =============================================================================

func (h *Handler) handleCreateStackBuilds(w http.ResponseWriter, r *http.Request) {
	var req CreateStackBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if !filepath.IsAbs(req.WorkDir) {
		h.writeError(w, http.StatusBadRequest, "work_dir must be an absolute path", "validation_error")
		return
	}

	parsed, err := stack.Parse(req.ComposeYAML, req.ProjectName)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "invalid_compose")
		return
	}

	builds := make([]*domain.Build, 0, len(parsed.Requests))
	for _, breq := range parsed.Requests {
		contextDir := breq.ContextDir
		if !filepath.IsAbs(contextDir) {
			contextDir = filepath.Join(req.WorkDir, contextDir)
		}
		build, err := domain.NewBuild(parsed.Name+"-"+breq.Service, contextDir, breq.Tag)
		if err != nil {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "invalid_compose")
			return
		}
		build.Dockerfile = breq.Dockerfile
		builds = append(builds, build)
	}

	// All or nothing: one build per buildable service.
	err = h.store.WithTx(r.Context(), func(tx store.Store) error {
		for _, b := range builds {
			if err := tx.CreateBuild(r.Context(), b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		h.logger.Error("failed to queue stack builds", "stack", parsed.Name, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to queue stack builds", "internal_error")
		return
	}

	resp := StackBuildResponse{
		Stack:   parsed.Name,
		Builds:  make([]BuildResponse, 0, len(builds)),
		Skipped: parsed.Skipped,
	}
	if resp.Skipped == nil {
		resp.Skipped = []string{}
	}
	for _, b := range builds {
		resp.Builds = append(resp.Builds, buildToResponse(b))
	}

	h.logger.Info("stack builds queued", "stack", parsed.Name, "count", len(builds), "skipped", len(parsed.Skipped))
	h.writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// Token Handlers
// =============================================================================

func (h *Handler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required", "validation_error")
		return
	}

	plaintext, err := generateToken()
	if err != nil {
		h.logger.Error("failed to generate token", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to generate token", "internal_error")
		return
	}

	hash, err := auth.HashToken(plaintext)
	if err != nil {
		h.logger.Error("failed to hash token", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to hash token", "internal_error")
		return
	}

	token, err := domain.NewAPIToken(req.Name, hash)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	if err := h.store.CreateAPIToken(r.Context(), token); err != nil {
		if errors.Is(err, store.ErrDuplicateToken) {
			h.writeError(w, http.StatusConflict, "token with this name already exists", "duplicate_token")
			return
		}
		h.logger.Error("failed to create token", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create token", "internal_error")
		return
	}

	h.logger.Info("API token created", "token_id", token.ID, "name", token.Name)
	h.writeJSON(w, http.StatusCreated, TokenResponse{
		ID:        token.ID,
		Name:      token.Name,
		Token:     plaintext,
		CreatedAt: token.CreatedAt,
	})
}

func (h *Handler) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.store.ListAPITokens(r.Context())
	if err != nil {
		h.logger.Error("failed to list tokens", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list tokens", "internal_error")
		return
	}

	resp := ListTokensResponse{Tokens: make([]TokenResponse, 0, len(tokens))}
	for _, t := range tokens {
		resp.Tokens = append(resp.Tokens, TokenResponse{
			ID:        t.ID,
			Name:      t.Name,
			CreatedAt: t.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteAPIToken(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "token not found", "token_not_found")
			return
		}
		h.logger.Error("failed to delete token", "token_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete token", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Helpers
// =============================================================================

// fetchBuild loads the build named by the URL and writes the error response
// itself when the lookup fails.
func (h *Handler) fetchBuild(w http.ResponseWriter, r *http.Request) (*domain.Build, bool) {
	id := chi.URLParam(r, "id")

	build, err := h.store.GetBuild(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "build not found", "build_not_found")
			return nil, false
		}
		h.logger.Error("failed to get build", "build_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get build", "internal_error")
		return nil, false
	}

	return build, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func buildToResponse(b *domain.Build) BuildResponse {
	return BuildResponse{
		ID:             b.ID,
		ProjectName:    b.ProjectName,
		Slug:           b.Slug,
		ContextDir:     b.ContextDir,
		Tag:            b.Tag,
		Dockerfile:     b.Dockerfile,
		Status:         string(b.Status),
		ManifestDigest: b.ManifestDigest,
		ImageID:        b.ImageID,
		ErrorMessage:   b.ErrorMessage,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
		StartedAt:      b.StartedAt,
		FinishedAt:     b.FinishedAt,
	}
}

// generateToken mints a 32-byte hex token.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk_" + hex.EncodeToString(buf), nil
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}
