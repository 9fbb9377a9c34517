// Package httpapi is the admin ingress: a command endpoint and a query
// endpoint, both speaking dynamic {type, payload} JSON envelopes, behind
// session and trusted-origin checks.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/slapcommerce/core-sub014/pkg/auth"
	"github.com/slapcommerce/core-sub014/pkg/commands"
	"github.com/slapcommerce/core-sub014/pkg/domain"
	"github.com/slapcommerce/core-sub014/pkg/imagestore"
	"github.com/slapcommerce/core-sub014/pkg/projection"
)

// Server routes admin HTTP traffic to the command bus and the view layer.
type Server struct {
	bus      *commands.Bus
	views    *projection.Views
	sessions *auth.Sessions
	origins  *auth.OriginPolicy
	images   imagestore.Store
	logger   *slog.Logger
	ipHeader string

	// adminPrincipal/adminPasswordHash are the single provisioned login.
	adminPrincipal    string
	adminPasswordHash string
}

// Config wires the server's collaborators.
type Config struct {
	Bus               *commands.Bus
	Views             *projection.Views
	Sessions          *auth.Sessions
	Origins           *auth.OriginPolicy
	Images            imagestore.Store
	Logger            *slog.Logger
	AdminPrincipal    string
	AdminPasswordHash string

	// ClientIPHeader names the proxy header carrying the real client IP,
	// used for request logging. Empty falls back to the remote address.
	ClientIPHeader string
}

// NewServer creates the ingress.
func NewServer(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		bus:               config.Bus,
		views:             config.Views,
		sessions:          config.Sessions,
		origins:           config.Origins,
		images:            config.Images,
		logger:            logger,
		ipHeader:          config.ClientIPHeader,
		adminPrincipal:    config.AdminPrincipal,
		adminPasswordHash: config.AdminPasswordHash,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", s.handleLogin)
	mux.HandleFunc("POST /commands", s.handleCommand)
	mux.HandleFunc("POST /queries", s.handleQuery)
	if s.images != nil {
		mux.HandleFunc("POST /images", s.handleImageUpload)
		mux.HandleFunc("DELETE /images/{id}", s.handleImageDelete)
	}
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// commandRequest is the ingress envelope for writes.
type commandRequest struct {
	Type          string          `json:"type"`
	CommandID     string          `json:"commandId,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// queryRequest is the ingress envelope for reads.
type queryRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type errorBody struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// response is the uniform reply envelope.
type response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type loginRequest struct {
	Principal string `json:"principal"`
	Password  string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := s.origins.Check(r.Header.Get("Origin")); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, domain.Validationf("malformed login body"))
		return
	}
	if req.Principal != s.adminPrincipal {
		s.writeError(w, r, domain.Unauthorizedf("invalid credentials"))
		return
	}
	if err := auth.VerifyPassword(s.adminPasswordHash, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.sessions.Issue(req.Principal)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, response{Success: true, Data: map[string]string{"token": token}})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	session, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, domain.Validationf("malformed command envelope"))
		return
	}
	if req.CommandID == "" {
		req.CommandID = domain.NewID()
	}

	result, err := s.bus.Dispatch(r.Context(), &commands.Envelope{
		Type:          req.Type,
		CommandID:     req.CommandID,
		CorrelationID: req.CorrelationID,
		Principal:     session.Principal,
		Data:          req.Payload,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, response{Success: true, Data: result})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, domain.Validationf("malformed query envelope"))
		return
	}

	data, err := s.runQuery(r, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, response{Success: true, Data: data})
}

func (s *Server) runQuery(r *http.Request, req queryRequest) (any, error) {
	ctx := r.Context()
	switch req.Type {
	case "products.list":
		filter, err := decodeFilter[projection.ProductFilter](req)
		if err != nil {
			return nil, err
		}
		return s.views.ListProducts(ctx, filter)
	case "variants.list":
		filter, err := decodeFilter[projection.VariantFilter](req)
		if err != nil {
			return nil, err
		}
		return s.views.ListVariants(ctx, filter)
	case "collections.list":
		filter, err := decodeFilter[projection.CollectionFilter](req)
		if err != nil {
			return nil, err
		}
		return s.views.ListCollections(ctx, filter)
	case "collection.products":
		var params struct {
			CollectionID string `json:"collectionId"`
		}
		if err := json.Unmarshal(req.Payload, &params); err != nil {
			return nil, domain.Validationf("malformed payload for query %q", req.Type)
		}
		return s.views.CollectionProducts(ctx, params.CollectionID)
	case "schedules.list":
		filter, err := decodeFilter[projection.ScheduleFilter](req)
		if err != nil {
			return nil, err
		}
		return s.views.ListSchedules(ctx, filter)
	case "slug.resolve":
		var params struct {
			Slug string `json:"slug"`
		}
		if err := json.Unmarshal(req.Payload, &params); err != nil {
			return nil, domain.Validationf("malformed payload for query %q", req.Type)
		}
		return s.views.ResolveSlug(ctx, params.Slug)
	default:
		return nil, domain.Validationf("unknown query type %q", req.Type)
	}
}

func decodeFilter[T any](req queryRequest) (T, error) {
	var filter T
	if len(req.Payload) == 0 {
		return filter, nil
	}
	if err := json.Unmarshal(req.Payload, &filter); err != nil {
		return filter, domain.Validationf("malformed payload for query %q", req.Type)
	}
	return filter, nil
}

// imageUploadRequest carries pre-transcoded renditions; Data fields are
// base64 in the JSON body.
type imageUploadRequest struct {
	ImageID    string `json:"imageId,omitempty"`
	Renditions []struct {
		Size        string `json:"size"`
		Format      string `json:"format"`
		ContentType string `json:"contentType"`
		Data        []byte `json:"data"`
	} `json:"renditions"`
}

func (s *Server) handleImageUpload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req imageUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, domain.Validationf("malformed image upload body"))
		return
	}
	if req.ImageID == "" {
		req.ImageID = domain.NewID()
	}
	renditions := make([]imagestore.Rendition, 0, len(req.Renditions))
	for _, rd := range req.Renditions {
		renditions = append(renditions, imagestore.Rendition{
			Size:        domain.ImageSize(rd.Size),
			Format:      domain.ImageFormat(rd.Format),
			ContentType: rd.ContentType,
			Data:        rd.Data,
		})
	}
	urls, err := s.images.Put(r.Context(), req.ImageID, renditions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, response{Success: true, Data: map[string]any{
		"imageId": req.ImageID,
		"urls":    urls,
	}})
}

func (s *Server) handleImageDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.images.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, response{Success: true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, response{Success: true})
}

// authenticate checks origin and session on every authenticated route.
func (s *Server) authenticate(r *http.Request) (auth.Session, error) {
	if err := s.origins.Check(r.Header.Get("Origin")); err != nil {
		return auth.Session{}, err
	}
	token := bearerToken(r)
	if token == "" {
		return auth.Session{}, domain.Unauthorizedf("missing session token")
	}
	return s.sessions.Verify(token)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	if c, err := r.Cookie("session"); err == nil {
		return c.Value
	}
	return ""
}

// statusOf maps error kinds to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrencyConflict), errors.Is(err, domain.ErrConstraintViolated):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("client_ip", s.clientIP(r)),
			slog.String("error", err.Error()),
		)
	}
	s.writeJSON(w, status, response{
		Success: false,
		Error:   &errorBody{Message: err.Error(), Kind: domain.KindOf(err)},
	})
}

func (s *Server) clientIP(r *http.Request) string {
	if s.ipHeader != "" {
		if ip := r.Header.Get(s.ipHeader); ip != "" {
			return ip
		}
	}
	return r.RemoteAddr
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
