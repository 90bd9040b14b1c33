package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/petrijr/pathways/internal/learningcontext"
	"github.com/petrijr/pathways/pkg/api"
	"github.com/petrijr/pathways/pkg/keys"
)

// BasePath prefixes every route.
const BasePath = "/api/lx-pathways/v1"

const maxBodyBytes = 1 << 20

// Config wires a Server.
type Config struct {
	Service api.Service
	// Registry resolves block usage keys. Studio registries read draft
	// data; LMS registries read published data.
	Registry *learningcontext.Registry
	Auth     *Authenticator
	Logger   *slog.Logger
	// AllowedOrigins lists CORS origins; "*" allows any. Empty sends no
	// CORS headers, so browsers refuse cross-origin requests.
	AllowedOrigins []string
}

// Server holds the handlers shared by the Studio and LMS routers.
type Server struct {
	svc      api.Service
	registry *learningcontext.Registry
	auth     *Authenticator
	logger   *slog.Logger
	origins  []string
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("httpapi: service is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("httpapi: registry is required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("httpapi: authenticator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:      cfg.Service,
		registry: cfg.Registry,
		auth:     cfg.Auth,
		logger:   logger,
		origins:  cfg.AllowedOrigins,
	}, nil
}

// StudioRouter returns the authoring routes.
func (s *Server) StudioRouter() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix(BasePath).Subrouter()
	v1.Use(s.auth.authenticate)

	v1.Methods(http.MethodPost).Path("/pathway/").HandlerFunc(s.createPathway)
	v1.Methods(http.MethodGet).Path("/pathway/").HandlerFunc(s.listPathways)
	v1.Methods(http.MethodGet).Path("/pathway/{key}/").HandlerFunc(s.getPathway)
	v1.Methods(http.MethodPatch).Path("/pathway/{key}/").HandlerFunc(s.updatePathway)
	v1.Methods(http.MethodDelete).Path("/pathway/{key}/").HandlerFunc(s.deletePathway)
	v1.Methods(http.MethodPost).Path("/pathway/{key}/publish/").HandlerFunc(s.publishPathway)
	v1.Methods(http.MethodDelete).Path("/pathway/{key}/publish/").HandlerFunc(s.revertPathway)
	v1.Methods(http.MethodGet).Path("/pathway/{key}/history/").HandlerFunc(s.pathwayHistory)
	v1.Methods(http.MethodGet).Path("/block/{usage_key}/").HandlerFunc(s.resolveBlock)
	s.notFound(r)
	return r
}

// LMSRouter returns the learner routes. The pathway detail route is the same
// get/edit/delete view Studio serves; creating and publishing stay in Studio.
func (s *Server) LMSRouter() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix(BasePath).Subrouter()
	v1.Use(s.auth.authenticate)

	v1.Methods(http.MethodGet).Path("/pathway/{key}/").HandlerFunc(s.getPathway)
	v1.Methods(http.MethodPatch).Path("/pathway/{key}/").HandlerFunc(s.updatePathway)
	v1.Methods(http.MethodDelete).Path("/pathway/{key}/").HandlerFunc(s.deletePathway)
	v1.Methods(http.MethodGet).Path("/block/{usage_key}/").HandlerFunc(s.resolveBlock)
	s.notFound(r)
	return r
}

func (s *Server) notFound(r *mux.Router) {
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, detailNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %q not allowed.", req.Method))
	})
}

// Handler wraps router with tracing, CORS, request ids and access logs.
func (s *Server) Handler(router http.Handler, operation string) http.Handler {
	h := accessLog(s.logger)(router)
	h = requestID(h)
	if len(s.origins) > 0 {
		h = newCORS(s.origins).Handler(h)
	}
	return otelhttp.NewHandler(h, operation)
}

func (s *Server) principal(w http.ResponseWriter, r *http.Request) (api.Principal, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
	}
	return p, ok
}

// pathwayKey parses the {key} route variable. Malformed keys are
// reported as not found.
func pathwayKey(r *http.Request) (keys.PathwayKey, error) {
	k, err := keys.ParsePathwayKey(mux.Vars(r)["key"])
	if err != nil {
		return keys.PathwayKey{}, fmt.Errorf("%w: %w", api.ErrNotFound, err)
	}
	return k, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &api.ValidationError{Message: "JSON parse error - " + err.Error()}
	}
	return nil
}

func (s *Server) createPathway(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	var body createRequestJSON
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	req := api.CreateRequest{OwnerGroupName: body.ownerGroupName()}
	if body.UUID != nil {
		id, err := uuid.Parse(*body.UUID)
		if err != nil {
			s.writeError(w, r, &api.ValidationError{Field: "uuid", Message: "Must be a valid UUID."})
			return
		}
		req.UUID = &id
	}
	if body.DraftData != nil {
		d := body.DraftData.toData()
		req.Draft = &d
	}

	pw, err := s.svc.Create(r.Context(), p, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPathwayJSON(pw))
}

func (s *Server) listPathways(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	var opts api.ListOptions
	q := r.URL.Query()
	if v := q.Get("owner_user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, r, &api.ValidationError{Field: "owner_user_id", Message: "A valid integer is required."})
			return
		}
		opts.OwnerUserID = &id
	}
	opts.OwnerGroupName = q.Get("owner_group_name")

	pws, err := s.svc.List(r.Context(), p, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]pathwayJSON, len(pws))
	for i, pw := range pws {
		out[i] = toPathwayJSON(pw)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPathway(w http.ResponseWriter, r *http.Request) {
	s.withPathway(w, r, s.svc.Get)
}

func (s *Server) publishPathway(w http.ResponseWriter, r *http.Request) {
	s.withPathway(w, r, s.svc.Publish)
}

func (s *Server) revertPathway(w http.ResponseWriter, r *http.Request) {
	s.withPathway(w, r, s.svc.Revert)
}

// withPathway runs op on the pathway named in the URL and writes the result.
func (s *Server) withPathway(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, p api.Principal, key keys.PathwayKey) (*api.Pathway, error)) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	key, err := pathwayKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pw, err := op(r.Context(), p, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPathwayJSON(pw))
}

func (s *Server) updatePathway(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	key, err := pathwayKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body updateRequestJSON
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	pw, err := s.svc.Update(r.Context(), p, key, body.toRequest())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPathwayJSON(pw))
}

func (s *Server) deletePathway(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	key, err := pathwayKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.Delete(r.Context(), p, key); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) pathwayHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	key, err := pathwayKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	evs, err := s.svc.History(r.Context(), p, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventsJSON(evs))
}

func (s *Server) resolveBlock(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	usageKey, err := keys.ParseUsageKey(mux.Vars(r)["usage_key"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := learningcontext.WithRequestCache(r.Context())
	lc, err := s.registry.ForKey(usageKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !lc.CanViewBlock(ctx, p, usageKey) {
		s.writeError(w, r, learningcontext.ErrBlockNotFound)
		return
	}
	def, err := lc.DefinitionForUsage(ctx, usageKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := blockJSON{UsageKey: usageKey.String(), Definition: toDefinitionJSON(def)}
	if pk, ok := usageKey.(keys.PathwayUsageKey); ok {
		if pc, ok := lc.(*learningcontext.PathwayContext); ok {
			orig, err := pc.OriginalUsageKey(ctx, pk)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			out.OriginalUsageKey = orig.String()
		}
	}
	writeJSON(w, http.StatusOK, out)
}
