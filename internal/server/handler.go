package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pfpgofer/internal/instruction"
	"pfpgofer/internal/pfp"
	"pfpgofer/internal/solana"
)

// MaxOwnersPerRequest bounds the owners list of a bulk request
const MaxOwnersPerRequest = 1000

type errorResponse struct {
	Error string `json:"error"`
}

type resolveManyRequest struct {
	Owners []string `json:"owners"`
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(s.logger.With().Str("component", "http").Logger()))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "pfpgofer")
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/{group}", func(r chi.Router) {
		r.Get("/pfp/{owner}", s.handleResolve)
		r.Post("/pfp", s.handleResolveMany)
		r.Get("/instructions/set", s.handleSetInstruction)
		r.Get("/instructions/remove", s.handleRemoveInstruction)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"groups": s.registry.GroupNames(),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := s.endpoint(w, r)
	if !ok {
		return
	}
	owner, err := solana.ParsePublicKey(chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner: %v", err)
		return
	}
	opts, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	writeJSON(w, http.StatusOK, s.resolver.Resolve(r.Context(), endpoint, owner, opts))
}

func (s *Server) handleResolveMany(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := s.endpoint(w, r)
	if !ok {
		return
	}

	var req resolveManyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}
	if len(req.Owners) > MaxOwnersPerRequest {
		writeError(w, http.StatusBadRequest, "at most %d owners per request", MaxOwnersPerRequest)
		return
	}

	owners := make([]solana.PublicKey, len(req.Owners))
	for i, o := range req.Owners {
		pk, err := solana.ParsePublicKey(o)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid owner %q: %v", o, err)
			return
		}
		owners[i] = pk
	}

	opts, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	writeJSON(w, http.StatusOK, s.resolver.ResolveMany(r.Context(), endpoint, owners, opts))
}

func (s *Server) handleSetInstruction(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.endpoint(w, r); !ok {
		return
	}
	keys, err := queryKeys(r, "owner", "mint", "tokenAccount")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	ix, err := s.instructions.SetProfilePicture(keys[0], keys[1], keys[2])
	s.writeInstruction(w, ix, err)
}

func (s *Server) handleRemoveInstruction(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.endpoint(w, r); !ok {
		return
	}
	keys, err := queryKeys(r, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	ix, err := s.instructions.RemoveProfilePicture(keys[0])
	s.writeInstruction(w, ix, err)
}

func (s *Server) writeInstruction(w http.ResponseWriter, ix *instruction.Instruction, err error) {
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build instruction")
		writeError(w, http.StatusInternalServerError, "failed to build instruction")
		return
	}
	writeJSON(w, http.StatusOK, ix)
}

// endpoint resolves the {group} path parameter, answering 404 for unknown groups
func (s *Server) endpoint(w http.ResponseWriter, r *http.Request) (string, bool) {
	group := chi.URLParam(r, "group")
	endpoint, err := s.registry.Endpoint(group)
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return "", false
	}
	return endpoint, true
}

// options builds render options from the configuration and query overrides:
// fallback, width, height, quality and fit
func (s *Server) options(r *http.Request) (pfp.Options, error) {
	q := r.URL.Query()
	opts := pfp.Options{Fallback: s.cfg.Fallback}

	if v := q.Get("fallback"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid fallback: %q", v)
		}
		opts.Fallback = b
	}

	var resize pfp.ResizeOptions
	if s.cfg.Resize != nil {
		resize = pfp.ResizeOptions{
			Width:   s.cfg.Resize.Width,
			Height:  s.cfg.Resize.Height,
			Quality: s.cfg.Resize.Quality,
			Fit:     s.cfg.Resize.Fit,
		}
	}
	override := false
	for name, dst := range map[string]*int{"width": &resize.Width, "height": &resize.Height, "quality": &resize.Quality} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("invalid %s: %q", name, v)
		}
		*dst = n
		override = true
	}
	if v := q.Get("fit"); v != "" {
		resize.Fit = v
		override = true
	}

	if s.cfg.Resize != nil || override {
		opts.Resize = &resize
	}
	return opts, nil
}

func queryKeys(r *http.Request, names ...string) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, len(names))
	for i, name := range names {
		v := r.URL.Query().Get(name)
		if v == "" {
			return nil, fmt.Errorf("%s is required", name)
		}
		pk, err := solana.ParsePublicKey(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		keys[i] = pk
	}
	return keys, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}
