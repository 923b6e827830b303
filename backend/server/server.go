package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jghoshh/missioncenter/backend/graph"
	"github.com/jghoshh/missioncenter/backend/queue"
	"github.com/jghoshh/missioncenter/backend/server/auth"
	"github.com/jghoshh/missioncenter/backend/server/context_key"
	"github.com/jghoshh/missioncenter/backend/storage/persistent"
	"github.com/jghoshh/missioncenter/lib/tags"
	"github.com/jghoshh/missioncenter/models"
)

// Catalog lists the active missions and forgets them when they change.
type Catalog interface {
	ListActive(ctx context.Context) ([]models.Mission, error)
	Invalidate(ctx context.Context) error
}

// ProgressPublisher hands progress events to the event queue.
type ProgressPublisher interface {
	PublishProgress(events ...queue.ProgressEvent) error
}

// Deps are the collaborators the API is built from. Events may be nil, in
// which case no progress events are published.
type Deps struct {
	Store      storage.StorageInterface
	Catalog    Catalog
	Events     ProgressPublisher
	SigningKey string
	IsAdmin    func(userID string) bool
	Sampler    *tags.Sampler
	Timeout    time.Duration
	Now        func() time.Time
}

// Server holds the dependencies shared by every handler.
type Server struct {
	store      storage.StorageInterface
	catalog    Catalog
	signingKey string
	isAdmin    func(userID string) bool
	sampler    *tags.Sampler
	timeout    time.Duration
	now        func() time.Time
	resolver   *graph.Resolver
}

// New builds a Server from deps, filling in defaults for the optional ones.
func New(deps Deps) *Server {
	s := &Server{
		store:      deps.Store,
		catalog:    deps.Catalog,
		signingKey: deps.SigningKey,
		isAdmin:    deps.IsAdmin,
		sampler:    deps.Sampler,
		timeout:    deps.Timeout,
		now:        deps.Now,
	}
	if s.isAdmin == nil {
		s.isAdmin = func(string) bool { return false }
	}
	if s.sampler == nil {
		s.sampler = tags.NewSampler(nil)
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	s.resolver = &graph.Resolver{
		Store:   deps.Store,
		Catalog: deps.Catalog,
		Events:  deps.Events,
		Now:     s.now,
	}
	return s
}

// jwtMiddleware is a middleware function that performs JWT validation.
//
// It accepts two arguments:
// - signingKey: A key used for validating the JWT signature.
// - next: The next http.Handler to be executed once the middleware has done its job.
//
// This function reads the JWT from the Authorization header of the HTTP request. If the token
// is valid, the user's ID is injected into the request's context under contextKey.UserIDKey.
// Otherwise the validation error is injected under contextKey.JwtErrorKey.
//
// The function never stops the request itself; requireUser decides what to do with the result.
func jwtMiddleware(signingKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenStr == authHeader {
				ctx := context.WithValue(r.Context(), contextKey.JwtErrorKey, auth.ErrInvalidToken)
				r = r.WithContext(ctx)
			} else if userID, err := auth.ParseToken(signingKey, tokenStr); err != nil {
				ctx := context.WithValue(r.Context(), contextKey.JwtErrorKey, err)
				r = r.WithContext(ctx)
			} else {
				ctx := context.WithValue(r.Context(), contextKey.UserIDKey, userID)
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireUser rejects requests that jwtMiddleware could not attach a user to.
func requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userIDFrom(r.Context()); !ok {
			msg := "authentication required"
			if err, ok := r.Context().Value(contextKey.JwtErrorKey).(error); ok {
				msg = err.Error()
				if !errors.Is(err, auth.ErrTokenExpired) {
					msg = auth.ErrInvalidToken.Error()
				}
			}
			writeError(w, newAPIError(http.StatusUnauthorized, msg))
			return
		}
		next(w, r)
	}
}

func userIDFrom(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKey.UserIDKey).(string)
	return userID, ok && userID != ""
}

// recoveryMiddleware is a middleware function that recovers from panics and provides a generic error message to the client.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %s\n", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Routes registers every endpoint on a new router. The router carries the
// JWT and recovery middleware but not CORS or access logging; see Handler.
//
// Missions and progress are also served as GraphQL on /graphql, where
// resolvers report a missing user as a GraphQL error instead of a 401.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(recoveryMiddleware)
	r.Use(func(next http.Handler) http.Handler { return jwtMiddleware(s.signingKey, next) })

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	gql := handler.New(graph.NewExecutableSchema(graph.Config{Resolvers: s.resolver}))
	gql.AddTransport(transport.POST{})
	r.Handle("/graphql", gql).Methods(http.MethodPost)
	r.Handle("/playground", playground.Handler("Mission center", "/graphql")).Methods(http.MethodGet)

	r.HandleFunc("/missions", requireUser(s.listActiveMissions)).Methods(http.MethodGet)
	r.HandleFunc("/missions", requireUser(s.requireAdmin(s.createMission))).Methods(http.MethodPost)
	r.HandleFunc("/missions/all", requireUser(s.requireAdmin(s.listAllMissions))).Methods(http.MethodGet)
	r.HandleFunc("/missions/week/{week:[0-9]+}", requireUser(s.getMissionByWeek)).Methods(http.MethodGet)
	r.HandleFunc("/missions/{id}", requireUser(s.getMission)).Methods(http.MethodGet)
	r.HandleFunc("/missions/{id}", requireUser(s.requireAdmin(s.updateMission))).Methods(http.MethodPut)
	r.HandleFunc("/missions/{id}", requireUser(s.requireAdmin(s.deleteMission))).Methods(http.MethodDelete)

	r.HandleFunc("/progress", requireUser(s.getProgress)).Methods(http.MethodGet)
	r.HandleFunc("/progress", requireUser(s.putProgress)).Methods(http.MethodPut)
	r.HandleFunc("/progress/summary", requireUser(s.getSummary)).Methods(http.MethodGet)
	r.HandleFunc("/progress/activity", requireUser(s.getActivity)).Methods(http.MethodGet)

	r.HandleFunc("/me", requireUser(s.getMe)).Methods(http.MethodGet)
	r.HandleFunc("/me", requireUser(s.putMe)).Methods(http.MethodPut)
	r.HandleFunc("/me/consent", requireUser(s.postConsent)).Methods(http.MethodPost)
	r.HandleFunc("/me/taggroups", requireUser(s.myTagGroups)).Methods(http.MethodGet)

	r.HandleFunc("/members", requireUser(s.listMembers)).Methods(http.MethodGet)
	r.HandleFunc("/members/{uid}", requireUser(s.getMember)).Methods(http.MethodGet)

	r.HandleFunc("/taggroups", requireUser(s.listTagGroups)).Methods(http.MethodGet)
	r.HandleFunc("/taggroups", requireUser(s.createTagGroup)).Methods(http.MethodPost)
	r.HandleFunc("/taggroups/{id}", requireUser(s.getTagGroup)).Methods(http.MethodGet)
	r.HandleFunc("/taggroups/{id}", requireUser(s.updateTagGroup)).Methods(http.MethodPut)
	r.HandleFunc("/taggroups/{id}", requireUser(s.deleteTagGroup)).Methods(http.MethodDelete)
	r.HandleFunc("/taggroups/{id}/applications", requireUser(s.applyTagGroup)).Methods(http.MethodPost)
	r.HandleFunc("/taggroups/{id}/applications", requireUser(s.cancelApplication)).Methods(http.MethodDelete)
	r.HandleFunc("/taggroups/{id}/tags", requireUser(s.tagGroupTags)).Methods(http.MethodGet)

	return r
}

// Handler wraps Routes with the CORS and access logging middleware.
func (s *Server) Handler() http.Handler {
	corsOrigins := handlers.AllowedOrigins([]string{"*"})
	corsMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"})
	corsHeaders := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"})

	corsRouter := handlers.CORS(corsOrigins, corsMethods, corsHeaders)(s.Routes())
	return handlers.LoggingHandler(os.Stdout, corsRouter)
}

// Start serves handler on the host of serverURL until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, serverURL string, handler http.Handler) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:      handler,
		Addr:         u.Host,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAdmin rejects callers not listed as catalog administrators.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := userIDFrom(r.Context())
		if !s.isAdmin(userID) {
			writeError(w, newAPIError(http.StatusForbidden, "admin only"))
			return
		}
		next(w, r)
	}
}

// callContext bounds one request's calls to the backing services.
func (s *Server) callContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}
