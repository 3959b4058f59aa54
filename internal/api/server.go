// Package api serves the similar-companies HTTP API.
package api

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/comps/internal/model"
	"github.com/sells-group/comps/internal/similarity"
)

// Ranker ranks comparable companies for a set of seeds.
type Ranker interface {
	Rank(ctx context.Context, req similarity.Request) (*similarity.Response, error)
}

// Feedback records and lists match verdicts.
type Feedback interface {
	Submit(ctx context.Context, in similarity.FeedbackInput) (*model.Feedback, error)
	List(ctx context.Context, inputCompanyID int64) ([]model.Feedback, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune request defaults and cross-origin access.
type Options struct {
	// DefaultMinScore applies when a request omits min_score; nil defers
	// to the engine default.
	DefaultMinScore *float64
	DefaultLimit    int
	CORSOrigins     []string
	RequestTimeout  time.Duration
}

// Server holds the handler dependencies.
type Server struct {
	ranker   Ranker
	feedback Feedback
	health   Pinger
	opts     Options
	validate *validator.Validate
}

// NewServer creates a Server.
func NewServer(ranker Ranker, feedback Feedback, health Pinger, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		ranker:   ranker,
		feedback: feedback,
		health:   health,
		opts:     opts,
		validate: v,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/similar-companies", func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
		r.Post("/", s.handleSimilar)
		r.Post("/feedback", s.handleSubmitFeedback)
		r.Get("/feedback/{input_company_id}", s.handleListFeedback)
	})

	return r
}
