package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-rec/internal/api"
	"github.com/joeblew999/plat-rec/internal/api/ui"
	"github.com/joeblew999/plat-rec/internal/config"
	"github.com/joeblew999/plat-rec/internal/db"
	"github.com/joeblew999/plat-rec/internal/humastar"
	"github.com/joeblew999/plat-rec/internal/maptiles"
	"github.com/joeblew999/plat-rec/internal/service"
	"github.com/joeblew999/plat-rec/internal/templates"
)

// Session and sweep timings.
const (
	sessionTTL      = 24 * time.Hour
	sweepInterval   = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// Config holds the server configuration.
type Config struct {
	Host        string
	Port        string
	DataDir     string // empty runs on an in-memory database
	ConfigPath  string // YAML facets/tiles config; missing file uses defaults
	TemplateDir string // optional directory containing fragments/, overrides the embedded ones
}

// Server is the recreation search HTTP server.
type Server struct {
	config   Config
	log      *zap.Logger
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	db       *sql.DB
	sharedDB bool
	live     *config.Live
	services *api.Services
	sessions *service.SessionService
	tiles    *maptiles.Tiler
	renderer *templates.Renderer
	links    humastar.LinkSet
}

// New creates a server and opens its database.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Server, error) {
	live, err := config.NewLive(cfg.ConfigPath, log)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var renderer *templates.Renderer
	if cfg.TemplateDir != "" {
		renderer, err = templates.NewFromDir(cfg.TemplateDir)
		if err == nil {
			log.Info("loaded fragment templates", zap.String("dir", cfg.TemplateDir))
		}
	} else {
		renderer, err = templates.New()
	}
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	// A DuckDB file can only be opened once per process.
	dbCfg := db.Config{DataDir: cfg.DataDir, DBName: "rec"}
	var conn *sql.DB
	if cfg.DataDir == "" {
		conn, err = db.Open(ctx, dbCfg)
	} else {
		conn, err = db.Get(ctx, dbCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		config:   cfg,
		log:      log,
		mux:      http.NewServeMux(),
		db:       conn,
		sharedDB: cfg.DataDir != "",
		live:     live,
		renderer: renderer,
	}

	recs := service.NewRecResourceService(conn, live.Get().Facets, service.NewEventBus(), log)
	s.services = &api.Services{Rec: recs, Config: live.Get, Log: log}
	s.sessions = service.NewSessionService(sessionTTL, func() []string { return live.Get().PreservedParams })
	s.tiles = maptiles.New(recs, func() config.Tiles { return live.Get().Tiles }, log)

	humaConfig := huma.DefaultConfig("plat-rec API", "1.0.0")
	humaConfig.Info.Description = "Search recreation sites and trails, read their map features, and serve vector tiles."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s", net.JoinHostPort(cfg.Host, cfg.Port)), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer(&s.links))
	s.humaAPI = humago.New(s.mux, humaConfig)

	s.routes()
	s.handler = requestLogger(log)(s.mux)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services exposes the API services, for seeding.
func (s *Server) Services() *api.Services {
	return s.services
}

// Tiles exposes the vector tiler.
func (s *Server) Tiles() *maptiles.Tiler {
	return s.tiles
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.sharedDB {
		return db.Close()
	}
	return s.db.Close()
}

func (s *Server) routes() {
	// REST API (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)

	// Search page SSE endpoints
	ui.NewSearchHandler(s.services.Rec, s.sessions, s.live.Get, s.renderer, s.log).RegisterRoutes(s.humaAPI)

	// Links are computed from the finished OpenAPI document.
	s.links = humastar.AutoLinks(s.humaAPI, api.PathSearch)

	s.mux.Handle(maptiles.Pattern, s.tiles.Handler())

	// Page routes
	s.mux.HandleFunc("GET /search", s.handleSearchPage)
	s.mux.HandleFunc("/", s.handleRoot)
}

// Run serves until ctx is done, then shuts down gracefully. Config
// reloads, session sweeps and tile invalidation run alongside.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              net.JoinHostPort(s.config.Host, s.config.Port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		// Open SSE streams end when the server stops.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		return s.live.Watch(gctx, s.applyConfig)
	})
	g.Go(func() error {
		s.sessions.Run(gctx, sweepInterval)
		return nil
	})
	g.Go(func() error {
		s.tiles.Run(gctx, s.services.Rec.Bus())
		return nil
	})
	return g.Wait()
}

// applyConfig pushes a reloaded config into the running services.
func (s *Server) applyConfig(cfg *config.Config) {
	s.services.Rec.SetFacets(cfg.Facets)
	s.tiles.Invalidate()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.For("/health") {
		w.Header().Add("Link", link)
	}
	target := "/search"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleSearchPage serves the page shell. Its fragments are filled in by
// the /ui/search stream, driven by the page's own query string.
func (s *Server) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	signals, err := json.Marshal(map[string]any{
		ui.SignalFilter:    r.URL.Query().Get("filter"),
		ui.SignalQuery:     r.URL.RawQuery,
		ui.SignalChipParam: "",
		ui.SignalChipID:    "",
		"error":            "",
		"success":          "",
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	html, err := s.renderer.Render("search-page", map[string]string{"Signals": string(signals)})
	if err != nil {
		s.log.Error("rendering search page", zap.Error(err))
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}
