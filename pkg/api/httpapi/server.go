// Package httpapi exposes the booking engine over HTTP for integrations and the
// salon's admin tooling.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/workwork-1/projectbotsalon/pkg/domain/booking"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
)

// Booker is the engine surface served over HTTP.
type Booker interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	ListMasters(ctx context.Context) ([]model.Master, error)
	GetAvailableSlots(ctx context.Context, masterID int64, date string, durationMin int) ([]booking.SlotView, error)
	RegisterClient(ctx context.Context, name, phone string, externalID *int64) (int64, error)
	ResolveClient(ctx context.Context, phone string, externalID *int64) (int64, bool, error)
	ListClientBookings(ctx context.Context, clientID int64) ([]model.BookingView, error)
	CreateBooking(ctx context.Context, clientID, serviceID, masterID int64, date, startTime string) (int64, error)
	CancelBooking(ctx context.Context, id int64) error
	ListBookings(ctx context.Context, period booking.Period) ([]model.BookingView, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Port       int
	AdminToken string // empty disables the admin auth check
	// APIToken guards client and booking routes. The admin token is accepted there
	// too. With both empty the check is disabled.
	APIToken   string
}

type Server struct {
	engine Booker
	pinger Pinger
	config Config
	logger zerolog.Logger

	router *gin.Engine
}

func New(engine Booker, pinger Pinger, config Config, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine: engine,
		pinger: pinger,
		config: config,
		logger: logger.With().Str("component", "http").Logger(),
		router: gin.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/services", s.listServices)
		api.GET("/masters", s.listMasters)
		api.GET("/masters/:id/slots", s.availableSlots)

		clients := api.Group("/clients")
		clients.Use(s.bearerAuth(s.config.APIToken, s.config.AdminToken))
		{
			clients.POST("", s.registerClient)
			clients.GET("/resolve", s.resolveClient)
			clients.GET("/:id/bookings", s.clientBookings)
		}

		bookings := api.Group("/bookings")
		bookings.Use(s.bearerAuth(s.config.APIToken, s.config.AdminToken))
		{
			bookings.POST("", s.createBooking)
			bookings.POST("/:id/cancel", s.cancelBooking)
		}

		admin := api.Group("/admin")
		admin.Use(s.bearerAuth(s.config.AdminToken))
		{
			admin.GET("/bookings", s.adminBookings)
			admin.GET("/bookings/export", s.adminExport)
		}
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Int("port", s.config.Port).Msg("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		ev := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			ev = s.logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// bearerAuth lets a request through when its bearer token matches one of tokens.
// Empty tokens are ignored; with none configured every request passes.
func (s *Server) bearerAuth(tokens ...string) gin.HandlerFunc {
	var accepted []string
	for _, t := range tokens {
		if t != "" {
			accepted = append(accepted, "Bearer "+t)
		}
	}
	return func(c *gin.Context) {
		if len(accepted) == 0 {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		for _, want := range accepted {
			if subtle.ConstantTimeCompare([]byte(header), []byte(want)) == 1 {
				c.Next()
				return
			}
		}
		respondWithError(c, http.StatusUnauthorized, "unauthorized")
	}
}
