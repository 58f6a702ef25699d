// Package server exposes the de-identification engine over HTTP.
//
//	POST /v1/deidentify   bundle in, {runId, document, entities, summary} out
//	POST /v1/scan         bundle in, audit report out (?format=json|csv|sarif|...)
//	GET  /healthz
//
// Bundles may be sent as JSON or, with a YAML content type, as YAML.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dshills/phiscrub/internal/auditstore"
	"github.com/dshills/phiscrub/internal/deid"
	"github.com/dshills/phiscrub/internal/fhirdoc"
	"github.com/dshills/phiscrub/internal/output"
)

const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Addr      string
	BodyLimit string
	// Sink, when set, receives the audit rows of every run.
	Sink auditstore.Sink
}

// Server is the HTTP front end.
type Server struct {
	echo   *echo.Echo
	engine *deid.Engine
	logger zerolog.Logger
	sink   auditstore.Sink
	addr   string
}

// New builds a server around engine.
func New(engine *deid.Engine, logger zerolog.Logger, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, engine: engine, logger: logger, sink: opts.Sink, addr: opts.Addr}
	if s.addr == "" {
		s.addr = ":8080"
	}

	e.Use(Recovery(logger))
	e.Use(RequestID())
	e.Use(Logger(logger))
	e.Use(BodyLimit(opts.BodyLimit))

	e.GET("/healthz", s.health)
	v1 := e.Group("/v1")
	v1.POST("/deidentify", s.deidentify)
	v1.POST("/scan", s.scan)
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("server listening")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

type deidentifyResponse struct {
	RunID    string          `json:"runId"`
	Document *fhirdoc.Node   `json:"document"`
	Entities []deid.AuditRow `json:"entities"`
	Summary  deid.Summary    `json:"summary"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":     "ok",
		"classifier": s.engine.ClassifierName(),
	})
}

func (s *Server) deidentify(c echo.Context) error {
	report, err := s.run(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, deidentifyResponse{
		RunID:    report.RunID,
		Document: report.Document,
		Entities: report.Entities,
		Summary:  report.Summary,
	})
}

func (s *Server) scan(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = "json"
	}
	w, err := output.GetWriter(format)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	report, err := s.run(c)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentType, contentType(format))
	c.Response().WriteHeader(http.StatusOK)
	return w.Write(c.Response(), report)
}

// run decodes the request body and runs the engine. Errors come back as
// *echo.HTTPError.
func (s *Server) run(c echo.Context) (*deid.Report, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, "reading request body")
	}

	var doc *fhirdoc.Node
	if strings.Contains(c.Request().Header.Get(echo.HeaderContentType), "yaml") {
		doc, err = fhirdoc.ParseYAML(body)
	} else {
		doc, err = fhirdoc.Parse(body)
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	report, err := s.engine.Run(ctx, doc)
	if err != nil {
		if fhirdoc.IsParseError(err) {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return nil, fmt.Errorf("de-identify: %w", err)
	}

	if s.sink != nil {
		if err := s.sink.Save(ctx, report.RunID, report.Entities); err != nil {
			return nil, fmt.Errorf("saving audit rows: %w", err)
		}
	}
	return report, nil
}

func contentType(format string) string {
	switch format {
	case "json", "sarif":
		return echo.MIMEApplicationJSON
	case "csv":
		return "text/csv; charset=utf-8"
	case "markdown", "md":
		return "text/markdown; charset=utf-8"
	default:
		return echo.MIMETextPlainCharsetUTF8
	}
}
