package server

import (
	"net/http"
	"time"

	"github.com/berfenger/growatt2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type chargeModeResponse struct {
	Mode      string     `json:"mode"`
	Payload   string     `json:"payload"`
	LastPoll  *time.Time `json:"last_poll,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog && s.logger != nil {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogURI:     true,
			LogStatus:  true,
			LogLatency: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				s.logger.Info("request", zap.String("uri", v.URI), zap.Int("status", v.Status),
					zap.Duration("latency", v.Latency))
				return nil
			},
		}))
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/charge_mode", s.ChargeModeHandler)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, HEALTH_TIMEOUT).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ChargeModeHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetChargeModeStateRequest{}, CHARGE_MODE_TIMEOUT).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	state, ok := res.(domain.GetChargeModeStateResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	resp := chargeModeResponse{
		Mode:      state.Mode.String(),
		Payload:   state.Payload,
		LastError: state.LastError,
	}
	if !state.LastPoll.IsZero() {
		resp.LastPoll = &state.LastPoll
	}
	return c.JSON(http.StatusOK, resp)
}
