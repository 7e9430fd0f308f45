package router

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/berkmancenter/equalpass/types"
	"github.com/berkmancenter/equalpass/verification"
)

type requestValidator struct {
	v *validator.Validate
}

func newValidator() *requestValidator {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(types.IdentityRequest)
		if req.Subject() == "" {
			sl.ReportError(req.Identity, "identity", "Identity", "required", "")
		}
	}, types.IdentityRequest{})
	return &requestValidator{v: v}
}

func (rv *requestValidator) Validate(i interface{}) error {
	if err := rv.v.Struct(i); err != nil {
		return fmt.Errorf("%w: %s", verification.ErrInvalidInput, err)
	}
	return nil
}

// bind decodes and validates a JSON request body.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid JSON payload", verification.ErrInvalidInput)
	}
	return c.Validate(req)
}

// UseMiddleware installs the request id, logging, recovery and CORS
// middleware shared by every route.
func UseMiddleware(e *echo.Echo, log logrus.FieldLogger, corsOrigin string) {
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
				"remote_ip":  v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	cors := middleware.CORSConfig{AllowOrigins: []string{corsOrigin}}
	if corsOrigin != "*" {
		cors.AllowCredentials = true
	}
	e.Use(middleware.CORSWithConfig(cors))
}
