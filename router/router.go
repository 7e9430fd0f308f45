package router

import (
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func RegisterRoutes(e *echo.Echo, d Deps) error {
	s, err := newServer(d)
	if err != nil {
		return err
	}

	e.Validator = newValidator()
	e.HTTPErrorHandler = errorHandler(s.log)

	e.GET("/", s.getIndex)
	e.GET("/health", getHealth)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	api := e.Group("/api", middleware.BodyLimit("64K"))
	api.GET("/contract-info", s.getContractInfo)
	api.GET("/config", s.getConfig)
	api.GET("/metadata/:tokenId", s.getMetadata)

	wa := api.Group("/webauthn")
	wa.POST("/register/begin", s.postRegisterBegin)
	wa.POST("/register/complete", s.postRegisterComplete)
	wa.POST("/authenticate/begin", s.postAuthenticateBegin)
	wa.POST("/authenticate/complete", s.postAuthenticateComplete)
	wa.GET("/status/:identity", s.getWebAuthnStatus)

	api.POST("/mint", s.postMint)
	api.POST("/verify-student", s.postVerifyStudent, middleware.BodyLimit("2K"))
	api.POST("/generate-only", s.postGenerateOnly, middleware.BodyLimit("2K"))
	api.POST("/verify-proof", s.postVerifyProof)
	api.POST("/demo-fraud", s.postDemoFraud)

	api.POST("/generate-challenge", s.postGenerateChallenge, middleware.BodyLimit("2K"))
	api.POST("/verify-ownership", s.postVerifyOwnership)
	api.GET("/verification/receipt", s.getReceipt, echojwt.WithConfig(echojwt.Config{
		SigningKey:    &s.signingKey.PublicKey,
		SigningMethod: "ES256",
	}))
	return nil
}
