package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/berkmancenter/equalpass/types"
)

func (s *server) postRegisterBegin(c echo.Context) error {
	var req types.IdentityRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	opts, err := s.challenges.GenerateRegistrationChallenge(c.Request().Context(), req.Subject())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, opts.PublicKey)
}

func (s *server) postRegisterComplete(c echo.Context) error {
	var req types.WebAuthnCompleteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	b, err := s.challenges.CompleteRegistration(c.Request().Context(), req.Subject(), req.Credential)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, types.RegisterCompleteResponse{
		Success:      true,
		CredentialID: b.CredentialID,
		Message:      "WebAuthn credential registered successfully",
	})
}

func (s *server) postAuthenticateBegin(c echo.Context) error {
	var req types.IdentityRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	opts, err := s.challenges.GenerateAuthenticationChallenge(c.Request().Context(), req.Subject())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, opts.PublicKey)
}

func (s *server) postAuthenticateComplete(c echo.Context) error {
	var req types.WebAuthnCompleteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if _, err := s.challenges.VerifyAuthentication(c.Request().Context(), req.Subject(), req.Credential); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, types.AuthenticateCompleteResponse{
		Success:  true,
		Verified: true,
		Message:  "WebAuthn authentication successful",
	})
}

func (s *server) getWebAuthnStatus(c echo.Context) error {
	identity := c.Param("identity")
	info, err := s.challenges.CredentialInfo(c.Request().Context(), identity)
	if err != nil {
		return err
	}

	resp := types.WebAuthnStatusResponse{
		HasCredential: info.HasCredential,
		Identity:      identity,
		UserAddress:   identity,
	}
	if info.HasCredential {
		resp.CredentialID = info.CredentialID
		resp.Registered = info.RegisteredAt.UTC().Format(isoMillis)
	}
	return c.JSON(http.StatusOK, resp)
}
