package router

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/berkmancenter/equalpass/badge"
	"github.com/berkmancenter/equalpass/challenge"
	"github.com/berkmancenter/equalpass/proof"
	"github.com/berkmancenter/equalpass/types"
	"github.com/berkmancenter/equalpass/verification"
)

type errorKind struct {
	target  error
	status  int
	kind    string
	details any
}

// errorKinds maps domain errors onto HTTP statuses. The first match wins.
var errorKinds = []errorKind{
	{verification.ErrInvalidInput, http.StatusBadRequest, "InvalidInput", nil},
	{challenge.ErrInvalidIdentity, http.StatusBadRequest, "InvalidInput", nil},
	{proof.ErrInputs, http.StatusBadRequest, "InvalidInput", nil},
	{challenge.ErrChallengeNotFound, http.StatusBadRequest, "ChallengeNotFound", nil},
	{challenge.ErrChallengeExpired, http.StatusGone, "ChallengeExpired", nil},
	{challenge.ErrChallengeIdentityMismatch, http.StatusForbidden, "ChallengeIdentityMismatch", nil},
	{challenge.ErrNoCredentialRegistered, http.StatusNotFound, "NoCredentialRegistered", map[string]bool{"requiresRegistration": true}},
	{verification.ErrWebAuthnRequired, http.StatusUnauthorized, "WebAuthnRequired", map[string]bool{"requiresWebAuthn": true}},
	{challenge.ErrWebAuthnVerification, http.StatusUnauthorized, "WebAuthnVerificationFailed", nil},
	{challenge.ErrSignatureMismatch, http.StatusUnauthorized, "SignatureMismatch", nil},
	{proof.ErrProofInvalid, http.StatusUnprocessableEntity, "ProofInvalid", nil},
	{proof.ErrNotEligible, http.StatusForbidden, "NotEligible", nil},
	{badge.ErrContractCallFailed, http.StatusBadGateway, "ContractCallFailed", nil},
	{badge.ErrTokenNotFound, http.StatusNotFound, "TokenNotFound", nil},
}

func classify(err error) (int, types.ErrorResponse) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, types.ErrorResponse{Error: k.kind, Message: err.Error(), Details: k.details}
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		return he.Code, types.ErrorResponse{Error: httpKind(he.Code), Message: msg}
	}

	return http.StatusInternalServerError, types.ErrorResponse{Error: "Internal", Message: "internal server error"}
}

func httpKind(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "InvalidInput"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusNotFound:
		return "NotFound"
	case http.StatusMethodNotAllowed:
		return "MethodNotAllowed"
	case http.StatusRequestEntityTooLarge:
		return "PayloadTooLarge"
	}
	if status >= http.StatusInternalServerError {
		return "Internal"
	}
	return http.StatusText(status)
}

// errorHandler renders handler errors as JSON and logs server-side failures.
func errorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := classify(err)
		if status >= http.StatusInternalServerError {
			log.WithFields(logrus.Fields{
				"method":     c.Request().Method,
				"uri":        c.Request().RequestURI,
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}).WithError(err).Error(body.Error)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.WithError(err).Warn("Could not write error response")
		}
	}
}
