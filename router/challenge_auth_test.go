package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berkmancenter/equalpass/verification"
)

func newHandlerServer(t *testing.T) (*echo.Echo, *server) {
	t.Helper()
	env := setupTestRouter(t)
	s, err := newServer(Deps{
		Orchestrator: env.orch,
		Config:       testConfig(),
	})
	require.NoError(t, err)
	return env.e, s
}

func TestGetWebAuthnStatus_Unregistered(t *testing.T) {
	e, s := newHandlerServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/webauthn/status/0xabc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("identity")
	c.SetParamValues("0xABC")

	err := s.getWebAuthnStatus(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hasCredential":false,"identity":"0xABC","userAddress":"0xABC"}`, rec.Body.String())
}

func TestPostRegisterBegin_InvalidBody(t *testing.T) {
	e, s := newHandlerServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/webauthn/register/begin", strings.NewReader("{"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := s.postRegisterBegin(c)
	assert.ErrorIs(t, err, verification.ErrInvalidInput)
}

func TestPostAuthenticateComplete_Malformed(t *testing.T) {
	e, s := newHandlerServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/webauthn/authenticate/complete",
		strings.NewReader(`{"identity":"0xabc","credential":{"id":"x"}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := s.postAuthenticateComplete(c)
	require.Error(t, err)
	status, body := classify(err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "WebAuthnVerificationFailed", body.Error)
}
