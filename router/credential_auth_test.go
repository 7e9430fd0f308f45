package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berkmancenter/equalpass/challenge"
	"github.com/berkmancenter/equalpass/logging"
	"github.com/berkmancenter/equalpass/verification"
)

func TestLookupOrgByIP_Success(t *testing.T) {
	if os.Getenv("EQUALPASS_TEST_RDAP") == "" {
		t.Skip("EQUALPASS_TEST_RDAP not set")
	}
	org, err := lookupOrgByIP("8.8.8.8")
	assert.NoError(t, err)
	assert.Equal(t, "Google LLC", *org)
}

func TestLookupOrgByIP_Failure(t *testing.T) {
	org, err := lookupOrgByIP("fail")
	assert.Error(t, err)
	assert.Nil(t, org)
}

func TestVerifierOrg(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/generate-challenge", nil)
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.7")
	c := e.NewContext(req, httptest.NewRecorder())

	var asked string
	s := &server{log: logging.Discard(), cfg: testConfig()}
	s.lookupOrg = func(ip string) (*string, error) {
		asked = ip
		org := "  Example University "
		return &org, nil
	}
	assert.Equal(t, "Example University", s.verifierOrg(c))
	assert.Equal(t, "203.0.113.7", asked)

	s.lookupOrg = func(string) (*string, error) { return nil, errors.New("rdap down") }
	assert.Equal(t, "", s.verifierOrg(c))

	s.cfg.LookupVerifierOrg = false
	s.lookupOrg = func(string) (*string, error) {
		t.Fatal("lookup must not run when disabled")
		return nil, nil
	}
	assert.Equal(t, "", s.verifierOrg(c))
}

func TestNewReceipt(t *testing.T) {
	key, err := createKeys()
	require.NoError(t, err)
	issued := time.Now().Truncate(time.Second)
	s := &server{signingKey: key, cfg: testConfig(), now: func() time.Time { return issued }}

	signed, err := s.newReceipt(verification.OwnershipResult{
		WalletAddress: "0xAbC0000000000000000000000000000000000001",
		IsStudent:     true,
		SecurityLevel: verification.LevelMaximum,
		Challenge: challenge.Challenge{Metadata: challenge.Metadata{
			VerifierName: "Biblioteca",
			VerifierOrg:  "Example University",
		}},
	})
	require.NoError(t, err)

	token, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", claims["sub"])
	assert.Equal(t, true, claims["isStudent"])
	assert.Equal(t, "MAXIMUM", claims["securityLevel"])
	assert.Equal(t, "Biblioteca", claims["verifierName"])
	assert.Equal(t, "Example University", claims["verifierOrg"])
	_, hasPurpose := claims["purpose"]
	assert.False(t, hasPurpose)

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.Equal(t, issued.Add(time.Hour).Unix(), exp.Unix())
}
