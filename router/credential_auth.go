package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/openrdap/rdap"

	"github.com/berkmancenter/equalpass/types"
	"github.com/berkmancenter/equalpass/verification"
)

func lookupOrgByIP(ip string) (*string, error) {
	client := &rdap.Client{}
	result, err := client.QueryIP(ip)
	if err != nil {
		return nil, err
	}

	if len(result.Entities) > 0 && result.Entities[0].VCard != nil {
		realName := result.Entities[0].VCard.Name()
		return &realName, nil
	}
	return &result.Name, nil
}

// verifierOrg resolves the caller's network organization when the lookup is
// enabled. Lookup failures only cost the label.
func (s *server) verifierOrg(c echo.Context) string {
	if !s.cfg.LookupVerifierOrg {
		return ""
	}
	ip := c.RealIP()
	org, err := s.lookupOrg(ip)
	if err != nil || org == nil {
		s.log.WithError(err).Warnf("Could not look up organization for %s", ip)
		return ""
	}
	return strings.TrimSpace(*org)
}

// newReceipt signs the outcome of an ownership verification so a verifier
// can present it later without repeating the check.
func (s *server) newReceipt(res verification.OwnershipResult) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":           strings.ToLower(res.WalletAddress),
		"isStudent":     res.IsStudent,
		"securityLevel": res.SecurityLevel,
		"exp":           now.Add(s.cfg.ReceiptTTL).Unix(),
		"iat":           now.Unix(),
	}
	meta := res.Challenge.Metadata
	if meta.VerifierName != "" {
		claims["verifierName"] = meta.VerifierName
	}
	if meta.VerifierOrg != "" {
		claims["verifierOrg"] = meta.VerifierOrg
	}
	if meta.Purpose != "" {
		claims["purpose"] = meta.Purpose
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return signed, nil
}

func (s *server) getReceipt(c echo.Context) error {
	user, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing receipt")
	}
	claims, ok := user.Claims.(jwt.MapClaims)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid receipt")
	}

	out := types.ReceiptClaims{}
	out.Wallet, _ = claims.GetSubject()
	out.IsStudent, _ = claims["isStudent"].(bool)
	out.SecurityLevel, _ = claims["securityLevel"].(string)
	out.VerifierName, _ = claims["verifierName"].(string)
	out.VerifierOrg, _ = claims["verifierOrg"].(string)
	out.Purpose, _ = claims["purpose"].(string)
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Unix()
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Unix()
	}
	return c.JSON(http.StatusOK, out)
}
