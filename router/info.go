package router

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/berkmancenter/equalpass/types"
	"github.com/berkmancenter/equalpass/verification"
)

const badgeDescription = "Credencial estudiantil verificada con Zero-Knowledge Proofs y WebAuthn. " +
	"Esta insignia demuestra que el portador es un estudiante verificado sin revelar información personal."

func (s *server) getIndex(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":  "ZK-Scholar Backend funcionando!",
		"services": []string{"WebAuthn", "Zero-Knowledge", "Smart Contracts", "Challenge System"},
		"endpoints": map[string]string{
			"webauthn":     "/api/webauthn/*",
			"verification": "/api/verify-student, /api/mint, /api/generate-only, /api/verify-proof",
			"challenges":   "/api/generate-challenge, /api/verify-ownership",
			"contractInfo": "/api/contract-info",
		},
	})
}

func (s *server) getContractInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, types.ContractInfoResponse{
		Address:  s.orchestrator.ContractAddress().Hex(),
		Network:  s.cfg.NetworkName,
		ChainID:  s.cfg.ChainID,
		Explorer: s.cfg.ExplorerURL,
	})
}

func (s *server) getConfig(c echo.Context) error {
	backend := strings.TrimRight(s.cfg.BackendURL, "/")
	return c.JSON(http.StatusOK, types.ConfigResponse{
		APIBase:     backend + "/api",
		NFTBase:     backend,
		BackendURL:  backend,
		FrontendURL: s.cfg.FrontendURL,
	})
}

// getMetadata serves ERC-721 style metadata for a badge. The issue date
// comes from the ledger when the token can be read.
func (s *server) getMetadata(c echo.Context) error {
	raw := c.Param("tokenId")
	tokenID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || tokenID == 0 {
		return fmt.Errorf("%w: tokenId must be a positive integer", verification.ErrInvalidInput)
	}

	issued := s.now().UTC()
	if info, err := s.orchestrator.BadgeInfo(c.Request().Context(), tokenID); err == nil {
		issued = info.IssuedAt.UTC()
	} else {
		s.log.WithError(err).Debugf("Metadata for token %d without ledger data", tokenID)
	}

	backend := strings.TrimRight(s.cfg.BackendURL, "/")
	return c.JSON(http.StatusOK, types.TokenMetadata{
		Name:        "ZK-Scholar Student Badge #" + raw,
		Description: badgeDescription,
		Image:       backend + "/nft/nft.png",
		ExternalURL: backend + "/verificador",
		Attributes: []types.MetadataAttribute{
			{TraitType: "Badge Type", Value: "Student Credential"},
			{TraitType: "Security Level", Value: "High"},
			{TraitType: "Verification Method", Value: "Zero-Knowledge + WebAuthn"},
			{TraitType: "Network", Value: "Polkadot"},
			{TraitType: "Issued At", Value: issued.Format("2006-01-02")},
		},
	})
}

func getHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
