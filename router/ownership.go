package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/berkmancenter/equalpass/challenge"
	"github.com/berkmancenter/equalpass/types"
	"github.com/berkmancenter/equalpass/verification"
)

var ownershipInstructions = []string{
	"1. Copia este mensaje exactamente",
	"2. Conecta tu wallet (MetaMask)",
	"3. Firma el mensaje con tu wallet",
	"4. Envía la firma al verificador",
}

func (s *server) postGenerateChallenge(c echo.Context) error {
	var req types.GenerateChallengeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ch, err := s.challenges.GenerateOwnershipChallenge(c.Request().Context(), challenge.OwnershipRequest{
		VerifierName: req.VerifierName,
		Purpose:      req.Purpose,
		VerifierOrg:  s.verifierOrg(c),
	})
	if err != nil {
		return err
	}
	s.log.Infof("Ownership challenge %s issued for verifier %q", ch.ID, req.VerifierName)

	return c.JSON(http.StatusOK, types.GenerateChallengeResponse{
		ChallengeID:  ch.ID,
		Message:      ch.Message,
		VerifierName: ch.Metadata.VerifierName,
		VerifierOrg:  ch.Metadata.VerifierOrg,
		Purpose:      ch.Metadata.Purpose,
		ExpiresAt:    ch.ExpiresAt(s.challenges.TTL()).UTC().Format(isoMillis),
		Instructions: ownershipInstructions,
	})
}

func (s *server) postVerifyOwnership(c echo.Context) error {
	var req types.VerifyOwnershipRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := s.orchestrator.VerifyOwnership(c.Request().Context(), verification.OwnershipRequest{
		ChallengeID:       req.ChallengeID,
		WalletAddress:     req.WalletAddress,
		Signature:         req.Signature,
		WebAuthnAssertion: req.WebAuthnChallenge,
	})
	if err != nil {
		return err
	}

	receipt, err := s.newReceipt(res)
	if err != nil {
		return err
	}

	meta := res.Challenge.Metadata
	return c.JSON(http.StatusOK, types.VerifyOwnershipResponse{
		Verified:         true,
		IsStudent:        res.IsStudent,
		OwnershipProven:  true,
		WalletAddress:    res.WalletAddress,
		StudentBadges:    res.StudentBadges,
		TotalBadges:      res.TotalBadges,
		HasWebAuthn:      res.HasWebAuthn,
		WebAuthnVerified: res.WebAuthnVerified,
		SecurityLevel:    res.SecurityLevel,
		VerificationLevel: types.VerificationLevel{
			SignatureVerified:  true,
			WalletOwnership:    true,
			StudentCredentials: res.IsStudent,
			BiometricAuth:      res.WebAuthnVerified,
		},
		VerifierInfo: types.VerifierInfo{
			VerifierName: meta.VerifierName,
			VerifierOrg:  meta.VerifierOrg,
			Purpose:      meta.Purpose,
			VerifiedAt:   res.VerifiedAt.Format(isoMillis),
		},
		Summary:         res.Summary,
		ContractAddress: s.orchestrator.ContractAddress().Hex(),
		Blockchain:      s.cfg.NetworkName,
		Receipt:         receipt,
	})
}
