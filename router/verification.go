package router

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/berkmancenter/equalpass/proof"
	"github.com/berkmancenter/equalpass/types"
	"github.com/berkmancenter/equalpass/verification"
)

func (s *server) postMint(c echo.Context) error {
	var req types.MintRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := s.orchestrator.Mint(c.Request().Context(), verification.MintRequest{
		Identity:           req.Subject(),
		Inputs:             req.Inputs,
		WebAuthnCredential: req.WebAuthnCredential,
		RequireWebAuthn:    req.RequireWebAuthn,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, types.MintResponse{
		Success:          true,
		Verified:         res.Verified,
		Eligible:         res.Eligible,
		WebAuthnVerified: res.WebAuthnVerified,
		SecurityLevel:    res.SecurityLevel,
		TxHash:           res.TxHash,
		TokenID:          res.TokenID,
		ClaimID:          res.ClaimID,
		Proof:            res.Proof.Data,
		PublicSignals:    res.Proof.PublicSignals,
		ExplorerURL:      res.ExplorerURL,
	})
}

func (s *server) postVerifyStudent(c echo.Context) error {
	var req types.VerifyStudentRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := s.orchestrator.VerifyStudent(c.Request().Context(), req.WalletAddress)
	if errors.Is(err, verification.ErrInvalidInput) {
		return c.JSON(http.StatusBadRequest, types.StudentRejection{
			Reason:        res.Reason,
			WalletAddress: req.WalletAddress,
		})
	}
	if err != nil {
		return err
	}

	if !res.IsStudent {
		return c.JSON(http.StatusOK, types.StudentRejection{
			Reason:        res.Reason,
			WalletAddress: res.WalletAddress,
			BadgeCount:    res.TotalBadges,
			Badges:        res.AllBadges,
		})
	}

	return c.JSON(http.StatusOK, types.StudentVerification{
		IsStudent:             true,
		Verified:              true,
		WalletAddress:         res.WalletAddress,
		StudentBadges:         res.StudentBadges,
		TotalBadges:           res.TotalBadges,
		HasWebAuthn:           res.HasWebAuthn,
		SecurityLevel:         res.SecurityLevel,
		VerificationTimestamp: res.VerifiedAt.Format(isoMillis),
		ContractAddress:       s.orchestrator.ContractAddress().Hex(),
		Blockchain:            s.cfg.NetworkName,
		ExplorerBase:          s.cfg.ExplorerURL,
	})
}

func (s *server) postGenerateOnly(c echo.Context) error {
	var in proof.Inputs
	if err := bind(c, &in); err != nil {
		return err
	}
	res, err := s.orchestrator.GenerateOnly(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, types.GenerateOnlyResponse{
		Proof:         res.Proof.Data,
		PublicSignals: res.Proof.PublicSignals,
		Eligible:      res.Eligible,
	})
}

func (s *server) postVerifyProof(c echo.Context) error {
	var req types.VerifyProofRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	signals, err := proof.NormalizeSignals(req.PublicSignals)
	if err != nil {
		return fmt.Errorf("%w: proof and publicSignals required", verification.ErrInvalidInput)
	}

	ok, err := s.orchestrator.VerifyProof(c.Request().Context(), &proof.Proof{Data: req.Proof, PublicSignals: signals})
	if err != nil {
		return err
	}
	stdout := "FAILED"
	if ok {
		stdout = "OK"
	}
	return c.JSON(http.StatusOK, types.VerifyProofResponse{Verified: ok, Stdout: stdout})
}

func (s *server) postDemoFraud(c echo.Context) error {
	var req types.DemoFraudRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid JSON payload", verification.ErrInvalidInput)
	}
	s.log.Warnf("Simulating a stolen credential attempt for %s", req.Subject())

	res, err := s.orchestrator.SimulateFraud(c.Request().Context(), req.Subject(), req.StolenCredential)
	if err != nil {
		return err
	}
	if !res.FraudDetected {
		return c.JSON(http.StatusBadRequest, types.DemoFraudResponse{
			FraudDetected:  false,
			Message:        "No hay credencial real para comparar",
			Recommendation: "Registre una credencial WebAuthn primero",
		})
	}

	success := false
	return c.JSON(http.StatusOK, types.DemoFraudResponse{
		FraudDetected: true,
		FraudSuccess:  &success,
		Message:       "🚨 FRAUDE DETECTADO: Credencial válida pero dispositivo incorrecto",
		SecurityLevel: "FRAUD_PREVENTED",
		Details: &types.FraudDetails{
			HasValidCredential: res.HasValidCredential,
			HasCorrectDevice:   false,
			WebAuthnPrevented:  true,
		},
	})
}
