// Package verification composes challenges, proofs and the badge ledger
// into the mint, student check and ownership flows.
package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/berkmancenter/equalpass/badge"
	"github.com/berkmancenter/equalpass/challenge"
	"github.com/berkmancenter/equalpass/metrics"
	"github.com/berkmancenter/equalpass/proof"
)

const (
	LevelStandard = "STANDARD"
	LevelHigh     = "HIGH"
	LevelMaximum  = "MAXIMUM"
)

var (
	ErrWebAuthnRequired = errors.New("webauthn credential required")
	ErrInvalidInput     = errors.New("invalid input")
)

type Options struct {
	ExplorerURL string
	Logger      logrus.FieldLogger
	Metrics     *metrics.Recorder
	Clock       func() time.Time
}

type Orchestrator struct {
	challenges *challenge.Service
	prover     proof.Gateway
	badges     *badge.Service

	explorerURL string
	log         logrus.FieldLogger
	metrics     *metrics.Recorder
	now         func() time.Time
}

func New(challenges *challenge.Service, prover proof.Gateway, badges *badge.Service, opts Options) *Orchestrator {
	o := &Orchestrator{
		challenges:  challenges,
		prover:      prover,
		badges:      badges,
		explorerURL: strings.TrimRight(opts.ExplorerURL, "/"),
		log:         opts.Logger,
		metrics:     opts.Metrics,
		now:         opts.Clock,
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

func (o *Orchestrator) Prover() proof.Gateway {
	return o.prover
}

func (o *Orchestrator) Challenges() *challenge.Service {
	return o.challenges
}

// ContractAddress is the address of the badge contract behind the ledger.
func (o *Orchestrator) ContractAddress() common.Address {
	return o.badges.Ledger().Address()
}

func (o *Orchestrator) BadgeInfo(ctx context.Context, tokenID uint64) (badge.Info, error) {
	return o.badges.Ledger().BadgeInfo(ctx, tokenID)
}

type MintRequest struct {
	Identity           string
	Inputs             proof.Inputs
	WebAuthnCredential json.RawMessage
	RequireWebAuthn    bool
}

type MintResult struct {
	Verified         bool
	Eligible         bool
	WebAuthnVerified bool
	SecurityLevel    string
	TxHash           string
	TokenID          string
	ClaimID          string
	Proof            *proof.Proof
	ExplorerURL      string
}

// Mint proves eligibility and mints a student badge to the identity. When an
// assertion is supplied, or required, it must verify against the identity's
// bound credential before any proof work starts.
func (o *Orchestrator) Mint(ctx context.Context, req MintRequest) (MintResult, error) {
	if !common.IsHexAddress(req.Identity) {
		return MintResult{}, fmt.Errorf("%w: identity must be a wallet address", ErrInvalidInput)
	}
	logger := o.log.WithField("identity", req.Identity)

	webAuthnVerified := false
	hasAssertion := present(req.WebAuthnCredential)
	if req.RequireWebAuthn || hasAssertion {
		if !hasAssertion {
			return MintResult{}, ErrWebAuthnRequired
		}
		has, err := o.challenges.HasCredential(ctx, req.Identity)
		if err != nil {
			return MintResult{}, err
		}
		if !has {
			return MintResult{}, challenge.ErrNoCredentialRegistered
		}
		if _, err := o.challenges.VerifyAuthentication(ctx, req.Identity, req.WebAuthnCredential); err != nil {
			return MintResult{}, err
		}
		webAuthnVerified = true
		logger.Info("WebAuthn assertion verified")
	}

	res, err := proof.Process(ctx, o.prover, req.Inputs)
	if err != nil {
		return MintResult{}, err
	}
	claimID, err := proof.ClaimID(res.Proof)
	if err != nil {
		return MintResult{}, err
	}

	receipt, err := o.badges.Mint(ctx, common.HexToAddress(req.Identity), common.HexToHash(claimID))
	if err != nil {
		return MintResult{}, err
	}

	level := LevelStandard
	if webAuthnVerified {
		level = LevelHigh
	}
	o.metrics.BadgeMinted(level)
	logger.Infof("Minted badge %s in %s (%s)", receipt.TokenID, receipt.TxHash, level)

	return MintResult{
		Verified:         res.Verified,
		Eligible:         res.Eligible,
		WebAuthnVerified: webAuthnVerified,
		SecurityLevel:    level,
		TxHash:           receipt.TxHash,
		TokenID:          receipt.TokenID,
		ClaimID:          claimID,
		Proof:            res.Proof,
		ExplorerURL:      o.txURL(receipt.TxHash),
	}, nil
}

type StudentResult struct {
	WalletAddress string
	IsStudent     bool
	Reason        string
	TotalBadges   int
	StudentBadges []badge.Badge
	AllBadges     []badge.Badge
	HasWebAuthn   bool
	SecurityLevel string
	VerifiedAt    time.Time
}

// VerifyStudent reads the wallet's badges. Possession of a registered
// authenticator raises the security level but is not checked here.
func (o *Orchestrator) VerifyStudent(ctx context.Context, wallet string) (StudentResult, error) {
	if !common.IsHexAddress(wallet) {
		return StudentResult{WalletAddress: wallet, Reason: ReasonInvalidAddress}, ErrInvalidInput
	}

	status, err := o.badges.VerifyStudent(ctx, common.HexToAddress(wallet))
	if err != nil {
		return StudentResult{}, err
	}

	res := StudentResult{
		WalletAddress: wallet,
		IsStudent:     status.IsStudent,
		TotalBadges:   status.TotalBadges,
		StudentBadges: status.StudentBadges,
		AllBadges:     status.AllBadges,
		VerifiedAt:    o.now().UTC(),
	}
	if !status.IsStudent {
		res.Reason = ReasonNoBadges
		if status.TotalBadges > 0 {
			res.Reason = ReasonNoStudentBadge
		}
		return res, nil
	}

	res.HasWebAuthn, err = o.challenges.HasCredential(ctx, wallet)
	if err != nil {
		return StudentResult{}, err
	}
	res.SecurityLevel = LevelStandard
	if res.HasWebAuthn {
		res.SecurityLevel = LevelHigh
	}
	return res, nil
}

const (
	ReasonInvalidAddress = "Dirección de wallet inválida"
	ReasonNoStudentBadge = "Tiene badges pero no de estudiante"
	ReasonNoBadges       = "No tiene badges en el sistema ZK-Scholar"

	summaryStudent    = "✅ ESTUDIANTE VERIFICADO - Propiedad de wallet confirmada con firma digital"
	summaryNotStudent = "❌ NO ES ESTUDIANTE - Wallet válida pero sin credenciales de estudiante"
)

type OwnershipRequest struct {
	ChallengeID       string
	WalletAddress     string
	Signature         string
	WebAuthnAssertion json.RawMessage
}

type OwnershipResult struct {
	WalletAddress    string
	IsStudent        bool
	StudentBadges    []badge.Badge
	TotalBadges      int
	HasWebAuthn      bool
	WebAuthnVerified bool
	SecurityLevel    string
	Summary          string
	Challenge        challenge.Challenge
	VerifiedAt       time.Time
}

// VerifyOwnership checks a signed ownership challenge and reports the
// wallet's student badges. MAXIMUM requires an assertion that verifies
// against the wallet's bound credential; a supplied assertion that fails
// fails the whole verification.
func (o *Orchestrator) VerifyOwnership(ctx context.Context, req OwnershipRequest) (OwnershipResult, error) {
	if !common.IsHexAddress(req.WalletAddress) {
		return OwnershipResult{}, fmt.Errorf("%w: %s", ErrInvalidInput, ReasonInvalidAddress)
	}

	ch, err := o.challenges.ValidateChallenge(ctx, req.ChallengeID, challenge.KindOwnership)
	if err != nil {
		return OwnershipResult{}, err
	}
	if err := challenge.VerifyMessageSignature(ch.Message, req.Signature, req.WalletAddress); err != nil {
		o.metrics.OwnershipVerified("signature_mismatch")
		return OwnershipResult{}, err
	}

	hasWebAuthn, err := o.challenges.HasCredential(ctx, req.WalletAddress)
	if err != nil {
		return OwnershipResult{}, err
	}
	webAuthnVerified := false
	if hasWebAuthn && present(req.WebAuthnAssertion) {
		if _, err := o.challenges.VerifyAuthentication(ctx, req.WalletAddress, req.WebAuthnAssertion); err != nil {
			return OwnershipResult{}, err
		}
		webAuthnVerified = true
	}

	if err := o.challenges.Consume(ctx, ch); err != nil {
		return OwnershipResult{}, err
	}

	status, err := o.badges.VerifyStudent(ctx, common.HexToAddress(req.WalletAddress))
	if err != nil {
		return OwnershipResult{}, err
	}

	level := LevelStandard
	switch {
	case webAuthnVerified:
		level = LevelMaximum
	case hasWebAuthn:
		level = LevelHigh
	}
	summary := summaryNotStudent
	outcome := "not_student"
	if status.IsStudent {
		summary = summaryStudent
		outcome = "student"
	}
	o.metrics.OwnershipVerified(outcome)
	o.log.WithField("wallet", req.WalletAddress).Infof("Ownership verified (%s, %s)", outcome, level)

	return OwnershipResult{
		WalletAddress:    req.WalletAddress,
		IsStudent:        status.IsStudent,
		StudentBadges:    status.StudentBadges,
		TotalBadges:      status.TotalBadges,
		HasWebAuthn:      hasWebAuthn,
		WebAuthnVerified: webAuthnVerified,
		SecurityLevel:    level,
		Summary:          summary,
		Challenge:        ch,
		VerifiedAt:       o.now().UTC(),
	}, nil
}

type FraudResult struct {
	FraudDetected      bool
	HasRealCredential  bool
	HasValidCredential bool
}

// SimulateFraud narrates a stolen-credential attempt for the demo UI. It
// performs no verification: with a bound credential the outcome is always
// "detected and prevented".
func (o *Orchestrator) SimulateFraud(ctx context.Context, identity string, stolenCredential json.RawMessage) (FraudResult, error) {
	has, err := o.challenges.HasCredential(ctx, identity)
	if err != nil {
		return FraudResult{}, err
	}
	return FraudResult{
		FraudDetected:      has,
		HasRealCredential:  has,
		HasValidCredential: present(stolenCredential),
	}, nil
}

// GenerateOnly proves and verifies without minting. An ineligible student
// still gets the proof back.
func (o *Orchestrator) GenerateOnly(ctx context.Context, in proof.Inputs) (proof.Result, error) {
	res, err := proof.Process(ctx, o.prover, in)
	if errors.Is(err, proof.ErrNotEligible) {
		return res, nil
	}
	return res, err
}

func (o *Orchestrator) VerifyProof(ctx context.Context, p *proof.Proof) (bool, error) {
	if p == nil || !present(p.Data) {
		return false, fmt.Errorf("%w: proof and publicSignals required", ErrInvalidInput)
	}
	return o.prover.Verify(ctx, p)
}

func (o *Orchestrator) txURL(txHash string) string {
	if o.explorerURL == "" || txHash == "" {
		return ""
	}
	return o.explorerURL + "/tx/" + txHash
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null")) && !bytes.Equal(raw, []byte(`""`))
}
