package types

import (
	"encoding/json"
	"strings"

	"github.com/berkmancenter/equalpass/badge"
	"github.com/berkmancenter/equalpass/proof"
)

// IdentityRequest carries the wallet identity. Older clients send it as
// userAddress.
type IdentityRequest struct {
	Identity    string `json:"identity"`
	UserAddress string `json:"userAddress"`
}

func (r IdentityRequest) Subject() string {
	if s := strings.TrimSpace(r.Identity); s != "" {
		return s
	}
	return strings.TrimSpace(r.UserAddress)
}

type WebAuthnCompleteRequest struct {
	IdentityRequest
	Credential json.RawMessage `json:"credential" validate:"required"`
}

type RegisterCompleteResponse struct {
	Success      bool   `json:"success"`
	CredentialID string `json:"credentialId"`
	Message      string `json:"message"`
}

type AuthenticateCompleteResponse struct {
	Success  bool   `json:"success"`
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

type WebAuthnStatusResponse struct {
	HasCredential bool   `json:"hasCredential"`
	Identity      string `json:"identity"`
	UserAddress   string `json:"userAddress"`
	CredentialID  string `json:"credentialId,omitempty"`
	Registered    string `json:"registered,omitempty"`
}

type MintRequest struct {
	IdentityRequest
	proof.Inputs
	WebAuthnCredential json.RawMessage `json:"webAuthnCredential"`
	RequireWebAuthn    bool            `json:"requireWebAuthn"`
}

type MintResponse struct {
	Success          bool            `json:"success"`
	Verified         bool            `json:"verified"`
	Eligible         bool            `json:"eligible"`
	WebAuthnVerified bool            `json:"webAuthnVerified"`
	SecurityLevel    string          `json:"securityLevel"`
	TxHash           string          `json:"txHash"`
	TokenID          string          `json:"tokenId"`
	ClaimID          string          `json:"claimId"`
	Proof            json.RawMessage `json:"proof"`
	PublicSignals    []string        `json:"publicSignals"`
	ExplorerURL      string          `json:"blockscoutUrl,omitempty"`
}

type VerifyStudentRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required"`
}

type StudentRejection struct {
	IsStudent     bool          `json:"isStudent"`
	Verified      bool          `json:"verified"`
	Reason        string        `json:"reason"`
	WalletAddress string        `json:"walletAddress"`
	BadgeCount    int           `json:"badgeCount"`
	Badges        []badge.Badge `json:"badges,omitempty"`
}

type StudentVerification struct {
	IsStudent             bool          `json:"isStudent"`
	Verified              bool          `json:"verified"`
	WalletAddress         string        `json:"walletAddress"`
	StudentBadges         []badge.Badge `json:"studentBadges"`
	TotalBadges           int           `json:"totalBadges"`
	HasWebAuthn           bool          `json:"hasWebAuthn"`
	SecurityLevel         string        `json:"securityLevel"`
	VerificationTimestamp string        `json:"verificationTimestamp"`
	ContractAddress       string        `json:"contractAddress"`
	Blockchain            string        `json:"blockchain"`
	ExplorerBase          string        `json:"explorerBase"`
}

type GenerateOnlyResponse struct {
	Proof         json.RawMessage `json:"proof"`
	PublicSignals []string        `json:"publicSignals"`
	Eligible      bool            `json:"eligible"`
}

type VerifyProofRequest struct {
	Proof         json.RawMessage `json:"proof"`
	PublicSignals json.RawMessage `json:"publicSignals"`
}

type VerifyProofResponse struct {
	Verified bool   `json:"verified"`
	Stdout   string `json:"stdout"`
}

type GenerateChallengeRequest struct {
	VerifierName string `json:"verifierName" validate:"max=128"`
	Purpose      string `json:"purpose" validate:"max=256"`
}

type GenerateChallengeResponse struct {
	ChallengeID  string   `json:"challengeId"`
	Message      string   `json:"message"`
	VerifierName string   `json:"verifierName,omitempty"`
	VerifierOrg  string   `json:"verifierOrg,omitempty"`
	Purpose      string   `json:"purpose,omitempty"`
	ExpiresAt    string   `json:"expiresAt"`
	Instructions []string `json:"instructions"`
}

type VerifyOwnershipRequest struct {
	ChallengeID       string          `json:"challengeId" validate:"required"`
	WalletAddress     string          `json:"walletAddress" validate:"required"`
	Signature         string          `json:"signature" validate:"required"`
	WebAuthnChallenge json.RawMessage `json:"webAuthnChallenge"`
}

type VerificationLevel struct {
	SignatureVerified  bool `json:"signatureVerified"`
	WalletOwnership    bool `json:"walletOwnership"`
	StudentCredentials bool `json:"studentCredentials"`
	BiometricAuth      bool `json:"biometricAuth"`
}

type VerifierInfo struct {
	VerifierName string `json:"verifierName,omitempty"`
	VerifierOrg  string `json:"verifierOrg,omitempty"`
	Purpose      string `json:"purpose,omitempty"`
	VerifiedAt   string `json:"verifiedAt"`
}

type VerifyOwnershipResponse struct {
	Verified          bool              `json:"verified"`
	IsStudent         bool              `json:"isStudent"`
	OwnershipProven   bool              `json:"ownershipProven"`
	WalletAddress     string            `json:"walletAddress"`
	StudentBadges     []badge.Badge     `json:"studentBadges"`
	TotalBadges       int               `json:"totalBadges"`
	HasWebAuthn       bool              `json:"hasWebAuthn"`
	WebAuthnVerified  bool              `json:"webAuthnVerified"`
	SecurityLevel     string            `json:"securityLevel"`
	VerificationLevel VerificationLevel `json:"verificationLevel"`
	VerifierInfo      VerifierInfo      `json:"verifierInfo"`
	Summary           string            `json:"summary"`
	ContractAddress   string            `json:"contractAddress"`
	Blockchain        string            `json:"blockchain"`
	Receipt           string            `json:"receipt,omitempty"`
}

// ReceiptClaims is what a verifier reads back from a verification receipt.
type ReceiptClaims struct {
	Wallet        string `json:"wallet"`
	IsStudent     bool   `json:"isStudent"`
	SecurityLevel string `json:"securityLevel"`
	VerifierName  string `json:"verifierName,omitempty"`
	VerifierOrg   string `json:"verifierOrg,omitempty"`
	Purpose       string `json:"purpose,omitempty"`
	IssuedAt      int64  `json:"iat"`
	ExpiresAt     int64  `json:"exp"`
}

type DemoFraudRequest struct {
	IdentityRequest
	StolenCredential json.RawMessage `json:"stolenCredential"`
}

type FraudDetails struct {
	HasValidCredential bool `json:"hasValidCredential"`
	HasCorrectDevice   bool `json:"hasCorrectDevice"`
	WebAuthnPrevented  bool `json:"webAuthnPrevented"`
}

type DemoFraudResponse struct {
	FraudDetected  bool          `json:"fraudDetected"`
	FraudSuccess   *bool         `json:"fraudSuccess,omitempty"`
	Message        string        `json:"message"`
	Recommendation string        `json:"recommendation,omitempty"`
	SecurityLevel  string        `json:"securityLevel,omitempty"`
	Details        *FraudDetails `json:"details,omitempty"`
}

type ContractInfoResponse struct {
	Address  string `json:"address"`
	Network  string `json:"network"`
	ChainID  int64  `json:"chainId"`
	Explorer string `json:"explorer"`
}

type ConfigResponse struct {
	APIBase     string `json:"API_BASE"`
	NFTBase     string `json:"NFT_BASE"`
	BackendURL  string `json:"BACKEND_URL"`
	FrontendURL string `json:"FRONTEND_URL"`
}

type MetadataAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type TokenMetadata struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Image       string              `json:"image"`
	ExternalURL string              `json:"external_url"`
	Attributes  []MetadataAttribute `json:"attributes"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
