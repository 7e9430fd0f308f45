// Package proof produces and checks the zero-knowledge proof that a student
// satisfies the eligibility statement without revealing the attributes.
package proof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrProofInvalid = errors.New("proof invalid")
	ErrNotEligible  = errors.New("not eligible for a student badge")
	ErrInputs       = errors.New("invalid proof inputs")
)

// Inputs are the private attributes of the eligibility statement. Values are
// decimal strings.
type Inputs struct {
	StudentStatus  string `json:"studentStatus"`
	EnrollmentYear string `json:"enrollmentYear"`
	UniversityHash string `json:"universityHash"`
	UserSecret     string `json:"userSecret"`
}

// Proof is an opaque proof document plus its public signals. The first
// signal is the eligibility flag.
type Proof struct {
	Data          json.RawMessage `json:"proof"`
	PublicSignals []string        `json:"publicSignals"`
}

// Eligible reports whether the proof claims eligibility.
func (p *Proof) Eligible() bool {
	return p != nil && len(p.PublicSignals) > 0 && p.PublicSignals[0] == "1"
}

// Gateway is a proving system used as an opaque collaborator.
type Gateway interface {
	Prove(ctx context.Context, in Inputs) (*Proof, error)
	// Verify reports false for a proof that does not check; the error is
	// reserved for failures of the gateway itself.
	Verify(ctx context.Context, p *Proof) (bool, error)
}

type Result struct {
	Proof    *Proof
	Verified bool
	Eligible bool
}

// Process proves, verifies and applies the eligibility rule. On
// ErrNotEligible the returned result still carries the verified proof.
func Process(ctx context.Context, gw Gateway, in Inputs) (Result, error) {
	p, err := gw.Prove(ctx, in)
	if err != nil {
		if errors.Is(err, ErrInputs) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: generate: %v", ErrProofInvalid, err)
	}

	ok, err := gw.Verify(ctx, p)
	if err != nil {
		return Result{}, fmt.Errorf("%w: verify: %v", ErrProofInvalid, err)
	}
	if !ok {
		return Result{}, ErrProofInvalid
	}

	res := Result{Proof: p, Verified: true, Eligible: p.Eligible()}
	if !res.Eligible {
		return res, ErrNotEligible
	}
	return res, nil
}
