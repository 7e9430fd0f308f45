package proof

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	frmimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// EligibilityCircuit proves that Eligible is 1 exactly when the student
// status is 1 and the enrollment year is at least MinYear, and binds the
// proof to the student's university and secret through Commitment.
type EligibilityCircuit struct {
	// Public inputs, in signal order.
	Eligible   frontend.Variable `gnark:",public"`
	Commitment frontend.Variable `gnark:",public"`
	MinYear    frontend.Variable `gnark:",public"`

	StudentStatus  frontend.Variable
	EnrollmentYear frontend.Variable
	UniversityHash frontend.Variable
	UserSecret     frontend.Variable
}

func (c *EligibilityCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.UniversityHash, c.UserSecret)
	api.AssertIsEqual(h.Sum(), c.Commitment)

	isStudent := api.IsZero(api.Sub(c.StudentStatus, 1))
	// Cmp is -1 only when the year is below the minimum.
	belowMin := api.IsZero(api.Add(api.Cmp(c.EnrollmentYear, c.MinYear), 1))
	recent := api.Sub(1, belowMin)

	api.AssertIsEqual(c.Eligible, api.Mul(isStudent, recent))
	return nil
}

// Commitment computes MiMC(universityHash, userSecret) natively, matching the
// in-circuit hash.
func Commitment(universityHash, userSecret *big.Int) *big.Int {
	h := frmimc.NewMiMC()
	for _, x := range []*big.Int{universityHash, userSecret} {
		var fe fr.Element
		fe.SetBigInt(x)
		b := fe.Bytes()
		h.Write(b[:])
	}

	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out.BigInt(new(big.Int))
}
