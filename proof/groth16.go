package proof

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

const (
	provingKeyFile   = "eligibility_pk.bin"
	verifyingKeyFile = "eligibility_vk.bin"
)

// Groth16 proves the eligibility statement in process on BN254.
type Groth16 struct {
	ccs     constraint.ConstraintSystem
	pk      groth16.ProvingKey
	vk      groth16.VerifyingKey
	minYear int64
}

// groth16Document is the JSON form of a proof: the curve points in the
// snarkjs layout plus the binary proof for verification.
type groth16Document struct {
	Protocol string       `json:"protocol"`
	Curve    string       `json:"curve"`
	A        [2]string    `json:"pi_a"`
	B        [2][2]string `json:"pi_b"`
	C        [2]string    `json:"pi_c"`
	Raw      string       `json:"raw"`
}

func compileEligibility() (constraint.ConstraintSystem, error) {
	var circuit EligibilityCircuit
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return nil, fmt.Errorf("compile eligibility circuit: %w", err)
	}
	return ccs, nil
}

// NewGroth16 compiles the circuit and runs a fresh setup.
func NewGroth16(minYear int64) (*Groth16, error) {
	ccs, err := compileEligibility()
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup: %w", err)
	}
	return &Groth16{ccs: ccs, pk: pk, vk: vk, minYear: minYear}, nil
}

// LoadGroth16 reads keys written by SaveKeys from dir. When dir has no keys
// it falls back to a fresh setup and reports generated=true.
func LoadGroth16(dir string, minYear int64) (g *Groth16, generated bool, err error) {
	pkFile, err := os.Open(filepath.Join(dir, provingKeyFile))
	if errors.Is(err, fs.ErrNotExist) {
		g, err = NewGroth16(minYear)
		return g, true, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("open proving key: %w", err)
	}
	defer pkFile.Close()

	vkFile, err := os.Open(filepath.Join(dir, verifyingKeyFile))
	if err != nil {
		return nil, false, fmt.Errorf("open verifying key: %w", err)
	}
	defer vkFile.Close()

	ccs, err := compileEligibility()
	if err != nil {
		return nil, false, err
	}

	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(pkFile); err != nil {
		return nil, false, fmt.Errorf("read proving key: %w", err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(vkFile); err != nil {
		return nil, false, fmt.Errorf("read verifying key: %w", err)
	}
	return &Groth16{ccs: ccs, pk: pk, vk: vk, minYear: minYear}, false, nil
}

func (g *Groth16) SaveKeys(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeKey(filepath.Join(dir, provingKeyFile), g.pk); err != nil {
		return fmt.Errorf("write proving key: %w", err)
	}
	if err := writeKey(filepath.Join(dir, verifyingKeyFile), g.vk); err != nil {
		return fmt.Errorf("write verifying key: %w", err)
	}
	return nil
}

type writerTo interface {
	WriteTo(w io.Writer) (int64, error)
}

func writeKey(path string, key writerTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := key.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (g *Groth16) Prove(ctx context.Context, in Inputs) (*Proof, error) {
	status, err := parseField("studentStatus", in.StudentStatus, true)
	if err != nil {
		return nil, err
	}
	year, err := parseField("enrollmentYear", in.EnrollmentYear, true)
	if err != nil {
		return nil, err
	}
	university, err := parseField("universityHash", in.UniversityHash, false)
	if err != nil {
		return nil, err
	}
	secret, err := parseField("userSecret", in.UserSecret, false)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	eligible := big.NewInt(0)
	if status.Cmp(big.NewInt(1)) == 0 && year.Cmp(big.NewInt(g.minYear)) >= 0 {
		eligible.SetInt64(1)
	}

	assignment := EligibilityCircuit{
		Eligible:       eligible,
		Commitment:     Commitment(university, secret),
		MinYear:        big.NewInt(g.minYear),
		StudentStatus:  status,
		EnrollmentYear: year,
		UniversityHash: university,
		UserSecret:     secret,
	}
	w, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}

	p, err := groth16.Prove(g.ccs, g.pk, w)
	if err != nil {
		return nil, fmt.Errorf("groth16 prove: %w", err)
	}

	public, err := w.Public()
	if err != nil {
		return nil, fmt.Errorf("public witness: %w", err)
	}
	vec, ok := public.Vector().(fr.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected public witness type %T", public.Vector())
	}
	signals := make([]string, len(vec))
	for i := range vec {
		signals[i] = vec[i].BigInt(new(big.Int)).String()
	}

	data, err := encodeGroth16(p)
	if err != nil {
		return nil, err
	}
	return &Proof{Data: data, PublicSignals: signals}, nil
}

func (g *Groth16) Verify(ctx context.Context, p *Proof) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p == nil || len(p.PublicSignals) != 3 {
		return false, nil
	}
	// A proof against a different minimum year says nothing about ours.
	if p.PublicSignals[2] != strconv.FormatInt(g.minYear, 10) {
		return false, nil
	}

	var doc groth16Document
	if err := json.Unmarshal(p.Data, &doc); err != nil {
		return false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(doc.Raw)
	if err != nil {
		return false, nil
	}
	gp := groth16.NewProof(ecc.BN254)
	if _, err := gp.ReadFrom(bytes.NewReader(raw)); err != nil {
		return false, nil
	}

	var public [3]*big.Int
	for i, s := range p.PublicSignals {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return false, nil
		}
		public[i] = v
	}
	assignment := EligibilityCircuit{
		Eligible:   public[0],
		Commitment: public[1],
		MinYear:    public[2],
	}
	w, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, nil
	}

	if err := groth16.Verify(gp, g.vk, w); err != nil {
		return false, nil
	}
	return true, nil
}

func encodeGroth16(p groth16.Proof) (json.RawMessage, error) {
	var raw bytes.Buffer
	if _, err := p.WriteTo(&raw); err != nil {
		return nil, fmt.Errorf("encode proof: %w", err)
	}

	doc := groth16Document{
		Protocol: "groth16",
		Curve:    "bn128",
		Raw:      base64.StdEncoding.EncodeToString(raw.Bytes()),
	}
	if bp, ok := p.(*groth16_bn254.Proof); ok {
		doc.A = [2]string{bp.Ar.X.String(), bp.Ar.Y.String()}
		doc.B = [2][2]string{
			{bp.Bs.X.A0.String(), bp.Bs.X.A1.String()},
			{bp.Bs.Y.A0.String(), bp.Bs.Y.A1.String()},
		}
		doc.C = [2]string{bp.Krs.X.String(), bp.Krs.Y.String()}
	}
	return json.Marshal(doc)
}

func parseField(name, value string, small bool) (*big.Int, error) {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative integer", ErrInputs, name)
	}
	if small && v.BitLen() > 32 {
		return nil, fmt.Errorf("%w: %s is out of range", ErrInputs, name)
	}
	return v, nil
}
