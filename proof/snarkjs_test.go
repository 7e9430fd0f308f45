package proof

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berkmancenter/equalpass/logging"
)

// fakeSnarkJS mimics the three snarkjs subcommands: the witness is the input
// copied verbatim and the first public signal echoes studentStatus.
const fakeSnarkJS = `#!/bin/sh
case "$1 $2" in
"wtns calculate")
	[ -f "$3" ] || { echo "missing wasm $3" >&2; exit 2; }
	cp "$4" "$5" ;;
"groth16 prove")
	status=$(sed -n 's/.*"studentStatus":"\([0-9]*\)".*/\1/p' "$4")
	echo '{"pi_a":["1","2","1"],"protocol":"groth16"}' > "$5"
	echo "[\"$status\",\"42\"]" > "$6" ;;
"groth16 verify")
	if grep -q pi_a "$5"; then echo "[INFO]  snarkJS: OK!"; else echo "[ERROR] snarkJS: Invalid proof"; exit 1; fi ;;
"sleep now")
	sleep 5 ;;
esac
`

func newFakeSnarkJS(t *testing.T) *SnarkJS {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stand-in needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "snarkjs")
	require.NoError(t, os.WriteFile(bin, []byte(fakeSnarkJS), 0o755))

	circuits := filepath.Join(dir, "circuits")
	require.NoError(t, os.MkdirAll(filepath.Join(circuits, "eligibility_js"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(circuits, "eligibility_js", "eligibility.wasm"), []byte("wasm"), 0o644))

	return &SnarkJS{
		Bin:         bin,
		CircuitsDir: circuits,
		WasmFile:    "eligibility_js/eligibility.wasm",
		ZkeyFile:    "eligibility.zkey",
		VkeyFile:    "verification_key.json",
		Timeout:     10 * time.Second,
		Log:         logging.Discard(),
	}
}

func TestSnarkJS_ProveAndVerify(t *testing.T) {
	s := newFakeSnarkJS(t)
	ctx := context.Background()

	p, err := s.Prove(ctx, Inputs{StudentStatus: "1", EnrollmentYear: "2021", UniversityHash: "1", UserSecret: "2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "42"}, p.PublicSignals)
	assert.True(t, p.Eligible())

	ok, err := s.Verify(ctx, p)
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := Process(ctx, s, Inputs{StudentStatus: "0", EnrollmentYear: "2021", UniversityHash: "1", UserSecret: "2"})
	assert.ErrorIs(t, err, ErrNotEligible)
	assert.True(t, res.Verified)

	// work directories are removed
	entries, err := os.ReadDir(s.CircuitsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSnarkJS_VerifyRejects(t *testing.T) {
	s := newFakeSnarkJS(t)

	ok, err := s.Verify(context.Background(), &Proof{Data: []byte(`{"other":1}`), PublicSignals: []string{"1"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnarkJS_MissingCircuit(t *testing.T) {
	s := newFakeSnarkJS(t)
	s.WasmFile = "missing.wasm"

	_, err := s.Prove(context.Background(), Inputs{StudentStatus: "1"})
	assert.ErrorContains(t, err, "missing wasm")
}

func TestSnarkJS_Timeout(t *testing.T) {
	s := newFakeSnarkJS(t)
	s.Timeout = 100 * time.Millisecond

	_, err := s.run(context.Background(), s.CircuitsDir, "sleep", "now")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
