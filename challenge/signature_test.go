package challenge

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personalSign(t *testing.T, message string) (string, string, []byte) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(sig), sig
}

func TestVerifyMessageSignature(t *testing.T) {
	msg := "ZK-Scholar Verificación\nCódigo: abc"
	addr, _, raw := personalSign(t, msg)

	wallet := append([]byte{}, raw...)
	wallet[64] += 27

	assert.NoError(t, VerifyMessageSignature(msg, hexutil.Encode(raw), addr))
	assert.NoError(t, VerifyMessageSignature(msg, hexutil.Encode(wallet), addr))
	// case-insensitive address comparison
	assert.NoError(t, VerifyMessageSignature(msg, hexutil.Encode(wallet), normalizeIdentity(addr)))
}

func TestVerifyMessageSignature_Tampered(t *testing.T) {
	msg := "ZK-Scholar Verificación\nCódigo: abc"
	addr, sig, raw := personalSign(t, msg)

	tampered := append([]byte{}, raw...)
	tampered[10] ^= 0xff

	assert.ErrorIs(t, VerifyMessageSignature(msg, hexutil.Encode(tampered), addr), ErrSignatureMismatch)
	assert.ErrorIs(t, VerifyMessageSignature(msg+" ", sig, addr), ErrSignatureMismatch)
	assert.ErrorIs(t, VerifyMessageSignature(msg, sig, "0x0000000000000000000000000000000000000001"), ErrSignatureMismatch)
}

func TestVerifyMessageSignature_Malformed(t *testing.T) {
	assert.ErrorIs(t, VerifyMessageSignature("m", "not-hex", "0x01"), ErrSignatureMismatch)
	assert.ErrorIs(t, VerifyMessageSignature("m", "0xdeadbeef", "0x01"), ErrSignatureMismatch)
}
