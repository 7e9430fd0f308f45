package badge

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berkmancenter/equalpass/logging"
)

func TestEthereumLedger_MintedTokenID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	l, err := NewEthereumLedger(nil, contractAddr, key, big.NewInt(1337), logging.Discard())
	require.NoError(t, err)

	event := l.abi.Events[mintedEvent]
	data, err := event.Inputs.NonIndexed().Pack(StudentBadgeType, [32]byte{7})
	require.NoError(t, err)

	minted := &types.Log{
		Address: contractAddr,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(alice.Bytes()),
			common.BigToHash(big.NewInt(42)),
		},
		Data: data,
	}
	foreign := &types.Log{Address: issuerAddr, Topics: []common.Hash{event.ID}}

	receipt := &types.Receipt{Logs: []*types.Log{foreign, minted}}
	assert.Equal(t, "42", l.mintedTokenID(receipt))

	assert.Equal(t, "", l.mintedTokenID(&types.Receipt{Logs: []*types.Log{foreign}}))
}

func TestLedgerABI(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	l, err := NewEthereumLedger(nil, contractAddr, key, big.NewInt(1), logging.Discard())
	require.NoError(t, err)

	for _, m := range []string{"mintBadge", "balanceOf", "ownerOf", "badgeInfo"} {
		_, ok := l.abi.Methods[m]
		assert.True(t, ok, m)
	}
	assert.Equal(t, "mintBadge(address,uint8,bytes32)", l.abi.Methods["mintBadge"].Sig)
	assert.Equal(t, contractAddr, l.Address())
}
