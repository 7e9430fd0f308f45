package badge

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MemoryLedger is an in-process badge ledger for local development. Token
// ids start at 1 and a claim id can be used once.
type MemoryLedger struct {
	mu      sync.Mutex
	address common.Address
	issuer  common.Address
	next    uint64
	owners  map[uint64]common.Address
	infos   map[uint64]Info
	claims  map[[32]byte]uint64
	now     func() time.Time
}

func NewMemoryLedger(address, issuer common.Address) *MemoryLedger {
	return &MemoryLedger{
		address: address,
		issuer:  issuer,
		next:    1,
		owners:  make(map[uint64]common.Address),
		infos:   make(map[uint64]Info),
		claims:  make(map[[32]byte]uint64),
		now:     time.Now,
	}
}

func (l *MemoryLedger) Address() common.Address {
	return l.address
}

func (l *MemoryLedger) MintBadge(_ context.Context, to common.Address, badgeType uint8, claimID [32]byte) (MintReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id, ok := l.claims[claimID]; ok {
		return MintReceipt{}, fmt.Errorf("%w: claim already used by token %d", ErrContractCallFailed, id)
	}

	id := l.next
	l.next++
	l.owners[id] = to
	l.infos[id] = Info{BadgeType: badgeType, IssuedAt: l.now().UTC().Truncate(time.Second), Issuer: l.issuer}
	l.claims[claimID] = id

	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], id)
	txHash := crypto.Keccak256Hash(l.address.Bytes(), idBytes[:], claimID[:])

	return MintReceipt{TxHash: txHash.Hex(), TokenID: strconv.FormatUint(id, 10)}, nil
}

func (l *MemoryLedger) BalanceOf(_ context.Context, owner common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n uint64
	for _, o := range l.owners {
		if o == owner {
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) OwnerOf(_ context.Context, tokenID uint64) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.owners[tokenID]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	return o, nil
}

func (l *MemoryLedger) BadgeInfo(_ context.Context, tokenID uint64) (Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.infos[tokenID]
	if !ok {
		return Info{}, fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	return info, nil
}
