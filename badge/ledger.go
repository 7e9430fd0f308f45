// Package badge mints and enumerates the non-transferable student badges
// kept by the badge ledger contract.
package badge

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StudentBadgeType is the badge type minted for verified students.
const StudentBadgeType uint8 = 1

var (
	ErrContractCallFailed = errors.New("contract call failed")
	ErrTokenNotFound      = errors.New("token does not exist")
)

type Info struct {
	BadgeType uint8
	IssuedAt  time.Time
	Issuer    common.Address
}

type MintReceipt struct {
	TxHash  string
	TokenID string
}

// Ledger is the badge contract. Implementations wrap failures in
// ErrContractCallFailed.
type Ledger interface {
	MintBadge(ctx context.Context, to common.Address, badgeType uint8, claimID [32]byte) (MintReceipt, error)
	BalanceOf(ctx context.Context, owner common.Address) (uint64, error)
	OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error)
	BadgeInfo(ctx context.Context, tokenID uint64) (Info, error)
	Address() common.Address
}
