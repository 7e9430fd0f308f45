package badge

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxTokenSearch = 100
	DefaultScanWindow     = 4

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

type Badge struct {
	TokenID        string `json:"tokenId"`
	BadgeType      string `json:"badgeType"`
	IssuedAt       string `json:"issuedAt"`
	Issuer         string `json:"issuer"`
	Owner          string `json:"owner"`
	IsStudentBadge bool   `json:"isStudentBadge"`
}

type StudentStatus struct {
	IsStudent     bool
	TotalBadges   int
	StudentBadges []Badge
	AllBadges     []Badge
}

// Service enumerates badges on top of a Ledger. The contract has no owner
// index, so badges are found by scanning token ids from 1.
type Service struct {
	ledger         Ledger
	maxTokenSearch uint64
	window         int
	log            logrus.FieldLogger
}

func NewService(ledger Ledger, maxTokenSearch, window int, log logrus.FieldLogger) *Service {
	if maxTokenSearch <= 0 {
		maxTokenSearch = DefaultMaxTokenSearch
	}
	if window <= 0 {
		window = DefaultScanWindow
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{ledger: ledger, maxTokenSearch: uint64(maxTokenSearch), window: window, log: log}
}

func (s *Service) Ledger() Ledger {
	return s.ledger
}

// Mint mints a student badge to owner under claimID.
func (s *Service) Mint(ctx context.Context, owner common.Address, claimID [32]byte) (MintReceipt, error) {
	return s.ledger.MintBadge(ctx, owner, StudentBadgeType, claimID)
}

// FindBadges returns owner's badges in token id order. The scan stops once
// the owner's balance is reached or at the token search limit; tokens that
// cannot be read are skipped.
func (s *Service) FindBadges(ctx context.Context, owner common.Address) ([]Badge, error) {
	balance, err := s.ledger.BalanceOf(ctx, owner)
	if err != nil {
		return nil, err
	}
	if balance == 0 {
		return []Badge{}, nil
	}

	found := make([]Badge, 0, min(balance, s.maxTokenSearch))
	for start := uint64(1); start <= s.maxTokenSearch && uint64(len(found)) < balance; start += uint64(s.window) {
		end := min(start+uint64(s.window)-1, s.maxTokenSearch)
		batch, err := s.scan(ctx, owner, start, end)
		if err != nil {
			return nil, err
		}
		for _, b := range batch {
			if b != nil && uint64(len(found)) < balance {
				found = append(found, *b)
			}
		}
	}

	if uint64(len(found)) < balance {
		s.log.Warnf("Found %d of %d badges for %s within the first %d tokens", len(found), balance, owner.Hex(), s.maxTokenSearch)
	}
	return found, nil
}

func (s *Service) scan(ctx context.Context, owner common.Address, start, end uint64) ([]*Badge, error) {
	results := make([]*Badge, end-start+1)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.window)
	for id := start; id <= end; id++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			o, err := s.ledger.OwnerOf(ctx, id)
			if err != nil || o != owner {
				return nil
			}
			info, err := s.ledger.BadgeInfo(ctx, id)
			if err != nil {
				s.log.WithError(err).Debugf("Skipping token %d", id)
				return nil
			}
			results[id-start] = &Badge{
				TokenID:        strconv.FormatUint(id, 10),
				BadgeType:      strconv.Itoa(int(info.BadgeType)),
				IssuedAt:       info.IssuedAt.UTC().Format(isoMillis),
				Issuer:         info.Issuer.Hex(),
				Owner:          owner.Hex(),
				IsStudentBadge: info.BadgeType == StudentBadgeType,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan tokens %d-%d: %w", start, end, err)
	}
	return results, nil
}

// VerifyStudent classifies owner as a student when any badge has the
// student type.
func (s *Service) VerifyStudent(ctx context.Context, owner common.Address) (StudentStatus, error) {
	all, err := s.FindBadges(ctx, owner)
	if err != nil {
		return StudentStatus{}, err
	}

	students := []Badge{}
	for _, b := range all {
		if b.IsStudentBadge {
			students = append(students, b)
		}
	}
	return StudentStatus{
		IsStudent:     len(students) > 0,
		TotalBadges:   len(all),
		StudentBadges: students,
		AllBadges:     all,
	}, nil
}
