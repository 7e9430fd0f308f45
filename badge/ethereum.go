package badge

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

const ledgerABI = `[
  {"type":"function","name":"mintBadge","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"},{"name":"badgeType","type":"uint8"},{"name":"claimId","type":"bytes32"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"ownerOf","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"badgeInfo","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"badgeType","type":"uint8"},{"name":"issuedAt","type":"uint256"},{"name":"issuer","type":"address"}]},
  {"type":"event","name":"BadgeMinted","anonymous":false,
   "inputs":[{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true},
             {"name":"badgeType","type":"uint8","indexed":false},{"name":"claimId","type":"bytes32","indexed":false}]}
]`

const mintedEvent = "BadgeMinted"

// EthereumLedger talks to the deployed badge contract over JSON-RPC and signs
// mint transactions with the backend key.
type EthereumLedger struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	abi      abi.ABI
	address  common.Address
	auth     *bind.TransactOpts
	log      logrus.FieldLogger

	// serializes nonce assignment between concurrent mints
	mu sync.Mutex
}

func DialEthereum(ctx context.Context, rpcURL, contractAddress, privateKeyHex string, chainID int64, log logrus.FieldLogger) (*EthereumLedger, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	if chainID == 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("query chain id: %w", err)
		}
		chainID = id.Int64()
	}

	l, err := NewEthereumLedger(client, common.HexToAddress(contractAddress), key, big.NewInt(chainID), log)
	if err != nil {
		client.Close()
		return nil, err
	}
	return l, nil
}

func NewEthereumLedger(client *ethclient.Client, address common.Address, key *ecdsa.PrivateKey, chainID *big.Int, log logrus.FieldLogger) (*EthereumLedger, error) {
	parsed, err := abi.JSON(strings.NewReader(ledgerABI))
	if err != nil {
		return nil, fmt.Errorf("parse ledger abi: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	log.Infof("Badge ledger at %s, minting as %s", address.Hex(), auth.From.Hex())
	return &EthereumLedger{
		client:   client,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		abi:      parsed,
		address:  address,
		auth:     auth,
		log:      log,
	}, nil
}

func (l *EthereumLedger) Address() common.Address {
	return l.address
}

func (l *EthereumLedger) Close() {
	l.client.Close()
}

func (l *EthereumLedger) MintBadge(ctx context.Context, to common.Address, badgeType uint8, claimID [32]byte) (MintReceipt, error) {
	tx, err := l.sendMint(ctx, to, badgeType, claimID)
	if err != nil {
		return MintReceipt{}, fmt.Errorf("%w: mintBadge: %v", ErrContractCallFailed, err)
	}
	l.log.Infof("Mint transaction sent: %s", tx.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, l.client, tx)
	if err != nil {
		return MintReceipt{}, fmt.Errorf("%w: wait for %s: %v", ErrContractCallFailed, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return MintReceipt{}, fmt.Errorf("%w: transaction %s reverted", ErrContractCallFailed, tx.Hash().Hex())
	}
	l.log.Infof("Mint transaction confirmed: %s", receipt.TxHash.Hex())

	return MintReceipt{
		TxHash:  receipt.TxHash.Hex(),
		TokenID: l.mintedTokenID(receipt),
	}, nil
}

func (l *EthereumLedger) sendMint(ctx context.Context, to common.Address, badgeType uint8, claimID [32]byte) (*types.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	opts := *l.auth
	opts.Context = ctx
	return l.contract.Transact(&opts, "mintBadge", to, badgeType, claimID)
}

// mintedTokenID returns the token id of the first BadgeMinted event emitted
// by the contract, or "" when the receipt has none.
func (l *EthereumLedger) mintedTokenID(receipt *types.Receipt) string {
	event := l.abi.Events[mintedEvent]
	for _, lg := range receipt.Logs {
		if lg.Address != l.address || len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
			continue
		}
		out := make(map[string]interface{})
		if err := l.contract.UnpackLogIntoMap(out, mintedEvent, *lg); err != nil {
			l.log.WithError(err).Warn("Could not decode BadgeMinted event")
			continue
		}
		if id, ok := out["tokenId"].(*big.Int); ok {
			return id.String()
		}
	}
	return ""
}

func (l *EthereumLedger) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrContractCallFailed, method, err)
	}
	return out, nil
}

func (l *EthereumLedger) BalanceOf(ctx context.Context, owner common.Address) (uint64, error) {
	out, err := l.call(ctx, "balanceOf", owner)
	if err != nil {
		return 0, err
	}
	balance := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return balance.Uint64(), nil
}

func (l *EthereumLedger) OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error) {
	out, err := l.call(ctx, "ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (l *EthereumLedger) BadgeInfo(ctx context.Context, tokenID uint64) (Info, error) {
	out, err := l.call(ctx, "badgeInfo", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return Info{}, err
	}
	badgeType := *abi.ConvertType(out[0], new(uint8)).(*uint8)
	issuedAt := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	issuer := *abi.ConvertType(out[2], new(common.Address)).(*common.Address)

	return Info{
		BadgeType: badgeType,
		IssuedAt:  time.Unix(issuedAt.Int64(), 0).UTC(),
		Issuer:    issuer,
	}, nil
}
