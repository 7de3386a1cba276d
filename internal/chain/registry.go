package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// RegistryABI is the read-only surface of the admin registry contract.
const RegistryABI = `[{"inputs":[{"internalType":"address","name":"_wallet","type":"address"}],"name":"isAdmin","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"}]`

var ErrAuthorityUnavailable = errors.New("admin registry unavailable")

// Authority answers whether a wallet is an admin according to the external
// source of truth.
type Authority interface {
	IsAdmin(ctx context.Context, walletAddress string) (bool, error)
}

type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type RegistryClient struct {
	caller   contractCaller
	contract common.Address
	abi      abi.ABI
	log      *zap.Logger
}

func DialRegistry(ctx context.Context, rpcURL, contractAddress string, log *zap.Logger) (*RegistryClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial registry rpc: %w", err)
	}
	return NewRegistryClient(client, contractAddress, log)
}

func NewRegistryClient(caller contractCaller, contractAddress string, log *zap.Logger) (*RegistryClient, error) {
	addr, err := NormalizeAddress(contractAddress)
	if err != nil {
		return nil, fmt.Errorf("registry contract address: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	return &RegistryClient{
		caller:   caller,
		contract: common.HexToAddress(addr),
		abi:      parsed,
		log:      log,
	}, nil
}

// IsAdmin performs an eth_call of isAdmin(address) at the latest block. Any
// transport or decoding failure is reported as ErrAuthorityUnavailable.
func (c *RegistryClient) IsAdmin(ctx context.Context, walletAddress string) (bool, error) {
	addr, err := NormalizeAddress(walletAddress)
	if err != nil {
		return false, err
	}

	data, err := c.abi.Pack("isAdmin", common.HexToAddress(addr))
	if err != nil {
		return false, fmt.Errorf("pack isAdmin: %w", err)
	}

	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		c.log.Warn("registry call failed", zap.String("wallet", addr), zap.Error(err))
		return false, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}

	res, err := c.abi.Unpack("isAdmin", out)
	if err != nil || len(res) != 1 {
		return false, fmt.Errorf("%w: unexpected isAdmin result: %v", ErrAuthorityUnavailable, err)
	}
	isAdmin, ok := res[0].(bool)
	if !ok {
		return false, fmt.Errorf("%w: isAdmin returned %T", ErrAuthorityUnavailable, res[0])
	}

	c.log.Debug("registry answered", zap.String("wallet", addr), zap.Bool("is_admin", isAdmin))
	return isAdmin, nil
}

// UnavailableAuthority is used when no registry is configured. It never
// confirms anyone, so admin claims always resolve to user.
type UnavailableAuthority struct{}

func (UnavailableAuthority) IsAdmin(context.Context, string) (bool, error) {
	return false, ErrAuthorityUnavailable
}
