package pricing

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	aggregatorABIJSON = `[{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}]`
)

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainlinkOptions parameterise the on-chain price feed source.
type ChainlinkOptions struct {
	RPCURL      string
	FeedAddress string
	Decimals    int32
	Timeout     time.Duration
}

// Chainlink reads the XAU/USD price from a Chainlink aggregator contract.
// It is the last resort in the spot fallback chain: slower and coarser than
// the REST APIs, but independent of them.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewChainlink builds the on-chain spot source.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	if opts.Decimals == 0 {
		opts.Decimals = 8
	}
	return &Chainlink{opts: opts, logger: logger.With().Str("component", "spot_chainlink").Logger()}
}

// Name identifies the source within the fallback chain.
func (c *Chainlink) Name() string {
	return "chainlink"
}

// GetSpotRate reads latestRoundData from the configured feed.
func (c *Chainlink) GetSpotRate(ctx context.Context) (Snapshot, error) {
	if c.opts.RPCURL == "" {
		return Snapshot{}, errors.New("chainlink rpc url not configured")
	}
	if c.opts.FeedAddress == "" {
		return Snapshot{}, errors.New("chainlink feed address not configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	addr := common.HexToAddress(c.opts.FeedAddress)

	payload, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return Snapshot{}, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return Snapshot{}, err
	}

	outputs, err := aggregatorABI.Unpack("latestRoundData", res)
	if err != nil {
		return Snapshot{}, err
	}
	if len(outputs) != 5 {
		return Snapshot{}, errors.New("unexpected latestRoundData response")
	}

	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return Snapshot{}, errors.New("failed to decode feed answer")
	}
	if answer.Sign() <= 0 {
		return Snapshot{}, errors.New("feed answer out of range")
	}

	updatedAt, ok := outputs[3].(*big.Int)
	if !ok {
		return Snapshot{}, errors.New("failed to decode feed updatedAt")
	}

	price := decimal.NewFromBigInt(answer, -c.opts.Decimals)

	return Snapshot{
		Price:  price,
		AsOf:   time.Unix(updatedAt.Int64(), 0).UTC(),
		Source: c.Name(),
	}, nil
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var _ Source = (*Chainlink)(nil)
