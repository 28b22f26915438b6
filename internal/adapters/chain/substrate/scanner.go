package substrate

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okian/dotrep/internal/adapters/chain"
	"github.com/okian/dotrep/internal/domain/address"
	"github.com/okian/dotrep/pkg/logger"
	"github.com/okian/dotrep/pkg/metrics"
)

const (
	sourceName          = "substrate"
	defaultBlocksToScan = 100
	defaultTimeout      = 10 * time.Second
)

// Option configures a Scanner.
type Option func(*Scanner)

// WithBlocks sets how many of the latest blocks are scanned.
func WithBlocks(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.blocks = n
		}
	}
}

// WithTimeout bounds one RecentTransfers call.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTransferEvent sets the balances.Transfer index of the node's runtime.
func WithTransferEvent(ev EventIndex) Option {
	return func(s *Scanner) {
		s.transfer = ev
	}
}

// Scanner is a chain.TransferScanner that walks back from the chain head and
// collects the balances.Transfer events of an account. The connection is
// dialed on first use and redialed after it breaks.
type Scanner struct {
	endpoint string
	blocks   int
	timeout  time.Duration
	transfer EventIndex
	logger   logger.Logger

	mu     sync.Mutex
	client *Client
}

var _ chain.TransferScanner = (*Scanner)(nil)

// NewScanner creates a scanner for the node at endpoint (ws:// or wss://).
func NewScanner(endpoint string, opts ...Option) *Scanner {
	s := &Scanner{
		endpoint: endpoint,
		blocks:   defaultBlocksToScan,
		timeout:  defaultTimeout,
		transfer: transferEvents["polkadot"],
		logger:   logger.Get().Named("substrate"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements chain.TransferScanner.
func (s *Scanner) Name() string { return sourceName }

// Blocks returns the scan depth.
func (s *Scanner) Blocks() int { return s.blocks }

type header struct {
	Number string `json:"number"`
}

// RecentTransfers returns the transfers from or to account in the latest
// blocks, head included, newest first.
func (s *Scanner) RecentTransfers(ctx context.Context, account address.AccountID) (chain.TransferScan, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.conn(ctx)
	if err != nil {
		return chain.TransferScan{}, err
	}

	var head header
	if err := c.Call(ctx, &head, "chain_getHeader"); err != nil {
		return chain.TransferScan{}, err
	}
	latest, err := parseBlockNumber(head.Number)
	if err != nil {
		return chain.TransferScan{}, fmt.Errorf("%w: %w", chain.ErrUpstream, err)
	}

	var scan chain.TransferScan
	defer func() { metrics.RecordBlocksScanned(scan.Blocks) }()

	for i := 0; i < s.blocks && uint64(i) <= latest; i++ {
		number := latest - uint64(i)
		found, err := s.transfersInBlock(ctx, c, number, account)
		if err != nil {
			return chain.TransferScan{}, err
		}
		scan.Transfers = append(scan.Transfers, found...)
		scan.Blocks++
	}

	s.logger.Debug(ctx, "scanned blocks",
		logger.String("account", account.String()),
		logger.Int("blocks", scan.Blocks),
		logger.Int("transfers", len(scan.Transfers)),
	)
	return scan, nil
}

func (s *Scanner) transfersInBlock(ctx context.Context, c *Client, number uint64, account address.AccountID) ([]chain.Transfer, error) {
	var hash string
	if err := c.Call(ctx, &hash, "chain_getBlockHash", number); err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, fmt.Errorf("%w: no hash for block %d", chain.ErrUpstream, number)
	}

	// null when the block emitted no events
	var encoded *string
	if err := c.Call(ctx, &encoded, "state_getStorage", systemEventsKey, hash); err != nil {
		return nil, err
	}
	if encoded == nil {
		return nil, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(*encoded, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: block %d: bad events hex: %w", chain.ErrUpstream, number, err)
	}

	found, err := transfersIn(raw, s.transfer, account)
	if err != nil {
		return nil, fmt.Errorf("%w: block %d: %w", chain.ErrUpstream, number, err)
	}
	for i := range found {
		found[i].Block = number
	}
	return found, nil
}

func (s *Scanner) conn(ctx context.Context) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.client.Err() == nil {
		return s.client, nil
	}
	c, err := Dial(ctx, s.endpoint)
	if err != nil {
		metrics.RecordProviderError(sourceName, "dial")
		return nil, err
	}
	s.client = c
	return c, nil
}

// Close releases the connection, if any.
func (s *Scanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func parseBlockNumber(s string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad block number %q: %w", s, err)
	}
	return n, nil
}
