package batcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pfpgofer/internal/config"
	"pfpgofer/internal/layout"
	"pfpgofer/internal/metadata"
	"pfpgofer/internal/rpc"
	"pfpgofer/internal/solana"
)

// ErrEngineClosed is returned to lookups enqueued after Close
var ErrEngineClosed = errors.New("batch engine closed")

// Reason identifies why a single owner failed validation
type Reason string

const (
	ReasonEmptyRecord       Reason = "empty record"
	ReasonDecodeFailure     Reason = "decode failure"
	ReasonNoTokenAccount    Reason = "no token account"
	ReasonEmptyTokenAccount Reason = "empty token account"
	ReasonInvalidTokenOwner Reason = "invalid token account owner"
	ReasonInvalidTokenMint  Reason = "invalid token account mint"
	ReasonNoMetadataURL     Reason = "no metadata URL"
	ReasonNoJSONMetadata    Reason = "no JSON metadata"
)

// ItemError is a failure confined to one owner of a batch
type ItemError struct {
	Owner  solana.PublicKey
	Reason Reason
	Err    error
}

func (e *ItemError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("profile picture of %s: %s: %v", e.Owner, e.Reason, e.Err)
	}
	return fmt.Sprintf("profile picture of %s: %s", e.Owner, e.Reason)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Resolution is the result of a successful lookup. Every waiter of an owner
// receives the same *Resolution.
type Resolution struct {
	Owner         solana.PublicKey
	Address       solana.PublicKey // profile picture record address
	RecordAccount *rpc.Account
	Record        *layout.ProfilePicture
	TokenAccount  *rpc.ParsedAccount
	NFT           *metadata.NFT
}

// Result is delivered on the channel returned by Push
type Result struct {
	Resolution *Resolution
	Err        error
}

// AccountFetcher is the bulk account reader of one endpoint
type AccountFetcher interface {
	GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*rpc.Account, error)
	GetMultipleParsedAccounts(ctx context.Context, keys []solana.PublicKey) ([]*rpc.ParsedAccount, error)
}

// DialFunc returns the AccountFetcher for an endpoint
type DialFunc func(endpoint string) (AccountFetcher, error)

// Deriver computes profile picture record addresses
type Deriver interface {
	ProfilePicture(owner solana.PublicKey) (solana.PublicKey, error)
}

// MetadataSource resolves token metadata and loads metadata documents
type MetadataSource interface {
	FindAllByMintList(ctx context.Context, accounts metadata.AccountFetcher, mints []solana.PublicKey) ([]*layout.Metadata, error)
	Load(ctx context.Context, md *layout.Metadata) (*metadata.NFT, error)
}

// Config controls batching
type Config struct {
	BatchSize          int           // distinct owners that flush early
	Interval           time.Duration // idle time before a flush
	PayloadConcurrency int           // parallel metadata document loads per batch
}

// DefaultConfig returns the default batching parameters
func DefaultConfig() Config {
	return Config{
		BatchSize:          config.DefaultBatchSize,
		Interval:           time.Duration(config.DefaultBatchInterval) * time.Millisecond,
		PayloadConcurrency: config.DefaultPayloadConcurrency,
	}
}

// ConfigFrom converts the file configuration, filling unset values with defaults
func ConfigFrom(cfg *config.BatchingConfig) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if cfg.Size > 0 {
		c.BatchSize = cfg.Size
	}
	if cfg.Interval > 0 {
		c.Interval = cfg.GetIntervalDuration()
	}
	if cfg.PayloadConcurrency > 0 {
		c.PayloadConcurrency = cfg.PayloadConcurrency
	}
	return c
}

type trigger string

const (
	triggerSize  trigger = "size"
	triggerTimer trigger = "timer"
	triggerClose trigger = "close"
)

// waiter is one caller still waiting for an owner
type waiter struct {
	succeed func(*Resolution)
	fail    func(error)
}

type pendingEntry struct {
	owner   solana.PublicKey
	waiters []waiter
}

// pendingBatch accumulates lookups for one endpoint until it is flushed.
// It is owned by the Engine and only touched under Engine.mu.
type pendingBatch struct {
	endpoint string
	entries  map[string]*pendingEntry // owner key -> waiters
	order    []string
	timer    *time.Timer
	seq      uint64 // bumped on every re-arm; a timer firing with an old seq is stale
}

func newPendingBatch(endpoint string) *pendingBatch {
	return &pendingBatch{
		endpoint: endpoint,
		entries:  make(map[string]*pendingEntry),
	}
}

// add appends a waiter under the owner's key and returns the number of distinct owners
func (b *pendingBatch) add(owner solana.PublicKey, w waiter) int {
	key := owner.String()
	entry, ok := b.entries[key]
	if !ok {
		entry = &pendingEntry{owner: owner}
		b.entries[key] = entry
		b.order = append(b.order, key)
	}
	entry.waiters = append(entry.waiters, w)
	return len(b.entries)
}

// arm replaces the flush timer
func (b *pendingBatch) arm(d time.Duration, onFire func(seq uint64)) {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.seq++
	seq := b.seq
	b.timer = time.AfterFunc(d, func() { onFire(seq) })
}

func (b *pendingBatch) stopTimer() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.seq++
}

// items converts the batch into pipeline items in enqueue order
func (b *pendingBatch) items() []*batchItem {
	items := make([]*batchItem, 0, len(b.order))
	for _, key := range b.order {
		entry := b.entries[key]
		items = append(items, &batchItem{owner: entry.owner, waiters: entry.waiters})
	}
	return items
}

// batchItem is one distinct owner moving through the pipeline
type batchItem struct {
	owner   solana.PublicKey
	waiters []waiter
	settled bool

	address       solana.PublicKey
	recordAccount *rpc.Account
	record        *layout.ProfilePicture
	tokenAccount  *rpc.ParsedAccount
	metadata      *layout.Metadata
	nft           *metadata.NFT
}

// reject settles the item with err unless it is already settled
func (it *batchItem) reject(err error) bool {
	if it.settled {
		return false
	}
	it.settled = true
	for _, w := range it.waiters {
		w.fail(err)
	}
	return true
}

// resolve settles the item with res unless it is already settled
func (it *batchItem) resolve(res *Resolution) bool {
	if it.settled {
		return false
	}
	it.settled = true
	for _, w := range it.waiters {
		w.succeed(res)
	}
	return true
}

func unsettled(items []*batchItem) []*batchItem {
	out := items[:0:0]
	for _, it := range items {
		if !it.settled {
			out = append(out, it)
		}
	}
	return out
}
