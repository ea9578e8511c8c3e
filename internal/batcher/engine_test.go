package batcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pfpgofer/internal/address"
	"pfpgofer/internal/layout"
	"pfpgofer/internal/metadata"
	"pfpgofer/internal/metrics"
	"pfpgofer/internal/rpc"
	"pfpgofer/internal/rpc/rpctest"
	"pfpgofer/internal/solana"
)

const testEndpoint = "http://rpc.test"

// mockChain is an in-memory endpoint
type mockChain struct {
	mu       sync.Mutex
	records  map[solana.PublicKey][]byte
	tokens   map[solana.PublicKey]*rpc.ParsedAccount
	fetchErr error
	tokenErr error
	panicOn  string

	recordCalls atomic.Int32
	recordKeys  atomic.Int32
	tokenCalls  atomic.Int32

	// gate, when set, blocks GetMultipleAccounts until closed; started is
	// signalled when a call begins waiting
	gate    chan struct{}
	started chan struct{}
}

func newMockChain() *mockChain {
	return &mockChain{
		records: make(map[solana.PublicKey][]byte),
		tokens:  make(map[solana.PublicKey]*rpc.ParsedAccount),
	}
}

func (m *mockChain) GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*rpc.Account, error) {
	m.recordCalls.Add(1)
	m.recordKeys.Add(int32(len(keys)))

	m.mu.Lock()
	gate, started := m.gate, m.started
	m.mu.Unlock()
	if gate != nil {
		if started != nil {
			started <- struct{}{}
		}
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]*rpc.Account, len(keys))
	for i, k := range keys {
		if data, ok := m.records[k]; ok {
			out[i] = &rpc.Account{Data: data}
		}
	}
	return out, nil
}

func (m *mockChain) GetMultipleParsedAccounts(ctx context.Context, keys []solana.PublicKey) ([]*rpc.ParsedAccount, error) {
	m.tokenCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn == "tokens" {
		panic("corrupted response")
	}
	if m.tokenErr != nil {
		return nil, m.tokenErr
	}
	out := make([]*rpc.ParsedAccount, len(keys))
	for i, k := range keys {
		out[i] = m.tokens[k]
	}
	return out, nil
}

// mockMetadata resolves mints from a map and loads documents from a map
type mockMetadata struct {
	mu        sync.Mutex
	byMint    map[solana.PublicKey]*layout.Metadata
	loadErr   map[string]error
	findCalls atomic.Int32
	loadCalls atomic.Int32
}

func newMockMetadata() *mockMetadata {
	return &mockMetadata{
		byMint:  make(map[solana.PublicKey]*layout.Metadata),
		loadErr: make(map[string]error),
	}
}

func (m *mockMetadata) FindAllByMintList(ctx context.Context, accounts metadata.AccountFetcher, mints []solana.PublicKey) ([]*layout.Metadata, error) {
	m.findCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*layout.Metadata, len(mints))
	for i, mint := range mints {
		out[i] = m.byMint[mint]
	}
	return out, nil
}

func (m *mockMetadata) Load(ctx context.Context, md *layout.Metadata) (*metadata.NFT, error) {
	m.loadCalls.Add(1)
	m.mu.Lock()
	err := m.loadErr[md.URI]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &metadata.NFT{Metadata: md, JSON: &metadata.JSON{Image: md.URI + "/image.png"}}, nil
}

type fixture struct {
	t        *testing.T
	deriver  *address.Deriver
	chains   map[string]*mockChain
	md       *mockMetadata
	dials    atomic.Int32
	engine   *Engine
	nextSeed byte
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	d, err := address.NewDeriver(1000)
	require.NoError(t, err)

	f := &fixture{
		t:       t,
		deriver: d,
		chains:  map[string]*mockChain{testEndpoint: newMockChain()},
		md:      newMockMetadata(),
	}
	f.engine = NewEngine(cfg, d, f.dial, f.md, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.engine.Close(ctx)
	})
	return f
}

func (f *fixture) dial(endpoint string) (AccountFetcher, error) {
	f.dials.Add(1)
	c, ok := f.chains[endpoint]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %s", endpoint)
	}
	return c, nil
}

func (f *fixture) chain() *mockChain {
	return f.chains[testEndpoint]
}

func (f *fixture) key() solana.PublicKey {
	f.nextSeed++
	var k solana.PublicKey
	k[0] = f.nextSeed
	k[1] = 0x5a
	k[31] = 0x01
	return k
}

// owner describes one on-chain profile picture setup
type owner struct {
	key          solana.PublicKey
	mint         solana.PublicKey
	tokenAccount solana.PublicKey
	uri          string
}

// addValid registers an owner whose lookup succeeds on chain
func (f *fixture) addValid(chain *mockChain) owner {
	o := owner{key: f.key(), mint: f.key(), tokenAccount: f.key()}
	o.uri = "https://arweave.test/" + o.mint.String()

	addr, err := f.deriver.ProfilePicture(o.key)
	require.NoError(f.t, err)

	chain.mu.Lock()
	chain.records[addr] = layout.EncodeProfilePicture(&layout.ProfilePicture{
		IsInitialized:   1,
		Owner:           o.key,
		NFTMint:         o.mint,
		NFTTokenAccount: o.tokenAccount,
	})
	chain.tokens[o.tokenAccount] = &rpc.ParsedAccount{Info: &rpc.TokenAccountInfo{
		Mint:        o.mint.String(),
		Owner:       o.key.String(),
		TokenAmount: &rpc.TokenAmount{Amount: "1", Decimals: 0},
	}}
	chain.mu.Unlock()

	f.md.mu.Lock()
	f.md.byMint[o.mint] = &layout.Metadata{Key: layout.MetadataV1Key, Mint: o.mint, Name: "PFP", URI: o.uri}
	f.md.mu.Unlock()
	return o
}

func testKey(seed byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = seed
	k[1] = 0xc3
	k[31] = 0x02
	return k
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

func requireReason(t *testing.T, res Result, reason Reason) {
	t.Helper()
	require.Error(t, res.Err)
	var itemErr *ItemError
	require.True(t, errors.As(res.Err, &itemErr), "expected ItemError, got %v", res.Err)
	assert.Equal(t, reason, itemErr.Reason)
}

func fastConfig() Config {
	return Config{BatchSize: 50, Interval: 20 * time.Millisecond, PayloadConcurrency: 4}
}

func TestEngine_Dedup(t *testing.T) {
	f := newFixture(t, fastConfig())
	o := f.addValid(f.chain())

	ch1 := f.engine.Push(testEndpoint, o.key)
	ch2 := f.engine.Push(testEndpoint, o.key)

	r1, r2 := await(t, ch1), await(t, ch2)
	require.NoError(t, r1.Err)
	require.NoError(t, r2.Err)
	assert.Same(t, r1.Resolution, r2.Resolution)
	assert.Equal(t, o.mint, r1.Resolution.Record.NFTMint)
	assert.Equal(t, o.uri+"/image.png", r1.Resolution.NFT.Image())

	assert.Equal(t, int32(1), f.chain().recordCalls.Load())
	assert.Equal(t, int32(1), f.chain().recordKeys.Load())
	assert.Equal(t, int32(1), f.md.loadCalls.Load())
}

func TestEngine_DedupSharesFailure(t *testing.T) {
	f := newFixture(t, fastConfig())
	missing := f.key()

	ch1 := f.engine.Push(testEndpoint, missing)
	ch2 := f.engine.Push(testEndpoint, missing)
	a, b := await(t, ch1), await(t, ch2)
	requireReason(t, a, ReasonEmptyRecord)
	assert.Equal(t, a.Err, b.Err)
}

func TestEngine_Isolation(t *testing.T) {
	f := newFixture(t, fastConfig())
	a := f.addValid(f.chain())
	b := f.key()
	c := f.addValid(f.chain())

	chA := f.engine.Push(testEndpoint, a.key)
	chB := f.engine.Push(testEndpoint, b)
	chC := f.engine.Push(testEndpoint, c.key)

	resA, resB, resC := await(t, chA), await(t, chB), await(t, chC)
	require.NoError(t, resA.Err)
	require.NoError(t, resC.Err)
	requireReason(t, resB, ReasonEmptyRecord)

	assert.Equal(t, a.key, resA.Resolution.Owner)
	assert.Equal(t, c.key, resC.Resolution.Owner)
	assert.Equal(t, int32(1), f.chain().recordCalls.Load())
	// Only survivors reach the token account stage
	assert.Equal(t, int32(1), f.chain().tokenCalls.Load())
}

func TestEngine_UndecodableRecordIsIsolated(t *testing.T) {
	d, err := address.NewDeriver(0)
	require.NoError(t, err)

	node := rpctest.NewNode()
	defer node.Close()

	md := newMockMetadata()
	valid, mint, tokenAccount := testKey(1), testKey(2), testKey(3)
	malformed := testKey(4)

	validAddr, _ := d.ProfilePicture(valid)
	malformedAddr, _ := d.ProfilePicture(malformed)
	node.SetAccount(validAddr, layout.EncodeProfilePicture(&layout.ProfilePicture{
		IsInitialized:   1,
		Owner:           valid,
		NFTMint:         mint,
		NFTTokenAccount: tokenAccount,
	}))
	node.SetTokenAccount(tokenAccount, rpctest.TokenAccount{Mint: mint.String(), Owner: valid.String(), Amount: "1"})
	node.SetRawData(malformedAddr, []string{"%%%not-base64", "base64"})
	md.byMint[mint] = &layout.Metadata{Key: layout.MetadataV1Key, Mint: mint, URI: "https://arweave.test/valid"}

	client, err := rpc.NewClient(rpc.Config{Endpoint: node.URL, RequestTimeout: 5 * time.Second, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer client.Close()

	engine := NewEngine(fastConfig(), d, func(string) (AccountFetcher, error) { return client, nil }, md, zerolog.Nop())
	defer engine.Close(context.Background())

	chValid := engine.Push(node.URL, valid)
	chMalformed := engine.Push(node.URL, malformed)

	res := await(t, chValid)
	require.NoError(t, res.Err)
	assert.Equal(t, mint, res.Resolution.Record.NFTMint)

	requireReason(t, await(t, chMalformed), ReasonDecodeFailure)
	assert.Equal(t, int64(2), node.Calls())
}

func TestEngine_ValidationReasons(t *testing.T) {
	f := newFixture(t, fastConfig())
	chain := f.chain()

	decodeFailure := f.addValid(chain)
	addr, _ := f.deriver.ProfilePicture(decodeFailure.key)
	chain.records[addr] = make([]byte, layout.ProfilePictureSize-1)

	noTokenAccount := f.addValid(chain)
	delete(chain.tokens, noTokenAccount.tokenAccount)

	emptyTokenAccount := f.addValid(chain)
	chain.tokens[emptyTokenAccount.tokenAccount].Info.TokenAmount.Amount = "0"

	wrongOwner := f.addValid(chain)
	chain.tokens[wrongOwner.tokenAccount].Info.Owner = f.key().String()

	wrongMint := f.addValid(chain)
	chain.tokens[wrongMint.tokenAccount].Info.Mint = f.key().String()

	noMetadata := f.addValid(chain)
	delete(f.md.byMint, noMetadata.mint)

	emptyURI := f.addValid(chain)
	f.md.byMint[emptyURI.mint].URI = ""

	noJSON := f.addValid(chain)
	f.md.loadErr[noJSON.uri] = metadata.ErrNoJSON

	valid := f.addValid(chain)

	tests := []struct {
		owner  solana.PublicKey
		reason Reason
	}{
		{decodeFailure.key, ReasonDecodeFailure},
		{noTokenAccount.key, ReasonNoTokenAccount},
		{emptyTokenAccount.key, ReasonEmptyTokenAccount},
		{wrongOwner.key, ReasonInvalidTokenOwner},
		{wrongMint.key, ReasonInvalidTokenMint},
		{noMetadata.key, ReasonNoMetadataURL},
		{emptyURI.key, ReasonNoMetadataURL},
		{noJSON.key, ReasonNoJSONMetadata},
	}

	chans := make([]<-chan Result, len(tests))
	for i, tt := range tests {
		chans[i] = f.engine.Push(testEndpoint, tt.owner)
	}
	validCh := f.engine.Push(testEndpoint, valid.key)

	for i, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			requireReason(t, await(t, chans[i]), tt.reason)
		})
	}
	res := await(t, validCh)
	require.NoError(t, res.Err)

	var itemErr *ItemError
	res = await(t, f.engine.Push(testEndpoint, decodeFailure.key))
	require.True(t, errors.As(res.Err, &itemErr))
	assert.ErrorIs(t, res.Err, layout.ErrSizeMismatch)

	assert.Equal(t, int32(2), chain.recordCalls.Load())
}

func TestEngine_SizeTrigger(t *testing.T) {
	cfg := fastConfig()
	cfg.Interval = time.Hour
	f := newFixture(t, cfg)

	owners := make([]owner, 50)
	chans := make([]<-chan Result, 50)
	for i := range owners {
		owners[i] = f.addValid(f.chain())
	}
	for i, o := range owners {
		chans[i] = f.engine.Push(testEndpoint, o.key)
	}

	for _, ch := range chans {
		require.NoError(t, await(t, ch).Err)
	}
	assert.Equal(t, int32(1), f.chain().recordCalls.Load())
	assert.Equal(t, int32(50), f.chain().recordKeys.Load())
}

func TestEngine_SizeTriggerNeedsArmedTimer(t *testing.T) {
	cfg := fastConfig()
	cfg.BatchSize = 1
	cfg.Interval = time.Hour
	f := newFixture(t, cfg)

	a := f.addValid(f.chain())
	b := f.addValid(f.chain())

	chA := f.engine.Push(testEndpoint, a.key)
	select {
	case <-chA:
		t.Fatal("first lookup into an empty table must wait for the timer")
	case <-time.After(50 * time.Millisecond):
	}

	chB := f.engine.Push(testEndpoint, b.key)
	require.NoError(t, await(t, chA).Err)
	require.NoError(t, await(t, chB).Err)
	assert.Equal(t, int32(1), f.chain().recordCalls.Load())
}

func TestEngine_TimeTrigger(t *testing.T) {
	f := newFixture(t, fastConfig())

	chans := make([]<-chan Result, 10)
	for i := range chans {
		chans[i] = f.engine.Push(testEndpoint, f.addValid(f.chain()).key)
	}
	for _, ch := range chans {
		require.NoError(t, await(t, ch).Err)
	}
	assert.Equal(t, int32(1), f.chain().recordCalls.Load())
	assert.Equal(t, int32(10), f.chain().recordKeys.Load())
}

func TestEngine_TimerDebounces(t *testing.T) {
	cfg := fastConfig()
	cfg.Interval = 200 * time.Millisecond
	f := newFixture(t, cfg)

	chA := f.engine.Push(testEndpoint, f.addValid(f.chain()).key)
	time.Sleep(120 * time.Millisecond)
	chB := f.engine.Push(testEndpoint, f.addValid(f.chain()).key)
	time.Sleep(120 * time.Millisecond)

	// 240ms after the first lookup, but only 120ms after the last
	assert.Equal(t, int32(0), f.chain().recordCalls.Load())

	require.NoError(t, await(t, chA).Err)
	require.NoError(t, await(t, chB).Err)
	assert.Equal(t, int32(1), f.chain().recordCalls.Load())
}

func TestEngine_SystemicFailure(t *testing.T) {
	f := newFixture(t, fastConfig())
	boom := errors.New("connection reset by peer")
	f.chain().fetchErr = boom

	chans := make([]<-chan Result, 5)
	for i := range chans {
		chans[i] = f.engine.Push(testEndpoint, f.addValid(f.chain()).key)
	}
	for _, ch := range chans {
		res := await(t, ch)
		assert.Nil(t, res.Resolution)
		assert.ErrorIs(t, res.Err, boom)
	}
	assert.Equal(t, int32(0), f.chain().tokenCalls.Load())
}

func TestEngine_SystemicFailureKeepsEarlierItemFailures(t *testing.T) {
	f := newFixture(t, fastConfig())
	boom := errors.New("node is behind")
	f.chain().tokenErr = boom

	valid := f.engine.Push(testEndpoint, f.addValid(f.chain()).key)
	missing := f.engine.Push(testEndpoint, f.key())

	assert.ErrorIs(t, await(t, valid).Err, boom)
	requireReason(t, await(t, missing), ReasonEmptyRecord)
}

func TestEngine_PanicIsFunnelled(t *testing.T) {
	f := newFixture(t, fastConfig())
	f.chain().panicOn = "tokens"

	res := await(t, f.engine.Push(testEndpoint, f.addValid(f.chain()).key))
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "panicked")
}

func TestEngine_DialFailure(t *testing.T) {
	f := newFixture(t, fastConfig())

	res := await(t, f.engine.Push("http://unknown.test", f.key()))
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "unknown endpoint")
}

func TestEngine_EndpointIsolation(t *testing.T) {
	f := newFixture(t, fastConfig())
	const other = "http://other.test"
	f.chains[other] = newMockChain()

	o := f.addValid(f.chain())
	otherFailure := errors.New("other endpoint down")
	f.chains[other].fetchErr = otherFailure

	chMain := f.engine.Push(testEndpoint, o.key)
	chOther := f.engine.Push(other, o.key)

	require.NoError(t, await(t, chMain).Err)
	assert.ErrorIs(t, await(t, chOther).Err, otherFailure)

	assert.Equal(t, int32(1), f.chain().recordCalls.Load())
	assert.Equal(t, int32(1), f.chains[other].recordCalls.Load())
	assert.Equal(t, int32(2), f.dials.Load())
}

func TestEngine_LookupDuringFlushStartsNewBatch(t *testing.T) {
	f := newFixture(t, fastConfig())
	o := f.addValid(f.chain())

	chain := f.chain()
	chain.gate = make(chan struct{})
	chain.started = make(chan struct{}, 2)

	first := f.engine.Push(testEndpoint, o.key)
	<-chain.started

	// The running batch is detached; this lookup must not join it
	second := f.engine.Push(testEndpoint, o.key)
	f.engine.mu.Lock()
	_, pending := f.engine.pending[testEndpoint]
	f.engine.mu.Unlock()
	assert.True(t, pending)

	<-chain.started
	close(chain.gate)

	r1, r2 := await(t, first), await(t, second)
	require.NoError(t, r1.Err)
	require.NoError(t, r2.Err)
	assert.NotSame(t, r1.Resolution, r2.Resolution)
	assert.Equal(t, int32(2), chain.recordCalls.Load())
}

func TestEngine_ExactlyOnce(t *testing.T) {
	cfg := fastConfig()
	cfg.BatchSize = 7
	f := newFixture(t, cfg)

	owners := make([]solana.PublicKey, 30)
	for i := range owners {
		if i%3 == 0 {
			owners[i] = f.key()
		} else {
			owners[i] = f.addValid(f.chain()).key
		}
	}

	const lookups = 300
	var settled [lookups]atomic.Int32
	var wg sync.WaitGroup
	wg.Add(lookups)

	var enq sync.WaitGroup
	for i := 0; i < lookups; i++ {
		enq.Add(1)
		go func() {
			defer enq.Done()
			f.engine.Enqueue(testEndpoint, owners[i%len(owners)],
				func(*Resolution) {
					if settled[i].Add(1) == 1 {
						wg.Done()
					}
				},
				func(error) {
					if settled[i].Add(1) == 1 {
						wg.Done()
					}
				},
			)
		}()
	}
	enq.Wait()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("not every lookup was settled")
	}

	// Let any duplicate settlement surface
	time.Sleep(50 * time.Millisecond)
	for i := range settled {
		assert.Equal(t, int32(1), settled[i].Load(), "lookup %d", i)
	}
}

func TestEngine_CloseFlushesPending(t *testing.T) {
	cfg := fastConfig()
	cfg.Interval = time.Hour
	f := newFixture(t, cfg)

	ch := f.engine.Push(testEndpoint, f.addValid(f.chain()).key)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.engine.Close(ctx))

	select {
	case res := <-ch:
		require.NoError(t, res.Err)
	default:
		t.Fatal("Close returned before the pending batch settled")
	}

	res := await(t, f.engine.Push(testEndpoint, f.key()))
	assert.ErrorIs(t, res.Err, ErrEngineClosed)
}

func batchSizeSamples(t *testing.T) (uint64, float64) {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.BatchSize.Write(&m))
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func TestEngine_ObservesBatchSize(t *testing.T) {
	f := newFixture(t, fastConfig())
	a, b := f.addValid(f.chain()), f.addValid(f.chain())

	count, sum := batchSizeSamples(t)

	chA := f.engine.Push(testEndpoint, a.key)
	chB := f.engine.Push(testEndpoint, b.key)
	require.NoError(t, await(t, chA).Err)
	require.NoError(t, await(t, chB).Err)

	newCount, newSum := batchSizeSamples(t)
	assert.Equal(t, count+1, newCount)
	assert.Equal(t, sum+2, newSum)
}

func TestConfigFrom(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFrom(nil))

	cfg := ConfigFrom(nil)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Interval)
}
