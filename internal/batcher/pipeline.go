package batcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"pfpgofer/internal/layout"
	"pfpgofer/internal/metrics"
	"pfpgofer/internal/rpc"
	"pfpgofer/internal/solana"
)

// process runs items through the pipeline and guarantees every item is settled
// when it returns
func (e *Engine) process(ctx context.Context, endpoint string, items []*batchItem) {
	batchID := uuid.NewString()
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "batcher.flush")
	span.SetAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("batch.size", len(items)),
	)
	defer span.End()

	logger := e.logger.With().Str("batch", batchID).Logger()
	logger.Debug().Int("owners", len(items)).Msg("flushing batch")

	metrics.BatchSize.Observe(float64(len(items)))
	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("batch pipeline panicked: %v", r)
			logger.Error().Err(err).Msg("batch pipeline panicked")
			span.SetStatus(codes.Error, err.Error())
			e.failAll(items, err)
		}
	}()

	resolved, err := e.pipeline(ctx, endpoint, items, logger)
	if err != nil {
		logger.Warn().Err(err).Int("owners", len(items)).Msg("batch failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.failAll(items, err)
		return
	}

	span.SetAttributes(attribute.Int("batch.resolved", resolved))
	logger.Debug().
		Int("owners", len(items)).
		Int("resolved", resolved).
		Dur("duration", time.Since(start)).
		Msg("batch completed")
}

// pipeline runs the stages and returns the number of resolved owners. A returned
// error is systemic; items it did not settle are failed by the caller.
func (e *Engine) pipeline(ctx context.Context, endpoint string, items []*batchItem, logger zerolog.Logger) (int, error) {
	client, err := e.dial(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to dial endpoint: %w", err)
	}

	// 1. derive record addresses
	addresses := make([]solana.PublicKey, len(items))
	for i, it := range items {
		addr, err := e.deriver.ProfilePicture(it.owner)
		if err != nil {
			return 0, err
		}
		it.address = addr
		addresses[i] = addr
	}

	// 2. fetch and decode records
	accounts, err := client.GetMultipleAccounts(ctx, addresses)
	if err != nil {
		return 0, err
	}
	if len(accounts) != len(items) {
		return 0, fmt.Errorf("record fetch returned %d accounts for %d addresses", len(accounts), len(items))
	}
	for i, acc := range accounts {
		it := items[i]
		if acc == nil {
			e.failItem(it, ReasonEmptyRecord, nil)
			continue
		}
		if acc.Err != nil {
			e.failItem(it, ReasonDecodeFailure, acc.Err)
			continue
		}
		rec, err := layout.DecodeProfilePicture(acc.Data)
		if err != nil {
			e.failItem(it, ReasonDecodeFailure, err)
			continue
		}
		it.recordAccount = acc
		it.record = rec
	}

	items = unsettled(items)
	if len(items) == 0 {
		return 0, nil
	}

	// 3. fetch and validate token accounts
	tokenKeys := make([]solana.PublicKey, len(items))
	for i, it := range items {
		tokenKeys[i] = it.record.NFTTokenAccount
	}
	tokenAccounts, err := client.GetMultipleParsedAccounts(ctx, tokenKeys)
	if err != nil {
		return 0, err
	}
	if len(tokenAccounts) != len(items) {
		return 0, fmt.Errorf("token account fetch returned %d accounts for %d addresses", len(tokenAccounts), len(items))
	}
	for i, acc := range tokenAccounts {
		it := items[i]
		if reason := checkTokenAccount(it, acc); reason != "" {
			e.failItem(it, reason, nil)
			continue
		}
		it.tokenAccount = acc
	}

	items = unsettled(items)
	if len(items) == 0 {
		return 0, nil
	}

	// 4. resolve metadata
	mints := make([]solana.PublicKey, len(items))
	for i, it := range items {
		mints[i] = it.record.NFTMint
	}
	mds, err := e.metadata.FindAllByMintList(ctx, client, mints)
	if err != nil {
		return 0, err
	}
	if len(mds) != len(items) {
		return 0, fmt.Errorf("metadata lookup returned %d entries for %d mints", len(mds), len(items))
	}
	for i, md := range mds {
		if md == nil || md.URI == "" {
			e.failItem(items[i], ReasonNoMetadataURL, nil)
			continue
		}
		items[i].metadata = md
	}

	items = unsettled(items)
	if len(items) == 0 {
		return 0, nil
	}

	// 5. load metadata documents; each load settles only its own item
	var g errgroup.Group
	g.SetLimit(e.cfg.PayloadConcurrency)
	for _, it := range items {
		g.Go(func() error {
			e.loadDocument(ctx, it, logger)
			return nil
		})
	}
	_ = g.Wait()

	// 6. fan out
	resolved := 0
	for _, it := range unsettled(items) {
		res := &Resolution{
			Owner:         it.owner,
			Address:       it.address,
			RecordAccount: it.recordAccount,
			Record:        it.record,
			TokenAccount:  it.tokenAccount,
			NFT:           it.nft,
		}
		if it.resolve(res) {
			resolved++
			metrics.WaitersSettled.WithLabelValues("success").Add(float64(len(it.waiters)))
		}
	}
	return resolved, nil
}

func (e *Engine) loadDocument(ctx context.Context, it *batchItem, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			e.failItem(it, ReasonNoJSONMetadata, fmt.Errorf("panic: %v", r))
		}
	}()

	nft, err := e.metadata.Load(ctx, it.metadata)
	if err == nil && (nft == nil || nft.JSON == nil) {
		err = errors.New("empty document")
	}
	if err != nil {
		logger.Debug().Err(err).Str("owner", it.owner.String()).Str("uri", it.metadata.URI).Msg("metadata document load failed")
		e.failItem(it, ReasonNoJSONMetadata, err)
		return
	}
	it.nft = nft
}

// checkTokenAccount validates the account holding the profile picture token
func checkTokenAccount(it *batchItem, acc *rpc.ParsedAccount) Reason {
	if acc == nil {
		return ReasonNoTokenAccount
	}
	if acc.Info == nil || !acc.Info.TokenAmount.AtLeastOne() {
		return ReasonEmptyTokenAccount
	}
	if acc.Info.Owner != it.owner.String() {
		return ReasonInvalidTokenOwner
	}
	if acc.Info.Mint != it.record.NFTMint.String() {
		return ReasonInvalidTokenMint
	}
	return ""
}

func (e *Engine) failItem(it *batchItem, reason Reason, cause error) {
	if it.reject(&ItemError{Owner: it.owner, Reason: reason, Err: cause}) {
		metrics.ItemFailures.WithLabelValues(string(reason)).Inc()
		metrics.WaitersSettled.WithLabelValues("failure").Add(float64(len(it.waiters)))
	}
}

// failAll settles every unsettled item with the same error
func (e *Engine) failAll(items []*batchItem, err error) {
	for _, it := range items {
		if it.reject(err) {
			metrics.ItemFailures.WithLabelValues("systemic").Inc()
			metrics.WaitersSettled.WithLabelValues("failure").Add(float64(len(it.waiters)))
		}
	}
}
