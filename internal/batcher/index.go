// Package batcher coalesces profile picture lookups into batched pipelines.
//
// Lookups are queued per RPC endpoint. Concurrent lookups for the same owner
// on the same endpoint share one pipeline execution and all receive the same
// result. A queue is flushed when it has been idle for the configured interval,
// or early once it holds BatchSize distinct owners and its timer is armed.
//
// A flush runs the queued owners through these stages, each stage touching only
// owners not yet settled:
//
//  1. derive profile picture record addresses
//  2. bulk fetch and decode the records
//  3. bulk fetch the referenced token accounts and validate balance, owner and mint
//  4. bulk resolve token metadata
//  5. load every metadata JSON document concurrently
//  6. fan the result out to every waiter of the owner
//
// A validation failure settles only the owner it concerns. A failed bulk call
// settles every owner still pending in that batch with the same error.
//
// Example configuration:
//
//	{
//	  "batching": {
//	    "size": 50,
//	    "interval": 200,
//	    "payloadConcurrency": 16
//	  }
//	}
package batcher
