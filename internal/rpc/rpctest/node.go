// Package rpctest provides an in-memory Solana RPC node for tests.
package rpctest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"pfpgofer/internal/jsonrpc"
	"pfpgofer/internal/solana"
)

// TokenAccount is the jsonParsed view of an SPL token account served by Node
type TokenAccount struct {
	Mint     string
	Owner    string
	Amount   string
	Decimals uint8
}

// Node answers getMultipleAccounts from in-memory state
type Node struct {
	*httptest.Server

	mu       sync.RWMutex
	accounts map[solana.PublicKey][]byte
	rawData  map[solana.PublicKey]interface{}
	tokens   map[solana.PublicKey]TokenAccount
	rpcErr   *jsonrpc.Error

	calls atomic.Int64
	keys  atomic.Int64
}

// NewNode starts a Node; it is closed with t.Cleanup by the caller
func NewNode() *Node {
	n := &Node{
		accounts: make(map[solana.PublicKey][]byte),
		rawData:  make(map[solana.PublicKey]interface{}),
		tokens:   make(map[solana.PublicKey]TokenAccount),
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.handle))
	return n
}

// SetAccount stores raw account data served with base64 encoding
func (n *Node) SetAccount(key solana.PublicKey, data []byte) {
	n.mu.Lock()
	n.accounts[key] = data
	n.mu.Unlock()
}

// SetRawData serves key with data as its "data" field verbatim, for accounts
// a node returns in an unexpected shape
func (n *Node) SetRawData(key solana.PublicKey, data interface{}) {
	n.mu.Lock()
	n.rawData[key] = data
	n.mu.Unlock()
}

// SetTokenAccount stores a token account served with jsonParsed encoding
func (n *Node) SetTokenAccount(key solana.PublicKey, ta TokenAccount) {
	n.mu.Lock()
	n.tokens[key] = ta
	n.mu.Unlock()
}

// FailWith makes every subsequent call return err; nil restores normal operation
func (n *Node) FailWith(err *jsonrpc.Error) {
	n.mu.Lock()
	n.rpcErr = err
	n.mu.Unlock()
}

// Calls returns the number of getMultipleAccounts requests served
func (n *Node) Calls() int64 {
	return n.calls.Load()
}

// Keys returns the total number of keys requested
func (n *Node) Keys() int64 {
	return n.keys.Load()
}

func (n *Node) handle(w http.ResponseWriter, r *http.Request) {
	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.RLock()
	rpcErr := n.rpcErr
	n.mu.RUnlock()

	var resp *jsonrpc.Response
	switch {
	case rpcErr != nil:
		resp = jsonrpc.NewErrorResponse(req.ID, rpcErr)
	case req.Method != "getMultipleAccounts":
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, "Method not found"))
	default:
		n.calls.Add(1)
		result, err := n.getMultipleAccounts(req.Params)
		if err != nil {
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
		} else {
			resp, _ = jsonrpc.NewResponse(req.ID, result)
		}
	}

	body, _ := resp.Bytes()
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (n *Node) getMultipleAccounts(params json.RawMessage) (interface{}, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return nil, err
	}
	var addrs []string
	if err := json.Unmarshal(args[0], &addrs); err != nil {
		return nil, err
	}
	var cfg struct {
		Encoding string `json:"encoding"`
	}
	if len(args) > 1 {
		_ = json.Unmarshal(args[1], &cfg)
	}
	n.keys.Add(int64(len(addrs)))

	n.mu.RLock()
	defer n.mu.RUnlock()

	values := make([]interface{}, len(addrs))
	for i, addr := range addrs {
		key, err := solana.ParsePublicKey(addr)
		if err != nil {
			return nil, err
		}
		if cfg.Encoding == "jsonParsed" {
			if ta, ok := n.tokens[key]; ok {
				values[i] = parsedTokenAccount(ta)
				continue
			}
		}
		if data, ok := n.rawData[key]; ok {
			values[i] = rawAccount(data)
			continue
		}
		if data, ok := n.accounts[key]; ok {
			values[i] = rawAccount([]string{base64.StdEncoding.EncodeToString(data), "base64"})
		}
	}

	return map[string]interface{}{
		"context": map[string]interface{}{"slot": 1},
		"value":   values,
	}, nil
}

func rawAccount(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"lamports":   2039280,
		"owner":      solana.SystemProgramID.String(),
		"executable": false,
		"rentEpoch":  uint64(18446744073709551615),
		"data":       data,
	}
}

func parsedTokenAccount(ta TokenAccount) map[string]interface{} {
	return map[string]interface{}{
		"lamports":   2039280,
		"owner":      "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		"executable": false,
		"rentEpoch":  0,
		"data": map[string]interface{}{
			"program": "spl-token",
			"space":   165,
			"parsed": map[string]interface{}{
				"type": "account",
				"info": map[string]interface{}{
					"mint":  ta.Mint,
					"owner": ta.Owner,
					"state": "initialized",
					"tokenAmount": map[string]interface{}{
						"amount":         ta.Amount,
						"decimals":       ta.Decimals,
						"uiAmountString": ta.Amount,
					},
				},
			},
		},
	}
}
