package rpc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"pfpgofer/internal/solana"
)

// Commitment is the bank state an RPC query is evaluated against
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"

	DefaultCommitment = CommitmentProcessed
)

// MaxAccountsPerRequest is the getMultipleAccounts key limit enforced by RPC nodes
const MaxAccountsPerRequest = 100

// Account is a raw account returned with base64 encoding.
// Err is set when the node returned the account but its data could not be
// decoded; such an account carries no Data.
type Account struct {
	Lamports   uint64           `json:"lamports"`
	Owner      solana.PublicKey `json:"owner"`
	Executable bool             `json:"executable"`
	RentEpoch  uint64           `json:"-"`
	Data       []byte           `json:"data"`
	Err        error            `json:"-"`
}

type rawAccount struct {
	Lamports   uint64           `json:"lamports"`
	Owner      solana.PublicKey `json:"owner"`
	Executable bool             `json:"executable"`
	RentEpoch  json.Number      `json:"rentEpoch"`
	Data       json.RawMessage  `json:"data"`
}

func (ra *rawAccount) decode() *Account {
	acc := &Account{
		Lamports:   ra.Lamports,
		Owner:      ra.Owner,
		Executable: ra.Executable,
	}
	// rentEpoch is u64::MAX for rent-exempt accounts and overflows float parsing
	if n, err := strconv.ParseUint(ra.RentEpoch.String(), 10, 64); err == nil {
		acc.RentEpoch = n
	}

	var parts []string
	if err := json.Unmarshal(ra.Data, &parts); err != nil || len(parts) != 2 || parts[1] != "base64" {
		acc.Err = fmt.Errorf("unexpected account data encoding %s", ra.Data)
		return acc
	}
	data, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		acc.Err = fmt.Errorf("failed to decode account data: %w", err)
		return acc
	}
	acc.Data = data
	return acc
}

// TokenAmount is the jsonParsed balance of an SPL token account
type TokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       uint8    `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

// AtLeastOne reports whether the balance is one whole token or more
func (ta *TokenAmount) AtLeastOne() bool {
	if ta == nil {
		return false
	}
	if amount, ok := new(big.Int).SetString(ta.Amount, 10); ok {
		unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(ta.Decimals)), nil)
		return amount.Cmp(unit) >= 0
	}
	if ta.UIAmount != nil {
		return *ta.UIAmount >= 1
	}
	return false
}

// TokenAccountInfo is the "info" object of a jsonParsed spl-token account
type TokenAccountInfo struct {
	Mint        string       `json:"mint"`
	Owner       string       `json:"owner"`
	State       string       `json:"state"`
	TokenAmount *TokenAmount `json:"tokenAmount"`
}

// ParsedAccount is an account fetched with jsonParsed encoding.
// Info is nil when the node could not parse the account as a token account.
type ParsedAccount struct {
	Lamports uint64            `json:"lamports"`
	Owner    solana.PublicKey  `json:"owner"`
	Program  string            `json:"program,omitempty"`
	Type     string            `json:"type,omitempty"`
	Info     *TokenAccountInfo `json:"info,omitempty"`
}

type rawParsedAccount struct {
	Lamports uint64           `json:"lamports"`
	Owner    solana.PublicKey `json:"owner"`
	Data     json.RawMessage  `json:"data"`
}

type parsedData struct {
	Program string `json:"program"`
	Parsed  struct {
		Type string            `json:"type"`
		Info *TokenAccountInfo `json:"info"`
	} `json:"parsed"`
}

func (ra *rawParsedAccount) decode() *ParsedAccount {
	acc := &ParsedAccount{
		Lamports: ra.Lamports,
		Owner:    ra.Owner,
	}
	// Unparseable accounts come back as ["<base64>", "base64"]
	var pd parsedData
	if err := json.Unmarshal(ra.Data, &pd); err == nil {
		acc.Program = pd.Program
		acc.Type = pd.Parsed.Type
		acc.Info = pd.Parsed.Info
	}
	return acc
}

type multipleAccountsResult[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value []*T `json:"value"`
}

type accountsConfig struct {
	Encoding   string     `json:"encoding"`
	Commitment Commitment `json:"commitment,omitempty"`
}
