// Package signer performs deterministic, local signing of plain
// value-transfer transactions. Pure and side-effect free: no I/O, safe to
// call concurrently from multiple Dispatchers.
package signer

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultGasLimit is the fixed cost of a plain value transfer.
const DefaultGasLimit = 21000

// Parameters is the canonical input to Sign: everything the Nonce Tracker
// and run-level sampling own, bundled for one transaction.
type Parameters struct {
	To       common.Address
	Value    *big.Int
	ChainID  *big.Int
	GasPrice *big.Int
	Nonce    uint64
	GasLimit uint64 // 0 defaults to DefaultGasLimit
	Data     []byte // non-nil for contract calls
}

// Sign builds a legacy transaction from p and signs it with key, returning
// the signed transaction ready for eth_sendRawTransaction.
func Sign(p Parameters, key *ecdsa.PrivateKey) (*types.Transaction, error) {
	gasLimit := p.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	tx := types.NewTransaction(p.Nonce, p.To, p.Value, gasLimit, p.GasPrice, p.Data)
	return types.SignTx(tx, types.NewEIP155Signer(p.ChainID), key)
}

// ParseKey decodes a hex-encoded secp256k1 private key (with or without a
// 0x prefix).
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if len(hexKey) > 1 && hexKey[0:2] == "0x" {
		hexKey = hexKey[2:]
	}
	return crypto.HexToECDSA(hexKey)
}

// Address derives the checksummed address for a private key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
