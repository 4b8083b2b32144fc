// Package rpcerr classifies JSON-RPC submission errors into the taxonomy
// that drives the Dispatcher's retry and overflow-coordination decisions.
//
// Classification is substring-based: EVM-compatible nodes in the wild
// don't agree on numeric JSON-RPC error codes for these conditions (the
// same "nonce too low" failure shows up under different codes, or none
// at all, depending on the node implementation), but their error text
// is consistent enough to match on directly.
package rpcerr

import (
	"strings"
)

// Kind is the taxonomy from spec §7.
type Kind int

const (
	Unknown Kind = iota
	SyncTx       // mempool overflow: "broadcast_tx_sync"
	CheckTx      // "Transaction check error"
	SendErr      // transport/timeout: "error sending request"
	TxInternalInvalidNonce
	TxInternalOther
)

func (k Kind) String() string {
	switch k {
	case SyncTx:
		return "SyncTx"
	case CheckTx:
		return "CheckTx"
	case SendErr:
		return "SendErr"
	case TxInternalInvalidNonce:
		return "TxInternalErr::InvalidNonce"
	case TxInternalOther:
		return "TxInternalErr::Other"
	default:
		return "Unknown"
	}
}

// Classified wraps the original error with its taxonomy Kind.
type Classified struct {
	Kind Kind
	Err  error
}

func (c *Classified) Error() string { return c.Kind.String() + ": " + c.Err.Error() }
func (c *Classified) Unwrap() error { return c.Err }

// Classify inspects err (typically returned from SendRawTransaction) and
// assigns it a Kind. A nil err returns nil.
func Classify(err error) *Classified {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "broadcast_tx_sync"):
		return &Classified{Kind: SyncTx, Err: err}
	case strings.Contains(msg, "Transaction check error"):
		return &Classified{Kind: CheckTx, Err: err}
	case strings.Contains(msg, "error sending request"):
		return &Classified{Kind: SendErr, Err: err}
	case strings.Contains(msg, "InternalError") && strings.Contains(msg, "InvalidNonce"):
		return &Classified{Kind: TxInternalInvalidNonce, Err: err}
	case strings.Contains(msg, "InternalError"):
		return &Classified{Kind: TxInternalOther, Err: err}
	default:
		return &Classified{Kind: Unknown, Err: err}
	}
}
