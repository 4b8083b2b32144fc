package rpcerr

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want Kind
	}{
		{"sync overflow", "broadcast_tx_sync response: mempool is full", SyncTx},
		{"check tx", "Transaction check error: insufficient funds", CheckTx},
		{"send error", "error sending request for url", SendErr},
		{"invalid nonce", "InternalError: InvalidNonce { expected: 3, got: 1 }", TxInternalInvalidNonce},
		{"other internal", "InternalError: something else entirely", TxInternalOther},
		{"unknown", "connection reset by peer", Unknown},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			classified := Classify(errors.New(c.msg))
			if classified.Kind != c.want {
				t.Fatalf("Classify(%q) = %v, want %v", c.msg, classified.Kind, c.want)
			}
			if classified.Unwrap() == nil {
				t.Fatalf("Unwrap() should return the original error")
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatalf("Classify(nil) should return nil")
	}
}
