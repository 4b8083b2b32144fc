// Package keys generates and persists the KeyPairs the Funding Planner and
// Worker Pool consume: fresh BIP-39 mnemonics derived down BIP-32 path
// m/44'/60'/0'/0/0 to a secp256k1 scalar, then to a Keccak-256 address.
package keys

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/findoranetwork/feth/internal/feth"
)

// hardened offsets the derivation path's hardened segments per BIP-32.
const hardened = bip32.FirstHardenedChild

// New generates a fresh KeyPair from a 12-word BIP-39 mnemonic, derived
// along m/44'/60'/0'/0/0.
func New() (feth.KeyPair, error) {
	entropy, err := bip39.NewEntropy(128) // 128 bits -> 12 words
	if err != nil {
		return feth.KeyPair{}, fmt.Errorf("keys: entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return feth.KeyPair{}, fmt.Errorf("keys: mnemonic: %w", err)
	}
	return FromMnemonic(mnemonic)
}

// FromMnemonic derives a KeyPair deterministically from an existing
// mnemonic, useful for tests that need reproducible addresses.
func FromMnemonic(mnemonic string) (feth.KeyPair, error) {
	seed := bip39.NewSeed(mnemonic, "")

	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return feth.KeyPair{}, fmt.Errorf("keys: master key: %w", err)
	}

	// m/44'/60'/0'/0/0
	path := []uint32{44 + hardened, 60 + hardened, 0 + hardened, 0, 0}
	child := master
	for _, idx := range path {
		child, err = child.NewChildKey(idx)
		if err != nil {
			return feth.KeyPair{}, fmt.Errorf("keys: derive %d: %w", idx, err)
		}
	}

	priv, err := crypto.ToECDSA(child.Key)
	if err != nil {
		return feth.KeyPair{}, fmt.Errorf("keys: to ecdsa: %w", err)
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)

	return feth.KeyPair{
		Address: addr.Hex(),
		Private: hex.EncodeToString(crypto.FromECDSA(priv)),
	}, nil
}

// GenerateN generates n fresh, independent KeyPairs.
func GenerateN(n int) ([]feth.KeyPair, error) {
	out := make([]feth.KeyPair, 0, n)
	for i := 0; i < n; i++ {
		kp, err := New()
		if err != nil {
			return nil, err
		}
		out = append(out, kp)
	}
	return out, nil
}

// Load reads a JSON array of KeyPair from path (source_keys.001 layout).
func Load(path string) ([]feth.KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys []feth.KeyPair
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("keys: decode %s: %w", path, err)
	}
	return keys, nil
}

// Save writes keys as a JSON array to path. If path already exists, it is
// first renamed to a ".bak" sibling (resize-upward-safe rewrite).
func Save(path string, keys []feth.KeyPair) error {
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".bak"); err != nil {
			return fmt.Errorf("keys: backup %s: %w", path, err)
		}
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("keys: encode: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Exists reports whether path already exists, used to refuse overwriting
// an existing source key file when generating a fresh set.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadSecret reads and whitespace-trims the root account's hex-encoded
// private key from a ".secret" file.
func LoadSecret(path string) (feth.KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return feth.KeyPair{}, fmt.Errorf("keys: read secret %s: %w", path, err)
	}
	hexKey := strings.TrimSpace(string(data))
	hexKey = strings.TrimPrefix(hexKey, "0x")
	priv, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return feth.KeyPair{}, fmt.Errorf("keys: parse secret: %w", err)
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)
	return feth.KeyPair{Address: addr.Hex(), Private: hexKey}, nil
}
