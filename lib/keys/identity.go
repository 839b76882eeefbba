package keys

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tarancss/hd"
	"github.com/tyler-smith/go-bip39"

	"github.com/tarancss/walletboot/lib/secret"
)

// EntropyBits is the entropy of generated mnemonics (24 words).
const EntropyBits = 256

// Path is a BIP44 derivation path for ethereum accounts: m/44'/60'/Wallet'/Change/Index.
type Path struct {
	Wallet uint32 `json:"wallet"`
	Change uint8  `json:"change"`
	Index  uint32 `json:"index"`
}

// DefaultPath is the first external address of the first wallet.
var DefaultPath = Path{Wallet: 0, Change: hd.External, Index: 0} //nolint:gochecknoglobals // fixed convention

// String renders the path in the usual m/... notation.
func (p Path) String() string {
	return fmt.Sprintf("m/44'/60'/%d'/%d/%d", p.Wallet, p.Change, p.Index)
}

// Identity is the wallet's cryptographic identity. Address is a pure function of Mnemonic and Path.
//
// The mnemonic is a secret.Mnemonic, so printing or logging an Identity never reveals it. Call Wipe once the phrase
// is not needed anymore.
type Identity struct {
	Mnemonic *secret.Mnemonic `json:"-"`
	Address  string           `json:"address"`
	Path     Path             `json:"path"`
}

// Wipe zeroes the mnemonic, keeping address and path.
func (i *Identity) Wipe() {
	if i != nil {
		i.Mnemonic.Wipe()
	}
}

// Derive returns the EIP-55 address for phrase at path. The same phrase and path always yield the same address.
func Derive(phrase []byte, path Path) (string, error) {
	if !bip39.IsMnemonicValid(string(phrase)) {
		return "", ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(string(phrase), "")
	defer secret.Zero(seed)

	return deriveFromSeed(seed, path)
}

// deriveFromSeed derives the address for path from a BIP39 seed.
func deriveFromSeed(seed []byte, path Path) (string, error) {
	w, err := hd.Init(seed)
	if err != nil {
		return "", fmt.Errorf("cannot initialise hd wallet: %w", err)
	}

	addr, key, _, err := w.Address(path.Wallet, path.Change, path.Index)
	secret.Zero(key)

	if err != nil {
		return "", fmt.Errorf("cannot derive address at %s: %w", path, err)
	}

	if len(addr) != common.AddressLength {
		return "", fmt.Errorf("%w: derived %d bytes", ErrInvalidAddress, len(addr))
	}

	return common.BytesToAddress(addr).Hex(), nil
}

// newMnemonic generates a fresh phrase from crypto/rand entropy.
func newMnemonic() (*secret.Mnemonic, error) {
	entropy, err := bip39.NewEntropy(EntropyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to read entropy: %w", err)
	}
	defer secret.Zero(entropy)

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	return secret.NewMnemonic([]byte(phrase)), nil
}

// SameAddress compares two addresses ignoring the EIP-55 checksum casing.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
