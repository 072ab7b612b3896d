// Package account holds private keys and signs messages and transactions with them.
package account

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned when a signature cannot be recovered
var ErrInvalidSignature = errors.New("invalid signature")

// Account is a local private key account
type Account struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// FromKey creates an Account from a hex private key, with or without 0x
func FromKey(hexKey string) (*Account, error) {
	hexKey = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"), "0X")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return fromECDSA(key), nil
}

// Generate creates an Account with a random key
func Generate() (*Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return fromECDSA(key), nil
}

func fromECDSA(key *ecdsa.PrivateKey) *Account {
	return &Account{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the checksummed account address
func (a *Account) Address() common.Address {
	return a.address
}

// String returns the checksummed hex address
func (a *Account) String() string {
	return a.address.Hex()
}

// KeyHex returns the private key as 0x-prefixed hex
func (a *Account) KeyHex() string {
	return "0x" + common.Bytes2Hex(crypto.FromECDSA(a.key))
}

// SignTx signs a transaction for chainID with the latest signer the chain supports
func (a *Account) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), a.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// SignHash signs a 32 byte digest; V of the result is 27 or 28
func (a *Account) SignHash(hash common.Hash) (*SignedMessage, error) {
	sig, err := crypto.Sign(hash.Bytes(), a.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return newSignedMessage(hash, sig), nil
}

// Recover returns the address that produced sig over hash.
// V may be given as 0/1 or 27/28.
func Recover(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
