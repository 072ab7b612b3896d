package account

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SignedMessage holds a signature and its components
type SignedMessage struct {
	Hash      common.Hash   `json:"messageHash"`
	R         *big.Int      `json:"r"`
	S         *big.Int      `json:"s"`
	V         uint8         `json:"v"`
	Signature hexutil.Bytes `json:"signature"`
}

func newSignedMessage(hash common.Hash, sig []byte) *SignedMessage {
	return &SignedMessage{
		Hash:      hash,
		R:         new(big.Int).SetBytes(sig[:32]),
		S:         new(big.Int).SetBytes(sig[32:64]),
		V:         sig[64],
		Signature: sig,
	}
}

// typedDataKeys must all be present for a JSON document to be signed as EIP-712
var typedDataKeys = []string{"types", "primaryType", "domain", "message"}

// MessageHash returns the digest SignMessage signs for data.
//
// EIP-712 typed data is recognized as apitypes.TypedData, a map, or a JSON
// string with types, primaryType, domain and message. Everything else is
// hashed as an EIP-191 personal message: []byte as is, a 0x string as the
// bytes it encodes, any other string as text.
func MessageHash(data interface{}) (common.Hash, error) {
	switch v := data.(type) {
	case apitypes.TypedData:
		return typedDataHash(v)
	case *apitypes.TypedData:
		return typedDataHash(*v)
	case map[string]interface{}:
		td, err := toTypedData(v)
		if err != nil {
			return common.Hash{}, err
		}
		return typedDataHash(td)
	case []byte:
		return common.BytesToHash(accounts.TextHash(v)), nil
	case string:
		if td, ok := parseTypedDataJSON(v); ok {
			return typedDataHash(td)
		}
		if strings.HasPrefix(v, "0x") {
			raw, err := hexutil.Decode(v)
			if err != nil {
				return common.Hash{}, fmt.Errorf("decode hex message: %w", err)
			}
			return common.BytesToHash(accounts.TextHash(raw)), nil
		}
		return common.BytesToHash(accounts.TextHash([]byte(v))), nil
	default:
		return common.Hash{}, fmt.Errorf("unsupported message type %T", data)
	}
}

// SignMessage signs data; see MessageHash for the accepted shapes
func (a *Account) SignMessage(data interface{}) (*SignedMessage, error) {
	hash, err := MessageHash(data)
	if err != nil {
		return nil, err
	}
	return a.SignHash(hash)
}

// Sign signs data and returns the 65 byte signature only
func (a *Account) Sign(data interface{}) ([]byte, error) {
	signed, err := a.SignMessage(data)
	if err != nil {
		return nil, err
	}
	return signed.Signature, nil
}

func typedDataHash(td apitypes.TypedData) (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash typed data: %w", err)
	}
	return common.BytesToHash(hash), nil
}

func toTypedData(m map[string]interface{}) (apitypes.TypedData, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return apitypes.TypedData{}, err
	}
	var td apitypes.TypedData
	if err := json.Unmarshal(raw, &td); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("invalid typed data: %w", err)
	}
	return td, nil
}

func parseTypedDataJSON(s string) (apitypes.TypedData, bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return apitypes.TypedData{}, false
	}
	for _, k := range typedDataKeys {
		if _, ok := doc[k]; !ok {
			return apitypes.TypedData{}, false
		}
	}
	var td apitypes.TypedData
	if err := json.Unmarshal([]byte(s), &td); err != nil {
		return apitypes.TypedData{}, false
	}
	return td, true
}
