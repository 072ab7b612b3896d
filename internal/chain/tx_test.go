package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"w3ext/internal/abis"
	"w3ext/internal/account"
	"w3ext/internal/cache"
	"w3ext/internal/jsonrpc"
	"w3ext/internal/rpctest"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// signingMethods answers everything SendTransaction needs and decodes the raw
// transaction it receives into *sent
func signingMethods(sent **types.Transaction) rpctest.Methods {
	return rpctest.Methods{
		"eth_getTransactionCount":  rpctest.Static("0x5"),
		"eth_feeHistory":           rpctest.Static(map[string]interface{}{"oldestBlock": "0x1", "baseFeePerGas": []string{"0x64", "0x64"}}),
		"eth_getBlockByNumber":     rpctest.Static(map[string]interface{}{"baseFeePerGas": "0x64"}),
		"eth_maxPriorityFeePerGas": rpctest.Static("0x2"),
		"eth_estimateGas":          rpctest.Static("0x5208"),
		"eth_sendRawTransaction": func(p []json.RawMessage) (interface{}, *jsonrpc.Error) {
			var raw hexutil.Bytes
			if err := json.Unmarshal(p[0], &raw); err != nil {
				return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())
			}
			tx := new(types.Transaction)
			if err := tx.UnmarshalBinary(raw); err != nil {
				return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error())
			}
			*sent = tx
			return tx.Hash(), nil
		},
	}
}

func TestSendTransactionSignsLocally(t *testing.T) {
	signer, err := account.FromKey(testKey)
	if err != nil {
		t.Fatalf("FromKey: %v", err)
	}

	var sent *types.Transaction
	c, client := newTestChain(signingMethods(&sent))

	to := bob
	hash, err := c.SendTransaction(context.Background(), TxParams{To: &to, Value: big.NewInt(1000)}, signer)
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sent == nil {
		t.Fatal("no raw transaction sent")
	}
	if hash != sent.Hash() {
		t.Errorf("hash = %s, want %s", hash.Hex(), sent.Hash().Hex())
	}

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), sent)
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	if from != signer.Address() {
		t.Errorf("sender = %s, want %s", from.Hex(), signer.Address().Hex())
	}
	if sent.Nonce() != 5 {
		t.Errorf("nonce = %d, want 5", sent.Nonce())
	}
	if sent.Gas() != 21000 {
		t.Errorf("gas = %d, want 21000", sent.Gas())
	}
	if sent.Type() != types.DynamicFeeTxType || sent.GasFeeCap().Int64() != 122 || sent.GasTipCap().Int64() != 2 {
		t.Errorf("fees = type %d cap %v tip %v, want dynamic 122/2", sent.Type(), sent.GasFeeCap(), sent.GasTipCap())
	}
	if client.CountCalls("eth_sendTransaction") != 0 {
		t.Error("eth_sendTransaction used with a local signer")
	}
}

func TestSendTransactionUsesActiveSigner(t *testing.T) {
	signer, err := account.FromKey(testKey)
	if err != nil {
		t.Fatalf("FromKey: %v", err)
	}

	var sent *types.Transaction
	c, _ := newTestChain(signingMethods(&sent))
	ctx := c.UseAccount(context.Background(), signer)

	if _, ok := c.ActiveSigner(context.Background(), signer.Address()); ok {
		t.Error("signer active outside its context")
	}

	from, to := signer.Address(), bob
	if _, err := c.SendTransaction(ctx, TxParams{From: &from, To: &to}, nil); err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sent == nil {
		t.Fatal("active signer was not used")
	}
}

func TestSendTransactionWithoutSigner(t *testing.T) {
	var params []json.RawMessage
	c, _ := newTestChain(rpctest.Methods{
		"eth_sendTransaction": func(p []json.RawMessage) (interface{}, *jsonrpc.Error) {
			params = p
			return common.Hash{7}, nil
		},
	})

	to := bob
	hash, err := c.SendTransaction(context.Background(), TxParams{From: &alice, To: &to, Data: []byte{0x01, 0x02}}, nil)
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if hash != (common.Hash{7}) {
		t.Errorf("hash = %s, want node hash", hash.Hex())
	}

	var msg map[string]string
	if err := json.Unmarshal(params[0], &msg); err != nil {
		t.Fatalf("decode tx: %v", err)
	}
	if msg["data"] != "0x0102" {
		t.Errorf("data = %q, want 0x0102", msg["data"])
	}
	if _, ok := msg["nonce"]; ok {
		t.Error("node-managed transaction got a nonce")
	}
}

func TestContractCall(t *testing.T) {
	erc20 := abis.ERC20()
	out, err := erc20.Methods["balanceOf"].Outputs.Pack(big.NewInt(42))
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	var data hexutil.Bytes
	c, _ := newTestChain(rpctest.Methods{
		"eth_call": func(p []json.RawMessage) (interface{}, *jsonrpc.Error) {
			var msg struct {
				Data hexutil.Bytes `json:"data"`
			}
			_ = json.Unmarshal(p[0], &msg)
			data = msg.Data
			return hexutil.Bytes(out), nil
		},
	})

	token := c.Contract(common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"), erc20)
	balance, err := CallAs[*big.Int](context.Background(), token, CallOpts{}, "balanceOf", alice)
	if err != nil {
		t.Fatalf("CallAs: %v", err)
	}
	if balance.Int64() != 42 {
		t.Errorf("balanceOf = %v, want 42", balance)
	}

	want, _ := token.Pack("balanceOf", alice)
	if hexutil.Encode(data) != hexutil.Encode(want) {
		t.Errorf("call data = %x, want %x", data, want)
	}
}

func TestContractBuildTransaction(t *testing.T) {
	var sent *types.Transaction
	c, _ := newTestChain(signingMethods(&sent))
	token := c.Contract(common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"), abis.ERC20())

	tx, err := token.BuildTransaction(context.Background(), alice, TxParams{}, "transfer", bob, big.NewInt(1))
	if err != nil {
		t.Fatalf("BuildTransaction: %v", err)
	}
	if tx.To == nil || *tx.To != token.Address() {
		t.Errorf("to = %v, want contract", tx.To)
	}
	if tx.Nonce == nil || *tx.Nonce != 5 || tx.Gas != 21000 || tx.ChainID.Int64() != 1 {
		t.Errorf("prepared tx = nonce %v gas %d chain %v", tx.Nonce, tx.Gas, tx.ChainID)
	}
	if _, err := tx.ToTransaction(); err != nil {
		t.Errorf("ToTransaction: %v", err)
	}
}

func TestCacheMiddleware(t *testing.T) {
	mc, err := cache.NewMemoryCache[json.RawMessage](100, 0)
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	defer mc.Close()

	c, client := newTestChain(rpctest.Methods{
		"eth_getBalance": rpctest.Static("0x10"),
	})
	c.middlewares = append(c.middlewares, CacheMiddleware(mc, nil, "1"))

	for i := 0; i < 3; i++ {
		if err := c.VerifyChainID(context.Background()); err != nil {
			t.Fatalf("VerifyChainID: %v", err)
		}
	}
	if n := client.CountCalls("eth_chainId"); n != 1 {
		t.Errorf("eth_chainId sent %d times, want 1", n)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Balance(context.Background(), alice); err != nil {
			t.Fatalf("Balance: %v", err)
		}
	}
	if n := client.CountCalls("eth_getBalance"); n != 2 {
		t.Errorf("latest eth_getBalance sent %d times, want 2", n)
	}

	var pinned hexutil.Big
	for i := 0; i < 2; i++ {
		if err := c.CallContext(context.Background(), &pinned, "eth_getBalance", alice, "0x10"); err != nil {
			t.Fatalf("CallContext: %v", err)
		}
	}
	if n := client.CountCalls("eth_getBalance"); n != 3 {
		t.Errorf("pinned eth_getBalance sent %d times in total, want 3", n)
	}
	if pinned.ToInt().Int64() != 16 {
		t.Errorf("cached balance = %v, want 16", pinned.ToInt())
	}
}
