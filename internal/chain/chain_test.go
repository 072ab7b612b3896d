package chain

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"w3ext/internal/batcher"
	"w3ext/internal/jsonrpc"
	"w3ext/internal/rpctest"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newTestChain(methods rpctest.Methods, opts ...Option) (*Chain, *rpctest.Client) {
	if _, ok := methods["eth_chainId"]; !ok {
		methods["eth_chainId"] = rpctest.Static(hexutil.Uint64(1))
	}
	client := rpctest.NewClient(methods.Handle)
	return New(1, append([]Option{WithClient(client)}, opts...)...), client
}

func TestConnectClientVerifiesChainID(t *testing.T) {
	client := rpctest.NewClient(rpctest.Methods{
		"eth_chainId": rpctest.Static(hexutil.Uint64(56)),
	}.Handle)

	c := New(1)
	err := c.ConnectClient(context.Background(), client)
	if !errors.Is(err, ErrChainIDMismatch) {
		t.Fatalf("ConnectClient error = %v, want ErrChainIDMismatch", err)
	}
	if c.Client() != nil {
		t.Error("client attached after failed verification")
	}

	_, err = c.Balance(context.Background(), alice)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Balance error = %v, want ErrNotConnected", err)
	}
}

func TestBalance(t *testing.T) {
	c, _ := newTestChain(rpctest.Methods{
		"eth_getBalance": rpctest.Static("0xde0b6b3a7640000"),
	})

	balance, err := c.Balance(context.Background(), alice)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance.String() != "1 ETH" {
		t.Errorf("Balance = %s, want 1 ETH", balance)
	}
}

func TestBatchScopeCoalescesCalls(t *testing.T) {
	c, client := newTestChain(rpctest.Methods{
		"eth_getBalance": rpctest.Static("0x1"),
	})

	ctx, b := c.UseBatch(context.Background(), batcher.Options{MaxSize: 5, MaxWait: time.Second})
	defer b.Close()
	if !c.InBatch(ctx) {
		t.Fatal("InBatch = false inside the scope")
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Balance(ctx, alice); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Balance: %v", err)
	}

	batches := client.Batches()
	if len(batches) != 1 || batches[0] != 5 {
		t.Errorf("batches = %v, want [5]", batches)
	}
}

func TestBatchScopeIsPerChain(t *testing.T) {
	a, clientA := newTestChain(rpctest.Methods{"eth_getBalance": rpctest.Static("0x1")})
	other, clientB := newTestChain(rpctest.Methods{"eth_getBalance": rpctest.Static("0x1")})

	ctx, b := a.UseBatch(context.Background(), batcher.Options{MaxSize: 1})
	defer b.Close()

	if _, err := other.Balance(ctx, alice); err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if len(clientB.Batches()) != 0 {
		t.Errorf("other chain batched %v, want direct call", clientB.Batches())
	}

	if _, err := a.Balance(ctx, alice); err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if len(clientA.Batches()) != 1 {
		t.Errorf("batches = %v, want one", clientA.Batches())
	}
}

func TestBatchScopeBypassesUnbatchable(t *testing.T) {
	c, client := newTestChain(rpctest.Methods{
		"eth_sendRawTransaction": rpctest.Static(common.Hash{1}),
	})

	err := c.WithBatch(context.Background(), batcher.Options{}, func(ctx context.Context) error {
		_, err := c.SendRawTransaction(ctx, []byte{0x01})
		return err
	})
	if err != nil {
		t.Fatalf("SendRawTransaction: %v", err)
	}
	if len(client.Batches()) != 0 {
		t.Errorf("batches = %v, want none", client.Batches())
	}
}

func TestContextMiddlewareAppliesOnlyToItsContext(t *testing.T) {
	c, _ := newTestChain(rpctest.Methods{
		"eth_getBalance": rpctest.Static("0x1"),
	})

	var seen atomic.Int32
	counting := func(next Handler) Handler {
		return func(ctx context.Context, result interface{}, method string, args ...interface{}) error {
			seen.Add(1)
			return next(ctx, result, method, args...)
		}
	}

	ctx := c.WithMiddleware(context.Background(), counting)
	if _, err := c.Balance(ctx, alice); err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if _, err := c.Balance(context.Background(), alice); err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if seen.Load() != 1 {
		t.Errorf("middleware saw %d calls, want 1", seen.Load())
	}

	other, _ := newTestChain(rpctest.Methods{"eth_getBalance": rpctest.Static("0x1")})
	if _, err := other.Balance(ctx, alice); err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if seen.Load() != 1 {
		t.Errorf("middleware of one chain ran for another")
	}
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, result interface{}, method string, args ...interface{}) error {
				order = append(order, name)
				return next(ctx, result, method, args...)
			}
		}
	}

	c, _ := newTestChain(rpctest.Methods{}, WithMiddlewares(tag("chain")))
	ctx := c.WithMiddleware(context.Background(), tag("outer"))
	ctx = c.WithMiddleware(ctx, tag("inner"))

	if err := c.CallContext(ctx, nil, "eth_chainId"); err != nil {
		t.Fatalf("CallContext: %v", err)
	}
	want := []string{"outer", "inner", "chain"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}

func TestCallSendsStateOverride(t *testing.T) {
	var params []json.RawMessage
	c, _ := newTestChain(rpctest.Methods{
		"eth_call": func(p []json.RawMessage) (interface{}, *jsonrpc.Error) {
			params = p
			return "0x01", nil
		},
	})

	to := bob
	override := StateOverride{bob: {Code: hexutil.Bytes{0x60}}}
	out, err := c.Call(context.Background(), TxParams{To: &to, Data: []byte{0xaa}}, CallOpts{From: &alice, StateOverride: override})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(out) != 1 || out[0] != 1 {
		t.Errorf("Call = %x, want 01", out)
	}
	if len(params) != 3 {
		t.Fatalf("eth_call got %d params, want 3", len(params))
	}

	var msg map[string]string
	if err := json.Unmarshal(params[0], &msg); err != nil {
		t.Fatalf("decode tx: %v", err)
	}
	if msg["data"] != "0xaa" {
		t.Errorf("data = %q, want 0xaa", msg["data"])
	}
	if !common.IsHexAddress(msg["from"]) || common.HexToAddress(msg["from"]) != alice {
		t.Errorf("from = %q, want %s", msg["from"], alice.Hex())
	}
	if string(params[1]) != `"latest"` {
		t.Errorf("block = %s, want \"latest\"", params[1])
	}
}

func TestFillGasPrice(t *testing.T) {
	t.Run("eip1559", func(t *testing.T) {
		c, client := newTestChain(rpctest.Methods{
			"eth_feeHistory":           rpctest.Static(map[string]interface{}{"oldestBlock": "0x1", "baseFeePerGas": []string{"0x64", "0x64"}}),
			"eth_getBlockByNumber":     rpctest.Static(map[string]interface{}{"baseFeePerGas": "0x64"}),
			"eth_maxPriorityFeePerGas": rpctest.Static("0x2"),
		})

		var tx TxParams
		if err := c.FillGasPrice(context.Background(), &tx); err != nil {
			t.Fatalf("FillGasPrice: %v", err)
		}
		if tx.MaxPriorityFeePerGas.Int64() != 2 {
			t.Errorf("tip = %v, want 2", tx.MaxPriorityFeePerGas)
		}
		if tx.MaxFeePerGas.Int64() != 122 {
			t.Errorf("max fee = %v, want 122", tx.MaxFeePerGas)
		}
		if tx.GasPrice != nil {
			t.Errorf("gas price = %v, want unset", tx.GasPrice)
		}

		if _, err := c.IsEIP1559(context.Background()); err != nil {
			t.Fatalf("IsEIP1559: %v", err)
		}
		if n := client.CountCalls("eth_feeHistory"); n != 1 {
			t.Errorf("eth_feeHistory called %d times, want 1", n)
		}
	})

	t.Run("legacy", func(t *testing.T) {
		c, _ := newTestChain(rpctest.Methods{
			"eth_feeHistory": rpctest.Static(map[string]interface{}{"oldestBlock": "0x1", "baseFeePerGas": []string{"0x0", "0x0"}}),
			"eth_gasPrice":   rpctest.Static("0x3b9aca00"),
		})

		var tx TxParams
		if err := c.FillGasPrice(context.Background(), &tx); err != nil {
			t.Fatalf("FillGasPrice: %v", err)
		}
		if tx.GasPrice.Int64() != 1_000_000_000 {
			t.Errorf("gas price = %v, want 1000000000", tx.GasPrice)
		}
		if tx.IsDynamicFee() {
			t.Error("legacy chain got fee caps")
		}
	})
}

func TestToTransaction(t *testing.T) {
	nonce := uint64(3)
	to := bob

	legacy, err := TxParams{To: &to, Nonce: &nonce, Gas: 21000, GasPrice: big.NewInt(7)}.ToTransaction()
	if err != nil {
		t.Fatalf("ToTransaction: %v", err)
	}
	if legacy.Type() != types.LegacyTxType {
		t.Errorf("type = %d, want legacy", legacy.Type())
	}

	dynamic, err := TxParams{
		To: &to, Nonce: &nonce, Gas: 21000, ChainID: big.NewInt(1),
		MaxFeePerGas: big.NewInt(10), MaxPriorityFeePerGas: big.NewInt(1),
	}.ToTransaction()
	if err != nil {
		t.Fatalf("ToTransaction: %v", err)
	}
	if dynamic.Type() != types.DynamicFeeTxType {
		t.Errorf("type = %d, want dynamic fee", dynamic.Type())
	}

	if _, err := (TxParams{To: &to, Gas: 21000}).ToTransaction(); !errors.Is(err, ErrIncompleteTx) {
		t.Errorf("missing nonce error = %v, want ErrIncompleteTx", err)
	}
}

func TestWaitForReceipt(t *testing.T) {
	hash := common.HexToHash("0x1234")
	var polls atomic.Int32
	c, _ := newTestChain(rpctest.Methods{
		"eth_getTransactionReceipt": func([]json.RawMessage) (interface{}, *jsonrpc.Error) {
			if polls.Add(1) < 3 {
				return nil, nil
			}
			return &types.Receipt{
				Status:            types.ReceiptStatusSuccessful,
				CumulativeGasUsed: 21000,
				GasUsed:           21000,
				Logs:              []*types.Log{},
				TxHash:            hash,
				BlockNumber:       big.NewInt(10),
			}, nil
		},
	}, WithReceiptPollInterval(10*time.Millisecond))

	receipt, err := c.WaitForReceipt(context.Background(), hash, time.Second)
	if err != nil {
		t.Fatalf("WaitForReceipt: %v", err)
	}
	if receipt.TxHash != hash {
		t.Errorf("receipt hash = %s, want %s", receipt.TxHash.Hex(), hash.Hex())
	}
	if polls.Load() != 3 {
		t.Errorf("polled %d times, want 3", polls.Load())
	}
}

func TestWaitForReceiptTimeout(t *testing.T) {
	c, _ := newTestChain(rpctest.Methods{
		"eth_getTransactionReceipt": rpctest.Static(nil),
	}, WithReceiptPollInterval(5*time.Millisecond))

	_, err := c.WaitForReceipt(context.Background(), common.Hash{1}, 30*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForReceipt error = %v, want deadline exceeded", err)
	}
}

func TestTxScanURL(t *testing.T) {
	hash := common.HexToHash("0xab")

	c := New(1, WithScan("https://etherscan.io/"))
	if got, want := c.TxScanURL(hash), "https://etherscan.io/tx/"+hash.Hex(); got != want {
		t.Errorf("TxScanURL = %s, want %s", got, want)
	}

	if got := New(1).TxScanURL(hash); got != hash.Hex() {
		t.Errorf("TxScanURL without scan = %s, want %s", got, hash.Hex())
	}
}

func TestRegistry(t *testing.T) {
	c := New(1, WithName("Ethereum"))
	c.Register("usdc", 42)

	v, ok := c.Lookup("usdc")
	if !ok || v.(int) != 42 {
		t.Errorf("Lookup = %v, %v, want 42, true", v, ok)
	}
	if _, ok := c.Lookup("dai"); ok {
		t.Error("Lookup of unknown alias succeeded")
	}
	if c.String() != "Ethereum" || New(5).String() != "Chain#5" {
		t.Errorf("String = %s / %s", c.String(), New(5).String())
	}
}
