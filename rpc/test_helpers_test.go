package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"offerswap/core"
	"offerswap/core/genesis"
	"offerswap/core/types"
	"offerswap/crypto"
	"offerswap/native/escrow"
	"offerswap/storage"
)

const (
	testJWTEnvVar = "RPC_TEST_JWT_SECRET"
	testJWTSecret = "rpc-test-secret"
	testIssuer    = "rpc-tests"
)

type testEnv struct {
	node   *core.Node
	server *Server
	http   *httptest.Server
	maker  *crypto.PrivateKey
	taker  *crypto.PrivateKey
	nonce  uint64
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGenesis(t testing.TB, maker, taker [20]byte) *genesis.GenesisSpec {
	t.Helper()
	raw := fmt.Sprintf(`{
  "genesisTime": "2024-01-01T00:00:00Z",
  "assets": [{"symbol": "TKA", "decimals": 6}, {"symbol": "TKB", "decimals": 6}],
  "deposits": {"recordBase": 1000, "perByte": 10},
  "nativeAlloc": {"%[1]s": "100000", "%[2]s": "100000"},
  "alloc": {"%[1]s": {"TKA": "100"}, "%[2]s": {"TKB": "50"}}
}`, crypto.FormatAccount(maker), crypto.FormatAccount(taker))
	spec, err := genesis.ParseGenesisSpec([]byte(raw), ".json")
	require.NoError(t, err)
	return spec
}

// newTestEnv starts a node on an in-memory store and serves it over
// httptest. The node only produces blocks when the test asks for them
// unless run is set.
func newTestEnv(t testing.TB, cfg ServerConfig, run bool) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })

	maker, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	taker, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	nodeCfg := core.DefaultConfig()
	nodeCfg.BlockInterval = 20 * time.Millisecond
	node, err := core.NewNode(db, nodeCfg, quietLogger())
	require.NoError(t, err)
	require.NoError(t, node.InitGenesis(testGenesis(t, addrOf(maker), addrOf(taker))))

	if cfg.DevFaucet {
		t.Setenv(testJWTEnvVar, testJWTSecret)
		cfg.JWTSecretEnv = testJWTEnvVar
		cfg.JWTIssuer = testIssuer
	}
	server, err := NewServer(node, cfg, quietLogger())
	require.NoError(t, err)

	env := &testEnv{node: node, server: server, maker: maker, taker: taker}
	env.http = httptest.NewServer(server.Handler())
	t.Cleanup(env.http.Close)

	if run {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = node.Run(ctx)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
	}
	return env
}

func addrOf(key *crypto.PrivateKey) [20]byte {
	return key.PubKey().Address().Array()
}

func asset(t testing.TB, symbol string) [20]byte {
	t.Helper()
	addr, err := genesis.Asset(symbol)
	require.NoError(t, err)
	return addr
}

func (e *testEnv) signed(t testing.TB, key *crypto.PrivateKey, txType types.TxType, accounts []common.Address, data []byte) *types.Transaction {
	t.Helper()
	e.nonce++
	tx := &types.Transaction{Type: txType, Nonce: e.nonce, Accounts: accounts, Data: data}
	require.NoError(t, tx.Sign(key.PrivateKey))
	return tx
}

func (e *testEnv) makeTx(t testing.TB, id, amountA, wantedB uint64) *types.Transaction {
	t.Helper()
	accts, err := escrow.DeriveMakeOfferAccounts(addrOf(e.maker), id, asset(t, "TKA"), asset(t, "TKB"))
	require.NoError(t, err)
	data, err := escrow.MakeOfferData{ID: id, AmountA: amountA, WantedB: wantedB}.Encode()
	require.NoError(t, err)
	return e.signed(t, e.maker, types.TxTypeMakeOffer, accts.List(), data)
}

func (e *testEnv) takeTx(t testing.TB, id uint64) *types.Transaction {
	t.Helper()
	accts, err := escrow.DeriveTakeOfferAccounts(addrOf(e.taker), addrOf(e.maker), id, asset(t, "TKA"), asset(t, "TKB"))
	require.NoError(t, err)
	return e.signed(t, e.taker, types.TxTypeTakeOffer, accts.List(), nil)
}

// commit queues tx directly on the node and produces a block.
func (e *testEnv) commit(t testing.TB, tx *types.Transaction) *types.Receipt {
	t.Helper()
	hash, err := e.node.AddTransaction(tx)
	require.NoError(t, err)
	_, err = e.node.ProduceBlock(context.Background())
	require.NoError(t, err)
	receipt, err := e.node.Receipt(hash)
	require.NoError(t, err)
	return receipt
}

type rawResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func (e *testEnv) post(t testing.TB, body []byte, header http.Header) (int, rawResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.http.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out rawResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// call issues a JSON-RPC request and returns the HTTP status and response.
func (e *testEnv) call(t testing.TB, method string, params ...interface{}) (int, rawResponse) {
	t.Helper()
	return e.callWithHeader(t, nil, method, params...)
}

func (e *testEnv) callWithHeader(t testing.TB, header http.Header, method string, params ...interface{}) (int, rawResponse) {
	t.Helper()
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	return e.post(t, body, header)
}

// result calls method, requires success and decodes the result into out.
func (e *testEnv) result(t testing.TB, out interface{}, method string, params ...interface{}) {
	t.Helper()
	status, resp := e.call(t, method, params...)
	require.Nil(t, resp.Error, "%s failed: %+v", method, resp.Error)
	require.Equal(t, http.StatusOK, status)
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Result, out))
	}
}
