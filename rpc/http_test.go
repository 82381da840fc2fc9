package rpc

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"offerswap/core/types"
	"offerswap/crypto"
	"offerswap/native/escrow"
)

func TestServerRejectsMalformedRequests(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, false)

	status, resp := env.post(t, []byte("   "), nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	status, resp = env.post(t, []byte("{not json"), nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeParseError, resp.Error.Code)

	status, resp = env.post(t, []byte(`{"jsonrpc":"1.0","method":"chain_height","id":1}`), nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	status, resp = env.call(t, "chain_nope")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestServerEchoesRequestID(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, false)

	resp, err := env.http.Client().Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))

	const id = "4f1c1d7e-8f4b-4a7c-9a8e-1c2d3e4f5a6b"
	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, id)
	resp, err = env.http.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, id, resp.Header.Get(requestIDHeader))
}

func TestChainHeightAndAssets(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, false)

	var height uint64
	env.result(t, &height, "chain_height")
	require.Equal(t, uint64(0), height)

	var assets []AssetResult
	env.result(t, &assets, "ledger_listAssets")
	require.Len(t, assets, 2)
	symbols := []string{assets[0].Symbol, assets[1].Symbol}
	require.ElementsMatch(t, []string{"TKA", "TKB"}, symbols)
	for _, a := range assets {
		switch a.Symbol {
		case "TKA":
			require.Equal(t, "100", a.Supply)
		case "TKB":
			require.Equal(t, "50", a.Supply)
		}
	}
}

func TestGetBalanceAcceptsSymbolOrAddress(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, false)
	maker := crypto.FormatAccount(addrOf(env.maker))

	var bySymbol BalanceResult
	env.result(t, &bySymbol, "ledger_getBalance", maker, "TKA")
	require.Equal(t, "100", bySymbol.Amount)

	var byAddress BalanceResult
	env.result(t, &byAddress, "ledger_getBalance", maker, crypto.FormatAsset(asset(t, "TKA")))
	require.Equal(t, bySymbol, byAddress)

	status, resp := env.call(t, "ledger_getBalance", "not-an-address", "TKA")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	var native BalanceResult
	env.result(t, &native, "ledger_getNative", maker)
	require.NotEqual(t, "0", native.Amount)
}

func TestSubmitAndFetchReceipt(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, false)
	tx := env.makeTx(t, 1, 40, 25)

	var submitted SubmitResult
	env.result(t, &submitted, "tx_submit", tx)
	want, err := tx.TxHash()
	require.NoError(t, err)
	require.Equal(t, want.Hex(), submitted.Hash)

	status, resp := env.call(t, "tx_getReceipt", submitted.Hash)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeNotFound, resp.Error.Code)

	status, resp = env.call(t, "tx_submit", tx)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, codeTxRejected, resp.Error.Code)

	_, err = env.node.ProduceBlock(context.Background())
	require.NoError(t, err)

	var receipt types.Receipt
	env.result(t, &receipt, "tx_getReceipt", submitted.Hash)
	require.True(t, receipt.Succeeded())
	require.Equal(t, uint64(1), receipt.BlockHeight)

	status, resp = env.call(t, "tx_getReceipt", "0x1234")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestSendWaitsForInclusion(t *testing.T) {
	env := newTestEnv(t, ServerConfig{SubmitTimeout: 5 * time.Second}, true)

	var made types.Receipt
	env.result(t, &made, "tx_send", env.makeTx(t, 1, 40, 25))
	require.True(t, made.Succeeded())
	require.Empty(t, made.Code)

	var failed types.Receipt
	env.result(t, &failed, "tx_send", env.makeTx(t, 1, 10, 5))
	require.False(t, failed.Succeeded())
	require.Equal(t, escrow.CodeAlreadyExists, failed.Code)

	var taken types.Receipt
	env.result(t, &taken, "tx_send", env.takeTx(t, 1))
	require.True(t, taken.Succeeded())

	var balance BalanceResult
	env.result(t, &balance, "ledger_getBalance", crypto.FormatAccount(addrOf(env.taker)), "TKA")
	require.Equal(t, "40", balance.Amount)
}

func TestSendRejectsUnsignedTransaction(t *testing.T) {
	env := newTestEnv(t, ServerConfig{SubmitTimeout: time.Second}, false)
	tx := env.makeTx(t, 1, 40, 25)
	tx.R, tx.S, tx.V = nil, nil, nil

	status, resp := env.call(t, "tx_send", tx)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, codeTxRejected, resp.Error.Code)
}

func TestDevMintRequiresScopedToken(t *testing.T) {
	env := newTestEnv(t, ServerConfig{DevFaucet: true}, false)
	owner := crypto.FormatAccount(addrOf(env.taker))
	params := DevMintParams{Owner: owner, Asset: "TKA", Amount: "7"}

	status, resp := env.call(t, "dev_mint", params)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	header := func(scope string, secret string, exp time.Time) http.Header {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss":   testIssuer,
			"scope": scope,
			"exp":   exp.Unix(),
		})
		signed, err := token.SignedString([]byte(secret))
		require.NoError(t, err)
		return http.Header{"Authorization": []string{"Bearer " + signed}}
	}
	later := time.Now().Add(time.Hour)

	status, resp = env.callWithHeader(t, header("read", testJWTSecret, later), "dev_mint", params)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "insufficient scope", resp.Error.Message)

	status, _ = env.callWithHeader(t, header(devMintScope, "wrong-secret", later), "dev_mint", params)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.callWithHeader(t, header(devMintScope, testJWTSecret, time.Now().Add(-time.Hour)), "dev_mint", params)
	require.Equal(t, http.StatusUnauthorized, status)

	status, resp = env.callWithHeader(t, header("read "+devMintScope, testJWTSecret, later), "dev_mint", params)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	balance, err := env.node.Balance(addrOf(env.taker), asset(t, "TKA"))
	require.NoError(t, err)
	require.Equal(t, uint64(7), balance.Uint64())
}

func TestDevMintHiddenWhenFaucetDisabled(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, false)
	status, resp := env.call(t, "dev_mint", DevMintParams{})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestNewServerRequiresFaucetSecret(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, false)
	t.Setenv("RPC_TEST_EMPTY_SECRET", "")
	_, err := NewServer(env.node, ServerConfig{DevFaucet: true, JWTSecretEnv: "RPC_TEST_EMPTY_SECRET"}, nil)
	require.Error(t, err)
}

func TestRateLimitPerClient(t *testing.T) {
	env := newTestEnv(t, ServerConfig{RateLimitPerSec: 0.001, RateLimitBurst: 2}, false)

	for i := 0; i < 2; i++ {
		status, _ := env.call(t, "chain_height")
		require.Equal(t, http.StatusOK, status)
	}
	status, resp := env.call(t, "chain_height")
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func TestRateLimiterClientID(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, err)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	require.Equal(t, "10.0.0.5", newRateLimiter(1, 1, false).clientID(req))
	require.Equal(t, "203.0.113.9", newRateLimiter(1, 1, true).clientID(req))
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	limiter := newRateLimiter(1, 1, false)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	require.True(t, limiter.allow("a"))
	require.False(t, limiter.allow("a"))

	now = now.Add(2 * limiterIdleTTL)
	require.True(t, limiter.allow("b"))
	limiter.mu.Lock()
	_, stale := limiter.visitors["a"]
	limiter.mu.Unlock()
	require.False(t, stale)
}

func TestEventStreamFiltersByType(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws?types=" + escrow.EventTypeOfferMade
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	env.commit(t, env.makeTx(t, 1, 40, 25))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Contains(t, string(data), escrow.EventTypeOfferMade)
	require.Contains(t, string(data), crypto.FormatAccount(addrOf(env.maker)))
}

func TestEventFilter(t *testing.T) {
	require.Nil(t, eventFilter(" "))
	require.Equal(t, map[string]struct{}{"a": {}, "b": {}}, eventFilter("a, b,,"))
}
