package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/events"
	"github.com/nulln0ne/cpamm/internal/farm"
	"github.com/nulln0ne/cpamm/internal/metrics"
	"github.com/nulln0ne/cpamm/internal/pool"
	"github.com/nulln0ne/cpamm/internal/registry"
	"github.com/nulln0ne/cpamm/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

const maxUint256 = "115792089237316195423570985008687907853269984665640564039457584007913129639935"

type apiFixture struct {
	app   *fiber.App
	clock *clock.Mock
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	f := &apiFixture{clock: clock.NewMock()}
	f.clock.Set(time.Unix(1_700_000_000, 0))

	log := events.NewLog(100)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, reg)
	publish := events.PublisherFunc(func(e events.Event) {
		_ = log.Record(context.Background(), e)
		_ = m.Record(context.Background(), e)
	})
	ex := service.NewExchange(logger, asset.NewBank("ETH"), registry.NewMemory(),
		pool.Config{Owner: owner, FeeRecipient: owner, TradingFeeBps: 30},
		service.WithClock(f.clock),
		service.WithPublisher(publish),
		service.WithEventReader(log),
		service.WithReserveObserver(m),
	)
	f.app = NewApp(logger,
		NewEstimateHandler(logger, service.NewEstimateService(logger, ex, nil, nil)),
		NewPoolHandler(logger, ex),
		NewFarmHandler(logger, ex),
		NewTokenHandler(logger, ex),
		NewMetricsHandler(m.Handler()),
	)
	f.registerToken(t, tokenA, "TKA")
	f.registerToken(t, tokenB, "TKB")
	return f
}

func (f *apiFixture) registerToken(t *testing.T, addr common.Address, symbol string) {
	t.Helper()
	var tok TokenResponse
	code := f.do(t, http.MethodPost, "/tokens", RegisterTokenRequest{Address: addr.Hex(), Symbol: symbol, Decimals: 18}, &tok)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, symbol, tok.Symbol)
	require.Equal(t, "0", tok.TotalSupply.Dec())
}

// do sends a JSON request and decodes the JSON response into out when it is
// not nil.
func (f *apiFixture) do(t *testing.T, method, path string, body, out interface{}) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *apiFixture) fund(t *testing.T, holder, spender, token common.Address, amount string) {
	t.Helper()
	path := "/tokens/" + token.Hex()
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, path+"/mint", MintRequest{To: holder.Hex(), Amount: amount}, nil))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, path+"/approve", ApproveRequest{Owner: holder.Hex(), Spender: spender.Hex(), Amount: maxUint256}, nil))
}

func (f *apiFixture) createPool(t *testing.T) common.Address {
	t.Helper()
	var st pool.State
	code := f.do(t, http.MethodPost, "/pools", CreatePoolRequest{AssetA: tokenB.Hex(), AssetB: tokenA.Hex()}, &st)
	require.Equal(t, http.StatusCreated, code)
	return st.Address
}

func TestAPI_PoolLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	addr := f.createPool(t)
	f.fund(t, alice, addr, tokenA, "1000")
	f.fund(t, alice, addr, tokenB, "4000")

	var dep pool.Deposit
	code := f.do(t, http.MethodPost, "/pools/"+addr.Hex()+"/liquidity", AddLiquidityRequest{Caller: alice.Hex(), AmountA: "1000", AmountB: "4000"}, &dep)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "2000", dep.Shares.Dec())

	var q service.Quote
	code = f.do(t, http.MethodGet, "/pools/"+addr.Hex()+"/quote?token_in="+tokenA.Hex()+"&amount_in=100", nil, &q)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "360", q.AmountOut.Dec())

	f.fund(t, bob, addr, tokenA, "100")
	var res pool.SwapResult
	code = f.do(t, http.MethodPost, "/pools/"+addr.Hex()+"/swap", SwapRequest{Caller: bob.Hex(), TokenIn: tokenA.Hex(), AmountIn: "100", MinAmountOut: "360"}, &res)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "360", res.AmountOut.Dec())

	var bal BalanceResponse
	code = f.do(t, http.MethodGet, "/tokens/"+tokenB.Hex()+"/balance/"+bob.Hex(), nil, &bal)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "360", bal.Balance.Dec())

	var st pool.State
	code = f.do(t, http.MethodGet, "/pools/"+addr.Hex(), nil, &st)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "1100", st.ReserveA.Dec())
	require.Equal(t, "3640", st.ReserveB.Dec())

	var w pool.Withdrawal
	code = f.do(t, http.MethodPost, "/pools/"+addr.Hex()+"/liquidity/remove", RemoveLiquidityRequest{Caller: alice.Hex(), Shares: "1000"}, &w)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "550", w.AmountA.Dec())
	require.Equal(t, "1820", w.AmountB.Dec())

	var evs []events.Event
	code = f.do(t, http.MethodGet, "/pools/"+addr.Hex()+"/events?limit=2", nil, &evs)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, evs, 2)
	require.Equal(t, events.KindBurn, evs[0].Kind)
	require.Equal(t, events.KindSwap, evs[1].Kind)

	var pools []pool.State
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/pools", nil, &pools))
	require.Len(t, pools, 1)

	// The estimate endpoint resolves the local pool by its tokens.
	req := httptest.NewRequest(http.MethodGet, "/estimate?src="+tokenA.Hex()+"&dst="+tokenB.Hex()+"&src_amount=10", nil)
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_ErrorMapping(t *testing.T) {
	f := newAPIFixture(t)
	addr := f.createPool(t)
	f.fund(t, alice, addr, tokenA, "1000")
	f.fund(t, alice, addr, tokenB, "4000")
	poolPath := "/pools/" + addr.Hex()

	var e ErrorResponse
	code := f.do(t, http.MethodPost, "/pools", CreatePoolRequest{AssetA: tokenA.Hex(), AssetB: tokenB.Hex()}, &e)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "amm", e.Codespace)

	expired := f.clock.Now().Add(-time.Second).Unix()
	e = ErrorResponse{}
	code = f.do(t, http.MethodPost, poolPath+"/liquidity", AddLiquidityRequest{Caller: alice.Hex(), AmountA: "1000", AmountB: "4000", Deadline: &expired}, &e)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "amm", e.Codespace)

	code = f.do(t, http.MethodPost, poolPath+"/swap", SwapRequest{Caller: bob.Hex(), TokenIn: tokenA.Hex(), AmountIn: "1"}, &e)
	require.Equal(t, http.StatusConflict, code)

	fee := uint64(10)
	code = f.do(t, http.MethodPut, poolPath+"/fees", SetFeesRequest{Caller: alice.Hex(), TradingFeeBps: &fee}, &e)
	require.Equal(t, http.StatusForbidden, code)

	code = f.do(t, http.MethodGet, "/pools/0x0000000000000000000000000000000000000dEaD", nil, &e)
	require.Equal(t, http.StatusNotFound, code)

	code = f.do(t, http.MethodGet, "/pools/nope", nil, &e)
	require.Equal(t, http.StatusBadRequest, code)

	code = f.do(t, http.MethodPost, poolPath+"/swap", SwapRequest{Caller: "nope", TokenIn: tokenA.Hex(), AmountIn: "1"}, &e)
	require.Equal(t, http.StatusBadRequest, code)

	code = f.do(t, http.MethodPost, poolPath+"/swap", SwapRequest{Caller: bob.Hex(), TokenIn: tokenA.Hex(), AmountIn: "-1"}, &e)
	require.Equal(t, http.StatusBadRequest, code)

	code = f.do(t, http.MethodPost, "/tokens/"+addr.Hex()+"/mint", MintRequest{To: bob.Hex(), Amount: "1"}, &e)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_Farm(t *testing.T) {
	f := newAPIFixture(t)

	var st farm.State
	code := f.do(t, http.MethodPost, "/farms", CreateFarmRequest{StakingAsset: tokenA.Hex(), RewardAsset: tokenB.Hex(), Owner: owner.Hex()}, &st)
	require.Equal(t, http.StatusCreated, code)
	farmPath := "/farms/" + st.Address.Hex()

	f.fund(t, alice, st.Address, tokenA, "100")
	f.fund(t, owner, st.Address, tokenB, "1000")

	var acct AccountResponse
	code = f.do(t, http.MethodPost, farmPath+"/stake", AmountRequest{Caller: alice.Hex(), Amount: "100"}, &acct)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "100", acct.Staked.Dec())

	code = f.do(t, http.MethodPost, farmPath+"/fund", FundRequest{Caller: owner.Hex(), Amount: "1000", DurationSeconds: 100}, &st)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "10", st.RewardRate.Dec())

	f.clock.Add(10 * time.Second)
	code = f.do(t, http.MethodGet, farmPath+"/earned/"+alice.Hex(), nil, &acct)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "100", acct.Earned.Dec())

	code = f.do(t, http.MethodPost, farmPath+"/pause", CallerRequest{Caller: owner.Hex()}, &st)
	require.Equal(t, http.StatusOK, code)
	require.True(t, st.Paused)

	var e ErrorResponse
	code = f.do(t, http.MethodPost, farmPath+"/stake", AmountRequest{Caller: alice.Hex(), Amount: "1"}, &e)
	require.Equal(t, http.StatusConflict, code)

	code = f.do(t, http.MethodPost, farmPath+"/unpause", CallerRequest{Caller: alice.Hex()}, &e)
	require.Equal(t, http.StatusForbidden, code)

	var exit ExitResponse
	code = f.do(t, http.MethodPost, farmPath+"/exit", CallerRequest{Caller: alice.Hex()}, &exit)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "100", exit.Withdrawn.Dec())
	require.Equal(t, "100", exit.Reward.Dec())

	code = f.do(t, http.MethodGet, "/farms/0x0000000000000000000000000000000000000dEaD", nil, &e)
	require.Equal(t, http.StatusNotFound, code)
}

func TestAPI_Tokens(t *testing.T) {
	f := newAPIFixture(t)
	tokenC := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	var tok TokenResponse
	code := f.do(t, http.MethodPost, "/tokens", RegisterTokenRequest{Address: tokenC.Hex(), Symbol: "USDC", Decimals: 6}, &tok)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, uint8(6), tok.Decimals)

	var e ErrorResponse
	code = f.do(t, http.MethodPost, "/tokens", RegisterTokenRequest{Address: tokenC.Hex(), Symbol: "USDC", Decimals: 6}, &e)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "amm", e.Codespace)

	code = f.do(t, http.MethodPost, "/tokens", RegisterTokenRequest{Address: "0x0000000000000000000000000000000000000000", Symbol: "ZERO"}, &e)
	require.Equal(t, http.StatusBadRequest, code)

	code = f.do(t, http.MethodPost, "/tokens", RegisterTokenRequest{Address: "0x00000000000000000000000000000000000000cd", Symbol: "BIG", Decimals: 19}, &e)
	require.Equal(t, http.StatusBadRequest, code)

	code = f.do(t, http.MethodPost, "/tokens", RegisterTokenRequest{Address: "0x00000000000000000000000000000000000000cd"}, &e)
	require.Equal(t, http.StatusBadRequest, code)

	// A newly registered token can back a pool.
	var st pool.State
	code = f.do(t, http.MethodPost, "/pools", CreatePoolRequest{AssetA: tokenA.Hex(), AssetB: tokenC.Hex()}, &st)
	require.Equal(t, http.StatusCreated, code)
}

func TestAPI_CustodyAccountsRejected(t *testing.T) {
	f := newAPIFixture(t)
	addr := f.createPool(t)
	f.fund(t, alice, addr, tokenA, "1000")
	f.fund(t, alice, addr, tokenB, "4000")
	poolPath := "/pools/" + addr.Hex()
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, poolPath+"/liquidity", AddLiquidityRequest{Caller: alice.Hex(), AmountA: "1000", AmountB: "4000"}, nil))

	var e ErrorResponse
	code := f.do(t, http.MethodPost, "/tokens/"+tokenA.Hex()+"/transfer", TransferRequest{From: addr.Hex(), To: bob.Hex(), Amount: "1000"}, &e)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "amm", e.Codespace)

	code = f.do(t, http.MethodPost, "/tokens/"+tokenB.Hex()+"/approve", ApproveRequest{Owner: addr.Hex(), Spender: bob.Hex(), Amount: "4000"}, &e)
	require.Equal(t, http.StatusForbidden, code)

	var bal BalanceResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/tokens/"+tokenA.Hex()+"/balance/"+addr.Hex(), nil, &bal))
	require.Equal(t, "1000", bal.Balance.Dec())
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/tokens/"+tokenA.Hex()+"/balance/"+bob.Hex(), nil, &bal))
	require.Equal(t, "0", bal.Balance.Dec())

	var st pool.State
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, poolPath, nil, &st))
	require.Equal(t, "1000", st.ReserveA.Dec())
	require.Equal(t, "4000", st.ReserveB.Dec())

	var fs farm.State
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/farms", CreateFarmRequest{StakingAsset: tokenA.Hex(), RewardAsset: tokenB.Hex(), Owner: owner.Hex()}, &fs))
	code = f.do(t, http.MethodPost, "/tokens/"+tokenB.Hex()+"/approve", ApproveRequest{Owner: fs.Address.Hex(), Spender: bob.Hex(), Amount: "1"}, &e)
	require.Equal(t, http.StatusForbidden, code)
	code = f.do(t, http.MethodPost, "/tokens/"+tokenA.Hex()+"/transfer", TransferRequest{From: fs.Address.Hex(), To: bob.Hex(), Amount: "0"}, &e)
	require.Equal(t, http.StatusForbidden, code)

	// Ordinary accounts still move funds.
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/tokens/"+tokenA.Hex()+"/mint", MintRequest{To: bob.Hex(), Amount: "5"}, nil))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/tokens/"+tokenA.Hex()+"/transfer", TransferRequest{From: bob.Hex(), To: alice.Hex(), Amount: "5"}, &bal))
	require.Equal(t, "0", bal.Balance.Dec())
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	var health map[string]string
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil, &health))
	require.Equal(t, "ok", health["status"])

	addr := f.createPool(t)
	f.fund(t, alice, addr, tokenA, "1000")
	f.fund(t, alice, addr, tokenB, "4000")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/pools/"+addr.Hex()+"/liquidity", AddLiquidityRequest{Caller: alice.Hex(), AmountA: "1000", AmountB: "4000"}, nil))

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "cpamm_events_total")
	require.Contains(t, string(body), "cpamm_pool_reserve")
}
