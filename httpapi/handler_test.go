package httpapi

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoshop/settlement/types"
)

type stubRates struct {
	info types.ExchangeRate
	err  error
}

func (s *stubRates) GetRateInfo(context.Context) (types.ExchangeRate, error) {
	return s.info, s.err
}

func freshInfo(fixed int64) types.ExchangeRate {
	return types.ExchangeRate{
		Rate:            big.NewInt(fixed),
		LastUpdate:      1_700_000_000,
		IsValid:         true,
		TimeSinceUpdate: 120,
	}
}

func newTestServer(rates *stubRates) *httptest.Server {
	h := NewHandler(rates, nil, nil)
	return httptest.NewServer(NewServer(h, false).Router)
}

func TestGetRate(t *testing.T) {
	srv := newTestServer(&stubRates{info: freshInfo(1_100_000)})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/rate")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body rateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(1_100_000), body.Rate)
	assert.InDelta(t, 1.10, body.RateDecimal, 1e-9)
	assert.NotZero(t, body.Timestamp)
}

func TestGetRateOracleDown(t *testing.T) {
	srv := newTestServer(&stubRates{err: &types.SettlementError{
		Code: types.ErrOracleUnavailable, Message: "rpc down",
	}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/rate")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetRateInfo(t *testing.T) {
	srv := newTestServer(&stubRates{info: freshInfo(1_083_401)})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/rate/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body rateInfoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(1_083_401), body.Rate)
	assert.Equal(t, int64(1_700_000_000), body.LastUpdate)
	assert.True(t, body.IsValid)
	assert.Equal(t, int64(120), body.TimeSinceUpdate)
	assert.Contains(t, body.LastUpdateDate, "2023-11-14")
}

func postConvert(t *testing.T, srv *httptest.Server, payload string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/convert", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func TestConvertEURTToUSDT(t *testing.T) {
	srv := newTestServer(&stubRates{info: freshInfo(1_100_000)})
	defer srv.Close()

	resp := postConvert(t, srv, `{"from":"EURT","to":"USDT","amount":"5"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body convertResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "5.5", body.Converted)
	assert.InDelta(t, 1.10, body.Rate, 1e-9)
}

func TestConvertUSDTToEURT(t *testing.T) {
	srv := newTestServer(&stubRates{info: freshInfo(1_100_000)})
	defer srv.Close()

	resp := postConvert(t, srv, `{"from":"USDT","to":"EURT","amount":"5.5"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body convertResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "5", body.Converted)
}

func TestConvertBadRequests(t *testing.T) {
	srv := newTestServer(&stubRates{info: freshInfo(1_100_000)})
	defer srv.Close()

	cases := []struct {
		name    string
		payload string
	}{
		{"malformed json", `{"from":`},
		{"missing to", `{"from":"USDT","amount":"1"}`},
		{"unsupported currency", `{"from":"BTC","to":"USDT","amount":"1"}`},
		{"same currency", `{"from":"USDT","to":"USDT","amount":"1"}`},
		{"zero amount", `{"from":"USDT","to":"EURT","amount":"0"}`},
		{"negative amount", `{"from":"USDT","to":"EURT","amount":"-3"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postConvert(t, srv, tc.payload)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestConvertStaleRate(t *testing.T) {
	stale := freshInfo(1_100_000)
	stale.TimeSinceUpdate = 86_400
	srv := newTestServer(&stubRates{info: stale})
	defer srv.Close()

	resp := postConvert(t, srv, `{"from":"USDT","to":"EURT","amount":"1"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubRates{info: freshInfo(1_100_000)})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(&stubRates{info: freshInfo(1_100_000)})
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/convert", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
