// Package httpapi exposes the rate surface of the settlement core to the
// storefront: current rate, full oracle snapshot and currency conversion.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/cryptoshop/settlement/logger"
	"github.com/cryptoshop/settlement/metrics"
	"github.com/cryptoshop/settlement/oracle"
	"github.com/cryptoshop/settlement/ratesource"
	"github.com/cryptoshop/settlement/types"
)

// rateReader supplies oracle snapshots.
type rateReader interface {
	GetRateInfo(ctx context.Context) (types.ExchangeRate, error)
}

type Handler struct {
	rates    rateReader
	validate *validator.Validate
	log      logger.Logger
	metrics  metrics.Recorder
}

type rateResponse struct {
	Rate        int64   `json:"rate"`
	RateDecimal float64 `json:"rateDecimal"`
	Timestamp   int64   `json:"timestamp"`
}

type rateInfoResponse struct {
	Rate            int64   `json:"rate"`
	RateDecimal     float64 `json:"rateDecimal"`
	LastUpdate      int64   `json:"lastUpdate"`
	LastUpdateDate  string  `json:"lastUpdateDate"`
	IsValid         bool    `json:"isValid"`
	TimeSinceUpdate int64   `json:"timeSinceUpdate"`
	Timestamp       int64   `json:"timestamp"`
}

type convertRequest struct {
	From   string          `json:"from" validate:"required"`
	To     string          `json:"to" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type convertResponse struct {
	Converted string  `json:"converted"`
	Rate      float64 `json:"rate"`
}

func NewHandler(rates rateReader, log logger.Logger, rec metrics.Recorder) *Handler {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Handler{
		rates:    rates,
		validate: validator.New(),
		log:      log,
		metrics:  rec,
	}
}

func (h *Handler) GetRate(w http.ResponseWriter, r *http.Request) {
	info, err := h.rates.GetRateInfo(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "oracle unavailable")
		return
	}

	writeJSON(w, http.StatusOK, rateResponse{
		Rate:        info.Rate.Int64(),
		RateDecimal: ratesource.FromFixedPoint(info.Rate),
		Timestamp:   time.Now().Unix(),
	})
}

func (h *Handler) GetRateInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.rates.GetRateInfo(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "oracle unavailable")
		return
	}

	writeJSON(w, http.StatusOK, rateInfoResponse{
		Rate:            info.Rate.Int64(),
		RateDecimal:     ratesource.FromFixedPoint(info.Rate),
		LastUpdate:      info.LastUpdate,
		LastUpdateDate:  time.Unix(info.LastUpdate, 0).UTC().Format(time.RFC3339),
		IsValid:         info.IsValid,
		TimeSinceUpdate: info.TimeSinceUpdate,
		Timestamp:       time.Now().Unix(),
	})
}

// Convert translates an amount between the two settlement currencies at the
// current oracle rate.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	from := types.Currency(req.From)
	to := types.Currency(req.To)
	switch {
	case !from.Supported() || !to.Supported():
		writeError(w, http.StatusBadRequest, "unsupported currency code")
		return
	case from == to:
		writeError(w, http.StatusBadRequest, "from and to must differ")
		return
	case req.Amount.Sign() <= 0:
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	info, err := h.rates.GetRateInfo(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "oracle unavailable")
		return
	}
	if !info.Usable() {
		writeError(w, http.StatusServiceUnavailable, "exchange rate stale or invalid")
		return
	}

	// Route through the same fixed-point math the checkout core uses so
	// API quotes and checkout quotes cannot disagree.
	fixedAmount := req.Amount.Shift(types.RateDecimals).Round(0).BigInt()
	var converted decimal.Decimal
	if from == types.CurrencyEURT {
		converted = decimal.NewFromBigInt(oracle.ConvertEURTToUSDT(fixedAmount, info.Rate), -types.RateDecimals)
	} else {
		converted = decimal.NewFromBigInt(oracle.ConvertUSDTToEURT(fixedAmount, info.Rate), -types.RateDecimals)
	}

	h.metrics.IncCounter("api_convert", map[string]string{"currency": from.String()})
	writeJSON(w, http.StatusOK, convertResponse{
		Converted: converted.String(),
		Rate:      ratesource.FromFixedPoint(info.Rate),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
