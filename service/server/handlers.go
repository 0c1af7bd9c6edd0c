package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/lendscan/service/config"
	"github.com/brojonat/lendscan/service/ledger"
	"github.com/brojonat/lendscan/service/lending"
	"github.com/brojonat/lendscan/service/reserves"
	"github.com/brojonat/lendscan/service/scan"
	solanapkg "github.com/brojonat/lendscan/service/solana"
	"github.com/brojonat/lendscan/service/temporal"
)

const (
	maxRequestBodySize = 1 << 16
	maxAddressLength   = 100 // Solana addresses are 44 chars, give buffer
	minScanInterval    = time.Minute
	maxScanInterval    = 24 * time.Hour
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// handleGetLedger returns a handler that serves the per-asset ledger of the
// configured market.
// GET /api/v1/ledger?refresh=true
func handleGetLedger(cache *ledgerCache, params scan.Params, decimals ledger.DecimalsLookup, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh := false
		if v := r.URL.Query().Get("refresh"); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, "invalid refresh parameter: must be a boolean", http.StatusBadRequest)
				return
			}
			refresh = parsed
		}

		result, cached, err := cache.Get(r.Context(), params, refresh)
		if err != nil {
			logger.Error("scan failed", "market", params.Market.String(), "error", err)
			switch {
			case errors.Is(err, scan.ErrMarket):
				writeError(w, "lending market unavailable", http.StatusBadGateway)
			case errors.Is(err, context.DeadlineExceeded):
				writeError(w, "scan timed out", http.StatusGatewayTimeout)
			default:
				writeError(w, "scan failed", http.StatusBadGateway)
			}
			return
		}

		if cached {
			w.Header().Set("X-Ledger-Cache", "hit")
		} else {
			w.Header().Set("X-Ledger-Cache", "miss")
		}

		logger.Debug("ledger served",
			"market", params.Market.String(),
			"cached", cached,
			"obligations", result.Ledger.Obligations,
		)
		writeJSON(w, result.Report(decimals), http.StatusOK)
	})
}

// reserveResponse is the JSON response format for a reserve table entry.
type reserveResponse struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// handleListReserves returns a handler that lists the reserve table.
// GET /api/v1/reserves
func handleListReserves(table *reserves.Table, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assets := table.Assets()
		resp := make([]reserveResponse, len(assets))
		for i, a := range assets {
			resp[i] = reserveResponse{Address: a.Reserve.String(), Symbol: a.Symbol, Decimals: a.Decimals}
		}

		logger.Debug("reserves listed", "count", len(resp))
		writeJSON(w, map[string]interface{}{
			"reserves": resp,
			"count":    len(resp),
		}, http.StatusOK)
	})
}

// handleGetReserve returns a handler that decodes one reserve account.
// GET /api/v1/reserves/{address}
func handleGetReserve(scanner Scanner, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := parseAddressParam(w, r, "address", logger)
		if !ok {
			return
		}

		reserve, err := scanner.InspectReserve(r.Context(), key)
		if err != nil {
			writeAccountError(w, err, key, logger)
			return
		}

		resp := map[string]interface{}{
			"address": key.String(),
			"reserve": reserve,
		}
		if res := scanner.Table().Resolve(key); res.Mapped() {
			resp["symbol"] = res.Symbol()
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleGetObligation returns a handler that decodes one obligation account.
// GET /api/v1/obligations/{address}
func handleGetObligation(scanner Scanner, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := parseAddressParam(w, r, "address", logger)
		if !ok {
			return
		}

		obligation, err := scanner.InspectObligation(r.Context(), key)
		if err != nil {
			writeAccountError(w, err, key, logger)
			return
		}

		writeJSON(w, map[string]interface{}{
			"address":    key.String(),
			"obligation": obligation,
		}, http.StatusOK)
	})
}

// handleUpsertSchedule returns a handler that creates or updates the recurring
// scan of a market.
// PUT /api/v1/schedules/{market}
func handleUpsertSchedule(scheduler temporal.Scheduler, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if scheduler == nil {
			writeError(w, "scheduling is not configured", http.StatusServiceUnavailable)
			return
		}

		market, ok := parseAddressParam(w, r, "market", logger)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Interval string `json:"interval"`
			Publish  bool   `json:"publish"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode schedule request", "error", err)
			// Check if error is due to body size limit
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		interval := cfg.ScanInterval
		if req.Interval != "" {
			parsed, err := time.ParseDuration(req.Interval)
			if err != nil {
				writeError(w, "invalid interval: must be a duration such as 15m", http.StatusBadRequest)
				return
			}
			interval = parsed
		}
		if err := validateScanInterval(interval); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		spec := temporal.ScheduleSpec{
			Program:  cfg.ProgramID.String(),
			Market:   market.String(),
			Interval: interval,
			Publish:  req.Publish,
		}
		if err := scheduler.UpsertScanSchedule(r.Context(), spec); err != nil {
			logger.Error("failed to upsert schedule", "market", spec.Market, "error", err)
			writeError(w, "failed to create schedule", http.StatusInternalServerError)
			return
		}

		logger.Info("scan scheduled", "market", spec.Market, "interval", interval, "publish", req.Publish)
		writeJSON(w, map[string]interface{}{
			"market":   spec.Market,
			"program":  spec.Program,
			"interval": interval.String(),
			"publish":  spec.Publish,
		}, http.StatusOK)
	})
}

// handleDeleteSchedule returns a handler that removes the recurring scan of a market.
// DELETE /api/v1/schedules/{market}
func handleDeleteSchedule(scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if scheduler == nil {
			writeError(w, "scheduling is not configured", http.StatusServiceUnavailable)
			return
		}

		market, ok := parseAddressParam(w, r, "market", logger)
		if !ok {
			return
		}

		if err := scheduler.DeleteScanSchedule(r.Context(), market.String()); err != nil {
			logger.Error("failed to delete schedule", "market", market.String(), "error", err)
			writeError(w, "failed to delete schedule", http.StatusInternalServerError)
			return
		}

		logger.Info("scan unscheduled", "market", market.String())
		w.WriteHeader(http.StatusNoContent)
	})
}

func parseAddressParam(w http.ResponseWriter, r *http.Request, name string, logger *slog.Logger) (solanago.PublicKey, bool) {
	address := r.PathValue(name)
	if err := validateAddress(address); err != nil {
		logger.Debug("invalid address", "address", address, "error", err)
		writeError(w, err.Error(), http.StatusBadRequest)
		return solanago.PublicKey{}, false
	}
	key, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		writeError(w, "invalid address: not a 32-byte public key", http.StatusBadRequest)
		return solanago.PublicKey{}, false
	}
	return key, true
}

func writeAccountError(w http.ResponseWriter, err error, key solanago.PublicKey, logger *slog.Logger) {
	var decodeErr *lending.DecodeError
	switch {
	case errors.Is(err, solanapkg.ErrAccountNotFound):
		writeError(w, "account not found", http.StatusNotFound)
	case errors.As(err, &decodeErr):
		logger.Debug("account does not decode", "address", key.String(), "error", err)
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		logger.Error("failed to fetch account", "address", key.String(), "error", err)
		writeError(w, "failed to fetch account", http.StatusBadGateway)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress checks an account address path parameter.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// validateScanInterval validates a scan interval for reasonable bounds.
func validateScanInterval(interval time.Duration) error {
	if interval < minScanInterval {
		return errorf("interval must be at least %v", minScanInterval)
	}
	if interval > maxScanInterval {
		return errorf("interval cannot exceed %v", maxScanInterval)
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
