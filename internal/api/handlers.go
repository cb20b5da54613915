package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/snapshotter"
)

// Pagination bounds for record listings.
const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// snapshotDTO is the wire shape of one chart point. Monetary fields are
// decimal strings; they do not fit in JSON numbers.
type snapshotDTO struct {
	Ts                     int64  `json:"ts"`
	Slot                   int64  `json:"slot"`
	OraclePrice            string `json:"oraclePrice"`
	TotalAccountQuoteValue string `json:"totalAccountQuoteValue"`
	TotalAccountBaseValue  string `json:"totalAccountBaseValue"`
	NetDeposits            string `json:"netDeposits"`
}

func toSnapshotDTO(s *domain.VaultSnapshot) snapshotDTO {
	return snapshotDTO{
		Ts:                     s.Ts,
		Slot:                   s.Slot,
		OraclePrice:            bigString(s.OraclePrice),
		TotalAccountQuoteValue: bigString(s.TotalAccountQuoteValue),
		TotalAccountBaseValue:  bigString(s.TotalAccountBaseValue),
		NetDeposits:            bigString(s.NetDeposits),
	}
}

func (s *Server) handleVaultSnapshots(w http.ResponseWriter, r *http.Request) {
	vault := r.URL.Query().Get("vault")
	if vault == "" {
		httpError(w, http.StatusBadRequest, "vault parameter is required")
		return
	}

	snaps, err := s.cfg.Charts.GetByVault(r.Context(), vault)
	if err != nil {
		s.logger.Printf("vault snapshots for %s: %v", vault, err)
		httpError(w, http.StatusInternalServerError, "failed to load snapshots")
		return
	}

	out := make([]snapshotDTO, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toSnapshotDTO(snap))
	}
	writeJSON(w, out)
}

// recordDTO is the wire shape of one depositor event.
type recordDTO struct {
	Ts                  int64  `json:"ts"`
	TxSignature         string `json:"txSignature"`
	Slot                int64  `json:"slot"`
	Vault               string `json:"vault"`
	Depositor           string `json:"depositor"`
	Authority           string `json:"authority"`
	Action              string `json:"action"`
	Amount              string `json:"amount"`
	SharesBefore        string `json:"sharesBefore"`
	SharesAfter         string `json:"sharesAfter"`
	VaultSharesBefore   string `json:"vaultSharesBefore"`
	VaultSharesAfter    string `json:"vaultSharesAfter"`
	VaultEquityBefore   string `json:"vaultEquityBefore"`
	ProfitShareAmount   string `json:"profitShareAmount"`
	ManagementFeeAmount string `json:"managementFeeAmount"`
}

func toRecordDTO(e *domain.VaultDepositorEvent) recordDTO {
	return recordDTO{
		Ts:                  e.Ts,
		TxSignature:         e.TxSignature,
		Slot:                e.Slot,
		Vault:               e.Vault,
		Depositor:           e.Depositor,
		Authority:           e.Authority,
		Action:              e.Action,
		Amount:              bigString(e.Amount),
		SharesBefore:        bigString(e.SharesBefore),
		SharesAfter:         bigString(e.SharesAfter),
		VaultSharesBefore:   bigString(e.VaultSharesBefore),
		VaultSharesAfter:    bigString(e.VaultSharesAfter),
		VaultEquityBefore:   bigString(e.VaultEquityBefore),
		ProfitShareAmount:   bigString(e.ProfitShareAmount),
		ManagementFeeAmount: bigString(e.ManagementFeeAmount),
	}
}

func (s *Server) handleDepositorRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vault := q.Get("vault")
	if vault == "" {
		httpError(w, http.StatusBadRequest, "vault parameter is required")
		return
	}
	depositor := q.Get("depositor")
	limit := parsePositiveInt(q.Get("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	page := parsePositiveInt(q.Get("page"), 0)

	records, err := s.cfg.Records.GetByVaultPaged(r.Context(), vault, depositor, limit, page)
	if err != nil {
		s.logger.Printf("depositor records for %s: %v", vault, err)
		httpError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	count, err := s.cfg.Records.CountByVault(r.Context(), vault, depositor)
	if err != nil {
		s.logger.Printf("depositor record count for %s: %v", vault, err)
		httpError(w, http.StatusInternalServerError, "failed to load records")
		return
	}

	out := make([]recordDTO, 0, len(records))
	for _, e := range records {
		out = append(out, toRecordDTO(e))
	}
	writeJSON(w, map[string]interface{}{
		"records": out,
		"count":   count,
	})
}

// depositDTO is the wire shape of one deposit record.
type depositDTO struct {
	Ts          int64  `json:"ts"`
	TxSignature string `json:"txSignature"`
	TxIndex     int    `json:"txIndex"`
	Slot        int64  `json:"slot"`
	User        string `json:"user"`
	Direction   string `json:"direction"`
	MarketIndex int    `json:"marketIndex"`
	Amount      string `json:"amount"`
	OraclePrice string `json:"oraclePrice"`
}

func toDepositDTO(r *domain.DepositRecord) depositDTO {
	return depositDTO{
		Ts:          r.Ts,
		TxSignature: r.TxSignature,
		TxIndex:     r.TxIndex,
		Slot:        r.Slot,
		User:        r.User,
		Direction:   r.Direction,
		MarketIndex: r.MarketIndex,
		Amount:      bigString(r.Amount),
		OraclePrice: bigString(r.OraclePrice),
	}
}

func (s *Server) handleDepositRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := q.Get("user")
	if user == "" {
		httpError(w, http.StatusBadRequest, "user parameter is required")
		return
	}
	limit := parsePositiveInt(q.Get("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	page := parsePositiveInt(q.Get("page"), 0)

	records, err := s.cfg.Deposits.GetByUserPaged(r.Context(), user, limit, page)
	if err != nil {
		s.logger.Printf("deposit records for %s: %v", user, err)
		httpError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	count, err := s.cfg.Deposits.CountByUser(r.Context(), user)
	if err != nil {
		s.logger.Printf("deposit record count for %s: %v", user, err)
		httpError(w, http.StatusInternalServerError, "failed to load records")
		return
	}

	out := make([]depositDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, toDepositDTO(rec))
	}
	writeJSON(w, map[string]interface{}{
		"records": out,
		"count":   count,
	})
}

func (s *Server) handleAPYReturns(w http.ResponseWriter, _ *http.Request) {
	entries, ts := s.cfg.AppState.Get()
	if entries == nil {
		entries = map[string]snapshotter.APYEntry{}
	}
	writeJSON(w, map[string]interface{}{
		"vaults": entries,
		"ts":     ts,
	})
}

func (s *Server) handleCronSnapshots(w http.ResponseWriter, r *http.Request) {
	res, err := s.cfg.Snapshots.Run(r.Context())
	if err != nil {
		s.logger.Printf("cron snapshot run: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("error"))
		return
	}
	s.logger.Printf("cron snapshot run: %d vaults, %d rows, %d failed chunks",
		res.VaultsProcessed, res.SnapshotsInserted, res.FailedChunks)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleCronBackfill(w http.ResponseWriter, r *http.Request) {
	events, err := s.cfg.Backfill.BackfillDepositorEvents(r.Context())
	if err != nil {
		s.logger.Printf("cron event backfill: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("error"))
		return
	}

	deposits, err := s.cfg.Backfill.BackfillDeposits(r.Context(), s.cfg.BackfillUsers)
	if err != nil {
		s.logger.Printf("cron deposit backfill: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("error"))
		return
	}

	s.logger.Printf("cron backfill: %d events, %d deposit records inserted", events, deposits)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parsePositiveInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
