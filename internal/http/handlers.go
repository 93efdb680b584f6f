package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finbrief/internal/core"
	applog "finbrief/internal/log"
	"finbrief/internal/report"
	"finbrief/internal/schedule"
	"finbrief/internal/storage"
)

const (
	userIDHeader   = "X-User-ID"
	dateLayout     = "2006-01-02"
	maxRequestBody = 64 << 10
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// userID extracts and validates the X-User-ID header.
func userID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(userIDHeader))
	if raw == "" {
		return 0, fmt.Errorf("missing %s header", userIDHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s header", userIDHeader)
	}
	return id, nil
}

// parseWindow reads optional from/to query parameters as YYYY-MM-DD dates.
// The window is half-open: from inclusive, to exclusive. Defaults to the
// current calendar month.
func parseWindow(r *http.Request, now time.Time) (from, to time.Time, err error) {
	from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to = from.AddDate(0, 1, 0)

	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		from, err = time.ParseInLocation(dateLayout, v, time.UTC)
		if err != nil {
			return from, to, fmt.Errorf("invalid 'from' date: %s", v)
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		to, err = time.ParseInLocation(dateLayout, v, time.UTC)
		if err != nil {
			return from, to, fmt.Errorf("invalid 'to' date: %s", v)
		}
	}
	if !to.After(from) {
		return from, to, errors.New("'to' must be after 'from'")
	}
	return from, to, nil
}

type categoryJSON struct {
	Category    string `json:"category"`
	AmountCents int64  `json:"amountCents"`
}

type summaryResponse struct {
	From          string         `json:"from"`
	To            string         `json:"to"`
	Period        string         `json:"period"`
	IncomeCents   int64          `json:"incomeCents"`
	ExpenseCents  int64          `json:"expenseCents"`
	BalanceCents  int64          `json:"balanceCents"`
	SavingsRate   float64        `json:"savingsRate"`
	TopCategories []categoryJSON `json:"topCategories"`
	Insights      []string       `json:"insights"`
	HasActivity   bool           `json:"hasActivity"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	uid, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to, err := parseWindow(r, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := fmt.Sprintf("%d:%s:%s", uid, from.Format(dateLayout), to.Format(dateLayout))
	if cached, found := s.summaryCache.Get(key); found {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	resp := summaryResponse{
		From:          from.Format(dateLayout),
		To:            to.Format(dateLayout),
		Period:        schedule.FormatPeriod(from, to),
		TopCategories: []categoryJSON{},
		Insights:      []string{},
	}

	artifact, err := s.generator.Generate(r.Context(), uid, from, to)
	switch {
	case errors.Is(err, report.ErrNoActivity):
		// Empty window still renders as a zeroed summary.
	case err != nil:
		s.logger.ErrorContext(r.Context(), "Summary generation failed",
			applog.FieldUserID, uid,
			applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to generate summary")
		return
	default:
		resp.Period = artifact.Period
		resp.IncomeCents = artifact.Summary.Income.Cents
		resp.ExpenseCents = artifact.Summary.Expenses.Cents
		resp.BalanceCents = artifact.Summary.Balance.Cents
		resp.SavingsRate = artifact.Summary.SavingsRate
		resp.HasActivity = true
		for _, c := range artifact.Summary.TopCategories {
			resp.TopCategories = append(resp.TopCategories, categoryJSON{
				Category:    c.Name,
				AmountCents: c.Amount.Cents,
			})
		}
		resp.Insights = append(resp.Insights, artifact.Insights...)
	}

	s.summaryCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

type transactionJSON struct {
	ID                int64  `json:"id"`
	Type              string `json:"type"`
	AmountCents       int64  `json:"amountCents"`
	Category          string `json:"category"`
	Description       string `json:"description"`
	OccurredOn        string `json:"occurredOn"`
	IsRecurring       bool   `json:"isRecurring"`
	RecurringInterval string `json:"recurringInterval,omitempty"`
}

type createTransactionRequest struct {
	Type              string `json:"type"`
	Amount            string `json:"amount"`
	Category          string `json:"category"`
	Description       string `json:"description"`
	OccurredOn        string `json:"occurredOn"`
	IsRecurring       bool   `json:"isRecurring"`
	RecurringInterval string `json:"recurringInterval"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTransactions(w, r)
	case http.MethodPost:
		s.handleCreateTransaction(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to, err := parseWindow(r, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := queryInt(r, "limit", 100, 1, 500)

	items, err := s.store.ListTransactions(r.Context(), uid, from, to, limit)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "List transactions failed",
			applog.FieldUserID, uid,
			applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	out := make([]transactionJSON, 0, len(items))
	for _, t := range items {
		out = append(out, transactionJSON{
			ID:                t.ID,
			Type:              string(t.Type),
			AmountCents:       t.Amount.Cents,
			Category:          t.Category,
			Description:       t.Description,
			OccurredOn:        t.OccurredOn.Format(dateLayout),
			IsRecurring:       t.IsRecurring,
			RecurringInterval: string(t.RecurringInterval),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}
	occurredOn, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.OccurredOn), time.UTC)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid occurredOn date")
		return
	}

	tx := core.Transaction{
		UserID:      uid,
		Type:        core.TransactionType(strings.ToLower(strings.TrimSpace(req.Type))),
		Amount:      core.Money{Cents: cents},
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.Description),
		OccurredOn:  occurredOn,
	}
	if req.IsRecurring {
		interval := core.RecurringInterval(strings.ToLower(strings.TrimSpace(req.RecurringInterval)))
		tx.IsRecurring = true
		tx.RecurringInterval = interval
		tx.NextOccurrence = schedule.NextOccurrence(occurredOn, interval)
	}
	if err := tx.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.store.CreateTransaction(r.Context(), tx)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Create transaction failed",
			applog.FieldUserID, uid,
			applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to create transaction")
		return
	}

	s.logger.InfoContext(r.Context(), "Transaction created",
		applog.FieldUserID, uid,
		applog.FieldAmountCents, cents,
		applog.FieldCategory, tx.Category)
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type reportRecordJSON struct {
	ID       int64  `json:"id"`
	SentDate string `json:"sentDate"`
	Period   string `json:"period"`
	Status   string `json:"status"`
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	uid, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := queryInt(r, "limit", 20, 1, 100)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	records, err := s.store.ListReportRecords(r.Context(), uid, limit, offset)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "List report records failed",
			applog.FieldUserID, uid,
			applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	out := make([]reportRecordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, reportRecordJSON{
			ID:       rec.ID,
			SentDate: rec.SentDate.Format(time.RFC3339),
			Period:   rec.Period,
			Status:   string(rec.Status),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type reportSettingJSON struct {
	IsEnabled      bool    `json:"isEnabled"`
	Frequency      string  `json:"frequency"`
	LastSentDate   *string `json:"lastSentDate"`
	NextReportDate string  `json:"nextReportDate"`
}

type updateReportSettingRequest struct {
	IsEnabled *bool  `json:"isEnabled"`
	Frequency string `json:"frequency"`
}

func (s *Server) handleReportSetting(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetReportSetting(w, r)
	case http.MethodPut:
		s.handleUpdateReportSetting(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGetReportSetting(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := s.store.SubscriptionByUser(r.Context(), uid)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report setting not found")
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Get report setting failed",
			applog.FieldUserID, uid,
			applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to load report setting")
		return
	}

	writeJSON(w, http.StatusOK, settingJSON(sub))
}

// handleUpdateReportSetting updates the enabled flag and frequency. Changing
// the frequency re-anchors nextReportDate to the next boundary from now, so a
// user switching from monthly to daily does not wait out the old schedule.
func (s *Server) handleUpdateReportSetting(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.GetUser(r.Context(), uid); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	var req updateReportSettingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Frequency != "" && !core.ValidFrequency(req.Frequency) {
		writeError(w, http.StatusUnprocessableEntity, "invalid frequency: must be one of daily, weekly, monthly")
		return
	}

	now := time.Now().UTC()
	sub, err := s.store.SubscriptionByUser(r.Context(), uid)
	if errors.Is(err, storage.ErrNotFound) {
		sub = core.ReportSubscription{UserID: uid, Frequency: core.FrequencyMonthly}
	} else if err != nil {
		s.logger.ErrorContext(r.Context(), "Get report setting failed",
			applog.FieldUserID, uid,
			applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to load report setting")
		return
	}

	if req.IsEnabled != nil {
		sub.IsEnabled = *req.IsEnabled
	}
	if req.Frequency != "" {
		sub.Frequency = core.Frequency(req.Frequency)
	}
	sub.NextReportDate = schedule.NextRunDate(now, sub.Frequency)

	if err := sub.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.store.UpsertSubscription(r.Context(), sub); err != nil {
		s.logger.ErrorContext(r.Context(), "Update report setting failed",
			applog.FieldUserID, uid,
			applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to save report setting")
		return
	}

	s.logger.InfoContext(r.Context(), "Report setting updated",
		applog.FieldUserID, uid,
		applog.FieldFrequency, string(sub.Frequency),
		"is_enabled", sub.IsEnabled,
		"next_report_date", sub.NextReportDate.Format(time.RFC3339))
	writeJSON(w, http.StatusOK, settingJSON(sub))
}

func settingJSON(sub core.ReportSubscription) reportSettingJSON {
	out := reportSettingJSON{
		IsEnabled:      sub.IsEnabled,
		Frequency:      string(sub.Frequency),
		NextReportDate: sub.NextReportDate.Format(time.RFC3339),
	}
	if sub.LastSentDate != nil {
		v := sub.LastSentDate.Format(time.RFC3339)
		out.LastSentDate = &v
	}
	return out
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, name string, def, min, max int) int {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}
