package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/SoraGate-io/soragate/internal/database"
	"github.com/SoraGate-io/soragate/internal/ledger"
	"github.com/SoraGate-io/soragate/internal/models"
	"github.com/SoraGate-io/soragate/internal/upstream"
	"github.com/SoraGate-io/soragate/internal/voucher"
)

// VerifyHandler authenticates a client and returns its entitlement
// snapshot: balance, plan, effective limits and costs, plus the broadcast
// and update channel.
func (api *Api) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username"`
		LicenseKey string `json:"license_key"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"valid": false, "message": "Invalid Request"})
		return
	}

	account, err := api.Ledger.Resolve(req.Username, req.LicenseKey)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"valid": false, "message": "Invalid Credentials"})
		return
	}

	now := time.Now()
	if msg, ok := usabilityMessage(account, now); !ok {
		respondJSON(w, http.StatusOK, map[string]any{"valid": false, "message": msg})
		return
	}

	if err := api.Ledger.TouchLastSeen(account.Username, now); err != nil {
		log.Printf("verify: touch last_seen for %s: %v", account.Username, err)
	}

	settings, err := api.Store.LoadSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Settings unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"valid":             true,
		"credits":           account.Credits,
		"expiry":            account.ExpiryDate.Format("2006-01-02"),
		"plan":              account.Plan,
		"concurrency_limit": api.Ledger.ResolveConcurrencyLimit(account, settings),
		"cost_sora_2":       api.Ledger.ResolveCost(account, "sora-2", settings),
		"cost_sora_2_pro":   api.Ledger.ResolveCost(account, "sora-2-pro", settings),
		"broadcast":         settings.BroadcastMsg,
		"broadcast_color":   settings.BroadcastColor,
		"latest_version":    settings.LatestVersion,
		"update_desc":       settings.UpdateDesc,
		"update_is_live":    settings.UpdateIsLive,
		"download_url":      settings.UpdateURL,
	})
}

// usabilityMessage maps a non-usable account to the rejection message the
// client shows.
func usabilityMessage(a *models.Account, now time.Time) (string, bool) {
	switch a.Status {
	case models.StatusBanned:
		return "Account Banned", false
	case models.StatusSuspended:
		return "Account Suspended", false
	case models.StatusInactive:
		return "Account Inactive", false
	}
	if !a.IsUsable(now) {
		return "License Expired", false
	}
	return "", true
}

// RedeemHandler applies a voucher code to an account.
func (api *Api) RedeemHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Code     string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil || req.Username == "" || req.Code == "" {
		respondJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Invalid Request"})
		return
	}

	result, err := api.Vouchers.Redeem(req.Code, req.Username, time.Now())
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": voucher.RejectionMessage(err),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": result.Message,
	})
}

// HeartbeatHandler records client liveness for the admin dashboard.
func (api *Api) HeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username"`
		LicenseKey string `json:"license_key"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	// Best effort: a stale or wrong credential just does not count.
	if err := api.Ledger.RecordHeartbeat(req.Username, req.LicenseKey); err != nil {
		log.Printf("heartbeat: %s: %v", req.Username, err)
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// CheckUpdateStatusHandler exposes the update channel without requiring
// credentials, so old clients can learn about a release.
func (api *Api) CheckUpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := api.Store.LoadSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Settings unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"latest_version": settings.LatestVersion,
		"update_desc":    settings.UpdateDesc,
		"update_is_live": settings.UpdateIsLive,
		"download_url":   settings.UpdateURL,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// GenerateHandler is the metered proxy path: authenticate, price, pick an
// upstream credential, forward, and debit only once the provider accepts.
func (api *Api) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	username, licenseKey, ok := parseClientAuth(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}

	account, err := api.Ledger.Resolve(username, licenseKey)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}

	now := time.Now()
	if !account.IsUsable(now) {
		respondError(w, http.StatusForbidden, "Account Not Active")
		return
	}

	var req struct {
		Model       string `json:"model"`
		Prompt      string `json:"prompt"`
		AspectRatio string `json:"aspectRatio"`
	}
	if err := decodeBody(r, &req); err != nil || req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	settings, err := api.Store.LoadSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Settings unavailable")
		return
	}

	cost := api.Ledger.ResolveCost(account, req.Model, settings)
	if account.Credits < cost {
		respondError(w, http.StatusPaymentRequired, "Insufficient Credits")
		return
	}

	key, err := api.Keys.SelectFor(account)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "System Busy: No upstream capacity")
		return
	}

	pro := ledger.ClassForModel(req.Model) == models.ClassPro
	payload := upstream.BuildPayload(req.Model, req.Prompt, req.AspectRatio, pro)

	accept, err := api.Upstream.Generate(r.Context(), payload, key.KeyValue)
	if err != nil {
		api.handleUpstreamError(w, err, key.KeyValue)
		return
	}

	if !accept.Accepted() {
		// Provider rejected the job: nothing was charged.
		msg := accept.Message
		if msg == "" {
			msg = "Generation rejected"
		}
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := api.Tasks.Create(account.Username, accept.Data.TaskID, req.Model, cost, now); err != nil {
		if errors.Is(err, database.ErrInsufficientCredits) {
			respondError(w, http.StatusPaymentRequired, "Insufficient Credits")
			return
		}
		respondError(w, http.StatusInternalServerError, "Could not record task")
		return
	}

	balance := account.Credits - cost
	if fresh, err := api.Ledger.Get(account.Username); err == nil {
		balance = fresh.Credits
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"code":         accept.Code,
		"message":      accept.Message,
		"data":         map[string]any{"taskId": accept.Data.TaskID},
		"user_balance": balance,
	})
}

// CheckResultHandler polls the provider for a task and reconciles the
// charge: a terminal failure refunds the pending debit exactly once and
// marks the payload so the client can tell.
func (api *Api) CheckResultHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if err := decodeBody(r, &req); err != nil || req.TaskID == "" {
		respondError(w, http.StatusBadRequest, "Missing taskId")
		return
	}

	key, err := api.Keys.Select("")
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "System Busy: No upstream capacity")
		return
	}

	payload, status, err := api.Upstream.CheckResult(r.Context(), req.TaskID, key.KeyValue)
	if err != nil {
		api.handleUpstreamError(w, err, key.KeyValue)
		return
	}

	refunded, err := api.Tasks.Reconcile(req.TaskID, status, time.Now())
	if err != nil {
		log.Printf("check-result: reconcile %s: %v", req.TaskID, err)
	}
	if refunded {
		data, ok := payload["data"].(map[string]any)
		if !ok {
			data = map[string]any{}
			payload["data"] = data
		}
		data["credits_refunded"] = true
	}

	respondJSON(w, http.StatusOK, payload)
}

// handleUpstreamError translates a gateway failure into the proxy's
// response and charges the error against the credential used.
func (api *Api) handleUpstreamError(w http.ResponseWriter, err error, keyValue string) {
	if recErr := api.Keys.RecordError(keyValue); recErr != nil {
		log.Printf("keypool: record error for key: %v", recErr)
	}

	var httpErr *upstream.HTTPError
	switch {
	case errors.Is(err, upstream.ErrTimeout):
		respondError(w, http.StatusGatewayTimeout, "Upstream timed out, please retry")
	case errors.As(err, &httpErr):
		respondError(w, http.StatusBadGateway, httpErr.Error())
	default:
		respondError(w, http.StatusBadGateway, "Upstream unavailable")
	}
}
