package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SoraGate-io/soragate/internal/auth"
	"github.com/SoraGate-io/soragate/internal/database"
	"github.com/SoraGate-io/soragate/internal/models"
	"github.com/go-chi/chi/v5"
)

// AdminLoginHandler exchanges the admin password for a session token. The
// token is returned in the body and also set as a cookie for browser use.
func (api *Api) AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	token, err := api.Sessions.Login(req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(auth.DefaultSessionTTL),
	})
	respondJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (api *Api) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := api.Ledger.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not list accounts")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// CreateAccountHandler provisions an account and returns it, including the
// generated license key. This is the only place the key is shown in full.
func (api *Api) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string  `json:"username"`
		Credits  int     `json:"credits"`
		Plan     string  `json:"plan"`
		Expiry   string  `json:"expiry"`
		KeyGroup *string `json:"key_group"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	expiry, err := time.Parse("2006-01-02", req.Expiry)
	if err != nil {
		respondError(w, http.StatusBadRequest, "expiry must be YYYY-MM-DD")
		return
	}

	account, err := api.Ledger.CreateAccount(req.Username, req.Credits,
		models.Plan(req.Plan), expiry, req.KeyGroup, time.Now())
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			respondError(w, http.StatusConflict, "Username already exists")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, account)
}

// UpdateAccountHandler applies a partial profile update. Absent fields keep
// their stored values; credit_adjust is a delta, floored at zero.
func (api *Api) UpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req struct {
		Plan          *string `json:"plan"`
		CustomLimit   *int    `json:"custom_limit"`
		CustomCost    *int    `json:"custom_cost"`
		CustomCostPro *int    `json:"custom_cost_pro"`
		KeyGroup      *string `json:"key_group"`
		Expiry        *string `json:"expiry"`
		CreditAdjust  *int    `json:"credit_adjust"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	account, err := api.Ledger.Get(username)
	if err != nil {
		respondError(w, http.StatusNotFound, "Account not found")
		return
	}

	plan := account.Plan
	if req.Plan != nil {
		plan = models.Plan(*req.Plan)
	}
	customLimit := account.CustomLimit
	if req.CustomLimit != nil {
		customLimit = req.CustomLimit
	}
	customCost := account.CustomCost
	if req.CustomCost != nil {
		customCost = req.CustomCost
	}
	customCostPro := account.CustomCostPro
	if req.CustomCostPro != nil {
		customCostPro = req.CustomCostPro
	}
	keyGroup := account.KeyGroup
	if req.KeyGroup != nil {
		keyGroup = req.KeyGroup
	}

	if err := api.Ledger.UpdateProfile(username, plan, customLimit, customCost, customCostPro, keyGroup); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Expiry != nil {
		expiry, err := time.Parse("2006-01-02", *req.Expiry)
		if err != nil {
			respondError(w, http.StatusBadRequest, "expiry must be YYYY-MM-DD")
			return
		}
		if err := api.Ledger.SetExpiry(username, expiry); err != nil {
			respondError(w, http.StatusInternalServerError, "Could not update expiry")
			return
		}
	}

	if req.CreditAdjust != nil && *req.CreditAdjust != 0 {
		if err := api.Ledger.AdjustCredits(username, *req.CreditAdjust); err != nil {
			respondError(w, http.StatusInternalServerError, "Could not adjust credits")
			return
		}
	}

	updated, err := api.Ledger.Get(username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not reload account")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (api *Api) SetAccountStatusHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	if err := api.Ledger.SetStatus(username, models.AccountStatus(req.Status)); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Account not found")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (api *Api) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := api.Ledger.Delete(username); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Account not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Could not delete account")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (api *Api) ListVouchersHandler(w http.ResponseWriter, r *http.Request) {
	vouchers, err := api.Vouchers.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not list vouchers")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"vouchers": vouchers})
}

// GenerateVouchersHandler mints a batch of voucher codes.
func (api *Api) GenerateVouchersHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount  int     `json:"amount"`
		Count   int     `json:"count"`
		MaxUses int     `json:"max_uses"`
		Expiry  *string `json:"expiry"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	var expiry *time.Time
	if req.Expiry != nil && *req.Expiry != "" {
		parsed, err := time.Parse("2006-01-02", *req.Expiry)
		if err != nil {
			respondError(w, http.StatusBadRequest, "expiry must be YYYY-MM-DD")
			return
		}
		expiry = &parsed
	}

	vouchers, err := api.Vouchers.GenerateBatch(req.Amount, req.Count, req.MaxUses, expiry, time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"vouchers": vouchers})
}

func (api *Api) DeleteVoucherHandler(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := api.Vouchers.Delete(code); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Voucher not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Could not delete voucher")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (api *Api) ListKeysHandler(w http.ResponseWriter, r *http.Request) {
	keys, err := api.Keys.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not list keys")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (api *Api) AddKeyHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KeyValue string  `json:"key_value"`
		Label    string  `json:"label"`
		KeyGroup *string `json:"key_group"`
	}
	if err := decodeBody(r, &req); err != nil || req.KeyValue == "" {
		respondError(w, http.StatusBadRequest, "key_value is required")
		return
	}

	key, err := api.Keys.Add(req.KeyValue, req.Label, req.KeyGroup, time.Now())
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			respondError(w, http.StatusConflict, "Key already registered")
			return
		}
		respondError(w, http.StatusInternalServerError, "Could not add key")
		return
	}
	respondJSON(w, http.StatusCreated, key)
}

func (api *Api) ToggleKeyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	if err := api.Keys.SetActive(id, req.Active); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Key not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Could not update key")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (api *Api) DeleteKeyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid key id")
		return
	}
	if err := api.Keys.Delete(id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Key not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Could not delete key")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (api *Api) ListBansHandler(w http.ResponseWriter, r *http.Request) {
	bans, err := api.Store.ListBans()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not list bans")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"bans": bans})
}

// UnbanHandler lifts an IP ban and clears its suspicion counter, so the
// address starts from a clean slate.
func (api *Api) UnbanHandler(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if err := api.Guard.Unban(ip); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "IP is not banned")
			return
		}
		respondError(w, http.StatusInternalServerError, "Could not lift ban")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (api *Api) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := api.Store.LoadSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Settings unavailable")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// UpdateSettingsHandler replaces the runtime settings wholesale. The body
// is the full settings document; clients should GET, modify and POST back.
func (api *Api) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if err := decodeBody(r, &settings); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	if err := api.Store.SaveSettings(settings); err != nil {
		respondError(w, http.StatusInternalServerError, "Could not save settings")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (api *Api) ListLogsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	logs, err := api.Store.ListLogs(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not list logs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (api *Api) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	tasks, err := api.Tasks.List(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not list tasks")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}
