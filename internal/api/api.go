package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/SoraGate-io/soragate/internal/abuse"
	"github.com/SoraGate-io/soragate/internal/auth"
	"github.com/SoraGate-io/soragate/internal/config"
	"github.com/SoraGate-io/soragate/internal/database"
	"github.com/SoraGate-io/soragate/internal/keypool"
	"github.com/SoraGate-io/soragate/internal/ledger"
	"github.com/SoraGate-io/soragate/internal/task"
	"github.com/SoraGate-io/soragate/internal/upstream"
	"github.com/SoraGate-io/soragate/internal/voucher"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Gateway is the upstream provider boundary the handlers depend on.
// *upstream.Client satisfies it; tests substitute a stub.
type Gateway interface {
	Generate(ctx context.Context, payload upstream.GenerationPayload, credential string) (*upstream.AcceptResponse, error)
	CheckResult(ctx context.Context, taskID, credential string) (map[string]any, string, error)
}

type Api struct {
	Config   config.Config
	Store    *database.Store
	Ledger   *ledger.Ledger
	Vouchers *voucher.Registry
	Tasks    *task.Manager
	Keys     *keypool.Pool
	Guard    *abuse.Guard
	Sessions *auth.SessionManager
	Upstream Gateway
	Router   *chi.Mux
}

// NewApi wires the components over one store and builds the router.
func NewApi(cfg config.Config, store *database.Store, gateway Gateway) (*Api, error) {
	if cfg.APIPort == 0 {
		return nil, fmt.Errorf("must have at least a port to start API")
	}

	sessions, err := auth.NewSessionManager(cfg.Admin.Password, cfg.Admin.SessionSecret)
	if err != nil {
		return nil, err
	}

	if gateway == nil {
		gateway = upstream.New(cfg.Upstream.BaseURL,
			time.Duration(cfg.Upstream.GenerateTimeout)*time.Second,
			time.Duration(cfg.Upstream.StatusTimeout)*time.Second)
	}

	api := &Api{
		Config:   cfg,
		Store:    store,
		Ledger:   ledger.New(store),
		Vouchers: voucher.New(store),
		Tasks:    task.New(store),
		Keys:     keypool.New(store),
		Guard:    abuse.New(store, cfg.Admin.LoginPath),
		Sessions: sessions,
		Upstream: gateway,
		Router:   chi.NewRouter(),
	}

	api.setupRoutes()
	return api, nil
}

func (api *Api) setupRoutes() {
	r := api.Router

	// The abuse guard runs before anything else: a banned IP is rejected
	// even for public paths.
	r.Use(api.GuardMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Client-Auth"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/", api.HomeHandler)
	r.Post("/"+api.Config.Admin.LoginPath, api.AdminLoginHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware)

		r.Post("/verify", api.VerifyHandler)
		r.Post("/redeem", api.RedeemHandler)
		r.Post("/heartbeat", api.HeartbeatHandler)
		r.Get("/check-update-status", api.CheckUpdateStatusHandler)

		r.Post("/proxy/generate", api.GenerateHandler)
		r.Post("/proxy/check-result", api.CheckResultHandler)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(api.AdminAuthMiddleware)

		r.Get("/accounts", api.ListAccountsHandler)
		r.Post("/accounts", api.CreateAccountHandler)
		r.Post("/accounts/{username}", api.UpdateAccountHandler)
		r.Post("/accounts/{username}/status", api.SetAccountStatusHandler)
		r.Delete("/accounts/{username}", api.DeleteAccountHandler)

		r.Get("/vouchers", api.ListVouchersHandler)
		r.Post("/vouchers", api.GenerateVouchersHandler)
		r.Delete("/vouchers/{code}", api.DeleteVoucherHandler)

		r.Get("/keys", api.ListKeysHandler)
		r.Post("/keys", api.AddKeyHandler)
		r.Post("/keys/{id}/toggle", api.ToggleKeyHandler)
		r.Delete("/keys/{id}", api.DeleteKeyHandler)

		r.Get("/bans", api.ListBansHandler)
		r.Delete("/bans/{ip}", api.UnbanHandler)

		r.Get("/settings", api.GetSettingsHandler)
		r.Post("/settings", api.UpdateSettingsHandler)

		r.Get("/logs", api.ListLogsHandler)
		r.Get("/tasks", api.ListTasksHandler)
	})
}

// Serve blocks running the HTTP server.
func (api *Api) Serve() {
	addr := fmt.Sprintf("0.0.0.0:%d", api.Config.APIPort)
	log.Printf("Starting API server on %s", addr)
	log.Fatal(http.ListenAndServe(addr, api.Router))
}

// HomeHandler is the public health check.
func (api *Api) HomeHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "Server Running",
		"secure": true,
	})
}
