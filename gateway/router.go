package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the full HTTP surface: escrow operations under /v1,
// admin endpoints, health and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/escrows", s.handleCreate)
		r.Route("/escrows/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRecord)
			r.Get("/schedule", s.handleGetSchedule)
			r.Get("/balance", s.handleGetBalance)
			r.Get("/unpaid", s.handleGetUnpaid)
			r.Get("/guarantees", s.handleGetGuarantees)
			r.Get("/events", s.handleGetEvents)

			r.Post("/start", s.action("start", s.engine.Start))
			r.Post("/pay", s.handlePay)
			r.Post("/approval", s.handleApproval)
			r.Post("/guarantee", s.handleGuarantee)
			r.Post("/guarantee/return", s.handleGuaranteeReturn)
			r.Post("/dispute", s.action("open_dispute", s.engine.OpenDispute))
			r.Post("/dispute/resolve", s.splitHandler("resolve_dispute", s.engine.ResolveDispute))
			r.Post("/settlement", s.splitHandler("propose_settlement", s.engine.ProposeSettlement))
			r.Post("/settlement/accept", s.action("accept_settlement", s.engine.AcceptSettlement))
			r.Post("/withdraw", s.action("withdraw", s.engine.Withdraw))
			r.Post("/withdraw/partial", s.handlePartialWithdraw)
			r.Post("/auto-execute", s.action("auto_execute", s.engine.AutoExecute))
			r.Post("/emergency-timeout", s.handleEmergency)
		})

		r.Get("/fees", s.handleGetFees)
		r.Post("/fees/withdraw", s.handleFeesWithdraw)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/assets", s.admin("admin_allow_asset", s.handleAllowAsset))
			r.Post("/items", s.admin("admin_allow_item", s.handleAllowItem))
			r.Post("/arbiters", s.admin("admin_allow_arbiter", s.handleAllowArbiter))
			r.Post("/pause", s.admin("admin_pause", s.handlePause))
		})
	})

	return r
}
