package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rteixeira/payrail/internal/adapter/repository/postgres"
	"github.com/rteixeira/payrail/internal/config"
	"github.com/rteixeira/payrail/internal/domain"
	"github.com/rteixeira/payrail/internal/gateway/achwire"
	"github.com/rteixeira/payrail/internal/gateway/cardrail"
	"github.com/rteixeira/payrail/internal/gateway/ledgercore"
	"github.com/rteixeira/payrail/internal/gateway/ratelimit"
	"github.com/rteixeira/payrail/internal/gateway/session"
	"github.com/rteixeira/payrail/internal/logger"
	"github.com/rteixeira/payrail/internal/usecase/charge"
	"github.com/rteixeira/payrail/internal/usecase/eligibility"
	"github.com/rteixeira/payrail/internal/usecase/reconcile"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// 1. Database and repositories
	db, err := postgres.NewDB(cfg.DBSource)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	paymentRepo := postgres.NewPaymentRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	markerRepo := postgres.NewMarkerRepository(db)
	sharedSessions := postgres.NewSessionRepository(db)

	// 2. Processor clients, session caches and the shared-identity limiter
	achClient := achwire.NewHTTPClient(cfg.AchWireBaseURL, log)
	achSessions := session.New(session.Config{
		ClientID:        cfg.AchWireClientID,
		PrimarySecret:   cfg.AchWireSecret,
		AlternateSecret: cfg.AchWireAltSecret,
	}, achClient, markerRepo, sharedSessions, log)

	cardClient := cardrail.NewHTTPClient(cfg.CardRailBaseURL, log)
	cardSessions := session.New(session.Config{
		ClientID:        cfg.CardRailClientID,
		PrimarySecret:   cfg.CardRailSecret,
		AlternateSecret: cfg.CardRailAltSecret,
	}, cardClient, markerRepo, nil, log)

	// Each processor gets its own shared-identity fetch window; the ceilings
	// are per upstream partner.
	achFetchLimiter := ratelimit.New("fetch-transaction-by-shared-identity", ratelimit.Config{
		WindowSeconds:    cfg.FetchLimitWindowSeconds,
		MaxCount:         cfg.FetchLimitMaxCount,
		PrecisionBuckets: cfg.FetchLimitBuckets,
	})
	cardFetchLimiter := ratelimit.New("fetch-transfer-by-shared-identity", ratelimit.Config{
		WindowSeconds:    cfg.FetchLimitWindowSeconds,
		MaxCount:         cfg.FetchLimitMaxCount,
		PrecisionBuckets: cfg.FetchLimitBuckets,
	})

	// 3. Processor adapters
	achAdapter := achwire.New(achClient, achSessions, achFetchLimiter, cfg.ServiceIdentityID, achwire.Fees{
		Standard: cfg.AchWireFee,
		SameDay:  cfg.AchWireSameDayFee,
	}, log)
	cardAdapter := cardrail.New(cardClient, cardSessions, cardFetchLimiter, cfg.ServiceIdentityID, cardrail.Fees{
		Standard: cfg.CardRailFee,
		SameDay:  cfg.CardRailSameDayFee,
	}, log)
	ledgerAdapter := ledgercore.New(ledgercore.NewHTTPClient(cfg.LedgerCoreBaseURL, log), log)

	// 4. Use cases
	eligCfg := eligibility.Config{
		CollectionWindowStart: cfg.CollectionWindowStart,
		CollectionWindowEnd:   cfg.CollectionWindowEnd,
		RepeatChargeCoolDown:  cfg.RepeatChargeCoolDown,
		MinNameLength:         cfg.MinNameLength,
	}
	chargeService := charge.NewService(
		paymentRepo, accountRepo, auditRepo,
		charge.RolloutDecider{Percent: cfg.CardRailRolloutPct},
		eligCfg, log,
		achAdapter, cardAdapter, ledgerAdapter,
	)
	reconcileService := reconcile.NewService(
		paymentRepo, auditRepo, reconcile.LogNotifier{Log: log},
		reconcile.Config{
			PaymentNotFoundGrace:      cfg.PaymentNotFoundGrace,
			DisbursementNotFoundGrace: cfg.DisbursementNotFoundGrace,
			ProbeOrder:                []domain.Processor{domain.ProcessorAchWire, domain.ProcessorCardRail, domain.ProcessorLedgerCore},
		},
		log,
		achAdapter, cardAdapter, ledgerAdapter,
	)

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	// 5. Periodic reconciliation sweep; per-payment retries belong to the
	// external scheduler, which re-invokes via the on-demand endpoint below
	go func() {
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := reconcileService.RefreshBatch(ctx, cfg.ReconcileBatchSize); err != nil {
					log.Error().Err(err).Msg("reconciliation sweep failed")
				}
			}
		}
	}()

	// 6. Ops HTTP server: health, metrics and internal job triggers. The
	// user-facing API lives in a collaborator service.
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := &opsHandler{charges: chargeService, reconciler: reconcileService, log: log}
	router.HandleFunc("/internal/payments/{id}/charge", handler.chargePayment).Methods(http.MethodPost)
	router.HandleFunc("/internal/payments/{id}/reconcile", handler.reconcilePayment).Methods(http.MethodPost)
	router.HandleFunc("/internal/disbursements/{id}/reconcile", handler.reconcileDisbursement).Methods(http.MethodPost)

	server := &http.Server{
		Addr:    ":" + cfg.OpsPort,
		Handler: router,
	}
	go func() {
		log.Info().Str("port", cfg.OpsPort).Msg("ops server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	waitForShutdown(server, cancel, log)
}

// opsHandler exposes thin internal triggers consumed by the job scheduler.
type opsHandler struct {
	charges    *charge.Service
	reconciler *reconcile.Service
	log        zerolog.Logger
}

type chargeRequest struct {
	AccountID       string `json:"account_id"`
	Type            string `json:"type"`
	UserID          string `json:"user_id"`
	SourceID        string `json:"source_id"`
	DestinationID   string `json:"destination_id"`
	ReferenceID     string `json:"reference_id"`
	Amount          string `json:"amount"`
	SameDay         bool   `json:"same_day"`
	CorrespondingID string `json:"corresponding_id"`
}

func (h *opsHandler) chargePayment(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid payment id", http.StatusBadRequest)
		return
	}

	var body chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	accountID, err := uuid.Parse(body.AccountID)
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}

	req := domain.TransactionRequest{
		Type:          domain.TransactionType(body.Type),
		UserID:        body.UserID,
		SourceID:      body.SourceID,
		DestinationID: body.DestinationID,
		ReferenceID:   body.ReferenceID,
		Amount:        amount,
		SameDay:       body.SameDay,
	}
	if body.CorrespondingID != "" {
		correspondingID, err := uuid.Parse(body.CorrespondingID)
		if err != nil {
			http.Error(w, "invalid corresponding id", http.StatusBadRequest)
			return
		}
		req.CorrespondingID = &correspondingID
	}

	result, err := h.charges.ChargeBankAccount(r.Context(), charge.Input{
		PaymentID: paymentID,
		AccountID: accountID,
		Request:   req,
	})
	if err != nil {
		h.respondChargeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"external_id": result.ExternalID,
		"status":      string(result.Status),
		"processor":   string(result.Processor),
	})
}

func (h *opsHandler) reconcilePayment(w http.ResponseWriter, r *http.Request) {
	h.reconcileWith(w, r, h.reconciler.RefreshPayment)
}

func (h *opsHandler) reconcileDisbursement(w http.ResponseWriter, r *http.Request) {
	h.reconcileWith(w, r, h.reconciler.RefreshDisbursement)
}

func (h *opsHandler) reconcileWith(w http.ResponseWriter, r *http.Request, refresh func(context.Context, uuid.UUID) error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := refresh(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			http.Error(w, "payment not found", http.StatusNotFound)
			return
		}
		// Transport failures return 503 so the scheduler re-enqueues.
		h.log.Error().Err(err).Str("id", id.String()).Msg("reconciliation failed")
		http.Error(w, "reconciliation failed", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *opsHandler) respondChargeError(w http.ResponseWriter, err error) {
	var eligErr *domain.EligibilityError
	var payErr *domain.PaymentError

	switch {
	case errors.As(err, &eligErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": eligErr.Error(),
			"data":    map[string]interface{}{"failures": eligErr.Failures},
		})
	case errors.As(err, &payErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": payErr.Error(),
			"status":  string(payErr.Status),
		})
	case errors.Is(err, domain.ErrTransactionConflict):
		http.Error(w, "transaction already in flight", http.StatusConflict)
	case errors.Is(err, domain.ErrFraudHold):
		http.Error(w, "account under review", http.StatusForbidden)
	case errors.Is(err, domain.ErrPaymentNotFound):
		http.Error(w, "payment not found", http.StatusNotFound)
	default:
		h.log.Error().Err(err).Msg("charge failed")
		http.Error(w, "charge failed", http.StatusServiceUnavailable)
	}
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down
func waitForShutdown(server *http.Server, cancel context.CancelFunc, log zerolog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server shutdown failed")
	}
	log.Info().Msg("ops server stopped")
}
