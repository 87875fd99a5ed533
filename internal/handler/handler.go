package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"subbilling/internal/config"
	"subbilling/internal/event"
	"subbilling/internal/model"
	"subbilling/internal/repository"
	"subbilling/internal/service"
	"subbilling/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler bundles the service dependencies behind the HTTP surface.
type Handler struct {
	dispatcher          *event.Dispatcher
	checkoutService     *service.CheckoutService
	captureService      *service.CaptureService
	refundService       *service.RefundService
	restoreService      *service.RestoreService
	subscriptionService *service.SubscriptionService
	tokenService        *service.TokenService
	store               repository.Store
	expiringSoonDays    int
}

func NewHandler(store repository.Store, locker service.Locker, dispatcher *event.Dispatcher, cfg *config.Config) *Handler {
	invoiceExpiry := time.Duration(cfg.Business.InvoiceExpiryMinutes) * time.Minute
	topic := cfg.Kafka.Topic.BillingEvents
	return &Handler{
		dispatcher:          dispatcher,
		checkoutService:     service.NewCheckoutService(store, invoiceExpiry),
		captureService:      service.NewCaptureService(store, locker, topic),
		refundService:       service.NewRefundService(store, locker, topic),
		restoreService:      service.NewRestoreService(store, locker, topic),
		subscriptionService: service.NewSubscriptionService(store),
		tokenService:        service.NewTokenService(store),
		store:               store,
		expiringSoonDays:    cfg.Business.ExpiringSoonDays,
	}
}

// notFound maps repository sentinel errors onto 404; everything else is
// a server error.
func notFound(err error) bool {
	return errors.Is(err, repository.ErrInvoiceNotFound) ||
		errors.Is(err, repository.ErrSubscriptionNotFound) ||
		errors.Is(err, repository.ErrPlanNotFound) ||
		errors.Is(err, repository.ErrBundleNotFound) ||
		errors.Is(err, repository.ErrAddOnNotFound) ||
		errors.Is(err, repository.ErrPurchaseNotFound) ||
		errors.Is(err, repository.ErrAddOnSubscriptionNotFound)
}

// WebhookRequest is the normalized provider notification. Provider
// adapters upstream translate native payloads into this shape before
// posting.
type WebhookRequest struct {
	Event string                 `json:"event" binding:"required"`
	Data  map[string]interface{} `json:"data"`
}

func str(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func strSlice(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Webhook ingests one normalized payment event.
// POST /api/v1/webhook
//
// Always answers 200 with the handler result in the body: a non-2xx
// would make the provider retry forever on permanently-failing events,
// and the sagas already tolerate replays of the ones worth retrying.
func (h *Handler) Webhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid payload: "+err.Error())
		return
	}

	var ev event.Event
	switch req.Event {
	case event.NameCheckoutRequested:
		ev = event.NewCheckoutRequested(
			str(req.Data, "user_id"),
			str(req.Data, "plan_id"),
			strSlice(req.Data, "token_bundle_ids"),
			strSlice(req.Data, "add_on_ids"),
			str(req.Data, "currency"),
			str(req.Data, "payment_method_code"),
		)
	case event.NamePaymentCaptured:
		captured := event.NewPaymentCaptured(
			str(req.Data, "invoice_id"),
			str(req.Data, "payment_reference"),
			str(req.Data, "provider"),
		)
		captured.Amount = str(req.Data, "amount")
		captured.Currency = str(req.Data, "currency")
		captured.TransactionID = str(req.Data, "transaction_id")
		ev = captured
	case event.NamePaymentRefunded:
		ev = event.NewPaymentRefunded(
			str(req.Data, "invoice_id"),
			str(req.Data, "refund_reference"),
		)
	case event.NameRefundReversed:
		ev = event.NewRefundReversed(
			str(req.Data, "invoice_id"),
			str(req.Data, "reason"),
		)
	case event.NameSubscriptionCancelled:
		ev = event.SubscriptionCancelled{
			SubscriptionID: str(req.Data, "subscription_id"),
			UserID:         str(req.Data, "user_id"),
			Reason:         str(req.Data, "reason"),
			Provider:       str(req.Data, "provider"),
		}
	case event.NamePaymentFailed:
		ev = event.PaymentFailed{
			SubscriptionID: str(req.Data, "subscription_id"),
			UserID:         str(req.Data, "user_id"),
			ErrorCode:      str(req.Data, "error_code"),
			ErrorMessage:   str(req.Data, "error_message"),
			Provider:       str(req.Data, "provider"),
		}
	default:
		response.ParamError(c, "unknown event: "+req.Event)
		return
	}

	result := h.dispatcher.Emit(c.Request.Context(), ev)
	c.JSON(http.StatusOK, result)
}

// Checkout creates the pending order graph for a purchase.
// POST /api/v1/checkout
func (h *Handler) Checkout(c *gin.Context) {
	var req service.CheckoutInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid payload: "+err.Error())
		return
	}

	summary, err := h.checkoutService.Checkout(c.Request.Context(), req)
	if err != nil {
		if notFound(err) {
			response.NotFound(c, err.Error())
			return
		}
		response.BusinessError(c, response.CodeCheckoutFailed, err.Error())
		return
	}
	response.Success(c, summary)
}

// GetInvoice returns an invoice with its line items.
// GET /api/v1/invoice/:id
func (h *Handler) GetInvoice(c *gin.Context) {
	invoice, err := h.store.Invoices().FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if notFound(err) {
			response.NotFound(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, invoice)
}

type markPaidRequest struct {
	PaymentReference string `json:"payment_reference"`
	Provider         string `json:"provider"`
}

type refundInvoiceRequest struct {
	RefundReference string `json:"refund_reference"`
}

type restoreInvoiceRequest struct {
	Reason string `json:"reason"`
}

// MarkInvoicePaid runs the capture saga from the admin side, for
// payments settled outside the provider flow. Unlike the webhook,
// failures surface to the operator as 400/404.
// POST /api/v1/invoice/:id/mark-paid
func (h *Handler) MarkInvoicePaid(c *gin.Context) {
	var req markPaidRequest
	_ = c.ShouldBindJSON(&req) // body is optional
	if req.PaymentReference == "" {
		req.PaymentReference = "manual"
	}

	summary, err := h.captureService.Capture(c.Request.Context(),
		event.NewPaymentCaptured(c.Param("id"), req.PaymentReference, req.Provider))
	h.respondSaga(c, response.CodeInvoiceStatusInvalid, summary, err)
}

// RefundInvoice runs the refund saga for an operator-confirmed refund.
// POST /api/v1/invoice/:id/refund
func (h *Handler) RefundInvoice(c *gin.Context) {
	var req refundInvoiceRequest
	_ = c.ShouldBindJSON(&req)

	summary, err := h.refundService.Refund(c.Request.Context(),
		event.NewPaymentRefunded(c.Param("id"), req.RefundReference))
	h.respondSaga(c, response.CodeRefundFailed, summary, err)
}

// RestoreInvoice reverses a refund from the admin side.
// POST /api/v1/invoice/:id/restore
func (h *Handler) RestoreInvoice(c *gin.Context) {
	var req restoreInvoiceRequest
	_ = c.ShouldBindJSON(&req)

	summary, err := h.restoreService.Restore(c.Request.Context(),
		event.NewRefundReversed(c.Param("id"), req.Reason))
	h.respondSaga(c, response.CodeRestoreFailed, summary, err)
}

// respondSaga maps a saga outcome for admin callers: missing entities
// are 404, precondition failures 400 with the given business code.
func (h *Handler) respondSaga(c *gin.Context, code int, data interface{}, err error) {
	if err == nil {
		response.Success(c, data)
		return
	}
	if notFound(err) {
		response.NotFound(c, err.Error())
		return
	}
	if errors.Is(err, repository.ErrInvoiceStatusInvalid) {
		response.BadRequestCode(c, code, err.Error())
		return
	}
	response.ServerError(c, err.Error())
}

// GetActiveSubscription returns the user's active subscription, if any.
// GET /api/v1/subscription/active?user_id=xxx
func (h *Handler) GetActiveSubscription(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id is required")
		return
	}

	sub, err := h.subscriptionService.GetActiveSubscription(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	if sub == nil {
		response.NotFound(c, "no active subscription")
		return
	}
	response.Success(c, sub)
}

// ListSubscriptions returns all subscriptions of a user.
// GET /api/v1/subscription/list?user_id=xxx
func (h *Handler) ListSubscriptions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id is required")
		return
	}

	subs, err := h.subscriptionService.GetUserSubscriptions(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, subs)
}

type subscriptionActionRequest struct {
	SubscriptionID string `json:"subscription_id" binding:"required"`
}

type planChangeRequest struct {
	SubscriptionID string `json:"subscription_id" binding:"required"`
	NewPlanID      string `json:"new_plan_id" binding:"required"`
}

func (h *Handler) subscriptionAction(c *gin.Context, fn func(ctx *gin.Context, subscriptionID string)) {
	var req subscriptionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid payload: "+err.Error())
		return
	}
	fn(c, req.SubscriptionID)
}

// POST /api/v1/subscription/activate
func (h *Handler) ActivateSubscription(c *gin.Context) {
	h.subscriptionAction(c, func(c *gin.Context, id string) {
		sub, err := h.subscriptionService.ActivateSubscription(c.Request.Context(), id)
		h.respondSubscription(c, sub, err)
	})
}

// POST /api/v1/subscription/cancel
func (h *Handler) CancelSubscription(c *gin.Context) {
	h.subscriptionAction(c, func(c *gin.Context, id string) {
		sub, err := h.subscriptionService.CancelSubscription(c.Request.Context(), id)
		h.respondSubscription(c, sub, err)
	})
}

// POST /api/v1/subscription/pause
func (h *Handler) PauseSubscription(c *gin.Context) {
	h.subscriptionAction(c, func(c *gin.Context, id string) {
		sub, err := h.subscriptionService.PauseSubscription(c.Request.Context(), id)
		h.respondSubscription(c, sub, err)
	})
}

// POST /api/v1/subscription/resume
func (h *Handler) ResumeSubscription(c *gin.Context) {
	h.subscriptionAction(c, func(c *gin.Context, id string) {
		sub, err := h.subscriptionService.ResumeSubscription(c.Request.Context(), id)
		h.respondSubscription(c, sub, err)
	})
}

// POST /api/v1/subscription/renew
func (h *Handler) RenewSubscription(c *gin.Context) {
	h.subscriptionAction(c, func(c *gin.Context, id string) {
		sub, err := h.subscriptionService.RenewSubscription(c.Request.Context(), id)
		h.respondSubscription(c, sub, err)
	})
}

// POST /api/v1/subscription/upgrade
func (h *Handler) UpgradeSubscription(c *gin.Context) {
	var req planChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid payload: "+err.Error())
		return
	}
	sub, err := h.subscriptionService.UpgradeSubscription(c.Request.Context(), req.SubscriptionID, req.NewPlanID)
	h.respondSubscription(c, sub, err)
}

// POST /api/v1/subscription/downgrade
func (h *Handler) DowngradeSubscription(c *gin.Context) {
	var req planChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid payload: "+err.Error())
		return
	}
	sub, err := h.subscriptionService.DowngradeSubscription(c.Request.Context(), req.SubscriptionID, req.NewPlanID)
	h.respondSubscription(c, sub, err)
}

// ListExpiringSoon returns subscriptions expiring within the given
// window, for renewal reminders.
// GET /api/v1/subscription/expiring?days=7
func (h *Handler) ListExpiringSoon(c *gin.Context) {
	days := intQuery(c, "days", h.expiringSoonDays)
	if days <= 0 {
		days = 7
	}

	subs, err := h.subscriptionService.GetExpiringSoon(c.Request.Context(), days)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, subs)
}

// GET /api/v1/subscription/proration?subscription_id=xxx&new_plan_id=yyy
func (h *Handler) GetProration(c *gin.Context) {
	subscriptionID := c.Query("subscription_id")
	newPlanID := c.Query("new_plan_id")
	if subscriptionID == "" || newPlanID == "" {
		response.ParamError(c, "subscription_id and new_plan_id are required")
		return
	}

	result, err := h.subscriptionService.CalculateProration(c.Request.Context(), subscriptionID, newPlanID)
	if err != nil {
		if notFound(err) {
			response.NotFound(c, err.Error())
			return
		}
		response.BusinessError(c, response.CodeSubscriptionInvalid, err.Error())
		return
	}
	response.Success(c, result)
}

func (h *Handler) respondSubscription(c *gin.Context, sub interface{}, err error) {
	if err != nil {
		if notFound(err) {
			response.NotFound(c, err.Error())
			return
		}
		response.BusinessError(c, response.CodeSubscriptionInvalid, err.Error())
		return
	}
	response.Success(c, sub)
}

// GetTokenBalance returns the user's token balance.
// GET /api/v1/token/balance?user_id=xxx
func (h *Handler) GetTokenBalance(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id is required")
		return
	}

	balance, err := h.tokenService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

// ListTokenTransactions returns the user's token ledger, newest first.
// GET /api/v1/token/transactions?user_id=xxx&limit=50&offset=0
func (h *Handler) ListTokenTransactions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id is required")
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	txs, err := h.tokenService.ListTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, txs)
}

type spendTokensRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Description string `json:"description"`
}

// SpendTokens debits usage from the user's balance.
// POST /api/v1/token/spend
func (h *Handler) SpendTokens(c *gin.Context) {
	var req spendTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid payload: "+err.Error())
		return
	}

	balance, err := h.tokenService.Debit(c.Request.Context(), req.UserID, req.Amount,
		model.TokenTransactionTypeUsage, nil, req.Description)
	if err != nil {
		if errors.Is(err, service.ErrInsufficientBalance) {
			response.BusinessError(c, response.CodeInsufficientTokens, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, balance)
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
