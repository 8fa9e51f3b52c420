package server

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/tips"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	operatorContextKey = "tipjar_operator"
	heartbeatInterval  = 25 * time.Second
)

var (
	errMissingTipsService     = errors.New("tips service dependency required")
	errMissingLedger          = errors.New("ledger dependency required")
	errMissingPayerAuthorizer = errors.New("payer authorizer dependency required")
	errMissingOperatorTokens  = errors.New("operator token validator dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// Accounts exposes operator funding and balance reads.
type Accounts interface {
	Credit(ctx context.Context, identity solana.PublicKey, amount uint64) (uint64, error)
	Balance(ctx context.Context, identity solana.PublicKey) (uint64, error)
}

type PayerAuthorizer interface {
	Authorize(intent auth.TipIntent, signatureBase58 string) error
}

type OperatorTokenValidator interface {
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	TipsService     *tips.Service
	Accounts        Accounts
	PayerAuthorizer PayerAuthorizer
	OperatorTokens  OperatorTokenValidator
	Realtime        *RealtimeDispatcher
	Metrics         *metrics.Metrics
	Logger          *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TipsService == nil {
		return nil, errMissingTipsService
	}
	if deps.Accounts == nil {
		return nil, errMissingLedger
	}
	if deps.PayerAuthorizer == nil {
		return nil, errMissingPayerAuthorizer
	}
	if deps.OperatorTokens == nil {
		return nil, errMissingOperatorTokens
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher(defaultRealtimeBuffer)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	handler := &httpHandler{
		tipsService: deps.TipsService,
		accounts:    deps.Accounts,
		payers:      deps.PayerAuthorizer,
		tokens:      deps.OperatorTokens,
		realtime:    realtime,
		metrics:     deps.Metrics,
		logger:      logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/tips", handler.handleSendTip)
	router.GET("/tips/stream", handler.handleTipStream)
	router.GET("/tips/:address", handler.handleFetchTip)
	router.GET("/ledger/accounts/:identity", handler.handleBalance)

	operator := router.Group("/ledger")
	operator.Use(handler.authorizeRequest)
	operator.POST("/credit", handler.handleCredit)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

type httpHandler struct {
	tipsService *tips.Service
	accounts    Accounts
	payers      PayerAuthorizer
	tokens      OperatorTokenValidator
	realtime    *RealtimeDispatcher
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

type sendTipRequestPayload struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Message   string `json:"message"`
	Seed      uint64 `json:"seed"`
	Signature string `json:"signature"`
}

type tipRecordPayload struct {
	Address   string `json:"address"`
	Nonce     uint8  `json:"nonce"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Data      string `json:"data,omitempty"`
}

type tipEventPayload struct {
	tipRecordPayload
	Source string `json:"source"`
}

func newTipRecordPayload(address solana.PublicKey, record tips.TipRecord) tipRecordPayload {
	return tipRecordPayload{
		Address:   address.String(),
		Nonce:     record.Nonce,
		Sender:    record.Sender.String(),
		Recipient: record.Recipient.String(),
		Amount:    record.Amount,
		Message:   record.Message,
		Timestamp: record.Timestamp,
	}
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleSendTip(c *gin.Context) {
	var request sendTipRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	sender, senderErr := solana.PublicKeyFromBase58(strings.TrimSpace(request.Sender))
	recipient, recipientErr := solana.PublicKeyFromBase58(strings.TrimSpace(request.Recipient))
	if senderErr != nil || recipientErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	intent := auth.TipIntent{
		Sender:    sender,
		Recipient: recipient,
		Amount:    request.Amount,
		Seed:      request.Seed,
		Message:   request.Message,
	}
	if err := h.payers.Authorize(intent, request.Signature); err != nil {
		h.logger.Info("payer authorization failed",
			zap.String("sender", sender.String()),
			zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	receipt, err := h.tipsService.SendTip(c.Request.Context(), tips.SendTipRequest{
		Sender:    sender,
		Recipient: recipient,
		Amount:    request.Amount,
		Message:   request.Message,
		Seed:      request.Seed,
	})
	if err != nil {
		status, reason := statusForTipError(err)
		response := gin.H{"error": reason}
		var serviceErr *tips.ServiceError
		if errors.As(err, &serviceErr) {
			response["code"] = serviceErr.Code()
		}
		c.JSON(status, response)
		return
	}

	h.realtime.Publish(RealtimeMessage{
		Recipient: receipt.Record.Recipient.String(),
		EventType: RealtimeEventTipReceived,
		Address:   receipt.Address.String(),
		Sender:    receipt.Record.Sender.String(),
		Amount:    receipt.Record.Amount,
		Message:   receipt.Record.Message,
		Nonce:     receipt.Record.Nonce,
		Timestamp: time.Unix(receipt.Record.Timestamp, 0).UTC(),
	})

	c.JSON(http.StatusCreated, newTipRecordPayload(receipt.Address, receipt.Record))
}

func statusForTipError(err error) (int, string) {
	reason := tips.FailureReason(err)
	switch reason {
	case "invalid_amount", "message_too_long", "invalid_characters", "invalid_request":
		return http.StatusBadRequest, reason
	case "already_exists":
		return http.StatusConflict, reason
	case "insufficient_funds":
		return http.StatusUnprocessableEntity, reason
	default:
		return http.StatusInternalServerError, "send_tip_failed"
	}
}

func (h *httpHandler) handleFetchTip(c *gin.Context) {
	address, err := solana.PublicKeyFromBase58(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	record, data, err := h.tipsService.FetchTip(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, tips.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch_tip_failed"})
		return
	}

	payload := newTipRecordPayload(address, record)
	payload.Data = base64.StdEncoding.EncodeToString(data)
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleTipStream(c *gin.Context) {
	recipient, err := solana.PublicKeyFromBase58(strings.TrimSpace(c.Query("recipient")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, recipient.String())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, tipEventPayload{
				tipRecordPayload: tipRecordPayload{
					Address:   message.Address,
					Nonce:     message.Nonce,
					Sender:    message.Sender,
					Recipient: message.Recipient,
					Amount:    message.Amount,
					Message:   message.Message,
					Timestamp: message.Timestamp.Unix(),
				},
				Source: realtimeSourceBackend,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend, "timestamp": tick.UTC().Unix()})
			return true
		}
	})
}

type balancePayload struct {
	Identity string `json:"identity"`
	Lamports uint64 `json:"lamports"`
}

func (h *httpHandler) handleBalance(c *gin.Context) {
	identity, err := solana.PublicKeyFromBase58(c.Param("identity"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	balance, err := h.accounts.Balance(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("failed to read balance", zap.String("identity", identity.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "balance_failed"})
		return
	}
	c.JSON(http.StatusOK, balancePayload{Identity: identity.String(), Lamports: balance})
}

type creditRequestPayload struct {
	Identity string `json:"identity"`
	Amount   uint64 `json:"amount"`
}

func (h *httpHandler) handleCredit(c *gin.Context) {
	var request creditRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	identity, err := solana.PublicKeyFromBase58(strings.TrimSpace(request.Identity))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	balance, err := h.accounts.Credit(c.Request.Context(), identity, request.Amount)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidCredit) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_credit"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credit_failed"})
		return
	}
	if h.metrics != nil {
		h.metrics.LedgerCredited()
	}
	h.logger.Info("operator credit applied",
		zap.String("operator", c.GetString(operatorContextKey)),
		zap.String("identity", identity.String()),
		zap.Uint64("amount", request.Amount))

	c.JSON(http.StatusOK, balancePayload{Identity: identity.String(), Lamports: balance})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(operatorContextKey, subject)
	c.Next()
}
