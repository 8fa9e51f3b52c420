package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/database"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/tips"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testProgramID = solana.MustPublicKeyFromBase58("7sLJJYECWzm1iUE2zEPkD7XtdcUp9qHx3HQPoiUGaicY")

type testServer struct {
	handler    http.Handler
	store      *ledger.Store
	tokens     *auth.TokenIssuer
	dispatcher *RealtimeDispatcher
	metrics    *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "tipjar.db"), zap.NewNop())
	require.NoError(t, err)

	store, err := ledger.NewStore(ledger.Config{
		Database:   db,
		IDProvider: ledger.NewUUIDProvider(),
	})
	require.NoError(t, err)

	registry := metrics.New()
	tipsService, err := tips.NewService(tips.ServiceConfig{
		Environment: store,
		ProgramID:   testProgramID,
		Clock:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		Observer:    registry,
	})
	require.NoError(t, err)

	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "tipjar-operator",
		Audience:      "tipjar-api",
		TokenTTL:      time.Minute,
	})
	require.NoError(t, err)

	dispatcher := NewRealtimeDispatcher(4)
	handler, err := NewHTTPHandler(Dependencies{
		TipsService:     tipsService,
		Accounts:        store,
		PayerAuthorizer: auth.NewPayerAuthorizer(),
		OperatorTokens:  tokens,
		Realtime:        dispatcher,
		Metrics:         registry,
	})
	require.NoError(t, err)

	return &testServer{
		handler:    handler,
		store:      store,
		tokens:     tokens,
		dispatcher: dispatcher,
		metrics:    registry,
	}
}

func (s *testServer) fund(t *testing.T, identity solana.PublicKey, lamports uint64) {
	t.Helper()
	_, err := s.store.Credit(context.Background(), identity, lamports)
	require.NoError(t, err)
}

func signedTipPayload(t *testing.T, payer *solana.Wallet, recipient solana.PublicKey, amount, seed uint64, message string) sendTipRequestPayload {
	t.Helper()
	intent := auth.TipIntent{
		Sender:    payer.PublicKey(),
		Recipient: recipient,
		Amount:    amount,
		Seed:      seed,
		Message:   message,
	}
	signature, err := payer.PrivateKey.Sign(auth.CanonicalTipMessage(intent))
	require.NoError(t, err)
	return sendTipRequestPayload{
		Sender:    payer.PublicKey().String(),
		Recipient: recipient.String(),
		Amount:    amount,
		Message:   message,
		Seed:      seed,
		Signature: signature.String(),
	}
}

func performJSON(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buffer bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buffer).Encode(body))
	}
	request := httptest.NewRequest(method, path, &buffer)
	request.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), target))
}
