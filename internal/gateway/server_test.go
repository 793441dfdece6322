package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solgate/internal/config"
	"solgate/internal/data"
	"solgate/internal/domain"
	"solgate/internal/engine"
	"solgate/internal/session"
	"solgate/internal/store"
	"solgate/internal/transfer"
)

type stubLLM struct{}

func (stubLLM) ChooseAction(ctx context.Context, history []domain.Message) (*domain.Action, string, error) {
	return nil, "plain answer", nil
}
func (stubLLM) GenerateQuery(ctx context.Context, history []domain.Message) (string, error) {
	return "SELECT 1", nil
}
func (stubLLM) Assist(ctx context.Context, prompt string) (string, error) {
	return "assist", nil
}
func (stubLLM) SummarizePnL(ctx context.Context, payload any) (string, error) {
	return "pnl prose", nil
}
func (stubLLM) SummarizePnLDistribution(ctx context.Context, payload any) (string, error) {
	return "distribution prose", nil
}

type stubMarket struct{}

func (stubMarket) Balance(ctx context.Context, address string) (*domain.BalancePayload, error) {
	return &domain.BalancePayload{Address: address, Lamports: 1_500_000_000, Token: "SOL", Source: "expand-network"}, nil
}
func (stubMarket) Transaction(ctx context.Context, hash string) (*domain.TransactionPayload, error) {
	return &domain.TransactionPayload{Hash: hash, Status: "confirmed", Source: "expand-network"}, nil
}
func (stubMarket) PnL(ctx context.Context, wallet string, opts domain.PnLOptions) (*domain.PnLPayload, error) {
	return &domain.PnLPayload{Summary: json.RawMessage(`{"total":1}`), Source: "solana-tracker"}, nil
}

type stubChain struct{}

func (stubChain) SendTransaction(ctx context.Context, signed []byte) (string, error) {
	return "sig-http", nil
}
func (stubChain) AwaitConfirmation(ctx context.Context, signature string) error { return nil }
func (stubChain) GetTransaction(ctx context.Context, signature string) (*domain.ChainTransaction, error) {
	return &domain.ChainTransaction{BlockTime: 1710000000, Fee: 5000}, nil
}
func (stubChain) ExplorerURL(signature string) string {
	return "https://explorer.solana.com/tx/" + signature + "?cluster=devnet"
}

func testServer(t *testing.T) (*Server, session.Store) {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sessions := session.NewMemoryStore(nil)
	llm := stubLLM{}
	dataSvc := data.NewService(st, stubMarket{}, llm, nil)
	machine := transfer.NewMachine(sessions, st, stubChain{}, 5000, nil)
	eng := engine.New(sessions, dataSvc, machine, llm, st, nil)

	return NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0, AllowedOrigin: "*"},
		eng, dataSvc, machine, nil), sessions
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNLP_RoundTrip(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/nlp", map[string]string{"message": "what is solana"})
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		ConversationID string `json:"conversationId"`
		Message        string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out.ConversationID)
	assert.Equal(t, "plain answer", out.Message)

	// follow-up reuses the conversation
	rec = doJSON(t, h, http.MethodPost, "/nlp", map[string]string{
		"conversationId": out.ConversationID,
		"message":        "tell me more",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var again struct {
		ConversationID string `json:"conversationId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, out.ConversationID, again.ConversationID)
}

func TestNLP_AlternateRequestShapes(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/nlp", map[string]string{"prompt": "what is solana"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/nlp", map[string]any{
		"messages": []map[string]string{
			{"role": "assistant", "content": "earlier answer"},
			{"role": "user", "content": "what is solana"},
		},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNLP_MissingMessage(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/nlp", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalanceEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/balance?address=Wallet1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out data.BalanceResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1.5, out.Balance)
	assert.Equal(t, "expand-network", out.Source)
}

func TestBalanceEndpoint_MissingAddress(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/balance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var out struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "client_input", out.Kind)
}

func TestBalanceEndpoint_Mock(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/balance?address=W&mock=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out data.BalanceResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 42.42, out.Balance)
	assert.Equal(t, data.SourceMock, out.Source)
}

func TestTransactionEndpoint_CacheOnSecondCall(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/transaction?transactionHash=sig1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var first data.TransactionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, "expand-network", first.Source)

	rec = doJSON(t, h, http.MethodGet, "/transaction?transactionHash=sig1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var second data.TransactionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, data.SourceCache, second.Source)
}

func TestPnLEndpoints(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/pnl?wallet=WalletP", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pnl data.PnLResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pnl))
	assert.Equal(t, "pnl prose", pnl.Message)

	rec = doJSON(t, h, http.MethodGet, "/pnl-distribution?wallet=WalletP", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dist data.DistributionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dist))
	assert.Equal(t, "distribution prose", dist.Message)
}

func TestParseIntentEndpoint(t *testing.T) {
	srv, sessions := testServer(t)
	h := srv.Handler()

	id := sessions.Create(nil)
	rec := doJSON(t, h, http.MethodPost, "/transfer/parse-intent", map[string]string{
		"conversationId": id,
		"message":        "send 0.5 SOL to Abc123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out parseIntentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotNil(t, out.Intent)
	assert.Equal(t, 0.5, out.Intent.Amount)

	// a second intent on the same conversation conflicts
	rec = doJSON(t, h, http.MethodPost, "/transfer/parse-intent", map[string]string{
		"conversationId": id,
		"message":        "send 9 SOL to Other",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestParseIntentEndpoint_UnknownConversation(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/transfer/parse-intent", map[string]string{
		"conversationId": "no-such-conversation",
		"message":        "send 0.5 SOL to Abc123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown conversation")
}

func TestParseIntentEndpoint_NoIntent(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/transfer/parse-intent", map[string]string{
		"message": "what is my balance",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out parseIntentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Nil(t, out.Intent)
}

func TestPrepareEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/transfer/prepare", map[string]any{
		"amount": 0.5,
		"to":     "Abc123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out domain.PreparedTransfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(500_000_000), out.Lamports)
	assert.Equal(t, int64(5000), out.EstimatedFee)
	assert.Equal(t, "prepared", out.Status)
}

func TestPrepareEndpoint_BadAmount(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/transfer/prepare", map[string]any{
		"amount":           -1,
		"recipientAddress": "Abc123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	blob := base64.StdEncoding.EncodeToString([]byte("signed"))
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/transfer/send", map[string]any{
		"signedTransaction": blob,
		"amount":            0.5,
		"to":                "Abc123",
		"from":              "Sender1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out sendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, "sig-http", out.TransactionSignature)
	assert.Contains(t, out.ExplorerURL, "sig-http")
	assert.Contains(t, out.Message, "Abc123")
}

func TestSendEndpoint_LegacyAddressNames(t *testing.T) {
	srv, _ := testServer(t)
	blob := base64.StdEncoding.EncodeToString([]byte("signed"))
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/transfer/send", map[string]any{
		"signedTransaction": blob,
		"amount":            0.5,
		"recipientAddress":  "Abc123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out sendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Contains(t, out.Message, "Abc123")
}

func TestSendEndpoint_RejectedWhileAwaitingConfirmation(t *testing.T) {
	srv, sessions := testServer(t)
	h := srv.Handler()

	id := sessions.Create(nil)
	rec := doJSON(t, h, http.MethodPost, "/transfer/parse-intent", map[string]string{
		"conversationId": id,
		"message":        "send 0.5 SOL to RealRecipient",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// the intent was never confirmed; a direct send on the conversation fails
	blob := base64.StdEncoding.EncodeToString([]byte("signed"))
	rec = doJSON(t, h, http.MethodPost, "/transfer/send", map[string]any{
		"conversationId":    id,
		"signedTransaction": blob,
		"amount":            999,
		"to":                "Attacker",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "not ready to broadcast")
}

func TestSendEndpoint_MissingBlob(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/transfer/send", map[string]any{
		"amount":           0.5,
		"recipientAddress": "Abc123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndMetrics(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = doJSON(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "solgate_uptime_seconds")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/nlp", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
