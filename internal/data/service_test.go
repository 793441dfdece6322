package data

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solgate/internal/domain"
	"solgate/internal/store"
)

type fakeMarket struct {
	balanceCalls     int
	transactionCalls int
	pnlCalls         int

	balance     *domain.BalancePayload
	balanceErr  error
	transaction *domain.TransactionPayload
	pnl         *domain.PnLPayload
}

func (f *fakeMarket) Balance(ctx context.Context, address string) (*domain.BalancePayload, error) {
	f.balanceCalls++
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeMarket) Transaction(ctx context.Context, hash string) (*domain.TransactionPayload, error) {
	f.transactionCalls++
	return f.transaction, nil
}

func (f *fakeMarket) PnL(ctx context.Context, wallet string, opts domain.PnLOptions) (*domain.PnLPayload, error) {
	f.pnlCalls++
	return f.pnl, nil
}

type fakeLLM struct {
	summary string
}

func (f *fakeLLM) ChooseAction(ctx context.Context, history []domain.Message) (*domain.Action, string, error) {
	return nil, "", nil
}
func (f *fakeLLM) GenerateQuery(ctx context.Context, history []domain.Message) (string, error) {
	return "", nil
}
func (f *fakeLLM) Assist(ctx context.Context, prompt string) (string, error) {
	return "", nil
}
func (f *fakeLLM) SummarizePnL(ctx context.Context, payload any) (string, error) {
	return f.summary, nil
}
func (f *fakeLLM) SummarizePnLDistribution(ctx context.Context, payload any) (string, error) {
	return f.summary, nil
}

func testService(t *testing.T, market *fakeMarket) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewService(st, market, &fakeLLM{summary: "looking good"}, nil), st
}

func TestBalance_AlwaysLiveAndMirrored(t *testing.T) {
	market := &fakeMarket{balance: &domain.BalancePayload{
		Address: "Wallet1", Lamports: 2_500_000_000, Token: "SOL", Source: "expand-network",
	}}
	svc, st := testService(t, market)
	ctx := context.Background()

	res, err := svc.Balance(ctx, "Wallet1", false)
	require.NoError(t, err)
	assert.Equal(t, 2.5, res.Balance)
	assert.Equal(t, "expand-network", res.Source)

	// back to back calls both go live, last write wins in the mirror
	market.balance.Lamports = 3_000_000_000
	res, err = svc.Balance(ctx, "Wallet1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(3_000_000_000), res.Lamports)
	assert.Equal(t, 2, market.balanceCalls)

	row, err := st.GetBalance(ctx, "Wallet1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(3_000_000_000), row.Lamports)
}

func TestBalance_EmptyAddressBeforeAnyExternalCall(t *testing.T) {
	market := &fakeMarket{}
	svc, _ := testService(t, market)

	_, err := svc.Balance(context.Background(), "", false)
	require.Error(t, err)
	assert.Equal(t, domain.KindClientInput, domain.KindOf(err))
	assert.Zero(t, market.balanceCalls)
}

func TestBalance_Mock(t *testing.T) {
	market := &fakeMarket{}
	svc, _ := testService(t, market)

	res, err := svc.Balance(context.Background(), "Wallet1", true)
	require.NoError(t, err)
	assert.Equal(t, 42.42, res.Balance)
	assert.Equal(t, SourceMock, res.Source)
	assert.Zero(t, market.balanceCalls)
}

func TestBalance_ProviderErrorSkipsMirror(t *testing.T) {
	market := &fakeMarket{balanceErr: domain.ProviderErr("expand down", errors.New("503"))}
	svc, st := testService(t, market)

	_, err := svc.Balance(context.Background(), "Wallet1", false)
	require.Error(t, err)
	assert.Equal(t, domain.KindProvider, domain.KindOf(err))

	row, err := st.GetBalance(context.Background(), "Wallet1")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestTransaction_StoreFirst(t *testing.T) {
	market := &fakeMarket{transaction: &domain.TransactionPayload{
		Hash: "sig1", Status: "confirmed", BlockTime: 1710000000,
		Fee: 5000, Signer: "Sender1", Source: "expand-network",
	}}
	svc, _ := testService(t, market)
	ctx := context.Background()

	// miss: live fetch, cached
	res, err := svc.Transaction(ctx, "sig1", false)
	require.NoError(t, err)
	assert.Equal(t, "expand-network", res.Source)
	assert.Equal(t, 1, market.transactionCalls)

	// hit: no live call, source tagged cache
	res, err = svc.Transaction(ctx, "sig1", false)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, "confirmed", res.Status)
	assert.Equal(t, 1, market.transactionCalls)
}

func TestTransaction_EmptyHash(t *testing.T) {
	svc, _ := testService(t, &fakeMarket{})

	_, err := svc.Transaction(context.Background(), "", false)
	require.Error(t, err)
	assert.Equal(t, domain.KindClientInput, domain.KindOf(err))
}

func TestTransaction_Mock(t *testing.T) {
	market := &fakeMarket{}
	svc, _ := testService(t, market)

	res, err := svc.Transaction(context.Background(), "whatever", true)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", res.Status)
	assert.Equal(t, int64(1710000000), res.BlockTime)
	assert.Equal(t, int64(5000), res.Fee)
	assert.Equal(t, "MockSender111", res.Signer)
	assert.Equal(t, SourceMock, res.Source)
	assert.Zero(t, market.transactionCalls)
}

func TestPnL_RefreshesAndSummarizes(t *testing.T) {
	market := &fakeMarket{pnl: &domain.PnLPayload{
		Summary: json.RawMessage(`{"total":12.5}`),
		Tokens: []domain.PnLToken{
			{Symbol: "AAA", Details: json.RawMessage(`{"total":10,"total_invested":5}`)},
		},
		Source: "solana-tracker",
	}}
	svc, st := testService(t, market)
	ctx := context.Background()

	res, err := svc.PnL(ctx, "WalletP", domain.PnLOptions{})
	require.NoError(t, err)
	assert.Equal(t, "looking good", res.Message)
	assert.Equal(t, "solana-tracker", res.Source)
	require.Len(t, res.Tokens, 1)

	row, err := st.GetPnLSummary(ctx, "WalletP")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.JSONEq(t, `{"total":12.5}`, row.Summary)
}

func TestPnL_EmptyWallet(t *testing.T) {
	svc, _ := testService(t, &fakeMarket{})

	_, err := svc.PnL(context.Background(), "", domain.PnLOptions{})
	require.Error(t, err)
	assert.Equal(t, domain.KindClientInput, domain.KindOf(err))
}

func TestPnLDistribution(t *testing.T) {
	market := &fakeMarket{pnl: &domain.PnLPayload{
		Summary: json.RawMessage(`{}`),
		Tokens: []domain.PnLToken{
			{Symbol: "WIN", Details: json.RawMessage(`{"total":6,"total_invested":1}`)},
			{Symbol: "LOSS", Details: json.RawMessage(`{"total":-0.6,"total_invested":1}`)},
		},
		Source: "solana-tracker",
	}}
	svc, _ := testService(t, market)

	res, err := svc.PnLDistribution(context.Background(), "WalletD")
	require.NoError(t, err)
	assert.Equal(t, "looking good", res.Message)

	counts := make(map[string]int64)
	for _, b := range res.Distribution {
		counts[b.Bucket] = b.Count
	}
	assert.Equal(t, int64(1), counts[">500%"])
	assert.Equal(t, int64(1), counts["<-50%"])
}
