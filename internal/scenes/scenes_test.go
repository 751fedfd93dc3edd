package scenes

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stargen.ru/generation-bot/internal/config"
	"stargen.ru/generation-bot/internal/features/billing"
	"stargen.ru/generation-bot/internal/features/generation"
	"stargen.ru/generation-bot/internal/features/topup"
)

// stubProvider всегда соглашается запустить задачу.
type stubProvider struct{}

func (stubProvider) Generate(ctx context.Context, modelID string, payload generation.Payload) (*generation.Result, error) {
	return &generation.Result{URL: "https://cdn.example/out"}, nil
}

func (stubProvider) Begin(ctx context.Context, modelID string, payload generation.Payload, reference string) (string, error) {
	return "prov-1", nil
}

// okTransport принимает все события без шины.
type okTransport struct {
	mu        sync.Mutex
	published []string
}

func (tr *okTransport) Publish(ctx context.Context, name, id string, data []byte) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.published = append(tr.published, id)
	return nil
}

type instantSleeper struct{}

func (instantSleeper) Sleep(ctx context.Context, d time.Duration) error { return nil }

func sceneConfig() *config.Config {
	return &config.Config{
		PriceVideo:        50,
		PriceVoiceClone:   30,
		PriceLipsync:      40,
		TopupRubleOptions: []int64{299, 499},
		TopupStarOptions:  []int64{50, 100},
		StarsPerRuble:     0.5,
	}
}

type sceneFixture struct {
	cfg      *config.Config
	store    *billing.MemStore
	jobs     *generation.MemJobStore
	trans    *okTransport
	notifier *fakeNotifier
	m        *Manager
	orch     *generation.Orchestrator
}

func newSceneFixture(t *testing.T) *sceneFixture {
	t.Helper()
	f := &sceneFixture{
		cfg:      sceneConfig(),
		store:    billing.NewMemStore(),
		jobs:     generation.NewMemJobStore(),
		trans:    &okTransport{},
		notifier: &fakeNotifier{},
	}
	refunds := billing.NewRefundCoordinator(f.store)
	f.orch = generation.NewOrchestrator(
		f.jobs,
		f.store,
		billing.NewGate(f.store),
		refunds,
		stubProvider{},
		generation.NewDispatcherWithSleeper(f.trans, 3, time.Millisecond, instantSleeper{}),
		f.notifier,
	)
	f.m = NewManager(f.notifier, refunds)
	f.m.Register(NewVideoScene(f.cfg, f.orch))
	f.m.Register(NewVoiceCloneScene(f.cfg, f.orch))
	f.m.Register(NewLipsyncScene(f.cfg, f.orch))
	return f
}

func (f *sceneFixture) seed(t *testing.T, userID, stars int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.EnsureBalance(ctx, userID))
	_, _, err := f.store.CreditFunds(ctx, userID, stars, billing.TxMeta{
		Source: billing.SourceAdmin, Category: billing.CategoryBonus,
	})
	require.NoError(t, err)
}

func TestVideoScene_FullWalkThrough(t *testing.T) {
	ctx := context.Background()
	f := newSceneFixture(t)
	f.seed(t, 1, 100)

	require.NoError(t, f.m.Enter(ctx, 1, SceneVideo))
	require.True(t, f.m.HandleInput(ctx, 1, "закат над морем"))
	require.True(t, f.m.HandleInput(ctx, 1, "-")) // без референса
	require.True(t, f.m.HandleInput(ctx, 1, "да"))

	assert.False(t, f.m.Active(1))
	require.Len(t, f.trans.published, 1, "оплаченная задача ушла в шину")

	// Задача оплачена и отправлена
	job, err := f.jobs.GetByID(ctx, f.trans.published[0])
	require.NoError(t, err)
	assert.Equal(t, generation.KindVideo, job.Kind)
	assert.Equal(t, generation.StatusDispatched, job.Status)
	assert.Equal(t, "закат над морем", job.Payload.Prompt)

	balance, err := f.store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 50, balance)
}

func TestVideoScene_InvalidURLRepeatsKeepingPrompt(t *testing.T) {
	ctx := context.Background()
	f := newSceneFixture(t)
	f.seed(t, 1, 100)

	require.NoError(t, f.m.Enter(ctx, 1, SceneVideo))
	require.True(t, f.m.HandleInput(ctx, 1, "закат над морем"))

	// Невалидная ссылка повторяет шаг, промпт не теряется
	require.True(t, f.m.HandleInput(ctx, 1, "не ссылка"))
	assert.Contains(t, f.notifier.last(), "Нужна ссылка")
	assert.True(t, f.m.Active(1))

	require.True(t, f.m.HandleInput(ctx, 1, "https://cdn.example/ref.png"))
	require.True(t, f.m.HandleInput(ctx, 1, "да"))

	job, err := f.jobs.GetByID(ctx, f.trans.published[0])
	require.NoError(t, err)
	assert.Equal(t, "закат над морем", job.Payload.Prompt)
	assert.Equal(t, "https://cdn.example/ref.png", job.Payload.ImageURL)
}

func TestVideoScene_DeclineLeavesWithoutDebit(t *testing.T) {
	ctx := context.Background()
	f := newSceneFixture(t)
	f.seed(t, 1, 100)

	require.NoError(t, f.m.Enter(ctx, 1, SceneVideo))
	require.True(t, f.m.HandleInput(ctx, 1, "закат"))
	require.True(t, f.m.HandleInput(ctx, 1, "-"))
	require.True(t, f.m.HandleInput(ctx, 1, "нет"))

	assert.False(t, f.m.Active(1))
	assert.Empty(t, f.trans.published)
	balance, err := f.store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 100, balance)
}

func TestVideoScene_InsufficientFundsLeavesCleanly(t *testing.T) {
	ctx := context.Background()
	f := newSceneFixture(t)
	f.seed(t, 1, 10) // на видео за 50 не хватает

	require.NoError(t, f.m.Enter(ctx, 1, SceneVideo))
	require.True(t, f.m.HandleInput(ctx, 1, "закат"))
	require.True(t, f.m.HandleInput(ctx, 1, "-"))
	require.True(t, f.m.HandleInput(ctx, 1, "да"))

	// Передача не удалась, но сцена закрыта, баланс цел
	assert.False(t, f.m.Active(1))
	balance, err := f.store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 10, balance)
}

func TestLipsyncScene_CollectsBothURLs(t *testing.T) {
	ctx := context.Background()
	f := newSceneFixture(t)
	f.seed(t, 1, 100)

	require.NoError(t, f.m.Enter(ctx, 1, SceneLipsync))
	require.True(t, f.m.HandleInput(ctx, 1, "https://cdn.example/in.mp4"))
	require.True(t, f.m.HandleInput(ctx, 1, "https://cdn.example/in.mp3"))
	require.True(t, f.m.HandleInput(ctx, 1, "да"))

	require.Len(t, f.trans.published, 1)
	job, err := f.jobs.GetByID(ctx, f.trans.published[0])
	require.NoError(t, err)
	assert.Equal(t, generation.KindLipsync, job.Kind)
	assert.Equal(t, "https://cdn.example/in.mp4", job.Payload.VideoURL)
	assert.Equal(t, "https://cdn.example/in.mp3", job.Payload.AudioURL)
}

// --- Сцены пополнения ---

// recordSender записывает выставленные счета вместо Telegram.
type recordSender struct {
	invoices []*topup.Invoice
}

func (s *recordSender) SendInvoice(chatID int64, invoice *topup.Invoice) {
	s.invoices = append(s.invoices, invoice)
}

func TestRubleTopupScene_RejectsAmountOutsideList(t *testing.T) {
	ctx := context.Background()
	cfg := sceneConfig()
	store := billing.NewMemStore()
	service := topup.NewService(cfg, store)
	sender := &recordSender{}
	notifier := &fakeNotifier{}
	m := NewManager(notifier, billing.NewRefundCoordinator(store))
	m.Register(NewRubleTopupScene(cfg, service, sender))

	require.NoError(t, m.Enter(ctx, 1, SceneTopupRubles))

	// 300 нет в списке пакетов: счёт не выставляется, шаг повторяется
	require.True(t, m.HandleInput(ctx, 1, "300"))
	assert.Empty(t, sender.invoices)
	assert.Contains(t, notifier.last(), "Такого пакета нет")
	assert.True(t, m.Active(1))

	// Валидный пакет выставляет счёт и закрывает сцену
	require.True(t, m.HandleInput(ctx, 1, "299"))
	require.Len(t, sender.invoices, 1)
	assert.EqualValues(t, 299, sender.invoices[0].Amount)
	assert.EqualValues(t, 150, sender.invoices[0].Stars)
	assert.False(t, m.Active(1))
}

func TestStarTopupScene_NonNumericRepeats(t *testing.T) {
	ctx := context.Background()
	cfg := sceneConfig()
	store := billing.NewMemStore()
	sender := &recordSender{}
	m := NewManager(&fakeNotifier{}, billing.NewRefundCoordinator(store))
	m.Register(NewStarTopupScene(cfg, topup.NewService(cfg, store), sender))

	require.NoError(t, m.Enter(ctx, 1, SceneTopupStars))
	require.True(t, m.HandleInput(ctx, 1, "пятьдесят"))
	assert.Empty(t, sender.invoices)
	assert.True(t, m.Active(1))

	require.True(t, m.HandleInput(ctx, 1, "50"))
	require.Len(t, sender.invoices, 1)
	assert.EqualValues(t, 50, sender.invoices[0].Stars)
}
