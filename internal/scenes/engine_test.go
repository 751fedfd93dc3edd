package scenes

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stargen.ru/generation-bot/internal/features/billing"
)

// fakeNotifier собирает реплики бота.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(userID int64, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

func (n *fakeNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return ""
	}
	return n.messages[len(n.messages)-1]
}

func newTestManager(t *testing.T) (*Manager, *fakeNotifier, *billing.MemStore) {
	t.Helper()
	store := billing.NewMemStore()
	notifier := &fakeNotifier{}
	return NewManager(notifier, billing.NewRefundCoordinator(store)), notifier, store
}

// echoScene — двухшаговая сцена для тестов движка.
func echoScene() *Scene {
	return &Scene{
		ID: "echo",
		Steps: []Step{
			{
				Prompt: "Первый вопрос:",
				Handle: func(ctx context.Context, sess *Session, input string) (StepResult, string) {
					if input == "" {
						return ResultRepeat, ""
					}
					sess.Data["first"] = input
					return ResultAdvance, ""
				},
			},
			{
				Prompt: "Второй вопрос:",
				Handle: func(ctx context.Context, sess *Session, input string) (StepResult, string) {
					sess.Data["second"] = input
					return ResultLeave, "Готово"
				},
			},
		},
	}
}

func TestManager_WalkThroughScene(t *testing.T) {
	ctx := context.Background()
	m, notifier, _ := newTestManager(t)
	m.Register(echoScene())

	require.NoError(t, m.Enter(ctx, 1, "echo"))
	assert.True(t, m.Active(1))
	assert.Equal(t, "Первый вопрос:", notifier.last())

	require.True(t, m.HandleInput(ctx, 1, "раз"))
	assert.Equal(t, "Второй вопрос:", notifier.last())

	require.True(t, m.HandleInput(ctx, 1, "два"))
	assert.Equal(t, "Готово", notifier.last())
	assert.False(t, m.Active(1), "после финального шага сцена закрыта")
}

func TestManager_RepeatKeepsCollectedData(t *testing.T) {
	ctx := context.Background()
	m, notifier, _ := newTestManager(t)
	m.Register(echoScene())
	require.NoError(t, m.Enter(ctx, 1, "echo"))

	require.True(t, m.HandleInput(ctx, 1, "")) // невалидный ввод
	assert.Equal(t, "Первый вопрос:", notifier.last(), "повтор переспрашивает тот же шаг")
	assert.True(t, m.Active(1))

	require.True(t, m.HandleInput(ctx, 1, "раз"))
	assert.Equal(t, "Второй вопрос:", notifier.last())
}

func TestManager_NoSessionNotHandled(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	m.Register(echoScene())

	assert.False(t, m.HandleInput(ctx, 1, "привет"))
}

func TestManager_EnterUnknownScene(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	require.Error(t, m.Enter(ctx, 1, "нет-такой"))
	assert.False(t, m.Active(1))
}

func TestManager_ReenterResetsSession(t *testing.T) {
	ctx := context.Background()
	m, notifier, _ := newTestManager(t)
	m.Register(echoScene())

	require.NoError(t, m.Enter(ctx, 1, "echo"))
	require.True(t, m.HandleInput(ctx, 1, "раз")) // ушли на второй шаг

	// Повторный вход начинает сцену заново, с первого шага
	require.NoError(t, m.Enter(ctx, 1, "echo"))
	assert.Equal(t, "Первый вопрос:", notifier.last())
}

func TestManager_PanicLeavesSceneAndRefunds(t *testing.T) {
	ctx := context.Background()
	m, notifier, store := newTestManager(t)

	// Пользователь с балансом и сделанным внутри сцены списанием
	require.NoError(t, store.EnsureBalance(ctx, 1))
	_, _, err := store.CreditFunds(ctx, 1, 100, billing.TxMeta{
		Source: billing.SourceAdmin, Category: billing.CategoryBonus,
	})
	require.NoError(t, err)
	debitID, _, err := store.ReserveFunds(ctx, 1, 40, billing.TxMeta{
		Source: billing.SourceGeneration, Category: billing.CategoryReal,
	})
	require.NoError(t, err)

	m.Register(&Scene{
		ID: "boom",
		Steps: []Step{{
			Prompt: "Вопрос:",
			Handle: func(ctx context.Context, sess *Session, input string) (StepResult, string) {
				sess.DebitTxID = &debitID
				panic("сломался шаг")
			},
		}},
	})
	require.NoError(t, m.Enter(ctx, 1, "boom"))

	assert.True(t, m.HandleInput(ctx, 1, "что угодно"))

	// Сцена закрыта, списание возвращено, бот не упал
	assert.False(t, m.Active(1))
	balance, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 100, balance)
	assert.Contains(t, notifier.last(), "Что-то пошло не так")
}
