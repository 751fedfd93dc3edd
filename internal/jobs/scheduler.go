// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: реапер зависших задач генерации
// и ежедневная сверка балансов.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/config"
	"stargen.ru/generation-bot/internal/features/generation"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron *cron.Cron
	cfg  *config.Config
	orch *generation.Orchestrator
}

// NewScheduler создаёт планировщик задач с московским часовым поясом.
func NewScheduler(cfg *config.Config, orch *generation.Orchestrator) *Scheduler {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		log.WithError(err).Warn("Не удалось загрузить Europe/Moscow, используем UTC+3")
		loc = time.FixedZone("MSK", 3*60*60)
	}

	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		cfg:  cfg,
		orch: orch,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) {
	// Реапер: оплаченная задача без результата дольше таймаута
	// завершается провалом с возвратом звёзд
	s.cron.AddFunc("*/5 * * * *", func() {
		n, err := s.orch.FailStale(ctx, s.cfg.JobTimeout)
		if err != nil {
			log.WithError(err).Error("[CRON] Ошибка реапера задач")
			return
		}
		if n > 0 {
			log.WithField("count", n).Warn("[CRON] Реапер закрыл зависшие задачи")
		}
	})

	s.cron.Start()
	log.Info("Планировщик задач запущен (Europe/Moscow)")
}

// Stop останавливает планировщик, дождавшись текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
