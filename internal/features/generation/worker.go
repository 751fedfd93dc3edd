// Package generation — worker.go: фоновые консьюмеры двух стримов.
// JobWorker разбирает оплаченные задачи, Reconciler — завершения
// от провайдера. Оба работают поверх RedisQueue с at-least-once
// доставкой; идемпотентность обеспечивает оркестратор.
package generation

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// JobWorker запускает оплаченные фоновые задачи у провайдера.
type JobWorker struct {
	queue *RedisQueue
	orch  *Orchestrator
}

// NewJobWorker создаёт воркера стрима задач.
func NewJobWorker(queue *RedisQueue, orch *Orchestrator) *JobWorker {
	return &JobWorker{queue: queue, orch: orch}
}

// Run блокируется до отмены ctx, обрабатывая события задач.
func (w *JobWorker) Run(ctx context.Context) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	log.Info("Воркер задач генерации запущен")
	w.queue.Consume(ctx, w.handle)
	return nil
}

func (w *JobWorker) handle(ctx context.Context, msg Message) error {
	if msg.Name != EventGenerationJob {
		// Чужое событие в стриме задач — ACK-аем, ретраи бессмысленны
		log.WithField("name", msg.Name).Warn("Неизвестное событие в стриме задач")
		return nil
	}

	var ev jobEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.WithError(err).WithField("stream_id", msg.StreamID).Error("Битое событие задачи")
		return nil
	}

	if err := w.orch.ProcessQueued(ctx, ev.JobID); err != nil {
		// НЕ ACK: событие останется в pending и будет передоставлено
		return fmt.Errorf("обработка задачи %s: %w", ev.JobID, err)
	}
	return nil
}

// Reconciler сводит завершения провайдера с задачами в БД.
type Reconciler struct {
	queue *RedisQueue
	orch  *Orchestrator
}

// NewReconciler создаёт консьюмера стрима завершений.
func NewReconciler(queue *RedisQueue, orch *Orchestrator) *Reconciler {
	return &Reconciler{queue: queue, orch: orch}
}

// Run блокируется до отмены ctx, обрабатывая завершения.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	log.Info("Реконсайлер завершений запущен")
	r.queue.Consume(ctx, r.handle)
	return nil
}

func (r *Reconciler) handle(ctx context.Context, msg Message) error {
	var ev CompletionEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.WithError(err).WithField("stream_id", msg.StreamID).Error("Битое событие завершения")
		return nil
	}
	if ev.CorrelationID == "" {
		log.WithField("stream_id", msg.StreamID).Warn("Завершение без correlation_id")
		return nil
	}

	if err := r.orch.Complete(ctx, ev); err != nil {
		return fmt.Errorf("завершение %s: %w", ev.CorrelationID, err)
	}
	return nil
}
