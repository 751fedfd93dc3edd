// Package generation — orchestrator.go ведёт задачу по конвейеру:
// валидация → списание звёзд → провайдер → результат или возврат.
//
// Машина состояний задачи:
//
//	received → balance_checked → dispatched → succeeded
//	                                        ↘ failed_refunded
//	received → rejected (отказ до или на списании, без возврата)
//
// Порядок жёсткий: списание строго до отправки провайдеру, итог задачи
// строго до фиксации в леджере или возврата. Повторные завершения
// отсекаются статусной машиной, поэтому at-least-once доставка безопасна.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/common"
	"stargen.ru/generation-bot/internal/features/billing"
)

// Notifier доставляет сообщения пользователю (реализуется ботом).
type Notifier interface {
	Notify(userID int64, text string)
}

// NotifyFunc — адаптер функции к интерфейсу Notifier.
type NotifyFunc func(userID int64, text string)

func (f NotifyFunc) Notify(userID int64, text string) { f(userID, text) }

// EventGenerationJob — имя события оплаченной задачи в шине.
const EventGenerationJob = "generation.job"

// jobEvent — полезная нагрузка события в шине задач.
type jobEvent struct {
	JobID string `json:"job_id"`
}

// Orchestrator координирует полный жизненный цикл задачи генерации.
type Orchestrator struct {
	jobs       JobStore
	store      billing.Store
	gate       *billing.Gate
	refunds    *billing.RefundCoordinator
	provider   Provider
	dispatcher *Dispatcher
	notifier   Notifier
}

// NewOrchestrator создаёт оркестратор задач генерации.
func NewOrchestrator(
	jobs JobStore,
	store billing.Store,
	gate *billing.Gate,
	refunds *billing.RefundCoordinator,
	provider Provider,
	dispatcher *Dispatcher,
	notifier Notifier,
) *Orchestrator {
	return &Orchestrator{
		jobs:       jobs,
		store:      store,
		gate:       gate,
		refunds:    refunds,
		provider:   provider,
		dispatcher: dispatcher,
		notifier:   notifier,
	}
}

// Submit принимает запрос на генерацию и ведёт его до отправки.
//
// Ошибки валидации (ErrInvalidModel, ErrInvalidInput, ErrDuplicateJob)
// возвращаются вызывающему до любого списания. Отказ по балансу —
// не ошибка: задача завершается rejected, пользователь получает
// сообщение с конкретной причиной.
func (o *Orchestrator) Submit(ctx context.Context, req *JobRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Cost <= 0 {
		// Цена не сконфигурирована — считаем модель неизвестной,
		// списывать 0 за мусорный запрос нельзя
		return nil, fmt.Errorf("нулевая цена для %q: %w", req.Kind, common.ErrInvalidModel)
	}

	job := &Job{
		ID:      req.ID,
		UserID:  req.UserID,
		Kind:    req.Kind,
		ModelID: req.ModelID,
		Payload: req.Payload,
		Cost:    req.Cost,
	}
	created, err := o.jobs.Insert(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания задачи: %w", err)
	}
	if !created {
		// Повторная отправка с тем же ключом идемпотентности:
		// задача уже в работе, второго списания не будет
		log.WithField("job_id", req.ID).Warn("Дубликат задачи отклонён")
		return nil, common.ErrDuplicateJob
	}

	// === Списание звёзд ===
	dec, err := o.gate.Reserve(ctx, req.UserID, req.Cost, string(req.Kind),
		fmt.Sprintf("Генерация: %s", req.Kind.Title()))
	if err != nil || !dec.Allowed {
		return o.rejectUnpaid(ctx, job, dec, err)
	}

	if err := o.jobs.SetBalanceChecked(ctx, job.ID, dec.TxID); err != nil {
		// Списание прошло, а статус не записался — оставляем задачу
		// реаперу: он завершит её провалом и вернёт звёзды.
		log.WithError(err).WithFields(log.Fields{
			"job_id":      job.ID,
			"user_id":     job.UserID,
			"debit_tx_id": dec.TxID,
		}).Error("АЛЕРТ: списание без записи статуса задачи")
		return nil, fmt.Errorf("ошибка записи статуса: %w", err)
	}
	job.Status = StatusBalanceChecked
	job.DebitTxID = &dec.TxID

	// === Отправка провайдеру ===
	if req.Kind.Async() {
		return o.dispatchAsync(ctx, job)
	}
	return o.runSync(ctx, job)
}

// rejectUnpaid завершает задачу отказом до списания и сообщает причину.
func (o *Orchestrator) rejectUnpaid(ctx context.Context, job *Job, dec *billing.Decision, reserveErr error) (*Job, error) {
	reason := string(billing.ReasonError)
	if dec != nil {
		reason = string(dec.Reason)
	}
	if err := o.jobs.MarkRejected(ctx, job.ID, reason); err != nil {
		log.WithError(err).WithField("job_id", job.ID).Error("Ошибка записи отказа")
	}
	job.Status = StatusRejected

	switch {
	case dec != nil && dec.Reason == billing.ReasonInsufficientFunds:
		o.notifier.Notify(job.UserID, fmt.Sprintf(
			"⭐ Недостаточно звёзд: нужно %s, у вас %s.\nПополните баланс: /пополнить",
			common.FormatStars(job.Cost), common.FormatStars(dec.NewBalance)))
	case dec != nil && dec.Reason == billing.ReasonUserNotFound:
		o.notifier.Notify(job.UserID, "❌ Вы ещё не зарегистрированы, отправьте /start")
	default:
		// Системный сбой: деталей пользователю не показываем
		o.notifier.Notify(job.UserID, "❌ Не получилось принять задачу, попробуйте позже")
	}

	if reserveErr != nil {
		return job, fmt.Errorf("сбой списания: %w", reserveErr)
	}
	return job, nil
}

// dispatchAsync отправляет оплаченную задачу в шину.
// Исчерпание повторов отправки равносильно провалу провайдера: возврат.
func (o *Orchestrator) dispatchAsync(ctx context.Context, job *Job) (*Job, error) {
	if err := o.dispatcher.Send(ctx, EventGenerationJob, jobEvent{JobID: job.ID}, job.ID); err != nil {
		log.WithError(err).WithField("job_id", job.ID).Error("Отправка в шину провалена, возвращаем звёзды")
		o.failAndRefund(ctx, job, "не удалось отправить задачу")
		return job, err
	}

	if err := o.jobs.SetDispatched(ctx, job.ID); err != nil {
		log.WithError(err).WithField("job_id", job.ID).Error("Ошибка перехода dispatched")
	}
	job.Status = StatusDispatched

	o.notifier.Notify(job.UserID, fmt.Sprintf(
		"⏳ Задача «%s» принята, спишется %s. Пришлю результат, как будет готово.",
		job.Kind.Title(), common.FormatStars(job.Cost)))
	return job, nil
}

// runSync выполняет синхронную генерацию (картинка, озвучка) на месте.
func (o *Orchestrator) runSync(ctx context.Context, job *Job) (*Job, error) {
	if err := o.jobs.SetDispatched(ctx, job.ID); err != nil {
		log.WithError(err).WithField("job_id", job.ID).Error("Ошибка перехода dispatched")
	}
	job.Status = StatusDispatched
	// Для синхронных задач correlation id — наш же ключ идемпотентности
	if err := o.jobs.SetCorrelationID(ctx, job.ID, job.ID); err != nil {
		log.WithError(err).WithField("job_id", job.ID).Warn("Ошибка записи correlation_id")
	}

	result, err := o.provider.Generate(ctx, job.ModelID, job.Payload)
	if err != nil {
		o.failAndRefund(ctx, job, "сбой провайдера")
		return job, nil
	}

	o.succeed(ctx, job, result.URL)
	return job, nil
}

// ProcessQueued обрабатывает событие из шины задач (вызывается воркером).
// Повторная доставка безопасна: задача не в dispatched-состоянии или
// с уже заполненным correlation id пропускается.
func (o *Orchestrator) ProcessQueued(ctx context.Context, jobID string) error {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, common.ErrJobNotFound) {
			log.WithField("job_id", jobID).Warn("Событие для неизвестной задачи, пропускаем")
			return nil
		}
		return err
	}

	if job.Status != StatusDispatched {
		log.WithFields(log.Fields{
			"job_id": jobID,
			"status": job.Status,
		}).Debug("Повторная доставка: задача уже обработана")
		return nil
	}
	if job.CorrelationID != "" {
		// Провайдер уже запущен предыдущей доставкой
		return nil
	}

	providerJobID, err := o.provider.Begin(ctx, job.ModelID, job.Payload, job.ID)
	if err != nil {
		o.failAndRefund(ctx, job, "сбой провайдера")
		return nil
	}

	if err := o.jobs.SetCorrelationID(ctx, job.ID, providerJobID); err != nil {
		// Без correlation id завершение не смэтчится — задачу добьёт
		// реапер возвратом, это лучше потерянного результата без следа
		log.WithError(err).WithFields(log.Fields{
			"job_id":          job.ID,
			"provider_job_id": providerJobID,
		}).Error("АЛЕРТ: correlation id не записан")
		return err
	}

	log.WithFields(log.Fields{
		"job_id":          job.ID,
		"provider_job_id": providerJobID,
	}).Info("Задача запущена у провайдера")
	return nil
}

// Complete применяет событие завершения от провайдера.
// Ищет задачу по correlation id (для синхронных задач он равен job id).
func (o *Orchestrator) Complete(ctx context.Context, ev CompletionEvent) error {
	job, err := o.jobs.GetByCorrelationID(ctx, ev.CorrelationID)
	if errors.Is(err, common.ErrJobNotFound) {
		job, err = o.jobs.GetByID(ctx, ev.CorrelationID)
	}
	if err != nil {
		if errors.Is(err, common.ErrJobNotFound) {
			log.WithField("correlation_id", ev.CorrelationID).Warn("Завершение для неизвестной задачи")
			return nil
		}
		return err
	}

	if job.Status.Terminal() {
		// Повторная доставка завершения — идемпотентный no-op
		return nil
	}

	if ev.OK && ev.ResultURL != "" {
		o.succeed(ctx, job, ev.ResultURL)
		return nil
	}
	// Провал или непригодный результат (пустой URL) — возврат
	o.failAndRefund(ctx, job, "провайдер сообщил об ошибке")
	return nil
}

// FailStale завершает провалом задачи, зависшие после списания дольше
// таймаута. Вызывается реапером по расписанию: оплаченная задача не может
// висеть неразрешённой вечно.
func (o *Orchestrator) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	jobs, err := o.jobs.ListStale(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("ошибка поиска зависших задач: %w", err)
	}
	for _, job := range jobs {
		log.WithFields(log.Fields{
			"job_id":  job.ID,
			"user_id": job.UserID,
			"status":  job.Status,
		}).Warn("Задача зависла, завершаем провалом")
		o.failAndRefund(ctx, job, "таймаут ожидания результата")
	}
	return len(jobs), nil
}

// succeed фиксирует результат и уведомляет пользователя.
func (o *Orchestrator) succeed(ctx context.Context, job *Job, resultURL string) {
	applied, err := o.jobs.MarkSucceeded(ctx, job.ID, resultURL)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"job_id":  job.ID,
			"user_id": job.UserID,
		}).Error("АЛЕРТ: результат получен, но не записан")
		return
	}
	if !applied {
		return
	}
	job.Status = StatusSucceeded

	balance, err := o.store.GetBalance(ctx, job.UserID)
	summary := fmt.Sprintf("✅ Готово: %s\n%s\nСписано %s",
		job.Kind.Title(), resultURL, common.FormatStars(job.Cost))
	if err == nil {
		summary += fmt.Sprintf(", баланс: %s", common.FormatStars(balance))
	}
	o.notifier.Notify(job.UserID, summary)
}

// failAndRefund проводит обязательный возврат и закрывает задачу провалом.
// Возврат идемпотентен, поэтому повторный вызов для той же задачи безопасен.
func (o *Orchestrator) failAndRefund(ctx context.Context, job *Job, reason string) {
	if job.DebitTxID == nil {
		// Списания не было — просто закрываем
		if err := o.jobs.MarkRejected(ctx, job.ID, reason); err != nil {
			log.WithError(err).WithField("job_id", job.ID).Error("Ошибка записи отказа")
		}
		return
	}

	ok, err := o.refunds.Refund(ctx, *job.DebitTxID, fmt.Sprintf("Возврат за «%s»: %s", job.Kind.Title(), reason))
	if err != nil || !ok {
		// Возврат не прошёл: задачу НЕ закрываем, реапер попробует ещё раз.
		// Это единственный путь, на котором задача задерживается в
		// нетерминальном состоянии — молча списать и бросить нельзя.
		log.WithError(err).WithFields(log.Fields{
			"job_id":      job.ID,
			"user_id":     job.UserID,
			"debit_tx_id": *job.DebitTxID,
			"amount":      job.Cost,
		}).Error("АЛЕРТ: возврат не выполнен, задача оставлена реаперу")
		return
	}

	applied, err := o.jobs.MarkFailedRefunded(ctx, job.ID, reason)
	if err != nil {
		log.WithError(err).WithField("job_id", job.ID).Error("Ошибка записи провала")
		return
	}
	if !applied {
		return
	}
	job.Status = StatusFailedRefunded

	o.notifier.Notify(job.UserID, fmt.Sprintf(
		"😔 Задача «%s» не получилась. Вернули %s на баланс.",
		job.Kind.Title(), common.FormatStars(job.Cost)))
}
