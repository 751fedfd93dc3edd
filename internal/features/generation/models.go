// Package generation — оркестрация платных задач генерации.
// models.go описывает типы задач, полезные нагрузки и статусы.
package generation

import (
	"fmt"
	"time"

	"stargen.ru/generation-bot/internal/common"
)

// Kind — тип задачи генерации.
type Kind string

const (
	KindImage      Kind = "image"       // Картинка по промпту (синхронно)
	KindTTS        Kind = "tts"         // Озвучка текста (синхронно)
	KindVideo      Kind = "video"       // Видео по промпту (фоново)
	KindVoiceClone Kind = "voice_clone" // Клонирование голоса (фоново)
	KindLipsync    Kind = "lipsync"     // Липсинк видео под аудио (фоново)
)

// Async сообщает, выполняется ли задача через фоновую очередь.
// Картинки и озвучка приходят синхронно за один вызов провайдера,
// остальное рендерится минутами и идёт через шину задач.
func (k Kind) Async() bool {
	switch k {
	case KindVideo, KindVoiceClone, KindLipsync:
		return true
	}
	return false
}

// Title возвращает человекочитаемое название типа задачи.
func (k Kind) Title() string {
	switch k {
	case KindImage:
		return "картинка"
	case KindTTS:
		return "озвучка"
	case KindVideo:
		return "видео"
	case KindVoiceClone:
		return "клон голоса"
	case KindLipsync:
		return "липсинк"
	}
	return string(k)
}

// Payload — входные данные задачи. Обязательные поля зависят от типа
// и проверяются в JobRequest.Validate.
type Payload struct {
	Prompt    string `json:"prompt,omitempty"`     // Текстовый промпт (image, video)
	Text      string `json:"text,omitempty"`       // Текст для озвучки (tts)
	VoiceName string `json:"voice_name,omitempty"` // Имя голоса (tts, voice_clone)
	ImageURL  string `json:"image_url,omitempty"`  // Референс-картинка (video, опционально)
	VideoURL  string `json:"video_url,omitempty"`  // Видео-референс (lipsync)
	AudioURL  string `json:"audio_url,omitempty"`  // Аудио-референс (lipsync, voice_clone)
}

// JobRequest — запрос на оплачиваемую задачу генерации.
// ID служит ключом идемпотентности: повторная отправка с тем же ID
// не приводит к повторному списанию.
type JobRequest struct {
	ID      string  // Ключ идемпотентности (UUID попытки)
	UserID  int64   // Владелец задачи
	Kind    Kind    // Тип задачи
	ModelID string  // Модель провайдера
	Payload Payload // Входные данные
	Cost    int64   // Цена в звёздах (вычисляется до отправки)
}

// Validate проверяет запрос до любого списания.
// Неизвестный тип задачи — ErrInvalidModel, нехватка обязательных
// полей — ErrInvalidInput. Switch обязан перечислять все типы.
func (r *JobRequest) Validate() error {
	if r.ID == "" || r.UserID == 0 {
		return fmt.Errorf("пустой id или user_id: %w", common.ErrInvalidInput)
	}

	switch r.Kind {
	case KindImage:
		if r.Payload.Prompt == "" {
			return fmt.Errorf("image: нужен prompt: %w", common.ErrInvalidInput)
		}
	case KindTTS:
		if r.Payload.Text == "" {
			return fmt.Errorf("tts: нужен text: %w", common.ErrInvalidInput)
		}
	case KindVideo:
		if r.Payload.Prompt == "" {
			return fmt.Errorf("video: нужен prompt: %w", common.ErrInvalidInput)
		}
	case KindVoiceClone:
		if r.Payload.AudioURL == "" {
			return fmt.Errorf("voice_clone: нужен audio_url: %w", common.ErrInvalidInput)
		}
	case KindLipsync:
		if r.Payload.VideoURL == "" || r.Payload.AudioURL == "" {
			return fmt.Errorf("lipsync: нужны video_url и audio_url: %w", common.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("тип %q: %w", r.Kind, common.ErrInvalidModel)
	}
	return nil
}

// JobStatus — статус задачи в конвейере.
// Терминальные статусы: succeeded, failed_refunded, rejected.
type JobStatus string

const (
	StatusReceived       JobStatus = "received"        // Запрос принят, списания ещё не было
	StatusBalanceChecked JobStatus = "balance_checked" // Звёзды списаны
	StatusDispatched     JobStatus = "dispatched"      // Задача у провайдера
	StatusSucceeded      JobStatus = "succeeded"       // Результат получен
	StatusFailedRefunded JobStatus = "failed_refunded" // Провал, звёзды возвращены
	StatusRejected       JobStatus = "rejected"        // Отклонена до/на списании
)

// Terminal сообщает, достигла ли задача конечного состояния.
// Из терминального состояния переходов нет.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailedRefunded, StatusRejected:
		return true
	}
	return false
}

// Job — запись задачи в БД. Хранит статус конвейера, ссылку на списание
// (для возврата) и correlation id провайдера.
type Job struct {
	ID            string    `db:"id"`             // Ключ идемпотентности (UUID)
	UserID        int64     `db:"user_id"`        // Владелец
	Kind          Kind      `db:"kind"`           // Тип задачи
	ModelID       string    `db:"model_id"`       // Модель провайдера
	Payload       Payload   `db:"payload"`        // Входные данные (JSONB)
	Cost          int64     `db:"cost"`           // Цена в звёздах
	DebitTxID     *int64    `db:"debit_tx_id"`    // ID транзакции списания
	Status        JobStatus `db:"status"`         // Текущий статус
	CorrelationID string    `db:"correlation_id"` // Job id на стороне провайдера
	ResultURL     string    `db:"result_url"`     // Ссылка на результат
	Error         string    `db:"error"`          // Текст ошибки (для диагностики)
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// CompletionEvent — событие завершения от провайдера (вебхук-слой кладёт
// его в стрим завершений, reconciler доставляет оркестратору).
type CompletionEvent struct {
	CorrelationID string `json:"correlation_id"` // Job id провайдера
	OK            bool   `json:"ok"`             // Успех или провал
	ResultURL     string `json:"result_url"`     // Ссылка на результат (при успехе)
	Error         string `json:"error"`          // Описание ошибки (при провале)
}

// Result — результат синхронной генерации.
type Result struct {
	URL string // Ссылка на сгенерированный файл
}
