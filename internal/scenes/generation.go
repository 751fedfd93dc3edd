// Package scenes — generation.go: сцены платных фоновых задач
// (видео, клон голоса, липсинк). Каждая сцена собирает входные данные
// по шагам и на подтверждении отдаёт запрос оркестратору; списание
// и уведомления о результате — его зона ответственности.
package scenes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stargen.ru/generation-bot/internal/common"
	"stargen.ru/generation-bot/internal/config"
	"stargen.ru/generation-bot/internal/features/generation"
)

// Идентификаторы сцен генерации.
const (
	SceneVideo      = "video"
	SceneVoiceClone = "voice_clone"
	SceneLipsync    = "lipsync"
)

// Модели провайдера для фоновых задач.
const (
	videoModel      = "kling-v1"
	voiceCloneModel = "xtts-v2"
	lipsyncModel    = "wav2lip-hd"
)

const maxPromptLen = 500

// NewVideoScene — сцена /видео: промпт → референс → подтверждение.
func NewVideoScene(cfg *config.Config, orch *generation.Orchestrator) *Scene {
	return &Scene{
		ID: SceneVideo,
		Steps: []Step{
			{
				Prompt: "🎬 Опишите, какое видео сгенерировать (или «отмена»):",
				Handle: promptStep("prompt"),
			},
			{
				Prompt: "Пришлите ссылку на референс-картинку или «-», чтобы пропустить:",
				Handle: optionalURLStep("image_url"),
			},
			{
				Prompt: fmt.Sprintf("Отправить в работу? Спишется %s (да/нет):",
					common.FormatStars(cfg.PriceVideo)),
				Handle: confirmStep(orch, func(sess *Session) *generation.JobRequest {
					return &generation.JobRequest{
						ID:      uuid.NewString(),
						UserID:  sess.UserID,
						Kind:    generation.KindVideo,
						ModelID: videoModel,
						Payload: generation.Payload{
							Prompt:   sess.Data["prompt"],
							ImageURL: sess.Data["image_url"],
						},
						Cost: cfg.PriceVideo,
					}
				}),
			},
		},
	}
}

// NewVoiceCloneScene — сцена /войс: аудио-образец → имя голоса → подтверждение.
func NewVoiceCloneScene(cfg *config.Config, orch *generation.Orchestrator) *Scene {
	return &Scene{
		ID: SceneVoiceClone,
		Steps: []Step{
			{
				Prompt: "🎙 Пришлите ссылку на аудио с образцом голоса (или «отмена»):",
				Handle: urlStep("audio_url"),
			},
			{
				Prompt: "Как назвать голос?",
				Handle: promptStep("voice_name"),
			},
			{
				Prompt: fmt.Sprintf("Клонировать голос? Спишется %s (да/нет):",
					common.FormatStars(cfg.PriceVoiceClone)),
				Handle: confirmStep(orch, func(sess *Session) *generation.JobRequest {
					return &generation.JobRequest{
						ID:      uuid.NewString(),
						UserID:  sess.UserID,
						Kind:    generation.KindVoiceClone,
						ModelID: voiceCloneModel,
						Payload: generation.Payload{
							AudioURL:  sess.Data["audio_url"],
							VoiceName: sess.Data["voice_name"],
						},
						Cost: cfg.PriceVoiceClone,
					}
				}),
			},
		},
	}
}

// NewLipsyncScene — сцена /липсинк: видео → аудио → подтверждение.
func NewLipsyncScene(cfg *config.Config, orch *generation.Orchestrator) *Scene {
	return &Scene{
		ID: SceneLipsync,
		Steps: []Step{
			{
				Prompt: "👄 Пришлите ссылку на видео (или «отмена»):",
				Handle: urlStep("video_url"),
			},
			{
				Prompt: "Теперь ссылку на аудио, под которое синхронизируем губы:",
				Handle: urlStep("audio_url"),
			},
			{
				Prompt: fmt.Sprintf("Запустить липсинк? Спишется %s (да/нет):",
					common.FormatStars(cfg.PriceLipsync)),
				Handle: confirmStep(orch, func(sess *Session) *generation.JobRequest {
					return &generation.JobRequest{
						ID:      uuid.NewString(),
						UserID:  sess.UserID,
						Kind:    generation.KindLipsync,
						ModelID: lipsyncModel,
						Payload: generation.Payload{
							VideoURL: sess.Data["video_url"],
							AudioURL: sess.Data["audio_url"],
						},
						Cost: cfg.PriceLipsync,
					}
				}),
			},
		},
	}
}

// --- Переиспользуемые шаги ---

// promptStep принимает непустой текст ограниченной длины в data[key].
func promptStep(key string) func(context.Context, *Session, string) (StepResult, string) {
	return func(ctx context.Context, sess *Session, input string) (StepResult, string) {
		input = strings.TrimSpace(input)
		if isCancel(input) {
			return ResultLeave, "Отменено"
		}
		if input == "" {
			return ResultRepeat, ""
		}
		if len([]rune(input)) > maxPromptLen {
			return ResultRepeat, fmt.Sprintf("Слишком длинно, максимум %d символов. Попробуйте короче:", maxPromptLen)
		}
		sess.Data[key] = input
		return ResultAdvance, ""
	}
}

// urlStep принимает http(s)-ссылку в data[key].
func urlStep(key string) func(context.Context, *Session, string) (StepResult, string) {
	return func(ctx context.Context, sess *Session, input string) (StepResult, string) {
		input = strings.TrimSpace(input)
		if isCancel(input) {
			return ResultLeave, "Отменено"
		}
		if !isURL(input) {
			return ResultRepeat, "Нужна ссылка вида https://... Попробуйте ещё раз:"
		}
		sess.Data[key] = input
		return ResultAdvance, ""
	}
}

// optionalURLStep — как urlStep, но «-» пропускает шаг.
func optionalURLStep(key string) func(context.Context, *Session, string) (StepResult, string) {
	return func(ctx context.Context, sess *Session, input string) (StepResult, string) {
		input = strings.TrimSpace(input)
		if isCancel(input) {
			return ResultLeave, "Отменено"
		}
		if input == "-" {
			return ResultAdvance, ""
		}
		if !isURL(input) {
			return ResultRepeat, "Нужна ссылка вида https://... или «-», чтобы пропустить:"
		}
		sess.Data[key] = input
		return ResultAdvance, ""
	}
}

// confirmStep на «да» собирает запрос и отдаёт его оркестратору.
// Сцена закрывается в любом исходе подтверждения: результат, отказ по
// балансу и провалы дальше сообщает сам оркестратор.
func confirmStep(orch *generation.Orchestrator, build func(*Session) *generation.JobRequest) func(context.Context, *Session, string) (StepResult, string) {
	return func(ctx context.Context, sess *Session, input string) (StepResult, string) {
		switch strings.ToLower(strings.TrimSpace(input)) {
		case "да", "yes", "y", "+":
		case "нет", "no", "n", "-":
			return ResultLeave, "Отменено"
		default:
			if isCancel(input) {
				return ResultLeave, "Отменено"
			}
			return ResultRepeat, "Ответьте «да» или «нет»:"
		}

		req := build(sess)
		_, err := orch.Submit(ctx, req)
		switch {
		case err == nil:
			return ResultLeave, ""
		case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrInvalidModel):
			return ResultLeave, "❌ Собранные данные не прошли проверку, начните заново"
		case errors.Is(err, common.ErrDuplicateJob):
			return ResultLeave, "⏳ Эта задача уже в работе"
		default:
			log.WithError(err).WithFields(log.Fields{
				"user_id": sess.UserID,
				"scene":   sess.SceneID,
			}).Error("Ошибка отправки задачи из сцены")
			return ResultLeave, ""
		}
	}
}

func isCancel(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "отмена", "/отмена", "/cancel", "cancel":
		return true
	}
	return false
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
