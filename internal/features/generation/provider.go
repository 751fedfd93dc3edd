// Package generation — provider.go описывает контракт внешнего провайдера
// генерации и его HTTP-реализацию.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stargen.ru/generation-bot/internal/common"
)

// Provider — внешний сервис генерации.
//
// Синхронные типы (картинка, озвучка) получают результат одним вызовом
// Generate. Асинхронные (видео, голос, липсинк) запускаются через Begin:
// провайдер возвращает свой job id, а итог приходит вебхуком, который
// вебхук-слой кладёт в стрим завершений (см. Reconciler).
type Provider interface {
	// Generate выполняет синхронную генерацию и возвращает ссылку на результат.
	Generate(ctx context.Context, modelID string, payload Payload) (*Result, error)

	// Begin запускает асинхронную генерацию.
	// reference — наш ключ идемпотентности, провайдер вернёт его в вебхуке
	// вместе со своим job id.
	Begin(ctx context.Context, modelID string, payload Payload, reference string) (providerJobID string, err error)
}

// HTTPProvider — клиент HTTP API провайдера генерации.
type HTTPProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPProvider создаёт клиент провайдера.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

var _ Provider = (*HTTPProvider)(nil)

type generateRequest struct {
	Model     string  `json:"model"`
	Input     Payload `json:"input"`
	Reference string  `json:"reference,omitempty"`
}

type generateResponse struct {
	URL   string `json:"url"`
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

// Generate — синхронная генерация. Пустой URL в ответе считается
// провалом провайдера: списывать звёзды за пустоту нельзя.
func (p *HTTPProvider) Generate(ctx context.Context, modelID string, payload Payload) (*Result, error) {
	resp, err := p.post(ctx, "/v1/generate", generateRequest{Model: modelID, Input: payload})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s: %w", resp.Error, common.ErrProviderFailed)
	}
	if resp.URL == "" {
		return nil, fmt.Errorf("пустой результат: %w", common.ErrProviderFailed)
	}
	return &Result{URL: resp.URL}, nil
}

// Begin — запуск фоновой генерации, возвращает job id провайдера.
func (p *HTTPProvider) Begin(ctx context.Context, modelID string, payload Payload, reference string) (string, error) {
	resp, err := p.post(ctx, "/v1/jobs", generateRequest{Model: modelID, Input: payload, Reference: reference})
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%s: %w", resp.Error, common.ErrProviderFailed)
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("провайдер не вернул job_id: %w", common.ErrProviderFailed)
	}
	return resp.JobID, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body generateRequest) (*generateResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка вызова провайдера: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("провайдер вернул %d: %w", httpResp.StatusCode, common.ErrProviderFailed)
	}
	if httpResp.StatusCode >= 400 {
		return nil, fmt.Errorf("провайдер отклонил запрос (%d): %w", httpResp.StatusCode, common.ErrProviderFailed)
	}

	var resp generateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("некорректный ответ провайдера: %w", common.ErrProviderFailed)
	}
	return &resp, nil
}
