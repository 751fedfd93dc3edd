package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stargen.ru/generation-bot/internal/common"
)

func TestJobRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     JobRequest
		wantErr error
	}{
		{
			name: "картинка с промптом",
			req:  JobRequest{ID: "a", UserID: 1, Kind: KindImage, Payload: Payload{Prompt: "кот"}},
		},
		{
			name:    "картинка без промпта",
			req:     JobRequest{ID: "a", UserID: 1, Kind: KindImage},
			wantErr: common.ErrInvalidInput,
		},
		{
			name:    "озвучка без текста",
			req:     JobRequest{ID: "a", UserID: 1, Kind: KindTTS},
			wantErr: common.ErrInvalidInput,
		},
		{
			name:    "клон голоса без аудио",
			req:     JobRequest{ID: "a", UserID: 1, Kind: KindVoiceClone},
			wantErr: common.ErrInvalidInput,
		},
		{
			name: "липсинк с видео и аудио",
			req: JobRequest{ID: "a", UserID: 1, Kind: KindLipsync,
				Payload: Payload{VideoURL: "v", AudioURL: "a"}},
		},
		{
			name: "липсинк только с видео",
			req: JobRequest{ID: "a", UserID: 1, Kind: KindLipsync,
				Payload: Payload{VideoURL: "v"}},
			wantErr: common.ErrInvalidInput,
		},
		{
			name:    "неизвестный тип",
			req:     JobRequest{ID: "a", UserID: 1, Kind: "hologram", Payload: Payload{Prompt: "x"}},
			wantErr: common.ErrInvalidModel,
		},
		{
			name:    "без ключа идемпотентности",
			req:     JobRequest{UserID: 1, Kind: KindImage, Payload: Payload{Prompt: "кот"}},
			wantErr: common.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestKind_Async(t *testing.T) {
	assert.False(t, KindImage.Async())
	assert.False(t, KindTTS.Async())
	assert.True(t, KindVideo.Async())
	assert.True(t, KindVoiceClone.Async())
	assert.True(t, KindLipsync.Async())
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, StatusReceived.Terminal())
	assert.False(t, StatusBalanceChecked.Terminal())
	assert.False(t, StatusDispatched.Terminal())
	assert.True(t, StatusSucceeded.Terminal())
	assert.True(t, StatusFailedRefunded.Terminal())
	assert.True(t, StatusRejected.Terminal())
}
