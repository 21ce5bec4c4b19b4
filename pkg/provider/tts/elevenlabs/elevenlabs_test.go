package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/cogniscribe/pkg/provider/tts"
)

// ---- WebSocket message construction ----

func TestBuildWSMessage_WithVoiceSettings(t *testing.T) {
	t.Parallel()

	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	data, err := buildWSMessage("Hello there", vs)
	if err != nil {
		t.Fatalf("buildWSMessage: %v", err)
	}

	var msg textMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Text != "Hello there" {
		t.Errorf("expected text 'Hello there', got %q", msg.Text)
	}
	if msg.VoiceSettings == nil || msg.VoiceSettings.Stability != 0.5 {
		t.Errorf("unexpected voice settings %+v", msg.VoiceSettings)
	}
}

func TestBuildWSMessage_FlushCommand(t *testing.T) {
	t.Parallel()

	// ElevenLabs flush = {"text":""} with no other fields.
	data, err := buildWSMessage("", nil)
	if err != nil {
		t.Fatalf("buildWSMessage: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal flush: %v", err)
	}
	if string(raw["text"]) != `""` {
		t.Errorf("expected empty string for text, got %s", raw["text"])
	}
	if _, exists := raw["voice_settings"]; exists {
		t.Error("flush message should not contain voice_settings")
	}
}

// ---- URL construction ----

func TestStreamURL(t *testing.T) {
	t.Parallel()

	p, err := New("key", WithModel("eleven_multilingual_v2"), WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw := p.streamURL("voice-abc123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "wss" {
		t.Errorf("scheme = %q, want wss", u.Scheme)
	}
	if u.Path != "/v1/text-to-speech/voice-abc123/stream-input" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("model_id") != "eleven_multilingual_v2" || q.Get("output_format") != "pcm_24000" || q.Get("sync_alignment") != "true" {
		t.Errorf("query = %v", q)
	}
}

func TestWithBaseURL(t *testing.T) {
	t.Parallel()

	p, _ := New("key", WithBaseURL("http://127.0.0.1:8080/"))
	if p.httpBase != "http://127.0.0.1:8080" {
		t.Errorf("httpBase = %q", p.httpBase)
	}
	if p.wsBase != "ws://127.0.0.1:8080" {
		t.Errorf("wsBase = %q", p.wsBase)
	}
}

// ---- audio message parsing ----

func TestParseAudioResponse(t *testing.T) {
	t.Parallel()

	pcm := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})

	tests := []struct {
		name      string
		raw       string
		wantAudio int
		wantChars int
		wantFinal bool
		wantErr   bool
	}{
		{
			name:      "audio with alignment",
			raw:       fmt.Sprintf(`{"audio":%q,"alignment":{"chars":["H","i","!"]}}`, pcm),
			wantAudio: 4,
			wantChars: 3,
		},
		{
			name:      "final marker",
			raw:       `{"audio":null,"isFinal":true}`,
			wantFinal: true,
		},
		{
			name:      "server error",
			raw:       `{"error":"quota_exceeded","message":"no credits"}`,
			wantFinal: true,
			wantErr:   true,
		},
		{
			name: "garbage",
			raw:  `{nope`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, final, err := parseAudioResponse([]byte(tc.raw))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if len(c.Audio) != tc.wantAudio || c.Chars != tc.wantChars || final != tc.wantFinal {
				t.Errorf("got audio=%d chars=%d final=%v, want %d %d %v",
					len(c.Audio), c.Chars, final, tc.wantAudio, tc.wantChars, tc.wantFinal)
			}
		})
	}
}

// ---- streaming round trip ----

func TestSynthesizeStream_RoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		// BOI handshake.
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg textMessage
			_ = json.Unmarshal(data, &msg)
			if msg.Text == "" {
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"isFinal":true}`))
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			chars := make([]string, 0, len(msg.Text))
			for _, r := range msg.Text {
				chars = append(chars, string(r))
			}
			resp, _ := json.Marshal(audioResponse{
				Audio:     base64.StdEncoding.EncodeToString([]byte(msg.Text)),
				Alignment: &alignment{Chars: chars},
			})
			_ = conn.Write(ctx, websocket.MessageText, resp)
		}
	}))
	defer srv.Close()

	p, err := New("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text := make(chan string, 2)
	text <- "Hi. "
	text <- "Bye."
	close(text)

	out, err := p.SynthesizeStream(ctx, text, tts.VoiceProfile{ID: "v1"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	var chars int
	var audio strings.Builder
	for c := range out {
		if c.Err != nil {
			t.Fatalf("unexpected chunk error: %v", c.Err)
		}
		chars += c.Chars
		audio.Write(c.Audio)
	}
	if chars != len("Hi. Bye.") {
		t.Errorf("chars = %d, want %d", chars, len("Hi. Bye."))
	}
	if audio.String() != "Hi. Bye." {
		t.Errorf("audio = %q", audio.String())
	}
}

func TestSynthesizeStream_EmptyVoice(t *testing.T) {
	t.Parallel()

	p, _ := New("key")
	if _, err := p.SynthesizeStream(context.Background(), nil, tts.VoiceProfile{}); err == nil {
		t.Error("expected error for empty voice ID")
	}
}

// ---- ListVoices ----

func TestListVoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" || r.Header.Get("xi-api-key") != "secret" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"abc","name":"Rachel","category":"premade","labels":{"gender":"female"}}]}`))
	}))
	defer srv.Close()

	p, _ := New("secret", WithBaseURL(srv.URL))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "abc" || voices[0].Metadata["gender"] != "female" {
		t.Errorf("voices = %+v", voices)
	}

	bad, _ := New("wrong", WithBaseURL(srv.URL))
	if _, err := bad.ListVoices(context.Background()); err == nil {
		t.Error("expected error on non-200 status")
	}
}

// ---- Voice list response parsing ----

func TestParseVoicesResponse_Success(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"voices": [
			{"voice_id": "abc123", "name": "Rachel", "category": "premade", "labels": {"gender": "female", "accent": "american"}},
			{"voice_id": "def456", "name": "Adam", "category": "premade", "labels": {"gender": "male"}}
		]
	}`)

	profiles, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	rachel := profiles[0]
	if rachel.ID != "abc123" || rachel.Name != "Rachel" || rachel.Provider != "elevenlabs" {
		t.Errorf("unexpected profile %+v", rachel)
	}
	if rachel.Metadata["category"] != "premade" {
		t.Errorf("expected category 'premade', got %q", rachel.Metadata["category"])
	}
}

func TestParseVoicesResponse_NoLabels(t *testing.T) {
	t.Parallel()

	profiles, err := parseVoicesResponse([]byte(`{"voices":[{"voice_id":"x1","name":"Ghost","category":"","labels":null}]}`))
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(profiles))
	}
	if _, ok := profiles[0].Metadata["category"]; ok {
		t.Error("expected no 'category' key in metadata when category is empty")
	}
}

func TestParseVoicesResponse_InvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := parseVoicesResponse([]byte(`{invalid`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("expected outputFormat %q, got %q", defaultOutputFmt, p.outputFormat)
	}
	if p.wsBase != defaultWSBase || p.httpBase != defaultHTTPBase {
		t.Errorf("unexpected bases %q %q", p.wsBase, p.httpBase)
	}
}
