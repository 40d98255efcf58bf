package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mschweiger/twin/pkg/agent"
	"github.com/mschweiger/twin/pkg/memory"
	"github.com/mschweiger/twin/pkg/persona"
	"github.com/mschweiger/twin/pkg/providers"
	"github.com/mschweiger/twin/pkg/transcribe"
)

type scriptedChat struct {
	reply      string
	err        error
	lastPrompt string
}

func (s *scriptedChat) Chat(_ context.Context, _ string, _ []providers.Message, prompt string, _ providers.Options) (string, error) {
	s.lastPrompt = prompt
	return s.reply, s.err
}

type noopCompleter struct{}

func (noopCompleter) GenerateJSON(context.Context, string, string) (string, error) {
	return "[]", nil
}

type scriptedTranscriber struct {
	result string
	err    error
}

func (s *scriptedTranscriber) Name() string { return "scripted" }

func (s *scriptedTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return s.result, s.err
}

func newTestServer(t *testing.T, chat *scriptedChat, engines ...transcribe.Engine) (*httptest.Server, *agent.Session) {
	t.Helper()
	store, err := memory.NewStore(filepath.Join(t.TempDir(), "twin.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	session, err := agent.NewSession(context.Background(), store, agent.NewEngine(chat, persona.Load(""), 6), memory.NewExtractor(noopCompleter{}), transcribe.NewService(engines...))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	srv := httptest.NewServer(NewWeb(":0", session).Router())
	t.Cleanup(srv.Close)
	return srv, session
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func postAudio(t *testing.T, url string, audio []byte, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "capture.wav")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(audio); err != nil {
		t.Fatalf("write audio part: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestPostMessage_ReturnsTurnPair(t *testing.T) {
	chat := &scriptedChat{reply: "Moin!"}
	srv, _ := newTestServer(t, chat)

	resp := postJSON(t, srv.URL+"/api/messages", map[string]string{"text": "Wie läuft das Business?", "mode": "business"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var turn agent.Turn
	decodeBody(t, resp, &turn)
	if turn.User.Content != "Wie läuft das Business?" {
		t.Fatalf("user content = %q", turn.User.Content)
	}
	if turn.Assistant.Content != "Moin!" {
		t.Fatalf("assistant content = %q", turn.Assistant.Content)
	}
	if chat.lastPrompt != "[CONTEXT: BUSINESS] Wie läuft das Business?" {
		t.Fatalf("prompt = %q", chat.lastPrompt)
	}
}

func TestPostMessage_EmptyTextIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedChat{reply: "unreachable"})

	resp := postJSON(t, srv.URL+"/api/messages", map[string]string{"text": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["error"] == "" {
		t.Fatal("expected error message in body")
	}
}

func TestPostMessage_InvalidJSONIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedChat{})

	resp, err := http.Post(srv.URL+"/api/messages", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetMessages_ListsConversation(t *testing.T) {
	srv, session := newTestServer(t, &scriptedChat{reply: "ok"})
	if _, err := session.HandleText(context.Background(), "hallo", persona.ModeAuto); err != nil {
		t.Fatalf("seed turn: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/messages")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Messages []memory.Message `json:"messages"`
	}
	decodeBody(t, resp, &body)
	if len(body.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(body.Messages))
	}
	if body.Messages[0].Role != memory.RoleUser || body.Messages[1].Role != memory.RoleAssistant {
		t.Fatalf("pair order wrong: %+v", body.Messages)
	}
}

func TestGetHealth_ReportsCounts(t *testing.T) {
	srv, session := newTestServer(t, &scriptedChat{reply: "ok"})
	if _, err := session.HandleText(context.Background(), "hallo", persona.ModeAuto); err != nil {
		t.Fatalf("seed turn: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status   string `json:"status"`
		Messages int64  `json:"messages"`
		Facts    int64  `json:"facts"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "ok" {
		t.Fatalf("status field = %q", body.Status)
	}
	if body.Messages != 2 {
		t.Fatalf("message count = %d, want 2", body.Messages)
	}
}

func TestPostAudio_SuccessfulTranscription(t *testing.T) {
	chat := &scriptedChat{reply: "Verstanden."}
	srv, _ := newTestServer(t, chat, &scriptedTranscriber{result: "Umsatz runter"})

	resp := postAudio(t, srv.URL+"/api/audio", []byte("wav-bytes"), map[string]string{"voice_method": "standard"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var turn agent.Turn
	decodeBody(t, resp, &turn)
	if turn.User.Content != "[Audio] Umsatz runter" {
		t.Fatalf("user content = %q", turn.User.Content)
	}
}

func TestPostAudio_TranscriptionFailureIsUnprocessable(t *testing.T) {
	srv, session := newTestServer(t, &scriptedChat{reply: "unreachable"}, &scriptedTranscriber{err: errors.New("503")})

	resp := postAudio(t, srv.URL+"/api/audio", []byte("broken audio"), nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["error"] != transcribe.FailureNotice {
		t.Fatalf("error body = %q, want %q", body["error"], transcribe.FailureNotice)
	}
	if len(session.Messages()) != 0 {
		t.Fatal("failed audio turn must not be persisted")
	}
}

func TestPostAudio_DuplicateIsConflict(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedChat{reply: "ok"}, &scriptedTranscriber{result: "hallo"})

	payload := []byte("same capture")
	first := postAudio(t, srv.URL+"/api/audio", payload, nil)
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first delivery status = %d", first.StatusCode)
	}

	second := postAudio(t, srv.URL+"/api/audio", payload, nil)
	second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", second.StatusCode)
	}
}

func TestPostReset_ClearsConversation(t *testing.T) {
	srv, session := newTestServer(t, &scriptedChat{reply: "ok"})
	if _, err := session.HandleText(context.Background(), "hallo", persona.ModeAuto); err != nil {
		t.Fatalf("seed turn: %v", err)
	}

	resp, err := http.Post(srv.URL+"/api/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST reset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if len(session.Messages()) != 0 {
		t.Fatal("messages survived reset")
	}
}

func TestGetFacts_ListsPersistedFacts(t *testing.T) {
	srv, session := newTestServer(t, &scriptedChat{reply: "ok"})
	if _, err := session.HandleText(context.Background(), "hallo", persona.ModeAuto); err != nil {
		t.Fatalf("seed turn: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/facts")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Facts []memory.Fact `json:"facts"`
	}
	decodeBody(t, resp, &body)
	// Extraction is stubbed to return nothing, so the list is empty.
	if len(body.Facts) != 0 {
		t.Fatalf("unexpected facts: %+v", body.Facts)
	}
}
