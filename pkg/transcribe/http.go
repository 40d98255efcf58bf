package transcribe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPEngine is the fallback tier: a plain speech-recognition HTTP endpoint
// targeted at one language. The response is parsed line-wise; each line is a
// JSON document and the first one carrying a transcript alternative wins.
type HTTPEngine struct {
	endpoint   string
	language   string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPEngine(endpoint, language, apiKey string) *HTTPEngine {
	if strings.TrimSpace(language) == "" {
		language = "de-DE"
	}
	return &HTTPEngine{
		endpoint:   strings.TrimSpace(endpoint),
		language:   language,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *HTTPEngine) Name() string { return "speech-api" }

func (e *HTTPEngine) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if e.endpoint == "" {
		return "", fmt.Errorf("speech endpoint not configured")
	}

	u, err := url.Parse(e.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse speech endpoint: %w", err)
	}
	q := u.Query()
	q.Set("client", "chromium")
	q.Set("lang", e.language)
	if e.apiKey != "" {
		q.Set("key", e.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("create speech request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/x-wav")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return "", fmt.Errorf("speech API request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return parseSpeechResponse(resp.Body)
}

func parseSpeechResponse(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc struct {
			Result []struct {
				Alternative []struct {
					Transcript string  `json:"transcript"`
					Confidence float64 `json:"confidence"`
				} `json:"alternative"`
			} `json:"result"`
		}
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			continue
		}
		for _, result := range doc.Result {
			for _, alt := range result.Alternative {
				if strings.TrimSpace(alt.Transcript) != "" {
					return strings.TrimSpace(alt.Transcript), nil
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read speech response: %w", err)
	}
	return "", fmt.Errorf("speech response contains no transcript")
}
