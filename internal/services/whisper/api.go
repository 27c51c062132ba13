package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lectern/internal/config"
	"lectern/internal/services"
)

// maxAPIUploadBytes is the upload ceiling of the hosted transcription API.
const maxAPIUploadBytes = 25 * 1024 * 1024

const defaultAPIBaseURL = "https://api.openai.com/v1/audio/transcriptions"

// apiTranscriber calls an OpenAI-compatible transcription endpoint.
type apiTranscriber struct {
	baseURL    string
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
}

func newAPITranscriber(cfg config.Transcriber) (*apiTranscriber, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("whisper api: api key required")
	}
	baseURL := strings.TrimSpace(cfg.APIBaseURL)
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	model := strings.TrimSpace(cfg.APIModel)
	if model == "" {
		model = "whisper-1"
	}
	timeout := 10 * time.Minute
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &apiTranscriber{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		language:   normalizeLanguage(cfg.Language),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// WithHTTPClient overrides the default HTTP client (for testing).
func (t *apiTranscriber) WithHTTPClient(client *http.Client) {
	if client != nil {
		t.httpClient = client
	}
}

func (t *apiTranscriber) Describe() string {
	return fmt.Sprintf("whisper api (%s)", t.model)
}

func (t *apiTranscriber) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	var result Result
	if strings.TrimSpace(audioPath) == "" {
		return result, services.Wrap(services.ErrValidation, "transcription", "transcribe", "audio path required", nil)
	}
	info, err := os.Stat(audioPath)
	if err != nil {
		return result, services.Wrap(services.ErrValidation, "transcription", "transcribe", "stat audio file", err)
	}
	if info.Size() > maxAPIUploadBytes {
		return result, services.Wrap(services.ErrValidation, "transcription", "transcribe",
			fmt.Sprintf("audio file is %.1fMB, above the %dMB api upload limit; use local mode",
				float64(info.Size())/(1024*1024), maxAPIUploadBytes/(1024*1024)), nil)
	}

	body, contentType, err := t.buildUpload(audioPath)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "build upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, body)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "new request", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "transcription request", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return result, services.Wrap(services.ErrExternalTool, "transcription", "transcribe",
			fmt.Sprintf("transcription api http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}

	var parsed struct {
		Text     string           `json:"text"`
		Language string           `json:"language"`
		Segments []whisperSegment `json:"segments"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "parse response", err)
	}
	result.Text = strings.TrimSpace(parsed.Text)
	if result.Text == "" {
		return result, services.Wrap(services.ErrExternalTool, "transcription", "transcribe", "api returned an empty transcript", nil)
	}
	result.Language = normalizeLanguage(parsed.Language)
	if result.Language == "" {
		result.Language = t.language
	}
	result.Confidence = meanSegmentConfidence(parsed.Segments)
	if segments, err := json.Marshal(parsed.Segments); err == nil {
		result.SegmentsJSON = string(segments)
	}
	result.Model = t.model
	return result, nil
}

func (t *apiTranscriber) buildUpload(audioPath string) (io.Reader, string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("model", t.model); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", err
	}
	if t.language != "" {
		if err := writer.WriteField("language", t.language); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
