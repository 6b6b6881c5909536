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
	"strconv"
	"strings"

	"github.com/fmueller/longscribe/internal/transcript"
	"go.uber.org/zap"
)

const (
	APIKeyEnv        = "OPENAI_API_KEY"
	DefaultBaseURL   = "https://api.openai.com"
	DefaultHTTPModel = "whisper-1"
)

// HTTPEngine talks to an OpenAI-compatible /v1/audio/transcriptions endpoint
// and asks for verbose_json so segment timing and scores come back.
type HTTPEngine struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Logger  *zap.Logger
}

type verboseResponse struct {
	Language string                  `json:"language"`
	Text     string                  `json:"text"`
	Segments []transcript.RawSegment `json:"segments"`
}

func NewHTTPEngine(baseURL string, logger *zap.Logger) *HTTPEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}

	return &HTTPEngine{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  strings.TrimSpace(os.Getenv(APIKeyEnv)),
		Client:  &http.Client{},
		Logger:  logger,
	}
}

func (h *HTTPEngine) Name() string {
	return "http"
}

func (h *HTTPEngine) Transcribe(ctx context.Context, req Request) ([]transcript.RawSegment, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return nil, errors.New("audio path is required")
	}

	body, contentType, err := h.multipartBody(req)
	if err != nil {
		return nil, err
	}

	url := h.BaseURL + "/v1/audio/transcriptions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if h.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	h.Logger.Debug("posting clip", zap.String("url", url), zap.String("audio", req.AudioPath))
	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("transcription http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse transcription response: %w", err)
	}

	return parsed.Segments, nil
}

func (h *HTTPEngine) multipartBody(req Request) (*bytes.Buffer, string, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	model := strings.TrimSpace(req.Model)
	if model == "" || looksLikePath(model) {
		model = DefaultHTTPModel
	}
	fields := [][2]string{
		{"model", model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
		{"temperature", "0"},
	}
	if lang := languageArg(req.Language); lang != "" {
		fields = append(fields, [2]string{"language", lang})
	}
	if req.BeamSize > 0 {
		fields = append(fields, [2]string{"beam_size", strconv.Itoa(req.BeamSize)})
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", kv[0], err)
		}
	}

	fw, err := mw.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("copy clip: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}

	return &body, mw.FormDataContentType(), nil
}
