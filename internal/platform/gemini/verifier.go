// Package gemini checks stored recordings against the clip text they should
// contain, using Google's Gemini API. It is an infrastructure adapter: the
// task package sees only the Verifier interface and never the API client.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"google.golang.org/genai"

	"github.com/recitalhq/recital-api/internal/config"
)

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig indicates the verifier configuration is incomplete.
	ErrInvalidConfig = errors.New("invalid verifier configuration")

	// ErrEmptyAudio is returned when the recording bytes are empty.
	ErrEmptyAudio = errors.New("recording audio cannot be empty")

	// ErrEmptyText is returned when the expected clip text is empty.
	ErrEmptyText = errors.New("expected text cannot be empty")

	// ErrInvalidResponse indicates the model returned something unusable.
	ErrInvalidResponse = errors.New("invalid verification response")

	// ErrTransientFailure indicates the API call failed in a way that may
	// succeed on retry, and all retries were exhausted.
	ErrTransientFailure = errors.New("transient verification failure")
)

// verdictSchema is the JSON structure the model is asked to return.
type verdictSchema struct {
	Match bool   `json:"match"`
	Note  string `json:"note"`
}

const verifyPrompt = `You are reviewing a voice recording made for a speech dataset.
The speaker was asked to read the following text aloud, exactly once:

%q

Listen to the attached audio and decide whether it is a usable recording of
that text. Minor hesitations, filler words, or accent differences are fine;
missing or extra sentences, the wrong text, or silence are not.

Respond with JSON only, in this exact shape:
{"match": true or false, "note": "one short sentence explaining your decision"}`

// modelCaller abstracts the single genai call the verifier makes, so tests
// can run without the real client.
type modelCaller interface {
	generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error)
}

// genaiCaller is the production modelCaller backed by a genai.Client.
type genaiCaller struct {
	client *genai.Client
}

func (c *genaiCaller) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates returned", ErrInvalidResponse)
	}
	return resp.Text(), nil
}

// RecordingVerifier implements the task package's Verifier interface against
// the Gemini API.
type RecordingVerifier struct {
	caller     modelCaller
	model      string
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewRecordingVerifier creates a RecordingVerifier from configuration,
// building the Gemini client itself.
func NewRecordingVerifier(ctx context.Context, cfg config.VerifyConfig, logger *slog.Logger) (*RecordingVerifier, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return newRecordingVerifier(&genaiCaller{client: client}, cfg, logger), nil
}

func newRecordingVerifier(caller modelCaller, cfg config.VerifyConfig, logger *slog.Logger) *RecordingVerifier {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	delaySeconds := cfg.RetryDelaySeconds
	if delaySeconds < 1 {
		delaySeconds = 2
	}

	return &RecordingVerifier{
		caller:     caller,
		model:      cfg.ModelName,
		maxRetries: maxRetries,
		baseDelay:  time.Duration(delaySeconds) * time.Second,
		logger:     logger.With(slog.String("component", "recording_verifier")),
	}
}

// Verify sends the recording and its expected text to the model and returns
// the verdict. Transient API errors are retried with exponential backoff;
// malformed responses are permanent failures.
func (v *RecordingVerifier) Verify(ctx context.Context, audio []byte, mimeType, expectedText string) (bool, string, error) {
	if len(audio) == 0 {
		return false, "", ErrEmptyAudio
	}
	if expectedText == "" {
		return false, "", ErrEmptyText
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(fmt.Sprintf(verifyPrompt, expectedText)),
			genai.NewPartFromBytes(audio, mimeType),
		}, genai.RoleUser),
	}
	genCfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		v.logger.InfoContext(ctx, "calling verification model",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", v.maxRetries+1),
			slog.Int("audio_bytes", len(audio)))

		text, err := v.caller.generate(ctx, v.model, contents, genCfg)
		if err == nil {
			verdict, parseErr := parseVerdict(text)
			if parseErr != nil {
				v.logger.ErrorContext(ctx, "unusable verification response",
					slog.String("error", parseErr.Error()))
				return false, "", parseErr
			}
			return verdict.Match, verdict.Note, nil
		}

		if errors.Is(err, ErrInvalidResponse) {
			return false, "", err
		}

		v.logger.ErrorContext(ctx, "verification model call failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))

		if attempt >= v.maxRetries {
			return false, "", fmt.Errorf("%w: exceeded %d attempts: %v",
				ErrTransientFailure, v.maxRetries+1, err)
		}

		// delay = baseDelay * 2^attempt * (0.5 + rand(0, 0.5))
		backoff := float64(v.baseDelay) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false, "", fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
		}
	}
}

// parseVerdict decodes the model's JSON verdict.
func parseVerdict(text string) (*verdictSchema, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty response text", ErrInvalidResponse)
	}

	var verdict verdictSchema
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON verdict: %v", ErrInvalidResponse, err)
	}
	if verdict.Note == "" {
		verdict.Note = "no explanation provided"
	}
	return &verdict, nil
}
