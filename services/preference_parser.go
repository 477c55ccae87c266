package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/sirupsen/logrus"
)

// PreferenceParser turns free text into a structured preference
type PreferenceParser interface {
	Parse(ctx context.Context, text string) (*models.ParsedPreference, error)
}

const preferenceSystemPrompt = `You convert a theater-goer's description of which Broadway lotteries they want to enter into JSON.
Return only a JSON object with these optional fields:
  genres: string[]            (e.g. "musical", "play", "comedy")
  showNames: string[]         (shows they want)
  excludeShows: string[]      (shows they do not want)
  priceRange: {min?: number, max?: number}
  dateRange: {start?: "YYYY-MM-DD", end?: "YYYY-MM-DD"}
  keywords: string[]
  availability: {daysOfWeek?: string[], specificDates?: "YYYY-MM-DD"[], excludeDates?: "YYYY-MM-DD"[], timePreference?: "any"|"matinee"|"evening"}
Omit any field the text does not mention. Never invent constraints.`

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	GenerationConfig  struct {
		Temperature      float64 `json:"temperature"`
		ResponseMimeType string  `json:"response_mime_type,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// LLMPreferenceParser calls a hosted generateContent endpoint once per
// submission. There is no retry: a failure leaves the user unparsed.
type LLMPreferenceParser struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewLLMPreferenceParser returns nil when apiKey is empty; callers treat a
// nil parser as "preference parsing not configured"
func NewLLMPreferenceParser(apiKey, baseURL, model string, clients *shared.HTTPClientFactory) *LLMPreferenceParser {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	return &LLMPreferenceParser{
		apiKey:     apiKey,
		endpoint:   fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(baseURL, "/"), model),
		httpClient: clients.CreateHTTPClient(30 * time.Second),
	}
}

// Parse sends text to the service and decodes the JSON preference it returns
func (p *LLMPreferenceParser) Parse(ctx context.Context, text string) (*models.ParsedPreference, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "LLMPreferenceParser",
		"method":    "Parse",
	})

	var payload geminiRequest
	payload.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: text}}}}
	payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: preferenceSystemPrompt}}}
	payload.GenerationConfig.ResponseMimeType = "application/json"

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	startTime := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, shared.NewServiceError(shared.ErrorCategoryNetwork, "PREFERENCE_REQUEST_FAILED",
			"preference service unreachable", "LLMPreferenceParser", "Parse", true,
			fmt.Errorf("%w: %v", shared.ErrPreferenceServiceUnavailable, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp.StatusCode, respBody)
	}

	var decoded geminiResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response payload: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, shared.NewServiceError(shared.ErrorCategoryUpstream, "PREFERENCE_EMPTY_RESPONSE",
			"preference service returned no content", "LLMPreferenceParser", "Parse", false, nil)
	}

	pref, err := decodePreference(decoded.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryProcessing, "PREFERENCE_DECODE_FAILED", "LLMPreferenceParser", "Parse", false)
	}

	logger.WithField("duration", time.Since(startTime)).Info("Parsed preference text")
	return pref, nil
}

func (p *LLMPreferenceParser) statusError(status int, body []byte) error {
	logrus.WithFields(logrus.Fields{
		"component": "LLMPreferenceParser",
		"status":    status,
	}).Warn("Preference service returned error status")

	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return shared.NewServiceError(shared.ErrorCategoryUpstream, "PREFERENCE_SERVICE_UNAVAILABLE",
			"preference service rate limited or unavailable", "LLMPreferenceParser", "Parse", true,
			fmt.Errorf("%w: status %d", shared.ErrPreferenceServiceUnavailable, status))
	default:
		return shared.NewServiceError(shared.ErrorCategoryUpstream, "PREFERENCE_REQUEST_REJECTED",
			fmt.Sprintf("preference service rejected request (status %d)", status), "LLMPreferenceParser", "Parse", false,
			fmt.Errorf("status %d: %s", status, truncate(string(body), 200)))
	}
}

// decodePreference accepts the bare JSON object, optionally wrapped in a
// markdown code fence
func decodePreference(text string) (*models.ParsedPreference, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var pref models.ParsedPreference
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
