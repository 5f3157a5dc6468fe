package infrastructure

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
)

// VisionClient calls the external vision/document model endpoint. The model
// is asked for a JSON object but tends to wrap it in prose, so the response
// is parsed defensively.
type VisionClient struct {
	http *resty.Client
	log  *zap.Logger
}

func NewVisionClient(endpoint, apiKey string, log *zap.Logger) *VisionClient {
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(60 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &VisionClient{http: client, log: log}
}

type visionRequest struct {
	Prompt   string `json:"prompt"`
	Media    string `json:"media"`
	MimeType string `json:"mime_type"`
}

func (c *VisionClient) Analyze(ctx context.Context, payload []byte, mimeType, prompt string) (*domain.AnalysisResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(visionRequest{
			Prompt:   prompt,
			Media:    base64.StdEncoding.EncodeToString(payload),
			MimeType: mimeType,
		}).
		Post("/analyze")
	if err != nil {
		return nil, fmt.Errorf("vision request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("vision request failed: status %d", resp.StatusCode())
	}

	result := ParseAnalysisText(resp.String())
	if result == nil {
		return nil, fmt.Errorf("empty vision response")
	}
	return result, nil
}

// ParseAnalysisText extracts the analysis from raw model output. The first
// well-formed JSON object wins; failing that, the whole text becomes the
// analysis with an ok verdict. Empty text yields nil.
func ParseAnalysisText(text string) *domain.AnalysisResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if raw, ok := firstJSONObject(text); ok {
		var parsed struct {
			Analysis string `json:"analysis"`
			Verdict  string `json:"verdict"`
		}
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil && parsed.Analysis != "" {
			verdict := domain.Verdict(parsed.Verdict)
			if !verdict.Valid() {
				verdict = domain.VerdictOK
			}
			return &domain.AnalysisResult{Analysis: parsed.Analysis, Verdict: verdict}
		}
	}
	return &domain.AnalysisResult{Analysis: text, Verdict: domain.VerdictOK}
}

// firstJSONObject scans for the first balanced {...} block that is valid
// JSON, tolerating braces inside string literals.
func firstJSONObject(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			ch := text[i]
			if escaped {
				escaped = false
				continue
			}
			switch {
			case ch == '\\' && inString:
				escaped = true
			case ch == '"':
				inString = !inString
			case inString:
			case ch == '{':
				depth++
			case ch == '}':
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					i = len(text)
				}
			}
		}
	}
	return "", false
}
