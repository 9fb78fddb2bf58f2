package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"matcha-back/models"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiResponder calls the Gemini generateContent REST endpoint. The
// provider may resolve an image-synthesis tool call internally; this client
// only ever sees the final text plus an optional inline image, which it
// passes through as a data URL.
type GeminiResponder struct {
	client *resty.Client
	apiKey string
	model  string
	logger *zap.Logger
}

func NewGeminiResponder(baseURL, apiKey, model string, logger *zap.Logger) *GeminiResponder {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiResponder{
		client: resty.New().SetBaseURL(baseURL),
		apiKey: apiKey,
		model:  model,
		logger: logger,
	}
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *GeminiResponder) SendTurn(ctx context.Context, history []models.Message, text string) (TurnReply, error) {
	if g.apiKey == "" {
		return TurnReply{}, fmt.Errorf("GEMINI_API_KEY is not set")
	}

	// 会話履歴をGemini形式に変換
	contents := make([]map[string]interface{}, 0, len(history)+1)
	for _, msg := range history {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "model"
		}
		contents = append(contents, map[string]interface{}{
			"role":  role,
			"parts": []map[string]string{{"text": msg.Text}},
		})
	}
	contents = append(contents, map[string]interface{}{
		"role":  "user",
		"parts": []map[string]string{{"text": text}},
	})

	requestBody := map[string]interface{}{
		"contents": contents,
		"systemInstruction": map[string]interface{}{
			"parts": []map[string]string{{"text": systemInstruction}},
		},
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", g.apiKey).
		SetBody(requestBody).
		Post("/v1beta/models/" + g.model + ":generateContent")
	if err != nil {
		return TurnReply{}, fmt.Errorf("gemini request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return TurnReply{}, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode(), resp.String())
	}

	var result geminiResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return TurnReply{}, fmt.Errorf("failed to decode gemini response: %w", err)
	}
	if len(result.Candidates) == 0 {
		return TurnReply{}, fmt.Errorf("gemini returned no candidates")
	}

	var reply TurnReply
	var texts []string
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
		if part.InlineData != nil && part.InlineData.Data != "" {
			reply.Image = "data:" + part.InlineData.MimeType + ";base64," + part.InlineData.Data
		}
	}
	// 受信直後に思考タグを除去する
	reply.Text = StripReasoning(strings.Join(texts, ""))
	return reply, nil
}
