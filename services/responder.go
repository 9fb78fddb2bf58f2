package services

import (
	"context"
	"regexp"
	"strings"

	"matcha-back/models"
)

// systemInstruction mirrors the production prompt: bilingual, and reinforced
// against leaking internal thought spans.
const systemInstruction = "You are Matcha AI, a helpful, friendly, and intelligent assistant. " +
	"You answer concisely and politely. If the user speaks Japanese, reply in Japanese. If English, reply in English.\n\n" +
	"IMPORTANT: Do NOT output internal thought processes, monologues, or <think> tags. Only output the final response to the user.\n\n" +
	"重要: 思考プロセスや<think>タグは絶対に出力しないでください。ユーザーへの最終的な回答のみを出力してください。"

// TurnReply is the responder's final resolved output for one turn. Image is
// an opaque data URL when the provider decided to synthesize one.
type TurnReply struct {
	Text  string
	Image string
}

// Responder generates the assistant reply for one user turn from the prior
// history plus the new text. Implementations strip reasoning spans before
// returning; the controller strips once more defensively.
type Responder interface {
	SendTurn(ctx context.Context, history []models.Message, text string) (TurnReply, error)
}

var reasoningSpan = regexp.MustCompile(`(?is)<think>.*?</think>`)

// StripReasoning removes <think> spans some models leak despite the system
// instruction. Case-insensitive, spans may cross lines, surrounding text is
// rejoined and trimmed. Idempotent on already-clean text.
func StripReasoning(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(reasoningSpan.ReplaceAllString(text, ""))
}
