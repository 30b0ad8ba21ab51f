package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"redtape.au/redtape/internal/store"
)

const (
	defaultChatModelName = "gemini-1.5-flash-latest"
	maxOutputTokens      = 1024
	metadataToolName     = "emit_ui_metadata"
)

// LLMService wraps the GenAI client and implements CompletionClient.
type LLMService struct {
	client *genai.Client
}

func NewLLMService(ctx context.Context, apiKey string) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

func enumSchema(values []string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Enum: values}
}

func stringListSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
}

// metadataTool is the single callable the model may use to attach structured
// UI metadata to a reply. Its parameter schema mirrors the validation schema
// in metadata.go.
var metadataTool = &genai.Tool{
	FunctionDeclarations: []*genai.FunctionDeclaration{{
		Name: metadataToolName,
		Description: "Attach structured metadata to your reply: topical challenge areas, " +
			"who the advice applies to, recommended actions, citations, the jurisdictions " +
			"involved, quick-reply suggestions, checklist item suggestions, and optionally " +
			"which context-collection form the client should show next.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"challengeAreas": {
					Type:  genai.TypeArray,
					Items: enumSchema(store.ChallengeAreaValues),
				},
				"appliesTo":          stringListSchema(),
				"recommendedActions": stringListSchema(),
				"citations": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"title":  {Type: genai.TypeString},
							"source": {Type: genai.TypeString},
							"url":    {Type: genai.TypeString},
						},
						Required: []string{"title"},
					},
				},
				"jurisdictions": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"level": enumSchema(store.JurisdictionLevels),
							"name":  {Type: genai.TypeString},
							"role":  {Type: genai.TypeString},
						},
						Required: []string{"level", "name"},
					},
				},
				"suggestions": stringListSchema(),
				"checklistItems": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"title":       {Type: genai.TypeString},
							"description": {Type: genai.TypeString},
							"dueDate":     {Type: genai.TypeString},
							"agency":      {Type: genai.TypeString},
							"priority":    enumSchema(store.PriorityValues),
							"category":    enumSchema(store.CategoryValues),
						},
						Required: []string{"title"},
					},
				},
				"showForm": enumSchema(store.FormKindValues),
			},
		},
	}},
}

// Complete sends the conversation to Gemini with the metadata tool attached
// and collects the text parts plus any metadata function call.
func (s *LLMService) Complete(ctx context.Context, turns []Turn, instruction string) (CompletionResult, error) {
	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(instruction)},
	}
	model.Tools = []*genai.Tool{metadataTool}
	model.SetMaxOutputTokens(maxOutputTokens)

	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == store.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}

	// Gemini's chat API needs a send turn. Use the final user message when
	// there is one; an empty or assistant-terminated conversation sends a
	// blank part with the full history attached.
	send := []genai.Part{genai.Text("")}
	if n := len(history); n > 0 && history[n-1].Role == "user" {
		send = history[n-1].Parts
		history = history[:n-1]
	}

	chat := model.StartChat()
	chat.History = history

	resp, err := chat.SendMessage(ctx, send...)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	var out CompletionResult
	var text strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				text.WriteString(string(p))
			case genai.FunctionCall:
				if p.Name != metadataToolName || out.ToolArgs != nil {
					continue
				}
				raw, err := json.Marshal(p.Args)
				if err != nil {
					log.Printf("Failed to re-serialize %s arguments: %v", metadataToolName, err)
					continue
				}
				out.ToolArgs = raw
			default:
				log.Printf("Gemini response part was not text or function call: %T", part)
			}
		}
	}
	out.Text = strings.TrimSpace(text.String())
	return out, nil
}
