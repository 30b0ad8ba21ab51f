package core

import (
	"context"
	"encoding/json"
	"log"

	"redtape.au/redtape/internal/store"
)

const (
	chatSystemInstruction = "You are RedTape, an assistant that helps people in Australia navigate " +
		"government compliance requirements across federal, state and local levels. " +
		"Give practical, plainly worded guidance grounded in Australian regulation. " +
		"When you reference an obligation, name the issuing agency. " +
		"Use the emit_ui_metadata tool to attach challenge areas, citations, jurisdictions, " +
		"checklist suggestions, and to request a context-collection form when more detail " +
		"about the user's situation would improve your answer. " +
		"If you are not confident about a requirement, say so rather than guessing."

	noPortfolioSentence = "No portfolio context supplied."

	// Character budget for the serialized portfolio appended to the system
	// instruction.
	portfolioSummaryBudget = 1500

	emptyReplyFallback = "My apologies — it appears the relevant paperwork has been misplaced " +
		"somewhere between departments. Could you try asking that again?"
)

// Turn is one forwarded conversation entry after filtering.
type Turn struct {
	Role    store.MessageRole
	Content string
}

// CompletionResult carries the model's text and, when the metadata tool was
// invoked, its raw arguments. ToolArgs is untrusted until validated.
type CompletionResult struct {
	Text     string
	ToolArgs []byte
}

// CompletionClient is the upstream LLM boundary; the genai-backed LLMService
// implements it in production and tests substitute a mock.
type CompletionClient interface {
	Complete(ctx context.Context, turns []Turn, instruction string) (CompletionResult, error)
}

// IncomingMessage is a raw conversation entry as received from the client.
// Content is deliberately untyped: anything that is not a string is dropped
// by the filter rather than rejected.
type IncomingMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ChatReply is the response envelope for one assistant turn.
type ChatReply struct {
	Content  string               `json:"content"`
	Metadata *store.ReplyMetadata `json:"metadata,omitempty"`
	ShowForm store.FormKind       `json:"showForm,omitempty"`
}

type ChatService struct {
	llm CompletionClient
}

// NewChatService accepts a nil client; requests then degrade to the
// misconfiguration error instead of crashing at startup.
func NewChatService(llm CompletionClient) *ChatService {
	return &ChatService{llm: llm}
}

// FilterTurns keeps only user/assistant entries whose content is a non-empty
// string. Everything else is silently dropped; an all-invalid input yields an
// empty conversation, not an error.
func FilterTurns(msgs []IncomingMessage) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		role := store.MessageRole(m.Role)
		if role != store.RoleUser && role != store.RoleAssistant {
			continue
		}
		content, ok := m.Content.(string)
		if !ok || content == "" {
			continue
		}
		turns = append(turns, Turn{Role: role, Content: content})
	}
	return turns
}

// Respond forwards the filtered conversation and portfolio summary to the
// model and assembles the reply envelope.
func (s *ChatService) Respond(ctx context.Context, msgs []IncomingMessage, portfolio any) (*ChatReply, error) {
	if s.llm == nil {
		return nil, NewMisconfigured("chat service is not configured")
	}

	turns := FilterTurns(msgs)
	instruction := instructionFor(portfolio)

	result, err := s.llm.Complete(ctx, turns, instruction)
	if err != nil {
		log.Printf("Chat completion failed: %v", err)
		// The chat endpoint's contract reports upstream failure as 500.
		return nil, NewUpstream("the assistant is unavailable right now", err).WithStatus(500)
	}

	reply := &ChatReply{Content: result.Text}
	if reply.Content == "" {
		reply.Content = emptyReplyFallback
	}

	if len(result.ToolArgs) > 0 {
		md, err := ParseReplyMetadata(result.ToolArgs)
		if err != nil {
			log.Printf("Discarding reply metadata: %v", err)
		} else if md != nil {
			reply.Metadata = md
			reply.ShowForm = md.ShowForm
		}
	}
	return reply, nil
}

func instructionFor(portfolio any) string {
	summary := summarizePortfolio(portfolio)
	if summary == "" {
		return chatSystemInstruction + "\n\n" + noPortfolioSentence
	}
	return chatSystemInstruction + "\n\nCurrent user portfolio:\n" + summary
}

// summarizePortfolio serializes the portfolio compactly, pruning empty
// fields first, and truncates to the character budget. Returns "" when
// nothing meaningful is present.
func summarizePortfolio(portfolio any) string {
	if portfolio == nil {
		return ""
	}

	// Round-trip through JSON so typed snapshots and raw client maps are
	// treated identically.
	raw, err := json.Marshal(portfolio)
	if err != nil {
		log.Printf("Failed to serialize portfolio for summary: %v", err)
		return ""
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return ""
	}

	pruned := pruneEmpty(generic)
	if pruned == nil {
		return ""
	}
	out, err := json.Marshal(pruned)
	if err != nil {
		return ""
	}

	summary := string(out)
	if len(summary) > portfolioSummaryBudget {
		summary = summary[:portfolioSummaryBudget]
	}
	return summary
}

// pruneEmpty strips nils, empty strings, zero numbers, false flags and empty
// containers recursively, so a structurally present but blank portfolio still
// counts as "no context".
func pruneEmpty(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if p := pruneEmpty(item); p != nil {
				out[k] = p
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if p := pruneEmpty(item); p != nil {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return val
	case float64:
		if val == 0 {
			return nil
		}
		return val
	case bool:
		if !val {
			return nil
		}
		return val
	case nil:
		return nil
	default:
		return val
	}
}
