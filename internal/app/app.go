package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"bookbot/internal/util"
	"bookbot/pkg/ai"
	"bookbot/pkg/domain"
	"bookbot/pkg/retrieval"
	"bookbot/pkg/store"
)

const (
	// History window for the decision call. Kept short so the model focuses
	// on the current request rather than stale turns.
	decisionTurns = 8
	// History window for the grounding call. Wider so the freshly appended
	// tool turn is always inside it.
	finalTurns = 10

	ruleFindLimit = 3
)

// App wires the catalog store, the retrieval index, and the LLM gateway into
// the three chat paths the HTTP layer exposes.
type App struct {
	store         store.Store
	index         *retrieval.Index
	gateway       ai.ChatCompleter
	defaultShopID string
}

func New(st store.Store, idx *retrieval.Index, gateway ai.ChatCompleter, defaultShopID string) *App {
	return &App{
		store:         st,
		index:         idx,
		gateway:       gateway,
		defaultShopID: defaultShopID,
	}
}

// ChatRequest is one inbound user turn. SessionID groups turns into a
// conversation; UserID keys the preference memory.
type ChatRequest struct {
	ShopID    string `json:"shop_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse is the assistant turn produced for one request. UsedBooks
// carries the catalog rows the reply was built from, so the widget can render
// cards next to the text.
type ChatResponse struct {
	Reply          string               `json:"reply"`
	ConversationID uint                 `json:"conversation_id"`
	TurnIndex      int                  `json:"turn_index"`
	UsedBooks      []domain.BookSummary `json:"used_books,omitempty"`
}

func (a *App) shopID(req ChatRequest) string {
	if req.ShopID != "" {
		return req.ShopID
	}
	return a.defaultShopID
}

// ChatRules answers without any model call: parse a budget and a genre out of
// the raw text, hit the catalog, and render a canned reply. It exists as the
// zero-dependency fallback path and as a latency baseline.
func (a *App) ChatRules(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	shopID := a.shopID(req)
	conv, err := a.store.StartOrGetConversation(ctx, shopID, req.UserID, req.SessionID, req.Message)
	if err != nil {
		return ChatResponse{}, err
	}
	if _, err := a.store.AppendMessage(ctx, conv.ID, domain.RoleUser, req.Message, nil); err != nil {
		return ChatResponse{}, err
	}

	filter := domain.BookFilter{
		ShopID:    shopID,
		Genre:     detectGenre(req.Message),
		BudgetMax: parseBudget(req.Message),
		Limit:     ruleFindLimit,
	}
	books, err := a.store.FindBooks(ctx, filter)
	if err != nil {
		return ChatResponse{}, err
	}

	reply := ruleNoMatchReply
	if len(books) > 0 {
		reply = formatRuleReply(books)
	}
	msg, err := a.store.AppendMessage(ctx, conv.ID, domain.RoleAssistant, reply, usedBooksMetadata(books))
	if err != nil {
		return ChatResponse{}, err
	}
	return ChatResponse{
		Reply:          reply,
		ConversationID: conv.ID,
		TurnIndex:      msg.TurnIndex,
		UsedBooks:      books,
	}, nil
}

// ChatLLM sends the persona prompt plus recent history straight to the model,
// with no tool access. Useful for chit-chat and for probing the gateway.
func (a *App) ChatLLM(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if a.gateway == nil {
		return ChatResponse{}, ErrGatewayNotConfigured
	}
	shopID := a.shopID(req)
	conv, err := a.store.StartOrGetConversation(ctx, shopID, req.UserID, req.SessionID, req.Message)
	if err != nil {
		return ChatResponse{}, err
	}
	if _, err := a.store.AppendMessage(ctx, conv.ID, domain.RoleUser, req.Message, nil); err != nil {
		return ChatResponse{}, err
	}

	history, err := a.store.RecentMessages(ctx, conv.ID, decisionTurns)
	if err != nil {
		return ChatResponse{}, err
	}
	messages := append([]ai.ChatMessage{{Role: "system", Content: personaPrompt}}, chatHistory(history)...)
	reply, err := a.gateway.Complete(ctx, messages)
	if err != nil {
		return ChatResponse{}, err
	}

	msg, err := a.store.AppendMessage(ctx, conv.ID, domain.RoleAssistant, reply, nil)
	if err != nil {
		return ChatResponse{}, err
	}
	return ChatResponse{Reply: reply, ConversationID: conv.ID, TurnIndex: msg.TurnIndex}, nil
}

// ChatOrchestrated runs the full two-phase loop: a decision call that may emit
// a tool directive, the tool itself, then a grounding call over the history
// that now contains the tool result. A plain-text decision short-circuits the
// loop and is returned verbatim.
func (a *App) ChatOrchestrated(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if a.gateway == nil {
		return ChatResponse{}, ErrGatewayNotConfigured
	}
	log := util.LoggerFromContext(ctx)
	shopID := a.shopID(req)

	conv, err := a.store.StartOrGetConversation(ctx, shopID, req.UserID, req.SessionID, req.Message)
	if err != nil {
		return ChatResponse{}, err
	}
	if _, err := a.store.AppendMessage(ctx, conv.ID, domain.RoleUser, req.Message, nil); err != nil {
		return ChatResponse{}, err
	}

	history, err := a.store.RecentMessages(ctx, conv.ID, decisionTurns)
	if err != nil {
		return ChatResponse{}, err
	}
	decisionMsgs := append([]ai.ChatMessage{{Role: "system", Content: decisionPrompt}}, chatHistory(history)...)
	raw, err := a.gateway.Complete(ctx, decisionMsgs)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("decision call: %w", err)
	}

	directive, ok := ParseDirective(raw)
	if !ok {
		// The model chose to answer directly. That answer is final.
		msg, err := a.store.AppendMessage(ctx, conv.ID, domain.RoleAssistant, raw, nil)
		if err != nil {
			return ChatResponse{}, err
		}
		return ChatResponse{Reply: raw, ConversationID: conv.ID, TurnIndex: msg.TurnIndex}, nil
	}
	log.Info("tool_directive", slog.String("tool", directive.Tool), slog.Uint64("conversation_id", uint64(conv.ID)))

	result, err := a.dispatchTool(ctx, shopID, req.UserID, directive)
	if err != nil {
		return ChatResponse{}, err
	}
	// The stored tool turn carries the whole exchange, not just the result:
	// the grounding phase and the audit trail both need to see which tool ran
	// with which arguments.
	envelope, err := json.Marshal(map[string]any{
		"tool":   directive.Tool,
		"params": directive.Params,
		"result": result.Payload,
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("encode tool result: %w", err)
	}
	toolMeta := map[string]any{"tool": directive.Tool}
	if _, err := a.store.AppendMessage(ctx, conv.ID, domain.RoleTool, string(envelope), toolMeta); err != nil {
		return ChatResponse{}, err
	}

	history, err = a.store.RecentMessages(ctx, conv.ID, finalTurns)
	if err != nil {
		return ChatResponse{}, err
	}
	groundingMsgs := append([]ai.ChatMessage{{Role: "system", Content: groundingPrompt}}, chatHistory(history)...)
	reply, err := a.gateway.Complete(ctx, groundingMsgs)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("grounding call: %w", err)
	}

	meta := usedBooksMetadata(result.Books)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["tool"] = directive.Tool
	msg, err := a.store.AppendMessage(ctx, conv.ID, domain.RoleAssistant, reply, meta)
	if err != nil {
		return ChatResponse{}, err
	}
	return ChatResponse{
		Reply:          reply,
		ConversationID: conv.ID,
		TurnIndex:      msg.TurnIndex,
		UsedBooks:      result.Books,
	}, nil
}

// FindBooks and SearchDocs back the debug endpoints; they bypass the chat
// loop entirely.
func (a *App) FindBooks(ctx context.Context, filter domain.BookFilter) ([]domain.BookSummary, error) {
	if filter.ShopID == "" {
		filter.ShopID = a.defaultShopID
	}
	return a.store.FindBooks(ctx, filter)
}

func (a *App) SearchDocs(query string, topK int, sourcePrefix string) []retrieval.ScoredDocument {
	return a.index.Search(query, topK, sourcePrefix)
}

// RecentConversationMessages returns the newest turns of the conversation
// keyed by (shop, session), oldest first.
func (a *App) RecentConversationMessages(ctx context.Context, shopID, userID, sessionID string, limit int) ([]domain.Message, error) {
	if shopID == "" {
		shopID = a.defaultShopID
	}
	conv, err := a.store.StartOrGetConversation(ctx, shopID, userID, sessionID, "")
	if err != nil {
		return nil, err
	}
	return a.store.RecentMessages(ctx, conv.ID, limit)
}

// chatHistory converts stored turns into gateway messages. Tool turns are
// replayed as user turns with a marker prefix, since plain completion
// endpoints reject the tool role without a call id.
func chatHistory(msgs []domain.Message) []ai.ChatMessage {
	out := make([]ai.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == domain.RoleTool {
			out = append(out, ai.ChatMessage{Role: "user", Content: "Kết quả tool (JSON): " + m.Content})
			continue
		}
		out = append(out, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func usedBooksMetadata(books []domain.BookSummary) map[string]any {
	if len(books) == 0 {
		return nil
	}
	ids := make([]string, 0, len(books))
	for _, b := range books {
		ids = append(ids, b.BookID)
	}
	return map[string]any{"used_books": ids}
}
