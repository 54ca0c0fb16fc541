package app

import (
	"context"
	"fmt"

	"bookbot/pkg/domain"
)

// toolResult carries the raw payload to replay into the conversation as a
// tool turn, plus the books the reply can surface to the widget.
type toolResult struct {
	Payload any
	Books   []domain.BookSummary
}

// dispatchTool runs one directive against real data. The tool set is closed:
// anything outside it is ErrUnknownTool, never a best-effort guess.
func (a *App) dispatchTool(ctx context.Context, shopID, userID string, d Directive) (toolResult, error) {
	switch d.Tool {
	case "find_books":
		return a.toolFindBooks(ctx, shopID, d.Params)
	case "search_docs":
		return a.toolSearchDocs(d.Params), nil
	case "get_book_detail":
		return a.toolGetBookDetail(ctx, d.Params)
	case "compare_books":
		return a.toolCompareBooks(ctx, d.Params)
	case "add_user_fact":
		return a.toolAddUserFact(ctx, shopID, userID, d.Params)
	case "get_user_profile":
		return a.toolGetUserProfile(ctx, shopID, userID)
	default:
		return toolResult{}, fmt.Errorf("%w: %q", ErrUnknownTool, d.Tool)
	}
}

func (a *App) toolFindBooks(ctx context.Context, shopID string, params map[string]any) (toolResult, error) {
	filter := domain.BookFilter{
		ShopID:    shopID,
		Genre:     asString(params, "genre"),
		BudgetMax: asInt(params, "budget_max"),
		PageMin:   asInt(params, "page_min"),
		PageMax:   asInt(params, "page_max"),
		Limit:     asInt(params, "limit"),
	}
	books, err := a.store.FindBooks(ctx, filter)
	if err != nil {
		return toolResult{}, err
	}
	return toolResult{
		Payload: map[string]any{"books": books, "count": len(books)},
		Books:   books,
	}, nil
}

func (a *App) toolSearchDocs(params map[string]any) toolResult {
	query := asString(params, "query")
	topK := asInt(params, "top_k")
	prefix := asString(params, "source_prefix")
	docs := a.index.Search(query, topK, prefix)
	return toolResult{
		Payload: map[string]any{"documents": docs, "count": len(docs)},
	}
}

func (a *App) toolGetBookDetail(ctx context.Context, params map[string]any) (toolResult, error) {
	bookID := asString(params, "book_id")
	detail, ok, err := a.store.GetBook(ctx, bookID)
	if err != nil {
		return toolResult{}, err
	}
	if !ok {
		return toolResult{
			Payload: map[string]any{"found": false, "book_id": bookID},
		}, nil
	}
	return toolResult{
		Payload: map[string]any{"found": true, "book": detail},
		Books:   []domain.BookSummary{detail.BookSummary},
	}, nil
}

func (a *App) toolCompareBooks(ctx context.Context, params map[string]any) (toolResult, error) {
	ids := asStringSlice(params, "book_ids")
	books, err := a.store.CompareBooks(ctx, ids)
	if err != nil {
		return toolResult{}, err
	}
	return toolResult{
		Payload: map[string]any{"books": books, "count": len(books)},
		Books:   books,
	}, nil
}

func (a *App) toolAddUserFact(ctx context.Context, shopID, userID string, params map[string]any) (toolResult, error) {
	factType := asString(params, "fact_type")
	factValue := asString(params, "fact_value")
	// An omitted confidence means the model is sure, not that it is unsure.
	confidence := 1.0
	if _, ok := params["confidence"]; ok {
		confidence = asFloat(params, "confidence")
	}
	// A fact implies the user has a profile; create the empty row on first
	// contact so get_user_profile sees it.
	if _, err := a.store.GetOrCreateProfile(ctx, shopID, userID); err != nil {
		return toolResult{}, err
	}
	status, err := a.store.AddOrUpdateFact(ctx, shopID, userID, factType, factValue, confidence)
	if err != nil {
		return toolResult{}, err
	}
	if patch := profilePatchForFact(factType, factValue); patch != nil {
		if err := a.store.UpsertProfile(ctx, shopID, userID, *patch); err != nil {
			return toolResult{}, err
		}
	}
	return toolResult{
		Payload: map[string]any{"status": string(status), "fact_type": factType, "fact_value": factValue},
	}, nil
}

func (a *App) toolGetUserProfile(ctx context.Context, shopID, userID string) (toolResult, error) {
	profile, ok, err := a.store.GetProfile(ctx, shopID, userID)
	if err != nil {
		return toolResult{}, err
	}
	if !ok {
		return toolResult{
			Payload: map[string]any{"found": false},
		}, nil
	}
	facts, err := a.store.GetUserFacts(ctx, shopID, userID)
	if err != nil {
		return toolResult{}, err
	}
	return toolResult{
		Payload: map[string]any{"found": true, "profile": profile, "facts": facts},
	}, nil
}

// profilePatchForFact mirrors well-known fact types onto the structured
// profile columns, so the rule path and find_books defaults can read them
// without scanning the fact list.
func profilePatchForFact(factType, factValue string) *domain.ProfilePatch {
	if factValue == "" {
		return nil
	}
	switch factType {
	case "fav_genre":
		return &domain.ProfilePatch{FavGenres: &factValue}
	case "fav_author":
		return &domain.ProfilePatch{FavAuthors: &factValue}
	case "content_avoid":
		return &domain.ProfilePatch{ContentAvoid: &factValue}
	}
	return nil
}

// Param coercion is deliberately permissive: models emit numbers as floats,
// ints as strings are rare but keys go missing all the time. A missing or
// malformed value degrades to the zero value, never to a failed turn.

func asString(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func asInt(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func asFloat(params map[string]any, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func asStringSlice(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
