package store

import (
	"context"

	"bookbot/pkg/domain"
)

// Store defines persistence operations for the catalog, conversations, and
// user memory. Every call opens, uses, and releases its own unit of work.
type Store interface {
	// catalog
	FindBooks(ctx context.Context, filter domain.BookFilter) ([]domain.BookSummary, error)
	GetBook(ctx context.Context, id string) (domain.BookDetail, bool, error)
	CompareBooks(ctx context.Context, ids []string) ([]domain.BookSummary, error)
	SeedBooks(ctx context.Context, books []domain.BookDetail) error

	// conversations
	StartOrGetConversation(ctx context.Context, shopID, userID, sessionID, titleHint string) (domain.Conversation, error)
	AppendMessage(ctx context.Context, conversationID uint, role, content string, metadata map[string]any) (domain.Message, error)
	RecentMessages(ctx context.Context, conversationID uint, limit int) ([]domain.Message, error)

	// user memory
	GetProfile(ctx context.Context, shopID, userID string) (domain.UserProfile, bool, error)
	GetOrCreateProfile(ctx context.Context, shopID, userID string) (domain.UserProfile, error)
	UpsertProfile(ctx context.Context, shopID, userID string, patch domain.ProfilePatch) error
	GetUserFacts(ctx context.Context, shopID, userID string) ([]domain.UserFact, error)
	AddOrUpdateFact(ctx context.Context, shopID, userID, factType, factValue string, confidence float64) (domain.FactStatus, error)
}
