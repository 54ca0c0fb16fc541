package domain

import "time"

// Roles a stored message can carry. Tool messages hold the JSON-encoded
// result of a backend tool call, replayed verbatim into the grounding phase.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// BookSummary is the compact view returned by catalog search and comparison.
type BookSummary struct {
	BookID        string   `json:"book_id"`
	Title         string   `json:"title"`
	Authors       string   `json:"authors"`
	GenresPrimary string   `json:"genres_primary"`
	Pages         int      `json:"pages"`
	PriceVND      int      `json:"price_vnd"`
	Stock         int      `json:"stock"`
	RatingAvg     *float64 `json:"rating_avg"`
}

// BookDetail adds the long-form fields omitted from the summary view.
type BookDetail struct {
	BookSummary
	ShortSummary string `json:"short_summary"`
	Introduction string `json:"introduction"`
	Publisher    string `json:"publisher"`
	Year         int    `json:"year"`
}

// BookFilter narrows a catalog query. Zero values disable each filter.
type BookFilter struct {
	ShopID    string `json:"shop_id"`
	Genre     string `json:"genre"`
	BudgetMax int    `json:"budget_max"`
	PageMin   int    `json:"page_min"`
	PageMax   int    `json:"page_max"`
	Limit     int    `json:"limit"`
}

// UserProfile holds soft preference hints for one (shop, user) pair.
type UserProfile struct {
	ShopID       string `json:"shop_id"`
	UserID       string `json:"user_id"`
	BudgetMin    *int   `json:"budget_min"`
	BudgetMax    *int   `json:"budget_max"`
	FavGenres    string `json:"fav_genres"`
	FavAuthors   string `json:"fav_authors"`
	PageMin      *int   `json:"page_min"`
	PageMax      *int   `json:"page_max"`
	ContentAvoid string `json:"content_avoid"`
}

// ProfilePatch is a partial profile update; nil fields are left untouched.
type ProfilePatch struct {
	BudgetMin    *int
	BudgetMax    *int
	FavGenres    *string
	FavAuthors   *string
	PageMin      *int
	PageMax      *int
	ContentAvoid *string
}

// UserFact is one remembered key-value fact about a user.
type UserFact struct {
	FactType   string  `json:"fact_type"`
	FactValue  string  `json:"fact_value"`
	Confidence float64 `json:"confidence"`
}

// FactStatus reports whether AddOrUpdateFact inserted or refreshed a row.
type FactStatus string

const (
	FactAdded   FactStatus = "added"
	FactUpdated FactStatus = "updated"
)

// Conversation is one chat thread keyed by (shop, session).
type Conversation struct {
	ID            uint      `json:"id"`
	ShopID        string    `json:"shop_id"`
	UserID        string    `json:"user_id"`
	SessionID     string    `json:"session_id"`
	Title         string    `json:"title"`
	LastSummary   string    `json:"last_summary"`
	LastTurnIndex int       `json:"last_turn_index"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message is one turn inside a conversation. TurnIndex is assigned by the
// store and is strictly increasing per conversation, starting at 1.
type Message struct {
	ID             uint           `json:"id"`
	ConversationID uint           `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	TurnIndex      int            `json:"turn_index"`
	CreatedAt      time.Time      `json:"created_at"`
}
