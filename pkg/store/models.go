package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type BookModel struct {
	ID            string `gorm:"primaryKey"`
	Title         string `gorm:"type:text;not null"`
	Authors       string `gorm:"type:text"`
	GenresPrimary string `gorm:"index"`
	Pages         int
	Year          int
	Publisher     string `gorm:"type:text"`
	AgeRating     *int
	Introduction  string `gorm:"type:text"`
	ShortSummary  string `gorm:"type:text"`
	PriceVND      int    `gorm:"column:price_vnd"`
	Stock         int
	RatingAvg     *float64
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time
}

type UserProfileModel struct {
	ID           uint   `gorm:"primaryKey"`
	ShopID       string `gorm:"not null;uniqueIndex:uq_shop_user"`
	UserID       string `gorm:"not null;uniqueIndex:uq_shop_user"`
	BudgetMin    *int
	BudgetMax    *int
	FavGenres    string `gorm:"type:text"`
	FavAuthors   string `gorm:"type:text"`
	PageMin      *int
	PageMax      *int
	ContentAvoid string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type UserFactModel struct {
	ID         uint    `gorm:"primaryKey"`
	ShopID     string  `gorm:"not null;index:idx_fact_owner"`
	UserID     string  `gorm:"not null;index:idx_fact_owner"`
	FactType   string  `gorm:"type:text;not null"`
	FactValue  string  `gorm:"type:text;not null"`
	Confidence float64 `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time
}

type ConversationModel struct {
	ID            uint   `gorm:"primaryKey"`
	ShopID        string `gorm:"not null;uniqueIndex:uq_shop_session"`
	SessionID     string `gorm:"not null;uniqueIndex:uq_shop_session"`
	UserID        *string
	Title         string `gorm:"type:text"`
	LastSummary   string `gorm:"type:text"`
	LastTurnIndex int    `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time
	Messages      []MessageModel `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

type MessageModel struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID uint   `gorm:"not null;index"`
	Role           string `gorm:"size:16;not null"`
	Content        string `gorm:"type:text;not null"`
	Metadata       datatypes.JSON
	TurnIndex      int       `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;index"`
}
