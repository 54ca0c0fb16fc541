package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"bookbot/pkg/domain"
)

const (
	defaultFindLimit = 5
	maxFindLimit     = 10
	maxCompareIDs    = 5
)

// ErrConversationNotFound is returned when appending to a conversation that
// does not exist.
var ErrConversationNotFound = errors.New("conversation not found")

// GormStore implements Store using GORM. Postgres DSNs get the postgres
// driver; anything else is treated as a SQLite file path.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database DSN required")
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&BookModel{},
		&UserProfileModel{},
		&UserFactModel{},
		&ConversationModel{},
		&MessageModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// FindBooks filters the catalog by genre, budget, and page bounds.
// The shop id is accepted but not filtered on; the catalog currently serves a
// single shop.
func (s *GormStore) FindBooks(ctx context.Context, filter domain.BookFilter) ([]domain.BookSummary, error) {
	q := s.db.WithContext(ctx).Model(&BookModel{})
	if genre := strings.TrimSpace(filter.Genre); genre != "" {
		q = q.Where("LOWER(genres_primary) LIKE ?", "%"+strings.ToLower(genre)+"%")
	}
	if filter.BudgetMax > 0 {
		q = q.Where("price_vnd <= ?", filter.BudgetMax)
	}
	if filter.PageMin > 0 {
		q = q.Where("pages >= ?", filter.PageMin)
	}
	if filter.PageMax > 0 {
		q = q.Where("pages <= ?", filter.PageMax)
	}
	var models []BookModel
	if err := q.Order("rating_avg IS NULL, rating_avg DESC, price_vnd ASC").
		Limit(clampLimit(filter.Limit)).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.BookSummary, 0, len(models))
	for _, m := range models {
		res = append(res, summaryFromModel(m))
	}
	return res, nil
}

// GetBook retrieves the detail view of one book.
func (s *GormStore) GetBook(ctx context.Context, id string) (domain.BookDetail, bool, error) {
	var model BookModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.BookDetail{}, false, nil
		}
		return domain.BookDetail{}, false, err
	}
	return detailFromModel(model), true, nil
}

// CompareBooks returns summaries for up to five of the requested ids.
// Empty input yields an empty result, not an error.
func (s *GormStore) CompareBooks(ctx context.Context, ids []string) ([]domain.BookSummary, error) {
	if len(ids) == 0 {
		return []domain.BookSummary{}, nil
	}
	if len(ids) > maxCompareIDs {
		ids = ids[:maxCompareIDs]
	}
	var models []BookModel
	if err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("rating_avg IS NULL, rating_avg DESC, price_vnd ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.BookSummary, 0, len(models))
	for _, m := range models {
		res = append(res, summaryFromModel(m))
	}
	return res, nil
}

// SeedBooks bulk-upserts catalog rows. Existing ids are overwritten.
func (s *GormStore) SeedBooks(ctx context.Context, books []domain.BookDetail) error {
	if len(books) == 0 {
		return nil
	}
	models := make([]BookModel, 0, len(books))
	now := time.Now().UTC()
	for _, b := range books {
		m := bookToModel(b)
		m.CreatedAt = now
		m.UpdatedAt = now
		models = append(models, m)
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "authors", "genres_primary", "pages", "year", "publisher",
			"age_rating", "introduction", "short_summary", "price_vnd", "stock",
			"rating_avg", "updated_at",
		}),
	}).CreateInBatches(&models, 200).Error
}

// StartOrGetConversation fetches the conversation for (shop, session) or
// creates it. Concurrent calls for the same key resolve to one row via the
// unique index.
func (s *GormStore) StartOrGetConversation(ctx context.Context, shopID, userID, sessionID, titleHint string) (domain.Conversation, error) {
	db := s.db.WithContext(ctx)
	var model ConversationModel
	err := db.Where("shop_id = ? AND session_id = ?", shopID, sessionID).First(&model).Error
	if err == nil {
		return conversationFromModel(model), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Conversation{}, err
	}
	now := time.Now().UTC()
	model = ConversationModel{
		ShopID:    shopID,
		SessionID: sessionID,
		Title:     titleHint,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if trimmed := strings.TrimSpace(userID); trimmed != "" {
		model.UserID = &trimmed
	}
	// A concurrent create for the same key loses silently; the follow-up
	// fetch returns whichever row won.
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop_id"}, {Name: "session_id"}},
		DoNothing: true,
	}).Create(&model).Error; err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	if err := db.Where("shop_id = ? AND session_id = ?", shopID, sessionID).First(&model).Error; err != nil {
		return domain.Conversation{}, fmt.Errorf("reload conversation: %w", err)
	}
	return conversationFromModel(model), nil
}

// AppendMessage assigns the next turn index and persists the message in one
// transaction. The atomic counter increment takes the row lock that keeps
// concurrent appenders off the same index.
func (s *GormStore) AppendMessage(ctx context.Context, conversationID uint, role, content string, metadata map[string]any) (domain.Message, error) {
	var saved MessageModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ConversationModel{}).
			Where("id = ?", conversationID).
			Updates(map[string]any{
				"last_turn_index": gorm.Expr("last_turn_index + 1"),
				"updated_at":      time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConversationNotFound
		}
		var conv ConversationModel
		if err := tx.Select("last_turn_index").First(&conv, "id = ?", conversationID).Error; err != nil {
			return err
		}
		saved = MessageModel{
			ConversationID: conversationID,
			Role:           role,
			Content:        content,
			TurnIndex:      conv.LastTurnIndex,
			CreatedAt:      time.Now().UTC(),
		}
		if metadata != nil {
			raw, err := json.Marshal(metadata)
			if err != nil {
				return fmt.Errorf("encode message metadata: %w", err)
			}
			saved.Metadata = datatypes.JSON(raw)
		}
		return tx.Create(&saved).Error
	})
	if err != nil {
		return domain.Message{}, err
	}
	return messageFromModel(saved), nil
}

// RecentMessages returns the last `limit` turns in chronological order.
func (s *GormStore) RecentMessages(ctx context.Context, conversationID uint, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	var models []MessageModel
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("turn_index DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

// GetProfile looks up the preference profile for (shop, user).
func (s *GormStore) GetProfile(ctx context.Context, shopID, userID string) (domain.UserProfile, bool, error) {
	var model UserProfileModel
	if err := s.db.WithContext(ctx).
		Where("shop_id = ? AND user_id = ?", shopID, userID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.UserProfile{}, false, nil
		}
		return domain.UserProfile{}, false, err
	}
	return profileFromModel(model), true, nil
}

// GetOrCreateProfile lazily creates an empty profile on first access.
func (s *GormStore) GetOrCreateProfile(ctx context.Context, shopID, userID string) (domain.UserProfile, error) {
	profile, found, err := s.GetProfile(ctx, shopID, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if found {
		return profile, nil
	}
	now := time.Now().UTC()
	model := UserProfileModel{ShopID: shopID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&model).Error; err != nil {
		return domain.UserProfile{}, fmt.Errorf("create profile: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Where("shop_id = ? AND user_id = ?", shopID, userID).
		First(&model).Error; err != nil {
		return domain.UserProfile{}, fmt.Errorf("reload profile: %w", err)
	}
	return profileFromModel(model), nil
}

// UpsertProfile applies a partial update; nil patch fields keep their
// current values.
func (s *GormStore) UpsertProfile(ctx context.Context, shopID, userID string, patch domain.ProfilePatch) error {
	if _, err := s.GetOrCreateProfile(ctx, shopID, userID); err != nil {
		return err
	}
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.BudgetMin != nil {
		updates["budget_min"] = *patch.BudgetMin
	}
	if patch.BudgetMax != nil {
		updates["budget_max"] = *patch.BudgetMax
	}
	if patch.FavGenres != nil {
		updates["fav_genres"] = *patch.FavGenres
	}
	if patch.FavAuthors != nil {
		updates["fav_authors"] = *patch.FavAuthors
	}
	if patch.PageMin != nil {
		updates["page_min"] = *patch.PageMin
	}
	if patch.PageMax != nil {
		updates["page_max"] = *patch.PageMax
	}
	if patch.ContentAvoid != nil {
		updates["content_avoid"] = *patch.ContentAvoid
	}
	return s.db.WithContext(ctx).Model(&UserProfileModel{}).
		Where("shop_id = ? AND user_id = ?", shopID, userID).
		Updates(updates).Error
}

// GetUserFacts lists all remembered facts for (shop, user).
func (s *GormStore) GetUserFacts(ctx context.Context, shopID, userID string) ([]domain.UserFact, error) {
	var models []UserFactModel
	if err := s.db.WithContext(ctx).
		Where("shop_id = ? AND user_id = ?", shopID, userID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	facts := make([]domain.UserFact, 0, len(models))
	for _, m := range models {
		facts = append(facts, domain.UserFact{
			FactType:   m.FactType,
			FactValue:  m.FactValue,
			Confidence: m.Confidence,
		})
	}
	return facts, nil
}

// AddOrUpdateFact dedups by the exact (shop, user, type, value) identity:
// restating a fact refreshes confidence and timestamp instead of growing the
// table.
func (s *GormStore) AddOrUpdateFact(ctx context.Context, shopID, userID, factType, factValue string, confidence float64) (domain.FactStatus, error) {
	db := s.db.WithContext(ctx)
	var model UserFactModel
	err := db.Where("shop_id = ? AND user_id = ? AND fact_type = ? AND fact_value = ?",
		shopID, userID, factType, factValue).First(&model).Error
	if err == nil {
		if err := db.Model(&UserFactModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]any{
				"confidence": confidence,
				"updated_at": time.Now().UTC(),
			}).Error; err != nil {
			return "", err
		}
		return domain.FactUpdated, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	now := time.Now().UTC()
	model = UserFactModel{
		ShopID:     shopID,
		UserID:     userID,
		FactType:   factType,
		FactValue:  factValue,
		Confidence: confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.Create(&model).Error; err != nil {
		return "", err
	}
	return domain.FactAdded, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultFindLimit
	}
	if limit > maxFindLimit {
		return maxFindLimit
	}
	return limit
}

func summaryFromModel(m BookModel) domain.BookSummary {
	return domain.BookSummary{
		BookID:        m.ID,
		Title:         m.Title,
		Authors:       m.Authors,
		GenresPrimary: m.GenresPrimary,
		Pages:         m.Pages,
		PriceVND:      m.PriceVND,
		Stock:         m.Stock,
		RatingAvg:     m.RatingAvg,
	}
}

func detailFromModel(m BookModel) domain.BookDetail {
	return domain.BookDetail{
		BookSummary:  summaryFromModel(m),
		ShortSummary: m.ShortSummary,
		Introduction: m.Introduction,
		Publisher:    m.Publisher,
		Year:         m.Year,
	}
}

func bookToModel(b domain.BookDetail) BookModel {
	return BookModel{
		ID:            b.BookID,
		Title:         b.Title,
		Authors:       b.Authors,
		GenresPrimary: b.GenresPrimary,
		Pages:         b.Pages,
		Year:          b.Year,
		Publisher:     b.Publisher,
		Introduction:  b.Introduction,
		ShortSummary:  b.ShortSummary,
		PriceVND:      b.PriceVND,
		Stock:         b.Stock,
		RatingAvg:     b.RatingAvg,
	}
}

func conversationFromModel(m ConversationModel) domain.Conversation {
	userID := ""
	if m.UserID != nil {
		userID = *m.UserID
	}
	return domain.Conversation{
		ID:            m.ID,
		ShopID:        m.ShopID,
		UserID:        userID,
		SessionID:     m.SessionID,
		Title:         m.Title,
		LastSummary:   m.LastSummary,
		LastTurnIndex: m.LastTurnIndex,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	msg := domain.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		TurnIndex:      m.TurnIndex,
		CreatedAt:      m.CreatedAt,
	}
	if len(m.Metadata) > 0 {
		meta := map[string]any{}
		if err := json.Unmarshal(m.Metadata, &meta); err == nil && len(meta) > 0 {
			msg.Metadata = meta
		}
	}
	return msg
}

func profileFromModel(m UserProfileModel) domain.UserProfile {
	return domain.UserProfile{
		ShopID:       m.ShopID,
		UserID:       m.UserID,
		BudgetMin:    m.BudgetMin,
		BudgetMax:    m.BudgetMax,
		FavGenres:    m.FavGenres,
		FavAuthors:   m.FavAuthors,
		PageMin:      m.PageMin,
		PageMax:      m.PageMax,
		ContentAvoid: m.ContentAvoid,
	}
}
