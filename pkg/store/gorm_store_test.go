package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"bookbot/pkg/domain"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "bookbot_test.db") + "?_busy_timeout=5000&_fk=1"
	s, err := NewGormStore(dsn)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	return s
}

func rating(v float64) *float64 { return &v }

func seedCatalog(t *testing.T, s *GormStore) {
	t.Helper()
	books := []domain.BookDetail{
		{BookSummary: domain.BookSummary{BookID: "B001", Title: "Sách Test 1", PriceVND: 50000, Pages: 100, GenresPrimary: "Fiction", RatingAvg: rating(4.5), Stock: 10}, ShortSummary: "Summary 1", Introduction: "Intro 1"},
		{BookSummary: domain.BookSummary{BookID: "B002", Title: "Sách Test 2", PriceVND: 150000, Pages: 300, GenresPrimary: "Fiction", RatingAvg: rating(4.0), Stock: 5}, ShortSummary: "Summary 2", Introduction: "Intro 2"},
		{BookSummary: domain.BookSummary{BookID: "B003", Title: "Sách Test 3", PriceVND: 200000, Pages: 500, GenresPrimary: "Science", RatingAvg: rating(3.5), Stock: 0}, ShortSummary: "Summary 3", Introduction: "Intro 3"},
		{BookSummary: domain.BookSummary{BookID: "B004", Title: "Sách Test 4", PriceVND: 300000, Pages: 200, GenresPrimary: "Fiction", RatingAvg: rating(5.0), Stock: 2}, ShortSummary: "Summary 4", Introduction: "Intro 4"},
		{BookSummary: domain.BookSummary{BookID: "B005", Title: "Sách Test 5", PriceVND: 40000, Pages: 150, GenresPrimary: "History", RatingAvg: rating(4.2), Stock: 20}, ShortSummary: "Summary 5", Introduction: "Intro 5"},
		{BookSummary: domain.BookSummary{BookID: "B006", Title: "Sách Test 6", PriceVND: 60000, Pages: 100, GenresPrimary: "History", RatingAvg: rating(4.1), Stock: 10}, ShortSummary: "Summary 6", Introduction: "Intro 6"},
	}
	if err := s.SeedBooks(context.Background(), books); err != nil {
		t.Fatalf("seed books: %v", err)
	}
}

func TestFindBooksBudgetFilter(t *testing.T) {
	s := newTestStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	res, err := s.FindBooks(ctx, domain.BookFilter{BudgetMax: 100000, Limit: 5})
	if err != nil {
		t.Fatalf("find books: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 books under 100k, got %d", len(res))
	}
	for _, b := range res {
		if b.PriceVND > 100000 {
			t.Fatalf("book %s priced %d exceeds budget", b.BookID, b.PriceVND)
		}
	}
	// rating desc, price asc: B001 (4.5) > B005 (4.2) > B006 (4.1)
	want := []string{"B001", "B005", "B006"}
	for i, id := range want {
		if res[i].BookID != id {
			t.Fatalf("unexpected order at %d: got %s want %s", i, res[i].BookID, id)
		}
	}
}

func TestFindBooksBudgetZeroOrAbsentIsNoOp(t *testing.T) {
	s := newTestStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	all, err := s.FindBooks(ctx, domain.BookFilter{Limit: 10})
	if err != nil {
		t.Fatalf("find books: %v", err)
	}
	for _, budget := range []int{0, -1, -100000} {
		res, err := s.FindBooks(ctx, domain.BookFilter{BudgetMax: budget, Limit: 10})
		if err != nil {
			t.Fatalf("find books budget=%d: %v", budget, err)
		}
		if len(res) != len(all) {
			t.Fatalf("budget=%d changed result count: %d vs %d", budget, len(res), len(all))
		}
		for i := range res {
			if res[i].BookID != all[i].BookID {
				t.Fatalf("budget=%d changed ordering at %d", budget, i)
			}
		}
	}
}

func TestFindBooksGenreFilterCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	for _, genre := range []string{"Fiction", "fiction", "FICT"} {
		res, err := s.FindBooks(ctx, domain.BookFilter{Genre: genre, Limit: 10})
		if err != nil {
			t.Fatalf("find books genre=%q: %v", genre, err)
		}
		if len(res) != 3 {
			t.Fatalf("genre=%q: expected 3 fiction books, got %d", genre, len(res))
		}
	}
}

func TestFindBooksLimitClamp(t *testing.T) {
	s := newTestStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	cases := []struct {
		limit int
		want  int
	}{
		{limit: -5, want: 5},  // non-positive defaults to 5
		{limit: 0, want: 5},
		{limit: 2, want: 2},
		{limit: 100, want: 6}, // clamped to 10, then bounded by 6 rows
	}
	for _, c := range cases {
		res, err := s.FindBooks(ctx, domain.BookFilter{Limit: c.limit})
		if err != nil {
			t.Fatalf("find books limit=%d: %v", c.limit, err)
		}
		if len(res) != c.want {
			t.Fatalf("limit=%d: got %d rows, want %d", c.limit, len(res), c.want)
		}
	}
}

func TestFindBooksPageBounds(t *testing.T) {
	s := newTestStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	res, err := s.FindBooks(ctx, domain.BookFilter{PageMin: 150, PageMax: 300, Limit: 10})
	if err != nil {
		t.Fatalf("find books: %v", err)
	}
	for _, b := range res {
		if b.Pages < 150 || b.Pages > 300 {
			t.Fatalf("book %s with %d pages escaped the bounds", b.BookID, b.Pages)
		}
	}
	// Non-positive bounds are ignored, not applied.
	res, err = s.FindBooks(ctx, domain.BookFilter{PageMin: -10, PageMax: -1, Limit: 10})
	if err != nil {
		t.Fatalf("find books: %v", err)
	}
	if len(res) != 6 {
		t.Fatalf("negative page bounds should be no-ops, got %d rows", len(res))
	}
}

func TestGetBookDetail(t *testing.T) {
	s := newTestStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	detail, found, err := s.GetBook(ctx, "B001")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if !found {
		t.Fatalf("expected B001 to exist")
	}
	if detail.Introduction != "Intro 1" || detail.ShortSummary != "Summary 1" {
		t.Fatalf("detail view missing long-form fields: %+v", detail)
	}

	_, found, err = s.GetBook(ctx, "B999")
	if err != nil {
		t.Fatalf("get missing book: %v", err)
	}
	if found {
		t.Fatalf("B999 should not exist")
	}
}

func TestCompareBooks(t *testing.T) {
	s := newTestStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	res, err := s.CompareBooks(ctx, []string{"B001", "B002"})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 books, got %d", len(res))
	}

	res, err = s.CompareBooks(ctx, nil)
	if err != nil {
		t.Fatalf("compare empty: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("empty input must yield empty output, got %d", len(res))
	}

	res, err = s.CompareBooks(ctx, []string{"B001", "B002", "B003", "B004", "B005", "B006"})
	if err != nil {
		t.Fatalf("compare many: %v", err)
	}
	if len(res) != 5 {
		t.Fatalf("input beyond 5 ids must be truncated, got %d", len(res))
	}
}

func TestStartOrGetConversationIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.StartOrGetConversation(ctx, "shop1", "user1", "sess-1", "Chat tư vấn sách")
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	if first.ID == 0 {
		t.Fatalf("expected assigned conversation id")
	}
	second, err := s.StartOrGetConversation(ctx, "shop1", "user1", "sess-1", "другой title")
	if err != nil {
		t.Fatalf("reopen conversation: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("same (shop, session) must map to one conversation: %d vs %d", second.ID, first.ID)
	}
	other, err := s.StartOrGetConversation(ctx, "shop1", "user1", "sess-2", "")
	if err != nil {
		t.Fatalf("start second conversation: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("different sessions must not share a conversation")
	}
}

func TestAppendMessageTurnIndexSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.StartOrGetConversation(ctx, "shop1", "user1", "sess-turns", "")
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	for i := 1; i <= 5; i++ {
		msg, err := s.AppendMessage(ctx, conv.ID, domain.RoleUser, "msg", nil)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if msg.TurnIndex != i {
			t.Fatalf("turn %d got index %d", i, msg.TurnIndex)
		}
	}
}

func TestAppendMessageConcurrentNoDuplicateIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.StartOrGetConversation(ctx, "shop1", "", "sess-conc", "")
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	const appenders = 8
	var wg sync.WaitGroup
	indices := make(chan int, appenders)
	for i := 0; i < appenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := s.AppendMessage(ctx, conv.ID, domain.RoleUser, "hello", nil)
			if err != nil {
				t.Errorf("concurrent append: %v", err)
				return
			}
			indices <- msg.TurnIndex
		}()
	}
	wg.Wait()
	close(indices)
	seen := map[int]bool{}
	count := 0
	for idx := range indices {
		if seen[idx] {
			t.Fatalf("duplicate turn index %d", idx)
		}
		seen[idx] = true
		count++
	}
	for i := 1; i <= count; i++ {
		if !seen[i] {
			t.Fatalf("turn index %d missing from 1..%d sequence", i, count)
		}
	}
}

func TestAppendMessageMissingConversation(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AppendMessage(context.Background(), 4242, domain.RoleUser, "hi", nil); err != ErrConversationNotFound {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestRecentMessagesOldestFirstBounded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.StartOrGetConversation(ctx, "shop1", "", "sess-recent", "")
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	contents := []string{"a", "b", "c", "d", "e"}
	for _, c := range contents {
		if _, err := s.AppendMessage(ctx, conv.ID, domain.RoleUser, c, nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	msgs, err := s.RecentMessages(ctx, conv.ID, 3)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"c", "d", "e"} {
		if msgs[i].Content != want {
			t.Fatalf("position %d: got %q want %q", i, msgs[i].Content, want)
		}
		if i > 0 && msgs[i].TurnIndex <= msgs[i-1].TurnIndex {
			t.Fatalf("messages not in chronological order")
		}
	}
}

func TestAppendMessagePersistsToolMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.StartOrGetConversation(ctx, "shop1", "", "sess-meta", "")
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	meta := map[string]any{"tool": "find_books", "count": float64(2)}
	if _, err := s.AppendMessage(ctx, conv.ID, domain.RoleTool, `{"tool":"find_books"}`, meta); err != nil {
		t.Fatalf("append tool message: %v", err)
	}
	msgs, err := s.RecentMessages(ctx, conv.ID, 1)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if msgs[0].Role != domain.RoleTool {
		t.Fatalf("expected tool role, got %q", msgs[0].Role)
	}
	if msgs[0].Metadata["tool"] != "find_books" {
		t.Fatalf("metadata not replayed: %+v", msgs[0].Metadata)
	}
}

func TestProfilePartialUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	budget := 100000
	genres := "Fiction"
	if err := s.UpsertProfile(ctx, "shop1", "user1", domain.ProfilePatch{BudgetMax: &budget, FavGenres: &genres}); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	// Second patch touches only one field; the rest must survive.
	newBudget := 250000
	if err := s.UpsertProfile(ctx, "shop1", "user1", domain.ProfilePatch{BudgetMax: &newBudget}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	profile, found, err := s.GetProfile(ctx, "shop1", "user1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if !found {
		t.Fatalf("expected profile row")
	}
	if profile.BudgetMax == nil || *profile.BudgetMax != 250000 {
		t.Fatalf("budget_max not updated: %+v", profile.BudgetMax)
	}
	if profile.FavGenres != "Fiction" {
		t.Fatalf("untouched field overwritten: %q", profile.FavGenres)
	}

	_, found, err = s.GetProfile(ctx, "shop1", "user999")
	if err != nil {
		t.Fatalf("get missing profile: %v", err)
	}
	if found {
		t.Fatalf("user999 should have no profile")
	}
}

func TestGetOrCreateProfileLazy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.GetOrCreateProfile(ctx, "shop1", "fresh-user")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if created.UserID != "fresh-user" {
		t.Fatalf("unexpected profile: %+v", created)
	}
	again, err := s.GetOrCreateProfile(ctx, "shop1", "fresh-user")
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if again.ShopID != created.ShopID || again.UserID != created.UserID {
		t.Fatalf("get-or-create not idempotent")
	}
}

func TestAddOrUpdateFactDedupsByIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	status, err := s.AddOrUpdateFact(ctx, "shop1", "user1", "genre_like", "Horror", 0.8)
	if err != nil {
		t.Fatalf("add fact: %v", err)
	}
	if status != domain.FactAdded {
		t.Fatalf("expected added, got %q", status)
	}

	status, err = s.AddOrUpdateFact(ctx, "shop1", "user1", "genre_like", "Horror", 0.99)
	if err != nil {
		t.Fatalf("update fact: %v", err)
	}
	if status != domain.FactUpdated {
		t.Fatalf("expected updated, got %q", status)
	}

	facts, err := s.GetUserFacts(ctx, "shop1", "user1")
	if err != nil {
		t.Fatalf("get facts: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("identity dedup failed: %d rows", len(facts))
	}
	if facts[0].Confidence != 0.99 {
		t.Fatalf("confidence not refreshed: %v", facts[0].Confidence)
	}

	// A different value is a new fact.
	if _, err := s.AddOrUpdateFact(ctx, "shop1", "user1", "genre_like", "Romance", 0.5); err != nil {
		t.Fatalf("add second fact: %v", err)
	}
	facts, err = s.GetUserFacts(ctx, "shop1", "user1")
	if err != nil {
		t.Fatalf("get facts: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("expected 2 distinct facts, got %d", len(facts))
	}
}
