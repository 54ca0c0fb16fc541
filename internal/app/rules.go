package app

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"bookbot/pkg/domain"
)

const defaultRuleBudget = 200_000

var budgetPattern = regexp.MustCompile(`\d+k?`)

// parseBudget extracts the largest integer in the message as an implied
// budget ceiling. A trailing "k" shorthand multiplies by 1000
// ("tầm 150k" → 150000) and thousands-separator punctuation is stripped
// ("200.000" → 200000). Returns defaultRuleBudget when no number appears.
func parseBudget(text string) int {
	normalized := strings.ToLower(text)
	normalized = strings.ReplaceAll(normalized, ".", "")
	normalized = strings.ReplaceAll(normalized, ",", "")
	best := 0
	for _, match := range budgetPattern.FindAllString(normalized, -1) {
		scale := 1
		if strings.HasSuffix(match, "k") {
			match = strings.TrimSuffix(match, "k")
			scale = 1000
		}
		n, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		if v := n * scale; v > best {
			best = v
		}
	}
	if best == 0 {
		return defaultRuleBudget
	}
	return best
}

// genreKeywords maps message keywords to catalog genres, checked in order:
// finance terms first, then the rest. First match wins. The keyword sets and
// their priority are load-bearing behavior; extend with care.
var genreKeywords = []struct {
	genre    string
	keywords []string
}{
	{"Finance", []string{"tài chính", "đầu tư", "chứng khoán", "finance", "investment"}},
	{"Classic", []string{"classic", "kinh điển"}},
	{"Fiction", []string{"fiction", "tiểu thuyết"}},
	{"Self-help", []string{"self-help", "kỹ năng sống", "phát triển bản thân"}},
	{"Nonfiction", []string{"nonfiction", "phi hư cấu"}},
	{"Mystery", []string{"mystery", "trinh thám"}},
}

// detectGenre keyword-matches the message to an implied genre, or "" when
// nothing matches.
func detectGenre(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range genreKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.genre
			}
		}
	}
	return ""
}

const ruleNoMatchReply = "Hiện tại mình chưa tìm được cuốn nào khớp tiêu chí bạn nói. " +
	"Bạn thử cho mình biết thể loại cụ thể hơn (vd: Classic, Fiction, Self-help) " +
	"hoặc tầm giá bạn muốn nhé?"

// formatRuleReply renders the deterministic recommendation template with
// inline price citations.
func formatRuleReply(books []domain.BookSummary) string {
	if len(books) == 0 {
		return ruleNoMatchReply
	}
	lines := make([]string, 0, len(books)+2)
	lines = append(lines, "Mình gợi ý bạn vài tựa phù hợp nè:")
	for _, b := range books {
		authors := b.Authors
		if strings.TrimSpace(authors) == "" {
			authors = "N/A"
		}
		lines = append(lines, fmt.Sprintf(
			"- **%s** của %s (khoảng %d trang, thể loại %s). Giá ~ %dđ [%s.price_vnd]",
			b.Title, authors, b.Pages, b.GenresPrimary, b.PriceVND, b.BookID,
		))
	}
	lines = append(lines, "Bạn thấy cuốn nào hợp gu nhất, hoặc muốn mình so sánh kỹ hơn giữa 2–3 cuốn không?")
	return strings.Join(lines, "\n")
}
