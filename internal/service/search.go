package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ragchat/internal/model"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
	maxQueryLen        = 200
	snippetRadius      = 40
)

// Search finds the subject's conversations whose title or turn text contains
// query, ignoring case. A conversation appears once: a title match ranks above
// any content match, and more matching turns rank higher. Ties keep the most
// recently updated conversation first.
func (s *ConversationService) Search(ctx context.Context, userID, query string, limit, offset int) (*model.SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(query) > maxQueryLen {
		return nil, fmt.Errorf("%w: search query exceeds %d characters", ErrInvalidRequest, maxQueryLen)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	if offset < 0 {
		offset = 0
	}

	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chats: %w", err)
	}

	needle := foldRunes(query)
	var matches []model.SearchResult
	for i := range rec.Chats {
		if m, ok := matchConversation(&rec.Chats[i], needle); ok {
			matches = append(matches, m)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].UpdatedAt > matches[j].UpdatedAt
	})

	resp := &model.SearchResponse{
		Results:    []model.SearchResult{},
		TotalCount: len(matches),
		Query:      query,
		Limit:      limit,
		Offset:     offset,
	}
	if offset < len(matches) {
		end := offset + limit
		if end > len(matches) {
			end = len(matches)
		}
		resp.Results = matches[offset:end]
	}

	s.logger.Debug("search completed",
		zap.String("user_id", userID),
		zap.Int("total", resp.TotalCount),
		zap.Int("returned", len(resp.Results)),
	)
	return resp, nil
}

func matchConversation(conv *model.Conversation, needle string) (model.SearchResult, bool) {
	res := model.SearchResult{
		ChatID:    conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}

	title := foldRunes(conv.Title)
	if strings.Contains(title, needle) {
		res.MatchType = model.MatchTitle
		res.MatchedContent = conv.Title
		switch {
		case title == needle:
			res.Score = 1.0
		case strings.HasPrefix(title, needle):
			res.Score = 0.9
		default:
			res.Score = 0.8
		}
		return res, true
	}

	hits := 0
	for i := range conv.Messages {
		content := conv.Messages[i].Content
		folded := foldRunes(content)
		at := strings.Index(folded, needle)
		if at < 0 {
			continue
		}
		if hits == 0 {
			start := utf8.RuneCountInString(folded[:at])
			res.MatchedContent = snippet([]rune(content), start, utf8.RuneCountInString(needle))
		}
		hits++
	}
	if hits == 0 {
		return res, false
	}
	res.MatchType = model.MatchContent
	res.Score = 0.5 + 0.05*float64(min(hits-1, 4))
	return res, true
}

// foldRunes lowercases rune by rune so rune offsets match the input.
func foldRunes(s string) string {
	return strings.Map(unicode.ToLower, s)
}

func snippet(text []rune, start, length int) string {
	from := start - snippetRadius
	to := start + length + snippetRadius
	prefix, suffix := "…", "…"
	if from <= 0 {
		from, prefix = 0, ""
	}
	if to >= len(text) {
		to, suffix = len(text), ""
	}
	return prefix + strings.TrimSpace(string(text[from:to])) + suffix
}
