// Package model defines data structures for the chat service.
package model

// Conversation is one chat thread owned by a subject.
type Conversation struct {
	ID       string `json:"id" dynamodbav:"id"`
	Title    string `json:"title" dynamodbav:"title"`
	Messages []Turn `json:"messages" dynamodbav:"messages"`
	// Unix milliseconds. Zero on conversations stored before they were tracked.
	CreatedAt int64 `json:"createdAt,omitempty" dynamodbav:"createdAt,omitempty"`
	UpdatedAt int64 `json:"updatedAt,omitempty" dynamodbav:"updatedAt,omitempty"`
}

// HasTurn reports whether a turn with the given id is already stored.
func (c *Conversation) HasTurn(id string) bool {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return true
		}
	}
	return false
}

// ChatListItem is a conversation without its turns.
type ChatListItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ChatRecord is the whole per-subject document held by the conversation store.
// Version is bumped on every successful write and used for conditional puts.
type ChatRecord struct {
	UserID  string         `json:"userId" dynamodbav:"userId"`
	Chats   []Conversation `json:"chats" dynamodbav:"chats"`
	Version int64          `json:"version" dynamodbav:"version"`
}

// Find returns the index of the conversation with the given id, or -1.
func (r *ChatRecord) Find(id string) int {
	for i := range r.Chats {
		if r.Chats[i].ID == id {
			return i
		}
	}
	return -1
}

// Conversation returns the conversation with the given id, or nil.
func (r *ChatRecord) Conversation(id string) *Conversation {
	if i := r.Find(id); i >= 0 {
		return &r.Chats[i]
	}
	return nil
}

// Summaries lists the record's conversations in stored order.
func (r *ChatRecord) Summaries() []ChatListItem {
	items := make([]ChatListItem, 0, len(r.Chats))
	for _, c := range r.Chats {
		items = append(items, ChatListItem{ID: c.ID, Title: c.Title})
	}
	return items
}

// Remove deletes the conversation with the given id and reports whether it existed.
func (r *ChatRecord) Remove(id string) bool {
	i := r.Find(id)
	if i < 0 {
		return false
	}
	r.Chats = append(r.Chats[:i], r.Chats[i+1:]...)
	return true
}

// Search match kinds.
const (
	MatchTitle   = "title"
	MatchContent = "content"
)

// SearchResult is one conversation matching a search query.
type SearchResult struct {
	ChatID         string  `json:"chatId"`
	Title          string  `json:"title"`
	MatchedContent string  `json:"matchedContent"`
	MatchType      string  `json:"matchType"`
	Score          float64 `json:"score"`
	CreatedAt      int64   `json:"createdAt,omitempty"`
	UpdatedAt      int64   `json:"updatedAt,omitempty"`
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"totalCount"`
	Query      string         `json:"query"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}
