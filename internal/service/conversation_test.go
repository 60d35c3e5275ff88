package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ragchat/internal/model"
	"github.com/capitalize-ai/ragchat/internal/store"
	"github.com/capitalize-ai/ragchat/pkg/logger"
)

func TestConversationService(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	svc := NewConversationService(st, 3, logger.NewNop())

	items, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)

	rec, _ := st.Get(ctx, "u1")
	rec.Chats = []model.Conversation{
		{ID: "c2", Title: "second", Messages: alternatingTurns(2)},
		{ID: "c1", Title: "first"},
	}
	require.NoError(t, st.Put(ctx, rec))

	items, err = svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []model.ChatListItem{{ID: "c2", Title: "second"}, {ID: "c1", Title: "first"}}, items)

	conv, err := svc.Get(ctx, "u1", "c2")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2)

	conv, err = svc.Get(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.NotNil(t, conv.Messages)

	_, err = svc.Get(ctx, "u1", "nope")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	require.NoError(t, svc.Delete(ctx, "u1", "c2"))
	assert.ErrorIs(t, svc.Delete(ctx, "u1", "c2"), ErrConversationNotFound)

	items, _ = svc.List(ctx, "u1")
	assert.Equal(t, []model.ChatListItem{{ID: "c1", Title: "first"}}, items)
}

func TestConversationService_DeleteRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	rec, _ := st.Get(ctx, "u1")
	rec.Chats = []model.Conversation{{ID: "c1"}}
	require.NoError(t, st.Put(ctx, rec))

	st.conflicts = 1
	svc := NewConversationService(st, 3, logger.NewNop())
	require.NoError(t, svc.Delete(ctx, "u1", "c1"))

	st.conflicts = 10
	rec, _ = st.Get(ctx, "u1")
	rec.Chats = []model.Conversation{{ID: "c2"}}
	require.NoError(t, st.MemoryStore.Put(ctx, rec))
	assert.ErrorIs(t, svc.Delete(ctx, "u1", "c2"), store.ErrVersionConflict)
}

func TestUploadKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	key := UploadKey("sub-1", "my photo (1).JPG", at, id)
	assert.Equal(t, "uploads/sub-1/1700000000123-00000000-0000-0000-0000-000000000001-my_photo__1_.JPG", key)

	assert.Equal(t, "file", SanitizeFileName(""))
	assert.Equal(t, ".._passwd", SanitizeFileName("../passwd"))
	long := SanitizeFileName(strings.Repeat("x", 150) + ".pdf")
	assert.Len(t, long, 100)
	assert.True(t, strings.HasSuffix(long, ".pdf"))
}

func TestUploadService_Presign(t *testing.T) {
	svc := NewUploadService(&fakeObjects{}, time.Hour, 5*1024*1024, logger.NewNop())
	fixed := time.Unix(1700000000, 0)
	svc.now = func() time.Time { return fixed }

	resp, err := svc.Presign(context.Background(), "u1", &model.UploadRequest{
		FileName: "scan.pdf", FileType: "application/pdf", FileSize: 1024,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.S3Key, "uploads/u1/1700000000000-"))
	assert.True(t, strings.HasSuffix(resp.S3Key, "-scan.pdf"))
	assert.Equal(t, "PUT", resp.Method)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, fixed.Add(time.Hour).Unix(), resp.ExpiresAt)
	assert.Equal(t, "application/pdf", resp.Headers["Content-Type"])
	assert.Contains(t, resp.UploadURL, resp.S3Key)
}

func TestUploadService_Rejects(t *testing.T) {
	svc := NewUploadService(&fakeObjects{}, time.Hour, 5*1024*1024, logger.NewNop())

	_, err := svc.Presign(context.Background(), "u1", &model.UploadRequest{
		FileName: "a.exe", FileType: "application/x-msdownload", FileSize: 10,
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Presign(context.Background(), "u1", &model.UploadRequest{
		FileName: "huge.png", FileType: "image/png", FileSize: 6 * 1024 * 1024,
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "Internal server error", ErrorMessage(errBoom))
	assert.Equal(t, ErrEmptyRequest.Error(), ErrorMessage(ErrEmptyRequest))
	assert.Empty(t, ErrorMessage(nil))
}

func TestConversationService_Search(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	svc := NewConversationService(st, 3, logger.NewNop())

	rec, _ := st.Get(ctx, "u1")
	rec.Chats = []model.Conversation{
		{ID: "c1", Title: "Weekend plans", UpdatedAt: 300, Messages: []model.Turn{
			{ID: "t1", Role: model.RoleUser, Content: "Where should we hike on Saturday?"},
			{ID: "t2", Role: model.RoleAssistant, Content: "Try the ridge trail."},
		}},
		{ID: "c2", Title: "Budget review", UpdatedAt: 200, Messages: []model.Turn{
			{ID: "t3", Role: model.RoleUser, Content: "Summarize the quarterly budget and any hiking stipend."},
			{ID: "t4", Role: model.RoleAssistant, Content: "The hiking stipend is unchanged."},
		}},
		{ID: "c3", Title: "Hiking gear", CreatedAt: 50, UpdatedAt: 100},
		{ID: "c4", Title: "unrelated", UpdatedAt: 400},
	}
	require.NoError(t, st.Put(ctx, rec))

	resp, err := svc.Search(ctx, "u1", "  HIK ", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "HIK", resp.Query)
	assert.Equal(t, DefaultSearchLimit, resp.Limit)
	assert.Equal(t, 3, resp.TotalCount)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, "c3", resp.Results[0].ChatID)
	assert.Equal(t, model.MatchTitle, resp.Results[0].MatchType)
	assert.Equal(t, "Hiking gear", resp.Results[0].MatchedContent)
	assert.Equal(t, 0.9, resp.Results[0].Score)
	assert.Equal(t, int64(50), resp.Results[0].CreatedAt)

	// two matching turns outrank one
	assert.Equal(t, "c2", resp.Results[1].ChatID)
	assert.Equal(t, model.MatchContent, resp.Results[1].MatchType)
	assert.Contains(t, resp.Results[1].MatchedContent, "hiking stipend")
	assert.Equal(t, "c1", resp.Results[2].ChatID)
	assert.Greater(t, resp.Results[1].Score, resp.Results[2].Score)

	page, err := svc.Search(ctx, "u1", "hik", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "c2", page.Results[0].ChatID)

	past, err := svc.Search(ctx, "u1", "hik", 10, 10)
	require.NoError(t, err)
	assert.NotNil(t, past.Results)
	assert.Empty(t, past.Results)

	capped, err := svc.Search(ctx, "u1", "hik", 1000, -5)
	require.NoError(t, err)
	assert.Equal(t, MaxSearchLimit, capped.Limit)
	assert.Equal(t, 0, capped.Offset)

	other, err := svc.Search(ctx, "u2", "hik", 0, 0)
	require.NoError(t, err)
	assert.Zero(t, other.TotalCount)
}

func TestConversationService_SearchRejectsBadQuery(t *testing.T) {
	svc := NewConversationService(newCountingStore(), 3, logger.NewNop())

	_, err := svc.Search(context.Background(), "u1", "   ", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Search(context.Background(), "u1", strings.Repeat("x", 201), 0, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSearchSnippet(t *testing.T) {
	long := strings.Repeat("a", 100) + "needle" + strings.Repeat("b", 100)
	conv := &model.Conversation{ID: "c", Messages: []model.Turn{{Content: long}}}

	res, ok := matchConversation(conv, "needle")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(res.MatchedContent, "…"))
	assert.True(t, strings.HasSuffix(res.MatchedContent, "…"))
	assert.Contains(t, res.MatchedContent, "needle")
	assert.Equal(t, 6+2*snippetRadius+2, len([]rune(res.MatchedContent)))

	short := &model.Conversation{ID: "c", Messages: []model.Turn{{Content: "Ärger mit NEEDLE"}}}
	res, ok = matchConversation(short, "needle")
	require.True(t, ok)
	assert.Equal(t, "Ärger mit NEEDLE", res.MatchedContent)
}

func TestUploadService_PresignDownload(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{
		"uploads/u1/1700000000000-abc-scan.pdf": []byte("%PDF"),
		"uploads/u2/secret.png":                 []byte("png"),
	}}
	svc := NewUploadService(objects, 15*time.Minute, 0, logger.NewNop())
	fixed := time.Unix(1700000000, 0)
	svc.now = func() time.Time { return fixed }

	resp, err := svc.PresignDownload(context.Background(), "u1", &model.DownloadRequest{S3Key: "uploads/u1/1700000000000-abc-scan.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "presignedUrl", resp.Method)
	assert.Contains(t, resp.PresignedURL, "scan.pdf")
	assert.Equal(t, int64(900), resp.ExpiresIn)
	assert.Equal(t, fixed.Add(15*time.Minute).UnixMilli(), resp.ExpiresAt)
	assert.Equal(t, "uploads/u1/1700000000000-abc-scan.pdf", resp.S3Key)

	_, err = svc.PresignDownload(context.Background(), "u1", &model.DownloadRequest{S3Key: "uploads/u1/gone.png"})
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = svc.PresignDownload(context.Background(), "u1", &model.DownloadRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUploadService_PresignDownloadForeignKey(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{"uploads/u2/secret.png": []byte("png")}}
	svc := NewUploadService(objects, time.Minute, 0, logger.NewNop())

	for _, key := range []string{
		"uploads/u2/secret.png",
		"uploads/u1/../u2/secret.png",
		"uploads/u1",
		"secret.png",
	} {
		_, err := svc.PresignDownload(context.Background(), "u1", &model.DownloadRequest{S3Key: key})
		assert.ErrorIs(t, err, ErrObjectForbidden, key)
	}
	assert.Zero(t, objects.downloads, "foreign keys never reach storage")
}
