package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat-go/internal/model"
	"shopchat-go/pkg/events"
)

type fakeArchiveRepo struct {
	saved    map[string]*model.ArchivedEntry
	order    []string
	feedback map[string]model.Feedback
	saveErr  error
}

func newFakeArchiveRepo() *fakeArchiveRepo {
	return &fakeArchiveRepo{saved: map[string]*model.ArchivedEntry{}, feedback: map[string]model.Feedback{}}
}

func (r *fakeArchiveRepo) Save(_ context.Context, e *model.ArchivedEntry) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	if _, ok := r.saved[e.EntryID]; ok {
		return nil
	}
	r.saved[e.EntryID] = e
	r.order = append(r.order, e.EntryID)
	return nil
}

func (r *fakeArchiveRepo) UpdateFeedback(_ context.Context, entryID string, fb model.Feedback) error {
	r.feedback[entryID] = fb
	return nil
}

func (r *fakeArchiveRepo) ListByUser(_ context.Context, userID string, offset, limit int) ([]model.ArchivedEntry, int64, error) {
	var all []model.ArchivedEntry
	for _, id := range r.order {
		if r.saved[id].UserID == userID {
			all = append(all, *r.saved[id])
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

type fakeIndexer struct {
	docs []model.EsEntryDocument
}

func (i *fakeIndexer) IndexEntry(_ context.Context, doc model.EsEntryDocument) error {
	i.docs = append(i.docs, doc)
	return nil
}

func appended(userID string, e model.ConversationEntry) events.TranscriptEvent {
	return events.TranscriptEvent{Type: events.EntryAppended, UserID: userID, Entry: &e}
}

func TestArchiveEntryWritesMySQLAndIndex(t *testing.T) {
	repo, idx := newFakeArchiveRepo(), &fakeIndexer{}
	svc := NewArchiveService(repo, idx)
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	entry := model.ConversationEntry{ID: "e-1", Role: model.RoleAssistant, Content: "추천 상품입니다", SessionID: "s-1",
		MessageType: model.MessageTypeRecommendation, Products: []model.Product{{ID: 7}}, CreatedAt: at}

	require.NoError(t, svc.Handle(context.Background(), appended("u", entry)))
	// 重投同一事件是安全的
	require.NoError(t, svc.Handle(context.Background(), appended("u", entry)))

	require.Len(t, repo.saved, 1)
	rec := repo.saved["e-1"]
	assert.Equal(t, "u", rec.UserID)
	assert.Equal(t, "assistant", rec.Role)
	var payload model.ConversationEntry
	require.NoError(t, json.Unmarshal([]byte(rec.Payload), &payload))
	assert.Equal(t, int64(7), payload.Products[0].ID)

	require.NotEmpty(t, idx.docs)
	assert.Equal(t, model.EsEntryDocument{EntryID: "e-1", UserID: "u", SessionID: "s-1", Role: "assistant",
		Content: "추천 상품입니다", MessageType: model.MessageTypeRecommendation, CreatedAt: at}, idx.docs[0])
}

func TestArchiveSkipsIndexingErrorEntries(t *testing.T) {
	repo, idx := newFakeArchiveRepo(), &fakeIndexer{}
	svc := NewArchiveService(repo, idx)

	entry := model.ConversationEntry{ID: "e-err", Role: model.RoleAssistant, ErrorKind: model.ErrorTimeout}
	require.NoError(t, svc.Handle(context.Background(), appended("u", entry)))
	assert.Len(t, repo.saved, 1)
	assert.Empty(t, idx.docs)
}

func TestArchiveFeedbackAndFailures(t *testing.T) {
	repo := newFakeArchiveRepo()
	svc := NewArchiveService(repo, nil)

	ev := events.TranscriptEvent{Type: events.FeedbackRecorded, UserID: "u", EntryID: "e-1", Feedback: model.FeedbackLike}
	require.NoError(t, svc.Handle(context.Background(), ev))
	assert.Equal(t, model.FeedbackLike, repo.feedback["e-1"])

	repo.saveErr = errors.New("mysql down")
	err := svc.Handle(context.Background(), appended("u", model.ConversationEntry{ID: "e-2"}))
	assert.ErrorIs(t, err, repo.saveErr)

	assert.NoError(t, svc.Handle(context.Background(), events.TranscriptEvent{Type: "unknown"}))
	assert.NoError(t, svc.Handle(context.Background(), events.TranscriptEvent{Type: events.EntryAppended}))
}

func TestHistoryPagination(t *testing.T) {
	repo := newFakeArchiveRepo()
	svc := NewArchiveService(repo, nil)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, svc.Handle(context.Background(), appended("u", model.ConversationEntry{ID: id})))
	}
	require.NoError(t, svc.Handle(context.Background(), appended("other", model.ConversationEntry{ID: "x"})))

	page, err := svc.History(context.Background(), "u", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "c", page.Entries[0].EntryID)

	page, err = svc.History(context.Background(), "u", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Size)
	assert.Len(t, page.Entries, 3)
}
