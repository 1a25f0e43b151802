package notification

import (
	"context"
	"teamhub-realtime-svc/src/internal/cache"
	"teamhub-realtime-svc/src/internal/config"
	"teamhub-realtime-svc/src/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- mocks ---

type mockRepository struct{ mock.Mock }

func (m *mockRepository) Create(ctx context.Context, n *Notification) (*Notification, error) {
	args := m.Called(ctx, n)
	if created, _ := args.Get(0).(*Notification); created != nil {
		return created, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRepository) FindByActionHash(ctx context.Context, userID, actionHash string) (*Notification, error) {
	args := m.Called(ctx, userID, actionHash)
	if n, _ := args.Get(0).(*Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRepository) Update(ctx context.Context, id primitive.ObjectID, update bson.M) (*Notification, error) {
	args := m.Called(ctx, id, update)
	if n, _ := args.Get(0).(*Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRepository) List(ctx context.Context, userID string, limit, skip int) ([]*Notification, error) {
	args := m.Called(ctx, userID, limit, skip)
	if list, _ := args.Get(0).([]*Notification); list != nil {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRepository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockRepository) Count(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockRepository) MarkRead(ctx context.Context, id primitive.ObjectID, userID string) (*Notification, error) {
	args := m.Called(ctx, id, userID)
	if n, _ := args.Get(0).(*Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockRepository) SoftDelete(ctx context.Context, id primitive.ObjectID, userID string) (*Notification, error) {
	args := m.Called(ctx, id, userID)
	if n, _ := args.Get(0).(*Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRepository) SoftDeleteAll(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockRepository) EnsureIndexes(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockCache struct{ mock.Mock }

func (m *mockCache) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockCache) SaveUnreadCount(ctx context.Context, userID string, count int64) error {
	return m.Called(ctx, userID, count).Error(0)
}
func (m *mockCache) InvalidateUnreadCount(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockCache) SaveConnectionStats(ctx context.Context, stats *cache.ConnectionStatsSnapshot) error {
	return m.Called(ctx, stats).Error(0)
}
func (m *mockCache) GetConnectionStats(ctx context.Context) (*cache.ConnectionStatsSnapshot, error) {
	args := m.Called(ctx)
	if s, _ := args.Get(0).(*cache.ConnectionStatsSnapshot); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

func newSvc(repo *mockRepository, cacheSvc *mockCache) Service {
	cfg := &config.Configuration{}
	cfg.App.Timeout = 5
	return NewService(repo, cacheSvc, cfg)
}

func removalFields(teamName string) Fields {
	return Fields{
		Type:     TypeTeamRemoval,
		Title:    "Removed from Team",
		Message:  "You have been removed from '" + teamName + "'",
		TeamID:   "t1",
		TeamName: teamName,
		Severity: SeverityWarning,
	}
}

// --- tests ---

func TestActionHashFormat(t *testing.T) {
	assert.Equal(t, "team_removal:u1:t1", ActionHash(TypeTeamRemoval, "u1", "t1"))
	assert.Equal(t, "channel_member_added:u2:c9", ActionHash(TypeChannelMemberAdded, "u2", "c9"))
}

func TestRecordOccurrenceFirstTime(t *testing.T) {
	repo := &mockRepository{}
	cacheSvc := &mockCache{}
	svc := newSvc(repo, cacheSvc)

	hash := ActionHash(TypeTeamRemoval, "u1", "t1")
	repo.On("FindByActionHash", mock.Anything, "u1", hash).Return(nil, nil).Once()
	repo.On("Create", mock.Anything, mock.MatchedBy(func(n *Notification) bool {
		return n.UserID == "u1" &&
			n.ActionHash == hash &&
			n.OccurrenceCount == 1 &&
			!n.IsRead
	})).Return(&Notification{
		ID:              primitive.NewObjectID(),
		UserID:          "u1",
		ActionHash:      hash,
		OccurrenceCount: 1,
	}, nil).Once()
	cacheSvc.On("InvalidateUnreadCount", mock.Anything, "u1").Return(nil).Once()

	created, err := svc.RecordOccurrence(context.Background(), "u1", hash, removalFields("Alpha"))
	require.NoError(t, err)
	assert.Equal(t, 1, created.OccurrenceCount)

	repo.AssertExpectations(t)
	cacheSvc.AssertExpectations(t)
}

func TestRecordOccurrenceRepeatBumpsCounterAndUnreads(t *testing.T) {
	repo := &mockRepository{}
	cacheSvc := &mockCache{}
	svc := newSvc(repo, cacheSvc)

	hash := ActionHash(TypeTeamRemoval, "u1", "t1")
	existingID := primitive.NewObjectID()

	// The prior record was read in between; the repeat surfaces unread.
	existing := &Notification{
		ID:              existingID,
		UserID:          "u1",
		ActionHash:      hash,
		OccurrenceCount: 1,
		IsRead:          true,
	}

	repo.On("FindByActionHash", mock.Anything, "u1", hash).Return(existing, nil).Once()
	repo.On("Update", mock.Anything, existingID, mock.MatchedBy(func(update bson.M) bool {
		set, ok := update["$set"].(bson.M)
		if !ok {
			return false
		}
		inc, ok := update["$inc"].(bson.M)
		if !ok {
			return false
		}
		return set["is_read"] == false &&
			set["is_resolved"] == false &&
			set["message"] == "You have been removed from 'Alpha Renamed'" &&
			inc["occurrence_count"] == 1
	})).Return(&Notification{
		ID:              existingID,
		UserID:          "u1",
		ActionHash:      hash,
		OccurrenceCount: 2,
		IsRead:          false,
	}, nil).Once()
	cacheSvc.On("InvalidateUnreadCount", mock.Anything, "u1").Return(nil).Once()

	updated, err := svc.RecordOccurrence(context.Background(), "u1", hash, removalFields("Alpha Renamed"))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.OccurrenceCount)
	assert.False(t, updated.IsRead)

	repo.AssertExpectations(t)
}

func TestRecordOccurrenceInsertRaceFallsBackToUpdate(t *testing.T) {
	repo := &mockRepository{}
	cacheSvc := &mockCache{}
	svc := newSvc(repo, cacheSvc)

	hash := ActionHash(TypeTeamRemoval, "u1", "t1")
	winnerID := primitive.NewObjectID()
	winner := &Notification{ID: winnerID, UserID: "u1", ActionHash: hash, OccurrenceCount: 1}

	repo.On("FindByActionHash", mock.Anything, "u1", hash).Return(nil, nil).Once()
	repo.On("Create", mock.Anything, mock.Anything).Return(nil, models.ErrDuplicateRecord).Once()
	repo.On("FindByActionHash", mock.Anything, "u1", hash).Return(winner, nil).Once()
	repo.On("Update", mock.Anything, winnerID, mock.Anything).Return(&Notification{
		ID:              winnerID,
		OccurrenceCount: 2,
	}, nil).Once()
	cacheSvc.On("InvalidateUnreadCount", mock.Anything, "u1").Return(nil).Once()

	updated, err := svc.RecordOccurrence(context.Background(), "u1", hash, removalFields("Alpha"))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.OccurrenceCount)

	repo.AssertExpectations(t)
}

func TestResolveMarksResolvedOnce(t *testing.T) {
	repo := &mockRepository{}
	cacheSvc := &mockCache{}
	svc := newSvc(repo, cacheSvc)

	hash := ActionHash(TypeTeamRemoval, "u1", "t1")
	existingID := primitive.NewObjectID()
	existing := &Notification{ID: existingID, UserID: "u1", ActionHash: hash}

	repo.On("FindByActionHash", mock.Anything, "u1", hash).Return(existing, nil).Once()
	repo.On("Update", mock.Anything, existingID, mock.MatchedBy(func(update bson.M) bool {
		set, ok := update["$set"].(bson.M)
		if !ok {
			return false
		}
		_, hasResolvedAt := set["resolved_at"].(time.Time)
		return set["is_resolved"] == true && hasResolvedAt
	})).Return(&Notification{ID: existingID, IsResolved: true}, nil).Once()

	resolved, err := svc.ResolveTeamRemoval(context.Background(), "u1", "t1")
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)

	repo.AssertExpectations(t)
}

func TestResolveAlreadyResolvedIsNoOp(t *testing.T) {
	repo := &mockRepository{}
	cacheSvc := &mockCache{}
	svc := newSvc(repo, cacheSvc)

	hash := ActionHash(TypeTeamRemoval, "u1", "t1")
	existing := &Notification{ID: primitive.NewObjectID(), IsResolved: true}

	repo.On("FindByActionHash", mock.Anything, "u1", hash).Return(existing, nil).Once()

	n, err := svc.Resolve(context.Background(), "u1", hash)
	require.NoError(t, err)
	assert.True(t, n.IsResolved)

	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveMissingRecord(t *testing.T) {
	repo := &mockRepository{}
	cacheSvc := &mockCache{}
	svc := newSvc(repo, cacheSvc)

	repo.On("FindByActionHash", mock.Anything, "u1", mock.Anything).Return(nil, nil).Once()

	n, err := svc.Resolve(context.Background(), "u1", "team_removal:u1:t9")
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestMarkReadInvalidID(t *testing.T) {
	repo := &mockRepository{}
	cacheSvc := &mockCache{}
	svc := newSvc(repo, cacheSvc)

	_, err := svc.MarkRead(context.Background(), "not-an-object-id", "u1")
	assert.ErrorIs(t, err, models.ErrNotificationMissing)
}

func TestListForUserUsesCachedUnreadCount(t *testing.T) {
	repo := &mockRepository{}
	cacheSvc := &mockCache{}
	svc := newSvc(repo, cacheSvc)

	records := []*Notification{
		{UserID: "u1", Message: "hello", OccurrenceCount: 3},
		{UserID: "u1", Message: "solo", OccurrenceCount: 1},
	}

	repo.On("List", mock.Anything, "u1", 50, 0).Return(records, nil).Once()
	cacheSvc.On("GetUnreadCount", mock.Anything, "u1").Return(int64(5), nil).Once()

	response, err := svc.ListForUser(context.Background(), "u1", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(5), response.UnreadCount)
	require.Len(t, response.Notifications, 2)
	assert.True(t, response.Notifications[0].IsRepeated)
	assert.Equal(t, "hello (3 times)", response.Notifications[0].DisplayMessage)
	assert.False(t, response.Notifications[1].IsRepeated)
	assert.Equal(t, "solo", response.Notifications[1].DisplayMessage)
	assert.Equal(t, 1, response.Pagination.Page)
	assert.False(t, response.Pagination.HasMore)

	repo.AssertNotCalled(t, "UnreadCount", mock.Anything, mock.Anything)
}

func TestUnreadCountCacheMissFallsBackToRepository(t *testing.T) {
	repo := &mockRepository{}
	cacheSvc := &mockCache{}
	svc := newSvc(repo, cacheSvc)

	repo.On("List", mock.Anything, "u1", 50, 0).Return([]*Notification{}, nil).Once()
	cacheSvc.On("GetUnreadCount", mock.Anything, "u1").Return(int64(-1), nil).Once()
	repo.On("UnreadCount", mock.Anything, "u1").Return(int64(7), nil).Once()
	cacheSvc.On("SaveUnreadCount", mock.Anything, "u1", int64(7)).Return(nil).Once()

	response, err := svc.ListForUser(context.Background(), "u1", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(7), response.UnreadCount)

	repo.AssertExpectations(t)
	cacheSvc.AssertExpectations(t)
}

func TestStatsForUser(t *testing.T) {
	repo := &mockRepository{}
	cacheSvc := &mockCache{}
	svc := newSvc(repo, cacheSvc)

	cacheSvc.On("GetUnreadCount", mock.Anything, "u1").Return(int64(2), nil).Once()
	repo.On("Count", mock.Anything, "u1").Return(int64(9), nil).Once()

	stats, err := svc.StatsForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.UnreadCount)
	assert.Equal(t, int64(9), stats.TotalCount)
}

func TestDeleteAllInvalidatesCache(t *testing.T) {
	repo := &mockRepository{}
	cacheSvc := &mockCache{}
	svc := newSvc(repo, cacheSvc)

	repo.On("SoftDeleteAll", mock.Anything, "u1").Return(int64(4), nil).Once()
	cacheSvc.On("InvalidateUnreadCount", mock.Anything, "u1").Return(nil).Once()

	modified, err := svc.DeleteAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), modified)

	cacheSvc.AssertExpectations(t)
}

func TestPersistenceErrorPropagates(t *testing.T) {
	repo := &mockRepository{}
	cacheSvc := &mockCache{}
	svc := newSvc(repo, cacheSvc)

	hash := ActionHash(TypeTeamRemoval, "u1", "t1")
	repo.On("FindByActionHash", mock.Anything, "u1", hash).Return(nil, models.ErrDatabaseQuery).Once()

	_, err := svc.RecordOccurrence(context.Background(), "u1", hash, removalFields("Alpha"))
	assert.ErrorIs(t, err, models.ErrDatabaseQuery)
}
