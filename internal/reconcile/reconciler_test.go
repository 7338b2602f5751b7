package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/spice-reconcile/internal/common"
	"github.com/Veraticus/spice-reconcile/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func pending(id string, amount int64, day int) model.Transaction {
	return model.Transaction{
		ID:                id,
		BatchID:           "b1",
		Amount:            decimal.NewFromInt(amount),
		Date:              day0.AddDate(0, 0, day),
		Description:       "MERCADO",
		PredictedCategory: model.StringPtr("Mercado"),
		ReviewStatus:      model.StatusPending,
	}
}

func dupGroup(txns ...model.Transaction) model.DuplicateGroup {
	return model.DuplicateGroup{
		Amount:       txns[0].Amount,
		Description:  txns[0].Description,
		Count:        len(txns),
		Transactions: txns,
	}
}

func TestListDuplicateGroups_ScenarioA(t *testing.T) {
	groups, err := ListDuplicateGroups([]model.Transaction{
		pending("1", -50, 0),
		pending("2", -50, 1),
		pending("3", -50, 9),
	}, 3)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"1", "2"}, model.IDs(groups[0].Transactions))
}

func TestConfirmMerge_RefetchesAfterMerge(t *testing.T) {
	svc := &mockService{}
	r := New(svc, Config{})

	before := []model.DuplicateGroup{dupGroup(pending("1", -50, 0), pending("2", -50, 1), pending("3", -50, 2))}
	merged := false

	svc.On("FindDuplicates", mock.Anything, 3).Return(before, nil).Once()
	svc.On("MergeDuplicates", mock.Anything, "2", []string{"1", "3"}).
		Run(func(mock.Arguments) { merged = true }).
		Return(nil).Once()
	svc.On("FindDuplicates", mock.Anything, 3).
		Run(func(mock.Arguments) {
			assert.True(t, merged, "refetch must not be issued before the merge resolves")
		}).
		Return([]model.DuplicateGroup{}, nil).Once()

	ctx := context.Background()
	require.NoError(t, r.LoadDuplicates(ctx, 3))
	require.NoError(t, r.SelectKeep(0, "2"))

	plan, err := r.ConfirmMerge(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, model.MergePlan{KeepID: "2", RemoveIDs: []string{"1", "3"}}, plan)
	assert.Equal(t, []string{"FindDuplicates", "MergeDuplicates", "FindDuplicates"}, svc.order())
	assert.Empty(t, r.Groups())
	assert.Empty(t, r.Selection(), "selection is cleared when groups are recomputed")
	svc.AssertExpectations(t)
}

func TestConfirmMerge_ValidationNeverReachesService(t *testing.T) {
	svc := &mockService{}
	r := New(svc, Config{})

	svc.On("FindDuplicates", mock.Anything, 3).
		Return([]model.DuplicateGroup{dupGroup(pending("1", -50, 0), pending("2", -50, 1))}, nil).Once()
	require.NoError(t, r.LoadDuplicates(context.Background(), 3))

	_, err := r.ConfirmMerge(context.Background(), 0)
	assert.ErrorIs(t, err, common.ErrNoKeepSelected)

	_, err = r.ConfirmMerge(context.Background(), 7)
	assert.ErrorIs(t, err, common.ErrGroupOutOfRange)

	assert.ErrorIs(t, r.SelectKeep(0, "nope"), common.ErrKeepNotInGroup)
	assert.ErrorIs(t, r.SelectKeep(3, "1"), common.ErrGroupOutOfRange)

	assert.Equal(t, []string{"FindDuplicates"}, svc.order())
	svc.AssertNotCalled(t, "MergeDuplicates", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmMerge_RemoteFailureLeavesStateUntouched(t *testing.T) {
	svc := &mockService{}
	r := New(svc, Config{})

	groups := []model.DuplicateGroup{dupGroup(pending("1", -50, 0), pending("2", -50, 1))}
	svc.On("FindDuplicates", mock.Anything, 3).Return(groups, nil).Once()
	svc.On("MergeDuplicates", mock.Anything, "1", []string{"2"}).
		Return(common.NewRemoteError(404, "Transação não encontrada", nil)).Once()

	require.NoError(t, r.LoadDuplicates(context.Background(), 3))
	require.NoError(t, r.SelectKeep(0, "1"))

	_, err := r.ConfirmMerge(context.Background(), 0)
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)
	assert.Equal(t, "Transação não encontrada", common.RemoteMessage(err))

	assert.Equal(t, groups, r.Groups())
	assert.Equal(t, map[int]string{0: "1"}, r.Selection())
	assert.Equal(t, []string{"FindDuplicates", "MergeDuplicates"}, svc.order())
}

func TestReviewOne_RefetchesBatch(t *testing.T) {
	svc := &mockService{}
	r := New(svc, Config{})

	initial := []model.Transaction{pending("1", -10, 0), pending("2", -20, 0)}
	reviewed := initial[0]
	reviewed.UserCategory = model.StringPtr("Mercado")
	reviewed.ReviewStatus = model.StatusApproved

	svc.On("GetBatchTransactions", mock.Anything, "b1").Return(initial, nil).Once()
	svc.On("ReviewTransaction", mock.Anything, "b1", "1", "Mercado", model.StatusApproved, "").
		Return(reviewed, nil).Once()
	svc.On("GetBatchTransactions", mock.Anything, "b1").
		Return([]model.Transaction{reviewed, initial[1]}, nil).Once()

	ctx := context.Background()
	require.NoError(t, r.LoadBatch(ctx, "b1"))

	// Empty category falls back to the draft seeded from the prediction.
	got, err := r.ReviewOne(ctx, "1", "", model.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.ReviewStatus)

	assert.Equal(t, []string{"GetBatchTransactions", "ReviewTransaction", "GetBatchTransactions"}, svc.order())
	assert.Equal(t, model.StatusApproved, r.Transactions()[0].ReviewStatus)
	svc.AssertExpectations(t)
}

func TestReviewOne_Preconditions(t *testing.T) {
	svc := &mockService{}
	r := New(svc, Config{})

	done := pending("9", -10, 0)
	done.ReviewStatus = model.StatusRejected
	svc.On("GetBatchTransactions", mock.Anything, "b1").
		Return([]model.Transaction{{ID: "1", BatchID: "b1", ReviewStatus: model.StatusPending}, done}, nil).Once()
	require.NoError(t, r.LoadBatch(context.Background(), "b1"))

	_, err := r.ReviewOne(context.Background(), "1", "", model.StatusApproved)
	assert.ErrorIs(t, err, common.ErrMissingCategory)

	_, err = r.ReviewOne(context.Background(), "1", "Food", "archived")
	assert.ErrorIs(t, err, common.ErrInvalidStatus)

	_, err = r.ReviewOne(context.Background(), "9", "Food", model.StatusApproved)
	assert.ErrorIs(t, err, common.ErrAlreadyReviewed)

	assert.Equal(t, []string{"GetBatchTransactions"}, svc.order())
}

func TestReviewOne_AllowReReview(t *testing.T) {
	svc := &mockService{}
	r := New(svc, Config{AllowReReview: true})

	done := pending("9", -10, 0)
	done.ReviewStatus = model.StatusRejected
	svc.On("GetBatchTransactions", mock.Anything, "b1").Return([]model.Transaction{done}, nil)
	svc.On("ReviewTransaction", mock.Anything, "b1", "9", "Food", model.StatusApproved, "").Return(done, nil).Once()

	require.NoError(t, r.LoadBatch(context.Background(), "b1"))
	_, err := r.ReviewOne(context.Background(), "9", "Food", model.StatusApproved)
	require.NoError(t, err)
}

func TestReviewOne_RemoteFailure(t *testing.T) {
	svc := &mockService{}
	r := New(svc, Config{})

	initial := []model.Transaction{pending("1", -10, 0)}
	svc.On("GetBatchTransactions", mock.Anything, "b1").Return(initial, nil).Once()
	svc.On("ReviewTransaction", mock.Anything, "b1", "1", "Mercado", model.StatusRejected, "").
		Return(model.Transaction{}, errors.New("connection refused")).Once()

	require.NoError(t, r.LoadBatch(context.Background(), "b1"))
	_, err := r.ReviewOne(context.Background(), "1", "Mercado", model.StatusRejected)

	require.ErrorIs(t, err, common.ErrRemoteUnavailable)
	assert.Equal(t, "connection refused", common.RemoteMessage(err))
	assert.Equal(t, initial, r.Transactions())
}

func TestDeleteOne_NotFoundIsSuccess(t *testing.T) {
	svc := &mockService{}
	r := New(svc, Config{})

	svc.On("GetBatchTransactions", mock.Anything, "b1").Return([]model.Transaction{}, nil)
	svc.On("DeleteTransaction", mock.Anything, "b1", "gone").Return(common.ErrNotFound).Once()

	require.NoError(t, r.LoadBatch(context.Background(), "b1"))
	require.NoError(t, r.DeleteOne(context.Background(), "gone"))
	assert.Equal(t, []string{"GetBatchTransactions", "DeleteTransaction", "GetBatchTransactions"}, svc.order())
}

func TestDeleteOne_GroupMemberUsesItsOwnBatch(t *testing.T) {
	svc := &mockService{}
	r := New(svc, Config{})

	other := pending("x2", -50, 1)
	other.BatchID = "b2"
	groups := []model.DuplicateGroup{dupGroup(pending("x1", -50, 0), other)}

	svc.On("FindDuplicates", mock.Anything, 3).Return(groups, nil).Once()
	svc.On("DeleteTransaction", mock.Anything, "b2", "x2").Return(nil).Once()
	svc.On("FindDuplicates", mock.Anything, 3).Return([]model.DuplicateGroup{}, nil).Once()

	require.NoError(t, r.LoadDuplicates(context.Background(), 3))
	require.NoError(t, r.DeleteOne(context.Background(), "x2"))

	svc.AssertExpectations(t)
	assert.Empty(t, r.Groups())
	assert.Equal(t, []string{"FindDuplicates", "DeleteTransaction", "FindDuplicates"}, svc.order())
}

func TestLoadDuplicates_DiscardsStaleResponse(t *testing.T) {
	svc := &mockService{}
	r := New(svc, Config{})

	started := make(chan struct{})
	release := make(chan struct{})
	slow := []model.DuplicateGroup{dupGroup(pending("old1", -1, 0), pending("old2", -1, 0))}
	fresh := []model.DuplicateGroup{dupGroup(pending("new1", -2, 0), pending("new2", -2, 0))}

	svc.On("FindDuplicates", mock.Anything, 3).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(slow, nil).Once()
	svc.On("FindDuplicates", mock.Anything, 5).Return(fresh, nil).Once()

	errCh := make(chan error, 1)
	go func() { errCh <- r.LoadDuplicates(context.Background(), 3) }()

	<-started
	require.NoError(t, r.LoadDuplicates(context.Background(), 5))
	close(release)

	assert.ErrorIs(t, <-errCh, common.ErrStaleResponse)
	assert.Equal(t, fresh, r.Groups())
	assert.Equal(t, 5, r.Threshold())
}

func TestLoadDuplicates_InvalidThreshold(t *testing.T) {
	r := New(&mockService{}, Config{})
	assert.ErrorIs(t, r.LoadDuplicates(context.Background(), 0), common.ErrInvalidThreshold)
}
