package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	lastCall WindowParams
}

func (s *stubTimelineRepo) TimelineWindow(_ context.Context, arg WindowParams) ([]TimelineRow, error) {
	s.lastCall = arg
	limit := int(arg.LimitRows)
	if limit > len(s.rows) {
		limit = len(s.rows)
	}
	return s.rows[:limit], nil
}

func rows(n int) []TimelineRow {
	out := make([]TimelineRow, n)
	for i := range out {
		out[i] = TimelineRow{Action: "records.submit", Entity: "site", EntityID: "1"}
	}
	return out
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: rows(3)}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Actor:    "  agent ",
		Page:     1,
		PageSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)

	require.EqualValues(t, 3, repo.lastCall.LimitRows)
	require.EqualValues(t, 0, repo.lastCall.OffsetRows)
	require.True(t, repo.lastCall.Actor.Valid)
	require.Equal(t, "agent", repo.lastCall.Actor.String)
	require.False(t, repo.lastCall.Action.Valid)
	require.Equal(t, time.Date(2026, 3, 31, 23, 59, 59, 999999999, time.UTC), repo.lastCall.ToAt.Time)
}

func TestServiceTimelineClampsPage(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500})
	require.NoError(t, err)
	require.NotNil(t, result.Rows)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.PrevPage)
	require.EqualValues(t, maxPageSize+1, repo.lastCall.LimitRows)
	require.EqualValues(t, 2*maxPageSize, repo.lastCall.OffsetRows)
	require.False(t, repo.lastCall.FromAt.Valid)
}

func TestServiceExportLimit(t *testing.T) {
	repo := &stubTimelineRepo{rows: rows(4)}
	got, err := NewService(repo).Export(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.EqualValues(t, MaxExportRows, repo.lastCall.LimitRows)
}

func TestServiceWithoutRepository(t *testing.T) {
	_, err := (&Service{}).Timeline(context.Background(), TimelineFilters{})
	require.Error(t, err)
}
