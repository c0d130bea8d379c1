package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nzbcore/nzbcore/internal/downloader"
	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/nntppool"
)

func testCoordinator(maxLevel int) *Coordinator {
	configs := []model.ServerConfig{{ID: 1, Active: true, Level: 0, MaxConnection: 2}}
	if maxLevel > 0 {
		configs = append(configs, model.ServerConfig{ID: 2, Active: true, Level: maxLevel, MaxConnection: 2})
	}
	pool := nntppool.New(configs, nil)
	writer := downloader.NewDirectWriter()
	cfg := Config{
		ArticleRetries:       2,
		ArticleLevelAttempts: 1,
		ScheduleInterval:     5 * time.Millisecond,
		SpeedInterval:        time.Hour,
		HangCheckInterval:    time.Hour,
	}
	return New(pool, nil, func(*model.File) downloader.Writer { return writer }, nil, cfg)
}

func oneArticleCollection() *model.Collection {
	col := model.NewCollection("job", "job.nzb", "/tmp/dest", "", 0)
	file := model.NewFile(col.ID, 0, "subj", "file.bin", 10, nil, []model.Segment{{Number: 1, Bytes: 10, MessageID: "<m1>"}})
	file.PartPath = "/tmp/nzbcore-queue-test-does-not-exist/file.bin"
	col.AddFile(file)
	return col
}

func runAndWait(t *testing.T, c *Coordinator, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestScheduleDispatchesAndHarvestsSuccess(t *testing.T) {
	c := testCoordinator(0)
	c.fetch = func(ctx context.Context, task downloader.Task, conn *model.Connection) downloader.Result {
		c.pool.Release(conn, model.OutcomeOK)
		return downloader.Result{Outcome: downloader.OutcomeSucceeded, BytesWritten: task.Article.Size, CRC32: 0xabc}
	}

	col := oneArticleCollection()
	ok, reason := c.AddNZB(col)
	require.True(t, ok, reason)

	runAndWait(t, c, func() bool {
		got, ok := c.Collection(col.ID)
		return ok && got.Stage != model.StageQueued
	})

	got, _ := c.Collection(col.ID)
	require.Equal(t, int64(1), got.SuccessArticle)
	require.Equal(t, model.StageLoadingPars, got.Stage)
	require.Equal(t, model.ArticleFinishedOK, got.Files[0].Articles[0].Status)
}

func TestNotFoundEscalatesThenFinallyFails(t *testing.T) {
	c := testCoordinator(1)
	c.fetch = func(ctx context.Context, task downloader.Task, conn *model.Connection) downloader.Result {
		c.pool.Release(conn, model.OutcomeOK)
		return downloader.Result{Outcome: downloader.OutcomeNotFoundOrMismatch}
	}
	col := oneArticleCollection()
	_, _ = c.AddNZB(col)

	runAndWait(t, c, func() bool {
		got, _ := c.Collection(col.ID)
		return got.Files[0].Articles[0].Status == model.ArticleFailed
	})

	got, _ := c.Collection(col.ID)
	require.Equal(t, int64(1), got.FailedArticle)
	require.Equal(t, 2, got.Files[0].Articles[0].TriedLevel)
}

func TestTransientRetriesThenFinallyFails(t *testing.T) {
	c := testCoordinator(0)
	c.fetch = func(ctx context.Context, task downloader.Task, conn *model.Connection) downloader.Result {
		c.pool.Release(conn, model.OutcomeTransientError)
		return downloader.Result{Outcome: downloader.OutcomeTransient}
	}
	col := oneArticleCollection()
	_, _ = c.AddNZB(col)

	runAndWait(t, c, func() bool {
		got, _ := c.Collection(col.ID)
		return got.Files[0].Articles[0].Status == model.ArticleFailed
	})

	got, _ := c.Collection(col.ID)
	require.Equal(t, 3, got.Files[0].Articles[0].Retries)
}

func TestAddNZBRejectsLowerScoringDuplicate(t *testing.T) {
	c := testCoordinator(0)
	existing := oneArticleCollection()
	existing.DupeKey = "k"
	existing.DupeScore = 100
	ok, _ := c.AddNZB(existing)
	require.True(t, ok)

	dup := oneArticleCollection()
	dup.DupeKey = "k"
	dup.DupeScore = 10
	ok, reason := c.AddNZB(dup)
	require.False(t, ok)
	require.Contains(t, reason, "duplicate")
	require.Len(t, c.Collections(), 1)
}

func TestAddNZBAllModeKeepsBothQueued(t *testing.T) {
	c := testCoordinator(0)
	existing := oneArticleCollection()
	existing.DupeKey = "k"
	existing.DupeScore = 100
	_, _ = c.AddNZB(existing)

	second := oneArticleCollection()
	second.DupeKey = "k"
	second.DupeScore = 1
	second.DupeMode = model.DupeModeAll
	ok, _ := c.AddNZB(second)
	require.True(t, ok)
	require.Len(t, c.Collections(), 2)
}
