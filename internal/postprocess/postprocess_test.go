package postprocess

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nzbcore/nzbcore/internal/downloader"
	"github.com/nzbcore/nzbcore/internal/extract"
	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/nntppool"
	"github.com/nzbcore/nzbcore/internal/queue"
	"github.com/nzbcore/nzbcore/internal/repair"
)

func testQueue() *queue.Coordinator {
	configs := []model.ServerConfig{{ID: 1, Active: true, Level: 0, MaxConnection: 2}}
	pool := nntppool.New(configs, nil)
	writer := downloader.NewDirectWriter()
	return queue.New(pool, nil, func(*model.File) downloader.Writer { return writer }, nil, queue.Config{})
}

func fileWithArticles(col *model.Collection, index int, name string, size int64, isPar bool, crcValid bool) *model.File {
	f := model.NewFile(col.ID, index, "subj", name, size, nil,
		[]model.Segment{{Number: 1, Bytes: size, MessageID: fmt.Sprintf("<m%d>", index)}})
	f.Articles[0].Status = model.ArticleFinishedOK
	f.Articles[0].CRCValid = crcValid
	f.RemainingSize = 0
	f.FinalPath = "/tmp/dest/" + name
	if isPar {
		f.IsParFile = true
	}
	return f
}

func testCollection(name string) *model.Collection {
	col := model.NewCollection(name, name+".nzb", "/tmp/dest", "", 0)
	col.AddFile(fileWithArticles(col, 0, "movie.mkv", 100, false, true))
	col.TotalBytes = 100
	return col
}

// fakeRepairer never shells out; Verify/Repair return whatever the test
// wired into the fields below.
type fakeRepairer struct {
	verifyResult repair.Result
	verifyErr    error
	repairResult repair.Result
	repairErr    error
}

func (f *fakeRepairer) Verify(ctx context.Context, dir, parFile string, onProgress repair.ProgressFunc) (repair.Result, error) {
	return f.verifyResult, f.verifyErr
}

func (f *fakeRepairer) Repair(ctx context.Context, dir, parFile string, onProgress repair.ProgressFunc) (repair.Result, error) {
	return f.repairResult, f.repairErr
}

type fakeExtractor struct {
	has      bool
	archives map[string]extract.Extractor
	extractErr error
}

func (f *fakeExtractor) HasExtractors() bool { return f.has }
func (f *fakeExtractor) Detect(paths []string) (map[string]extract.Extractor, error) {
	return f.archives, nil
}
func (f *fakeExtractor) Extract(ctx context.Context, archivePath, destDir, password string) ([]string, error) {
	return nil, f.extractErr
}

type fakeHistory struct {
	added []*model.Collection
}

func (h *fakeHistory) Add(col *model.Collection) error {
	h.added = append(h.added, col)
	return nil
}

func newTestProcessor(q *queue.Coordinator, r parRepairer, e archiveExtractor, h HistoryWriter, cfg Config) *Processor {
	return New(q, r, e, h, nil, cfg)
}

func TestParCheckSkippedWithNoParFiles(t *testing.T) {
	col := testCollection("job")
	p := newTestProcessor(testQueue(), &fakeRepairer{}, &fakeExtractor{}, nil, DefaultConfig())

	p.runParCheck(context.Background(), col)

	require.Equal(t, model.StageSkipped, col.ParStatus)
}

func TestParCheckSkippedByQuickVerifyCRC(t *testing.T) {
	col := testCollection("job")
	col.AddFile(fileWithArticles(col, 1, "job.par2", 10, true, true))

	p := newTestProcessor(testQueue(), &fakeRepairer{}, &fakeExtractor{}, nil, DefaultConfig())
	p.runParCheck(context.Background(), col)

	require.Equal(t, model.StageSkipped, col.ParStatus)
}

func TestParCheckRepairsWhenPossible(t *testing.T) {
	col := testCollection("job")
	col.Files[0].Articles[0].CRCValid = false
	col.AddFile(fileWithArticles(col, 1, "job.par2", 10, true, true))

	repairer := &fakeRepairer{
		verifyResult: repair.Result{Status: repair.StatusRepairPossible, ExitCode: 1},
		repairResult: repair.Result{Status: repair.StatusOK, ExitCode: 0},
	}
	p := newTestProcessor(testQueue(), repairer, &fakeExtractor{}, nil, DefaultConfig())
	p.runParCheck(context.Background(), col)

	require.Equal(t, model.StageSuccess, col.ParStatus)
	require.Equal(t, model.StageVerifyingRepaired, col.Stage)
	require.False(t, p.pause.IsPaused(), "par pause reason must be released after the stage returns")
}

func TestParCheckFailsWhenUnrepairable(t *testing.T) {
	col := testCollection("job")
	col.Files[0].Articles[0].CRCValid = false
	col.AddFile(fileWithArticles(col, 1, "job.par2", 10, true, true))

	repairer := &fakeRepairer{
		verifyResult: repair.Result{Status: repair.StatusRepairFailed, ExitCode: 2},
	}
	p := newTestProcessor(testQueue(), repairer, &fakeExtractor{}, nil, DefaultConfig())
	p.runParCheck(context.Background(), col)

	require.Equal(t, model.StageFailure, col.ParStatus)
}

func TestHealthGateShortCircuitsWithNoRecoverableParData(t *testing.T) {
	col := testCollection("job")
	col.TotalBytes = 100
	col.FailedSize = 90 // health = 100
	col.CriticalHealth = 1000

	p := newTestProcessor(testQueue(), &fakeRepairer{}, &fakeExtractor{}, nil, DefaultConfig())
	p.runParCheck(context.Background(), col)

	require.Equal(t, model.DeleteHealth, col.DeleteStatus)
	require.Equal(t, model.StageFailure, col.ParStatus)
}

func TestUnpackSkippedWhenParFailed(t *testing.T) {
	col := testCollection("job")
	col.ParStatus = model.StageFailure

	p := newTestProcessor(testQueue(), &fakeRepairer{}, &fakeExtractor{has: true}, nil, DefaultConfig())
	p.runUnpack(context.Background(), col)

	require.Equal(t, model.UnpackSkipped, col.UnpackStatus)
}

func TestUnpackSkippedWithNoArchivesDetected(t *testing.T) {
	col := testCollection("job")
	col.ParStatus = model.StageSuccess

	p := newTestProcessor(testQueue(), &fakeRepairer{}, &fakeExtractor{has: true, archives: map[string]extract.Extractor{}}, nil, DefaultConfig())
	p.runUnpack(context.Background(), col)

	require.Equal(t, model.UnpackSkipped, col.UnpackStatus)
}

func TestCleanupSkippedWhenNothingConfigured(t *testing.T) {
	col := testCollection("job")
	p := newTestProcessor(testQueue(), &fakeRepairer{}, &fakeExtractor{}, nil, DefaultConfig())
	p.runCleanup(col)
	require.Equal(t, model.StageSkipped, col.CleanupStatus)
}

func TestMoveSkippedWithoutInterimDir(t *testing.T) {
	col := testCollection("job")
	p := newTestProcessor(testQueue(), &fakeRepairer{}, &fakeExtractor{}, nil, DefaultConfig())
	p.runMove(col)
	require.Equal(t, model.StageSkipped, col.MoveStatus)
}

func TestPostScriptSkippedWithoutConfiguredScript(t *testing.T) {
	col := testCollection("job")
	p := newTestProcessor(testQueue(), &fakeRepairer{}, &fakeExtractor{}, nil, DefaultConfig())
	p.runPostScript(context.Background(), col)
	require.Equal(t, model.StageSkipped, col.ScriptStatus)
}

func TestProcessOneFinishesAndRecordsHistory(t *testing.T) {
	q := testQueue()
	col := testCollection("job")
	ok, reason := q.AddNZB(col)
	require.True(t, ok, reason)

	hist := &fakeHistory{}
	p := newTestProcessor(q, &fakeRepairer{}, &fakeExtractor{}, hist, DefaultConfig())

	p.processOne(context.Background(), col.ID)

	require.Len(t, hist.added, 1)
	require.Equal(t, model.StageFinished, hist.added[0].Stage)
	_, stillQueued := q.Collection(col.ID)
	require.False(t, stillQueued, "finished collection must be removed from the live queue")
}

func TestPauseGateReleasesOnlyWhenEveryReasonCleared(t *testing.T) {
	released := false
	g := newPauseGate(func() { released = true })

	g.Pause("par")
	g.Pause("unpack")
	g.Unpause("par")
	require.True(t, g.IsPaused())
	require.False(t, released)

	g.Unpause("unpack")
	require.False(t, g.IsPaused())
	require.True(t, released)
}
