package editor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nzbcore/nzbcore/internal/downloader"
	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/nntppool"
	"github.com/nzbcore/nzbcore/internal/queue"
)

func testQueue() *queue.Coordinator {
	configs := []model.ServerConfig{{ID: 1, Active: true, Level: 0, MaxConnection: 2}}
	pool := nntppool.New(configs, nil)
	writer := downloader.NewDirectWriter()
	return queue.New(pool, nil, func(*model.File) downloader.Writer { return writer }, nil, queue.Config{})
}

func twoFileCollection(name string) *model.Collection {
	col := model.NewCollection(name, name+".nzb", "/tmp/dest", "", 0)
	for i := 0; i < 2; i++ {
		f := model.NewFile(col.ID, i, "subj", fmt.Sprintf("file%d.bin", i), 10, nil,
			[]model.Segment{{Number: 1, Bytes: 10, MessageID: "<m1>"}})
		col.AddFile(f)
	}
	return col
}

func addCollection(t *testing.T, q *queue.Coordinator, col *model.Collection) {
	t.Helper()
	ok, reason := q.AddNZB(col)
	require.True(t, ok, reason)
}

func TestEditFilesPauseResume(t *testing.T) {
	q := testQueue()
	col := twoFileCollection("job")
	addCollection(t, q, col)
	fileID := col.Files[0].ID

	e := New(q, nil, nil)
	ok, err := e.EditList([]string{fmt.Sprint(fileID)}, MatchID, ActionFilePause, 0, "")
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := q.Collection(col.ID)
	require.True(t, got.Files[0].Paused)
	require.False(t, got.Files[1].Paused)

	ok, err = e.EditList([]string{fmt.Sprint(fileID)}, MatchID, ActionFileResume, 0, "")
	require.NoError(t, err)
	require.True(t, ok)
	got, _ = q.Collection(col.ID)
	require.False(t, got.Files[0].Paused)
}

func TestEditFilesDeleteRecalculatesRemaining(t *testing.T) {
	q := testQueue()
	col := twoFileCollection("job")
	addCollection(t, q, col)
	before, _ := q.Collection(col.ID)
	totalBefore := before.RemainingSize

	e := New(q, nil, nil)
	ok, err := e.EditList([]string{fmt.Sprint(col.Files[0].ID)}, MatchID, ActionFileDelete, 0, "")
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := q.Collection(col.ID)
	require.True(t, got.Files[0].Deleted)
	require.Less(t, got.RemainingSize, totalBefore)
}

func TestEditFilesMoveTopAndBottom(t *testing.T) {
	q := testQueue()
	col := twoFileCollection("job")
	addCollection(t, q, col)
	secondID := col.Files[1].ID

	e := New(q, nil, nil)
	ok, err := e.EditList([]string{fmt.Sprint(secondID)}, MatchID, ActionFileMoveTop, 0, "")
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := q.Collection(col.ID)
	require.Equal(t, secondID, got.Files[0].ID)
}

func TestEditFilesSplitCreatesNewCollection(t *testing.T) {
	q := testQueue()
	col := twoFileCollection("job")
	addCollection(t, q, col)
	splitID := col.Files[0].ID

	e := New(q, nil, nil)
	ok, err := e.EditList([]string{fmt.Sprint(splitID)}, MatchID, ActionFileSplit, 0, "split-name")
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, q.Collections(), 2)
	var dst *model.Collection
	for _, c := range q.Collections() {
		if c.ID != col.ID {
			dst = c
		}
	}
	require.NotNil(t, dst)
	require.Equal(t, "split-name", dst.Name)
	require.Len(t, dst.Files, 1)

	src, _ := q.Collection(col.ID)
	require.Len(t, src.Files, 1)
}

func TestEditFilesSplitEverythingIsNoOp(t *testing.T) {
	q := testQueue()
	col := twoFileCollection("job")
	addCollection(t, q, col)

	e := New(q, nil, nil)
	ids := []string{fmt.Sprint(col.Files[0].ID), fmt.Sprint(col.Files[1].ID)}
	ok, err := e.EditList(ids, MatchID, ActionFileSplit, 0, "")
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, q.Collections(), 1)
}

func TestEditFilesPauseExtraParsKeepsFirstParUnpaused(t *testing.T) {
	q := testQueue()
	col := model.NewCollection("job", "job.nzb", "/tmp/dest", "", 0)
	for i, name := range []string{"archive.par2", "archive.vol00+01.par2"} {
		f := model.NewFile(col.ID, i, "subj", name, 10, nil,
			[]model.Segment{{Number: 1, Bytes: 10, MessageID: "<m1>"}})
		col.AddFile(f)
	}
	addCollection(t, q, col)

	e := New(q, nil, nil)
	ids := []string{fmt.Sprint(col.Files[0].ID), fmt.Sprint(col.Files[1].ID)}
	ok, err := e.EditList(ids, MatchID, ActionFilePauseExtraPars, 0, "")
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := q.Collection(col.ID)
	require.False(t, got.Files[0].Paused)
	require.True(t, got.Files[1].Paused)
}

func TestEditGroupsFinalDeleteAvoidsHistory(t *testing.T) {
	q := testQueue()
	final := twoFileCollection("final")
	addCollection(t, q, final)

	e := New(q, nil, nil)
	ok, err := e.EditList([]string{final.ID}, MatchID, ActionGroupFinalDelete, 0, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, q.Collections())
	require.True(t, final.AvoidHistory)
}

func TestEditGroupsSetCategoryAppliesDefaults(t *testing.T) {
	q := testQueue()
	col := twoFileCollection("job")
	addCollection(t, q, col)

	cats := map[string]model.Category{
		"movies": {Name: "movies", DestDir: "/downloads/movies", Unpack: true},
	}
	e := New(q, nil, cats)
	ok, err := e.EditList([]string{col.ID}, MatchID, ActionGroupSetCategory, 0, "movies")
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := q.Collection(col.ID)
	require.Equal(t, "movies", got.Category)
	require.Equal(t, "/downloads/movies", got.DestDir)
	require.Equal(t, "yes", got.Params["Unpack"])
}

func TestEditGroupsSetDupeModeAndScore(t *testing.T) {
	q := testQueue()
	col := twoFileCollection("job")
	addCollection(t, q, col)

	e := New(q, nil, nil)
	ok, err := e.EditList([]string{col.ID}, MatchID, ActionGroupSetDupeMode, 0, "force")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.EditList([]string{col.ID}, MatchID, ActionGroupSetDupeScore, 0, "42")
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := q.Collection(col.ID)
	require.Equal(t, model.DupeModeForce, got.DupeMode)
	require.Equal(t, 42, got.DupeScore)
}

func TestEditGroupsMarkDupeForcesMode(t *testing.T) {
	q := testQueue()
	col := twoFileCollection("job")
	addCollection(t, q, col)

	e := New(q, nil, nil)
	ok, err := e.EditList([]string{col.ID}, MatchID, ActionGroupMarkDupe, 0, "")
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := q.Collection(col.ID)
	require.Equal(t, model.DupeModeForce, got.DupeMode)
}

func TestEditGroupsMergeFoldsFilesIntoFirst(t *testing.T) {
	q := testQueue()
	a := twoFileCollection("a")
	b := twoFileCollection("b")
	addCollection(t, q, a)
	addCollection(t, q, b)

	e := New(q, nil, nil)
	ok, err := e.EditList([]string{a.ID, b.ID}, MatchID, ActionGroupMerge, 0, "")
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, q.Collections(), 1)
	got, ok := q.Collection(a.ID)
	require.True(t, ok)
	require.Len(t, got.Files, 4)

	_, ok = q.Collection(b.ID)
	require.False(t, ok, "merged-away source must be removed from the live queue")
}

func TestEditGroupsMergeRefusesPostProcessTarget(t *testing.T) {
	q := testQueue()
	a := twoFileCollection("a")
	b := twoFileCollection("b")
	addCollection(t, q, a)
	addCollection(t, q, b)
	b.Stage = model.StageVerifyingSources

	e := New(q, nil, nil)
	ok, err := e.EditList([]string{a.ID, b.ID}, MatchID, ActionGroupMerge, 0, "")
	require.Error(t, err)
	require.False(t, ok)
	require.Len(t, q.Collections(), 2)
}

func TestEditPostQueueDeleteOnlyAffectsPostProcessEntries(t *testing.T) {
	q := testQueue()
	col := twoFileCollection("job")
	addCollection(t, q, col)

	e := New(q, nil, nil)
	ok, err := e.EditList([]string{col.ID}, MatchID, ActionPostQueueDelete, 0, "")
	require.NoError(t, err)
	require.False(t, ok, "still queued, not yet in post-process")
	require.Len(t, q.Collections(), 1)

	col.Stage = model.StageUnpacking
	ok, err = e.EditList([]string{col.ID}, MatchID, ActionPostQueueDelete, 0, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, q.Collections())
}

type fakeHistoryStore struct {
	deleted      map[string]bool
	marks        map[string]model.MarkStatus
	dupeModes    map[string]model.DupeMode
	returnToQErr error
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{
		deleted:   make(map[string]bool),
		marks:     make(map[string]model.MarkStatus),
		dupeModes: make(map[string]model.DupeMode),
	}
}

func (f *fakeHistoryStore) Delete(id string, final bool) error { f.deleted[id] = true; return nil }
func (f *fakeHistoryStore) SetMark(id string, mark model.MarkStatus) error {
	f.marks[id] = mark
	return nil
}
func (f *fakeHistoryStore) SetParam(id, name, value string) error          { return nil }
func (f *fakeHistoryStore) SetDupeKey(id, key string) error                { return nil }
func (f *fakeHistoryStore) SetDupeScore(id string, score int) error        { return nil }
func (f *fakeHistoryStore) SetDupeMode(id string, mode model.DupeMode) error {
	f.dupeModes[id] = mode
	return nil
}
func (f *fakeHistoryStore) SetDupeBackup(id string, backup bool) error { return nil }
func (f *fakeHistoryStore) ReturnToQueue(id string) (*model.Collection, error) {
	if f.returnToQErr != nil {
		return nil, f.returnToQErr
	}
	return twoFileCollection("from-history-" + id), nil
}
func (f *fakeHistoryStore) Redownload(id string) (*model.Collection, error) {
	return twoFileCollection("redownload-" + id), nil
}
func (f *fakeHistoryStore) Reprocess(id string) error { return nil }

func TestEditHistoryMarkAndDelete(t *testing.T) {
	q := testQueue()
	h := newFakeHistoryStore()
	e := New(q, h, nil)

	ok, err := e.EditList([]string{"hist-1"}, MatchID, ActionHistoryMarkGood, 0, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.MarkGood, h.marks["hist-1"])

	ok, err = e.EditList([]string{"hist-1"}, MatchID, ActionHistoryFinalDelete, 0, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, h.deleted["hist-1"])
}

func TestEditHistorySetDupeMode(t *testing.T) {
	q := testQueue()
	h := newFakeHistoryStore()
	e := New(q, h, nil)

	ok, err := e.EditList([]string{"hist-1"}, MatchID, ActionHistorySetDupeMode, 0, "all")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.DupeModeAll, h.dupeModes["hist-1"])
}

func TestEditHistoryReturnToQueueInsertsIntoLiveQueue(t *testing.T) {
	q := testQueue()
	h := newFakeHistoryStore()
	e := New(q, h, nil)

	ok, err := e.EditList([]string{"hist-1"}, MatchID, ActionHistoryReturnToQueue, 0, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, q.Collections(), 1)
	require.Equal(t, "from-history-hist-1", q.Collections()[0].Name)
}

func TestEditHistoryWithoutStoreErrors(t *testing.T) {
	q := testQueue()
	e := New(q, nil, nil)

	_, err := e.EditList([]string{"hist-1"}, MatchID, ActionHistoryMarkBad, 0, "")
	require.Error(t, err)
}
