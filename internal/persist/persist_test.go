package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nzbcore/nzbcore/internal/downloader"
	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/nntppool"
	"github.com/nzbcore/nzbcore/internal/queue"
)

const sampleNZB = `<?xml version="1.0" encoding="iso-8859-1"?>
<!DOCTYPE nzb PUBLIC "-//newzBin//DTD NZB 1.1//EN" "http://www.newzbin.com/DTD/nzb/nzb-1.1.dtd">
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
<file poster="poster@example.com" date="1000000000" subject="&quot;movie.mkv&quot; yEnc (1/1)">
<groups>
<group>alt.binaries.test</group>
</groups>
<segments>
<segment bytes="1000" number="1">msg1@example.com</segment>
</segments>
</file>
</nzb>
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nzbcore.db")
	s, err := Open(dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCollection() *model.Collection {
	col := model.NewCollection("job", "job.nzb", "/tmp/dest", "TV", 0)
	f := model.NewFile(col.ID, 0, "subj", "movie.mkv", 1000, []string{"alt.binaries.test"},
		[]model.Segment{{Number: 1, Bytes: 1000, MessageID: "<msg1>"}})
	f.Articles[0].Status = model.ArticleRunning
	col.AddFile(f)
	return col
}

func TestSaveAndLoadCollectionRoundTrips(t *testing.T) {
	s := newTestStore(t)
	col := sampleCollection()
	require.NoError(t, s.SaveCollection(col))

	loaded, err := s.LoadCollections()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, col.ID, loaded[0].ID)
	require.Equal(t, col.Name, loaded[0].Name)
	require.Len(t, loaded[0].Files, 1)
	require.Equal(t, "movie.mkv", loaded[0].Files[0].Filename)
	require.Len(t, loaded[0].Files[0].Articles, 1)
	require.Equal(t, model.ArticleRunning, loaded[0].Files[0].Articles[0].Status)
}

func testQueue() *queue.Coordinator {
	configs := []model.ServerConfig{{ID: 1, Active: true, Level: 0, MaxConnection: 1}}
	pool := nntppool.New(configs, nil)
	writer := downloader.NewDirectWriter()
	return queue.New(pool, nil, func(*model.File) downloader.Writer { return writer }, nil, queue.Config{})
}

func TestReconcileResetsRunningArticlesAndSkipsFinished(t *testing.T) {
	s := newTestStore(t)

	inFlight := sampleCollection()
	require.NoError(t, s.SaveCollection(inFlight))

	finished := sampleCollection()
	finished.Stage = model.StageFinished
	require.NoError(t, s.SaveCollection(finished))

	q := testQueue()
	require.NoError(t, s.Reconcile(q))

	_, stillHasFinished := q.Collection(finished.ID)
	require.False(t, stillHasFinished, "finished collections must not be requeued")

	col, ok := q.Collection(inFlight.ID)
	require.True(t, ok)
	require.Equal(t, model.ArticlePending, col.Files[0].Articles[0].Status)
}

func TestSyncPrunesRemovedCollections(t *testing.T) {
	s := newTestStore(t)
	q := testQueue()
	col := sampleCollection()
	ok, reason := q.AddNZB(col)
	require.True(t, ok, reason)

	require.NoError(t, s.Sync(q))
	loaded, err := s.LoadCollections()
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	q.Remove(col.ID)
	require.NoError(t, s.Sync(q))
	loaded, err = s.LoadCollections()
	require.NoError(t, err)
	require.Len(t, loaded, 0)
}

func TestHistoryAddAndMark(t *testing.T) {
	s := newTestStore(t)
	col := sampleCollection()
	col.Stage = model.StageFinished
	require.NoError(t, s.Add(col))

	var id string
	row := s.db.QueryRow(`SELECT id FROM history WHERE collection_id = ?`, col.ID)
	require.NoError(t, row.Scan(&id))

	require.NoError(t, s.SetMark(id, model.MarkGood))
	require.NoError(t, s.SetParam(id, "Unpack", "no"))

	loaded, err := s.LoadCollections()
	require.NoError(t, err)
	require.Len(t, loaded, 0, "a collection recorded to history must leave the in-flight table")

	require.NoError(t, s.Delete(id, true))
	var count int
	require.NoError(t, s.db.QueryRow(`SELECT count(*) FROM history`).Scan(&count))
	require.Equal(t, 0, count)
}

func TestRedownloadRebuildsFromOriginalNZB(t *testing.T) {
	s := newTestStore(t)
	nzbPath := filepath.Join(t.TempDir(), "job.nzb")
	require.NoError(t, os.WriteFile(nzbPath, []byte(sampleNZB), 0o644))

	col := model.NewCollection("job", nzbPath, "/tmp/dest", "TV", 0)
	col.DupeKey = "job-key"
	col.DupeScore = 5
	col.Stage = model.StageFinished
	require.NoError(t, s.Add(col))

	var id string
	row := s.db.QueryRow(`SELECT id FROM history WHERE collection_id = ?`, col.ID)
	require.NoError(t, row.Scan(&id))

	rebuilt, err := s.Redownload(id)
	require.NoError(t, err)
	require.Len(t, rebuilt.Files, 1)
	require.Equal(t, "job-key", rebuilt.DupeKey)
	require.Equal(t, 5, rebuilt.DupeScore)
	require.Equal(t, model.ArticlePending, rebuilt.Files[0].Articles[0].Status)
}
