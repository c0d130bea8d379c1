// Package downloader implements the Article Downloader (spec §4.2,
// component C2): one task fetches one article over one borrowed
// connection, decodes it, writes its payload, and reports the result.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/nntppool"
	"github.com/nzbcore/nzbcore/internal/yenc"
)

// Outcome classifies how an article fetch ended, driving both the
// connection's release() outcome (spec §4.1) and the coordinator's
// retry/escalation bookkeeping (spec §4.2 operations 4-7).
type Outcome int

const (
	// OutcomeSucceeded: the article decoded and verified; its bytes are
	// on disk (or in the article cache). Article -> finished-ok.
	OutcomeSucceeded Outcome = iota
	// OutcomeNotFoundOrMismatch: the server said "no such article", or
	// the decode/CRC failed. Non-retryable *on this server* — the
	// coordinator should try the next server/level for this article.
	OutcomeNotFoundOrMismatch
	// OutcomeTransient: a connection/timeout error. Retryable; the
	// article's retry counter should be incremented by the caller.
	OutcomeTransient
)

// Result is what FetchArticle reports back to the coordinator.
type Result struct {
	Outcome      Outcome
	BytesWritten int64
	CRC32        uint32
	Err          error
}

// Task is everything FetchArticle needs about the surrounding file/
// collection to place decoded bytes correctly and report progress.
type Task struct {
	CollectionID string
	File         *model.File
	Article      *model.Article
	// Offset is the byte offset within the file's final layout where
	// this article's payload begins — precomputed by the caller from the
	// cumulative size of preceding articles (the yEnc header's own
	// =ypart begin= value, when present, takes precedence; see below).
	Offset int64
	// DirectWrite selects which Writer mode governs this file.
	DirectWrite bool
}

// FetchArticle executes spec §4.2's seven operations for one (Article,
// Connection) pair. It always releases conn back to pool exactly once,
// with the outcome the contract in §4.1 requires for the classification
// reached.
func FetchArticle(ctx context.Context, pool *nntppool.Pool, writer Writer, cache *ArticleCache, t Task, conn *model.Connection) Result {
	if err := pool.Dial(ctx, conn, t.File.Groups); err != nil {
		pool.Release(conn, model.OutcomeTransientError)
		return Result{Outcome: OutcomeTransient, Err: fmt.Errorf("connect/join: %w", err)}
	}

	raw, err := pool.Fetch(conn, t.Article.MessageID)
	if err != nil {
		if errors.Is(err, model.ErrArticleNotFound) {
			pool.Release(conn, model.OutcomeOK)
			return Result{Outcome: OutcomeNotFoundOrMismatch, Err: err}
		}
		pool.Release(conn, model.OutcomeTransientError)
		return Result{Outcome: OutcomeTransient, Err: fmt.Errorf("fetch: %w", err)}
	}
	if closer, ok := raw.(io.ReadCloser); ok {
		defer closer.Close()
	}

	dec := yenc.NewDecoder(raw)
	if err := dec.DiscardHeader(); err != nil {
		pool.Release(conn, model.OutcomeOK)
		return Result{Outcome: OutcomeNotFoundOrMismatch, Err: fmt.Errorf("yenc header: %w", err)}
	}

	writeOffset := t.Offset
	if dec.PartOffset != 0 {
		writeOffset = dec.PartOffset
	}

	buf := make([]byte, t.Article.Size)
	n, err := io.ReadFull(dec, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		pool.Release(conn, model.OutcomeTransientError)
		return Result{Outcome: OutcomeTransient, Err: fmt.Errorf("decode read: %w", err)}
	}

	if err := dec.Verify(); err != nil {
		pool.Release(conn, model.OutcomeOK)
		return Result{Outcome: OutcomeNotFoundOrMismatch, Err: fmt.Errorf("crc: %w", err)}
	}

	if n > 0 {
		var writeErr error
		if cache != nil && cache.Enabled() {
			writeErr = cache.Put(t.File.PartPath, writeOffset, buf[:n])
		} else {
			writeErr = writer.WriteAt(t.File.PartPath, buf[:n], writeOffset)
		}
		if writeErr != nil {
			pool.Release(conn, model.OutcomeTransientError)
			return Result{Outcome: OutcomeTransient, Err: fmt.Errorf("write: %w", writeErr)}
		}
	}

	pool.Release(conn, model.OutcomeOK)
	return Result{Outcome: OutcomeSucceeded, BytesWritten: int64(n), CRC32: dec.CRC32()}
}
