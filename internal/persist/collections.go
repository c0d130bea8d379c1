package persist

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/queue"
)

// SaveCollection upserts a collection and replaces its files/articles
// wholesale — called by Sync for every live collection on each periodic
// snapshot, spec §4.6's "durable enough to
// resume after a crash" requirement. A full files/articles replace is
// simpler than incremental diffing and cheap enough at NZBGet's typical
// collection sizes (low thousands of articles).
func (s *Store) SaveCollection(col *model.Collection) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	params, err := json.Marshal(col.Params)
	if err != nil {
		return fmt.Errorf("persist: marshal params: %w", err)
	}

	var startedAt any
	if !col.StartedAt.IsZero() {
		startedAt = col.StartedAt
	}

	_, err = tx.Exec(`
		INSERT INTO collections (
			id, name, nzb_filename, dest_dir, interim_dir, category, priority,
			dupe_key, dupe_score, dupe_mode, total_bytes, remaining_size,
			paused_size, failed_size, par_failed_size, total_articles,
			success_article, failed_article, health, critical_health,
			params_json, paused, stage, par_status, unpack_status, move_status,
			script_status, delete_status, mark_status, rename_status,
			cleanup_status, avoid_history, password, created_at, started_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, nzb_filename=excluded.nzb_filename,
			dest_dir=excluded.dest_dir, interim_dir=excluded.interim_dir,
			category=excluded.category, priority=excluded.priority,
			dupe_key=excluded.dupe_key, dupe_score=excluded.dupe_score,
			dupe_mode=excluded.dupe_mode, total_bytes=excluded.total_bytes,
			remaining_size=excluded.remaining_size, paused_size=excluded.paused_size,
			failed_size=excluded.failed_size, par_failed_size=excluded.par_failed_size,
			total_articles=excluded.total_articles, success_article=excluded.success_article,
			failed_article=excluded.failed_article, health=excluded.health,
			critical_health=excluded.critical_health, params_json=excluded.params_json,
			paused=excluded.paused, stage=excluded.stage, par_status=excluded.par_status,
			unpack_status=excluded.unpack_status, move_status=excluded.move_status,
			script_status=excluded.script_status, delete_status=excluded.delete_status,
			mark_status=excluded.mark_status, rename_status=excluded.rename_status,
			cleanup_status=excluded.cleanup_status, avoid_history=excluded.avoid_history,
			password=excluded.password, started_at=excluded.started_at
		`,
		col.ID, col.Name, col.NZBFilename, col.DestDir, col.InterimDir, col.Category, col.Priority,
		col.DupeKey, col.DupeScore, string(col.DupeMode), col.TotalBytes, col.RemainingSize,
		col.PausedSize, col.FailedSize, col.ParFailedSize, col.TotalArticles,
		col.SuccessArticle, col.FailedArticle, col.Health, col.CriticalHealth,
		string(params), col.Paused, string(col.Stage), string(col.ParStatus), string(col.UnpackStatus), string(col.MoveStatus),
		string(col.ScriptStatus), string(col.DeleteStatus), string(col.MarkStatus), string(col.RenameStatus),
		string(col.CleanupStatus), col.AvoidHistory, col.Password, col.CreatedAt, startedAt,
	)
	if err != nil {
		return fmt.Errorf("persist: upsert collection: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM files WHERE collection_id = ?`, col.ID); err != nil {
		return fmt.Errorf("persist: clear files: %w", err)
	}

	for _, f := range col.Files {
		groups, err := json.Marshal(f.Groups)
		if err != nil {
			return fmt.Errorf("persist: marshal groups: %w", err)
		}
		res, err := tx.Exec(`
			INSERT INTO files (
				collection_id, file_index, subject, filename, filename_confirmed,
				size, remaining_size, paused, deleted, is_par_file, groups_json,
				part_path, final_path
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			col.ID, f.Index, f.Subject, f.Filename, f.FilenameConfirmed,
			f.Size, f.RemainingSize, f.Paused, f.Deleted, f.IsParFile, string(groups),
			f.PartPath, f.FinalPath,
		)
		if err != nil {
			return fmt.Errorf("persist: insert file: %w", err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("persist: file row id: %w", err)
		}
		for _, a := range f.Articles {
			_, err := tx.Exec(`
				INSERT INTO articles (
					file_id, article_index, message_id, size, status, crc,
					crc_valid, retries, tried_level
				) VALUES (?,?,?,?,?,?,?,?,?)`,
				rowID, a.Index, a.MessageID, a.Size, string(a.Status), a.CRC,
				a.CRCValid, a.Retries, a.TriedLevel,
			)
			if err != nil {
				return fmt.Errorf("persist: insert article: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteCollection removes a collection; its files and articles go with
// it through the schema's ON DELETE CASCADE (foreign keys are enabled on
// the connection). Called by Add for an AvoidHistory collection, and by
// Sync to prune rows whose collection is no longer in the queue.
func (s *Store) DeleteCollection(id string) error {
	_, err := s.db.Exec(`DELETE FROM collections WHERE id = ?`, id)
	return err
}

// LoadCollections reads every persisted in-flight collection back into
// memory, nested Files and Articles included. Used only at startup;
// Reconcile is the entry point production code calls.
func (s *Store) LoadCollections() ([]*model.Collection, error) {
	rows, err := s.db.Query(`
		SELECT id, name, nzb_filename, dest_dir, interim_dir, category, priority,
			dupe_key, dupe_score, dupe_mode, total_bytes, remaining_size,
			paused_size, failed_size, par_failed_size, total_articles,
			success_article, failed_article, health, critical_health,
			params_json, paused, stage, par_status, unpack_status, move_status,
			script_status, delete_status, mark_status, rename_status,
			cleanup_status, avoid_history, password, created_at, started_at
		FROM collections`)
	if err != nil {
		return nil, fmt.Errorf("persist: query collections: %w", err)
	}
	defer rows.Close()

	var out []*model.Collection
	for rows.Next() {
		col := &model.Collection{Params: model.PostParams{}}
		var paramsJSON string
		var dupeMode, stage, parStatus, unpackStatus, moveStatus, scriptStatus, deleteStatus, markStatus, renameStatus, cleanupStatus string
		var startedAt sql.NullTime

		err := rows.Scan(
			&col.ID, &col.Name, &col.NZBFilename, &col.DestDir, &col.InterimDir, &col.Category, &col.Priority,
			&col.DupeKey, &col.DupeScore, &dupeMode, &col.TotalBytes, &col.RemainingSize,
			&col.PausedSize, &col.FailedSize, &col.ParFailedSize, &col.TotalArticles,
			&col.SuccessArticle, &col.FailedArticle, &col.Health, &col.CriticalHealth,
			&paramsJSON, &col.Paused, &stage, &parStatus, &unpackStatus, &moveStatus,
			&scriptStatus, &deleteStatus, &markStatus, &renameStatus,
			&cleanupStatus, &col.AvoidHistory, &col.Password, &col.CreatedAt, &startedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("persist: scan collection: %w", err)
		}
		if startedAt.Valid {
			col.StartedAt = startedAt.Time
		}
		if err := json.Unmarshal([]byte(paramsJSON), &col.Params); err != nil {
			return nil, fmt.Errorf("persist: unmarshal params for %s: %w", col.ID, err)
		}
		col.DupeMode = model.DupeMode(dupeMode)
		col.Stage = model.CollectionStage(stage)
		col.ParStatus = model.StageStatus(parStatus)
		col.UnpackStatus = model.UnpackStatus(unpackStatus)
		col.MoveStatus = model.StageStatus(moveStatus)
		col.ScriptStatus = model.StageStatus(scriptStatus)
		col.DeleteStatus = model.DeleteStatus(deleteStatus)
		col.MarkStatus = model.MarkStatus(markStatus)
		col.RenameStatus = model.StageStatus(renameStatus)
		col.CleanupStatus = model.StageStatus(cleanupStatus)

		out = append(out, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, col := range out {
		files, err := s.loadFiles(col.ID)
		if err != nil {
			return nil, err
		}
		col.Files = files
	}
	return out, nil
}

func (s *Store) loadFiles(collectionID string) ([]*model.File, error) {
	rows, err := s.db.Query(`
		SELECT id, file_index, subject, filename, filename_confirmed, size,
			remaining_size, paused, deleted, is_par_file, groups_json,
			part_path, final_path
		FROM files WHERE collection_id = ? ORDER BY file_index`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("persist: query files: %w", err)
	}
	defer rows.Close()

	var files []*model.File
	for rows.Next() {
		f := &model.File{CollectionID: collectionID}
		var groupsJSON string
		if err := rows.Scan(&f.ID, &f.Index, &f.Subject, &f.Filename, &f.FilenameConfirmed,
			&f.Size, &f.RemainingSize, &f.Paused, &f.Deleted, &f.IsParFile, &groupsJSON,
			&f.PartPath, &f.FinalPath); err != nil {
			return nil, fmt.Errorf("persist: scan file: %w", err)
		}
		if err := json.Unmarshal([]byte(groupsJSON), &f.Groups); err != nil {
			return nil, fmt.Errorf("persist: unmarshal groups: %w", err)
		}
		articles, err := s.loadArticles(f.ID)
		if err != nil {
			return nil, err
		}
		f.Articles = articles
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *Store) loadArticles(fileID int64) ([]*model.Article, error) {
	rows, err := s.db.Query(`
		SELECT article_index, message_id, size, status, crc, crc_valid, retries, tried_level
		FROM articles WHERE file_id = ? ORDER BY article_index`, fileID)
	if err != nil {
		return nil, fmt.Errorf("persist: query articles: %w", err)
	}
	defer rows.Close()

	var articles []*model.Article
	for rows.Next() {
		a := &model.Article{FailedGroups: make(map[string]bool)}
		var status string
		if err := rows.Scan(&a.Index, &a.MessageID, &a.Size, &status, &a.CRC, &a.CRCValid, &a.Retries, &a.TriedLevel); err != nil {
			return nil, fmt.Errorf("persist: scan article: %w", err)
		}
		a.Status = model.ArticleStatus(status)
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// Reconcile implements spec §4.6's crash-recovery rule: every persisted
// collection is reloaded and re-inserted into the live queue, and any
// article caught mid-flight (Running) when the process died is reset to
// Pending since the goroutine that was fetching it no longer exists.
// Collections whose last snapshot recorded them as FINISHED are
// skipped — they belong in history, not back on the queue.
func (s *Store) Reconcile(q *queue.Coordinator) error {
	cols, err := s.LoadCollections()
	if err != nil {
		return fmt.Errorf("persist: reconcile load: %w", err)
	}
	for _, col := range cols {
		if col.Stage == model.StageFinished {
			continue
		}
		for _, f := range col.Files {
			for _, a := range f.Articles {
				if a.Status == model.ArticleRunning {
					a.Status = model.ArticlePending
				}
			}
		}
		q.Lock()
		q.InsertLocked(col)
		q.Unlock()
		if s.logger != nil {
			s.logger.Info("persist: reconciled collection %s (%s) from disk", col.ID, col.Name)
		}
	}
	return nil
}

// Sync snapshots every currently-live collection to disk and prunes any
// persisted row whose collection is no longer in the queue. Called on a
// timer from the daemon's main loop rather than wired off individual
// queue events, since Events() is a single channel already drained by
// the post-processor — a second concurrent reader would split
// notifications between the two instead of both seeing every one.
// Periodic snapshotting gives up sub-second durability in exchange for
// not needing a fan-out broadcaster in front of the event channel.
func (s *Store) Sync(q *queue.Coordinator) error {
	live := q.Collections()
	liveIDs := make(map[string]bool, len(live))
	for _, col := range live {
		liveIDs[col.ID] = true
		if err := s.SaveCollection(col); err != nil {
			return fmt.Errorf("persist: sync save %s: %w", col.ID, err)
		}
	}

	rows, err := s.db.Query(`SELECT id FROM collections`)
	if err != nil {
		return fmt.Errorf("persist: sync list: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if !liveIDs[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if err := s.DeleteCollection(id); err != nil {
			return fmt.Errorf("persist: sync prune %s: %w", id, err)
		}
	}
	return nil
}
