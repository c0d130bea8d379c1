package persist

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/nzbfile"
)

// Add implements postprocess.HistoryWriter: it snapshots a finished
// collection into the history table and removes its row from the
// in-flight collections table, since the State Persistor only keeps one
// durable copy of a collection's lifecycle at a time (spec §4.6).
func (s *Store) Add(col *model.Collection) error {
	entry := model.NewHistoryEntry(col)

	params, err := json.Marshal(entry.Params)
	if err != nil {
		return fmt.Errorf("persist: marshal history params: %w", err)
	}

	if col.AvoidHistory {
		return s.DeleteCollection(col.ID)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO history (
			id, collection_id, name, category, dupe_key, dupe_score, dupe_mode,
			dupe_backup, size, par_status, unpack_status, move_status,
			script_status, delete_status, mark_status, nzb_filename, dest_dir,
			params_json, compact, completed_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		entry.ID, entry.CollectionID, entry.Name, entry.Category, entry.DupeKey, entry.DupeScore, string(entry.DupeMode),
		entry.DupeBackup, entry.Size, string(entry.ParStatus), string(entry.UnpackStatus), string(entry.MoveStatus),
		string(entry.ScriptStatus), string(entry.DeleteStatus), string(entry.MarkStatus), entry.NZBFilename, entry.DestDir,
		string(params), entry.Compact, entry.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("persist: insert history: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM collections WHERE id = ?`, col.ID); err != nil {
		return fmt.Errorf("persist: clear finished collection: %w", err)
	}
	return tx.Commit()
}

// Delete removes a history entry outright. NZBGet distinguishes a plain
// delete (which can still dominate a future dupe-check via its compact
// placeholder) from a final delete (which forgets the entry entirely);
// since this table never compacts a deleted row into a placeholder on
// its own, both forms just remove the row — final additionally matches
// AvoidHistory's effect at the collection level.
func (s *Store) Delete(id string, final bool) error {
	_, err := s.db.Exec(`DELETE FROM history WHERE id = ?`, id)
	return err
}

func (s *Store) SetMark(id string, mark model.MarkStatus) error {
	return s.updateHistoryField(id, "mark_status", string(mark))
}

func (s *Store) SetDupeKey(id, key string) error {
	return s.updateHistoryField(id, "dupe_key", key)
}

func (s *Store) SetDupeScore(id string, score int) error {
	return s.updateHistoryField(id, "dupe_score", score)
}

func (s *Store) SetDupeMode(id string, mode model.DupeMode) error {
	return s.updateHistoryField(id, "dupe_mode", string(mode))
}

func (s *Store) SetDupeBackup(id string, backup bool) error {
	return s.updateHistoryField(id, "dupe_backup", backup)
}

func (s *Store) updateHistoryField(id, column string, value any) error {
	res, err := s.db.Exec(fmt.Sprintf(`UPDATE history SET %s = ? WHERE id = ?`, column), value, id)
	if err != nil {
		return fmt.Errorf("persist: update history %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("persist: history entry %s not found", id)
	}
	return nil
}

// SetParam stores one post-processing parameter against a history entry,
// folded into its params_json blob so editor.SetParam can target history
// the same way the live queue's ActionGroupSetPostParameter does.
func (s *Store) SetParam(id, name, value string) error {
	row := s.db.QueryRow(`SELECT params_json FROM history WHERE id = ?`, id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("persist: history entry %s not found", id)
		}
		return err
	}
	params := make(model.PostParams)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return fmt.Errorf("persist: unmarshal history params: %w", err)
		}
	}
	params[name] = value
	encoded, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return s.updateHistoryField(id, "params_json", string(encoded))
}

// historyRecord is the scanned shape ReturnToQueue/Redownload need to
// rebuild a queueable Collection.
type historyRecord struct {
	name, category, dupeKey, dupeMode, nzbFilename, destDir string
	dupeScore                                               int
	priority                                                int
}

func (s *Store) loadHistoryRecord(id string) (*historyRecord, error) {
	row := s.db.QueryRow(`
		SELECT name, category, dupe_key, dupe_score, dupe_mode, nzb_filename, dest_dir
		FROM history WHERE id = ?`, id)
	r := &historyRecord{}
	if err := row.Scan(&r.name, &r.category, &r.dupeKey, &r.dupeScore, &r.dupeMode, &r.nzbFilename, &r.destDir); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("persist: history entry %s not found", id)
		}
		return nil, err
	}
	return r, nil
}

// rebuildFromNZB re-reads the original .nzb document off disk and turns
// it back into a fresh Collection. History only keeps a terminal
// summary, not the per-file/article state, so both return-to-queue and
// redownload start from the NZB's declared contents again; if the
// operator's config deletes queued .nzb files after they're accepted,
// the original document is gone and this fails — same failure mode
// original_source has when its nzb-dir-history copy has been pruned.
func rebuildFromNZB(r *historyRecord) (*model.Collection, error) {
	f, err := os.Open(r.nzbFilename)
	if err != nil {
		return nil, fmt.Errorf("persist: reopen original nzb %s: %w", r.nzbFilename, err)
	}
	defer f.Close()

	parsed, err := nzbfile.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("persist: reparse %s: %w", r.nzbFilename, err)
	}

	col := nzbfile.ToCollection(parsed, r.name, r.nzbFilename, r.destDir, r.category, r.priority)
	col.DupeKey = r.dupeKey
	col.DupeScore = r.dupeScore
	if r.dupeMode != "" {
		col.DupeMode = model.DupeMode(r.dupeMode)
	}
	return col, nil
}

// ReturnToQueue rebuilds the collection from its original NZB and, for
// any file whose final destination path already exists on disk from the
// prior run, marks it fully downloaded so the scheduler doesn't redo
// work a previous pass already finished (spec §4.4 "return to queue"
// keeping already-downloaded bytes where possible).
func (s *Store) ReturnToQueue(id string) (*model.Collection, error) {
	rec, err := s.loadHistoryRecord(id)
	if err != nil {
		return nil, err
	}
	col, err := rebuildFromNZB(rec)
	if err != nil {
		return nil, err
	}
	for _, fl := range col.Files {
		if _, err := os.Stat(fl.FinalPath); err == nil {
			fl.RemainingSize = 0
			for _, a := range fl.Articles {
				a.Status = model.ArticleFinishedOK
			}
		}
	}
	col.RecalculateRemaining()
	return col, nil
}

// Redownload rebuilds the collection from its original NZB with no
// reuse of previously-downloaded bytes, spec §4.4's "start over".
func (s *Store) Redownload(id string) (*model.Collection, error) {
	rec, err := s.loadHistoryRecord(id)
	if err != nil {
		return nil, err
	}
	return rebuildFromNZB(rec)
}

// Reprocess re-enters post-processing for a history entry without
// touching the queue, by resetting its recorded par/unpack/move/script
// status back to none so a future post-process pass treats it as fresh
// (spec §4.4 history "re-process"). It does not re-fetch anything; it
// assumes the destination directory's files are still present.
func (s *Store) Reprocess(id string) error {
	res, err := s.db.Exec(`
		UPDATE history SET par_status=?, unpack_status=?, move_status=?, script_status=?
		WHERE id = ?`,
		string(model.StageNone), string(model.UnpackNone), string(model.StageNone), string(model.StageNone), id)
	if err != nil {
		return fmt.Errorf("persist: reprocess: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("persist: history entry %s not found", id)
	}
	return nil
}
