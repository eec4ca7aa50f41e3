package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sydlexius/scanarr/internal/media"
	"github.com/sydlexius/scanarr/internal/scan"
)

const scanColumns = `id, started_at, completed_at, root_folders, files_checked, skipped_count, status, error`

const problemFileColumns = `pf.id, pf.scan_id, pf.path, pf.filename, pf.codec, pf.bit_depth, pf.audio_codec,
	pf.has_subtitles, pf.resolution, pf.size_bytes, pf.issues`

// SQLite is the production scan.Store.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a store over a migrated database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Append implements scan.Store. The scan row and all problem-file rows are
// written in one transaction.
func (s *SQLite) Append(ctx context.Context, sc scan.Scan, files []scan.ProblemFile) error {
	if err := scan.CheckRecord(sc, files); err != nil {
		return err
	}
	roots, err := json.Marshal(nonNil(sc.RootFolders))
	if err != nil {
		return fmt.Errorf("encoding root folders: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans WHERE id = ?`, sc.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking scan id: %w", err)
	}
	if exists > 0 {
		return errDuplicate(sc.ID)
	}

	var completedAt any
	if sc.CompletedAt != nil {
		completedAt = formatTime(*sc.CompletedAt)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans (`+scanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sc.ID, formatTime(sc.StartedAt), completedAt, string(roots),
		sc.FilesChecked, sc.SkippedCount, string(sc.Status), sc.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting scan: %w", err)
	}

	if len(files) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO problem_files (id, scan_id, ordinal, path, filename, codec, bit_depth,
				audio_codec, has_subtitles, resolution, size_bytes, issues)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing problem file insert: %w", err)
		}
		defer stmt.Close() //nolint:errcheck

		for i, f := range files {
			issues, err := json.Marshal(f.Issues)
			if err != nil {
				return fmt.Errorf("encoding issues for %s: %w", f.Path, err)
			}
			md := f.Metadata
			_, err = stmt.ExecContext(ctx,
				f.ID, sc.ID, i, f.Path, f.Filename, md.Codec, md.BitDepth,
				md.AudioCodec, boolToInt(md.HasSubtitles), md.Resolution, md.SizeBytes, string(issues),
			)
			if err != nil {
				return fmt.Errorf("inserting problem file %s: %w", f.Path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing scan %s: %w", sc.ID, err)
	}
	return nil
}

// Get implements scan.Store.
func (s *SQLite) Get(ctx context.Context, id string) (scan.Scan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = ?`, id)
	sc, err := scanScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return scan.Scan{}, scan.ErrNotFound
	}
	if err != nil {
		return scan.Scan{}, fmt.Errorf("getting scan %s: %w", id, err)
	}
	scans := []scan.Scan{sc}
	if err := s.attachProblemIDs(ctx, scans); err != nil {
		return scan.Scan{}, err
	}
	return scans[0], nil
}

// List implements scan.Store. Date and status bounds run in SQL; text search
// and the problem filter are applied to the decoded rows.
func (s *SQLite) List(ctx context.Context, f scan.ScanFilter) ([]scan.Scan, error) {
	var where []string
	var args []any
	if !f.From.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "started_at < ?")
		args = append(args, formatTime(f.To))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	query := `SELECT ` + scanColumns + ` FROM scans`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var scans []scan.Scan
	for rows.Next() {
		sc, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scan row: %w", err)
		}
		scans = append(scans, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scans: %w", err)
	}
	_ = rows.Close()

	if err := s.attachProblemIDs(ctx, scans); err != nil {
		return nil, err
	}

	out := scans[:0]
	for _, sc := range scans {
		if f.Match(sc) {
			out = append(out, sc)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ListProblemFiles implements scan.Store.
func (s *SQLite) ListProblemFiles(ctx context.Context, f scan.ProblemFileFilter) ([]scan.ProblemFile, error) {
	query := `SELECT ` + problemFileColumns + `
		FROM problem_files pf JOIN scans s ON s.id = pf.scan_id`
	var args []any
	if f.ScanID != "" {
		query += " WHERE pf.scan_id = ?"
		args = append(args, f.ScanID)
	}
	query += " ORDER BY s.started_at DESC, s.id, pf.ordinal"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing problem files: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []scan.ProblemFile
	for rows.Next() {
		pf, err := scanProblemFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning problem file row: %w", err)
		}
		if !f.Match(pf) {
			continue
		}
		out = append(out, pf)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, rows.Err()
}

// Purge implements scan.Store. Problem files go with their scan through the
// ON DELETE CASCADE foreign key.
func (s *SQLite) Purge(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE started_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("purging scans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged scans: %w", err)
	}
	return int(n), nil
}

// attachProblemIDs fills ProblemFileIDs for every scan in one query.
func (s *SQLite) attachProblemIDs(ctx context.Context, scans []scan.Scan) error {
	if len(scans) == 0 {
		return nil
	}
	index := make(map[string]int, len(scans))
	for i, sc := range scans {
		index[sc.ID] = i
		scans[i].ProblemFileIDs = []string{}
	}

	query := `SELECT scan_id, id FROM problem_files`
	var args []any
	if len(scans) == 1 {
		query += ` WHERE scan_id = ?`
		args = append(args, scans[0].ID)
	}
	query += ` ORDER BY scan_id, ordinal`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("loading problem file ids: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var scanID, id string
		if err := rows.Scan(&scanID, &id); err != nil {
			return fmt.Errorf("scanning problem file id: %w", err)
		}
		if i, ok := index[scanID]; ok {
			scans[i].ProblemFileIDs = append(scans[i].ProblemFileIDs, id)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScan(row rowScanner) (scan.Scan, error) {
	var (
		sc          scan.Scan
		startedAt   string
		completedAt sql.NullString
		roots       string
		status      string
	)
	err := row.Scan(&sc.ID, &startedAt, &completedAt, &roots,
		&sc.FilesChecked, &sc.SkippedCount, &status, &sc.Error)
	if err != nil {
		return scan.Scan{}, err
	}
	sc.Status = scan.Status(status)
	if sc.StartedAt, err = parseTime(startedAt); err != nil {
		return scan.Scan{}, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return scan.Scan{}, err
		}
		sc.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(roots), &sc.RootFolders); err != nil {
		return scan.Scan{}, fmt.Errorf("decoding root folders: %w", err)
	}
	return sc, nil
}

func scanProblemFile(row rowScanner) (scan.ProblemFile, error) {
	var (
		pf     scan.ProblemFile
		md     media.Metadata
		subs   int
		issues string
	)
	err := row.Scan(&pf.ID, &pf.ScanID, &pf.Path, &pf.Filename, &md.Codec, &md.BitDepth,
		&md.AudioCodec, &subs, &md.Resolution, &md.SizeBytes, &issues)
	if err != nil {
		return scan.ProblemFile{}, err
	}
	md.HasSubtitles = subs != 0
	pf.Metadata = md
	if err := json.Unmarshal([]byte(issues), &pf.Issues); err != nil {
		return scan.ProblemFile{}, fmt.Errorf("decoding issues: %w", err)
	}
	return pf, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
