package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/scanarr/internal/database"
	"github.com/sydlexius/scanarr/internal/media"
	"github.com/sydlexius/scanarr/internal/scan"
)

func newSQLite(t *testing.T) scan.Store {
	t.Helper()
	db, err := database.OpenMigrated(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLite(db)
}

func implementations() map[string]func(t *testing.T) scan.Store {
	return map[string]func(t *testing.T) scan.Store{
		"memory": func(*testing.T) scan.Store { return NewMemory() },
		"sqlite": newSQLite,
	}
}

var base = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func completed(id string, started time.Time, roots []string, problems int) (scan.Scan, []scan.ProblemFile) {
	done := started.Add(time.Minute)
	s := scan.Scan{
		ID:             id,
		StartedAt:      started,
		CompletedAt:    &done,
		RootFolders:    roots,
		FilesChecked:   problems + 3,
		ProblemFileIDs: []string{},
		Status:         scan.StatusCompleted,
	}
	var files []scan.ProblemFile
	for i := range problems {
		pid := fmt.Sprintf("%s-p%d", id, i)
		s.ProblemFileIDs = append(s.ProblemFileIDs, pid)
		files = append(files, scan.ProblemFile{
			ID:       pid,
			ScanID:   id,
			Path:     fmt.Sprintf("%s/Movie.%d.x265.mkv", roots[0], i),
			Filename: fmt.Sprintf("Movie.%d.x265.mkv", i),
			Metadata: media.Metadata{Codec: "HEVC", BitDepth: 10, AudioCodec: "AAC", HasSubtitles: true, Resolution: "2160p", SizeBytes: 1 << 30},
			Issues:   []string{"Color bit depth > 8bit", "Contains HEVC content"},
		})
	}
	return s, files
}

func TestStore_AppendAndGet(t *testing.T) {
	for name, mk := range implementations() {
		t.Run(name, func(t *testing.T) {
			st := mk(t)
			ctx := context.Background()
			s, files := completed("s1", base, []string{"/media/movies"}, 2)
			require.NoError(t, st.Append(ctx, s, files))

			got, err := st.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, s.ID, got.ID)
			assert.True(t, s.StartedAt.Equal(got.StartedAt))
			require.NotNil(t, got.CompletedAt)
			assert.True(t, s.CompletedAt.Equal(*got.CompletedAt))
			assert.Equal(t, []string{"/media/movies"}, got.RootFolders)
			assert.Equal(t, []string{"s1-p0", "s1-p1"}, got.ProblemFileIDs)
			assert.Equal(t, scan.StatusCompleted, got.Status)

			pfs, err := st.ListProblemFiles(ctx, scan.ProblemFileFilter{ScanID: "s1"})
			require.NoError(t, err)
			require.Len(t, pfs, 2)
			assert.Equal(t, files[0], pfs[0])
			assert.Equal(t, files[1], pfs[1])

			_, err = st.Get(ctx, "missing")
			assert.ErrorIs(t, err, scan.ErrNotFound)
		})
	}
}

func TestStore_RejectsInvalidRecords(t *testing.T) {
	for name, mk := range implementations() {
		t.Run(name, func(t *testing.T) {
			st := mk(t)
			ctx := context.Background()

			s, files := completed("s1", base, []string{"/m"}, 1)
			s.Status = scan.StatusRunning
			assert.ErrorIs(t, st.Append(ctx, s, files), scan.ErrInvalidRecord)

			s.Status = scan.StatusCompleted
			files[0].Issues = nil
			assert.ErrorIs(t, st.Append(ctx, s, files), scan.ErrInvalidRecord)

			list, err := st.List(ctx, scan.ScanFilter{})
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestStore_DuplicateAppend(t *testing.T) {
	for name, mk := range implementations() {
		t.Run(name, func(t *testing.T) {
			st := mk(t)
			ctx := context.Background()
			s, files := completed("s1", base, []string{"/m"}, 1)
			require.NoError(t, st.Append(ctx, s, files))
			assert.ErrorIs(t, st.Append(ctx, s, files), ErrDuplicate)
		})
	}
}

func TestStore_ListFilters(t *testing.T) {
	for name, mk := range implementations() {
		t.Run(name, func(t *testing.T) {
			st := mk(t)
			ctx := context.Background()

			a, af := completed("a", base, []string{"/media/movies"}, 1)
			b, bf := completed("b", base.AddDate(0, 0, 1), []string{"/media/tv"}, 0)
			c := scan.Scan{
				ID:          "c",
				StartedAt:   base.AddDate(0, 0, 2),
				RootFolders: []string{"/media/gone"},
				Status:      scan.StatusFailed,
				Error:       "root unreachable",
			}
			require.NoError(t, st.Append(ctx, a, af))
			require.NoError(t, st.Append(ctx, b, bf))
			require.NoError(t, st.Append(ctx, c, nil))

			ids := func(f scan.ScanFilter) []string {
				list, err := st.List(ctx, f)
				require.NoError(t, err)
				var out []string
				for _, s := range list {
					out = append(out, s.ID)
				}
				return out
			}

			assert.Equal(t, []string{"c", "b", "a"}, ids(scan.ScanFilter{}))
			assert.Equal(t, []string{"c", "b"}, ids(scan.ScanFilter{Limit: 2}))
			assert.Equal(t, []string{"b"}, ids(scan.ScanFilter{Search: "TV"}))
			assert.Equal(t, []string{"c"}, ids(scan.ScanFilter{Status: scan.StatusFailed}))
			assert.Equal(t, []string{"a"}, ids(scan.ScanFilter{WithProblems: true}))

			from, to := scan.DayRange(base.AddDate(0, 0, 1), base.AddDate(0, 0, 1))
			assert.Equal(t, []string{"b"}, ids(scan.ScanFilter{From: from, To: to}))
		})
	}
}

func TestStore_ProblemFileSearch(t *testing.T) {
	for name, mk := range implementations() {
		t.Run(name, func(t *testing.T) {
			st := mk(t)
			ctx := context.Background()
			a, af := completed("a", base, []string{"/movies"}, 3)
			b, bf := completed("b", base.Add(time.Hour), []string{"/tv"}, 2)
			require.NoError(t, st.Append(ctx, a, af))
			require.NoError(t, st.Append(ctx, b, bf))

			all, err := st.ListProblemFiles(ctx, scan.ProblemFileFilter{})
			require.NoError(t, err)
			require.Len(t, all, 5)
			assert.Equal(t, "b", all[0].ScanID)

			hits, err := st.ListProblemFiles(ctx, scan.ProblemFileFilter{Search: "movie.1."})
			require.NoError(t, err)
			assert.Len(t, hits, 2)

			limited, err := st.ListProblemFiles(ctx, scan.ProblemFileFilter{Search: "hevc", Limit: 4})
			require.NoError(t, err)
			assert.Len(t, limited, 4)
		})
	}
}

func TestStore_Purge(t *testing.T) {
	for name, mk := range implementations() {
		t.Run(name, func(t *testing.T) {
			st := mk(t)
			ctx := context.Background()
			now := base.AddDate(0, 0, 100)

			old, oldFiles := completed("old", now.AddDate(0, 0, -91), []string{"/m"}, 2)
			edge, edgeFiles := completed("edge", now.AddDate(0, 0, -90), []string{"/m"}, 1)
			fresh, freshFiles := completed("fresh", now.AddDate(0, 0, -1), []string{"/m"}, 1)
			require.NoError(t, st.Append(ctx, old, oldFiles))
			require.NoError(t, st.Append(ctx, edge, edgeFiles))
			require.NoError(t, st.Append(ctx, fresh, freshFiles))

			n, err := st.Purge(ctx, now.AddDate(0, 0, -90))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = st.Get(ctx, "old")
			assert.ErrorIs(t, err, scan.ErrNotFound)

			pfs, err := st.ListProblemFiles(ctx, scan.ProblemFileFilter{})
			require.NoError(t, err)
			assert.Len(t, pfs, 2)
			for _, pf := range pfs {
				assert.NotEqual(t, "old", pf.ScanID)
			}
		})
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	s, files := completed("s1", base, []string{"/m"}, 1)
	require.NoError(t, st.Append(ctx, s, files))

	got, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	got.RootFolders[0] = "/mutated"

	again, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "/m", again.RootFolders[0])
}
