package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func collect(t *testing.T, l Lister, roots ...string) ([]string, []error) {
	t.Helper()
	var paths []string
	var errs []error
	for p, err := range l.ListFiles(roots) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		paths = append(paths, p)
	}
	return paths, errs
}

func TestWalkLister_FiltersAndOrders(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b", "Movie.B.mkv"))
	writeFile(t, filepath.Join(root, "a", "Movie.A.MP4"))
	writeFile(t, filepath.Join(root, "a", "notes.txt"))
	writeFile(t, filepath.Join(root, "a", ".hidden.mkv"))
	writeFile(t, filepath.Join(root, ".trash", "Old.mkv"))
	writeFile(t, filepath.Join(root, "a", "Movie.A.sample.mkv"))

	paths, errs := collect(t, NewWalkLister(nil), root)
	require.Empty(t, errs)
	assert.Equal(t, []string{
		filepath.Join(root, "a", "Movie.A.MP4"),
		filepath.Join(root, "b", "Movie.B.mkv"),
	}, paths)
}

func TestWalkLister_Restartable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one.mkv"))
	writeFile(t, filepath.Join(root, "two.mkv"))

	seq := NewWalkLister([]string{"mkv"}).ListFiles([]string{root})

	var first []string
	for p := range seq {
		first = append(first, p)
		break
	}
	var second []string
	for p := range seq {
		second = append(second, p)
	}
	assert.Len(t, first, 1)
	assert.Len(t, second, 2)
}

func TestWalkLister_MissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	paths, errs := collect(t, NewWalkLister(nil), missing)
	assert.Empty(t, paths)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrRootUnreachable))
}

func TestWalkLister_Matches(t *testing.T) {
	l := NewWalkLister([]string{".mkv", "mp4"})
	assert.True(t, l.Matches("Movie.MKV"))
	assert.True(t, l.Matches("Movie.mp4"))
	assert.False(t, l.Matches("Movie.avi"))
	assert.False(t, l.Matches(".Movie.mkv"))
	assert.False(t, l.Matches("Movie.mkv.part"))
	assert.False(t, l.Matches("Movie-sample.mkv"))
}

func TestParseFFProbe_HighTenH264(t *testing.T) {
	out := `{
	  "streams": [
	    {"codec_type": "video", "codec_name": "h264", "pix_fmt": "yuv420p10le", "height": 1080},
	    {"codec_type": "audio", "codec_name": "dts"},
	    {"codec_type": "audio", "codec_name": "aac"},
	    {"codec_type": "subtitle", "codec_name": "subrip"}
	  ],
	  "format": {"size": "4294967296"}
	}`
	md, err := ParseFFProbe([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, Metadata{
		Codec:        "H.264",
		BitDepth:     10,
		AudioCodec:   "DTS",
		HasSubtitles: true,
		Resolution:   "1080p",
		SizeBytes:    4294967296,
	}, md)
}

func TestParseFFProbe_SkipsCoverArt(t *testing.T) {
	out := `{
	  "streams": [
	    {"codec_type": "video", "codec_name": "mjpeg", "disposition": {"attached_pic": 1}},
	    {"codec_type": "video", "codec_name": "hevc", "bits_per_raw_sample": "8", "height": 2160}
	  ],
	  "format": {}
	}`
	md, err := ParseFFProbe([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "HEVC", md.Codec)
	assert.Equal(t, 8, md.BitDepth)
	assert.Equal(t, "2160p", md.Resolution)
	assert.False(t, md.HasSubtitles)
}

func TestParseFFProbe_NoVideo(t *testing.T) {
	_, err := ParseFFProbe([]byte(`{"streams":[{"codec_type":"audio","codec_name":"flac"}]}`))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ParseFFProbe([]byte(`not json`))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFFProbe_MissingFile(t *testing.T) {
	p := NewFFProbe("ffprobe", 0)
	_, err := p.Probe(context.Background(), filepath.Join(t.TempDir(), "missing.mkv"))
	assert.ErrorIs(t, err, ErrIO)
}

func TestMetadataFields(t *testing.T) {
	md := Metadata{Codec: "HEVC", BitDepth: 10, AudioCodec: "AAC", HasSubtitles: true, Resolution: "4K", SizeBytes: 42}
	assert.Equal(t, []string{"HEVC", "10", "AAC", "true", "4K", "42"}, md.Fields())
}
