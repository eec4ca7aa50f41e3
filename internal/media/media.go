// Package media defines the per-file technical metadata that scans classify
// and the collaborators that produce it: a Lister that enumerates media files
// under a set of root folders and a Prober that inspects one file.
package media

import (
	"context"
	"errors"
	"iter"
	"strconv"
)

// Probe and listing failures. Callers match them with errors.Is.
var (
	ErrIO                = errors.New("media: io error")
	ErrUnsupportedFormat = errors.New("media: unsupported format")
	ErrRootUnreachable   = errors.New("media: root folder unreachable")
)

// Metadata is the technical description of one media file.
type Metadata struct {
	Codec        string `json:"codec"`
	BitDepth     int    `json:"bit_depth"`
	AudioCodec   string `json:"audio_codec"`
	HasSubtitles bool   `json:"has_subtitles"`
	Resolution   string `json:"resolution"`
	SizeBytes    int64  `json:"size_bytes"`
}

// Fields returns every metadata value in string form, in declaration order.
func (m Metadata) Fields() []string {
	return []string{
		m.Codec,
		strconv.Itoa(m.BitDepth),
		m.AudioCodec,
		strconv.FormatBool(m.HasSubtitles),
		m.Resolution,
		strconv.FormatInt(m.SizeBytes, 10),
	}
}

// Lister enumerates candidate media files under a set of roots. The returned
// sequence is lazy and may be ranged over more than once; each range walks
// the roots again. A yielded error wrapping ErrRootUnreachable means a root
// could not be opened; any other error concerns the yielded path only.
type Lister interface {
	ListFiles(roots []string) iter.Seq2[string, error]
}

// Prober extracts Metadata from a single file. Failures wrap ErrIO or
// ErrUnsupportedFormat.
type Prober interface {
	Probe(ctx context.Context, path string) (Metadata, error)
}

// Source bundles a Lister and a Prober.
type Source interface {
	Lister
	Prober
}

type source struct {
	Lister
	Prober
}

// NewSource combines a lister and a prober into a Source.
func NewSource(l Lister, p Prober) Source {
	return source{Lister: l, Prober: p}
}
