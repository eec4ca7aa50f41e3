package rule

import (
	"strings"

	"github.com/sydlexius/scanarr/internal/media"
)

// Kind identifies a built-in rule.
type Kind string

// Built-in rule kinds, listed in evaluation precedence order.
const (
	KindH264High10     Kind = "h264_high10"
	KindHighBitDepth   Kind = "high_bit_depth"
	KindAudioCodec     Kind = "audio_codec"
	KindNoSubtitles    Kind = "no_subtitles"
	KindHEVC           Kind = "hevc"
	CustomIssuePrefix       = "Custom rule matched: "
)

// BuiltInKinds lists every built-in rule in precedence order.
var BuiltInKinds = []Kind{
	KindH264High10,
	KindHighBitDepth,
	KindAudioCodec,
	KindNoSubtitles,
	KindHEVC,
}

// Input is everything a rule may look at for one file.
type Input struct {
	Filename string
	Metadata media.Metadata
}

// Rule is either a BuiltIn or a Custom rule. The interface is sealed.
type Rule interface {
	// Name is a stable identifier, e.g. "builtin:hevc" or "custom:x265".
	Name() string
	evaluate(in Input) (issue string, matched bool)
}

// BuiltIn is one of the fixed media-compatibility checks.
type BuiltIn struct {
	Kind Kind
}

// Name implements Rule.
func (b BuiltIn) Name() string { return "builtin:" + string(b.Kind) }

func (b BuiltIn) evaluate(in Input) (string, bool) {
	check, ok := builtinCheckers[b.Kind]
	if !ok {
		return "", false
	}
	return check(in.Metadata)
}

// Custom matches a user keyword against the filename and metadata values.
type Custom struct {
	Keyword string
}

// Name implements Rule.
func (c Custom) Name() string { return "custom:" + c.Keyword }

func (c Custom) evaluate(in Input) (string, bool) {
	needle := strings.ToLower(c.Keyword)
	if needle == "" {
		return "", false
	}
	if strings.Contains(strings.ToLower(in.Filename), needle) {
		return CustomIssuePrefix + c.Keyword, true
	}
	for _, v := range in.Metadata.Fields() {
		if strings.Contains(strings.ToLower(v), needle) {
			return CustomIssuePrefix + c.Keyword, true
		}
	}
	return "", false
}

// IsCustomIssue reports whether an issue string was produced by a Custom rule.
func IsCustomIssue(issue string) bool {
	return strings.HasPrefix(issue, CustomIssuePrefix)
}
