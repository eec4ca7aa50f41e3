package rule

import (
	"strings"

	"github.com/sydlexius/scanarr/internal/media"
)

// checker evaluates one built-in rule. It returns the issue text and true
// when the rule fires.
type checker func(md media.Metadata) (string, bool)

var builtinCheckers = map[Kind]checker{
	KindH264High10:   checkH264High10,
	KindHighBitDepth: checkHighBitDepth,
	KindAudioCodec:   checkAudioCodec,
	KindNoSubtitles:  checkNoSubtitles,
	KindHEVC:         checkHEVC,
}

// flaggedAudioCodecs are passthrough formats many clients cannot decode.
var flaggedAudioCodecs = []string{"DTS", "EAC3"}

func checkH264High10(md media.Metadata) (string, bool) {
	if strings.EqualFold(md.Codec, "H.264") && md.BitDepth > 8 {
		return "H.264 High10 profile", true
	}
	return "", false
}

func checkHighBitDepth(md media.Metadata) (string, bool) {
	if md.BitDepth > 8 {
		return "Color bit depth > 8bit", true
	}
	return "", false
}

func checkAudioCodec(md media.Metadata) (string, bool) {
	for _, c := range flaggedAudioCodecs {
		if strings.EqualFold(md.AudioCodec, c) {
			return "Audio codec is " + md.AudioCodec, true
		}
	}
	return "", false
}

func checkNoSubtitles(md media.Metadata) (string, bool) {
	if md.HasSubtitles {
		return "", false
	}
	return "No embedded subtitles", true
}

func checkHEVC(md media.Metadata) (string, bool) {
	if strings.EqualFold(md.Codec, "HEVC") || strings.EqualFold(md.Codec, "H.265") {
		return "Contains HEVC content", true
	}
	return "", false
}
