package tagblock

import "regexp"

const (
	// Header opens a current-generation tag block.
	Header = "┈┈┈ \U0001F3F7\uFE0F ┈┈┈"
	// Footer closes a current-generation tag block.
	Footer = "┈┈┈┈┈┈┈┈┈"
	// LinePrefix starts every field line inside a current-generation block.
	LinePrefix = "▸ "
)

// Generation identifies one revision of the tag block wire grammar.
type Generation int

const (
	// GenerationNone means no known block was found.
	GenerationNone Generation = iota
	// GenerationCurrent is the ┈┈┈ 🏷️ ┈┈┈ format written by Encode.
	GenerationCurrent
	// GenerationLegacyV1 is the ============== / 🏷️ Tags format with 🔹/🔸 bullets.
	GenerationLegacyV1
	// GenerationLegacyV2 is the ▀▀▀ 🏷️ TAGS ▀▀▀ format with bold labels.
	GenerationLegacyV2
)

func (g Generation) String() string {
	switch g {
	case GenerationCurrent:
		return "current"
	case GenerationLegacyV1:
		return "legacy_v1"
	case GenerationLegacyV2:
		return "legacy_v2"
	default:
		return "none"
	}
}

// The tag emoji is matched with an optional U+FE0F because Telegram clients
// drop the variation selector when a caption is edited by hand.
const tagEmoji = `\x{1F3F7}\x{FE0F}?`

type recognizer struct {
	generation Generation
	// block captures the block interior in group 1.
	block *regexp.Regexp
	// strip matches the block plus surrounding blank lines.
	strip *regexp.Regexp
	// line captures (label, value) from one interior line.
	line *regexp.Regexp
	// smart enables list inference on decoded values.
	smart bool
}

// recognizers are tried newest first.
var recognizers = []recognizer{
	{
		generation: GenerationCurrent,
		block:      regexp.MustCompile(`┈┈┈ ` + tagEmoji + ` ┈┈┈\n([\s\S]*?)\n┈┈┈┈┈┈┈┈┈\n?`),
		strip:      regexp.MustCompile(`\n*┈┈┈ ` + tagEmoji + ` ┈┈┈\n[\s\S]*?\n┈┈┈┈┈┈┈┈┈\n*`),
		line:       regexp.MustCompile(`▸\s*(.+?):\s*(.*)`),
		smart:      true,
	},
	{
		generation: GenerationLegacyV1,
		block:      regexp.MustCompile(`==============\n` + tagEmoji + ` Tags\n([\s\S]*?)\n==============\n?`),
		strip:      regexp.MustCompile(`\n*==============\n` + tagEmoji + ` Tags\n[\s\S]*?\n==============\n*`),
		line:       regexp.MustCompile(`(?:\x{1F539}|\x{1F538})\s*(.*?):\s*(.*)`),
	},
	{
		generation: GenerationLegacyV2,
		block:      regexp.MustCompile(`▀▀▀ ` + tagEmoji + ` TAGS ▀▀▀\n\n([\s\S]*?)\n\n▀▀▀▀▀▀▀▀▀▀▀▀▀▀\n?`),
		strip:      regexp.MustCompile(`\n*▀▀▀ ` + tagEmoji + ` TAGS ▀▀▀\n\n[\s\S]*?\n\n▀▀▀▀▀▀▀▀▀▀▀▀▀▀\n*`),
		line:       regexp.MustCompile(`▸\s*\*\*(.+?):\*\*\s*(.*)`),
	},
}
