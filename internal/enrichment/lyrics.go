package enrichment

import (
	"strings"
	"unicode"
)

// FormatLyrics shapes a transcript into the lyric layout the generator
// expects. Up to two sentences become a single verse; longer text is split
// at the midpoint, the verse taking the extra sentence when n is odd.
func FormatLyrics(text string) string {
	text = strings.TrimSpace(text)
	sentences := splitSentences(text)
	if len(sentences) <= 2 {
		return "[Verse]\n" + text
	}

	mid := (len(sentences) + 1) / 2
	verse := strings.Join(sentences[:mid], "\n")
	chorus := strings.Join(sentences[mid:], "\n")
	return "[Verse]\n" + verse + "\n\n[Chorus]\n" + chorus
}

// splitSentences splits on Japanese and Latin sentence terminators. A
// period only ends a sentence when followed by whitespace or end of text.
func splitSentences(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		switch r {
		case '。', '！', '？', '!', '?', '．':
			flush()
			continue
		case '.':
			if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
				flush()
				continue
			}
		}
		cur.WriteRune(r)
	}
	flush()
	return out
}
