package telegram

import "strings"

// MessageLimit is the safety threshold for one outbound message, below the
// Bot API's hard 4096-character cap.
const MessageLimit = 4000

// SplitMessage splits text into chunks no longer than limit, breaking on
// line boundaries. Lines accumulate into a chunk until adding the next
// line would exceed the limit. A single line longer than the limit becomes
// its own over-length chunk; the send path handles that rejection.
func SplitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if current.Len() > 0 && current.Len()+len(line)+1 > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
