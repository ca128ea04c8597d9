package rag

import "strings"

const (
	// singleChunkLimit is the content length under which a record is indexed
	// as one chunk without word splitting.
	singleChunkLimit = 1000

	// chunkWords is the window size for longer content.
	chunkWords = 500
)

// SplitContent splits record content into chunks. Short content stays whole;
// longer content is split into consecutive fixed-size word windows. The last
// window may be short, never empty.
func SplitContent(content string) []string {
	if len(content) < singleChunkLimit {
		return []string{content}
	}

	words := strings.Fields(content)
	chunks := make([]string, 0, (len(words)+chunkWords-1)/chunkWords)
	for start := 0; start < len(words); start += chunkWords {
		end := start + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}
