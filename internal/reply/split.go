package reply

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Chunk is one outbound message. Marker is empty on the first chunk and
// "(cont. N) " on the N-th after it, so order survives out-of-order
// delivery. Payloads concatenate to the original text.
type Chunk struct {
	Marker  string
	Payload string
}

// Text is what gets sent.
func (c Chunk) Text() string {
	return c.Marker + c.Payload
}

func marker(n int) string {
	if n == 1 {
		return ""
	}
	return fmt.Sprintf("(cont. %d) ", n)
}

// Split cuts text into chunks of at most limit characters, marker
// included. Each cut falls just after the last whitespace that fits, or
// exactly at the limit when there is none. Cuts land on byte offsets, so
// invalid UTF-8 passes through unchanged, each bad byte counting as one
// character.
func Split(text string, limit int) []Chunk {
	if utf8.RuneCountInString(text) <= limit {
		return []Chunk{{Payload: text}}
	}

	// starts[k] is the byte offset of character k; the final entry is len(text).
	starts := make([]int, 0, len(text)+1)
	for off := 0; off < len(text); {
		starts = append(starts, off)
		_, size := utf8.DecodeRuneInString(text[off:])
		off += size
	}
	starts = append(starts, len(text))
	count := len(starts) - 1

	var chunks []Chunk
	for i, n := 0, 1; i < count; n++ {
		m := marker(n)
		budget := limit - utf8.RuneCountInString(m)
		if budget < 1 {
			budget = 1
		}
		if count-i <= budget {
			chunks = append(chunks, Chunk{Marker: m, Payload: text[starts[i]:]})
			break
		}

		cut := budget
		for j := budget - 1; j > 0; j-- {
			r, _ := utf8.DecodeRuneInString(text[starts[i+j]:])
			if unicode.IsSpace(r) {
				cut = j + 1
				break
			}
		}
		chunks = append(chunks, Chunk{Marker: m, Payload: text[starts[i]:starts[i+cut]]})
		i += cut
	}
	return chunks
}
