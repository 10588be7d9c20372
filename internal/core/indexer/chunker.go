package indexer

import (
	"strings"
	"unicode"

	"github.com/paperlens/paperlens/internal/models"
)

// Piece is a chunk of page text before embedding.
type Piece struct {
	Page   int
	Offset int
	Text   string
}

// SplitPages cuts each page's text into overlapping character windows.
// Boundaries prefer whitespace near the window edge so words stay whole;
// the overlap carries context across chunk edges for retrieval.
func SplitPages(pages []models.PageText, size, overlap int) []Piece {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap

	var out []Piece
	for _, page := range pages {
		text := strings.TrimSpace(page.Content)
		if text == "" {
			continue
		}
		runes := []rune(text)
		for start := 0; start < len(runes); start += step {
			end := start + size
			if end >= len(runes) {
				out = append(out, Piece{Page: page.Page, Offset: start, Text: string(runes[start:])})
				break
			}
			cut := breakNear(runes, end)
			out = append(out, Piece{Page: page.Page, Offset: start, Text: string(runes[start:cut])})
		}
	}
	return out
}

// breakNear walks back from end looking for whitespace to cut on, within a
// small window. Falls back to a hard cut mid-word.
func breakNear(runes []rune, end int) int {
	const window = 80
	low := end - window
	if low < 1 {
		low = 1
	}
	for i := end; i > low; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
