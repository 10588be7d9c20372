package pdf

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fakeJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0xFF, 0xD9}

func TestWriteSearchablePageStructure(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSearchablePage(&buf, fakeJPEG, 1240, 1754, 150, "hello world\nsecond line")
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "%PDF-1.4\n"))
	assert.True(t, strings.HasSuffix(out, "%%EOF\n"))
	assert.Contains(t, out, "/Filter /DCTDecode")
	assert.Contains(t, out, "/Width 1240 /Height 1754")
	assert.Contains(t, out, "3 Tr", "text layer must be invisible")
	assert.Contains(t, out, "(hello world) Tj")
	assert.Contains(t, out, "(second line) Tj")
	assert.Contains(t, out, "/BaseFont /Helvetica")
	// 1240px at 150dpi is 595.20pt, A4 width
	assert.Contains(t, out, "/MediaBox [0 0 595.20 841.92]")
	assert.True(t, bytes.Contains(buf.Bytes(), fakeJPEG), "JPEG bytes must pass through unmodified")
}

func TestWriteSearchablePageEmptyText(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSearchablePage(&buf, fakeJPEG, 100, 100, 72, "  \n\n ")
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "BT", "no text layer for empty recognition output")
	assert.Contains(t, buf.String(), "/Im0 Do")
}

func TestWriteSearchablePageRejectsBadGeometry(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteSearchablePage(&buf, fakeJPEG, 0, 100, 150, "x"))
	assert.Error(t, WriteSearchablePage(&buf, fakeJPEG, 100, 100, 0, "x"))
}

func TestEscapePDFText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Revenue grew 12%", "Revenue grew 12%"},
		{"parens", "EBITDA (adjusted)", "EBITDA \\(adjusted\\)"},
		{"backslash", `C:\docs`, `C:\\docs`},
		{"non ascii", "naïve", "na ve"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escapePDFText(tt.in))
		})
	}
}
