package pdf

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// WriteSearchablePage writes a single-page PDF that layers invisible
// (render mode 3) text over the page image, the same artifact Tesseract's
// own PDF renderer produces. The image is embedded as a DCTDecode XObject so
// the JPEG bytes pass through untouched; the text is distributed line by
// line down the page box so selections land near the source layout.
//
// width/height are the image dimensions in pixels; dpi converts them to the
// page box in points.
func WriteSearchablePage(w io.Writer, jpegData []byte, width, height int, dpi float64, text string) error {
	if width <= 0 || height <= 0 || dpi <= 0 {
		return fmt.Errorf("invalid page geometry %dx%d@%g", width, height, dpi)
	}
	pageW := float64(width) * 72 / dpi
	pageH := float64(height) * 72 / dpi

	content := buildContentStream(pageW, pageH, text)

	var buf bytes.Buffer
	offsets := make([]int, 0, 7)
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")

	writeObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	writeObj("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	writeObj(fmt.Sprintf(
		"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.2f %.2f] "+
			"/Resources << /XObject << /Im0 5 0 R >> /Font << /F1 6 0 R >> >> "+
			"/Contents 4 0 R >>\nendobj\n", pageW, pageH))
	writeObj(fmt.Sprintf("4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n",
		len(content), content))

	offsets = append(offsets, buf.Len())
	buf.WriteString(fmt.Sprintf(
		"5 0 obj\n<< /Type /XObject /Subtype /Image /Width %d /Height %d "+
			"/ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode /Length %d >>\nstream\n",
		width, height, len(jpegData)))
	buf.Write(jpegData)
	buf.WriteString("\nendstream\nendobj\n")

	writeObj("6 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xrefPos := buf.Len()
	buf.WriteString(fmt.Sprintf("xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1))
	for _, off := range offsets {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
	}
	buf.WriteString(fmt.Sprintf(
		"trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, xrefPos))

	_, err := w.Write(buf.Bytes())
	return err
}

// buildContentStream paints the image across the full page box and lays the
// recognized text under it in invisible render mode.
func buildContentStream(pageW, pageH float64, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "q\n%.2f 0 0 %.2f 0 0 cm\n/Im0 Do\nQ\n", pageW, pageH)

	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		return b.String()
	}

	lineH := pageH / float64(len(lines)+1)
	fontSize := lineH * 0.8
	if fontSize > 12 {
		fontSize = 12
	}
	if fontSize < 4 {
		fontSize = 4
	}

	fmt.Fprintf(&b, "BT\n3 Tr\n/F1 %.2f Tf\n", fontSize)
	for i, line := range lines {
		y := pageH - float64(i+1)*lineH
		fmt.Fprintf(&b, "1 0 0 1 4.00 %.2f Tm\n(%s) Tj\n", y, escapePDFText(line))
	}
	b.WriteString("ET\n")
	return b.String()
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// escapePDFText makes a string safe for a PDF literal string: delimiters are
// escaped and anything outside printable ASCII becomes a space (the layer is
// invisible; search fidelity for Latin text is what matters here).
func escapePDFText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '(' || r == ')' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r >= 32 && r < 127:
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}
