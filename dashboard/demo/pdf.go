package demo

import (
	"bytes"
	"fmt"
	"strings"

	"dashrpc/dashboard"
)

var pdfEscaper = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)

// boqPDF writes a minimal single-page PDF 1.4 file. The second line is the
// usual high-byte comment marking the file as binary.
func boqPDF(p *dashboard.Project) []byte {
	text := fmt.Sprintf("BT /F1 14 Tf 72 760 Td (Bill of quantities: %s) Tj 0 -24 Td (Client: %s) Tj 0 -24 Td (Status: %s) Tj 0 -24 Td (Total: %.2f EUR) Tj ET",
		pdfEscaper.Replace(p.Name), pdfEscaper.Replace(p.Client), pdfEscaper.Replace(p.Status), p.Total)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(text), text),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
