package report

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	inchToMm               = 25.4
	pdfPageWidthLandscape  = 11 * inchToMm // Letter landscape
	pdfPageHeightLandscape = 8.5 * inchToMm
	pdfMargin              = 0.5 * inchToMm
	pdfContentWidth        = pdfPageWidthLandscape - (2 * pdfMargin)
)

// pdfStyler holds reusable styling and state for PDF generation
type pdfStyler struct {
	pdf         *gofpdf.Fpdf
	styles      map[string]func()
	lineHeight  float64
	currentY    float64 // manually tracked Y for flowing content
	pageHeight  float64
	contentTopY float64
}

func newPDFStyler(pdf *gofpdf.Fpdf) *pdfStyler {
	s := &pdfStyler{
		pdf:         pdf,
		styles:      make(map[string]func()),
		lineHeight:  6,
		pageHeight:  pdfPageHeightLandscape - pdfMargin,
		contentTopY: pdfMargin,
	}
	s.currentY = s.contentTopY
	s.defineStyles()
	return s
}

func (s *pdfStyler) defineStyles() {
	s.styles["h1"] = func() {
		s.pdf.SetFont("Arial", "B", 16)
		s.pdf.SetTextColor(0, 0, 0)
	}
	s.styles["h2"] = func() {
		s.pdf.SetFont("Arial", "B", 13)
		s.pdf.SetTextColor(0, 0, 0)
	}
	s.styles["normal"] = func() {
		s.pdf.SetFont("Arial", "", 10)
		s.pdf.SetTextColor(0, 0, 0)
	}
	s.styles["pass"] = func() {
		s.pdf.SetFont("Arial", "B", 11)
		s.pdf.SetTextColor(0, 130, 0)
	}
	s.styles["fail"] = func() {
		s.pdf.SetFont("Arial", "B", 11)
		s.pdf.SetTextColor(200, 0, 0)
	}
	s.styles["tableHeader"] = func() {
		s.pdf.SetFont("Arial", "B", 9)
		s.pdf.SetFillColor(200, 200, 200)
		s.pdf.SetTextColor(0, 0, 0)
	}
	s.styles["tableCell"] = func() {
		s.pdf.SetFont("Arial", "", 9)
		s.pdf.SetTextColor(50, 50, 50)
	}
	s.styles["tableCellRed"] = func() {
		s.pdf.SetFont("Arial", "B", 9)
		s.pdf.SetTextColor(200, 0, 0)
	}
}

func (s *pdfStyler) applyStyle(styleName string) {
	if fn, ok := s.styles[styleName]; ok {
		fn()
	} else {
		s.styles["normal"]()
	}
}

func (s *pdfStyler) checkAddPage(neededHeight float64) {
	if s.currentY+neededHeight > s.pageHeight {
		s.newPage()
	}
}

func (s *pdfStyler) newPage() {
	s.pdf.AddPage()
	s.currentY = s.contentTopY
}

func (s *pdfStyler) writeParagraph(text string, styleName string, align string) {
	s.applyStyle(styleName)
	lines := s.pdf.SplitLines([]byte(text), pdfContentWidth)
	s.checkAddPage(float64(len(lines)) * s.lineHeight)

	s.pdf.SetXY(pdfMargin, s.currentY)
	s.pdf.MultiCell(pdfContentWidth, s.lineHeight, text, "", align, false)
	s.currentY = s.pdf.GetY() + 1
}

func (s *pdfStyler) addSpacer(height float64) {
	s.checkAddPage(height)
	s.currentY += height
}

func (s *pdfStyler) addImage(imageBytes []byte, imageName string, width float64, height float64, caption string) {
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	info := s.pdf.RegisterImageOptionsReader(imageName, opts, bytes.NewReader(imageBytes))
	if info == nil || s.pdf.Err() {
		log.Printf("Warning: could not register image %s: %v", imageName, s.pdf.Error())
		s.pdf.ClearError()
		s.writeParagraph(fmt.Sprintf("Plot %s not available.", imageName), "normal", "L")
		return
	}
	if height == 0 {
		height = width * info.Height() / info.Width()
	}
	if width > pdfContentWidth {
		ratio := pdfContentWidth / width
		width = pdfContentWidth
		height *= ratio
	}

	captionHeight := 0.0
	if caption != "" {
		captionHeight = s.lineHeight + 1
	}
	s.checkAddPage(height + captionHeight)

	s.pdf.ImageOptions(imageName, pdfMargin+(pdfContentWidth-width)/2, s.currentY, width, height, false, opts, 0, "")
	s.currentY += height

	if caption != "" {
		s.addSpacer(1)
		s.writeParagraph(caption, "normal", "C")
	}
	s.addSpacer(2)
}

// writeTable draws a bordered table; highlight marks cells drawn in red.
func (s *pdfStyler) writeTable(headers []string, widthsRel []float64, rows [][]string, highlight func(row, col int) bool) {
	widths := make([]float64, len(widthsRel))
	for i, rel := range widthsRel {
		widths[i] = rel * pdfContentWidth
	}
	header := func() {
		s.applyStyle("tableHeader")
		x := pdfMargin
		for i, h := range headers {
			s.pdf.SetXY(x, s.currentY)
			s.pdf.CellFormat(widths[i], s.lineHeight, h, "1", 0, "C", true, 0, "")
			x += widths[i]
		}
		s.currentY += s.lineHeight
	}

	s.checkAddPage(s.lineHeight * 2)
	header()
	for r, row := range rows {
		if s.currentY+s.lineHeight > s.pageHeight {
			s.newPage()
			header()
		}
		x := pdfMargin
		for c, cell := range row {
			if highlight != nil && highlight(r, c) {
				s.applyStyle("tableCellRed")
			} else {
				s.applyStyle("tableCell")
			}
			s.pdf.SetXY(x, s.currentY)
			s.pdf.CellFormat(widths[c], s.lineHeight, cell, "1", 0, "C", false, 0, "")
			x += widths[c]
		}
		s.currentY += s.lineHeight
	}
}

func formatMs(v float64) string {
	switch {
	case math.IsNaN(v):
		return "-"
	case math.IsInf(v, 1):
		return "never"
	}
	return fmt.Sprintf("%.3f", v)
}

func formatRad(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4g", v)
}

// buildPDFReport renders every section of a run into one PDF file.
func buildPDFReport(path string, b *Builder) error {
	pdf := gofpdf.New("L", "mm", "Letter", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.AddPage()

	styler := newPDFStyler(pdf)

	styler.writeParagraph(b.Title, "h1", "C")
	styler.addSpacer(3)
	styler.writeParagraph(fmt.Sprintf("Run %s, started %s, %d scenario(s)", b.RunID, b.StartedAt.Format("2006-01-02 15:04:05 MST"), len(b.sections)), "normal", "L")
	styler.addSpacer(4)

	if len(b.sections) == 0 {
		styler.writeParagraph("No scenarios were evaluated in this run.", "normal", "L")
		return pdf.OutputFileAndClose(path)
	}

	styler.writeParagraph("Summary", "h2", "L")
	headers := []string{"Scenario", "Result", "out settle (ms)", "pe settle (ms)", "freq settle (ms)", "min step (rad)", "CNR out"}
	rows := make([][]string, 0, len(b.sections))
	for _, sec := range b.sections {
		result := "PASS"
		if !sec.summary.Pass {
			result = "FAIL"
		}
		rows = append(rows, []string{
			sec.Name,
			result,
			formatMs(sec.summary.OutMs),
			formatMs(sec.summary.PEMs),
			formatMs(sec.summary.FreqMs),
			formatRad(sec.summary.MinStepRad),
			formatDB(sec.summary.CNROut),
		})
	}
	styler.writeTable(headers, []float64{0.24, 0.08, 0.14, 0.14, 0.14, 0.14, 0.12}, rows, func(r, c int) bool {
		return c == 1 && !b.sections[r].summary.Pass
	})

	imgWidth := pdfContentWidth * 0.85
	for _, sec := range b.sections {
		styler.newPage()
		styler.writeParagraph(sec.Name, "h1", "L")
		if sec.Description != "" {
			styler.writeParagraph(sec.Description, "normal", "L")
		}
		styler.writeParagraph(sec.ParamLine, "normal", "L")
		styler.addSpacer(2)

		if sec.summary.Pass {
			styler.writeParagraph("PASS: every expectation held.", "pass", "L")
		} else {
			styler.writeParagraph(fmt.Sprintf("FAIL: %d expectation(s) violated.", len(sec.Failures)), "fail", "L")
			for _, f := range sec.Failures {
				styler.writeParagraph("- "+f, "normal", "L")
			}
		}
		styler.addSpacer(2)

		if len(sec.Metrics) > 0 {
			styler.writeTable([]string{"Metric", "Value"}, []float64{0.5, 0.5}, sec.Metrics, nil)
			styler.addSpacer(4)
		}
		for _, w := range sec.Warnings {
			styler.writeParagraph("Note: "+w, "normal", "L")
		}
		for _, img := range sec.Images {
			styler.addImage(img.PNG, sec.Name+"_"+img.Key, imgWidth, 0, img.Caption)
		}
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// paramLine summarizes the run parameters on one line.
func paramLine(fields [][2]string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		parts = append(parts, f[0]+"="+f[1])
	}
	return strings.Join(parts, ", ")
}
