package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"handbook-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

const defaultPageNumber = 1

var (
	xmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	// form feed or a run of blank lines separates pages in plain text exports
	textPageBreakRe = regexp.MustCompile(`\f|\n{4,}`)
)

// SupportedExtensions lists the file types ExtractPages understands
var SupportedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".xltx", ".txt"}

// IsSupported reports whether ExtractPages can read the file
func IsSupported(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// DocumentName is the identifier stored with every chunk: the base filename without extension
func DocumentName(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ExtractPages returns the non-empty pages of a document, numbered from 1.
// Formats without pages use sheets or slides as pages, or a single page.
func ExtractPages(filePath string) ([]models.PageText, error) {
	var (
		pages []models.PageText
		err   error
	)
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		pages, err = parsePDF(filePath)
	case ".docx":
		pages, err = parseDOCX(filePath)
	case ".pptx":
		pages, err = parsePPTX(filePath)
	case ".xlsx":
		pages, err = parseXLSX(filePath)
	case ".xlsm", ".xltx":
		pages, err = parseExcelize(filePath)
	case ".txt":
		pages, err = parseText(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return nil, err
	}
	return compactPages(pages), nil
}

func parsePDF(filePath string) ([]models.PageText, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	var pages []models.PageText
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		pages = append(pages, models.PageText{PageNumber: i, Text: pageText})
	}
	return pages, nil
}

func parseDOCX(filePath string) ([]models.PageText, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// paragraph ends become blank lines so the chunker keeps paragraph boundaries
	content := strings.ReplaceAll(r.Editable().GetContent(), "</w:p>", "\n\n")
	text := xmlTagRe.ReplaceAllString(content, "")
	// DOCX has no page numbers
	return []models.PageText{{PageNumber: defaultPageNumber, Text: text}}, nil
}

func parsePPTX(filePath string) ([]models.PageText, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.PageText
	for _, file := range f.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		slideNum, _ := strconv.Atoi(m[1])
		rc, err := file.Open()
		if err != nil {
			log.Warn().Err(err).Str("file", filePath).Str("slide", file.Name).Msg("Skipping unreadable slide")
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			log.Warn().Err(err).Str("file", filePath).Str("slide", file.Name).Msg("Skipping unreadable slide")
			continue
		}
		pages = append(pages, models.PageText{PageNumber: slideNum, Text: extractTextFromXML(string(data))})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

func parseXLSX(filePath string) ([]models.PageText, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var pages []models.PageText
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		pages = append(pages, models.PageText{PageNumber: sheetNum + 1, Text: text.String()})
	}
	return pages, nil
}

func parseExcelize(filePath string) ([]models.PageText, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.PageText
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			log.Warn().Err(err).Str("file", filePath).Str("sheet", sheetName).Msg("Skipping unreadable sheet")
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		pages = append(pages, models.PageText{PageNumber: sheetNum + 1, Text: text.String()})
	}
	return pages, nil
}

func parseText(filePath string) ([]models.PageText, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return SplitTextPages(string(data)), nil
}

// SplitTextPages splits a plain text export into pages on form feeds or long blank runs
func SplitTextPages(text string) []models.PageText {
	var pages []models.PageText
	for i, pageText := range textPageBreakRe.Split(text, -1) {
		pages = append(pages, models.PageText{PageNumber: i + 1, Text: pageText})
	}
	return compactPages(pages)
}

// compactPages trims page text and drops empty pages, keeping original page numbers
func compactPages(pages []models.PageText) []models.PageText {
	out := pages[:0]
	for _, p := range pages {
		p.Text = strings.TrimSpace(p.Text)
		if p.Text == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(part[:endIdx] + " ")
		}
	}
	return text.String()
}
