package knowledge

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/spigell/auto-apply/internal/utils"
)

// ParsedCV is the persisted form of the parsed CV.
type ParsedCV struct {
	SourcePDF string      `json:"source_pdf"`
	ParsedAt  string      `json:"parsed_at"`
	Pages     []CVPage    `json:"pages"`
	Chunks    []CVSection `json:"chunks"`
}

type CVPage struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

type CVSection struct {
	ID     string   `json:"id"`
	Page   int      `json:"page"`
	Text   string   `json:"text"`
	Tokens []string `json:"tokens"`
}

// extractPages returns the raw text of every page. Replaced in tests.
var extractPages = readPDFPages

// ParseAndPersistCV extracts the CV text, writes parsed_cv.json and indexes one chunk per paragraph.
func (s *Store) ParseAndPersistCV(path string) (*ParsedCV, error) {
	pages, err := extractPages(path)
	if err != nil {
		return nil, fmt.Errorf("parse cv %q: %w", path, err)
	}

	parsed := &ParsedCV{
		SourcePDF: path,
		ParsedAt:  s.now().UTC().Format("2006-01-02T15:04:05.000000Z"),
		Pages:     make([]CVPage, 0, len(pages)),
	}

	var chunks []Chunk
	for idx, raw := range pages {
		pageNum := idx + 1
		parsed.Pages = append(parsed.Pages, CVPage{Page: pageNum, Text: normalize(raw)})
		for _, block := range paragraphs(raw) {
			chunk := newChunk(block, SourceCV, pageNum)
			chunks = append(chunks, chunk)
			parsed.Chunks = append(parsed.Chunks, CVSection{
				ID:     fmt.Sprintf("chunk-%d", len(parsed.Chunks)+1),
				Page:   pageNum,
				Text:   block,
				Tokens: chunk.tokens,
			})
		}
	}

	if err := utils.WriteJSON(filepath.Join(s.dir, parsedCVFile), parsed); err != nil {
		return nil, fmt.Errorf("persist parsed cv: %w", err)
	}

	s.replace(SourceCV, chunks)
	s.logger.Debug("cv indexed", zap.Int("pages", len(pages)), zap.Int("chunks", len(chunks)))
	return parsed, nil
}

func readPDFPages(path string) ([]string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// maxChunkRunes bounds one CV evidence chunk.
const maxChunkRunes = 300

// paragraphs splits page text into evidence blocks. Blank lines always end a block;
// consecutive lines are joined until the block would exceed maxChunkRunes.
// PDF text extraction rarely emits blank lines, so the size bound does most of the work.
func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		blocks  []string
		current []string
		size    int
	)
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, " "))
		}
		current, size = nil, 0
	}

	for _, line := range strings.Split(text, "\n") {
		words := strings.Fields(strings.ReplaceAll(line, "\u00a0", " "))
		if len(words) == 0 {
			flush()
			continue
		}
		for _, word := range words {
			n := utf8.RuneCountInString(word)
			if size > 0 && size+1+n > maxChunkRunes {
				flush()
			}
			if size > 0 {
				size++
			}
			current = append(current, word)
			size += n
		}
	}
	flush()
	return blocks
}
