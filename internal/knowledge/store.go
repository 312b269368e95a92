package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/auto-apply/internal/utils"
)

// Source tags where an evidence chunk came from.
type Source string

const (
	SourceProfile     Source = "profile"
	SourceCV          Source = "cv"
	SourceCoverLetter Source = "cover_letter"
)

const (
	storeDir         = "memory/profile_store"
	profileFile      = "profile_application.json"
	parsedCVFile     = "parsed_cv.json"
	coverLetterFile  = "cover_letter.txt"
	profileKeyPrefix = "profile"
)

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// Chunk is one piece of evidence returned by Search.
type Chunk struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
	Page   int    `json:"page,omitempty"`

	tokens []string
}

// Store keeps the candidate's profile, CV and cover letter as searchable chunks
// and mirrors them on disk under memory/profile_store.
type Store struct {
	mu     sync.RWMutex
	dir    string
	chunks []Chunk
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a store rooted at baseDir.
func NewStore(baseDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Join(baseDir, storeDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge store directory: %w", err)
	}
	return &Store{dir: dir, logger: logger, now: time.Now}, nil
}

// Dir returns the directory holding the persisted documents.
func (s *Store) Dir() string { return s.dir }

// PersistProfile copies the profile document into the store and indexes every leaf value.
func (s *Store) PersistProfile(path string) (map[string]any, error) {
	var data map[string]any
	if err := utils.ReadJSON(path, &data); err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}

	if err := utils.WriteJSON(filepath.Join(s.dir, profileFile), data); err != nil {
		return nil, fmt.Errorf("persist profile: %w", err)
	}

	var chunks []Chunk
	flatten(profileKeyPrefix, data, func(key string, value any) {
		text := normalize(fmt.Sprint(value))
		if text == "" {
			return
		}
		chunks = append(chunks, newChunk(fmt.Sprintf("%s: %s", key, text), SourceProfile, 0))
	})

	s.replace(SourceProfile, chunks)
	s.logger.Debug("profile indexed", zap.Int("chunks", len(chunks)))
	return data, nil
}

// CoverLetterPath is where PersistCoverLetter writes the text.
func (s *Store) CoverLetterPath() string { return filepath.Join(s.dir, coverLetterFile) }

// PersistCoverLetter stores the cover letter text as a single chunk.
func (s *Store) PersistCoverLetter(text string) error {
	cleaned := strings.TrimSpace(text)
	if err := utils.WriteText(s.CoverLetterPath(), cleaned); err != nil {
		return fmt.Errorf("persist cover letter: %w", err)
	}

	var chunks []Chunk
	if cleaned != "" {
		chunks = append(chunks, newChunk(cleaned, SourceCoverLetter, 0))
	}
	s.replace(SourceCoverLetter, chunks)
	return nil
}

// Search returns up to topK chunks ranked by the share of query tokens they contain.
func (s *Store) Search(_ context.Context, query string, topK int) ([]Chunk, error) {
	queryTokens := uniqueTokens(query)
	if len(queryTokens) == 0 || topK <= 0 {
		return nil, nil
	}

	type scored struct {
		score float64
		chunk Chunk
	}

	s.mu.RLock()
	results := make([]scored, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		overlap := 0
		seen := make(map[string]struct{}, len(chunk.tokens))
		for _, token := range chunk.tokens {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			if _, ok := queryTokens[token]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		results = append(results, scored{score: float64(overlap) / float64(len(queryTokens)), chunk: chunk})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	if len(results) > topK {
		results = results[:topK]
	}
	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, r.chunk)
	}
	return chunks, nil
}

// Len returns the number of indexed chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *Store) replace(source Source, chunks []Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chunks[:0:0]
	for _, chunk := range s.chunks {
		if chunk.Source != source {
			kept = append(kept, chunk)
		}
	}
	s.chunks = append(kept, chunks...)
}

func newChunk(text string, source Source, page int) Chunk {
	return Chunk{Text: text, Source: source, Page: page, tokens: tokenize(text)}
}

func flatten(prefix string, value any, emit func(key string, value any)) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			flatten(prefix+"."+key, v[key], emit)
		}
	case []any:
		for i, item := range v {
			flatten(fmt.Sprintf("%s[%d]", prefix, i), item, emit)
		}
	case nil:
	default:
		emit(prefix, v)
	}
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(text, "\u00a0", " ")), " ")
}

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(text, -1)
	tokens := make([]string, 0, len(raw))
	for _, token := range raw {
		tokens = append(tokens, strings.ToLower(token))
	}
	return tokens
}

func uniqueTokens(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range tokenize(text) {
		set[token] = struct{}{}
	}
	return set
}
