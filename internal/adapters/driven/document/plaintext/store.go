// Package plaintext reads and writes question annotations in plain text
// and markdown documents.
//
// An annotation is written inline as [[@ask what does this mean?]]. Once
// answered it becomes
//
//	[[@ask what does this mean?
//
//	<reply>\x01]]
//
// where \x01 is domain.AnsweredMarker. Pages are separated by form feeds;
// a document without form feeds is cut into fixed-size pages.
package plaintext

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/postprocessors/chunker"
)

// Ensure Store implements the interface.
var _ driven.DocumentStore = (*Store)(nil)

// pageBreak separates explicit pages.
const pageBreak = "\f"

// annotationPattern matches [[...]] non-greedily across lines.
var annotationPattern = regexp.MustCompile(`(?s)\[\[(.*?)\]\]`)

// Store is a driven.DocumentStore for text files.
type Store struct {
	extensions map[string]struct{}
	chunker    *chunker.Processor
}

// NewStore creates a store for files with the given extensions. pageSize is
// the page length used for documents without form feeds.
func NewStore(extensions []string, pageSize int) *Store {
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts[ext] = struct{}{}
		}
	}
	return &Store{
		extensions: exts,
		chunker:    chunker.New(chunker.WithChunkSize(pageSize)),
	}
}

// Supports reports whether path has one of the store's extensions.
func (s *Store) Supports(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	_, ok := s.extensions[ext]
	return ok
}

// Load reads and parses the document at path.
func (s *Store) Load(ctx context.Context, path string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return s.Parse(path, string(data)), nil
}

// Parse builds a document from source text.
func (s *Store) Parse(path, source string) *domain.Document {
	matches := annotationPattern.FindAllStringSubmatchIndex(source, -1)

	// Strip markup, remembering where each annotation sat in the text.
	var text strings.Builder
	text.Grow(len(source))
	offsets := make([]int, len(matches))
	prev := 0
	for i, m := range matches {
		text.WriteString(source[prev:m[0]])
		offsets[i] = text.Len()
		prev = m[1]
	}
	text.WriteString(source[prev:])
	stripped := text.String()

	pages, starts := s.paginate(stripped)

	doc := &domain.Document{
		Path:        path,
		Source:      source,
		Pages:       pages,
		Annotations: make([]domain.Annotation, 0, len(matches)),
	}
	for i, m := range matches {
		inner := source[m[2]:m[3]]
		answered := strings.HasSuffix(inner, domain.AnsweredMarker)
		doc.Annotations = append(doc.Annotations, domain.Annotation{
			Content:   strings.TrimSuffix(inner, domain.AnsweredMarker),
			Page:      pageAt(starts, offsets[i]),
			Selection: lineAround(stripped, offsets[i]),
			Answered:  answered,
			Start:     m[0],
			End:       m[1],
		})
	}
	return doc
}

// Save writes the replies recorded in doc back to doc.Path. The file must
// still hold doc.Source; if it was edited since Load the save is refused
// and the document is picked up again on its new version.
func (s *Store) Save(ctx context.Context, doc *domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := os.ReadFile(doc.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", doc.Path, err)
	}
	if string(current) != doc.Source {
		return fmt.Errorf("%s changed since it was read", doc.Path)
	}

	return writeAtomic(doc.Path, []byte(Render(doc)))
}

// Render returns doc.Source with every replied annotation rewritten in its
// answered form.
func Render(doc *domain.Document) string {
	var b strings.Builder
	b.Grow(len(doc.Source))
	prev := 0
	for _, a := range doc.Annotations {
		if a.Reply == "" || a.Answered {
			continue
		}
		b.WriteString(doc.Source[prev:a.Start])
		b.WriteString("[[")
		b.WriteString(a.Content)
		b.WriteString("\n\n")
		b.WriteString(sanitiseReply(a.Reply))
		b.WriteString(domain.AnsweredMarker)
		b.WriteString("]]")
		prev = a.End
	}
	b.WriteString(doc.Source[prev:])
	return b.String()
}

// sanitiseReply keeps a reply from closing its annotation early or marking
// it answered in the wrong place.
func sanitiseReply(reply string) string {
	reply = strings.ReplaceAll(reply, domain.AnsweredMarker, "")
	for strings.Contains(reply, "]]") {
		reply = strings.ReplaceAll(reply, "]]", "] ]")
	}
	return reply
}

// paginate splits text into pages and returns the offset each page starts at.
func (s *Store) paginate(text string) ([]string, []int) {
	var pages []string
	sep := 0
	if strings.Contains(text, pageBreak) {
		pages = strings.Split(text, pageBreak)
		sep = len(pageBreak)
	} else {
		pages = s.chunker.Split(text)
	}

	starts := make([]int, len(pages))
	pos := 0
	for i, p := range pages {
		starts[i] = pos
		pos += len(p) + sep
	}
	return pages, starts
}

// pageAt returns the index of the page containing offset.
func pageAt(starts []int, offset int) int {
	if len(starts) == 0 {
		return 0
	}
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > offset })
	return max(i-1, 0)
}

// lineAround returns the trimmed line of text containing offset.
func lineAround(text string, offset int) string {
	start := strings.LastIndexAny(text[:offset], "\n"+pageBreak) + 1
	end := strings.IndexAny(text[offset:], "\n"+pageBreak)
	if end < 0 {
		end = len(text)
	} else {
		end += offset
	}
	return strings.TrimSpace(text[start:end])
}

// writeAtomic replaces path with data through a hidden temp file in the
// same directory, keeping the file mode.
func writeAtomic(path string, data []byte) error {
	mode := fs.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
