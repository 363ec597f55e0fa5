package plaintext

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0640))
	return path
}

func TestStore_Supports(t *testing.T) {
	s := NewStore([]string{"txt", ".MD"}, 100)

	assert.True(t, s.Supports("/a/b.txt"))
	assert.True(t, s.Supports("/a/b.md"))
	assert.True(t, s.Supports("/a/B.TXT"))
	assert.False(t, s.Supports("/a/b.pdf"))
	assert.False(t, s.Supports("/a/Makefile"))
}

func TestStore_Parse_Annotations(t *testing.T) {
	s := NewStore([]string{"txt"}, 1000)
	source := "Intro line.\nThe sky is blue [[@ask why?]] today.\n" +
		"Done [[@ask+ summarise\n\nIt is short.\x01]] here."

	doc := s.Parse("/notes.txt", source)

	require.Len(t, doc.Annotations, 2)

	first := doc.Annotations[0]
	assert.Equal(t, "@ask why?", first.Content)
	assert.False(t, first.Answered)
	assert.Equal(t, "The sky is blue  today.", first.Selection)
	assert.Equal(t, "[[@ask why?]]", source[first.Start:first.End])

	second := doc.Annotations[1]
	assert.True(t, second.Answered)
	assert.Equal(t, "@ask+ summarise\n\nIt is short.", second.Content)

	require.Len(t, doc.Pages, 1)
	assert.NotContains(t, doc.Pages[0], "[[")
	assert.NotContains(t, doc.Pages[0], "@ask")
}

func TestStore_Parse_FormFeedPages(t *testing.T) {
	s := NewStore([]string{"txt"}, 1000)
	source := "page one\fpage two [[@ask# where?]]\fpage three"

	doc := s.Parse("/notes.txt", source)

	assert.Equal(t, []string{"page one", "page two ", "page three"}, doc.Pages)
	require.Len(t, doc.Annotations, 1)
	assert.Equal(t, 1, doc.Annotations[0].Page)
	assert.Equal(t, "page two", doc.Annotations[0].Selection)
}

func TestStore_Parse_FixedSizePages(t *testing.T) {
	s := NewStore([]string{"txt"}, 10)
	source := strings.Repeat("a", 10) + strings.Repeat("b", 10) + "[[@ask q]]" + strings.Repeat("c", 5)

	doc := s.Parse("/notes.txt", source)

	assert.Equal(t, []string{strings.Repeat("a", 10), strings.Repeat("b", 10), "ccccc"}, doc.Pages)
	require.Len(t, doc.Annotations, 1)
	assert.Equal(t, 2, doc.Annotations[0].Page, "annotation sits at the start of the third page")
}

func TestStore_Parse_AnsweringKeepsPagesStable(t *testing.T) {
	s := NewStore([]string{"txt"}, 1000)
	before := s.Parse("/n.txt", "text [[@ask q]] more\fnext")

	before.Annotations[0].Reply = "an answer"
	after := s.Parse("/n.txt", Render(before))

	assert.Equal(t, before.Pages, after.Pages)
	assert.Equal(t, domain.ComputeChecksum(before.Pages), domain.ComputeChecksum(after.Pages))
	assert.True(t, after.Annotations[0].Answered)
}

func TestStore_Parse_EmptyDocument(t *testing.T) {
	doc := NewStore([]string{"txt"}, 100).Parse("/n.txt", "")

	assert.Empty(t, doc.Pages)
	assert.Empty(t, doc.Annotations)
}

func TestRender(t *testing.T) {
	doc := &domain.Document{
		Source: "a [[@ask one]] b [[@ask two]] c [[@ask three\n\nold\x01]]",
	}
	doc.Annotations = NewStore(nil, 100).Parse("", doc.Source).Annotations
	doc.Annotations[0].Reply = "first"
	doc.Annotations[2].Reply = "ignored, already answered"

	got := Render(doc)

	assert.Equal(t, "a [[@ask one\n\nfirst\x01]] b [[@ask two]] c [[@ask three\n\nold\x01]]", got)
}

func TestSanitiseReply(t *testing.T) {
	assert.Equal(t, "see [1] ] and [2] ] ]", sanitiseReply("see [1]] and [2]]]"))
	assert.Equal(t, "nomarker", sanitiseReply("no\x01marker"))
}

func TestStore_LoadAndSave(t *testing.T) {
	path := writeDoc(t, "Line [[@ask why?]] end.\n")
	s := NewStore([]string{"txt"}, 100)
	ctx := context.Background()

	doc, err := s.Load(ctx, path)
	require.NoError(t, err)
	require.Len(t, doc.Annotations, 1)

	doc.Annotations[0].Reply = "Because [[brackets]]."
	require.NoError(t, s.Save(ctx, doc))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Line [[@ask why?\n\nBecause [[brackets] ].\x01]] end.\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())

	reloaded, err := s.Load(ctx, path)
	require.NoError(t, err)
	require.Len(t, reloaded.Annotations, 1)
	assert.True(t, reloaded.Annotations[0].Answered)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStore_Save_RefusesConcurrentEdit(t *testing.T) {
	path := writeDoc(t, "[[@ask q]]")
	s := NewStore([]string{"txt"}, 100)
	ctx := context.Background()

	doc, err := s.Load(ctx, path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("[[@ask q]] edited"), 0640))

	doc.Annotations[0].Reply = "answer"
	err = s.Save(ctx, doc)

	assert.ErrorContains(t, err, "changed since it was read")
	data, _ := os.ReadFile(path)
	assert.Equal(t, "[[@ask q]] edited", string(data))
}

func TestStore_Load_Missing(t *testing.T) {
	_, err := NewStore([]string{"txt"}, 100).Load(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPageAt(t *testing.T) {
	starts := []int{0, 10, 20}

	assert.Equal(t, 0, pageAt(starts, 0))
	assert.Equal(t, 0, pageAt(starts, 9))
	assert.Equal(t, 1, pageAt(starts, 10))
	assert.Equal(t, 2, pageAt(starts, 25))
	assert.Equal(t, 0, pageAt(nil, 5))
}
