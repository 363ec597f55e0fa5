package domain

import "strings"

// AnsweredMarker terminates an annotation that already carries a reply.
// Deleting the marker makes the question eligible for answering again.
const AnsweredMarker = "\x01"

// Document is a watched document as seen by the answering service.
type Document struct {
	// Path is the document's location on disk.
	Path string

	// Source is the raw document text, including annotation markup.
	Source string

	// Pages holds page texts with annotation markup removed.
	Pages []string

	// Annotations are the question annotations in source order.
	Annotations []Annotation
}

// FullText returns all page texts concatenated.
func (d *Document) FullText() string {
	return strings.Join(d.Pages, "")
}

// Changed reports whether any annotation received a reply.
func (d *Document) Changed() bool {
	for i := range d.Annotations {
		if d.Annotations[i].Reply != "" {
			return true
		}
	}
	return false
}

// Annotation is a question embedded in a document.
type Annotation struct {
	// Content is the annotation text without the answered marker.
	Content string

	// Page is the index of the page the annotation sits on.
	Page int

	// Selection is the document text the annotation is attached to.
	Selection string

	// Answered is true when the annotation ended with AnsweredMarker.
	Answered bool

	// Reply is the answer produced in this run, empty if none.
	Reply string

	// Start and End are byte offsets of the annotation in Document.Source.
	Start int
	End   int
}
