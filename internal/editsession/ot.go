package editsession

import "context"

// Op is a change observed on the shared document. Source identifies the
// session that submitted it.
type Op struct {
	Source  string
	Content string
}

// OTDocument is a document held by the external operational transform service.
type OTDocument interface {
	Subscribe(ctx context.Context) error
	// HasType reports whether the document exists on the OT service yet.
	HasType() bool
	Create(ctx context.Context, content string) error
	Content() string
	// SubmitReplace replaces the whole content; the service diffs it.
	SubmitReplace(ctx context.Context, content, source string) error
	OnOp(fn func(Op))
	Unsubscribe() error
}

type OTConnection interface {
	Document(docID uint64) OTDocument
}

// Editor is the local text widget.
type Editor interface {
	Value() string
	// SetValue replaces the text and keeps the view state.
	SetValue(content string)
	OnChange(fn func(content string))
}
