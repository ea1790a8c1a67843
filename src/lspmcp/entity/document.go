package entity

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Document is the bridge's synchronized view of one file open in an analyzer session.
type Document struct {
	Project    string                      `json:"project" zap:"project"`
	Path       string                      `json:"path" zap:"path"`
	URI        uri.URI                     `json:"uri" zap:"-"`
	LanguageID protocol.LanguageIdentifier `json:"languageId" zap:"languageId"`
	Version    int32                       `json:"version" zap:"version"`
	Text       string                      `json:"-" zap:"-"`
	// Session identifies the analyzer session the document was opened in.
	Session  uuid.UUID `json:"session" zap:"session"`
	LastUsed time.Time `json:"-" zap:"-"`
}

// Identifier returns the protocol identifier of the document.
func (d Document) Identifier() protocol.TextDocumentIdentifier {
	return protocol.TextDocumentIdentifier{URI: d.URI}
}

// Lines splits the text into lines without their terminators.
func (d Document) Lines() []string {
	return SplitLines(d.Text)
}

// SplitLines splits text on \n, dropping a trailing \r from each line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// DiagnosticSet is the wholesale-replaced list of issues the analyzer last published for a document.
// Version is the document version echoed by the analyzer, when it sent one.
type DiagnosticSet struct {
	URI         uri.URI               `json:"uri"`
	Version     uint32                `json:"version,omitempty"`
	Diagnostics []protocol.Diagnostic `json:"diagnostics"`
	Received    time.Time             `json:"-"`
}

// LanguageIDs maps file extensions to protocol language identifiers.
type LanguageIDs map[string]protocol.LanguageIdentifier

// For returns the language identifier for a path, or plaintext when the extension is unknown.
func (l LanguageIDs) For(path string) protocol.LanguageIdentifier {
	if id, ok := l[strings.ToLower(filepath.Ext(path))]; ok {
		return id
	}
	return "plaintext"
}
