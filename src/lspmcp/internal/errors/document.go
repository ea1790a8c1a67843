package errors

import (
	stderr "errors"
	"fmt"
)

// ProjectNotFoundError indicates that a path does not belong to any bridged project.
type ProjectNotFoundError struct {
	Path string
}

// Error is an implementation of the error interface.
func (n *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("no project found for %q", n.Path)
}

// OutsideProjectError indicates that a path is not located under the project root.
type OutsideProjectError struct {
	Path string
	Root string
}

// Error is an implementation of the error interface.
func (n *OutsideProjectError) Error() string {
	return fmt.Sprintf("path %q is not inside project root %q", n.Path, n.Root)
}

// DocumentSizeLimitError indicates that a document has exceeded the specified size limit.
type DocumentSizeLimitError struct {
	Path string
	Size int64
}

// Error is an implementation of the error interface.
func (n *DocumentSizeLimitError) Error() string {
	return fmt.Sprintf("size of %q (%d bytes) exceeds permitted limit", n.Path, n.Size)
}

// IsProjectNotFound reports whether the error is a ProjectNotFoundError.
func IsProjectNotFound(e error) bool {
	var target *ProjectNotFoundError
	return stderr.As(e, &target)
}

// IsOutsideProject reports whether the error is an OutsideProjectError.
func IsOutsideProject(e error) bool {
	var target *OutsideProjectError
	return stderr.As(e, &target)
}

// IsDocumentSizeLimit reports whether the error is a DocumentSizeLimitError.
func IsDocumentSizeLimit(e error) bool {
	var target *DocumentSizeLimitError
	return stderr.As(e, &target)
}
