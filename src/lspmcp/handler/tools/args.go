package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
)

const (
	_toolDefinition      = "definition"
	_toolTypeDefinition  = "type_definition"
	_toolReferences      = "references"
	_toolHover           = "hover"
	_toolDocumentSymbols = "document_symbols"
	_toolDiagnostics     = "diagnostics"
	_toolRename          = "rename"
	_toolCheck           = "check"
	_toolFileLines       = "file_lines"
	_toolProjects        = "projects"

	_argFile = "file"
	_argPath = "path"
)

var _validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type fileArgs struct {
	File string `json:"file" validate:"required"`
}

type positionArgs struct {
	File   string `json:"file" validate:"required"`
	Line   int    `json:"line" validate:"required,min=1"`
	Column *int   `json:"column" validate:"omitempty,min=1"`
	Symbol string `json:"symbol" validate:"required_without=Column"`
}

type referencesArgs struct {
	positionArgs
	IncludeDeclaration *bool `json:"include_declaration"`
}

type diagnosticsArgs struct {
	File   string `json:"file" validate:"required"`
	WaitMS int    `json:"wait_ms" validate:"min=0"`
}

type renameArgs struct {
	positionArgs
	NewName string `json:"new_name" validate:"required"`
	Apply   bool   `json:"apply"`
}

type checkArgs struct {
	File       string `json:"file" validate:"required"`
	OnlyErrors bool   `json:"only_errors"`
}

type fileLinesArgs struct {
	File      string `json:"file" validate:"required"`
	StartLine int    `json:"start_line" validate:"required,min=1"`
	EndLine   int    `json:"end_line" validate:"required,gtefield=StartLine"`
	Prefix    int    `json:"prefix" validate:"min=0"`
	Suffix    int    `json:"suffix" validate:"min=0"`
}

type noArgs struct{}

// decode fills v from the raw arguments, rejecting unknown fields and values that break v's rules.
func decode(tool string, arguments map[string]any, v interface{}) error {
	raw, err := json.Marshal(withFileAlias(arguments))
	if err != nil {
		return &bridgeerrors.InvalidArgumentsError{Tool: tool, Problems: []string{err.Error()}}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &bridgeerrors.InvalidArgumentsError{Tool: tool, Problems: []string{strings.TrimPrefix(err.Error(), "json: ")}}
	}

	if err := _validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &bridgeerrors.InvalidArgumentsError{Tool: tool, Problems: []string{err.Error()}}
		}
		problems := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			problems = append(problems, problem(fe))
		}
		return &bridgeerrors.InvalidArgumentsError{Tool: tool, Problems: problems}
	}
	return nil
}

// withFileAlias accepts path as another name for file.
func withFileAlias(arguments map[string]any) map[string]any {
	p, ok := arguments[_argPath]
	if !ok {
		return arguments
	}
	if _, both := arguments[_argFile]; both {
		return arguments
	}
	renamed := make(map[string]any, len(arguments))
	for k, v := range arguments {
		renamed[k] = v
	}
	delete(renamed, _argPath)
	renamed[_argFile] = p
	return renamed
}

func problem(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "required_without":
		return fmt.Sprintf("%s is required when %s is not given", fe.Field(), snake(fe.Param()))
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be less than %s", fe.Field(), snake(fe.Param()))
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// snake converts a Go field name used in a validation tag to its argument name.
func snake(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func positionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString(_argFile, mcp.Required(),
			mcp.Description("Path of the file, absolute or relative to the project root.")),
		mcp.WithNumber("line", mcp.Required(), mcp.Min(1),
			mcp.Description("1-based line number.")),
		mcp.WithNumber("column", mcp.Min(1),
			mcp.Description("1-based character column. When omitted, symbol locates the position on the line.")),
		mcp.WithString("symbol",
			mcp.Description("Name of the symbol on the line. Used when column is omitted.")),
	}
}

func locationTool(name, description string) mcp.Tool {
	opts := append([]mcp.ToolOption{mcp.WithDescription(description), mcp.WithReadOnlyHintAnnotation(true)}, positionOptions()...)
	return mcp.NewTool(name, opts...)
}

func referencesTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Find every reference to the symbol at a position."),
		mcp.WithReadOnlyHintAnnotation(true),
	}, positionOptions()...)
	opts = append(opts, mcp.WithBoolean("include_declaration", mcp.DefaultBool(true),
		mcp.Description("Whether the declaration itself is listed.")))
	return mcp.NewTool(_toolReferences, opts...)
}

func hoverTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Show the type and documentation of the symbol at a position."),
		mcp.WithReadOnlyHintAnnotation(true),
	}, positionOptions()...)
	return mcp.NewTool(_toolHover, opts...)
}

func documentSymbolsTool() mcp.Tool {
	return mcp.NewTool(_toolDocumentSymbols,
		mcp.WithDescription("List the symbols declared in a file."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString(_argFile, mcp.Required(), mcp.Description("Path of the file.")),
	)
}

func diagnosticsTool() mcp.Tool {
	return mcp.NewTool(_toolDiagnostics,
		mcp.WithDescription("Show the errors and warnings the analyzer last reported for a file."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString(_argFile, mcp.Required(), mcp.Description("Path of the file.")),
		mcp.WithNumber("wait_ms", mcp.Min(0), mcp.Max(float64(_maxDiagnosticsWait.Milliseconds())),
			mcp.Description("How long to wait for the first report after the file is opened.")),
	)
}

func renameTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Rename the symbol at a position across the project. Edits are previewed unless apply is set."),
		mcp.WithDestructiveHintAnnotation(true),
	}, positionOptions()...)
	opts = append(opts,
		mcp.WithString("new_name", mcp.Required(), mcp.Description("The new name.")),
		mcp.WithBoolean("apply", mcp.DefaultBool(false), mcp.Description("Write the edits to disk.")),
	)
	return mcp.NewTool(_toolRename, opts...)
}

func checkTool() mcp.Tool {
	return mcp.NewTool(_toolCheck,
		mcp.WithDescription("Run the project's check command and report its output."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString(_argFile, mcp.Required(), mcp.Description("Any path inside the project to check.")),
		mcp.WithBoolean("only_errors", mcp.DefaultBool(false), mcp.Description("Keep only error lines.")),
	)
}

func fileLinesTool() mcp.Tool {
	return mcp.NewTool(_toolFileLines,
		mcp.WithDescription("Read a range of lines from a file, as the analyzer currently sees it."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString(_argFile, mcp.Required(), mcp.Description("Path of the file.")),
		mcp.WithNumber("start_line", mcp.Required(), mcp.Min(1), mcp.Description("First line, 1-based.")),
		mcp.WithNumber("end_line", mcp.Required(), mcp.Min(1), mcp.Description("Last line, inclusive.")),
		mcp.WithNumber("prefix", mcp.Min(0), mcp.Description("Extra lines before start_line.")),
		mcp.WithNumber("suffix", mcp.Min(0), mcp.Description("Extra lines after end_line.")),
	)
}

func projectsTool() mcp.Tool {
	return mcp.NewTool(_toolProjects,
		mcp.WithDescription("List the bridged projects and the state of their analyzers."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
