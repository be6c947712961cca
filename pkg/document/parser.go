package document

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Parser converts one document format into plain text.
type Parser interface {
	Name() string
	CanHandle(ext string) bool
	Parse(ctx context.Context, data []byte) (string, error)
}

// Registry selects a parser by file extension.
type Registry struct {
	parsers  []Parser
	fallback Parser
	logger   *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used to report parser fallbacks.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithParser registers an additional parser ahead of the defaults.
func WithParser(p Parser) RegistryOption {
	return func(r *Registry) {
		r.parsers = append([]Parser{p}, r.parsers...)
	}
}

// NewRegistry returns a registry with the text, markdown, pdf and docx parsers.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		parsers: []Parser{
			NewMarkdownParser(),
			NewPDFParser(),
			NewDocxParser(),
			NewTextParser(),
		},
		fallback: NewTextParser(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is the outcome of parsing one document.
type Result struct {
	Text       string
	FileType   string
	ParserUsed string
	// ParseError is set when the selected parser failed and the raw bytes
	// were decoded instead.
	ParseError string
}

// Parse selects a parser from the filename extension. A failing parser
// falls back to best-effort text decoding; Parse only errors when ctx is done.
func (r *Registry) Parse(ctx context.Context, filename string, data []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	parser := r.selectParser(ext)

	text, err := parser.Parse(ctx, data)
	if err == nil {
		return Result{Text: text, FileType: ext, ParserUsed: parser.Name()}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}

	r.logger.Warn("parser failed, decoding raw bytes",
		zap.String("parser", parser.Name()),
		zap.String("file", filename),
		zap.Error(err))

	text, _ = r.fallback.Parse(ctx, data)
	return Result{
		Text:       text,
		FileType:   ext,
		ParserUsed: r.fallback.Name(),
		ParseError: fmt.Sprintf("%s parser: %v", parser.Name(), err),
	}, nil
}

// RegisteredParsers returns the names of all registered parsers.
func (r *Registry) RegisteredParsers() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}

func (r *Registry) selectParser(ext string) Parser {
	for _, p := range r.parsers {
		if p.CanHandle(ext) {
			return p
		}
	}
	return r.fallback
}

// TextParser decodes plain text with the encoding fallback chain.
type TextParser struct{}

// NewTextParser creates a TextParser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

func (p *TextParser) Name() string {
	return "text"
}

func (p *TextParser) CanHandle(ext string) bool {
	return ext == ".txt" || ext == ".text" || ext == ""
}

func (p *TextParser) Parse(_ context.Context, data []byte) (string, error) {
	return Decode(data), nil
}
