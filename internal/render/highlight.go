package render

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

const (
	DefaultCodeLanguage = "javascript"
	DefaultCodeStyle    = "github"

	// blocks longer than this get line numbers
	lineNumberThreshold = 5
)

// Highlighter renders fenced code blocks with chroma. Output uses CSS
// classes; WriteCSS emits the matching stylesheet.
type Highlighter struct {
	style *chroma.Style
}

func NewHighlighter(styleName string) *Highlighter {
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	return &Highlighter{style: style}
}

func (h *Highlighter) formatter(lineNumbers bool) *chromahtml.Formatter {
	return chromahtml.New(
		chromahtml.WithClasses(true),
		chromahtml.WithLineNumbers(lineNumbers),
		chromahtml.TabWidth(4),
	)
}

// WriteCSS writes the stylesheet for the highlighter's style.
func (h *Highlighter) WriteCSS(w io.Writer) error {
	return h.formatter(true).WriteCSS(w, h.style)
}

// Render writes a complete code block: a header with the language label and
// a copy button, followed by the highlighted source. An empty lang falls back
// to DefaultCodeLanguage and a single trailing newline is dropped.
func (h *Highlighter) Render(w io.Writer, lang, code string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = DefaultCodeLanguage
	}
	code = strings.TrimSuffix(code, "\n")

	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return fmt.Errorf("highlight %s: %w", lang, err)
	}

	label := template.HTMLEscapeString(lang)
	if _, err := fmt.Fprintf(w,
		`<div class="code-block" data-lang="%s"><div class="code-header"><span class="code-lang">%s</span><button type="button" class="code-copy" data-copy-code aria-label="Copy code">Copy</button></div>`,
		label, label,
	); err != nil {
		return err
	}
	if err := h.formatter(CountLines(code) > lineNumberThreshold).Format(w, h.style, it); err != nil {
		return fmt.Errorf("highlight %s: %w", lang, err)
	}
	_, err = io.WriteString(w, "</div>\n")
	return err
}

// CountLines reports the number of lines in code. An empty string has none.
func CountLines(code string) int {
	if code == "" {
		return 0
	}
	return strings.Count(code, "\n") + 1
}
