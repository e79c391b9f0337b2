// Package markdown renders guide pages with goldmark.
package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
)

// Frontmatter is the YAML header of a guide page.
type Frontmatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Order       int    `yaml:"order"`
}

type Parser struct {
	md goldmark.Markdown
}

func NewParser() *Parser {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			&frontmatter.Extender{},
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
			goldmarkhtml.WithXHTML(),
		),
	)

	return &Parser{md: md}
}

// Render converts source to HTML and decodes its frontmatter. A page
// without frontmatter yields a zero Frontmatter.
func (p *Parser) Render(source []byte) ([]byte, Frontmatter, error) {
	var meta Frontmatter
	ctx := parser.NewContext()
	var buf bytes.Buffer

	err := p.md.Convert(source, &buf, parser.WithContext(ctx))
	if err != nil {
		return nil, meta, err
	}

	data := frontmatter.Get(ctx)
	if data != nil {
		err = data.Decode(&meta)
		if err != nil {
			return nil, meta, err
		}
	}

	return buf.Bytes(), meta, nil
}
