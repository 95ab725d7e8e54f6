package telemetry

import (
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// Masked replaces secret values in reported schemas.
const Masked = `"***"`

// secretKeys are block properties whose values never leave the machine.
var secretKeys = map[string]bool{
	"url":               true,
	"directUrl":         true,
	"shadowDatabaseUrl": true,
	"output":            true,
}

var schemaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Equal", Pattern: `=`},
	{Name: "Newline", Pattern: `[\r\n]+`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "Other", Pattern: `.`},
})

var (
	tokIdent      = schemaLexer.Symbols()["Ident"]
	tokEqual      = schemaLexer.Symbols()["Equal"]
	tokNewline    = schemaLexer.Symbols()["Newline"]
	tokWhitespace = schemaLexer.Symbols()["Whitespace"]
)

// MaskSchema replaces the value of every url, directUrl, shadowDatabaseUrl and
// output property with "***". The rest of the text is kept byte for byte.
func MaskSchema(schema string) string {
	lex, err := schemaLexer.LexString("schema.prisma", schema)
	if err != nil {
		return maskLines(schema)
	}
	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		return maskLines(schema)
	}

	var b strings.Builder
	b.Grow(len(schema))
	lineStart := true
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.EOF() {
			break
		}
		switch tok.Type {
		case tokNewline:
			lineStart = true
			b.WriteString(tok.Value)
			continue
		case tokWhitespace:
			b.WriteString(tok.Value)
			continue
		}

		if lineStart && tok.Type == tokIdent && secretKeys[tok.Value] {
			if eq := nextSignificant(tokens, i+1); eq >= 0 && tokens[eq].Type == tokEqual {
				for _, t := range tokens[i : eq+1] {
					b.WriteString(t.Value)
				}
				b.WriteString(" " + Masked)
				i = eq
				for i+1 < len(tokens) && tokens[i+1].Type != tokNewline && !tokens[i+1].EOF() {
					i++
				}
				lineStart = false
				continue
			}
		}
		lineStart = false
		b.WriteString(tok.Value)
	}
	return b.String()
}

func nextSignificant(tokens []lexer.Token, from int) int {
	for i := from; i < len(tokens); i++ {
		if tokens[i].Type != tokWhitespace {
			return i
		}
	}
	return -1
}

var secretLine = regexp.MustCompile(`^(\s*(?:url|directUrl|shadowDatabaseUrl|output)\s*=).*$`)

// maskLines is the fallback for text the lexer rejects.
func maskLines(schema string) string {
	lines := strings.Split(schema, "\n")
	for i, l := range lines {
		lines[i] = secretLine.ReplaceAllString(l, "$1 "+Masked)
	}
	return strings.Join(lines, "\n")
}
