package sqlscript

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

var (
	// scriptLexer tokenizes PostgreSQL scripts. Dollar-quoted bodies are lexed
	// in their own state so that nothing inside them is interpreted. The tag
	// group must always participate in the DollarOpen match, including for
	// an anonymous $$, since DollarClose backreferences it.
	scriptLexer = lexer.MustStateful(lexer.Rules{
		"Root": {
			{Name: "Comment", Pattern: `--[^\r\n]*`},
			{Name: "MultilineComment", Pattern: `/\*[^*]*\*+([^/*][^*]*\*+)*/`},
			{Name: "DollarOpen", Pattern: `\$([A-Za-z_][A-Za-z0-9_]*|)\$`, Action: lexer.Push("Dollar")},
			{Name: "EscapeString", Pattern: `[Ee]'([^'\\]|\\.|'')*'`},
			{Name: "String", Pattern: `'([^']|'')*'`},
			{Name: "QuotedIdent", Pattern: `"([^"]|"")*"`},
			{Name: "Word", Pattern: `[A-Za-z_][A-Za-z0-9_$]*`},
			{Name: "Number", Pattern: `\d+(\.\d*)?`},
			{Name: "Semicolon", Pattern: `;`},
			{Name: "Whitespace", Pattern: `\s+`},
			{Name: "Other", Pattern: `.`},
		},
		"Dollar": {
			{Name: "DollarClose", Pattern: `\$\1\$`, Action: lexer.Pop()},
			{Name: "Body", Pattern: `[^$]+`},
			{Name: "DollarSign", Pattern: `\$`},
		},
	})

	symbols = scriptLexer.Symbols()

	tokComment          = symbols["Comment"]
	tokMultilineComment = symbols["MultilineComment"]
	tokWord             = symbols["Word"]
	tokSemicolon        = symbols["Semicolon"]
	tokWhitespace       = symbols["Whitespace"]
)

// splitter accumulates tokens into statements.
type splitter struct {
	stmts []string
	cur   strings.Builder

	// prev is the last word of the current statement, upper-cased. Only
	// BEGIN ATOMIC opens a block outside dollar quotes; a leading BEGIN is
	// transaction control and any other BEGIN is an identifier.
	prev  string
	depth int
}

// Split returns the statements of script in source order, trimmed and without
// their terminating semicolons. A trailing statement without a semicolon is
// still returned. ErrEmptyQuery is returned when nothing executable remains
// after comments are removed.
func Split(script string) ([]string, error) {
	if strings.TrimSpace(script) == "" {
		return nil, ErrEmptyQuery
	}

	lex, err := scriptLexer.LexString("", script)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedScript, err.Error())
	}
	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedScript, err.Error())
	}

	s := &splitter{}
	for _, tok := range tokens {
		if tok.EOF() {
			break
		}
		s.consume(tok)
	}
	s.flush()

	if len(s.stmts) == 0 {
		return nil, ErrEmptyQuery
	}
	return s.stmts, nil
}

func (s *splitter) consume(tok lexer.Token) {
	switch tok.Type {
	case tokComment:
		// The newline that ends a line comment is lexed separately.
		return
	case tokMultilineComment:
		s.cur.WriteByte(' ')
		return
	case tokSemicolon:
		if s.depth > 0 {
			s.cur.WriteString(tok.Value)
			return
		}
		s.flush()
		return
	case tokWhitespace:
		s.cur.WriteString(tok.Value)
		return
	case tokWord:
		word := strings.ToUpper(tok.Value)
		switch word {
		case "ATOMIC":
			if s.prev == "BEGIN" {
				s.depth++
			}
		case "CASE":
			if s.depth > 0 {
				s.depth++
			}
		case "END":
			if s.depth > 0 {
				s.depth--
			}
		}
		s.prev = word
	default:
		s.prev = ""
	}
	s.cur.WriteString(tok.Value)
}

func (s *splitter) flush() {
	if stmt := strings.TrimSpace(s.cur.String()); stmt != "" {
		s.stmts = append(s.stmts, stmt)
	}
	s.cur.Reset()
	s.prev = ""
	s.depth = 0
}

// Abbreviate shortens a statement for progress reports and log lines.
func Abbreviate(stmt string, max int) string {
	stmt = strings.Join(strings.Fields(stmt), " ")
	r := []rune(stmt)
	if max <= 3 || len(r) <= max {
		return stmt
	}
	return string(r[:max-3]) + "..."
}
