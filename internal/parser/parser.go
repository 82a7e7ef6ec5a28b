package parser

import (
	"errors"
	"strings"

	"github.com/anmitsu/go-shlex"
)

// ErrSyntax is returned when a line can't be split into words, for example
// because of an unterminated quote.
var ErrSyntax = errors.New("syntax error")

// OutputMode selects how an output redirection opens its file.
type OutputMode int

const (
	Truncate OutputMode = iota
	Append
)

func (m OutputMode) String() string {
	if m == Append {
		return ">>"
	}
	return ">"
}

// Command is one stage of a pipeline.
type Command struct {
	Args   []string
	Stdin  string
	Stdout string
	Mode   OutputMode
}

// Name returns the program name of the stage, or "" for an empty stage.
func (c Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

func (c Command) empty() bool {
	return len(c.Args) == 0 && c.Stdin == "" && c.Stdout == ""
}

// Token is a word or an operator of a command line. Quoted or escaped
// operator characters are words.
type Token struct {
	Text     string
	Operator bool
}

func word(text string) Token {
	return Token{Text: text}
}

func operator(text string) Token {
	return Token{Text: text, Operator: true}
}

// Tokenize splits a command line into words and the unquoted operators |, <,
// >, >> and &. Words are unquoted the way a POSIX shell does.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	var chunk strings.Builder

	flush := func() error {
		words, err := shlex.Split(chunk.String(), true)
		chunk.Reset()
		if err != nil {
			return ErrSyntax
		}
		for _, w := range words {
			tokens = append(tokens, word(w))
		}
		return nil
	}

	var quote byte
	escaped := false
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case escaped:
			escaped = false
		case quote == '\'':
			if c == '\'' {
				quote = 0
			}
		case quote == '"':
			switch c {
			case '\\':
				escaped = true
			case '"':
				quote = 0
			}
		case c == '\\':
			escaped = true
		case c == '\'', c == '"':
			quote = c
		case c == '|', c == '<', c == '&', c == '>':
			if err := flush(); err != nil {
				return nil, err
			}
			op := string(c)
			if c == '>' && i+1 < len(input) && input[i+1] == '>' {
				op = ">>"
				i++
			}
			tokens = append(tokens, operator(op))
			continue
		}
		chunk.WriteByte(c)
	}

	if quote != 0 || escaped {
		return nil, ErrSyntax
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// SplitBackground detects a trailing unquoted & and returns the line without
// it and the background flag. The & may be its own word or glued to the last
// one. A line that doesn't tokenize is returned as is for Tokenize to report.
func SplitBackground(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	tokens, err := Tokenize(trimmed)
	if err != nil || len(tokens) == 0 {
		return trimmed, false
	}
	last := tokens[len(tokens)-1]
	if !last.Operator || last.Text != "&" {
		return trimmed, false
	}
	return strings.TrimSpace(strings.TrimSuffix(trimmed, "&")), true
}

// BuildPipeline turns tokens into pipeline stages. A redirection operator
// without a following word is ignored, as is a stray &. A trailing stage with
// nothing in it (e.g. after a dangling |) is dropped.
func BuildPipeline(tokens []Token) []Command {
	cmds := []Command{{}}
	cur := &cmds[0]

	// target consumes the word after a redirection operator.
	target := func(i int) (string, bool) {
		if i+1 < len(tokens) && !tokens[i+1].Operator {
			return tokens[i+1].Text, true
		}
		return "", false
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !tok.Operator {
			cur.Args = append(cur.Args, tok.Text)
			continue
		}
		switch tok.Text {
		case "|":
			cmds = append(cmds, Command{})
			cur = &cmds[len(cmds)-1]
		case "<":
			if name, ok := target(i); ok {
				cur.Stdin = name
				i++
			}
		case ">", ">>":
			if name, ok := target(i); ok {
				cur.Stdout = name
				cur.Mode = Truncate
				if tok.Text == ">>" {
					cur.Mode = Append
				}
				i++
			}
		}
	}

	if cmds[len(cmds)-1].empty() {
		cmds = cmds[:len(cmds)-1]
	}
	return cmds
}

// String renders the stage back into shell syntax.
func (c Command) String() string {
	parts := append([]string{}, c.Args...)
	if c.Stdin != "" {
		parts = append(parts, "<", c.Stdin)
	}
	if c.Stdout != "" {
		parts = append(parts, c.Mode.String(), c.Stdout)
	}
	return strings.Join(parts, " ")
}
