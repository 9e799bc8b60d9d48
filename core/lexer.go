package core

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// TokenType classifies a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenComment
	TokenKeyword     // true, false, null, obj, stream, ...
	TokenInteger     // 123
	TokenReal        // 3.14
	TokenString      // (hello)
	TokenHexString   // <48656C6C6F>
	TokenName        // /Type
	TokenArrayStart  // [
	TokenArrayEnd    // ]
	TokenDictStart   // <<
	TokenDictEnd     // >>
	TokenIndirectRef // R
)

var tokenNames = [...]string{
	TokenEOF:         "EOF",
	TokenComment:     "comment",
	TokenKeyword:     "keyword",
	TokenInteger:     "integer",
	TokenReal:        "real",
	TokenString:      "string",
	TokenHexString:   "hex string",
	TokenName:        "name",
	TokenArrayStart:  "[",
	TokenArrayEnd:    "]",
	TokenDictStart:   "<<",
	TokenDictEnd:     ">>",
	TokenIndirectRef: "R",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is one lexical token. Value holds the decoded payload: escapes in
// literal strings and names are resolved, hex strings keep their digits.
// Pos and End delimit the token's source bytes, so a string operand can
// be located and replaced in the input.
type Token struct {
	Type  TokenType
	Value []byte
	Pos   int64
	End   int64
}

// Lexer splits PDF syntax into tokens.
type Lexer struct {
	reader *bufio.Reader
	pos    int64
}

// NewLexer creates a lexer reading from r.
func NewLexer(r io.Reader) *Lexer {
	return &Lexer{reader: bufio.NewReader(r)}
}

// byte classes
const (
	classSpace = 1 << iota
	classDelim
	classDigit
	classAlpha
	classHex
)

var classes = func() (c [256]uint8) {
	for _, b := range []byte{' ', '\t', '\n', '\r', '\f', 0} {
		c[b] |= classSpace
	}
	for _, b := range []byte("()<>[]{}/%") {
		c[b] |= classDelim
	}
	for b := '0'; b <= '9'; b++ {
		c[b] |= classDigit | classHex
	}
	for b := 'a'; b <= 'z'; b++ {
		c[b] |= classAlpha
		c[b-'a'+'A'] |= classAlpha
	}
	for b := 'a'; b <= 'f'; b++ {
		c[b] |= classHex
		c[b-'a'+'A'] |= classHex
	}
	return c
}()

func isWhitespace(b byte) bool { return classes[b]&classSpace != 0 }
func isDelimiter(b byte) bool  { return classes[b]&classDelim != 0 }
func isDigit(b byte) bool      { return classes[b]&classDigit != 0 }
func isAlpha(b byte) bool      { return classes[b]&classAlpha != 0 }
func isHexDigit(b byte) bool   { return classes[b]&classHex != 0 }

func hexValue(b byte) byte {
	switch {
	case b <= '9':
		return b - '0'
	case b >= 'a':
		return b - 'a' + 10
	default:
		return b - 'A' + 10
	}
}

// NextToken skips whitespace and returns the next token. At the end of
// input it returns a TokenEOF token, not an error.
func (l *Lexer) NextToken() (*Token, error) {
	if err := l.skipWhitespace(); err != nil && err != io.EOF {
		return nil, err
	}
	start := l.pos
	b, err := l.peek()
	if err == io.EOF {
		return &Token{Type: TokenEOF, Pos: start, End: start}, nil
	}
	if err != nil {
		return nil, err
	}

	var tok *Token
	switch {
	case b == '%':
		tok, err = l.scanComment()
	case b == '(':
		tok, err = l.scanString()
	case b == '/':
		tok, err = l.scanName()
	case b == '[' || b == ']':
		l.readByte()
		tok = &Token{Type: TokenArrayStart, Value: []byte{b}}
		if b == ']' {
			tok.Type = TokenArrayEnd
		}
	case b == '<' || b == '>':
		if pair, _ := l.reader.Peek(2); len(pair) == 2 && pair[1] == b {
			l.readByte()
			l.readByte()
			tok = &Token{Type: TokenDictStart, Value: []byte("<<")}
			if b == '>' {
				tok = &Token{Type: TokenDictEnd, Value: []byte(">>")}
			}
		} else if b == '<' {
			tok, err = l.scanHexString()
		} else {
			err = fmt.Errorf("unexpected '>' at position %d", start)
		}
	case isDigit(b) || b == '-' || b == '+' || b == '.':
		tok = l.scanNumber()
	case isAlpha(b):
		tok = l.scanKeyword()
	default:
		err = fmt.Errorf("unexpected character %q at position %d", b, start)
	}
	if err != nil {
		return nil, err
	}
	tok.Pos, tok.End = start, l.pos
	return tok, nil
}

func (l *Lexer) readByte() (byte, error) {
	b, err := l.reader.ReadByte()
	if err == nil {
		l.pos++
	}
	return b, err
}

func (l *Lexer) peek() (byte, error) {
	p, err := l.reader.Peek(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (l *Lexer) skipWhitespace() error {
	for {
		b, err := l.peek()
		if err != nil {
			return err
		}
		if !isWhitespace(b) {
			return nil
		}
		l.readByte()
	}
}

// scanComment reads from % through the end of the line. The line break
// is consumed but not part of the value.
func (l *Lexer) scanComment() (*Token, error) {
	var buf bytes.Buffer
	for {
		b, err := l.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		l.readByte()
		if b == '\n' {
			break
		}
		if b == '\r' {
			if next, err := l.peek(); err == nil && next == '\n' {
				l.readByte()
			}
			break
		}
		buf.WriteByte(b)
	}
	return &Token{Type: TokenComment, Value: buf.Bytes()}, nil
}

// scanString reads a balanced literal string and resolves its escapes.
func (l *Lexer) scanString() (*Token, error) {
	l.readByte()
	var buf bytes.Buffer
	for depth := 1; ; {
		b, err := l.readByte()
		if err != nil {
			return nil, fmt.Errorf("unterminated string: %w", err)
		}
		switch b {
		case '(':
			depth++
		case ')':
			if depth--; depth == 0 {
				return &Token{Type: TokenString, Value: buf.Bytes()}, nil
			}
		case '\\':
			if err := l.unescape(&buf); err != nil {
				return nil, fmt.Errorf("unterminated string: %w", err)
			}
			continue
		}
		buf.WriteByte(b)
	}
}

var escapes = map[byte]byte{'n': '\n', 'r': '\r', 't': '\t', 'b': '\b', 'f': '\f'}

// unescape resolves one backslash sequence in a literal string.
func (l *Lexer) unescape(buf *bytes.Buffer) error {
	b, err := l.readByte()
	if err != nil {
		return err
	}
	if c, ok := escapes[b]; ok {
		buf.WriteByte(c)
		return nil
	}
	switch {
	case b == '\r':
		// line continuation
		if next, err := l.peek(); err == nil && next == '\n' {
			l.readByte()
		}
	case b == '\n':
	case b >= '0' && b <= '7':
		v := b - '0'
		for i := 0; i < 2; i++ {
			next, err := l.peek()
			if err != nil || next < '0' || next > '7' {
				break
			}
			l.readByte()
			v = v<<3 | (next - '0')
		}
		buf.WriteByte(v)
	default:
		// \( \) \\ and unknown escapes keep the character
		buf.WriteByte(b)
	}
	return nil
}

// scanHexString reads <...>, dropping whitespace between digits.
func (l *Lexer) scanHexString() (*Token, error) {
	l.readByte()
	var buf bytes.Buffer
	for {
		b, err := l.readByte()
		if err != nil {
			return nil, fmt.Errorf("unterminated hex string: %w", err)
		}
		switch {
		case b == '>':
			return &Token{Type: TokenHexString, Value: buf.Bytes()}, nil
		case isWhitespace(b):
		case isHexDigit(b):
			buf.WriteByte(b)
		default:
			return nil, fmt.Errorf("invalid hex digit %q at position %d", b, l.pos-1)
		}
	}
}

// scanName reads /Name and resolves #xx escapes.
func (l *Lexer) scanName() (*Token, error) {
	l.readByte()
	var buf bytes.Buffer
	for {
		b, err := l.peek()
		if err == io.EOF || (err == nil && (isWhitespace(b) || isDelimiter(b))) {
			return &Token{Type: TokenName, Value: buf.Bytes()}, nil
		}
		if err != nil {
			return nil, err
		}
		l.readByte()
		if b != '#' {
			buf.WriteByte(b)
			continue
		}
		hex, err := l.reader.Peek(2)
		if err != nil || !isHexDigit(hex[0]) || !isHexDigit(hex[1]) {
			return nil, fmt.Errorf("invalid hex escape in name at position %d", l.pos-1)
		}
		buf.WriteByte(hexValue(hex[0])<<4 | hexValue(hex[1]))
		l.readByte()
		l.readByte()
	}
}

// scanNumber reads an optionally signed integer or real. A second '.'
// ends the number.
func (l *Lexer) scanNumber() *Token {
	var buf bytes.Buffer
	typ := TokenInteger
	for {
		b, err := l.peek()
		if err != nil {
			break
		}
		if b == '.' {
			if typ == TokenReal {
				break
			}
			typ = TokenReal
		} else if !isDigit(b) && (buf.Len() > 0 || (b != '-' && b != '+')) {
			break
		}
		l.readByte()
		buf.WriteByte(b)
	}
	return &Token{Type: typ, Value: buf.Bytes()}
}

// scanKeyword reads a run of letters and digits. A lone R is the
// indirect reference operator.
func (l *Lexer) scanKeyword() *Token {
	var buf bytes.Buffer
	for {
		b, err := l.peek()
		if err != nil || !(isAlpha(b) || isDigit(b)) {
			break
		}
		l.readByte()
		buf.WriteByte(b)
	}
	if buf.Len() == 1 && buf.Bytes()[0] == 'R' {
		return &Token{Type: TokenIndirectRef, Value: buf.Bytes()}
	}
	return &Token{Type: TokenKeyword, Value: buf.Bytes()}
}

// ReadBytes reads exactly n bytes of stream data. On a short read the
// bytes available are returned with an error.
func (l *Lexer) ReadBytes(n int) ([]byte, error) {
	data := make([]byte, n)
	got, err := io.ReadFull(l.reader, data)
	l.pos += int64(got)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			err = fmt.Errorf("unexpected EOF: expected %d bytes, got %d", n, got)
		}
		return data[:got], err
	}
	return data, nil
}

// SkipStreamEOL consumes the line break after the stream keyword: LF,
// CR LF or a lone CR, after any spaces or tabs some writers emit.
func (l *Lexer) SkipStreamEOL() error {
	for {
		b, err := l.peek()
		if err != nil {
			return err
		}
		switch b {
		case ' ', '\t':
			l.readByte()
			continue
		case '\r':
			l.readByte()
			if next, err := l.peek(); err == nil && next == '\n' {
				l.readByte()
			}
		case '\n':
			l.readByte()
		}
		return nil
	}
}
