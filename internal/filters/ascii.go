package filters

import "fmt"

// ASCIIHexDecode decodes pairs of hexadecimal digits. White space is
// skipped, '>' ends the data and an odd final digit is padded with zero.
func ASCIIHexDecode(data []byte, b *Budget) ([]byte, error) {
	limit, err := b.Limit()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)/2)
	var high byte
	pending := false
	for _, c := range data {
		if c == '>' {
			break
		}
		if isWhitespace(c) {
			continue
		}
		v, err := hexDigitToByte(c)
		if err != nil {
			return nil, err
		}
		if !pending {
			high, pending = v<<4, true
			continue
		}
		out = append(out, high|v)
		pending = false
	}
	if pending {
		out = append(out, high)
	}
	if err := b.check(len(out), limit); err != nil {
		return nil, err
	}
	return out, b.Charge(len(out))
}

// ASCII85Decode decodes base-85 data: five digits from '!' to 'u' make
// four bytes, 'z' alone stands for four zero bytes and "~>" ends the data.
// A short final group of n digits yields n-1 bytes.
func ASCII85Decode(data []byte, b *Budget) ([]byte, error) {
	limit, err := b.Limit()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)*4/5+4)
	var group [5]byte
	n := 0
	flush := func() {
		var v uint32
		for i := range group {
			d := byte(84)
			if i < n {
				d = group[i]
			}
			v = v*85 + uint32(d)
		}
		for i := 0; i < n-1; i++ {
			out = append(out, byte(v>>(24-8*i)))
		}
		n = 0
	}

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case isWhitespace(c):
			continue
		case c == '~' && i+1 < len(data) && data[i+1] == '>':
			i = len(data)
			continue
		case c == 'z' && n == 0:
			out = append(out, 0, 0, 0, 0)
		case c < '!' || c > 'u':
			return nil, fmt.Errorf("invalid ASCII85 character: %q", c)
		default:
			group[n] = c - '!'
			n++
			if n == len(group) {
				flush()
			}
		}
		if err := b.check(len(out), limit); err != nil {
			return nil, err
		}
	}
	if n > 0 {
		flush()
	}
	if err := b.check(len(out), limit); err != nil {
		return nil, err
	}
	return out, b.Charge(len(out))
}

// hexDigitToByte converts a hexadecimal character to its value.
func hexDigitToByte(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	}
	return 0, fmt.Errorf("invalid hex digit: %q", c)
}

// isWhitespace reports whether c is a PDF white-space character.
func isWhitespace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}
