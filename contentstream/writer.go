package contentstream

import (
	"github.com/tsawler/redactor/core"
)

// Write serializes operations back to content stream syntax, one
// operation per line.
func Write(ops []Operation) []byte {
	var buf []byte
	for _, op := range ops {
		buf = AppendOperation(buf, op)
		buf = append(buf, '\n')
	}
	return buf
}

// AppendOperation appends a single operation to buf.
func AppendOperation(buf []byte, op Operation) []byte {
	if op.Operator == "BI" {
		return appendInlineImage(buf, op)
	}
	for _, operand := range op.Operands {
		buf = core.AppendObject(buf, operand, nil)
		buf = append(buf, ' ')
	}
	return append(buf, op.Operator...)
}

func appendInlineImage(buf []byte, op Operation) []byte {
	buf = append(buf, "BI"...)
	if len(op.Operands) > 0 {
		if d, ok := op.Operands[0].(core.Dict); ok {
			for _, k := range d.Keys() {
				buf = append(buf, ' ')
				buf = core.AppendName(buf, k)
				buf = append(buf, ' ')
				buf = core.AppendObject(buf, d[k], nil)
			}
		}
	}
	buf = append(buf, " ID "...)
	buf = append(buf, op.Inline...)
	return append(buf, "\nEI"...)
}

// Number returns the numeric value of operand i, or 0 when it is missing
// or not a number.
func (op Operation) Number(i int) float64 {
	if i < 0 || i >= len(op.Operands) {
		return 0
	}
	f, _ := core.Number(op.Operands[i])
	return f
}

// Numbers returns the first n operands as numbers. ok is false when fewer
// than n numeric operands are present.
func (op Operation) Numbers(n int) ([]float64, bool) {
	if len(op.Operands) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		f, ok := core.Number(op.Operands[len(op.Operands)-n+i])
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
