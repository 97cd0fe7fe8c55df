package log

import (
	"io"
)

// prefixWriter prefixes every line written to it before forwarding to the
// underlying writer. Used to label per-container stderr streams, the way the
// teacher's internal/logs.NewPrefixer labels per-MCP-server stderr.
type prefixWriter struct {
	prefix string
	dst    io.Writer
	buf    []byte
}

// NewPrefixer returns a writer that prepends prefix to every line before
// writing it to dst.
func NewPrefixer(dst io.Writer, prefix string) io.Writer {
	return &prefixWriter{prefix: prefix, dst: dst}
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.buf = append(p.buf, b...)
	for {
		i := indexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := p.buf[:i+1]
		if _, err := io.WriteString(p.dst, p.prefix); err != nil {
			return len(b), err
		}
		if _, err := p.dst.Write(line); err != nil {
			return len(b), err
		}
		p.buf = p.buf[i+1:]
	}
	return len(b), nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
