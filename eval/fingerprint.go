package eval

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"

	"github.com/slicelab/jagged/slice"
)

// Fingerprinter provides expression canonicalization and hashing with
// caching. Two expressions that evaluate identically (including a call via
// an operator alias versus its canonical name) share a fingerprint.
type Fingerprinter struct {
	mu    sync.RWMutex
	cache map[*Expr]string // expr pointer → fingerprint hex
}

// NewFingerprinter creates a new fingerprinter.
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{cache: make(map[*Expr]string, 256)}
}

// FingerprintExpr returns a deterministic hex fingerprint for an expression.
// Uses persistent caching: expression nodes are immutable.
func (fp *Fingerprinter) FingerprintExpr(e *Expr) string {
	if e == nil {
		return "bottom"
	}

	fp.mu.RLock()
	if sum, ok := fp.cache[e]; ok {
		fp.mu.RUnlock()
		return sum
	}
	fp.mu.RUnlock()

	w := newCanonWriter()
	encodeExpr(e, w)
	sum := sha256.Sum256(w.Bytes())
	hex := fmt.Sprintf("%x", sum[:])

	fp.mu.Lock()
	fp.cache[e] = hex
	fp.mu.Unlock()

	return hex
}

// EvalKey combines an expression fingerprint with the fingerprints of the
// inputs it references, yielding the memoization key for one bound
// evaluation.
func (fp *Fingerprinter) EvalKey(e *Expr, inputs map[string]*slice.DataSlice) string {
	w := newCanonWriter()
	w.WriteString(fp.FingerprintExpr(e))
	for _, name := range e.Inputs() {
		w.WriteByte('|')
		w.WriteString(name)
		w.WriteByte('=')
		if ds, ok := inputs[name]; ok {
			encodeSlice(ds, w)
		} else {
			w.WriteString("unbound")
		}
	}
	sum := sha256.Sum256(w.Bytes())
	return fmt.Sprintf("%x", sum[:])
}

// encodeExpr recursively encodes an expression into canonical form.
func encodeExpr(e *Expr, w *canonWriter) {
	switch e.kind {
	case exprLiteral:
		w.WriteString("lit:")
		encodeSlice(e.lit, w)
	case exprInput:
		w.WriteString("in:")
		w.WriteString(e.name)
	case exprCall:
		w.WriteString("call:")
		// Alias and canonical spellings must hash identically.
		if op, ok := Lookup(e.name); ok {
			w.WriteString(op.Name)
		} else {
			w.WriteString(e.name)
		}
		w.WriteByte('(')
		for i, a := range e.args {
			if i > 0 {
				w.WriteByte(',')
			}
			encodeExpr(a, w)
		}
		kwNames := make([]string, 0, len(e.kw))
		for k := range e.kw {
			kwNames = append(kwNames, k)
		}
		sort.Strings(kwNames)
		for _, k := range kwNames {
			w.WriteByte(';')
			w.WriteString(k)
			w.WriteByte('=')
			encodeExpr(e.kw[k], w)
		}
		w.WriteByte(')')
	}
}

// encodeSlice encodes a slice's shape, schema and flat content. Bag identity
// is deliberately excluded: equal slices over equal bags key identically.
func encodeSlice(ds *slice.DataSlice, w *canonWriter) {
	if ds == nil {
		w.WriteString("nil")
		return
	}
	w.WriteString(ds.Shape().String())
	w.WriteByte('~')
	w.WriteString(ds.Schema().String())
	w.WriteByte('~')
	for i, v := range ds.Values() {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteString(v.String())
	}
}

// canonWriter is a simple buffer for building canonical representations.
type canonWriter struct {
	buf []byte
}

func newCanonWriter() *canonWriter {
	return &canonWriter{buf: make([]byte, 0, 256)}
}

func (w *canonWriter) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

func (w *canonWriter) WriteString(s string) {
	w.buf = append(w.buf, []byte(s)...)
}

func (w *canonWriter) Bytes() []byte {
	return w.buf
}
