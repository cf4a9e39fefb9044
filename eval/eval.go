package eval

import (
	"fmt"
	"sync"

	"github.com/slicelab/jagged/schema"
	"github.com/slicelab/jagged/shape"
	"github.com/slicelab/jagged/slice"
)

// Options configures evaluation behavior.
type Options struct {
	// Logging configuration
	LogLevel string // "error", "warn", "info", "debug" (default: "warn")
	Logger   Logger // overrides LogLevel-based construction when set

	// EnableMemo caches every pure evaluation in the session keyed by the
	// bound expression (default: true). Allocation operators are memoized
	// regardless, since their identifier stability depends on it.
	//
	// Memo keys cover each input's shape, schema and values, not the
	// contents of its bag. A cached result that read through a bag
	// (get_attr, get_item, get_keys) therefore survives later bag mutation;
	// Session.ClearCache is the invalidation boundary.
	EnableMemo bool

	// MaxDepth bounds expression nesting (default: 100).
	MaxDepth int
}

// DefaultOptions returns the default configuration for evaluation.
func DefaultOptions() Options {
	return Options{
		LogLevel:   "warn",
		EnableMemo: true,
		MaxDepth:   100,
	}
}

// Session owns the evaluation cache. Memoized results, including allocation
// identifiers, are stable within a session until ClearCache; clearing starts
// a new allocation epoch, after which allocation operators observably return
// fresh identifiers. Sessions are safe for concurrent evaluation of pure
// expressions; bag mutation remains single-writer per bag.
type Session struct {
	mu   sync.Mutex
	memo map[string]*slice.DataSlice
	fp   *Fingerprinter
}

// NewSession creates an empty evaluation session.
func NewSession() *Session {
	return &Session{
		memo: make(map[string]*slice.DataSlice, 64),
		fp:   NewFingerprinter(),
	}
}

// ClearCache drops every memoized result, ending the current allocation
// epoch.
func (s *Session) ClearCache() {
	s.mu.Lock()
	s.memo = make(map[string]*slice.DataSlice, 64)
	s.mu.Unlock()
}

func (s *Session) lookup(key string) (*slice.DataSlice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.memo[key]
	return ds, ok
}

func (s *Session) store(key string, ds *slice.DataSlice) {
	s.mu.Lock()
	s.memo[key] = ds
	s.mu.Unlock()
}

// Eval binds the expression's free variables from inputs and evaluates it.
func (s *Session) Eval(expr *Expr, inputs map[string]*slice.DataSlice, opts ...Options) (*slice.DataSlice, error) {
	opt := DefaultOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	logger := opt.Logger
	if logger == nil {
		logger = NewLogger(ParseLogLevel(opt.LogLevel), nil)
	}
	e := &env{sess: s, opts: opt, log: logger, inputs: inputs}
	return e.eval(expr)
}

// defaultSession backs the package-level evaluation API.
var defaultSession = NewSession()

// Eval evaluates an expression against the process-wide default session.
func Eval(expr *Expr, inputs map[string]*slice.DataSlice, opts ...Options) (*slice.DataSlice, error) {
	return defaultSession.Eval(expr, inputs, opts...)
}

// ClearCaches clears the default session's cache, starting a new allocation
// epoch.
func ClearCaches() {
	defaultSession.ClearCache()
}

// env threads one evaluation's configuration and bindings through the
// recursive walk.
type env struct {
	sess   *Session
	opts   Options
	log    Logger
	inputs map[string]*slice.DataSlice
	depth  int
}

func (e *env) eval(x *Expr) (*slice.DataSlice, error) {
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > e.opts.MaxDepth {
		return nil, fmt.Errorf("expression nesting exceeds max depth %d", e.opts.MaxDepth)
	}

	switch x.kind {
	case exprLiteral:
		return x.lit, nil

	case exprInput:
		ds, ok := e.inputs[x.name]
		if !ok {
			return nil, fmt.Errorf("the expression references an unbound input '%s'", x.name)
		}
		return ds, nil

	case exprCall:
		op, ok := Lookup(x.name)
		if !ok {
			return nil, fmt.Errorf("unknown operator '%s'", x.name)
		}
		memoize := op.Memoized || e.opts.EnableMemo
		var key string
		if memoize {
			key = e.sess.fp.EvalKey(x, e.inputs)
			if ds, hit := e.sess.lookup(key); hit {
				e.log.With(map[string]any{"op": op.Name}).Debugf("cache hit")
				return ds, nil
			}
		}

		c := &Invocation{Op: op, Args: make([]*slice.DataSlice, len(x.args))}
		for i, a := range x.args {
			ds, err := e.eval(a)
			if err != nil {
				return nil, err
			}
			c.Args[i] = ds
		}
		if len(x.kw) > 0 {
			c.Kw = make(map[string]*slice.DataSlice, len(x.kw))
			for k, v := range x.kw {
				ds, err := e.eval(v)
				if err != nil {
					return nil, err
				}
				c.Kw[k] = ds
			}
		}
		if err := checkCall(op, c); err != nil {
			return nil, err
		}

		out, err := op.fn(e, c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op.Name, err)
		}
		if memoize {
			e.sess.store(key, out)
		}
		e.log.With(map[string]any{"op": op.Name}).Debugf("evaluated -> %s", sliceSummary(out))
		return out, nil

	default:
		return nil, fmt.Errorf("invalid expression node")
	}
}

// ----------------------------------------------------------------------------
// Engine helpers
// ----------------------------------------------------------------------------

// alignArgs broadcasts every argument to the common shape.
func alignArgs(args []*slice.DataSlice) ([]*slice.DataSlice, error) {
	common := args[0].Shape()
	for _, a := range args[1:] {
		next, err := shape.Broadcast(common, a.Shape())
		if err != nil {
			return nil, err
		}
		common = next
	}
	out := make([]*slice.DataSlice, len(args))
	for i, a := range args {
		b, err := a.BroadcastTo(common)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// primitivePayload resolves the uniform primitive dtype of a slice's
// content. Primitive slices report their declared dtype. OBJECT and ANY
// slices are scanned: a uniform primitive payload is accepted, heterogeneous
// primitive payloads are a type mismatch, and non-primitive payloads have no
// primitive schema. The second result is false when the payload is entirely
// absent, leaving the dtype unobservable.
func primitivePayload(ds *slice.DataSlice) (schema.DType, bool, error) {
	sch := ds.Schema()
	switch sch.Kind() {
	case schema.KindPrimitive:
		return sch.DType(), true, nil
	case schema.KindObject, schema.KindAny:
		d := schema.InvalidDType
		for _, v := range ds.Values() {
			if v.IsAbsent() {
				continue
			}
			vd := v.DType()
			if vd == schema.InvalidDType {
				return schema.InvalidDType, false, fmt.Errorf("DataSlice has no primitive schema")
			}
			if d == schema.InvalidDType {
				d = vd
				continue
			}
			if d != vd {
				return schema.InvalidDType, false, &slice.TypeMismatchError{
					Detail: fmt.Sprintf("%s and %s", schema.Primitive(d), schema.Primitive(vd)),
				}
			}
		}
		if d == schema.InvalidDType {
			return schema.InvalidDType, false, nil
		}
		return d, true, nil
	default:
		return schema.InvalidDType, false, fmt.Errorf("DataSlice has no primitive schema")
	}
}

// resolveNdim reads the ndim keyword (default 1) and validates it against
// the argument's rank. Reducing a rank-0 slice is always an error; other
// out-of-range values are bounds errors naming the valid range.
func resolveNdim(c *Invocation, x *slice.DataSlice) (int, error) {
	ndim := 1
	if kw, ok := c.Kw["ndim"]; ok {
		if !kw.IsItem() {
			return 0, fmt.Errorf("ndim must be an integer item")
		}
		i, isInt := kw.Item().AsInt64()
		if !isInt {
			return 0, fmt.Errorf("ndim must be an integer item, got %s", kw.Item())
		}
		ndim = int(i)
	}
	rank := x.Rank()
	if ndim < 0 {
		return 0, &slice.BoundsError{Detail: fmt.Sprintf("expected 0 <= ndim <= rank(x), got ndim=%d", ndim)}
	}
	if ndim == 0 {
		return 0, nil
	}
	if rank == 0 {
		return 0, fmt.Errorf("expected rank(x) > 0")
	}
	if ndim > rank {
		return 0, &slice.BoundsError{Detail: fmt.Sprintf("expected 0 <= ndim <= rank(x), got ndim=%d for rank %d", ndim, rank)}
	}
	return ndim, nil
}
