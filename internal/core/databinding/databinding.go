// Package databinding moves values between data representations. It hosts
// the data binding registry, the transformer graph, the mediator that walks
// it and the interceptors that apply mediation on a wire.
package databinding

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
)

var (
	ErrNoTransformer    = errors.New("no transformer path")
	ErrNoWrapperHandler = errors.New("no wrapper handler is provided for databinding")
	ErrFaultMapping     = errors.New("fault type cannot be mapped")
)

// TransformationError reports a failed mediation between two data bindings.
type TransformationError struct {
	Source string
	Target string
	Cause  error
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("transform %s -> %s: %v", e.Source, e.Target, e.Cause)
}

func (e *TransformationError) Unwrap() error {
	return e.Cause
}

// TransformationContext is handed to transformers and wrapper handlers.
type TransformationContext struct {
	SourceType      *interfacedef.DataType
	TargetType      *interfacedef.DataType
	SourceOperation *interfacedef.Operation
	TargetOperation *interfacedef.Operation
	Metadata        map[string]any
}

// DataBinding is a named data representation.
type DataBinding interface {
	Name() string
	// WrapperHandler may return nil when the binding has no wrapper support.
	WrapperHandler() WrapperHandler
	// ExceptionHandler may return nil when the binding declares no faults.
	ExceptionHandler() ExceptionHandler
	// Copy returns a value that shares no mutable state with value.
	Copy(value any, dataType *interfacedef.DataType) (any, error)
}

// WrapperHandler builds and takes apart document-literal wrappers.
type WrapperHandler interface {
	Create(element interfacedef.ElementInfo, tctx *TransformationContext) (any, error)
	// WrapperType returns the DataType of a wrapper this handler can mediate
	// as a whole document, or nil.
	WrapperType(element interfacedef.ElementInfo, children []interfacedef.ElementInfo, tctx *TransformationContext) *interfacedef.DataType
	IsInstance(wrapper any, element interfacedef.ElementInfo, children []interfacedef.ElementInfo, tctx *TransformationContext) bool
	SetChild(wrapper any, i int, child interfacedef.ElementInfo, value any) error
	Children(wrapper any, children []interfacedef.ElementInfo, tctx *TransformationContext) ([]any, error)
}

// ExceptionHandler maps business fault errors to fault payloads and back.
type ExceptionHandler interface {
	// FaultType returns the DataType of the fault payload carried by errors
	// of exceptionType.
	FaultType(exceptionType *interfacedef.DataType) *interfacedef.DataType
	FaultInfo(err error) any
	CreateException(exceptionType *interfacedef.DataType, message string, faultInfo any, cause error) (error, error)
}

// Transformer converts values from one data binding to another.
type Transformer interface {
	SourceDataBinding() string
	TargetDataBinding() string
	Weight() int
	Transform(value any, tctx *TransformationContext) (any, error)
}

type funcTransformer struct {
	source, target string
	weight         int
	fn             func(value any, tctx *TransformationContext) (any, error)
}

func (t *funcTransformer) SourceDataBinding() string { return t.source }
func (t *funcTransformer) TargetDataBinding() string { return t.target }
func (t *funcTransformer) Weight() int               { return t.weight }

func (t *funcTransformer) Transform(value any, tctx *TransformationContext) (any, error) {
	return t.fn(value, tctx)
}

// NewTransformer builds a Transformer from a function.
func NewTransformer(source, target string, weight int, fn func(value any, tctx *TransformationContext) (any, error)) Transformer {
	return &funcTransformer{source: source, target: target, weight: weight, fn: fn}
}

// Registry holds data bindings and the transformer graph between them.
type Registry struct {
	mu           sync.RWMutex
	bindings     map[string]DataBinding
	transformers map[string]map[string]Transformer // source -> target -> lightest transformer
}

func NewRegistry() *Registry {
	return &Registry{
		bindings:     make(map[string]DataBinding),
		transformers: make(map[string]map[string]Transformer),
	}
}

// NewDefaultRegistry returns a registry with the go and json bindings and
// the transformers between them.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(GoBinding{})
	r.Register(JSONBinding{})
	for _, t := range jsonTransformers() {
		r.AddTransformer(t)
	}
	return r
}

func (r *Registry) Register(db DataBinding) {
	r.mu.Lock()
	r.bindings[db.Name()] = db
	r.mu.Unlock()
}

// DataBinding returns the named binding or nil.
func (r *Registry) DataBinding(name string) DataBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bindings[name]
}

// WrapperHandler returns the wrapper handler of the named binding or nil.
func (r *Registry) WrapperHandler(name string) WrapperHandler {
	if db := r.DataBinding(name); db != nil {
		return db.WrapperHandler()
	}
	return nil
}

// ExceptionHandler returns the exception handler of the named binding or nil.
func (r *Registry) ExceptionHandler(name string) ExceptionHandler {
	if db := r.DataBinding(name); db != nil {
		return db.ExceptionHandler()
	}
	return nil
}

// AddTransformer registers t, replacing a heavier transformer for the same
// pair.
func (r *Registry) AddTransformer(t Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	edges := r.transformers[t.SourceDataBinding()]
	if edges == nil {
		edges = make(map[string]Transformer)
		r.transformers[t.SourceDataBinding()] = edges
	}
	if existing, ok := edges[t.TargetDataBinding()]; ok && existing.Weight() <= t.Weight() {
		return
	}
	edges[t.TargetDataBinding()] = t
}

// Transformer returns the direct transformer for a pair or nil.
func (r *Registry) Transformer(source, target string) Transformer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transformers[source][target]
}

// Path returns the lightest sequence of transformers leading from source to
// target, or nil when target is unreachable.
func (r *Registry) Path(source, target string) []Transformer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dist := map[string]int{source: 0}
	via := make(map[string]Transformer)
	queue := &pathQueue{{node: source}}
	for queue.Len() > 0 {
		cur := heap.Pop(queue).(pathItem)
		if cur.cost > dist[cur.node] {
			continue
		}
		if cur.node == target {
			break
		}
		for next, t := range r.transformers[cur.node] {
			cost := cur.cost + t.Weight()
			if d, seen := dist[next]; !seen || cost < d {
				dist[next] = cost
				via[next] = t
				heap.Push(queue, pathItem{node: next, cost: cost})
			}
		}
	}
	if _, ok := via[target]; !ok {
		return nil
	}
	var path []Transformer
	for node := target; node != source; {
		t := via[node]
		path = append([]Transformer{t}, path...)
		node = t.SourceDataBinding()
	}
	return path
}

type pathItem struct {
	node string
	cost int
}

type pathQueue []pathItem

func (q pathQueue) Len() int           { return len(q) }
func (q pathQueue) Less(i, j int) bool { return q[i].cost < q[j].cost }
func (q pathQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)        { *q = append(*q, x.(pathItem)) }

func (q *pathQueue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}
