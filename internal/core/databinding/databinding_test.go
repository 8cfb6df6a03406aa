package databinding

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func goType[T any]() *interfacedef.DataType {
	return interfacedef.NewDataType(GoDataBinding, reflect.TypeFor[T](), nil)
}

func TestIsTransformationRequired(t *testing.T) {
	str := goType[string]()
	tests := []struct {
		name           string
		source, target *interfacedef.DataType
		want           bool
	}{
		{"void source", nil, str, false},
		{"void target", str, nil, false},
		{"same reference", str, str, false},
		{"same binding other physical", str, goType[int](), false},
		{"empty binding on one side", interfacedef.NewDataType("", nil, nil), JSONType(nil), false},
		{"both empty", interfacedef.NewDataType("", nil, nil), interfacedef.NewDataType("", nil, nil), false},
		{"different bindings", str, JSONType(nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransformationRequired(tt.source, tt.target))
		})
	}
}

func TestIsOperationTransformationRequired(t *testing.T) {
	str := goType[string]()
	op := &interfacedef.Operation{Name: "echo", Inputs: []*interfacedef.DataType{str}, Output: str}
	assert.False(t, IsOperationTransformationRequired(op, op))

	same := &interfacedef.Operation{Name: "echo", Inputs: []*interfacedef.DataType{goType[string]()}, Output: goType[string]()}
	assert.False(t, IsOperationTransformationRequired(op, same))

	wrapped := &interfacedef.Operation{Name: "echo", WrapperStyle: true, Inputs: []*interfacedef.DataType{str}, Output: str}
	assert.True(t, IsOperationTransformationRequired(op, wrapped))

	moreArgs := &interfacedef.Operation{Name: "echo", Inputs: []*interfacedef.DataType{str, str}, Output: str}
	assert.True(t, IsOperationTransformationRequired(op, moreArgs))

	jsonOut := &interfacedef.Operation{Name: "echo", Inputs: []*interfacedef.DataType{str}, Output: JSONType(nil)}
	assert.True(t, IsOperationTransformationRequired(op, jsonOut))

	jsonIn := &interfacedef.Operation{Name: "echo", Inputs: []*interfacedef.DataType{JSONType(nil)}, Output: str}
	assert.True(t, IsOperationTransformationRequired(op, jsonIn))
}

func TestRegistryPath(t *testing.T) {
	r := NewRegistry()
	noop := func(v any, _ *TransformationContext) (any, error) { return v, nil }
	r.AddTransformer(NewTransformer("a", "b", 1, noop))
	r.AddTransformer(NewTransformer("b", "c", 1, noop))
	r.AddTransformer(NewTransformer("a", "c", 5, noop))

	path := r.Path("a", "c")
	require.Len(t, path, 2)
	assert.Equal(t, "b", path[0].TargetDataBinding())
	assert.Equal(t, "c", path[1].TargetDataBinding())
	assert.Nil(t, r.Path("c", "a"))

	r.AddTransformer(NewTransformer("a", "c", 1, noop))
	assert.Len(t, r.Path("a", "c"), 1)
	r.AddTransformer(NewTransformer("a", "c", 3, noop))
	assert.Equal(t, 1, r.Transformer("a", "c").Weight())
}

func TestMediator_RoundTrip(t *testing.T) {
	m := NewMediator(NewDefaultRegistry())
	goPoint := goType[point]()
	jsonPoint := JSONType(nil)

	encoded, err := m.Mediate(point{X: 1, Y: 2}, goPoint, jsonPoint, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1,"y":2}`, string(encoded.(json.RawMessage)))

	decoded, err := m.Mediate(encoded, jsonPoint, goPoint, nil)
	require.NoError(t, err)
	assert.Equal(t, point{X: 1, Y: 2}, decoded)
}

func TestMediator_MultiHop(t *testing.T) {
	r := NewDefaultRegistry()
	r.AddTransformer(NewTransformer("text", GoDataBinding, 1, func(v any, _ *TransformationContext) (any, error) {
		return point{X: len(v.(string))}, nil
	}))
	m := NewMediator(r)

	out, err := m.Mediate("abc", interfacedef.NewDataType("text", nil, nil), JSONType(nil), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":3,"y":0}`, string(out.(json.RawMessage)))
}

func TestMediator_NoPath(t *testing.T) {
	m := NewMediator(NewDefaultRegistry())
	_, err := m.Mediate("x", interfacedef.NewDataType("xml", nil, nil), goType[string](), nil)
	var te *TransformationError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, ErrNoTransformer)
	assert.Equal(t, "xml", te.Source)
}

func TestMediator_PassThrough(t *testing.T) {
	m := NewMediator(NewDefaultRegistry())
	value := &point{X: 1}

	out, err := m.Mediate(value, goType[*point](), goType[*point](), nil)
	require.NoError(t, err)
	assert.Same(t, value, out)

	out, err = m.Mediate(value, nil, JSONType(nil), nil)
	require.NoError(t, err)
	assert.Same(t, value, out)

	out, err = m.Mediate(nil, goType[string](), JSONType(nil), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestJSONWrapperHandler(t *testing.T) {
	h := JSONBinding{}.WrapperHandler()
	element := interfacedef.ElementInfo{QName: interfacedef.NewQName("urn:t", "order")}
	children := []interfacedef.ElementInfo{
		{QName: interfacedef.NewQName("urn:t", "id")},
		{QName: interfacedef.NewQName("urn:t", "item.name")},
		{QName: interfacedef.NewQName("urn:t", "note"), Nillable: true},
	}

	w, err := h.Create(element, nil)
	require.NoError(t, err)
	require.NoError(t, h.SetChild(w, 0, children[0], json.RawMessage(`7`)))
	require.NoError(t, h.SetChild(w, 1, children[1], json.RawMessage(`"pen"`)))

	encoded, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"item.name":"pen"}`, string(encoded))

	assert.True(t, h.IsInstance(json.RawMessage(encoded), element, children, nil))
	assert.False(t, h.IsInstance(json.RawMessage(`[1]`), element, children, nil))

	values, err := h.Children(json.RawMessage(encoded), children, nil)
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, json.RawMessage(`7`), values[0])
	assert.Equal(t, json.RawMessage(`"pen"`), values[1])
	assert.Nil(t, values[2])
}

func TestGoWrapperHandler(t *testing.T) {
	h := GoBinding{}.WrapperHandler()
	element := interfacedef.ElementInfo{QName: interfacedef.NewQName("urn:t", "order")}
	children := []interfacedef.ElementInfo{{QName: interfacedef.NewQName("urn:t", "a")}, {QName: interfacedef.NewQName("urn:t", "b")}}

	w, err := h.Create(element, nil)
	require.NoError(t, err)
	require.NoError(t, h.SetChild(w, 1, children[1], "second"))
	require.NoError(t, h.SetChild(w, 0, children[0], "first"))

	values, err := h.Children(w, children, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"first", "second"}, values)
	assert.True(t, h.IsInstance(w, interfacedef.ElementInfo{QName: interfacedef.NewQName("urn:t/", "order")}, children, nil))
	assert.Nil(t, h.WrapperType(element, children, nil))
}

func TestBindingCopy(t *testing.T) {
	original := &point{X: 1}
	copied, err := GoBinding{}.Copy(original, nil)
	require.NoError(t, err)
	assert.Equal(t, original, copied)
	assert.NotSame(t, original, copied)

	raw := json.RawMessage(`{"x":1}`)
	copiedRaw, err := JSONBinding{}.Copy(raw, nil)
	require.NoError(t, err)
	raw[2] = 'y'
	assert.JSONEq(t, `{"x":1}`, string(copiedRaw.(json.RawMessage)))
}
