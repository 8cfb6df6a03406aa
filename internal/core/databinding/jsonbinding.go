package databinding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
)

// JSONDataBinding is the identifier of encoded JSON documents
// (json.RawMessage values).
const JSONDataBinding = "json"

var rawMessageType = reflect.TypeFor[json.RawMessage]()

// JSONBinding handles json.RawMessage values.
type JSONBinding struct{}

var _ DataBinding = JSONBinding{}

func (JSONBinding) Name() string { return JSONDataBinding }

func (JSONBinding) WrapperHandler() WrapperHandler { return jsonWrapperHandler{} }

func (JSONBinding) ExceptionHandler() ExceptionHandler { return jsonExceptionHandler{} }

func (JSONBinding) Copy(value any, _ *interfacedef.DataType) (any, error) {
	raw, err := rawJSON(value)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.Clone(raw)), nil
}

// JSONType returns a json DataType with the given logical type.
func JSONType(logical any) *interfacedef.DataType {
	return interfacedef.NewDataType(JSONDataBinding, rawMessageType, logical)
}

// jsonWrapper is an ordered JSON object under construction.
type jsonWrapper struct {
	names  []string
	values []json.RawMessage
}

func (w *jsonWrapper) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range w.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(w.values[i]) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(w.values[i])
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func rawJSON(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	case *jsonWrapper:
		return v.MarshalJSON()
	default:
		return nil, fmt.Errorf("json binding: unexpected value %T", value)
	}
}

type jsonWrapperHandler struct{}

func (jsonWrapperHandler) Create(interfacedef.ElementInfo, *TransformationContext) (any, error) {
	return &jsonWrapper{}, nil
}

// WrapperType is nil: JSON wrappers are assembled child by child.
func (jsonWrapperHandler) WrapperType(interfacedef.ElementInfo, []interfacedef.ElementInfo, *TransformationContext) *interfacedef.DataType {
	return nil
}

func (jsonWrapperHandler) IsInstance(wrapper any, _ interfacedef.ElementInfo, children []interfacedef.ElementInfo, _ *TransformationContext) bool {
	raw, err := rawJSON(wrapper)
	if err != nil || !gjson.ValidBytes(raw) {
		return false
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return false
	}
	for _, child := range children {
		if !child.Nillable && !doc.Get(escapePath(child.QName.Local)).Exists() {
			return false
		}
	}
	return true
}

func (jsonWrapperHandler) SetChild(wrapper any, i int, child interfacedef.ElementInfo, value any) error {
	w, ok := wrapper.(*jsonWrapper)
	if !ok {
		return fmt.Errorf("json wrapper handler: unexpected wrapper %T", wrapper)
	}
	raw, err := rawJSON(value)
	if err != nil {
		return err
	}
	for len(w.names) <= i {
		w.names = append(w.names, "")
		w.values = append(w.values, nil)
	}
	w.names[i] = child.QName.Local
	w.values[i] = raw
	return nil
}

func (jsonWrapperHandler) Children(wrapper any, children []interfacedef.ElementInfo, _ *TransformationContext) ([]any, error) {
	raw, err := rawJSON(wrapper)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("json wrapper handler: wrapper is not an object")
	}
	out := make([]any, len(children))
	for i, child := range children {
		res := doc.Get(escapePath(child.QName.Local))
		if res.Exists() {
			out[i] = json.RawMessage(res.Raw)
		}
	}
	return out, nil
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)

func escapePath(key string) string {
	return pathEscaper.Replace(key)
}

type jsonExceptionHandler struct{}

func (jsonExceptionHandler) FaultType(exceptionType *interfacedef.DataType) *interfacedef.DataType {
	if exceptionType == nil {
		return nil
	}
	return JSONType(exceptionType.Logical)
}

func (jsonExceptionHandler) FaultInfo(err error) any {
	if fe, ok := err.(*invocation.FaultException); ok {
		if raw, rawErr := rawJSON(fe.FaultInfo); rawErr == nil {
			return json.RawMessage(raw)
		}
		encoded, _ := json.Marshal(fe.FaultInfo)
		return json.RawMessage(encoded)
	}
	encoded, _ := json.Marshal(err.Error())
	return json.RawMessage(encoded)
}

func (jsonExceptionHandler) CreateException(exceptionType *interfacedef.DataType, message string, faultInfo any, cause error) (error, error) {
	raw, err := rawJSON(faultInfo)
	if err != nil {
		return nil, err
	}
	fe := invocation.NewFaultException(message, json.RawMessage(raw), exceptionType.Logical)
	fe.Cause = cause
	return fe, nil
}

func jsonTransformers() []Transformer {
	return []Transformer{
		NewTransformer(GoDataBinding, JSONDataBinding, 10, goToJSON),
		NewTransformer(JSONDataBinding, GoDataBinding, 10, jsonToGo),
	}
}

func goToJSON(value any, _ *TransformationContext) (any, error) {
	switch v := value.(type) {
	case json.RawMessage:
		return v, nil
	case *Wrapper:
		return nil, fmt.Errorf("go wrapper %s cannot be encoded as a document", v.Element)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(encoded), nil
}

func jsonToGo(value any, tctx *TransformationContext) (any, error) {
	raw, err := rawJSON(value)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var physical reflect.Type
	if tctx != nil && tctx.TargetType != nil {
		physical = tctx.TargetType.Physical
	}
	if physical == nil {
		var decoded any
		if err = json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	}
	ptr := reflect.New(physical)
	if err = json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
