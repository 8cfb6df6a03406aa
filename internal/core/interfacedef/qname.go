package interfacedef

import (
	"strings"
)

// QName is a namespace qualified name.
type QName struct {
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Local     string `json:"local" yaml:"local"`
}

func NewQName(namespace, local string) QName {
	return QName{Namespace: namespace, Local: local}
}

func (q QName) IsZero() bool {
	return q.Namespace == "" && q.Local == ""
}

func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return "{" + q.Namespace + "}" + q.Local
}

// MatchQName reports whether two names refer to the same element. Namespaces
// that differ only by a single trailing "/" are treated as equal since
// generated artifacts are inconsistent about it.
func MatchQName(a, b QName) bool {
	if a.Local != b.Local {
		return false
	}
	return matchNamespace(a.Namespace, b.Namespace)
}

func matchNamespace(a, b string) bool {
	if a == b {
		return true
	}
	return a+"/" == b || b+"/" == a
}

// XMLType is the logical type of a value described by an element name and a
// type name. Either part may be empty.
type XMLType struct {
	Element QName `json:"element" yaml:"element"`
	Type    QName `json:"type" yaml:"type"`
}

// Matches compares element and type names with MatchQName semantics.
func (t XMLType) Matches(other XMLType) bool {
	return MatchQName(t.Element, other.Element) && MatchQName(t.Type, other.Type)
}

func (t XMLType) String() string {
	var sb strings.Builder
	sb.WriteString("XMLType[")
	if !t.Element.IsZero() {
		sb.WriteString("element=")
		sb.WriteString(t.Element.String())
	}
	if !t.Type.IsZero() {
		if !t.Element.IsZero() {
			sb.WriteString(",")
		}
		sb.WriteString("type=")
		sb.WriteString(t.Type.String())
	}
	sb.WriteString("]")
	return sb.String()
}

// TypesMatch reports whether two logical types denote the same thing: equal
// values, or two XMLTypes whose names match.
func TypesMatch(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if xa, ok := asXMLType(a); ok {
		if xb, ok := asXMLType(b); ok {
			return xa.Matches(xb)
		}
		return false
	}
	return logicalEqual(a, b)
}

func asXMLType(v any) (XMLType, bool) {
	switch t := v.(type) {
	case XMLType:
		return t, true
	case *XMLType:
		if t == nil {
			return XMLType{}, false
		}
		return *t, true
	default:
		return XMLType{}, false
	}
}
