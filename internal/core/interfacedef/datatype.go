package interfacedef

import (
	"fmt"
	"reflect"
)

// Data binding identifiers of the synthetic IDL views an Operation exposes.
const (
	IDLInput  = "idl:input"
	IDLOutput = "idl:output"
	IDLFault  = "idl:fault"
)

// DataType describes a value: the data binding that owns its representation,
// its Go type and its logical (binding specific) type.
type DataType struct {
	DataBinding string
	Physical    reflect.Type
	Logical     any
}

func NewDataType(dataBinding string, physical reflect.Type, logical any) *DataType {
	return &DataType{DataBinding: dataBinding, Physical: physical, Logical: logical}
}

// Equal compares binding, physical type and logical type. Nil values are
// only equal to each other.
func (d *DataType) Equal(other *DataType) bool {
	if d == other {
		return true
	}
	if d == nil || other == nil {
		return false
	}
	return d.DataBinding == other.DataBinding &&
		d.Physical == other.Physical &&
		logicalEqual(d.Logical, other.Logical)
}

// Clone copies the DataType. Logical values are shared.
func (d *DataType) Clone() *DataType {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func (d *DataType) String() string {
	if d == nil {
		return "void"
	}
	physical := "<nil>"
	if d.Physical != nil {
		physical = d.Physical.String()
	}
	return fmt.Sprintf("%s %s %v", d.DataBinding, physical, d.Logical)
}

func logicalEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch la := a.(type) {
	case []*DataType:
		lb, ok := b.([]*DataType)
		if !ok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !la[i].Equal(lb[i]) {
				return false
			}
		}
		return true
	case *DataType:
		lb, ok := b.(*DataType)
		return ok && la.Equal(lb)
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
