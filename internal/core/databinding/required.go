package databinding

import (
	"github.com/zeusync/zeuswire/internal/core/interfacedef"
)

// IsTransformationRequired decides whether values of source must be mediated
// to be used as target. An empty data binding on either side means no
// transformation.
func IsTransformationRequired(source, target *interfacedef.DataType) bool {
	if source == nil || target == nil {
		return false
	}
	if source == target {
		return false
	}
	sourceDB, targetDB := source.DataBinding, target.DataBinding
	if sourceDB == targetDB {
		return false
	}
	if sourceDB == "" || targetDB == "" {
		return false
	}
	return !source.Equal(target)
}

// IsOperationTransformationRequired decides whether a call from source to
// target needs mediation of inputs or outputs.
func IsOperationTransformationRequired(source, target *interfacedef.Operation) bool {
	if source == target {
		return false
	}
	if source == nil || target == nil {
		return false
	}
	if source.WrapperStyle != target.WrapperStyle {
		return true
	}
	// Output flows from target back to source.
	if IsTransformationRequired(target.Output, source.Output) {
		return true
	}
	if len(source.Inputs) != len(target.Inputs) {
		return true
	}
	for i := range source.Inputs {
		if IsTransformationRequired(source.Inputs[i], target.Inputs[i]) {
			return true
		}
	}
	return false
}

// IsContractTransformationRequired reports whether any operation of source
// needs mediation against its counterpart in target.
func IsContractTransformationRequired(source, target *interfacedef.InterfaceContract, operation *interfacedef.Operation) bool {
	if source == target {
		return false
	}
	if operation == nil || source == nil || target == nil || target.Interface == nil {
		return false
	}
	return IsOperationTransformationRequired(operation, target.Interface.Operation(operation.Name))
}
