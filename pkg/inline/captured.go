package inline

import (
	"github.com/daimatz/lambdainline/pkg/descriptor"
)

// CapturedParamDesc identifies one value captured by a lambda class: the
// field FieldName of class ContainingLambdaName.
type CapturedParamDesc struct {
	ContainingLambdaName string
	FieldName            string
	FieldType            descriptor.Type
}

// NewCapturedParamDesc validates and builds a CapturedParamDesc.
func NewCapturedParamDesc(owner, field string, t descriptor.Type) (CapturedParamDesc, error) {
	if owner == "" {
		return CapturedParamDesc{}, internalErrorf("captured field %s has no containing lambda", field)
	}
	return CapturedParamDesc{ContainingLambdaName: owner, FieldName: field, FieldType: t}, nil
}

func capturedParamDesc(lambdaClass descriptor.Type, field string, t descriptor.Type) CapturedParamDesc {
	return CapturedParamDesc{ContainingLambdaName: lambdaClass.InternalName(), FieldName: field, FieldType: t}
}

type fieldKey struct {
	owner string
	field string
}

func (d CapturedParamDesc) key() fieldKey {
	return fieldKey{d.ContainingLambdaName, d.FieldName}
}

func (d CapturedParamDesc) String() string {
	return d.ContainingLambdaName + "." + d.FieldName + ":" + d.FieldType.Descriptor()
}
