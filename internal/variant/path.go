package variant

// PathStep is a single step in an extraction path: either an object field
// name or an array index.
type PathStep struct {
	Field   string
	Index   int
	IsIndex bool
}

// FieldStep returns a step that descends into an object field
func FieldStep(name string) PathStep {
	return PathStep{Field: name}
}

// IndexStep returns a step that descends into an array element
func IndexStep(i int) PathStep {
	return PathStep{Index: i, IsIndex: true}
}

// Extract descends the value tree along path. It is total: an absent field,
// an out-of-bounds index, or a container step applied to a scalar all yield
// the null variant.
func Extract(v Value, path []PathStep) Value {
	current := v
	for _, step := range path {
		if step.IsIndex {
			current = current.Index(step.Index)
		} else {
			current = current.Field(step.Field)
		}
		if current.IsNull() {
			return Null()
		}
	}
	return current
}
