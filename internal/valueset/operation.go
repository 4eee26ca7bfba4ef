package valueset

// OpKind is the kind of an IndexOperation.
type OpKind int

const (
	// OpUpsert adds or replaces a value set.
	OpUpsert OpKind = iota
	// OpDelete removes ids and, transitively, their descendants.
	OpDelete
)

// String returns a human-readable representation of the kind.
func (k OpKind) String() string {
	switch k {
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// IndexOperation is a pending index mutation.
type IndexOperation struct {
	Kind     OpKind
	ValueSet *ValueSet
	IDs      []string
}

// Upsert builds add/update operations for the value sets.
func Upsert(sets ...*ValueSet) []IndexOperation {
	ops := make([]IndexOperation, 0, len(sets))
	for _, vs := range sets {
		ops = append(ops, IndexOperation{Kind: OpUpsert, ValueSet: vs})
	}
	return ops
}

// Delete builds a single delete operation for ids.
func Delete(ids ...string) IndexOperation {
	return IndexOperation{Kind: OpDelete, IDs: ids}
}

// TargetIDs lists the ids the operation touches directly.
func (op IndexOperation) TargetIDs() []string {
	if op.Kind == OpUpsert {
		if op.ValueSet == nil {
			return nil
		}
		return []string{op.ValueSet.ID}
	}
	return op.IDs
}
