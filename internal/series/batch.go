package series

// Batch is what one view emits at the end of a cycle: the records written
// to the store and the samples they were derived from.
type Batch struct {
	CycleID string
	Meta    Meta
	Kind    Kind
	Feed    string
	Samples []Sample
	Records []Record
}

// Empty reports whether the batch carries no records.
func (b Batch) Empty() bool {
	return len(b.Records) == 0
}
