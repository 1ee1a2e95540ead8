package seq

// Batch represents a contiguous range of claimed sequences
// ending at End and spanning Size positions.
type Batch struct {
	end  int64
	size int64
}

// NewBatch returns a batch of the given size ending at the given sequence.
func NewBatch(end, size int64) Batch {
	return Batch{
		end:  end,
		size: size,
	}
}

// Start returns the first sequence of the batch.
func (b Batch) Start() int64 {
	return b.end - b.size + 1
}

// End returns the last sequence of the batch.
func (b Batch) End() int64 {
	return b.end
}

// Size returns the number of sequences in the batch.
func (b Batch) Size() int64 {
	return b.size
}
