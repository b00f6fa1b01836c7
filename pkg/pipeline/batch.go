package pipeline

// Partition splits items into consecutive batches of at most size elements,
// preserving order. The batches share the backing array of items.
func Partition[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}

	batches := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}
