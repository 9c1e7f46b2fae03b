package templating

// blocksOfType filters a block list down to one block type.
func blocksOfType(blockType string, blocks []any) []any {
	var out []any
	for _, b := range blocks {
		m, ok := b.(map[string]any)
		if ok && m["type"] == blockType {
			out = append(out, b)
		}
	}
	return out
}

// chunk splits items into rows of size n, for grid layouts.
func chunk(n any, items []any) [][]any {
	size := int(num(n))
	if size <= 0 {
		return [][]any{items}
	}
	var rows [][]any
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		rows = append(rows, items[i:end])
	}
	return rows
}
