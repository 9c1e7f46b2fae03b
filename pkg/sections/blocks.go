package sections

import "fmt"

// Block is a resolved block instance.
type Block struct {
	Type     string   `json:"type"`
	Settings Settings `json:"settings"`
}

// ResolveBlocks resolves block instances against the schema's block types.
// Each instance starts from the defaults of its type and is overlaid with its
// own settings. Unknown block types are dropped, as are instances beyond the
// per-type limit or the section's maximum block count. Every drop produces a
// warning.
func ResolveBlocks(schema *Schema, inputs []BlockInput) ([]Block, []string) {
	if len(inputs) == 0 {
		return nil, nil
	}
	var (
		blocks   []Block
		warnings []string
		perType  = map[string]int{}
		maxTotal = schema.BlockLimit()
	)
	for i, in := range inputs {
		decl, ok := schema.Block(in.Type)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("block %d: unknown block type %q", i, in.Type))
			continue
		}
		if len(blocks) >= maxTotal {
			warnings = append(warnings, fmt.Sprintf("block %d: section allows at most %d blocks", i, maxTotal))
			continue
		}
		if decl.Limit > 0 && perType[in.Type] >= decl.Limit {
			warnings = append(warnings, fmt.Sprintf("block %d: block type %q allows at most %d instances", i, in.Type, decl.Limit))
			continue
		}
		perType[in.Type]++

		res := apply([]Layer{
			{Name: "defaults", Values: declDefaults(decl.Settings)},
			{Name: "block", Values: in.Settings},
		}, decl.Settings)
		for _, w := range res.Warnings {
			warnings = append(warnings, fmt.Sprintf("block %d: %s", i, w))
		}
		blocks = append(blocks, Block{Type: in.Type, Settings: res.Settings})
	}
	return blocks, warnings
}

// ResolveAll resolves settings and blocks in one step.
func ResolveAll(schema *Schema, preset, overrides Settings, blocks []BlockInput) Resolved {
	res := Resolve(schema, preset, overrides)
	var warnings []string
	res.Blocks, warnings = ResolveBlocks(schema, blocks)
	res.Warnings = append(res.Warnings, warnings...)
	return res
}
