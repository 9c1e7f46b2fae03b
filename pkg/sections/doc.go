/*
Package sections models storefront section schemas and resolves the settings a
section is rendered with.

A Schema declares settings, block types and presets. Resolve merges the
schema defaults, an optional preset and caller overrides through an ordered
Pipeline of layers, so precedence is data rather than control flow:

	res := sections.Resolve(schema, preset.Settings, overrides)

Setting values are represented by Value, a tagged variant over string,
number, bool and structured data with a canonical JSON encoding.
*/
package sections
