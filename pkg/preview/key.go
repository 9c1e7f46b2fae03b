package preview

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/CTAG07/Trellis/pkg/sections"
)

// BuildKey derives the cache key for one render. The key is the hex SHA-256 of
// the section id, the preset id, the canonical (key sorted) settings, the
// resolved block instances and the engine version, each separated by a zero
// byte. An empty presetID means no preset.
func BuildKey(sectionID, presetID string, settings sections.Settings, engineVersion string, blocks ...sections.Block) string {
	h := sha256.New()
	write := func(b []byte) {
		_, _ = h.Write(b)
		_, _ = h.Write([]byte{0})
	}

	write([]byte(sectionID))
	if presetID == "" {
		write([]byte{'-'})
	} else {
		write(append([]byte{'+'}, presetID...))
	}
	write(settings.Canonical())
	write(canonicalBlocks(blocks))
	write([]byte(engineVersion))

	return hex.EncodeToString(h.Sum(nil))
}

func canonicalBlocks(blocks []sections.Block) []byte {
	if len(blocks) == 0 {
		return []byte("[]")
	}
	out := []byte{'['}
	for i, b := range blocks {
		if i > 0 {
			out = append(out, ',')
		}
		typ, _ := json.Marshal(b.Type)
		out = append(out, `{"type":`...)
		out = append(out, typ...)
		out = append(out, `,"settings":`...)
		out = append(out, b.Settings.Canonical()...)
		out = append(out, '}')
	}
	return append(out, ']')
}
