package graphics

import "fmt"

// Progressive codec support (MS-RDPRFX2 / RemoteFX Progressive). The
// wire format reuses RemoteFX's tile grid and block framing (rfx.go,
// message.go) but a tile may arrive in multiple quality-refining
// passes instead of once; a later pass for the same tile coordinate
// replaces the pixels already composited for it rather than adding a
// new tile. ProgressiveState is the per-surface memory of what was
// last composited for each tile coordinate.
type ProgressiveState struct {
	tiles map[tileKey][]byte // 64x64 RGBA, keyed by tile grid coordinate
}

type tileKey struct{ x, y uint16 }

// NewProgressiveState creates an empty progressive tile cache.
func NewProgressiveState() *ProgressiveState {
	return &ProgressiveState{tiles: make(map[tileKey][]byte)}
}

// mergeTile records the latest decode for a tile coordinate: the last
// write for a coordinate wins.
func (p *ProgressiveState) mergeTile(x, y uint16, rgba []byte) {
	p.tiles[tileKey{x, y}] = rgba
}

func (p *ProgressiveState) tile(x, y uint16) ([]byte, bool) {
	t, ok := p.tiles[tileKey{x, y}]
	return t, ok
}

// Reset drops all cached tiles. The Pipeline does not call it itself.
func (p *ProgressiveState) Reset() {
	p.tiles = make(map[tileKey][]byte)
}

var ErrProgressiveFormat = fmt.Errorf("progressive: malformed tile block")
