package editor

import (
	"math"

	"git.fiblab.net/general/common/v2/geometry"

	"git.fiblab.net/sim/mapedit/editor/rawmap"
	"git.fiblab.net/sim/mapedit/editor/spatial"
)

// 拾取：空间索引粗筛 + 精确几何判定
// 容差内交叉口优先于道路，避免大目标永远盖住小目标
type Picker struct {
	cfg   *Config
	m     *rawmap.Map
	index *spatial.Index[rawmap.EntityRef]
}

func NewPicker(cfg *Config, m *rawmap.Map, index *spatial.Index[rawmap.EntityRef]) *Picker {
	return &Picker{cfg: cfg, m: m, index: index}
}

func (p *Picker) PickAt(pt geometry.Point) (rawmap.EntityRef, bool) {
	query := spatial.PointRect(pt).Inflate(p.cfg.NodeRadius + p.cfg.PickTolerance)
	candidates := p.index.QueryRect(query)

	bestIC := rawmap.EntityRef{}
	bestICDist := math.Inf(1)
	bestRoad := rawmap.EntityRef{}
	bestRoadDist := math.Inf(1)
	for _, ref := range candidates {
		switch ref.Kind {
		case rawmap.KIND_INTERSECTION:
			ic, ok := p.m.Intersection(ref.ID)
			if !ok {
				continue
			}
			d := geometry.Distance(pt, ic.Position)
			if d <= p.cfg.NodeRadius+p.cfg.PickTolerance && d < bestICDist {
				bestIC, bestICDist = ref, d
			}
		case rawmap.KIND_ROAD:
			r, ok := p.m.Road(ref.ID)
			if !ok {
				continue
			}
			d := spatial.DistToPolyline(pt, p.m.Centerline(r))
			if d <= r.TotalWidth()/2+p.cfg.PickTolerance && d < bestRoadDist {
				bestRoad, bestRoadDist = ref, d
			}
		}
	}
	if !math.IsInf(bestICDist, 1) {
		return bestIC, true
	}
	if !math.IsInf(bestRoadDist, 1) {
		return bestRoad, true
	}
	return rawmap.EntityRef{}, false
}
