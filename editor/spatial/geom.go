package spatial

import (
	"math"

	"git.fiblab.net/general/common/v2/geometry"
)

// 点到线段ab的最近距离
func DistToSegment(p, a, b geometry.Point) float64 {
	abx, aby := b.X-a.X, b.Y-a.Y
	l2 := abx*abx + aby*aby
	if l2 == 0 {
		return geometry.Distance(p, a)
	}
	t := ((p.X-a.X)*abx + (p.Y-a.Y)*aby) / l2
	t = math.Max(0, math.Min(1, t))
	return geometry.Distance(p, geometry.Blend(a, b, t))
}

// 点到折线的最近距离，折线至少包含两个点
func DistToPolyline(p geometry.Point, line []geometry.Point) float64 {
	if len(line) == 0 {
		return math.Inf(1)
	}
	if len(line) == 1 {
		return geometry.Distance(p, line[0])
	}
	d := math.Inf(1)
	for i := 0; i+1 < len(line); i++ {
		d = math.Min(d, DistToSegment(p, line[i], line[i+1]))
	}
	return d
}

func cross(ox, oy, ax, ay, bx, by float64) float64 {
	return (ax-ox)*(by-oy) - (ay-oy)*(bx-ox)
}

// 线段p1p2与q1q2是否严格相交（共享端点不算相交）
func SegmentsCross(p1, p2, q1, q2 geometry.Point) (geometry.Point, bool) {
	d1 := cross(q1.X, q1.Y, q2.X, q2.Y, p1.X, p1.Y)
	d2 := cross(q1.X, q1.Y, q2.X, q2.Y, p2.X, p2.Y)
	d3 := cross(p1.X, p1.Y, p2.X, p2.Y, q1.X, q1.Y)
	d4 := cross(p1.X, p1.Y, p2.X, p2.Y, q2.X, q2.Y)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		t := d1 / (d1 - d2)
		return geometry.Blend(p1, p2, t), true
	}
	return geometry.Point{}, false
}
