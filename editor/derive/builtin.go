package derive

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"git.fiblab.net/general/common/v2/geometry"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"

	"git.fiblab.net/sim/mapedit/editor/rawmap"
	"git.fiblab.net/sim/mapedit/editor/spatial"
)

const (
	// 车道缺省限速
	DEFAULT_MAX_SPEED = 60 / 3.6

	// 转向分类角度阈值
	TURN_STRAIGHT_ANGLE = math.Pi / 6
	TURN_AROUND_ANGLE   = math.Pi * 5 / 6

	// 车道宽度之和允许超出道路标注宽度的余量（米）
	WIDTH_SLACK = 0.5
)

// 内置车道级路网求解器
// 按车道描述对道路中心线做横向偏移生成车道几何，
// 在交叉口内按进出方向夹角分类转向并生成连接车道
// 外部派生库可以通过Deriver接口整体替换本实现
type LaneResolver struct {
	// 无maxspeed标签时的缺省限速
	DefaultMaxSpeed float64
}

func NewLaneResolver() *LaneResolver {
	return &LaneResolver{DefaultMaxSpeed: DEFAULT_MAX_SPEED}
}

// 生成的车道及其在图中的连接端点信息
type resolvedLane struct {
	lane   *mapv2.Lane
	roadID int32
	dir    int32
}

func (d *LaneResolver) Derive(ctx context.Context, m *rawmap.Map) (*mapv2.Map, error) {
	roadIDs := lo.Keys(m.Roads())
	sort.Slice(roadIDs, func(i, j int) bool { return roadIDs[i] < roadIDs[j] })
	intersectionIDs := lo.Keys(m.Intersections())
	sort.Slice(intersectionIDs, func(i, j int) bool { return intersectionIDs[i] < intersectionIDs[j] })

	if err := d.checkTopology(ctx, m, roadIDs); err != nil {
		return nil, err
	}

	out := &mapv2.Map{}
	laneID := int32(0)
	// 道路id -> 该道路在交叉口处进出的driving车道
	roadLanes := make(map[int32][]*resolvedLane)
	laneByID := make(map[int32]*mapv2.Lane)

	for _, rid := range roadIDs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		road, _ := m.Road(rid)
		line := m.Centerline(road)
		specs := road.Lanes
		if len(specs) == 0 {
			specs = []rawmap.LaneSpec{{Dir: rawmap.FORWARD, Type: mapv2.LaneType_LANE_TYPE_DRIVING, Width: rawmap.DEFAULT_LANE_WIDTH}}
		}
		maxSpeed := d.roadMaxSpeed(road)
		total := road.TotalWidth()
		offset := -total / 2
		pbRoad := &mapv2.Road{Id: rid}
		var resolved []*resolvedLane
		for _, spec := range specs {
			center := offsetPolyline(line, offset+spec.Width/2)
			if spec.Dir == rawmap.BACKWARD {
				center = lo.Reverse(center)
			}
			lengths := geometry.GetPolylineLengths2D(center)
			lane := &mapv2.Lane{
				Id:       laneID,
				Type:     spec.Type,
				Turn:     mapv2.LaneTurn_LANE_TURN_STRAIGHT,
				MaxSpeed: maxSpeed,
				Width:    spec.Width,
				Length:   lengths[len(lengths)-1],
				CenterLine: &mapv2.Polyline{
					Nodes: lo.Map(center, func(p geometry.Point, _ int) *geov2.XYPosition {
						return &geov2.XYPosition{X: p.X, Y: p.Y}
					}),
				},
				ParentId: rid,
			}
			laneID++
			offset += spec.Width
			out.Lanes = append(out.Lanes, lane)
			pbRoad.LaneIds = append(pbRoad.LaneIds, lane.Id)
			laneByID[lane.Id] = lane
			resolved = append(resolved, &resolvedLane{lane: lane, roadID: rid, dir: spec.Dir})
		}
		// 同向相邻车道的左右关系，描述顺序视为行车方向的从左到右
		fillSiblings(resolved)
		roadLanes[rid] = resolved
		out.Roads = append(out.Roads, pbRoad)
	}

	for _, iid := range intersectionIDs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		ic, _ := m.Intersection(iid)
		junction := &mapv2.Junction{Id: iid}
		inbound, outbound := approaches(m, roadLanes, iid)
		for _, in := range inbound {
			for _, outLanes := range outbound {
				n := min(len(in), len(outLanes))
				for k := 0; k < n; k++ {
					jl := d.connectLanes(&laneID, ic, in[k], outLanes[k])
					out.Lanes = append(out.Lanes, jl)
					junction.LaneIds = append(junction.LaneIds, jl.Id)
				}
			}
		}
		out.Junctions = append(out.Junctions, junction)
	}
	return out, nil
}

// 两两检查道路中心线是否在未建模交叉口处相交
// 共享端点的接触不算相交，只有内部穿越才会被拒绝
func (d *LaneResolver) checkTopology(ctx context.Context, m *rawmap.Map, roadIDs []int32) error {
	lines := make(map[int32][]geometry.Point, len(roadIDs))
	rects := make(map[int32]spatial.Rect, len(roadIDs))
	for _, rid := range roadIDs {
		road, _ := m.Road(rid)
		lines[rid] = m.Centerline(road)
		rects[rid] = spatial.PolylineRect(lines[rid])
	}
	for i, a := range roadIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, b := range roadIDs[i+1:] {
			if !rects[a].Intersects(rects[b]) {
				continue
			}
			la, lb := lines[a], lines[b]
			for s := 0; s+1 < len(la); s++ {
				for t := 0; t+1 < len(lb); t++ {
					if _, crossed := spatial.SegmentsCross(la[s], la[s+1], lb[t], lb[t+1]); crossed {
						return &Error{
							EntityID: a,
							Reason:   fmt.Sprintf("crosses road %d without a modeled intersection", b),
						}
					}
				}
			}
		}
	}
	// 车道宽度之和不能超过道路标注宽度
	for _, rid := range roadIDs {
		road, _ := m.Road(rid)
		tagged, ok := road.Tags["width"]
		if !ok {
			continue
		}
		width, err := strconv.ParseFloat(tagged, 64)
		if err != nil {
			return &Error{EntityID: rid, Reason: fmt.Sprintf("invalid width tag %q", tagged)}
		}
		if road.TotalWidth() > width+WIDTH_SLACK {
			return &Error{
				EntityID: rid,
				Reason: fmt.Sprintf("lane widths sum to %.2f, exceeding tagged road width %.2f",
					road.TotalWidth(), width),
			}
		}
	}
	return nil
}

func (d *LaneResolver) roadMaxSpeed(road *rawmap.Road) float64 {
	tagged, ok := road.Tags["maxspeed"]
	if !ok {
		return d.DefaultMaxSpeed
	}
	v, err := strconv.ParseFloat(tagged, 64)
	if err != nil || v <= 0 {
		log.Warnf("road %d has invalid maxspeed tag %q, using default", road.ID, tagged)
		return d.DefaultMaxSpeed
	}
	return v
}

// 在交叉口内生成连接车道，按进出方向夹角分类转向
func (d *LaneResolver) connectLanes(laneID *int32, ic *rawmap.Intersection, in, out *resolvedLane) *mapv2.Lane {
	inNodes := in.lane.CenterLine.Nodes
	outNodes := out.lane.CenterLine.Nodes
	a := inNodes[len(inNodes)-1]
	b := outNodes[0]
	center := []*geov2.XYPosition{
		{X: a.X, Y: a.Y},
		{X: ic.Position.X, Y: ic.Position.Y},
		{X: b.X, Y: b.Y},
	}
	line := lo.Map(center, func(n *geov2.XYPosition, _ int) geometry.Point {
		return geometry.Point{X: n.X, Y: n.Y}
	})
	lengths := geometry.GetPolylineLengths2D(line)
	jl := &mapv2.Lane{
		Id:         *laneID,
		Type:       mapv2.LaneType_LANE_TYPE_DRIVING,
		Turn:       classifyTurn(inNodes, outNodes),
		MaxSpeed:   math.Min(in.lane.MaxSpeed, out.lane.MaxSpeed),
		Width:      in.lane.Width,
		Length:     lengths[len(lengths)-1],
		CenterLine: &mapv2.Polyline{Nodes: center},
		ParentId:   ic.ID,
		Predecessors: []*mapv2.LaneConnection{
			{Id: in.lane.Id, Type: mapv2.LaneConnectionType_LANE_CONNECTION_TYPE_TAIL},
		},
		Successors: []*mapv2.LaneConnection{
			{Id: out.lane.Id, Type: mapv2.LaneConnectionType_LANE_CONNECTION_TYPE_HEAD},
		},
	}
	*laneID++
	in.lane.Successors = append(in.lane.Successors, &mapv2.LaneConnection{
		Id: jl.Id, Type: mapv2.LaneConnectionType_LANE_CONNECTION_TYPE_HEAD,
	})
	out.lane.Predecessors = append(out.lane.Predecessors, &mapv2.LaneConnection{
		Id: jl.Id, Type: mapv2.LaneConnectionType_LANE_CONNECTION_TYPE_TAIL,
	})
	return jl
}

// 进出交叉口的driving车道组
// 以交叉口为终点行驶的车道为进组，以交叉口为起点的为出组，按道路id升序
func approaches(m *rawmap.Map, roadLanes map[int32][]*resolvedLane, iid int32) (inbound, outbound [][]*resolvedLane) {
	for _, rid := range m.IncidentRoads(iid) {
		road, _ := m.Road(rid)
		var in, out []*resolvedLane
		for _, rl := range roadLanes[rid] {
			if rl.lane.Type != mapv2.LaneType_LANE_TYPE_DRIVING {
				continue
			}
			arrives := (rl.dir == rawmap.FORWARD && road.To == iid) ||
				(rl.dir == rawmap.BACKWARD && road.From == iid)
			departs := (rl.dir == rawmap.FORWARD && road.From == iid) ||
				(rl.dir == rawmap.BACKWARD && road.To == iid)
			if arrives {
				in = append(in, rl)
			}
			if departs {
				out = append(out, rl)
			}
		}
		if len(in) > 0 {
			inbound = append(inbound, in)
		}
		if len(out) > 0 {
			outbound = append(outbound, out)
		}
	}
	return
}

func fillSiblings(lanes []*resolvedLane) {
	for i, rl := range lanes {
		if rl.lane.Type != mapv2.LaneType_LANE_TYPE_DRIVING {
			continue
		}
		if i > 0 && lanes[i-1].dir == rl.dir && lanes[i-1].lane.Type == rl.lane.Type {
			rl.lane.LeftLaneIds = append(rl.lane.LeftLaneIds, lanes[i-1].lane.Id)
			lanes[i-1].lane.RightLaneIds = append(lanes[i-1].lane.RightLaneIds, rl.lane.Id)
		}
	}
}

// 以进出方向的有向夹角分类转向，逆时针为左
func classifyTurn(inNodes, outNodes []*geov2.XYPosition) mapv2.LaneTurn {
	n := len(inNodes)
	inDx := inNodes[n-1].X - inNodes[n-2].X
	inDy := inNodes[n-1].Y - inNodes[n-2].Y
	outDx := outNodes[1].X - outNodes[0].X
	outDy := outNodes[1].Y - outNodes[0].Y
	angle := math.Atan2(inDx*outDy-inDy*outDx, inDx*outDx+inDy*outDy)
	switch {
	case math.Abs(angle) <= TURN_STRAIGHT_ANGLE:
		return mapv2.LaneTurn_LANE_TURN_STRAIGHT
	case math.Abs(angle) >= TURN_AROUND_ANGLE:
		return mapv2.LaneTurn_LANE_TURN_AROUND
	case angle > 0:
		return mapv2.LaneTurn_LANE_TURN_LEFT
	default:
		return mapv2.LaneTurn_LANE_TURN_RIGHT
	}
}

// 折线整体横向偏移，正方向为行进方向左侧
// 顶点处取相邻线段法向的平均，足以应对编辑器产生的平缓折线
func offsetPolyline(line []geometry.Point, d float64) []geometry.Point {
	out := make([]geometry.Point, len(line))
	for i, p := range line {
		var nx, ny float64
		if i > 0 {
			sx, sy := normal(line[i-1], p)
			nx += sx
			ny += sy
		}
		if i+1 < len(line) {
			sx, sy := normal(p, line[i+1])
			nx += sx
			ny += sy
		}
		if l := math.Hypot(nx, ny); l > 0 {
			nx /= l
			ny /= l
		}
		out[i] = geometry.Point{X: p.X + nx*d, Y: p.Y + ny*d}
	}
	return out
}

// 线段ab行进方向的左法向（单位向量）
func normal(a, b geometry.Point) (float64, float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return 0, 0
	}
	return -dy / l, dx / l
}
