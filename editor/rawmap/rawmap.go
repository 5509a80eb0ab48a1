package rawmap

import (
	"fmt"
	"sort"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/samber/lo"

	"git.fiblab.net/sim/mapedit/editor/spatial"
)

// 可编辑的原始路网：交叉口与道路两张平面映射+增量维护的邻接表
// 实体之间只通过id互相引用，便于撤销重做后引用仍然有效
// 所有修改操作先做完整校验再落地，失败时模型保持不变
type Map struct {
	intersections map[int32]*Intersection
	roads         map[int32]*Road
	// 交叉口id -> 关联道路id集合
	adjacency map[int32]map[int32]struct{}

	nextIntersectionID int32
	nextRoadID         int32

	watchers []func(Change)
}

func New() *Map {
	return &Map{
		intersections:      make(map[int32]*Intersection),
		roads:              make(map[int32]*Road),
		adjacency:          make(map[int32]map[int32]struct{}),
		nextIntersectionID: INTERSECTION_ID_START,
		nextRoadID:         ROAD_ID_START,
	}
}

// 注册变更回调，回调在每次成功修改后同步触发
// 深拷贝不继承回调
func (m *Map) Subscribe(fn func(Change)) {
	m.watchers = append(m.watchers, fn)
}

func (m *Map) emit(c Change) {
	for _, fn := range m.watchers {
		fn(c)
	}
}

// getter

func (m *Map) Intersection(id int32) (*Intersection, bool) {
	ic, ok := m.intersections[id]
	return ic, ok
}

func (m *Map) Road(id int32) (*Road, bool) {
	r, ok := m.roads[id]
	return r, ok
}

func (m *Map) Intersections() map[int32]*Intersection {
	return m.intersections
}

func (m *Map) Roads() map[int32]*Road {
	return m.roads
}

func (m *Map) IntersectionCount() int {
	return len(m.intersections)
}

func (m *Map) RoadCount() int {
	return len(m.roads)
}

// 交叉口关联的道路id，升序
func (m *Map) IncidentRoads(id int32) []int32 {
	set, ok := m.adjacency[id]
	if !ok {
		return nil
	}
	ids := lo.Keys(set)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Map) Degree(id int32) int {
	return len(m.adjacency[id])
}

// 零度交叉口列表（允许暂存，待清理），升序
func (m *Map) DanglingIntersections() []int32 {
	var ids []int32
	for id := range m.intersections {
		if len(m.adjacency[id]) == 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// 完整中心线：起点交叉口 + 内部形状点 + 终点交叉口
func (m *Map) Centerline(r *Road) []geometry.Point {
	line := make([]geometry.Point, 0, len(r.Shape)+2)
	line = append(line, m.intersections[r.From].Position)
	line = append(line, r.Shape...)
	line = append(line, m.intersections[r.To].Position)
	return line
}

// 道路包围盒，按半幅宽度外扩
func (m *Map) RoadBounds(r *Road) spatial.Rect {
	return spatial.PolylineRect(m.Centerline(r)).Inflate(r.TotalWidth() / 2)
}

// 交叉口包围盒取固定半径，避免随关联道路增减而失效
// 拾取查询会按配置的节点半径与容差额外外扩
func (m *Map) IntersectionBounds(ic *Intersection) spatial.Rect {
	return spatial.PointRect(ic.Position).Inflate(DEFAULT_LANE_WIDTH / 2)
}

func (m *Map) Bounds(ref EntityRef) (spatial.Rect, bool) {
	switch ref.Kind {
	case KIND_INTERSECTION:
		if ic, ok := m.intersections[ref.ID]; ok {
			return m.IntersectionBounds(ic), true
		}
	case KIND_ROAD:
		if r, ok := m.roads[ref.ID]; ok {
			return m.RoadBounds(r), true
		}
	}
	return spatial.Rect{}, false
}

// mutator

func (m *Map) AddIntersection(pos geometry.Point, control ControlType) int32 {
	id := m.nextIntersectionID
	m.nextIntersectionID++
	ic := &Intersection{ID: id, Position: pos, Control: control}
	m.intersections[id] = ic
	m.adjacency[id] = make(map[int32]struct{})
	after := m.IntersectionBounds(ic)
	m.emit(Change{Kind: KIND_INTERSECTION, ID: id, After: &after})
	return id
}

func (m *Map) MoveIntersection(id int32, pos geometry.Point) error {
	ic, ok := m.intersections[id]
	if !ok {
		return fmt.Errorf("%w: intersection %d", ErrNotFound, id)
	}
	before := m.IntersectionBounds(ic)
	roadBefore := make(map[int32]spatial.Rect, len(m.adjacency[id]))
	for rid := range m.adjacency[id] {
		roadBefore[rid] = m.RoadBounds(m.roads[rid])
	}
	// 试移动后校验全部关联道路的几何，失败则回退
	prev := ic.Position
	ic.Position = pos
	for rid := range m.adjacency[id] {
		if err := m.checkGeometry(m.roads[rid]); err != nil {
			ic.Position = prev
			return fmt.Errorf("road %d: %w", rid, err)
		}
	}
	after := m.IntersectionBounds(ic)
	m.emit(Change{Kind: KIND_INTERSECTION, ID: id, Before: &before, After: &after})
	// 关联道路几何随端点移动而变化
	for _, rid := range m.IncidentRoads(id) {
		rb, ra := roadBefore[rid], m.RoadBounds(m.roads[rid])
		m.emit(Change{Kind: KIND_ROAD, ID: rid, Before: &rb, After: &ra})
	}
	return nil
}

func (m *Map) DeleteIntersection(id int32) error {
	ic, ok := m.intersections[id]
	if !ok {
		return fmt.Errorf("%w: intersection %d", ErrNotFound, id)
	}
	if len(m.adjacency[id]) > 0 {
		return fmt.Errorf("%w: intersection %d has %d incident roads",
			ErrEntityInUse, id, len(m.adjacency[id]))
	}
	before := m.IntersectionBounds(ic)
	delete(m.intersections, id)
	delete(m.adjacency, id)
	m.emit(Change{Kind: KIND_INTERSECTION, ID: id, Before: &before})
	return nil
}

func (m *Map) AddRoad(from, to int32, shape []geometry.Point, lanes []LaneSpec, tags map[string]string) (int32, error) {
	r := &Road{
		From:  from,
		To:    to,
		Shape: append([]geometry.Point(nil), shape...),
		Lanes: append([]LaneSpec(nil), lanes...),
		Tags:  tags,
	}
	if err := m.checkRoad(r); err != nil {
		return 0, err
	}
	r.ID = m.nextRoadID
	m.nextRoadID++
	m.attachRoad(r)
	after := m.RoadBounds(r)
	m.emit(Change{Kind: KIND_ROAD, ID: r.ID, After: &after})
	return r.ID, nil
}

func (m *Map) DeleteRoad(id int32) error {
	r, ok := m.roads[id]
	if !ok {
		return fmt.Errorf("%w: road %d", ErrNotFound, id)
	}
	before := m.RoadBounds(r)
	m.detachRoad(r)
	m.emit(Change{Kind: KIND_ROAD, ID: id, Before: &before})
	return nil
}

func (m *Map) ReshapeRoad(id int32, shape []geometry.Point) error {
	r, ok := m.roads[id]
	if !ok {
		return fmt.Errorf("%w: road %d", ErrNotFound, id)
	}
	trial := r.Clone()
	trial.Shape = append([]geometry.Point(nil), shape...)
	if err := m.checkGeometry(trial); err != nil {
		return err
	}
	before := m.RoadBounds(r)
	r.Shape = trial.Shape
	after := m.RoadBounds(r)
	m.emit(Change{Kind: KIND_ROAD, ID: id, Before: &before, After: &after})
	return nil
}

// 将b的全部关联道路改接到a上并删除b
// 任何连接a与b的道路会变成自环，拒绝整个操作
func (m *Map) MergeIntersections(a, b int32) error {
	if _, ok := m.intersections[a]; !ok {
		return fmt.Errorf("%w: intersection %d", ErrNotFound, a)
	}
	icB, ok := m.intersections[b]
	if !ok {
		return fmt.Errorf("%w: intersection %d", ErrNotFound, b)
	}
	if a == b {
		return fmt.Errorf("%w: merge %d into itself", ErrWouldCreateSelfLoop, a)
	}
	for rid := range m.adjacency[b] {
		r := m.roads[rid]
		if r.From == a || r.To == a {
			return fmt.Errorf("%w: road %d connects %d and %d",
				ErrWouldCreateSelfLoop, rid, a, b)
		}
	}
	// 改接后的几何整体预检，任何一条不合法则全部不动
	for rid := range m.adjacency[b] {
		trial := m.roads[rid].Clone()
		if trial.From == b {
			trial.From = a
		}
		if trial.To == b {
			trial.To = a
		}
		if err := m.checkGeometry(trial); err != nil {
			return fmt.Errorf("road %d: %w", rid, err)
		}
	}
	bBefore := m.IntersectionBounds(icB)
	for _, rid := range m.IncidentRoads(b) {
		r := m.roads[rid]
		before := m.RoadBounds(r)
		if r.From == b {
			r.From = a
		}
		if r.To == b {
			r.To = a
		}
		m.adjacency[a][rid] = struct{}{}
		delete(m.adjacency[b], rid)
		after := m.RoadBounds(r)
		m.emit(Change{Kind: KIND_ROAD, ID: rid, Before: &before, After: &after})
	}
	delete(m.intersections, b)
	delete(m.adjacency, b)
	m.emit(Change{Kind: KIND_INTERSECTION, ID: b, Before: &bBefore})
	return nil
}

// 以原id恢复完整交叉口记录，服务于撤销与持久化加载
// 计数器前移越过该id，保证后续分配不冲突
func (m *Map) PutIntersection(ic *Intersection) error {
	if ic.ID < INTERSECTION_ID_START {
		return fmt.Errorf("%w: intersection %d", ErrIDOutOfRange, ic.ID)
	}
	if _, ok := m.intersections[ic.ID]; ok {
		return fmt.Errorf("%w: intersection %d exists", ErrIDOutOfRange, ic.ID)
	}
	c := ic.Clone()
	m.intersections[c.ID] = c
	if _, ok := m.adjacency[c.ID]; !ok {
		m.adjacency[c.ID] = make(map[int32]struct{})
	}
	if c.ID >= m.nextIntersectionID {
		m.nextIntersectionID = c.ID + 1
	}
	after := m.IntersectionBounds(c)
	m.emit(Change{Kind: KIND_INTERSECTION, ID: c.ID, After: &after})
	return nil
}

// 以原id恢复完整道路记录，见PutIntersection
func (m *Map) PutRoad(r *Road) error {
	if r.ID < ROAD_ID_START || r.ID >= INTERSECTION_ID_START {
		return fmt.Errorf("%w: road %d", ErrIDOutOfRange, r.ID)
	}
	if _, ok := m.roads[r.ID]; ok {
		return fmt.Errorf("%w: road %d exists", ErrIDOutOfRange, r.ID)
	}
	c := r.Clone()
	if err := m.checkRoad(c); err != nil {
		return err
	}
	m.attachRoad(c)
	if c.ID >= m.nextRoadID {
		m.nextRoadID = c.ID + 1
	}
	after := m.RoadBounds(c)
	m.emit(Change{Kind: KIND_ROAD, ID: c.ID, After: &after})
	return nil
}

// 下一次分配将使用的交叉口id与道路id
func (m *Map) IDCounters() (nextIntersection, nextRoad int32) {
	return m.nextIntersectionID, m.nextRoadID
}

// 恢复持久化的id计数器，只允许前移
// 已删除实体的id在重新加载后同样不会被复用
func (m *Map) RestoreIDCounters(nextIntersection, nextRoad int32) {
	if nextIntersection > m.nextIntersectionID {
		m.nextIntersectionID = nextIntersection
	}
	if nextRoad > m.nextRoadID {
		m.nextRoadID = nextRoad
	}
}

// 深拷贝快照，回调注册不随快照带走
func (m *Map) Clone() *Map {
	c := New()
	c.nextIntersectionID = m.nextIntersectionID
	c.nextRoadID = m.nextRoadID
	for id, ic := range m.intersections {
		c.intersections[id] = ic.Clone()
		c.adjacency[id] = make(map[int32]struct{}, len(m.adjacency[id]))
		for rid := range m.adjacency[id] {
			c.adjacency[id][rid] = struct{}{}
		}
	}
	for id, r := range m.roads {
		c.roads[id] = r.Clone()
	}
	return c
}

func (m *Map) attachRoad(r *Road) {
	m.roads[r.ID] = r
	m.adjacency[r.From][r.ID] = struct{}{}
	m.adjacency[r.To][r.ID] = struct{}{}
}

func (m *Map) detachRoad(r *Road) {
	delete(m.roads, r.ID)
	delete(m.adjacency[r.From], r.ID)
	delete(m.adjacency[r.To], r.ID)
}

func (m *Map) checkRoad(r *Road) error {
	if _, ok := m.intersections[r.From]; !ok {
		return fmt.Errorf("%w: from intersection %d", ErrInvalidEndpoint, r.From)
	}
	if _, ok := m.intersections[r.To]; !ok {
		return fmt.Errorf("%w: to intersection %d", ErrInvalidEndpoint, r.To)
	}
	return m.checkGeometry(r)
}

func (m *Map) checkGeometry(r *Road) error {
	if r.From == r.To {
		return fmt.Errorf("%w: road endpoints coincide at intersection %d",
			ErrDegenerateGeometry, r.From)
	}
	line := m.Centerline(r)
	lengths := geometry.GetPolylineLengths2D(line)
	if lengths[len(lengths)-1] < MIN_ROAD_LENGTH {
		return fmt.Errorf("%w: road length %.3f below %v",
			ErrDegenerateGeometry, lengths[len(lengths)-1], MIN_ROAD_LENGTH)
	}
	if geometry.Distance(line[0], line[len(line)-1]) < MIN_ROAD_LENGTH {
		return fmt.Errorf("%w: road self-intersects at its endpoints", ErrDegenerateGeometry)
	}
	return nil
}
