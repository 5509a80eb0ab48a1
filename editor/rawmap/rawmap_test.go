package rawmap_test

import (
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"

	"git.fiblab.net/sim/mapedit/editor/rawmap"
)

func lanes() []rawmap.LaneSpec {
	return []rawmap.LaneSpec{
		{Dir: rawmap.FORWARD, Type: mapv2.LaneType_LANE_TYPE_DRIVING, Width: 3.0},
		{Dir: rawmap.BACKWARD, Type: mapv2.LaneType_LANE_TYPE_DRIVING, Width: 3.0},
	}
}

func TestAddIntersectionAndRoad(t *testing.T) {
	m := rawmap.New()
	a := m.AddIntersection(geometry.Point{X: 0, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	b := m.AddIntersection(geometry.Point{X: 100, Y: 0}, rawmap.CONTROL_TYPE_SIGNALIZED)

	// id单调分配且不同命名空间
	assert.Equal(t, int32(rawmap.INTERSECTION_ID_START), a)
	assert.Equal(t, int32(rawmap.INTERSECTION_ID_START+1), b)

	rid, err := m.AddRoad(a, b, nil, lanes(), nil)
	assert.NoError(t, err)
	assert.Equal(t, int32(rawmap.ROAD_ID_START), rid)

	assert.Equal(t, 2, m.IntersectionCount())
	assert.Equal(t, 1, m.RoadCount())
	assert.Equal(t, 1, m.Degree(a))
	assert.Equal(t, []int32{rid}, m.IncidentRoads(a))
	assert.Empty(t, m.DanglingIntersections())

	c := m.AddIntersection(geometry.Point{X: 50, Y: 50}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	assert.Equal(t, []int32{c}, m.DanglingIntersections())
}

func TestAddRoadValidation(t *testing.T) {
	m := rawmap.New()
	a := m.AddIntersection(geometry.Point{X: 0, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	b := m.AddIntersection(geometry.Point{X: 100, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)

	// 不存在的端点
	_, err := m.AddRoad(a, 999, nil, lanes(), nil)
	assert.ErrorIs(t, err, rawmap.ErrInvalidEndpoint)
	// 端点重合视为退化几何，自环错误只由合并产生
	_, err = m.AddRoad(a, a, nil, lanes(), nil)
	assert.ErrorIs(t, err, rawmap.ErrDegenerateGeometry)
	// 失败不改变模型
	assert.Equal(t, 0, m.RoadCount())

	_, err = m.AddRoad(a, b, nil, lanes(), nil)
	assert.NoError(t, err)
}

func TestDegenerateGeometry(t *testing.T) {
	m := rawmap.New()
	a := m.AddIntersection(geometry.Point{X: 0, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	b := m.AddIntersection(geometry.Point{X: 0.01, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	// 道路总长低于下限
	_, err := m.AddRoad(a, b, nil, lanes(), nil)
	assert.ErrorIs(t, err, rawmap.ErrDegenerateGeometry)
}

func TestDeleteIntersectionInUse(t *testing.T) {
	m := rawmap.New()
	a := m.AddIntersection(geometry.Point{X: 0, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	b := m.AddIntersection(geometry.Point{X: 100, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	rid, err := m.AddRoad(a, b, nil, lanes(), nil)
	assert.NoError(t, err)

	// 有关联道路的交叉口拒绝删除
	assert.ErrorIs(t, m.DeleteIntersection(a), rawmap.ErrEntityInUse)
	assert.Equal(t, 2, m.IntersectionCount())

	assert.NoError(t, m.DeleteRoad(rid))
	assert.NoError(t, m.DeleteIntersection(a))
	assert.Equal(t, 1, m.IntersectionCount())

	assert.ErrorIs(t, m.DeleteIntersection(a), rawmap.ErrNotFound)
	assert.ErrorIs(t, m.DeleteRoad(rid), rawmap.ErrNotFound)
}

func TestMoveIntersection(t *testing.T) {
	m := rawmap.New()
	a := m.AddIntersection(geometry.Point{X: 0, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	b := m.AddIntersection(geometry.Point{X: 100, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	_, err := m.AddRoad(a, b, nil, lanes(), nil)
	assert.NoError(t, err)

	assert.NoError(t, m.MoveIntersection(a, geometry.Point{X: 10, Y: 10}))
	ic, _ := m.Intersection(a)
	assert.Equal(t, geometry.Point{X: 10, Y: 10}, ic.Position)

	// 移动导致道路退化时拒绝并保持原位
	assert.ErrorIs(t, m.MoveIntersection(a, geometry.Point{X: 100, Y: 0.01}), rawmap.ErrDegenerateGeometry)
	ic, _ = m.Intersection(a)
	assert.Equal(t, geometry.Point{X: 10, Y: 10}, ic.Position)

	assert.ErrorIs(t, m.MoveIntersection(999, geometry.Point{}), rawmap.ErrNotFound)
}

func TestReshapeRoad(t *testing.T) {
	m := rawmap.New()
	a := m.AddIntersection(geometry.Point{X: 0, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	b := m.AddIntersection(geometry.Point{X: 100, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	rid, err := m.AddRoad(a, b, nil, lanes(), nil)
	assert.NoError(t, err)

	shape := []geometry.Point{{X: 50, Y: 20}}
	assert.NoError(t, m.ReshapeRoad(rid, shape))
	r, _ := m.Road(rid)
	assert.Equal(t, shape, r.Shape)

	// 中心线包含端点与形状点
	line := m.Centerline(r)
	assert.Equal(t, []geometry.Point{{X: 0, Y: 0}, {X: 50, Y: 20}, {X: 100, Y: 0}}, line)
}

func TestMergeIntersections(t *testing.T) {
	m := rawmap.New()
	a := m.AddIntersection(geometry.Point{X: 0, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	b := m.AddIntersection(geometry.Point{X: 100, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	c := m.AddIntersection(geometry.Point{X: 200, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	rbc, err := m.AddRoad(b, c, nil, lanes(), nil)
	assert.NoError(t, err)

	// b并入a：bc改接为ac
	assert.NoError(t, m.MergeIntersections(a, b))
	_, ok := m.Intersection(b)
	assert.False(t, ok)
	r, _ := m.Road(rbc)
	assert.Equal(t, a, r.From)
	assert.Equal(t, c, r.To)
	assert.Equal(t, []int32{rbc}, m.IncidentRoads(a))

	// 合并会产生自环时整体拒绝
	d := m.AddIntersection(geometry.Point{X: 300, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	_, err = m.AddRoad(c, d, nil, lanes(), nil)
	assert.NoError(t, err)
	assert.ErrorIs(t, m.MergeIntersections(c, d), rawmap.ErrWouldCreateSelfLoop)
	_, ok = m.Intersection(d)
	assert.True(t, ok)
}

func TestPutRestoresOriginalID(t *testing.T) {
	m := rawmap.New()
	a := m.AddIntersection(geometry.Point{X: 0, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	b := m.AddIntersection(geometry.Point{X: 100, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	rid, err := m.AddRoad(a, b, nil, lanes(), nil)
	assert.NoError(t, err)

	r, _ := m.Road(rid)
	saved := r.Clone()
	assert.NoError(t, m.DeleteRoad(rid))
	assert.NoError(t, m.PutRoad(saved))
	got, ok := m.Road(rid)
	assert.True(t, ok)
	assert.Equal(t, saved, got)

	// Put之后新分配的id不会与恢复的id冲突
	c := m.AddIntersection(geometry.Point{X: 200, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	rid2, err := m.AddRoad(b, c, nil, lanes(), nil)
	assert.NoError(t, err)
	assert.Greater(t, rid2, rid)
}

func TestClone(t *testing.T) {
	m := rawmap.New()
	a := m.AddIntersection(geometry.Point{X: 0, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	b := m.AddIntersection(geometry.Point{X: 100, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	rid, err := m.AddRoad(a, b, []geometry.Point{{X: 50, Y: 10}}, lanes(), map[string]string{"name": "main"})
	assert.NoError(t, err)

	clone := m.Clone()
	// 修改原模型不影响克隆
	assert.NoError(t, m.MoveIntersection(a, geometry.Point{X: 5, Y: 5}))
	assert.NoError(t, m.DeleteRoad(rid))
	ic, _ := clone.Intersection(a)
	assert.Equal(t, geometry.Point{X: 0, Y: 0}, ic.Position)
	r, ok := clone.Road(rid)
	assert.True(t, ok)
	assert.Equal(t, "main", r.Tags["name"])
}

func TestChangeNotification(t *testing.T) {
	m := rawmap.New()
	var changes []rawmap.Change
	m.Subscribe(func(c rawmap.Change) { changes = append(changes, c) })

	a := m.AddIntersection(geometry.Point{X: 0, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	assert.Len(t, changes, 1)
	assert.Equal(t, rawmap.KIND_INTERSECTION, changes[0].Kind)
	assert.Nil(t, changes[0].Before)
	assert.NotNil(t, changes[0].After)

	b := m.AddIntersection(geometry.Point{X: 100, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	_, err := m.AddRoad(a, b, nil, lanes(), nil)
	assert.NoError(t, err)
	changes = changes[:0]

	// 移动端点时关联道路的包围盒一起更新
	assert.NoError(t, m.MoveIntersection(a, geometry.Point{X: 10, Y: 0}))
	assert.Len(t, changes, 2)
	kinds := []rawmap.EntityKind{changes[0].Kind, changes[1].Kind}
	assert.Contains(t, kinds, rawmap.KIND_INTERSECTION)
	assert.Contains(t, kinds, rawmap.KIND_ROAD)
	for _, c := range changes {
		assert.NotNil(t, c.Before)
		assert.NotNil(t, c.After)
	}

	// 校验失败不发通知
	changes = changes[:0]
	assert.Error(t, m.MoveIntersection(a, geometry.Point{X: 100, Y: 0}))
	assert.Empty(t, changes)
}

func TestRoadBounds(t *testing.T) {
	m := rawmap.New()
	a := m.AddIntersection(geometry.Point{X: 0, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	b := m.AddIntersection(geometry.Point{X: 100, Y: 0}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	rid, err := m.AddRoad(a, b, nil, lanes(), nil)
	assert.NoError(t, err)

	r, _ := m.Road(rid)
	// 包围盒按半幅路宽外扩
	assert.InDelta(t, 6.0, r.TotalWidth(), 1e-9)
	bounds := m.RoadBounds(r)
	assert.InDelta(t, -3.0, bounds.MinY, 1e-9)
	assert.InDelta(t, 3.0, bounds.MaxY, 1e-9)
	assert.InDelta(t, -3.0, bounds.MinX, 1e-9)
	assert.InDelta(t, 103.0, bounds.MaxX, 1e-9)
}
