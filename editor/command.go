package editor

import (
	"fmt"

	"git.fiblab.net/general/common/v2/geometry"

	"git.fiblab.net/sim/mapedit/editor/rawmap"
)

// 可逆的原子编辑命令
// Apply失败时模型保持不变；Invert只在Apply成功之后有效，
// 逆命令所需的前置状态在Apply过程中捕获
type Command interface {
	Label() string
	Apply(m *rawmap.Map) error
	Invert() Command
}

// 新建交叉口
// 首次Apply分配id，重做时以原id恢复，保证id会话内稳定
type AddIntersection struct {
	Position geometry.Point
	Control  rawmap.ControlType

	id int32
}

func (c *AddIntersection) Label() string { return "add_intersection" }

func (c *AddIntersection) Apply(m *rawmap.Map) error {
	if c.id == 0 {
		c.id = m.AddIntersection(c.Position, c.Control)
		return nil
	}
	return m.PutIntersection(&rawmap.Intersection{
		ID: c.id, Position: c.Position, Control: c.Control,
	})
}

func (c *AddIntersection) Invert() Command {
	return &DeleteIntersection{ID: c.id}
}

// 命令创建的交叉口id，Apply成功后有效
func (c *AddIntersection) ID() int32 { return c.id }

type MoveIntersection struct {
	ID int32
	To geometry.Point

	from geometry.Point
}

func (c *MoveIntersection) Label() string { return "move_intersection" }

func (c *MoveIntersection) Apply(m *rawmap.Map) error {
	ic, ok := m.Intersection(c.ID)
	if !ok {
		return fmt.Errorf("%w: intersection %d", rawmap.ErrNotFound, c.ID)
	}
	c.from = ic.Position
	return m.MoveIntersection(c.ID, c.To)
}

func (c *MoveIntersection) Invert() Command {
	return &MoveIntersection{ID: c.ID, To: c.from}
}

type DeleteIntersection struct {
	ID int32

	saved *rawmap.Intersection
}

func (c *DeleteIntersection) Label() string { return "delete_intersection" }

func (c *DeleteIntersection) Apply(m *rawmap.Map) error {
	ic, ok := m.Intersection(c.ID)
	if !ok {
		return fmt.Errorf("%w: intersection %d", rawmap.ErrNotFound, c.ID)
	}
	c.saved = ic.Clone()
	return m.DeleteIntersection(c.ID)
}

func (c *DeleteIntersection) Invert() Command {
	return &AddIntersection{
		Position: c.saved.Position,
		Control:  c.saved.Control,
		id:       c.saved.ID,
	}
}

// 新建道路，id处理与AddIntersection相同
type AddRoad struct {
	From  int32
	To    int32
	Shape []geometry.Point
	Lanes []rawmap.LaneSpec
	Tags  map[string]string

	id int32
}

func (c *AddRoad) Label() string { return "add_road" }

func (c *AddRoad) Apply(m *rawmap.Map) error {
	if c.id == 0 {
		id, err := m.AddRoad(c.From, c.To, c.Shape, c.Lanes, c.Tags)
		if err != nil {
			return err
		}
		c.id = id
		return nil
	}
	return m.PutRoad(&rawmap.Road{
		ID: c.id, From: c.From, To: c.To,
		Shape: c.Shape, Lanes: c.Lanes, Tags: c.Tags,
	})
}

func (c *AddRoad) Invert() Command {
	return &DeleteRoad{ID: c.id}
}

func (c *AddRoad) ID() int32 { return c.id }

type DeleteRoad struct {
	ID int32

	saved *rawmap.Road
}

func (c *DeleteRoad) Label() string { return "delete_road" }

func (c *DeleteRoad) Apply(m *rawmap.Map) error {
	r, ok := m.Road(c.ID)
	if !ok {
		return fmt.Errorf("%w: road %d", rawmap.ErrNotFound, c.ID)
	}
	c.saved = r.Clone()
	return m.DeleteRoad(c.ID)
}

func (c *DeleteRoad) Invert() Command {
	return &AddRoad{
		From: c.saved.From, To: c.saved.To,
		Shape: c.saved.Shape, Lanes: c.saved.Lanes, Tags: c.saved.Tags,
		id: c.saved.ID,
	}
}

type ReshapeRoad struct {
	ID    int32
	Shape []geometry.Point

	prev []geometry.Point
}

func (c *ReshapeRoad) Label() string { return "reshape_road" }

func (c *ReshapeRoad) Apply(m *rawmap.Map) error {
	r, ok := m.Road(c.ID)
	if !ok {
		return fmt.Errorf("%w: road %d", rawmap.ErrNotFound, c.ID)
	}
	c.prev = append([]geometry.Point(nil), r.Shape...)
	return m.ReshapeRoad(c.ID, c.Shape)
}

func (c *ReshapeRoad) Invert() Command {
	return &ReshapeRoad{ID: c.ID, Shape: c.prev}
}

// 合并交叉口：B的全部关联道路改接到A，B被删除
type MergeIntersections struct {
	A int32
	B int32

	savedB  *rawmap.Intersection
	rewired []*rawmap.Road
}

func (c *MergeIntersections) Label() string { return "merge_intersections" }

func (c *MergeIntersections) Apply(m *rawmap.Map) error {
	icB, ok := m.Intersection(c.B)
	if !ok {
		return fmt.Errorf("%w: intersection %d", rawmap.ErrNotFound, c.B)
	}
	saved := icB.Clone()
	var rewired []*rawmap.Road
	for _, rid := range m.IncidentRoads(c.B) {
		r, _ := m.Road(rid)
		rewired = append(rewired, r.Clone())
	}
	if err := m.MergeIntersections(c.A, c.B); err != nil {
		return err
	}
	c.savedB = saved
	c.rewired = rewired
	return nil
}

func (c *MergeIntersections) Invert() Command {
	return &unmergeIntersections{merged: c}
}

// MergeIntersections的逆：恢复B并把改接过的道路接回原端点
type unmergeIntersections struct {
	merged *MergeIntersections
}

func (c *unmergeIntersections) Label() string { return "unmerge_intersections" }

func (c *unmergeIntersections) Apply(m *rawmap.Map) error {
	if err := m.PutIntersection(c.merged.savedB); err != nil {
		return err
	}
	for _, road := range c.merged.rewired {
		if err := m.DeleteRoad(road.ID); err != nil {
			return err
		}
		if err := m.PutRoad(road); err != nil {
			return err
		}
	}
	return nil
}

func (c *unmergeIntersections) Invert() Command {
	return &MergeIntersections{A: c.merged.A, B: c.merged.B}
}
