package main

import (
	"fmt"
	"os"
	"strconv"

	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/goccy/go-yaml"
	"github.com/samber/lo"

	"git.fiblab.net/sim/mapedit/editor"
	"git.fiblab.net/sim/mapedit/editor/rawmap"
)

// 批量编辑脚本：yaml步骤序列，支持符号名引用脚本内创建的实体
type script struct {
	Steps []scriptStep `yaml:"steps"`
}

type scriptStep struct {
	Op      string            `yaml:"op"`
	Name    string            `yaml:"name"`
	At      *scriptPoint      `yaml:"at"`
	Shape   []scriptPoint     `yaml:"shape"`
	From    string            `yaml:"from"`
	To      string            `yaml:"to"`
	Into    string            `yaml:"into"`
	Lanes   []scriptLane      `yaml:"lanes"`
	Tags    map[string]string `yaml:"tags"`
	Control string            `yaml:"control"`
}

type scriptPoint struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type scriptLane struct {
	Dir   string  `yaml:"dir"`
	Type  string  `yaml:"type"`
	Width float64 `yaml:"width"`
}

var (
	CONTROL_TYPES = map[string]rawmap.ControlType{
		"":             rawmap.CONTROL_TYPE_UNSIGNALIZED,
		"unsignalized": rawmap.CONTROL_TYPE_UNSIGNALIZED,
		"signalized":   rawmap.CONTROL_TYPE_SIGNALIZED,
		"border":       rawmap.CONTROL_TYPE_BORDER,
	}
	LANE_DIRS = map[string]int32{
		"":         rawmap.FORWARD,
		"forward":  rawmap.FORWARD,
		"backward": rawmap.BACKWARD,
	}
	LANE_TYPES = map[string]mapv2.LaneType{
		"":        mapv2.LaneType_LANE_TYPE_DRIVING,
		"driving": mapv2.LaneType_LANE_TYPE_DRIVING,
		"walking": mapv2.LaneType_LANE_TYPE_WALKING,
	}
)

// 脚本执行器，维护符号名到已分配id的映射
type scriptRunner struct {
	e             *editor.Editor
	intersections map[string]int32
	roads         map[string]int32
}

func runScript(e *editor.Editor, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", file, err)
	}
	var s script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse script %s: %w", file, err)
	}
	r := &scriptRunner{
		e:             e,
		intersections: map[string]int32{},
		roads:         map[string]int32{},
	}
	for i, step := range s.Steps {
		if err := r.runStep(&step); err != nil {
			return fmt.Errorf("script step %d (%s): %w", i+1, step.Op, err)
		}
	}
	log.Infof("script %s finished: %d steps", file, len(s.Steps))
	return nil
}

func (r *scriptRunner) runStep(step *scriptStep) error {
	switch step.Op {
	case "add_intersection":
		control, ok := CONTROL_TYPES[step.Control]
		if !ok {
			return fmt.Errorf("unknown control type: %s", step.Control)
		}
		if step.At == nil {
			return fmt.Errorf("add_intersection requires at")
		}
		c := &editor.AddIntersection{
			Position: geometry.Point{X: step.At.X, Y: step.At.Y},
			Control:  control,
		}
		if err := r.e.Apply(c); err != nil {
			return err
		}
		if step.Name != "" {
			r.intersections[step.Name] = c.ID()
		}
	case "add_road":
		from, err := r.resolveIntersection(step.From)
		if err != nil {
			return err
		}
		to, err := r.resolveIntersection(step.To)
		if err != nil {
			return err
		}
		for i, l := range step.Lanes {
			if _, ok := LANE_DIRS[l.Dir]; !ok {
				return fmt.Errorf("lane %d: unknown dir %s", i, l.Dir)
			}
			if _, ok := LANE_TYPES[l.Type]; !ok {
				return fmt.Errorf("lane %d: unknown type %s", i, l.Type)
			}
		}
		lanes := lo.Map(step.Lanes, func(l scriptLane, _ int) rawmap.LaneSpec {
			width := l.Width
			if width == 0 {
				width = rawmap.DEFAULT_LANE_WIDTH
			}
			return rawmap.LaneSpec{Dir: LANE_DIRS[l.Dir], Type: LANE_TYPES[l.Type], Width: width}
		})
		if len(lanes) == 0 {
			lanes = []rawmap.LaneSpec{{
				Dir: rawmap.FORWARD, Type: mapv2.LaneType_LANE_TYPE_DRIVING, Width: rawmap.DEFAULT_LANE_WIDTH,
			}}
		}
		c := &editor.AddRoad{
			From: from, To: to,
			Shape: lo.Map(step.Shape, func(p scriptPoint, _ int) geometry.Point {
				return geometry.Point{X: p.X, Y: p.Y}
			}),
			Lanes: lanes,
			Tags:  step.Tags,
		}
		if err := r.e.Apply(c); err != nil {
			return err
		}
		if step.Name != "" {
			r.roads[step.Name] = c.ID()
		}
	case "move_intersection":
		id, err := r.resolveIntersection(step.Name)
		if err != nil {
			return err
		}
		if step.At == nil {
			return fmt.Errorf("move_intersection requires at")
		}
		return r.e.Apply(&editor.MoveIntersection{ID: id, To: geometry.Point{X: step.At.X, Y: step.At.Y}})
	case "delete_intersection":
		id, err := r.resolveIntersection(step.Name)
		if err != nil {
			return err
		}
		return r.e.Apply(&editor.DeleteIntersection{ID: id})
	case "delete_road":
		id, err := r.resolveRoad(step.Name)
		if err != nil {
			return err
		}
		return r.e.Apply(&editor.DeleteRoad{ID: id})
	case "reshape_road":
		id, err := r.resolveRoad(step.Name)
		if err != nil {
			return err
		}
		return r.e.Apply(&editor.ReshapeRoad{ID: id, Shape: lo.Map(step.Shape, func(p scriptPoint, _ int) geometry.Point {
			return geometry.Point{X: p.X, Y: p.Y}
		})})
	case "merge_intersections":
		a, err := r.resolveIntersection(step.Into)
		if err != nil {
			return err
		}
		b, err := r.resolveIntersection(step.From)
		if err != nil {
			return err
		}
		return r.e.Apply(&editor.MergeIntersections{A: a, B: b})
	case "undo":
		c, err := r.e.Undo()
		if err != nil {
			return err
		}
		log.Debugf("undid %s", c.Label())
	case "redo":
		c, err := r.e.Redo()
		if err != nil {
			return err
		}
		log.Debugf("redid %s", c.Label())
	case "pick":
		if step.At == nil {
			return fmt.Errorf("pick requires at")
		}
		if ref, ok := r.e.PickAt(geometry.Point{X: step.At.X, Y: step.At.Y}); ok {
			log.Infof("pick at (%v, %v): kind=%d id=%d", step.At.X, step.At.Y, ref.Kind, ref.ID)
		} else {
			log.Infof("pick at (%v, %v): nothing", step.At.X, step.At.Y)
		}
	default:
		return fmt.Errorf("unknown op: %s", step.Op)
	}
	return nil
}

// 符号名优先查表，否则按数字id解析
func (r *scriptRunner) resolveIntersection(name string) (int32, error) {
	if id, ok := r.intersections[name]; ok {
		return id, nil
	}
	return parseID(name)
}

func (r *scriptRunner) resolveRoad(name string) (int32, error) {
	if id, ok := r.roads[name]; ok {
		return id, nil
	}
	return parseID(name)
}

func parseID(name string) (int32, error) {
	id, err := strconv.ParseInt(name, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown entity name: %s", name)
	}
	return int32(id), nil
}
