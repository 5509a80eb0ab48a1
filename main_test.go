package main

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/stretchr/testify/assert"

	"git.fiblab.net/sim/mapedit/editor"
	"git.fiblab.net/sim/mapedit/editor/derive"
	"git.fiblab.net/sim/mapedit/editor/rawmap"
)

const scriptYAML = `steps:
  - op: add_intersection
    name: a
    at: {x: 0, y: 0}
    control: signalized
  - op: add_intersection
    name: b
    at: {x: 100, y: 0}
  - op: add_intersection
    name: c
    at: {x: 100, y: 100}
  - op: add_road
    name: ab
    from: a
    to: b
    lanes:
      - {dir: forward, type: driving, width: 3.5}
      - {dir: backward, type: driving, width: 3.5}
    tags: {name: main st}
  - op: add_road
    name: bc
    from: b
    to: c
  - op: reshape_road
    name: ab
    shape:
      - {x: 50, y: 10}
  - op: move_intersection
    name: c
    at: {x: 120, y: 100}
  - op: delete_road
    name: bc
  - op: undo
  - op: undo
  - op: redo
  - op: pick
    at: {x: 50, y: 10}
`

func scriptEditor(t *testing.T) *editor.Editor {
	e := editor.New(nil, rawmap.New(), derive.NewLaneResolver())
	t.Cleanup(e.Close)
	return e
}

func writeScript(t *testing.T, text string) string {
	file := filepath.Join(t.TempDir(), "edit.yaml")
	assert.NoError(t, os.WriteFile(file, []byte(text), 0o644))
	return file
}

func TestRunScript(t *testing.T) {
	e := scriptEditor(t)
	assert.NoError(t, runScript(e, writeScript(t, scriptYAML)))

	m := e.Raw()
	assert.Equal(t, 3, m.IntersectionCount())
	// bc被删除后撤销两步（删除与移动），再重做移动
	assert.Equal(t, 2, m.RoadCount())

	var named *rawmap.Road
	for _, r := range m.Roads() {
		if r.Tags["name"] == "main st" {
			named = r
		}
	}
	assert.NotNil(t, named)
	assert.Equal(t, []geometry.Point{{X: 50, Y: 10}}, named.Shape)
	assert.Len(t, named.Lanes, 2)
	assert.InDelta(t, 7.0, named.TotalWidth(), 1e-9)

	// 被移动过的交叉口停在重做后的位置
	moved := false
	for _, ic := range m.Intersections() {
		if ic.Position.X == 120 && ic.Position.Y == 100 {
			moved = true
		}
	}
	assert.True(t, moved)

	_, err := e.SyncDerived()
	assert.NoError(t, err)
}

func TestRunScriptUnknownOp(t *testing.T) {
	e := scriptEditor(t)
	err := runScript(e, writeScript(t, "steps:\n  - op: explode\n"))
	assert.ErrorContains(t, err, "unknown op")
}

func TestRunScriptUnknownName(t *testing.T) {
	e := scriptEditor(t)
	err := runScript(e, writeScript(t, `steps:
  - op: add_intersection
    name: a
    at: {x: 0, y: 0}
  - op: delete_intersection
    name: zzz
`))
	assert.ErrorContains(t, err, "unknown entity name")
}

func TestRunScriptRejectedEdit(t *testing.T) {
	e := scriptEditor(t)
	err := runScript(e, writeScript(t, `steps:
  - op: add_intersection
    name: a
    at: {x: 0, y: 0}
  - op: add_road
    from: a
    to: a
`))
	assert.ErrorIs(t, err, rawmap.ErrDegenerateGeometry)
}

func TestRunScriptNumericIDs(t *testing.T) {
	e := scriptEditor(t)
	a := addScriptIntersection(t, e, 0, 0)
	b := addScriptIntersection(t, e, 100, 0)

	// 脚本可以直接引用既有实体的数字id
	err := runScript(e, writeScript(t, `steps:
  - op: add_road
    from: "`+itoa(a)+`"
    to: "`+itoa(b)+`"
`))
	assert.NoError(t, err)
	assert.Equal(t, 1, e.Raw().RoadCount())
}

func addScriptIntersection(t *testing.T, e *editor.Editor, x, y float64) int32 {
	c := &editor.AddIntersection{Position: geometry.Point{X: x, Y: y}}
	assert.NoError(t, e.Apply(c))
	return c.ID()
}

func itoa(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}

func TestWatchShutdown(t *testing.T) {
	e := scriptEditor(t)
	signalCh := make(chan os.Signal, 1)
	codes := make(chan int, 2)
	done := make(chan struct{})
	go func() {
		watchShutdown(signalCh, e, func(code int) { codes <- code })
		close(done)
	}()

	// 首个信号应关闭编辑器并以0退出
	signalCh <- syscall.SIGINT
	<-done
	assert.Equal(t, 0, <-codes)
	_, err := e.SyncDerived()
	assert.ErrorIs(t, err, derive.ErrClosed)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	assert.NoError(t, err)
	assert.Equal(t, editor.DefaultConfig(), cfg)

	file := filepath.Join(t.TempDir(), "editor.yaml")
	assert.NoError(t, os.WriteFile(file, []byte("pick_tolerance: 2.5\nhistory_limit: 100\n"), 0o644))
	cfg, err = loadConfig(file)
	assert.NoError(t, err)
	assert.Equal(t, 2.5, cfg.PickTolerance)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.Equal(t, editor.DefaultConfig().NodeRadius, cfg.NodeRadius)

	assert.NoError(t, os.WriteFile(file, []byte("node_radius: -1\n"), 0o644))
	_, err = loadConfig(file)
	assert.Error(t, err)
}
