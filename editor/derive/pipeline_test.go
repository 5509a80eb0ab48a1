package derive_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"

	"git.fiblab.net/sim/mapedit/editor/derive"
	"git.fiblab.net/sim/mapedit/editor/rawmap"
)

// 可受控的派生器：按模型交叉口数量编码结果，便于断言结果归属
type stubDeriver struct {
	block   chan struct{} // 非nil时阻塞到关闭或ctx取消
	fail    error
	derived chan int // 每次调用上报交叉口数量
}

func (d *stubDeriver) Derive(ctx context.Context, m *rawmap.Map) (*mapv2.Map, error) {
	if d.derived != nil {
		d.derived <- m.IntersectionCount()
	}
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.fail != nil {
		return nil, d.fail
	}
	return &mapv2.Map{
		Header: &mapv2.Header{Name: "stub"},
		Lanes:  make([]*mapv2.Lane, m.IntersectionCount()),
	}, nil
}

func snapshot(n int) *rawmap.Map {
	m := rawmap.New()
	for i := 0; i < n; i++ {
		m.AddIntersection(geometry.Point{X: float64(i) * 100}, rawmap.CONTROL_TYPE_UNSIGNALIZED)
	}
	return m
}

func TestPipelinePublish(t *testing.T) {
	p := derive.NewPipeline(&stubDeriver{})
	defer p.Close()

	_, ok := p.Latest()
	assert.False(t, ok)

	gen := p.Request(snapshot(3))
	assert.Equal(t, int64(1), gen)
	got, err := p.Sync()
	assert.NoError(t, err)
	assert.Equal(t, gen, got)

	net, ok := p.Latest()
	assert.True(t, ok)
	assert.Equal(t, gen, net.Generation)
	assert.Len(t, net.Map.Lanes, 3)
}

func TestPipelineSupersede(t *testing.T) {
	block := make(chan struct{})
	d := &stubDeriver{block: block, derived: make(chan int, 16)}
	p := derive.NewPipeline(d)
	defer p.Close()

	// 第一个请求进入派生后被第二个请求取代
	gen1 := p.Request(snapshot(1))
	assert.Equal(t, 1, <-d.derived)
	gen2 := p.Request(snapshot(2))
	assert.Greater(t, gen2, gen1)
	close(block)

	got, err := p.Sync()
	assert.NoError(t, err)
	assert.Equal(t, gen2, got)
	net, ok := p.Latest()
	assert.True(t, ok)
	// 旧代次的结果被丢弃，发布的是最新快照的结果
	assert.Equal(t, gen2, net.Generation)
	assert.Len(t, net.Map.Lanes, 2)
}

func TestPipelineCoalesce(t *testing.T) {
	// 不响应取消的派生器，保证前一个请求占住worker直到全部请求提交完毕
	block := make(chan struct{})
	derived := make(chan int, 16)
	d := derive.DeriverFunc(func(ctx context.Context, m *rawmap.Map) (*mapv2.Map, error) {
		derived <- m.IntersectionCount()
		<-block
		return &mapv2.Map{Lanes: make([]*mapv2.Lane, m.IntersectionCount())}, nil
	})
	p := derive.NewPipeline(d)
	defer p.Close()

	p.Request(snapshot(1))
	assert.Equal(t, 1, <-derived)
	// 在途期间连续提交多个请求，只有最后一个会被求值
	p.Request(snapshot(2))
	p.Request(snapshot(3))
	gen4 := p.Request(snapshot(4))
	close(block)

	got, err := p.Sync()
	assert.NoError(t, err)
	assert.Equal(t, gen4, got)
	// 中间代次被邮箱合并，从未进入求值
	assert.Equal(t, 4, <-derived)
	select {
	case n := <-derived:
		t.Fatalf("unexpected extra derivation of %d intersections", n)
	case <-time.After(50 * time.Millisecond):
	}
	net, _ := p.Latest()
	assert.Len(t, net.Map.Lanes, 4)
}

func TestPipelineFailureKeepsPublished(t *testing.T) {
	d := &stubDeriver{}
	p := derive.NewPipeline(d)
	defer p.Close()

	gen1 := p.Request(snapshot(2))
	_, err := p.Sync()
	assert.NoError(t, err)

	// 失败不影响已发布快照
	boom := errors.New("boom")
	d.fail = boom
	gen2 := p.Request(snapshot(5))
	got, err := p.Sync()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, gen2, got)

	net, ok := p.Latest()
	assert.True(t, ok)
	assert.Equal(t, gen1, net.Generation)
	assert.Len(t, net.Map.Lanes, 2)

	failGen, failErr := p.LastError()
	assert.Equal(t, gen2, failGen)
	assert.ErrorIs(t, failErr, boom)

	// 下一次成功恢复发布
	d.fail = nil
	gen3 := p.Request(snapshot(3))
	got, err = p.Sync()
	assert.NoError(t, err)
	assert.Equal(t, gen3, got)
	net, _ = p.Latest()
	assert.Equal(t, gen3, net.Generation)
}

func TestPipelineSyncEmpty(t *testing.T) {
	p := derive.NewPipeline(&stubDeriver{})
	defer p.Close()
	gen, err := p.Sync()
	assert.NoError(t, err)
	assert.Equal(t, int64(0), gen)
}

func TestPipelineClose(t *testing.T) {
	block := make(chan struct{})
	d := &stubDeriver{block: block, derived: make(chan int, 16)}
	p := derive.NewPipeline(d)

	p.Request(snapshot(1))
	assert.Equal(t, 1, <-d.derived)
	// 在途派生被取消，Close不会卡死
	p.Close()

	_, err := p.Sync()
	assert.ErrorIs(t, err, derive.ErrClosed)
	// 关闭后的请求是空操作
	gen := p.Request(snapshot(2))
	assert.Equal(t, int64(1), gen)
	p.Close()
}
