package derive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"git.fiblab.net/sim/mapedit/editor/rawmap"
)

type request struct {
	gen      int64
	snapshot *rawmap.Map
}

// 派生流水线：单工作协程对最新快照求值
// 新请求隐式取代在途请求；只有最新请求的结果才会被发布，
// 旧请求即使后完成也直接丢弃，发布代次因此严格单调
type Pipeline struct {
	deriver Deriver

	mu        sync.Mutex
	cond      *sync.Cond
	pending   *request
	latestGen int64
	cancel    context.CancelFunc // 在途派生的取消函数
	failGen   int64
	failErr   error
	closed    bool

	published atomic.Pointer[StreetNetwork]

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

func NewPipeline(d Deriver) *Pipeline {
	p := &Pipeline{
		deriver: d,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(1)
	go p.run()
	return p
}

// 提交一次派生请求，返回分配的代次
// 快照由调用方独占提供，流水线不再复制
func (p *Pipeline) Request(snapshot *rawmap.Map) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return p.latestGen
	}
	p.latestGen++
	p.pending = &request{gen: p.latestGen, snapshot: snapshot}
	if p.cancel != nil {
		// 取代在途派生
		p.cancel()
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return p.latestGen
}

// 最近一次成功发布的路网快照
func (p *Pipeline) Latest() (*StreetNetwork, bool) {
	net := p.published.Load()
	return net, net != nil
}

// 最近一次失败的代次与原因，失败不影响已发布快照
func (p *Pipeline) LastError() (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failGen, p.failErr
}

// 阻塞直到最新请求的代次被发布或失败
// 返回该代次，失败时附带派生错误
func (p *Pipeline) Sync() (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.closed {
			return p.latestGen, ErrClosed
		}
		gen := p.latestGen
		if gen == 0 {
			return 0, nil
		}
		if net := p.published.Load(); net != nil && net.Generation == gen {
			return gen, nil
		}
		if p.failGen == gen {
			return gen, p.failErr
		}
		p.cond.Wait()
	}
}

func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	close(p.done)
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}
		for {
			p.mu.Lock()
			req := p.pending
			p.pending = nil
			if req == nil {
				p.mu.Unlock()
				break
			}
			ctx, cancel := context.WithCancel(context.Background())
			p.cancel = cancel
			p.mu.Unlock()

			start := time.Now()
			derived, err := p.deriver.Derive(ctx, req.snapshot)
			cancel()
			deriveSeconds.Observe(time.Since(start).Seconds())

			p.mu.Lock()
			p.cancel = nil
			if req.gen != p.latestGen {
				// 快照已过期，丢弃结果
				discardedTotal.Inc()
				log.Debugf("discard stale derivation of generation %d (latest %d)",
					req.gen, p.latestGen)
			} else if err != nil {
				failedTotal.Inc()
				p.failGen, p.failErr = req.gen, err
				log.Warnf("derivation of generation %d failed: %v", req.gen, err)
			} else {
				p.published.Store(&StreetNetwork{Generation: req.gen, Map: derived})
				publishedGeneration.Set(float64(req.gen))
				log.Debugf("published street network generation %d", req.gen)
			}
			p.cond.Broadcast()
			p.mu.Unlock()
		}
	}
}
