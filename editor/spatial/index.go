package spatial

import (
	"fmt"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/puzpuzpuz/xsync/v3"
)

type entry[T comparable] struct {
	v T
	r Rect
}

type quadNode[T comparable] struct {
	bounds   Rect
	depth    int
	entries  []entry[T]
	children *[4]*quadNode[T] // nil表示叶子节点
}

// 实体包围盒四叉树索引
// 条目存放在完全包含其包围盒的最深节点中；跨越象限分界线的条目留在内部节点
// 查询读多写少，与教学图结构一致使用RBMutex
type Index[T comparable] struct {
	root  *quadNode[T]
	items map[T]Rect

	mu *xsync.RBMutex
}

func NewIndex[T comparable]() *Index[T] {
	return &Index[T]{
		items: make(map[T]Rect),
		mu:    xsync.NewRBMutex(),
	}
}

func (ix *Index[T]) Insert(v T, r Rect) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.items[v]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateItem, v)
	}
	ix.ensureRoot(r)
	ix.root.insert(entry[T]{v: v, r: r})
	ix.items[v] = r
	return nil
}

func (ix *Index[T]) Remove(v T) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	r, ok := ix.items[v]
	if !ok {
		return fmt.Errorf("%w: %v", ErrItemNotFound, v)
	}
	ix.root.remove(v, r)
	delete(ix.items, v)
	return nil
}

// 移动 = 删除 + 以新包围盒重新插入
func (ix *Index[T]) Move(v T, r Rect) error {
	if err := ix.Remove(v); err != nil {
		return err
	}
	return ix.Insert(v, r)
}

// 返回包围盒包含该点的全部实体，精确几何判定由调用方完成
func (ix *Index[T]) QueryPoint(p geometry.Point) []T {
	return ix.QueryRect(PointRect(p))
}

func (ix *Index[T]) QueryRect(r Rect) []T {
	token := ix.mu.RLock()
	defer ix.mu.RUnlock(token)
	if ix.root == nil {
		return nil
	}
	var out []T
	ix.root.query(r, &out)
	return out
}

func (ix *Index[T]) Rect(v T) (Rect, bool) {
	token := ix.mu.RLock()
	defer ix.mu.RUnlock(token)
	r, ok := ix.items[v]
	return r, ok
}

func (ix *Index[T]) Len() int {
	token := ix.mu.RLock()
	defer ix.mu.RUnlock(token)
	return len(ix.items)
}

// 当前全部条目的快照，用于一致性检查
func (ix *Index[T]) Items() map[T]Rect {
	token := ix.mu.RLock()
	defer ix.mu.RUnlock(token)
	out := make(map[T]Rect, len(ix.items))
	for v, r := range ix.items {
		out[v] = r
	}
	return out
}

// 保证根节点覆盖r，必要时以倍增方式扩界并重建
// 重建代价与条目数线性相关，仅在编辑越界时发生
func (ix *Index[T]) ensureRoot(r Rect) {
	if ix.root == nil {
		c := r.Center()
		half := INITIAL_ROOT_EXTENT / 2.0
		ix.root = &quadNode[T]{bounds: NewRect(c.X-half, c.Y-half, c.X+half, c.Y+half)}
		return
	}
	if ix.root.bounds.ContainsRect(r) {
		return
	}
	bounds := ix.root.bounds
	for !bounds.ContainsRect(r) {
		w, h := bounds.Width(), bounds.Height()
		bounds = NewRect(bounds.MinX-w/2, bounds.MinY-h/2, bounds.MaxX+w/2, bounds.MaxY+h/2)
	}
	ix.root = &quadNode[T]{bounds: bounds}
	for v, ir := range ix.items {
		ix.root.insert(entry[T]{v: v, r: ir})
	}
}

func (n *quadNode[T]) insert(e entry[T]) {
	if n.children != nil {
		for _, child := range n.children {
			if child.bounds.ContainsRect(e.r) {
				child.insert(e)
				return
			}
		}
		n.entries = append(n.entries, e)
		return
	}
	n.entries = append(n.entries, e)
	if len(n.entries) > NODE_CAPACITY && n.depth < MAX_DEPTH {
		n.split()
	}
}

func (n *quadNode[T]) split() {
	b := n.bounds
	cx, cy := (b.MinX+b.MaxX)/2, (b.MinY+b.MaxY)/2
	n.children = &[4]*quadNode[T]{
		{bounds: NewRect(b.MinX, b.MinY, cx, cy), depth: n.depth + 1},
		{bounds: NewRect(cx, b.MinY, b.MaxX, cy), depth: n.depth + 1},
		{bounds: NewRect(b.MinX, cy, cx, b.MaxY), depth: n.depth + 1},
		{bounds: NewRect(cx, cy, b.MaxX, b.MaxY), depth: n.depth + 1},
	}
	kept := n.entries[:0]
	for _, e := range n.entries {
		placed := false
		for _, child := range n.children {
			if child.bounds.ContainsRect(e.r) {
				child.insert(e)
				placed = true
				break
			}
		}
		if !placed {
			kept = append(kept, e)
		}
	}
	n.entries = kept
}

func (n *quadNode[T]) remove(v T, r Rect) bool {
	for i, e := range n.entries {
		if e.v == v {
			n.entries = append(n.entries[:i], n.entries[i+1:]...)
			return true
		}
	}
	if n.children != nil {
		for _, child := range n.children {
			if child.bounds.ContainsRect(r) {
				return child.remove(v, r)
			}
		}
	}
	return false
}

func (n *quadNode[T]) query(r Rect, out *[]T) {
	for _, e := range n.entries {
		if e.r.Intersects(r) {
			*out = append(*out, e.v)
		}
	}
	if n.children != nil {
		for _, child := range n.children {
			if child.bounds.Intersects(r) {
				child.query(r, out)
			}
		}
	}
}
