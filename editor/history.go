package editor

import (
	"git.fiblab.net/sim/mapedit/editor/rawmap"
)

// 线性编辑历史，撤销后执行新命令会丢弃重做分支
// 缺省不限深度，limit>0时丢弃最旧的命令
type History struct {
	limit int
	undo  []Command
	redo  []Command
}

func NewHistory(limit int) *History {
	return &History{limit: limit}
}

func (h *History) Apply(m *rawmap.Map, c Command) error {
	if err := c.Apply(m); err != nil {
		return err
	}
	h.undo = append(h.undo, c)
	if h.limit > 0 && len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
	h.redo = h.redo[:0]
	return nil
}

// 撤销最近一条命令并返回它
// 逆命令执行失败意味着历史与模型失去同步，属于内部缺陷
func (h *History) Undo(m *rawmap.Map) (Command, error) {
	if len(h.undo) == 0 {
		return nil, ErrNothingToUndo
	}
	c := h.undo[len(h.undo)-1]
	if err := c.Invert().Apply(m); err != nil {
		log.Errorf("undo of %s failed, history out of sync: %v", c.Label(), err)
		return nil, err
	}
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, c)
	return c, nil
}

func (h *History) Redo(m *rawmap.Map) (Command, error) {
	if len(h.redo) == 0 {
		return nil, ErrNothingToRedo
	}
	c := h.redo[len(h.redo)-1]
	if err := c.Apply(m); err != nil {
		log.Errorf("redo of %s failed, history out of sync: %v", c.Label(), err)
		return nil, err
	}
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, c)
	return c, nil
}

func (h *History) CanUndo() bool { return len(h.undo) > 0 }
func (h *History) CanRedo() bool { return len(h.redo) > 0 }
func (h *History) Len() int      { return len(h.undo) }
