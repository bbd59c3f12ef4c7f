// 跨瓦片图斑合并：按标签有序扫描碎片，同标签碎片求并集，附加统计量后写回
package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/wgdzlh/lsmsvec/log"

	"go.uber.org/zap"
)

const logTag = "Merger:"

var (
	ErrUnorderedFragments = errors.New("fragments not ordered by label")
)

// 由几何引擎创建的几何对象，用完需Release
type Geometry interface {
	Area() float64
	Release()
}

// 单个瓦片内某标签的多边形碎片
type Fragment struct {
	FID   int64
	Label int
	Geom  Geometry
}

// 合并后写回的最终要素
type Feature struct {
	FID      int64
	Label    int
	NbPixels uint64
	Mean     []float64
	Var      []float64
	Geom     Geometry
}

type Engine interface {
	UnionCascaded(parts []Geometry) (Geometry, error)
	Simplify(geom Geometry, tolerance float64) (Geometry, error)
}

// 按标签升序的单向碎片游标
type Cursor interface {
	Next() (f Fragment, ok bool, err error)
	Close()
}

type Store interface {
	Fragments() (Cursor, error)
	Begin() error
	Commit() error
	Rollback() error
	Delete(fid int64) error
	Update(f Feature) error
}

type Stats interface {
	Count(label int) uint64
	Finalize(label int) (mean, variance []float64)
}

type Options struct {
	Tolerance float64 // 化简容差，0即只去除冗余共线点
	Strict    bool    // 并集失败时终止，否则保留首个碎片继续
}

type Result struct {
	Labels  int // 输出要素数
	Merged  int // 发生跨瓦片合并的标签数
	Deleted int // 删除的碎片数
	Failed  []*LabelError
}

func (r Result) FailedLabels() []int {
	ids := make([]int, len(r.Failed))
	for i, e := range r.Failed {
		ids[i] = e.Label
	}
	return ids
}

type LabelError struct {
	Label     int
	Fragments int
	Err       error
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("label %d (%d fragments): %v", e.Label, e.Fragments, e.Err)
}

func (e *LabelError) Unwrap() error {
	return e.Err
}

type Merger struct {
	store  Store
	engine Engine
	stats  Stats
	opts   Options
}

func New(store Store, engine Engine, stats Stats, opts Options) *Merger {
	return &Merger{
		store:  store,
		engine: engine,
		stats:  stats,
		opts:   opts,
	}
}

type state int

const (
	scanningGroup state = iota
	emittingMerged
	done
)

// 带一个预读元素的游标
type peekCursor struct {
	c      Cursor
	head   Fragment
	filled bool
}

func (p *peekCursor) peek() (f Fragment, ok bool, err error) {
	if !p.filled {
		if p.head, ok, err = p.c.Next(); err != nil || !ok {
			return
		}
		p.filled = true
	}
	return p.head, true, nil
}

func (p *peekCursor) next() (f Fragment, ok bool, err error) {
	if f, ok, err = p.peek(); ok {
		p.filled = false
	}
	return
}

// 执行一次完整的有序扫描合并；ctx仅在标签组之间检查
func (m *Merger) Run(ctx context.Context) (res Result, err error) {
	cur, err := m.store.Fragments()
	if err != nil {
		return
	}
	defer cur.Close()
	var (
		p     = &peekCursor{c: cur}
		st    = scanningGroup
		group []Fragment
		last  = 0
	)
	defer func() {
		releaseFragments(group)
		if p.filled {
			p.head.Geom.Release()
		}
	}()
	for st != done {
		switch st {
		case scanningGroup:
			if err = ctx.Err(); err != nil {
				return
			}
			first, ok, e := p.next()
			if err = e; err != nil {
				return
			}
			if !ok {
				st = done
				continue
			}
			if first.Label < last {
				first.Geom.Release()
				err = ErrUnorderedFragments
				return
			}
			group = append(group[:0], first)
			for {
				nx, ok, e := p.peek()
				if err = e; err != nil {
					return
				}
				if !ok || nx.Label != first.Label {
					break
				}
				p.filled = false
				group = append(group, nx)
			}
			last = first.Label
			st = emittingMerged
		case emittingMerged:
			err = m.emit(group, &res)
			releaseFragments(group)
			group = group[:0]
			if err != nil {
				return
			}
			st = scanningGroup
		}
	}
	log.Info(logTag+"merge done", zap.Int("labels", res.Labels), zap.Int("merged", res.Merged),
		zap.Int("deleted", res.Deleted), zap.Int("failed", len(res.Failed)))
	return
}

// 处理一个标签组，删除与写回在同一事务中
func (m *Merger) emit(group []Fragment, res *Result) (err error) {
	var (
		first      = group[0]
		label      = first.Label
		geom       = first.Geom
		haveMerged = len(group) > 1
		owned      []Geometry
		lerr       *LabelError
	)
	defer func() {
		for _, g := range owned {
			g.Release()
		}
	}()
	if err = m.store.Begin(); err != nil {
		return
	}
	defer func() {
		if err != nil {
			if e := m.store.Rollback(); e != nil {
				log.Error(logTag+"rollback failed", zap.Int("label", label), zap.Error(e))
			}
		}
	}()
	if haveMerged {
		parts := make([]Geometry, len(group))
		for i, f := range group {
			parts[i] = f.Geom
		}
		u, e := m.engine.UnionCascaded(parts)
		if e != nil {
			lerr = &LabelError{Label: label, Fragments: len(group), Err: e}
			if m.opts.Strict {
				err = lerr
				return
			}
			log.Warn(logTag+"union failed, keep first fragment", zap.Int("label", label),
				zap.Int("fragments", len(group)), zap.Error(e))
		} else {
			owned = append(owned, u)
			geom = u
		}
		for _, f := range group[1:] {
			if err = m.store.Delete(f.FID); err != nil {
				return
			}
		}
	}
	if s, e := m.engine.Simplify(geom, m.opts.Tolerance); e != nil {
		log.Warn(logTag+"simplify failed, keep geometry", zap.Int("label", label), zap.Error(e))
	} else {
		owned = append(owned, s)
		geom = s
	}
	n := m.stats.Count(label)
	if n == 0 {
		log.Warn(logTag+"label has no accumulated pixels", zap.Int("label", label))
	}
	mean, variance := m.stats.Finalize(label)
	if err = m.store.Update(Feature{
		FID:      first.FID,
		Label:    label,
		NbPixels: n,
		Mean:     mean,
		Var:      variance,
		Geom:     geom,
	}); err != nil {
		return
	}
	if err = m.store.Commit(); err != nil {
		return
	}
	res.Labels++
	res.Deleted += len(group) - 1
	if lerr != nil {
		res.Failed = append(res.Failed, lerr)
	} else if haveMerged {
		res.Merged++
	}
	log.Debug(logTag+"label emitted", zap.Int("label", label), zap.Int("fragments", len(group)),
		zap.Uint64("nbPixels", n))
	return
}

func releaseFragments(fs []Fragment) {
	for _, f := range fs {
		if f.Geom != nil {
			f.Geom.Release()
		}
	}
}
