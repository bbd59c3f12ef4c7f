// 按标签累加像素个数、各波段和与平方和，跨瓦片增量统计
package stats

import (
	"errors"
)

var (
	ErrInvalidShape = errors.New("accumulator: invalid shape")
	ErrBufferSize   = errors.New("accumulator: buffer size mismatch")
)

// Accumulator 在[1, maxLabel]上维护每个标签的统计量，0号标签为背景不参与统计。
// 非并发安全，并行时每个worker持有一个，最后用Merge归并。
type Accumulator struct {
	maxLabel int
	bands    int
	count    []uint64
	sum      []float64 // label*bands + band
	sumSq    []float64
	skipped  uint64
}

func NewAccumulator(maxLabel, bands int) (a *Accumulator, err error) {
	if maxLabel < 1 || bands < 1 {
		err = ErrInvalidShape
		return
	}
	n := (maxLabel + 1) * bands
	a = &Accumulator{
		maxLabel: maxLabel,
		bands:    bands,
		count:    make([]uint64, maxLabel+1),
		sum:      make([]float64, n),
		sumSq:    make([]float64, n),
	}
	return
}

func (a *Accumulator) MaxLabel() int {
	return a.maxLabel
}

func (a *Accumulator) Bands() int {
	return a.bands
}

// 被跳过的像素数（标签为0或越界）
func (a *Accumulator) Skipped() uint64 {
	return a.skipped
}

// 累加一个瓦片：labels为瓦片内逐像素标签，pixels[b]为第b波段同尺寸像素值
func (a *Accumulator) Accumulate(labels []int32, pixels [][]float64) error {
	if len(pixels) != a.bands {
		return ErrBufferSize
	}
	for _, p := range pixels {
		if len(p) != len(labels) {
			return ErrBufferSize
		}
	}
	maxLabel := int32(a.maxLabel)
	for i, l := range labels {
		if l < 1 || l > maxLabel {
			a.skipped++
			continue
		}
		a.count[l]++
		off := int(l) * a.bands
		for b := 0; b < a.bands; b++ {
			v := pixels[b][i]
			a.sum[off+b] += v
			a.sumSq[off+b] += v * v
		}
	}
	return nil
}

// 归并另一个同形状累加器，按标签、波段顺序求和
func (a *Accumulator) Merge(o *Accumulator) error {
	if o.maxLabel != a.maxLabel || o.bands != a.bands {
		return ErrInvalidShape
	}
	for l := 1; l <= a.maxLabel; l++ {
		a.count[l] += o.count[l]
		off := l * a.bands
		for b := 0; b < a.bands; b++ {
			a.sum[off+b] += o.sum[off+b]
			a.sumSq[off+b] += o.sumSq[off+b]
		}
	}
	a.skipped += o.skipped
	return nil
}

func (a *Accumulator) Count(label int) uint64 {
	if label < 1 || label > a.maxLabel {
		return 0
	}
	return a.count[label]
}

// 均值与样本方差（n-1），单像素标签方差为0；无像素的标签返回全0
func (a *Accumulator) Finalize(label int) (mean, variance []float64) {
	mean = make([]float64, a.bands)
	variance = make([]float64, a.bands)
	n := a.Count(label)
	if n == 0 {
		return
	}
	fn := float64(n)
	off := label * a.bands
	for b := 0; b < a.bands; b++ {
		s := a.sum[off+b]
		mean[b] = s / fn
		if n == 1 {
			variance[b] = 0
		} else {
			variance[b] = (a.sumSq[off+b] - s*s/fn) / (fn - 1)
		}
	}
	return
}
