package lsmsvec

import (
	"strconv"
	"strings"
	"time"

	"github.com/lukeroth/gdal"
)

// 矢量化参数
type Params struct {
	In             string        // 多波段影像
	InSeg          string        // 分割标签影像（首波段）
	Out            string        // 输出矢量，按扩展名确定格式
	TileSizeX      int           // 瓦片宽度（像素）
	TileSizeY      int           // 瓦片高度（像素）
	LayerName      string        // 输出图层名，shp忽略
	LayerOptions   []string      // 图层创建选项 KEY=VALUE
	EightConnected bool          // 8邻域追踪，默认4邻域
	Workers        int           // 并行瓦片数，1为顺序处理
	TileTimeout    time.Duration // 单个瓦片的超时，0不限
	Strict         bool          // 合并时并集失败即终止
}

// 默认参数：瓦片500×500，顺序处理
func DefaultParams(in, inSeg, out string) Params {
	return Params{
		In:        in,
		InSeg:     inSeg,
		Out:       out,
		TileSizeX: DEFAULT_TILE_SIZE,
		TileSizeY: DEFAULT_TILE_SIZE,
		LayerName: DEFAULT_LAYER_NAME,
		Workers:   DEFAULT_WORKERS,
	}
}

func (p Params) withDefaults() Params {
	if p.LayerName == "" {
		p.LayerName = DEFAULT_LAYER_NAME
	}
	if p.Workers == 0 {
		p.Workers = DEFAULT_WORKERS
	}
	return p
}

func (p Params) validate() error {
	if p.In == "" || p.InSeg == "" || p.Out == "" {
		return ErrMissingInput
	}
	if p.TileSizeX < 1 || p.TileSizeY < 1 {
		return ErrInvalidTileSize
	}
	if p.Workers < 1 {
		return ErrInvalidWorkers
	}
	if _, ok := formatOf(p.Out); !ok {
		return ErrUnsupportedFormat
	}
	for _, o := range p.LayerOptions {
		if k, _, ok := strings.Cut(o, "="); !ok || k == "" {
			return ErrInvalidLayerOpt
		}
	}
	return nil
}

// 一次矢量化的结果统计
type Report struct {
	Out           string
	Width         int
	Height        int
	Bands         int
	MaxLabel      int
	Tiles         int
	Fragments     int    // 各瓦片写入的碎片总数
	SkippedPixels uint64 // 标签为0的像素
	Labels        int    // 输出要素数
	Merged        int    // 跨瓦片合并的标签数
	Deleted       int    // 合并时删除的碎片数
	FailedLabels  []int  // 未能完整合并的标签
	Elapsed       time.Duration
}

// 输出图层字段
type FieldSpec struct {
	Name string
	Type gdal.FieldType
}

// 输出图层模式：label, nbPixels, meanB0..meanB{n-1}, varB0..varB{n-1}
func Schema(bands int) []FieldSpec {
	fs := make([]FieldSpec, 0, 2+2*bands)
	fs = append(fs, FieldSpec{SHP_FIELD_LABEL, gdal.FT_Integer}, FieldSpec{SHP_FIELD_NB_PIXELS, gdal.FT_Integer64})
	for b := 0; b < bands; b++ {
		fs = append(fs, FieldSpec{meanField(b), gdal.FT_Real})
	}
	for b := 0; b < bands; b++ {
		fs = append(fs, FieldSpec{varField(b), gdal.FT_Real})
	}
	return fs
}

func meanField(band int) string {
	return SHP_FIELD_MEAN + strconv.Itoa(band)
}

func varField(band int) string {
	return SHP_FIELD_VAR + strconv.Itoa(band)
}
