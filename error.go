package lsmsvec

import (
	"errors"
	"fmt"

	"github.com/wgdzlh/lsmsvec/tiling"
)

// 错误类别，具体错误均包装其一，可用errors.Is判断
var (
	ErrConfig        = errors.New("config error")
	ErrIO            = errors.New("io error")
	ErrGeometry      = errors.New("geometry error")
	ErrDataIntegrity = errors.New("data integrity error")
)

var (
	ErrMissingInput      = fmt.Errorf("%w: input or output path missing", ErrConfig)
	ErrInvalidTileSize   = fmt.Errorf("%w: tile size must be >= 1", ErrConfig)
	ErrInvalidWorkers    = fmt.Errorf("%w: workers must be >= 1", ErrConfig)
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported output format", ErrConfig)
	ErrInvalidLayerOpt   = fmt.Errorf("%w: layer option must be KEY=VALUE", ErrConfig)

	ErrGdalDriverCreate = fmt.Errorf("%w: gdal driver create err", ErrIO)
	ErrGdalDriverOpen   = fmt.Errorf("%w: gdal driver open err", ErrIO)
	ErrGdalCreateLayer  = fmt.Errorf("%w: gdal layer create err", ErrIO)
	ErrGdalWriteFeature = fmt.Errorf("%w: gdal feature write err", ErrIO)
	ErrGdalReadFeature  = fmt.Errorf("%w: gdal feature read err", ErrIO)
	ErrGdalExecuteSQL   = fmt.Errorf("%w: gdal execute sql err", ErrIO)
	ErrGdalExport       = fmt.Errorf("%w: gdal vector translate err", ErrIO)
	ErrInvalidTif       = fmt.Errorf("%w: invalid tif", ErrIO)
	ErrTifReadFailed    = fmt.Errorf("%w: tif read failed", ErrIO)

	ErrPolygonize       = fmt.Errorf("%w: polygonize failed", ErrGeometry)
	ErrGdalWrongGeoType = fmt.Errorf("%w: gdal wrong geo type", ErrGeometry)
	ErrUnionFailed      = fmt.Errorf("%w: cascaded union failed", ErrGeometry)
	ErrSimplifyFailed   = fmt.Errorf("%w: simplify failed", ErrGeometry)

	ErrSizeMismatch = fmt.Errorf("%w: image and label raster sizes differ", ErrDataIntegrity)
	ErrNoLabels     = fmt.Errorf("%w: label raster has no positive label", ErrDataIntegrity)
	ErrNoBands      = fmt.Errorf("%w: raster has no band", ErrDataIntegrity)
	ErrLabelRange   = fmt.Errorf("%w: label exceeds int32 range", ErrDataIntegrity)
)

// 单个瓦片处理失败
type TileError struct {
	Tile tiling.Tile
	Err  error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile %s: %v", e.Tile, e.Err)
}

func (e *TileError) Unwrap() error {
	return e.Err
}
