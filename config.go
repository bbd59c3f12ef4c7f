package lsmsvec

import (
	"path/filepath"
	"strings"
)

const (
	FILE_EXT_SHP     = ".shp"
	FILE_EXT_GPKG    = ".gpkg"
	FILE_EXT_SQLITE  = ".sqlite"
	FILE_EXT_GEOJSON = ".geojson"
	FILE_EXT_JSON    = ".json"
	SHAPE_ENCODING   = "UTF-8"

	SHP_DRIVER_NAME     = "ESRI Shapefile"
	GPKG_DRIVER_NAME    = "GPKG"
	SQLITE_DRIVER_NAME  = "SQLite"
	GEOJSON_DRIVER_NAME = "GeoJSON"
	MEM_RASTER_DRIVER   = "MEM"
	MEM_VECTOR_DRIVER   = "Memory"

	ENCODING_OPTION    = "ENCODING=" + SHAPE_ENCODING
	CONNECTED_8_OPTION = "8CONNECTED=8"
	CAP_TRANSACTIONS   = "Transactions"
	OGR_SQL_DIALECT    = "OGRSQL"

	DEFAULT_TILE_SIZE  = 500
	DEFAULT_LAYER_NAME = "layer"
	DEFAULT_WORKERS    = 1

	SHP_FIELD_LABEL     = "label"
	SHP_FIELD_NB_PIXELS = "nbPixels"
	SHP_FIELD_MEAN      = "meanB"
	SHP_FIELD_VAR       = "varB"

	TMP_TILE_LAYER = "tile"
	TMP_SCRATCH    = "scratch"

	SimplifyT = 0.0 // 仅去除冗余顶点
)

// 输出矢量格式
type vectorFormat struct {
	driver    string
	layerOpts []string
	exportTo  string // 非空时先写入GeoPackage，最后导出为该驱动格式
}

var vectorFormats = map[string]vectorFormat{
	FILE_EXT_SHP:     {driver: SHP_DRIVER_NAME, layerOpts: []string{ENCODING_OPTION}},
	FILE_EXT_GPKG:    {driver: GPKG_DRIVER_NAME},
	FILE_EXT_SQLITE:  {driver: SQLITE_DRIVER_NAME},
	FILE_EXT_GEOJSON: {driver: GPKG_DRIVER_NAME, exportTo: GEOJSON_DRIVER_NAME},
	FILE_EXT_JSON:    {driver: GPKG_DRIVER_NAME, exportTo: GEOJSON_DRIVER_NAME},
}

func formatOf(path string) (f vectorFormat, ok bool) {
	f, ok = vectorFormats[strings.ToLower(filepath.Ext(path))]
	return
}
