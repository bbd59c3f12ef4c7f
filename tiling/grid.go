// 将W×H栅格切分为规则瓦片网格，行优先顺序，边缘瓦片按剩余像素截断
package tiling

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTileSize  = errors.New("tile size must be >= 1")
	ErrInvalidImageSize = errors.New("image size must be >= 1")
)

// 瓦片：图像内的矩形窗口（像素坐标）
type Tile struct {
	Col    int
	Row    int
	StartX int
	StartY int
	SizeX  int
	SizeY  int
}

type Grid struct {
	Width     int
	Height    int
	TileSizeX int
	TileSizeY int
	NbTilesX  int
	NbTilesY  int
}

func NewGrid(width, height, tileSizeX, tileSizeY int) (g Grid, err error) {
	if tileSizeX < 1 || tileSizeY < 1 {
		err = ErrInvalidTileSize
		return
	}
	if width < 1 || height < 1 {
		err = ErrInvalidImageSize
		return
	}
	g = Grid{
		Width:     width,
		Height:    height,
		TileSizeX: tileSizeX,
		TileSizeY: tileSizeY,
		NbTilesX:  ceilDiv(width, tileSizeX),
		NbTilesY:  ceilDiv(height, tileSizeY),
	}
	return
}

// 计算全部瓦片
func ComputeGrid(width, height, tileSizeX, tileSizeY int) (tiles []Tile, err error) {
	g, err := NewGrid(width, height, tileSizeX, tileSizeY)
	if err != nil {
		return
	}
	tiles = g.Tiles()
	return
}

func (g Grid) Len() int {
	return g.NbTilesX * g.NbTilesY
}

// 第i个瓦片（行优先）
func (g Grid) Tile(i int) (t Tile) {
	t.Col = i % g.NbTilesX
	t.Row = i / g.NbTilesX
	t.StartX = t.Col * g.TileSizeX
	t.StartY = t.Row * g.TileSizeY
	t.SizeX = min(g.TileSizeX, g.Width-t.StartX)
	t.SizeY = min(g.TileSizeY, g.Height-t.StartY)
	return
}

func (g Grid) Tiles() []Tile {
	tiles := make([]Tile, g.Len())
	for i := range tiles {
		tiles[i] = g.Tile(i)
	}
	return tiles
}

func (t Tile) Pixels() int {
	return t.SizeX * t.SizeY
}

// 矢量化用的外扩窗口：右、下各多1像素，不超出图像范围
func (t Tile) Halo(width, height int) Tile {
	h := t
	h.SizeX = min(t.SizeX+1, width-t.StartX)
	h.SizeY = min(t.SizeY+1, height-t.StartY)
	return h
}

func (t Tile) String() string {
	return fmt.Sprintf("[%d,%d](x=%d,y=%d,%dx%d)", t.Col, t.Row, t.StartX, t.StartY, t.SizeX, t.SizeY)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
