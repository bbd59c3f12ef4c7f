package lsmsvec

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/wgdzlh/lsmsvec/log"
	"github.com/wgdzlh/lsmsvec/tiling"

	"github.com/airbusgeo/godal"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/lukeroth/gdal"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
)

type outFeature struct {
	Label    int
	NbPixels int
	Mean     []float64
	Var      []float64
	Area     float64
}

func northUp(h int) [6]float64 {
	return [6]float64{0, 1, 0, float64(h), 0, -1}
}

func writeImage(t *testing.T, path string, w, h int, bands [][]float64) {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, path, len(bands), godal.Float64, w, h)
	if err != nil {
		t.Fatal(err)
	}
	if err = ds.SetGeoTransform(northUp(h)); err != nil {
		t.Fatal(err)
	}
	for i, b := range ds.Bands() {
		if err = b.IO(godal.IOWrite, 0, 0, bands[i], w, h); err != nil {
			t.Fatal(err)
		}
	}
	if err = ds.Close(); err != nil {
		t.Fatal(err)
	}
}

func writeLabels(t *testing.T, path string, w, h int, labels []int32) {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Int32, w, h)
	if err != nil {
		t.Fatal(err)
	}
	if err = ds.SetGeoTransform(northUp(h)); err != nil {
		t.Fatal(err)
	}
	if err = ds.Bands()[0].IO(godal.IOWrite, 0, 0, labels, w, h); err != nil {
		t.Fatal(err)
	}
	if err = ds.Close(); err != nil {
		t.Fatal(err)
	}
}

// 生成输入影像对，返回(影像, 标签)路径
func writeScene(t *testing.T, w, h int, bands [][]float64, labels []int32) (in, inSeg string) {
	t.Helper()
	dir := t.TempDir()
	in = filepath.Join(dir, "image.tif")
	inSeg = filepath.Join(dir, "labels.tif")
	writeImage(t, in, w, h, bands)
	writeLabels(t, inSeg, w, h, labels)
	return
}

func readFeatures(t *testing.T, path, driver, layerName string, bands int) (out []outFeature) {
	t.Helper()
	ds, ok := gdal.OGRDriverByName(driver).Open(path, 0)
	if !ok {
		t.Fatalf("open %s failed", path)
	}
	defer ds.Destroy()
	layer := ds.LayerByIndex(0)
	if layerName != "" {
		layer = ds.LayerByName(layerName)
	}
	def := layer.Definition()
	labelIdx := def.FieldIndex(SHP_FIELD_LABEL)
	nbIdx := def.FieldIndex(SHP_FIELD_NB_PIXELS)
	if labelIdx < 0 || nbIdx < 0 {
		t.Fatalf("missing fields in %s", path)
	}
	var (
		feature *gdal.Feature
		gc      []destroyable
	)
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	for {
		if feature = layer.NextFeature(); feature == nil {
			break
		}
		gc = append(gc, *feature)
		f := outFeature{
			Label:    feature.FieldAsInteger(labelIdx),
			NbPixels: int(feature.FieldAsInteger64(nbIdx)),
			Area:     feature.Geometry().Area(),
		}
		for b := 0; b < bands; b++ {
			f.Mean = append(f.Mean, feature.FieldAsFloat64(def.FieldIndex(meanField(b))))
			f.Var = append(f.Var, feature.FieldAsFloat64(def.FieldIndex(varField(b))))
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func setup(t *testing.T) *GdalToolbox {
	log.SetLogger(zaptest.NewLogger(t))
	return NewGdalToolbox()
}

// 输出目录中除输出文件外不应残留工作目录
func assertNoWorkDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() {
			t.Errorf("left over directory %s", e.Name())
		}
	}
}

func constScene(w, h int, value float64, label int32) ([][]float64, []int32) {
	band := make([]float64, w*h)
	labels := make([]int32, w*h)
	for i := range band {
		band[i] = value
		labels[i] = label
	}
	return [][]float64{band}, labels
}

func TestVectorizeSingleLabelAcrossAllTiles(t *testing.T) {
	g := setup(t)
	const w, h = 256, 256
	bands, labels := constScene(w, h, 7, 1)
	in, inSeg := writeScene(t, w, h, bands, labels)
	outDir := t.TempDir()
	out := filepath.Join(outDir, "segs.shp")

	p := DefaultParams(in, inSeg, out)
	p.TileSizeX, p.TileSizeY = 100, 100
	rep, err := g.Vectorize(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Tiles != 9 || rep.Labels != 1 || rep.Merged != 1 || rep.Deleted != rep.Fragments-1 {
		t.Errorf("unexpected report %+v", rep)
	}
	got := readFeatures(t, out, SHP_DRIVER_NAME, "", 1)
	want := []outFeature{{Label: 1, NbPixels: w * h, Mean: []float64{7}, Var: []float64{0}, Area: w * h}}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}
	assertNoWorkDir(t, outDir)
}

func TestVectorizeLabelsInSeparateTiles(t *testing.T) {
	g := setup(t)
	const w, h = 16, 16
	bands, labels := constScene(w, h, 0, 0)
	for x := 1; x <= 5; x++ {
		labels[1*w+x] = 2
		bands[0][1*w+x] = 20
	}
	for x := 10; x <= 14; x++ {
		labels[12*w+x] = 3
		bands[0][12*w+x] = float64(x)
	}
	in, inSeg := writeScene(t, w, h, bands, labels)
	out := filepath.Join(t.TempDir(), "segs.gpkg")

	p := DefaultParams(in, inSeg, out)
	p.TileSizeX, p.TileSizeY = 8, 8
	rep, err := g.Vectorize(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Labels != 2 || rep.Merged != 0 || rep.Deleted != 0 || rep.MaxLabel != 3 {
		t.Errorf("unexpected report %+v", rep)
	}
	got := readFeatures(t, out, GPKG_DRIVER_NAME, DEFAULT_LAYER_NAME, 1)
	want := []outFeature{
		{Label: 2, NbPixels: 5, Mean: []float64{20}, Var: []float64{0}, Area: 5},
		// 10..14 的样本方差为2.5
		{Label: 3, NbPixels: 5, Mean: []float64{12}, Var: []float64{2.5}, Area: 5},
	}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}
}

func TestVectorizeMergesAcrossTileBorders(t *testing.T) {
	g := setup(t)
	const w, h = 30, 10
	bands, labels := constScene(w, h, 1, 0)
	for y := 3; y <= 6; y++ {
		for x := 2; x <= 27; x++ {
			labels[y*w+x] = 5
		}
	}
	in, inSeg := writeScene(t, w, h, bands, labels)
	out := filepath.Join(t.TempDir(), "segs.shp")

	p := DefaultParams(in, inSeg, out)
	p.TileSizeX, p.TileSizeY = 10, 10
	rep, err := g.Vectorize(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Labels != 1 || rep.Merged != 1 || rep.Fragments != 3 || rep.Deleted != 2 {
		t.Errorf("unexpected report %+v", rep)
	}
	if rep.SkippedPixels != w*h-104 {
		t.Errorf("skipped %d background pixels, want %d", rep.SkippedPixels, w*h-104)
	}
	got := readFeatures(t, out, SHP_DRIVER_NAME, "", 1)
	want := []outFeature{{Label: 5, NbPixels: 104, Mean: []float64{1}, Var: []float64{0}, Area: 104}}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}
}

// 带条纹标签与随机取值的多波段场景
func stripedScene(w, h, nb int) ([][]float64, []int32) {
	bands := make([][]float64, nb)
	for b := range bands {
		bands[b] = make([]float64, w*h)
	}
	labels := make([]int32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			labels[i] = int32((x/7+y/5)%6) + 1
			if (x+y)%13 == 0 {
				labels[i] = 0
			}
			for b := range bands {
				bands[b][i] = float64((x*31+y*17+b*7)%23) + 0.5*float64(b)
			}
		}
	}
	return bands, labels
}

func TestVectorizeTileSizeInvariance(t *testing.T) {
	g := setup(t)
	const w, h = 45, 33
	bands, labels := stripedScene(w, h, 2)
	in, inSeg := writeScene(t, w, h, bands, labels)

	var ref []outFeature
	for i, ts := range [][2]int{{w, h}, {10, 10}, {7, 16}, {1000, 4}} {
		out := filepath.Join(t.TempDir(), "segs.gpkg")
		p := DefaultParams(in, inSeg, out)
		p.TileSizeX, p.TileSizeY = ts[0], ts[1]
		if _, err := g.Vectorize(context.Background(), p); err != nil {
			t.Fatalf("tile %v: %v", ts, err)
		}
		got := readFeatures(t, out, GPKG_DRIVER_NAME, "", 2)
		if i == 0 {
			ref = got
			total := 0
			for _, f := range ref {
				total += f.NbPixels
			}
			var zeros int
			for _, l := range labels {
				if l == 0 {
					zeros++
				}
			}
			if total != w*h-zeros {
				t.Errorf("pixel count %d, want %d", total, w*h-zeros)
			}
			continue
		}
		if diff := cmp.Diff(ref, got, cmpopts.EquateApprox(1e-9, 1e-9)); diff != "" {
			t.Errorf("tile %v differs from untiled run (-untiled +tiled):\n%s", ts, diff)
		}
	}
}

func TestVectorizeWorkersMatchSequential(t *testing.T) {
	g := setup(t)
	const w, h = 40, 40
	bands, labels := stripedScene(w, h, 3)
	in, inSeg := writeScene(t, w, h, bands, labels)

	run := func(workers int) []outFeature {
		out := filepath.Join(t.TempDir(), "segs.sqlite")
		p := DefaultParams(in, inSeg, out)
		p.TileSizeX, p.TileSizeY = 9, 11
		p.Workers = workers
		p.EightConnected = true
		if _, err := g.Vectorize(context.Background(), p); err != nil {
			t.Fatalf("workers %d: %v", workers, err)
		}
		return readFeatures(t, out, SQLITE_DRIVER_NAME, "", 3)
	}
	seq := run(1)
	par := run(3)
	if diff := cmp.Diff(seq, par, cmpopts.EquateApprox(1e-9, 1e-9)); diff != "" {
		t.Errorf("parallel run differs (-sequential +parallel):\n%s", diff)
	}
}

func TestVectorizeGeoJSON(t *testing.T) {
	g := setup(t)
	const w, h = 20, 12
	bands, labels := constScene(w, h, 3, 4)
	in, inSeg := writeScene(t, w, h, bands, labels)
	outDir := t.TempDir()
	out := filepath.Join(outDir, "segs.geojson")

	p := DefaultParams(in, inSeg, out)
	p.TileSizeX, p.TileSizeY = 6, 5
	if _, err := g.Vectorize(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	got := readFeatures(t, out, GEOJSON_DRIVER_NAME, "", 1)
	want := []outFeature{{Label: 4, NbPixels: w * h, Mean: []float64{3}, Var: []float64{0}, Area: w * h}}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 1 {
		t.Errorf("want only the GeoJSON file in output dir, got %d entries", len(entries))
	}
}

func TestVectorizeConfigErrorsLeaveNoOutput(t *testing.T) {
	g := setup(t)
	bands, labels := constScene(8, 8, 1, 1)
	in, inSeg := writeScene(t, 8, 8, bands, labels)
	outDir := t.TempDir()

	cases := []struct {
		name string
		mod  func(*Params)
		want error
	}{
		{"zero tile", func(p *Params) { p.TileSizeX = 0 }, ErrInvalidTileSize},
		{"negative tile", func(p *Params) { p.TileSizeY = -3 }, ErrInvalidTileSize},
		{"unknown format", func(p *Params) { p.Out = filepath.Join(outDir, "segs.txt") }, ErrUnsupportedFormat},
		{"bad layer option", func(p *Params) { p.LayerOptions = []string{"SPATIAL_INDEX"} }, ErrInvalidLayerOpt},
		{"negative workers", func(p *Params) { p.Workers = -1 }, ErrInvalidWorkers},
	}
	for _, c := range cases {
		p := DefaultParams(in, inSeg, filepath.Join(outDir, "segs.shp"))
		c.mod(&p)
		_, err := g.Vectorize(context.Background(), p)
		if !errors.Is(err, c.want) || !errors.Is(err, ErrConfig) {
			t.Errorf("%s: got %v, want %v", c.name, err, c.want)
		}
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Errorf("output dir should stay empty, got %d entries", len(entries))
	}
}

func TestVectorizeNoLabels(t *testing.T) {
	g := setup(t)
	bands, labels := constScene(12, 9, 1, 0)
	in, inSeg := writeScene(t, 12, 9, bands, labels)
	outDir := t.TempDir()
	_, err := g.Vectorize(context.Background(), DefaultParams(in, inSeg, filepath.Join(outDir, "segs.shp")))
	if !errors.Is(err, ErrNoLabels) || !errors.Is(err, ErrDataIntegrity) {
		t.Errorf("got %v, want ErrNoLabels", err)
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Errorf("output dir should stay empty, got %d entries", len(entries))
	}
}

func TestVectorizeSizeMismatch(t *testing.T) {
	g := setup(t)
	dir := t.TempDir()
	bands, _ := constScene(10, 10, 1, 1)
	_, labels := constScene(10, 8, 1, 1)
	in := filepath.Join(dir, "image.tif")
	inSeg := filepath.Join(dir, "labels.tif")
	writeImage(t, in, 10, 10, bands)
	writeLabels(t, inSeg, 10, 8, labels)
	_, err := g.Vectorize(context.Background(), DefaultParams(in, inSeg, filepath.Join(dir, "segs.gpkg")))
	if !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("got %v, want ErrSizeMismatch", err)
	}
}

func TestVectorizeCanceled(t *testing.T) {
	g := setup(t)
	bands, labels := constScene(20, 20, 1, 1)
	in, inSeg := writeScene(t, 20, 20, bands, labels)
	outDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := DefaultParams(in, inSeg, filepath.Join(outDir, "segs.shp"))
	p.TileSizeX, p.TileSizeY = 5, 5
	p.Workers = 2
	if _, err := g.Vectorize(ctx, p); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Errorf("output dir should stay empty, got %d entries", len(entries))
	}
}

func TestVectorizeOverwritesExistingShapefile(t *testing.T) {
	g := setup(t)
	bands, labels := constScene(10, 10, 2, 1)
	in, inSeg := writeScene(t, 10, 10, bands, labels)
	outDir := t.TempDir()
	out := filepath.Join(outDir, "segs.shp")
	p := DefaultParams(in, inSeg, out)
	p.TileSizeX, p.TileSizeY = 4, 4
	for i := 0; i < 2; i++ {
		if _, err := g.Vectorize(context.Background(), p); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	got := readFeatures(t, out, SHP_DRIVER_NAME, "", 1)
	if len(got) != 1 || got[0].NbPixels != 100 || math.Abs(got[0].Area-100) > 1e-9 {
		t.Errorf("got %+v", got)
	}
	assertNoWorkDir(t, outDir)
}

func TestVectorizeWithLiveContext(t *testing.T) {
	g := setup(t)
	const w, h = 24, 18
	bands, labels := stripedScene(w, h, 1)
	in, inSeg := writeScene(t, w, h, bands, labels)

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timeoutCtx, cancelTimeout := context.WithTimeout(context.Background(), time.Minute)
	defer cancelTimeout()
	for name, ctx := range map[string]context.Context{"cancel": cancelCtx, "timeout": timeoutCtx} {
		out := filepath.Join(t.TempDir(), "segs.gpkg")
		p := DefaultParams(in, inSeg, out)
		p.TileSizeX, p.TileSizeY = 8, 8
		p.Workers = 2
		p.TileTimeout = time.Minute
		rep, err := g.Vectorize(ctx, p)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if rep.Labels != 6 || rep.Tiles != 9 {
			t.Errorf("%s: unexpected report %+v", name, rep)
		}
	}
}

func TestVectorizeTileTimeout(t *testing.T) {
	g := setup(t)
	const w, h = 20, 20
	bands, labels := constScene(w, h, 1, 1)
	in, inSeg := writeScene(t, w, h, bands, labels)
	outDir := t.TempDir()
	p := DefaultParams(in, inSeg, filepath.Join(outDir, "segs.shp"))
	p.TileSizeX, p.TileSizeY = 5, 5
	p.TileTimeout = time.Nanosecond

	_, err := g.Vectorize(context.Background(), p)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
	var tileErr *TileError
	if !errors.As(err, &tileErr) {
		t.Fatalf("got %v, want tile error", err)
	}
	want := tiling.Tile{Col: 0, Row: 0, StartX: 0, StartY: 0, SizeX: 5, SizeY: 5}
	if diff := cmp.Diff(want, tileErr.Tile); diff != "" {
		t.Errorf("failed tile mismatch (-want +got):\n%s", diff)
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Errorf("output dir should stay empty, got %d entries", len(entries))
	}
}

func TestVectorizeTileErrorsAggregated(t *testing.T) {
	g := setup(t)
	const w, h = 30, 30
	bands, labels := constScene(w, h, 1, 1)
	in, inSeg := writeScene(t, w, h, bands, labels)
	outDir := t.TempDir()
	p := DefaultParams(in, inSeg, filepath.Join(outDir, "segs.gpkg"))
	p.TileSizeX, p.TileSizeY = 10, 10
	p.Workers = 3
	p.TileTimeout = time.Nanosecond

	_, err := g.Vectorize(context.Background(), p)
	errs := multierr.Errors(err)
	if len(errs) == 0 || len(errs) > p.Workers {
		t.Fatalf("got %d errors, want 1..%d: %v", len(errs), p.Workers, err)
	}
	seen := make(map[tiling.Tile]bool)
	for _, e := range errs {
		var tileErr *TileError
		if !errors.As(e, &tileErr) || !errors.Is(e, context.DeadlineExceeded) {
			t.Errorf("got %v, want timed out tile error", e)
			continue
		}
		tl := tileErr.Tile
		if tl.Col < 0 || tl.Col > 2 || tl.Row < 0 || tl.Row > 2 || tl.StartX != tl.Col*10 || tl.StartY != tl.Row*10 {
			t.Errorf("bad tile coordinates %s", tl)
		}
		if seen[tl] {
			t.Errorf("tile %s reported twice", tl)
		}
		seen[tl] = true
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Errorf("output dir should stay empty, got %d entries", len(entries))
	}
}

func TestTileFailures(t *testing.T) {
	t0 := tiling.Tile{Col: 0, Row: 0, SizeX: 4, SizeY: 4}
	t1 := tiling.Tile{Col: 1, Row: 0, StartX: 4, SizeX: 4, SizeY: 4}
	t2 := tiling.Tile{Col: 0, Row: 1, StartY: 4, SizeX: 4, SizeY: 4}
	err := tileFailures([]error{
		nil,
		&TileError{Tile: t0, Err: context.DeadlineExceeded},
		&TileError{Tile: t1, Err: context.Canceled},
		&TileError{Tile: t2, Err: ErrPolygonize},
	})
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), err)
	}
	var tileErr *TileError
	if !errors.As(errs[0], &tileErr) || tileErr.Tile != t0 {
		t.Errorf("first error %v, want tile %s", errs[0], t0)
	}
	if !errors.As(errs[1], &tileErr) || tileErr.Tile != t2 {
		t.Errorf("second error %v, want tile %s", errs[1], t2)
	}
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrGeometry) || errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error chain %v", err)
	}
	if !strings.Contains(errs[1].Error(), t2.String()) {
		t.Errorf("error %q lacks tile %s", errs[1], t2)
	}
	if err = tileFailures([]error{nil, &TileError{Tile: t1, Err: context.Canceled}}); err != nil {
		t.Errorf("canceled workers should not fail the run, got %v", err)
	}
}

func TestVectorizeLayerNameAndOptions(t *testing.T) {
	g := setup(t)
	bands, labels := constScene(12, 12, 4, 2)
	in, inSeg := writeScene(t, 12, 12, bands, labels)
	out := filepath.Join(t.TempDir(), "segs.gpkg")
	p := DefaultParams(in, inSeg, out)
	p.TileSizeX, p.TileSizeY = 5, 5
	p.LayerName = "segments"
	p.LayerOptions = []string{"FID=seg_id"}
	if _, err := g.Vectorize(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	ds, ok := gdal.OGRDriverByName(GPKG_DRIVER_NAME).Open(out, 0)
	if !ok {
		t.Fatalf("open %s failed", out)
	}
	if n := ds.LayerCount(); n != 1 {
		t.Errorf("got %d layers, want 1", n)
	}
	layer := ds.LayerByName("segments")
	if layer.Name() != "segments" || layer.FIDColumn() != "seg_id" {
		t.Errorf("got layer %q with fid column %q", layer.Name(), layer.FIDColumn())
	}
	ds.Destroy()

	got := readFeatures(t, out, GPKG_DRIVER_NAME, "segments", 1)
	want := []outFeature{{Label: 2, NbPixels: 144, Mean: []float64{4}, Var: []float64{0}, Area: 144}}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}
}

func TestVectorizeRejectsLabelsBeyondInt32(t *testing.T) {
	g := setup(t)
	const w, h = 6, 6
	dir := t.TempDir()
	bands, _ := constScene(w, h, 1, 0)
	in := filepath.Join(dir, "image.tif")
	inSeg := filepath.Join(dir, "labels.tif")
	writeImage(t, in, w, h, bands)

	labels := make([]uint32, w*h)
	labels[0] = 1
	labels[w*h-1] = math.MaxInt32 + 10
	ds, err := godal.Create(godal.GTiff, inSeg, 1, godal.UInt32, w, h)
	if err != nil {
		t.Fatal(err)
	}
	if err = ds.Bands()[0].IO(godal.IOWrite, 0, 0, labels, w, h); err != nil {
		t.Fatal(err)
	}
	if err = ds.Close(); err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	_, err = g.Vectorize(context.Background(), DefaultParams(in, inSeg, filepath.Join(outDir, "segs.shp")))
	if !errors.Is(err, ErrLabelRange) || !errors.Is(err, ErrDataIntegrity) {
		t.Errorf("got %v, want ErrLabelRange", err)
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 0 {
		t.Errorf("output dir should stay empty, got %d entries", len(entries))
	}
}
