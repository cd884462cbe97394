package mask

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/mapwarper-cli/internal/catalog"
	"github.com/sells-group/mapwarper-cli/internal/fetcher"
	"github.com/sells-group/mapwarper-cli/internal/model"
)

// Default catalog paths, relative to the catalog root. {id} is replaced with
// the map id.
const (
	DefaultMaskURLTemplate = "shared/masks/{id}.gml.ol"
	DefaultGCPsURLTemplate = "maps/{id}/gcps.json"
)

// runFunc runs name with args, feeding stdin, and returns stdout.
type runFunc func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

// GDALOptions configures a GDAL resolver.
type GDALOptions struct {
	// BinPath is the gdaltransform executable. Defaults to "gdaltransform".
	BinPath string

	MaskURLTemplate string
	GCPsURLTemplate string
}

// GDAL resolves masks by fetching the mask GML and GCPs from the catalog and
// transforming pixel coordinates with gdaltransform.
type GDAL struct {
	fetcher  fetcher.Fetcher
	urls     catalog.URLs
	binPath  string
	maskTmpl string
	gcpsTmpl string
	run      runFunc
}

// NewGDAL creates a GDAL resolver.
func NewGDAL(f fetcher.Fetcher, urls catalog.URLs, opts GDALOptions) *GDAL {
	g := &GDAL{
		fetcher:  f,
		urls:     urls,
		binPath:  opts.BinPath,
		maskTmpl: opts.MaskURLTemplate,
		gcpsTmpl: opts.GCPsURLTemplate,
		run:      execRun,
	}
	if g.binPath == "" {
		g.binPath = "gdaltransform"
	}
	if g.maskTmpl == "" {
		g.maskTmpl = DefaultMaskURLTemplate
	}
	if g.gcpsTmpl == "" {
		g.gcpsTmpl = DefaultGCPsURLTemplate
	}
	return g
}

// Probe runs gdaltransform --version.
func (g *GDAL) Probe(ctx context.Context) error {
	out, err := g.run(ctx, nil, g.binPath, "--version")
	if err != nil {
		return eris.Wrapf(ErrToolchainMissing, "%s: %v", g.binPath, err)
	}
	zap.L().Debug("gdaltransform available",
		zap.String("component", "mask"),
		zap.String("version", strings.TrimSpace(string(out))),
	)
	return nil
}

// Resolve fetches the map's mask and GCPs and returns the mask as a closed
// lon/lat polygon. A mask document with several rings becomes a MultiPolygon.
func (g *GDAL) Resolve(ctx context.Context, mapID int64, transform string) (Result, error) {
	maskDoc, err := g.fetcher.Fetch(ctx, g.url(g.maskTmpl, mapID))
	if err != nil {
		return Result{}, eris.Wrapf(err, "mask: fetch mask for map %d", mapID)
	}
	rings, err := ParseGML(maskDoc)
	if err != nil {
		return Result{}, eris.Wrapf(err, "mask: map %d", mapID)
	}

	gcpsDoc, err := g.fetcher.Fetch(ctx, g.url(g.gcpsTmpl, mapID))
	if err != nil {
		return Result{}, eris.Wrapf(err, "mask: fetch gcps for map %d", mapID)
	}
	gcps, err := ParseGCPs(gcpsDoc)
	if err != nil {
		return Result{}, eris.Wrapf(err, "mask: map %d", mapID)
	}
	if len(gcps) == 0 {
		return Result{}, eris.Errorf("mask: map %d has no gcps", mapID)
	}

	args, err := transformArgs(gcps, transform)
	if err != nil {
		return Result{}, eris.Wrapf(err, "mask: map %d", mapID)
	}

	polygons := make([][][]geom.Coord, 0, len(rings))
	for _, ring := range rings {
		out, err := g.transformRing(ctx, ring, args)
		if err != nil {
			return Result{}, eris.Wrapf(err, "mask: map %d", mapID)
		}
		polygons = append(polygons, [][]geom.Coord{closeRing(out)})
	}

	res := Result{GCPs: gcps}
	if len(polygons) == 1 {
		p, err := geom.NewPolygon(geom.XY).SetCoords(polygons[0])
		if err != nil {
			return Result{}, eris.Wrapf(err, "mask: map %d", mapID)
		}
		res.Geometry = p
	} else {
		mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(polygons)
		if err != nil {
			return Result{}, eris.Wrapf(err, "mask: map %d", mapID)
		}
		res.Geometry = mp
	}
	return res, nil
}

func (g *GDAL) url(tmpl string, mapID int64) string {
	return g.urls.Resolve(strings.ReplaceAll(tmpl, "{id}", strconv.FormatInt(mapID, 10)))
}

func (g *GDAL) transformRing(ctx context.Context, ring []geom.Coord, args []string) ([]geom.Coord, error) {
	var stdin bytes.Buffer
	for _, c := range ring {
		fmt.Fprintf(&stdin, "%s %s\n", formatFloat(c.X()), formatFloat(c.Y()))
	}

	out, err := g.run(ctx, stdin.Bytes(), g.binPath, args...)
	if err != nil {
		return nil, err
	}

	var coords []geom.Coord
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, eris.Errorf("gdaltransform: unexpected output %q", sc.Text())
		}
		lon, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "gdaltransform: unexpected output %q", sc.Text())
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "gdaltransform: unexpected output %q", sc.Text())
		}
		coords = append(coords, geom.Coord{lon, lat})
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "gdaltransform: read output")
	}
	if len(coords) != len(ring) {
		return nil, eris.Errorf("gdaltransform: got %d points for %d inputs", len(coords), len(ring))
	}
	return coords, nil
}

// transformArgs builds the gdaltransform argument list for the GCPs and the
// map's transform option.
func transformArgs(gcps []model.GCP, transform string) ([]string, error) {
	args := make([]string, 0, len(gcps)*5+2)
	for _, p := range gcps {
		args = append(args, "-gcp",
			formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Lon), formatFloat(p.Lat))
	}

	switch strings.ToLower(strings.TrimSpace(transform)) {
	case "", "auto":
	case "p1":
		args = append(args, "-order", "1")
	case "p2":
		args = append(args, "-order", "2")
	case "p3":
		args = append(args, "-order", "3")
	case "tps":
		args = append(args, "-tps")
	default:
		return nil, eris.Errorf("unknown transform %q", transform)
	}
	return args, nil
}

func closeRing(ring []geom.Coord) []geom.Coord {
	if len(ring) == 0 {
		return ring
	}
	first, last := ring[0], ring[len(ring)-1]
	if first.X() == last.X() && first.Y() == last.Y() {
		return ring
	}
	return append(ring, geom.Coord{first.X(), first.Y()})
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func execRun(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "%s failed: %s", name, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
