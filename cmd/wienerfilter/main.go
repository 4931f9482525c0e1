// Command wienerfilter applies Wiener loop restoration to a raw sample plane.
//
// Input and output are headerless raster planes: one byte per sample at bit
// depth 8, two little-endian bytes per sample otherwise.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kulaginds/wiener-restore/internal/codec/restoration"
	"github.com/kulaginds/wiener-restore/internal/codec/wiener"
	"github.com/kulaginds/wiener-restore/internal/config"
	"github.com/kulaginds/wiener-restore/internal/logging"
)

var errUsage = errors.New("usage")

type options struct {
	in, out       string
	width, height int
	bitDepth      int
	unitSize      int
	workers       int
	preset        string
	taps          string
	configFile    string
	logLevel      string
	checkTaps     bool
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			logging.Error("%v", err)
		}
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("wienerfilter", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.in, "in", "", "input plane file")
	fs.StringVar(&o.out, "out", "", "output plane file")
	fs.IntVar(&o.width, "width", 0, "plane width in samples")
	fs.IntVar(&o.height, "height", 0, "plane height in samples")
	fs.IntVar(&o.bitDepth, "bitdepth", 0, "sample bit depth (default from config)")
	fs.IntVar(&o.unitSize, "unit", 0, "restoration unit size (default from config)")
	fs.IntVar(&o.workers, "workers", -1, "concurrent units (default from config)")
	fs.StringVar(&o.preset, "preset", "", "named kernel preset from the config file")
	fs.StringVar(&o.taps, "taps", "", "explicit taps as h0,h1,h2:v0,v1,v2")
	fs.StringVar(&o.configFile, "config", "", "YAML configuration file")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.BoolVar(&o.checkTaps, "check-taps", true, "reject taps outside the codec bounds")

	if err := fs.Parse(args); err != nil {
		return o, errUsage
	}
	if o.in == "" || o.out == "" || o.width <= 0 || o.height <= 0 {
		fs.Usage()
		return o, errUsage
	}
	if (o.preset == "") == (o.taps == "") {
		fmt.Fprintln(out, "exactly one of -preset and -taps is required")
		return o, errUsage
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, err := parseFlags(args, stdout)
	if err != nil {
		return err
	}

	cfg, err := config.LoadWithOverrides(config.LoadOptions{
		LogLevel:   o.logLevel,
		ConfigFile: o.configFile,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err = logging.Configure(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Caller: cfg.Logging.EnableCaller,
	}); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	bd := cfg.Filter.BitDepth
	if o.bitDepth != 0 {
		bd = o.bitDepth
	}
	if bd < wiener.MinBitDepth || bd > wiener.MaxBitDepth {
		return fmt.Errorf("%w: %d", wiener.ErrBitDepth, bd)
	}
	unitSize := cfg.Filter.UnitSize
	if o.unitSize != 0 {
		unitSize = o.unitSize
	}
	workers := cfg.Filter.Workers
	if o.workers >= 0 {
		workers = o.workers
	}

	var preset config.Preset
	if o.preset != "" {
		var ok bool
		if preset, ok = cfg.Preset(o.preset); !ok {
			return fmt.Errorf("unknown preset %q", o.preset)
		}
	} else if preset, err = parseTaps(o.taps); err != nil {
		return err
	}
	x, y := preset.Kernels()

	bounds := image.Rect(0, 0, o.width, o.height)
	src, err := readPlane(o.in, bounds, bd)
	if err != nil {
		return err
	}

	g, err := restoration.NewGrid(bounds, unitSize)
	if err != nil {
		return err
	}
	units := make([]restoration.UnitInfo, g.Len())
	for i := range units {
		units[i] = restoration.UnitInfo{Type: restoration.TypeWiener, X: x, Y: y}
	}

	dst := wiener.NewPlane(bounds)
	st, err := restoration.Filter(ctx, dst, src, g, units, restoration.Options{
		BitDepth:  bd,
		Workers:   workers,
		CheckTaps: o.checkTaps,
	})
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	if err = writePlane(o.out, dst, bd); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%dx%d bd=%d: %d units, %d blocks in %s\n",
		o.width, o.height, bd, st.Units, st.Blocks, st.Duration)
	return nil
}

// parseTaps reads "h0,h1,h2:v0,v1,v2". A single triple is used for both
// directions.
func parseTaps(s string) (config.Preset, error) {
	var p config.Preset
	parts := strings.Split(s, ":")
	if len(parts) > 2 {
		return p, fmt.Errorf("taps %q: want h0,h1,h2:v0,v1,v2", s)
	}
	var err error
	if p.Horizontal, err = parseTriple(parts[0]); err != nil {
		return p, err
	}
	p.Vertical = p.Horizontal
	if len(parts) == 2 {
		if p.Vertical, err = parseTriple(parts[1]); err != nil {
			return p, err
		}
	}
	return p, nil
}

func parseTriple(s string) ([3]int16, error) {
	var t [3]int16
	fields := strings.Split(s, ",")
	if len(fields) != len(t) {
		return t, fmt.Errorf("taps %q: want three values", s)
	}
	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 16)
		if err != nil {
			return t, fmt.Errorf("taps %q: %w", s, err)
		}
		t[i] = int16(v)
	}
	return t, nil
}

func sampleBytes(bd int) int {
	if bd == 8 {
		return 1
	}
	return 2
}

func readPlane(path string, bounds image.Rectangle, bd int) (*wiener.Plane, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plane: %w", err)
	}
	p := wiener.NewPlane(bounds)
	n := sampleBytes(bd)
	if len(data) != len(p.Pix)*n {
		return nil, fmt.Errorf("read plane: %s has %d bytes, want %d", path, len(data), len(p.Pix)*n)
	}

	limit := uint16(1<<bd - 1)
	for i := range p.Pix {
		var v uint16
		if n == 1 {
			v = uint16(data[i])
		} else {
			v = binary.LittleEndian.Uint16(data[2*i:])
		}
		if v > limit {
			return nil, fmt.Errorf("read plane: sample %d is %d, above %d-bit range", i, v, bd)
		}
		p.Pix[i] = v
	}
	return p, nil
}

func writePlane(path string, p *wiener.Plane, bd int) error {
	n := sampleBytes(bd)
	data := make([]byte, len(p.Pix)*n)
	for i, v := range p.Pix {
		if n == 1 {
			data[i] = byte(v)
		} else {
			binary.LittleEndian.PutUint16(data[2*i:], v)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write plane: %w", err)
	}
	return nil
}
