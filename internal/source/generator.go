package source

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rickgao/motionfeed/internal/model"
)

// Series names produced by the Generator.
const (
	SeriesMeanDisplacement = "Mean Displacement"
	SeriesScanDisplacement = "Scan Displacement"
	SeriesRotation         = "Rotation"
)

// HeadRadius is the radius in mm of the idealized spherical head used for
// RMS displacement.
const HeadRadius = 80.0

// GeneratorConfig controls the synthetic scan.
type GeneratorConfig struct {
	TR          time.Duration // Time between volumes
	Volumes     int           // Volumes to emit before going silent
	SkipVolumes int           // Leading volumes with no estimate (steady state)
	Drift       float64       // Random-walk step, mm per volume
	Seed        uint64
}

// DefaultGeneratorConfig returns a two-minute scan at TR = 2s.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		TR:          2 * time.Second,
		Volumes:     60,
		SkipVolumes: 4,
		Drift:       0.05,
		Seed:        1,
	}
}

// Rigid is a rigid-body head position: translations in mm, rotations in
// radians about x, y, z.
type Rigid struct {
	Trans [3]float64
	Rot   [3]float64
}

// Generator appends synthetic motion estimates to a Store.
type Generator struct {
	cfg    GeneratorConfig
	store  *Store
	logger *slog.Logger
	rng    *rand.Rand

	ref    Rigid
	prev   Rigid
	volume int
}

// NewGenerator creates a Generator and registers its series in store.
func NewGenerator(cfg GeneratorConfig, store *Store, logger *slog.Logger) (*Generator, error) {
	if cfg.TR <= 0 {
		return nil, errors.New("generator: tr must be > 0")
	}
	if cfg.Volumes < 0 || cfg.SkipVolumes < 0 {
		return nil, errors.New("generator: volumes must be >= 0")
	}
	if logger == nil {
		logger = slog.Default()
	}

	store.Register(SeriesMeanDisplacement, "#c05020")
	store.Register(SeriesScanDisplacement, "#30c020")
	store.Register(SeriesRotation, "#6060c0")

	return &Generator{
		cfg:    cfg,
		store:  store,
		logger: logger,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Run emits one volume per TR until all volumes are out or ctx is done.
func (g *Generator) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.TR)
	defer ticker.Stop()

	g.logger.Info("synthetic scan started",
		"tr", g.cfg.TR,
		"volumes", g.cfg.Volumes,
	)

	for g.volume < g.cfg.Volumes {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.Step(); err != nil {
				return err
			}
		}
	}

	g.logger.Info("synthetic scan finished", "volumes", g.volume)
	return nil
}

// Step acquires one volume. Volumes inside the skip window only move the
// head; the first volume after it becomes the reference.
func (g *Generator) Step() error {
	g.volume++
	pos := g.walk(g.prev)
	defer func() { g.prev = pos }()

	if g.volume <= g.cfg.SkipVolumes {
		return nil
	}
	if g.volume == g.cfg.SkipVolumes+1 {
		g.ref = pos
	}

	x := float64(g.volume) * g.cfg.TR.Seconds()
	toRef := Relative(g.ref, pos)
	toPrev := Relative(g.prev, pos)

	if err := g.store.Append(SeriesMeanDisplacement, model.Point{X: x, Y: RMSDisplacement(toRef, HeadRadius)}); err != nil {
		return err
	}
	if err := g.store.Append(SeriesScanDisplacement, model.Point{X: x, Y: RMSDisplacement(toPrev, HeadRadius)}); err != nil {
		return err
	}
	return g.store.Append(SeriesRotation, model.Point{X: x, Y: MaxRotationDegrees(toRef)})
}

// walk moves the head by a small random step.
func (g *Generator) walk(from Rigid) Rigid {
	next := from
	for i := range 3 {
		next.Trans[i] += g.rng.NormFloat64() * g.cfg.Drift
		// Scaled so a step moves the head surface by about Drift mm.
		next.Rot[i] += g.rng.NormFloat64() * g.cfg.Drift / HeadRadius
	}
	return next
}

// Relative returns the motion from a to b, to first order in the rotation.
func Relative(a, b Rigid) Rigid {
	var r Rigid
	for i := range 3 {
		r.Trans[i] = b.Trans[i] - a.Trans[i]
		r.Rot[i] = b.Rot[i] - a.Rot[i]
	}
	return r
}

// RMSDisplacement is the root-mean-squared displacement of points in a
// sphere of the given radius under motion m:
//
//	rms = sqrt(R^2/5 * trace(A'A) + t't)
//
// where A is the rotation matrix minus the identity and t the translation.
func RMSDisplacement(m Rigid, radius float64) float64 {
	a := rotation(m.Rot)
	for i := range 3 {
		a[i][i] -= 1
	}

	var trace float64
	for i := range 3 {
		for j := range 3 {
			trace += a[i][j] * a[i][j]
		}
	}

	var tt float64
	for _, v := range m.Trans {
		tt += v * v
	}

	return math.Sqrt(radius*radius/5*trace + tt)
}

// MaxRotationDegrees returns the largest absolute rotation angle in degrees.
func MaxRotationDegrees(m Rigid) float64 {
	var max float64
	for _, r := range m.Rot {
		max = math.Max(max, math.Abs(r))
	}
	return max * 180 / math.Pi
}

// rotation builds Rz * Ry * Rx.
func rotation(rot [3]float64) [3][3]float64 {
	sx, cx := math.Sincos(rot[0])
	sy, cy := math.Sincos(rot[1])
	sz, cz := math.Sincos(rot[2])

	return [3][3]float64{
		{cz * cy, cz*sy*sx - sz*cx, cz*sy*cx + sz*sx},
		{sz * cy, sz*sy*sx + cz*cx, sz*sy*cx - cz*sx},
		{-sy, cy * sx, cy * cx},
	}
}
