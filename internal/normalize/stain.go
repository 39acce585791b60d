// Copyright (C) 2021 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package normalize maps the colors of source images onto those of a target image,
// either by stain separation or by Lab color statistics.
package normalize

import (
	"fmt"
	"math"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/od"
	"github.com/mlnoga/stainlight/internal/qsort"
	"github.com/mlnoga/stainlight/internal/stain"
	"github.com/mlnoga/stainlight/internal/tissue"
	"gonum.org/v1/gonum/mat"
)

// Fits to a target image, then transforms source images to look like it
type Normalizer interface {
	Fit(target *img.Image) error
	Transform(source *img.Image) (*img.Image, error)
}

// Percentile of the concentrations which is matched between source and target
const MaxConcentrationPercentile = 99

// Stain normalizer settings
type Config struct {
	Method                stain.Method `json:"method"                yaml:"method"`
	stain.Options         `yaml:",inline"`
	LassoRegularizer      float64 `json:"lassoRegularizer"      yaml:"lassoRegularizer"`
	StandardizeBrightness bool    `json:"standardizeBrightness" yaml:"standardizeBrightness"`
	BrightnessPercentile  float64 `json:"brightnessPercentile"  yaml:"brightnessPercentile"`
}

func DefaultConfig() Config {
	return Config{
		Method:                stain.MethodEigen,
		Options:               stain.DefaultOptions(),
		LassoRegularizer:      stain.DefaultLassoRegularizer,
		StandardizeBrightness: false,
		BrightnessPercentile:  tissue.DefaultBrightnessPercentile,
	}
}

// Normalizes images by separating them into stain concentrations, rescaling each
// stain's 99th percentile concentration to that of the target, and recombining
// with the target's stain matrix. Transform only reads state after Fit
type StainNormalizer struct {
	cfg       Config
	extractor stain.Extractor

	stainsTarget *mat.Dense
	maxCTarget   []float64
}

func NewStainNormalizer(cfg Config) (*StainNormalizer, error) {
	ex, err := stain.NewExtractor(cfg.Method, cfg.Options)
	if err != nil {
		return nil, err
	}
	return &StainNormalizer{cfg: cfg, extractor: ex}, nil
}

func (n *StainNormalizer) Config() Config {
	return n.cfg
}

func (n *StainNormalizer) Fitted() bool {
	return n.stainsTarget != nil
}

func (n *StainNormalizer) Fit(target *img.Image) error {
	target, err := n.prepare(target)
	if err != nil {
		return err
	}
	stains, conc, err := n.decompose(target)
	if err != nil {
		return fmt.Errorf("fitting target: %w", err)
	}
	n.stainsTarget, n.maxCTarget = stains, maxConcentrations(conc)
	return nil
}

func (n *StainNormalizer) Transform(source *img.Image) (*img.Image, error) {
	if !n.Fitted() {
		return nil, stain.ErrNotFitted
	}
	source, err := n.prepare(source)
	if err != nil {
		return nil, err
	}
	_, conc, err := n.decompose(source)
	if err != nil {
		return nil, err
	}

	rows, s := conc.Dims()
	ts, _ := n.stainsTarget.Dims()
	if s != ts {
		return nil, fmt.Errorf("source has %d stains, target %d", s, ts)
	}
	maxCSource := maxConcentrations(conc)
	scale := make([]float64, s)
	for k := range scale {
		scale[k] = 1
		if maxCSource[k] != 0 {
			scale[k] = n.maxCTarget[k] / maxCSource[k]
		}
	}
	for i := 0; i < rows; i++ {
		row := conc.RawRowView(i)
		for k := range row {
			row[k] *= scale[k]
		}
	}

	res := od.Reconstruct(conc, n.stainsTarget, source.Width, source.Height)
	res.ID, res.FileName = source.ID, source.FileName
	return res, nil
}

// Returns the Hematoxylin channel of an image as exp(-concentration), one value
// in [0,1] per pixel, row major. Uses the image's own stain matrix, no Fit required
func (n *StainNormalizer) Hematoxylin(im *img.Image) ([]float64, error) {
	im, err := n.prepare(im)
	if err != nil {
		return nil, err
	}
	_, conc, err := n.decompose(im)
	if err != nil {
		return nil, err
	}
	rows, _ := conc.Dims()
	res := make([]float64, rows)
	for i := range res {
		res[i] = math.Exp(-conc.At(i, 0))
	}
	return res, nil
}

// Returns a copy of the fitted target stain matrix
func (n *StainNormalizer) TargetStains() (*mat.Dense, error) {
	if !n.Fitted() {
		return nil, stain.ErrNotFitted
	}
	return mat.DenseCopyOf(n.stainsTarget), nil
}

// Renders the target stains as an S x 1 image, one pixel per stain.
// Negative densities saturate to white
func (n *StainNormalizer) TargetStainsRGB() (*img.Image, error) {
	s, err := n.TargetStains()
	if err != nil {
		return nil, err
	}
	return StainsToRGB(s), nil
}

// Renders a stain matrix as an S x 1 image, one pixel per stain at unit concentration
func StainsToRGB(stains mat.Matrix) *img.Image {
	s, _ := stains.Dims()
	ident := mat.NewDiagDense(s, nil)
	for k := 0; k < s; k++ {
		ident.SetDiag(k, 1)
	}
	return od.Reconstruct(ident, stains, s, 1)
}

func (n *StainNormalizer) prepare(im *img.Image) (*img.Image, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	if !n.cfg.StandardizeBrightness {
		return im, nil
	}
	return tissue.StandardizeBrightness(im, n.cfg.BrightnessPercentile)
}

func (n *StainNormalizer) decompose(im *img.Image) (*mat.Dense, *mat.Dense, error) {
	stains, err := n.extractor.StainMatrix(im)
	if err != nil {
		return nil, nil, err
	}
	conc, err := stain.GetConcentrations(im, stains, n.cfg.LassoRegularizer)
	if err != nil {
		return nil, nil, err
	}
	return stains, conc, nil
}

// Returns the 99th percentile of each concentration column
func maxConcentrations(conc *mat.Dense) []float64 {
	rows, s := conc.Dims()
	res := make([]float64, s)
	col := make([]float64, rows)
	for k := range res {
		mat.Col(col, k, conc)
		res[k] = qsort.Percentile(col, MaxConcentrationPercentile)
	}
	return res
}
