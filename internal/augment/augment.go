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

// Package augment generates randomly stain-perturbed variants of an image after
// Tellez et al., Whole-Slide Mitosis Detection in H&E Breast Histology Using PHH3
// as a Reference to Train Distilled Stain-Invariant Convolutional Networks, 2018.
package augment

import (
	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/od"
	"github.com/mlnoga/stainlight/internal/stain"
	"github.com/mlnoga/stainlight/internal/tissue"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/mat"
)

// Source of uniformly distributed 32-bit random numbers. Satisfied by *fastrand.RNG
type RandSource interface {
	Uint32() uint32
}

// Augmentor settings
type Config struct {
	Method                stain.Method `json:"method"                yaml:"method"`
	stain.Options         `yaml:",inline"`
	LassoRegularizer      float64 `json:"lassoRegularizer"      yaml:"lassoRegularizer"`
	Sigma1                float64 `json:"sigma1"                yaml:"sigma1"`            // multiplicative noise bound
	Sigma2                float64 `json:"sigma2"                yaml:"sigma2"`            // additive noise bound
	AugmentBackground     bool    `json:"augmentBackground"     yaml:"augmentBackground"` // perturb non-tissue pixels too
	StandardizeBrightness bool    `json:"standardizeBrightness" yaml:"standardizeBrightness"`
	BrightnessPercentile  float64 `json:"brightnessPercentile"  yaml:"brightnessPercentile"`
}

const (
	DefaultSigma1 = 0.2
	DefaultSigma2 = 0.2
)

func DefaultConfig() Config {
	return Config{
		Method:                stain.MethodFixed,
		Options:               stain.DefaultOptions(),
		LassoRegularizer:      stain.DefaultLassoRegularizer,
		Sigma1:                DefaultSigma1,
		Sigma2:                DefaultSigma2,
		AugmentBackground:     false,
		StandardizeBrightness: false,
		BrightnessPercentile:  tissue.DefaultBrightnessPercentile,
	}
}

// Stain augmentor. After Fit, each Pop independently perturbs the fitted
// concentrations and recombines them with the fitted stain matrix.
// Not safe for concurrent use, as Pop advances the random source
type Augmentor struct {
	cfg       Config
	extractor stain.Extractor
	rng       RandSource

	width, height int
	stains        *mat.Dense
	conc          *mat.Dense
	mask          []bool
}

// Creates an augmentor drawing from the given random source. A nil source
// selects an unseeded fastrand generator
func NewAugmentor(cfg Config, rng RandSource) (*Augmentor, error) {
	ex, err := stain.NewExtractor(cfg.Method, cfg.Options)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = &fastrand.RNG{}
	}
	return &Augmentor{cfg: cfg, extractor: ex, rng: rng}, nil
}

func (a *Augmentor) Config() Config {
	return a.cfg
}

func (a *Augmentor) Fitted() bool {
	return a.conc != nil
}

// Extracts stain matrix, concentrations and tissue mask of the image.
// Fails with tissue.ErrEmptyTissueMask if the image holds no tissue
func (a *Augmentor) Fit(im *img.Image) error {
	if err := im.Validate(); err != nil {
		return err
	}
	if a.cfg.StandardizeBrightness {
		var err error
		if im, err = tissue.StandardizeBrightness(im, a.cfg.BrightnessPercentile); err != nil {
			return err
		}
	}
	mask, err := tissue.Mask(im, a.cfg.LuminosityThreshold)
	if err != nil {
		return err
	}
	stains, err := a.extractor.StainMatrix(im)
	if err != nil {
		return err
	}
	conc, err := stain.GetConcentrations(im, stains, a.cfg.LassoRegularizer)
	if err != nil {
		return err
	}
	a.width, a.height = im.Width, im.Height
	a.stains, a.conc, a.mask = stains, conc, mask
	return nil
}

// Returns a new augmented image. Each call draws fresh perturbation parameters
// and starts from the fitted concentrations
func (a *Augmentor) Pop() (*img.Image, error) {
	if !a.Fitted() {
		return nil, stain.ErrNotFitted
	}
	conc := mat.DenseCopyOf(a.conc)
	rows, s := conc.Dims()
	for k := 0; k < s; k++ {
		alpha := a.uniform(1-a.cfg.Sigma1, 1+a.cfg.Sigma1)
		beta := a.uniform(-a.cfg.Sigma2, a.cfg.Sigma2)
		for i := 0; i < rows; i++ {
			if a.cfg.AugmentBackground || a.mask[i] {
				conc.Set(i, k, conc.At(i, k)*alpha+beta)
			}
		}
	}
	return od.Reconstruct(conc, a.stains, a.width, a.height), nil
}

// Returns a new augmented image together with the stain matrix extracted from it
func (a *Augmentor) PopWithStains() (*img.Image, *mat.Dense, error) {
	im, err := a.Pop()
	if err != nil {
		return nil, nil, err
	}
	stains, err := a.extractor.StainMatrix(im)
	if err != nil {
		return nil, nil, err
	}
	return im, stains, nil
}

// Returns a copy of the fitted stain matrix
func (a *Augmentor) StainMatrix() (*mat.Dense, error) {
	if !a.Fitted() {
		return nil, stain.ErrNotFitted
	}
	return mat.DenseCopyOf(a.stains), nil
}

// Draws from the uniform distribution on [lo,hi)
func (a *Augmentor) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*float64(a.rng.Uint32())/(1<<32)
}
