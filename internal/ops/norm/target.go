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

// Package norm holds operators which normalize stain colors against a target image,
// and operators which report on the stains of an image.
package norm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/ops"
)

// Fits a normalizer to a target image exactly once, on first use, so that
// concurrent promises share a single fit
type fitState struct {
	once sync.Once
	err  error
}

// Loads the target image from the given file, or returns the in-memory image if set
func loadTarget(fileName string, image *img.Image, c *ops.Context) (*img.Image, error) {
	if image != nil {
		return image, nil
	}
	if fileName == "" {
		return nil, errors.New("no target image given")
	}
	if !ops.IsPathAllowed(fileName) {
		return nil, errors.New(fmt.Sprintf("Target %s outside current directory tree, aborting", fileName))
	}
	t, err := img.NewImageFromFile(fileName, -1)
	if err != nil {
		return nil, errors.New(fmt.Sprintf("Error reading target %s: %s", fileName, err.Error()))
	}
	fmt.Fprintf(c.Log, "Loaded %s pixel target image from %s\n", t.DimensionsToString(), fileName)
	return t, nil
}

// Runs fn on the first call, and returns its outcome on all calls
func (s *fitState) do(fn func() error) error {
	s.once.Do(func() { s.err = fn() })
	return s.err
}
