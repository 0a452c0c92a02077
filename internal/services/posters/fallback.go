// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package posters

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var fallbackColor = color.Gray{Y: 0x55}

// ensureFallback writes the placeholder poster the first time it is needed.
func (c *Cache) ensureFallback() error {
	c.fallbackMu.Lock()
	defer c.fallbackMu.Unlock()

	dst := filepath.Join(c.dir, FallbackFilename)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}

	data, err := fallbackImage()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(dst, data); err != nil {
		return errors.Wrap(err, "could not write fallback poster")
	}
	c.logger.Info().Str("file", dst).Msg("posters: fallback image created")
	return nil
}

// fallbackImage renders a plain grey 2:3 poster.
func fallbackImage() ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, 200, 300))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: fallbackColor}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 60}); err != nil {
		return nil, errors.Wrap(err, "could not encode fallback poster")
	}
	return buf.Bytes(), nil
}
