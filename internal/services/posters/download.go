// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package posters

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"

	"github.com/autobrr/archivarr/internal/models"
	"github.com/autobrr/archivarr/pkg/httphelpers"
)

const maxImageSize = 20 << 20

// download fetches url into filename below the poster directory and
// returns the local web path. An identical file already on disk is left
// untouched.
func (c *Cache) download(ctx context.Context, url, filename, kind string) (string, error) {
	body, err := c.fetch(ctx, url)
	if err != nil {
		c.metrics.IncPosterDownload(kind, "error")
		return "", err
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(body)); err != nil {
		c.metrics.IncPosterDownload(kind, "invalid")
		return "", errors.Wrapf(err, "%s is not a supported image", url)
	}

	dst := filepath.Join(c.dir, filename)
	local := models.LocalPosterPrefix + filename

	if existing, err := os.ReadFile(dst); err == nil && xxhash.Sum64(existing) == xxhash.Sum64(body) {
		c.metrics.IncPosterDownload(kind, "unchanged")
		return local, nil
	}

	if err := writeFileAtomic(dst, body); err != nil {
		c.metrics.IncPosterDownload(kind, "error")
		return "", err
	}

	c.metrics.IncPosterDownload(kind, "success")
	c.logger.Debug().Str("url", url).Str("file", dst).Int("bytes", len(body)).Msg("posters: image stored")
	return local, nil
}

func (c *Cache) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build image request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "could not download %s", url)
	}
	if err := httphelpers.CheckStatus("image host", resp); err != nil {
		return nil, err
	}
	defer httphelpers.DrainAndClose(resp)

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", url)
	}
	if n == 0 {
		return nil, errors.Errorf("empty image from %s", url)
	}
	if n > maxImageSize {
		return nil, errors.Errorf("image from %s exceeds %d bytes", url, maxImageSize)
	}
	return buf.Bytes(), nil
}

func writeFileAtomic(dst string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "could not create temp image file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "could not write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "could not close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return errors.Wrapf(err, "could not move image into place at %s", dst)
	}
	return nil
}
