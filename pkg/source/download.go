package source

import (
	"context"
	"io"
	"os"

	"github.com/dustin/go-humanize"
)

// Download streams the archive at url into dest, creating or truncating it.
// A partial file is removed on failure. Returns the number of bytes written.
func (c *Client) Download(ctx context.Context, url, dest string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.DownloadTimeout)
	defer cancel()

	var n int64
	err := c.withRetry(ctx, func(ctx context.Context) error {
		resp, err := c.do(ctx, StageArchive, url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		f, err := os.Create(dest)
		if err != nil {
			return &FetchError{Stage: StageArchive, URL: url, Kind: ErrRemoteUnreachable, Err: err}
		}

		n, err = io.Copy(f, resp.Body)
		closeErr := f.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(dest)
			return &FetchError{Stage: StageArchive, URL: url, Kind: ErrRemoteUnreachable, Err: err}
		}
		return nil
	})

	c.metrics.ObserveFetch(string(StageArchive), err)
	if err != nil {
		return 0, err
	}

	c.metrics.AddArchiveBytes(n)
	c.logger.Info("downloaded archive", "url", url, "size", humanize.Bytes(uint64(n)))
	return n, nil
}
