package servers

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HTTPDoer allows tests to stub HTTP transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Refresher downloads the server configuration archive and replaces the
// extracted ovpn_udp/ and ovpn_tcp/ trees under the bundle directory.
type Refresher struct {
	bundleURL string
	bundleDir string
	timeout   time.Duration
	client    HTTPDoer
}

// NewRefresher creates a refresher. A nil doer uses a default client.
func NewRefresher(bundleURL, bundleDir string, timeout time.Duration, doer HTTPDoer) *Refresher {
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	return &Refresher{
		bundleURL: bundleURL,
		bundleDir: bundleDir,
		timeout:   timeout,
		client:    doer,
	}
}

// Refresh downloads and extracts a fresh bundle. The previous extracted
// trees are only removed once the new archive has been fully staged, so
// a failed refresh leaves the local tree untouched. The downloaded
// archive itself is always deleted.
func (r *Refresher) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	archivePath, err := r.download(ctx)
	if err != nil {
		return err
	}
	defer os.Remove(archivePath)

	stagingDir, err := os.MkdirTemp(filepath.Dir(r.bundleDir), ".bundle-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(stagingDir)

	if err := extractBundle(archivePath, stagingDir); err != nil {
		return fmt.Errorf("extract bundle: %w", err)
	}

	if err := os.MkdirAll(r.bundleDir, 0o755); err != nil {
		return err
	}
	for _, sub := range []string{udpDirName, tcpDirName} {
		staged := filepath.Join(stagingDir, sub)
		if _, err := os.Stat(staged); err != nil {
			return fmt.Errorf("bundle is missing %s: %w", sub, err)
		}
	}
	for _, sub := range []string{udpDirName, tcpDirName} {
		target := filepath.Join(r.bundleDir, sub)
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		if err := os.Rename(filepath.Join(stagingDir, sub), target); err != nil {
			return err
		}
	}
	return nil
}

func (r *Refresher) download(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.bundleURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bundle download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bundle download returned %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "ovpn-*.zip")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("bundle download failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// extractBundle unpacks the ovpn_udp/ and ovpn_tcp/ entries of the
// archive into destDir. Other entries are ignored.
func extractBundle(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, file := range reader.File {
		name := filepath.ToSlash(file.Name)
		if !strings.HasPrefix(name, udpDirName+"/") && !strings.HasPrefix(name, tcpDirName+"/") {
			continue
		}
		destPath := filepath.Join(destDir, filepath.FromSlash(name))
		// Guard against entries escaping the staging directory.
		if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes extraction directory", file.Name)
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		if err := extractFile(file, destPath); err != nil {
			return fmt.Errorf("extract %s: %w", file.Name, err)
		}
	}
	return nil
}

func extractFile(file *zip.File, destPath string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
