package export

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// Format selects the archive container.
type Format string

const (
	FormatZip   Format = "zip"
	FormatTarGz Format = "tar.gz"
)

// EncryptedExt is appended to password-protected archives.
const EncryptedExt = ".enc"

// Ext returns the file extension including the leading dot.
func (f Format) Ext() string {
	if f == FormatTarGz {
		return ".tar.gz"
	}
	return ".zip"
}

// ParseFormat accepts "zip", "tar.gz" and "tgz"; empty means zip.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zip":
		return FormatZip, nil
	case "tar.gz", "tgz":
		return FormatTarGz, nil
	default:
		return "", fmt.Errorf("unknown archive format %q", s)
	}
}

// formatOf infers the container from an archive path.
func formatOf(path string) Format {
	lower := strings.TrimSuffix(strings.ToLower(path), EncryptedExt)
	if strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz") {
		return FormatTarGz
	}
	return FormatZip
}

// writeArchive compresses every file and directory under srcDir into
// target. Entry names are relative to srcDir.
func writeArchive(fs afero.Fs, srcDir, target string, format Format) error {
	out, err := fs.Create(target)
	if err != nil {
		return err
	}

	if format == FormatTarGz {
		err = writeTarGz(fs, srcDir, out)
	} else {
		err = writeZip(fs, srcDir, out)
	}

	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}

func writeZip(fs afero.Fs, srcDir string, w io.Writer) error {
	zw := zip.NewWriter(w)

	err := walkRelative(fs, srcDir, func(path, name string, fi os.FileInfo) error {
		if fi.IsDir() {
			hdr := &zip.FileHeader{Name: name + "/", Method: zip.Store, Modified: fi.ModTime()}
			hdr.SetMode(fi.Mode())
			_, err := zw.CreateHeader(hdr)
			return err
		}

		hdr, err := zip.FileInfoHeader(fi)
		if err != nil {
			return err
		}
		hdr.Name = name
		hdr.Method = zip.Deflate

		dst, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		return copyFrom(fs, path, dst)
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func writeTarGz(fs afero.Fs, srcDir string, w io.Writer) error {
	gzw := gzip.NewWriter(w)
	tw := tar.NewWriter(gzw)

	err := walkRelative(fs, srcDir, func(path, name string, fi os.FileInfo) error {
		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if fi.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		return copyFrom(fs, path, tw)
	})
	if err != nil {
		tw.Close()
		gzw.Close()
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gzw.Close()
}

// walkRelative visits everything below root in lexical order, skipping
// root itself. name is the slash-separated path relative to root.
func walkRelative(fs afero.Fs, root string, fn func(path, name string, fi os.FileInfo) error) error {
	return afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		return fn(path, filepath.ToSlash(rel), fi)
	})
}

func copyFrom(fs afero.Fs, path string, dst io.Writer) error {
	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(dst, f)
	return err
}

// extractArchive unpacks archivePath into targetDir, rejecting entries
// that would land outside it.
func extractArchive(fs afero.Fs, archivePath, targetDir string) error {
	if formatOf(archivePath) == FormatTarGz {
		return extractTarGz(fs, archivePath, targetDir)
	}
	return extractZip(fs, archivePath, targetDir)
}

func extractZip(fs afero.Fs, archivePath, targetDir string) error {
	f, err := fs.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return err
	}

	for _, zf := range zr.File {
		target, err := safeJoin(targetDir, zf.Name)
		if err != nil {
			return err
		}

		if zf.FileInfo().IsDir() {
			if err := fs.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return err
		}
		err = writeEntry(fs, target, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarGz(fs afero.Fs, archivePath, targetDir string) error {
	f, err := fs.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(targetDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := fs.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(fs, target, tr); err != nil {
				return err
			}
		default:
			// links and devices are never produced by the builder
			return fmt.Errorf("unsupported entry type %q for %s", header.Typeflag, header.Name)
		}
	}
}

func writeEntry(fs afero.Fs, target string, r io.Reader) error {
	if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := fs.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// safeJoin resolves an archive entry name below root.
func safeJoin(root, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("illegal entry path %q", name)
	}
	root = filepath.Clean(root)
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal entry path %q", name)
	}
	return target, nil
}

// fileChecksum returns the hex SHA-256 of a file.
func fileChecksum(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifyChecksum compares a file's SHA-256 against expected.
func verifyChecksum(fs afero.Fs, path, expected string) error {
	actual, err := fileChecksum(fs, path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}
