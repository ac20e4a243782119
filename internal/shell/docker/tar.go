package docker

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/calfort/skiff/internal/core/ignore"
)

// =============================================================================
// Build Context Archiving
// =============================================================================

// archiveContext snapshots the context directory into a tar stream, applying
// exclusion patterns and injecting the rendered recipe. The dependency
// manifest is checked before a single byte is archived so a missing manifest
// fails the build before the install step can run.
func archiveContext(spec BuildSpec) (io.ReadCloser, error) {
	info, err := os.Stat(spec.ContextDir)
	if err != nil || !info.IsDir() {
		return nil, NewDockerError("BuildImage", "context", spec.ContextDir,
			"context directory does not exist", ErrContextMissing)
	}

	if spec.ManifestFile != "" {
		if err := checkManifest(spec.ContextDir, spec.ManifestFile, spec.ExcludePatterns); err != nil {
			return nil, err
		}
	}

	pr, pw := io.Pipe()
	go func() {
		tw := tar.NewWriter(pw)
		err := writeContext(tw, spec)
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()
	return pr, nil
}

// checkManifest verifies the dependency manifest exists in the context and is
// not excluded by ignore rules.
func checkManifest(dir, manifest string, patterns []string) error {
	path := filepath.Join(dir, filepath.FromSlash(manifest))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return NewDockerError("BuildImage", "context", manifest,
			fmt.Sprintf("%s not found in build context", manifest), ErrManifestMissing)
	}
	if ignore.Excluded(manifest, patterns) {
		return NewDockerError("BuildImage", "context", manifest,
			fmt.Sprintf("%s is excluded by ignore rules", manifest), ErrManifestExcluded)
	}
	return nil
}

// writeContext walks the context directory and writes every non-excluded
// entry, then the injected recipe.
func writeContext(tw *tar.Writer, spec BuildSpec) error {
	root := spec.ContextDir

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
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
		name := filepath.ToSlash(rel)

		if ignore.Excluded(name, spec.ExcludePatterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		link := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = name
		if d.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}

	if spec.Dockerfile != "" {
		content := []byte(spec.Dockerfile)
		hdr := &tar.Header{
			Name: dockerfileName,
			Mode: 0o600,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(content); err != nil {
			return err
		}
	}

	return nil
}

// ReadIgnoreFile loads .dockerignore patterns from a context directory.
// A missing file means no exclusions.
func ReadIgnoreFile(dir string) []string {
	content, err := os.ReadFile(filepath.Join(dir, ignore.File))
	if err != nil {
		return nil
	}
	return ignore.Parse(string(content))
}
