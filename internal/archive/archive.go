package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/dumplift/internal/common"
	"github.com/loykin/dumplift/internal/constants"
)

// Context is the working state of one extraction, owned by a single pipeline
// run. DumpPath is re-pointed at the freshly exported dump before Pack.
type Context struct {
	ScratchDir    string
	DumpPath      string
	ManifestPath  string
	FilestorePath string
	Manifest      *Manifest
}

// InvalidArchiveError reports every required member missing from an archive,
// not just the first one found.
type InvalidArchiveError struct {
	Path    string
	Missing []string
}

func (e *InvalidArchiveError) Error() string {
	return fmt.Sprintf("archive %s is missing required members: %s", e.Path, strings.Join(e.Missing, ", "))
}

// CreateScratchDir creates a uniquely named empty directory under baseDir
// (os.TempDir when empty).
func CreateScratchDir(baseDir string) (string, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	name := fmt.Sprintf("%s%d-%s", constants.ScratchDirPrefix, time.Now().Unix(), uuid.NewString()[:8])
	dir := filepath.Join(baseDir, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

// Extract unpacks archivePath into scratchDir, validates the required
// members and parses the manifest. Producers disagree on whether the three
// members sit at archive root or inside one wrapper folder, so both layouts
// are probed before giving up.
func Extract(archivePath, scratchDir string) (*Context, error) {
	log := common.GetLogger().WithComponent("archive")

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer func() { _ = r.Close() }()

	prefix, missing := locateMembers(r.File)
	if len(missing) > 0 {
		return nil, &InvalidArchiveError{Path: archivePath, Missing: missing}
	}

	for _, f := range r.File {
		rel := strings.TrimPrefix(f.Name, prefix)
		if rel == "" {
			continue
		}
		if err := unpackEntry(f, scratchDir, rel); err != nil {
			return nil, fmt.Errorf("unpack %s: %w", f.Name, err)
		}
	}

	ctx := &Context{
		ScratchDir:    scratchDir,
		DumpPath:      filepath.Join(scratchDir, constants.DumpFileName),
		ManifestPath:  filepath.Join(scratchDir, constants.ManifestFileName),
		FilestorePath: filepath.Join(scratchDir, constants.FilestoreDirName),
	}
	m, err := ParseManifest(ctx.ManifestPath)
	if err != nil {
		return nil, err
	}
	ctx.Manifest = m
	log.Info("archive extracted", "dir", scratchDir, "db_name", m.DBName, "version", m.Version)
	return ctx, nil
}

// locateMembers finds the wrapper prefix ("" for a flat archive) under which
// both required members live, or the list of members that could not be found
// under any accepted layout.
func locateMembers(files []*zip.File) (prefix string, missing []string) {
	required := []string{constants.DumpFileName, constants.ManifestFileName}

	names := make(map[string]bool, len(files))
	for _, f := range files {
		names[f.Name] = true
	}

	candidates := []string{""}
	for _, f := range files {
		// A wrapper folder is exactly one path element deep.
		if idx := strings.Index(f.Name, "/"); idx > 0 {
			p := f.Name[:idx+1]
			if !contains(candidates, p) {
				candidates = append(candidates, p)
			}
		}
	}

	best := required
	for _, cand := range candidates {
		var miss []string
		for _, req := range required {
			if !names[cand+req] {
				miss = append(miss, req)
			}
		}
		if len(miss) == 0 {
			return cand, nil
		}
		if len(miss) < len(best) {
			best = miss
			prefix = cand
		}
	}
	sort.Strings(best)
	return prefix, best
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// unpackEntry writes one archive entry below destDir, rejecting traversal.
func unpackEntry(f *zip.File, destDir, rel string) error {
	dest := filepath.Join(destDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("entry escapes scratch dir: %s", rel)
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o700)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	// Bounded copy; dumps can be large but entries are trusted post path check.
	if _, err := io.Copy(out, rc); err != nil { // #nosec G110 -- local archive chosen by the operator
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Pack writes a new flat archive from the context's current dump, manifest
// and filestore. A missing filestore yields an empty placeholder directory
// entry and a warning instead of a failure.
func Pack(ctx *Context, outputPath string) error {
	log := common.GetLogger().WithComponent("archive")

	out, err := os.Create(filepath.Clean(outputPath))
	if err != nil {
		return fmt.Errorf("create output archive: %w", err)
	}
	w := zip.NewWriter(out)

	fail := func(err error) error {
		_ = w.Close()
		_ = out.Close()
		_ = os.Remove(outputPath)
		return err
	}

	if err := addFile(w, ctx.DumpPath, constants.DumpFileName); err != nil {
		return fail(fmt.Errorf("pack dump: %w", err))
	}
	if err := addFile(w, ctx.ManifestPath, constants.ManifestFileName); err != nil {
		return fail(fmt.Errorf("pack manifest: %w", err))
	}

	if st, err := os.Stat(ctx.FilestorePath); err == nil && st.IsDir() {
		if err := addTree(w, ctx.FilestorePath, constants.FilestoreDirName); err != nil {
			return fail(fmt.Errorf("pack filestore: %w", err))
		}
	} else {
		log.Warn("filestore directory absent, packing empty placeholder", "path", ctx.FilestorePath)
		if _, err := w.Create(constants.FilestoreDirName + "/"); err != nil {
			return fail(fmt.Errorf("pack filestore placeholder: %w", err))
		}
	}

	if err := w.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	log.Info("archive packed", "path", outputPath)
	return nil
}

func addFile(w *zip.Writer, srcPath, name string) error {
	src, err := os.Open(filepath.Clean(srcPath))
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	dst, err := w.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

func addTree(w *zip.Writer, root, base string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := base + "/" + filepath.ToSlash(rel)
		if info.IsDir() {
			if rel == "." {
				name = base + "/"
			} else {
				name += "/"
			}
			_, err := w.Create(name)
			return err
		}
		return addFile(w, path, name)
	})
}

// Cleanup removes the scratch directory. Best effort only: a run that
// already failed must not fail again over leftover temp files.
func Cleanup(scratchDir string) {
	if scratchDir == "" {
		return
	}
	if err := os.RemoveAll(scratchDir); err != nil {
		common.LogWarn("scratch dir cleanup failed", "dir", scratchDir, "error", err)
	}
}
