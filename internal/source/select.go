package source

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/basekick-labs/drift/internal/storage"
)

// DefaultPattern matches GDP per-drifter files, compressed or not.
const DefaultPattern = "drifter_*.nc*"

// Match reports whether the base name of p matches pattern.
func Match(pattern, p string) (bool, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	ok, err := path.Match(pattern, path.Base(p))
	if err != nil {
		return false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return ok, nil
}

// Select keeps the objects whose base name matches pattern, sorted by
// path so the trajectory order of a build is reproducible.
func Select(objects []storage.ObjectInfo, pattern string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for _, o := range objects {
		ok, err := Match(pattern, o.Path)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Expand turns command line inputs into a sorted file list. Directories
// are scanned (non-recursively) for files matching pattern; plain files
// are kept as given.
func Expand(inputs []string, pattern string) ([]string, error) {
	var files []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in, err)
		}
		if !info.IsDir() {
			files = append(files, in)
			continue
		}

		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", in, err)
		}
		var found []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ok, err := Match(pattern, e.Name())
			if err != nil {
				return nil, err
			}
			if ok {
				found = append(found, filepath.Join(in, e.Name()))
			}
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}
