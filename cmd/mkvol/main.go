// Command mkvol bootstraps a fresh volume: a file-backed VTOC holding
// one object per file under a host skeleton directory, and a naming
// tree ("/node" and "/com") pointing at them. It plays the same role
// for this module that the teacher's mkfs command plays for biscuit —
// walk a host directory tree and populate a target volume from it —
// generalized from mkfs's disk-image-plus-inode-table target to this
// module's UID-addressed VTOC-plus-naming-tree target.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"aot"
	"collab"
	"naming"
	"uid"
)

func copyInto(ctx context.Context, v *collab.FileVTOC, u uid.UID, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	if err := v.StoreSegment(ctx, u, 0, data); err != nil {
		return err
	}
	attrs := make([]byte, aot.AttrBlockSize)
	if err := aot.PatchUint64(attrs, aot.FieldLength, uint64(len(data))); err != nil {
		return err
	}
	return v.StoreAttrBlock(ctx, u, attrs)
}

// addfiles walks skelDir on the host and replicates its contents into
// root, storing one object per regular file in v and creating one
// directory per host subdirectory under root.
func addfiles(ctx context.Context, v *collab.FileVTOC, root *naming.Dir, skelDir string) error {
	return filepath.WalkDir(skelDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, skelDir), string(filepath.Separator))
		if rel == "" {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")

		dir := root
		for _, p := range parts[:len(parts)-1] {
			child, _, isDir, ok := dir.Lookup(p)
			if ok && isDir {
				dir = child
				continue
			}
			child, cerr := dir.CrDir(p)
			if cerr != nil {
				return cerr
			}
			dir = child
		}

		name := parts[len(parts)-1]
		if d.IsDir() {
			if _, err := dir.CrDir(name); err != nil {
				fmt.Fprintf(os.Stderr, "mkvol: CrDir %q: %v\n", rel, err)
			}
			return nil
		}

		u := uid.New(0)
		if err := copyInto(ctx, v, u, path); err != nil {
			return fmt.Errorf("mkvol: copying %q: %w", rel, err)
		}
		if err := dir.CrFile(name, u); err != nil {
			return fmt.Errorf("mkvol: CrFile %q: %w", rel, err)
		}
		return nil
	})
}

func main() {
	vtocDir := flag.String("vtoc", "", "directory to hold the file-backed VTOC")
	skelDir := flag.String("skel", "", "host directory tree to copy into the volume")
	manifest := flag.String("manifest", "", "path to write a path->uid manifest (defaults to <vtoc>/manifest.json)")
	flag.Parse()

	if *vtocDir == "" || *skelDir == "" {
		fmt.Fprintln(os.Stderr, "usage: mkvol -vtoc <dir> -skel <dir> [-manifest <path>]")
		os.Exit(1)
	}
	if *manifest == "" {
		*manifest = filepath.Join(*vtocDir, "manifest.json")
	}

	if err := os.MkdirAll(*vtocDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkvol: %v\n", err)
		os.Exit(1)
	}

	v := collab.NewFileVTOC(*vtocDir)
	root := naming.NewDir()
	node, err := root.CrDir("node")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkvol: CrDir node: %v\n", err)
		os.Exit(1)
	}
	if _, err := root.CrDir("com"); err != nil {
		fmt.Fprintf(os.Stderr, "mkvol: CrDir com: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := addfiles(ctx, v, node, *skelDir); err != nil {
		fmt.Fprintf(os.Stderr, "mkvol: %v\n", err)
		os.Exit(1)
	}

	out := make(map[string]string)
	root.Walk("", func(path string, u uid.UID) {
		out[path] = u.String()
	})
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkvol: marshaling manifest: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*manifest, b, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "mkvol: writing manifest: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("mkvol: wrote %d objects, manifest at %s\n", len(out), *manifest)
}
