package distantapi

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
)

// FileType discriminates one directory entry.
type FileType int

const (
	FileTypeFile FileType = iota
	FileTypeDir
	FileTypeSymlink
)

func fileTypeOf(mode os.FileMode) FileType {
	switch {
	case mode&os.ModeSymlink != 0:
		return FileTypeSymlink
	case mode.IsDir():
		return FileTypeDir
	default:
		return FileTypeFile
	}
}

// DirEntry is one result of ReadDir: a path, its type, and the depth at
// which it was discovered relative to the root (0 for the root itself).
type DirEntry struct {
	Path     string
	FileType FileType
	Depth    int
}

// ReadDir performs an explicit-worklist traversal rooted at path, up to
// depth levels deep (0 means unlimited), directly grounded on api.rs's
// to_traverse/entries algorithm: a LIFO worklist seeded with the root,
// each popped entry optionally queued for listing, with per-entry
// errors collected rather than aborting the whole walk.
func (a *Api) ReadDir(root string, depth int, absolute, canonicalize, includeRoot bool) ([]DirEntry, []error) {
	rootPath, err := a.canonicalize(root)
	if err != nil {
		return nil, []error{err}
	}

	var entries []DirEntry
	var errs []error

	toTraverse := []DirEntry{{Path: rootPath, FileType: FileTypeDir, Depth: 0}}

	for len(toTraverse) > 0 {
		entry := toTraverse[len(toTraverse)-1]
		toTraverse = toTraverse[:len(toTraverse)-1]

		isRoot := entry.Depth == 0
		nextDepth := entry.Depth + 1
		p := entry.Path
		if !path.IsAbs(p) {
			p = path.Join(rootPath, p)
		}

		if !isRoot || includeRoot {
			entries = append(entries, entry)
		}

		isDir := entry.FileType == FileTypeDir
		if entry.FileType == FileTypeSymlink {
			fi, err := a.sftpClient.Stat(p)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			isDir = fi.IsDir()
		}

		if isDir && (depth == 0 || nextDepth <= depth) {
			children, err := a.sftpClient.ReadDir(p)
			if err != nil {
				if isRoot {
					return nil, []error{fmt.Errorf("distantapi: read_dir %q: %w", p, err)}
				}
				errs = append(errs, err)
				continue
			}
			for _, child := range children {
				childPath := path.Join(p, child.Name())
				if canonicalize {
					cp, err := a.canonicalize(childPath)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					childPath = cp
				}
				if !absolute {
					if rel := strings.TrimPrefix(childPath, rootPath+"/"); rel != childPath {
						childPath = rel
					}
				}
				toTraverse = append(toTraverse, DirEntry{Path: childPath, FileType: fileTypeOf(child.Mode()), Depth: nextDepth})
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, errs
}

func (a *Api) canonicalize(p string) (string, error) {
	abs, err := a.sftpClient.RealPath(p)
	if err != nil {
		return "", fmt.Errorf("distantapi: canonicalize %q: %w", p, err)
	}
	return abs, nil
}
