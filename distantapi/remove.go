package distantapi

import (
	"os"
	"path"
	"sort"
)

// Remove deletes path. A plain file or symlink is unlinked directly. A
// directory is removed directly unless force is set, in which case its
// entire subtree is first collected (depth-first via an explicit LIFO
// worklist), sorted by depth, and removed deepest-first, directly grounded on
// api.rs's remove() algorithm.
func (a *Api) Remove(targetPath string, force bool) error {
	stat, err := a.sftpClient.Lstat(targetPath)
	if err != nil {
		return wrapErr(err, "distantapi: stat %q: %v", targetPath, err)
	}

	if !stat.IsDir() || stat.Mode()&os.ModeSymlink != 0 {
		if err := a.sftpClient.Remove(targetPath); err != nil {
			return wrapErr(err, "distantapi: remove %q: %v", targetPath, err)
		}
		return nil
	}

	if !force {
		if err := a.sftpClient.RemoveDirectory(targetPath); err != nil {
			return wrapErr(err, "distantapi: rmdir %q: %v", targetPath, err)
		}
		return nil
	}

	var entries []DirEntry
	toTraverse := []DirEntry{{Path: targetPath, FileType: FileTypeDir, Depth: 0}}

	for len(toTraverse) > 0 {
		entry := toTraverse[len(toTraverse)-1]
		toTraverse = toTraverse[:len(toTraverse)-1]

		if entry.FileType != FileTypeDir {
			entries = append(entries, entry)
			continue
		}
		entries = append(entries, entry)

		children, err := a.sftpClient.ReadDir(entry.Path)
		if err != nil {
			return wrapErr(err, "distantapi: read_dir %q: %v", entry.Path, err)
		}
		for _, child := range children {
			toTraverse = append(toTraverse, DirEntry{
				Path:     path.Join(entry.Path, child.Name()),
				FileType: fileTypeOf(child.Mode()),
				Depth:    entry.Depth + 1,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Depth < entries[j].Depth })

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		var err error
		if e.FileType == FileTypeDir {
			err = a.sftpClient.RemoveDirectory(e.Path)
		} else {
			err = a.sftpClient.Remove(e.Path)
		}
		if err != nil {
			return wrapErr(err, "distantapi: remove %q: %v", e.Path, err)
		}
	}
	return nil
}
