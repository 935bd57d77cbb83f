package distantapi

import (
	"os"
	"time"

	"github.com/pkg/sftp"
)

// Exists reports whether path names anything at all, following no
// symlinks. Any failure to stat it (missing, denied, or otherwise) is
// reported as false rather than propagated, directly grounded on
// api.rs's exists(): symlink_metadata(path).await.is_ok().
func (a *Api) Exists(path string) bool {
	_, err := a.sftpClient.Lstat(path)
	return err == nil
}

// Rename moves src to dst, a thin delegation to the SFTP subsystem
// mirroring api.rs's rename (sftp().rename(src, dst)); a failure is
// classified by wrapErr like the other file operations (NotFound,
// PermissionDenied, otherwise Other).
func (a *Api) Rename(src, dst string) error {
	if err := a.sftpClient.Rename(src, dst); err != nil {
		return wrapErr(err, "distantapi: rename %q -> %q: %v", src, dst, err)
	}
	return nil
}

// UnixMetadata is the concrete (always fully populated) Unix permission
// triad reported in a Metadata response, distinct from Permissions
// (which models an optional delta for set_permissions requests).
type UnixMetadata struct {
	OwnerRead, OwnerWrite, OwnerExec bool
	GroupRead, GroupWrite, GroupExec bool
	OtherRead, OtherWrite, OtherExec bool
}

// Metadata describes one path, mirroring api.rs's Metadata response
// payload. Created is always the zero time: SFTP/SSH exposes atime and
// mtime but never a creation time. Windows is always nil on this
// SSH-only backend.
type Metadata struct {
	CanonicalizedPath string
	FileType          FileType
	Len               uint64
	Readonly          bool
	Accessed          time.Time
	Modified          time.Time
	Created           time.Time
	Unix              *UnixMetadata
	Windows           *struct{}
}

// Metadata fetches path's metadata. If resolveFileType is set, symlinks
// are followed (sftp.Stat); otherwise the link itself is reported
// (sftp.Lstat). If canonicalize is set, CanonicalizedPath is populated
// via the server's real-path resolution; otherwise it is left empty.
// Grounded on api.rs's metadata(): readonly defaults to true unless any
// write bit is set, and unix is populated from the same permission
// bits reported in FileType/Readonly.
func (a *Api) Metadata(path string, canonicalize, resolveFileType bool) (Metadata, error) {
	var info os.FileInfo
	var err error
	if resolveFileType {
		info, err = a.sftpClient.Stat(path)
	} else {
		info, err = a.sftpClient.Lstat(path)
	}
	if err != nil {
		return Metadata{}, wrapErr(err, "distantapi: metadata %q: %v", path, err)
	}

	md := Metadata{
		FileType: fileTypeOf(info.Mode()),
		Len:      uint64(info.Size()),
		Modified: info.ModTime(),
		Readonly: true,
	}

	// pkg/sftp reports Atime alongside Mtime in the SSH_FXP_ATTRS payload,
	// surfaced via FileInfo.Sys() as *sftp.FileStat; fall back to Modified
	// if the server omitted it (Atime is then zero).
	if stat, ok := info.Sys().(*sftp.FileStat); ok && stat.Atime != 0 {
		md.Accessed = time.Unix(int64(stat.Atime), 0)
	} else {
		md.Accessed = md.Modified
	}

	if canonicalize {
		cp, err := a.canonicalize(path)
		if err != nil {
			return Metadata{}, err
		}
		md.CanonicalizedPath = cp
	}

	perm := PermissionsFromUnixMode(uint32(info.Mode().Perm()))
	md.Unix = &UnixMetadata{
		OwnerRead: *perm.OwnerRead, OwnerWrite: *perm.OwnerWrite, OwnerExec: *perm.OwnerExec,
		GroupRead: *perm.GroupRead, GroupWrite: *perm.GroupWrite, GroupExec: *perm.GroupExec,
		OtherRead: *perm.OtherRead, OtherWrite: *perm.OtherWrite, OtherExec: *perm.OtherExec,
	}
	md.Readonly = !(md.Unix.OwnerWrite || md.Unix.GroupWrite || md.Unix.OtherWrite)

	return md, nil
}
