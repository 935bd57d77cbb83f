package distantapi

import (
	"bytes"
	"strings"

	"github.com/smnsjas/go-distant/manager"
	"golang.org/x/crypto/ssh"
)

// SystemInfo mirrors the original's SystemInfo response payload.
type SystemInfo struct {
	Family        string
	OS            string
	Arch          string
	CurrentDir    string
	MainSeparator string
	Username      string
	Shell         string
}

// runOutput runs cmd in a fresh session and returns trimmed stdout.
func (a *Api) runOutput(cmd string) (string, error) {
	sess, release, err := a.newSession()
	if err != nil {
		return "", err
	}
	defer release()
	defer sess.Close()

	var out bytes.Buffer
	sess.Stdout = &out
	if err := sess.Run(cmd); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

// IsWindows detects the remote OS once per connection and caches the
// result, matching the original's per-session OnceCell<bool>. It probes
// with a command that succeeds only on cmd.exe-flavored shells.
func (a *Api) IsWindows() (bool, error) {
	a.isWindowsOnce.Do(func() {
		_, err := a.runOutput("ver")
		a.isWindows = err == nil
		if err != nil {
			// A clean failure (non-zero exit, not a transport error) means
			// "ver" simply isn't a command on this shell: not Windows.
			if _, ok := err.(*ssh.ExitError); ok {
				a.isWindowsErr = nil
				a.isWindows = false
			} else {
				a.isWindowsErr = err
			}
		}
	})
	return a.isWindows, a.isWindowsErr
}

// SystemInfo reports cached family/os/current_dir/username/shell
// details, queried once per connection (original's per-value OnceCell
// caches, collapsed here into one cached struct since nothing there is
// independently invalidated).
func (a *Api) SystemInfo() (SystemInfo, error) {
	a.sysInfoOnce.Do(func() {
		isWindows, err := a.IsWindows()
		if err != nil {
			a.sysInfoErr = err
			return
		}

		info := SystemInfo{Username: "", Shell: ""}
		if isWindows {
			info.Family = "windows"
			info.OS = "windows"
			info.MainSeparator = `\`
			info.CurrentDir, _ = a.runOutput("cd")
			info.Username, _ = a.runOutput("whoami")
			info.Shell = "powershell.exe"
			info.CurrentDir = normalizeWindowsPath(info.CurrentDir)
		} else {
			info.Family = "unix"
			info.OS = ""
			info.MainSeparator = "/"
			info.CurrentDir, _ = a.runOutput("pwd")
			info.Username, _ = a.runOutput("whoami")
			shell, _ := a.runOutput("echo $SHELL")
			if shell == "" {
				shell = "/bin/sh"
			}
			info.Shell = shell
		}
		a.sysInfo = info
	})
	return a.sysInfo, a.sysInfoErr
}

// normalizeWindowsPath turns an ssh-reported path like "/C:/Users/x" or
// "/C/Users/x" into the conventional "C:\Users\x" form, mirroring the
// original's convert_to_windows_path_string helper.
func normalizeWindowsPath(p string) string {
	p = strings.TrimPrefix(p, "/")
	if len(p) >= 2 && p[1] == ':' {
		return strings.ReplaceAll(p, "/", `\`)
	}
	if len(p) >= 1 && len(p) >= 2 && p[1] == '/' {
		drive := p[0]
		rest := strings.ReplaceAll(p[1:], "/", `\`)
		return string(drive) + ":" + rest
	}
	return strings.ReplaceAll(p, "/", `\`)
}

// Version returns the advertised protocol version and the capability
// set this backend actually supports, unused capabilities removed the
// way the original's version() calls capabilities.take(...). Search and
// CancelSearch have no SFTP equivalent; SetPermissions is fully
// implemented here (spec Open Question, resolved in SPEC_FULL.md §11).
func (a *Api) Version() (string, manager.Capabilities) {
	caps := manager.AllCapabilities().Without(manager.CapSearch, manager.CapCancelSearch)
	return "go-distant-ssh 1.0", caps
}
