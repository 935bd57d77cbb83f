package distantapi

import (
	"bytes"
	"fmt"
	"time"
)

// copyCompleteTimeout carries the value of api.rs's
// COPY_COMPLETE_TIMEOUT. Copy does not consult it: sess.Run returns only
// once the remote command has exited and its stdout/stderr have been
// drained, and that wait has no time bound.
const copyCompleteTimeout = 1 * time.Second

// Copy delegates to the remote shell, since SFTP has no remote-to-
// remote copy verb: "cp -R" on Unix, "Copy-Item -Recurse" on Windows.
func (a *Api) Copy(src, dst string) error {
	isWindows, err := a.IsWindows()
	if err != nil {
		return err
	}

	var cmd string
	if isWindows {
		cmd = fmt.Sprintf("Copy-Item -Path %q -Destination %q -Recurse", src, dst)
	} else {
		cmd = fmt.Sprintf("cp -R %q %q", src, dst)
	}

	sess, release, err := a.newSession()
	if err != nil {
		return err
	}
	defer release()
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	runErr := sess.Run(cmdForShell(isWindows, cmd))

	// Powershell.exe often exits zero even on failure; treat nonempty
	// stderr as failure too, matching the original's success check.
	success := runErr == nil && (!isWindows || stderr.Len() == 0)
	if !success {
		return fmt.Errorf("distantapi: copy command failed: %s", stderr.String())
	}
	return nil
}

func cmdForShell(isWindows bool, cmd string) string {
	if isWindows {
		return "powershell.exe -Command " + cmd
	}
	return cmd
}
