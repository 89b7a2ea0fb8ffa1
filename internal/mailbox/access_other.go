//go:build !unix

package mailbox

import "os"

// checkAccess opens the directory for reading. Write access is discovered on
// the first append on platforms without access(2).
func checkAccess(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}
