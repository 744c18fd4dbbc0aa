//go:build linux || darwin || freebsd || netbsd || openbsd

package downloader

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func getFreeDiskSpace(path string) (int64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !stat.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", path)
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, err
	}

	return int64(fs.Bavail) * int64(fs.Bsize), nil
}
