//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package downloader

import "errors"

func getFreeDiskSpace(string) (int64, error) {
	return 0, errors.New("free space check not supported on this platform")
}
