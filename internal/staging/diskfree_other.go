//go:build !linux

package staging

import "os"

// FreeBytes reports -1 where free space is not probed; Stage then skips the
// minimum free space check.
func FreeBytes(dir string) (int64, error) { return -1, nil }

func adviseSequential(*os.File) {}
