//go:build !unix

package arena

func outOfSpace(err error) bool {
	return false
}

func ProcessAlive(pid int) bool {
	return pid > 0
}
