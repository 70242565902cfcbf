//go:build !unix

package memory

// CurrentBytes is not supported on this platform and always reports zero.
func CurrentBytes() (uint64, error) {
	return 0, nil
}
