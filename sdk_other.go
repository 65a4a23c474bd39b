//go:build !(windows && amd64)

package mdt

import "fmt"

// LoadSDK reports ErrSDKNotPresent: the vendor command library only ships
// as a 64-bit Windows DLL.
func LoadSDK(path string) (CommandLibrary, error) {
	return nil, fmt.Errorf("%w: %s cannot be loaded on this platform", ErrSDKNotPresent, path)
}
