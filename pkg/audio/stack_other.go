//go:build !linux && !windows

package audio

func initializePlatform() error {
	return nil
}

func disposePlatform() {}

func enumerateDevices() (Devices, error) {
	return nil, nil
}
