//go:build linux

package audio

import (
	"fmt"
	"os"
)

const pcmFile = "/proc/asound/pcm"

func initializePlatform() error {
	return nil
}

func disposePlatform() {}

func enumerateDevices() (Devices, error) {
	f, err := os.Open(pcmFile)
	if os.IsNotExist(err) {
		// no sound support loaded
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", pcmFile, err)
	}
	defer func() {
		_ = f.Close()
	}()

	return parsePCM(f)
}
