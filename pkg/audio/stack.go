package audio

import (
	"errors"
	"sync"
)

var ErrNotInitialized = errors.New("audio stack not initialized")

// Stack enumerates the capture devices of the local machine.
type Stack struct {
	initialized bool
	mutex       sync.RWMutex
}

func (this *Stack) Initialize() error {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if this.initialized {
		return nil
	}
	if err := initializePlatform(); err != nil {
		return err
	}
	this.initialized = true
	return nil
}

func (this *Stack) Dispose() error {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if !this.initialized {
		return nil
	}
	disposePlatform()
	this.initialized = false
	return nil
}

// FindDevices returns every active capture device, sorted by id.
func (this *Stack) FindDevices() (Devices, error) {
	this.mutex.RLock()
	defer this.mutex.RUnlock()

	if !this.initialized {
		return nil, ErrNotInitialized
	}
	result, err := enumerateDevices()
	if err != nil {
		return nil, err
	}
	return result.Sorted(), nil
}
