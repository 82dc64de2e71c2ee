package facade

import (
	"context"
	"fmt"
	"sync"

	"github.com/blaubaer/onair/pkg/indicator"
	"github.com/blaubaer/onair/pkg/indicator/homeassistant"
	"github.com/blaubaer/onair/pkg/indicator/hue"
)

// Facade is the indicator selected by Configuration.Type. Until it is
// initialized, and for indicator.TypeNone, it does nothing.
type Facade struct {
	indicator.Indicator

	lock sync.RWMutex
}

func (this *Facade) Initialize(ctx context.Context, conf *Configuration, saveConfFunc func() error) error {
	this.lock.Lock()
	defer this.lock.Unlock()

	if this.Indicator != nil {
		return nil
	}

	switch conf.Type {
	case indicator.TypeNone:
		return nil
	case indicator.TypeHue:
		var buf hue.Hue
		if err := buf.Initialize(ctx, &conf.Hue, saveConfFunc); err != nil {
			return err
		}
		this.Indicator = &buf
	case indicator.TypeHomeAssistant:
		var buf homeassistant.HomeAssistant
		if err := buf.Initialize(&conf.HomeAssistant, saveConfFunc); err != nil {
			return err
		}
		this.Indicator = &buf
	default:
		return fmt.Errorf("unsupported indicator type: %v", conf.Type)
	}

	return nil
}

func (this *Facade) Ensure(c indicator.Context) error {
	this.lock.RLock()
	defer this.lock.RUnlock()

	if v := this.Indicator; v != nil {
		return v.Ensure(c)
	}
	return nil
}

func (this *Facade) Update() error {
	this.lock.RLock()
	defer this.lock.RUnlock()

	if v := this.Indicator; v != nil {
		return v.Update()
	}
	return nil
}

func (this *Facade) Dispose() error {
	this.lock.Lock()
	defer this.lock.Unlock()

	defer func() {
		this.Indicator = nil
	}()

	if v := this.Indicator; v != nil {
		return v.Dispose()
	}
	return nil
}

func (this *Facade) GetType() indicator.Type {
	this.lock.RLock()
	defer this.lock.RUnlock()

	if v := this.Indicator; v != nil {
		return v.GetType()
	}
	return indicator.TypeNone
}
