//go:build windows

package audio

import (
	"fmt"

	"github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"
)

func initializePlatform() error {
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		return fmt.Errorf("cannot initialize ole: %w", err)
	}
	return nil
}

func disposePlatform() {
	ole.CoUninitialize()
}

// enumerateDevices lists the active capture endpoints. The endpoint id is
// used as channel id, the friendly name as display name.
func enumerateDevices() (result Devices, _ error) {
	var enumerator *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &enumerator); err != nil {
		return nil, fmt.Errorf("cannot create IMMDeviceEnumerator instance: %w", err)
	}
	defer enumerator.Release()

	var endpoints *wca.IMMDeviceCollection
	if err := enumerator.EnumAudioEndpoints(wca.ECapture, wca.DEVICE_STATE_ACTIVE, &endpoints); err != nil {
		return nil, fmt.Errorf("cannot query capture endpoints: %w", err)
	}
	defer endpoints.Release()

	var count uint32
	if err := endpoints.GetCount(&count); err != nil {
		return nil, fmt.Errorf("cannot count capture endpoints: %w", err)
	}

	for i := range count {
		device, err := endpoint(endpoints, i)
		if err != nil {
			return nil, fmt.Errorf("cannot introspect capture endpoint %d: %w", i, err)
		}
		result = append(result, device)
	}
	return result, nil
}

func endpoint(endpoints *wca.IMMDeviceCollection, index uint32) (Device, error) {
	var device *wca.IMMDevice
	if err := endpoints.Item(index, &device); err != nil {
		return Device{}, err
	}
	defer device.Release()

	var id string
	if err := device.GetId(&id); err != nil {
		return Device{}, fmt.Errorf("cannot get id: %w", err)
	}

	var properties *wca.IPropertyStore
	if err := device.OpenPropertyStore(wca.STGM_READ, &properties); err != nil {
		return Device{}, fmt.Errorf("cannot open properties: %w", err)
	}
	defer properties.Release()

	var name wca.PROPVARIANT
	if err := properties.GetValue(&wca.PKEY_Device_FriendlyName, &name); err != nil {
		return Device{}, fmt.Errorf("cannot get friendly name: %w", err)
	}

	return Device{
		ID:    id,
		Name:  name.String(),
		Index: index,
	}, nil
}
