//go:build windows

package credentials

import (
	"errors"

	"github.com/danieljoos/wincred"
	"golang.org/x/sys/windows"
)

var platformStore store = wincredStore{appName}

// wincredStore keeps the credentials as generic credential inside the
// Windows Credentials store.
type wincredStore struct {
	target string
}

func (this wincredStore) load() ([]byte, bool, error) {
	c, err := wincred.GetGenericCredential(this.target)
	if errors.Is(err, windows.ERROR_NOT_FOUND) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return c.CredentialBlob, true, nil
}

func (this wincredStore) save(blob []byte) error {
	cred := wincred.NewGenericCredential(this.target)
	cred.CredentialBlob = blob
	return cred.Write()
}
