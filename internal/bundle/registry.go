package bundle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/railmon/powerstats/internal/parcel"
)

// ErrNoCreator reports a parcelable array element whose descriptor has no
// registered creator.
var ErrNoCreator = errors.New("bundle: no creator registered")

// CreatorFunc decodes one parcelable array element. The reader is
// positioned immediately after the element's descriptor string.
type CreatorFunc func(r *parcel.Reader) (any, error)

// Parcelable is implemented by values that can be stored in a parcelable
// array. WriteToParcel writes the creator payload, without any size prefix.
type Parcelable interface {
	ParcelDescriptor() string
	WriteToParcel(w *parcel.Writer)
}

var (
	regMu    sync.RWMutex
	creators = make(map[string]CreatorFunc)
)

// Register installs the creator for a parcelable descriptor. It is meant
// to be called from init and panics if the descriptor is already taken.
func Register(descriptor string, fn CreatorFunc) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := creators[descriptor]; dup {
		panic("bundle: Register called twice for descriptor " + descriptor)
	}
	creators[descriptor] = fn
}

func creator(descriptor string) (CreatorFunc, error) {
	regMu.RLock()
	fn, ok := creators[descriptor]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for descriptor %q", ErrNoCreator, descriptor)
	}
	return fn, nil
}
