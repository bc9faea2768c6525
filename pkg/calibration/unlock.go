package calibration

import (
	"context"
	"fmt"

	"github.com/roffe/goccp/pkg/ccp"
)

// KeyFunc turns a seed for resource into the 6 byte unlock key.
type KeyFunc func(resource ccp.ResourceMask, seed []byte) ([]byte, error)

// Unlock runs GET_SEED/UNLOCK for each resource in mask that the ECU
// reports as protected and returns the resources unlocked afterwards.
func Unlock(ctx context.Context, s *ccp.Session, mask ccp.ResourceMask, keyFn KeyFunc) (ccp.ResourceMask, error) {
	var unlocked ccp.ResourceMask
	for _, res := range split(mask) {
		seed, err := s.GetSeed(ctx, res)
		if err != nil {
			return unlocked, fmt.Errorf("get seed %s: %w", res, err)
		}
		if !seed.Protected {
			unlocked = merge(unlocked, res)
			continue
		}
		if keyFn == nil {
			return unlocked, fmt.Errorf("%w: %s is protected and no key function is set", ccp.ErrInvalidArgument, res)
		}
		key, err := keyFn(res, seed.Data)
		if err != nil {
			return unlocked, fmt.Errorf("compute key %s: %w", res, err)
		}
		granted, err := s.Unlock(ctx, key)
		if err != nil {
			return unlocked, fmt.Errorf("unlock %s: %w", res, err)
		}
		unlocked = merge(unlocked, granted)
	}
	return unlocked, nil
}

// split breaks a mask into single resource masks, CAL first.
func split(m ccp.ResourceMask) []ccp.ResourceMask {
	var out []ccp.ResourceMask
	if m.Write {
		out = append(out, ccp.ResourceMask{Write: true})
	}
	if m.Read {
		out = append(out, ccp.ResourceMask{Read: true})
	}
	if m.Flash {
		out = append(out, ccp.ResourceMask{Flash: true})
	}
	return out
}

func merge(a, b ccp.ResourceMask) ccp.ResourceMask {
	return ccp.ResourceMaskFromByte(a.Encode() | b.Encode())
}
