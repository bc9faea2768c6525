package calibration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/roffe/goccp/pkg/ccp"
	"golang.org/x/mod/semver"
)

// ConnectWithRetry issues CONNECT until it succeeds or attempts run out.
// CONNECT is idempotent, so timeouts and counter mismatches are retried
// with a fresh counter. Argument errors are not.
func ConnectWithRetry(ctx context.Context, s *ccp.Session, attempts uint, delay time.Duration) error {
	return retry.Do(func() error {
		err := s.Connect(ctx)
		if errors.Is(err, ccp.ErrInvalidArgument) || errors.Is(err, ccp.ErrPayloadTooLong) {
			return retry.Unrecoverable(err)
		}
		return err
	},
		retry.Context(ctx),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(delay),
		retry.Attempts(attempts),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("connect retry %d: %v", n+1, err)
		}),
		retry.LastErrorOnly(true),
	)
}

// RequireVersion asks the ECU which CCP version it speaks and fails if it
// is older than minVersion, given as "major.minor".
func RequireVersion(ctx context.Context, s *ccp.Session, minVersion string) (ccp.Version, error) {
	want := "v" + minVersion
	if !semver.IsValid(want) {
		return ccp.Version{}, fmt.Errorf("%w: bad version %q", ccp.ErrInvalidArgument, minVersion)
	}
	v, err := s.GetCCPVersion(ctx, 2, 1)
	if err != nil {
		return v, err
	}
	got := fmt.Sprintf("v%d.%d", v.Main, v.Release)
	if semver.Compare(got, want) < 0 {
		return v, fmt.Errorf("ECU speaks CCP %s, need %s or later", v, minVersion)
	}
	return v, nil
}
