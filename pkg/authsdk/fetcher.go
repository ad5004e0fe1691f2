package authsdk

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/authsession/pkg/idx"
	"golang.org/x/sync/singleflight"
)

const fetchKey = "tokens"

// fetcher keeps at most one IdentityProvider.GetTokens call outstanding.
// Callers arriving while a call is in flight share its result.
type fetcher struct {
	provider IdentityProvider
	recorder Recorder
	log      *slog.Logger

	group singleflight.Group
}

// fetch joins or starts the shared call. The call runs detached from ctx, a
// caller whose context ends stops waiting but the call still completes for
// the others.
func (f *fetcher) fetch(ctx context.Context) (JWTCredentials, error) {
	ch := f.group.DoChan(fetchKey, func() (any, error) {
		fetchID := idx.NewKind(idx.KindFetch)
		log := f.log.With("fetch_id", fetchID.String())
		log.Debug("fetching tokens from identity provider")

		creds, err := f.provider.GetTokens(context.WithoutCancel(ctx))
		if err != nil {
			f.recorder.ProviderFetch(OutcomeFailure)
			log.Warn("identity provider token fetch failed", "err", err)
			return JWTCredentials{}, err
		}

		f.recorder.ProviderFetch(OutcomeSuccess)
		return creds, nil
	})

	select {
	case <-ctx.Done():
		return JWTCredentials{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return JWTCredentials{}, res.Err
		}
		return res.Val.(JWTCredentials), nil
	}
}

// forget drops any in-flight call so the next fetch goes to the provider.
func (f *fetcher) forget() {
	f.group.Forget(fetchKey)
}
