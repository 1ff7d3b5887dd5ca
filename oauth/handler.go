package oauth

import (
	"context"
	"errors"

	goGuard "github.com/MrEthical07/goGuard"
)

// UserHandler connects OAuth identities to the embedder's accounts. Lookups
// report absence with found=false, not an error.
type UserHandler[U any] interface {
	FindByOAuthID(ctx context.Context, provider, providerUserID string) (user U, found bool, err error)
	FindByEmail(ctx context.Context, email string) (user U, found bool, err error)
	LinkOAuthAccount(ctx context.Context, user U, provider, providerUserID string) (U, error)
	CreateFromOAuth(ctx context.Context, provider string, info UserInfo) (U, error)
}

// Resolution says which branch of FindOrCreate produced the user.
type Resolution uint8

const (
	ResolvedExisting Resolution = iota + 1
	ResolvedLinked
	ResolvedCreated
)

func (r Resolution) String() string {
	switch r {
	case ResolvedExisting:
		return "existing"
	case ResolvedLinked:
		return "linked"
	case ResolvedCreated:
		return "created"
	default:
		return "unknown"
	}
}

// FindOrCreate resolves info to an account: by provider identity, then by
// email with linking, then by creating a new account. There are no retries
// and no rollback; any handler failure aborts with BackendError.
//
// Two concurrent first logins for the same new email can both reach the
// create step. Handlers that need exactly one account must enforce it in
// storage, e.g. with a unique constraint on email.
func FindOrCreate[U any](ctx context.Context, h UserHandler[U], provider string, info UserInfo) (U, Resolution, error) {
	var zero U

	user, found, err := h.FindByOAuthID(ctx, provider, info.ProviderUserID)
	if err != nil {
		return zero, 0, backendErr(err, "find_by_oauth_id")
	}
	if found {
		return user, ResolvedExisting, nil
	}

	if info.Email != "" {
		user, found, err = h.FindByEmail(ctx, info.Email)
		if err != nil {
			return zero, 0, backendErr(err, "find_by_email")
		}
		if found {
			linked, err := h.LinkOAuthAccount(ctx, user, provider, info.ProviderUserID)
			if err != nil {
				return zero, 0, backendErr(err, "link_oauth_account")
			}
			return linked, ResolvedLinked, nil
		}
	}

	created, err := h.CreateFromOAuth(ctx, provider, info)
	if err != nil {
		return zero, 0, backendErr(err, "create_from_oauth")
	}
	return created, ResolvedCreated, nil
}

func backendErr(err error, step string) error {
	var ae *goGuard.Error
	if errors.As(err, &ae) {
		return ae.With("step", step)
	}
	return goGuard.WrapError(goGuard.CodeBackendError, err).With("step", step)
}
