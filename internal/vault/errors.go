package vault

import "errors"

var (
	// ErrInvalidPassword: authentication-tag mismatch on the header
	// keywrap or the index. Recoverable; the caller may re-prompt.
	ErrInvalidPassword = errors.New("vault: invalid password")

	// ErrCorruptVault: the container's structural framing is invalid
	// independent of any password.
	ErrCorruptVault = errors.New("vault: corrupt container")

	// ErrKeyNotFound: operation on an absent entry key.
	ErrKeyNotFound = errors.New("vault: key not found")

	// ErrAlreadyExists: Create on a path that already holds a container.
	ErrAlreadyExists = errors.New("vault: already exists")

	// ErrLocked: a session operation before Create/Unlock succeeded.
	ErrLocked = errors.New("vault: not unlocked")

	// ErrBusy: another process holds the session lock on this vault.
	ErrBusy = errors.New("vault: locked by another process")

	// ErrInvalidKey: empty entry key.
	ErrInvalidKey = errors.New("vault: empty key")
)
