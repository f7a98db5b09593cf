package recordaccess

import (
	"fmt"
	"log/slog"

	"capstan/internal/history"
	"capstan/internal/ipc"
	"capstan/internal/records"
)

// Session represents a record access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries IPC-backed access first, then falls back to direct
// snapshot access. The fallback serves reads from the snapshot file; Cancel
// is the only operation that writes it back.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStores func() (*records.Store, *history.Store, error),
	logger *slog.Logger,
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{
				Access: NewIPCAccess(client),
				close:  client.Close,
			}, nil
		}
	}

	if openStores == nil {
		return Session{}, fmt.Errorf("open record store: no store opener configured")
	}
	store, hist, err := openStores()
	if err != nil {
		return Session{}, fmt.Errorf("open record store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(store, hist, logger),
		close: func() error {
			if hist != nil {
				return hist.Close()
			}
			return nil
		},
	}, nil
}
