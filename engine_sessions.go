package tokenauth

import "context"

// ActiveSessions reports how many refresh sessions of userID are still live.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) (int, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	n, err := e.sessions.ActiveSessionCount(sctx, userID)
	if err != nil {
		return 0, backendError(err)
	}
	return n, nil
}
