package middleware

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// CallerHeader carries the acting member's address on every API request.
// Signature verification of that identity belongs to the presentation layer
// in front of this service.
const CallerHeader = "X-Caller-Address"

type callerKey struct{}

// Caller returns middleware that decodes the caller address header into the
// request context. Requests without a valid header pass through; handlers
// that require an identity reject them.
func Caller() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v := r.Header.Get(CallerHeader); common.IsHexAddress(v) {
				addr := common.HexToAddress(v)
				if addr != (common.Address{}) {
					r = r.WithContext(context.WithValue(r.Context(), callerKey{}, addr))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallerFrom extracts the caller address set by Caller. The second return is
// false when the request carried no valid identity.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}
