package rpc

import (
	"context"
	"errors"
	"net/http"

	"nftmarket/core"
	"nftmarket/core/state"
	"nftmarket/native/marketplace"
)

type marketErrorData struct {
	Name string `json:"name"`
	Code uint32 `json:"code"`
}

// writeMarketError maps ledger failures onto JSON-RPC errors. Marketplace
// errors keep their stable name and numeric code in the error data.
func writeMarketError(w http.ResponseWriter, id interface{}, err error) *RPCError {
	if entry, ok := marketplace.Classify(err); ok {
		code := codeMarketBase - int(entry.Code-6000)
		return fail(w, marketStatus(entry.Err), id, code, err.Error(), marketErrorData{Name: entry.Name, Code: entry.Code})
	}
	switch {
	case errors.Is(err, core.ErrReceiptNotFound):
		return fail(w, http.StatusNotFound, id, codeServerError, err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fail(w, http.StatusServiceUnavailable, id, codeServerError, err.Error(), nil)
	default:
		return fail(w, http.StatusInternalServerError, id, codeServerError, "internal error", err.Error())
	}
}

func marketStatus(err error) int {
	switch err {
	case marketplace.ErrListingNotFound, marketplace.ErrMarketplaceNotFound:
		return http.StatusNotFound
	case marketplace.ErrUnauthorized, state.ErrAuthorityMismatch:
		return http.StatusForbidden
	case marketplace.ErrListingExists, marketplace.ErrMarketplaceExists:
		return http.StatusConflict
	case marketplace.ErrMathOverflow, marketplace.ErrNumericalOverflow:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}
