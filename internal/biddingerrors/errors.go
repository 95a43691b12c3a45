package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrAuctionNotFound = errors.New("auction not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrBidNotFound     = errors.New("bid not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrEntryNotFound   = errors.New("ledger entry not found")
	ErrChatNotFound    = errors.New("chat not found")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrConflict        = errors.New("concurrent update conflict")
	ErrRateLimited     = errors.New("too many requests")
)

// business logic errors
var (
	ErrInvalidBid         = errors.New("invalid bid")
	ErrBidTooLow          = errors.New("bid amount too low")
	ErrInsufficientFunds  = errors.New("insufficient wallet balance")
	ErrAuctionNotActive   = errors.New("auction is not active")
	ErrBuyNowUnavailable  = errors.New("buy now is not available")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrPasswordMismatch   = errors.New("password mismatch")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvariantViolation = errors.New("ledger invariant violated")
)

// access errors
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("operation not permitted")
	ErrNotParticipant  = errors.New("not a participant in this auction")
	ErrOwnAuction      = errors.New("cannot bid on own auction")
	ErrValidation      = errors.New("validation failed")
)

// Kind is the error class surfaced at the API boundary.
type Kind string

const (
	KindAuthentication Kind = "Authentication"
	KindAuthorization  Kind = "Authorization"
	KindNotFound       Kind = "NotFound"
	KindValidation     Kind = "Validation"
	KindBusinessRule   Kind = "BusinessRule"
	KindConflict       Kind = "Conflict"
	KindRateLimit      Kind = "RateLimit"
	KindInternal       Kind = "Internal"
)

var kinds = []struct {
	err    error
	kind   Kind
	detail string
}{
	{ErrUnauthenticated, KindAuthentication, "Unauthenticated"},
	{ErrForbidden, KindAuthorization, "Forbidden"},
	{ErrNotParticipant, KindAuthorization, "NotParticipant"},
	{ErrOwnAuction, KindAuthorization, "OwnAuction"},
	{ErrUserNotFound, KindNotFound, "UserNotFound"},
	{ErrAuctionNotFound, KindNotFound, "AuctionNotFound"},
	{ErrItemNotFound, KindNotFound, "ItemNotFound"},
	{ErrBidNotFound, KindNotFound, "BidNotFound"},
	{ErrPaymentNotFound, KindNotFound, "PaymentNotFound"},
	{ErrEntryNotFound, KindNotFound, "EntryNotFound"},
	{ErrChatNotFound, KindNotFound, "ChatNotFound"},
	{ErrNoBids, KindNotFound, "NoBids"},
	{ErrValidation, KindValidation, "ValidationError"},
	{ErrInvalidBid, KindValidation, "InvalidBid"},
	{ErrBidTooLow, KindBusinessRule, "BidTooLow"},
	{ErrInsufficientFunds, KindBusinessRule, "InsufficientFunds"},
	{ErrAuctionNotActive, KindBusinessRule, "AuctionNotActive"},
	{ErrBuyNowUnavailable, KindBusinessRule, "BuyNowUnavailable"},
	{ErrInvalidTransition, KindBusinessRule, "InvalidTransition"},
	{ErrDuplicateEmail, KindBusinessRule, "DuplicateEmail"},
	{ErrPasswordMismatch, KindBusinessRule, "PasswordMismatch"},
	{ErrInvalidSignature, KindBusinessRule, "InvalidSignature"},
	{ErrConflict, KindConflict, "Conflict"},
	{ErrRateLimited, KindRateLimit, "RateLimited"},
}

// KindOf classifies an error chain. Unknown errors, including
// ErrInvariantViolation, are Internal.
func KindOf(err error) Kind {
	k, _ := Classify(err)
	return k
}

// Classify returns the kind and the machine-readable detail code of err.
func Classify(err error) (Kind, string) {
	if err == nil {
		return "", ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind, k.detail
		}
	}
	return KindInternal, "InternalError"
}
