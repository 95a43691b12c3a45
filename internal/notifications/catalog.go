// Package notifications renders user notifications from a fixed catalog.
// Callers pass a kind plus string params; text is produced server-side.
package notifications

import (
	"sort"
	"strings"
	"time"

	"auction-engine/internal/models"
	"auction-engine/utils"
)

type Kind string

const (
	AuctionCreated      Kind = "AuctionCreated"
	AuctionUpdated      Kind = "AuctionUpdated"
	AuctionCancelled    Kind = "AuctionCancelled"
	AuctionInvite       Kind = "AuctionInvite"
	AuctionWon          Kind = "AuctionWon"
	AuctionLost         Kind = "AuctionLost"
	AuctionClosed       Kind = "AuctionClosed"
	BidPlaced           Kind = "BidPlaced"
	BidUpdated          Kind = "BidUpdated"
	Outbid              Kind = "Outbid"
	InspectionStarted   Kind = "InspectionStarted"
	PaymentCompleted    Kind = "PaymentCompleted"
	PaymentReceived     Kind = "PaymentReceived"
	RefundRequestSeller Kind = "RefundRequestSeller"
	RefundRequestBuyer  Kind = "RefundRequestBuyer"
	RefundCompleted     Kind = "RefundCompleted"
	WalletFunded        Kind = "WalletFunded"
	WalletWithdrawn     Kind = "WalletWithdrawn"
	WithdrawalFailed    Kind = "WithdrawalFailed"
)

type template struct {
	title   string
	message string
}

var catalog = map[Kind]template{
	AuctionCreated:   {"Auction Created", "Your auction has been created successfully."},
	AuctionUpdated:   {"Auction Updated", "Your auction has been updated successfully."},
	AuctionCancelled: {"Auction Cancelled", "Auction {auction} has been cancelled."},
	AuctionInvite:    {"Auction Invitation", "You have been invited to bid on private auction {auction}."},
	AuctionWon:       {"Auction Won", "Congratulations! You have won auction {auction} with a bid of {amount}."},
	AuctionLost:      {"Auction Lost", "Unfortunately, you have lost auction {auction}. {amount} has been returned to your balance."},
	AuctionClosed:    {"Auction Closed", "Your auction {auction} has closed with a winning bid of {amount}."},
	BidPlaced:        {"Bid Placed", "Bid submitted successfully in auction: {auction}"},
	BidUpdated:       {"Bid Updated", "Your bid in auction {auction} has been raised to {amount}."},
	Outbid:           {"Outbid", "You have been outbid in auction {auction}. The highest bid is now {amount}."},
	InspectionStarted: {"Inspection Started",
		"The buyer is inspecting the item from auction {auction}. Payment is held until {due}."},
	PaymentCompleted: {"Payment Completed", "Payment completed successfully for auction {auction}."},
	PaymentReceived:  {"Payment Received", "{amount} for auction {auction} has been released to your wallet."},
	RefundRequestSeller: {"Refund Requested",
		"A refund has been requested for your auction {auction}, please confirm that you have received the item back then click the link below to complete the refund."},
	RefundRequestBuyer: {"Refund Processing",
		"Your refund is being processed. Return the item to the seller within 3 days to complete the refund."},
	RefundCompleted:  {"Refund Completed", "Your refund of {amount} for auction {auction} has been processed successfully."},
	WalletFunded:     {"Wallet Funded", "Your wallet has been credited with {amount}."},
	WalletWithdrawn:  {"Withdrawal Completed", "{amount} has been sent to your bank account."},
	WithdrawalFailed: {"Withdrawal Failed", "Your withdrawal of {amount} could not be completed."},
}

// Params fills the {placeholders} of a template.
type Params map[string]string

// Render returns the title and message for kind. Unknown kinds render the
// kind itself so a missing catalog entry never drops a notification.
func Render(kind Kind, params Params) (title, message string) {
	t, ok := catalog[kind]
	if !ok {
		return string(kind), string(kind)
	}
	if len(params) == 0 {
		return t.title, t.message
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", params[k])
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.title), r.Replace(t.message)
}

// New builds a notification row for userID.
func New(userID string, kind Kind, params Params, at time.Time, links ...string) models.Notification {
	title, message := Render(kind, params)
	return models.Notification{
		NotificationID: utils.GenerateID(),
		UserID:         userID,
		Kind:           string(kind),
		Title:          title,
		Message:        message,
		Links:          links,
		CreatedAt:      at,
	}
}
