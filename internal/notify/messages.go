package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/factorhub/marketplace/internal/models"
)

// delivery is an event with the records its messages are built from.
type delivery struct {
	event  *models.Event
	asset  *models.Asset
	seller *models.User
	bid    *models.Bid
	buyer  *models.User
	// token is the link token named by the event and linkToken its raw value.
	// Both are empty when the event carries no link or the token is gone.
	token     *models.ActionToken
	linkToken string
}

// currentAcceptance reports whether the delivery's payment link belongs to
// the bid's current acceptance, using the same test as redemption.
func (d *delivery) currentAcceptance() bool {
	if d.token == nil || d.bid == nil || d.bid.PaymentDeadline == nil {
		return false
	}
	return !d.token.IsConsumed() && d.token.ExpiresAt.Equal(*d.bid.PaymentDeadline)
}

func euros(cents int64) string {
	return "EUR " + models.CentsToDecimal(cents).StringFixed(2)
}

func (d *delivery) invoice() string {
	return fmt.Sprintf("invoice %s (%s, %s)", d.asset.InvoiceNumber, d.asset.BillToParty.Name, euros(d.asset.FaceValueInCents))
}

func link(baseURL, kind, token string) string {
	return strings.TrimRight(baseURL, "/") + "/links/" + kind + "/" + token
}

func feeApprovalEmail(d *delivery, baseURL string) Message {
	fee := models.ComputeFee(d.asset.FaceValueInCents)
	return Message{
		Kind:    d.event.Kind,
		To:      d.seller.Email,
		Subject: "Approve the platform fee for " + d.asset.InvoiceNumber,
		Body: fmt.Sprintf("Hello %s,\n\nYour %s is ready to list. The platform fee is %s.\n\nApprove it here:\n%s\n",
			d.seller.Name, d.invoice(), euros(fee), link(baseURL, "fee", d.linkToken)),
	}
}

func feeApprovedEmail(d *delivery) Message {
	return Message{
		Kind:    d.event.Kind,
		To:      d.seller.Email,
		Subject: "Fee approved for " + d.asset.InvoiceNumber,
		Body: fmt.Sprintf("Hello %s,\n\nThe fee of %s for %s is approved. We have asked %s to confirm the invoice.\n",
			d.seller.Name, euros(d.asset.FeesInCents), d.invoice(), d.asset.BillToParty.Name),
	}
}

func validationRequestEmail(d *delivery, baseURL string) Message {
	return Message{
		Kind:    d.event.Kind,
		To:      d.asset.BillToParty.Email,
		Subject: "Please confirm invoice " + d.asset.InvoiceNumber,
		Body: fmt.Sprintf("Hello %s,\n\n%s has listed %s, payable on %s. Please confirm the invoice is genuine:\n%s\n",
			d.asset.BillToParty.Name, d.seller.Name, d.invoice(), d.asset.PaymentDate.Format("2 January 2006"),
			link(baseURL, "validate", d.linkToken)),
	}
}

func validatedEmail(d *delivery) Message {
	return Message{
		Kind:    d.event.Kind,
		To:      d.seller.Email,
		Subject: "Invoice " + d.asset.InvoiceNumber + " validated",
		Body: fmt.Sprintf("Hello %s,\n\n%s confirmed %s. You can now post it to the marketplace.\n",
			d.seller.Name, d.asset.BillToParty.Name, d.invoice()),
	}
}

func bidAcceptedBuyerEmail(d *delivery, baseURL string) Message {
	body := fmt.Sprintf("Hello %s,\n\nYour bid of %s on %s was accepted.\n\nPlease transfer the amount before %s.",
		d.buyer.Name, euros(d.bid.AmountCents()), d.invoice(), d.bid.PaymentDeadline.Format(time.RFC1123))
	if d.linkToken != "" {
		body += "\n\nOnce you have paid, confirm here:\n" + link(baseURL, "payment", d.linkToken)
	}
	return Message{
		Kind:    d.event.Kind,
		To:      d.buyer.Email,
		Subject: "Your bid on " + d.asset.InvoiceNumber + " was accepted",
		Body:    body + "\n",
	}
}

func bidAcceptedSellerEmail(d *delivery) Message {
	return Message{
		Kind:    d.event.Kind,
		To:      d.seller.Email,
		Subject: "You accepted a bid on " + d.asset.InvoiceNumber,
		Body: fmt.Sprintf("Hello %s,\n\nYou accepted %s for %s. The buyer has until %s to pay.\n",
			d.seller.Name, euros(d.bid.AmountCents()), d.invoice(), d.bid.PaymentDeadline.Format(time.RFC1123)),
	}
}

func bidRejectedEmail(d *delivery) Message {
	return Message{
		Kind:    d.event.Kind,
		To:      d.buyer.Email,
		Subject: "Your bid on " + d.asset.InvoiceNumber + " was declined",
		Body: fmt.Sprintf("Hello %s,\n\nThe seller declined your bid of %s on %s.\n",
			d.buyer.Name, euros(d.bid.AmountCents()), d.invoice()),
	}
}

func paymentBuyerEmail(d *delivery) Message {
	return Message{
		Kind:    d.event.Kind,
		To:      d.buyer.Email,
		Subject: "Payment confirmed for " + d.asset.InvoiceNumber,
		Body: fmt.Sprintf("Hello %s,\n\nWe recorded your payment of %s for %s.\n",
			d.buyer.Name, euros(d.bid.AmountCents()), d.invoice()),
	}
}

func paymentSellerEmail(d *delivery) Message {
	return Message{
		Kind:    d.event.Kind,
		To:      d.seller.Email,
		Subject: "Buyer paid for " + d.asset.InvoiceNumber,
		Body: fmt.Sprintf("Hello %s,\n\nThe buyer confirmed payment of %s for %s.\n",
			d.seller.Name, euros(d.bid.AmountCents()), d.invoice()),
	}
}

// bellText returns the in-app notification text for the seller or buyer.
func bellText(d *delivery, forSeller bool) string {
	inv := d.asset.InvoiceNumber
	switch d.event.Kind {
	case models.EventAssetCreated:
		return "Invoice " + inv + " created. Approve the fee to continue."
	case models.EventFeeApproved:
		return "Fee approved for " + inv + ". Waiting for the bill-to party."
	case models.EventAssetValidated:
		return "Invoice " + inv + " was validated and can be posted."
	case models.EventAssetPosted:
		return "Invoice " + inv + " is live in the marketplace."
	case models.EventAssetCancelled:
		return "Invoice " + inv + " was cancelled."
	case models.EventBidPlaced:
		return fmt.Sprintf("New bid of %s on %s.", euros(d.bid.AmountCents()), inv)
	case models.EventBidAccepted:
		if forSeller {
			return fmt.Sprintf("You accepted %s on %s.", euros(d.bid.AmountCents()), inv)
		}
		return fmt.Sprintf("Your bid on %s was accepted. Pay within the deadline.", inv)
	case models.EventBidRejected:
		return "Your bid on " + inv + " was declined."
	case models.EventBidAcceptanceCancelled:
		return "The seller withdrew the acceptance of your bid on " + inv + "."
	case models.EventPaymentConfirmed:
		if forSeller {
			return "The buyer confirmed payment for " + inv + "."
		}
		return "Your payment for " + inv + " was recorded."
	default:
		return string(d.event.Kind) + " on " + inv
	}
}
