package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/factorhub/marketplace/internal/api/pages"
	"github.com/factorhub/marketplace/internal/marketplace"
	"github.com/factorhub/marketplace/internal/models"
	"github.com/go-chi/chi/v5"
)

// LinkHandler serves the one-time links sent by email. The caller is
// identified by the token alone. GET only shows a confirmation page, so mail
// scanners that prefetch links cannot act on them; the action runs on POST.
type LinkHandler struct {
	svc    *marketplace.Service
	logger *slog.Logger
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(svc *marketplace.Service, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{svc: svc, logger: logger}
}

type redeemer func(ctx context.Context, raw string) (*marketplace.TokenResult, error)

// ShowFee handles GET /links/fee/{token}.
func (h *LinkHandler) ShowFee(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, models.TokenPurposeFeeApproval)
}

// ShowValidate handles GET /links/validate/{token}.
func (h *LinkHandler) ShowValidate(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, models.TokenPurposeValidation)
}

// ShowPayment handles GET /links/payment/{token}.
func (h *LinkHandler) ShowPayment(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, models.TokenPurposePaymentApproval)
}

// ApproveFee handles POST /links/fee/{token}.
func (h *LinkHandler) ApproveFee(w http.ResponseWriter, r *http.Request) {
	h.follow(w, r, h.svc.ApproveFeeByToken)
}

// Validate handles POST /links/validate/{token}.
func (h *LinkHandler) Validate(w http.ResponseWriter, r *http.Request) {
	h.follow(w, r, h.svc.ValidateByBillToParty)
}

// ConfirmPayment handles POST /links/payment/{token}.
func (h *LinkHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	h.follow(w, r, h.svc.ConfirmPaymentByToken)
}

func (h *LinkHandler) show(w http.ResponseWriter, r *http.Request, purpose models.TokenPurpose) {
	res, err := h.svc.LookupLink(r.Context(), chi.URLParam(r, "token"), purpose)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if res.Outcome != marketplace.TokenPending {
		h.render(w, r, res)
		return
	}
	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, res)
		return
	}
	page := confirmPage(purpose)
	page.Action = r.URL.Path
	templ.Handler(pages.StatusPage(page), templ.WithStatus(http.StatusOK)).ServeHTTP(w, r)
}

func (h *LinkHandler) follow(w http.ResponseWriter, r *http.Request, redeem redeemer) {
	res, err := redeem(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, res)
}

func (h *LinkHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("failed to process link", "error", err)
	if wantsJSON(r) {
		WriteInternalError(w, r, "Failed to process link")
		return
	}
	page := pages.Status{Tone: pages.ToneError, Title: "Something went wrong", Message: "Please try the link again later."}
	templ.Handler(pages.StatusPage(page), templ.WithStatus(http.StatusInternalServerError)).ServeHTTP(w, r)
}

func (h *LinkHandler) render(w http.ResponseWriter, r *http.Request, res *marketplace.TokenResult) {
	status := outcomeStatus(res.Outcome)
	if wantsJSON(r) {
		WriteJSON(w, status, res)
		return
	}
	templ.Handler(pages.StatusPage(statusPage(res)), templ.WithStatus(status)).ServeHTTP(w, r)
}

func outcomeStatus(o marketplace.TokenOutcome) int {
	switch o {
	case marketplace.TokenSuccess, marketplace.TokenAlreadyCompleted:
		return http.StatusOK
	case marketplace.TokenDeadlinePassed:
		return http.StatusGone
	case marketplace.TokenInvalid:
		return http.StatusConflict
	default:
		return http.StatusNotFound
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// statusPage picks the copy for one of the four outcomes a link can have:
// invalid, already done, expired or success.
func statusPage(res *marketplace.TokenResult) pages.Status {
	switch res.Outcome {
	case marketplace.TokenSuccess:
		return successPage(res)
	case marketplace.TokenAlreadyCompleted:
		return pages.Status{
			Tone:    pages.ToneInfo,
			Title:   "Already done",
			Message: alreadyDoneMessage(res.Purpose),
		}
	case marketplace.TokenDeadlinePassed:
		return pages.Status{
			Tone:    pages.ToneWarning,
			Title:   "Link expired",
			Message: expiredMessage(res.Purpose),
		}
	default:
		p := pages.Status{
			Tone:    pages.ToneError,
			Title:   "Invalid link",
			Message: "This link is not valid. It may have been mistyped or the request was withdrawn.",
		}
		if res.Outcome == marketplace.TokenInvalid && res.Reason != "" {
			p.Detail = res.Reason
		}
		return p
	}
}

func confirmPage(purpose models.TokenPurpose) pages.Status {
	p := pages.Status{Tone: pages.ToneInfo}
	switch purpose {
	case models.TokenPurposeFeeApproval:
		p.Title = "Approve the platform fee"
		p.Message = "Approve the 1% platform fee so the invoice can be sent for confirmation."
		p.Button = "Approve fee"
	case models.TokenPurposeValidation:
		p.Title = "Confirm invoice"
		p.Message = "Confirm that this invoice is genuine and will be paid on its due date."
		p.Button = "Confirm invoice"
	default:
		p.Title = "Confirm payment"
		p.Message = "Confirm once you have transferred the bid amount to the seller."
		p.Button = "Confirm payment"
	}
	return p
}

func successPage(res *marketplace.TokenResult) pages.Status {
	p := pages.Status{Tone: pages.ToneSuccess}
	switch res.Purpose {
	case models.TokenPurposeFeeApproval:
		p.Title = "Fee approved"
		p.Message = "Thank you. We have asked the bill-to party to confirm the invoice."
		if res.Asset != nil {
			p.Detail = "Platform fee: EUR " + res.Asset.Fees.StringFixed(2)
		}
	case models.TokenPurposeValidation:
		p.Title = "Invoice confirmed"
		p.Message = "Thank you for confirming the invoice."
		if res.Asset != nil {
			p.Detail = "Invoice " + res.Asset.InvoiceNumber
		}
	case models.TokenPurposePaymentApproval:
		p.Title = "Payment confirmed"
		p.Message = "Thank you. The seller has been told that your payment is on its way."
		if res.Bid != nil {
			p.Detail = "Amount: EUR " + res.Bid.Amount.StringFixed(2)
		}
	}
	return p
}

func alreadyDoneMessage(purpose models.TokenPurpose) string {
	switch purpose {
	case models.TokenPurposeFeeApproval:
		return "The fee for this invoice has already been approved."
	case models.TokenPurposeValidation:
		return "This invoice has already been confirmed."
	default:
		return "Payment for this bid has already been confirmed."
	}
}

func expiredMessage(purpose models.TokenPurpose) string {
	if purpose == models.TokenPurposePaymentApproval {
		return "The payment window for this bid has closed."
	}
	return "This link has expired. Please ask the seller to send a new one."
}
