package httpapi

import (
	"time"

	"github.com/tailorlink/negotiation/internal/domain"
)

type serviceLineView struct {
	ServiceID      string `json:"service_id"`
	ServiceName    string `json:"service_name"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

type negotiationEntryView struct {
	ID          string    `json:"id"`
	ByID        string    `json:"by_id"`
	ByRole      string    `json:"by_role"`
	AmountMinor int64     `json:"amount_minor"`
	Message     string    `json:"message,omitempty"`
	Accepted    bool      `json:"accepted"`
	CreatedAt   time.Time `json:"created_at"`
}

type offerView struct {
	ID               string                 `json:"id"`
	CustomerID       string                 `json:"customer_id"`
	TailorID         string                 `json:"tailor_id"`
	Currency         string                 `json:"currency"`
	SelectedServices []serviceLineView      `json:"selected_services"`
	ExtraServices    []serviceLineView      `json:"extra_services,omitempty"`
	AmountMinor      int64                  `json:"amount_minor"`
	History          []negotiationEntryView `json:"negotiation_history"`
	Status           string                 `json:"status"`
	OrderID          string                 `json:"order_id,omitempty"`
	Version          int64                  `json:"version"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

type pricingView struct {
	SubtotalMinor        int64 `json:"subtotal_minor"`
	VoucherDiscountMinor int64 `json:"voucher_discount_minor"`
	TaxMinor             int64 `json:"tax_minor"`
	ShippingMinor        int64 `json:"shipping_minor"`
	TotalMinor           int64 `json:"total_minor"`
}

type orderView struct {
	ID               string            `json:"id"`
	OfferID          string            `json:"offer_id"`
	CustomerID       string            `json:"customer_id"`
	TailorID         string            `json:"tailor_id"`
	Currency         string            `json:"currency"`
	UtilizedServices []serviceLineView `json:"utilized_services"`
	ExtraServices    []serviceLineView `json:"extra_services,omitempty"`
	Pricing          pricingView       `json:"pricing"`
	Status           string            `json:"status"`
	PaymentStatus    string            `json:"payment_status"`
	Version          int64             `json:"version"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type refundView struct {
	ID                  string    `json:"id"`
	OrderID             string    `json:"order_id"`
	CustomerID          string    `json:"customer_id"`
	Reason              string    `json:"reason"`
	Currency            string    `json:"currency"`
	AmountMinor         int64     `json:"amount_minor"`
	OriginalAmountMinor int64     `json:"original_amount_minor"`
	Status              string    `json:"status"`
	AdminNotes          string    `json:"admin_notes,omitempty"`
	Version             int64     `json:"version"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type timelineEventView struct {
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	Type          string    `json:"type"`
	Reason        string    `json:"reason,omitempty"`
	Occurred      time.Time `json:"occurred"`
}

func toServiceLineViews(lines []domain.ServiceLine) []serviceLineView {
	views := make([]serviceLineView, 0, len(lines))
	for _, line := range lines {
		views = append(views, serviceLineView{
			ServiceID:      line.ServiceID,
			ServiceName:    line.ServiceName,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
		})
	}
	return views
}

func toOfferView(offer domain.Offer) offerView {
	history := make([]negotiationEntryView, 0, len(offer.History))
	for _, entry := range offer.History {
		history = append(history, negotiationEntryView{
			ID:          entry.ID,
			ByID:        entry.By.ID,
			ByRole:      string(entry.By.Role),
			AmountMinor: entry.AmountMinor,
			Message:     entry.Message,
			Accepted:    entry.Accepted,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return offerView{
		ID:               offer.ID,
		CustomerID:       offer.CustomerID,
		TailorID:         offer.TailorID,
		Currency:         offer.Currency,
		SelectedServices: toServiceLineViews(offer.SelectedServices),
		ExtraServices:    toServiceLineViews(offer.ExtraServices),
		AmountMinor:      offer.AmountMinor,
		History:          history,
		Status:           string(offer.Status),
		OrderID:          offer.OrderID,
		Version:          offer.Version,
		CreatedAt:        offer.CreatedAt,
		UpdatedAt:        offer.UpdatedAt,
	}
}

func toOrderView(ord domain.Order) orderView {
	return orderView{
		ID:               ord.ID,
		OfferID:          ord.OfferID,
		CustomerID:       ord.CustomerID,
		TailorID:         ord.TailorID,
		Currency:         ord.Currency,
		UtilizedServices: toServiceLineViews(ord.UtilizedServices),
		ExtraServices:    toServiceLineViews(ord.ExtraServices),
		Pricing: pricingView{
			SubtotalMinor:        ord.Pricing.SubtotalMinor,
			VoucherDiscountMinor: ord.Pricing.VoucherDiscountMinor,
			TaxMinor:             ord.Pricing.TaxMinor,
			ShippingMinor:        ord.Pricing.ShippingMinor,
			TotalMinor:           ord.Pricing.TotalMinor,
		},
		Status:        string(ord.Status),
		PaymentStatus: string(ord.PaymentStatus),
		Version:       ord.Version,
		CreatedAt:     ord.CreatedAt,
		UpdatedAt:     ord.UpdatedAt,
	}
}

func toRefundView(request domain.RefundRequest) refundView {
	return refundView{
		ID:                  request.ID,
		OrderID:             request.OrderID,
		CustomerID:          request.CustomerID,
		Reason:              request.Reason,
		Currency:            request.Currency,
		AmountMinor:         request.AmountMinor,
		OriginalAmountMinor: request.OriginalAmountMinor,
		Status:              string(request.Status),
		AdminNotes:          request.AdminNotes,
		Version:             request.Version,
		CreatedAt:           request.CreatedAt,
		UpdatedAt:           request.UpdatedAt,
	}
}

func toTimelineViews(events []domain.TimelineEvent) []timelineEventView {
	views := make([]timelineEventView, 0, len(events))
	for _, event := range events {
		views = append(views, timelineEventView{
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Type:          event.Type,
			Reason:        event.Reason,
			Occurred:      event.Occurred,
		})
	}
	return views
}
