package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeSubscriptionActivated = "subscription.activated"
	EventTypeSubscriptionPastDue   = "subscription.past_due"
	EventTypeSubscriptionCanceled  = "subscription.canceled"
	EventTypePaymentRecorded       = "payment.recorded"
	EventTypePaymentFailed         = "payment.failed"
)

type SubscriptionStatusEvent struct {
	BaseEvent
	SubscriptionID int64  `json:"subscription_id"`
	UserID         int64  `json:"user_id"`
	GatewayName    string `json:"gateway_name"`
	Status         string `json:"status"`
}

func newSubscriptionStatusEvent(eventType string, subscriptionID, userID int64, gatewayName, status string) *SubscriptionStatusEvent {
	return &SubscriptionStatusEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"subscription_id": subscriptionID,
				"user_id":         userID,
				"gateway_name":    gatewayName,
				"status":          status,
			},
		},
		SubscriptionID: subscriptionID,
		UserID:         userID,
		GatewayName:    gatewayName,
		Status:         status,
	}
}

func NewSubscriptionActivatedEvent(subscriptionID, userID int64, gatewayName, status string) *SubscriptionStatusEvent {
	return newSubscriptionStatusEvent(EventTypeSubscriptionActivated, subscriptionID, userID, gatewayName, status)
}

func NewSubscriptionPastDueEvent(subscriptionID, userID int64, gatewayName string) *SubscriptionStatusEvent {
	return newSubscriptionStatusEvent(EventTypeSubscriptionPastDue, subscriptionID, userID, gatewayName, "past_due")
}

func NewSubscriptionCanceledEvent(subscriptionID, userID int64, gatewayName string) *SubscriptionStatusEvent {
	return newSubscriptionStatusEvent(EventTypeSubscriptionCanceled, subscriptionID, userID, gatewayName, "canceled")
}

type PaymentRecordedEvent struct {
	BaseEvent
	PaymentID      int64  `json:"payment_id"`
	SubscriptionID int64  `json:"subscription_id"`
	UserID         int64  `json:"user_id"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	TransactionID  string `json:"transaction_id"`
}

func NewPaymentRecordedEvent(paymentID, subscriptionID, userID, amountMinor int64, currency, transactionID string) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentRecorded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":      paymentID,
				"subscription_id": subscriptionID,
				"user_id":         userID,
				"amount_minor":    amountMinor,
				"currency":        currency,
				"transaction_id":  transactionID,
			},
		},
		PaymentID:      paymentID,
		SubscriptionID: subscriptionID,
		UserID:         userID,
		AmountMinor:    amountMinor,
		Currency:       currency,
		TransactionID:  transactionID,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	SubscriptionID int64  `json:"subscription_id"`
	UserID         int64  `json:"user_id"`
	GatewayName    string `json:"gateway_name"`
	TransactionID  string `json:"transaction_id"`
}

func NewPaymentFailedEvent(subscriptionID, userID int64, gatewayName, transactionID string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"subscription_id": subscriptionID,
				"user_id":         userID,
				"gateway_name":    gatewayName,
				"transaction_id":  transactionID,
			},
		},
		SubscriptionID: subscriptionID,
		UserID:         userID,
		GatewayName:    gatewayName,
		TransactionID:  transactionID,
	}
}
