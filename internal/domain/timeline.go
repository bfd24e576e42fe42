package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле оффера, заказа или заявки.
type TimelineEvent struct {
	AggregateType string
	AggregateID   string
	Type          string
	Reason        string
	Occurred      time.Time
}
