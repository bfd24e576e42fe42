package domain

// OfferRepository описывает требования к хранилищу офферов.
type OfferRepository interface {
	// Create сохраняет новый оффер. Возвращает ошибку, если запись с таким ID уже существует.
	Create(offer Offer) error
	// Get возвращает оффер по идентификатору или ErrOfferNotFound, если его нет.
	Get(id string) (Offer, error)
	// ListByParty возвращает офферы, где участник — клиент или портной.
	ListByParty(partyID string, limit int) ([]Offer, error)
	// Save применяет обновления к офферу с учётом optimistic locking.
	Save(offer Offer) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByParty возвращает заказы, где участник — клиент или портной.
	ListByParty(partyID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// RefundRepository описывает требования к хранилищу заявок на возврат.
type RefundRepository interface {
	// Create сохраняет новую заявку; возвращает ErrDuplicateRequest,
	// если по заказу уже есть заявка в статусе pending.
	Create(request RefundRequest) error
	// Get возвращает заявку или ErrRefundNotFound, если её нет.
	Get(id string) (RefundRequest, error)
	// ListByOrder возвращает заявки по заказу в порядке создания.
	ListByOrder(orderID string) ([]RefundRequest, error)
	// Save применяет обновления к заявке с учётом optimistic locking.
	Save(request RefundRequest) error
}

// ConversionStore атомарно фиксирует конвертацию оффера в заказ:
// либо сохраняются и принятый оффер, и созданный заказ, либо ничего.
// Проверка версии оффера входит в фиксацию, поэтому при конкурирующих
// акцептах заказ будет создан ровно один раз.
type ConversionStore interface {
	CommitAcceptance(offer Offer, order Order) error
}
