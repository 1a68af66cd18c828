package kafka

// Topics для Kafka
const (
	TopicShopEvents      = "shop.events"
	TopicDeadLetterQueue = "shop.events.dlq"
)

// Заголовки сообщений, по которым потребители маршрутизируют события без разбора тела.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)
