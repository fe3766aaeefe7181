package events

// Topic constants for domain events emitted by the point-of-sale service.
const (
	TopicSaleCompleted  = "sale.completed"
	TopicReturnCreated  = "return.created"
	TopicStockLow       = "stock.low"
	TopicStockAdjusted  = "stock.adjusted"
	TopicPOItemReceived = "purchase_order.item_received"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicSaleCompleted,
		TopicReturnCreated,
		TopicStockLow,
		TopicStockAdjusted,
		TopicPOItemReceived,
	}
}
