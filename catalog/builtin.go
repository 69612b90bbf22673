package catalog

// builtins are the storefront's own event types, preloaded into every
// Registry.
var builtins = []Definition{
	{
		Name:        "order.created",
		Description: "A customer completed checkout and a new order exists.",
	},
	{
		Name:        "order.updated",
		Description: "An order's status, items, or shipping details changed.",
	},
	{
		Name:        "order.cancelled",
		Description: "An order was cancelled before fulfillment.",
	},
	{
		Name:        "order.fulfilled",
		Description: "All items of an order have been shipped.",
	},
	{
		Name:        "cart.abandoned",
		Description: "A cart with items saw no activity past the abandonment window.",
	},
	{
		Name:        "stock.low",
		Description: "A product variant's inventory fell below its low-stock threshold.",
	},
	{
		Name:        "review.requested",
		Description: "A delivered order became eligible for a product review prompt.",
	},
	{
		Name:        "customer.created",
		Description: "A new customer account was registered.",
	},
}
