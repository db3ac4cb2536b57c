package domain

const (
	TopicOrders = "/topic/order"
	// TopicMenu carries availability changes for every menu item; the board
	// keeps the ones matching loaded line items.
	TopicMenu = "/topic/menu"

	EventNewOrder       = "NEW_ORDER"
	EventOrderUpdated   = "ORDER_UPDATED"
	EventMenuItemStatus = "MENU_ITEM_STATUS"
)

// MenuItemStatus is the payload of EventMenuItemStatus.
type MenuItemStatus struct {
	ItemID int64  `json:"itemId"`
	Status string `json:"status"`
}
