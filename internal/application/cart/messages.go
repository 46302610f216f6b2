package cart

const (
	MsgAddFailed      = "Failed to add product"
	MsgOutOfStock     = "Requested quantity is out of stock"
	MsgRemoveFailed   = "Failed to remove product"
	MsgUpdateFailed   = "Failed to change product quantity"
	MsgCheckoutFailed = "Failed to complete order"
	MsgCheckoutDone   = "Order completed"
)
