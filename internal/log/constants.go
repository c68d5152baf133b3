package log

const (
	KeyAppName       = "app"
	KeyTag           = "tag"
	KeyProcess       = "process"
	KeyConfig        = "config"
	KeyAttemptID     = "attemptId"
	KeyProductID     = "productId"
	KeyOrderID       = "orderId"
	KeyAddressID     = "addressId"
	KeyCouponCode    = "couponCode"
	KeyPaymentMethod = "paymentMethod"
	KeyPaymentState  = "paymentState"
	KeyResumePath    = "resumePath"
	KeyRequestMethod = "requestMethod"
	KeyRequestURL    = "requestURL"
	KeyStatusCode    = "statusCode"
)
