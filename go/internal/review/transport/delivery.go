package transport

// Delivery reports what happened to a published command. Anything but Delivered
// means remote participants must be assumed not to have seen it.
type Delivery int

const (
	NotConnected Delivery = iota
	Delivered
	EncodeFailed
	SendFailed
)

func (d Delivery) OK() bool {
	return d == Delivered
}

func (d Delivery) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case NotConnected:
		return "not_connected"
	case EncodeFailed:
		return "encode_failed"
	case SendFailed:
		return "send_failed"
	default:
		return "unknown"
	}
}
