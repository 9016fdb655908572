package types

// Request is a framed control-plane TCP request
type Request struct {
	Length            uint32
	RequestAPIKey     uint16
	RequestAPIVersion uint16
	CorrelationID     uint32
	ClientID          string
	ConnectionAddress string
	Body              []byte
}
