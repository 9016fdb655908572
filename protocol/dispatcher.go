package protocol

import "github.com/CefBoud/monmeta/types"

// https://kafka.apache.org/protocol#protocol_api_keys
var metadataKey = uint16(3)
var updateMetadataKey = uint16(6)
var apiVersionKey = uint16(18)
var createTopicKey = uint16(19)
var deleteTopicKey = uint16(20)

// APIKeyHandler represents an api key with its handler
type APIKeyHandler struct {
	Name    string
	Handler func(req types.Request) []byte
}

// APIDispatcher maps the Request key to its handler
func (b *Broker) APIDispatcher(requestAPIKey uint16) APIKeyHandler {
	switch requestAPIKey {
	case metadataKey:
		return APIKeyHandler{Name: "Metadata", Handler: b.getMetadataResponse}
	case updateMetadataKey:
		return APIKeyHandler{Name: "UpdateMetadata", Handler: b.getUpdateMetadataResponse}
	case apiVersionKey:
		return APIKeyHandler{Name: "APIVersion", Handler: b.getAPIVersionResponse}
	case createTopicKey:
		return APIKeyHandler{Name: "CreateTopic", Handler: b.getCreateTopicResponse}
	case deleteTopicKey:
		return APIKeyHandler{Name: "DeleteTopic", Handler: b.getDeleteTopicResponse}
	default:
		return APIKeyHandler{}
	}
}
