package protocol

import (
	"github.com/CefBoud/monmeta/serde"
	"github.com/CefBoud/monmeta/types"
)

// APIKey represents an API key and its supported version range.
type APIKey struct {
	APIKey     uint16
	MinVersion uint16
	MaxVersion uint16
}

// APIVersionsResponse represents the response for API versions request.
type APIVersionsResponse struct {
	ErrorCode    uint16
	APIKeys      []APIKey
	ThrottleTime uint32
}

// APIVersion (Api key = 18)
func (b *Broker) getAPIVersionResponse(req types.Request) []byte {
	response := APIVersionsResponse{
		APIKeys: []APIKey{
			{APIKey: metadataKey, MinVersion: 0, MaxVersion: 0},
			{APIKey: updateMetadataKey, MinVersion: 0, MaxVersion: 0},
			{APIKey: apiVersionKey, MinVersion: 0, MaxVersion: 0},
			{APIKey: createTopicKey, MinVersion: 0, MaxVersion: 0},
			{APIKey: deleteTopicKey, MinVersion: 0, MaxVersion: 0},
		},
	}

	encoder := serde.NewEncoder()
	encoder.PutInt32(req.CorrelationID)
	encoder.EndStruct()
	encoder.PutInt16(response.ErrorCode)
	encoder.PutArrayLen(len(response.APIKeys))
	for _, k := range response.APIKeys {
		encoder.PutInt16(k.APIKey)
		encoder.PutInt16(k.MinVersion)
		encoder.PutInt16(k.MaxVersion)
	}
	encoder.PutInt32(response.ThrottleTime)
	encoder.PutLen()
	return encoder.Bytes()
}
