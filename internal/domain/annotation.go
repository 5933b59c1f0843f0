package domain

import "encoding/json"

// AnnotationPageType is the Web Annotation type tag of an AnnotationPage.
const AnnotationPageType = "AnnotationPage"

// AnnotationPage is the envelope handed to the sink: the derived endpoint URL
// as id, and the raw fetched JSON document as its single item.
type AnnotationPage struct {
	ID    string            `json:"id"`
	Type  string            `json:"type"`
	Items []json.RawMessage `json:"items"`
}

// NewAnnotationPage wraps a raw annotation document fetched from endpointURL.
func NewAnnotationPage(endpointURL string, doc json.RawMessage) AnnotationPage {
	return AnnotationPage{
		ID:    endpointURL,
		Type:  AnnotationPageType,
		Items: []json.RawMessage{doc},
	}
}
