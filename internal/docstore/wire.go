package docstore

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/gasbottle/internal/models"
)

// Field names of the document envelope on the wire.
const (
	fieldKey       = "key"
	fieldValue     = "value"
	fieldUpdatedAt = "updatedAt"
	fieldDocuments = "documents"
)

// EncodeDocument converts a document into its wire struct.
func EncodeDocument(doc models.Document) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(documentMap(doc))
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", doc.Key, err)
	}
	return s, nil
}

// DecodeDocument converts a wire struct back into a document.
func DecodeDocument(s *structpb.Struct) (models.Document, error) {
	return documentFromMap(s.AsMap())
}

// EncodePut builds the request of a Put call.
func EncodePut(key string, value map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]any{
		fieldKey:   key,
		fieldValue: value,
	})
	if err != nil {
		return nil, fmt.Errorf("encode put %s: %w", key, err)
	}
	return s, nil
}

// DecodePut reads the key and value of a Put request.
func DecodePut(s *structpb.Struct) (string, map[string]any, error) {
	m := s.AsMap()
	key, _ := m[fieldKey].(string)
	if key == "" {
		return "", nil, fmt.Errorf("%w: put without key", models.ErrValidation)
	}
	value, ok := m[fieldValue].(map[string]any)
	if !ok {
		return "", nil, fmt.Errorf("%w: put %s without object value", models.ErrValidation, key)
	}
	return key, value, nil
}

// EncodeSnapshot wraps a list of documents for a Watch message.
func EncodeSnapshot(docs []models.Document) (*structpb.Struct, error) {
	list := make([]any, 0, len(docs))
	for _, doc := range docs {
		list = append(list, documentMap(doc))
	}
	s, err := structpb.NewStruct(map[string]any{fieldDocuments: list})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return s, nil
}

// DecodeSnapshot unwraps a Watch message.
func DecodeSnapshot(s *structpb.Struct) ([]models.Document, error) {
	raw, _ := s.AsMap()[fieldDocuments].([]any)
	docs := make([]models.Document, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("snapshot entry %d is not an object", i)
		}
		doc, err := documentFromMap(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func documentMap(doc models.Document) map[string]any {
	value := doc.Value
	if value == nil {
		value = map[string]any{}
	}
	return map[string]any{
		fieldKey:       doc.Key,
		fieldValue:     value,
		fieldUpdatedAt: float64(doc.UpdatedAt),
	}
}

func documentFromMap(m map[string]any) (models.Document, error) {
	key, _ := m[fieldKey].(string)
	if key == "" {
		return models.Document{}, fmt.Errorf("document without key")
	}
	value, _ := m[fieldValue].(map[string]any)
	updated, _ := m[fieldUpdatedAt].(float64)
	return models.Document{Key: key, Value: value, UpdatedAt: int64(updated)}, nil
}
