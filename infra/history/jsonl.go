package history

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/evgrid/stationd/core/model"
)

// JSONLStore appends billing records to a JSON-lines file. The write handle
// stays open for the life of the store; queries open their own reader.
type JSONLStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
	enc  *json.Encoder
}

func NewJSONLStore(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLStore{path: path, f: f, enc: json.NewEncoder(f)}, nil
}

func (s *JSONLStore) Append(ctx context.Context, rec model.BillingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

func (s *JSONLStore) Query(ctx context.Context, q Query) ([]model.BillingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var res []model.BillingRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r model.BillingRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			// Skip lines damaged by a partial write.
			continue
		}
		if matches(r, q) {
			res = append(res, r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
