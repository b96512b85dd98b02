package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
)

// BatchKind selects the write operation
type BatchKind string

const (
	BatchCreate BatchKind = "create"
	BatchUpdate BatchKind = "update"
	BatchDelete BatchKind = "delete"
)

// BatchResult reports a sequence of batched writes.
// Records is index-aligned with the input; entries of failed batches are zero.
type BatchResult struct {
	Requested int
	Applied   int
	Failed    int
	Records   []Record
	Errors    []error
}

// BatchCallback is invoked after every successful batch with the input offset and
// the echoed records of that batch
type BatchCallback func(offset int, echoed []Record)

// BatchWrite submits records in fixed-size sequential batches.
// A failed batch is logged and skipped; the remaining batches still run.
// For deletes only the record IDs are used.
func (c *Client) BatchWrite(ctx context.Context, kind BatchKind, records []Record, onBatch BatchCallback) (*BatchResult, error) {
	if !c.creds.Valid() {
		return nil, ErrConfigInvalid
	}

	size := c.opts.BatchSize
	if kind == BatchDelete {
		size = c.opts.DeleteBatchSize
	}

	result := &BatchResult{
		Requested: len(records),
		Records:   make([]Record, len(records)),
	}

	for start := 0; start < len(records); start += size {
		if start > 0 && c.opts.BatchPause > 0 {
			if err := c.sleep(ctx, c.opts.BatchPause); err != nil {
				return result, err
			}
		}

		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		echoed, err := c.writeBatch(ctx, kind, batch)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			log.Printf("❌ %s batch %d-%d failed: %v", kind, start, end-1, err)
			result.Failed += len(batch)
			result.Errors = append(result.Errors, fmt.Errorf("%s batch %d-%d: %w", kind, start, end-1, err))
			continue
		}

		copy(result.Records[start:end], echoed)
		result.Applied += len(batch)
		log.Printf("✅ %s: processed %d records (total: %d)", kind, len(batch), result.Applied)
		if onBatch != nil {
			onBatch(start, echoed)
		}
	}

	return result, nil
}

func (c *Client) writeBatch(ctx context.Context, kind BatchKind, batch []Record) ([]Record, error) {
	switch kind {
	case BatchCreate, BatchUpdate:
		method := http.MethodPost
		payload := make([]Record, len(batch))
		for i, rec := range batch {
			payload[i] = Record{Fields: rec.Fields}
			if kind == BatchUpdate {
				method = http.MethodPatch
				payload[i].ID = rec.ID
			}
		}

		body, err := c.Execute(ctx, Operation{Method: method}, recordBatch{Records: payload, Typecast: true})
		if err != nil {
			return nil, err
		}
		var resp recordBatch
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", kind, err)
		}
		if len(resp.Records) != len(batch) {
			return nil, fmt.Errorf("%s response has %d records, sent %d", kind, len(resp.Records), len(batch))
		}
		return resp.Records, nil

	case BatchDelete:
		query := url.Values{}
		for _, rec := range batch {
			query.Add("records[]", rec.ID)
		}
		body, err := c.Execute(ctx, Operation{Method: http.MethodDelete, Query: query}, nil)
		if err != nil {
			return nil, err
		}
		var resp deleteResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode delete response: %w", err)
		}
		echoed := make([]Record, len(batch))
		for i, rec := range batch {
			echoed[i] = Record{ID: rec.ID}
		}
		return echoed, nil
	}

	return nil, fmt.Errorf("unknown batch kind %q", kind)
}
