package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/boletin-radar/internal/dedupe"
	"github.com/DeafMist/boletin-radar/internal/models"
	"github.com/DeafMist/boletin-radar/internal/processing"
)

// Client wraps go-elasticsearch as a dedupe.Store over one index.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

var _ dedupe.Store = (*Client)(nil)

// SearchParams narrow the record listing.
type SearchParams struct {
	Query string
	From  int
	Size  int
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64           `json:"total"`
	Items []models.Record `json:"items"`
}

// document is the stored shape of a record.
type document struct {
	Key       string `json:"record_key"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "record_key": {"type": "keyword", "ignore_above": 8191},
      "timestamp":  {"type": "date", "format": "yyyy-MM-dd HH:mm:ss"},
      "message":    {"type": "text"}
    }
  }
}`

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the record index with its mapping when missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// Another process may have created it in between.
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("created record index", slog.String("index", c.index))
	return nil
}

// Get fetches the record stored under key. The revision is the document's
// sequence number and primary term.
func (c *Client) Get(ctx context.Context, key string) (models.Record, bool, error) {
	req := esapi.GetRequest{
		Index:      c.index,
		DocumentID: processing.BuildRecordID(key),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return models.Record{}, false, fmt.Errorf("get record: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return models.Record{}, false, nil
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return models.Record{}, false, fmt.Errorf("get record failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Found       bool     `json:"found"`
		SeqNo       int      `json:"_seq_no"`
		PrimaryTerm int      `json:"_primary_term"`
		Source      document `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return models.Record{}, false, fmt.Errorf("decode record: %w", err)
	}
	if !parsed.Found {
		return models.Record{}, false, nil
	}

	ts, err := models.ParseTimestamp(parsed.Source.Timestamp)
	if err != nil {
		return models.Record{}, false, fmt.Errorf("parse record timestamp: %w", err)
	}

	return models.Record{
		Key:       parsed.Source.Key,
		Timestamp: ts,
		Message:   parsed.Source.Message,
		Revision:  formatRevision(parsed.SeqNo, parsed.PrimaryTerm),
	}, true, nil
}

// Create writes rec only if no document exists for its key.
func (c *Client) Create(ctx context.Context, rec models.Record) error {
	payload, err := encode(rec)
	if err != nil {
		return err
	}

	req := esapi.CreateRequest{
		Index:      c.index,
		DocumentID: processing.BuildRecordID(rec.Key),
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	defer res.Body.Close()

	return checkWrite(res, "create record")
}

// Replace overwrites prev with next if the document has not changed since
// prev was read.
func (c *Client) Replace(ctx context.Context, prev, next models.Record) error {
	seqNo, primaryTerm, err := parseRevision(prev.Revision)
	if err != nil {
		return dedupe.ErrConflict
	}

	next.Key = prev.Key
	payload, err := encode(next)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:         c.index,
		DocumentID:    processing.BuildRecordID(prev.Key),
		Body:          bytes.NewReader(payload),
		IfSeqNo:       &seqNo,
		IfPrimaryTerm: &primaryTerm,
		Refresh:       "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("replace record: %w", err)
	}
	defer res.Body.Close()

	return checkWrite(res, "replace record")
}

// SearchRecords lists records, newest first, optionally filtered by a
// full-text query on the alert message.
func (c *Client) SearchRecords(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	query := map[string]any{"match_all": map[string]any{}}
	if params.Query != "" {
		query = map[string]any{
			"match": map[string]any{
				"message": map[string]any{"query": params.Query, "operator": "and"},
			},
		}
	}

	body := map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query":            query,
		"sort": []map[string]any{
			{"timestamp": map[string]any{"order": "desc"}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.Record, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		ts, err := models.ParseTimestamp(hit.Source.Timestamp)
		if err != nil {
			c.log.Warn("skipping record with bad timestamp", slog.String("timestamp", hit.Source.Timestamp))
			continue
		}
		items = append(items, models.Record{Key: hit.Source.Key, Timestamp: ts, Message: hit.Source.Message})
	}

	return &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

// DeleteOlderThan removes records older than maxAge using batched delete-by-query.
// It loops until a batch returns fewer deleted documents than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := models.FormatTimestamp(time.Now().Add(-maxAge))
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"query": map[string]any{
				"range": map[string]any{
					"timestamp": map[string]any{
						"lte":    cutoff,
						"format": "yyyy-MM-dd HH:mm:ss",
					},
				},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Health pings Elasticsearch to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

func encode(rec models.Record) ([]byte, error) {
	payload, err := json.Marshal(document{
		Key:       rec.Key,
		Timestamp: models.FormatTimestamp(rec.Timestamp),
		Message:   rec.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return payload, nil
}

func checkWrite(res *esapi.Response, op string) error {
	if res.StatusCode == http.StatusConflict {
		return dedupe.ErrConflict
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%s failed: %s", op, strings.TrimSpace(string(body)))
	}
	return nil
}

func formatRevision(seqNo, primaryTerm int) string {
	return strconv.Itoa(seqNo) + ":" + strconv.Itoa(primaryTerm)
}

func parseRevision(rev string) (int, int, error) {
	seq, term, ok := strings.Cut(rev, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed revision %q", rev)
	}
	seqNo, err := strconv.Atoi(seq)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed revision %q: %w", rev, err)
	}
	primaryTerm, err := strconv.Atoi(term)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed revision %q: %w", rev, err)
	}
	return seqNo, primaryTerm, nil
}
