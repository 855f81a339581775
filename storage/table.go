package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskboard-api/domain"
)

// Row keys inside a user's partition. The whole board travels as one
// serialized document, so a save is a single upsert.
const (
	boardRowKey   = "board"
	readSetRowKey = "readset"
)

// TableStore persists board documents and read sets in an Azure Table,
// one partition per user. Selected over the file backend when a storage
// connection string is configured.
type TableStore struct {
	table *aztables.Client
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, tableName string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{table: svc.NewClient(tableName)}, nil
}

type documentEntity struct {
	aztables.Entity
	Document string `json:"Document"`
}

func (ts *TableStore) LoadState(ctx context.Context, userID string) (*domain.BoardState, bool, error) {
	doc, found, err := ts.loadDocument(ctx, userID, boardRowKey)
	if err != nil || !found {
		return nil, false, err
	}
	var state domain.BoardState
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		return nil, false, err
	}
	return &state, true, nil
}

func (ts *TableStore) SaveState(ctx context.Context, userID string, state *domain.BoardState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return ts.saveDocument(ctx, userID, boardRowKey, string(data))
}

func (ts *TableStore) LoadReadSet(ctx context.Context, userID string) ([]string, error) {
	doc, found, err := ts.loadDocument(ctx, userID, readSetRowKey)
	if err != nil || !found {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(doc), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (ts *TableStore) SaveReadSet(ctx context.Context, userID string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return ts.saveDocument(ctx, userID, readSetRowKey, string(data))
}

func (ts *TableStore) loadDocument(ctx context.Context, userID, rowKey string) (string, bool, error) {
	resp, err := ts.table.GetEntity(ctx, userID, rowKey, nil)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	var ent documentEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return "", false, err
	}
	return ent.Document, true, nil
}

func (ts *TableStore) saveDocument(ctx context.Context, userID, rowKey, doc string) error {
	ent := documentEntity{
		Entity:   aztables.Entity{PartitionKey: userID, RowKey: rowKey},
		Document: doc,
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = ts.table.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
