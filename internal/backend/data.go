package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/Atulx21/SevaConnect/internal/domain"
	apperrors "github.com/Atulx21/SevaConnect/pkg/errors"
	"github.com/Atulx21/SevaConnect/pkg/validator"
)

// ErrMalformedRow matches rows that do not decode into, or validate as,
// their record type.
var ErrMalformedRow = apperrors.ErrMalformed

// tokenSource yields the bearer token for data requests; empty means the
// anonymous key is used.
type tokenSource interface {
	AccessToken() string
}

// DataClient reads and writes single rows through the data API. Requests
// carry the signed-in principal's access token so row-level authorization
// applies.
type DataClient struct {
	t      *transport
	tokens tokenSource
}

func newDataClient(t *transport, tokens tokenSource) *DataClient {
	return &DataClient{t: t, tokens: tokens}
}

func (d *DataClient) bearer() string {
	if d.tokens == nil {
		return ""
	}
	return d.tokens.AccessToken()
}

func byID(id string) url.Values {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("select", "*")
	return q
}

func singleObject(prefer string) http.Header {
	h := http.Header{}
	h.Set("Accept", mediaSingleObject)
	if prefer != "" {
		h.Set("Prefer", prefer)
	}
	return h
}

// FetchOne returns the row of T's table whose primary key is id. A missing
// row yields an error matching apperrors.ErrNotFound with remote code
// PGRST116.
func FetchOne[T domain.Row](ctx context.Context, d *DataClient, id string) (*T, error) {
	var zero T
	table := zero.TableName()

	var raw json.RawMessage
	err := d.t.do(ctx, call{
		op:      "select." + table,
		method:  http.MethodGet,
		path:    restPath + "/" + table,
		query:   byID(id),
		headers: singleObject(""),
		bearer:  d.bearer(),
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeRow[T](table, raw)
}

// UpdateOne applies patch to the row of T's table keyed by id and returns
// the row as stored.
func UpdateOne[T domain.Row](ctx context.Context, d *DataClient, id string, patch any) (*T, error) {
	var zero T
	table := zero.TableName()

	var raw json.RawMessage
	err := d.t.do(ctx, call{
		op:      "update." + table,
		method:  http.MethodPatch,
		path:    restPath + "/" + table,
		query:   byID(id),
		body:    patch,
		headers: singleObject("return=representation"),
		bearer:  d.bearer(),
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeRow[T](table, raw)
}

// InsertOne inserts row into T's table and returns the stored row. A
// primary key collision yields an error matching apperrors.ErrAlreadyExists
// with remote code 23505.
func InsertOne[T domain.Row](ctx context.Context, d *DataClient, row any) (*T, error) {
	var zero T
	table := zero.TableName()

	var raw json.RawMessage
	err := d.t.do(ctx, call{
		op:      "insert." + table,
		method:  http.MethodPost,
		path:    restPath + "/" + table,
		body:    row,
		headers: singleObject("return=representation"),
		bearer:  d.bearer(),
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeRow[T](table, raw)
}

// decodeRow converts a wire row into T and validates it.
func decodeRow[T domain.Row](table string, raw json.RawMessage) (*T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, apperrors.Malformed(table, nil)
	}
	var row T
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, apperrors.Malformed(table, err)
	}
	if err := validator.Validate(row); err != nil {
		return nil, apperrors.Malformed(table, err)
	}
	return &row, nil
}
