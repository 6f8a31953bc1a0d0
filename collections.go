package warren

import (
	"context"
	"fmt"

	"github.com/jhump/protoreflect/dynamic"
	"github.com/shhac/warren/internal/errs"
)

// Thin typed facades over the generic Call path. Each one serializes a
// request, invokes one RPC, and decodes the response; all connection,
// pooling, and compatibility concerns live below them.

// Connect forces the handshake now instead of on the first call.
// Returns nil for both Connected and Unimplemented outcomes.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.ensureConnected(ctx)
	return err
}

// GetVersion reports the server's version string.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	req, err := c.newRequest("GetVersion")
	if err != nil {
		return "", err
	}
	resp, err := c.Call(ctx, "GetVersion", req, nil)
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	return getString(resp, "version"), nil
}

// CreateCollection creates a collection with the given schema. The
// schema travels as a nested binary-encoded sub-message.
func (c *Client) CreateCollection(ctx context.Context, schema CollectionSchema, shards int32) error {
	encoded, err := c.encodeCollectionSchema(schema)
	if err != nil {
		return err
	}
	req, err := c.newRequest("CreateCollection")
	if err != nil {
		return err
	}
	if err := setFields(req, "CreateCollection", map[string]any{
		"db_name":         c.dbName(),
		"collection_name": schema.Name,
		"schema":          encoded,
		"shards_num":      shards,
	}); err != nil {
		return err
	}

	resp, err := c.Call(ctx, "CreateCollection", req, nil)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// DescribeCollection fetches the server's view of a collection,
// including its decoded schema.
func (c *Client) DescribeCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	resp, err := c.collectionCall(ctx, "DescribeCollection", name)
	if err != nil {
		return nil, err
	}
	info := &CollectionInfo{
		ID:               getInt64(resp, "collection_id"),
		Shards:           getInt32(resp, "shards_num"),
		CreatedTimestamp: getUint64(resp, "created_timestamp"),
	}
	if sm := getMessage(resp, "schema"); sm != nil {
		info.Schema = decodeCollectionSchema(sm)
	}
	return info, nil
}

// HasCollection reports whether the named collection exists.
func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	resp, err := c.collectionCall(ctx, "HasCollection", name)
	if err != nil {
		return false, err
	}
	return getBool(resp, "value"), nil
}

// DropCollection removes a collection and its data.
func (c *Client) DropCollection(ctx context.Context, name string) error {
	_, err := c.collectionCall(ctx, "DropCollection", name)
	return err
}

// ListCollections names every collection in the current database.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	req, err := c.newRequest("ListCollections")
	if err != nil {
		return nil, err
	}
	if err := setFields(req, "ListCollections", map[string]any{"db_name": c.dbName()}); err != nil {
		return nil, err
	}
	resp, err := c.Call(ctx, "ListCollections", req, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var names []string
	for _, v := range getRepeated(resp, "collection_names") {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}

// LoadCollection asks the server to load a collection into memory for
// search, with the given replica count (zero selects the server default).
func (c *Client) LoadCollection(ctx context.Context, name string, replicas int32) error {
	req, err := c.newRequest("LoadCollection")
	if err != nil {
		return err
	}
	if err := setFields(req, "LoadCollection", map[string]any{
		"db_name":         c.dbName(),
		"collection_name": name,
		"replica_number":  replicas,
	}); err != nil {
		return err
	}
	resp, err := c.Call(ctx, "LoadCollection", req, nil)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// ReleaseCollection evicts a loaded collection from memory.
func (c *Client) ReleaseCollection(ctx context.Context, name string) error {
	_, err := c.collectionCall(ctx, "ReleaseCollection", name)
	return err
}

// Flush persists the in-memory segments of the named collections.
func (c *Client) Flush(ctx context.Context, names ...string) error {
	req, err := c.newRequest("Flush")
	if err != nil {
		return err
	}
	if err := setFields(req, "Flush", map[string]any{"db_name": c.dbName()}); err != nil {
		return err
	}
	fd := req.GetMessageDescriptor().FindFieldByName("collection_names")
	if fd == nil {
		return errs.Protocol("Flush", fmt.Errorf("collection_names field missing from request type"))
	}
	for _, name := range names {
		if err := req.TryAddRepeatedField(fd, name); err != nil {
			return errs.Protocol("Flush", err)
		}
	}
	resp, err := c.Call(ctx, "Flush", req, nil)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// GetCollectionStatistics returns the server's statistics for a
// collection, e.g. its row count.
func (c *Client) GetCollectionStatistics(ctx context.Context, name string) (map[string]string, error) {
	resp, err := c.collectionCall(ctx, "GetCollectionStatistics", name)
	if err != nil {
		return nil, err
	}
	return decodeKeyValuePairs(getRepeated(resp, "stats")), nil
}

// UseDatabase switches the client's database scope. Multiple databases
// are a newer server capability, so this call is gated: an older server
// yields an incompatibility error rather than a confusing RPC failure.
func (c *Client) UseDatabase(ctx context.Context, name string) error {
	err := c.requireCapability(ctx, "the server does not support multiple databases", nil)
	if err != nil {
		return err
	}
	req, err := c.newRequest("UseDatabase")
	if err != nil {
		return err
	}
	if err := setFields(req, "UseDatabase", map[string]any{"db_name": name}); err != nil {
		return err
	}
	resp, err := c.Call(ctx, "UseDatabase", req, nil)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	c.SetMetadata(databaseHeader, name)
	return nil
}

// collectionCall is the shared shape of requests that carry only a
// database and collection name.
func (c *Client) collectionCall(ctx context.Context, method, name string) (*dynamic.Message, error) {
	req, err := c.newRequest(method)
	if err != nil {
		return nil, err
	}
	if err := setFields(req, method, map[string]any{
		"db_name":         c.dbName(),
		"collection_name": name,
	}); err != nil {
		return nil, err
	}
	resp, err := c.Call(ctx, method, req, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// dbName reads the current database scope from the global metadata.
func (c *Client) dbName() string {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	return c.metadata[databaseHeader]
}

// statusMessageName is the response type that carries only a status.
const statusMessageName = "warren.v1.Status"

// checkStatus surfaces a non-zero server status as a ServerError. The
// response either is a bare Status or embeds one under "status"; a
// response without either is taken as success.
func checkStatus(resp *dynamic.Message) error {
	st := resp
	if resp.GetMessageDescriptor().GetFullyQualifiedName() != statusMessageName {
		st = getMessage(resp, "status")
		if st == nil {
			return nil
		}
	}
	code := getInt32(st, "code")
	if code == 0 {
		return nil
	}
	return &errs.ServerError{Code: code, Reason: getString(st, "reason")}
}
